package auth

import (
	"context"
	"errors"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultTokenTTL is the access token lifetime when none is configured.
	DefaultTokenTTL     = 60 * time.Minute
	DefaultSigningKeyID = "primary"
	signingAlgorithm    = "HS256"
)

// Token is an issued access token.
type Token struct {
	Value     string    `json:"access_token"`
	TokenID   string    `json:"-"`
	UserID    string    `json:"-"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// ExpiresIn is the token lifetime in seconds.
func (t *Token) ExpiresIn() int {
	if t == nil {
		return 0
	}
	return int(t.ExpiresAt.Sub(t.IssuedAt).Seconds())
}

// TokenService issues and validates access tokens. Validation needs no store
// lookup unless a Revoker is configured.
type TokenService interface {
	Issue(userID string) (*Token, error)
	Validate(ctx context.Context, raw string) (*JWTClaims, error)
	Refresh(ctx context.Context, raw string) (*Token, error)
	Revoke(ctx context.Context, raw string) error
	TTL() time.Duration
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	keyID      string
	keys       jwt.Keyfunc
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	revoker    Revoker
	logger     Logger
	now        func() time.Time
}

type TokenServiceOption func(*TokenServiceImpl)

// WithPreviousSigningKeys keeps tokens signed by rotated keys verifiable.
func WithPreviousSigningKeys(keys map[string]string) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.keys = buildKeyfunc(ts.keyID, ts.signingKey, keys)
	}
}

func WithRevoker(revoker Revoker) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.revoker = revoker
	}
}

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

func WithIssuerAudience(issuer string, audience ...string) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.issuer = issuer
		ts.audience = audience
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, keyID string, ttl time.Duration, opts ...TokenServiceOption) *TokenServiceImpl {
	if keyID == "" {
		keyID = DefaultSigningKeyID
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	ts := &TokenServiceImpl{
		signingKey: signingKey,
		keyID:      keyID,
		ttl:        ttl,
		logger:     defaultLogger(),
		now:        time.Now,
	}
	ts.keys = buildKeyfunc(keyID, signingKey, nil)

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// NewTokenServiceFromConfig wires a TokenService from Config.
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) *TokenServiceImpl {
	base := []TokenServiceOption{
		WithIssuerAudience(cfg.GetIssuer(), cfg.GetAudience()...),
		WithPreviousSigningKeys(cfg.GetPreviousSigningKeys()),
	}
	return NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetSigningKeyID(),
		cfg.GetTokenExpiration(),
		append(base, opts...)...,
	)
}

func buildKeyfunc(keyID string, current []byte, previous map[string]string) jwt.Keyfunc {
	given := make(map[string]keyfunc.GivenKey, len(previous)+1)
	for kid, secret := range previous {
		if kid == "" || secret == "" {
			continue
		}
		given[kid] = keyfunc.NewGivenCustom([]byte(secret), keyfunc.GivenKeyOptions{
			Algorithm: signingAlgorithm,
		})
	}
	given[keyID] = keyfunc.NewGivenCustom(current, keyfunc.GivenKeyOptions{
		Algorithm: signingAlgorithm,
	})
	return keyfunc.NewGiven(given).Keyfunc
}

func (ts *TokenServiceImpl) TTL() time.Duration {
	return ts.ttl
}

// Issue signs a token for userID that expires after the configured TTL.
func (ts *TokenServiceImpl) Issue(userID string) (*Token, error) {
	if userID == "" {
		return nil, goerrors.New("user id is required to issue a token", goerrors.CategoryBadInput)
	}

	now := ts.now().UTC().Truncate(time.Second)
	expires := now.Add(ts.ttl)
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		UID: userID,
	}
	ensureTokenID(&claims.RegisteredClaims)

	value, err := ts.SignClaims(claims)
	if err != nil {
		return nil, err
	}

	return &Token{
		Value:     value,
		TokenID:   claims.RegisteredClaims.ID,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: expires,
	}, nil
}

// SignClaims signs arbitrary JWT claims using the current signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = ts.keyID

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(ctx context.Context, raw string) (*JWTClaims, error) {
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingAlgorithm}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(raw, &JWTClaims{}, ts.keys, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrTokenMalformed
		}
		ts.logger.Debug("token validation failed", "error", err)
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UserID() == "" {
		ts.logger.Error("token service could not decode or validate claims")
		return nil, ErrTokenInvalid
	}

	if ts.revoker != nil {
		revoked, err := ts.revoker.IsRevoked(ctx, claims.TokenID())
		if err != nil {
			ts.logger.Error("token revocation lookup failed", "error", err)
			return nil, ErrTransientStore.Clone().WithMetadata(map[string]any{
				"operation": "token revocation lookup",
			})
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// Refresh validates raw, revokes it when a revoker is configured and issues
// a new token for the same user with a fresh TTL.
func (ts *TokenServiceImpl) Refresh(ctx context.Context, raw string) (*Token, error) {
	claims, err := ts.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}

	if ts.revoker != nil {
		claimed, err := ts.revoker.Revoke(ctx, claims.TokenID(), claims.Expires())
		if err != nil {
			return nil, asOperationError(err, "failed to revoke refreshed token")
		}
		if !claimed {
			return nil, ErrTokenRevoked
		}
	}

	return ts.Issue(claims.UserID())
}

// Revoke invalidates raw for the rest of its lifetime.
func (ts *TokenServiceImpl) Revoke(ctx context.Context, raw string) error {
	claims, err := ts.Validate(ctx, raw)
	if err != nil {
		return err
	}

	if ts.revoker == nil {
		return ErrRevocationUnsupported
	}

	claimed, err := ts.revoker.Revoke(ctx, claims.TokenID(), claims.Expires())
	if err != nil {
		return asOperationError(err, "failed to revoke token")
	}
	if !claimed {
		return ErrTokenRevoked
	}
	return nil
}
