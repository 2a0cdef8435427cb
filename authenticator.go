package auth

import (
	"context"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Authenticator holds the token bound operations of the auth service.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*Token, error)
	Refresh(ctx context.Context, raw string) (*RefreshResult, error)
	Logout(ctx context.Context, raw string) error
}

// RefreshResult is the payload returned by a refresh.
type RefreshResult struct {
	Token *Token
	User  *User
}

type Auther struct {
	repo                RepositoryManager
	tokens              TokenService
	passwords           PasswordAuthenticator
	logger              Logger
	requireConfirmation bool
	activity            ActivitySink
	dummyOnce           *sync.Once
	dummyHash           string
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, tokens TokenService) *Auther {
	return &Auther{
		repo:      repo,
		tokens:    tokens,
		passwords: DefaultPasswordAuthenticator(),
		logger:    defaultLogger(),
		dummyOnce: &sync.Once{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Auther) WithPasswordAuthenticator(p PasswordAuthenticator) *Auther {
	if p != nil {
		s.passwords = p
		s.dummyOnce = &sync.Once{}
	}
	return s
}

// WithRequireConfirmation rejects logins from accounts with a pending pin.
func (s *Auther) WithRequireConfirmation(require bool) *Auther {
	s.requireConfirmation = require
	return s
}

func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = sink
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokens
}

// Login verifies the credentials and issues a token. Unknown emails and bad
// passwords fail the same way.
func (s *Auther) Login(ctx context.Context, email, password string) (*Token, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			// equalize timing with the known user branch
			_ = s.passwords.ComparePasswordAndHash(password, s.fakeHash())
			s.logger.Info("login rejected", "reason", "unknown email")
			s.loginFailed(ctx, "", "unknown email")
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("login user lookup failed", "error", err)
		return nil, asOperationError(err, "login user lookup failed")
	}

	if err := s.passwords.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.logger.Info("login rejected", "reason", "password mismatch", "user_id", user.ID.String())
		s.loginFailed(ctx, user.ID.String(), "password mismatch")
		return nil, ErrInvalidCredentials
	}

	if s.requireConfirmation && user.HasPendingPin() {
		s.logger.Info("login rejected", "reason", "unconfirmed", "user_id", user.ID.String())
		s.loginFailed(ctx, user.ID.String(), "unconfirmed")
		return nil, ErrAccountUnconfirmed
	}

	token, err := s.tokens.Issue(user.ID.String())
	if err != nil {
		s.logger.Error("login token issue failed", "error", err)
		return nil, asOperationError(err, "failed to issue token")
	}

	s.logger.Debug("login succeeded", "user_id", user.ID.String())
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		ActorID:   user.ID.String(),
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"token_id": token.TokenID},
	})
	return token, nil
}

// Refresh exchanges a valid token for a new one and returns the owner.
func (s *Auther) Refresh(ctx context.Context, raw string) (*RefreshResult, error) {
	token, err := s.tokens.Refresh(ctx, raw)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(token.UserID)
	if err != nil {
		return nil, ErrTokenMalformed
	}

	user, err := s.repo.Users().GetByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrTokenInvalid
		}
		return nil, asOperationError(err, "refresh user lookup failed")
	}

	return &RefreshResult{Token: token, User: user}, nil
}

// Logout revokes raw when a revocation list is configured. Without one the
// token remains valid until it expires.
func (s *Auther) Logout(ctx context.Context, raw string) error {
	revoked := true
	if err := s.tokens.Revoke(ctx, raw); err != nil {
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) || richErr.TextCode != TextCodeRevocationUnsupported {
			return err
		}
		s.logger.Warn("logout without revocation list, token stays valid until expiry")
		revoked = false
	}

	event := ActivityEvent{
		EventType: ActivityEventLogout,
		Metadata:  map[string]any{"revoked": revoked},
	}
	if claims, ok := GetClaims(ctx); ok {
		event.ActorID = claims.UserID()
		event.UserID = claims.UserID()
		event.Metadata["token_id"] = claims.TokenID()
	}
	recordActivity(ctx, s.activity, s.logger, event)
	return nil
}

func (s *Auther) loginFailed(ctx context.Context, userID, reason string) {
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		UserID:    userID,
		Metadata:  map[string]any{"reason": reason},
	})
}

func (s *Auther) fakeHash() string {
	s.dummyOnce.Do(func() {
		h, err := RandomPasswordHash(s.passwords)
		if err != nil {
			s.logger.Warn("could not build placeholder password hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
