package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-auth-invite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokens(key, kid string, opts ...auth.TokenServiceOption) *auth.TokenServiceImpl {
	opts = append([]auth.TokenServiceOption{auth.WithTokenLogger(auth.NopLogger())}, opts...)
	return auth.NewTokenService([]byte(key), kid, time.Hour, opts...)
}

func newRedisRevoker(t *testing.T) (*auth.RedisRevoker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return auth.NewRedisRevoker(client), mr
}

func TestNewTokenService_Defaults(t *testing.T) {
	ts := auth.NewTokenService([]byte(testSigningKey), "", 0)
	assert.Equal(t, auth.DefaultTokenTTL, ts.TTL())
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	ts := newTokens(testSigningKey, "primary")
	userID := uuid.NewString()

	token, err := ts.Issue(userID)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Value)
	assert.NotEmpty(t, token.TokenID)
	assert.Equal(t, 3600, token.ExpiresIn())

	claims, err := ts.Validate(context.Background(), token.Value)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID())
	assert.Equal(t, userID, claims.Subject())
	assert.Equal(t, token.TokenID, claims.TokenID())
	assert.Equal(t, token.ExpiresAt.Unix(), claims.Expires().Unix())

	parsed, _, err := jwt.NewParser().ParseUnverified(token.Value, &auth.JWTClaims{})
	require.NoError(t, err)
	assert.Equal(t, "primary", parsed.Header["kid"])
	assert.Equal(t, "HS256", parsed.Header["alg"])
}

func TestTokenService_IssueRequiresUser(t *testing.T) {
	_, err := newTokens(testSigningKey, "primary").Issue("")
	assert.Error(t, err)
}

func TestTokenService_Expired(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	ts := newTokens(testSigningKey, "primary", auth.WithTokenClock(func() time.Time { return clock() }))

	token, err := ts.Issue(uuid.NewString())
	require.NoError(t, err)

	clock = func() time.Time { return now.Add(2 * time.Hour) }

	_, err = ts.Validate(context.Background(), token.Value)
	require.Error(t, err)
	assert.True(t, auth.IsTokenExpiredError(err))
	assert.True(t, auth.IsTokenInvalid(err))
}

func TestTokenService_RejectsBadTokens(t *testing.T) {
	ts := newTokens(testSigningKey, "primary")
	other := newTokens("another-signing-key-0123456789abcd", "primary")

	foreign, err := other.Issue(uuid.NewString())
	require.NoError(t, err)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	hs512.Header["kid"] = "primary"
	wrongAlg, err := hs512.SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	tests := []struct {
		name      string
		raw       string
		malformed bool
	}{
		{name: "empty", raw: "", malformed: true},
		{name: "garbage", raw: "not-a-token", malformed: true},
		{name: "foreign signature", raw: foreign.Value},
		{name: "unexpected algorithm", raw: wrongAlg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Validate(context.Background(), tt.raw)
			require.Error(t, err)
			assert.True(t, auth.IsTokenInvalid(err))
			if tt.malformed {
				assert.True(t, auth.IsMalformedError(err))
			}
		})
	}
}

func TestTokenService_KeyRotation(t *testing.T) {
	const oldKey = "old-signing-key-0123456789abcdefgh"

	before := newTokens(oldKey, "2024")
	token, err := before.Issue(uuid.NewString())
	require.NoError(t, err)

	rotated := newTokens(testSigningKey, "2025", auth.WithPreviousSigningKeys(map[string]string{"2024": oldKey}))
	_, err = rotated.Validate(context.Background(), token.Value)
	assert.NoError(t, err)

	fresh, err := rotated.Issue(uuid.NewString())
	require.NoError(t, err)
	_, err = rotated.Validate(context.Background(), fresh.Value)
	assert.NoError(t, err)

	dropped := newTokens(testSigningKey, "2025")
	_, err = dropped.Validate(context.Background(), token.Value)
	assert.True(t, auth.IsTokenInvalid(err))
}

func TestTokenService_IssuerAudience(t *testing.T) {
	ts := newTokens(testSigningKey, "primary", auth.WithIssuerAudience("auth.test", "web"))
	token, err := ts.Issue(uuid.NewString())
	require.NoError(t, err)

	_, err = ts.Validate(context.Background(), token.Value)
	assert.NoError(t, err)

	other := newTokens(testSigningKey, "primary", auth.WithIssuerAudience("auth.test", "mobile"))
	_, err = other.Validate(context.Background(), token.Value)
	assert.True(t, auth.IsTokenInvalid(err))
}

func TestTokenService_RevokeWithoutRevoker(t *testing.T) {
	ts := newTokens(testSigningKey, "primary")
	token, err := ts.Issue(uuid.NewString())
	require.NoError(t, err)

	err = ts.Revoke(context.Background(), token.Value)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revocation")

	_, err = ts.Validate(context.Background(), token.Value)
	assert.NoError(t, err)
}

func TestTokenService_RevokeWithRedis(t *testing.T) {
	revoker, mr := newRedisRevoker(t)
	ts := newTokens(testSigningKey, "primary", auth.WithRevoker(revoker))
	ctx := context.Background()

	token, err := ts.Issue(uuid.NewString())
	require.NoError(t, err)

	require.NoError(t, ts.Revoke(ctx, token.Value))

	_, err = ts.Validate(ctx, token.Value)
	require.Error(t, err)
	assert.True(t, auth.IsTokenInvalid(err))
	assert.Contains(t, err.Error(), "revoked")

	ttl := mr.TTL("auth:revoked:" + token.TokenID)
	assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "ttl %s", ttl)

	mr.FastForward(time.Hour + time.Second)
	assert.False(t, mr.Exists("auth:revoked:"+token.TokenID))
}

func TestTokenService_RefreshRevokesPrevious(t *testing.T) {
	revoker, _ := newRedisRevoker(t)
	ts := newTokens(testSigningKey, "primary", auth.WithRevoker(revoker))
	ctx := context.Background()
	userID := uuid.NewString()

	token, err := ts.Issue(userID)
	require.NoError(t, err)

	next, err := ts.Refresh(ctx, token.Value)
	require.NoError(t, err)
	assert.NotEqual(t, token.TokenID, next.TokenID)
	assert.Equal(t, userID, next.UserID)

	_, err = ts.Validate(ctx, token.Value)
	assert.True(t, auth.IsTokenInvalid(err))

	_, err = ts.Validate(ctx, next.Value)
	assert.NoError(t, err)

	_, err = ts.Refresh(ctx, token.Value)
	assert.Error(t, err)
}

func TestTokenService_RevokerDown(t *testing.T) {
	revoker, mr := newRedisRevoker(t)
	ts := newTokens(testSigningKey, "primary", auth.WithRevoker(revoker))

	token, err := ts.Issue(uuid.NewString())
	require.NoError(t, err)

	mr.Close()

	_, err = ts.Validate(context.Background(), token.Value)
	require.Error(t, err)
	assert.True(t, auth.IsTransientStoreFailure(err))
}

// checkpointRevoker holds every IsRevoked caller until all expected callers
// have passed the lookup.
type checkpointRevoker struct {
	*auth.RedisRevoker
	passed sync.WaitGroup
}

func (r *checkpointRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	revoked, err := r.RedisRevoker.IsRevoked(ctx, tokenID)
	r.passed.Done()
	r.passed.Wait()
	return revoked, err
}

func TestTokenService_ConcurrentRefreshClaimsOnce(t *testing.T) {
	redisRevoker, _ := newRedisRevoker(t)
	revoker := &checkpointRevoker{RedisRevoker: redisRevoker}
	revoker.passed.Add(2)
	ts := newTokens(testSigningKey, "primary", auth.WithRevoker(revoker))

	token, err := ts.Issue(uuid.NewString())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ts.Refresh(context.Background(), token.Value)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, auth.IsTokenInvalid(err), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestRedisRevoker_ClaimsOnce(t *testing.T) {
	revoker, mr := newRedisRevoker(t)
	ctx := context.Background()
	until := time.Now().Add(time.Hour)

	claimed, err := revoker.Revoke(ctx, "jti-1", until)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = revoker.Revoke(ctx, "jti-1", until)
	require.NoError(t, err)
	assert.False(t, claimed)

	revoked, err := revoker.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	claimed, err = revoker.Revoke(ctx, "jti-2", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.False(t, mr.Exists("auth:revoked:jti-2"))

	_, err = revoker.Revoke(ctx, "", until)
	assert.True(t, auth.IsTokenInvalid(err))
}
