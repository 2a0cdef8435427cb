package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-auth-invite"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuther_Login(t *testing.T) {
	env := newTestEnv(t, nil)
	user := seedUser(t, env.repo, "login@example.com", "password1")
	ctx := context.Background()

	token, err := env.service.Auther.Login(ctx, "login@example.com", "password1")
	require.NoError(t, err)

	claims, err := env.tokens.Validate(ctx, token.Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID())

	assert.Contains(t, env.sink.Types(), auth.ActivityEventLoginSuccess)
}

func TestAuther_LoginFailuresLookTheSame(t *testing.T) {
	env := newTestEnv(t, nil)
	seedUser(t, env.repo, "login@example.com", "password1")
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "unknown email", email: "ghost@example.com", password: "password1"},
		{name: "wrong password", email: "login@example.com", password: "password2"},
		{name: "empty password", email: "login@example.com", password: ""},
		{name: "empty email", email: "", password: "password1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := env.service.Auther.Login(ctx, tt.email, tt.password)
			assert.Nil(t, token)
			require.Error(t, err)
			assert.True(t, auth.IsInvalidCredentials(err))

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, "Invalid Email or Password", richErr.Message)
		})
	}

	assert.Contains(t, env.sink.Types(), auth.ActivityEventLoginFailure)
}

func TestAuther_LoginUnconfirmed(t *testing.T) {
	ctx := context.Background()

	pin := 123456
	create := func(env *testEnv) {
		hash, err := fastPasswords.HashPassword("password1")
		require.NoError(t, err)
		_, err = env.repo.Users().Create(ctx, &auth.User{
			Email:           "pending@example.com",
			PasswordHash:    hash,
			ConfirmationPin: &pin,
		})
		require.NoError(t, err)
	}

	permissive := newTestEnv(t, nil)
	create(permissive)
	_, err := permissive.service.Auther.Login(ctx, "pending@example.com", "password1")
	assert.NoError(t, err)

	cfg := newTestConfig()
	cfg.requireConfirmation = true
	strict := newTestEnv(t, cfg)
	create(strict)
	_, err = strict.service.Auther.Login(ctx, "pending@example.com", "password1")
	require.Error(t, err)
	assert.Equal(t, 401, auth.StatusFor(err))
}

func TestAuther_RefreshReturnsUser(t *testing.T) {
	revoker, _ := newRedisRevoker(t)
	env := newTestEnv(t, nil, auth.WithRevoker(revoker))
	user := seedUser(t, env.repo, "refresh@example.com", "password1")
	ctx := context.Background()

	token, err := env.service.Auther.Login(ctx, "refresh@example.com", "password1")
	require.NoError(t, err)

	res, err := env.service.Auther.Refresh(ctx, token.Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)
	assert.NotEqual(t, token.Value, res.Token.Value)

	_, err = env.service.Auther.Refresh(ctx, token.Value)
	assert.True(t, auth.IsTokenInvalid(err))
}

func TestAuther_RefreshUnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)

	token, err := env.tokens.Issue("6f1c1a1e-8a43-4b5b-9b34-0e6b7e7c1d11")
	require.NoError(t, err)

	_, err = env.service.Auther.Refresh(context.Background(), token.Value)
	assert.True(t, auth.IsTokenInvalid(err))
}

func TestAuther_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("with revocation list", func(t *testing.T) {
		revoker, _ := newRedisRevoker(t)
		env := newTestEnv(t, nil, auth.WithRevoker(revoker))
		seedUser(t, env.repo, "out@example.com", "password1")

		token, err := env.service.Auther.Login(ctx, "out@example.com", "password1")
		require.NoError(t, err)

		require.NoError(t, env.service.Auther.Logout(ctx, token.Value))

		_, err = env.tokens.Validate(ctx, token.Value)
		assert.True(t, auth.IsTokenInvalid(err))
		assert.Contains(t, env.sink.Types(), auth.ActivityEventLogout)
	})

	t.Run("without revocation list", func(t *testing.T) {
		env := newTestEnv(t, nil)
		seedUser(t, env.repo, "out@example.com", "password1")

		token, err := env.service.Auther.Login(ctx, "out@example.com", "password1")
		require.NoError(t, err)

		assert.NoError(t, env.service.Auther.Logout(ctx, token.Value))

		_, err = env.tokens.Validate(ctx, token.Value)
		assert.NoError(t, err)
	})

	t.Run("invalid token", func(t *testing.T) {
		env := newTestEnv(t, nil)
		err := env.service.Auther.Logout(ctx, "garbage")
		assert.True(t, auth.IsTokenInvalid(err))
	})
}
