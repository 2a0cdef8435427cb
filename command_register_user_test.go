package auth_test

import (
	"context"
	"sync"
	"testing"

	auth "github.com/goliatone/go-auth-invite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerMessage(email string) auth.RegisterUserMessage {
	return auth.RegisterUserMessage{
		Name:                 "Jane Doe",
		Email:                email,
		Password:             "password1",
		PasswordConfirmation: "password1",
	}
}

func TestRegisterUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	var user *auth.User
	msg := registerMessage("jane@example.com")
	msg.OnResponse = func(u *auth.User) { user = u }

	require.NoError(t, env.service.Register.Execute(ctx, msg))
	require.NotNil(t, user)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, "Jane Doe", user.DisplayName)
	assert.True(t, user.IsConfirmed())
	assert.NotEqual(t, "password1", user.PasswordHash)

	_, err := env.service.Auther.Login(ctx, "jane@example.com", "password1")
	assert.NoError(t, err)
	assert.Contains(t, env.sink.Types(), auth.ActivityEventRegistered)
}

func TestRegisterUser_Duplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.service.Register.Execute(ctx, registerMessage("jane@example.com")))

	err := env.service.Register.Execute(ctx, registerMessage("jane@example.com"))
	require.Error(t, err)
	assert.True(t, auth.IsDuplicateEmail(err))
	assert.Equal(t, 400, auth.StatusFor(err))
}

func TestRegisterUser_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name  string
		edit  func(*auth.RegisterUserMessage)
		field string
	}{
		{
			name:  "missing name",
			edit:  func(m *auth.RegisterUserMessage) { m.Name = "" },
			field: "name",
		},
		{
			name:  "bad email",
			edit:  func(m *auth.RegisterUserMessage) { m.Email = "not-an-email" },
			field: "email",
		},
		{
			name:  "short password",
			edit:  func(m *auth.RegisterUserMessage) { m.Password, m.PasswordConfirmation = "abc", "abc" },
			field: "password",
		},
		{
			name:  "confirmation mismatch",
			edit:  func(m *auth.RegisterUserMessage) { m.PasswordConfirmation = "password2" },
			field: "password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := registerMessage("valid@example.com")
			tt.edit(&msg)

			err := env.service.Register.Execute(context.Background(), msg)
			require.Error(t, err)
			assert.True(t, auth.IsValidationError(err))
			assert.Contains(t, auth.ValidationFields(err), tt.field)
		})
	}

	_, err := env.repo.Users().GetByEmail(context.Background(), "valid@example.com")
	assert.True(t, auth.IsNotFound(err))
}

func TestRegisterUser_Closed(t *testing.T) {
	cfg := newTestConfig()
	cfg.openRegistration = false
	env := newTestEnv(t, cfg)

	err := env.service.Register.Execute(context.Background(), registerMessage("jane@example.com"))
	require.Error(t, err)
	assert.Equal(t, 403, auth.StatusFor(err))
}

func TestRegisterUser_ConcurrentSameEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.service.Register.Execute(context.Background(), registerMessage("race@example.com"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, auth.IsDuplicateEmail(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)
}

func TestRegisterUser_CancelledContext(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.service.Register.Execute(ctx, registerMessage("jane@example.com"))
	assert.Error(t, err)
}
