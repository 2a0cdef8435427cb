package auth_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-invite"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: auth.FieldError("email", "bad"), want: http.StatusBadRequest},
		{name: "duplicate", err: auth.ErrDuplicateEmail, want: http.StatusBadRequest},
		{name: "invite", err: auth.ErrInvalidOrExpiredInvite, want: http.StatusBadRequest},
		{name: "credentials", err: auth.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{name: "revoked", err: auth.ErrTokenRevoked, want: http.StatusUnauthorized},
		{name: "forbidden", err: auth.ErrForbidden, want: http.StatusForbidden},
		{name: "closed", err: auth.ErrRegistrationClosed, want: http.StatusForbidden},
		{name: "not found", err: auth.ErrNotFound, want: http.StatusNotFound},
		{name: "transient", err: auth.ErrTransientStore, want: http.StatusServiceUnavailable},
		{name: "storage", err: auth.ErrStorageFailure, want: http.StatusInternalServerError},
		{name: "fiber", err: fiber.ErrMethodNotAllowed, want: http.StatusMethodNotAllowed},
		{name: "plain", err: errors.New("boom"), want: http.StatusInternalServerError},
		{
			name: "category fallback",
			err:  goerrors.New("nope", goerrors.CategoryAuthz),
			want: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.StatusFor(tt.err))
		})
	}
}

func TestValidationFields(t *testing.T) {
	err := auth.NewValidationError(map[string]string{"email": "required", "password": "short"})
	assert.True(t, auth.IsValidationError(err))
	assert.Equal(t, map[string]string{"email": "required", "password": "short"}, auth.ValidationFields(err))

	assert.Nil(t, auth.ValidationFields(errors.New("plain")))
	assert.Nil(t, auth.ValidationFields(auth.ErrNotFound))
}

func TestTextCodePredicates(t *testing.T) {
	cloned := auth.ErrTokenExpired.Clone().WithMetadata(map[string]any{"reason": "test"})

	assert.True(t, auth.IsTokenInvalid(cloned))
	assert.True(t, auth.IsTokenInvalid(auth.ErrTokenMalformed))
	assert.False(t, auth.IsTokenInvalid(auth.ErrNotFound))
	assert.True(t, auth.IsNotFound(auth.ErrNotFound))
	assert.False(t, auth.IsNotFound(errors.New("record not found")))
	assert.True(t, auth.IsNotifierUnavailable(auth.ErrNotifierUnavailable))
}

func TestRenderError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		debug    bool
		status   int
		message  string
		textCode string
	}{
		{
			name:     "rich error",
			err:      auth.ErrInvalidCredentials,
			status:   http.StatusUnauthorized,
			message:  "Invalid Email or Password",
			textCode: auth.TextCodeInvalidCredentials,
		},
		{
			name:     "internal hidden",
			err:      auth.ErrStorageFailure,
			status:   http.StatusInternalServerError,
			message:  "An unexpected server error occurred",
			textCode: auth.TextCodeStorageFailure,
		},
		{
			name:     "internal in debug",
			err:      auth.ErrStorageFailure,
			debug:    true,
			status:   http.StatusInternalServerError,
			message:  "storage failure",
			textCode: auth.TextCodeStorageFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return auth.RenderError(c, tt.err, tt.debug)
			})

			res := doRequest(t, app, http.MethodGet, "/", "", nil, "")
			assert.Equal(t, tt.status, res.Status)
			body := res.JSON(t)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["message"])
			assert.Equal(t, tt.textCode, body["text_code"])
		})
	}
}
