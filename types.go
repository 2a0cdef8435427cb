package auth

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger is the structured logger used across the package. Arguments
// after the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningKeyID() string
	// GetPreviousSigningKeys maps key id to secret for keys that still verify
	// tokens but no longer sign them.
	GetPreviousSigningKeys() map[string]string
	GetTokenExpiration() time.Duration
	GetTokenLookup() string
	GetAuthScheme() string
	GetContextKey() string
	GetIssuer() string
	GetAudience() []string
	GetBaseURL() string
	GetInvitationTTL() time.Duration
	GetOperationTimeout() time.Duration
	GetOpenRegistration() bool
	GetRequireConfirmation() bool
	GetDeterministicIDs() bool
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Notifier delivers a message to an email address. Delivery is best effort
// from the point of view of the caller.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AvatarStorage persists avatar blobs under a relative path.
type AvatarStorage interface {
	Put(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, to, subject, body string) error

func (f NotifierFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger adapts a slog.Logger to Logger.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return slogLogger{logger: logger.With("component", "auth")}
}

// NewTextLogger writes human readable log lines to w.
func NewTextLogger(w io.Writer, level slog.Level) Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func (l slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func defaultLogger() Logger {
	return NewTextLogger(os.Stderr, slog.LevelInfo)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards every entry.
func NopLogger() Logger { return nopLogger{} }
