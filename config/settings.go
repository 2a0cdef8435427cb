// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-invite"
	"github.com/kelseyhightower/envconfig"
)

var _ auth.Config = (*Settings)(nil)

// Settings holds the configuration for the server and the mail worker.
type Settings struct {
	AppName  string `envconfig:"APP_NAME" default:"go-auth-invite"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	BaseURL  string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	SigningKey          string            `envconfig:"AUTH_SIGNING_KEY" required:"true"`
	SigningKeyID        string            `envconfig:"AUTH_SIGNING_KEY_ID" default:"primary"`
	PreviousSigningKeys map[string]string `envconfig:"AUTH_PREVIOUS_SIGNING_KEYS"`
	TokenExpiration     time.Duration     `envconfig:"AUTH_TOKEN_TTL" default:"60m"`
	TokenLookup         string            `envconfig:"AUTH_TOKEN_LOOKUP" default:"header:Authorization"`
	AuthScheme          string            `envconfig:"AUTH_SCHEME" default:"Bearer"`
	ContextKey          string            `envconfig:"AUTH_CONTEXT_KEY" default:"user"`
	Issuer              string            `envconfig:"AUTH_ISSUER"`
	Audience            []string          `envconfig:"AUTH_AUDIENCE"`
	InvitationTTL       time.Duration     `envconfig:"AUTH_INVITATION_TTL" default:"168h"`
	OperationTimeout    time.Duration     `envconfig:"AUTH_OPERATION_TIMEOUT" default:"10s"`
	OpenRegistration    bool              `envconfig:"AUTH_OPEN_REGISTRATION" default:"true"`
	RequireConfirmation bool              `envconfig:"AUTH_REQUIRE_CONFIRMATION" default:"false"`
	DeterministicIDs    bool              `envconfig:"AUTH_DETERMINISTIC_IDS" default:"false"`

	DBDriver  string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN     string `envconfig:"DB_DSN" default:"file:auth.db?cache=shared"`
	DBMigrate bool   `envconfig:"DB_MIGRATE" default:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	MailQueue     string `envconfig:"MAIL_QUEUE" default:"default"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"no-reply@localhost"`

	StorageDir string `envconfig:"STORAGE_DIR" default:"./storage/app/public"`
}

// Load reads Settings from the environment.
func Load() (*Settings, error) {
	var cfg Settings
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Settings) Validate() error {
	if strings.TrimSpace(s.SigningKey) == "" {
		return errors.New("signing key must be provided")
	}
	if len(s.SigningKey) < 32 {
		return errors.New("signing key must be at least 32 bytes")
	}
	switch s.DBDriver {
	case auth.DriverSQLite, auth.DriverPostgres:
	default:
		return errors.New("unsupported database driver: " + s.DBDriver)
	}
	if s.TokenExpiration <= 0 {
		return errors.New("token ttl must be positive")
	}
	if s.InvitationTTL <= 0 {
		return errors.New("invitation ttl must be positive")
	}
	return nil
}

// RedisEnabled reports whether a redis address is configured. Without
// redis, logout cannot revoke tokens and invitations are mailed inline.
func (s *Settings) RedisEnabled() bool {
	return s.RedisAddr != ""
}

func (s *Settings) SMTPEnabled() bool {
	return s.SMTPHost != ""
}

// Level parses LogLevel, defaulting to info.
func (s *Settings) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (s *Settings) GetSigningKey() string                     { return s.SigningKey }
func (s *Settings) GetSigningKeyID() string                   { return s.SigningKeyID }
func (s *Settings) GetPreviousSigningKeys() map[string]string { return s.PreviousSigningKeys }
func (s *Settings) GetTokenExpiration() time.Duration         { return s.TokenExpiration }
func (s *Settings) GetTokenLookup() string                    { return s.TokenLookup }
func (s *Settings) GetAuthScheme() string                     { return s.AuthScheme }
func (s *Settings) GetContextKey() string                     { return s.ContextKey }
func (s *Settings) GetIssuer() string                         { return s.Issuer }
func (s *Settings) GetAudience() []string                     { return s.Audience }
func (s *Settings) GetBaseURL() string                        { return s.BaseURL }
func (s *Settings) GetInvitationTTL() time.Duration           { return s.InvitationTTL }
func (s *Settings) GetOperationTimeout() time.Duration        { return s.OperationTimeout }
func (s *Settings) GetOpenRegistration() bool                 { return s.OpenRegistration }
func (s *Settings) GetRequireConfirmation() bool              { return s.RequireConfirmation }
func (s *Settings) GetDeterministicIDs() bool                 { return s.DeterministicIDs }
