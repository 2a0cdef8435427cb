package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-invite"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

var fastPasswords = auth.BcryptAuthenticator{Cost: bcrypt.MinCost}

type testConfig struct {
	signingKey          string
	keyID               string
	previous            map[string]string
	ttl                 time.Duration
	invitationTTL       time.Duration
	timeout             time.Duration
	openRegistration    bool
	requireConfirmation bool
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:       testSigningKey,
		keyID:            "primary",
		ttl:              time.Hour,
		invitationTTL:    7 * 24 * time.Hour,
		timeout:          5 * time.Second,
		openRegistration: true,
	}
}

func (c *testConfig) GetSigningKey() string                     { return c.signingKey }
func (c *testConfig) GetSigningKeyID() string                   { return c.keyID }
func (c *testConfig) GetPreviousSigningKeys() map[string]string { return c.previous }
func (c *testConfig) GetTokenExpiration() time.Duration         { return c.ttl }
func (c *testConfig) GetTokenLookup() string                    { return "header:Authorization" }
func (c *testConfig) GetAuthScheme() string                     { return "Bearer" }
func (c *testConfig) GetContextKey() string                     { return "user" }
func (c *testConfig) GetIssuer() string                         { return "" }
func (c *testConfig) GetAudience() []string                     { return nil }
func (c *testConfig) GetBaseURL() string                        { return "http://localhost:8080" }
func (c *testConfig) GetInvitationTTL() time.Duration           { return c.invitationTTL }
func (c *testConfig) GetOperationTimeout() time.Duration        { return c.timeout }
func (c *testConfig) GetOpenRegistration() bool                 { return c.openRegistration }
func (c *testConfig) GetRequireConfirmation() bool              { return c.requireConfirmation }
func (c *testConfig) GetDeterministicIDs() bool                 { return false }

func newTestPersistence(t *testing.T) *persistence.Client {
	t.Helper()

	client, err := auth.NewPersistence(auth.PersistenceConfig{
		Driver: auth.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.DB().Close() })
	return client
}

// newTestDB returns a migrated in-memory sqlite database private to the test.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	client := newTestPersistence(t)
	require.NoError(t, auth.Migrate(context.Background(), client))
	return client.DB()
}

func newTestRepo(t *testing.T, opts ...auth.RepositoryManagerOption) auth.RepositoryManager {
	t.Helper()
	opts = append([]auth.RepositoryManagerOption{auth.WithRepositoryLogger(auth.NopLogger())}, opts...)
	return auth.NewRepositoryManager(newTestDB(t), opts...)
}

// seedUser stores a confirmed user with the given password.
func seedUser(t *testing.T, repo auth.RepositoryManager, email, password string) *auth.User {
	t.Helper()

	hash, err := fastPasswords.HashPassword(password)
	require.NoError(t, err)

	now := time.Now().UTC()
	user, err := repo.Users().Create(context.Background(), &auth.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Seeded",
		ConfirmedAt:  &now,
	})
	require.NoError(t, err)
	return user
}

type sentMail struct {
	To, Subject, Body string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (n *recordingNotifier) Sent() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}

type memStorage struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	putErr error
}

func newMemStorage() *memStorage {
	return &memStorage{blobs: map[string][]byte{}}
}

func (s *memStorage) Put(_ context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.blobs[path] = data
	return nil
}

func (s *memStorage) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, path)
	return nil
}

func (s *memStorage) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[path]
	return ok
}

func (s *memStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

var errBoom = errors.New("boom")

type testEnv struct {
	cfg      *testConfig
	repo     auth.RepositoryManager
	tokens   *auth.TokenServiceImpl
	notifier *recordingNotifier
	storage  *memStorage
	sink     *recordingSink
	service  *auth.Service
}

func newTestEnv(t *testing.T, cfg *testConfig, tokenOpts ...auth.TokenServiceOption) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = newTestConfig()
	}

	env := &testEnv{
		cfg:      cfg,
		repo:     newTestRepo(t),
		notifier: &recordingNotifier{},
		storage:  newMemStorage(),
		sink:     &recordingSink{},
	}

	tokenOpts = append([]auth.TokenServiceOption{auth.WithTokenLogger(auth.NopLogger())}, tokenOpts...)
	env.tokens = auth.NewTokenServiceFromConfig(cfg, tokenOpts...)
	env.service = auth.NewService(cfg, env.repo, env.tokens,
		auth.WithNotifier(env.notifier),
		auth.WithAvatarStorage(env.storage),
		auth.WithServiceLogger(auth.NopLogger()),
		auth.WithPasswordHasher(fastPasswords),
		auth.WithServiceActivitySink(env.sink),
	)
	return env
}
