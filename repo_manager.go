package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const (
	defaultTxAttempts = 3
	defaultTxBackoff  = 25 * time.Millisecond
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Invitations() Invitations
}

type mngr struct {
	db          *bun.DB
	users       Users
	invitations Invitations
	attempts    int
	backoff     time.Duration
	logger      Logger
}

type RepositoryManagerOption func(*mngr)

// WithTxRetry sets how many times a transaction is attempted when it fails
// with a transient store error.
func WithTxRetry(attempts int, backoff time.Duration) RepositoryManagerOption {
	return func(m *mngr) {
		if attempts > 0 {
			m.attempts = attempts
		}
		if backoff >= 0 {
			m.backoff = backoff
		}
	}
}

func WithRepositoryLogger(logger Logger) RepositoryManagerOption {
	return func(m *mngr) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithInvitationsOptions(opts ...InvitationsOption) RepositoryManagerOption {
	return func(m *mngr) {
		m.invitations = NewInvitationsRepository(m.db, opts...)
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryManagerOption) RepositoryManager {
	m := &mngr{
		db:          db,
		users:       NewUsersRepository(db),
		invitations: NewInvitationsRepository(db),
		attempts:    defaultTxAttempts,
		backoff:     defaultTxBackoff,
		logger:      defaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.invitations == nil {
		return errors.New("repository invitations should be initialized")
	}

	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx runs f in a transaction, retrying the whole function when the
// store reports contention. Once attempts are exhausted the error surfaces
// as ErrTransientStore.
func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return transientFromContext(ctx.Err())
		default:
		}

		err = m.db.RunInTx(ctx, opts, f)
		if err == nil {
			return nil
		}

		if !isTransient(err) || ctx.Err() != nil {
			break
		}

		m.logger.Warn("transaction hit transient store error, retrying", "attempt", attempt, "error", err)
		if attempt < m.attempts && m.backoff > 0 {
			select {
			case <-ctx.Done():
				return transientFromContext(ctx.Err())
			case <-time.After(m.backoff * time.Duration(attempt)):
			}
		}
	}

	if isTransient(err) {
		return ErrTransientStore.Clone().WithMetadata(map[string]any{
			"attempts": m.attempts,
			"cause":    err.Error(),
		})
	}
	return err
}

func transientFromContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTransientStore.Clone().WithMetadata(map[string]any{
			"cause": err.Error(),
		})
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, "operation cancelled")
}

func (m *mngr) Users() Users {
	return m.users
}

func (m *mngr) Invitations() Invitations {
	return m.invitations
}
