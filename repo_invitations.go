package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// DefaultInvitationTTL is how long an issued code stays active.
	DefaultInvitationTTL = 7 * 24 * time.Hour
	invitationCodeBytes  = 32
)

// Invitations is the invitation ledger. Consumption is a compare and swap
// on consumed_at so a code moves from active to consumed at most once.
type Invitations interface {
	Issue(ctx context.Context, issuerID uuid.UUID, email string) (*Invitation, error)
	IssueTx(ctx context.Context, tx bun.IDB, issuerID uuid.UUID, email string) (*Invitation, error)
	GetByCode(ctx context.Context, code string) (*Invitation, error)
	GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*Invitation, error)
	IsAllowed(ctx context.Context, code, email string) (bool, error)
	IsAllowedTx(ctx context.Context, tx bun.IDB, code, email string) (bool, error)
	Consume(ctx context.Context, code, email string) error
	ConsumeTx(ctx context.Context, tx bun.IDB, code, email string) error
}

type invitations struct {
	repository.Repository[*Invitation]
	db  *bun.DB
	ttl time.Duration
	now func() time.Time
}

var _ Invitations = (*invitations)(nil)

type InvitationsOption func(*invitations)

// WithInvitationTTL overrides DefaultInvitationTTL.
func WithInvitationTTL(ttl time.Duration) InvitationsOption {
	return func(i *invitations) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithInvitationClock sets the clock used for expiry checks.
func WithInvitationClock(now func() time.Time) InvitationsOption {
	return func(i *invitations) {
		if now != nil {
			i.now = now
		}
	}
}

func NewInvitationsRepository(db *bun.DB, opts ...InvitationsOption) Invitations {
	repo := repository.NewRepository[*Invitation](db, repository.ModelHandlers[*Invitation]{
		NewRecord: func() *Invitation { return &Invitation{} },
		GetID: func(record *Invitation) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Invitation, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "code"
		},
	})

	inv := &invitations{
		Repository: repo,
		db:         db,
		ttl:        DefaultInvitationTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(inv)
		}
	}
	return inv
}

func (r *invitations) Issue(ctx context.Context, issuerID uuid.UUID, email string) (*Invitation, error) {
	return r.IssueTx(ctx, r.db, issuerID, email)
}

func (r *invitations) IssueTx(ctx context.Context, tx bun.IDB, issuerID uuid.UUID, email string) (*Invitation, error) {
	code, err := NewInvitationCode()
	if err != nil {
		return nil, err
	}

	now := r.now()
	record := &Invitation{
		ID:        uuid.New(),
		Code:      code,
		IssuerID:  issuerID,
		Email:     strings.TrimSpace(email),
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: &now,
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *invitations) GetByCode(ctx context.Context, code string) (*Invitation, error) {
	return r.GetByCodeTx(ctx, r.db, code)
}

func (r *invitations) GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*Invitation, error) {
	record := &Invitation{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound(map[string]any{"invitation": "unknown code"})
		}
		return nil, err
	}
	return record, nil
}

func (r *invitations) IsAllowed(ctx context.Context, code, email string) (bool, error) {
	return r.IsAllowedTx(ctx, r.db, code, email)
}

// IsAllowedTx reports whether code is active and was issued to email. The
// email comparison is exact.
func (r *invitations) IsAllowedTx(ctx context.Context, tx bun.IDB, code, email string) (bool, error) {
	if code == "" || email == "" {
		return false, nil
	}

	record, err := r.GetByCodeTx(ctx, tx, code)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if record.Email != email {
		return false, nil
	}

	return record.StateAt(r.now()) == InvitationActive, nil
}

func (r *invitations) Consume(ctx context.Context, code, email string) error {
	return r.ConsumeTx(ctx, r.db, code, email)
}

// ConsumeTx marks the code consumed. It fails with ErrInvalidOrExpiredInvite
// when no active row for code and email exists, including when a concurrent
// caller consumed it first.
func (r *invitations) ConsumeTx(ctx context.Context, tx bun.IDB, code, email string) error {
	allowed, err := r.IsAllowedTx(ctx, tx, code, email)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrInvalidOrExpiredInvite.Clone().WithMetadata(map[string]any{
			"reason": "invitation is not active",
		})
	}

	res, err := tx.NewUpdate().
		Table("invitations").
		Set("consumed_at = ?", r.now()).
		Where("code = ?", code).
		Where("email = ?", email).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not read consumed invitation count")
	}
	if n != 1 {
		return ErrInvalidOrExpiredInvite.Clone().WithMetadata(map[string]any{
			"reason": "invitation was consumed concurrently",
		})
	}
	return nil
}

// NewInvitationCode returns an unpredictable url safe code.
func NewInvitationCode() (string, error) {
	buf := make([]byte, invitationCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate invitation code")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
