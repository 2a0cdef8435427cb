package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserFields lists the columns an update may touch. Nil pointers are left
// unchanged; ClearPin sets confirmation_pin to NULL.
type UserFields struct {
	DisplayName *string
	AvatarPath  *string
	AvatarName  *string
	AvatarMime  *string
	ConfirmedAt *time.Time
	ClearPin    bool
	// ExpectPin makes the update conditional on the stored pin.
	ExpectPin   *int
}

func (f UserFields) empty() bool {
	return f.DisplayName == nil && f.AvatarPath == nil && f.AvatarName == nil &&
		f.AvatarMime == nil && f.ConfirmedAt == nil && !f.ClearPin
}

// Users is the credential store. Email uniqueness is enforced by the
// users_email_uidx index, so two concurrent creates for the same email
// cannot both commit.
type Users interface {
	Create(ctx context.Context, user *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByPin(ctx context.Context, pin int) (*User, error)
	GetByPinTx(ctx context.Context, tx bun.IDB, pin int) (*User, error)
	Update(ctx context.Context, id uuid.UUID, fields UserFields) (*User, error)
	UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, fields UserFields) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateTx(ctx, a.db, user)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	record, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		if uniqueViolationOn(err, "email") || (primaryKeyViolation(err) && idDerivedFromEmail(user)) {
			return nil, duplicateEmail()
		}
		return nil, err
	}
	return record, nil
}

// idDerivedFromEmail reports whether the id was built from the email, in
// which case a primary key conflict means the email is taken.
func idDerivedFromEmail(user *User) bool {
	id, err := hashid.NewUUID(user.Email)
	return err == nil && id == user.ID
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.findOne(ctx, tx, "id", id, map[string]any{"id": id.String()})
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.findOne(ctx, tx, "email", email, map[string]any{"email": email})
}

func (a *users) GetByPin(ctx context.Context, pin int) (*User, error) {
	return a.GetByPinTx(ctx, a.db, pin)
}

func (a *users) GetByPinTx(ctx context.Context, tx bun.IDB, pin int) (*User, error) {
	return a.findOne(ctx, tx, "confirmation_pin", pin, map[string]any{"pin": "redacted"})
}

func (a *users) findOne(ctx context.Context, tx bun.IDB, column string, value any, meta map[string]any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound(meta)
		}
		return nil, err
	}
	return record, nil
}

func (a *users) Update(ctx context.Context, id uuid.UUID, fields UserFields) (*User, error) {
	return a.UpdateTx(ctx, a.db, id, fields)
}

// UpdateTx applies the set fields and returns the updated record.
func (a *users) UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, fields UserFields) (*User, error) {
	if fields.empty() {
		return a.GetByIDTx(ctx, tx, id)
	}

	q := tx.NewUpdate().
		Table("users").
		Set("updated_at = ?", time.Now().UTC())

	if fields.DisplayName != nil {
		q = q.Set("display_name = ?", strings.TrimSpace(*fields.DisplayName))
	}
	if fields.AvatarPath != nil {
		q = q.Set("avatar_path = ?", *fields.AvatarPath)
	}
	if fields.AvatarName != nil {
		q = q.Set("avatar_name = ?", *fields.AvatarName)
	}
	if fields.AvatarMime != nil {
		q = q.Set("avatar_mime = ?", *fields.AvatarMime)
	}
	if fields.ConfirmedAt != nil {
		q = q.Set("confirmed_at = ?", fields.ConfirmedAt.UTC())
	}
	if fields.ClearPin {
		q = q.Set("confirmation_pin = NULL")
	}

	q = q.Where("id = ?", id)
	if fields.ExpectPin != nil {
		q = q.Where("confirmation_pin = ?", *fields.ExpectPin)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, notFound(map[string]any{"id": id.String()})
	}

	return a.GetByIDTx(ctx, tx, id)
}

func prepareUserDefaults(user *User) {
	if user == nil {
		return
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.TrimSpace(user.Email)
	now := time.Now().UTC()
	if user.CreatedAt == nil {
		user.CreatedAt = &now
	}
	if user.UpdatedAt == nil {
		user.UpdatedAt = &now
	}
}
