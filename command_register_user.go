package auth

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	UseHashid            bool   `json:"-"`
	OnResponse           func(*User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate checks the registration form fields.
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required, validation.Length(2, 100)),
		validation.Field(&e.Email, emailRules...),
		validation.Field(&e.Password, append(passwordRules,
			validation.By(ValidateStringEquals(e.PasswordConfirmation, "the password confirmation does not match")),
		)...),
	)
}

// RegisterUserHandler creates confirmed accounts through open registration.
type RegisterUserHandler struct {
	handlerBase
	open bool
}

func NewRegisterUserHandler(repo RepositoryManager, open bool, opts ...HandlerOption) *RegisterUserHandler {
	return &RegisterUserHandler{
		handlerBase: newHandlerBase(repo, opts...),
		open:        open,
	}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	if err := h.guard(ctx, "user registration"); err != nil {
		return err
	}
	return h.execute(ctx, event)
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if !h.open {
		return ErrRegistrationClosed
	}

	event.Email = strings.TrimSpace(event.Email)
	event.Name = strings.TrimSpace(event.Name)

	if err := event.Validate(); err != nil {
		return ValidationToError(err)
	}

	hash, err := h.passwords.HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var user *User
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email); err == nil {
			return duplicateEmail()
		} else if !IsNotFound(err) {
			return err
		}

		now := h.now()
		record := &User{
			Email:        event.Email,
			PasswordHash: hash,
			DisplayName:  event.Name,
			ConfirmedAt:  &now,
		}
		if event.UseHashid || h.hashids {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				record.ID = id
			}
		}

		created, err := h.repo.Users().CreateTx(ctx, tx, record)
		if err != nil {
			return err
		}
		user = created
		return nil
	})

	if err := h.finish(ctx, err, "user registration"); err != nil {
		return err
	}

	h.logger.Info("user registered", "user_id", user.ID.String())
	h.record(ctx, ActivityEvent{
		EventType: ActivityEventRegistered,
		UserID:    user.ID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func duplicateEmail() error {
	return ErrDuplicateEmail.Clone().WithMetadata(map[string]any{
		"fields": map[string]string{"email": "The email has already been taken."},
	})
}
