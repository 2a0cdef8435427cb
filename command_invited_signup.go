package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	pinMin         = 100000
	pinMax         = 999999
	maxPinAttempts = 5
)

type InvitedSignupMessage struct {
	Code       string `json:"-"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	OnResponse func(*SignupResult)
}

func (e InvitedSignupMessage) Type() string { return "invitation.signup" }

func (e InvitedSignupMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, emailRules...),
		validation.Field(&e.Password, passwordRules...),
	)
}

// SignupResult carries the pending user and the confirmation link.
type SignupResult struct {
	User        *User
	Pin         int
	ConfirmLink string
}

// InvitedSignupHandler turns an active invitation into an unconfirmed
// account. User creation and code consumption commit together.
type InvitedSignupHandler struct {
	handlerBase
	links Links
	pins  func() (int, error)
}

func NewInvitedSignupHandler(repo RepositoryManager, links Links, opts ...HandlerOption) *InvitedSignupHandler {
	return &InvitedSignupHandler{
		handlerBase: newHandlerBase(repo, opts...),
		links:       links,
		pins:        NewConfirmationPin,
	}
}

// WithPinSource replaces the random pin generator.
func (h *InvitedSignupHandler) WithPinSource(source func() (int, error)) *InvitedSignupHandler {
	if source != nil {
		h.pins = source
	}
	return h
}

func (h *InvitedSignupHandler) Execute(ctx context.Context, event InvitedSignupMessage) error {
	if err := h.guard(ctx, "invited signup"); err != nil {
		return err
	}
	return h.execute(ctx, event)
}

func (h *InvitedSignupHandler) execute(ctx context.Context, event InvitedSignupMessage) error {
	event.Email = strings.TrimSpace(event.Email)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	allowed, err := h.repo.Invitations().IsAllowed(ctx, event.Code, event.Email)
	if err != nil {
		return h.finish(ctx, err, "invitation lookup")
	}
	if !allowed {
		return ErrInvalidOrExpiredInvite
	}

	if err := event.Validate(); err != nil {
		return ValidationToError(err)
	}

	hash, err := h.passwords.HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	var result *SignupResult
	for attempt := 1; attempt <= maxPinAttempts; attempt++ {
		result, err = h.signup(ctx, event, hash)
		if err != errPinCollision {
			break
		}
		h.logger.Debug("confirmation pin collision, retrying", "attempt", attempt)
	}

	if err == errPinCollision {
		return ErrTransientStore.Clone().WithMetadata(map[string]any{
			"operation": "invited signup",
			"cause":     "could not allocate a unique confirmation pin",
		})
	}
	if err := h.finish(ctx, err, "invited signup"); err != nil {
		return err
	}

	h.logger.Info("invited user signed up", "user_id", result.User.ID.String())
	h.record(ctx, ActivityEvent{
		EventType: ActivityEventInvitedSignup,
		UserID:    result.User.ID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(result)
	}
	return nil
}

var errPinCollision = goerrors.New("confirmation pin collision", goerrors.CategoryConflict)

func (h *InvitedSignupHandler) signup(ctx context.Context, event InvitedSignupMessage, hash string) (*SignupResult, error) {
	var result *SignupResult
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		allowed, err := h.repo.Invitations().IsAllowedTx(ctx, tx, event.Code, event.Email)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrInvalidOrExpiredInvite
		}

		if _, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email); err == nil {
			return duplicateEmail()
		} else if !IsNotFound(err) {
			return err
		}

		pin, err := h.pins()
		if err != nil {
			return err
		}

		user, err := h.repo.Users().CreateTx(ctx, tx, &User{
			Email:           event.Email,
			PasswordHash:    hash,
			ConfirmationPin: &pin,
		})
		if err != nil {
			if uniqueViolationOn(err, "confirmation_pin") {
				return errPinCollision
			}
			return err
		}

		if err := h.repo.Invitations().ConsumeTx(ctx, tx, event.Code, event.Email); err != nil {
			return err
		}

		result = &SignupResult{
			User:        user,
			Pin:         pin,
			ConfirmLink: h.links.ConfirmPinURL(pin),
		}
		return nil
	})
	return result, err
}

// NewConfirmationPin returns a uniformly random six digit pin.
func NewConfirmationPin() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(pinMax-pinMin+1))
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate confirmation pin")
	}
	return int(n.Int64()) + pinMin, nil
}
