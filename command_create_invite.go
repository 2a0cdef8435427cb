package auth

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CreateInviteMessage struct {
	IssuerID   uuid.UUID `json:"-"`
	Email      string    `json:"email"`
	OnResponse func(*InviteResult)
}

func (e CreateInviteMessage) Type() string { return "invitation.create" }

func (e CreateInviteMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, emailRules...),
	)
}

// InviteResult describes an issued invitation. NotifyErr is set when the
// email could not be handed to the notifier; the invitation stays valid.
type InviteResult struct {
	Invitation *Invitation
	Link       string
	NotifyErr  error
}

// Sent reports whether the notification was accepted.
func (r *InviteResult) Sent() bool {
	return r != nil && r.NotifyErr == nil
}

// InviteRenderer produces the subject and body of an invitation email.
type InviteRenderer interface {
	RenderInvite(ctx context.Context, email, link string) (subject, body string, err error)
}

type plainInviteRenderer struct{}

func (plainInviteRenderer) RenderInvite(_ context.Context, email, link string) (string, string, error) {
	body := fmt.Sprintf("Hello %s,\n\nYou have been invited to create an account.\nSign up here: %s\n", email, link)
	return "You have been invited", body, nil
}

// CreateInviteHandler issues invitations and notifies the invited address
// after the invitation is committed.
type CreateInviteHandler struct {
	handlerBase
	notifier Notifier
	links    Links
	renderer InviteRenderer
}

func NewCreateInviteHandler(repo RepositoryManager, notifier Notifier, links Links, opts ...HandlerOption) *CreateInviteHandler {
	return &CreateInviteHandler{
		handlerBase: newHandlerBase(repo, opts...),
		notifier:    notifier,
		links:       links,
		renderer:    plainInviteRenderer{},
	}
}

// WithRenderer replaces the plain text invitation body.
func (h *CreateInviteHandler) WithRenderer(r InviteRenderer) *CreateInviteHandler {
	if r != nil {
		h.renderer = r
	}
	return h
}

func (h *CreateInviteHandler) Execute(ctx context.Context, event CreateInviteMessage) error {
	if err := h.guard(ctx, "invitation create"); err != nil {
		return err
	}
	return h.execute(ctx, event)
}

func (h *CreateInviteHandler) execute(ctx context.Context, event CreateInviteMessage) error {
	event.Email = strings.TrimSpace(event.Email)
	if err := event.Validate(); err != nil {
		return ValidationToError(err)
	}

	txCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var invitation *Invitation
	err := h.repo.RunInTx(txCtx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().GetByIDTx(ctx, tx, event.IssuerID); err != nil {
			if IsNotFound(err) {
				return ErrForbidden.Clone().WithMetadata(map[string]any{
					"reason": "issuer does not exist",
				})
			}
			return err
		}

		if _, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email); err == nil {
			return duplicateEmail()
		} else if !IsNotFound(err) {
			return err
		}

		inv, err := h.repo.Invitations().IssueTx(ctx, tx, event.IssuerID, event.Email)
		if err != nil {
			return err
		}
		invitation = inv
		return nil
	})

	if err := h.finish(txCtx, err, "invitation create"); err != nil {
		return err
	}

	result := &InviteResult{
		Invitation: invitation,
		Link:       h.links.SignupURL(invitation.Code),
	}
	result.NotifyErr = h.notify(ctx, event.Email, result.Link)

	h.logger.Info("invitation issued",
		"invitation_id", invitation.ID.String(),
		"issuer_id", event.IssuerID.String(),
		"notified", result.Sent(),
	)

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventInviteCreated,
		ActorID:   event.IssuerID.String(),
		Metadata: map[string]any{
			"invitation_id": invitation.ID.String(),
			"notified":      result.Sent(),
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(result)
	}
	return nil
}

func (h *CreateInviteHandler) notify(ctx context.Context, email, link string) error {
	if h.notifier == nil {
		return ErrNotifierUnavailable
	}

	subject, body, err := h.renderer.RenderInvite(ctx, email, link)
	if err != nil {
		h.logger.Error("invitation render failed", "error", err)
		return err
	}

	if err := h.notifier.Send(ctx, email, subject, body); err != nil {
		h.logger.Warn("invitation notification failed", "error", err)
		return err
	}
	return nil
}
