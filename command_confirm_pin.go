package auth

import (
	"context"
	"strconv"
	"strings"

	"github.com/uptrace/bun"
)

type ConfirmPinMessage struct {
	Pin        string
	OnResponse func(*User)
}

func (e ConfirmPinMessage) Type() string { return "user.confirm_pin" }

// ConfirmPinHandler clears a pending pin and stamps confirmed_at. A pin can
// be redeemed once.
type ConfirmPinHandler struct {
	handlerBase
}

func NewConfirmPinHandler(repo RepositoryManager, opts ...HandlerOption) *ConfirmPinHandler {
	return &ConfirmPinHandler{handlerBase: newHandlerBase(repo, opts...)}
}

func (h *ConfirmPinHandler) Execute(ctx context.Context, event ConfirmPinMessage) error {
	if err := h.guard(ctx, "pin confirmation"); err != nil {
		return err
	}
	return h.execute(ctx, event)
}

func (h *ConfirmPinHandler) execute(ctx context.Context, event ConfirmPinMessage) error {
	pin, ok := parsePin(event.Pin)
	if !ok {
		return notFound(map[string]any{"pin": "malformed"})
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var user *User
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pending, err := h.repo.Users().GetByPinTx(ctx, tx, pin)
		if err != nil {
			return err
		}

		now := h.now()
		updated, err := h.repo.Users().UpdateTx(ctx, tx, pending.ID, UserFields{
			ConfirmedAt: &now,
			ClearPin:    true,
			ExpectPin:   &pin,
		})
		if err != nil {
			return err
		}
		user = updated
		return nil
	})

	if err := h.finish(ctx, err, "pin confirmation"); err != nil {
		return err
	}

	h.logger.Info("user confirmed", "user_id", user.ID.String())
	h.record(ctx, ActivityEvent{
		EventType: ActivityEventEmailConfirmed,
		UserID:    user.ID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}
	return nil
}

func parsePin(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) != 6 {
		return 0, false
	}
	pin, err := strconv.Atoi(raw)
	if err != nil || pin < pinMin || pin > pinMax {
		return 0, false
	}
	return pin, true
}
