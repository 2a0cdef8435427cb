package auth

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UpdateProfileMessage struct {
	ActorID     uuid.UUID     `json:"-"`
	UserID      uuid.UUID     `json:"user_id"`
	DisplayName string        `json:"user_name"`
	Avatar      *UploadedFile `json:"-"`
	OnResponse  func(*User)
}

func (e UpdateProfileMessage) Type() string { return "user.update_profile" }

func (e UpdateProfileMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.DisplayName, validation.Required, validation.Length(3, 20)),
	)
}

// UpdateProfileHandler updates the display name and avatar. The avatar blob
// is written before the record; a failed record update removes the blob.
type UpdateProfileHandler struct {
	handlerBase
	storage AvatarStorage
}

func NewUpdateProfileHandler(repo RepositoryManager, storage AvatarStorage, opts ...HandlerOption) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		handlerBase: newHandlerBase(repo, opts...),
		storage:     storage,
	}
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	if err := h.guard(ctx, "profile update"); err != nil {
		return err
	}
	return h.execute(ctx, event)
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	if event.ActorID == uuid.Nil || event.ActorID != event.UserID {
		return ErrForbidden.Clone().WithMetadata(map[string]any{
			"reason": "profile belongs to another user",
		})
	}

	event.DisplayName = strings.TrimSpace(event.DisplayName)
	fields := map[string]string{}
	if err := event.Validate(); err != nil {
		for k, v := range FormatValidationErrorToMap(err) {
			fields[k] = v
		}
	}

	var avatar *AvatarImage
	if event.Avatar != nil {
		img, msg := InspectAvatar(event.Avatar)
		if msg != "" {
			fields["avatar"] = msg
		}
		avatar = img
	}

	if len(fields) > 0 {
		return NewValidationError(fields)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if _, err := h.repo.Users().GetByID(ctx, event.UserID); err != nil {
		return h.finish(ctx, err, "profile lookup")
	}

	update := UserFields{DisplayName: &event.DisplayName}
	if avatar != nil {
		if h.storage == nil {
			return ErrStorageFailure.Clone().WithMetadata(map[string]any{
				"reason": "avatar storage is not configured",
			})
		}
		if err := h.storage.Put(ctx, avatar.Path, avatar.Data); err != nil {
			h.logger.Error("avatar store failed", "error", err)
			return ErrStorageFailure.Clone().WithMetadata(map[string]any{
				"path": avatar.Path,
			})
		}
		update.AvatarPath = &avatar.Path
		update.AvatarName = &avatar.OriginalName
		update.AvatarMime = &avatar.MimeType
	}

	var previous string
	var user *User
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := h.repo.Users().GetByIDTx(ctx, tx, event.UserID)
		if err != nil {
			return err
		}
		previous = current.AvatarPath

		updated, err := h.repo.Users().UpdateTx(ctx, tx, event.UserID, update)
		if err != nil {
			return err
		}
		user = updated
		return nil
	})

	if err != nil {
		if avatar != nil {
			h.removeBlob(avatar.Path)
		}
		return h.finish(ctx, err, "profile update")
	}

	if avatar != nil && previous != "" && previous != avatar.Path {
		h.removeBlob(previous)
	}

	h.logger.Info("profile updated", "user_id", user.ID.String(), "avatar", avatar != nil)
	h.record(ctx, ActivityEvent{
		EventType: ActivityEventProfileUpdated,
		ActorID:   event.ActorID.String(),
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"avatar": avatar != nil},
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}
	return nil
}

// removeBlob deletes with a fresh context so an expired request deadline
// does not leave the blob behind.
func (h *UpdateProfileHandler) removeBlob(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.storage.Delete(ctx, path); err != nil {
		h.logger.Warn("avatar cleanup failed", "path", path, "error", err)
	}
}
