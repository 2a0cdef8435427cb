package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates the audited auth actions.
type ActivityEventType string

const (
	ActivityEventLoginSuccess   ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure   ActivityEventType = "auth.login.failure"
	ActivityEventLogout         ActivityEventType = "auth.logout"
	ActivityEventRegistered     ActivityEventType = "user.registered"
	ActivityEventInviteCreated  ActivityEventType = "invitation.created"
	ActivityEventInvitedSignup  ActivityEventType = "invitation.consumed"
	ActivityEventEmailConfirmed ActivityEventType = "user.email.confirmed"
	ActivityEventProfileUpdated ActivityEventType = "user.profile.updated"
)

// ActivityEvent is recorded after an operation has committed.
type ActivityEvent struct {
	EventType ActivityEventType
	// ActorID is the authenticated caller, empty for anonymous operations.
	ActorID    string
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity never fails the caller; sink errors are logged.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil && logger != nil {
		logger.Warn("activity sink failed", "event", string(event.EventType), "error", err)
	}
}
