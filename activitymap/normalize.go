// Package activitymap converts auth activity events into a flat record
// for audit logs and downstream consumers.
package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-invite"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	// defaultActorID is used for anonymous operations such as login and
	// invited signup.
	defaultActorID = "anonymous"
)

// Normalized is a transport-agnostic activity shape.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
}

// Normalize converts an auth.ActivityEvent into a Normalized record. The
// actor falls back to the subject user, then to "anonymous".
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	out := Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.ActorID),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    options.channel,
		Metadata:   cloneMap(event.Metadata),
		OccurredAt: occurredAt,
	}
	if out.ObjectID != "" {
		out.ObjectType = options.objectType
	}
	return out
}

func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// LogSink returns an ActivitySink that writes normalized events to logger.
func LogSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		n := Normalize(event, opts...)
		logger.Info("activity",
			"verb", n.Verb,
			"actor_id", n.ActorID,
			"object_type", n.ObjectType,
			"object_id", n.ObjectID,
			"channel", n.Channel,
			"metadata", n.Metadata,
			"occurred_at", n.OccurredAt,
		)
		return nil
	})
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
