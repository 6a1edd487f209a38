// Package activitymap flattens shield activity events into records suited
// for audit stores and log pipelines.
package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	shield "github.com/goliatone/go-shield"
)

const (
	// MetadataKeyDriver stores the auth driver that handled the event.
	MetadataKeyDriver = "driver"
	// MetadataKeyMutation stores the mutation kind of authz events.
	MetadataKeyMutation = "mutation"
)

const (
	defaultChannel = "shield"
	defaultActorID = "system"
)

// Record is the flattened form of a shield.ActivityEvent.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*options)

type options struct {
	channel       string
	actorFallback string
	now           func() time.Time
}

// WithChannel sets the channel stamped on every record.
func WithChannel(channel string) Option {
	return func(o *options) { o.channel = strings.TrimSpace(channel) }
}

// WithActorFallback sets the actor of events that carry no user, such as
// admin mutations run from the CLI.
func WithActorFallback(actorID string) Option {
	return func(o *options) { o.actorFallback = strings.TrimSpace(actorID) }
}

// WithClock sets the time used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Normalize converts event into a Record.
func Normalize(event shield.ActivityEvent, opts ...Option) Record {
	o := options{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now()
	}

	actor := strings.TrimSpace(event.UserID)
	if actor == "" {
		actor = o.actorFallback
	}

	objectType, objectID := object(event)

	return Record{
		ActorID:    actor,
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

// Sink adapts fn into a shield.ActivitySink that receives normalized
// records.
func Sink(fn func(ctx context.Context, rec Record) error, opts ...Option) shield.ActivitySink {
	return shield.ActivitySinkFunc(func(ctx context.Context, event shield.ActivityEvent) error {
		return fn(ctx, Normalize(event, opts...))
	})
}

// object derives what the event acted on. Authz mutations act on the role
// or privilege named by their kind, everything else on the user.
func object(event shield.ActivityEvent) (string, string) {
	if event.EventType != shield.ActivityEventAuthzMutation {
		return "user", strings.TrimSpace(event.UserID)
	}

	kind, _ := event.Metadata["kind"].(string)
	objectType, _, _ := strings.Cut(kind, ".")
	switch objectType {
	case "privilege", "privilege_role":
		id, _ := event.Metadata["privilege_id"].(string)
		return "privilege", emptyIfNil(id)
	case "user":
		return "user", ""
	case "":
		return "authz", ""
	default:
		id, _ := event.Metadata["role_id"].(string)
		return "role", emptyIfNil(id)
	}
}

func metadata(event shield.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+2)
	for k, v := range event.Metadata {
		out[k] = v
	}
	if event.Driver != "" {
		out[MetadataKeyDriver] = string(event.Driver)
	}
	if kind, ok := event.Metadata["kind"].(string); ok && kind != "" {
		out[MetadataKeyMutation] = kind
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func emptyIfNil(id string) string {
	if id == uuid.Nil.String() {
		return ""
	}
	return id
}
