package activitymap_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shield "github.com/goliatone/go-shield"
	"github.com/goliatone/go-shield/activitymap"
)

func TestNormalizeLoginEvent(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	out := activitymap.Normalize(shield.ActivityEvent{
		EventType:  shield.ActivityEventLoginSuccess,
		UserID:     "user-100",
		Driver:     shield.DriverSigned,
		OccurredAt: ts,
	})

	assert.Equal(t, "user-100", out.ActorID)
	assert.Equal(t, string(shield.ActivityEventLoginSuccess), out.Verb)
	assert.Equal(t, "user", out.ObjectType)
	assert.Equal(t, "user-100", out.ObjectID)
	assert.Equal(t, "shield", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))
	assert.Equal(t, "signed", out.Metadata[activitymap.MetadataKeyDriver])
}

func TestNormalizeMutationEvent(t *testing.T) {
	t.Parallel()

	roleID := "7b0c4f0e-4c36-4b55-9b7a-3cf4d1c7e2aa"
	out := activitymap.Normalize(shield.ActivityEvent{
		EventType: shield.ActivityEventAuthzMutation,
		Metadata: map[string]any{
			"kind":         string(shield.MutationRoleUpdated),
			"role_id":      roleID,
			"privilege_id": "00000000-0000-0000-0000-000000000000",
		},
	}, activitymap.WithActorFallback("cli"), activitymap.WithChannel("admin"))

	assert.Equal(t, "cli", out.ActorID)
	assert.Equal(t, "role", out.ObjectType)
	assert.Equal(t, roleID, out.ObjectID)
	assert.Equal(t, "admin", out.Channel)
	assert.Equal(t, string(shield.MutationRoleUpdated), out.Metadata[activitymap.MetadataKeyMutation])
	assert.False(t, out.OccurredAt.IsZero())
}

func TestNormalizePrivilegeLinkEvent(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(shield.ActivityEvent{
		EventType: shield.ActivityEventAuthzMutation,
		Metadata: map[string]any{
			"kind":         string(shield.MutationPrivilegeAttached),
			"privilege_id": "p-1",
		},
	})

	assert.Equal(t, "system", out.ActorID)
	assert.Equal(t, "privilege", out.ObjectType)
	assert.Equal(t, "p-1", out.ObjectID)
}

func TestSink(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var got []activitymap.Record
	sink := activitymap.Sink(func(_ context.Context, rec activitymap.Record) error {
		got = append(got, rec)
		return nil
	}, activitymap.WithClock(func() time.Time { return fixed }))

	require.NoError(t, sink.Record(context.Background(), shield.ActivityEvent{
		EventType: shield.ActivityEventLogout,
		UserID:    "u-1",
	}))

	require.Len(t, got, 1)
	assert.Equal(t, "u-1", got[0].ObjectID)
	assert.True(t, got[0].OccurredAt.Equal(fixed))
	assert.Nil(t, got[0].Metadata)
}
