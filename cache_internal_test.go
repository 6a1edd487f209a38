package shield

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingLoader struct {
	started chan struct{}
	release chan struct{}
	auth    Authorization
	calls   int
}

func (l *blockingLoader) Load(ctx context.Context, _ uuid.UUID) (Authorization, error) {
	l.calls++
	if l.calls == 1 {
		close(l.started)
		<-l.release
	}
	return l.auth, nil
}

func (l *blockingLoader) UsersInRole(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (l *blockingLoader) UsersWithPrivilege(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func TestCacheDropsFillRacingInvalidation(t *testing.T) {
	ctx := context.Background()
	loader := &blockingLoader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		auth:    Authorization{Roles: []string{"admin"}},
	}
	store := NewMemoryStore()
	cache := NewAuthorizationCache(loader, WithCacheStore(store))
	id := uuid.New()

	done := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, id)
		done <- err
	}()

	<-loader.started
	require.NoError(t, cache.Invalidate(ctx, id))
	close(loader.release)
	require.NoError(t, <-done)

	_, ok, err := store.Get(ctx, cache.key(id))
	require.NoError(t, err)
	assert.False(t, ok, "stale fill must not be stored")

	_, err = cache.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)

	_, ok, err = store.Get(ctx, cache.key(id))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheHandleClearsOnBroadEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cache := NewAuthorizationCache(&blockingLoader{started: make(chan struct{}), release: make(chan struct{})}, WithCacheStore(store))

	require.NoError(t, store.Set(ctx, cache.key(uuid.New()), []byte(`{"roles":["user"]}`)))
	require.NoError(t, cache.Handle(ctx, MutationEvent{Kind: MutationRolesPurged, All: true}))

	ms := store.(*memoryStore)
	assert.Zero(t, ms.c.ItemCount())
}
