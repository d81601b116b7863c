package toolsurface

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/internal/entry"
)

func TestRedisInvalidator_ListenClearsCacheOnPublish(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	inv := NewRedisInvalidator(server.Addr(), "")
	t.Cleanup(func() { _ = inv.Close() })

	cache := NewCache(CacheConfig{MaxEntries: 10, TTL: time.Minute})
	cache.Set(Key("op", nil), "value")
	require.Equal(t, 1, cache.Size())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listening := make(chan struct{})
	go func() {
		close(listening)
		_ = inv.Listen(ctx, cache)
	}()
	<-listening
	time.Sleep(20 * time.Millisecond) // let the subscribe register before publishing

	require.NoError(t, inv.Publish(context.Background()))

	assert.Eventually(t, func() bool {
		return cache.Size() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSurface_InvalidatingWriteBroadcastsViaInvalidator(t *testing.T) {
	ctx := context.Background()
	s, st := newTestSurface(t)

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	const channel = "chronicle:test:invalidate"
	inv := NewRedisInvalidator(server.Addr(), channel)
	t.Cleanup(func() { _ = inv.Close() })
	s.Invalidator = inv

	observer := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = observer.Close() })
	sub := observer.Subscribe(ctx, channel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx) // block for the subscribe confirmation
	require.NoError(t, err)

	e := entry.NewSkeleton("s1", 1, entry.TypeUser, "hello", "2026-01-01T00:00:00Z", 1735689600)
	require.NoError(t, st.Upsert(ctx, []entry.ConversationEntry{e}))

	_, err = s.ForceDatabaseConnectionRefresh(ctx)
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "clear", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected an invalidation message on the channel")
	}
}
