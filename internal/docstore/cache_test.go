package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts reads that reach the wrapped store.
type countingStore struct {
	Store
	gets  int
	lists int
}

func (c *countingStore) Get(ctx context.Context, collection, key string) (Document, error) {
	c.gets++
	return c.Store.Get(ctx, collection, key)
}

func (c *countingStore) List(ctx context.Context, collection string) ([]Document, error) {
	c.lists++
	return c.Store.List(ctx, collection)
}

func newCached(t *testing.T) (*CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingStore{Store: NewMemoryStore()}
	return NewCachedStore(inner, client, time.Minute, nil), inner, mr
}

func TestCachedStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	cs, inner, mr := newCached(t)

	require.NoError(t, cs.Set(ctx, schedulesCol, "2026-03-09", Data{"date": "2026-03-09"}))

	for i := 0; i < 3; i++ {
		doc, err := cs.Get(ctx, schedulesCol, "2026-03-09")
		require.NoError(t, err)
		assert.Equal(t, "2026-03-09", doc.Data["date"])
	}
	assert.Equal(t, 1, inner.gets)
	assert.True(t, mr.Exists("televet:doc:"+schedulesCol+":2026-03-09"))

	for i := 0; i < 2; i++ {
		docs, err := cs.List(ctx, schedulesCol)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "2026-03-09", docs[0].Key)
	}
	assert.Equal(t, 1, inner.lists)
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	cs, inner, mr := newCached(t)

	require.NoError(t, cs.Set(ctx, schedulesCol, "2026-03-09", Data{"date": "2026-03-09"}))
	_, err := cs.Get(ctx, schedulesCol, "2026-03-09")
	require.NoError(t, err)
	_, err = cs.List(ctx, schedulesCol)
	require.NoError(t, err)

	require.NoError(t, cs.Mutate(ctx, schedulesCol, "2026-03-09", func(cur Data, _ bool) (Data, bool, error) {
		cur["blocked"] = true
		return cur, false, nil
	}))
	assert.False(t, mr.Exists("televet:doc:"+schedulesCol+":2026-03-09"))
	assert.False(t, mr.Exists("televet:list:"+schedulesCol))

	doc, err := cs.Get(ctx, schedulesCol, "2026-03-09")
	require.NoError(t, err)
	assert.Equal(t, true, doc.Data["blocked"])
	assert.Equal(t, 2, inner.gets)

	require.NoError(t, cs.Delete(ctx, schedulesCol, "2026-03-09"))
	_, err = cs.Get(ctx, schedulesCol, "2026-03-09")
	assert.ErrorIs(t, err, ErrNotFound)

	key, err := cs.Add(ctx, schedulesCol, Data{"date": "2026-03-12"})
	require.NoError(t, err)
	docs, err := cs.List(ctx, schedulesCol)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, key, docs[0].Key)
}

func TestCachedStore_ExpiresAndDisabled(t *testing.T) {
	ctx := context.Background()
	cs, inner, mr := newCached(t)

	require.NoError(t, cs.Set(ctx, schedulesCol, "2026-03-09", Data{}))
	_, _ = cs.Get(ctx, schedulesCol, "2026-03-09")
	mr.FastForward(2 * time.Minute)
	_, _ = cs.Get(ctx, schedulesCol, "2026-03-09")
	assert.Equal(t, 2, inner.gets)

	disabled := NewCachedStore(inner, nil, time.Minute, nil)
	_, _ = disabled.Get(ctx, schedulesCol, "2026-03-09")
	_, _ = disabled.Get(ctx, schedulesCol, "2026-03-09")
	assert.Equal(t, 4, inner.gets)
	assert.NoError(t, disabled.Ping(ctx))
}

func TestCachedStore_PingReportsRedis(t *testing.T) {
	ctx := context.Background()
	cs, _, mr := newCached(t)
	require.NoError(t, cs.Ping(ctx))

	mr.Close()
	assert.Error(t, cs.Ping(ctx))
}

func TestCachedStore_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	cs, inner, mr := newCached(t)
	mr.Close()

	require.NoError(t, cs.Set(ctx, schedulesCol, "2026-03-09", Data{"date": "2026-03-09"}))

	doc, err := cs.Get(ctx, schedulesCol, "2026-03-09")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09", doc.Data["date"])

	docs, err := cs.List(ctx, schedulesCol)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 1, inner.gets)
	assert.Equal(t, 1, inner.lists)
}
