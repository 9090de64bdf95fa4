package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Results []string `json:"results"`
	Audit   string   `json:"audit"`
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func stores(t *testing.T, capacity int) map[string]Store[entry] {
	return map[string]Store[entry]{
		"fifo":  NewFIFO[entry](capacity),
		"redis": NewRedis[entry](setupRedis(t), "test", capacity),
	}
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			want := entry{Results: []string{"a", "b"}, Audit: "analysis"}
			require.NoError(t, s.Put(ctx, "k1", want))

			got, ok, err := s.Get(ctx, "k1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)

			_, ok, err = s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_EvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t, 3) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 4; i++ {
				require.NoError(t, s.Put(ctx, fmt.Sprintf("k%d", i), entry{Audit: fmt.Sprint(i)}))
			}

			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			_, ok, _ := s.Get(ctx, "k0")
			assert.False(t, ok, "oldest entry evicted")
			for _, k := range []string{"k1", "k2", "k3"} {
				_, ok, _ := s.Get(ctx, k)
				assert.True(t, ok, k)
			}
		})
	}
}

func TestStore_ReplaceKeepsPosition(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t, 2) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "a", entry{Audit: "1"}))
			require.NoError(t, s.Put(ctx, "b", entry{Audit: "2"}))
			require.NoError(t, s.Put(ctx, "a", entry{Audit: "updated"}))

			got, ok, _ := s.Get(ctx, "a")
			require.True(t, ok)
			assert.Equal(t, "updated", got.Audit)

			// "a" is still the oldest insertion, so it goes first.
			require.NoError(t, s.Put(ctx, "c", entry{Audit: "3"}))
			_, ok, _ = s.Get(ctx, "a")
			assert.False(t, ok)
			_, ok, _ = s.Get(ctx, "b")
			assert.True(t, ok)
		})
	}
}

func TestNewFIFO_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewFIFO[int](0).Capacity())
	assert.Equal(t, 5, NewFIFO[int](5).Capacity())
}

func TestRedis_SharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t)
	a := NewRedis[entry](client, "shared", 10)
	b := NewRedis[entry](client, "shared", 10)

	require.NoError(t, a.Put(ctx, "k", entry{Audit: "from a"}))
	got, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from a", got.Audit)
}

func TestRedis_ConcurrentPutOfSameKey(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t)
	a := NewRedis[entry](client, "race", 3)
	b := NewRedis[entry](client, "race", 3)
	require.NoError(t, a.Put(ctx, "old-1", entry{}))
	require.NoError(t, a.Put(ctx, "old-2", entry{}))

	var wg sync.WaitGroup
	for i, s := range []*Redis[entry]{a, b, a, b} {
		wg.Add(1)
		go func(i int, s *Redis[entry]) {
			defer wg.Done()
			assert.NoError(t, s.Put(ctx, "fresh", entry{Audit: fmt.Sprint(i)}))
		}(i, s)
	}
	wg.Wait()

	n, err := a.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	order, err := client.LRange(ctx, "race:order", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"old-1", "old-2", "fresh"}, order)

	require.NoError(t, b.Put(ctx, "newer", entry{}))
	_, ok, err := a.Get(ctx, "old-1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = a.Get(ctx, "old-2")
	require.NoError(t, err)
	assert.True(t, ok)
}
