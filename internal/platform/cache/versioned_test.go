package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Qty string `json:"qty"`
}

func newTestCache(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "stock", time.Minute), mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return snapshot{Qty: "10"}, nil
	}

	key, err := c.BuildKey(ctx, "position", "1")
	require.NoError(t, err)
	require.Equal(t, "stock:position:1:1", key)

	var out snapshot
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, "10", out.Qty)
	require.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx))
	key2, err := c.BuildKey(ctx, "position", "1")
	require.NoError(t, err)
	require.NotEqual(t, key, key2)

	require.NoError(t, c.FetchJSON(ctx, key2, &out, loader))
	require.Equal(t, 2, calls)
}

func TestFetchJSONLoaderErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	boom := errors.New("boom")
	err := c.FetchJSON(ctx, "stock:x:1", &snapshot{}, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("stock:x:1"))
}

func TestNilClientFallsThrough(t *testing.T) {
	ctx := context.Background()
	c := NewVersioned(nil, "stock", time.Minute)

	key, err := c.BuildKey(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "stock:a", key)

	var out snapshot
	require.NoError(t, c.FetchJSON(ctx, key, &out, func(context.Context) (any, error) {
		return snapshot{Qty: "3"}, nil
	}))
	require.Equal(t, "3", out.Qty)
	require.NoError(t, c.Bump(ctx))
}
