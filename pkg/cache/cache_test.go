package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logoforge-dev/logoforge/agent"
)

func testCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, time.Hour), mr
}

func TestKeyIsStableAndBriefSensitive(t *testing.T) {
	a := agent.Brief{BrandName: "Acme", Industry: "tools"}
	b := agent.Brief{BrandName: "Acme", Industry: "tools"}
	c := agent.Brief{BrandName: "Acme", Industry: "toys"}

	assert.Equal(t, Key(a), Key(b))
	assert.NotEqual(t, Key(a), Key(c))
	assert.Len(t, Key(a), 64) // hex sha-256
}

func TestPutAndGet(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()
	brief := agent.Brief{BrandName: "Acme"}

	_, err := c.Get(ctx, brief)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Put(ctx, brief, "sess-1", map[string]string{"logo": "<svg/>"}))

	entry, err := c.Get(ctx, brief)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", entry.SessionID)
	assert.False(t, entry.CreatedAt.IsZero())

	var result map[string]string
	require.NoError(t, json.Unmarshal(entry.Result, &result))
	assert.Equal(t, "<svg/>", result["logo"])
}

func TestEntryExpires(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()
	brief := agent.Brief{BrandName: "Acme"}

	require.NoError(t, c.Put(ctx, brief, "sess-1", "result"))
	mr.FastForward(2 * time.Hour)

	_, err := c.Get(ctx, brief)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInvalidate(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()
	brief := agent.Brief{BrandName: "Acme"}

	require.NoError(t, c.Put(ctx, brief, "sess-1", "result"))
	require.NoError(t, c.Invalidate(ctx, brief))

	_, err := c.Get(ctx, brief)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestPing(t *testing.T) {
	c, mr := testCache(t)
	require.NoError(t, c.Ping(context.Background()))
	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
