package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gopherchat-bot/internal/imagegen"
)

// Runs against a real Redis when REDIS_TEST_ADDR is set.
func TestStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()

	rdb, err := Connect(ctx, addr, "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	st := New(rdb, time.Minute)
	k := time.Now().UnixNano()
	defer rdb.Del(ctx, key(k))

	empty, err := st.Load(ctx, k)
	require.NoError(t, err)
	assert.Empty(t, empty.ActiveChatID)

	empty.ActiveChatID = "01CHAT"
	empty.ImageQuality = "hd"
	empty.Image.Start(1, true)
	require.NoError(t, st.Save(ctx, k, empty))

	got, err := st.Load(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "01CHAT", got.ActiveChatID)
	assert.Equal(t, "hd", got.ImageQuality)
	assert.Equal(t, imagegen.StateAwaitingQuality, got.Image.State)

	ttl, err := rdb.TTL(ctx, key(k)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "gopherchat:session:-100123", key(-100123))
}
