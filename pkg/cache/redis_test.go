package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skip("Redis not available")
	}
	c := NewRedisCacheFromClient(client)
	defer c.Close()

	ctx := context.Background()
	key := "test:" + uuid.NewString()
	defer c.Delete(ctx, key)

	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)

	ok, err := c.SetNX(ctx, key, []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, key, []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	counter := "test:ratelimit:" + uuid.NewString()
	defer c.Delete(ctx, counter)
	for want := int64(1); want <= 2; want++ {
		n, err := c.Incr(ctx, counter, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	ttl, err := client.TTL(ctx, counter).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
