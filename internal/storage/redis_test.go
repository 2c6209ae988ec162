package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	t.Run("empty address disables redis", func(t *testing.T) {
		client, err := NewRedisClient(RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
		assert.Nil(t, client.Client())
		assert.NoError(t, client.Health(context.Background()))
		assert.NoError(t, client.Close())
	})

	t.Run("connects and pings", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewRedisClient(RedisConfig{Address: mr.Addr()})
		require.NoError(t, err)
		defer client.Close()

		assert.NoError(t, client.Health(context.Background()))
		require.NoError(t, client.Client().Set(context.Background(), "k", "v", 0).Err())
		v, err := mr.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	})

	t.Run("unreachable server fails", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := NewRedisClient(RedisConfig{Address: addr})
		assert.Error(t, err)
	})
}
