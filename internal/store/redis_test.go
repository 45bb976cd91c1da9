package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewRedisStoreFromClient(client, "formwork:"), mr
}

func TestNewRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err := NewRedisStore(DefaultRedisConfig(mr.Addr()))
	require.NoError(t, err)
	assert.NotNil(t, s)
	defer s.Close()
}

func TestNewRedisStore_ConnectionError(t *testing.T) {
	_, err := NewRedisStore(DefaultRedisConfig("localhost:99999"))
	assert.Error(t, err)
}

func TestRedisStore_PutAndGet(t *testing.T) {
	s, mr := setupTestRedis(t)
	defer s.Close()

	ctx := context.Background()

	err := s.Put(ctx, "draft:task:1", []byte("payload"))
	require.NoError(t, err)

	got, err := s.Get(ctx, "draft:task:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	// Keys are namespaced under the configured prefix
	assert.True(t, mr.Exists("formwork:draft:task:1"))
}

func TestRedisStore_GetMissing(t *testing.T) {
	s, _ := setupTestRedis(t)
	defer s.Close()

	_, err := s.Get(context.Background(), "nonexistent")
	assert.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRedisStore_Delete(t *testing.T) {
	s, _ := setupTestRedis(t)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.True(t, IsNotFound(err))
}

func TestRedisStore_Keys(t *testing.T) {
	s, _ := setupTestRedis(t)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "draft:task:1", []byte("a")))
	require.NoError(t, s.Put(ctx, "draft:task:2", []byte("b")))
	require.NoError(t, s.Put(ctx, "lookup:enum:status", []byte("c")))

	keys, err := s.Keys(ctx, "draft:")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.ElementsMatch(t, []string{"draft:task:1", "draft:task:2"}, keys)
}
