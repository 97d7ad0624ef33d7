package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func NewTestRedisStorage(t *testing.T) *Storage {
	storage := &Storage{Client: NewTestRedisClient(t)}

	// Flush the database synchronously to ensure a clean state for each test
	_, err := storage.Client.FlushDB(context.Background()).Result()
	require.NoError(t, err)

	return storage
}

func NewTestRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     "localhost:6379",
		Password: "",
		DB:       1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	return client
}
