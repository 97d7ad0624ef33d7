package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMGetAndMSet(t *testing.T) {
	ctx := context.Background()
	storage := NewTestRedisStorage(t)
	userId := "test-user"

	err := storage.MSet(ctx, userId, map[string]interface{}{"key1": "value1"})
	require.NoError(t, err)

	values, err := storage.MGet(ctx, userId, []string{"key1", "missing"})
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, `"value1"`, string(values[0]))
	assert.Nil(t, values[1])
}

func TestMSetRaw(t *testing.T) {
	ctx := context.Background()
	storage := NewTestRedisStorage(t)
	userId := "test-user"

	require.NoError(t, storage.MSetRaw(ctx, userId, map[string][]byte{"bin": {0x01, 0x02}}))

	values, err := storage.MGet(ctx, userId, []string{"bin"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, values[0])
}

func TestPrefixOperations(t *testing.T) {
	ctx := context.Background()
	storage := NewTestRedisStorage(t)
	userId := "test-user"

	err := storage.MSet(ctx, userId, map[string]interface{}{
		"embedding:1": "a",
		"embedding:2": "b",
		"other:1":     "c",
	})
	require.NoError(t, err)

	keys, err := storage.GetKeysWithPrefix(ctx, userId, "embedding:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"embedding:1", "embedding:2"}, keys)

	require.NoError(t, storage.DeletePrefix(ctx, userId, "embedding:"))

	keys, err = storage.GetKeysWithPrefix(ctx, userId, "embedding:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
