// Package redis provides an alternative KeyValueStorage backend. It is used
// as the embedding cache when REDIS_ADDRESS points at a shared instance;
// the default deployment uses the sqlite kv database instead.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"cortex/common"

	"github.com/redis/go-redis/v9"
)

type Storage struct {
	Client *redis.Client
}

var _ common.KeyValueStorage = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{Client: setupClient()}
}

func (s Storage) CheckConnection(ctx context.Context) error {
	_, err := s.Client.Ping(ctx).Result()
	return err
}

func prefixedKey(userId, key string) string {
	return fmt.Sprintf("%s:%s", userId, key)
}

func (s Storage) MGet(ctx context.Context, userId string, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	prefixedKeys := make([]string, len(keys))
	for i, key := range keys {
		prefixedKeys[i] = prefixedKey(userId, key)
	}
	values, err := s.Client.MGet(ctx, prefixedKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}
	byteValues := make([][]byte, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		byteValues[i] = []byte(value.(string))
	}
	return byteValues, nil
}

func (s Storage) MSet(ctx context.Context, userId string, values map[string]interface{}) error {
	raw := make(map[string][]byte, len(values))
	for key, value := range values {
		jsonValue, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("redis mset failed to marshal value: %w", err)
		}
		raw[key] = jsonValue
	}
	return s.MSetRaw(ctx, userId, raw)
}

func (s Storage) MSetRaw(ctx context.Context, userId string, values map[string][]byte) error {
	prefixedValues := make(map[string]interface{}, len(values))
	for key, value := range values {
		prefixedValues[prefixedKey(userId, key)] = value
	}
	if err := s.Client.MSet(ctx, prefixedValues).Err(); err != nil {
		return fmt.Errorf("redis mset failed: %w", err)
	}
	return nil
}

func (s Storage) DeletePrefix(ctx context.Context, userId string, prefix string) error {
	keys, err := s.scanKeys(ctx, userId, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.Client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete prefix failed: %w", err)
	}
	return nil
}

func (s Storage) GetKeysWithPrefix(ctx context.Context, userId string, prefix string) ([]string, error) {
	prefixed, err := s.scanKeys(ctx, userId, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(prefixed))
	for i, key := range prefixed {
		keys[i] = key[len(userId)+1:]
	}
	return keys, nil
}

func (s Storage) scanKeys(ctx context.Context, userId, prefix string) ([]string, error) {
	var keys []string
	iter := s.Client.Scan(ctx, 0, prefixedKey(userId, prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return keys, nil
}
