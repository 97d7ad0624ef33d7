package common

import (
	"context"
)

// KeyValueStorage provides key-value storage operations, namespaced per user.
// This is the canonical interface; srv.Storage embeds common.KeyValueStorage.
type KeyValueStorage interface {
	MGet(ctx context.Context, userId string, keys []string) ([][]byte, error)
	MSet(ctx context.Context, userId string, values map[string]interface{}) error
	MSetRaw(ctx context.Context, userId string, values map[string][]byte) error
	DeletePrefix(ctx context.Context, userId string, prefix string) error
	GetKeysWithPrefix(ctx context.Context, userId string, prefix string) ([]string, error)
}
