package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cortex/common"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width RFC3339 UTC strings so that window
// comparisons in SQL stay lexicographic.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Storage implements srv.Storage on two sqlite databases: the core database
// holding the ledger/memory/contact tables and a key-value database used as
// a cache (embedding vectors and similar derived data).
type Storage struct {
	db   *Client
	kvDb *Client
}

func NewStorage(db, kvDb *Client) *Storage {
	return &Storage{db: db, kvDb: kvDb}
}

// NewStorageFromPaths opens (creating if needed) the core and kv databases
// at the given paths and applies pending migrations. Empty paths fall back
// to cortex.db / cortex_kv.db under the cortex data home.
func NewStorageFromPaths(dbPath, kvPath string) (*Storage, error) {
	if dbPath == "" || kvPath == "" {
		dataHome, err := common.GetCortexDataHome()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data home: %w", err)
		}
		if dbPath == "" {
			dbPath = filepath.Join(dataHome, "cortex.db")
		}
		if kvPath == "" {
			kvPath = filepath.Join(dataHome, "cortex_kv.db")
		}
	}

	db, err := NewClient(dbPath)
	if err != nil {
		return nil, err
	}
	kvDb, err := NewClient(kvPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	storage := NewStorage(db, kvDb)
	if err := storage.MigrateUp("cortex"); err != nil {
		storage.Close()
		return nil, err
	}
	return storage, nil
}

func (s *Storage) Close() error {
	err1 := s.db.Close()
	err2 := s.kvDb.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *Storage) CheckConnection(ctx context.Context) error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("core database unreachable: %w", err)
	}
	if err := s.kvDb.Ping(); err != nil {
		return fmt.Errorf("kv database unreachable: %w", err)
	}
	return nil
}

var _ common.KeyValueStorage = (*Storage)(nil)

func (s *Storage) MGet(ctx context.Context, userId string, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}

	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys)*2)
	for i, key := range keys {
		placeholders[i] = "(?, ?)"
		args[i*2] = userId
		args[i*2+1] = key
	}

	query := fmt.Sprintf("SELECT key, value FROM kv WHERE (user_id, key) IN (%s)", strings.Join(placeholders, ","))

	rows, err := s.kvDb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query kv store: %w", err)
	}
	defer rows.Close()

	results := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	orderedResults := make([][]byte, len(keys))
	for i, key := range keys {
		orderedResults[i] = results[key]
	}

	return orderedResults, nil
}

func (s *Storage) MSet(ctx context.Context, userId string, values map[string]interface{}) error {
	raw := make(map[string][]byte, len(values))
	for key, value := range values {
		jsonValue, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
		}
		raw[key] = jsonValue
	}
	return s.MSetRaw(ctx, userId, raw)
}

func (s *Storage) MSetRaw(ctx context.Context, userId string, values map[string][]byte) error {
	tx, err := s.kvDb.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO kv (user_id, key, value) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, value := range values {
		if _, err := stmt.ExecContext(ctx, userId, key, value); err != nil {
			return fmt.Errorf("failed to insert/update key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Storage) DeletePrefix(ctx context.Context, userId string, prefix string) error {
	query := "DELETE FROM kv WHERE user_id = ? AND key >= ? AND key < ?"
	_, err := s.kvDb.ExecContext(ctx, query, userId, prefix, prefix+"￿")
	if err != nil {
		return fmt.Errorf("failed to delete keys with prefix %s: %w", prefix, err)
	}
	return nil
}

func (s *Storage) GetKeysWithPrefix(ctx context.Context, userId string, prefix string) ([]string, error) {
	query := "SELECT key FROM kv WHERE user_id = ? AND key >= ? AND key < ? ORDER BY key"
	rows, err := s.kvDb.QueryContext(ctx, query, userId, prefix, prefix+"￿")
	if err != nil {
		return nil, fmt.Errorf("failed to query keys with prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return keys, nil
}

// nullable converts an empty string to a NULL parameter.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
