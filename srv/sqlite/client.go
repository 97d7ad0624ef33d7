package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	zlog "github.com/rs/zerolog/log"
)

// Client wraps a sqlite database handle with trace-level query logging.
// Connections are opened with WAL journaling, foreign-key enforcement and a
// busy timeout so concurrent readers don't fail on writer locks.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	zlog.Debug().Str("path", dbPath).Msg("Initializing SQLite client")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	zlog.Debug().Msg("SQLite client initialized successfully")
	return &Client{db: db}, nil
}

// NewMemoryClient opens an in-memory database, for tests. The pool is pinned
// to one connection since each sqlite in-memory connection is its own
// database.
func NewMemoryClient() (*Client, error) {
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping in-memory SQLite database: %w", err)
	}

	return &Client{db: db}, nil
}

// DB exposes the underlying handle, needed by the migration driver.
func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Close() error {
	zlog.Debug().Msg("Closing SQLite connection")
	return c.db.Close()
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	zlog.Trace().Str("query", query).Msg("Executing SQLite query")
	return c.db.ExecContext(ctx, query, args...)
}

func (c *Client) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	zlog.Trace().Str("query", query).Msg("Executing SQLite query")
	return c.db.QueryContext(ctx, query, args...)
}

func (c *Client) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	zlog.Trace().Str("query", query).Msg("Executing SQLite query")
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *Client) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	zlog.Trace().Msg("Beginning SQLite transaction")
	return c.db.BeginTx(ctx, opts)
}

func (c *Client) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	zlog.Trace().Str("query", query).Msg("Preparing SQLite statement")
	return c.db.PrepareContext(ctx, query)
}
