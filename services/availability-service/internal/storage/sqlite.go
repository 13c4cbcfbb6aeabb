package storage

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLite is the single-node store. It keeps one connection and begins every
// transaction with BEGIN IMMEDIATE, so writers are fully serialized.
type SQLite struct {
	queries
	db *sqlx.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	conn, err := sqlx.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLite{
		queries: queries{c: sqlConn{q: conn}},
		db:      conn,
	}, nil
}

func sqliteDSN(path string) string {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + params.Encode()
}

func (s *SQLite) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return sqliteError(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(queries{c: sqlConn{q: tx}, d: s.d}); err != nil {
		return err
	}
	return sqliteError(tx.Commit())
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
