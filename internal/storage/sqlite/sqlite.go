// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mmynk/cyclear/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the statements shared by the store and its transactions.
type queries struct {
	db dbtx
}

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	queries
	conn *sql.DB

	// reader opens deferred transactions. Read-only snapshots run here so
	// they see a consistent WAL snapshot without queueing for the write lock.
	reader *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string, busyTimeout time.Duration) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath, busyTimeout, "immediate"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn(dbPath, busyTimeout, "deferred"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}

	return &SQLiteStore{queries: queries{db: db}, conn: db, reader: reader}, nil
}

// dsn applies per-connection pragmas. Write transactions use txlock
// "immediate" and take the write lock up front, so concurrent quota checks
// serialize instead of failing on upgrade.
func dsn(path string, busyTimeout time.Duration, txlock string) string {
	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeout.Milliseconds()),
		"_pragma=foreign_keys(1)",
		"_pragma=journal_mode(WAL)",
		"_txlock=" + txlock,
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// Close closes both connection pools.
func (s *SQLiteStore) Close() error {
	return errors.Join(s.reader.Close(), s.conn.Close())
}

// DataVersion returns the write counter maintained by the version triggers.
func (s *SQLiteStore) DataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.reader.QueryRowContext(ctx, `SELECT version FROM data_version WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read data version: %w", err)
	}
	return v, nil
}

// RunInTx executes fn within a single database transaction.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(tx storage.TimelineTx) error) error {
	return s.withTx(ctx, func(q *queries) error {
		return fn(q)
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(q *queries) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// withReadTx runs fn in a deferred transaction on the read pool. It must only
// read.
func (s *SQLiteStore) withReadTx(ctx context.Context, fn func(q *queries) error) error {
	tx, err := s.reader.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func unix(t time.Time) int64 {
	return t.UTC().Unix()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func ptrInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func ptrInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// windowClause appends race-date bounds on the given column.
func windowClause(column string, w storage.Window, args []any) (string, []any) {
	var clause string
	if !w.From.IsZero() {
		clause += " AND " + column + " >= ?"
		args = append(args, unix(w.From))
	}
	if !w.Before.IsZero() {
		clause += " AND " + column + " < ?"
		args = append(args, unix(w.Before))
	}
	return clause, args
}
