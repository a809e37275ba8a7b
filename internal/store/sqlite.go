package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/paradox-gate/internal/domain"
)

// SQLite is an embedded durable backend, useful where no Redis is
// deployed.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) a SQLite-backed store.
func NewSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers alongside the single writer.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		version INTEGER NOT NULL,
		expiry INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expiry);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Put upserts the session document. The version guard on the UPDATE
// arm makes the write an atomic check-and-increment.
func (s *SQLite) Put(ctx context.Context, sess *domain.Session) error {
	next := *sess
	next.Version = sess.Version + 1
	doc, err := encodeSession(&next)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (token, doc, version, expiry)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			doc = excluded.doc,
			version = excluded.version,
			expiry = excluded.expiry
		WHERE sessions.version = ?`

	res, err := s.db.ExecContext(ctx, query,
		sess.Token, string(doc), next.Version, sess.Expiry.Unix(), sess.Version)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert session rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	sess.Version = next.Version
	return nil
}

// Get returns the session for token, or (nil, nil) if absent or past
// expiry.
func (s *SQLite) Get(ctx context.Context, token string) (*domain.Session, error) {
	query := `SELECT doc FROM sessions WHERE token = ? AND expiry > ?`
	row := s.db.QueryRowContext(ctx, query, token, time.Now().Unix())

	var doc string
	err := row.Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return decodeSession([]byte(doc))
}

// Delete removes the session for token.
func (s *SQLite) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Scan visits every live session, purging expired rows first so the
// table does not grow without bound.
func (s *SQLite) Scan(ctx context.Context, fn func(*domain.Session) bool) error {
	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expiry <= ?`, now); err != nil {
		return fmt.Errorf("purge expired sessions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT token, doc FROM sessions WHERE expiry > ?`, now)
	if err != nil {
		return fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var token, doc string
		if err := rows.Scan(&token, &doc); err != nil {
			return fmt.Errorf("scan session row: %w", err)
		}
		sess, err := decodeSession([]byte(doc))
		if err != nil {
			slog.Error("Skipping corrupt session entry", "token", token, "error", err)
			continue
		}
		if !fn(sess) {
			return nil
		}
	}
	return rows.Err()
}
