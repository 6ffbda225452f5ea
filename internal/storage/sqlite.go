package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a SettingsStore backed by a SQLite database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path. The special path
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS inspector_settings (
		page_group TEXT PRIMARY KEY,
		blob TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Load returns the blob saved for group.
func (s *SQLite) Load(ctx context.Context, group string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT blob FROM inspector_settings WHERE page_group = ?`, group)
	var blob string
	err := row.Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return "", ErrClosed
		}
		return "", fmt.Errorf("load settings %q: %w", group, err)
	}
	return blob, nil
}

// Save replaces the blob for group.
func (s *SQLite) Save(ctx context.Context, group, blob string) error {
	query := `
	INSERT INTO inspector_settings (page_group, blob, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(page_group) DO UPDATE SET
		blob = excluded.blob,
		updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, group, blob, s.now().Unix()); err != nil {
		return fmt.Errorf("save settings %q: %w", group, err)
	}
	return nil
}

// Groups returns the page groups with saved settings, sorted.
func (s *SQLite) Groups(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_group FROM inspector_settings ORDER BY page_group`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
