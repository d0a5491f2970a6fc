// Package history persists toggle and command-test records.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"switchd/internal/domain"
)

// Fixed-width UTC timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements domain.HistoryStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration. The parent directory is created when missing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			id         TEXT PRIMARY KEY,
			switch_id  TEXT NOT NULL,
			action     TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT '',
			turned_on  INTEGER NOT NULL DEFAULT 0,
			ok         INTEGER NOT NULL DEFAULT 0,
			error      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_switch_created
			ON history (switch_id, created_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append stores rec, assigning an ID and timestamp when missing.
func (s *SQLiteStore) Append(ctx context.Context, rec domain.HistoryRecord) error {
	fill(&rec)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO history (id, switch_id, action, role, turned_on, ok, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.SwitchID, string(rec.Action), string(rec.Role),
		boolInt(rec.TurnedOn), boolInt(rec.OK), rec.Error,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return domain.NewSubSystemError("history", "SQLiteStore.Append", domain.ErrHistoryWrite, err.Error())
	}
	return nil
}

// List returns records newest first. An empty switchID lists every switch.
func (s *SQLiteStore) List(ctx context.Context, switchID string, limit int) ([]domain.HistoryRecord, error) {
	query := "SELECT id, switch_id, action, role, turned_on, ok, error, created_at FROM history"
	var args []any
	if switchID != "" {
		query += " WHERE switch_id = ?"
		args = append(args, switchID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var (
			rec              domain.HistoryRecord
			action, role, ts string
			turnedOn, ok     int
		)
		if err := rows.Scan(&rec.ID, &rec.SwitchID, &action, &role, &turnedOn, &ok, &rec.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Action = domain.HistoryAction(action)
		rec.Role = domain.CommandRole(role)
		rec.TurnedOn = turnedOn != 0
		rec.OK = ok != 0
		rec.CreatedAt, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp %q: %w", ts, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes records created before cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM history WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func fill(rec *domain.HistoryRecord) {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domain.HistoryStore = (*SQLiteStore)(nil)
