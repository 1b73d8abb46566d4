// Package sqlite provides SQLite-based persistent storage for powerlens.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS node_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// ─── Measurements ───────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			label        TEXT NOT NULL DEFAULT '',
			started_at   INTEGER NOT NULL,
			ended_at     INTEGER,
			sample_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind)`,

		// One row per powermetrics interval. time is unix milliseconds;
		// processes is the task table as JSON.
		`CREATE TABLE IF NOT EXISTS samples (
			run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq         INTEGER NOT NULL,
			time        INTEGER NOT NULL,
			interval_ms REAL NOT NULL,
			cpu_mw      REAL NOT NULL,
			gpu_mw      REAL NOT NULL,
			ane_mw      REAL NOT NULL,
			dram_mw     REAL NOT NULL,
			combined_mw REAL NOT NULL,
			e_active    REAL NOT NULL,
			p_active    REAL NOT NULL,
			gpu_active  REAL NOT NULL,
			processes   TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS baselines (
			label      TEXT PRIMARY KEY,
			run_id     TEXT NOT NULL DEFAULT '',
			cpu_mw     REAL NOT NULL,
			gpu_mw     REAL NOT NULL,
			ane_mw     REAL NOT NULL,
			dram_mw    REAL NOT NULL,
			total_mw   REAL NOT NULL,
			created_at INTEGER NOT NULL
		)`,

		// ─── Feedback loop ──────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS feedback_runs (
			id          TEXT PRIMARY KEY,
			component   TEXT NOT NULL,
			pids        TEXT NOT NULL DEFAULT '[]',
			state       TEXT NOT NULL,
			before      TEXT NOT NULL,
			after       TEXT NOT NULL DEFAULT '',
			verdict     TEXT NOT NULL DEFAULT '',
			realization REAL NOT NULL DEFAULT 0,
			reverted    BOOLEAN NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT '',
			started_at  INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_started ON feedback_runs(started_at)`,

		// ─── CRM ────────────────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS clients (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			company    TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id        TEXT PRIMARY KEY,
			number    INTEGER NOT NULL UNIQUE,
			client_id TEXT NOT NULL REFERENCES clients(id),
			status    TEXT NOT NULL,
			currency  TEXT NOT NULL,
			issued_at INTEGER NOT NULL,
			due_at    INTEGER,
			paid_at   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_client ON invoices(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status)`,
		`CREATE TABLE IF NOT EXISTS invoice_items (
			invoice_id  TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
			seq         INTEGER NOT NULL,
			description TEXT NOT NULL,
			quantity    INTEGER NOT NULL,
			unit_cents  INTEGER NOT NULL,
			PRIMARY KEY (invoice_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS leads (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			source     TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL,
			notes      TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status)`,
		`CREATE TABLE IF NOT EXISTS email_templates (
			name    TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			body    TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Node Info ──────────────────────────────────────────────────────────────

// SetNodeInfo stores a key-value pair in node_info.
func (d *DB) SetNodeInfo(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO node_info (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetNodeInfo retrieves a value from node_info.
func (d *DB) GetNodeInfo(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM node_info WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullableUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0)
}
