// Package knowledge implements the local, per-repository pattern store.
//
// It keeps the patterns HexProbe has learned from findings, the lineage of
// probes generated from those patterns, pattern status (core/deprecated
// redirects) and a short history of probe runs, all in one SQLite database
// under the configured data directory.
package knowledge

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

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrStoreUnavailable wraps every failure to open or migrate a store. It is
// fatal at startup and never retried.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrPatternNotFound is returned by operations addressing a missing pattern.
var ErrPatternNotFound = errors.New("pattern not found")

// TimeLayout is the persisted timestamp format. It is fixed-width UTC, so
// string comparison in SQL matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a persisted timestamp. It also accepts RFC 3339 and the
// "YYYY-MM-DD HH:MM:SS" form SQLite's datetime() produces.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("knowledge: unparseable timestamp %q", s)
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds local store configuration.
type Config struct {
	DataDir       string
	MaxRunHistory int
	Clock         func() time.Time
}

// DefaultConfig returns the default configuration for the local store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:       filepath.Join(home, ".hexprobe"),
		MaxRunHistory: 100,
		Clock:         time.Now,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the local pattern store backed by SQLite.
type Store struct {
	db    *sql.DB
	cfg   Config
	now   func() time.Time
	hooks storeHooks
}

type storeHooks struct {
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		beginTx: func(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

// withTx runs fn in a transaction, committing on success and rolling back
// otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.hooks.beginTx(ctx, s.db)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := s.hooks.commit(tx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// New creates a Store. It creates the data directory if needed, opens
// SQLite with WAL mode and runs migrations. Failures wrap ErrStoreUnavailable.
func New(cfg Config) (*Store, error) {
	if cfg.MaxRunHistory <= 0 {
		cfg.MaxRunHistory = 100
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("knowledge: create data dir: %w: %w", ErrStoreUnavailable, err)
	}

	dbPath := filepath.Join(cfg.DataDir, "knowledge.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open database: %w: %w", ErrStoreUnavailable, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("knowledge: pragma %q: %w: %w", p, ErrStoreUnavailable, err)
		}
	}

	s := &Store{db: db, cfg: cfg, now: cfg.Clock, hooks: defaultStoreHooks()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("knowledge: migration: %w: %w", ErrStoreUnavailable, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return filepath.Join(s.cfg.DataDir, "knowledge.db")
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	// patterns and probe_lineage are the shared on-disk format; their columns
	// must not change.
	schema := `
		CREATE TABLE IF NOT EXISTS patterns (
			id                   TEXT PRIMARY KEY,
			category             TEXT,
			description          TEXT,
			severity             TEXT,
			trigger_count        INTEGER DEFAULT 0,
			false_positive_count INTEGER DEFAULT 0,
			created_at           TEXT
		);

		CREATE TABLE IF NOT EXISTS probe_lineage (
			probe_id         TEXT PRIMARY KEY,
			pattern_id       TEXT,
			bug_id           TEXT,
			fix_commit       TEXT,
			originating_repo TEXT,
			created_at       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_patterns_created ON patterns(created_at);
		CREATE INDEX IF NOT EXISTS idx_patterns_category ON patterns(category);
		CREATE INDEX IF NOT EXISTS idx_lineage_pattern ON probe_lineage(pattern_id);
		CREATE INDEX IF NOT EXISTS idx_lineage_created ON probe_lineage(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pattern_status (
			pattern_id  TEXT PRIMARY KEY,
			status      TEXT NOT NULL DEFAULT 'active',
			redirect_to TEXT,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS probe_runs (
			id            TEXT PRIMARY KEY,
			probe         TEXT NOT NULL,
			repo          TEXT NOT NULL,
			severity      TEXT NOT NULL,
			finding_count INTEGER NOT NULL DEFAULT 0,
			patch_count   INTEGER NOT NULL DEFAULT 0,
			approvals     TEXT NOT NULL DEFAULT '[]',
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_created ON probe_runs(created_at DESC);
	`); err != nil {
		return err
	}

	// Older databases written by other tools may hold NULL counters.
	_, _ = s.db.Exec(`UPDATE patterns SET trigger_count = 0 WHERE trigger_count IS NULL`)               // best-effort migration cleanup
	_, _ = s.db.Exec(`UPDATE patterns SET false_positive_count = 0 WHERE false_positive_count IS NULL`) // best-effort migration cleanup

	return nil
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats holds aggregate counts for the local store.
type Stats struct {
	Patterns   int `json:"patterns"`
	Lineage    int `json:"lineage"`
	Deprecated int `json:"deprecated"`
	Runs       int `json:"runs"`
}

// Stats returns aggregate counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	queries := []struct {
		dest  *int
		query string
	}{
		{&st.Patterns, `SELECT COUNT(*) FROM patterns`},
		{&st.Lineage, `SELECT COUNT(*) FROM probe_lineage`},
		{&st.Deprecated, `SELECT COUNT(*) FROM pattern_status WHERE status = 'deprecated'`},
		{&st.Runs, `SELECT COUNT(*) FROM probe_runs`},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("knowledge: stats: %w", err)
		}
	}
	return &st, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func parseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, _ := ParseTime(ns.String)
	return t
}
