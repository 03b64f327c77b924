package global

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/probe"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS global_patterns (
		pattern_id           TEXT PRIMARY KEY,
		category             TEXT,
		description          TEXT,
		severity             TEXT,
		trigger_count        INTEGER DEFAULT 0,
		false_positive_count INTEGER DEFAULT 0,
		created_at           TEXT
	);

	CREATE TABLE IF NOT EXISTS probe_lineage_global (
		probe_id         TEXT PRIMARY KEY,
		pattern_id       TEXT,
		bug_id           TEXT,
		fix_commit       TEXT,
		originating_repo TEXT,
		created_at       TEXT
	);
`

// SQLiteStore is the file-backed global store. The database is opened and
// migrated on first use, and every operation runs on its own connection.
type SQLiteStore struct {
	dir string

	once sync.Once
	db   *sql.DB
	err  error
}

// NewSQLiteStore returns a store that will keep global.db in dir.
func NewSQLiteStore(dir string) *SQLiteStore {
	return &SQLiteStore{dir: dir}
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return filepath.Join(s.dir, "global.db")
}

func (s *SQLiteStore) open() {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.err = fmt.Errorf("global: create dir: %w: %w", knowledge.ErrStoreUnavailable, err)
		return
	}
	db, err := sql.Open("sqlite", s.Path())
	if err != nil {
		s.err = fmt.Errorf("global: open database: %w: %w", knowledge.ErrStoreUnavailable, err)
		return
	}
	for _, p := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			s.err = fmt.Errorf("global: pragma %q: %w: %w", p, knowledge.ErrStoreUnavailable, err)
			return
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		s.err = fmt.Errorf("global: migration: %w: %w", knowledge.ErrStoreUnavailable, err)
		return
	}
	s.db = db
}

// conn opens the database if needed and acquires a dedicated connection.
// The caller must close it.
func (s *SQLiteStore) conn(ctx context.Context) (*sql.Conn, error) {
	s.once.Do(s.open)
	if s.err != nil {
		return nil, s.err
	}
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("global: acquire connection: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("global: begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("global: commit transaction: %w", err)
	}
	return nil
}

// PromotePattern implements Store.
func (s *SQLiteStore) PromotePattern(ctx context.Context, p knowledge.Pattern) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO global_patterns
			   (pattern_id, category, description, severity, trigger_count, false_positive_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(pattern_id) DO UPDATE SET trigger_count = trigger_count + 1`,
			p.ID, p.Category, p.Description, string(p.Severity), p.TriggerCount, p.FalsePositiveCount, createdAt(p.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("global: promote pattern %s: %w", p.ID, err)
		}
		return nil
	})
}

// PromoteLineage implements Store.
func (s *SQLiteStore) PromoteLineage(ctx context.Context, l knowledge.Lineage) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO probe_lineage_global
			   (probe_id, pattern_id, bug_id, fix_commit, originating_repo, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			l.ProbeID, l.PatternID, l.BugID, nullable(l.FixCommit), l.OriginatingRepo, createdAt(l.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("global: promote lineage %s: %w", l.ProbeID, err)
		}
		return nil
	})
}

// GetPattern implements Store.
func (s *SQLiteStore) GetPattern(ctx context.Context, id string) (*knowledge.Pattern, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var (
		p                 knowledge.Pattern
		severity, created sql.NullString
	)
	err = c.QueryRowContext(ctx,
		`SELECT pattern_id, ifnull(category, ''), ifnull(description, ''), severity,
		        ifnull(trigger_count, 0), ifnull(false_positive_count, 0), created_at
		 FROM global_patterns WHERE pattern_id = ?`, id,
	).Scan(&p.ID, &p.Category, &p.Description, &severity, &p.TriggerCount, &p.FalsePositiveCount, &created)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("global: %w: %s", knowledge.ErrPatternNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("global: get pattern %s: %w", id, err)
	}
	p.Severity = probe.Severity(severity.String)
	p.CreatedAt = parseTime(created.String)
	return &p, nil
}

// GetLineage implements Store. It returns nil when the probe is unknown.
func (s *SQLiteStore) GetLineage(ctx context.Context, probeID string) (*knowledge.Lineage, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var (
		l            knowledge.Lineage
		fix, created sql.NullString
	)
	err = c.QueryRowContext(ctx,
		`SELECT probe_id, ifnull(pattern_id, ''), ifnull(bug_id, ''), fix_commit, ifnull(originating_repo, ''), created_at
		 FROM probe_lineage_global WHERE probe_id = ?`, probeID,
	).Scan(&l.ProbeID, &l.PatternID, &l.BugID, &fix, &l.OriginatingRepo, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("global: get lineage %s: %w", probeID, err)
	}
	if fix.Valid {
		l.FixCommit = &fix.String
	}
	l.CreatedAt = parseTime(created.String)
	return &l, nil
}

// ProbeOrigin implements Store.
func (s *SQLiteStore) ProbeOrigin(ctx context.Context, probeID string) ([]knowledge.Origin, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	rows, err := c.QueryContext(ctx,
		`SELECT ifnull(originating_repo, ''), ifnull(bug_id, ''), fix_commit
		 FROM probe_lineage_global WHERE probe_id = ?`, probeID)
	if err != nil {
		return nil, fmt.Errorf("global: probe origin %s: %w", probeID, err)
	}
	defer rows.Close()

	var out []knowledge.Origin
	for rows.Next() {
		var (
			o   knowledge.Origin
			fix sql.NullString
		)
		if err := rows.Scan(&o.OriginatingRepo, &o.BugID, &fix); err != nil {
			return nil, fmt.Errorf("global: scan origin: %w", err)
		}
		if fix.Valid {
			o.FixCommit = &fix.String
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PrunePatterns implements Store.
func (s *SQLiteStore) PrunePatterns(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.prune(ctx, `DELETE FROM global_patterns WHERE created_at < ?`, cutoff)
}

// PruneLineage implements Store.
func (s *SQLiteStore) PruneLineage(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.prune(ctx, `DELETE FROM probe_lineage_global WHERE created_at < ?`, cutoff)
}

func (s *SQLiteStore) prune(ctx context.Context, query string, cutoff time.Time) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, knowledge.FormatTime(cutoff))
		if err != nil {
			return fmt.Errorf("global: prune: %w", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

// Close closes the database if it was ever opened.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// createdAt keeps the source row's timestamp; rows without one are stamped now.
func createdAt(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return knowledge.FormatTime(t)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := knowledge.ParseTime(s)
	return t
}
