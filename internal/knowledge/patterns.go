package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HendryAvila/hexprobe/internal/probe"
)

// Pattern is a deduplicated, persisted class of finding.
type Pattern struct {
	ID                 string         `json:"id"`
	Category           string         `json:"category"`
	Description        string         `json:"description"`
	Severity           probe.Severity `json:"severity"`
	TriggerCount       int            `json:"trigger_count"`
	FalsePositiveCount int            `json:"false_positive_count"`
	CreatedAt          time.Time      `json:"created_at"`
}

const patternColumns = `id, ifnull(category, ''), ifnull(description, ''), ifnull(severity, ''),
	ifnull(trigger_count, 0), ifnull(false_positive_count, 0), created_at`

// UpsertPattern inserts a new pattern or, if id already exists, increments
// its trigger_count by one without touching any other column. New rows start
// with zero counters and created_at = now.
func (s *Store) UpsertPattern(ctx context.Context, id, category, description string, severity probe.Severity) error {
	if id == "" {
		return fmt.Errorf("knowledge: upsert pattern: empty id")
	}
	if !severity.Valid() {
		return fmt.Errorf("knowledge: upsert pattern %s: %w: %q", id, probe.ErrUnknownSeverity, severity)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO patterns (id, category, description, severity, trigger_count, false_positive_count, created_at)
			 VALUES (?, ?, ?, ?, 0, 0, ?)
			 ON CONFLICT(id) DO UPDATE SET trigger_count = trigger_count + 1`,
			id, category, description, string(severity), FormatTime(s.now()),
		)
		if err != nil {
			return fmt.Errorf("knowledge: upsert pattern %s: %w", id, err)
		}
		return nil
	})
}

// GetPattern returns the pattern stored under id.
func (s *Store) GetPattern(ctx context.Context, id string) (*Pattern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM patterns WHERE id = ?`, id)
	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("knowledge: %w: %s", ErrPatternNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("knowledge: get pattern %s: %w", id, err)
	}
	return p, nil
}

// QueryRecurrent returns every pattern with trigger_count >= minTriggers,
// ordered by id.
func (s *Store) QueryRecurrent(ctx context.Context, minTriggers int) ([]Pattern, error) {
	return s.queryPatterns(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE trigger_count >= ? ORDER BY id`, minTriggers)
}

// ListPatterns returns every pattern, oldest first.
func (s *Store) ListPatterns(ctx context.Context) ([]Pattern, error) {
	return s.queryPatterns(ctx, `SELECT `+patternColumns+` FROM patterns ORDER BY created_at, id`)
}

// SetSeverity persists a severity computed by the severity adjuster.
func (s *Store) SetSeverity(ctx context.Context, id string, severity probe.Severity) error {
	if !severity.Valid() {
		return fmt.Errorf("knowledge: set severity %s: %w: %q", id, probe.ErrUnknownSeverity, severity)
	}
	return s.updateOne(ctx, id, `UPDATE patterns SET severity = ? WHERE id = ?`, string(severity), id)
}

// MarkFalsePositive increments the pattern's false_positive_count.
func (s *Store) MarkFalsePositive(ctx context.Context, id string) error {
	return s.updateOne(ctx, id, `UPDATE patterns SET false_positive_count = false_positive_count + 1 WHERE id = ?`, id)
}

// PrunePatterns deletes every pattern created strictly before cutoff and
// returns the number of rows removed. Lineage rows are left alone.
func (s *Store) PrunePatterns(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.pruneTable(ctx, `DELETE FROM patterns WHERE created_at < ?`, cutoff)
}

func (s *Store) updateOne(ctx context.Context, id, query string, args ...any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("knowledge: update pattern %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("knowledge: %w: %s", ErrPatternNotFound, id)
		}
		return nil
	})
}

func (s *Store) pruneTable(ctx context.Context, query string, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, FormatTime(cutoff))
		if err != nil {
			return fmt.Errorf("knowledge: prune: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

func (s *Store) queryPatterns(ctx context.Context, query string, args ...any) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query patterns: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("knowledge: scan pattern: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPattern(row scanner) (*Pattern, error) {
	var (
		p        Pattern
		severity string
		created  sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Category, &p.Description, &severity, &p.TriggerCount, &p.FalsePositiveCount, &created); err != nil {
		return nil, err
	}
	p.Severity = probe.Severity(severity)
	p.CreatedAt = parseNullTime(created)
	return &p, nil
}
