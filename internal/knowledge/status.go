package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a pattern. A pattern without a status row
// is active.
type Status string

const (
	StatusActive     Status = "active"
	StatusCore       Status = "core"
	StatusDeprecated Status = "deprecated"
)

// maxRedirectHops bounds ResolveRedirect so a corrupted chain cannot loop.
const maxRedirectHops = 8

var (
	// ErrDeprecated is returned when changing the status of a deprecated
	// pattern. Deprecation is terminal.
	ErrDeprecated = errors.New("pattern is deprecated")

	// ErrRedirectLoop is returned when redirects do not settle.
	ErrRedirectLoop = errors.New("redirect loop")
)

// StatusRecord is one row of pattern_status.
type StatusRecord struct {
	PatternID  string    `json:"pattern_id"`
	Status     Status    `json:"status"`
	RedirectTo string    `json:"redirect_to,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SetStatus marks a pattern active or core. Deprecated patterns cannot be
// revived; use Deprecate to deprecate.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	switch status {
	case StatusActive, StatusCore:
	case StatusDeprecated:
		return fmt.Errorf("knowledge: set status %s: use Deprecate to deprecate a pattern", id)
	default:
		return fmt.Errorf("knowledge: set status %s: unknown status %q", id, status)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := statusOf(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusDeprecated {
			return fmt.Errorf("knowledge: set status %s: %w", id, ErrDeprecated)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pattern_status (pattern_id, status, redirect_to, updated_at)
			 VALUES (?, ?, NULL, ?)
			 ON CONFLICT(pattern_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
			id, string(status), FormatTime(s.now()),
		)
		if err != nil {
			return fmt.Errorf("knowledge: set status %s: %w", id, err)
		}
		return nil
	})
}

// Deprecate marks loser deprecated with a redirect to winner, in one
// transaction. Deprecating an already deprecated pattern toward the same
// winner is a no-op; toward a different winner it fails with ErrDeprecated.
func (s *Store) Deprecate(ctx context.Context, loser, winner string) error {
	if loser == "" || winner == "" {
		return fmt.Errorf("knowledge: deprecate: empty pattern id")
	}
	if loser == winner {
		return fmt.Errorf("knowledge: deprecate %s: cannot redirect to itself", loser)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := statusOf(ctx, tx, loser)
		if err != nil {
			return err
		}
		if current.Status == StatusDeprecated {
			if current.RedirectTo == winner {
				return nil
			}
			return fmt.Errorf("knowledge: deprecate %s: %w (redirects to %s)", loser, ErrDeprecated, current.RedirectTo)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pattern_status (pattern_id, status, redirect_to, updated_at)
			 VALUES (?, 'deprecated', ?, ?)
			 ON CONFLICT(pattern_id) DO UPDATE SET
			   status = 'deprecated',
			   redirect_to = excluded.redirect_to,
			   updated_at = excluded.updated_at`,
			loser, winner, FormatTime(s.now()),
		)
		if err != nil {
			return fmt.Errorf("knowledge: deprecate %s: %w", loser, err)
		}
		return nil
	})
}

// Status returns the status record for id, or an active record when none is
// stored.
func (s *Store) Status(ctx context.Context, id string) (StatusRecord, error) {
	return statusOf(ctx, s.db, id)
}

// Statuses returns every stored status row keyed by pattern id.
func (s *Store) Statuses(ctx context.Context) (map[string]StatusRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern_id, status, ifnull(redirect_to, ''), updated_at FROM pattern_status`)
	if err != nil {
		return nil, fmt.Errorf("knowledge: statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]StatusRecord)
	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("knowledge: scan status: %w", err)
		}
		out[rec.PatternID] = rec
	}
	return out, rows.Err()
}

// ResolveRedirect follows deprecation redirects starting at id and returns
// the first non-deprecated pattern id.
func (s *Store) ResolveRedirect(ctx context.Context, id string) (string, error) {
	seen := map[string]bool{id: true}
	current := id
	for range maxRedirectHops {
		rec, err := statusOf(ctx, s.db, current)
		if err != nil {
			return "", err
		}
		if rec.Status != StatusDeprecated || rec.RedirectTo == "" {
			return current, nil
		}
		current = rec.RedirectTo
		if seen[current] {
			return "", fmt.Errorf("knowledge: resolve %s: %w", id, ErrRedirectLoop)
		}
		seen[current] = true
	}
	return "", fmt.Errorf("knowledge: resolve %s: %w after %d hops", id, ErrRedirectLoop, maxRedirectHops)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func statusOf(ctx context.Context, q queryRower, id string) (StatusRecord, error) {
	row := q.QueryRowContext(ctx,
		`SELECT pattern_id, status, ifnull(redirect_to, ''), updated_at FROM pattern_status WHERE pattern_id = ?`, id)
	rec, err := scanStatus(row)
	if err == sql.ErrNoRows {
		return StatusRecord{PatternID: id, Status: StatusActive}, nil
	}
	if err != nil {
		return StatusRecord{}, fmt.Errorf("knowledge: status %s: %w", id, err)
	}
	return rec, nil
}

func scanStatus(row scanner) (StatusRecord, error) {
	var (
		rec     StatusRecord
		status  string
		updated string
	)
	if err := row.Scan(&rec.PatternID, &status, &rec.RedirectTo, &updated); err != nil {
		return StatusRecord{}, err
	}
	rec.Status = Status(status)
	rec.UpdatedAt, _ = ParseTime(updated)
	return rec, nil
}
