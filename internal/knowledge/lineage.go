package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HendryAvila/hexprobe/internal/probe"
)

// Lineage records which pattern, bug and fix produced a generated probe.
type Lineage struct {
	ProbeID         string    `json:"probe_id"`
	PatternID       string    `json:"pattern_id"`
	BugID           string    `json:"bug_id"`
	FixCommit       *string   `json:"fix_commit"`
	OriginatingRepo string    `json:"originating_repo"`
	CreatedAt       time.Time `json:"created_at"`
}

// Origin is where a probe came from.
type Origin struct {
	OriginatingRepo string  `json:"originating_repo"`
	BugID           string  `json:"bug_id"`
	FixCommit       *string `json:"fix_commit"`
}

const lineageColumns = `probe_id, ifnull(pattern_id, ''), ifnull(bug_id, ''), fix_commit,
	ifnull(originating_repo, ''), created_at`

// RecordLineage stores l, replacing any row with the same probe id. A zero
// CreatedAt is stamped with the current time.
func (s *Store) RecordLineage(ctx context.Context, l Lineage) error {
	if l.ProbeID == "" {
		return fmt.Errorf("knowledge: record lineage: empty probe id")
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO probe_lineage (probe_id, pattern_id, bug_id, fix_commit, originating_repo, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			l.ProbeID, l.PatternID, l.BugID, nullableString(l.FixCommit), l.OriginatingRepo, FormatTime(l.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("knowledge: record lineage %s: %w", l.ProbeID, err)
		}
		return nil
	})
}

// GetProbeLineage returns the lineage of probeID, or nil when none exists.
func (s *Store) GetProbeLineage(ctx context.Context, probeID string) (*Lineage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+lineageColumns+` FROM probe_lineage WHERE probe_id = ?`, probeID)
	l, err := scanLineage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("knowledge: get lineage %s: %w", probeID, err)
	}
	return l, nil
}

// ProbeOrigin returns the originating repo, bug and fix of probeID. It is
// empty when the probe is unknown.
func (s *Store) ProbeOrigin(ctx context.Context, probeID string) ([]Origin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ifnull(originating_repo, ''), ifnull(bug_id, ''), fix_commit FROM probe_lineage WHERE probe_id = ?`, probeID)
	if err != nil {
		return nil, fmt.Errorf("knowledge: probe origin %s: %w", probeID, err)
	}
	defer rows.Close()

	var out []Origin
	for rows.Next() {
		var (
			o   Origin
			fix sql.NullString
		)
		if err := rows.Scan(&o.OriginatingRepo, &o.BugID, &fix); err != nil {
			return nil, fmt.Errorf("knowledge: scan origin: %w", err)
		}
		if fix.Valid {
			o.FixCommit = &fix.String
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LineageForPattern lists the probes generated from patternID, newest first.
func (s *Store) LineageForPattern(ctx context.Context, patternID string) ([]Lineage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+lineageColumns+` FROM probe_lineage WHERE pattern_id = ? ORDER BY created_at DESC, probe_id`, patternID)
	if err != nil {
		return nil, fmt.Errorf("knowledge: lineage for %s: %w", patternID, err)
	}
	defer rows.Close()

	var out []Lineage
	for rows.Next() {
		l, err := scanLineage(rows)
		if err != nil {
			return nil, fmt.Errorf("knowledge: scan lineage: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// PruneLineage deletes every lineage row created strictly before cutoff.
func (s *Store) PruneLineage(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.pruneTable(ctx, `DELETE FROM probe_lineage WHERE created_at < ?`, cutoff)
}

// GenerateProbe mints a probe from pattern p: it records lineage under a new
// UUID and returns the probe id with a Result holding exactly one finding
// built from the pattern.
func (s *Store) GenerateProbe(ctx context.Context, p Pattern, bugID string, fixCommit *string, repo string) (string, probe.Result, error) {
	probeID := uuid.NewString()
	err := s.RecordLineage(ctx, Lineage{
		ProbeID:         probeID,
		PatternID:       p.ID,
		BugID:           bugID,
		FixCommit:       fixCommit,
		OriginatingRepo: repo,
	})
	if err != nil {
		return "", probe.Result{}, err
	}

	severity := p.Severity
	if !severity.Valid() {
		severity = probe.Info
	}
	res := probe.Result{
		Findings: []probe.Finding{{
			Category: p.Category,
			Severity: severity,
			Message:  p.Description,
		}},
		Severity: severity,
	}
	return probeID, res, nil
}

func scanLineage(row scanner) (*Lineage, error) {
	var (
		l       Lineage
		fix     sql.NullString
		created sql.NullString
	)
	if err := row.Scan(&l.ProbeID, &l.PatternID, &l.BugID, &fix, &l.OriginatingRepo, &created); err != nil {
		return nil, err
	}
	if fix.Valid {
		l.FixCommit = &fix.String
	}
	l.CreatedAt = parseNullTime(created)
	return &l, nil
}
