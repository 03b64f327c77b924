package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HendryAvila/hexprobe/internal/probe"
)

// RunApproval is one agent's verdict as kept in run history.
type RunApproval struct {
	Agent    string `json:"agent"`
	Approved bool   `json:"approved"`
	Error    string `json:"error,omitempty"`
}

// Run is one orchestrated probe run.
type Run struct {
	ID           string         `json:"id"`
	Probe        string         `json:"probe"`
	Repo         string         `json:"repo"`
	Severity     probe.Severity `json:"severity"`
	FindingCount int            `json:"finding_count"`
	PatchCount   int            `json:"patch_count"`
	Approvals    []RunApproval  `json:"approvals"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RecordRun appends r to the run history and trims it to the newest
// MaxRunHistory rows. Empty ID and zero CreatedAt are filled in.
func (s *Store) RecordRun(ctx context.Context, r Run) (*Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	if r.Approvals == nil {
		r.Approvals = []RunApproval{}
	}
	approvals, err := json.Marshal(r.Approvals)
	if err != nil {
		return nil, fmt.Errorf("knowledge: encode approvals: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO probe_runs (id, probe, repo, severity, finding_count, patch_count, approvals, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Probe, r.Repo, string(r.Severity), r.FindingCount, r.PatchCount, string(approvals), FormatTime(r.CreatedAt),
		); err != nil {
			return fmt.Errorf("knowledge: record run: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM probe_runs WHERE id NOT IN (
			   SELECT id FROM probe_runs ORDER BY created_at DESC, rowid DESC LIMIT ?
			 )`,
			s.cfg.MaxRunHistory,
		); err != nil {
			return fmt.Errorf("knowledge: trim run history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > s.cfg.MaxRunHistory {
		limit = s.cfg.MaxRunHistory
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, probe, repo, severity, finding_count, patch_count, approvals, created_at
		 FROM probe_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge: recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r         Run
			severity  string
			approvals string
			created   string
		)
		if err := rows.Scan(&r.ID, &r.Probe, &r.Repo, &severity, &r.FindingCount, &r.PatchCount, &approvals, &created); err != nil {
			return nil, fmt.Errorf("knowledge: scan run: %w", err)
		}
		r.Severity = probe.Severity(severity)
		r.CreatedAt, _ = ParseTime(created)
		if err := json.Unmarshal([]byte(approvals), &r.Approvals); err != nil {
			return nil, fmt.Errorf("knowledge: decode approvals for run %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
