// Package maintenance runs the explicit aging cycle over pattern stores.
package maintenance

import (
	"context"
	"fmt"
	"time"
)

// DefaultMaxAgeDays is the age after which patterns and lineage are pruned.
const DefaultMaxAgeDays = 180

// Pruner is a store that can drop rows created before a cutoff.
type Pruner interface {
	PrunePatterns(ctx context.Context, cutoff time.Time) (int64, error)
	PruneLineage(ctx context.Context, cutoff time.Time) (int64, error)
}

// Target names a store to prune.
type Target struct {
	Name  string
	Store Pruner
}

// Counts is how many rows one target lost.
type Counts struct {
	Target   string `json:"target"`
	Patterns int64  `json:"patterns"`
	Lineage  int64  `json:"lineage"`
}

// Report summarizes one aging cycle.
type Report struct {
	Cutoff  time.Time `json:"cutoff"`
	Targets []Counts  `json:"targets"`
}

// Total returns the number of rows deleted across all targets.
func (r Report) Total() int64 {
	var n int64
	for _, c := range r.Targets {
		n += c.Patterns + c.Lineage
	}
	return n
}

// Cutoff returns now minus maxAgeDays whole days.
func Cutoff(now time.Time, maxAgeDays int) time.Time {
	return now.Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
}

// Cycle prunes patterns, then lineage, for every target in order. Rows
// created strictly before the cutoff are deleted regardless of their
// counters; no cascading happens between the two tables. Running it again
// with the same cutoff deletes nothing. The report covers every target
// pruned before a failure.
func Cycle(ctx context.Context, now time.Time, maxAgeDays int, targets ...Target) (Report, error) {
	if maxAgeDays < 0 {
		return Report{}, fmt.Errorf("maintenance: negative max age %d", maxAgeDays)
	}
	report := Report{Cutoff: Cutoff(now, maxAgeDays)}
	for _, t := range targets {
		c := Counts{Target: t.Name}
		var err error
		if c.Patterns, err = t.Store.PrunePatterns(ctx, report.Cutoff); err != nil {
			return report, fmt.Errorf("maintenance: prune %s patterns: %w", t.Name, err)
		}
		if c.Lineage, err = t.Store.PruneLineage(ctx, report.Cutoff); err != nil {
			report.Targets = append(report.Targets, c)
			return report, fmt.Errorf("maintenance: prune %s lineage: %w", t.Name, err)
		}
		report.Targets = append(report.Targets, c)
	}
	return report, nil
}
