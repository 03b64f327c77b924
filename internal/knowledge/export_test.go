package knowledge

import (
	"database/sql"
	"errors"
	"time"
)

// DB exposes the internal *sql.DB for test helpers in knowledge_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetClock replaces the store clock.
func (s *Store) SetClock(fn func() time.Time) {
	s.now = fn
}

// FailCommits makes every following transaction fail at commit.
func (s *Store) FailCommits() {
	s.hooks.commit = func(tx *sql.Tx) error {
		_ = tx.Rollback()
		return errors.New("injected commit failure")
	}
}
