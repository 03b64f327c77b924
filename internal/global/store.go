// Package global holds the cross-repository pattern store that recurring
// local patterns and probe lineage are promoted into.
package global

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HendryAvila/hexprobe/internal/knowledge"
)

// Backends supported by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Store is the global knowledge base.
type Store interface {
	// PromotePattern inserts a full copy of p, or increments trigger_count
	// of the existing row. Content fields are never overwritten.
	PromotePattern(ctx context.Context, p knowledge.Pattern) error
	// PromoteLineage upserts l by probe id, replacing any existing row.
	PromoteLineage(ctx context.Context, l knowledge.Lineage) error

	GetPattern(ctx context.Context, id string) (*knowledge.Pattern, error)
	GetLineage(ctx context.Context, probeID string) (*knowledge.Lineage, error)
	ProbeOrigin(ctx context.Context, probeID string) ([]knowledge.Origin, error)

	PrunePatterns(ctx context.Context, cutoff time.Time) (int64, error)
	PruneLineage(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// Config selects and configures the global backend.
type Config struct {
	Backend string
	// Dir holds global.db for the sqlite backend.
	Dir string
	// DSN is the connection string for the postgres backend.
	DSN string
}

// DefaultConfig returns a sqlite backend under ~/.hexprobe/global.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Backend: BackendSQLite,
		Dir:     filepath.Join(home, ".hexprobe", "global"),
	}
}

// Open returns the backend named by cfg.Backend. The sqlite backend defers
// opening its database until first use; postgres connects immediately.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendSQLite:
		return NewSQLiteStore(cfg.Dir), nil
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("global: unknown backend %q", cfg.Backend)
	}
}
