package storage

import (
	"context"
	"fmt"
	"strings"

	"CollectiveLedger/internal/ports"
)

// Store is a repository backend that serves both record kinds.
type Store interface {
	ports.ContributionRepository
	ports.PayoutRepository
	Close() error
}

// Options selects and locates a backend.
type Options struct {
	Driver string
	DSN    string
	Path   string
}

// Open builds the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "bolt", "bbolt":
		return OpenBolt(opts.Path)
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		return OpenSQL(ctx, DialectPostgres, opts.DSN)
	case "sqlite":
		return OpenSQL(ctx, DialectSQLite, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
