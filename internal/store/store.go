// Package store persists registry lookups between runs so repeated
// sessions do not hit the registry APIs for the same org numbers.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/brreg-matcher/internal/model"
)

// Store is a TTL cache of enrichment figures keyed by org number.
// Implementations are safe for concurrent use.
type Store interface {
	// GetEnrichment returns the cached entry, or nil when missing or expired.
	GetEnrichment(ctx context.Context, orgNumber string) (*model.Enrichment, error)
	// PutEnrichment inserts or replaces the entry for e.OrgNumber.
	PutEnrichment(ctx context.Context, e model.Enrichment, ttl time.Duration) error
	// DeleteExpired removes expired entries and returns how many went.
	DeleteExpired(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures the backing database.
type Config struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"` // "", "sqlite" or "postgres"
	DSN         string      `yaml:"dsn" mapstructure:"dsn"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open connects to the configured store and runs migrations. It returns
// nil, nil when no driver is configured.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		st, err = NewSQLite(cfg.DSN)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
