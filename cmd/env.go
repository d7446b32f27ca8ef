package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/enrich"
	"github.com/sells-group/brreg-matcher/internal/normalize"
	"github.com/sells-group/brreg-matcher/internal/resilience"
	"github.com/sells-group/brreg-matcher/internal/session"
	"github.com/sells-group/brreg-matcher/internal/store"
	"github.com/sells-group/brreg-matcher/pkg/brreg"
)

// appEnv holds the clients and stores shared by the serve, match and
// lookup commands.
type appEnv struct {
	Store      store.Store // nil when no persistent cache is configured
	Registry   brreg.Client
	Normalizer *normalize.Normalizer
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode and builds the shared components.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	return &appEnv{
		Store:      st,
		Registry:   newRegistryClient(),
		Normalizer: newNormalizer(),
	}, nil
}

// initStore opens the persistent enrichment cache. It returns nil when
// the store driver is unset.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DSN:         cfg.Store.DSN,
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool: &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if st != nil {
		zap.L().Info("persistent cache enabled", zap.String("driver", cfg.Store.Driver))
	}
	return st, nil
}

func newRegistryClient() brreg.Client {
	policy := resilience.DefaultPolicy()
	policy.Retries = cfg.Registry.Retries
	if cfg.Registry.BackoffMs > 0 {
		policy.Backoff = time.Duration(cfg.Registry.BackoffMs) * time.Millisecond
	}

	opts := []brreg.Option{
		brreg.WithTimeout(time.Duration(cfg.Registry.TimeoutSecs) * time.Second),
		brreg.WithRetryPolicy(policy),
		brreg.WithRateLimit(cfg.Registry.RateLimit, cfg.Registry.Burst),
	}
	if cfg.Registry.UnitsURL != "" {
		opts = append(opts, brreg.WithUnitsBaseURL(cfg.Registry.UnitsURL))
	}
	if cfg.Registry.AccountsURL != "" {
		opts = append(opts, brreg.WithAccountsBaseURL(cfg.Registry.AccountsURL))
	}
	if cfg.Registry.UserAgent != "" {
		opts = append(opts, brreg.WithUserAgent(cfg.Registry.UserAgent))
	}
	return brreg.NewClient(opts...)
}

func newNormalizer() *normalize.Normalizer {
	if len(cfg.Matcher.LegalSuffixes) == 0 && len(cfg.Matcher.NoiseWords) == 0 {
		return normalize.Default()
	}
	suffixes := cfg.Matcher.LegalSuffixes
	if len(suffixes) == 0 {
		suffixes = normalize.DefaultLegalSuffixes
	}
	noise := cfg.Matcher.NoiseWords
	if len(noise) == 0 {
		noise = normalize.DefaultNoiseWords
	}
	return normalize.New(suffixes, noise)
}

// newEnricher returns a fresh enricher, or nil when enrichment is off.
func (e *appEnv) newEnricher() *enrich.Enricher {
	if !cfg.Enrich.Enabled {
		return nil
	}
	opts := []enrich.Option{enrich.WithRevenue(cfg.Enrich.Revenue)}
	if cfg.Enrich.Workers > 0 {
		opts = append(opts, enrich.WithWorkers(cfg.Enrich.Workers))
	}
	if e.Store != nil {
		opts = append(opts, enrich.WithStore(e.Store, time.Duration(cfg.Enrich.CacheTTLHours)*time.Hour))
	}
	return enrich.New(e.Registry, opts...)
}

func (e *appEnv) sessionOptions() session.Options {
	return session.Options{
		Normalizer: e.Normalizer,
		Exclusive:  cfg.Matcher.Exclusive,
	}
}
