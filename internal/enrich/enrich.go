// Package enrich attaches employee counts, revenue and profit from the
// registry APIs to matched companies.
package enrich

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/brreg-matcher/internal/model"
	"github.com/sells-group/brreg-matcher/internal/orgnr"
	"github.com/sells-group/brreg-matcher/internal/store"
	"github.com/sells-group/brreg-matcher/pkg/brreg"
)

// Source answers registry lookups. A nil result with a nil error means
// the registry has no figure. brreg.Client implements it.
type Source interface {
	Employees(ctx context.Context, orgNumber string) (*int, error)
	Accounts(ctx context.Context, orgNumber string) (*brreg.Accounts, error)
}

// DefaultCacheTTL is how long persisted lookups stay valid.
const DefaultCacheTTL = 24 * time.Hour

// DefaultWorkers mirrors the usual I/O-bound sizing: four per CPU, at most 32.
func DefaultWorkers() int {
	return min(32, runtime.NumCPU()*4)
}

// ProgressFunc is called after each org number completes.
type ProgressFunc func(done, total int)

// Option configures an Enricher.
type Option func(*Enricher)

// WithStore adds a persistent cache consulted before the network.
func WithStore(st store.Store, ttl time.Duration) Option {
	return func(e *Enricher) {
		e.store = st
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithWorkers bounds concurrent lookups in EnrichAll.
func WithWorkers(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRevenue toggles the accounts lookup.
func WithRevenue(enabled bool) Option {
	return func(e *Enricher) {
		e.revenue = enabled
	}
}

// Enricher looks up and caches registry figures per org number. Its cache
// belongs to whoever owns the Enricher, normally one session.
type Enricher struct {
	src     Source
	store   store.Store
	ttl     time.Duration
	workers int
	revenue bool

	mu    sync.RWMutex
	cache map[string]model.Enrichment
	group singleflight.Group

	skipStoreRead atomic.Bool
}

// New creates an Enricher over src.
func New(src Source, opts ...Option) *Enricher {
	e := &Enricher{
		src:     src,
		ttl:     DefaultCacheTTL,
		workers: DefaultWorkers(),
		revenue: true,
		cache:   make(map[string]model.Enrichment),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich returns the figures for one org number. It never fails: a field
// whose lookup failed is left nil. Invalid org numbers are answered
// without a request.
func (e *Enricher) Enrich(ctx context.Context, orgNumber string) model.Enrichment {
	org := orgnr.Clean(orgNumber)
	if !orgnr.Valid(org) {
		return model.Enrichment{OrgNumber: org}
	}

	if cached, ok := e.cached(org); ok {
		return cached
	}

	v, _, _ := e.group.Do(org, func() (any, error) {
		if cached, ok := e.cached(org); ok {
			return cached, nil
		}
		res, fresh := e.lookup(ctx, org)
		if ctx.Err() == nil {
			e.mu.Lock()
			e.cache[org] = res
			e.mu.Unlock()
		}
		if fresh {
			e.persist(ctx, res)
		}
		return res, nil
	})
	return v.(model.Enrichment)
}

// EnrichAll enriches each distinct org number using up to the configured
// number of workers. It returns early only when ctx is cancelled, with
// whatever finished.
func (e *Enricher) EnrichAll(ctx context.Context, orgNumbers []string, progress ProgressFunc) (map[string]model.Enrichment, error) {
	unique := make([]string, 0, len(orgNumbers))
	seen := make(map[string]bool, len(orgNumbers))
	for _, o := range orgNumbers {
		o = orgnr.Clean(o)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		unique = append(unique, o)
	}

	out := make(map[string]model.Enrichment, len(unique))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, o := range unique {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := e.Enrich(gctx, o)

			mu.Lock()
			out[o] = res
			done++
			n := done
			mu.Unlock()

			if progress != nil {
				progress(n, len(unique))
			}
			return nil
		})
	}
	err := g.Wait()

	zap.L().Info("enrich: batch complete",
		zap.Int("requested", len(orgNumbers)),
		zap.Int("unique", len(unique)),
		zap.Int("done", len(out)),
		zap.Bool("cancelled", err != nil),
	)
	return out, err
}

// Reset drops the in-memory cache so the next lookups go to the store or
// the network again.
func (e *Enricher) Reset() {
	e.skipStoreRead.Store(false)
	e.dropCache()
}

// Invalidate drops the in-memory cache and stops reading the persistent
// store until the next Reset, so every org number is fetched from the
// registry again. Fresh results still overwrite the stored entries.
func (e *Enricher) Invalidate() {
	e.skipStoreRead.Store(true)
	e.dropCache()
}

func (e *Enricher) dropCache() {
	e.mu.Lock()
	e.cache = make(map[string]model.Enrichment)
	e.mu.Unlock()
}

// Len returns the number of cached org numbers.
func (e *Enricher) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func (e *Enricher) cached(org string) (model.Enrichment, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	res, ok := e.cache[org]
	return res, ok
}

// lookup consults the store, then the registry. fresh reports a full,
// error-free registry lookup, the only kind worth persisting.
func (e *Enricher) lookup(ctx context.Context, org string) (res model.Enrichment, fresh bool) {
	log := zap.L().With(zap.String("org_number", org))

	if e.store != nil && !e.skipStoreRead.Load() {
		hit, err := e.store.GetEnrichment(ctx, org)
		if err != nil {
			log.Warn("enrich: store read failed", zap.Error(err))
		} else if hit != nil {
			return *hit, false
		}
	}

	res = model.Enrichment{OrgNumber: org}
	fresh = e.revenue

	n, err := e.src.Employees(ctx, org)
	if err != nil {
		log.Warn("enrich: employees lookup failed", zap.Error(err))
		fresh = false
	} else {
		res.Employees = n
	}

	if !e.revenue {
		return res, false
	}

	acc, err := e.src.Accounts(ctx, org)
	switch {
	case err != nil:
		log.Warn("enrich: accounts lookup failed", zap.Error(err))
		fresh = false
	case acc != nil:
		res.Revenue = toMNOK(acc.Revenue)
		res.Profit = toMNOK(acc.Profit)
		res.FiscalYear = acc.Year
		if acc.Currency != "" && acc.Currency != "NOK" {
			log.Debug("enrich: accounts not in NOK", zap.String("currency", acc.Currency))
		}
	}
	return res, fresh
}

func toMNOK(nok *float64) *float64 {
	if nok == nil {
		return nil
	}
	mnok := *nok / 1_000_000
	return &mnok
}

func (e *Enricher) persist(ctx context.Context, res model.Enrichment) {
	if e.store == nil {
		return
	}
	if err := e.store.PutEnrichment(ctx, res, e.ttl); err != nil {
		zap.L().Warn("enrich: store write failed",
			zap.String("org_number", res.OrgNumber),
			zap.Error(err),
		)
	}
}
