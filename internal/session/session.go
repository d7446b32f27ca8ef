// Package session owns one user's working state: the two loaded datasets,
// the match results, the joined rows and the enrichment cache.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/dataset"
	"github.com/sells-group/brreg-matcher/internal/enrich"
	"github.com/sells-group/brreg-matcher/internal/match"
	"github.com/sells-group/brreg-matcher/internal/model"
	"github.com/sells-group/brreg-matcher/internal/normalize"
	"github.com/sells-group/brreg-matcher/internal/report"
)

var (
	// ErrNotLoaded is returned by Run before both datasets are loaded.
	ErrNotLoaded = eris.New("session: load both the CRM and the registry file first")
	// ErrRunning is returned by Start while a run is in progress.
	ErrRunning = eris.New("session: a run is already in progress")
	// ErrStale is returned by Run when a dataset was replaced while it ran.
	// The run's results are discarded.
	ErrStale = eris.New("session: datasets changed during the run, run again")
)

// Options controls matching and enrichment for a session.
type Options struct {
	Normalizer    *normalize.Normalizer
	Exclusive     bool
	SortByRevenue bool
}

// DatasetInfo describes a loaded input file.
type DatasetInfo struct {
	Name     string        `json:"name"`
	Stats    dataset.Stats `json:"stats"`
	LoadedAt time.Time     `json:"loaded_at"`
}

// Status is a snapshot of the session for the UI.
type Status struct {
	ID       string       `json:"id"`
	CRM      *DatasetInfo `json:"crm,omitempty"`
	Registry *DatasetInfo `json:"registry,omitempty"`
	Running  bool         `json:"running"`
	LastRun  *time.Time   `json:"last_run,omitempty"`
	LastErr  string       `json:"last_error,omitempty"`
	Rows     int          `json:"rows"`
}

// Session is safe for concurrent use by HTTP handlers. Runs are serialized.
type Session struct {
	ID string

	opts     Options
	enricher *enrich.Enricher // nil disables enrichment
	hub      *Hub

	mu       sync.RWMutex
	crm      []model.CRMCompany
	crmInfo  *DatasetInfo
	registry []model.RegistryCompany
	regInfo  *DatasetInfo
	gen      uint64 // bumped on every successful load
	results  []model.MatchResult
	rows     []model.Row
	lastRun  *time.Time
	lastErr  error
	running  bool
	cancel   context.CancelFunc

	runMu sync.Mutex
}

// New creates a session. enricher may be nil to skip enrichment.
func New(id string, enricher *enrich.Enricher, opts Options) *Session {
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.Default()
	}
	return &Session{
		ID:       id,
		opts:     opts,
		enricher: enricher,
		hub:      NewHub(),
	}
}

// Hub returns the session's progress hub.
func (s *Session) Hub() *Hub {
	return s.hub
}

// LoadCRM replaces the CRM dataset. On error the previous dataset is kept.
func (s *Session) LoadCRM(r io.Reader, filename string) (dataset.Stats, error) {
	crm, stats, err := dataset.LoadCRM(r, dataset.FormatFromName(filename))
	if err != nil {
		return stats, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.crm = crm
	s.crmInfo = &DatasetInfo{Name: filename, Stats: stats, LoadedAt: time.Now()}
	s.gen++
	s.clearResultsLocked()
	return stats, nil
}

// LoadRegistry replaces the registry dataset. On error the previous
// dataset is kept.
func (s *Session) LoadRegistry(r io.Reader, filename string) (dataset.Stats, error) {
	reg, stats, err := dataset.LoadRegistry(r, dataset.FormatFromName(filename))
	if err != nil {
		return stats, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = reg
	s.regInfo = &DatasetInfo{Name: filename, Stats: stats, LoadedAt: time.Now()}
	s.gen++
	s.clearResultsLocked()
	return stats, nil
}

// Loaded reports whether both datasets are present.
func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.crmInfo != nil && s.regInfo != nil
}

func (s *Session) clearResultsLocked() {
	s.results = nil
	s.rows = nil
	s.lastRun = nil
	s.lastErr = nil
}

// Run matches the datasets and enriches the result. Progress goes to the
// hub. Enrichment is cut short if ctx is cancelled; the rows then carry
// whatever figures arrived. If a dataset is replaced mid-run the results
// are dropped and ErrStale is returned.
func (s *Session) Run(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.crmInfo == nil || s.regInfo == nil {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	crm, registry, gen := s.crm, s.registry, s.gen
	s.running = true
	s.mu.Unlock()

	err := s.run(ctx, crm, registry, gen)

	s.mu.Lock()
	s.running = false
	s.lastErr = err
	s.mu.Unlock()
	return err
}

func (s *Session) run(ctx context.Context, crm []model.CRMCompany, registry []model.RegistryCompany, gen uint64) error {
	log := zap.L().With(zap.String("session", s.ID))
	start := time.Now()

	s.hub.Publish(Event{Phase: PhaseMatch, Total: len(crm), Message: "matching"})
	m := match.New(registry,
		match.WithNormalizer(s.opts.Normalizer),
		match.WithExclusive(s.opts.Exclusive),
	)
	results := m.MatchAll(crm)
	s.hub.Publish(Event{Phase: PhaseMatch, Done: len(crm), Total: len(crm), Message: "matched"})

	rows := make([]model.Row, len(results))
	orgs := make([]string, 0, len(results))
	for i, res := range results {
		rows[i] = model.Row{Match: res}
		if o := rows[i].OrgNumber(); o != "" {
			orgs = append(orgs, o)
		}
	}

	var runErr error
	if s.enricher != nil {
		figures, err := s.enricher.EnrichAll(ctx, orgs, func(done, total int) {
			s.hub.Publish(Event{Phase: PhaseEnrich, Done: done, Total: total})
		})
		if err != nil {
			runErr = eris.Wrap(err, "session: enrich")
		}
		for i := range rows {
			if e, ok := figures[rows[i].OrgNumber()]; ok {
				rows[i].Enrichment = e
			} else {
				rows[i].Enrichment = model.Enrichment{OrgNumber: rows[i].OrgNumber()}
			}
		}
	} else {
		for i := range rows {
			rows[i].Enrichment = model.Enrichment{OrgNumber: rows[i].OrgNumber()}
		}
	}

	if s.opts.SortByRevenue {
		rows = report.SortByRevenue(rows)
	}

	now := time.Now()
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.hub.Publish(Event{Phase: PhaseError, Message: ErrStale.Error()})
		log.Info("session: run discarded, datasets replaced")
		return ErrStale
	}
	s.results = results
	s.rows = rows
	s.lastRun = &now
	s.mu.Unlock()

	if runErr != nil {
		s.hub.Publish(Event{Phase: PhaseError, Message: runErr.Error()})
		log.Warn("session: run incomplete", zap.Error(runErr))
		return runErr
	}

	s.hub.Publish(Event{Phase: PhaseDone, Done: len(rows), Total: len(rows)})
	log.Info("session: run complete",
		zap.Int("crm_rows", len(crm)),
		zap.Int("registry_rows", len(registry)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Start runs in the background under ctx. It fails fast when the datasets
// are missing or a run is already going.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.crmInfo == nil || s.regInfo == nil {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	go func() {
		defer cancel()
		if err := s.Run(runCtx); err != nil {
			zap.L().Warn("session: background run failed", zap.String("session", s.ID), zap.Error(err))
		}
	}()
	return nil
}

// Refresh drops cached enrichment, including the persistent store's
// entries for this session's lookups, and runs again.
func (s *Session) Refresh(ctx context.Context) error {
	if s.enricher != nil {
		s.enricher.Invalidate()
	}
	return s.Run(ctx)
}

// StartRefresh is Refresh in the background, with the checks of Start.
func (s *Session) StartRefresh(ctx context.Context) error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if running {
		return ErrRunning
	}
	if s.enricher != nil {
		s.enricher.Invalidate()
	}
	return s.Start(ctx)
}

// Close cancels a background run.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Results returns the match results of the last run.
func (s *Session) Results() []model.MatchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results
}

// Rows returns the joined rows of the last run that pass f.
func (s *Session) Rows(f report.Filter) []model.Row {
	s.mu.RLock()
	rows := s.rows
	s.mu.RUnlock()
	return report.Apply(rows, f)
}

// Status returns a snapshot for display.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		ID:       s.ID,
		CRM:      s.crmInfo,
		Registry: s.regInfo,
		Running:  s.running,
		LastRun:  s.lastRun,
		Rows:     len(s.rows),
	}
	if s.lastErr != nil {
		st.LastErr = s.lastErr.Error()
	}
	return st
}
