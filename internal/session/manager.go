package session

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/dataset"
	"github.com/sells-group/brreg-matcher/internal/enrich"
)

// ManagerConfig bounds how many sessions live at once and for how long.
type ManagerConfig struct {
	MaxSessions int
	TTL         time.Duration

	// Files loaded into every new session when set.
	DefaultCRMPath      string
	DefaultRegistryPath string

	Options Options
}

// EnricherFactory builds the per-session enricher. Returning nil disables
// enrichment for the session.
type EnricherFactory func() *enrich.Enricher

// Manager keeps sessions in an LRU that also expires idle entries.
// Evicted sessions have their background run cancelled.
type Manager struct {
	cfg         ManagerConfig
	sessions    *expirable.LRU[string, *Session]
	newEnricher EnricherFactory
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig, newEnricher EnricherFactory) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if newEnricher == nil {
		newEnricher = func() *enrich.Enricher { return nil }
	}
	onEvict := func(id string, s *Session) {
		zap.L().Debug("session: evicted", zap.String("session", id))
		s.Close()
	}
	return &Manager{
		cfg:         cfg,
		sessions:    expirable.NewLRU[string, *Session](cfg.MaxSessions, onEvict, cfg.TTL),
		newEnricher: newEnricher,
	}
}

// Create starts a new session and preloads the default datasets. A
// default file that fails to load is logged and skipped.
func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.newEnricher(), m.cfg.Options)

	if p := m.cfg.DefaultCRMPath; p != "" {
		if err := preload(p, s.LoadCRM); err != nil {
			zap.L().Warn("session: default CRM file not loaded", zap.String("path", p), zap.Error(err))
		}
	}
	if p := m.cfg.DefaultRegistryPath; p != "" {
		if err := preload(p, s.LoadRegistry); err != nil {
			zap.L().Warn("session: default registry file not loaded", zap.String("path", p), zap.Error(err))
		}
	}

	m.sessions.Add(s.ID, s)
	return s
}

// Get returns a live session. Lookups refresh its recency, not its TTL.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	return m.sessions.Get(id)
}

// GetOrCreate returns the session for id, or a new one when id is unknown
// or expired. created tells the caller to hand out the new id.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if s, ok := m.Get(id); ok {
		return s, false
	}
	return m.Create(), true
}

// Delete drops a session and cancels its run.
func (m *Manager) Delete(id string) {
	m.sessions.Remove(id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Purge drops every session.
func (m *Manager) Purge() {
	m.sessions.Purge()
}

func preload(path string, load func(r io.Reader, filename string) (dataset.Stats, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "session: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	_, err = load(f, path)
	return err
}
