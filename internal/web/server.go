// Package web serves the matcher UI: dataset upload, match runs, the
// filtered result table and exports.
package web

import (
	"context"
	"crypto/rand"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"

	"github.com/sells-group/brreg-matcher/internal/nace"
	"github.com/sells-group/brreg-matcher/internal/report"
	"github.com/sells-group/brreg-matcher/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultMaxUploadBytes caps one uploaded dataset.
const DefaultMaxUploadBytes = 64 << 20

// Config configures the web server.
type Config struct {
	// Password gates every page except /health and /login. Empty disables
	// the gate.
	Password       string
	AllowedOrigins []string
	MaxUploadBytes int64
	// SortByRevenue is the initial state of the sort toggle.
	SortByRevenue bool
}

// Server holds the handlers' dependencies.
type Server struct {
	cfg      Config
	sessions *session.Manager
	catalog  *nace.Catalog
	pages    *template.Template
	base     context.Context
	authKey  []byte
	upgrader websocket.Upgrader
}

// New creates a Server. Background runs started by requests live under
// ctx, so cancelling it stops them.
func New(ctx context.Context, cfg Config, sessions *session.Manager) (*Server, error) {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	pages, err := template.New("").Funcs(template.FuncMap{
		"date":  report.FormatDate,
		"count": report.FormatCount,
		"nok":   report.FormatNOK,
		"mnok":  report.FormatMNOK,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, eris.Wrap(err, "web: parse templates")
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, eris.Wrap(err, "web: generate auth key")
	}

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		catalog:  nace.Default(),
		pages:    pages,
		base:     ctx,
		authKey:  key,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	// Preflight requests carry no cookie, so CORS answers them ahead of
	// the password gate.
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           int((10 * time.Minute).Seconds()),
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(s.withSession)

		r.Get("/", s.handleIndex)
		r.Post("/datasets/{kind}", s.handleUpload)
		r.Post("/run", s.handleRun)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/export.csv", s.handleExport(exportCSV))
		r.Get("/export.xlsx", s.handleExport(exportXLSX))
		r.Get("/ws/progress", s.handleProgress)

		r.Route("/api", func(r chi.Router) {
			r.Get("/results", s.handleResults)
			r.Get("/status", s.handleStatus)
			r.Get("/nace", s.handleNACE)
		})
	})

	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	// Same host is always fine.
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
