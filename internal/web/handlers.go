package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/dataset"
	"github.com/sells-group/brreg-matcher/internal/model"
	"github.com/sells-group/brreg-matcher/internal/nace"
	"github.com/sells-group/brreg-matcher/internal/report"
	"github.com/sells-group/brreg-matcher/internal/session"
)

type exportFormat int

const (
	exportCSV exportFormat = iota
	exportXLSX
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// stageOption is one entry of the stage multiselect.
type stageOption struct {
	Value   model.MatchStage
	Label   string
	Count   int
	Checked bool
}

type indexPage struct {
	Status        session.Status
	Summary       report.Summary
	Rows          []model.Row
	Catalog       *nace.Catalog
	Selected      map[string]bool
	Stages        []stageOption
	EmpMin        string
	EmpMax        string
	RevMin        string
	RevMax        string
	ProfitMin     string
	ProfitMax     string
	SortByRevenue bool
	ExportCSV     template.URL
	ExportXLSX    template.URL
	Error         string
	Gated         bool
}

type resultsResponse struct {
	Status  session.Status `json:"status"`
	Summary report.Summary `json:"summary"`
	Rows    []model.Row    `json:"rows"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.authenticated(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "login.html", map[string]string{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Password == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	given := r.PostFormValue("password")
	if subtle.ConstantTimeCompare([]byte(given), []byte(s.cfg.Password)) != 1 {
		zap.L().Warn("web: failed login", zap.String("remote", r.RemoteAddr))
		s.render(w, http.StatusUnauthorized, "login.html", map[string]string{"Error": "Feil passord"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    s.authToken(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.Delete(c.Value)
	}
	for _, name := range []string{authCookie, sessionCookie} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
	target := "/"
	if s.cfg.Password != "" {
		target = "/login"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, http.StatusOK, "")
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	sess := sessionFrom(r)
	q := r.URL.Query()

	vq, err := parseQuery(q, s.catalog, s.cfg.SortByRevenue)
	if err != nil && errMsg == "" {
		status, errMsg = http.StatusBadRequest, err.Error()
	}
	rows := s.rows(sess, vq)

	page := indexPage{
		Status:        sess.Status(),
		Summary:       report.Summarize(rows),
		Rows:          rows,
		Catalog:       s.catalog,
		Selected:      make(map[string]bool, len(vq.Filter.IndustryCodes)),
		EmpMin:        q.Get(paramEmpMin),
		EmpMax:        q.Get(paramEmpMax),
		RevMin:        q.Get(paramRevMin),
		RevMax:        q.Get(paramRevMax),
		ProfitMin:     q.Get(paramPftMin),
		ProfitMax:     q.Get(paramPftMax),
		SortByRevenue: vq.SortByRevenue,
		ExportCSV:     exportURL("/export.csv", q),
		ExportXLSX:    exportURL("/export.xlsx", q),
		Error:         errMsg,
		Gated:         s.cfg.Password != "",
	}
	for _, c := range vq.Filter.IndustryCodes {
		page.Selected[c] = true
	}
	checked := make(map[model.MatchStage]bool, len(vq.Filter.Stages))
	for _, st := range vq.Filter.Stages {
		checked[st] = true
	}
	for _, st := range model.Stages {
		page.Stages = append(page.Stages, stageOption{
			Value:   st,
			Label:   st.Label(),
			Count:   page.Summary.ByStage[st],
			Checked: checked[st],
		})
	}

	s.render(w, status, "index.html", page)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var load func(io.Reader, string) (dataset.Stats, error)
	kind := chi.URLParam(r, "kind")
	switch kind {
	case "crm":
		load = sess.LoadCRM
	case "registry":
		load = sess.LoadRegistry
	default:
		writeError(w, http.StatusNotFound, "unknown dataset "+kind)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, eris.Wrap(err, "web: read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	stats, err := load(file, header.Filename)
	if err != nil {
		status := http.StatusBadRequest
		if dataset.IsSchemaError(err) {
			status = http.StatusUnprocessableEntity
		}
		s.fail(w, r, status, err)
		return
	}

	zap.L().Info("web: dataset loaded",
		zap.String("session", sess.ID),
		zap.String("dataset", kind),
		zap.String("file", header.Filename),
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped),
	)
	s.done(w, r, http.StatusOK, map[string]any{
		"dataset": kind,
		"file":    header.Filename,
		"stats":   stats,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	s.start(w, r, sessionFrom(r).Start)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.start(w, r, sessionFrom(r).StartRefresh)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request, run func(context.Context) error) {
	if err := run(s.base); err != nil {
		switch {
		case errors.Is(err, session.ErrRunning):
			s.fail(w, r, http.StatusConflict, err)
		case errors.Is(err, session.ErrNotLoaded):
			s.fail(w, r, http.StatusBadRequest, err)
		default:
			s.fail(w, r, http.StatusInternalServerError, err)
		}
		return
	}
	s.done(w, r, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleExport(format exportFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vq, err := parseQuery(r.URL.Query(), s.catalog, s.cfg.SortByRevenue)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rows := s.rows(sessionFrom(r), vq)
		name := "matches-" + time.Now().Format("20060102")

		switch format {
		case exportXLSX:
			w.Header().Set("Content-Type", xlsxContentType)
			w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.xlsx"`)
			err = report.WriteXLSX(w, rows)
		default:
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.csv"`)
			err = report.WriteCSV(w, rows)
		}
		if err != nil {
			zap.L().Error("web: export failed", zap.Error(err))
		}
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	vq, err := parseQuery(r.URL.Query(), s.catalog, s.cfg.SortByRevenue)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows := s.rows(sess, vq)
	if rows == nil {
		rows = []model.Row{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{
		Status:  sess.Status(),
		Summary: report.Summarize(rows),
		Rows:    rows,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r).Status())
}

func (s *Server) handleNACE(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog)
}

func (s *Server) rows(sess *session.Session, vq viewQuery) []model.Row {
	rows := sess.Rows(vq.Filter)
	if vq.SortByRevenue {
		rows = report.SortByRevenue(rows)
	}
	return rows
}

// done answers a successful form post: JSON for API callers, otherwise a
// redirect back to the page.
func (s *Server) done(w http.ResponseWriter, r *http.Request, status int, body any) {
	if wantsJSON(r) {
		writeJSON(w, status, body)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// fail shows err to the user on the page it came from.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("web: request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	if wantsJSON(r) {
		writeError(w, status, err.Error())
		return
	}
	s.renderIndex(w, r, status, err.Error())
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		zap.L().Error("web: render template", zap.String("template", name), zap.Error(err))
	}
}

// exportURL carries the current filters over to a download link.
func exportURL(path string, q url.Values) template.URL {
	if len(q) == 0 {
		return template.URL(path)
	}
	return template.URL(path + "?" + q.Encode()) //nolint:gosec
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
