package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/brreg-matcher/internal/enrich"
	"github.com/sells-group/brreg-matcher/internal/session"
	"github.com/sells-group/brreg-matcher/pkg/brreg"
)

const crmCSV = `Company name,Organisasjonsnummer,Record ID,Last Activity Date
Equinor,923609016,1,2024-01-02
Acme Holding AS,,2,
Nobody AS,,3,
`

const registryCSV = `organisasjonsnummer,navn,naeringskode1.kode,naeringskode1.beskrivelse
923609016,EQUINOR ASA,06.100,Utvinning av råolje og naturgass
984851006,ACME,41.200,Oppføring av bygninger
`

type fakeSource struct{}

func (fakeSource) Employees(_ context.Context, _ string) (*int, error) {
	n := 42
	return &n, nil
}

func (fakeSource) Accounts(_ context.Context, _ string) (*brreg.Accounts, error) {
	rev, profit := 12_000_000.0, -1_500_000.0
	return &brreg.Accounts{Revenue: &rev, Profit: &profit}, nil
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	mgr := session.NewManager(session.ManagerConfig{MaxSessions: 4, TTL: time.Hour},
		func() *enrich.Enricher { return enrich.New(fakeSource{}, enrich.WithWorkers(2)) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s, err := New(ctx, cfg, mgr)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{srv: srv, client: client}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func (e *testEnv) upload(t *testing.T, kind, filename, content string, asJSON bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	h := http.Header{"Content-Type": {mw.FormDataContentType()}}
	if asJSON {
		h.Set("Accept", "application/json")
	}
	return e.do(t, http.MethodPost, "/datasets/"+kind, &buf, h)
}

func (e *testEnv) results(t *testing.T, query string) resultsJSON {
	t.Helper()
	resp := e.do(t, http.MethodGet, "/api/results?"+query, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out resultsJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// loadAndRun uploads both datasets and waits for the run to finish.
func (e *testEnv) loadAndRun(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusOK, e.upload(t, "crm", "hubspot.csv", crmCSV, true).StatusCode)
	require.Equal(t, http.StatusOK, e.upload(t, "registry", "brreg.csv", registryCSV, true).StatusCode)

	resp := e.do(t, http.MethodPost, "/run", nil, http.Header{"Accept": {"application/json"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		r := e.results(t, "")
		return !r.Status.Running && r.Status.LastRun != nil
	}, 5*time.Second, 10*time.Millisecond)
}

type resultsJSON struct {
	Status struct {
		ID      string     `json:"id"`
		Running bool       `json:"running"`
		LastRun *time.Time `json:"last_run"`
		Rows    int        `json:"rows"`
	} `json:"status"`
	Summary struct {
		Total   int            `json:"total"`
		Matched int            `json:"matched"`
		ByStage map[string]int `json:"by_stage"`
	} `json:"summary"`
	Rows []struct {
		Match struct {
			Stage string `json:"stage"`
		} `json:"match"`
		Enrichment struct {
			Employees *int     `json:"employees"`
			Revenue   *float64 `json:"revenue_mnok"`
			Profit    *float64 `json:"profit_mnok"`
		} `json:"enrichment"`
	} `json:"rows"`
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestIndex_SetsSessionCookie(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp := env.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			found = true
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found)

	// the cookie is reused on the next request
	resp = env.do(t, http.MethodGet, "/", nil, nil)
	assert.Empty(t, resp.Cookies())
}

func TestRun_EndToEnd(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadAndRun(t)

	out := env.results(t, "")
	assert.Equal(t, 3, out.Summary.Total)
	assert.Equal(t, 2, out.Summary.Matched)
	assert.Equal(t, 1, out.Summary.ByStage["org_number"])
	assert.Equal(t, 1, out.Summary.ByStage["name_no_suffix_no_noise"])
	require.Len(t, out.Rows, 3)
	assert.Equal(t, "org_number", out.Rows[0].Match.Stage)
	require.NotNil(t, out.Rows[0].Enrichment.Employees)
	assert.Equal(t, 42, *out.Rows[0].Enrichment.Employees)
	require.NotNil(t, out.Rows[0].Enrichment.Revenue)
	assert.InDelta(t, 12.0, *out.Rows[0].Enrichment.Revenue, 1e-9)
	require.NotNil(t, out.Rows[0].Enrichment.Profit)
	assert.InDelta(t, -1.5, *out.Rows[0].Enrichment.Profit, 1e-9)

	page := env.do(t, http.MethodGet, "/", nil, nil)
	body, err := io.ReadAll(page.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "EQUINOR ASA")
	assert.Contains(t, string(body), "ikke", "unenriched rows show the absent marker")
}

func TestResults_Filters(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadAndRun(t)

	out := env.results(t, "nace=41")
	assert.Len(t, out.Rows, 1)

	out = env.results(t, "preset=construction")
	assert.Len(t, out.Rows, 1)

	out = env.results(t, "stage=none")
	assert.Len(t, out.Rows, 1)

	out = env.results(t, "emp_min=0&rev_max=0")
	assert.Len(t, out.Rows, 3, "zero bounds are no limit")

	out = env.results(t, "emp_min=50")
	assert.Empty(t, out.Rows)

	out = env.results(t, "profit_min=-2")
	assert.Len(t, out.Rows, 2, "rows without a profit figure are excluded")

	out = env.results(t, "profit_min=-1")
	assert.Empty(t, out.Rows)

	out = env.results(t, "profit_max=-1")
	assert.Len(t, out.Rows, 2)
}

func TestResults_BadFilter(t *testing.T) {
	env := newTestEnv(t, Config{})
	for _, q := range []string{"emp_min=abc", "rev_max=-1", "stage=fuzzy", "preset=nope", "sort=name"} {
		resp := env.do(t, http.MethodGet, "/api/results?"+q, nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestUpload_SchemaError(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp := env.upload(t, "registry", "brreg.csv", "organisasjonsnummer,navn\n1,x\n", true)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "naeringskode1.kode")

	// the HTML form gets the page back with the message
	resp = env.upload(t, "crm", "hubspot.csv", "Name\nx\n", false)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Company name")
}

func TestUpload_FormRedirects(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp := env.upload(t, "crm", "hubspot.csv", crmCSV, false)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestUpload_UnknownDataset(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp := env.upload(t, "other", "x.csv", crmCSV, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t, Config{MaxUploadBytes: 16})
	resp := env.upload(t, "crm", "hubspot.csv", crmCSV, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRun_NotLoaded(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp := env.do(t, http.MethodPost, "/run", nil, http.Header{"Accept": {"application/json"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadAndRun(t)

	resp := env.do(t, http.MethodPost, "/refresh", nil, http.Header{"Accept": {"application/json"}})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Eventually(t, func() bool {
		return !env.results(t, "").Status.Running
	}, 5*time.Second, 10*time.Millisecond)
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadAndRun(t)

	resp := env.do(t, http.MethodGet, "/export.csv?stage=org_number", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".csv")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.HasPrefix(text, "\ufeffCRM name,"))
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "EQUINOR ASA")
}

func TestExportXLSX(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadAndRun(t)

	resp := env.do(t, http.MethodGet, "/export.xlsx", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("PK")), "xlsx is a zip file")
}

func TestNACE(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp := env.do(t, http.MethodGet, "/api/nace", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cat struct {
		Sections []struct {
			Code string `json:"code"`
		} `json:"sections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cat))
	assert.Len(t, cat.Sections, 20)
}

func TestPasswordGate(t *testing.T) {
	env := newTestEnv(t, Config{Password: "hemmelig"})

	resp := env.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = env.do(t, http.MethodGet, "/api/results", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	form := func(pw string) (io.Reader, http.Header) {
		return strings.NewReader(url.Values{"password": {pw}}.Encode()),
			http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	}

	body, h := form("wrong")
	resp = env.do(t, http.MethodPost, "/login", body, h)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body, h = form("hemmelig")
	resp = env.do(t, http.MethodPost, "/login", body, h)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/logout", nil, nil)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	resp = env.do(t, http.MethodGet, "/api/results", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogout_DropsSession(t *testing.T) {
	env := newTestEnv(t, Config{})
	require.Equal(t, http.StatusOK, env.upload(t, "crm", "hubspot.csv", crmCSV, true).StatusCode)
	before := env.results(t, "").Status.ID

	env.do(t, http.MethodPost, "/logout", nil, nil)
	after := env.results(t, "").Status.ID
	assert.NotEqual(t, before, after)
}

func TestProgressWebSocket(t *testing.T) {
	env := newTestEnv(t, Config{})
	require.Equal(t, http.StatusOK, env.upload(t, "crm", "hubspot.csv", crmCSV, true).StatusCode)
	require.Equal(t, http.StatusOK, env.upload(t, "registry", "brreg.csv", registryCSV, true).StatusCode)

	u, err := url.Parse(env.srv.URL)
	require.NoError(t, err)
	header := http.Header{}
	for _, c := range env.client.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
	}

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	resp := env.do(t, http.MethodPost, "/run", nil, http.Header{"Accept": {"application/json"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var phases []session.Phase
	for {
		var evt session.Event
		require.NoError(t, conn.ReadJSON(&evt))
		phases = append(phases, evt.Phase)
		if evt.Phase == session.PhaseDone {
			break
		}
	}
	assert.Equal(t, session.PhaseMatch, phases[0])
	assert.Contains(t, phases, session.PhaseEnrich)
}

func TestCheckOrigin(t *testing.T) {
	s := &Server{cfg: Config{AllowedOrigins: []string{"https://crm.example.no"}}}

	r := httptest.NewRequest(http.MethodGet, "http://matcher.local/ws/progress", nil)
	assert.True(t, s.checkOrigin(r))

	r.Header.Set("Origin", "https://crm.example.no")
	assert.True(t, s.checkOrigin(r))

	r.Header.Set("Origin", "http://matcher.local")
	assert.True(t, s.checkOrigin(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, s.checkOrigin(r))
}

func TestCORSPreflightBeforePasswordGate(t *testing.T) {
	env := newTestEnv(t, Config{Password: "hemmelig", AllowedOrigins: []string{"https://crm.example.no"}})

	resp := env.do(t, http.MethodOptions, "/api/results", nil, http.Header{
		"Origin":                        {"https://crm.example.no"},
		"Access-Control-Request-Method": {http.MethodGet},
	})
	assert.NotEqual(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, []int{http.StatusOK, http.StatusNoContent}, resp.StatusCode)
	assert.Equal(t, "https://crm.example.no", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	resp = env.do(t, http.MethodGet, "/api/results", nil, http.Header{"Origin": {"https://crm.example.no"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "the gate still guards the actual request")
}
