package brreg

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitJSON(org, name, code string, employees any, kommunenr string) string {
	emp := "null"
	if employees != nil {
		emp = fmt.Sprint(employees)
	}
	return fmt.Sprintf(`{"organisasjonsnummer":%q,"navn":%q,"antallAnsatte":%s,
		"naeringskode1":{"kode":%q,"beskrivelse":"x"},
		"organisasjonsform":{"kode":"AS"},
		"forretningsadresse":{"kommune":"OSLO","kommunenummer":%q}}`, org, name, emp, code, kommunenr)
}

// searchServer serves pages of units from /enheter and counts requests.
func searchServer(t *testing.T, pages [][]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/enheter", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("hovedenhet"))
		assert.Equal(t, "false", q.Get("konkurs"))
		assert.Equal(t, "false", q.Get("underAvvikling"))

		var page int
		fmt.Sscan(q.Get("page"), &page) //nolint:errcheck
		w.Header().Set("Content-Type", "application/json")
		if page >= len(pages) {
			fmt.Fprintf(w, `{"page":{"size":2,"totalElements":0,"totalPages":%d,"number":%d}}`, len(pages), page)
			return
		}
		fmt.Fprintf(w, `{"_embedded":{"enheter":[%s]},"page":{"size":2,"totalElements":9,"totalPages":%d,"number":%d}}`,
			strings.Join(pages[page], ","), len(pages), page)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSearch_PagesAndFiltersLocally(t *testing.T) {
	t.Parallel()

	srv, calls := searchServer(t, [][]string{
		{
			unitJSON("111111111", "Bygg AS", "41.200", 40, "0301"),
			unitJSON("222222222", "Butikk AS", "47.110", 40, "0301"),
		},
		{
			unitJSON("333333333", "Rør AS", "43.220", nil, "0301"),
			unitJSON("444444444", "Vestland Bygg AS", "41.200", 12, "4601"),
			unitJSON("555555555", "Stor Bygg AS", "41.200", 900, "0301"),
		},
	})

	lo, hi := 10, 500
	units, err := newTestClient(srv).Search(context.Background(), SearchQuery{
		IndustryPrefixes: []string{"41", "43"},
		EmployeesMin:     &lo,
		EmployeesMax:     &hi,
		PageSize:         2,
	})
	require.NoError(t, err)

	var orgs []string
	for _, u := range units {
		orgs = append(orgs, u.OrgNumber)
	}
	assert.Equal(t, []string{"111111111", "444444444"}, orgs)
	assert.Equal(t, int32(2), calls.Load(), "stops after the last page")

	first := units[0]
	assert.Equal(t, "AS", first.OrgForm)
	assert.Equal(t, "OSLO", first.Municipality)
	assert.Equal(t, "0301", first.MunicipalityNumber)
	require.NotNil(t, first.Employees)
	assert.Equal(t, 40, *first.Employees)
}

func TestSearch_CountyAndMunicipality(t *testing.T) {
	t.Parallel()

	var last atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last.Store(r.URL.Query())
		w.Write([]byte(`{"_embedded":{"enheter":[` + //nolint:errcheck
			unitJSON("111111111", "A", "41.200", 5, "0301") + `,` +
			unitJSON("222222222", "B", "41.200", 5, "4601") +
			`]},"page":{"totalPages":1}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	units, err := c.Search(context.Background(), SearchQuery{County: "46", Municipality: "4601"})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "222222222", units[0].OrgNumber)
	q := last.Load().(url.Values)
	assert.Equal(t, "4601", q.Get("kommunenummer"))
	assert.Equal(t, strings.Join(DefaultOrgForms, ","), q.Get("organisasjonsform"))

	_, err = c.Search(context.Background(), SearchQuery{OrgForms: []string{"ASA"}})
	require.NoError(t, err)
	q = last.Load().(url.Values)
	assert.Empty(t, q.Get("kommunenummer"))
	assert.Equal(t, "ASA", q.Get("organisasjonsform"))
}

func TestSearch_MaxHits(t *testing.T) {
	t.Parallel()

	srv, calls := searchServer(t, [][]string{
		{unitJSON("111111111", "A", "41.200", 1, "0301"), unitJSON("222222222", "B", "41.200", 1, "0301")},
		{unitJSON("333333333", "C", "41.200", 1, "0301"), unitJSON("444444444", "D", "41.200", 1, "0301")},
	})

	units, err := newTestClient(srv).Search(context.Background(), SearchQuery{MaxHits: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, units, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_EmptyPageEnds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"page":{"totalPages":0}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	units, err := newTestClient(srv).Search(context.Background(), SearchQuery{})
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestSearch_PermanentError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), SearchQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search page 0")
}
