package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/enheter/923609016":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"organisasjonsnummer":"923609016","navn":"EQUINOR ASA","antallAnsatte":21126,
				"naeringskode1":{"kode":"06.100","beskrivelse":"Utvinning av råolje og naturgass"}}`)) //nolint:errcheck
		case "/regnskap/923609016":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"regnskapsperiode":{"tilDato":"2023-12-31"},
				"resultatregnskapResultat":{"ordinaertResultatFoerSkattekostnad":-250000000,
				"driftsresultat":{"driftsinntekter":{"sumDriftsinntekter":1500000000}}}}]`)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	chdirTemp(t)
	t.Setenv("MATCHER_LOG_LEVEL", "error")
	t.Setenv("MATCHER_REGISTRY_UNITS_URL", srv.URL+"/enheter")
	t.Setenv("MATCHER_REGISTRY_ACCOUNTS_URL", srv.URL+"/regnskap")
	t.Setenv("MATCHER_REGISTRY_RETRIES", "0")

	out, err := executeCommand(t, "lookup", "923 609 016", "123")
	require.NoError(t, err)

	var results []lookupResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)

	assert.Equal(t, "923609016", results[0].OrgNumber)
	assert.Equal(t, "EQUINOR ASA", results[0].Name)
	assert.Equal(t, "06.100", results[0].IndustryCode)
	require.NotNil(t, results[0].Employees)
	assert.Equal(t, 21126, *results[0].Employees)
	require.NotNil(t, results[0].Revenue)
	assert.InDelta(t, 1500.0, *results[0].Revenue, 1e-9)
	require.NotNil(t, results[0].Profit)
	assert.InDelta(t, -250.0, *results[0].Profit, 1e-9)
	assert.Empty(t, results[0].Error)

	assert.Equal(t, "123", results[1].OrgNumber)
	assert.NotEmpty(t, results[1].Error)
}

func TestCachePruneCommand(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("MATCHER_LOG_LEVEL", "error")
	t.Setenv("MATCHER_STORE_DRIVER", "sqlite")
	t.Setenv("MATCHER_STORE_DSN", dir+"/cache.db")

	out, err := executeCommand(t, "cache", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 expired entries")
}

func TestCachePruneCommand_RequiresDriver(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MATCHER_LOG_LEVEL", "error")

	_, err := executeCommand(t, "cache", "prune")
	assert.Error(t, err)
}
