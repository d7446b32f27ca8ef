package brreg

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Accounts is the revenue and profit reported in one annual accounts
// filing.
type Accounts struct {
	OrgNumber string     `json:"org_number"`
	Revenue   *float64   `json:"revenue"` // NOK, nil when the filing has none
	Profit    *float64   `json:"profit"`  // NOK, result before tax
	Currency  string     `json:"currency,omitempty"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
	Year      *int       `json:"year,omitempty"`
}

// revenueKeys are checked in order before any key merely containing
// revenueHints.
var (
	revenueKeys = []string{
		"sumDriftsinntekter",
		"driftsinntekter",
		"salgsinntekter",
		"salgsinntekt",
		"nettoDriftsinntekter",
		"omsetning",
	}
	revenueHints = []string{"inntekt", "omset"}

	// profitKeys name the result before tax. There are no hints: a loose
	// "resultat" match would pick up operating or net results.
	profitKeys = []string{
		"ordinaertResultatFoerSkattekostnad",
		"resultatForSkatt",
		"ordinaertResultatForSkatt",
		"ordinærtResultatFørSkatt",
	}
)

func (c *httpClient) Accounts(ctx context.Context, orgNumber string) (*Accounts, error) {
	org, err := checkOrgNumber(orgNumber)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	found, err := c.getJSON(ctx, c.accountsURL+"/"+org, &raw)
	if err != nil || !found {
		return nil, err
	}

	a, err := ParseAccounts(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "brreg: accounts for %s", org)
	}
	if a == nil {
		return nil, nil
	}
	a.OrgNumber = org
	return a, nil
}

// ParseAccounts picks the latest filing from a Regnskapsregisteret
// response, which is a list of filings or a single one, and extracts its
// revenue. It returns nil when there are no filings.
func ParseAccounts(body []byte) (*Accounts, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "decode accounts")
	}

	var filings []map[string]any
	switch v := doc.(type) {
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				filings = append(filings, m)
			}
		}
	case map[string]any:
		filings = append(filings, v)
	}
	if len(filings) == 0 {
		return nil, nil
	}

	latest := filings[0]
	latestEnd := periodEnd(latest)
	for _, f := range filings[1:] {
		if end := periodEnd(f); end.After(latestEnd) {
			latest, latestEnd = f, end
		}
	}

	a := &Accounts{
		Revenue: findFigure(latest, pickRevenue),
		Profit:  findFigure(latest, pickProfit),
	}
	if s, ok := latest["valuta"].(string); ok {
		a.Currency = s
	}
	if !latestEnd.IsZero() {
		end := latestEnd
		year := end.Year()
		a.PeriodEnd = &end
		a.Year = &year
	}
	return a, nil
}

// periodEnd reads regnskapsperiode.tilDato, falling back to a bare year
// field. The zero time sorts first.
func periodEnd(f map[string]any) time.Time {
	if p, ok := f["regnskapsperiode"].(map[string]any); ok {
		if s, ok := p["tilDato"].(string); ok {
			if t, err := time.Parse("2006-01-02", s); err == nil {
				return t
			}
		}
	}
	for _, k := range []string{"regnskapsaar", "aar", "year"} {
		if y, ok := toFloat(f[k]); ok && y > 0 {
			return time.Date(int(y), time.December, 31, 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}

// findFigure walks the filing breadth-first and returns the first value
// pick accepts. A parent wins over its children.
func findFigure(root any, pick func(map[string]any) (float64, bool)) *float64 {
	queue := []any{root}
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]

		switch v := x.(type) {
		case map[string]any:
			if f, ok := pick(v); ok {
				return &f
			}
			for _, k := range sortedKeys(v) {
				switch v[k].(type) {
				case map[string]any, []any:
					queue = append(queue, v[k])
				}
			}
		case []any:
			for _, item := range v {
				switch item.(type) {
				case map[string]any, []any:
					queue = append(queue, item)
				}
			}
		}
	}
	return nil
}

// pickRevenue prefers the priority keys over hinted keys.
func pickRevenue(obj map[string]any) (float64, bool) {
	for _, k := range revenueKeys {
		if f, ok := toFloat(obj[k]); ok {
			return f, true
		}
	}
	for _, k := range sortedKeys(obj) {
		for _, h := range revenueHints {
			if strings.Contains(strings.ToLower(k), h) {
				if f, ok := toFloat(obj[k]); ok {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func pickProfit(obj map[string]any) (float64, bool) {
	for _, k := range profitKeys {
		if f, ok := toFloat(obj[k]); ok {
			return f, true
		}
	}
	return 0, false
}

// toFloat accepts JSON numbers and numeric strings with space thousands
// separators or a decimal comma.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case string:
		s := strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(strings.TrimSpace(n))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
