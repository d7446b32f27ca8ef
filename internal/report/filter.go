// Package report filters joined match rows and renders them for display
// and export.
package report

import (
	"slices"
	"strings"

	"github.com/sells-group/brreg-matcher/internal/model"
)

// Filter narrows rows for display and export. The zero Filter passes
// everything. Numeric bounds are inclusive; nil means unbounded.
type Filter struct {
	IndustryCodes []string           `json:"industry_codes,omitempty"`
	EmployeeMin   *int               `json:"employee_min,omitempty"`
	EmployeeMax   *int               `json:"employee_max,omitempty"`
	RevenueMin    *float64           `json:"revenue_min,omitempty"` // MNOK
	RevenueMax    *float64           `json:"revenue_max,omitempty"` // MNOK
	ProfitMin     *float64           `json:"profit_min,omitempty"`  // MNOK, may be negative
	ProfitMax     *float64           `json:"profit_max,omitempty"`  // MNOK
	Stages        []model.MatchStage `json:"stages,omitempty"`
}

// IsZero reports whether f passes every row.
func (f Filter) IsZero() bool {
	return len(f.IndustryCodes) == 0 &&
		f.EmployeeMin == nil && f.EmployeeMax == nil &&
		f.RevenueMin == nil && f.RevenueMax == nil &&
		f.ProfitMin == nil && f.ProfitMax == nil &&
		len(f.Stages) == 0
}

// Match reports whether r passes every criterion of f.
func (f Filter) Match(r model.Row) bool {
	if len(f.IndustryCodes) > 0 && !matchIndustry(r.IndustryCode(), f.IndustryCodes) {
		return false
	}
	if f.EmployeeMin != nil || f.EmployeeMax != nil {
		if !inRange(r.Enrichment.Employees, f.EmployeeMin, f.EmployeeMax) {
			return false
		}
	}
	if f.RevenueMin != nil || f.RevenueMax != nil {
		if !inRange(r.Enrichment.Revenue, f.RevenueMin, f.RevenueMax) {
			return false
		}
	}
	if f.ProfitMin != nil || f.ProfitMax != nil {
		if !inRange(r.Enrichment.Profit, f.ProfitMin, f.ProfitMax) {
			return false
		}
	}
	if len(f.Stages) > 0 && !slices.Contains(f.Stages, r.Match.Stage) {
		return false
	}
	return true
}

// Apply returns the rows passing f, in their original order. rows is not
// modified.
func Apply(rows []model.Row, f Filter) []model.Row {
	out := make([]model.Row, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// matchIndustry accepts an exact code or a selected prefix that ends at a
// level boundary, so "41" selects "41.200" but "4" does not.
func matchIndustry(code string, selected []string) bool {
	if code == "" {
		return false
	}
	for _, sel := range selected {
		if sel == "" {
			continue
		}
		if code == sel {
			return true
		}
		if !strings.HasPrefix(code, sel) {
			continue
		}
		if strings.Contains(sel, ".") || code[len(sel)] == '.' {
			return true
		}
	}
	return false
}

// inRange treats an absent value as failing any bound.
func inRange[T int | float64](v, lo, hi *T) bool {
	if v == nil {
		return false
	}
	if lo != nil && *v < *lo {
		return false
	}
	if hi != nil && *v > *hi {
		return false
	}
	return true
}
