package report

import (
	"cmp"
	"slices"

	"github.com/sells-group/brreg-matcher/internal/model"
)

// Summary holds the headline metrics shown above the results table.
type Summary struct {
	Total        int                      `json:"total"`
	Matched      int                      `json:"matched"`
	Ambiguous    int                      `json:"ambiguous"`
	AvgEmployees *float64                 `json:"avg_employees,omitempty"`
	AvgRevenue   *float64                 `json:"avg_revenue_mnok,omitempty"`
	ByStage      map[model.MatchStage]int `json:"by_stage"`
}

// Summarize computes metrics over rows. Averages only count rows that have
// the figure and are nil when none do.
func Summarize(rows []model.Row) Summary {
	s := Summary{
		Total:   len(rows),
		ByStage: make(map[model.MatchStage]int, len(model.Stages)),
	}

	var (
		empSum, revSum float64
		empN, revN     int
	)
	for _, r := range rows {
		s.ByStage[r.Match.Stage]++
		if r.Match.Stage.Matched() {
			s.Matched++
		}
		if r.Match.Ambiguous() {
			s.Ambiguous++
		}
		if e := r.Enrichment.Employees; e != nil {
			empSum += float64(*e)
			empN++
		}
		if v := r.Enrichment.Revenue; v != nil {
			revSum += *v
			revN++
		}
	}

	if empN > 0 {
		avg := empSum / float64(empN)
		s.AvgEmployees = &avg
	}
	if revN > 0 {
		avg := revSum / float64(revN)
		s.AvgRevenue = &avg
	}
	return s
}

// SortByRevenue returns a copy of rows ordered by revenue, highest first,
// then by profit. Absent figures go last; ties keep their input order.
func SortByRevenue(rows []model.Row) []model.Row {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b model.Row) int {
		if c := descending(a.Enrichment.Revenue, b.Enrichment.Revenue); c != 0 {
			return c
		}
		return descending(a.Enrichment.Profit, b.Enrichment.Profit)
	})
	return out
}

func descending(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*b, *a)
}
