package web

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/brreg-matcher/internal/model"
	"github.com/sells-group/brreg-matcher/internal/nace"
	"github.com/sells-group/brreg-matcher/internal/report"
)

// Query parameters understood by the result views and exports.
const (
	paramNACE   = "nace"
	paramPreset = "preset"
	paramEmpMin = "emp_min"
	paramEmpMax = "emp_max"
	paramRevMin = "rev_min"
	paramRevMax = "rev_max"
	paramPftMin = "profit_min"
	paramPftMax = "profit_max"
	paramStage  = "stage"
	paramSort   = "sort"

	sortRevenue = "revenue"
	sortInput   = "input"
)

// viewQuery is a parsed result query.
type viewQuery struct {
	Filter        report.Filter
	SortByRevenue bool
}

// parseQuery reads filters from q. Repeated and comma-separated values are
// both accepted. A zero or empty bound means no limit.
func parseQuery(q url.Values, cat *nace.Catalog, defaultSort bool) (viewQuery, error) {
	var v viewQuery

	codes := splitValues(q[paramNACE])
	if p := strings.TrimSpace(q.Get(paramPreset)); p != "" {
		preset, err := cat.Preset(p)
		if err != nil {
			return v, err
		}
		codes = append(codes, preset...)
	}
	v.Filter.IndustryCodes = cat.Expand(codes)
	if len(v.Filter.IndustryCodes) == 0 {
		v.Filter.IndustryCodes = nil
	}

	var err error
	if v.Filter.EmployeeMin, err = parseIntBound(q.Get(paramEmpMin), paramEmpMin); err != nil {
		return v, err
	}
	if v.Filter.EmployeeMax, err = parseIntBound(q.Get(paramEmpMax), paramEmpMax); err != nil {
		return v, err
	}
	if v.Filter.RevenueMin, err = parseFloatBound(q.Get(paramRevMin), paramRevMin, false); err != nil {
		return v, err
	}
	if v.Filter.RevenueMax, err = parseFloatBound(q.Get(paramRevMax), paramRevMax, false); err != nil {
		return v, err
	}
	if v.Filter.ProfitMin, err = parseFloatBound(q.Get(paramPftMin), paramPftMin, true); err != nil {
		return v, err
	}
	if v.Filter.ProfitMax, err = parseFloatBound(q.Get(paramPftMax), paramPftMax, true); err != nil {
		return v, err
	}

	for _, raw := range splitValues(q[paramStage]) {
		stage, err := model.ParseMatchStage(raw)
		if err != nil {
			return v, err
		}
		v.Filter.Stages = append(v.Filter.Stages, stage)
	}

	switch q.Get(paramSort) {
	case sortRevenue:
		v.SortByRevenue = true
	case sortInput:
		v.SortByRevenue = false
	case "":
		v.SortByRevenue = defaultSort
	default:
		return v, eris.Errorf("web: unknown sort %q", q.Get(paramSort))
	}
	return v, nil
}

func splitValues(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseIntBound(raw, name string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, eris.Errorf("web: %s must be a whole number >= 0", name)
	}
	if n == 0 {
		return nil, nil
	}
	return &n, nil
}

// parseFloatBound reads an MNOK bound. Profit bounds may be negative.
func parseFloatBound(raw, name string, signed bool) (*float64, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, eris.Errorf("web: %s must be a number", name)
	}
	if f < 0 && !signed {
		return nil, eris.Errorf("web: %s must be a number >= 0", name)
	}
	if f == 0 {
		return nil, nil
	}
	return &f, nil
}
