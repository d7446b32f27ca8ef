package brreg

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	DefaultSearchPageSize = 100
	DefaultSearchMaxHits  = 2000

	// maxSearchWindow is how deep the search API lets a client page
	// (page * size).
	maxSearchWindow = 10_000
)

// DefaultOrgForms are the organization forms searched when none are given.
var DefaultOrgForms = []string{"AS", "ASA", "SÆR", "FKF", "IKS", "SA"}

// SearchQuery narrows an Enhetsregisteret search. Organization form and
// municipality are filtered by the API; county, industry and employees
// are checked on each hit.
type SearchQuery struct {
	OrgForms     []string
	Municipality string // kommunenummer, e.g. "0301"
	County       string // fylkesnummer, the first two digits of kommunenummer
	// IndustryPrefixes keep units whose naeringskode1 starts with one of
	// them. Empty keeps all.
	IndustryPrefixes []string
	// EmployeesMin and EmployeesMax are inclusive. A unit without an
	// employee count fails any bound that is set.
	EmployeesMin *int
	EmployeesMax *int
	MaxHits      int
	PageSize     int
}

type searchPage struct {
	Embedded struct {
		Units []unitWire `json:"enheter"`
	} `json:"_embedded"`
	Page struct {
		Size          int `json:"size"`
		TotalElements int `json:"totalElements"`
		TotalPages    int `json:"totalPages"`
		Number        int `json:"number"`
	} `json:"page"`
}

// Search returns active main units that pass q, in API order, up to
// q.MaxHits. Bankrupt units and units being wound up are excluded.
func (c *httpClient) Search(ctx context.Context, q SearchQuery) ([]Unit, error) {
	size := q.PageSize
	if size <= 0 {
		size = DefaultSearchPageSize
	}
	maxHits := q.MaxHits
	if maxHits <= 0 {
		maxHits = DefaultSearchMaxHits
	}
	forms := q.OrgForms
	if len(forms) == 0 {
		forms = DefaultOrgForms
	}

	params := url.Values{}
	params.Set("size", strconv.Itoa(size))
	params.Set("hovedenhet", "true")
	params.Set("konkurs", "false")
	params.Set("underAvvikling", "false")
	params.Set("organisasjonsform", strings.Join(forms, ","))
	if q.Municipality != "" {
		params.Set("kommunenummer", q.Municipality)
	}

	var (
		out   []Unit
		pages int
	)
	for page := 0; (page+1)*size <= maxSearchWindow; page++ {
		params.Set("page", strconv.Itoa(page))

		var resp searchPage
		found, err := c.getJSON(ctx, c.unitsURL+"?"+params.Encode(), &resp)
		if err != nil {
			return out, eris.Wrapf(err, "brreg: search page %d", page)
		}
		pages++
		if !found || len(resp.Embedded.Units) == 0 {
			break
		}

		for _, w := range resp.Embedded.Units {
			u, err := w.unit()
			if err != nil {
				zap.L().Debug("brreg: skipping search hit", zap.String("org_number", w.OrgNumber), zap.Error(err))
				continue
			}
			if !q.keep(u) {
				continue
			}
			out = append(out, *u)
			if len(out) >= maxHits {
				break
			}
		}
		if len(out) >= maxHits {
			break
		}
		if resp.Page.TotalPages > 0 && page+1 >= resp.Page.TotalPages {
			break
		}
	}

	zap.L().Debug("brreg: search complete", zap.Int("pages", pages), zap.Int("hits", len(out)))
	return out, nil
}

func (q SearchQuery) keep(u *Unit) bool {
	if q.County != "" && !strings.HasPrefix(u.MunicipalityNumber, q.County) {
		return false
	}
	if len(q.IndustryPrefixes) > 0 {
		ok := false
		for _, p := range q.IndustryPrefixes {
			if p != "" && strings.HasPrefix(u.IndustryCode, p) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q.EmployeesMin != nil || q.EmployeesMax != nil {
		if u.Employees == nil {
			return false
		}
		if q.EmployeesMin != nil && *u.Employees < *q.EmployeesMin {
			return false
		}
		if q.EmployeesMax != nil && *u.Employees > *q.EmployeesMax {
			return false
		}
	}
	return true
}
