package report

import (
	"encoding/csv"
	"io"
	"slices"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/brreg-matcher/internal/model"
	"github.com/sells-group/brreg-matcher/pkg/brreg"
)

// Prospect is a registry search hit joined with its figures.
type Prospect struct {
	Unit       brreg.Unit       `json:"unit"`
	Enrichment model.Enrichment `json:"enrichment"`
}

type prospectRecord struct {
	OrgNumber    string `csv:"Org number"`
	Name         string `csv:"Name"`
	OrgForm      string `csv:"Org form"`
	IndustryCode string `csv:"Industry code"`
	Industry     string `csv:"Industry description"`
	Municipality string `csv:"Municipality"`
	Employees    *int   `csv:"Employees"`
	FiscalYear   *int   `csv:"Fiscal year"`
	Revenue      string `csv:"Revenue (MNOK)"`
	Profit       string `csv:"Profit before tax (MNOK)"`
}

// FilterProspects keeps the prospects whose figures pass f's revenue and
// profit bounds. Industry and employee bounds are applied by the search.
func FilterProspects(ps []Prospect, f Filter) []Prospect {
	figures := Filter{RevenueMin: f.RevenueMin, RevenueMax: f.RevenueMax, ProfitMin: f.ProfitMin, ProfitMax: f.ProfitMax}
	out := make([]Prospect, 0, len(ps))
	for _, p := range ps {
		if figures.Match(model.Row{Enrichment: p.Enrichment}) {
			out = append(out, p)
		}
	}
	return out
}

// SortProspects returns a copy ordered like SortByRevenue.
func SortProspects(ps []Prospect) []Prospect {
	out := slices.Clone(ps)
	slices.SortStableFunc(out, func(a, b Prospect) int {
		if c := descending(a.Enrichment.Revenue, b.Enrichment.Revenue); c != 0 {
			return c
		}
		return descending(a.Enrichment.Profit, b.Enrichment.Profit)
	})
	return out
}

// WriteProspectsCSV writes prospects as UTF-8 CSV with a byte-order mark.
func WriteProspectsCSV(w io.Writer, ps []Prospect) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return eris.Wrap(err, "report: write bom")
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(prospectRecord{}); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	for _, p := range ps {
		rec := prospectRecord{
			OrgNumber:    p.Unit.OrgNumber,
			Name:         p.Unit.Name,
			OrgForm:      p.Unit.OrgForm,
			IndustryCode: p.Unit.IndustryCode,
			Industry:     p.Unit.Industry,
			Municipality: p.Unit.Municipality,
			Employees:    p.Unit.Employees,
			FiscalYear:   p.Enrichment.FiscalYear,
		}
		if v := p.Enrichment.Revenue; v != nil {
			rec.Revenue = strconv.FormatFloat(*v, 'f', -1, 64)
		}
		if v := p.Enrichment.Profit; v != nil {
			rec.Profit = strconv.FormatFloat(*v, 'f', -1, 64)
		}
		if err := enc.Encode(rec); err != nil {
			return eris.Wrap(err, "report: write prospect")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}
