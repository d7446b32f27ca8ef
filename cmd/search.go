package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/nace"
	"github.com/sells-group/brreg-matcher/internal/report"
	"github.com/sells-group/brreg-matcher/pkg/brreg"
)

// searchFlags holds the search command's flags. Bounds reuse matchFlags'
// rules: zero means no limit.
type searchFlags struct {
	bounds       matchFlags
	municipality string
	county       string
	orgForms     []string
	maxHits      int
	noEnrich     bool
	output       string
}

var searchOpts searchFlags

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find prospects in Enhetsregisteret and rank them by revenue",
	Example: `  brreg-matcher search --preset construction --county 03 --employees-min 20
  brreg-matcher search --nace 62 --municipality 4601 --profit-min -5 --output prospects.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		filter, err := searchOpts.bounds.filter(nace.Default())
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		units, err := env.Registry.Search(ctx, searchOpts.query(filter))
		if err != nil {
			return eris.Wrap(err, "search")
		}

		prospects := make([]report.Prospect, len(units))
		orgs := make([]string, len(units))
		for i, u := range units {
			prospects[i] = report.Prospect{Unit: u}
			prospects[i].Enrichment.OrgNumber = u.OrgNumber
			prospects[i].Enrichment.Employees = u.Employees
			orgs[i] = u.OrgNumber
		}

		if !searchOpts.noEnrich {
			figures, err := env.newEnricher().EnrichAll(ctx, orgs, nil)
			if err != nil {
				zap.L().Warn("search: enrichment incomplete", zap.Error(err))
			}
			for i := range prospects {
				if e, ok := figures[orgs[i]]; ok {
					prospects[i].Enrichment = e
				}
			}
		}

		prospects = report.SortProspects(report.FilterProspects(prospects, filter))
		if err := writeProspects(cmd.OutOrStdout(), searchOpts.output, prospects); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d registry hits, %d prospects\n", len(units), len(prospects))
		return nil
	},
}

// query maps the flags and filter onto a registry search.
func (f searchFlags) query(filter report.Filter) brreg.SearchQuery {
	forms := f.orgForms
	if len(forms) == 0 {
		forms = cfg.Search.OrgForms
	}
	maxHits := f.maxHits
	if maxHits <= 0 {
		maxHits = cfg.Search.MaxHits
	}
	return brreg.SearchQuery{
		OrgForms:         forms,
		Municipality:     f.municipality,
		County:           f.county,
		IndustryPrefixes: filter.IndustryCodes,
		EmployeesMin:     filter.EmployeeMin,
		EmployeesMax:     filter.EmployeeMax,
		MaxHits:          maxHits,
		PageSize:         cfg.Search.PageSize,
	}
}

func writeProspects(w io.Writer, path string, ps []report.Prospect) error {
	if path == "" || path == "-" {
		return report.WriteProspectsCSV(w, ps)
	}
	fh, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "search: create %s", path)
	}
	err = report.WriteProspectsCSV(fh, ps)
	if cerr := fh.Close(); err == nil && cerr != nil {
		err = eris.Wrapf(cerr, "search: close %s", path)
	}
	if err == nil {
		zap.L().Info("prospects written", zap.String("path", path), zap.Int("rows", len(ps)))
	}
	return err
}

func init() {
	f := searchCmd.Flags()
	f.StringSliceVar(&searchOpts.bounds.nace, "nace", nil, "NACE codes or section letters to keep, e.g. 41,42 or F")
	f.StringVar(&searchOpts.bounds.preset, "preset", "", "NACE preset: all, none, construction, retail")
	f.IntVar(&searchOpts.bounds.employeesMin, "employees-min", 0, "minimum employees (0 = no limit)")
	f.IntVar(&searchOpts.bounds.employeesMax, "employees-max", 0, "maximum employees (0 = no limit)")
	f.Float64Var(&searchOpts.bounds.revenueMin, "revenue-min", 0, "minimum revenue in MNOK (0 = no limit)")
	f.Float64Var(&searchOpts.bounds.revenueMax, "revenue-max", 0, "maximum revenue in MNOK (0 = no limit)")
	f.Float64Var(&searchOpts.bounds.profitMin, "profit-min", 0, "minimum profit before tax in MNOK, may be negative (0 = no limit)")
	f.Float64Var(&searchOpts.bounds.profitMax, "profit-max", 0, "maximum profit before tax in MNOK (0 = no limit)")
	f.StringVar(&searchOpts.municipality, "municipality", "", "kommunenummer, e.g. 0301")
	f.StringVar(&searchOpts.county, "county", "", "fylkesnummer, e.g. 03")
	f.StringSliceVar(&searchOpts.orgForms, "org-forms", nil, "organization forms (default search.org_forms)")
	f.IntVar(&searchOpts.maxHits, "max-hits", 0, "stop after this many registry hits (default search.max_hits)")
	f.BoolVar(&searchOpts.noEnrich, "no-enrich", false, "skip the accounts lookups")
	f.StringVarP(&searchOpts.output, "output", "o", "", "output CSV file, stdout when empty")
	rootCmd.AddCommand(searchCmd)
}
