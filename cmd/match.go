package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/dataset"
	"github.com/sells-group/brreg-matcher/internal/model"
	"github.com/sells-group/brreg-matcher/internal/nace"
	"github.com/sells-group/brreg-matcher/internal/report"
	"github.com/sells-group/brreg-matcher/internal/session"
)

// matchFlags holds the match command's flags.
type matchFlags struct {
	crm          string
	registry     string
	output       string
	nace         []string
	preset       string
	employeesMin int
	employeesMax int
	revenueMin   float64
	revenueMax   float64
	profitMin    float64
	profitMax    float64
	stages       []string
	noEnrich     bool
	exclusive    bool
	sort         string
}

var matchOpts matchFlags

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a CRM export against a registry export and write the result",
	Example: `  brreg-matcher match --crm data/hubspot.csv --registry data/brreg.csv --output matches.xlsx
  brreg-matcher match --crm hubspot.xlsx --registry brreg.csv --preset construction --employees-min 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		filter, err := matchOpts.filter(nace.Default())
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := env.sessionOptions()
		if matchOpts.exclusive {
			opts.Exclusive = true
		}
		enricher := env.newEnricher()
		if matchOpts.noEnrich {
			enricher = nil
		}

		sess := session.New("cli", enricher, opts)
		if err := loadFile(matchOpts.crmPath(), sess.LoadCRM); err != nil {
			return err
		}
		if err := loadFile(matchOpts.registryPath(), sess.LoadRegistry); err != nil {
			return err
		}

		if err := runWithProgress(ctx, sess); err != nil {
			return err
		}

		rows := sess.Rows(filter)
		if matchOpts.sortByRevenue() {
			rows = report.SortByRevenue(rows)
		}

		if err := writeRows(cmd.OutOrStdout(), matchOpts.output, rows); err != nil {
			return err
		}

		sum := report.Summarize(rows)
		fmt.Fprintf(cmd.ErrOrStderr(), "%d rows, %d matched, %d ambiguous\n", sum.Total, sum.Matched, sum.Ambiguous)
		for _, st := range model.Stages {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %-36s %d\n", st.Label(), sum.ByStage[st])
		}
		return nil
	},
}

func (f matchFlags) crmPath() string {
	if f.crm != "" {
		return f.crm
	}
	return cfg.Data.CRMPath
}

func (f matchFlags) registryPath() string {
	if f.registry != "" {
		return f.registry
	}
	return cfg.Data.RegistryPath
}

func (f matchFlags) sortByRevenue() bool {
	switch f.sort {
	case "revenue":
		return true
	case "input":
		return false
	}
	return cfg.Matcher.SortByRevenue
}

// filter builds a report filter from the flags. Zero bounds mean no limit.
func (f matchFlags) filter(cat *nace.Catalog) (report.Filter, error) {
	var out report.Filter

	codes := f.nace
	if f.preset != "" {
		preset, err := cat.Preset(f.preset)
		if err != nil {
			return out, err
		}
		codes = append(codes, preset...)
	}
	if expanded := cat.Expand(codes); len(expanded) > 0 {
		out.IndustryCodes = expanded
	}

	if f.employeesMin < 0 || f.employeesMax < 0 || f.revenueMin < 0 || f.revenueMax < 0 {
		return out, eris.New("match: employee and revenue bounds must be >= 0")
	}
	if f.employeesMin > 0 {
		out.EmployeeMin = &f.employeesMin
	}
	if f.employeesMax > 0 {
		out.EmployeeMax = &f.employeesMax
	}
	if f.revenueMin > 0 {
		out.RevenueMin = &f.revenueMin
	}
	if f.revenueMax > 0 {
		out.RevenueMax = &f.revenueMax
	}
	if f.profitMin != 0 {
		out.ProfitMin = &f.profitMin
	}
	if f.profitMax != 0 {
		out.ProfitMax = &f.profitMax
	}

	for _, raw := range f.stages {
		st, err := model.ParseMatchStage(raw)
		if err != nil {
			return out, err
		}
		out.Stages = append(out.Stages, st)
	}

	switch f.sort {
	case "", "revenue", "input":
	default:
		return out, eris.Errorf("match: --sort must be revenue or input, got %q", f.sort)
	}
	return out, nil
}

func loadFile(path string, load func(io.Reader, string) (dataset.Stats, error)) error {
	if path == "" {
		return eris.New("match: both --crm and --registry are required")
	}
	fh, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "match: open %s", path)
	}
	defer fh.Close() //nolint:errcheck

	stats, err := load(fh, filepath.Base(path))
	if err != nil {
		return err
	}
	zap.L().Info("dataset loaded",
		zap.String("path", path),
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped),
		zap.Int("duplicates", stats.Duplicates),
	)
	return nil
}

// runWithProgress runs the session and logs its progress events.
func runWithProgress(ctx context.Context, sess *session.Session) error {
	events, unsubscribe := sess.Hub().Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range events {
			zap.L().Debug("progress",
				zap.String("phase", string(evt.Phase)),
				zap.Int("done", evt.Done),
				zap.Int("total", evt.Total),
			)
		}
	}()

	err := sess.Run(ctx)
	unsubscribe()
	<-done
	return err
}

// writeRows writes CSV to w when path is empty, else CSV or XLSX by the
// path's extension.
func writeRows(w io.Writer, path string, rows []model.Row) error {
	if path == "" || path == "-" {
		return report.WriteCSV(w, rows)
	}

	fh, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "match: create %s", path)
	}

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		err = report.WriteXLSX(fh, rows)
	} else {
		err = report.WriteCSV(fh, rows)
	}
	if cerr := fh.Close(); err == nil && cerr != nil {
		err = eris.Wrapf(cerr, "match: close %s", path)
	}
	if err == nil {
		zap.L().Info("result written", zap.String("path", path), zap.Int("rows", len(rows)))
	}
	return err
}

func init() {
	f := matchCmd.Flags()
	f.StringVar(&matchOpts.crm, "crm", "", "CRM export (.csv or .xlsx), default data.crm_path")
	f.StringVar(&matchOpts.registry, "registry", "", "Enhetsregisteret export (.csv or .xlsx), default data.registry_path")
	f.StringVarP(&matchOpts.output, "output", "o", "", "output file (.csv or .xlsx), stdout when empty")
	f.StringSliceVar(&matchOpts.nace, "nace", nil, "NACE codes or section letters to keep, e.g. 41,42 or F")
	f.StringVar(&matchOpts.preset, "preset", "", "NACE preset: all, none, construction, retail")
	f.IntVar(&matchOpts.employeesMin, "employees-min", 0, "minimum employees (0 = no limit)")
	f.IntVar(&matchOpts.employeesMax, "employees-max", 0, "maximum employees (0 = no limit)")
	f.Float64Var(&matchOpts.revenueMin, "revenue-min", 0, "minimum revenue in MNOK (0 = no limit)")
	f.Float64Var(&matchOpts.revenueMax, "revenue-max", 0, "maximum revenue in MNOK (0 = no limit)")
	f.Float64Var(&matchOpts.profitMin, "profit-min", 0, "minimum profit before tax in MNOK, may be negative (0 = no limit)")
	f.Float64Var(&matchOpts.profitMax, "profit-max", 0, "maximum profit before tax in MNOK (0 = no limit)")
	f.StringSliceVar(&matchOpts.stages, "stages", nil, "match stages to keep, e.g. org_number,exact_name")
	f.BoolVar(&matchOpts.noEnrich, "no-enrich", false, "skip the registry API lookups")
	f.BoolVar(&matchOpts.exclusive, "exclusive", false, "pair each registry row with at most one CRM row")
	f.StringVar(&matchOpts.sort, "sort", "", "row order: revenue or input (default matcher.sort_by_revenue)")
	rootCmd.AddCommand(matchCmd)
}
