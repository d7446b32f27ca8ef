package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/enrich"
	"github.com/sells-group/brreg-matcher/internal/orgnr"
	"github.com/sells-group/brreg-matcher/pkg/brreg"
)

// lookupResult is one line of lookup output.
type lookupResult struct {
	OrgNumber    string   `json:"org_number"`
	Name         string   `json:"name,omitempty"`
	IndustryCode string   `json:"industry_code,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	Bankrupt     bool     `json:"bankrupt,omitempty"`
	Employees    *int     `json:"employees,omitempty"`
	Revenue      *float64 `json:"revenue_mnok,omitempty"`
	Profit       *float64 `json:"profit_mnok,omitempty"`
	FiscalYear   *int     `json:"fiscal_year,omitempty"`
	Error        string   `json:"error,omitempty"`
}

var lookupCmd = &cobra.Command{
	Use:   "lookup ORGNR...",
	Short: "Fetch registry details and figures for organization numbers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "lookup")
		if err != nil {
			return err
		}
		defer env.Close()

		enricher := env.newEnricher()
		if enricher == nil {
			enricher = enrich.New(env.Registry, enrich.WithRevenue(cfg.Enrich.Revenue))
		}

		results := make([]lookupResult, 0, len(args))
		for _, arg := range args {
			results = append(results, lookupOne(ctx, env.Registry, enricher, arg))
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func lookupOne(ctx context.Context, client brreg.Client, enricher *enrich.Enricher, arg string) lookupResult {
	org := orgnr.Clean(arg)
	res := lookupResult{OrgNumber: org}
	if !orgnr.Valid(org) {
		res.OrgNumber = arg
		res.Error = "invalid organization number"
		return res
	}

	unit, err := client.Unit(ctx, org)
	switch {
	case err != nil:
		zap.L().Warn("lookup: unit failed", zap.String("org_number", org), zap.Error(err))
		res.Error = err.Error()
	case unit == nil:
		res.Error = "not found in Enhetsregisteret"
	default:
		res.Name = unit.Name
		res.IndustryCode = unit.IndustryCode
		res.Industry = unit.Industry
		res.Bankrupt = unit.Bankrupt
	}

	e := enricher.Enrich(ctx, org)
	res.Employees = e.Employees
	res.Revenue = e.Revenue
	res.Profit = e.Profit
	res.FiscalYear = e.FiscalYear
	return res
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}
