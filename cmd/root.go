package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "brreg-matcher",
	Short: "Match CRM companies against the Brønnøysund registers",
	Long: `brreg-matcher pairs each company in a CRM export with its Enhetsregisteret
entry. A row is tried in four stages and the first hit wins:

  1. organization number
  2. exact normalized name
  3. name without legal suffix (AS, ASA, ...)
  4. name without legal suffix or noise words (holding, group, ...)

Matches are enriched with employee counts from Enhetsregisteret and with
revenue and profit before tax from Regnskapsregisteret, then filtered by
NACE code, size and stage.

"serve" runs the web UI for uploading files and browsing results. "match",
"lookup" and "search" do the same work headless, and "cache prune" clears
expired figures from the persistent cache.

Settings come from config.yaml, .env and MATCHER_* environment variables.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
