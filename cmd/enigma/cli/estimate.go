package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/npnl/enigma-request/internal/estimate"
	"github.com/npnl/enigma-request/internal/services"
)

var (
	estimateQuery queryFlags
	estimateData  string
	estimateJSON  bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Count matching rows against a local boolean-presence table",
	Long:  "Runs the row-count estimator locally. The selection comes from --state, --require and --or; the table defaults to data.boolean_file.",
	Example: `  enigma estimate --require AGE,SEX --or FA,MD --timepoint multi
  enigma estimate --state data-request-state-2025-01-01T10-00-00.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := estimateQuery.build()
		if err != nil {
			return err
		}
		path := estimateData
		if path == "" {
			path = cfg.Data.BooleanFile
		}
		rows := services.NewRowCountService(func() (*estimate.Table, error) {
			return estimate.LoadCSV(path)
		})
		res, err := rows.Estimate(q)
		if err != nil {
			return err
		}
		return printResult(cmd, q, res, estimateJSON)
	},
}

func printResult(cmd *cobra.Command, q estimate.Query, res *estimate.Result, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err := fmt.Fprint(out, renderResult(q, res))
	return err
}

func init() {
	estimateQuery.register(estimateCmd)
	estimateCmd.Flags().StringVar(&estimateData, "data", "", "boolean-presence CSV (default data.boolean_file)")
	estimateCmd.Flags().BoolVar(&estimateJSON, "json", false, "print the raw result as JSON")
}
