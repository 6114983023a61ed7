package cli

import (
	"github.com/spf13/cobra"
)

var (
	rowsQuery queryFlags
	rowsJSON  bool
)

var rowsCountCmd = &cobra.Command{
	Use:   "rows-count",
	Short: "Ask the request server how many rows match a selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := rowsQuery.build()
		if err != nil {
			return err
		}
		res, err := apiClient().RowsCount(cmd.Context(), q)
		if err != nil {
			return err
		}
		return printResult(cmd, q, res, rowsJSON)
	},
}

func init() {
	rowsQuery.register(rowsCountCmd)
	rowsCountCmd.Flags().BoolVar(&rowsJSON, "json", false, "print the raw result as JSON")
}
