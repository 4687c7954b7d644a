package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/opendate-cli/internal/batch"
	"github.com/sells-group/opendate-cli/internal/table"
)

var (
	validateInput string
	validateSheet string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report which input rows each kind of source can resolve",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if validateInput == "" {
			return eris.New("validate: --input is required")
		}
		t, err := table.Load(cmd.Context(), newFetcher(cfg), validateInput, validateSheet)
		if err != nil {
			return eris.Wrap(err, "validate: load input")
		}
		_, report, err := batch.Validate(t, nil)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(report), "validate: encode report")
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateInput, "input", "", "input CSV or XLSX (path or http/ftp URL)")
	validateCmd.Flags().StringVar(&validateSheet, "sheet", "", "worksheet name for XLSX input")
	rootCmd.AddCommand(validateCmd)
}
