package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dokanalyse/internal/dataset"
	"github.com/sells-group/dokanalyse/internal/model"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Inspect the dataset configuration",
}

var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadDatasets(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		configs, err := store.Datasets()
		if err != nil {
			return err
		}
		printDatasets(cmd.OutOrStdout(), configs)
		return nil
	},
}

var datasetsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the dataset and quality configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadDatasets(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return reportValidation(cmd.OutOrStdout(), store)
	},
}

func printDatasets(out io.Writer, configs []*model.DatasetConfig) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tBACKEND\tLAYERS\tTHEMES")
	_, _ = fmt.Fprintln(w, "--\t-----\t-------\t------\t------")

	for _, c := range configs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			c.DatasetID, c.Title, c.Backend(), len(c.Layers), strings.Join(c.Themes, ","))
	}
	_ = w.Flush()
}

// reportValidation prints skipped documents and coverage violations. It fails
// when any dataset carries more than one coverage indicator.
func reportValidation(out io.Writer, store *dataset.Store) error {
	configs, err := store.Datasets()
	if err != nil {
		return err
	}

	issues := store.Issues()
	violations := store.CoverageViolations()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Datasets:\t%d\n", len(configs))
	_, _ = fmt.Fprintf(w, "Skipped documents:\t%d\n", len(issues))
	_, _ = fmt.Fprintf(w, "Coverage violations:\t%d\n", len(violations))
	_ = w.Flush()

	for _, issue := range issues {
		_, _ = fmt.Fprintf(out, "  skipped: %s\n", issue)
	}
	for _, id := range violations {
		_, _ = fmt.Fprintf(out, "  multiple coverage indicators: %s\n", id)
	}

	if len(violations) > 0 {
		return eris.Errorf("%d dataset(s) have more than one coverage indicator", len(violations))
	}
	return nil
}

func init() {
	datasetsCmd.AddCommand(datasetsListCmd)
	datasetsCmd.AddCommand(datasetsValidateCmd)
	rootCmd.AddCommand(datasetsCmd)
}
