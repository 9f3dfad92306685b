package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/cli"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/config"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Review failed ingredient updates",
		Long: `Every bulk update that failed for some ingredients leaves an error report.
List them, or export one as JSON to retry or file a bug.`,
		Example: `  # List the latest reports
  mealie-parser reports list

  # Only reports for one pattern
  mealie-parser reports list --pattern "2 cups flour"

  # Export report 3
  mealie-parser reports export 3 --output ./reports`,
	}

	cmd.AddCommand(listReportsCmd())
	cmd.AddCommand(exportReportCmd())

	return cmd
}

func listReportsCmd() *cobra.Command {
	var (
		patternText string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List error reports, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx, viper.GetString("storage.db_path"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			reports, err := store.ListReports(ctx, patternText, limit)
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Println(cli.FormatSuccess("No error reports"))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tOPERATION\tPATTERN\tSUCCEEDED\tFAILED\tRETRIES")
			for _, r := range reports {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d\t%d\t%d\n",
					r.ID,
					r.Timestamp.Local().Format(time.DateTime),
					r.OperationType,
					truncate(r.PatternText, 40),
					r.Succeeded, r.TotalItems,
					r.Failed,
					r.TotalRetries)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&patternText, "pattern", "", "Only reports for this pattern text")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum reports to list (0 = all)")

	return cmd
}

func exportReportCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write one error report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid report id %q: %w", args[0], err)
			}

			store, err := initStorage(ctx, viper.GetString("storage.db_path"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			report, err := store.GetReport(ctx, id)
			if errors.Is(err, storage.ErrReportNotFound) {
				return fmt.Errorf("report %d does not exist", id)
			}
			if err != nil {
				return err
			}

			name := fmt.Sprintf("error-report-%d-%s.json", report.ID, report.Timestamp.UTC().Format("20060102-150405"))
			path := filepath.Join(config.ExpandPath(outputDir), name)
			if err := common.ExportErrorReport(report.ErrorReport, path); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess("Exported report to " + path))
			for _, f := range report.Errors {
				fmt.Printf("  %s %s: %s\n", cli.ErrorIcon, f.ID, f.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory to write the report to")

	return cmd
}
