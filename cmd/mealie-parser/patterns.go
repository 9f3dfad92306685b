package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/cli"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/engine"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Show the patterns from the last parse",
		Long: `List the stored patterns of one axis with their status, parsed name and
how many ingredients they cover.

Examples:
  mealie-parser patterns                        # Unit patterns
  mealie-parser patterns --axis food --status unmatched
  mealie-parser patterns --hide-matched`,
		RunE: runPatterns,
	}

	cmd.Flags().String("axis", string(model.AxisUnit), "Axis to list (unit, food)")
	cmd.Flags().String("status", "", "Only show patterns with this status")
	cmd.Flags().Bool("hide-matched", false, "Hide matched patterns")

	_ = viper.BindPFlag("patterns.axis", cmd.Flags().Lookup("axis"))
	_ = viper.BindPFlag("patterns.status", cmd.Flags().Lookup("status"))
	_ = viper.BindPFlag("patterns.hide_matched", cmd.Flags().Lookup("hide-matched"))

	return cmd
}

func runPatterns(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	axis := model.Axis(strings.ToLower(viper.GetString("patterns.axis")))
	if axis != model.AxisUnit && axis != model.AxisFood {
		return fmt.Errorf("unknown axis %q (valid: unit, food)", axis)
	}
	var status model.PatternStatus
	if s := viper.GetString("patterns.status"); s != "" {
		parsed, err := model.ParseStatus(s)
		if err != nil {
			return err
		}
		status = parsed
	}

	store, err := initStorage(ctx, viper.GetString("storage.db_path"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	patterns, err := store.LoadPatterns(ctx)
	if err != nil {
		return err
	}
	if len(patterns) == 0 {
		fmt.Println(cli.FormatInfo("No stored patterns. Run 'mealie-parser parse' first."))
		return nil
	}

	views := engine.NewViews(patterns)
	views.SetHideMatched(viper.GetBool("patterns.hide_matched"))
	indices := views.ByUnit()
	if axis == model.AxisFood {
		indices = views.ByFood()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tPATTERN\tPARSED\tINGREDIENTS\tRECIPES\tERROR")
	shown := 0
	for _, i := range indices {
		p := views.Pattern(i)
		if status != "" && p.Status(axis) != status {
			continue
		}
		name, _ := p.Parsed(axis)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			cli.FormatStatus(p.Status(axis)),
			truncate(p.Text, 50),
			name,
			len(p.IngredientIDs),
			len(p.RecipeIDs),
			truncate(p.ErrorMessage(axis), 40))
		shown++
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write patterns: %w", err)
	}

	fmt.Println()
	fmt.Println(formatCounts(axis, views.Counts(axis)))
	if shown == 0 {
		fmt.Println(cli.FormatInfo("No patterns match."))
	}
	return nil
}

func formatCounts(axis model.Axis, counts map[model.PatternStatus]int) string {
	parts := make([]string, 0, len(model.AllStatuses))
	for _, s := range model.AllStatuses {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", s, n))
		}
	}
	if len(parts) == 0 {
		return cli.SubtleStyle.Render(fmt.Sprintf("No %s patterns", axis))
	}
	return cli.BoldStyle.Render(fmt.Sprintf("%s patterns: %s", axis, strings.Join(parts, ", ")))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// storedCounts reports per-axis status counts straight from the snapshot table.
func storedCounts(ctx context.Context, store *storage.SQLiteStorage) (string, error) {
	var lines []string
	for _, axis := range []model.Axis{model.AxisUnit, model.AxisFood} {
		counts, err := store.PatternCounts(ctx, axis)
		if err != nil {
			return "", err
		}
		lines = append(lines, formatCounts(axis, counts))
	}
	return strings.Join(lines, "\n"), nil
}
