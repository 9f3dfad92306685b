package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/cli"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/common"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/engine"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse unlinked ingredient patterns",
		Long: `Fetch every recipe, group ingredients without a unit or food into patterns
and send each pattern through Mealie's ingredient parser.

Patterns whose parsed unit and food already exist are marked matched. The rest
wait for 'mealie-parser resolve'. The first run parses everything; later runs
only parse what --filter selects.

Examples:
  mealie-parser parse                          # Parse all patterns
  mealie-parser parse --method brute           # Use the brute-force parser
  mealie-parser parse --filter pending_unmatched --scope food
  mealie-parser parse --resume                 # Continue an interrupted run`,
		RunE: runParse,
	}

	cmd.Flags().String("method", "nlp", "Parser to use (nlp, brute, openai)")
	cmd.Flags().IntP("concurrency", "c", engine.DefaultConcurrency, "Parallel parser calls (1-32)")
	cmd.Flags().String("filter", string(engine.FilterPending), "Patterns to parse on later runs (pending, pending_unmatched, all)")
	cmd.Flags().String("scope", string(engine.ScopeBoth), "Axes to parse (unit, food, both)")
	cmd.Flags().IntP("limit", "n", 0, "Parse at most this many patterns (0 = no limit)")
	cmd.Flags().BoolP("resume", "r", false, "Resume the saved session (fails when there is none)")
	cmd.Flags().Bool("fresh", false, "Discard the saved session and start over")

	_ = viper.BindPFlag("parse.method", cmd.Flags().Lookup("method"))
	_ = viper.BindPFlag("parse.concurrency", cmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("parse.filter", cmd.Flags().Lookup("filter"))
	_ = viper.BindPFlag("parse.scope", cmd.Flags().Lookup("scope"))
	_ = viper.BindPFlag("parse.limit", cmd.Flags().Lookup("limit"))
	_ = viper.BindPFlag("parse.resume", cmd.Flags().Lookup("resume"))
	_ = viper.BindPFlag("parse.fresh", cmd.Flags().Lookup("fresh"))

	return cmd
}

func runParse(cmd *cobra.Command, _ []string) error {
	filter, err := engine.ParseFilter(viper.GetString("parse.filter"))
	if err != nil {
		return err
	}
	scope, err := engine.ParseScope(viper.GetString("parse.scope"))
	if err != nil {
		return err
	}
	resume := viper.GetBool("parse.resume")
	fresh := viper.GetBool("parse.fresh")
	if resume && fresh {
		return fmt.Errorf("--resume and --fresh cannot be used together")
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	method, err := model.ParseMethodFromString(a.cfg.ParseMethod)
	if err != nil {
		return err
	}

	handler := cli.NewInterruptHandler(os.Stdout, "mealie-parser parse --resume")
	ctx, stop := handler.HandleInterrupts(cmd.Context())
	defer stop()

	if fresh {
		if err := a.sessions.Clear(); err != nil {
			return err
		}
		if err := a.store.ClearPatterns(ctx); err != nil {
			return err
		}
		slog.Info("Discarded saved session")
	}

	state, err := a.loadSession(resume)
	if err != nil {
		return err
	}

	var patterns []*model.Pattern
	firstRun := !state.ParsingStarted
	if state.ParsingStarted {
		patterns, err = a.store.LoadPatterns(ctx)
		if err != nil {
			return err
		}
		if len(patterns) == 0 {
			slog.Warn("Session has no stored patterns, fetching recipes again")
			firstRun = true
		} else {
			fmt.Println(cli.FormatInfo(fmt.Sprintf("Resuming %s", state.Summary())))
			if next := engine.FirstUnparsed(patterns, scope); next >= 0 {
				slog.Info("First unparsed pattern", "index", next, "pattern", patterns[next].Text)
			}
		}
	}

	if len(patterns) == 0 {
		patterns, err = fetchPatterns(ctx, a)
		if err != nil {
			return err
		}
	}
	if len(patterns) == 0 {
		fmt.Println(cli.FormatSuccess("Every ingredient already has a unit and food."))
		return nil
	}

	if err := a.reconciler.LoadCatalog(ctx); err != nil {
		return err
	}

	indices := engine.SelectIndices(patterns, engine.SelectOptions{
		Filter:   filter,
		Scope:    scope,
		Limit:    viper.GetInt("parse.limit"),
		FirstRun: firstRun,
	})
	if len(indices) == 0 {
		fmt.Println(cli.FormatInfo("No patterns match the filter. Run 'mealie-parser resolve' to review unmatched patterns."))
		return nil
	}

	run := storage.NewRun(state.ID, string(method), string(scope), a.cfg.Concurrency)
	if err := a.store.StartRun(ctx, run); err != nil {
		return err
	}

	state.ParsingStarted = true
	state.Touch()
	if err := a.sessions.Save(state); err != nil {
		return err
	}
	if err := a.savePatterns(ctx, patterns); err != nil {
		return err
	}

	progress := cli.NewProgress(os.Stderr, len(indices), "Parsing patterns")
	summary, parseErr := a.parser.ParseBatch(ctx, patterns, indices, engine.ParseOptions{
		OnProgress:  progress.Update,
		OnParsed:    a.updatePattern(ctx),
		Method:      method,
		Scope:       scope,
		Concurrency: a.cfg.Concurrency,
	})
	progress.Finish()

	if err := a.savePatterns(ctx, patterns); err != nil {
		return err
	}
	state.Touch()
	if err := a.sessions.Save(state); err != nil {
		return err
	}
	if parseErr != nil {
		return fmt.Errorf("batch parse failed: %w", parseErr)
	}

	counts := storage.RunCounts{
		Total:     summary.Total,
		Matched:   summary.Matched,
		Unmatched: summary.Unmatched,
		Errors:    summary.Errors,
		Skipped:   summary.Skipped,
	}
	if err := a.store.FinishRun(context.WithoutCancel(ctx), run.ID, counts, summary.Duration); err != nil {
		slog.Warn("Failed to record run", "run_id", run.ID, "error", err)
	}

	showParseSummary(summary, patterns, handler.WasInterrupted())
	return nil
}

// fetchPatterns loads recipes from Mealie and groups their unparsed ingredients.
func fetchPatterns(ctx context.Context, a *app) ([]*model.Pattern, error) {
	var progress *cli.Progress
	result, err := engine.LoadPatterns(ctx, a.client, engine.LoadOptions{
		OnRecipe: func(done, total int) {
			if progress == nil {
				progress = cli.NewProgress(os.Stderr, total, "Fetching recipes")
			}
			progress.Update(done, total)
		},
		Concurrency:         a.cfg.Concurrency,
		SimilarityThreshold: a.cfg.SimilarityThreshold,
	})
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		return nil, err
	}

	for _, f := range result.Failures {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Skipped recipe %s: %s", f.ID, f.Error)))
	}
	common.LogInfo("Unlinked names carried by ingredients", common.Fields{
		"units": len(result.EntityNames[model.AxisUnit]),
		"foods": len(result.EntityNames[model.AxisFood]),
	})
	fmt.Println(cli.FormatInfo(fmt.Sprintf("Found %d patterns in %d recipes", len(result.Patterns), result.Recipes)))
	return result.Patterns, nil
}

func showParseSummary(summary *engine.ParseSummary, patterns []*model.Pattern, interrupted bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "Parsed:     %d in %s\n", summary.Total, summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Matched:    %s\n", cli.SuccessStyle.Render(fmt.Sprint(summary.Matched)))
	fmt.Fprintf(&b, "Unmatched:  %s\n", cli.WarningStyle.Render(fmt.Sprint(summary.Unmatched)))
	fmt.Fprintf(&b, "Errors:     %s\n", cli.ErrorStyle.Render(fmt.Sprint(summary.Errors)))
	fmt.Fprintf(&b, "Skipped:    %d", summary.Skipped)

	for _, f := range summary.Failures {
		fmt.Fprintf(&b, "\n  %s %s: %s", cli.ErrorIcon, f.ID, f.Error)
	}

	views := engine.NewViews(patterns)
	for _, axis := range []model.Axis{model.AxisUnit, model.AxisFood} {
		counts := views.Counts(axis)
		fmt.Fprintf(&b, "\n\n%s: %d unmatched, %d failed, %d matched",
			axis, counts[model.StatusUnmatched], counts[model.StatusError], counts[model.StatusMatched])
	}

	title := cli.ChartIcon + " Parse Complete"
	if interrupted {
		title = cli.ChartIcon + " Parse Interrupted"
	}
	fmt.Println(cli.RenderBox(title, b.String()))
	if !interrupted {
		fmt.Println(cli.FormatInfo("Run 'mealie-parser resolve' to handle unmatched patterns."))
	}
}
