package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/cli"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Create or alias units and foods for unmatched patterns",
		Long: `Walk through every unmatched or failed pattern from the last parse and decide
what to do with it: create a new unit or food, alias it to an existing one,
parse it again or skip it.

Each decision updates every ingredient that shares the pattern text. The session
and pattern snapshot are saved after each step; quit with Q and run resolve
again to continue. Skipped patterns stay hidden unless --include-skipped is set.`,
		RunE: runResolve,
	}

	cmd.Flags().String("scope", string(engine.ScopeBoth), "Axes to resolve (unit, food, both)")
	cmd.Flags().Bool("include-skipped", false, "Offer previously skipped patterns again")
	_ = viper.BindPFlag("resolve.scope", cmd.Flags().Lookup("scope"))
	_ = viper.BindPFlag("resolve.include_skipped", cmd.Flags().Lookup("include-skipped"))

	return cmd
}

func runResolve(cmd *cobra.Command, _ []string) error {
	scope, err := engine.ParseScope(viper.GetString("resolve.scope"))
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	handler := cli.NewInterruptHandler(os.Stdout, "mealie-parser resolve")
	ctx, stop := handler.HandleInterrupts(cmd.Context())
	defer stop()

	state, err := a.loadSession(true)
	if err != nil {
		return err
	}
	patterns, err := a.loadStoredPatterns(ctx)
	if err != nil {
		return err
	}
	if err := a.reconciler.LoadCatalog(ctx); err != nil {
		return err
	}

	if op := state.CurrentOperation; op != nil {
		fmt.Println(cli.FormatWarning(fmt.Sprintf(
			"The last run stopped during %s for '%s'; it will be offered again", op.Type, op.PatternText)))
	}
	if viper.GetBool("resolve.include_skipped") {
		n, err := a.reconciler.Unskip(ctx, state, patterns, scope)
		if err != nil {
			return err
		}
		slog.Info("Reopened skipped patterns", "patterns", n)
	}

	fmt.Println(cli.FormatTitle("Resolving unmatched patterns"))
	prompter := cli.NewPrompter(os.Stdin, os.Stdout, a.reconciler.Catalog)
	prompter.SetPatterns(patterns)
	summary, resolveErr := a.reconciler.ResolveAll(ctx, state, patterns, prompter, scope)

	if err := a.savePatterns(ctx, patterns); err != nil {
		return err
	}
	state.Touch()
	if err := a.sessions.Save(state); err != nil {
		return err
	}

	if resolveErr != nil {
		if handler.WasInterrupted() || errors.Is(resolveErr, cli.ErrInputCancelled) {
			slog.Debug("Resolve interrupted", "error", resolveErr)
			prompter.ShowCompletion(summary, state)
			return nil
		}
		return resolveErr
	}

	prompter.ShowCompletion(summary, state)
	if len(summary.Reports) > 0 {
		fmt.Println(cli.FormatWarning("Some ingredients could not be updated. See 'mealie-parser reports list'."))
	}
	return nil
}
