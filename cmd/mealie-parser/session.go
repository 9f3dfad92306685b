package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/cli"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/config"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or discard the saved session",
		Long: `The session file records which patterns were handled and which units and
foods were created, so an interrupted run can pick up where it left off.`,
	}

	cmd.AddCommand(showSessionCmd())
	cmd.AddCommand(clearSessionCmd())

	return cmd
}

func showSessionCmd() *cobra.Command {
	var runs int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the saved session and recent parse runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sessions := session.NewStore(config.SessionDir(viper.GetViper()))

			state, err := sessions.Load()
			if err != nil {
				return err
			}
			if state == nil {
				fmt.Println(cli.FormatInfo("No saved session at " + sessions.Path()))
				return nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "ID:        %s\n", state.ID)
			fmt.Fprintf(&b, "File:      %s\n", sessions.Path())
			fmt.Fprintf(&b, "Started:   %s\n", state.CreatedAt.Local().Format(time.DateTime))
			fmt.Fprintf(&b, "Updated:   %s\n", state.UpdatedAt.Local().Format(time.DateTime))
			fmt.Fprintf(&b, "Parsed:    %t\n", state.ParsingStarted)
			fmt.Fprintf(&b, "Processed: %d\n", len(state.ProcessedPatterns))
			fmt.Fprintf(&b, "Skipped:   %d\n", len(state.SkippedPatterns))
			fmt.Fprintf(&b, "Created:   %d units, %d foods", len(state.CreatedUnits), len(state.CreatedFoods))
			if op := state.CurrentOperation; op != nil {
				fmt.Fprintf(&b, "\n%s", cli.WarningStyle.Render(fmt.Sprintf(
					"Unfinished: %s for '%s' (%d ingredients)", op.Type, op.PatternText, len(op.IngredientIDs))))
			}
			fmt.Println(cli.RenderBox(cli.KitchenIcon+" Session", b.String()))

			store, err := initStorage(ctx, viper.GetString("storage.db_path"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			counts, err := storedCounts(ctx, store)
			if err != nil {
				return err
			}
			fmt.Println(counts)

			history, err := store.ListRuns(ctx, runs)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				return nil
			}

			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tMETHOD\tSCOPE\tTOTAL\tMATCHED\tUNMATCHED\tERRORS\tDURATION")
			for _, r := range history {
				duration := "running"
				if r.FinishedAt != nil {
					duration = r.Duration.Round(time.Millisecond).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					r.StartedAt.Local().Format(time.DateTime),
					r.Method, r.Scope,
					r.Counts.Total, r.Counts.Matched, r.Counts.Unmatched, r.Counts.Errors,
					duration)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 5, "Number of recent parse runs to show")

	return cmd
}

func clearSessionCmd() *cobra.Command {
	var keepPatterns bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved session and pattern snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sessions := session.NewStore(config.SessionDir(viper.GetViper()))
			if !sessions.Exists() {
				fmt.Println(cli.FormatInfo("No session file at " + sessions.Path()))
			}
			if err := sessions.Clear(); err != nil {
				return err
			}

			if !keepPatterns {
				store, err := initStorage(ctx, viper.GetString("storage.db_path"))
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				if err := store.ClearPatterns(ctx); err != nil {
					return err
				}
			}

			fmt.Println(cli.FormatSuccess("Session cleared"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepPatterns, "keep-patterns", false, "Keep the stored pattern snapshot")

	return cmd
}
