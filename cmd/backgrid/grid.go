package main

import (
	"context"
	"fmt"

	"github.com/quantlab/backgrid/internal/grid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	gridBatch  int
	gridAll    bool
	gridSortBy string
	gridLimit  int
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Parameter grid search over exit-rule combinations",
}

var gridRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one batch of the grid (or --all remaining batches)",
	RunE:  runGridRun,
}

var gridStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show grid search progress",
	RunE:  runGridStatus,
}

var gridResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all grid results and restart from combination zero",
	RunE:  runGridReset,
}

var gridResultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Print the ranked grid results",
	RunE:  runGridResults,
}

func init() {
	gridRunCmd.Flags().IntVar(&gridBatch, "batch", -1, "batch index to run (-1 = next after last completed)")
	gridRunCmd.Flags().BoolVar(&gridAll, "all", false, "run every remaining batch until the grid completes")
	gridResultsCmd.Flags().StringVar(&gridSortBy, "sort-by", "total_return", "total_return, win_rate, sharpe, profit_factor")
	gridResultsCmd.Flags().IntVar(&gridLimit, "limit", 10, "number of top/worst rows to print")

	gridCmd.AddCommand(gridRunCmd, gridStatusCmd, gridResetCmd, gridResultsCmd)
	rootCmd.AddCommand(gridCmd)
}

func runGridRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	if gridAll {
		return runGridAll(ctx, a)
	}

	batch := gridBatch
	if batch < 0 {
		state, err := a.scheduler.Status(ctx)
		if err != nil {
			return err
		}
		batch = 0
		if state.NextCombo > 0 {
			batch = state.LastBatch
			if state.NextCombo >= (state.LastBatch+1)*a.cfg.Grid.BatchSize {
				batch = state.LastBatch + 1
			}
		}
	}

	report, err := a.scheduler.RunBatch(ctx, batch)
	if err != nil {
		return err
	}
	printBatchReport(report)
	return nil
}

// runGridAll loops RunBatch until the run state reaches complete. Partial
// batches (budget cutoffs) re-enter the same batch on the next iteration.
func runGridAll(ctx context.Context, a *app) error {
	planned := a.scheduler.Planned()
	bar := progressbar.NewOptions(planned,
		progressbar.OptionSetDescription("grid search"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("combos"),
	)

	state, err := a.scheduler.Status(ctx)
	if err != nil {
		return err
	}
	if state.Status == grid.StatusComplete {
		fmt.Printf("grid already complete: %d/%d combinations (reset to re-run)\n",
			state.NextCombo, state.Planned)
		return nil
	}
	bar.Set(state.NextCombo)

	batch := state.NextCombo / a.cfg.Grid.BatchSize
	for {
		report, err := a.scheduler.RunBatch(ctx, batch)
		if err != nil {
			return err
		}
		bar.Set(report.Completed)
		if report.Status == grid.StatusComplete {
			break
		}
		if !report.Partial {
			batch++
		}
	}
	fmt.Println()

	final, err := a.scheduler.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("grid complete: %d/%d combinations\n", final.NextCombo, final.Planned)
	return nil
}

func runGridStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	state, err := a.scheduler.Status(context.Background())
	if err != nil {
		return err
	}

	pct := 0.0
	if state.Planned > 0 {
		pct = float64(state.NextCombo) / float64(state.Planned) * 100
	}
	fmt.Printf("Status:      %s\n", state.Status)
	fmt.Printf("Progress:    %d/%d combinations (%.1f%%)\n", state.NextCombo, state.Planned, pct)
	fmt.Printf("Last batch:  %d of %d\n", state.LastBatch, a.scheduler.Batches()-1)
	if !state.UpdatedAt.IsZero() {
		fmt.Printf("Updated:     %s\n", state.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}

func runGridReset(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.scheduler.Reset(context.Background()); err != nil {
		return err
	}
	fmt.Println("grid state cleared")
	return nil
}

func runGridResults(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.scheduler.Results(context.Background(),
		grid.SortKeyFromString(gridSortBy), gridLimit)
	if err != nil {
		return err
	}

	fmt.Printf("===== Grid Results (by %s) =====\n\n", report.SortKey)
	fmt.Println("Top configurations:")
	printCells(report.Top)
	fmt.Println("\nWorst configurations:")
	printCells(report.Worst)

	if len(report.PerAlgorithm) > 0 {
		fmt.Println("\nBest per algorithm:")
		for algo, c := range report.PerAlgorithm {
			fmt.Printf("  %-16s TP %.1f%% SL %.1f%% hold %dd %s: %.2f%% return, %.1f%% wins\n",
				algo, c.Combo.TakeProfitPct, c.Combo.StopLossPct, c.Combo.HoldDays,
				c.Combo.Direction, c.Summary.TotalReturnPct, c.Summary.WinRate)
		}
	}
	return nil
}

func printCells(cells []grid.Cell) {
	for i, c := range cells {
		fmt.Printf("%3d. %-16s %-5s TP %6.1f%% SL %6.1f%% hold %3dd %-9s | ret %8.2f%% win %5.1f%% sharpe %6.3f pf %6.2f trades %d\n",
			i+1, c.Combo.Algorithm, c.Combo.Direction,
			c.Combo.TakeProfitPct, c.Combo.StopLossPct, c.Combo.HoldDays, c.Combo.Commission,
			c.Summary.TotalReturnPct, c.Summary.WinRate, c.Summary.Sharpe,
			c.Summary.ProfitFactor, c.Summary.TotalTrades)
	}
}

func printBatchReport(r *grid.BatchReport) {
	fmt.Printf("batch %d: executed %d combos, persisted %d cells", r.Batch, r.Executed, r.Persisted)
	if r.Partial {
		fmt.Print(" (budget cutoff, re-run to resume)")
	}
	fmt.Printf("\nprogress: %d/%d combinations, state %s\n", r.Completed, r.Planned, r.Status)
}
