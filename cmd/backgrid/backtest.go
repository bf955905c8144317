package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/quantlab/backgrid/internal/backtest"
	"github.com/quantlab/backgrid/internal/core"
	"github.com/quantlab/backgrid/internal/fees"
	"github.com/quantlab/backgrid/internal/regime"
	"github.com/quantlab/backgrid/internal/sim"
	"github.com/spf13/cobra"
)

var (
	btAlgorithms string
	btDirection  string
	btTakeProfit float64
	btStopLoss   float64
	btHoldDays   int
	btEmbargo    int
	btCapital    float64
	btCommission string
	btSlippage   float64
	btPosition   float64
	btVolFilter  string
	btMaxVIX     float64
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run one backtest and print its statistics",
	Long:  "Simulate every matching pick under one rule configuration and print the aggregate report.",
	RunE:  runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&btAlgorithms, "algorithms", "", "CSV algorithm filter (empty = all)")
	backtestCmd.Flags().StringVar(&btDirection, "direction", "long", "long or short")
	backtestCmd.Flags().Float64Var(&btTakeProfit, "take-profit", 10, "take-profit % (>=999 disables)")
	backtestCmd.Flags().Float64Var(&btStopLoss, "stop-loss", 5, "stop-loss % (>=999 disables)")
	backtestCmd.Flags().IntVar(&btHoldDays, "max-hold-days", 20, "maximum hold days")
	backtestCmd.Flags().IntVar(&btEmbargo, "embargo-days", -1, "embargo days (-1 = config default)")
	backtestCmd.Flags().Float64Var(&btCapital, "capital", 0, "initial capital (0 = config default)")
	backtestCmd.Flags().StringVar(&btCommission, "commission", "", "commission model: questrade, flat, zero")
	backtestCmd.Flags().Float64Var(&btSlippage, "slippage", -1, "slippage % (-1 = config default)")
	backtestCmd.Flags().Float64Var(&btPosition, "position-size", 0, "position size % (0 = config default)")
	backtestCmd.Flags().StringVar(&btVolFilter, "vol-filter", "off", "off, skip_high, skip_elevated, calm_only, custom")
	backtestCmd.Flags().Float64Var(&btMaxVIX, "max-vix", 0, "VIX ceiling for custom vol filter")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	params := backtest.Params{
		Params: sim.Params{
			Direction:     core.Direction(btDirection),
			TakeProfitPct: btTakeProfit,
			StopLossPct:   btStopLoss,
			MaxHoldDays:   btHoldDays,
			EmbargoDays:   a.cfg.Engine.EmbargoDays,
			SlippagePct:   a.cfg.Engine.SlippagePct,
			Commission:    fees.ModelFromString(a.cfg.Engine.CommissionModel),
		},
		PositionSizePct: a.cfg.Engine.PositionSizePct,
		VolFilter:       regime.ModeFromString(btVolFilter),
		MaxVIX:          btMaxVIX,
	}
	if !params.Direction.IsValid() {
		params.Direction = core.DirectionLong
	}
	if btEmbargo >= 0 {
		params.EmbargoDays = btEmbargo
	}
	if btSlippage >= 0 {
		params.SlippagePct = btSlippage
	}
	if btPosition > 0 {
		params.PositionSizePct = btPosition
	}
	if btCommission != "" {
		params.Commission = fees.ModelFromString(btCommission)
	}
	if btAlgorithms != "" {
		params.Algorithms = strings.Split(btAlgorithms, ",")
	}

	capital := btCapital
	if capital <= 0 {
		capital = a.cfg.Engine.InitialCapital
	}

	picks := a.series.Picks(params.Algorithms)
	if len(picks) == 0 {
		return core.ErrNoPicksFound
	}

	result, err := a.runner.Run(context.Background(), picks, a.series, params, capital, a.series.Bars("SPY"))
	if err != nil {
		return err
	}

	printReport(result)
	return nil
}

func printReport(result *backtest.Result) {
	s := result.Summary

	fmt.Println("===== Backtest Report =====")
	fmt.Printf("Total Trades:     %d (skipped %d)\n", s.TotalTrades, s.SkippedPicks)
	fmt.Printf("Win Rate:         %.1f%% (%d W / %d L)\n", s.WinRate, s.WinningTrades, s.LosingTrades)
	fmt.Printf("Avg Win / Loss:   %.2f%% / %.2f%%\n", s.AvgWinPct, s.AvgLossPct)

	fmt.Println("\n-- Performance --")
	fmt.Printf("Total Return:     %.2f%%\n", s.TotalReturnPct)
	fmt.Printf("CAGR:             %.2f%%\n", s.CAGR)
	fmt.Printf("Final Capital:    %.2f (from %.2f)\n", s.FinalCapital, s.InitialCapital)
	fmt.Printf("Total Fees:       %.2f\n", s.TotalFees)

	fmt.Println("\n-- Risk --")
	fmt.Printf("Max Drawdown:     %.2f%%\n", s.MaxDrawdownPct)
	fmt.Printf("Sharpe:           %.3f (annualized %.3f)\n", s.Sharpe, s.SharpeAnnualized)
	fmt.Printf("Sortino:          %.3f\n", s.Sortino)
	fmt.Printf("Calmar:           %.3f\n", s.Calmar)
	fmt.Printf("Profit Factor:    %.2f\n", s.ProfitFactor)
	fmt.Printf("Expectancy:       %.2f%%\n", s.Expectancy)
	if s.Beta != 0 {
		fmt.Printf("Alpha / Beta:     %.3f / %.3f\n", s.Alpha, s.Beta)
	}
	fmt.Println("===========================")
}
