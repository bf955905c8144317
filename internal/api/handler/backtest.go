package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/quantlab/backgrid/internal/api/job"
	"github.com/quantlab/backgrid/internal/api/response"
	"github.com/quantlab/backgrid/internal/backtest"
	"github.com/quantlab/backgrid/internal/config"
	"github.com/quantlab/backgrid/internal/core"
	"github.com/quantlab/backgrid/internal/fees"
	"github.com/quantlab/backgrid/internal/marketdata"
	"github.com/quantlab/backgrid/internal/metrics"
	"github.com/quantlab/backgrid/internal/regime"
	"github.com/quantlab/backgrid/internal/sim"
)

const backtestTimeout = 5 * time.Minute

// benchmarkTicker feeds alpha/beta when its bars are loaded.
const benchmarkTicker = "SPY"

// BacktestRequest is the request body for starting a backtest. Omitted
// numeric fields fall back to the configured engine defaults.
type BacktestRequest struct {
	Algorithms      string   `json:"algorithms"` // CSV filter, empty = all
	Direction       string   `json:"direction"`
	TakeProfit      float64  `json:"take_profit"`
	StopLoss        float64  `json:"stop_loss"`
	MaxHoldDays     int      `json:"max_hold_days"`
	EmbargoDays     *int     `json:"embargo_days,omitempty"`
	InitialCapital  float64  `json:"initial_capital"`
	CommissionModel string   `json:"commission_model"`
	Slippage        *float64 `json:"slippage,omitempty"`
	PositionSize    *float64 `json:"position_size,omitempty"`
	VolFilter       string   `json:"vol_filter"`
	MaxVIX          float64  `json:"max_vix"`
}

// Backtest handles single on-demand backtest requests as async jobs.
type Backtest struct {
	jobs     *job.Store
	runner   *backtest.Runner
	series   *marketdata.Series
	defaults config.EngineConfig
	registry *metrics.Registry
}

// NewBacktest creates a backtest handler.
func NewBacktest(jobs *job.Store, runner *backtest.Runner, series *marketdata.Series, defaults config.EngineConfig, registry *metrics.Registry) *Backtest {
	return &Backtest{
		jobs:     jobs,
		runner:   runner,
		series:   series,
		defaults: defaults,
		registry: registry,
	}
}

// Create starts a new backtest job.
func (h *Backtest) Create(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	params, capital := h.resolve(req)

	picks := h.series.Picks(params.Algorithms)
	if len(picks) == 0 {
		response.Error(w, http.StatusNotFound, core.ErrNoPicksFound)
		return
	}

	j := h.jobs.Create("backtest")
	jobID := j.ID

	go h.run(jobID, picks, params, capital)

	response.Accepted(w, jobID, j.Status)
}

// resolve merges the request with engine defaults into run parameters.
func (h *Backtest) resolve(req BacktestRequest) (backtest.Params, float64) {
	params := backtest.Params{
		Params: sim.Params{
			Direction:     core.Direction(strings.ToLower(req.Direction)),
			TakeProfitPct: req.TakeProfit,
			StopLossPct:   req.StopLoss,
			MaxHoldDays:   req.MaxHoldDays,
			EmbargoDays:   h.defaults.EmbargoDays,
			SlippagePct:   h.defaults.SlippagePct,
			Commission:    fees.ModelFromString(req.CommissionModel),
		},
		PositionSizePct: h.defaults.PositionSizePct,
		VolFilter:       regime.ModeFromString(req.VolFilter),
		MaxVIX:          req.MaxVIX,
	}
	if !params.Direction.IsValid() {
		params.Direction = core.DirectionLong
	}
	if req.CommissionModel == "" {
		params.Commission = fees.ModelFromString(h.defaults.CommissionModel)
	}
	if req.EmbargoDays != nil {
		params.EmbargoDays = *req.EmbargoDays
	}
	if req.Slippage != nil {
		params.SlippagePct = *req.Slippage
	}
	if req.PositionSize != nil {
		params.PositionSizePct = *req.PositionSize
	}
	if req.Algorithms != "" {
		params.Algorithms = strings.Split(req.Algorithms, ",")
	}

	capital := req.InitialCapital
	if capital <= 0 {
		capital = h.defaults.InitialCapital
	}
	return params, capital
}

// run executes the backtest and updates job status.
func (h *Backtest) run(jobID string, picks []core.Pick, params backtest.Params, capital float64) {
	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), backtestTimeout)
	defer cancel()

	began := time.Now()
	result, err := h.runner.Run(ctx, picks, h.series, params, capital, h.series.Bars(benchmarkTicker))

	if err != nil {
		h.registry.RecordBacktest("failed", time.Since(began).Seconds())
		h.jobs.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = core.WrapError(core.ErrConfigInvalid, err)
		})
		return
	}

	h.registry.RecordBacktest("complete", time.Since(began).Seconds())
	h.registry.RecordTrades(len(result.Trades))
	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Result = result
	})
	h.registry.SetJobsActive("backtest", h.jobs.Active())
}

// Get returns the status or result of a backtest job.
func (h *Backtest) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Error(w, http.StatusNotFound, err)
		return
	}

	resp := map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	}
	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = map[string]string{
			"code":    j.Error.Code,
			"message": j.Error.Message,
		}
	}

	response.JSON(w, http.StatusOK, resp)
}
