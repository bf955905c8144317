package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quantlab/backgrid/internal/api/job"
	"github.com/quantlab/backgrid/internal/backtest"
	"github.com/quantlab/backgrid/internal/config"
	"github.com/quantlab/backgrid/internal/core"
	"github.com/quantlab/backgrid/internal/fees"
	"github.com/quantlab/backgrid/internal/grid"
	"github.com/quantlab/backgrid/internal/marketdata"
	"github.com/quantlab/backgrid/internal/metrics"
	"github.com/quantlab/backgrid/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func handlerDate(n int) time.Time {
	return time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func handlerSeries(t *testing.T) *marketdata.Series {
	t.Helper()
	s := marketdata.NewSeries()
	bars := []core.PriceBar{
		{Ticker: "AAPL", Date: handlerDate(0), Open: 100, High: 105, Low: 99, Close: 104},
		{Ticker: "AAPL", Date: handlerDate(1), Open: 104, High: 112, Low: 103, Close: 111},
	}
	for _, b := range bars {
		require.NoError(t, s.AddBar(b))
	}
	s.AddPick(core.Pick{Ticker: "AAPL", Algorithm: "MOMENTUM", EntryDate: handlerDate(0), EntryPrice: 100})
	s.Sort()
	return s
}

func newBacktestHandler(t *testing.T) (*Backtest, *job.Store) {
	t.Helper()
	quoter := fees.NewAdapter()
	runner := backtest.NewRunner(sim.New(quoter), quoter, nil, zap.NewNop())
	jobs := job.NewStore(10, time.Hour)

	defaults := config.EngineConfig{
		InitialCapital:  10000,
		EmbargoDays:     0,
		SlippagePct:     0,
		PositionSizePct: 100,
		CommissionModel: "zero",
	}
	return NewBacktest(jobs, runner, handlerSeries(t), defaults, metrics.NewRegistry()), jobs
}

// backtestMux routes requests the way the real server does, so PathValue
// resolution works in tests.
func backtestMux(h *Backtest) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/backtest", h.Create)
	mux.HandleFunc("GET /api/backtest/{id}", h.Get)
	return mux
}

func TestBacktestCreateRunsJob(t *testing.T) {
	h, jobs := newBacktestHandler(t)
	mux := backtestMux(h)

	body := `{"direction":"long","take_profit":10,"stop_loss":5,"max_hold_days":20}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/backtest", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Data struct {
			JobID  string `json:"job_id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.JobID)

	require.Eventually(t, func() bool {
		j, err := jobs.Get(resp.Data.JobID)
		return err == nil && j.Status == job.StatusComplete
	}, 5*time.Second, 10*time.Millisecond)

	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/api/backtest/"+resp.Data.JobID, nil))
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Contains(t, getRec.Body.String(), `"status":"complete"`)
	assert.Contains(t, getRec.Body.String(), `"total_trades":1`)
}

func TestBacktestCreateNoMatchingPicks(t *testing.T) {
	h, _ := newBacktestHandler(t)
	mux := backtestMux(h)

	body := `{"algorithms":"nonexistent","take_profit":10,"stop_loss":5,"max_hold_days":20}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/backtest", strings.NewReader(body)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NO_PICKS_FOUND")
}

func TestBacktestCreateBadBody(t *testing.T) {
	h, _ := newBacktestHandler(t)
	mux := backtestMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/backtest", strings.NewReader("{nope")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBacktestGetUnknownJob(t *testing.T) {
	h, _ := newBacktestHandler(t)
	mux := backtestMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/backtest/unknown-id", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "JOB_NOT_FOUND")
}

func newGridHandler(t *testing.T) *Grid {
	t.Helper()
	series := handlerSeries(t)
	quoter := fees.NewAdapter()
	runner := backtest.NewRunner(sim.New(quoter), quoter, nil, zap.NewNop())

	space := grid.NewSpace(series.Algorithms(), []float64{10}, []float64{5}, []int{20}, []string{"zero"})
	scheduler := grid.NewScheduler(space, series, runner, grid.NewMemoryStore(), grid.Options{
		BatchSize: 2,
		Workers:   2,
		Capital:   10000,
		Base: backtest.Params{
			Params:          sim.Params{MaxHoldDays: 20},
			PositionSizePct: 100,
		},
	}, zap.NewNop(), nil)

	return NewGrid(scheduler, nil, zap.NewNop())
}

func TestGridRunBatch(t *testing.T) {
	h := newGridHandler(t)

	rec := httptest.NewRecorder()
	h.RunBatch(rec, httptest.NewRequest(http.MethodPost, "/api/grid/run?batch=0", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"batch":0`)
	assert.Contains(t, rec.Body.String(), `"executed":2`)
}

func TestGridRunBatchDefaultsToNext(t *testing.T) {
	h := newGridHandler(t)

	first := httptest.NewRecorder()
	h.RunBatch(first, httptest.NewRequest(http.MethodPost, "/api/grid/run", nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), `"batch":0`)

	second := httptest.NewRecorder()
	h.RunBatch(second, httptest.NewRequest(http.MethodPost, "/api/grid/run", nil))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), `"batch":1`)
}

func TestGridRunBatchOutOfRange(t *testing.T) {
	h := newGridHandler(t)

	rec := httptest.NewRecorder()
	h.RunBatch(rec, httptest.NewRequest(http.MethodPost, "/api/grid/run?batch=99", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "BATCH_OUT_OF_RANGE")
}

func TestGridRunBatchAheadOfCheckpoint(t *testing.T) {
	h := newGridHandler(t)

	rec := httptest.NewRecorder()
	h.RunBatch(rec, httptest.NewRequest(http.MethodPost, "/api/grid/run?batch=1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "BATCH_NOT_READY")
}

func TestGridRunBatchBadParam(t *testing.T) {
	h := newGridHandler(t)

	rec := httptest.NewRecorder()
	h.RunBatch(rec, httptest.NewRequest(http.MethodPost, "/api/grid/run?batch=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGridStatusAndReset(t *testing.T) {
	h := newGridHandler(t)

	run := httptest.NewRecorder()
	h.RunBatch(run, httptest.NewRequest(http.MethodPost, "/api/grid/run?batch=0", nil))
	require.Equal(t, http.StatusOK, run.Code)

	status := httptest.NewRecorder()
	h.Status(status, httptest.NewRequest(http.MethodGet, "/api/grid/status", nil))
	require.Equal(t, http.StatusOK, status.Code)
	assert.Contains(t, status.Body.String(), `"completed":2`)

	reset := httptest.NewRecorder()
	h.Reset(reset, httptest.NewRequest(http.MethodPost, "/api/grid/reset", nil))
	require.Equal(t, http.StatusOK, reset.Code)

	after := httptest.NewRecorder()
	h.Status(after, httptest.NewRequest(http.MethodGet, "/api/grid/status", nil))
	assert.Contains(t, after.Body.String(), `"completed":0`)
}

func TestGridResults(t *testing.T) {
	h := newGridHandler(t)

	run := httptest.NewRecorder()
	h.RunBatch(run, httptest.NewRequest(http.MethodPost, "/api/grid/run?batch=0", nil))
	require.Equal(t, http.StatusOK, run.Code)

	rec := httptest.NewRecorder()
	h.Results(rec, httptest.NewRequest(http.MethodGet, "/api/grid/results?sort_by=win_rate&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sort_key":"win_rate"`)
	assert.Contains(t, rec.Body.String(), `"top_results"`)
}
