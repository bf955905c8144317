package grid

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantlab/backgrid/internal/backtest"
	"github.com/quantlab/backgrid/internal/core"
	"github.com/quantlab/backgrid/internal/marketdata"
	"go.uber.org/zap"
)

// Metrics is the subset of the metrics registry the scheduler reports to.
type Metrics interface {
	RecordBatch(status string, duration float64)
	RecordCombos(n int)
}

// Scheduler sweeps the combination space in batches. One RunBatch call
// executes one bounded slice of the enumeration under a wall-clock budget
// and persists a cell per combination that produced at least one trade.
//
// Combinations are independent: every worker reads the same immutable
// series and writes its own result, so the only coordination is the range
// dispatch counter and the single-threaded journal append after the join.
type Scheduler struct {
	space     Space
	series    *marketdata.Series
	runner    *backtest.Runner
	store     Store
	base      backtest.Params
	capital   float64
	batchSize int
	budget    time.Duration
	workers   int
	logger    *zap.Logger
	metrics   Metrics

	mu sync.Mutex // serializes RunBatch/Reset; combos parallelize inside
}

// BatchReport summarizes one RunBatch invocation.
type BatchReport struct {
	Batch     int    `json:"batch"`
	Executed  int    `json:"executed"`
	Persisted int    `json:"persisted"`
	Partial   bool   `json:"partial"`
	Completed int    `json:"completed"`
	Planned   int    `json:"planned"`
	Status    Status `json:"status"`
}

// Options configures a Scheduler.
type Options struct {
	BatchSize int
	Budget    time.Duration
	Workers   int
	Capital   float64
	Base      backtest.Params // embargo, slippage, sizing defaults for every combo
}

// NewScheduler creates a Scheduler over a preloaded series.
func NewScheduler(space Space, series *marketdata.Series, runner *backtest.Runner, store Store, opts Options, logger *zap.Logger, metrics Metrics) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &Scheduler{
		space:     space,
		series:    series,
		runner:    runner,
		store:     store,
		base:      opts.Base,
		capital:   opts.Capital,
		batchSize: opts.BatchSize,
		budget:    opts.Budget,
		workers:   opts.Workers,
		logger:    logger,
		metrics:   metrics,
	}
}

// Planned is the total number of combinations in the space.
func (s *Scheduler) Planned() int { return s.space.Size() }

// Batches is the number of batches covering the space.
func (s *Scheduler) Batches() int {
	return (s.space.Size() + s.batchSize - 1) / s.batchSize
}

// RunBatch executes batch k's slice of the enumeration. Batches must be
// driven in order: a batch whose slice starts past the checkpoint is
// rejected with ErrBatchNotReady, since running it would strand the pending
// tail below it. If a previous invocation of the same batch was cut short by
// the budget, execution resumes from the checkpointed combination; if the
// batch already completed, the full slice is re-executed and its rows are
// appended again (the journal is write-once per invocation, not an
// idempotent cache) while the checkpoint keeps its high-water mark.
func (s *Scheduler) RunBatch(ctx context.Context, batch int) (*BatchReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	planned := s.space.Size()
	start := batch * s.batchSize
	end := start + s.batchSize
	if end > planned {
		end = planned
	}
	if batch < 0 || start >= planned {
		return nil, core.ErrBatchOutOfRange
	}

	state, err := s.store.RunState(ctx)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	if start > state.NextCombo {
		return nil, core.ErrBatchNotReady
	}
	state.Status = StatusRunning
	state.Planned = planned

	// Resume a partial batch from its checkpoint; anything else re-runs
	// the whole slice.
	from := start
	if state.NextCombo > start && state.NextCombo < end {
		from = state.NextCombo
	}

	began := time.Now()
	runCtx := ctx
	if s.budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	cells, executed := s.sweep(runCtx, batch, from, end)

	persisted := 0
	for _, cell := range cells {
		if err := s.appendWithRetry(ctx, cell); err != nil {
			// A lost cell is logged, not fatal; the rest of the batch
			// must still land.
			s.logger.Error("dropping grid cell after failed append",
				zap.Int("combo", cell.Combo.Index), zap.Error(err))
			continue
		}
		persisted++
	}

	next := from + executed
	partial := next < end
	if state.NextCombo > next {
		// Re-running an already-covered batch never rewinds the checkpoint.
		next = state.NextCombo
	}

	state.NextCombo = next
	if !partial && batch > state.LastBatch {
		state.LastBatch = batch
	}
	if next >= planned {
		state.Status = StatusComplete
	} else {
		state.Status = StatusReady
	}
	state.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveRunState(ctx, state); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}

	status := "complete"
	if partial {
		status = "partial"
	}
	if s.metrics != nil {
		s.metrics.RecordBatch(status, time.Since(began).Seconds())
		s.metrics.RecordCombos(executed)
	}
	s.logger.Info("grid batch finished",
		zap.Int("batch", batch),
		zap.Int("executed", executed),
		zap.Int("persisted", persisted),
		zap.Bool("partial", partial),
		zap.String("state", string(state.Status)),
	)

	return &BatchReport{
		Batch:     batch,
		Executed:  executed,
		Persisted: persisted,
		Partial:   partial,
		Completed: state.NextCombo,
		Planned:   planned,
		Status:    state.Status,
	}, nil
}

// sweep runs combos [from, end) across the worker pool and returns the
// cells for the contiguous prefix of completed combinations. Work past the
// first unfinished combination is discarded so the checkpoint always means
// "everything below this index is settled".
func (s *Scheduler) sweep(ctx context.Context, batch, from, end int) ([]Cell, int) {
	type slot struct {
		cell Cell
		ok   bool // combo executed (cell may still be empty if no trades)
		keep bool // produced at least one trade
	}

	results := make([]slot, end-from)
	cursor := int64(from)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= end {
					return
				}
				select {
				case <-ctx.Done():
					return
				default:
				}

				combo := s.space.ComboAt(i)
				cell, keep := s.evaluate(ctx, batch, combo)
				results[i-from] = slot{cell: cell, ok: true, keep: keep}
			}
		}()
	}
	wg.Wait()

	var cells []Cell
	executed := 0
	for _, r := range results {
		if !r.ok {
			break
		}
		executed++
		if r.keep {
			cells = append(cells, r.cell)
		}
	}
	return cells, executed
}

// evaluate runs one combination's backtest. Combos whose run produced no
// trades yield no cell.
func (s *Scheduler) evaluate(ctx context.Context, batch int, combo Combo) (Cell, bool) {
	params := s.base
	params.Direction = combo.Direction
	params.TakeProfitPct = combo.TakeProfitPct
	params.StopLossPct = combo.StopLossPct
	params.MaxHoldDays = combo.HoldDays
	params.Commission = combo.Commission
	params.Algorithms = combo.AlgorithmFilter()

	picks := s.series.Picks(params.Algorithms)
	if len(picks) == 0 {
		return Cell{}, false
	}

	run, err := s.runner.Run(ctx, picks, s.series, params, s.capital, nil)
	if err != nil || len(run.Trades) == 0 {
		return Cell{}, false
	}

	return Cell{
		BatchID: batch,
		Combo:   combo,
		Params:  params,
		Summary: run.Summary,
	}, true
}

// appendWithRetry tries a failed journal append one more time before giving
// up on the row.
func (s *Scheduler) appendWithRetry(ctx context.Context, cell Cell) error {
	if err := s.store.AppendCell(ctx, cell); err != nil {
		s.logger.Warn("grid cell append failed, retrying", zap.Error(err))
		return s.store.AppendCell(ctx, cell)
	}
	return nil
}

// Status reports progress: combinations completed vs planned and run state.
func (s *Scheduler) Status(ctx context.Context) (RunState, error) {
	state, err := s.store.RunState(ctx)
	if err != nil {
		return RunState{}, core.WrapError(core.ErrStoreFailed, err)
	}
	if state.Planned == 0 {
		state.Planned = s.space.Size()
	}
	return state, nil
}

// Cells returns the full cell journal.
func (s *Scheduler) Cells(ctx context.Context) ([]Cell, error) {
	cells, err := s.store.Cells(ctx)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return cells, nil
}

// Reset clears the journal and checkpoint.
func (s *Scheduler) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Reset(ctx); err != nil {
		return core.WrapError(core.ErrStoreFailed, err)
	}
	return nil
}
