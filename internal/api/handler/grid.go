package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/quantlab/backgrid/internal/api/response"
	"github.com/quantlab/backgrid/internal/core"
	"github.com/quantlab/backgrid/internal/grid"
	"github.com/quantlab/backgrid/internal/storage/archive"
	"go.uber.org/zap"
)

// Grid exposes the grid-search scheduler over HTTP. One POST to run is one
// batch; state lives in the scheduler's store, so batches can be driven by
// any external trigger and resumed after restarts.
type Grid struct {
	scheduler *grid.Scheduler
	archiver  archive.Storage // nil disables run export
	logger    *zap.Logger
}

// NewGrid creates a grid handler.
func NewGrid(scheduler *grid.Scheduler, archiver archive.Storage, logger *zap.Logger) *Grid {
	return &Grid{scheduler: scheduler, archiver: archiver, logger: logger}
}

// RunBatch executes one batch. The batch index defaults to the next
// unfinished batch when the query parameter is absent.
func (h *Grid) RunBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	batch := -1
	if raw := r.URL.Query().Get("batch"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				core.WrapError(core.ErrConfigInvalid, err))
			return
		}
		batch = n
	}
	if batch < 0 {
		state, err := h.scheduler.Status(ctx)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, err)
			return
		}
		batch = state.LastBatch + 1
	}

	report, err := h.scheduler.RunBatch(ctx, batch)
	if err != nil {
		if errors.Is(err, core.ErrBatchOutOfRange) {
			response.Error(w, http.StatusBadRequest, err)
			return
		}
		if errors.Is(err, core.ErrBatchNotReady) {
			response.Error(w, http.StatusConflict, err)
			return
		}
		response.Error(w, http.StatusInternalServerError, err)
		return
	}

	if report.Status == grid.StatusComplete {
		h.export(r)
	}

	response.JSON(w, http.StatusOK, report)
}

// export archives the finished run. Failures are logged, never surfaced:
// the sweep itself already succeeded.
func (h *Grid) export(r *http.Request) {
	if h.archiver == nil {
		return
	}
	ctx := r.Context()

	state, err := h.scheduler.Status(ctx)
	if err != nil {
		h.logger.Warn("skipping run export", zap.Error(err))
		return
	}
	cells, err := h.scheduler.Cells(ctx)
	if err != nil {
		h.logger.Warn("skipping run export", zap.Error(err))
		return
	}

	runID := fmt.Sprintf("grid-%s", time.Now().UTC().Format("20060102-150405"))
	if err := archive.ExportRun(ctx, h.archiver, runID, state, cells); err != nil {
		h.logger.Error("archiving grid run failed", zap.Error(err))
		return
	}
	h.logger.Info("grid run archived", zap.String("run_id", runID), zap.Int("cells", len(cells)))
}

// Status reports combos completed vs planned and current run state.
func (h *Grid) Status(w http.ResponseWriter, r *http.Request) {
	state, err := h.scheduler.Status(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"status":    state.Status,
		"completed": state.NextCombo,
		"planned":   state.Planned,
	})
}

// Reset clears the cell journal and run state.
func (h *Grid) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Reset(r.Context()); err != nil {
		response.Error(w, http.StatusInternalServerError, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"status": grid.StatusReady})
}

// Results returns the ranked report. Unknown sort keys fall back to
// total_return; a missing or bad limit falls back to 10.
func (h *Grid) Results(w http.ResponseWriter, r *http.Request) {
	key := grid.SortKeyFromString(r.URL.Query().Get("sort_by"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	report, err := h.scheduler.Results(r.Context(), key, limit)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err)
		return
	}
	response.JSON(w, http.StatusOK, report)
}
