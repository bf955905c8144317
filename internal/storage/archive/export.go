package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantlab/backgrid/internal/grid"
)

// Snapshot is the archived form of one finished grid run.
type Snapshot struct {
	RunID      string        `json:"run_id"`
	ArchivedAt time.Time     `json:"archived_at"`
	State      grid.RunState `json:"state"`
	CellCount  int           `json:"cell_count"`
}

// ExportRun writes a completed run's checkpoint and full cell journal under
// runs/<runID>/ so the journal can be reset without losing the results.
func ExportRun(ctx context.Context, store Storage, runID string, state grid.RunState, cells []grid.Cell) error {
	snap := Snapshot{
		RunID:      runID,
		ArchivedAt: time.Now().UTC(),
		State:      state,
		CellCount:  len(cells),
	}

	summary, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := store.Write(ctx, path(runID, "summary.json"), summary); err != nil {
		return fmt.Errorf("writing run summary: %w", err)
	}

	data, err := json.Marshal(cells)
	if err != nil {
		return err
	}
	if err := store.Write(ctx, path(runID, "cells.json"), data); err != nil {
		return fmt.Errorf("writing run cells: %w", err)
	}
	return nil
}

func path(runID, name string) string {
	return "runs/" + runID + "/" + name
}
