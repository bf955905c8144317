package archive

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/quantlab/backgrid/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *LocalFS {
	t.Helper()
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestLocalFSWriteReadExists(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "runs/abc/summary.json", []byte(`{"ok":true}`)))

	data, err := fs.Read(ctx, "runs/abc/summary.json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	exists, err := fs.Exists(ctx, "runs/abc/summary.json")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = fs.Exists(ctx, "runs/abc/missing.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalFSList(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "runs/a/cells.json", []byte("1")))
	require.NoError(t, fs.Write(ctx, "runs/a/summary.json", []byte("2")))
	require.NoError(t, fs.Write(ctx, "runs/b/summary.json", []byte("3")))

	paths, err := fs.List(ctx, "runs/a")
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	empty, err := fs.List(ctx, "runs/none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestExportRun(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	state := grid.RunState{Status: grid.StatusComplete, Planned: 8, NextCombo: 8, LastBatch: 2}
	cells := []grid.Cell{{BatchID: 0}, {BatchID: 1}}

	require.NoError(t, ExportRun(ctx, fs, "grid-20240601-120000", state, cells))

	raw, err := fs.Read(ctx, "runs/grid-20240601-120000/summary.json")
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, "grid-20240601-120000", snap.RunID)
	assert.Equal(t, 2, snap.CellCount)
	assert.Equal(t, grid.StatusComplete, snap.State.Status)

	rawCells, err := fs.Read(ctx, "runs/grid-20240601-120000/cells.json")
	require.NoError(t, err)

	var restored []grid.Cell
	require.NoError(t, json.Unmarshal(rawCells, &restored))
	assert.Len(t, restored, 2)
}
