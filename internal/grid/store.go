package grid

import (
	"context"
	"sync"
	"time"

	"github.com/quantlab/backgrid/internal/backtest"
)

// Status is the lifecycle state of a grid-search run.
type Status string

const (
	StatusReady    Status = "ready"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
)

// Cell is one persisted (params, summary) pair. Cells form an append-only
// journal: re-running a batch appends duplicate rows, it never upserts.
type Cell struct {
	ID        string           `json:"id"` // ulid, lexicographically time-ordered
	BatchID   int              `json:"batch_id"`
	Combo     Combo            `json:"combo"`
	Params    backtest.Params  `json:"params"`
	Summary   backtest.Summary `json:"summary"`
	CreatedAt time.Time        `json:"created_at"`
}

// RunState is the scheduler's checkpoint. NextCombo is the first combination
// index that has not yet been executed; everything below it is settled, so a
// restarted process resumes without redoing work.
type RunState struct {
	Status    Status    `json:"status"`
	Planned   int       `json:"planned"`
	NextCombo int       `json:"next_combo"`
	LastBatch int       `json:"last_batch"` // last fully completed batch, -1 if none
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists the cell journal and the run checkpoint. Implementations
// must keep AppendCell append-only; the combo key carries no uniqueness
// constraint.
type Store interface {
	AppendCell(ctx context.Context, cell Cell) error
	Cells(ctx context.Context) ([]Cell, error)
	RunState(ctx context.Context) (RunState, error)
	SaveRunState(ctx context.Context, state RunState) error
	Reset(ctx context.Context) error
	Close() error
}

// MemoryStore is an in-process Store for tests and single-shot CLI runs.
type MemoryStore struct {
	mu    sync.RWMutex
	cells []Cell
	state RunState
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: RunState{Status: StatusReady, LastBatch: -1}}
}

// AppendCell appends a cell to the journal.
func (m *MemoryStore) AppendCell(_ context.Context, cell Cell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells = append(m.cells, cell)
	return nil
}

// Cells returns a copy of the journal.
func (m *MemoryStore) Cells(_ context.Context) ([]Cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Cell, len(m.cells))
	copy(out, m.cells)
	return out, nil
}

// RunState returns the current checkpoint.
func (m *MemoryStore) RunState(_ context.Context) (RunState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, nil
}

// SaveRunState replaces the checkpoint.
func (m *MemoryStore) SaveRunState(_ context.Context, state RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

// Reset clears the journal and checkpoint.
func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells = nil
	m.state = RunState{Status: StatusReady, LastBatch: -1}
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
