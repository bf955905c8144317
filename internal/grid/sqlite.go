package grid

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/quantlab/backgrid/internal/backtest"
	"github.com/quantlab/backgrid/internal/core"
	"github.com/quantlab/backgrid/internal/fees"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS grid_cells (
	id TEXT PRIMARY KEY,
	batch_id INTEGER NOT NULL,
	combo_index INTEGER NOT NULL,
	direction TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	take_profit REAL NOT NULL,
	stop_loss REAL NOT NULL,
	hold_days INTEGER NOT NULL,
	commission TEXT NOT NULL,
	params TEXT NOT NULL,
	summary TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_grid_cells_batch ON grid_cells(batch_id);

CREATE TABLE IF NOT EXISTS simulation_run (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const runStateKey = "run_state"

// SQLiteStore persists the cell journal and run checkpoint in a SQLite file,
// so a killed sweep resumes across process restarts. The grid_cells table
// intentionally has no uniqueness constraint on the combo key: the journal
// is append-only and re-run batches append duplicates.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// AppendCell inserts one journal row, assigning a ulid if the cell has no id.
func (s *SQLiteStore) AppendCell(ctx context.Context, cell Cell) error {
	if cell.ID == "" {
		cell.ID = ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
	}
	if cell.CreatedAt.IsZero() {
		cell.CreatedAt = time.Now().UTC()
	}

	params, err := json.Marshal(cell.Params)
	if err != nil {
		return err
	}
	summary, err := json.Marshal(cell.Summary)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO grid_cells
		(id, batch_id, combo_index, direction, algorithm, take_profit, stop_loss, hold_days, commission, params, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cell.ID, cell.BatchID, cell.Combo.Index, string(cell.Combo.Direction),
		cell.Combo.Algorithm, cell.Combo.TakeProfitPct, cell.Combo.StopLossPct,
		cell.Combo.HoldDays, string(cell.Combo.Commission),
		string(params), string(summary), cell.CreatedAt,
	)
	return err
}

// Cells loads the full journal in insertion (id) order.
func (s *SQLiteStore) Cells(ctx context.Context) ([]Cell, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, combo_index, direction, algorithm, take_profit, stop_loss, hold_days, commission, params, summary, created_at
		FROM grid_cells
		ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cell
	for rows.Next() {
		var (
			cell                    Cell
			direction, commission   string
			paramsJSON, summaryJSON string
		)
		if err := rows.Scan(
			&cell.ID, &cell.BatchID, &cell.Combo.Index, &direction,
			&cell.Combo.Algorithm, &cell.Combo.TakeProfitPct, &cell.Combo.StopLossPct,
			&cell.Combo.HoldDays, &commission, &paramsJSON, &summaryJSON, &cell.CreatedAt,
		); err != nil {
			return nil, err
		}
		cell.Combo.Direction = core.Direction(direction)
		cell.Combo.Commission = fees.Model(commission)
		if err := json.Unmarshal([]byte(paramsJSON), &cell.Params); err != nil {
			cell.Params = backtest.Params{}
		}
		if err := json.Unmarshal([]byte(summaryJSON), &cell.Summary); err != nil {
			cell.Summary = backtest.Summary{}
		}
		out = append(out, cell)
	}
	return out, rows.Err()
}

// RunState loads the checkpoint, returning a fresh ready state when none has
// been recorded yet.
func (s *SQLiteStore) RunState(ctx context.Context) (RunState, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM simulation_run WHERE key = ?`, runStateKey).Scan(&value)
	if err == sql.ErrNoRows {
		return RunState{Status: StatusReady, LastBatch: -1}, nil
	}
	if err != nil {
		return RunState{}, err
	}

	var state RunState
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		return RunState{}, err
	}
	return state, nil
}

// SaveRunState upserts the checkpoint row.
func (s *SQLiteStore) SaveRunState(ctx context.Context, state RunState) error {
	value, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulation_run (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		runStateKey, string(value))
	return err
}

// Reset drops the journal and checkpoint.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM grid_cells`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM simulation_run`)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
