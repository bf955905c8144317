package job

import (
	"testing"
	"time"

	"github.com/quantlab/backgrid/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	store := NewStore(10, time.Hour)

	created := store.Create("backtest")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusPending, created.Status)

	got, err := store.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "backtest", got.Type)
}

func TestGetUnknownJob(t *testing.T) {
	store := NewStore(10, time.Hour)
	_, err := store.Get("nope")
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestUpdate(t *testing.T) {
	store := NewStore(10, time.Hour)
	j := store.Create("backtest")

	require.NoError(t, store.Update(j.ID, func(job *Job) {
		job.Status = StatusComplete
		job.Result = "done"
	}))

	got, err := store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, "done", got.Result)

	assert.ErrorIs(t, store.Update("nope", func(*Job) {}), core.ErrJobNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewStore(10, time.Hour)
	j := store.Create("backtest")

	got, err := store.Get(j.ID)
	require.NoError(t, err)
	got.Status = StatusFailed

	again, err := store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status, "mutating a Get result must not touch the store")
}

func TestFIFOEviction(t *testing.T) {
	store := NewStore(2, time.Hour)

	first := store.Create("backtest")
	second := store.Create("backtest")
	third := store.Create("backtest") // evicts first

	_, err := store.Get(first.ID)
	assert.ErrorIs(t, err, core.ErrJobNotFound)

	for _, j := range []*Job{second, third} {
		_, err := store.Get(j.ID)
		assert.NoError(t, err)
	}
}

func TestTTLExpiry(t *testing.T) {
	store := NewStore(10, time.Millisecond)
	j := store.Create("backtest")

	time.Sleep(5 * time.Millisecond)

	_, err := store.Get(j.ID)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestActiveCount(t *testing.T) {
	store := NewStore(10, time.Hour)
	a := store.Create("backtest")
	store.Create("backtest")

	assert.Equal(t, 2, store.Active())

	require.NoError(t, store.Update(a.ID, func(j *Job) { j.Status = StatusComplete }))
	assert.Equal(t, 1, store.Active())
}
