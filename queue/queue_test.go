package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsTaskAndReportsCompletion(t *testing.T) {
	p := NewPool(context.Background(), 2, 8)

	var ran atomic.Bool
	err := p.Submit(TileTask{
		Priority: 1,
		Run: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
	})
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	var completions []Completion
	for time.Now().Before(deadline) && len(completions) == 0 {
		completions = append(completions, p.Drain(8)...)
	}
	require.Len(t, completions, 1)
	assert.NoError(t, completions[0].Err)
	assert.True(t, ran.Load())
}

func TestSubmitPropagatesTaskError(t *testing.T) {
	p := NewPool(context.Background(), 1, 8)
	wantErr := errors.New("decode failed")

	require.NoError(t, p.Submit(TileTask{Run: func(ctx context.Context) error { return wantErr }}))

	deadline := time.Now().Add(time.Second)
	var completions []Completion
	for time.Now().Before(deadline) && len(completions) == 0 {
		completions = append(completions, p.Drain(8)...)
	}
	require.Len(t, completions, 1)
	assert.ErrorIs(t, completions[0].Err, wantErr)
}

func TestDeletedTaskSkipsRun(t *testing.T) {
	p := NewPool(context.Background(), 1, 8)

	var deleted atomic.Bool
	deleted.Store(true)

	var ran atomic.Bool
	require.NoError(t, p.Submit(TileTask{
		Deleted: &deleted,
		Run: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
	}))

	deadline := time.Now().Add(time.Second)
	var completions []Completion
	for time.Now().Before(deadline) && len(completions) == 0 {
		completions = append(completions, p.Drain(8)...)
	}
	require.Len(t, completions, 1)
	assert.NoError(t, completions[0].Err)
	assert.False(t, ran.Load())
}

func TestDrainReturnsEmptyWhenNothingCompleted(t *testing.T) {
	p := NewPool(context.Background(), 2, 8)
	assert.Empty(t, p.Drain(8))
}

func TestStatsCountSubmittedExecutedCompleted(t *testing.T) {
	p := NewPool(context.Background(), 4, 16)

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(TileTask{Run: func(ctx context.Context) error { return nil }}))
	}

	deadline := time.Now().Add(time.Second)
	drained := 0
	for time.Now().Before(deadline) && drained < n {
		drained += len(p.Drain(n))
	}

	submitted, executed, completed := p.Stats()
	assert.EqualValues(t, n, submitted)
	assert.EqualValues(t, n, executed)
	assert.EqualValues(t, n, completed)
}

func TestNewPoolAcceptsWorkerCountAboveMax(t *testing.T) {
	p := NewPool(context.Background(), MaxThreadCount+50, 1)
	require.NoError(t, p.Submit(TileTask{Run: func(ctx context.Context) error { return nil }}))
	deadline := time.Now().Add(time.Second)
	var completions []Completion
	for time.Now().Before(deadline) && len(completions) == 0 {
		completions = append(completions, p.Drain(1)...)
	}
	require.Len(t, completions, 1)
}
