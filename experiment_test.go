package ho

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineSpace(t *testing.T) *ParameterSpace {
	t.Helper()

	space, err := NewParameterSpace(map[string]ParamDef{"x": MinMaxNumeric{Min: -10, Max: 10}})
	require.NoError(t, err)

	return space
}

// finishAll registers and finishes one candidate per result, x = index.
func finishAll(t *testing.T, e *Experiment, results []float64, valid []bool) {
	t.Helper()

	for i, r := range results {
		c := NewCandidate(map[string]any{"x": float64(i)})
		require.NoError(t, e.addPending(c))

		done := c.Clone()
		done.SetResult(r)

		_, err := e.finish(done, valid == nil || valid[i])
		require.NoError(t, err)
	}
}

func TestExperimentBestCandidate(t *testing.T) {
	e, err := NewExperiment("min", lineSpace(t), true)
	require.NoError(t, err)

	assert.Nil(t, e.BestCandidate())

	finishAll(t, e, []float64{3, 1, -5, 1}, []bool{true, true, false, true})

	best := e.BestCandidate()
	require.NotNil(t, best)
	assert.Equal(t, 1.0, *best.Result)
	assert.Equal(t, 1.0, best.Params["x"], "ties go to the earliest completion")

	assert.Len(t, e.Finished(), 4)
	assert.Len(t, e.FinishedValid(), 3)

	m, err := NewExperiment("max", lineSpace(t), false)
	require.NoError(t, err)

	finishAll(t, m, []float64{3, 7, 7}, nil)
	assert.Equal(t, 1.0, m.BestCandidate().Params["x"])
}

func TestExperimentBestResultPerStep(t *testing.T) {
	e, err := NewExperiment("steps", lineSpace(t), true)
	require.NoError(t, err)

	finishAll(t, e, []float64{9, 4, 6, 2}, []bool{false, true, true, true})

	assert.Equal(t, []StepResult{
		{Step: 2, BestResult: 4, Result: 4},
		{Step: 3, BestResult: 4, Result: 6},
		{Step: 4, BestResult: 2, Result: 2},
	}, e.BestResultPerStep())

	_, ok := e.BestResultAt(1)
	assert.False(t, ok)

	best, ok := e.BestResultAt(3)
	require.True(t, ok)
	assert.Equal(t, 4.0, best)

	best, ok = e.BestResultAt(100)
	require.True(t, ok)
	assert.Equal(t, 2.0, best)
}

func TestExperimentTransitions(t *testing.T) {
	e, err := NewExperiment("ledger", lineSpace(t), true)
	require.NoError(t, err)

	c := NewCandidate(map[string]any{"x": 1.0})
	require.NoError(t, e.addPending(c))
	assert.Error(t, e.addPending(c.Clone()))

	assert.True(t, e.IsPending(c.Key()))
	assert.False(t, e.IsFinished(c.Key()))

	refresh := c.Clone()
	refresh.Cost = 2
	refresh.WorkerInformation = map[string]any{"step": 5}

	_, err = e.refreshPending(refresh)
	require.NoError(t, err)
	assert.Equal(t, 2.0, e.Pending()[0].Cost)

	done := c.Clone()
	done.SetResult(0.5)

	stored, err := e.finish(done, true)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.WorkerInformation["step"])

	assert.False(t, e.IsPending(c.Key()))
	assert.True(t, e.IsFinished(c.Key()))
	assert.Empty(t, e.Pending())

	_, err = e.finish(done, true)
	assert.ErrorIs(t, err, ErrUnknownCandidate)
	assert.ErrorContains(t, err, "already finished")

	_, err = e.refreshPending(NewCandidate(map[string]any{"x": 2.0}))
	assert.ErrorIs(t, err, ErrUnknownCandidate)
	assert.ErrorContains(t, err, "not pending")

	assert.Error(t, e.addPending(c.Clone()), "a finished point can't become pending again")
}

func TestExperimentSnapshotIsDetached(t *testing.T) {
	e, err := NewExperiment("snap", lineSpace(t), true)
	require.NoError(t, err)

	e.Notes = "n"
	finishAll(t, e, []float64{1}, nil)
	require.NoError(t, e.addPending(NewCandidate(map[string]any{"x": 5.0})))

	snap := e.Snapshot()
	assert.Equal(t, "snap", snap.Name)
	assert.Equal(t, "n", snap.Notes)
	assert.True(t, snap.Minimization)
	assert.Equal(t, ParamSpec{Type: ParamTypeContinuous, Min: -10, Max: 10}, snap.Parameters["x"])
	require.Len(t, snap.Finished, 1)
	require.Len(t, snap.Pending, 1)

	*snap.Finished[0].Result = 100
	snap.Pending[0].Params["x"] = 6.0

	assert.Equal(t, 1.0, *e.Finished()[0].Result)
	assert.Equal(t, 5.0, e.Pending()[0].Params["x"])

	_, err = NewExperiment("nil", nil, true)
	assert.ErrorIs(t, err, ErrConfiguration)
}
