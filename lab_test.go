package ho

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLab(t *testing.T, l *Lab, id string, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		c, err := l.NextCandidate(context.Background(), id)
		require.NoError(t, err)

		c.SetResult(square(c.Params))
		require.NoError(t, l.Update(id, c, StatusFinished))
	}
}

func TestLabExperiments(t *testing.T) {
	l := NewLab()

	id, err := l.InitExperiment("", "generated", lineSpace(t), testConfig(21))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = l.InitExperiment("b", "second", lineSpace(t), testConfig(22))
	require.NoError(t, err)

	_, err = l.InitExperiment("b", "again", lineSpace(t), testConfig(23))
	assert.ErrorIs(t, err, ErrDuplicateExperiment)

	_, err = l.InitExperiment("c", "broken", lineSpace(t), OptimizationConfig{Acquisition: "ucb"})
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.ElementsMatch(t, []string{id, "b"}, l.ExperimentIDs())

	_, err = l.Experiment("missing")
	assert.ErrorIs(t, err, ErrUnknownExperiment)

	_, err = l.NextCandidate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownExperiment)

	assert.ErrorIs(t, l.Update("missing", NewCandidate(nil), StatusFinished), ErrUnknownExperiment)

	best, err := l.BestCandidate("b")
	require.NoError(t, err)
	assert.Nil(t, best)

	candidates, err := l.NextCandidates(context.Background(), "b", 2)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)

	snap, err := l.Snapshot("b")
	require.NoError(t, err)
	assert.Equal(t, "b", snap.ID)
	assert.Len(t, snap.Pending, 2)
}

func TestLabResultsPerStep(t *testing.T) {
	l := NewLab()

	for _, id := range []string{"a", "b"} {
		_, err := l.InitExperiment(id, id, lineSpace(t), testConfig(int64(len(id))))
		require.NoError(t, err)
	}

	runLab(t, l, "a", 4)
	runLab(t, l, "b", 2)

	steps, same := l.StepString()
	assert.Equal(t, "4_2", steps)
	assert.False(t, same)

	all, err := l.ResultsPerStep(false)
	require.NoError(t, err)
	assert.Len(t, all["a"], 4)
	assert.Len(t, all["b"], 2)

	cut, err := l.ResultsPerStep(true)
	require.NoError(t, err)
	assert.Len(t, cut["a"], 2)
	assert.Len(t, cut["b"], 2)

	only, err := l.ResultsPerStep(false, "b")
	require.NoError(t, err)
	assert.Len(t, only, 1)

	_, err = l.ResultsPerStep(false, "missing")
	assert.ErrorIs(t, err, ErrUnknownExperiment)

	runLab(t, l, "b", 2)

	steps, same = l.StepString()
	assert.Equal(t, "4_4", steps)
	assert.True(t, same)
}

func TestLabPersistAll(t *testing.T) {
	p := &memoryPersister{}
	observer := newRecordingObserver()
	l := NewLab(WithLabPersister(p, 100), WithLabObserver(observer))

	for _, id := range []string{"a", "b", "c"} {
		_, err := l.InitExperiment(id, id, lineSpace(t), testConfig(30))
		require.NoError(t, err)
	}

	runLab(t, l, "a", 1)
	assert.Zero(t, p.count())
	assert.Equal(t, 1, observer.finished[StatusFinished])

	require.NoError(t, l.PersistAll(context.Background()))
	assert.Equal(t, 3, p.count())

	p.err = errors.New("disk full")
	assert.ErrorContains(t, l.PersistAll(context.Background()), "disk full")
}
