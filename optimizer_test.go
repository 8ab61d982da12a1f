package ho

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingModel wraps the default surrogate and counts calls.
type countingModel struct {
	fits     *atomic.Int32
	predicts *atomic.Int32
	inner    SurrogateModel
}

func (m countingModel) Fit(points []Observation) error {
	m.fits.Add(1)

	return m.inner.Fit(points)
}

func (m countingModel) Predict(x []float64) (float64, float64) {
	m.predicts.Add(1)

	return m.inner.Predict(x)
}

type failingModel struct{}

func (failingModel) Fit([]Observation) error { return errors.New("singular") }

func (failingModel) Predict([]float64) (float64, float64) { panic("predict on a failed fit") }

func testConfig(seed int64) OptimizationConfig {
	config := DefaultConfig()
	config.InitialSamples = 3
	config.NumCandidates = 64
	config.Restarts = 4
	config.MaxIterations = 30
	config.AcqParams.RandomState = rand.New(rand.NewSource(seed))

	return config
}

func finishedSnapshot(t *testing.T, space *ParameterSpace, f func(map[string]any) float64, params ...map[string]any) Snapshot {
	t.Helper()

	e, err := NewExperiment("snap", space, true)
	require.NoError(t, err)

	for _, p := range params {
		c := NewCandidate(p)
		require.NoError(t, e.addPending(c))

		done := c.Clone()
		done.SetResult(f(p))

		_, err := e.finish(done, true)
		require.NoError(t, err)
	}

	return e.Snapshot()
}

func square(p map[string]any) float64 {
	x := p["x"].(float64)

	return x * x
}

func TestNewBayesianOptimizerValidation(t *testing.T) {
	space := lineSpace(t)

	_, err := NewBayesianOptimizer(nil, testConfig(1))
	assert.ErrorIs(t, err, ErrConfiguration)

	config := testConfig(1)
	config.Restarts = -1
	_, err = NewBayesianOptimizer(space, config)
	assert.ErrorIs(t, err, ErrConfiguration)

	config = testConfig(1)
	config.Acquisition = "thompson"
	_, err = NewBayesianOptimizer(space, config)
	assert.ErrorIs(t, err, ErrConfiguration)

	b, err := NewBayesianOptimizer(space, OptimizationConfig{})
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.NumCandidates, b.Config().NumCandidates)
	assert.Equal(t, defaults.MaxRetries, b.Config().MaxRetries)
	assert.Equal(t, AcquisitionExpectedImprovement, b.Acquisition().Name())
}

func TestProposeRandomPhaseNeverTouchesModel(t *testing.T) {
	space := lineSpace(t)

	var fits, predicts atomic.Int32

	b, err := NewBayesianOptimizer(space, testConfig(1), WithModelFactory(func() SurrogateModel {
		return countingModel{fits: &fits, predicts: &predicts, inner: NewGaussianProcess()}
	}))
	require.NoError(t, err)

	snap := finishedSnapshot(t, space, square, map[string]any{"x": 1.0}, map[string]any{"x": 2.0})
	assert.Equal(t, RandomPhase, b.Phase(snap))

	p, err := b.Propose(context.Background(), snap, 3)
	require.NoError(t, err)

	assert.Equal(t, RandomPhase, p.Phase)
	assert.Len(t, p.Candidates, 3)
	assert.Zero(t, fits.Load())
	assert.Zero(t, predicts.Load())

	snap = finishedSnapshot(t, space, square, map[string]any{"x": 1.0}, map[string]any{"x": 2.0}, map[string]any{"x": -3.0})
	assert.Equal(t, ModelPhase, b.Update(snap))

	p, err = b.Propose(context.Background(), snap, 1)
	require.NoError(t, err)

	assert.Equal(t, ModelPhase, p.Phase)
	assert.Equal(t, int32(1), fits.Load())
	assert.Positive(t, predicts.Load())
}

func TestProposeFallsBackWhenFitFails(t *testing.T) {
	space := lineSpace(t)

	b, err := NewBayesianOptimizer(space, testConfig(2), WithModelFactory(func() SurrogateModel { return failingModel{} }))
	require.NoError(t, err)

	snap := finishedSnapshot(t, space, square, map[string]any{"x": 1.0}, map[string]any{"x": 2.0}, map[string]any{"x": 3.0})

	p, err := b.Propose(context.Background(), snap, 2)
	require.NoError(t, err)

	assert.True(t, p.FitFailed)
	assert.Equal(t, ModelPhase, p.Phase)
	assert.Len(t, p.Candidates, 2)
}

func TestProposeWithoutObservationsIsRandom(t *testing.T) {
	config := testConfig(7)
	config.InitialSamples = 0

	b, err := NewBayesianOptimizer(lineSpace(t), config, WithModelFactory(func() SurrogateModel { return failingModel{} }))
	require.NoError(t, err)

	snap := Snapshot{Minimization: true}
	assert.Equal(t, ModelPhase, b.Phase(snap))

	p, err := b.Propose(context.Background(), snap, 2)
	require.NoError(t, err)

	assert.Equal(t, RandomPhase, p.Phase)
	assert.False(t, p.FitFailed)
	assert.Len(t, p.Candidates, 2)
}

func TestProposeDistinctCandidates(t *testing.T) {
	space := lineSpace(t)

	b, err := NewBayesianOptimizer(space, testConfig(3))
	require.NoError(t, err)

	snap := finishedSnapshot(t, space, square,
		map[string]any{"x": -8.0}, map[string]any{"x": -2.0}, map[string]any{"x": 4.0}, map[string]any{"x": 9.0})

	candidates, err := b.NextCandidates(context.Background(), snap, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	seen := map[string]struct{}{}

	for _, c := range snap.Finished {
		seen[c.Key()] = struct{}{}
	}

	for _, c := range candidates {
		_, dup := seen[c.Key()]
		assert.False(t, dup, "%s was proposed twice", c.Key())

		seen[c.Key()] = struct{}{}

		x := c.Params["x"].(float64)
		assert.GreaterOrEqual(t, x, -10.0)
		assert.LessOrEqual(t, x, 10.0)
		assert.Nil(t, c.Result)
		assert.True(t, c.Valid)
	}

	_, err = b.NextCandidates(context.Background(), snap, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestProposeModelPhaseFindsMinimum(t *testing.T) {
	space := lineSpace(t)

	config := testConfig(4)
	config.Acquisition = AcquisitionProbabilityOfImprovement

	b, err := NewBayesianOptimizer(space, config)
	require.NoError(t, err)

	var params []map[string]any
	for _, x := range []float64{-9, -6, -3, 3, 6, 9} {
		params = append(params, map[string]any{"x": x})
	}

	snap := finishedSnapshot(t, space, square, params...)

	candidates, err := b.NextCandidates(context.Background(), snap, 1)
	require.NoError(t, err)

	// Improving on the best result (9) requires |x| < 3.
	x := candidates[0].Params["x"].(float64)
	assert.Greater(t, x, -3.0)
	assert.Less(t, x, 3.0)
}

func TestProposeSmallSpaceAcceptsDuplicates(t *testing.T) {
	space, err := NewParameterSpace(map[string]ParamDef{"c": Categorical{Values: []string{"a", "b"}}})
	require.NoError(t, err)

	config := testConfig(5)
	config.InitialSamples = 10
	config.MaxRetries = 3

	b, err := NewBayesianOptimizer(space, config)
	require.NoError(t, err)

	p, err := b.Propose(context.Background(), Snapshot{Minimization: true}, 5)
	require.NoError(t, err)

	// Only two distinct points exist; the rest are accepted duplicates.
	assert.Len(t, p.Candidates, 5)
}

func TestProposeHonorsCancellation(t *testing.T) {
	space := lineSpace(t)

	b, err := NewBayesianOptimizer(space, testConfig(6))
	require.NoError(t, err)

	snap := finishedSnapshot(t, space, square, map[string]any{"x": 1.0}, map[string]any{"x": 2.0}, map[string]any{"x": 3.0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.Propose(ctx, snap, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUsedSetTolerance(t *testing.T) {
	u := &usedSet{keys: map[string]struct{}{}, tol: 1e-6}
	u.add("a", []float64{0.5, 0.5})

	assert.True(t, u.contains("a", nil))
	assert.True(t, u.contains("b", []float64{0.5 + 5e-7, 0.5}))
	assert.False(t, u.contains("b", []float64{0.5 + 1e-5, 0.5}))
}
