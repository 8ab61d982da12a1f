package ho

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAcquisition(t *testing.T) {
	for name, want := range map[string]string{
		"":                           AcquisitionExpectedImprovement,
		"ei":                         AcquisitionExpectedImprovement,
		"ExpectedImprovement":        AcquisitionExpectedImprovement,
		"POI":                        AcquisitionProbabilityOfImprovement,
		"pi":                         AcquisitionProbabilityOfImprovement,
		"probability_of_improvement": AcquisitionProbabilityOfImprovement,
	} {
		acq, err := NewAcquisition(name, AcquisitionParams{})
		require.NoError(t, err, name)
		assert.Equal(t, want, acq.Name(), name)
	}

	_, err := NewAcquisition("ucb", AcquisitionParams{})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewAcquisition("ei", AcquisitionParams{Xi: -0.1})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestExpectedImprovementDeterministicLimit(t *testing.T) {
	ei := ExpectedImprovement{}

	assert.Equal(t, 2.0, ei.Score(1, 0, 3, true))
	assert.Equal(t, 0.0, ei.Score(4, 0, 3, true))
	assert.Equal(t, 1.0, ei.Score(4, 0, 3, false))
	assert.Equal(t, 0.0, ei.Score(4, -1, 4, true))
}

func TestExpectedImprovement(t *testing.T) {
	ei := ExpectedImprovement{}

	// mean == best: EI = sigma * phi(0).
	assert.InDelta(t, 1/math.Sqrt(2*math.Pi), ei.Score(0, 1, 0, true), 1e-12)

	// Lower mean is better when minimizing, higher when maximizing.
	assert.Greater(t, ei.Score(-1, 1, 0, true), ei.Score(1, 1, 0, true))
	assert.Greater(t, ei.Score(1, 1, 0, false), ei.Score(-1, 1, 0, false))

	// More uncertainty never hurts at equal mean.
	assert.Greater(t, ei.Score(1, 4, 0, true), ei.Score(1, 1, 0, true))

	// Direction symmetry.
	assert.InDelta(t, ei.Score(-0.3, 0.5, 0, true), ei.Score(0.3, 0.5, 0, false), 1e-12)

	// Xi lowers the score.
	assert.Less(t, ExpectedImprovement{Xi: 0.5}.Score(-1, 1, 0, true), ei.Score(-1, 1, 0, true))

	assert.GreaterOrEqual(t, ei.Score(100, 1, 0, true), 0.0)
}

func TestProbabilityOfImprovement(t *testing.T) {
	pi := ProbabilityOfImprovement{}

	assert.InDelta(t, 0.5, pi.Score(0, 1, 0, true), 1e-12)
	assert.InDelta(t, 0.8413447460685429, pi.Score(-1, 1, 0, true), 1e-9)
	assert.InDelta(t, 0.8413447460685429, pi.Score(1, 1, 0, false), 1e-9)

	for _, mean := range []float64{-10, -1, 0, 1, 10} {
		s := pi.Score(mean, 2, 0, true)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}

	assert.Equal(t, 1.0, pi.Score(-1, 0, 0, true))
	assert.Equal(t, 0.0, pi.Score(0, 0, 0, true))
	assert.Equal(t, 0.0, ProbabilityOfImprovement{Xi: 2}.Score(-1, 0, 0, true))
}

type constModel struct {
	mean, variance float64
}

func (m constModel) Fit([]Observation) error { return nil }

func (m constModel) Predict([]float64) (float64, float64) { return m.mean, m.variance }

func TestScoreBatch(t *testing.T) {
	points := [][]float64{{0}, {0.5}, {1}}

	scores := ScoreBatch(ExpectedImprovement{}, constModel{mean: 1, variance: 0}, points, 3, true)
	assert.Equal(t, []float64{2, 2, 2}, scores)

	scores = ScoreBatch(ExpectedImprovement{}, constModel{mean: math.NaN(), variance: 1}, points, 3, true)
	for _, s := range scores {
		assert.True(t, math.IsInf(s, -1))
	}
}
