package ho

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussianProcessInterpolates(t *testing.T) {
	gp := newGaussianProcess()

	var points []Observation
	for i := 0; i <= 10; i++ {
		x := float64(i) / 10
		points = append(points, Observation{X: []float64{x}, Y: math.Sin(6 * x)})
	}

	require.NoError(t, gp.Fit(points))

	for _, p := range points {
		mean, variance := gp.Predict(p.X)

		assert.InDelta(t, p.Y, mean, 0.05)
		assert.Less(t, variance, 0.01)
	}

	_, far := gp.Predict([]float64{5})
	_, near := gp.Predict([]float64{0.5})
	assert.Greater(t, far, near)

	assert.Contains(t, defaultLengthScaleGrid, gp.LengthScale())
}

func TestGaussianProcessUnfittedPrior(t *testing.T) {
	mean, variance := newGaussianProcess().Predict([]float64{0.3})

	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 1.0, variance)
}

func TestGaussianProcessFitErrors(t *testing.T) {
	gp := newGaussianProcess()

	assert.ErrorIs(t, gp.Fit(nil), ErrModelFit)
	assert.ErrorIs(t, gp.Fit([]Observation{{X: []float64{0}, Y: math.NaN()}}), ErrModelFit)
	assert.ErrorIs(t, gp.Fit([]Observation{{X: []float64{0}, Y: 1}, {X: []float64{0, 1}, Y: 2}}), ErrModelFit)
}

func TestGaussianProcessConstantTargets(t *testing.T) {
	gp := newGaussianProcess()

	require.NoError(t, gp.Fit([]Observation{
		{X: []float64{0.1}, Y: 3},
		{X: []float64{0.5}, Y: 3},
		{X: []float64{0.5}, Y: 3},
	}))

	mean, variance := gp.Predict([]float64{0.3})
	assert.InDelta(t, 3, mean, 1e-9)
	assert.GreaterOrEqual(t, variance, 0.0)
}

func TestGaussianProcessPinnedLengthScale(t *testing.T) {
	gp := newGaussianProcess()
	gp.SetLengthScale(0.7)

	require.NoError(t, gp.Fit([]Observation{{X: []float64{0}, Y: 0}, {X: []float64{1}, Y: 1}}))
	assert.Equal(t, 0.7, gp.LengthScale())

	assert.InDelta(t, 1, gp.RBFKernel([]float64{0.2}, []float64{0.2}), 1e-12)
	assert.InDelta(t, math.Exp(-0.5), gp.RBFKernel([]float64{0}, []float64{0.7}), 1e-12)
	assert.Panics(t, func() { gp.RBFKernel([]float64{0}, []float64{0, 1}) })
}

func TestGaussianProcessConcurrentPredict(t *testing.T) {
	gp := newGaussianProcess()
	require.NoError(t, gp.Fit([]Observation{{X: []float64{0, 0}, Y: 1}, {X: []float64{1, 1}, Y: 2}}))

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				mean, variance := gp.Predict([]float64{0.5, 0.5})
				assert.False(t, math.IsNaN(mean))
				assert.GreaterOrEqual(t, variance, 0.0)
			}
		}()
	}

	wg.Wait()
}
