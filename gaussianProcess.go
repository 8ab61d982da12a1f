package ho

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

const (
	// defaultNoise is the observation noise variance on standardized targets.
	// It also keeps the kernel matrix positive definite when points coincide.
	defaultNoise = 1e-4

	// defaultLengthScale is used until a fit selects another one.
	defaultLengthScale = 0.25
)

// defaultLengthScaleGrid is searched by maximum marginal likelihood on each
// fit. Inputs live in [0,1]^d so the grid spans "very local" to "nearly flat".
var defaultLengthScaleGrid = []float64{0.05, 0.1, 0.15, 0.25, 0.4, 0.6, 1.0, 1.5, 2.5}

// Observation is one (normalized vector, result) pair used to fit a
// surrogate model.
type Observation struct {
	X []float64
	Y float64
}

// SurrogateModel is a probabilistic regression model over the normalized
// parameter space.
//
// Fit must be a pure function of its input: refitting from scratch on the same
// observations gives the same model. Predict must be safe for concurrent use
// once Fit returned.
type SurrogateModel interface {
	// Fit fits the model. It requires at least one observation and returns
	// an error wrapping ErrModelFit on numerical failure.
	Fit(points []Observation) error

	// Predict returns the predictive mean and variance at x.
	Predict(x []float64) (mean, variance float64)
}

// ModelFactory creates a fresh, unfitted surrogate model.
type ModelFactory func() SurrogateModel

// gaussianProcess implements a thread-safe Gaussian Process regressor with an
// RBF kernel.
//
// Hyperparameter policy:
//   - Targets are standardized to zero mean and unit variance before fitting
//   - Signal variance is fixed to 1 on the standardized scale
//   - Noise variance is fixed to defaultNoise
//   - The length scale is re-estimated on every Fit by maximizing the log
//     marginal likelihood over a fixed grid, unless it was pinned with
//     SetLengthScale
//
// The whole model derives deterministically from the observations passed to
// Fit; nothing carries over between fits except a pinned length scale.
type gaussianProcess struct {
	// mu protects access to all fields
	mu sync.RWMutex

	// X stores the input points (normalized vectors)
	X [][]float64

	// Y stores the standardized observed values at each point in X
	Y []float64

	yMean float64
	yStd  float64

	// lengthScale is the kernel width parameter
	// Larger values = smoother interpolation
	// Smaller values = more local influence
	lengthScale float64

	// grid holds the candidate length scales. Nil pins lengthScale.
	grid []float64

	noise float64

	chol   mat.Cholesky
	alpha  *mat.VecDense
	fitted bool
}

//////
// Methods.
//////

// kernel is the RBF kernel:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * l^2))
func kernel(x1, x2 []float64, lengthScale float64) float64 {
	d := floats.Distance(x1, x2, 2)

	return math.Exp(-d * d / (2 * lengthScale * lengthScale))
}

// RBFKernel measures the similarity between two points with the current
// length scale. Returns 1.0 for identical points and values close to 0.0 for
// distant points.
//
// Panics if input vectors have different lengths.
func (gp *gaussianProcess) RBFKernel(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	gp.mu.RLock()
	ls := gp.lengthScale
	gp.mu.RUnlock()

	return kernel(x1, x2, ls)
}

// Fit fits the model from scratch.
//
// Important notes:
//   - Requires at least one observation
//   - All vectors must have the same length and all values must be finite
//   - Fails with ErrModelFit when no candidate length scale gives a
//     positive definite kernel matrix
//
// Thread safety:
// - Protected by write mutex, blocks Predict while running.
func (gp *gaussianProcess) Fit(points []Observation) error {
	n := len(points)
	if n == 0 {
		return fmt.Errorf("%w: no observations", ErrModelFit)
	}

	dim := len(points[0].X)

	X := make([][]float64, n)
	raw := make([]float64, n)

	for i, p := range points {
		if len(p.X) != dim {
			return fmt.Errorf("%w: observation %d has %d dimensions, want %d", ErrModelFit, i, len(p.X), dim)
		}

		if !isFinite(p.Y) {
			return fmt.Errorf("%w: observation %d has non-finite value %v", ErrModelFit, i, p.Y)
		}

		X[i] = append([]float64(nil), p.X...)
		raw[i] = p.Y
	}

	yMean := floats.Sum(raw) / float64(n)

	var ss float64
	for _, y := range raw {
		ss += (y - yMean) * (y - yMean)
	}

	yStd := math.Sqrt(ss / float64(n))
	if yStd < 1e-12 || !isFinite(yStd) {
		yStd = 1
	}

	Y := make([]float64, n)
	for i, y := range raw {
		Y[i] = (y - yMean) / yStd
	}

	gp.mu.Lock()
	defer gp.mu.Unlock()

	grid := gp.grid
	if grid == nil {
		grid = []float64{gp.lengthScale}
	}

	yVec := mat.NewVecDense(n, Y)

	var (
		found     bool
		bestLML   = math.Inf(-1)
		bestLS    float64
		bestChol  mat.Cholesky
		bestAlpha *mat.VecDense
	)

	for _, ls := range grid {
		var chol mat.Cholesky
		if !chol.Factorize(gp.kernelMatrix(X, ls)) {
			continue
		}

		alpha := mat.NewVecDense(n, nil)
		if err := chol.SolveVecTo(alpha, yVec); err != nil {
			continue
		}

		lml := -0.5*mat.Dot(yVec, alpha) - 0.5*chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
		if !isFinite(lml) {
			continue
		}

		if !found || lml > bestLML {
			found = true
			bestLML = lml
			bestLS = ls
			bestChol.Clone(&chol)
			bestAlpha = alpha
		}
	}

	if !found {
		gp.fitted = false

		return fmt.Errorf("%w: kernel matrix is not positive definite for %d observations", ErrModelFit, n)
	}

	gp.X = X
	gp.Y = Y
	gp.yMean = yMean
	gp.yStd = yStd
	gp.lengthScale = bestLS
	gp.chol = bestChol
	gp.alpha = bestAlpha
	gp.fitted = true

	return nil
}

// kernelMatrix builds K(X, X) + noise*I.
func (gp *gaussianProcess) kernelMatrix(X [][]float64, ls float64) *mat.SymDense {
	n := len(X)
	K := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		K.SetSym(i, i, 1+gp.noise)

		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, kernel(X[i], X[j], ls))
		}
	}

	return K
}

// Predict estimates the mean and variance at a given point.
//
// Mathematical details:
//
//	mean     = k*ᵀ K⁻¹ y
//	variance = k(x, x) - k*ᵀ K⁻¹ k*
//
// both mapped back from the standardized scale. Returns (0, 1) if the model
// was never fitted.
//
// Thread safety:
// - Uses read lock, many predictions can proceed in parallel.
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if !gp.fitted {
		return 0, 1
	}

	n := len(gp.X)

	k := mat.NewVecDense(n, nil)
	for i := range gp.X {
		k.SetVec(i, kernel(x, gp.X[i], gp.lengthScale))
	}

	mean = mat.Dot(k, gp.alpha)

	v := mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(v, k); err != nil {
		variance = 1
	} else {
		variance = 1 + gp.noise - mat.Dot(k, v)
	}

	variance = math.Max(variance, 0)

	return mean*gp.yStd + gp.yMean, variance * gp.yStd * gp.yStd
}

// SetLengthScale pins the kernel length scale and disables its
// re-estimation on Fit. It affects the next Fit.
func (gp *gaussianProcess) SetLengthScale(lengthScale float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.lengthScale = lengthScale
	gp.grid = nil
}

// LengthScale returns the length scale in use, as selected by the last Fit.
func (gp *gaussianProcess) LengthScale() float64 {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return gp.lengthScale
}

//////
// Factory.
//////

// newGaussianProcess creates a Gaussian Process with the default
// hyperparameter policy.
func newGaussianProcess() *gaussianProcess {
	return &gaussianProcess{
		lengthScale: defaultLengthScale,
		grid:        defaultLengthScaleGrid,
		noise:       defaultNoise,
	}
}

// NewGaussianProcess returns the default surrogate model. It is the
// ModelFactory used unless WithModelFactory says otherwise.
func NewGaussianProcess() SurrogateModel {
	return newGaussianProcess()
}
