package ho

import (
	"fmt"
	"math"
	"strings"
)

//////
// Available acquisition functions for Bayesian optimization.
// Each function helps decide which points to evaluate next by balancing
// exploration (trying new areas) and exploitation (focusing on known good areas).
//////

// Acquisition strategy names accepted by NewAcquisition.
const (
	AcquisitionExpectedImprovement      = "ei"
	AcquisitionProbabilityOfImprovement = "poi"
)

// AcquisitionFunction scores a point from its predictive distribution.
//
// Higher scores are always better, whatever the optimization direction: the
// function flips the improvement itself when minimization is false.
// Implementations must be safe for concurrent use and must not return NaN for
// variance <= 0.
type AcquisitionFunction interface {
	// Name is the strategy name accepted by NewAcquisition.
	Name() string

	// Score returns the utility of a point with the given predictive mean
	// and variance, given the best result observed so far.
	Score(mean, variance, bestObserved float64, minimization bool) float64
}

// NewAcquisition returns the acquisition strategy registered under name.
// Accepted names (case-insensitive):
//   - "ei", "expected_improvement", "ExpectedImprovement"
//   - "poi", "pi", "probability_of_improvement", "ProbabilityOfImprovement"
//
// An empty name selects Expected Improvement. Any other name fails with
// ErrConfiguration.
func NewAcquisition(name string, params AcquisitionParams) (AcquisitionFunction, error) {
	if params.Xi < 0 || !isFinite(params.Xi) {
		return nil, fmt.Errorf("%w: xi must be a finite non-negative number, got %v", ErrConfiguration, params.Xi)
	}

	switch strings.ToLower(name) {
	case "", AcquisitionExpectedImprovement, "expected_improvement", "expectedimprovement":
		return ExpectedImprovement{Xi: params.Xi}, nil
	case AcquisitionProbabilityOfImprovement, "pi", "probability_of_improvement", "probabilityofimprovement":
		return ProbabilityOfImprovement{Xi: params.Xi}, nil
	default:
		return nil, fmt.Errorf("%w: unknown acquisition function %q", ErrConfiguration, name)
	}
}

// improvement returns the signed improvement of mean over bestObserved in the
// optimization direction, reduced by xi.
func improvement(mean, bestObserved, xi float64, minimization bool) float64 {
	if minimization {
		return bestObserved - mean - xi
	}

	return mean - bestObserved - xi
}

// ExpectedImprovement (EI) calculates the expected value of the improvement
// over the current best value.
//
// How it works:
//
//	I     = best - mean - xi     (minimization; sign flipped for maximization)
//	z     = I / sigma
//	score = I*Φ(z) + sigma*φ(z)
//
// With sigma = 0 the score is the deterministic limit max(I, 0).
//
// When to use:
// - Most commonly used acquisition function
// - When you want to balance the size and probability of improvement
//
// Example:
//
//	ei := ExpectedImprovement{Xi: 0.01}
//	expected := ei.Score(0.9, 0.2, 1.0, true)
type ExpectedImprovement struct {
	// Xi is the minimum improvement desired.
	Xi float64
}

// Name implements AcquisitionFunction.
func (ExpectedImprovement) Name() string { return AcquisitionExpectedImprovement }

// Score implements AcquisitionFunction.
func (ei ExpectedImprovement) Score(mean, variance, bestObserved float64, minimization bool) float64 {
	imp := improvement(mean, bestObserved, ei.Xi, minimization)

	if !(variance > 0) {
		return math.Max(imp, 0)
	}

	sigma := math.Sqrt(variance)
	z := imp / sigma

	return imp*normalCDF(z) + sigma*normalPDF(z)
}

// ProbabilityOfImprovement (PI) calculates the probability that a point will
// improve upon the current best observed value.
//
// How it works:
//
//	score = Φ(I / sigma)
//
// With sigma = 0 the score is 1 if I > 0 and 0 otherwise.
//
// When to use:
// - When you want to be conservative in exploring new points
// - In problems where being "probably better" is more important than "how much better"
type ProbabilityOfImprovement struct {
	// Xi is the minimum improvement desired.
	Xi float64
}

// Name implements AcquisitionFunction.
func (ProbabilityOfImprovement) Name() string { return AcquisitionProbabilityOfImprovement }

// Score implements AcquisitionFunction.
func (pi ProbabilityOfImprovement) Score(mean, variance, bestObserved float64, minimization bool) float64 {
	imp := improvement(mean, bestObserved, pi.Xi, minimization)

	if !(variance > 0) {
		if imp > 0 {
			return 1
		}

		return 0
	}

	return normalCDF(imp / math.Sqrt(variance))
}

// ScoreBatch evaluates an acquisition function over a batch of points.
//
// Parameters:
// - acq: The acquisition function
// - model: A fitted surrogate model
// - points: Normalized vectors to score
// - bestObserved, minimization: As for AcquisitionFunction.Score
//
// Returns:
// - []float64: One score per point, in input order. NaN scores are reported
// as -Inf so they never win a comparison.
func ScoreBatch(acq AcquisitionFunction, model SurrogateModel, points [][]float64, bestObserved float64, minimization bool) []float64 {
	scores := make([]float64, len(points))

	for i, x := range points {
		mean, variance := model.Predict(x)

		s := acq.Score(mean, variance, bestObserved, minimization)
		if math.IsNaN(s) {
			s = math.Inf(-1)
		}

		scores[i] = s
	}

	return scores
}
