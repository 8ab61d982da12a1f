package ho

import (
	"context"
	"math/rand"

	"golang.org/x/exp/constraints"
)

// ProgressUpdate represents the current state of an experiment after a
// candidate was finished.
type ProgressUpdate struct {
	// Experiment is the name of the experiment being updated.
	Experiment string

	// Phase indicates whether the proposer is in random or model phase.
	Phase Phase

	// CurrentIteration is the number of finished candidates so far.
	CurrentIteration int

	// TotalIterations is the total number of iterations to run, when known.
	// Zero means the experiment is open-ended.
	TotalIterations int

	// CurrentParams holds the parameter values of the candidate just finished.
	CurrentParams map[string]any

	// CurrentBestParams holds the best parameters found so far.
	CurrentBestParams map[string]any

	// CurrentBestResult holds the best result found so far.
	CurrentBestResult float64

	// LastResult holds the result of the candidate just finished.
	LastResult float64

	// LastValid reports whether the candidate just finished was valid.
	LastValid bool
}

// BenchmarkFunc defines the signature for functions that will be optimized
// by OptimizeHyperparameters. Its execution time is the value being minimized.
//
// Type Parameter:
//   - T: The numeric type for parameters (int64 or float64)
//
// Parameters:
//   - params: Variable number of numeric parameters representing the hyperparameters
//     to be optimized. The number of parameters must match the number of
//     ParameterRange values provided to OptimizeHyperparameters.
//
// Returns:
// - error: Return nil if the benchmark succeeded, or an error if it failed.
// A failed run is recorded as an invalid candidate and excluded from modeling.
//
// Usage example:
//
//	intBenchmark := BenchmarkFunc[int64](func(params ...int64) error {
//	    bufferSize := params[0]
//	    workerCount := params[1]
//
//	    return runYourWorkload(bufferSize, workerCount)
//	})
type BenchmarkFunc[T constraints.Integer | constraints.Float] func(params ...T) error

// Status is the state a candidate is reported in through
// ExperimentAssistant.Update.
type Status string

const (
	// StatusFinished moves a pending candidate to the finished set. Its
	// result is used for modeling.
	StatusFinished Status = "finished"

	// StatusFinishedInvalid moves a pending candidate to the finished set,
	// marked invalid. Its result is retained but never modeled.
	StatusFinishedInvalid Status = "finished_invalid"

	// StatusPending leaves the candidate pending, refreshing its cost and
	// worker information.
	StatusPending Status = "pending"
)

// Phase is the proposer state for one experiment.
type Phase string

const (
	// RandomPhase draws candidates uniformly before any model is fitted.
	RandomPhase Phase = "random"

	// ModelPhase proposes candidates by maximizing the acquisition function
	// over a fitted surrogate model.
	ModelPhase Phase = "model"
)

// AcquisitionParams holds parameters shared by the acquisition functions and
// the proposer's random draws.
type AcquisitionParams struct {
	// Xi (Greek letter ξ) is an exploration parameter used in Probability of
	// Improvement (PI) and Expected Improvement (EI). It's the minimum
	// improvement over the best observation a point must promise.
	// - Higher values (e.g., 0.1) encourage more exploration
	// - Zero (the default) gives the textbook EI/PI
	Xi float64

	// RandomState is the random number generator used for uniform sampling
	// and for the inner maximizer's restarts.
	//
	// If nil, a time-seeded generator is created. Set it for reproducible
	// runs:
	//
	//	params := AcquisitionParams{
	//	    RandomState: rand.New(rand.NewSource(42)),
	//	}
	//
	// Warning:
	// - Do NOT share RandomState between different optimizers
	RandomState *rand.Rand
}

// OptimizationConfig holds all configuration parameters for the Bayesian
// optimization process.
//
// Fields explanation:
//   - InitialSamples: Number of uniform random candidates before the model is used
//   - Acquisition: Name of the acquisition strategy ("ei" or "poi")
//   - NumCandidates: Number of random points scored to seed the inner maximizer
//   - Restarts: Number of inner maximizer restarts per proposed candidate
//   - MaxIterations: Nelder-Mead iteration budget per restart
//   - MaxRetries: Bound on re-proposals when a point was already used
//   - DuplicateTolerance: Distance in the normalized space under which two
//     points count as the same
//   - AcqParams: Parameters for the acquisition function
//   - Iterations, ProgressChan: Only used by OptimizeHyperparameters
//
// Usage example:
//
//	config := DefaultConfig()
//	config.InitialSamples = 5
//	config.Acquisition = AcquisitionProbabilityOfImprovement
//
// Note:
// - Create separate configs for parallel optimizations.
type OptimizationConfig struct {
	// Iterations determines how many model-based steps OptimizeHyperparameters
	// performs after the initial sampling phase.
	// Recommended range: 20-200
	Iterations int

	// InitialSamples determines how many valid finished candidates are
	// required before the surrogate model is used.
	// Recommended range: 3-20
	InitialSamples int

	// Acquisition is the acquisition strategy name. See NewAcquisition.
	Acquisition string

	// NumCandidates determines how many uniform points are scored with the
	// acquisition function to seed the inner maximizer's restarts.
	// Recommended range: 50-500
	NumCandidates int

	// Restarts is the number of Nelder-Mead runs per proposed candidate.
	Restarts int

	// MaxIterations bounds the Nelder-Mead major iterations of each restart.
	MaxIterations int

	// MaxRetries bounds how often a proposal is retried when it lands on an
	// already used point, first with fresh restarts and then with uniform
	// draws.
	MaxRetries int

	// DuplicateTolerance is the L-infinity distance in the normalized space
	// under which a proposal is treated as an already used point.
	DuplicateTolerance float64

	// AcqParams holds the parameters for the acquisition function.
	AcqParams AcquisitionParams

	// ProgressChan is used by OptimizeHyperparameters to send progress
	// updates. If nil, no updates will be sent.
	ProgressChan chan<- ProgressUpdate
}

// Observer receives lifecycle notifications from an ExperimentAssistant.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	// CandidateProposed is called for each candidate handed out.
	CandidateProposed(experiment string, phase Phase)

	// CandidateFinished is called once a candidate left the pending set.
	CandidateFinished(experiment string, status Status)

	// ModelFitFailed is called when the proposer fell back to uniform
	// sampling because the surrogate could not be fitted.
	ModelFitFailed(experiment string)
}

// Persister produces a durable representation of an experiment snapshot. The
// core only pulls snapshots; the storage format is entirely up to the
// implementation.
type Persister interface {
	Persist(ctx context.Context, snapshot Snapshot) error
}

type nopObserver struct{}

func (nopObserver) CandidateProposed(string, Phase)  {}
func (nopObserver) CandidateFinished(string, Status) {}
func (nopObserver) ModelFitFailed(string)            {}
