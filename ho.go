package ho

import (
	"context"
	"fmt"

	"golang.org/x/exp/constraints"
)

//////
// Exported functionalities.
//////

// OptimizeHyperparameters uses Bayesian optimization to find the optimal hyperparameters
// for your benchmark function. It combines Gaussian Process regression with acquisition
// functions to efficiently search the parameter space.
//
// Type Parameter:
//   - T: The numeric type for parameters (int64 or float64)
//
// Parameters:
// - config: OptimizationConfig controlling the optimization process
// - benchmarkFunc: The function whose parameters you want to optimize
// - hypers: One or more ParameterRange defining the search space
//
// Returns:
// - []T: The best parameters found (in same order as hypers)
//
// Usage example:
//
//	// Integer optimization example
//	ranges := []ParameterRange[int64]{
//	    {Min: 1024, Max: 1048576},  // Buffer size (1KB to 1MB)
//	    {Min: 1, Max: 32},          // Worker count
//	}
//
//	intBenchmark := BenchmarkFunc[int64](func(params ...int64) error {
//	    bufferSize := params[0]
//	    workerCount := params[1]
//	    return runWorkload(bufferSize, workerCount)
//	})
//
//	bestIntParams := OptimizeHyperparameters(
//	    DefaultConfig(),
//	    intBenchmark,
//	    ranges...,
//	)
//
//	// Float optimization example
//	floatRanges := []ParameterRange[float64]{
//	    {Min: 0.0001, Max: 0.1},  // Learning rate
//	    {Min: 0.0, Max: 1.0},     // Momentum
//	}
//
//	floatBenchmark := BenchmarkFunc[float64](func(params ...float64) error {
//	    learningRate := params[0]
//	    momentum := params[1]
//	    return trainModel(learningRate, momentum)
//	})
//
//	bestFloatParams := OptimizeHyperparameters(
//	    DefaultConfig(),
//	    floatBenchmark,
//	    floatRanges...,
//	)
//
// How it works:
// 1. Takes InitialSamples random samples to build initial model
// 2. For each iteration:
//   - Fits a Gaussian Process on every successful run so far
//   - Scores NumCandidates random points with the acquisition function
//   - Refines the most promising ones with multistart Nelder-Mead
//   - Evaluates the selected point
//
// 3. Returns the best parameters found
//
// Important notes:
// - Thread-safe: Can be called concurrently with different configs
// - Progressive: Quality typically improves with more iterations
// - Adaptive: Learns from previous evaluations
// - Robust: Handles noisy measurements
//
// Best practices:
// - Start with DefaultConfig() and adjust as needed
// - Use reasonable parameter ranges (too wide = slower convergence)
// - Ensure benchmark function is representative of real workload
// - Consider running multiple optimizations and comparing results
//
// Performance considerations:
// - Total runtime = InitialSamples + Iterations evaluations
// - Each iteration evaluates exactly one point
// - Memory usage scales with number of evaluations
// - Consider reducing NumCandidates or Restarts if iterations are too slow
//
// Failed benchmark runs are recorded as invalid candidates: they stay in the
// history but never inform the model.
//
// Returns nil if the configuration is invalid or no run succeeded. Use
// OptimizeHyperparametersContext to get the error.
func OptimizeHyperparameters[T constraints.Integer | constraints.Float](
	config OptimizationConfig,
	benchmarkFunc BenchmarkFunc[T],
	hypers ...ParameterRange[T],
) []T {
	best, _ := OptimizeHyperparametersContext(context.Background(), config, benchmarkFunc, hypers...)

	return best
}

// OptimizeHyperparametersContext is OptimizeHyperparameters with
// cancellation and error reporting. On error it returns the best parameters
// found so far, if any.
func OptimizeHyperparametersContext[T constraints.Integer | constraints.Float](
	ctx context.Context,
	config OptimizationConfig,
	benchmarkFunc BenchmarkFunc[T],
	hypers ...ParameterRange[T],
) ([]T, error) {
	if len(hypers) == 0 {
		return nil, fmt.Errorf("%w: at least one parameter range is required", ErrConfiguration)
	}

	defs := make(map[string]ParamDef, len(hypers))
	for i, hyper := range hypers {
		defs[hyperName(i)] = hyper
	}

	space, err := NewParameterSpace(defs)
	if err != nil {
		return nil, err
	}

	total := config.InitialSamples + config.Iterations

	var opts []AssistantOption
	if config.ProgressChan != nil {
		opts = append(opts, WithProgress(config.ProgressChan, total))
	}

	assistant, err := NewExperimentAssistant("hyperparameters", space, config, opts...)
	if err != nil {
		return nil, err
	}

	// Phase 1 (InitialSamples random candidates) and phase 2 (model-based
	// candidates) are both driven by the assistant; the loop only evaluates.
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return bestHypers[T](assistant, len(hypers)), err
		}

		c, err := assistant.NextCandidate(ctx)
		if err != nil {
			return bestHypers[T](assistant, len(hypers)), err
		}

		params := make([]T, len(hypers))
		for j := range hypers {
			params[j] = c.Params[hyperName(j)].(T)
		}

		executionTime, runErr := measureExecutionTime(benchmarkFunc, params)

		c.SetResult(executionTime)
		c.Cost = executionTime

		status := StatusFinished
		if runErr != nil {
			status = StatusFinishedInvalid
		}

		if err := assistant.Update(c, status); err != nil {
			return bestHypers[T](assistant, len(hypers)), err
		}
	}

	return bestHypers[T](assistant, len(hypers)), nil
}

// hyperName names the i-th range so that lexical order matches input order.
func hyperName(i int) string {
	return fmt.Sprintf("p%04d", i)
}

// bestHypers returns the best parameters as a slice in range order, or nil.
func bestHypers[T constraints.Integer | constraints.Float](assistant *ExperimentAssistant, n int) []T {
	best := assistant.BestCandidate()
	if best == nil {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = best.Params[hyperName(i)].(T)
	}

	return out
}
