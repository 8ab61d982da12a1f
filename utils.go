package ho

import (
	"math"
	"time"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat/distuv"
)

//////
// Helper functions.
//////

// Helper function used by PI and EI to compute the cumulative distribution
// function of the standard normal distribution.
//
// Returns:
// - Probability that a standard normal random variable is less than x.
func normalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// Helper function used by EI to compute the probability density function
// of the standard normal distribution.
//
// Returns:
// - Value of the standard normal PDF at x.
func normalPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

// clamp restricts v to [lo, hi].
func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

// isIntegerType reports whether T is an integer type. Converting 0.5 to any
// integer type truncates it to zero.
func isIntegerType[T constraints.Integer | constraints.Float]() bool {
	half := 0.5

	return T(half) == 0
}

// toFloat converts any Go numeric value to float64.
//
// Returns:
// - float64: The converted value
// - bool: False if v is not numeric
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// measureExecutionTime runs a benchmark function with the given parameters and
// measures its execution time in nanoseconds.
//
// Parameters:
// - f: The benchmark function to measure
// - params: Parameters to pass to the benchmark function
//
// Returns:
// - float64: Execution time in nanoseconds
// - error: Error from benchmark function if it failed, nil otherwise
//
// Important notes:
// - Time measurement includes only the execution of f, not parameter preparation
// - The duration is returned even when f fails; callers decide what to do with it
//
// Thread safety:
// - This function is thread-safe if and only if the provided benchmark function is thread-safe.
func measureExecutionTime[T constraints.Integer | constraints.Float](f BenchmarkFunc[T], params []T) (float64, error) {
	start := time.Now()

	err := f(params...)

	return float64(time.Since(start).Nanoseconds()), err
}

// isFinite reports whether v is neither NaN nor infinite.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
