package ho

import "errors"

//////
// Error taxonomy.
//
// All errors returned by the package wrap one of the sentinels below, so
// callers should match them with errors.Is.
//////

var (
	// ErrInvalidParameter is returned when a value lies outside its parameter's
	// declared domain, or a parameter is missing or unknown. Values are never
	// silently clamped.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrConfiguration is returned at construction time for an unknown
	// acquisition strategy or invalid optimizer arguments.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrModelFit is returned by a surrogate model when it can't be fitted
	// numerically. The optimizer recovers from it by sampling uniformly.
	ErrModelFit = errors.New("surrogate model fit failed")

	// ErrUnknownCandidate is returned when an update references a candidate
	// that is not currently pending.
	ErrUnknownCandidate = errors.New("unknown candidate")

	// ErrInvalidComparison is returned when comparing candidates without
	// results, or a candidate against something that isn't a candidate.
	ErrInvalidComparison = errors.New("invalid comparison")

	// ErrSpaceExhausted is returned when no unused point could be proposed and
	// the only remaining option is a point that was already evaluated.
	ErrSpaceExhausted = errors.New("parameter space exhausted")

	// ErrUnknownExperiment is returned by the Lab for an unregistered id.
	ErrUnknownExperiment = errors.New("unknown experiment")

	// ErrDuplicateExperiment is returned by the Lab when an id is reused.
	ErrDuplicateExperiment = errors.New("experiment already registered")
)
