package ho

import (
	"fmt"
	"sort"
	"strings"
)

// Candidate is one parameter assignment plus its evaluation metadata.
//
// Identity is defined by Params alone: two candidates with equal params are
// the same point, regardless of result, cost or validity.
type Candidate struct {
	// Params maps parameter names to native values.
	Params map[string]any `json:"params" yaml:"params"`

	// ParamsUsed marks, per flattened dimension, whether the dimension is
	// semantically active for this candidate. Nil means all are used.
	ParamsUsed []bool `json:"params_used,omitempty" yaml:"params_used,omitempty"`

	// Result is nil while the candidate is pending.
	Result *float64 `json:"result,omitempty" yaml:"result,omitempty"`

	// Cost is the evaluation cost (e.g. seconds), for bookkeeping only.
	Cost float64 `json:"cost" yaml:"cost"`

	// Valid is false for failed evaluations; their result is never modeled.
	Valid bool `json:"valid" yaml:"valid"`

	// WorkerInformation is an opaque bag for the worker's own use, e.g.
	// checkpoint paths. It is never inspected by the optimizer.
	WorkerInformation map[string]any `json:"worker_information,omitempty" yaml:"worker_information,omitempty"`
}

// NewCandidate returns a pending, valid candidate for params.
func NewCandidate(params map[string]any) *Candidate {
	return &Candidate{
		Params:            params,
		Valid:             true,
		WorkerInformation: map[string]any{},
	}
}

// SetResult records the evaluation outcome.
func (c *Candidate) SetResult(result float64) {
	c.Result = &result
}

// HasResult reports whether a result has been recorded.
func (c *Candidate) HasResult() bool {
	return c.Result != nil
}

// Key is the canonical representation of Params used for equality. Values
// of different Go types never compare equal, so params should be normalized
// through the ParameterSpace first.
func (c *Candidate) Key() string {
	return paramsKey(c.Params)
}

// Equal reports whether both candidates have the same params.
func (c *Candidate) Equal(other *Candidate) bool {
	if c == nil || other == nil {
		return c == other
	}

	return c.Key() == other.Key()
}

// Less compares results. Both sides must be candidates with results,
// otherwise ErrInvalidComparison is returned.
func (c *Candidate) Less(other any) (bool, error) {
	o, ok := other.(*Candidate)
	if !ok || o == nil {
		return false, fmt.Errorf("%w: %T is not a candidate", ErrInvalidComparison, other)
	}

	if !c.HasResult() || !o.HasResult() {
		return false, fmt.Errorf("%w: candidate without result", ErrInvalidComparison)
	}

	return *c.Result < *o.Result, nil
}

// Clone returns a deep copy. WorkerInformation values are copied shallowly.
func (c *Candidate) Clone() *Candidate {
	out := &Candidate{
		Params:     make(map[string]any, len(c.Params)),
		ParamsUsed: append([]bool(nil), c.ParamsUsed...),
		Cost:       c.Cost,
		Valid:      c.Valid,
	}

	for k, v := range c.Params {
		out.Params[k] = v
	}

	if c.Result != nil {
		out.SetResult(*c.Result)
	}

	if c.WorkerInformation != nil {
		out.WorkerInformation = make(map[string]any, len(c.WorkerInformation))
		for k, v := range c.WorkerInformation {
			out.WorkerInformation[k] = v
		}
	}

	return out
}

// String prints the params and the result.
func (c *Candidate) String() string {
	if c.Result == nil {
		return fmt.Sprintf("params: %s result: <pending>", c.Key())
	}

	return fmt.Sprintf("params: %s result: %v", c.Key(), *c.Result)
}

func paramsKey(params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}

	sort.Strings(names)

	var b strings.Builder

	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}

		fmt.Fprintf(&b, "%s=%T(%v)", name, params[name], params[name])
	}

	return b.String()
}
