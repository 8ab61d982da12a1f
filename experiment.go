package ho

import (
	"fmt"
	"time"
)

// Experiment is the ledger of all candidates of one optimization run.
//
// Candidates are pending until reported, then appended to the finished
// sequence in completion order. That order is the optimization trajectory.
// A params value is in at most one of pending or finished at any time.
//
// Experiment is not safe for concurrent mutation on its own; all mutations go
// through an ExperimentAssistant, which serializes them.
type Experiment struct {
	// Name is the display name of the experiment.
	Name string

	// Space is the parameter space searched.
	Space *ParameterSpace

	// Minimization is true when lower results are better.
	Minimization bool

	// Notes is free text kept with the experiment.
	Notes string

	pending      map[string]*Candidate
	pendingOrder []string
	finished     []*Candidate
	finishedKeys map[string]struct{}
}

// NewExperiment returns an empty experiment.
func NewExperiment(name string, space *ParameterSpace, minimization bool) (*Experiment, error) {
	if space == nil {
		return nil, fmt.Errorf("%w: experiment %q has no parameter space", ErrConfiguration, name)
	}

	return &Experiment{
		Name:         name,
		Space:        space,
		Minimization: minimization,
		pending:      map[string]*Candidate{},
		finishedKeys: map[string]struct{}{},
	}, nil
}

//////
// Reads.
//////

// Pending returns the pending candidates in registration order.
func (e *Experiment) Pending() []*Candidate {
	out := make([]*Candidate, 0, len(e.pendingOrder))
	for _, key := range e.pendingOrder {
		out = append(out, e.pending[key])
	}

	return out
}

// Finished returns all finished candidates, valid or not, in completion order.
func (e *Experiment) Finished() []*Candidate {
	return append([]*Candidate(nil), e.finished...)
}

// FinishedValid returns the finished candidates used for modeling.
func (e *Experiment) FinishedValid() []*Candidate {
	return validOnly(e.finished)
}

// IsPending reports whether a candidate with the given key is pending.
func (e *Experiment) IsPending(key string) bool {
	_, ok := e.pending[key]

	return ok
}

// IsFinished reports whether a candidate with the given key is finished.
func (e *Experiment) IsFinished(key string) bool {
	_, ok := e.finishedKeys[key]

	return ok
}

// BestCandidate returns the finished, valid candidate with the extremal
// result, earliest completion winning ties. Nil if there is none.
func (e *Experiment) BestCandidate() *Candidate {
	return bestOf(e.finished, e.Minimization)
}

// BestResultPerStep returns the best-so-far series of the trajectory. Step i
// (1-based) covers the first i finished candidates; steps before the first
// valid result are omitted.
func (e *Experiment) BestResultPerStep() []StepResult {
	return bestPerStep(e.finished, e.Minimization)
}

// BestResultAt returns the best valid result among the first step finished
// candidates.
func (e *Experiment) BestResultAt(step int) (float64, bool) {
	if step > len(e.finished) {
		step = len(e.finished)
	}

	best := bestOf(e.finished[:max(step, 0)], e.Minimization)
	if best == nil {
		return 0, false
	}

	return *best.Result, true
}

// Snapshot captures the experiment state. Candidates are deep copies, so the
// snapshot can be read without holding the assistant's lock.
func (e *Experiment) Snapshot() Snapshot {
	snap := Snapshot{
		Name:         e.Name,
		Notes:        e.Notes,
		Minimization: e.Minimization,
		Parameters:   e.Space.Specs(),
		Finished:     make([]*Candidate, 0, len(e.finished)),
		Pending:      make([]*Candidate, 0, len(e.pendingOrder)),
		TakenAt:      time.Now().UTC(),
	}

	for _, c := range e.finished {
		snap.Finished = append(snap.Finished, c.Clone())
	}

	for _, key := range e.pendingOrder {
		snap.Pending = append(snap.Pending, e.pending[key].Clone())
	}

	return snap
}

//////
// Mutations, only called by ExperimentAssistant.
//////

// addPending registers c as pending. The params must be normalized.
func (e *Experiment) addPending(c *Candidate) error {
	key := c.Key()

	if e.IsPending(key) || e.IsFinished(key) {
		return fmt.Errorf("candidate %s is already registered", key)
	}

	e.pending[key] = c
	e.pendingOrder = append(e.pendingOrder, key)

	return nil
}

// finish moves the pending candidate with c's params to the finished
// sequence, copying over c's evaluation metadata.
func (e *Experiment) finish(c *Candidate, valid bool) (*Candidate, error) {
	stored, err := e.takePending(c.Key())
	if err != nil {
		return nil, err
	}

	copyMetadata(stored, c, true)
	stored.Valid = valid

	e.finished = append(e.finished, stored)
	e.finishedKeys[stored.Key()] = struct{}{}

	return stored, nil
}

// refreshPending copies c's metadata onto the pending record without moving it.
// A pending candidate never carries a result, so c's result is ignored.
func (e *Experiment) refreshPending(c *Candidate) (*Candidate, error) {
	stored, ok := e.pending[c.Key()]
	if !ok {
		return nil, e.unknown(c.Key())
	}

	copyMetadata(stored, c, false)

	return stored, nil
}

func (e *Experiment) takePending(key string) (*Candidate, error) {
	stored, ok := e.pending[key]
	if !ok {
		return nil, e.unknown(key)
	}

	delete(e.pending, key)

	for i, k := range e.pendingOrder {
		if k == key {
			e.pendingOrder = append(e.pendingOrder[:i], e.pendingOrder[i+1:]...)

			break
		}
	}

	return stored, nil
}

func (e *Experiment) unknown(key string) error {
	if e.IsFinished(key) {
		return fmt.Errorf("%w: %s is already finished", ErrUnknownCandidate, key)
	}

	return fmt.Errorf("%w: %s is not pending", ErrUnknownCandidate, key)
}

func copyMetadata(dst, src *Candidate, withResult bool) {
	if src == dst {
		return
	}

	if withResult && src.Result != nil {
		dst.SetResult(*src.Result)
	}

	dst.Cost = src.Cost

	if src.ParamsUsed != nil {
		dst.ParamsUsed = append([]bool(nil), src.ParamsUsed...)
	}

	if src.WorkerInformation != nil {
		dst.WorkerInformation = src.WorkerInformation
	}
}

//////
// Snapshot.
//////

// Snapshot is a point-in-time copy of an experiment. It is what the proposer
// reads and what persistence collaborators receive.
type Snapshot struct {
	ID           string               `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string               `json:"name" yaml:"name"`
	Notes        string               `json:"notes,omitempty" yaml:"notes,omitempty"`
	Minimization bool                 `json:"minimization" yaml:"minimization"`
	Parameters   map[string]ParamSpec `json:"parameters" yaml:"parameters"`
	Finished     []*Candidate         `json:"finished" yaml:"finished"`
	Pending      []*Candidate         `json:"pending" yaml:"pending"`
	TakenAt      time.Time            `json:"taken_at" yaml:"taken_at"`
}

// FinishedValid returns the finished candidates used for modeling.
func (s Snapshot) FinishedValid() []*Candidate {
	return validOnly(s.Finished)
}

// BestCandidate returns the best finished valid candidate, or nil.
func (s Snapshot) BestCandidate() *Candidate {
	return bestOf(s.Finished, s.Minimization)
}

// BestResultPerStep returns the best-so-far series. See
// Experiment.BestResultPerStep.
func (s Snapshot) BestResultPerStep() []StepResult {
	return bestPerStep(s.Finished, s.Minimization)
}

// StepResult is one point of the best-so-far series.
type StepResult struct {
	// Step is the 1-based index into the finished sequence.
	Step int `json:"step" yaml:"step"`

	// BestResult is the best valid result among the first Step candidates.
	BestResult float64 `json:"best_result" yaml:"best_result"`

	// Result is the result of the Step-th candidate itself.
	Result float64 `json:"result" yaml:"result"`
}

func validOnly(candidates []*Candidate) []*Candidate {
	out := make([]*Candidate, 0, len(candidates))

	for _, c := range candidates {
		if c.Valid && c.HasResult() {
			out = append(out, c)
		}
	}

	return out
}

// better reports whether a beats b in the given direction. Equal results
// never beat each other, which keeps the earliest candidate on ties.
func better(a, b float64, minimization bool) bool {
	if minimization {
		return a < b
	}

	return a > b
}

func bestOf(candidates []*Candidate, minimization bool) *Candidate {
	var best *Candidate

	for _, c := range candidates {
		if !c.Valid || !c.HasResult() {
			continue
		}

		if best == nil || better(*c.Result, *best.Result, minimization) {
			best = c
		}
	}

	return best
}

func bestPerStep(candidates []*Candidate, minimization bool) []StepResult {
	out := make([]StepResult, 0, len(candidates))

	var best *Candidate

	for i, c := range candidates {
		if c.Valid && c.HasResult() && (best == nil || better(*c.Result, *best.Result, minimization)) {
			best = c
		}

		if best == nil {
			continue
		}

		step := StepResult{Step: i + 1, BestResult: *best.Result}
		if c.HasResult() {
			step.Result = *c.Result
		}

		out = append(out, step)
	}

	return out
}
