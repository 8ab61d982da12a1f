package ho

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// AssistantOption configures an ExperimentAssistant.
type AssistantOption func(*assistantOptions)

type assistantOptions struct {
	id             string
	notes          string
	minimization   bool
	log            logr.Logger
	observer       Observer
	persister      Persister
	writeFrequency int
	progress       chan<- ProgressUpdate
	totalSteps     int
	optimizerOpts  []OptimizerOption
}

// WithID sets the experiment id reported in snapshots.
func WithID(id string) AssistantOption {
	return func(o *assistantOptions) { o.id = id }
}

// WithNotes attaches free text to the experiment.
func WithNotes(notes string) AssistantOption {
	return func(o *assistantOptions) { o.notes = notes }
}

// WithMaximization makes higher results better. Experiments minimize by
// default.
func WithMaximization() AssistantOption {
	return func(o *assistantOptions) { o.minimization = false }
}

// WithAssistantLogger sets the logger of the assistant and its optimizer.
func WithAssistantLogger(log logr.Logger) AssistantOption {
	return func(o *assistantOptions) { o.log = log }
}

// WithObserver registers lifecycle hooks, e.g. for metrics.
func WithObserver(observer Observer) AssistantOption {
	return func(o *assistantOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithPersister makes the assistant hand a snapshot to p every
// writeFrequency finished updates. Values below 1 mean every update.
func WithPersister(p Persister, writeFrequency int) AssistantOption {
	return func(o *assistantOptions) {
		o.persister = p
		o.writeFrequency = max(writeFrequency, 1)
	}
}

// WithProgress makes the assistant send a ProgressUpdate on every finished
// update. Sends never block; updates are dropped when the channel is full.
// total is reported as TotalIterations.
func WithProgress(ch chan<- ProgressUpdate, total int) AssistantOption {
	return func(o *assistantOptions) {
		o.progress = ch
		o.totalSteps = total
	}
}

// WithOptimizerOptions passes options to the underlying BayesianOptimizer.
func WithOptimizerOptions(opts ...OptimizerOption) AssistantOption {
	return func(o *assistantOptions) { o.optimizerOpts = append(o.optimizerOpts, opts...) }
}

// ExperimentAssistant is the only way to mutate an Experiment. It moves
// candidates between pending and finished and asks the optimizer for new
// ones.
//
// Thread safety:
//   - All state transitions run under one mutex, so concurrent workers can
//     call NextCandidates and Update freely
//   - Proposals are computed outside the lock from a snapshot captured under
//     it, then registered under the lock again
type ExperimentAssistant struct {
	mu sync.Mutex

	id         string
	experiment *Experiment
	optimizer  *BayesianOptimizer

	log            logr.Logger
	observer       Observer
	persister      Persister
	writeFrequency int
	progress       chan<- ProgressUpdate
	totalSteps     int

	updates int
}

// NewExperimentAssistant creates an experiment and its optimizer.
//
// Usage example:
//
//	space, _ := NewParameterSpace(map[string]ParamDef{
//	    "x": MinMaxNumeric{Min: 0, Max: 1},
//	})
//
//	config := DefaultConfig()
//	config.InitialSamples = 3
//
//	assistant, err := NewExperimentAssistant("quadratic", space, config)
//	if err != nil {
//	    return err
//	}
//
//	c, _ := assistant.NextCandidate(ctx)
//	x := c.Params["x"].(float64)
//	c.SetResult(x * x)
//
//	err = assistant.Update(c, StatusFinished)
func NewExperimentAssistant(name string, space *ParameterSpace, config OptimizationConfig, opts ...AssistantOption) (*ExperimentAssistant, error) {
	o := assistantOptions{
		minimization:   true,
		log:            logr.Discard(),
		observer:       nopObserver{},
		writeFrequency: 1,
	}

	for _, opt := range opts {
		opt(&o)
	}

	experiment, err := NewExperiment(name, space, o.minimization)
	if err != nil {
		return nil, err
	}

	experiment.Notes = o.notes

	log := o.log.WithValues("experiment", name)

	optimizer, err := NewBayesianOptimizer(space, config, append([]OptimizerOption{WithLogger(log)}, o.optimizerOpts...)...)
	if err != nil {
		return nil, err
	}

	return &ExperimentAssistant{
		id:             o.id,
		experiment:     experiment,
		optimizer:      optimizer,
		log:            log,
		observer:       o.observer,
		persister:      o.persister,
		writeFrequency: o.writeFrequency,
		progress:       o.progress,
		totalSteps:     o.totalSteps,
	}, nil
}

// ID returns the id given with WithID, if any.
func (a *ExperimentAssistant) ID() string { return a.id }

// Name returns the experiment name.
func (a *ExperimentAssistant) Name() string { return a.experiment.Name }

// Space returns the experiment's parameter space.
func (a *ExperimentAssistant) Space() *ParameterSpace { return a.experiment.Space }

// Optimizer returns the underlying optimizer.
func (a *ExperimentAssistant) Optimizer() *BayesianOptimizer { return a.optimizer }

// NextCandidate returns one new pending candidate.
func (a *ExperimentAssistant) NextCandidate(ctx context.Context) (*Candidate, error) {
	candidates, err := a.NextCandidates(ctx, 1)
	if err != nil {
		return nil, err
	}

	return candidates[0], nil
}

// NextCandidates asks the optimizer for n candidates and registers them as
// pending.
//
// Proposals are computed outside the lock, so another caller may register a
// point in the meantime. Every proposal is therefore checked again under the
// lock against the current pending and finished points, with the optimizer's
// DuplicateTolerance. On a collision the colliding proposals are replaced by
// new ones from a fresh snapshot, up to MaxRetries times.
//
// Once the retries are exhausted, a proposal whose params are already pending
// is answered with the existing pending record instead of a second one, and a
// proposal that was already finished fails the whole call with
// ErrSpaceExhausted. The batch is registered all or nothing: on error no
// candidate is left pending.
//
// The returned candidates are copies: workers set the result on them and pass
// them back to Update, which matches them by params.
func (a *ExperimentAssistant) NextCandidates(ctx context.Context, n int) ([]*Candidate, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: number of candidates must be positive, got %d", ErrInvalidParameter, n)
	}

	var accepted []*Candidate

	for attempt := 0; ; attempt++ {
		a.mu.Lock()
		snap := a.snapshotLocked()
		a.mu.Unlock()

		// Proposals kept from earlier attempts count as used.
		snap.Pending = append(snap.Pending, accepted...)

		proposal, err := a.optimizer.Propose(ctx, snap, n-len(accepted))
		if err != nil {
			return nil, err
		}

		if proposal.FitFailed {
			a.observer.ModelFitFailed(a.experiment.Name)
		}

		batch := append(accepted, proposal.Candidates...)

		a.mu.Lock()

		fresh, collisions := a.partitionLocked(batch)
		if collisions == 0 || attempt+1 >= a.optimizer.Config().MaxRetries {
			out, err := a.registerLocked(batch, proposal.Phase)
			a.mu.Unlock()

			return out, err
		}

		a.mu.Unlock()

		a.log.V(1).Info("Proposals collided with registered candidates, retrying", "collisions", collisions, "attempt", attempt+1)

		accepted = fresh
	}
}

// partitionLocked splits batch into the proposals that are not near any
// pending, finished or earlier batch point, and the count of those that are.
func (a *ExperimentAssistant) partitionLocked(batch []*Candidate) ([]*Candidate, int) {
	used := a.optimizer.usedPoints(Snapshot{
		Pending:  a.experiment.Pending(),
		Finished: a.experiment.finished,
	})

	fresh := make([]*Candidate, 0, len(batch))

	for _, c := range batch {
		vec, err := a.experiment.Space.ToVector(c.Params)
		if err != nil {
			vec = nil
		}

		if used.contains(c.Key(), vec) {
			continue
		}

		used.add(c.Key(), vec)
		fresh = append(fresh, c)
	}

	return fresh, len(batch) - len(fresh)
}

// registerLocked validates the whole batch before registering any of it, so a
// failing batch leaves no pending record behind.
func (a *ExperimentAssistant) registerLocked(batch []*Candidate, phase Phase) ([]*Candidate, error) {
	planned := make(map[string]*Candidate, len(batch))
	out := make([]*Candidate, 0, len(batch))
	toAdd := make([]*Candidate, 0, len(batch))

	for _, c := range batch {
		key := c.Key()

		if a.experiment.IsFinished(key) {
			return nil, fmt.Errorf("%w: %s proposed %s, which was already evaluated", ErrSpaceExhausted, a.experiment.Name, key)
		}

		if shared, ok := planned[key]; ok {
			out = append(out, shared)

			continue
		}

		if a.experiment.IsPending(key) {
			a.log.V(1).Info("Proposal is already pending, sharing it", "params", key)

			planned[key] = a.experiment.pending[key]
			out = append(out, planned[key])

			continue
		}

		planned[key] = c
		toAdd = append(toAdd, c)
		out = append(out, c)
	}

	for _, c := range toAdd {
		if err := a.experiment.addPending(c); err != nil {
			return nil, err
		}
	}

	for i, c := range out {
		out[i] = c.Clone()

		a.observer.CandidateProposed(a.experiment.Name, phase)
	}

	a.log.V(1).Info("Proposed candidates", "count", len(out), "new", len(toAdd), "phase", phase)

	return out, nil
}

// AddCandidate registers a caller-built candidate as pending, e.g. a point
// the user wants evaluated by hand. Its params are normalized against the
// space first.
func (a *ExperimentAssistant) AddCandidate(c *Candidate) (*Candidate, error) {
	stored, err := a.normalized(c)
	if err != nil {
		return nil, err
	}

	stored.Result = nil

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.experiment.addPending(stored); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}

	return stored.Clone(), nil
}

// Update reports the state of a pending candidate, matched by params.
//
//   - StatusFinished: moves it to the finished sequence; a finite result is required
//   - StatusFinishedInvalid: moves it to the finished sequence, marked invalid
//   - StatusPending: keeps it pending, refreshing cost and worker information
//
// Updating a candidate that isn't pending fails with ErrUnknownCandidate;
// this includes finishing the same candidate twice.
func (a *ExperimentAssistant) Update(c *Candidate, status Status) error {
	if c == nil {
		return fmt.Errorf("%w: nil candidate", ErrUnknownCandidate)
	}

	incoming, err := a.normalized(c)
	if err != nil {
		return err
	}

	if status == StatusFinished && (!incoming.HasResult() || !isFinite(*incoming.Result)) {
		return fmt.Errorf("%w: a finished candidate needs a finite result", ErrInvalidParameter)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var stored *Candidate

	switch status {
	case StatusFinished:
		stored, err = a.experiment.finish(incoming, true)
	case StatusFinishedInvalid:
		stored, err = a.experiment.finish(incoming, false)
	case StatusPending:
		_, err = a.experiment.refreshPending(incoming)

		return err
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidParameter, status)
	}

	if err != nil {
		return err
	}

	c.Valid = stored.Valid

	a.updates++
	a.observer.CandidateFinished(a.experiment.Name, status)
	a.sendProgressLocked(stored)

	if a.persister != nil && a.updates%a.writeFrequency == 0 {
		a.persistLocked()
	}

	return nil
}

// BestCandidate returns a copy of the best finished valid candidate, or nil.
func (a *ExperimentAssistant) BestCandidate() *Candidate {
	a.mu.Lock()
	defer a.mu.Unlock()

	best := a.experiment.BestCandidate()
	if best == nil {
		return nil
	}

	return best.Clone()
}

// Snapshot returns the ordered finished sequence and the pending set.
func (a *ExperimentAssistant) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.snapshotLocked()
}

// BestResultPerStep returns the best-so-far series of the trajectory.
func (a *ExperimentAssistant) BestResultPerStep() []StepResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.experiment.BestResultPerStep()
}

// BestResultAt returns the best valid result among the first step finished
// candidates.
func (a *ExperimentAssistant) BestResultAt(step int) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.experiment.BestResultAt(step)
}

// Phase returns the phase the next proposal will run in.
func (a *ExperimentAssistant) Phase() Phase {
	return a.optimizer.Update(a.Snapshot())
}

// Steps returns the number of finished candidates.
func (a *ExperimentAssistant) Steps() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.experiment.finished)
}

// Persist hands the current snapshot to the persister, if any.
func (a *ExperimentAssistant) Persist(ctx context.Context) error {
	if a.persister == nil {
		return nil
	}

	return a.persister.Persist(ctx, a.Snapshot())
}

func (a *ExperimentAssistant) snapshotLocked() Snapshot {
	snap := a.experiment.Snapshot()
	snap.ID = a.id

	return snap
}

// persistLocked persists without surfacing failures; a missed write is
// repeated on the next one.
func (a *ExperimentAssistant) persistLocked() {
	if err := a.persister.Persist(context.Background(), a.snapshotLocked()); err != nil {
		a.log.Error(err, "Failed to persist experiment")
	}
}

func (a *ExperimentAssistant) sendProgressLocked(last *Candidate) {
	if a.progress == nil {
		return
	}

	update := ProgressUpdate{
		Experiment:       a.experiment.Name,
		Phase:            a.optimizer.Phase(Snapshot{Finished: a.experiment.finished}),
		CurrentIteration: len(a.experiment.finished),
		TotalIterations:  a.totalSteps,
		CurrentParams:    last.Clone().Params,
		LastValid:        last.Valid,
	}

	if last.HasResult() {
		update.LastResult = *last.Result
	}

	if best := a.experiment.BestCandidate(); best != nil {
		update.CurrentBestParams = best.Clone().Params
		update.CurrentBestResult = *best.Result
	}

	select {
	case a.progress <- update:
	default:
		// Skip update if channel is full.
	}
}

// normalized returns a copy of c with params normalized against the space.
func (a *ExperimentAssistant) normalized(c *Candidate) (*Candidate, error) {
	params, err := a.experiment.Space.Normalize(c.Params)
	if err != nil {
		return nil, err
	}

	out := c.Clone()
	out.Params = params

	if out.WorkerInformation == nil {
		out.WorkerInformation = map[string]any{}
	}

	return out, nil
}
