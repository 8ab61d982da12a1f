package ho

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// LabOption configures a Lab.
type LabOption func(*Lab)

// WithLabLogger sets the logger used by the lab and every experiment it
// creates.
func WithLabLogger(log logr.Logger) LabOption {
	return func(l *Lab) { l.log = log }
}

// WithLabObserver registers lifecycle hooks on every experiment.
func WithLabObserver(observer Observer) LabOption {
	return func(l *Lab) { l.observer = observer }
}

// WithLabPersister persists every experiment every writeFrequency finished
// updates.
func WithLabPersister(p Persister, writeFrequency int) LabOption {
	return func(l *Lab) {
		l.persister = p
		l.writeFrequency = writeFrequency
	}
}

// Lab coordinates several independent experiments, keyed by id.
//
// Experiments share no mutable state, so calls on different ids never
// contend beyond a read lock on the registry. A Lab is an ordinary value:
// create one and pass it to whoever needs it.
type Lab struct {
	mu          sync.RWMutex
	experiments map[string]*ExperimentAssistant

	log            logr.Logger
	observer       Observer
	persister      Persister
	writeFrequency int
}

// NewLab returns an empty lab.
func NewLab(opts ...LabOption) *Lab {
	l := &Lab{
		experiments: map[string]*ExperimentAssistant{},
		log:         logr.Discard(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// InitExperiment registers a new experiment and returns its id.
//
// An empty id asks the lab to generate one. A WithID option among opts takes
// precedence over id. Reusing an id fails with ErrDuplicateExperiment.
func (l *Lab) InitExperiment(id, name string, space *ParameterSpace, config OptimizationConfig, opts ...AssistantOption) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id == "" {
		for {
			id = uuid.NewString()
			if _, ok := l.experiments[id]; !ok {
				break
			}
		}
	}

	base := []AssistantOption{
		WithID(id),
		WithAssistantLogger(l.log.WithValues("id", id)),
	}

	if l.observer != nil {
		base = append(base, WithObserver(l.observer))
	}

	if l.persister != nil {
		base = append(base, WithPersister(l.persister, l.writeFrequency))
	}

	assistant, err := NewExperimentAssistant(name, space, config, append(base, opts...)...)
	if err != nil {
		return "", err
	}

	id = assistant.ID()

	if _, ok := l.experiments[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateExperiment, id)
	}

	l.experiments[id] = assistant

	l.log.Info("Experiment initialized", "id", id, "name", name)

	return id, nil
}

// Experiment returns the assistant registered under id.
func (l *Lab) Experiment(id string) (*ExperimentAssistant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.experiments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExperiment, id)
	}

	return a, nil
}

// ExperimentIDs returns all ids, sorted.
func (l *Lab) ExperimentIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.experiments))
	for id := range l.experiments {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// NextCandidate returns a new candidate for experiment id.
func (l *Lab) NextCandidate(ctx context.Context, id string) (*Candidate, error) {
	a, err := l.Experiment(id)
	if err != nil {
		return nil, err
	}

	return a.NextCandidate(ctx)
}

// NextCandidates returns n new candidates for experiment id.
func (l *Lab) NextCandidates(ctx context.Context, id string, n int) ([]*Candidate, error) {
	a, err := l.Experiment(id)
	if err != nil {
		return nil, err
	}

	return a.NextCandidates(ctx, n)
}

// Update reports a candidate of experiment id.
func (l *Lab) Update(id string, c *Candidate, status Status) error {
	a, err := l.Experiment(id)
	if err != nil {
		return err
	}

	return a.Update(c, status)
}

// BestCandidate returns the best candidate of experiment id, nil if none has
// finished validly yet.
func (l *Lab) BestCandidate(id string) (*Candidate, error) {
	a, err := l.Experiment(id)
	if err != nil {
		return nil, err
	}

	return a.BestCandidate(), nil
}

// Snapshot returns the state of experiment id.
func (l *Lab) Snapshot(id string) (Snapshot, error) {
	a, err := l.Experiment(id)
	if err != nil {
		return Snapshot{}, err
	}

	return a.Snapshot(), nil
}

// ResultsPerStep returns the best-so-far series of the given experiments
// (all if none given), keyed by id. With sameStepsOnly the series are cut to
// the smallest number of finished candidates among them, so plots compare
// equal budgets.
func (l *Lab) ResultsPerStep(sameStepsOnly bool, ids ...string) (map[string][]StepResult, error) {
	if len(ids) == 0 {
		ids = l.ExperimentIDs()
	}

	assistants := make([]*ExperimentAssistant, 0, len(ids))

	for _, id := range ids {
		a, err := l.Experiment(id)
		if err != nil {
			return nil, err
		}

		assistants = append(assistants, a)
	}

	limit := -1

	if sameStepsOnly {
		for _, a := range assistants {
			if s := a.Steps(); limit < 0 || s < limit {
				limit = s
			}
		}
	}

	out := make(map[string][]StepResult, len(ids))

	for i, a := range assistants {
		series := a.BestResultPerStep()

		if limit >= 0 {
			cut := sort.Search(len(series), func(j int) bool { return series[j].Step > limit })
			series = series[:cut]
		}

		out[ids[i]] = series
	}

	return out, nil
}

// StepString describes the progress of all experiments as their finished
// counts joined by "_", in id order. same reports whether all counts are
// equal.
func (l *Lab) StepString() (steps string, same bool) {
	ids := l.ExperimentIDs()
	parts := make([]string, 0, len(ids))
	same = true

	for i, id := range ids {
		a, err := l.Experiment(id)
		if err != nil {
			continue
		}

		n := a.Steps()
		parts = append(parts, strconv.Itoa(n))

		if i > 0 && parts[0] != parts[i] {
			same = false
		}
	}

	return strings.Join(parts, "_"), same
}

// PersistAll persists every experiment in parallel.
func (l *Lab) PersistAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, id := range l.ExperimentIDs() {
		id := id
		a, err := l.Experiment(id)
		if err != nil {
			return err
		}

		g.Go(func() error {
			if err := a.Persist(gctx); err != nil {
				return fmt.Errorf("persist %s: %w", id, err)
			}

			return nil
		})
	}

	return g.Wait()
}
