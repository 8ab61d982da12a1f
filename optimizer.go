package ho

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/optimize"
)

//////
// Exported functionalities.
//////

// DefaultConfig returns a default configuration.
func DefaultConfig() OptimizationConfig {
	return OptimizationConfig{
		Iterations:         50,
		InitialSamples:     10,
		Acquisition:        AcquisitionExpectedImprovement,
		NumCandidates:      200,
		Restarts:           10,
		MaxIterations:      100,
		MaxRetries:         10,
		DuplicateTolerance: 1e-6,
		AcqParams: AcquisitionParams{
			Xi:          0,
			RandomState: rand.New(rand.NewSource(time.Now().UnixNano())),
		},
		ProgressChan: nil, // Default to no progress updates.
	}
}

// OptimizerOption configures a BayesianOptimizer.
type OptimizerOption func(*BayesianOptimizer)

// WithModelFactory replaces the default Gaussian Process surrogate.
func WithModelFactory(factory ModelFactory) OptimizerOption {
	return func(b *BayesianOptimizer) {
		if factory != nil {
			b.newModel = factory
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logr.Logger) OptimizerOption {
	return func(b *BayesianOptimizer) {
		b.log = log
	}
}

// BayesianOptimizer proposes candidates for an experiment.
//
// It has two phases per experiment. While fewer than InitialSamples valid
// results are known it samples uniformly (RandomPhase). Afterwards it fits a
// surrogate model on every finished valid candidate and maximizes the
// acquisition function over the normalized space (ModelPhase).
//
// The optimizer keeps no per-experiment state: every proposal is a function
// of the Snapshot it is given, so any number of callers can share one
// optimizer and observe the same source of truth. It is safe for concurrent
// use.
type BayesianOptimizer struct {
	config      OptimizationConfig
	space       *ParameterSpace
	acquisition AcquisitionFunction
	newModel    ModelFactory
	log         logr.Logger

	// rngMu protects rng, which isn't safe for concurrent use.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewBayesianOptimizer validates config and creates an optimizer for space.
// Zero values of NumCandidates, Restarts, MaxIterations, MaxRetries and
// DuplicateTolerance are replaced by DefaultConfig's. Unknown acquisition
// names and negative values fail with ErrConfiguration.
func NewBayesianOptimizer(space *ParameterSpace, config OptimizationConfig, opts ...OptimizerOption) (*BayesianOptimizer, error) {
	if space == nil {
		return nil, fmt.Errorf("%w: parameter space is required", ErrConfiguration)
	}

	if config.InitialSamples < 0 || config.NumCandidates < 0 || config.Restarts < 0 ||
		config.MaxIterations < 0 || config.MaxRetries < 0 || config.DuplicateTolerance < 0 {
		return nil, fmt.Errorf("%w: optimizer arguments must not be negative", ErrConfiguration)
	}

	defaults := DefaultConfig()

	if config.NumCandidates == 0 {
		config.NumCandidates = defaults.NumCandidates
	}

	if config.Restarts == 0 {
		config.Restarts = defaults.Restarts
	}

	if config.MaxIterations == 0 {
		config.MaxIterations = defaults.MaxIterations
	}

	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}

	if config.DuplicateTolerance == 0 {
		config.DuplicateTolerance = defaults.DuplicateTolerance
	}

	acq, err := NewAcquisition(config.Acquisition, config.AcqParams)
	if err != nil {
		return nil, err
	}

	rng := config.AcqParams.RandomState
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	b := &BayesianOptimizer{
		config:      config,
		space:       space,
		acquisition: acq,
		newModel:    NewGaussianProcess,
		log:         logr.Discard(),
		rng:         rng,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Acquisition returns the acquisition function selected at construction.
func (b *BayesianOptimizer) Acquisition() AcquisitionFunction {
	return b.acquisition
}

// Config returns the effective configuration.
func (b *BayesianOptimizer) Config() OptimizationConfig {
	return b.config
}

// Phase returns the phase the next proposal for snap will run in.
func (b *BayesianOptimizer) Phase(snap Snapshot) Phase {
	if len(snap.FinishedValid()) < b.config.InitialSamples {
		return RandomPhase
	}

	return ModelPhase
}

// Update re-derives the optimizer's view of the experiment. Proposals are
// computed from the snapshot passed to Propose, so there is nothing to store;
// it returns the phase the next proposal will run in.
func (b *BayesianOptimizer) Update(snap Snapshot) Phase {
	return b.Phase(snap)
}

// Proposal is the outcome of one Propose call.
type Proposal struct {
	// Candidates are the new pending candidates, pairwise distinct unless
	// the retry bound was exhausted.
	Candidates []*Candidate

	// Phase is the phase the proposal ran in.
	Phase Phase

	// FitFailed is true when ModelPhase fell back to uniform sampling.
	FitFailed bool
}

// NextCandidates returns n new candidates for snap. See Propose.
func (b *BayesianOptimizer) NextCandidates(ctx context.Context, snap Snapshot, n int) ([]*Candidate, error) {
	p, err := b.Propose(ctx, snap, n)
	if err != nil {
		return nil, err
	}

	return p.Candidates, nil
}

// Propose returns n new candidates for snap.
//
// How it works:
//  1. RandomPhase: n uniform samples
//  2. ModelPhase: fit a fresh surrogate on all finished valid candidates; on
//     failure fall back to uniform samples for this call. Otherwise run the
//     multistart inner maximizer once per requested candidate.
//  3. Every candidate is checked against pending, finished and already
//     proposed points. A used point is retried up to MaxRetries times with
//     fresh restarts, then up to MaxRetries uniform draws, after which the
//     last draw is accepted even if it duplicates a used point.
//
// Only ctx cancellation produces an error in ModelPhase; numerical problems
// degrade to uniform sampling.
func (b *BayesianOptimizer) Propose(ctx context.Context, snap Snapshot, n int) (Proposal, error) {
	if n < 1 {
		return Proposal{}, fmt.Errorf("%w: number of candidates must be positive, got %d", ErrInvalidParameter, n)
	}

	used := b.usedPoints(snap)
	phase := b.Phase(snap)
	proposal := Proposal{Phase: phase}

	observations := b.observations(snap)

	if phase == RandomPhase || len(observations) == 0 {
		// Nothing to model yet, e.g. InitialSamples is 0.
		proposal.Phase = RandomPhase
		proposal.Candidates = b.sampleUnused(n, used)

		return proposal, nil
	}

	model := b.newModel()
	if err := model.Fit(observations); err != nil {
		b.log.Error(err, "Surrogate fit failed, sampling uniformly", "experiment", snap.Name, "observations", len(observations))

		proposal.FitFailed = true
		proposal.Candidates = b.sampleUnused(n, used)

		return proposal, nil
	}

	best := *snap.BestCandidate().Result

	for i := 0; i < n; i++ {
		c, err := b.maximize(ctx, model, best, snap.Minimization, used)
		if err != nil {
			return Proposal{}, err
		}

		proposal.Candidates = append(proposal.Candidates, c)
	}

	return proposal, nil
}

//////
// Inner maximizer.
//////

// localResult is the outcome of one Nelder-Mead restart.
type localResult struct {
	x     []float64
	score float64
}

// maximize proposes one unused candidate from the fitted model.
func (b *BayesianOptimizer) maximize(ctx context.Context, model SurrogateModel, best float64, minimization bool, used *usedSet) (*Candidate, error) {
	for attempt := 0; attempt < b.config.MaxRetries; attempt++ {
		x, err := b.multistart(ctx, model, best, minimization)
		if err != nil {
			return nil, err
		}

		c, vec, err := b.decode(x)
		if err != nil {
			return nil, err
		}

		if !used.contains(c.Key(), vec) {
			used.add(c.Key(), vec)

			return c, nil
		}

		b.log.V(1).Info("Inner maximizer converged to a used point, retrying", "attempt", attempt+1)
	}

	return b.sampleUnused(1, used)[0], nil
}

// multistart runs Restarts Nelder-Mead searches in parallel and returns the
// point with the highest acquisition score.
func (b *BayesianOptimizer) multistart(ctx context.Context, model SurrogateModel, best float64, minimization bool) ([]float64, error) {
	starts := b.startingPoints(model, best, minimization)
	results := make([]localResult, len(starts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, start := range starts {
		i, start := i, start
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			results[i] = b.localSearch(model, start, best, minimization)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	winner := results[0]
	for _, r := range results[1:] {
		if r.score > winner.score {
			winner = r
		}
	}

	return winner.x, nil
}

// startingPoints screens NumCandidates uniform points with the batch
// acquisition and keeps the best half of Restarts; the other half are fresh
// uniform points.
func (b *BayesianOptimizer) startingPoints(model SurrogateModel, best float64, minimization bool) [][]float64 {
	pool := b.uniformVectors(b.config.NumCandidates)
	scores := ScoreBatch(b.acquisition, model, pool, best, minimization)

	order := make([]int, len(pool))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })

	top := (b.config.Restarts + 1) / 2
	if top > len(pool) {
		top = len(pool)
	}

	starts := make([][]float64, 0, b.config.Restarts)
	for _, idx := range order[:top] {
		starts = append(starts, pool[idx])
	}

	return append(starts, b.uniformVectors(b.config.Restarts-top)...)
}

// localSearch minimizes the negated acquisition from start. The search is
// unconstrained, so iterates are clamped to [0,1] before being scored.
func (b *BayesianOptimizer) localSearch(model SurrogateModel, start []float64, best float64, minimization bool) localResult {
	objective := func(x []float64) float64 {
		clamped := make([]float64, len(x))
		for i, v := range x {
			clamped[i] = clamp(v, 0, 1)
		}

		mean, variance := model.Predict(clamped)

		s := b.acquisition.Score(mean, variance, best, minimization)
		if math.IsNaN(s) {
			return math.Inf(1)
		}

		return -s
	}

	out := localResult{x: append([]float64(nil), start...), score: -objective(start)}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		MajorIterations: b.config.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 20,
		},
	}

	result, err := optimize.Minimize(problem, append([]float64(nil), start...), settings, &optimize.NelderMead{SimplexSize: 0.1})
	if result == nil {
		b.log.V(1).Info("Local search failed", "error", err)

		return out
	}

	if isFinite(result.F) && -result.F > out.score {
		out.score = -result.F
		out.x = make([]float64, len(result.X))

		for i, v := range result.X {
			out.x[i] = clamp(v, 0, 1)
		}
	}

	return out
}

//////
// Sampling and bookkeeping.
//////

// uniformVectors draws n points uniformly from [0,1]^Dim.
func (b *BayesianOptimizer) uniformVectors(n int) [][]float64 {
	if n <= 0 {
		return nil
	}

	b.rngMu.Lock()
	defer b.rngMu.Unlock()

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, b.space.Dim())
		for j := range out[i] {
			out[i][j] = b.rng.Float64()
		}
	}

	return out
}

// sampleUnused draws n uniform candidates, retrying up to MaxRetries times
// per candidate when a draw hits a used point. After that the last draw is
// accepted.
func (b *BayesianOptimizer) sampleUnused(n int, used *usedSet) []*Candidate {
	out := make([]*Candidate, 0, n)

	for i := 0; i < n; i++ {
		var (
			c   *Candidate
			vec []float64
		)

		for attempt := 0; attempt < b.config.MaxRetries; attempt++ {
			b.rngMu.Lock()
			params := b.space.SampleUniform(b.rng)
			b.rngMu.Unlock()

			c = NewCandidate(params)
			vec, _ = b.space.ToVector(params)

			if !used.contains(c.Key(), vec) {
				break
			}
		}

		used.add(c.Key(), vec)
		out = append(out, c)
	}

	return out
}

// decode maps a raw maximizer point to a candidate and its snapped vector.
// The point is clamped to [0,1] first.
func (b *BayesianOptimizer) decode(x []float64) (*Candidate, []float64, error) {
	clamped := make([]float64, len(x))
	for i, v := range x {
		clamped[i] = clamp(v, 0, 1)
	}

	params, err := b.space.FromVector(clamped)
	if err != nil {
		return nil, nil, err
	}

	vec, err := b.space.ToVector(params)
	if err != nil {
		return nil, nil, err
	}

	return NewCandidate(params), vec, nil
}

// observations converts the finished valid candidates to model inputs.
// Candidates whose params don't fit the space are skipped.
func (b *BayesianOptimizer) observations(snap Snapshot) []Observation {
	valid := snap.FinishedValid()
	out := make([]Observation, 0, len(valid))

	for _, c := range valid {
		vec, err := b.space.ToVector(c.Params)
		if err != nil {
			b.log.Error(err, "Skipping finished candidate outside the parameter space", "experiment", snap.Name)

			continue
		}

		out = append(out, Observation{X: vec, Y: *c.Result})
	}

	return out
}

// usedPoints collects every pending and finished point of snap.
func (b *BayesianOptimizer) usedPoints(snap Snapshot) *usedSet {
	used := &usedSet{
		keys: make(map[string]struct{}, len(snap.Pending)+len(snap.Finished)),
		tol:  b.config.DuplicateTolerance,
	}

	for _, group := range [][]*Candidate{snap.Pending, snap.Finished} {
		for _, c := range group {
			vec, err := b.space.ToVector(c.Params)
			if err != nil {
				vec = nil
			}

			used.add(c.Key(), vec)
		}
	}

	return used
}

// usedSet holds points that must not be proposed again, both by exact key
// and by proximity in the normalized space.
type usedSet struct {
	keys    map[string]struct{}
	vectors [][]float64
	tol     float64
}

func (u *usedSet) add(key string, vec []float64) {
	u.keys[key] = struct{}{}

	if vec != nil {
		u.vectors = append(u.vectors, vec)
	}
}

func (u *usedSet) contains(key string, vec []float64) bool {
	if _, ok := u.keys[key]; ok {
		return true
	}

	for _, v := range u.vectors {
		if len(v) == len(vec) && linf(v, vec) <= u.tol {
			return true
		}
	}

	return false
}

// linf is the L-infinity distance.
func linf(a, b []float64) float64 {
	var d float64
	for i := range a {
		d = math.Max(d, math.Abs(a[i]-b[i]))
	}

	return d
}
