// Package rest exposes a Lab over HTTP.
package rest

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/thalesfsp/ho/v2"
)

// DefaultMaxBatch is the largest n accepted by NextCandidates unless
// WithMaxBatch says otherwise.
const DefaultMaxBatch = 32

// Option configures Handlers.
type Option func(*Handlers)

// WithMaxBatch caps the number of candidates one request may ask for. Every
// candidate runs a full inner maximization.
func WithMaxBatch(n int) Option {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBatch = n
		}
	}
}

// Handlers serves the experiment API.
type Handlers struct {
	lab       *ho.Lab
	defaults  func() ho.OptimizationConfig
	bodyLimit int64
	maxBatch  int
	log       logr.Logger
}

// NewHandlers returns handlers over lab. defaults is called once per created
// experiment, so every experiment owns its random source.
func NewHandlers(lab *ho.Lab, defaults func() ho.OptimizationConfig, bodyLimit int64, log logr.Logger, opts ...Option) *Handlers {
	if defaults == nil {
		defaults = ho.DefaultConfig
	}

	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}

	h := &Handlers{lab: lab, defaults: defaults, bodyLimit: bodyLimit, maxBatch: DefaultMaxBatch, log: log}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// OptimizerRequest overrides optimizer defaults for one experiment.
type OptimizerRequest struct {
	InitialSamples *int     `json:"initial_samples,omitempty"`
	Acquisition    string   `json:"acquisition,omitempty"`
	Xi             *float64 `json:"xi,omitempty"`
	NumCandidates  *int     `json:"num_candidates,omitempty"`
	Restarts       *int     `json:"restarts,omitempty"`
}

// CreateExperimentRequest is the body of POST /api/v1/experiments.
type CreateExperimentRequest struct {
	ID           string                  `json:"id,omitempty"`
	Name         string                  `json:"name"`
	Notes        string                  `json:"notes,omitempty"`
	Minimization *bool                   `json:"minimization,omitempty"`
	Parameters   map[string]ho.ParamSpec `json:"parameters"`
	Optimizer    OptimizerRequest        `json:"optimizer"`
}

// ExperimentResponse summarizes an experiment.
type ExperimentResponse struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Notes        string                  `json:"notes,omitempty"`
	Minimization bool                    `json:"minimization"`
	Parameters   map[string]ho.ParamSpec `json:"parameters"`
	Phase        ho.Phase                `json:"phase"`
	Finished     int                     `json:"finished"`
	Pending      int                     `json:"pending"`
	Best         *ho.Candidate           `json:"best,omitempty"`
}

// UpdateRequest is the body of POST /api/v1/experiments/{id}/update.
type UpdateRequest struct {
	Candidate ho.Candidate `json:"candidate"`
	Status    ho.Status    `json:"status"`
}

// CreateExperiment handles POST /api/v1/experiments.
func (h *Handlers) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req CreateExperimentRequest
	if !h.readJSON(w, r, &req) {
		return
	}

	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	space, err := ho.NewParameterSpaceFromSpecs(req.Parameters)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	config := h.defaults()
	applyOptimizer(&config, req.Optimizer)

	var opts []ho.AssistantOption
	if req.Notes != "" {
		opts = append(opts, ho.WithNotes(req.Notes))
	}

	if req.Minimization != nil && !*req.Minimization {
		opts = append(opts, ho.WithMaximization())
	}

	id, err := h.lab.InitExperiment(req.ID, req.Name, space, config, opts...)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp, err := h.describe(id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// ListExperiments handles GET /api/v1/experiments.
func (h *Handlers) ListExperiments(w http.ResponseWriter, _ *http.Request) {
	ids := h.lab.ExperimentIDs()
	out := make([]ExperimentResponse, 0, len(ids))

	for _, id := range ids {
		resp, err := h.describe(id)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}

		out = append(out, resp)
	}

	h.writeJSON(w, http.StatusOK, out)
}

// GetExperiment handles GET /api/v1/experiments/{id}. The full snapshot is
// returned.
func (h *Handlers) GetExperiment(w http.ResponseWriter, r *http.Request) {
	snap, err := h.lab.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

// NextCandidates handles POST /api/v1/experiments/{id}/candidates?n=.
func (h *Handlers) NextCandidates(w http.ResponseWriter, r *http.Request) {
	n := 1

	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			h.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}

		n = v
	}

	if n > h.maxBatch {
		h.writeError(w, http.StatusBadRequest, "n must not exceed "+strconv.Itoa(h.maxBatch))
		return
	}

	candidates, err := h.lab.NextCandidates(r.Context(), chi.URLParam(r, "id"), n)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, candidates)
}

// Update handles POST /api/v1/experiments/{id}/update.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !h.readJSON(w, r, &req) {
		return
	}

	if req.Status == "" {
		req.Status = ho.StatusFinished
	}

	c := req.Candidate
	if err := h.lab.Update(chi.URLParam(r, "id"), &c, req.Status); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, &c)
}

// BestCandidate handles GET /api/v1/experiments/{id}/best.
func (h *Handlers) BestCandidate(w http.ResponseWriter, r *http.Request) {
	best, err := h.lab.BestCandidate(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if best == nil {
		h.writeError(w, http.StatusNotFound, "no valid result yet")
		return
	}

	h.writeJSON(w, http.StatusOK, best)
}

// Trajectory handles GET /api/v1/experiments/{id}/trajectory.
func (h *Handlers) Trajectory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	series, err := h.lab.ResultsPerStep(false, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, series[id])
}

func (h *Handlers) describe(id string) (ExperimentResponse, error) {
	a, err := h.lab.Experiment(id)
	if err != nil {
		return ExperimentResponse{}, err
	}

	snap := a.Snapshot()

	return ExperimentResponse{
		ID:           id,
		Name:         snap.Name,
		Notes:        snap.Notes,
		Minimization: snap.Minimization,
		Parameters:   snap.Parameters,
		Phase:        a.Optimizer().Phase(snap),
		Finished:     len(snap.Finished),
		Pending:      len(snap.Pending),
		Best:         snap.BestCandidate(),
	}, nil
}

func applyOptimizer(config *ho.OptimizationConfig, req OptimizerRequest) {
	if req.InitialSamples != nil {
		config.InitialSamples = *req.InitialSamples
	}

	if req.Acquisition != "" {
		config.Acquisition = req.Acquisition
	}

	if req.Xi != nil {
		config.AcqParams.Xi = *req.Xi
	}

	if req.NumCandidates != nil {
		config.NumCandidates = *req.NumCandidates
	}

	if req.Restarts != nil {
		config.Restarts = *req.Restarts
	}
}
