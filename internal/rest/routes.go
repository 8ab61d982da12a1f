package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the HTTP router. gatherer backs /metrics; nil skips it.
func NewRouter(h *Handlers, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	MountRoutes(r, h)

	return r
}

// MountRoutes registers the experiment API on r.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/experiments", h.ListExperiments)
		r.Post("/experiments", h.CreateExperiment)
		r.Get("/experiments/{id}", h.GetExperiment)
		r.Post("/experiments/{id}/candidates", h.NextCandidates)
		r.Post("/experiments/{id}/update", h.Update)
		r.Get("/experiments/{id}/best", h.BestCandidate)
		r.Get("/experiments/{id}/trajectory", h.Trajectory)
	})
}
