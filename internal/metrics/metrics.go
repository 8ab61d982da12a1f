// Package metrics exposes experiment lifecycle events as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/thalesfsp/ho/v2"
)

// Observer implements ho.Observer with Prometheus counters.
type Observer struct {
	proposed    *prometheus.CounterVec
	finished    *prometheus.CounterVec
	fitFailures *prometheus.CounterVec
}

var _ ho.Observer = (*Observer)(nil)

// NewObserver creates the collectors and registers them with reg.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		proposed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ho",
			Name:      "candidates_proposed_total",
			Help:      "Candidates handed out, by experiment and proposer phase.",
		}, []string{"experiment", "phase"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ho",
			Name:      "candidates_finished_total",
			Help:      "Candidates reported finished, by experiment and status.",
		}, []string{"experiment", "status"}),
		fitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ho",
			Name:      "model_fit_failures_total",
			Help:      "Surrogate fits that fell back to uniform sampling.",
		}, []string{"experiment"}),
	}

	for _, c := range []prometheus.Collector{o.proposed, o.finished, o.fitFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// CandidateProposed implements ho.Observer.
func (o *Observer) CandidateProposed(experiment string, phase ho.Phase) {
	o.proposed.WithLabelValues(experiment, string(phase)).Inc()
}

// CandidateFinished implements ho.Observer.
func (o *Observer) CandidateFinished(experiment string, status ho.Status) {
	o.finished.WithLabelValues(experiment, string(status)).Inc()
}

// ModelFitFailed implements ho.Observer.
func (o *Observer) ModelFitFailed(experiment string) {
	o.fitFailures.WithLabelValues(experiment).Inc()
}
