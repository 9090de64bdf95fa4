package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	waveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wavecode_wave_duration_seconds",
		Help:    "Wall time of each wave, including cached waves.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"wave"})

	agentResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavecode_agent_results_total",
		Help: "Agent results by role and outcome (valid, retried, invalid, error).",
	}, []string{"role", "outcome"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavecode_cache_lookups_total",
		Help: "Result cache lookups by result (hit, miss, error).",
	}, []string{"result"})
)

func recordAgentResult(r AgentResult) {
	outcome := "valid"
	switch {
	case r.Error != "":
		outcome = "error"
	case !r.Valid:
		outcome = "invalid"
	case r.Retried:
		outcome = "retried"
	}
	agentResults.WithLabelValues(string(r.Role), outcome).Inc()
}
