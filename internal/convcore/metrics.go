package convcore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the conversational core's Prometheus instruments, following
// internal/observability.Metrics's promauto-registered CounterVec/GaugeVec
// convention.
type Metrics struct {
	// Executions counts orchestrator runs by instance and outcome
	// (ok|error|cancelled|max_iterations).
	Executions *prometheus.CounterVec

	// Injections counts messages delivered through InjectionQueue.Drain by
	// instance.
	Injections *prometheus.CounterVec

	// ForceResponds counts force-respond flag activations by instance and
	// triggering tool name.
	ForceResponds *prometheus.CounterVec

	// RoundtablePosts counts surviving (non-[PASS]) roundtable responses
	// posted, by instance.
	RoundtablePosts *prometheus.CounterVec

	// ActiveExecutions is a gauge of currently in-flight executions by
	// instance.
	ActiveExecutions *prometheus.GaugeVec
}

// NewMetrics creates and registers the conversational core's metrics with
// Prometheus's default registry. Call once at startup, matching
// observability.NewMetrics's usage pattern.
func NewMetrics() *Metrics {
	return &Metrics{
		Executions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convcore_executions_total",
				Help: "Total number of orchestrator executions by instance and outcome",
			},
			[]string{"instance", "outcome"},
		),

		Injections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convcore_injections_total",
				Help: "Total number of mid-flight messages injected into a running execution",
			},
			[]string{"instance"},
		),

		ForceResponds: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convcore_force_responds_total",
				Help: "Total number of force-respond activations by instance and tool",
			},
			[]string{"instance", "tool"},
		),

		RoundtablePosts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convcore_roundtable_posts_total",
				Help: "Total number of roundtable responses posted by instance",
			},
			[]string{"instance"},
		),

		ActiveExecutions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "convcore_active_executions",
				Help: "Current number of in-flight executions by instance",
			},
			[]string{"instance"},
		),
	}
}
