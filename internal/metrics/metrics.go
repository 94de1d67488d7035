package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversation metrics exported on /metrics
var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encanto_turns_total",
		Help: "Conversation turns by outcome.",
	}, []string{"outcome"})

	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encanto_tool_calls_total",
		Help: "Tool invocations by tool name and status.",
	}, []string{"tool", "status"})

	StallCorrectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encanto_stall_corrections_total",
		Help: "Corrective instructions injected after stalling or evasive model replies.",
	})

	IterationLimitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encanto_iteration_limit_total",
		Help: "Tool loops that hit the iteration cap and degraded to synthesis.",
	})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "encanto_turn_duration_seconds",
		Help:    "End-to-end latency of one conversation turn.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
