package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors. HTTP traffic metrics live in the middleware package;
// these count what the coach actually produced.
var (
	// PrescriptionsTotal counts stored prescriptions by stage.
	PrescriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttm_prescriptions_total",
			Help: "Prescriptions created, by stage.",
		},
		[]string{"stage"},
	)

	// SkeletonRulesFired counts override fragments applied by the planner.
	SkeletonRulesFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttm_skeleton_rules_fired_total",
			Help: "Work-skeleton override fragments applied, by fragment.",
		},
		[]string{"rule"},
	)

	// LLMCalls counts model calls by feature and outcome (ok|error|retry).
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttm_llm_calls_total",
			Help: "LLM generation attempts, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// LLMLatency records successful call duration in seconds.
	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ttm_llm_call_duration_seconds",
			Help:    "Duration of successful LLM calls in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"op"},
	)

	// ChatFallbacks counts work-chat replies answered from the knowledge base.
	ChatFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ttm_chat_fallback_replies_total",
			Help: "Work-chat replies served from the knowledge base instead of the LLM.",
		},
	)
)

func init() {
	prometheus.MustRegister(PrescriptionsTotal, SkeletonRulesFired, LLMCalls, LLMLatency, ChatFallbacks)
}
