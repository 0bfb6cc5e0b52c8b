package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ChatMetrics exposes counters/histograms for the support chat.
type ChatMetrics struct {
	outcomesTotal   *prometheus.CounterVec
	appendedTotal   *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "havana",
			Subsystem: "chat",
			Name:      "outcomes_total",
			Help:      "Visitor messages handled, by orchestrator outcome",
		}, []string{"outcome"}),
		appendedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "havana",
			Subsystem: "chat",
			Name:      "messages_appended_total",
			Help:      "Messages appended to transcripts, by author role",
		}, []string{"role"}),
		llmCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "havana",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Latency of language model calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"call", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outcomesTotal, m.appendedTotal, m.llmCallDuration)
	return m
}

func (m *ChatMetrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObserveMessageAppended(role string) {
	if m == nil {
		return
	}
	m.appendedTotal.WithLabelValues(role).Inc()
}

func (m *ChatMetrics) ObserveLLMCall(call, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmCallDuration.WithLabelValues(call, status).Observe(d.Seconds())
}
