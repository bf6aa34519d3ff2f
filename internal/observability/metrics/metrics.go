// Package metrics exposes prometheus counters/histograms for the answering
// pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// AnswerMetrics instruments the safety-gated answering pipeline. All
// observe methods are nil-safe so wiring metrics stays optional in tests.
type AnswerMetrics struct {
	aiLatency         *prometheus.HistogramVec
	aiAttempts        *prometheus.CounterVec
	aiFallbackUsed    prometheus.Counter
	rateLimitBlocks   *prometheus.CounterVec
	schemaInvalid     prometheus.Counter
	denyListHits      prometheus.Counter
	escalations       *prometheus.CounterVec
	safetyValidations *prometheus.CounterVec
}

func NewAnswerMetrics(reg prometheus.Registerer) *AnswerMetrics {
	m := &AnswerMetrics{
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telemed",
			Subsystem: "ai",
			Name:      "latency_seconds",
			Help:      "Latency of generative model calls",
			Buckets:   []float64{0.1, 0.3, 0.6, 1, 2, 4, 8, 16},
		}, []string{"model", "fallback"}),
		aiAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "ai",
			Name:      "attempts_total",
			Help:      "Generative model call attempts",
		}, []string{"model", "fallback", "success"}),
		aiFallbackUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "ai",
			Name:      "fallback_used_total",
			Help:      "Times the fallback model was used",
		}),
		rateLimitBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "ai",
			Name:      "rate_limit_blocks_total",
			Help:      "Requests rejected by the rate limiter",
		}, []string{"key_type"}),
		schemaInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "ai",
			Name:      "schema_invalid_total",
			Help:      "Model responses that failed schema validation",
		}),
		denyListHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "ai",
			Name:      "deny_list_hits_total",
			Help:      "Generated answers blocked by the deny list",
		}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "ai",
			Name:      "escalations_total",
			Help:      "Escalations triggered by guardrails",
		}, []string{"tipo"}),
		safetyValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "ai",
			Name:      "safety_validations_total",
			Help:      "Question safety classifications",
		}, []string{"type", "triggered"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.aiLatency,
		m.aiAttempts,
		m.aiFallbackUsed,
		m.rateLimitBlocks,
		m.schemaInvalid,
		m.denyListHits,
		m.escalations,
		m.safetyValidations,
	)
	return m
}

func (m *AnswerMetrics) ObserveModelLatency(model string, fallback bool, seconds float64) {
	if m == nil {
		return
	}
	m.aiLatency.WithLabelValues(model, boolLabel(fallback)).Observe(seconds)
}

func (m *AnswerMetrics) ObserveAttempt(model string, fallback, success bool) {
	if m == nil {
		return
	}
	m.aiAttempts.WithLabelValues(model, boolLabel(fallback), boolLabel(success)).Inc()
}

func (m *AnswerMetrics) ObserveFallbackUsed() {
	if m == nil {
		return
	}
	m.aiFallbackUsed.Inc()
}

func (m *AnswerMetrics) ObserveRateLimitBlock(keyType string) {
	if m == nil {
		return
	}
	m.rateLimitBlocks.WithLabelValues(keyType).Inc()
}

func (m *AnswerMetrics) ObserveSchemaInvalid() {
	if m == nil {
		return
	}
	m.schemaInvalid.Inc()
}

func (m *AnswerMetrics) ObserveDenyListHit() {
	if m == nil {
		return
	}
	m.denyListHits.Inc()
}

func (m *AnswerMetrics) ObserveEscalation(tipo string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(tipo).Inc()
}

func (m *AnswerMetrics) ObserveSafetyValidation(matchType string, triggered bool) {
	if m == nil {
		return
	}
	if matchType == "" {
		matchType = "none"
	}
	m.safetyValidations.WithLabelValues(matchType, boolLabel(triggered)).Inc()
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
