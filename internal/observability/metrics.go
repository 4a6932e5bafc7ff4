package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "grievance"

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	pipelineRuns  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	llmRequests   *prometheus.CounterVec

	monitorCycles *prometheus.CounterVec
	escalations   *prometheus.CounterVec
	followUps     *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_errors_total", Help: "HTTP errors by code.",
		}, []string{"path", "method", "code"}),
		pipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pipeline_runs_total", Help: "Complaint pipeline runs by outcome.",
		}, []string{"outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pipeline_stage_duration_seconds", Help: "Pipeline stage latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"stage"}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pipeline_stage_failures_total", Help: "Stage failures recovered by fallback.",
		}, []string{"stage"}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total", Help: "Completion requests by stage and outcome.",
		}, []string{"stage", "outcome"}),
		monitorCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "monitor_cycles_total", Help: "Monitoring cycles by outcome.",
		}, []string{"outcome"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "escalations_total", Help: "Escalations by level.",
		}, []string{"level"}),
		followUps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "followups_total", Help: "Follow-up actions by type.",
		}, []string{"action"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total", Help: "Citizen notifications by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordPipelineRun counts a finished pipeline run.
func (m *Metrics) RecordPipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(outcome).Inc()
}

// ObserveStage records a stage's latency and whether it fell back.
func (m *Metrics) ObserveStage(stage string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if failed {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordLLMRequest counts a completion request.
func (m *Metrics) RecordLLMRequest(stage, outcome string) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(stage, outcome).Inc()
}

// RecordMonitorCycle counts a monitoring cycle.
func (m *Metrics) RecordMonitorCycle(outcome string) {
	if m == nil {
		return
	}
	m.monitorCycles.WithLabelValues(outcome).Inc()
}

// RecordEscalation counts an applied escalation.
func (m *Metrics) RecordEscalation(level string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(level).Inc()
}

// RecordFollowUp counts a dispatched follow-up.
func (m *Metrics) RecordFollowUp(action string) {
	if m == nil {
		return
	}
	m.followUps.WithLabelValues(action).Inc()
}

// RecordNotification counts a citizen notification attempt.
func (m *Metrics) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}
