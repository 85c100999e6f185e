package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/deckhand/internal/errors"
)

// Metrics holds all Prometheus metrics for deckhand.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Publish metrics
	PublishRuns   *prometheus.CounterVec
	ImageBuilds   *prometheus.CounterVec
	BuildDuration *prometheus.HistogramVec
	ImagePushes   *prometheus.CounterVec

	// Rollout metrics
	RolloutRuns          *prometheus.CounterVec
	StepDuration         *prometheus.HistogramVec
	SupersededContainers *prometheus.CounterVec

	// Health metrics
	HealthAttempts      *prometheus.CounterVec
	VerificationAttempt *prometheus.HistogramVec

	// Liveness responder
	LivenessRequests *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec

	LastSuccess *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		PublishRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_publish_runs_total",
				Help: "Total number of publish runs",
			},
			[]string{"success"},
		),
		ImageBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_image_builds_total",
				Help: "Total number of service image builds",
			},
			[]string{"service", "success"},
		),
		BuildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deckhand_image_build_duration_seconds",
				Help:    "Image build duration in seconds",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"service"},
		),
		ImagePushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_image_pushes_total",
				Help: "Total number of image pushes",
			},
			[]string{"success"},
		),

		RolloutRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_rollout_runs_total",
				Help: "Total number of rollouts",
			},
			[]string{"service", "success"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deckhand_rollout_step_duration_seconds",
				Help:    "Rollout step duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"step"},
		),
		SupersededContainers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_superseded_containers_total",
				Help: "Containers stopped and removed before a rollout",
			},
			[]string{"pass", "success"},
		),

		HealthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_health_attempts_total",
				Help: "Health check attempts by HTTP status code (000 on transport failure)",
			},
			[]string{"status"},
		),
		VerificationAttempt: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deckhand_health_verification_attempts",
				Help:    "Attempts used per health verification",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
			},
			[]string{"healthy"},
		),

		LivenessRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_liveness_requests_total",
				Help: "Requests served by the liveness responder",
			},
			[]string{"path"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code"},
		),
		LastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deckhand_last_success_timestamp_seconds",
				Help: "Unix time of the last successful operation",
			},
			[]string{"operation"},
		),
	}
}

func success(err error) string {
	if err == nil {
		return "true"
	}
	return "false"
}

// RecordBuild records one service image build.
func (m *Metrics) RecordBuild(service string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ImageBuilds.WithLabelValues(service, success(err)).Inc()
	m.BuildDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordPush records one image push.
func (m *Metrics) RecordPush(err error) {
	if m == nil {
		return
	}
	m.ImagePushes.WithLabelValues(success(err)).Inc()
}

// RecordPublish records a finished publish run.
func (m *Metrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	m.PublishRuns.WithLabelValues(success(err)).Inc()
	m.finish("publish", err)
}

// RecordRollout records a finished rollout.
func (m *Metrics) RecordRollout(service string, err error) {
	if m == nil {
		return
	}
	m.RolloutRuns.WithLabelValues(service, success(err)).Inc()
	m.finish("rollout", err)
}

// ObserveStep records the duration of a rollout step.
func (m *Metrics) ObserveStep(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordSupersede records one stop+remove of a prior container.
func (m *Metrics) RecordSupersede(pass string, err error) {
	if m == nil {
		return
	}
	m.SupersededContainers.WithLabelValues(pass, success(err)).Inc()
}

// RecordHealthAttempt records one health poll by status code.
func (m *Metrics) RecordHealthAttempt(status string) {
	if m == nil {
		return
	}
	m.HealthAttempts.WithLabelValues(status).Inc()
}

// RecordVerification records the attempts a verification needed.
func (m *Metrics) RecordVerification(attempts int, healthy bool) {
	if m == nil {
		return
	}
	label := "false"
	if healthy {
		label = "true"
	}
	m.VerificationAttempt.WithLabelValues(label).Observe(float64(attempts))
}

// RecordLivenessRequest counts one responder request.
func (m *Metrics) RecordLivenessRequest(path string) {
	if m == nil {
		return
	}
	m.LivenessRequests.WithLabelValues(path).Inc()
}

// RecordError counts err by its error code.
func (m *Metrics) RecordError(err error) {
	if m == nil || err == nil {
		return
	}
	code := string(errors.CodeOf(err))
	if code == "" {
		code = "UNKNOWN"
	}
	m.Errors.WithLabelValues(code).Inc()
}

func (m *Metrics) finish(operation string, err error) {
	if err != nil {
		m.RecordError(err)
		return
	}
	m.LastSuccess.WithLabelValues(operation).SetToCurrentTime()
}
