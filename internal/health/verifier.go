package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/felixgeelhaar/deckhand/internal/errors"
	"github.com/felixgeelhaar/deckhand/internal/log"
	"github.com/felixgeelhaar/deckhand/internal/metrics"
)

// Default polling budget: 15 attempts, 2s apart, 5s per request.
const (
	DefaultRetries = 15
	DefaultDelay   = 2 * time.Second
	DefaultTimeout = 5 * time.Second
)

// VerifierConfig sets the URL and polling budget.
type VerifierConfig struct {
	URL     string
	Retries int
	Delay   time.Duration
	Timeout time.Duration
}

// Attempt is one poll of the liveness URL.
type Attempt struct {
	Number  int           `json:"number" yaml:"number"`
	Status  string        `json:"status" yaml:"status"`
	Latency time.Duration `json:"latency" yaml:"latency"`
}

// Verification is the outcome of a polling run.
type Verification struct {
	URL        string        `json:"url" yaml:"url"`
	Healthy    bool          `json:"healthy" yaml:"healthy"`
	Attempts   int           `json:"attempts" yaml:"attempts"`
	LastStatus string        `json:"last_status" yaml:"last_status"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	History    []Attempt     `json:"history,omitempty" yaml:"history,omitempty"`
}

// Verifier polls a liveness URL until it answers 200 or the budget runs out.
type Verifier struct {
	cfg     VerifierConfig
	client  *http.Client
	logger  *log.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = logger }
}

// WithMetrics records every attempt.
func WithMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

// WithHTTPClient replaces the default client. The per-attempt timeout is
// still applied through the request context.
func WithHTTPClient(c *http.Client) VerifierOption {
	return func(v *Verifier) { v.client = c }
}

// NewVerifier creates a Verifier. Zero budget fields take the defaults,
// except Delay, where zero means no wait.
func NewVerifier(cfg VerifierConfig, opts ...VerifierOption) *Verifier {
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}

	v := &Verifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.Discard(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Config returns the effective configuration.
func (v *Verifier) Config() VerifierConfig {
	return v.cfg
}

// Verify polls the URL. It returns as soon as one attempt gets 200. When all
// attempts fail it returns the verification with a HealthCheckFailed error.
// Cancelling ctx stops the loop between or during attempts.
func (v *Verifier) Verify(ctx context.Context) (*Verification, error) {
	start := time.Now()
	result := &Verification{URL: v.cfg.URL, LastStatus: StatusTransportFailure}

	for attempt := 1; attempt <= v.cfg.Retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
		attemptStart := time.Now()
		status := Probe(attemptCtx, v.client, v.cfg.URL)
		cancel()

		result.Attempts = attempt
		result.LastStatus = status
		result.History = append(result.History, Attempt{Number: attempt, Status: status, Latency: time.Since(attemptStart)})
		v.metrics.RecordHealthAttempt(status)

		if status == "200" {
			result.Healthy = true
			result.Duration = time.Since(start)
			v.metrics.RecordVerification(attempt, true)
			v.logger.Info("health check passed", "url", v.cfg.URL, "attempt", attempt)
			return result, nil
		}

		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("health check interrupted after %d attempts: %w", attempt, err)
		}

		v.logger.Info("health check not ready",
			"url", v.cfg.URL,
			"attempt", attempt,
			"retries", v.cfg.Retries,
			"status", status)

		if attempt == v.cfg.Retries {
			break
		}
		if err := v.sleep(ctx, v.cfg.Delay); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("health check interrupted after %d attempts: %w", attempt, err)
		}
	}

	result.Duration = time.Since(start)
	v.metrics.RecordVerification(result.Attempts, false)
	return result, errors.NewHealthCheckFailedError(v.cfg.URL, result.Attempts, result.LastStatus)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
