// Package health checks that a rolled-out service answers on its liveness
// endpoint and that the target host has the tools a rollout needs.
//
// Two shapes of check live here:
//   - Verifier polls one URL with a bounded retry budget and gates a rollout.
//   - Checker is a single-shot diagnostic; Manager runs several in parallel
//     for `deckhand doctor`.
package health

import (
	"context"
	"time"
)

// Checker is one host diagnostic.
type Checker interface {
	// Name is lowercase with hyphens, e.g. "docker-daemon".
	Name() string

	// Check must return before ctx is done.
	Check(ctx context.Context) *Result
}

// Status of a diagnostic. Degraded means a rollout can proceed but
// something is off, such as an old compose plugin.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Worst returns the most severe of the given statuses, healthy when none.
func Worst(statuses ...Status) Status {
	worst := StatusHealthy
	for _, s := range statuses {
		if s.severity() > worst.severity() {
			worst = s
		}
	}
	return worst
}

// Result is the outcome of one Checker.
type Result struct {
	Status  Status         `json:"status" yaml:"status"`
	Message string         `json:"message" yaml:"message"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Latency time.Duration  `json:"latency" yaml:"latency"`
}

func newResult(status Status, message string) *Result {
	return &Result{Status: status, Message: message, Details: make(map[string]any)}
}

// WithDetail records key for the JSON report and returns r.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// WithLatency overrides the latency the Manager would otherwise measure.
func (r *Result) WithLatency(latency time.Duration) *Result {
	r.Latency = latency
	return r
}

func Healthy(message string) *Result   { return newResult(StatusHealthy, message) }
func Degraded(message string) *Result  { return newResult(StatusDegraded, message) }
func Unhealthy(message string) *Result { return newResult(StatusUnhealthy, message) }
