package health

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// StatusTransportFailure is recorded when no HTTP response arrived at all.
// It never equals a success code.
const StatusTransportFailure = "000"

// Probe issues one GET against url and returns the status code as a
// three-digit string, or StatusTransportFailure.
func Probe(ctx context.Context, client *http.Client, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusTransportFailure
	}
	resp, err := client.Do(req)
	if err != nil {
		return StatusTransportFailure
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return strconv.Itoa(resp.StatusCode)
}

// EndpointChecker probes a liveness URL once.
type EndpointChecker struct {
	url    string
	client *http.Client
}

// NewEndpointChecker creates a single-shot liveness check.
func NewEndpointChecker(url string, timeout time.Duration) *EndpointChecker {
	return &EndpointChecker{url: url, client: &http.Client{Timeout: timeout}}
}

// Name returns the name of this health check.
func (c *EndpointChecker) Name() string {
	return "liveness-endpoint"
}

// Check reports healthy only on 200.
func (c *EndpointChecker) Check(ctx context.Context) *Result {
	start := time.Now()
	status := Probe(ctx, c.client, c.url)
	latency := time.Since(start)

	switch status {
	case "200":
		return Healthy("liveness endpoint answered").
			WithDetail("url", c.url).
			WithDetail("status", status).
			WithLatency(latency)
	case StatusTransportFailure:
		return Unhealthy("liveness endpoint unreachable").
			WithDetail("url", c.url).
			WithDetail("status", status).
			WithLatency(latency)
	default:
		return Unhealthy("liveness endpoint returned status " + status).
			WithDetail("url", c.url).
			WithDetail("status", status).
			WithLatency(latency)
	}
}
