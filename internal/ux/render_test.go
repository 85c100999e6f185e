package ux

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/deckhand/internal/health"
	"github.com/felixgeelhaar/deckhand/internal/patch"
	"github.com/felixgeelhaar/deckhand/internal/publish"
	"github.com/felixgeelhaar/deckhand/internal/rollout"
	"github.com/felixgeelhaar/deckhand/internal/tag"
)

func TestRenderOutcomeSuccess(t *testing.T) {
	o := &rollout.Outcome{
		ID:      "7d9e",
		Image:   "ghcr.io/acme/shop:3f9c2ab",
		Dir:     "/opt/app",
		Service: "app",
		Port:    3000,
		Success: true,
		Steps: []rollout.StepResult{
			{Name: "pull", Duration: 1200 * time.Millisecond},
			{Name: "verify", Duration: 4 * time.Second},
		},
		Supersede: rollout.SupersedeReport{
			Removed: []rollout.Superseded{{ID: "aaa", Name: "shop-old", Image: "ghcr.io/acme/shop:1111111", Pass: rollout.PassPort}},
		},
		Health: &health.Verification{Healthy: true, Attempts: 2, LastStatus: "200"},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderOutcome(&buf, o, PlainStyles()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "✓ rollout succeeded 7d9e\n"))
	assert.Contains(t, out, "  image        ghcr.io/acme/shop:3f9c2ab\n")
	assert.Contains(t, out, "  port         3000\n")
	assert.Contains(t, out, "pull 1.2s, verify 4s")
	assert.Contains(t, out, "shop-old ghcr.io/acme/shop:1111111 (port)")
	assert.Contains(t, out, "healthy after 2 attempt(s)")
	assert.NotContains(t, out, "host")
}

func TestRenderOutcomeFailure(t *testing.T) {
	o := &rollout.Outcome{
		ID:         "7d9e",
		Image:      "ghcr.io/acme/shop:3f9c2ab",
		FailedStep: "verify",
		Error:      "[HEALTH-001] health check failed",
		Supersede: rollout.SupersedeReport{
			Failed: []rollout.Superseded{{Name: "stuck", Image: "ghcr.io/acme/shop:0", Error: "device busy"}},
		},
		Health: &health.Verification{Attempts: 15, LastStatus: "000"},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderOutcome(&buf, o, PlainStyles()))
	out := buf.String()

	assert.Contains(t, out, "✗ rollout failed at verify")
	assert.Contains(t, out, "not removed  stuck ghcr.io/acme/shop:0: device busy")
	assert.Contains(t, out, "unhealthy after 15 attempt(s), last status 000")
	assert.True(t, strings.HasSuffix(out, "[HEALTH-001] health check failed\n"))
}

func TestRenderVerification(t *testing.T) {
	v := &health.Verification{
		URL:      "http://localhost:3000/health",
		Healthy:  true,
		Attempts: 2,
		History: []health.Attempt{
			{Number: 1, Status: "000", Latency: 3 * time.Millisecond},
			{Number: 2, Status: "200", Latency: 5 * time.Millisecond},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderVerification(&buf, v, PlainStyles()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "healthy after 2 attempt(s) http://localhost:3000/health", lines[0])
	assert.Equal(t, "  #1  000 3ms", lines[1])
	assert.Equal(t, "  #2  200 5ms", lines[2])
}

func TestRenderPublishWorkflow(t *testing.T) {
	r := &publish.Result{
		Tag:      tag.Tag{Value: "1b2c3d4", Source: tag.SourceGit},
		Images:   []publish.Image{{Service: "app", Ref: "ghcr.io/acme/shop:1b2c3d4", Pushed: true}},
		Workflow: &patch.Result{Path: "deploy.yml", Token: "__IMAGE_TAG__"},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderPublish(&buf, r, PlainStyles()))
	assert.Contains(t, buf.String(), "deploy.yml: placeholder __IMAGE_TAG__ not found")

	r.Workflow.Replacements = 2
	buf.Reset()
	require.NoError(t, RenderPublish(&buf, r, PlainStyles()))
	assert.Contains(t, buf.String(), "deploy.yml (2 replacement(s))")
}

func TestRenderReport(t *testing.T) {
	report := &health.Report{
		Status: health.StatusUnhealthy,
		Results: []health.NamedResult{
			{Name: "docker-daemon", Result: health.Result{Status: health.StatusUnhealthy, Message: "daemon down"}},
			{Name: "git-binary", Result: health.Result{Status: health.StatusDegraded, Message: "git not found"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, report, PlainStyles()))
	out := buf.String()
	assert.Contains(t, out, "deckhand doctor unhealthy")
	assert.Contains(t, out, "✗ docker-daemon")
	assert.Contains(t, out, "! git-binary")
}
