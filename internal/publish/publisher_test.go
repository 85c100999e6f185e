package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/deckhand/internal/config"
	"github.com/felixgeelhaar/deckhand/internal/errors"
	"github.com/felixgeelhaar/deckhand/internal/exec"
	"github.com/felixgeelhaar/deckhand/internal/exec/exectest"
	"github.com/felixgeelhaar/deckhand/internal/metrics"
	"github.com/felixgeelhaar/deckhand/internal/tag"
)

const singleService = `services:
  app:
    build: .
    ports: ["3000:3000"]
`

const multiService = `services:
  web:
    build: ./web
  api:
    build: ./api
  Worker_Queue:
    build: ./worker
`

type fakeDigests struct {
	err error
}

func (f fakeDigests) Digest(_ context.Context, ref string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "sha256:" + strings.Repeat("a", 60) + fmt.Sprintf("%04d", len(ref)), nil
}

func testConfig(dir string) Config {
	return Config{
		Registry: config.RegistryConfig{Repo: "ghcr.io/acme/shop", Username: "octocat", Token: "s3cret"},
		Publish: config.PublishConfig{
			Dir:         dir,
			Manifest:    "docker-compose.yml",
			Placeholder: "__IMAGE_TAG__",
			CommitSHA:   "3f9c2ab7e1d04c55",
		},
	}
}

func hostWithManifest(dir, content string) *exectest.Host {
	host := exectest.New()
	host.SetFile(filepath.Join(dir, "docker-compose.yml"), []byte(content))
	return host
}

func tagFiles(t *testing.T, host *exectest.Host, dir string) []string {
	t.Helper()
	var out []string
	for _, p := range host.Removed() {
		if strings.HasPrefix(p, filepath.Join(dir, ".deckhand-tags-")) {
			out = append(out, p)
		}
	}
	return out
}

func TestRunMissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"repo", func(c *Config) { c.Registry.Repo = "" }},
		{"username", func(c *Config) { c.Registry.Username = "" }},
		{"token", func(c *Config) { c.Registry.Token = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			host := hostWithManifest(dir, singleService)
			cfg := testConfig(dir)
			tt.mutate(&cfg)

			_, err := New(cfg, host).Run(context.Background())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeConfigMissing))
			assert.Empty(t, host.Calls())
		})
	}
}

func TestRunSingleService(t *testing.T) {
	dir := t.TempDir()
	host := hostWithManifest(dir, singleService)
	_, m := metrics.NewRegistry()

	result, err := New(testConfig(dir), host, WithMetrics(m), WithDigestResolver(fakeDigests{})).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, tag.Tag{Value: "3f9c2ab", Source: tag.SourceExternal}, result.Tag)
	require.Len(t, result.Images, 1)
	assert.Equal(t, "ghcr.io/acme/shop:3f9c2ab", result.Images[0].Ref)
	assert.True(t, result.Images[0].Pushed)
	assert.True(t, strings.HasPrefix(result.Images[0].Digest, "sha256:"))

	calls := host.Calls()
	require.Len(t, calls, 3)
	assert.Regexp(t, `^docker compose -f docker-compose.yml -f \.deckhand-tags-[0-9a-f]{8}\.yml build --pull --no-cache app$`, calls[0])
	assert.Equal(t, "docker login ghcr.io --username octocat --password-stdin", calls[1])
	assert.Equal(t, "docker push ghcr.io/acme/shop:3f9c2ab", calls[2])
	assert.Equal(t, dir, host.Commands()[0].Dir)

	removed := tagFiles(t, host, dir)
	require.Len(t, removed, 1)
	_, exists := host.File(removed[0])
	assert.False(t, exists, "transient tag manifest must be removed")
}

func TestRunMultiService(t *testing.T) {
	dir := t.TempDir()
	host := hostWithManifest(dir, multiService)

	var tagManifest string
	host.Handle("docker compose", func(cmd exec.Command) (string, error) {
		tagsName := cmd.Args[4]
		data, _ := host.File(filepath.Join(dir, tagsName))
		tagManifest = string(data)
		return "", nil
	})

	result, err := New(testConfig(dir), host).Run(context.Background())
	require.NoError(t, err)

	var refs []string
	for _, img := range result.Images {
		refs = append(refs, img.Ref)
	}
	assert.Equal(t, []string{
		"ghcr.io/acme/shop-worker-queue:3f9c2ab",
		"ghcr.io/acme/shop-api:3f9c2ab",
		"ghcr.io/acme/shop-web:3f9c2ab",
	}, refs)

	assert.Len(t, host.CallsWithPrefix("docker compose"), 3)
	assert.Len(t, host.CallsWithPrefix("docker login"), 1)
	assert.Equal(t, []string{
		"docker push ghcr.io/acme/shop-worker-queue:3f9c2ab",
		"docker push ghcr.io/acme/shop-api:3f9c2ab",
		"docker push ghcr.io/acme/shop-web:3f9c2ab",
	}, host.CallsWithPrefix("docker push"))

	assert.Contains(t, tagManifest, "image: ghcr.io/acme/shop-web:3f9c2ab")
	assert.Contains(t, tagManifest, "image: ghcr.io/acme/shop-worker-queue:3f9c2ab")
}

func TestRunPushFailureAbortsRemaining(t *testing.T) {
	dir := t.TempDir()
	host := hostWithManifest(dir, multiService)
	host.Fail("docker push ghcr.io/acme/shop-api", "denied: permission_denied: write_package")

	result, err := New(testConfig(dir), host).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePushFailed))

	assert.Equal(t, []string{
		"docker push ghcr.io/acme/shop-worker-queue:3f9c2ab",
		"docker push ghcr.io/acme/shop-api:3f9c2ab",
	}, host.CallsWithPrefix("docker push"))
	assert.True(t, result.Images[0].Pushed)
	assert.False(t, result.Images[1].Pushed)
	assert.False(t, result.Images[2].Pushed)
	assert.Len(t, tagFiles(t, host, dir), 1)
}

func TestRunBuildFailure(t *testing.T) {
	dir := t.TempDir()
	host := hostWithManifest(dir, singleService)
	host.Fail("docker compose", "failed to solve: dockerfile parse error")

	_, err := New(testConfig(dir), host).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBuildFailed))
	assert.Empty(t, host.CallsWithPrefix("docker login"))
	assert.Empty(t, host.CallsWithPrefix("docker push"))
	assert.Len(t, tagFiles(t, host, dir), 1, "cleanup runs on failure")
}

func TestRunLoginFailure(t *testing.T) {
	dir := t.TempDir()
	host := hostWithManifest(dir, singleService)
	host.Fail("docker login", "Error response from daemon: Get \"https://ghcr.io/v2/\": denied")

	_, err := New(testConfig(dir), host).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeLoginFailed))
	assert.Empty(t, host.CallsWithPrefix("docker push"))
}

func TestRunEmptyManifest(t *testing.T) {
	dir := t.TempDir()
	host := hostWithManifest(dir, "services: {}\n")

	_, err := New(testConfig(dir), host).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeManifestEmpty))
	assert.Empty(t, host.Calls())
}

func TestRunClashingServiceNames(t *testing.T) {
	dir := t.TempDir()
	host := hostWithManifest(dir, "services:\n  web_app:\n    build: ./a\n  web.app:\n    build: ./b\n")

	result, err := New(testConfig(dir), host).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeManifestNameClash))
	assert.Contains(t, err.Error(), "web.app, web_app")
	assert.Empty(t, result.Images)
	assert.Empty(t, host.Calls(), "nothing is built, logged in or pushed")
	assert.Empty(t, tagFiles(t, host, dir))
}

func TestRunMissingManifest(t *testing.T) {
	dir := t.TempDir()
	host := exectest.New()

	_, err := New(testConfig(dir), host).Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
}

func TestRunPatchesWorkflow(t *testing.T) {
	dir := t.TempDir()
	workflow := filepath.Join(dir, "deploy.yml")
	require.NoError(t, os.WriteFile(workflow, []byte("image: ghcr.io/acme/shop:__IMAGE_TAG__\n"), 0o644))

	cfg := testConfig(dir)
	cfg.Publish.Workflow = workflow
	result, err := New(cfg, hostWithManifest(dir, singleService)).Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, result.Workflow)
	assert.Equal(t, 1, result.Workflow.Replacements)
	data, err := os.ReadFile(workflow)
	require.NoError(t, err)
	assert.Equal(t, "image: ghcr.io/acme/shop:3f9c2ab\n", string(data))
}

func TestRunWorkflowWithoutPlaceholder(t *testing.T) {
	dir := t.TempDir()
	workflow := filepath.Join(dir, "deploy.yml")
	original := "image: ghcr.io/acme/shop:latest\n"
	require.NoError(t, os.WriteFile(workflow, []byte(original), 0o644))

	cfg := testConfig(dir)
	cfg.Publish.Workflow = workflow
	result, err := New(cfg, hostWithManifest(dir, singleService)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Workflow.Replacements)

	data, err := os.ReadFile(workflow)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}

func TestRunWorkflowMissing(t *testing.T) {
	dir := t.TempDir()
	host := hostWithManifest(dir, singleService)
	cfg := testConfig(dir)
	cfg.Publish.Workflow = filepath.Join(dir, "nope.yml")

	_, err := New(cfg, host).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
	assert.Empty(t, host.Calls(), "a bad workflow path fails before any build")
}

func TestRunDigestFailureIsWarningOnly(t *testing.T) {
	dir := t.TempDir()
	result, err := New(testConfig(dir), hostWithManifest(dir, singleService),
		WithDigestResolver(fakeDigests{err: fmt.Errorf("registry unreachable")})).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Images[0].Pushed)
	assert.Empty(t, result.Images[0].Digest)
}

func TestResolveTagSources(t *testing.T) {
	dir := t.TempDir()
	host := exectest.New()
	host.Reply("git rev-parse --short HEAD", "1b2c3d4\n")

	cfg := testConfig(dir)
	cfg.Publish.CommitSHA = ""
	assert.Equal(t, tag.Tag{Value: "1b2c3d4", Source: tag.SourceGit}, New(cfg, host).ResolveTag(context.Background()))

	noGit := exectest.New()
	noGit.Fail("git", "fatal: not a git repository")
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := New(cfg, noGit, WithClock(func() time.Time { return fixed })).ResolveTag(context.Background())
	assert.Equal(t, tag.Tag{Value: "20260304050607", Source: tag.SourceTimestamp}, got)
}
