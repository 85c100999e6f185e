package health

import (
	"context"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/deckhand/internal/exec"
)

// DockerChecker checks that the docker daemon answers on a host.
type DockerChecker struct {
	docker *exec.Docker
}

// NewDockerChecker creates a docker daemon check.
func NewDockerChecker(docker *exec.Docker) *DockerChecker {
	return &DockerChecker{docker: docker}
}

// Name returns the name of this health check.
func (c *DockerChecker) Name() string {
	return "docker-daemon"
}

// Check runs `docker version` against the daemon.
func (c *DockerChecker) Check(ctx context.Context) *Result {
	version, err := c.docker.ServerVersion(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			return Unhealthy("docker daemon is not running").
				WithDetail("error", err.Error()).
				WithDetail("suggestion", "Start the docker service on the target host")
		}
		return Unhealthy("failed to reach docker daemon").
			WithDetail("error", err.Error())
	}
	if version == "" {
		return Degraded("docker daemon responding but version unknown")
	}
	return Healthy("docker daemon is running").
		WithDetail("server_version", version).
		WithDetail("host", c.docker.Host().Name())
}

// ComposeChecker checks that the compose plugin is installed.
type ComposeChecker struct {
	docker *exec.Docker
}

// NewComposeChecker creates a compose plugin check.
func NewComposeChecker(docker *exec.Docker) *ComposeChecker {
	return &ComposeChecker{docker: docker}
}

// Name returns the name of this health check.
func (c *ComposeChecker) Name() string {
	return "docker-compose"
}

// Check runs `docker compose version`. Compose v1 lacks the flags rollout
// relies on, so anything below 2 is degraded.
func (c *ComposeChecker) Check(ctx context.Context) *Result {
	version, err := c.docker.ComposeVersion(ctx)
	if err != nil {
		return Unhealthy("docker compose plugin not available").
			WithDetail("error", err.Error()).
			WithDetail("suggestion", "Install the docker-compose-plugin package")
	}
	version = strings.TrimPrefix(version, "v")
	if major(version) < 2 {
		return Degraded("docker compose is older than v2").
			WithDetail("version", version)
	}
	return Healthy("docker compose is installed").
		WithDetail("version", version)
}

// GitChecker checks that git is installed on a host.
type GitChecker struct {
	host exec.Host
}

// NewGitChecker creates a git binary check.
func NewGitChecker(host exec.Host) *GitChecker {
	return &GitChecker{host: host}
}

// Name returns the name of this health check.
func (c *GitChecker) Name() string {
	return "git-binary"
}

// Check runs `git --version`. A missing git only degrades: tags then fall
// back to timestamps.
func (c *GitChecker) Check(ctx context.Context) *Result {
	res, err := c.host.Run(ctx, exec.Command{Name: "git", Args: []string{"--version"}})
	if err != nil {
		return Degraded("git is not available; version tags fall back to timestamps").
			WithDetail("error", err.Error())
	}

	version := parseGitVersion(strings.TrimSpace(res.Stdout))
	if version == "" {
		return Degraded("git installed but version cannot be parsed").
			WithDetail("version_output", strings.TrimSpace(res.Stdout))
	}
	if major(version) < 2 {
		return Degraded("git version is older than 2.0").
			WithDetail("version", version)
	}
	return Healthy("git is installed").
		WithDetail("version", version)
}

// parseGitVersion extracts X.Y.Z from "git version X.Y.Z[.platform...]".
func parseGitVersion(out string) string {
	parts := strings.Fields(out)
	if len(parts) < 3 {
		return ""
	}
	v := parts[2]
	if v == "" || v[0] < '0' || v[0] > '9' {
		return ""
	}
	for _, suffix := range []string{".windows", ".darwin", ".linux"} {
		if i := strings.Index(v, suffix); i > 0 {
			v = v[:i]
		}
	}
	return v
}

// major returns the leading number of a dotted version, or -1.
func major(version string) int {
	first, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(first)
	if err != nil {
		return -1
	}
	return n
}
