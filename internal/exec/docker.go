package exec

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Docker drives the docker CLI (and its compose plugin) on a Host.
type Docker struct {
	host Host
}

// NewDocker creates a docker client that runs on host.
func NewDocker(host Host) *Docker {
	return &Docker{host: host}
}

// Host returns the host the client runs on.
func (d *Docker) Host() Host {
	return d.host
}

func (d *Docker) run(ctx context.Context, dir string, args ...string) (*Result, error) {
	return d.host.Run(ctx, Command{Name: "docker", Args: args, Dir: dir})
}

// ServerVersion returns the docker daemon version. It fails when the daemon
// does not answer.
func (d *Docker) ServerVersion(ctx context.Context) (string, error) {
	res, err := d.run(ctx, "", "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return "", fmt.Errorf("docker daemon is not available: %w", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ComposeVersion returns the version of the compose plugin.
func (d *Docker) ComposeVersion(ctx context.Context) (string, error) {
	res, err := d.run(ctx, "", "compose", "version", "--short")
	if err != nil {
		return "", fmt.Errorf("docker compose plugin is not available: %w", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Compose identifies a compose project: the directory it lives in and the
// manifest files layered with -f, in order.
type Compose struct {
	Dir   string
	Files []string
}

func (c Compose) args(sub ...string) []string {
	args := []string{"compose"}
	for _, f := range c.Files {
		args = append(args, "-f", f)
	}
	return append(args, sub...)
}

// BuildOptions controls ComposeBuild.
type BuildOptions struct {
	Pull    bool // always pull base layers
	NoCache bool // ignore the layer cache
}

// ComposeBuild builds the image of one service.
func (d *Docker) ComposeBuild(ctx context.Context, c Compose, service string, opts BuildOptions) error {
	sub := []string{"build"}
	if opts.Pull {
		sub = append(sub, "--pull")
	}
	if opts.NoCache {
		sub = append(sub, "--no-cache")
	}
	sub = append(sub, service)
	_, err := d.run(ctx, c.Dir, c.args(sub...)...)
	return err
}

// ComposeUp (re)creates a service in the background and removes containers
// of services no longer declared in the manifests.
func (d *Docker) ComposeUp(ctx context.Context, c Compose, service string) error {
	_, err := d.run(ctx, c.Dir, c.args("up", "-d", "--remove-orphans", service)...)
	return err
}

// ComposePS returns the compose status table.
func (d *Docker) ComposePS(ctx context.Context, c Compose) (string, error) {
	res, err := d.run(ctx, c.Dir, c.args("ps", "--all")...)
	return res.Output(), err
}

// ComposeLogs returns the last tail lines of a service's logs.
func (d *Docker) ComposeLogs(ctx context.Context, c Compose, service string, tail int) (string, error) {
	res, err := d.run(ctx, c.Dir, c.args("logs", "--no-color", "--tail", strconv.Itoa(tail), service)...)
	return res.Output(), err
}

// Login authenticates to a registry. The token is passed on stdin so it never
// shows up in the process table.
func (d *Docker) Login(ctx context.Context, registry, username, token string) error {
	_, err := d.host.Run(ctx, Command{
		Name:  "docker",
		Args:  []string{"login", registry, "--username", username, "--password-stdin"},
		Stdin: []byte(token),
	})
	return err
}

// Push uploads an image reference to its registry.
func (d *Docker) Push(ctx context.Context, ref string) error {
	_, err := d.run(ctx, "", "push", ref)
	return err
}

// Pull fetches an image reference from its registry.
func (d *Docker) Pull(ctx context.Context, ref string) error {
	_, err := d.run(ctx, "", "pull", ref)
	return err
}

// Container is one row of `docker ps`.
type Container struct {
	ID     string `json:"ID"`
	Image  string `json:"Image"`
	Names  string `json:"Names"`
	Ports  string `json:"Ports"`
	State  string `json:"State"`
	Status string `json:"Status"`
}

// ListContainers returns the running containers.
func (d *Docker) ListContainers(ctx context.Context) ([]Container, error) {
	res, err := d.run(ctx, "", "ps", "--no-trunc", "--format", "{{json .}}")
	if err != nil {
		return nil, err
	}
	return ParseContainers(res.Stdout)
}

// ParseContainers decodes `docker ps --format '{{json .}}'` output, one object per line.
func ParseContainers(out string) ([]Container, error) {
	var containers []Container
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var c Container
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return nil, fmt.Errorf("failed to parse docker ps output: %w", err)
		}
		containers = append(containers, c)
	}
	return containers, scanner.Err()
}

// PublishesPort reports whether the container binds hostPort on the host.
// Ports looks like "0.0.0.0:3000->3000/tcp, :::3000->3000/tcp".
func (c Container) PublishesPort(hostPort int) bool {
	for _, mapping := range strings.Split(c.Ports, ",") {
		mapping = strings.TrimSpace(mapping)
		arrow := strings.Index(mapping, "->")
		if arrow < 0 {
			continue // exposed but not published
		}
		host := mapping[:arrow]
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[i+1:]
		}
		lo, hi, ok := parsePortRange(host)
		if ok && hostPort >= lo && hostPort <= hi {
			return true
		}
	}
	return false
}

func parsePortRange(s string) (int, int, bool) {
	first, last, isRange := strings.Cut(s, "-")
	lo, err := strconv.Atoi(first)
	if err != nil {
		return 0, 0, false
	}
	if !isRange {
		return lo, lo, true
	}
	hi, err := strconv.Atoi(last)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// StopContainer stops a running container.
func (d *Docker) StopContainer(ctx context.Context, id string) error {
	_, err := d.run(ctx, "", "stop", id)
	return err
}

// RemoveContainer force-removes a container.
func (d *Docker) RemoveContainer(ctx context.Context, id string) error {
	_, err := d.run(ctx, "", "rm", "-f", id)
	return err
}

// PruneImages removes dangling images and returns the CLI summary.
func (d *Docker) PruneImages(ctx context.Context) (string, error) {
	res, err := d.run(ctx, "", "image", "prune", "-f")
	return res.Output(), err
}
