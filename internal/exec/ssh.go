package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig holds the target-host connection parameters.
type SSHConfig struct {
	Host           string
	User           string
	Port           int
	KeyPath        string        // private key file
	KnownHostsPath string        // verifies the host key; required unless InsecureIgnoreHostKey
	DialTimeout    time.Duration // defaults to 15s

	InsecureIgnoreHostKey bool
}

// SSHHost runs commands on a remote machine over a single SSH connection.
type SSHHost struct {
	addr   string
	config *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHHost validates cfg and prepares a client. The connection is opened
// lazily on the first command.
func NewSSHHost(cfg SSHConfig) (*SSHHost, error) {
	if cfg.Host == "" {
		return nil, errors.New("ssh host is required")
	}
	if cfg.User == "" {
		return nil, errors.New("ssh user is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 15 * time.Second
	}

	signer, err := LoadSigner(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	hostKeys, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	return &SSHHost{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeys,
			Timeout:         cfg.DialTimeout,
		},
	}, nil
}

func hostKeyCallback(cfg SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit opt-out
	}
	if cfg.KnownHostsPath == "" {
		return nil, errors.New("known_hosts path is required to verify the host key")
	}
	cb, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// LoadSigner reads and parses an unencrypted private key file.
func LoadSigner(keyPath string) (ssh.Signer, error) {
	if keyPath == "" {
		return nil, errors.New("ssh key path is required")
	}
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh key: %w", err)
	}
	return signer, nil
}

// Name returns user@host:port.
func (h *SSHHost) Name() string {
	return h.config.User + "@" + h.addr
}

func (h *SSHHost) connect(ctx context.Context) (*ssh.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client, nil
	}

	dialer := net.Dialer{Timeout: h.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", h.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", h.addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, h.addr, h.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", h.addr, err)
	}
	h.client = ssh.NewClient(c, chans, reqs)
	return h.client, nil
}

// Close releases the SSH connection.
func (h *SSHHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client == nil {
		return nil
	}
	err := h.client.Close()
	h.client = nil
	return err
}

// Run executes the command through the remote login shell.
func (h *SSHHost) Run(ctx context.Context, c Command) (*Result, error) {
	client, err := h.connect(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if c.Stdin != nil {
		session.Stdin = bytes.NewReader(c.Stdin)
	}

	startTime := time.Now()
	done := make(chan error, 1)
	go func() { done <- session.Run(RemoteCommandLine(c)) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return &Result{ExitCode: -1, Duration: time.Since(startTime)}, fmt.Errorf("%s: %w", c, ctx.Err())
	case err = <-done:
	}

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(startTime),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, &CommandError{Command: c.String(), ExitCode: result.ExitCode, Output: result.Output()}
		}
		return result, fmt.Errorf("failed to execute %s on %s: %w", c.Name, h.addr, err)
	}
	return result, nil
}

// ReadFile reads a remote file with cat.
func (h *SSHHost) ReadFile(ctx context.Context, p string) ([]byte, error) {
	res, err := h.Run(ctx, Command{Name: "cat", Args: []string{p}})
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Output, "No such file") {
			return nil, fmt.Errorf("%s: %w", p, os.ErrNotExist)
		}
		return nil, err
	}
	return []byte(res.Stdout), nil
}

// WriteFile streams data to a remote file, creating its directory.
func (h *SSHHost) WriteFile(ctx context.Context, p string, data []byte, perm os.FileMode) error {
	script := fmt.Sprintf("mkdir -p %s && cat > %s && chmod %o %s",
		shellQuote(path.Dir(p)), shellQuote(p), perm.Perm(), shellQuote(p))
	_, err := h.Run(ctx, Command{Name: "sh", Args: []string{"-c", script}, Stdin: data})
	return err
}

// RemoveFile deletes a remote file. A missing file is not an error.
func (h *SSHHost) RemoveFile(ctx context.Context, p string) error {
	_, err := h.Run(ctx, Command{Name: "rm", Args: []string{"-f", p}})
	return err
}

// RemoteCommandLine renders c as a single POSIX shell command line.
func RemoteCommandLine(c Command) string {
	var b strings.Builder
	if c.Dir != "" {
		b.WriteString("cd " + shellQuote(c.Dir) + " && ")
	}
	if len(c.Env) > 0 {
		keys := make([]string, 0, len(c.Env))
		for k := range c.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("env")
		for _, k := range keys {
			b.WriteString(" " + shellQuote(k+"="+c.Env[k]))
		}
		b.WriteString(" ")
	}
	b.WriteString(shellQuote(c.Name))
	for _, a := range c.Args {
		b.WriteString(" " + shellQuote(a))
	}
	return b.String()
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@,+", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

var _ Host = (*SSHHost)(nil)
