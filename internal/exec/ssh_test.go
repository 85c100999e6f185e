package exec

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestNewSSHHost(t *testing.T) {
	keyPath := writeTestKey(t)

	host, err := NewSSHHost(SSHConfig{Host: "deploy.example.com", User: "deploy", KeyPath: keyPath, InsecureIgnoreHostKey: true})
	require.NoError(t, err)
	assert.Equal(t, "deploy@deploy.example.com:22", host.Name())
	assert.NoError(t, host.Close(), "closing an unopened host is a no-op")
}

func TestNewSSHHostValidation(t *testing.T) {
	keyPath := writeTestKey(t)
	garbage := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0o600))

	tests := []struct {
		name string
		cfg  SSHConfig
	}{
		{"missing host", SSHConfig{User: "deploy", KeyPath: keyPath}},
		{"missing user", SSHConfig{Host: "h", KeyPath: keyPath}},
		{"missing key", SSHConfig{Host: "h", User: "deploy"}},
		{"unreadable key", SSHConfig{Host: "h", User: "deploy", KeyPath: filepath.Join(t.TempDir(), "none")}},
		{"unparseable key", SSHConfig{Host: "h", User: "deploy", KeyPath: garbage}},
		{"missing known_hosts", SSHConfig{Host: "h", User: "deploy", KeyPath: keyPath, KnownHostsPath: filepath.Join(t.TempDir(), "none")}},
		{"no host key verification", SSHConfig{Host: "h", User: "deploy", KeyPath: keyPath}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSSHHost(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestRemoteCommandLine(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{
			name: "plain",
			cmd:  Command{Name: "docker", Args: []string{"pull", "ghcr.io/acme/app:abc1234"}},
			want: "docker pull ghcr.io/acme/app:abc1234",
		},
		{
			name: "dir and env",
			cmd:  Command{Name: "git", Args: []string{"rev-parse"}, Dir: "/opt/my app", Env: map[string]string{"B": "2", "A": "1"}},
			want: "cd '/opt/my app' && env A=1 B=2 git rev-parse",
		},
		{
			name: "template argument",
			cmd:  Command{Name: "docker", Args: []string{"ps", "--format", "{{json .}}"}},
			want: "docker ps --format '{{json .}}'",
		},
		{
			name: "single quote and empty",
			cmd:  Command{Name: "echo", Args: []string{"it's", ""}},
			want: `echo 'it'"'"'s' ''`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RemoteCommandLine(tt.cmd))
		})
	}
}

// sshExec is one command received by the test server.
type sshExec struct {
	Command string
	Stdin   []byte
	Stdout  io.Writer
	Stderr  io.Writer
	Signals <-chan string
}

type testSSHServer struct {
	addr    string
	hostKey ssh.PublicKey
	keyPath string
	conns   atomic.Int32
}

// startSSHServer serves exec sessions on a loopback port. handle returns the
// exit status reported to the client.
func startSSHServer(t *testing.T, handle func(*sshExec) uint32) *testSSHServer {
	t.Helper()
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	keyPath := writeTestKey(t)
	clientSigner, err := LoadSigner(keyPath)
	require.NoError(t, err)
	authorized := clientSigner.PublicKey().Marshal()

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	srv := &testSSHServer{addr: ln.Addr().String(), hostKey: hostSigner.PublicKey(), keyPath: keyPath}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.conns.Add(1)
			go serveSSHConn(conn, cfg, handle)
		}
	}()
	return srv
}

func serveSSHConn(conn net.Conn, cfg *ssh.ServerConfig, handle func(*sshExec) uint32) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go serveSession(ch, requests, handle)
	}
}

func serveSession(ch ssh.Channel, requests <-chan *ssh.Request, handle func(*sshExec) uint32) {
	defer ch.Close()

	commands := make(chan string, 1)
	signals := make(chan string, 1)
	go func() {
		defer close(signals)
		defer close(commands)
		for req := range requests {
			switch req.Type {
			case "exec":
				var payload struct{ Command string }
				ok := ssh.Unmarshal(req.Payload, &payload) == nil
				if req.WantReply {
					_ = req.Reply(ok, nil)
				}
				if ok {
					commands <- payload.Command
				}
			case "signal":
				var payload struct{ Signal string }
				if ssh.Unmarshal(req.Payload, &payload) == nil {
					select {
					case signals <- payload.Signal:
					default:
					}
				}
			default:
				if req.WantReply {
					_ = req.Reply(false, nil)
				}
			}
		}
	}()

	command, ok := <-commands
	if !ok {
		return
	}
	stdin, _ := io.ReadAll(ch)
	status := handle(&sshExec{Command: command, Stdin: stdin, Stdout: ch, Stderr: ch.Stderr(), Signals: signals})
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
}

// connect opens an SSHHost that trusts only the server's key.
func (s *testSSHServer) connect(t *testing.T) *SSHHost {
	t.Helper()
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(knownHosts, []byte(knownhosts.Line([]string{s.addr}, s.hostKey)+"\n"), 0o600))
	return s.connectWith(t, knownHosts)
}

func (s *testSSHServer) connectWith(t *testing.T, knownHosts string) *SSHHost {
	t.Helper()
	hostname, port, err := net.SplitHostPort(s.addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	host, err := NewSSHHost(SSHConfig{Host: hostname, User: "deploy", Port: p, KeyPath: s.keyPath, KnownHostsPath: knownHosts})
	require.NoError(t, err)
	t.Cleanup(func() { host.Close() })
	return host
}

type sshReply struct {
	stdout string
	stderr string
	status uint32
}

// sshScript answers known command lines and records what it saw.
type sshScript struct {
	mu      sync.Mutex
	replies map[string]sshReply
	calls   []string
	stdin   map[string][]byte
}

func newSSHScript(replies map[string]sshReply) *sshScript {
	return &sshScript{replies: replies, stdin: make(map[string][]byte)}
}

func (s *sshScript) handle(e *sshExec) uint32 {
	s.mu.Lock()
	s.calls = append(s.calls, e.Command)
	s.stdin[e.Command] = e.Stdin
	reply, ok := s.replies[e.Command]
	s.mu.Unlock()

	if !ok {
		fmt.Fprintf(e.Stderr, "sh: %s: command not found\n", e.Command)
		return 127
	}
	_, _ = io.WriteString(e.Stdout, reply.stdout)
	_, _ = io.WriteString(e.Stderr, reply.stderr)
	return reply.status
}

func (s *sshScript) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *sshScript) Stdin(command string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdin[command]
}

func TestSSHHostRun(t *testing.T) {
	script := newSSHScript(map[string]sshReply{
		"docker version --format '{{.Server.Version}}'": {stdout: "27.1.1\n"},
		"cd /opt/app && git rev-parse --short HEAD":      {stdout: "3f9c2ab\n"},
		"docker pull ghcr.io/acme/shop:missing":          {stderr: "manifest unknown\n", status: 1},
	})
	srv := startSSHServer(t, script.handle)
	host := srv.connect(t)
	ctx := context.Background()

	res, err := host.Run(ctx, Command{Name: "docker", Args: []string{"version", "--format", "{{.Server.Version}}"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "27.1.1\n", res.Stdout)

	res, err = host.Run(ctx, Command{Name: "git", Args: []string{"rev-parse", "--short", "HEAD"}, Dir: "/opt/app"})
	require.NoError(t, err)
	assert.Equal(t, "3f9c2ab\n", res.Stdout)

	res, err = host.Run(ctx, Command{Name: "docker", Args: []string{"pull", "ghcr.io/acme/shop:missing"}})
	require.Error(t, err)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Equal(t, "docker pull ghcr.io/acme/shop:missing", cmdErr.Command)
	assert.Equal(t, "manifest unknown", cmdErr.Output)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "manifest unknown\n", res.Stderr)

	assert.Len(t, script.Calls(), 3)
	assert.Equal(t, int32(1), srv.conns.Load(), "commands share one connection")
}

func TestSSHHostStdin(t *testing.T) {
	const writeScript = "sh -c 'mkdir -p /srv/shop && cat > /srv/shop/docker-compose.deploy.yml && chmod 644 /srv/shop/docker-compose.deploy.yml'"
	const login = "docker login ghcr.io --username octocat --password-stdin"
	script := newSSHScript(map[string]sshReply{
		writeScript: {},
		login:       {stdout: "Login Succeeded\n"},
	})
	host := startSSHServer(t, script.handle).connect(t)
	ctx := context.Background()

	override := []byte("services:\n  web:\n    image: ghcr.io/acme/shop:3f9c2ab\n")
	require.NoError(t, host.WriteFile(ctx, "/srv/shop/docker-compose.deploy.yml", override, 0o644))
	assert.Equal(t, override, script.Stdin(writeScript))

	_, err := host.Run(ctx, Command{
		Name:  "docker",
		Args:  []string{"login", "ghcr.io", "--username", "octocat", "--password-stdin"},
		Stdin: []byte("s3cret"),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), script.Stdin(login))
	assert.NotContains(t, script.Calls()[1], "s3cret", "the token never appears on the command line")
}

func TestSSHHostReadFile(t *testing.T) {
	script := newSSHScript(map[string]sshReply{
		"cat /srv/shop/docker-compose.yml": {stdout: "services:\n  web: {}\n"},
		"cat /srv/shop/missing.yml":        {stderr: "cat: /srv/shop/missing.yml: No such file or directory\n", status: 1},
		"cat /root/secret.yml":             {stderr: "cat: /root/secret.yml: Permission denied\n", status: 1},
	})
	host := startSSHServer(t, script.handle).connect(t)
	ctx := context.Background()

	data, err := host.ReadFile(ctx, "/srv/shop/docker-compose.yml")
	require.NoError(t, err)
	assert.Equal(t, "services:\n  web: {}\n", string(data))

	_, err = host.ReadFile(ctx, "/srv/shop/missing.yml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = host.ReadFile(ctx, "/root/secret.yml")
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestSSHHostRemoveFile(t *testing.T) {
	script := newSSHScript(map[string]sshReply{
		"rm -f /srv/shop/.deckhand-tags-1a2b3c4d.yml": {},
	})
	host := startSSHServer(t, script.handle).connect(t)

	require.NoError(t, host.RemoveFile(context.Background(), "/srv/shop/.deckhand-tags-1a2b3c4d.yml"))
	assert.Equal(t, []string{"rm -f /srv/shop/.deckhand-tags-1a2b3c4d.yml"}, script.Calls())
}

func TestSSHHostCancelKillsCommand(t *testing.T) {
	running := make(chan struct{})
	received := make(chan string, 1)
	srv := startSSHServer(t, func(e *sshExec) uint32 {
		close(running)
		select {
		case sig := <-e.Signals:
			received <- sig
			return 137
		case <-time.After(5 * time.Second):
			return 0
		}
	})
	host := srv.connect(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-running
		cancel()
	}()

	res, err := host.Run(ctx, Command{Name: "docker", Args: []string{"compose", "logs", "-f"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, -1, res.ExitCode)

	select {
	case sig := <-received:
		assert.Equal(t, string(ssh.SIGKILL), sig)
	case <-time.After(2 * time.Second):
		t.Fatal("remote command was not signalled")
	}
}

func TestSSHHostVerifiesHostKey(t *testing.T) {
	script := newSSHScript(map[string]sshReply{"true": {}})
	srv := startSSHServer(t, script.handle)

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	other, err := ssh.NewSignerFromKey(otherPriv)
	require.NoError(t, err)
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(knownHosts, []byte(knownhosts.Line([]string{srv.addr}, other.PublicKey())+"\n"), 0o600))

	_, err = srv.connectWith(t, knownHosts).Run(context.Background(), Command{Name: "true"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssh handshake")
	assert.Empty(t, script.Calls(), "nothing runs on an unverified host")

	_, err = srv.connect(t).Run(context.Background(), Command{Name: "true"})
	assert.NoError(t, err)
}
