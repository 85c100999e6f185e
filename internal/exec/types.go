package exec

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Command is a single program invocation on a host.
type Command struct {
	Name  string            // Program to run, e.g. "docker"
	Args  []string          // Arguments
	Dir   string            // Working directory; empty means the host default
	Env   map[string]string // Extra environment variables
	Stdin []byte            // Optional standard input
}

// String renders the command line for logs. Stdin is never included.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	return strings.Join(parts, " ")
}

// Result represents the outcome of a command
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Output returns stdout followed by stderr, trimmed.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(r.Stdout) + "\n" + strings.TrimSpace(r.Stderr))
}

// CommandError is returned when a command ran but exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, e.Output)
}

// Host runs commands and moves files on the machine that owns a deployment.
// LocalHost targets the current machine; SSHHost targets a remote one.
type Host interface {
	// Name identifies the host in logs ("local" or "user@host:port").
	Name() string

	// Run executes cmd. A non-zero exit yields a *CommandError alongside the Result.
	Run(ctx context.Context, cmd Command) (*Result, error)

	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error
	RemoveFile(ctx context.Context, path string) error
}
