// Package exectest provides an in-memory exec.Host that records every command.
package exectest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/felixgeelhaar/deckhand/internal/exec"
)

// Handler answers a command. Returning a non-nil error fails the command.
type Handler func(cmd exec.Command) (stdout string, err error)

// Host is a fake exec.Host. Commands are matched against registered handlers by
// prefix of their rendered command line; unmatched commands succeed with no output.
type Host struct {
	mu       sync.Mutex
	handlers []route
	calls    []exec.Command
	files    map[string][]byte
	removed  []string
}

type route struct {
	prefix  string
	handler Handler
}

// New creates an empty fake host.
func New() *Host {
	return &Host{files: make(map[string][]byte)}
}

// Handle registers h for commands whose rendered line starts with prefix.
// Later registrations win over earlier ones.
func (h *Host) Handle(prefix string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append([]route{{prefix: prefix, handler: handler}}, h.handlers...)
}

// Fail makes commands starting with prefix exit with status 1 and the given output.
func (h *Host) Fail(prefix, output string) {
	h.Handle(prefix, func(cmd exec.Command) (string, error) {
		return "", &exec.CommandError{Command: cmd.String(), ExitCode: 1, Output: output}
	})
}

// Reply makes commands starting with prefix succeed with stdout.
func (h *Host) Reply(prefix, stdout string) {
	h.Handle(prefix, func(exec.Command) (string, error) { return stdout, nil })
}

// Name returns "fake".
func (h *Host) Name() string { return "fake" }

// Run records cmd and dispatches it to the first matching handler.
func (h *Host) Run(ctx context.Context, cmd exec.Command) (*exec.Result, error) {
	if err := ctx.Err(); err != nil {
		return &exec.Result{}, err
	}

	h.mu.Lock()
	h.calls = append(h.calls, cmd)
	handlers := h.handlers
	h.mu.Unlock()

	line := cmd.String()
	for _, r := range handlers {
		if strings.HasPrefix(line, r.prefix) {
			out, err := r.handler(cmd)
			res := &exec.Result{Stdout: out}
			if err != nil {
				res.ExitCode = 1
			}
			return res, err
		}
	}
	return &exec.Result{}, nil
}

// Calls returns the rendered command lines in the order they ran.
func (h *Host) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	for i, c := range h.calls {
		out[i] = c.String()
	}
	return out
}

// Commands returns the raw recorded commands.
func (h *Host) Commands() []exec.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]exec.Command(nil), h.calls...)
}

// CallsWithPrefix returns the recorded command lines starting with prefix.
func (h *Host) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range h.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// SetFile seeds the in-memory filesystem.
func (h *Host) SetFile(path string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[path] = append([]byte(nil), data...)
}

// File returns a file's content and whether it exists.
func (h *Host) File(path string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.files[path]
	return data, ok
}

// Removed returns the paths passed to RemoveFile.
func (h *Host) Removed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.removed...)
}

// ReadFile reads from the in-memory filesystem.
func (h *Host) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, ok := h.File(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	return data, nil
}

// WriteFile writes to the in-memory filesystem.
func (h *Host) WriteFile(_ context.Context, path string, data []byte, _ os.FileMode) error {
	h.SetFile(path, data)
	return nil
}

// RemoveFile deletes from the in-memory filesystem.
func (h *Host) RemoveFile(_ context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.files, path)
	h.removed = append(h.removed, path)
	return nil
}

var _ exec.Host = (*Host)(nil)
