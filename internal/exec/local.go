package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// LocalHost runs commands on the current machine.
type LocalHost struct{}

// NewLocalHost creates a host bound to the current machine.
func NewLocalHost() *LocalHost {
	return &LocalHost{}
}

// Name returns "local".
func (h *LocalHost) Name() string {
	return "local"
}

// Run executes the command with os/exec.
func (h *LocalHost) Run(ctx context.Context, c Command) (*Result, error) {
	startTime := time.Now()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(startTime),
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("%s: %w", c, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, &CommandError{Command: c.String(), ExitCode: result.ExitCode, Output: result.Output()}
		}
		return result, fmt.Errorf("failed to execute %s: %w", c.Name, err)
	}

	return result, nil
}

// ReadFile reads a file from the local filesystem.
func (h *LocalHost) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes a file, creating parent directories as needed.
func (h *LocalHost) WriteFile(_ context.Context, path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, data, perm)
}

// RemoveFile deletes a file. A missing file is not an error.
func (h *LocalHost) RemoveFile(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

var _ Host = (*LocalHost)(nil)
