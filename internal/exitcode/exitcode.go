// Package exitcode maps command errors to process exit statuses.
package exitcode

import (
	"context"
	"errors"
)

const (
	Success = 0

	// Failure covers every validation, registry, runtime and health error.
	// Pipelines only branch on zero versus non-zero.
	Failure = 1

	// Interrupted is the shell convention for SIGINT.
	Interrupted = 130
)

// For returns the exit status for err.
func For(err error) int {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, context.Canceled):
		return Interrupted
	default:
		return Failure
	}
}
