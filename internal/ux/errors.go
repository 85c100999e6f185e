package ux

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/deckhand/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError adds a recovery suggestion to errors that reach the CLI
// without one. Coded errors already carry their own suggestions and are
// returned unchanged.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.CodeOf(err) != "" {
		return err
	}

	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "Cannot connect to the Docker daemon"):
		return NewErrorWithSuggestion(err,
			"Docker is not running. Start Docker and run 'docker ps' to verify")

	case strings.Contains(errMsg, "permission denied") && strings.Contains(errMsg, "docker.sock"):
		return NewErrorWithSuggestion(err,
			"Add the deploy user to the docker group: sudo usermod -aG docker $USER (then logout/login)")

	case strings.Contains(errMsg, "executable file not found"):
		return NewErrorWithSuggestion(err,
			"Install docker (with the compose plugin) and git, then run 'deckhand doctor'")

	case strings.Contains(errMsg, "ssh: handshake failed") || strings.Contains(errMsg, "unable to authenticate"):
		return NewErrorWithSuggestion(err,
			"Check --ssh-user and --ssh-key, and that the public key is in the target's authorized_keys")

	case strings.Contains(errMsg, "knownhosts: key is unknown") || strings.Contains(errMsg, "knownhosts: key mismatch"):
		return NewErrorWithSuggestion(err,
			"Add the target to known_hosts: ssh-keyscan -H <host> >> ~/.ssh/known_hosts")

	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no route to host"):
		return NewErrorWithSuggestion(err,
			"Check your network connection and firewall settings")
	}

	return err
}

// PrintError writes err to w. Coded errors get their code highlighted and
// one line per suggestion.
func PrintError(w io.Writer, err error, noColor bool) {
	if err == nil {
		return
	}
	s := stylesFor(noColor)

	var de *errors.DeckhandError
	if !stderrors.As(err, &de) {
		fmt.Fprintf(w, "%s %v\n", s.Failure.Render("Error:"), EnhanceError(err))
		return
	}

	fmt.Fprintf(w, "%s %s\n", s.Failure.Render("Error ["+string(de.Code)+"]:"), de.Message)
	if de.Cause != nil {
		fmt.Fprintf(w, "  %s %v\n", s.Muted.Render("cause:"), de.Cause)
	}
	for _, suggestion := range de.Suggestions {
		fmt.Fprintf(w, "  %s %s\n", s.Warning.Render("→"), suggestion)
	}
	if de.DocsURL != "" {
		fmt.Fprintf(w, "  %s %s\n", s.Muted.Render("docs:"), de.DocsURL)
	}
}
