package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigMissing ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid ErrorCode = "CONFIG-002"
	ErrCodeConfigLoad    ErrorCode = "CONFIG-003"

	// Usage errors (USAGE-001 to USAGE-099)
	ErrCodeUsage ErrorCode = "USAGE-001"

	// Manifest errors (MANIFEST-001 to MANIFEST-099)
	ErrCodeManifestEmpty     ErrorCode = "MANIFEST-001"
	ErrCodeManifestInvalid   ErrorCode = "MANIFEST-002"
	ErrCodeManifestNoService ErrorCode = "MANIFEST-003"
	ErrCodeManifestNameClash ErrorCode = "MANIFEST-004"

	// Registry and runtime errors
	ErrCodeBuildFailed ErrorCode = "BUILD-001"
	ErrCodeLoginFailed ErrorCode = "PUSH-001"
	ErrCodePushFailed  ErrorCode = "PUSH-002"
	ErrCodePullFailed  ErrorCode = "PULL-001"
	ErrCodeStartFailed ErrorCode = "START-001"

	// Health errors (HEALTH-001 to HEALTH-099)
	ErrCodeHealthCheckFailed ErrorCode = "HEALTH-001"
	ErrCodeHostUnhealthy     ErrorCode = "HEALTH-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
)

// DeckhandError represents an error with code, suggestions, and documentation
type DeckhandError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *DeckhandError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *DeckhandError) Unwrap() error {
	return e.Cause
}

// New creates a new DeckhandError
func New(code ErrorCode, message string) *DeckhandError {
	return &DeckhandError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new DeckhandError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *DeckhandError {
	return &DeckhandError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *DeckhandError) WithSuggestion(suggestion string) *DeckhandError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *DeckhandError) WithSuggestions(suggestions ...string) *DeckhandError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *DeckhandError) WithDocs(url string) *DeckhandError {
	e.DocsURL = url
	return e
}

// CodeOf returns the code of the first DeckhandError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var de *DeckhandError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HasCode reports whether err's chain contains a DeckhandError with the given code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var de *DeckhandError
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Cause
	}
	return false
}

// Common error constructors for frequently used errors

// NewConfigMissingError reports a required setting that was not supplied.
func NewConfigMissingError(setting, env string) *DeckhandError {
	return New(ErrCodeConfigMissing, fmt.Sprintf("missing required setting: %s", setting)).
		WithSuggestion(fmt.Sprintf("Set the %s environment variable", env)).
		WithSuggestion("Or add it to .deckhand.yaml")
}

// NewConfigInvalidError reports a setting with an unusable value.
func NewConfigInvalidError(setting, details string) *DeckhandError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid setting %s: %s", setting, details))
}

// NewUsageError reports bad command-line usage.
func NewUsageError(usage string) *DeckhandError {
	return New(ErrCodeUsage, "missing argument").
		WithSuggestion("Usage: " + usage)
}

// NewManifestEmptyError reports a build manifest that declares no services.
func NewManifestEmptyError(path string) *DeckhandError {
	return New(ErrCodeManifestEmpty, fmt.Sprintf("build manifest declares no services: %s", path)).
		WithSuggestion("Declare at least one entry under the top-level 'services:' key")
}

// NewManifestInvalidError reports a manifest that could not be parsed.
func NewManifestInvalidError(path string, cause error) *DeckhandError {
	return Wrap(ErrCodeManifestInvalid, fmt.Sprintf("failed to parse build manifest: %s", path), cause).
		WithSuggestion("Run 'docker compose config' to validate the file")
}

// NewManifestNoServiceError reports a service missing from a manifest.
func NewManifestNoServiceError(path, service string) *DeckhandError {
	return New(ErrCodeManifestNoService, fmt.Sprintf("service %s is not declared in %s", service, path)).
		WithSuggestion("Check the service name argument against 'docker compose config --services'")
}

// NewManifestNameClashError reports services whose names map to the same
// image reference.
func NewManifestNameClashError(path, ref string, services []string) *DeckhandError {
	return New(ErrCodeManifestNameClash, fmt.Sprintf("services %s in %s would all publish %s", strings.Join(services, ", "), path, ref)).
		WithSuggestion("Rename the services so they differ after lowercasing and replacing punctuation with '-'")
}

// NewBuildError reports a failed image build.
func NewBuildError(service string, cause error) *DeckhandError {
	return Wrap(ErrCodeBuildFailed, fmt.Sprintf("failed to build image for service %s", service), cause).
		WithSuggestion("Check the Dockerfile and build context declared in the manifest")
}

// NewLoginError reports failed registry authentication.
func NewLoginError(registry string, cause error) *DeckhandError {
	return Wrap(ErrCodeLoginFailed, fmt.Sprintf("authentication failed for registry: %s", registry), cause).
		WithSuggestion("Check DECKHAND_REGISTRY_USERNAME and DECKHAND_REGISTRY_TOKEN").
		WithSuggestion("Make sure the token has package write scope")
}

// NewPushError reports a failed image push.
func NewPushError(ref string, cause error) *DeckhandError {
	return Wrap(ErrCodePushFailed, fmt.Sprintf("failed to push image %s", ref), cause).
		WithSuggestion("Remaining images were not pushed; re-run publish after fixing the cause")
}

// NewPullError reports a failed image pull on the target host.
func NewPullError(ref string, cause error) *DeckhandError {
	return Wrap(ErrCodePullFailed, fmt.Sprintf("failed to pull image %s", ref), cause).
		WithSuggestion("Verify the tag was published and the host is logged in to the registry")
}

// NewStartError reports a failed service start.
func NewStartError(service string, cause error) *DeckhandError {
	return Wrap(ErrCodeStartFailed, fmt.Sprintf("failed to start service %s", service), cause).
		WithSuggestion("Run 'docker compose config' in the target directory to validate the manifests")
}

// NewHealthCheckFailedError reports an exhausted health-check budget.
func NewHealthCheckFailedError(url string, attempts int, lastStatus string) *DeckhandError {
	return New(ErrCodeHealthCheckFailed,
		fmt.Sprintf("health check failed: %s did not return 200 after %d attempts (last status %s)", url, attempts, lastStatus)).
		WithSuggestion("The new image was left running; inspect the diagnostics above").
		WithSuggestion("To go back, re-run 'deckhand rollout' with the previous image tag")
}

// NewHostUnhealthyError reports failed host diagnostics.
func NewHostUnhealthyError(host string, checks []string) *DeckhandError {
	return New(ErrCodeHostUnhealthy,
		fmt.Sprintf("host %s failed %d check(s): %s", host, len(checks), strings.Join(checks, ", "))).
		WithSuggestion("Install or start the missing components, then run 'deckhand doctor' again")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *DeckhandError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileWriteError creates a file write error
func NewFileWriteError(path string, cause error) *DeckhandError {
	return Wrap(ErrCodeFileWriteFailed, fmt.Sprintf("failed to write file: %s", path), cause)
}
