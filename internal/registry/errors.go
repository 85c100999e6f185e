package registry

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

// ErrorKind categorizes registry failures.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "AUTHENTICATION"
	KindPermission     ErrorKind = "PERMISSION"
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindNetwork        ErrorKind = "NETWORK"
	KindInvalidRef     ErrorKind = "INVALID_REFERENCE"
	KindUnknown        ErrorKind = "UNKNOWN"
)

// Error wraps a registry failure with its category and a remedy.
type Error struct {
	Kind       ErrorKind
	Message    string
	Suggestion string
	Reference  string
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// Classify wraps err with registry context. Already classified errors are
// returned unchanged.
func Classify(err error, ref string) error {
	if err == nil {
		return nil
	}

	var re *Error
	if errors.As(err, &re) {
		return err
	}

	var transportErr *transport.Error
	if errors.As(err, &transportErr) {
		return classifyStatus(transportErr.StatusCode, err, ref)
	}

	var nameErr *name.ErrBadName
	if errors.As(err, &nameErr) {
		return &Error{
			Kind:       KindInvalidRef,
			Message:    fmt.Sprintf("invalid image reference %s", ref),
			Suggestion: "References look like registry.example.com/org/repo:tag",
			Reference:  ref,
			Cause:      err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		msg := fmt.Sprintf("cannot reach the registry for %s", ref)
		if netErr.Timeout() {
			msg = fmt.Sprintf("connection to the registry timed out for %s", ref)
		}
		return &Error{
			Kind:       KindNetwork,
			Message:    msg,
			Suggestion: "Check DNS, firewall and proxy settings on the host",
			Reference:  ref,
			Cause:      err,
		}
	}

	// docker CLI output carries no status codes, only text.
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "authentication required"):
		return classifyStatus(http.StatusUnauthorized, err, ref)
	case strings.Contains(lower, "denied") || strings.Contains(lower, "forbidden"):
		return classifyStatus(http.StatusForbidden, err, ref)
	case strings.Contains(lower, "manifest unknown") || strings.Contains(lower, "not found"):
		return classifyStatus(http.StatusNotFound, err, ref)
	case strings.Contains(lower, "no such host") || strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "i/o timeout"):
		return &Error{
			Kind:       KindNetwork,
			Message:    fmt.Sprintf("cannot reach the registry for %s", ref),
			Suggestion: "Check DNS, firewall and proxy settings on the host",
			Reference:  ref,
			Cause:      err,
		}
	}

	return &Error{
		Kind:       KindUnknown,
		Message:    fmt.Sprintf("registry operation failed for %s", ref),
		Suggestion: "Check the network connection and registry credentials",
		Reference:  ref,
		Cause:      err,
	}
}

func classifyStatus(status int, err error, ref string) *Error {
	e := &Error{Reference: ref, Cause: err}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthentication
		e.Message = fmt.Sprintf("authentication required for %s", ref)
		e.Suggestion = "Run 'docker login <registry>' on the host, or check the registry token"
	case status == http.StatusForbidden:
		e.Kind = KindPermission
		e.Message = fmt.Sprintf("access denied for %s", ref)
		e.Suggestion = "Make sure the credentials can read (pull) or write (push) this repository"
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
		e.Message = fmt.Sprintf("image not found: %s", ref)
		e.Suggestion = "Check that the tag was published; run 'deckhand tag' in CI to see the expected tag"
	case status == http.StatusTooManyRequests:
		e.Kind = KindNetwork
		e.Message = "registry rate limit exceeded"
		e.Suggestion = "Wait and retry, or authenticate to raise the limit"
	case status >= 500:
		e.Kind = KindNetwork
		e.Message = fmt.Sprintf("registry server error %d", status)
		e.Suggestion = "Check the registry status page and retry later"
	default:
		e.Kind = KindUnknown
		e.Message = fmt.Sprintf("registry HTTP error %d", status)
		e.Suggestion = "Check the registry documentation for this status code"
	}
	return e
}
