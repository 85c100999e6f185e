package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeManifestEmpty, "test error message")

	if err.Code != ErrCodeManifestEmpty {
		t.Errorf("expected code %s, got %s", ErrCodeManifestEmpty, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeFileReadFailed, "failed to read file", cause)

	if err.Code != ErrCodeFileReadFailed {
		t.Errorf("expected code %s, got %s", ErrCodeFileReadFailed, err.Code)
	}

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *DeckhandError
		contains []string
	}{
		{
			name:     "code and message",
			err:      New(ErrCodeUsage, "missing argument"),
			contains: []string{"[USAGE-001] missing argument"},
		},
		{
			name:     "cause is appended",
			err:      Wrap(ErrCodePushFailed, "push failed", fmt.Errorf("denied")),
			contains: []string{"[PUSH-002] push failed: denied"},
		},
		{
			name: "suggestions and docs",
			err: New(ErrCodeConfigMissing, "missing").
				WithSuggestions("first", "second").
				WithDocs("https://example.com/docs"),
			contains: []string{"Suggestions:", "• first", "• second", "Documentation: https://example.com/docs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, want it to contain %q", msg, want)
				}
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("rollout: %w", NewPullError("ghcr.io/acme/app:abc1234", fmt.Errorf("not found")))

	if got := CodeOf(wrapped); got != ErrCodePullFailed {
		t.Errorf("CodeOf() = %q, want %q", got, ErrCodePullFailed)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %q, want empty", got)
	}
}

func TestHasCode(t *testing.T) {
	inner := NewFileNotFoundError(".github/workflows/deploy.yml")
	outer := Wrap(ErrCodeConfigInvalid, "workflow patch", inner)

	if !HasCode(outer, ErrCodeConfigInvalid) {
		t.Error("HasCode should match the outer code")
	}
	if !HasCode(outer, ErrCodeFileNotFound) {
		t.Error("HasCode should match a code deeper in the chain")
	}
	if HasCode(outer, ErrCodeStartFailed) {
		t.Error("HasCode matched a code that is not in the chain")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *DeckhandError
		code ErrorCode
	}{
		{"config missing", NewConfigMissingError("registry.repo", "DECKHAND_REGISTRY_REPO"), ErrCodeConfigMissing},
		{"config invalid", NewConfigInvalidError("health.retries", "must be positive"), ErrCodeConfigInvalid},
		{"usage", NewUsageError("deckhand rollout <image>"), ErrCodeUsage},
		{"manifest empty", NewManifestEmptyError("docker-compose.yml"), ErrCodeManifestEmpty},
		{"manifest invalid", NewManifestInvalidError("docker-compose.yml", fmt.Errorf("bad")), ErrCodeManifestInvalid},
		{"build", NewBuildError("web", fmt.Errorf("exit 1")), ErrCodeBuildFailed},
		{"login", NewLoginError("ghcr.io", fmt.Errorf("denied")), ErrCodeLoginFailed},
		{"push", NewPushError("ghcr.io/acme/app:1", fmt.Errorf("denied")), ErrCodePushFailed},
		{"pull", NewPullError("ghcr.io/acme/app:1", fmt.Errorf("manifest unknown")), ErrCodePullFailed},
		{"start", NewStartError("app", fmt.Errorf("exit 1")), ErrCodeStartFailed},
		{"health", NewHealthCheckFailedError("http://localhost:3000/health", 15, "000"), ErrCodeHealthCheckFailed},
		{"host unhealthy", NewHostUnhealthyError("local", []string{"docker-daemon"}), ErrCodeHostUnhealthy},
		{"manifest no service", NewManifestNoServiceError("docker-compose.yml", "api"), ErrCodeManifestNoService},
		{"manifest name clash", NewManifestNameClashError("docker-compose.yml", "ghcr.io/acme/shop-web-app:1", []string{"web.app", "web_app"}), ErrCodeManifestNameClash},
		{"file not found", NewFileNotFoundError("x"), ErrCodeFileNotFound},
		{"file write", NewFileWriteError("x", fmt.Errorf("ro")), ErrCodeFileWriteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}
