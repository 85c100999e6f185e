package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	reg, m := NewRegistry()
	if reg == nil {
		t.Fatal("expected registry, got nil")
	}
	if m == nil {
		t.Fatal("expected metrics, got nil")
	}
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordLivenessRequest("/health")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `deckhand_liveness_requests_total{path="/health"} 1`) {
		t.Errorf("expected liveness counter in output, got:\n%s", w.Body.String())
	}
}

func TestWriteTextfile(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordPublish(nil)

	path := filepath.Join(t.TempDir(), "deckhand.prom")
	if err := WriteTextfile(reg, path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `deckhand_publish_runs_total{success="true"} 1`) {
		t.Errorf("expected publish counter in textfile, got:\n%s", data)
	}
	if !strings.Contains(string(data), `deckhand_last_success_timestamp_seconds{operation="publish"}`) {
		t.Errorf("expected last success gauge in textfile")
	}
}
