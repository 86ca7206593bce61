// v0
// internal/httpapi/health_test.go
package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/observability"
)

func TestHealthStateFollowsLifecycle(t *testing.T) {
	health := NewHealthState()
	if health.Ready() {
		t.Fatalf("a new tracker must start not ready")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = health.Ready()
		}()
	}
	health.SetReady(true)
	wg.Wait()
	if !health.Ready() {
		t.Fatalf("expected ready after start-up")
	}

	h := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), health, populated(), observability.NewMetrics(), nil)
	if rec := do(h, http.MethodGet, "/health/ready"); rec.Code != http.StatusOK {
		t.Fatalf("expected ready endpoint to answer 200, got %d", rec.Code)
	}

	health.SetReady(false)
	if rec := do(h, http.MethodGet, "/health/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 once shutdown begins, got %d", rec.Code)
	}
}
