// v1
// internal/circuitbreaker/httpclient.go
package circuitbreaker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPClient wraps a standard http.Client with a guard whose half-open probe
// is a GET on probeURL.
type HTTPClient struct {
	Client *http.Client
	guard  *Guard
}

func NewHTTPClient(name string, s Settings, probeURL string, httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	probe := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.CopyN(io.Discard, resp.Body, 64)
		if resp.StatusCode >= 200 && resp.StatusCode < 500 {
			return nil
		}
		return fmt.Errorf("probe_bad_status: %d", resp.StatusCode)
	}
	if probeURL == "" {
		probe = nil
	}
	return &HTTPClient{Client: httpClient, guard: NewGuard(name, s, logger, probe)}
}

// Guard exposes the guard so callers can observe breaker state.
func (h *HTTPClient) Guard() *Guard { return h.guard }

// Do sends req and hands the response to handle while the attempt context is
// still live. A non-nil error from handle counts as a failure.
func (h *HTTPClient) Do(req *http.Request, handle func(*http.Response) error) error {
	return h.guard.Do(req.Context(), func(ctx context.Context) error {
		resp, err := h.Client.Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return handle(resp)
	})
}
