// v1
// internal/httpapi/router.go
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/publisher"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/sink"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

// LatestSource is the read-only view of the publisher loop used by the API.
type LatestSource interface {
	Latest() (publisher.Latest, bool)
}

// MetricsRecorder instruments routes and serves the scrape endpoint.
type MetricsRecorder interface {
	WrapHandler(route string, next http.Handler) http.Handler
	Handler() http.Handler
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	At         string                  `json:"at"`
	Published  bool                    `json:"published"`
	Ticks      uint64                  `json:"ticks"`
	OutOfRange int                     `json:"outOfRange"`
	Zones      map[string]sink.ZoneDoc `json:"zones"`
}

// NewRouter wires the liveness and status routes. accessLog receives one
// combined-format line per request.
func NewRouter(logger *slog.Logger, health *HealthState, source LatestSource, metrics MetricsRecorder, accessLog io.Writer) http.Handler {
	r := mux.NewRouter()
	r.Handle("/health", healthLiveHandler()).Methods(http.MethodGet)
	r.Handle("/health/live", healthLiveHandler()).Methods(http.MethodGet)
	r.Handle("/health/ready", healthReadyHandler(health, source)).Methods(http.MethodGet)
	r.Handle("/status", statusHandler(logger, source)).Methods(http.MethodGet)
	r.Handle("/status/{zone}", zoneHandler(logger, source)).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
		r.Use(routeMetrics(metrics))
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusNotFound, "not found")
	})

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(false),
	)
	var h http.Handler = recovery(r)
	if accessLog != nil {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	return h
}

func routeMetrics(metrics MetricsRecorder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			metrics.WrapHandler(route, next).ServeHTTP(w, r)
		})
	}
}

func healthLiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "OK")
	})
}

// healthReadyHandler reports ready once the server is up and the loop has
// produced its first snapshot.
func healthReadyHandler(health *HealthState, source LatestSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !health.Ready() {
			writeText(w, http.StatusServiceUnavailable, "NOT_READY")
			return
		}
		if _, ok := source.Latest(); !ok {
			writeText(w, http.StatusServiceUnavailable, "NO_SNAPSHOT")
			return
		}
		writeText(w, http.StatusOK, "OK")
	})
}

func statusHandler(logger *slog.Logger, source LatestSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		latest, ok := source.Latest()
		if !ok {
			writeJSON(logger, w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
			return
		}
		writeJSON(logger, w, http.StatusOK, StatusResponse{
			At:         latest.At.Format(time.RFC3339),
			Published:  latest.Published,
			Ticks:      latest.Ticks,
			OutOfRange: latest.Snapshot.OutOfRange(),
			Zones:      sink.Document(latest.Snapshot),
		})
	})
}

func zoneHandler(logger *slog.Logger, source LatestSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zone := mux.Vars(r)["zone"]
		latest, ok := source.Latest()
		if !ok {
			writeJSON(logger, w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
			return
		}
		reading, found := latest.Snapshot[zone]
		if !found {
			writeJSON(logger, w, http.StatusNotFound, map[string]string{"error": "unknown zone", "zone": zone})
			return
		}
		writeJSON(logger, w, http.StatusOK, sink.Document(telemetry.Snapshot{zone: reading})[zone])
	})
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("write_response_failed", slog.Any("err", err))
	}
}
