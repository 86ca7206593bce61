// v1
// internal/httpapi/health.go
package httpapi

import "sync/atomic"

// HealthState tracks readiness of the status API. /health/live answers 200
// for as long as the process is up; /health/ready needs this flag and a
// first snapshot. The application raises the flag once the listener and
// publisher loop are started and lowers it as soon as shutdown begins.
type HealthState struct {
	ready atomic.Bool
}

// NewHealthState returns a tracker that reports not-ready until the
// application marks the simulator as serving.
func NewHealthState() *HealthState {
	return &HealthState{}
}

// SetReady records whether the simulator is serving snapshots.
func (h *HealthState) SetReady(value bool) {
	h.ready.Store(value)
}

// Ready is safe to call from concurrent request handlers.
func (h *HealthState) Ready() bool {
	return h.ready.Load()
}
