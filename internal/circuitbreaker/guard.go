// v2
// internal/circuitbreaker/guard.go
package circuitbreaker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings are the runtime tunables shared by every sink guard.
type Settings struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	OpenFor          time.Duration
	Timeout          time.Duration
}

// Guard bounds every sink call with a per-attempt timeout and, when enabled,
// a breaker. It never retries: a failed or fast-failed attempt is returned
// to the caller so the tick cadence is not held up.
type Guard struct {
	timeout time.Duration
	breaker *Breaker
}

// SettingsFromEnv reads the breaker environment:
//   - CB_ENABLED (default: false)
//   - CB_SINK_FAILURE_THRESHOLD (default: 5)
//   - CB_SINK_SUCCESS_THRESHOLD (default: 2)
//   - CB_SINK_OPEN_SECONDS (default: 30)
//   - CB_SINK_TIMEOUT_MS (default: 3000)
func SettingsFromEnv() (Settings, error) {
	failureThreshold, err := parseEnvInt("CB_SINK_FAILURE_THRESHOLD", 5)
	if err != nil {
		return Settings{}, err
	}
	successThreshold, err := parseEnvInt("CB_SINK_SUCCESS_THRESHOLD", 2)
	if err != nil {
		return Settings{}, err
	}
	openSeconds, err := parseEnvFloat("CB_SINK_OPEN_SECONDS", 30)
	if err != nil {
		return Settings{}, err
	}
	timeoutMS, err := parseEnvInt("CB_SINK_TIMEOUT_MS", 3000)
	if err != nil {
		return Settings{}, err
	}

	if failureThreshold < 1 {
		return Settings{}, fmt.Errorf("CB_SINK_FAILURE_THRESHOLD must be >= 1")
	}
	if successThreshold < 1 {
		return Settings{}, fmt.Errorf("CB_SINK_SUCCESS_THRESHOLD must be >= 1")
	}
	if openSeconds <= 0 {
		return Settings{}, fmt.Errorf("CB_SINK_OPEN_SECONDS must be > 0")
	}
	if timeoutMS < 0 {
		return Settings{}, fmt.Errorf("CB_SINK_TIMEOUT_MS must be >= 0")
	}

	return Settings{
		Enabled:          parseEnvBool("CB_ENABLED"),
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
		OpenFor:          time.Duration(openSeconds * float64(time.Second)),
		Timeout:          time.Duration(timeoutMS) * time.Millisecond,
	}, nil
}

// ForSinkTimeout returns s with the attempt timeout raised to at least d, so
// a sink with its own longer timeout is not cut short by the guard. A zero
// attempt timeout stays unbounded.
func (s Settings) ForSinkTimeout(d time.Duration) Settings {
	if s.Timeout > 0 && d > s.Timeout {
		s.Timeout = d
	}
	return s
}

// NewGuard builds a guard named after the sink it protects.
func NewGuard(name string, s Settings, logger *slog.Logger, probe func(ctx context.Context) error) *Guard {
	g := &Guard{timeout: s.Timeout}
	if s.Enabled {
		g.breaker = New(name, Config{
			MaxFailures:      s.FailureThreshold,
			ResetTimeout:     s.OpenFor,
			SuccessesToClose: s.SuccessThreshold,
		}, logger, probe)
	}
	return g
}

// Enabled reports whether breaker protections are active.
func (g *Guard) Enabled() bool {
	return g != nil && g.breaker != nil
}

// Breaker exposes the underlying breaker for inspection and testing.
func (g *Guard) Breaker() *Breaker {
	if g == nil {
		return nil
	}
	return g.breaker
}

// Do runs op once under the timeout and the breaker.
func (g *Guard) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if g == nil {
		return op(ctx)
	}
	attemptCtx, cancel := g.withAttemptContext(ctx)
	defer cancel()
	if g.breaker == nil {
		return op(attemptCtx)
	}
	return g.breaker.Execute(attemptCtx, op)
}

func (g *Guard) withAttemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

func parseEnvInt(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return def, nil
	}
	v, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseEnvFloat(key string, def float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseEnvBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
