// v1
// internal/circuitbreaker/breaker.go
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open; fast-fail")

// Config holds the breaker tunables.
type Config struct {
	MaxFailures      int           // consecutive failures before opening
	ResetTimeout     time.Duration // how long to stay open before probing
	SuccessesToClose int           // successes required in HalfOpen before closing
}

// Breaker guards an operation. It opens after MaxFailures consecutive
// failures, fast-fails while open, and after ResetTimeout lets calls through
// in HalfOpen until SuccessesToClose of them succeed.
type Breaker struct {
	name   string
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	recentFails int
	halfOpenOK  int
	openedAt    time.Time

	probe    func(ctx context.Context) error
	onChange func(name string, s State)
}

func New(name string, cfg Config, logger *slog.Logger, probe func(ctx context.Context) error) *Breaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	if cfg.SuccessesToClose < 1 {
		cfg.SuccessesToClose = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger.With(slog.String("breaker", name)),
		now:    time.Now,
		state:  Closed,
		probe:  probe,
	}
	b.logger.Info("breaker_created", "state", Closed.String(), "maxFailures", cfg.MaxFailures, "resetTimeout", cfg.ResetTimeout.String())
	return b
}

// OnStateChange registers a callback invoked after every transition.
func (b *Breaker) OnStateChange(fn func(name string, s State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	state := b.state
	openedAt := b.openedAt
	b.mu.Unlock()

	if state == Open {
		if b.now().Sub(openedAt) < b.cfg.ResetTimeout {
			b.logger.Warn("breaker_fast_fail", "since_open", b.now().Sub(openedAt).String())
			return ErrOpen
		}
		if err := b.tryProbe(ctx); err != nil {
			return ErrOpen
		}
	}

	err := op(ctx)
	if err == nil {
		b.onSuccess()
		return nil
	}
	b.onFailure(err)
	return err
}

func (b *Breaker) tryProbe(ctx context.Context) error {
	b.transition(HalfOpen)
	if b.probe == nil {
		return nil
	}
	b.logger.Info("breaker_probe_start")
	if err := b.probe(ctx); err != nil {
		b.logger.Warn("breaker_probe_failed", "error", err.Error())
		b.mu.Lock()
		b.openedAt = b.now()
		b.mu.Unlock()
		b.transition(Open)
		return err
	}
	b.logger.Info("breaker_probe_ok")
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	state := b.state
	b.recentFails = 0
	if state == HalfOpen {
		b.halfOpenOK++
		if b.halfOpenOK < b.cfg.SuccessesToClose {
			b.mu.Unlock()
			return
		}
	}
	b.mu.Unlock()
	if state != Closed {
		b.transition(Closed)
	}
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	b.recentFails++
	fails := b.recentFails
	reopen := b.state == HalfOpen || fails >= b.cfg.MaxFailures
	if reopen {
		b.openedAt = b.now()
	}
	b.mu.Unlock()
	b.logger.Warn("operation_failure", "failures", fails, "error", err.Error())
	if reopen {
		b.transition(Open)
	}
}

func (b *Breaker) transition(to State) {
	b.mu.Lock()
	from := b.state
	if from == to {
		b.mu.Unlock()
		return
	}
	b.state = to
	b.halfOpenOK = 0
	if to == Closed {
		b.recentFails = 0
	}
	cb := b.onChange
	b.mu.Unlock()

	switch to {
	case Open:
		b.logger.Error("breaker_opened", "from", from.String(), "maxFailures", b.cfg.MaxFailures)
	default:
		b.logger.Info("breaker_state_change", "from", from.String(), "to", to.String())
	}
	if cb != nil {
		cb(b.name, to)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
