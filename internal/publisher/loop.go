// v0
// internal/publisher/loop.go
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

// Sink receives every snapshot produced by the loop. Implementations must
// bound their own blocking time; the loop only contains their failures.
type Sink interface {
	Publish(ctx context.Context, at time.Time, snap telemetry.Snapshot) error
}

// Clock supplies the tick timestamp.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Observer is notified of loop activity. All methods are called from the
// loop goroutine.
type Observer interface {
	ObserveTick(at time.Time, snap telemetry.Snapshot)
	ObservePublish(at time.Time, err error, took time.Duration)
}

// SinkPublishFailure reports a publish that did not happen. Zone state has
// still advanced for that tick.
type SinkPublishFailure struct {
	At  time.Time
	Err error
}

func (e *SinkPublishFailure) Error() string {
	return fmt.Sprintf("sink publish failed at %s: %v", e.At.Format(time.RFC3339), e.Err)
}

func (e *SinkPublishFailure) Unwrap() error { return e.Err }

// Latest is the most recent tick as exposed to readers outside the loop.
type Latest struct {
	At        time.Time
	Snapshot  telemetry.Snapshot
	Published bool
	Ticks     uint64
}

// Config gathers the collaborators of a Loop.
type Config struct {
	Generator *telemetry.Generator
	Zones     telemetry.Zones
	Interval  time.Duration
	Sink      Sink
	Clock     Clock
	Observer  Observer
	Logger    *slog.Logger
}

// Loop drives the generator at a fixed delay and forwards each snapshot to
// the sink. The loop goroutine is the only writer of the zone state.
type Loop struct {
	gen      *telemetry.Generator
	zones    telemetry.Zones
	interval time.Duration
	sink     Sink
	clock    Clock
	observer Observer
	log      *slog.Logger

	ticks   uint64
	running atomic.Bool
	latest  atomic.Pointer[Latest]
}

var (
	errNilGenerator = errors.New("publisher requires a generator")
	errNilSink      = errors.New("publisher requires a sink")
	errBadInterval  = errors.New("publisher interval must be > 0")
	errRunning      = errors.New("publisher loop already running")
)

// New validates cfg and builds a Loop. The zones map is owned by the loop
// from here on.
func New(cfg Config) (*Loop, error) {
	if cfg.Generator == nil {
		return nil, errNilGenerator
	}
	if cfg.Sink == nil {
		return nil, errNilSink
	}
	if cfg.Interval <= 0 {
		return nil, errBadInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Zones == nil {
		cfg.Zones = telemetry.Zones{}
	}
	return &Loop{
		gen:      cfg.Generator,
		zones:    cfg.Zones,
		interval: cfg.Interval,
		sink:     cfg.Sink,
		clock:    cfg.Clock,
		observer: cfg.Observer,
		log:      cfg.Logger.With(slog.String("component", "publisher")),
	}, nil
}

// Latest returns the most recent snapshot. ok is false before the first tick.
func (l *Loop) Latest() (Latest, bool) {
	p := l.latest.Load()
	if p == nil {
		return Latest{}, false
	}
	return *p, true
}

// Run ticks until ctx is cancelled and then returns ctx.Err(). Scheduling is
// fixed-delay: the interval is waited after each iteration completes, so
// slow publishes stretch the spacing between timestamps.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errRunning
	}
	defer l.running.Store(false)

	l.log.Info("publisher_loop_started",
		slog.Duration("interval", l.interval),
		slog.Any("zones", l.zones.Keys()),
	)
	timer := time.NewTimer(l.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			l.log.Info("simulation_stopped", slog.Uint64("ticks", l.ticks))
			return err
		}
		if err := l.step(ctx); err != nil {
			var failure *SinkPublishFailure
			if errors.As(err, &failure) {
				l.log.Warn("sink_publish_failed",
					slog.Time("at", failure.At),
					slog.Any("err", failure.Err),
				)
			}
		}

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			l.log.Info("simulation_stopped", slog.Uint64("ticks", l.ticks))
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// step performs one tick and one publish. A failed publish is returned as a
// *SinkPublishFailure; state and the latest snapshot are updated regardless.
func (l *Loop) step(ctx context.Context) error {
	now := l.clock.Now()
	snap := l.gen.Tick(l.zones, now)
	l.ticks++
	if l.observer != nil {
		l.observer.ObserveTick(now, snap)
	}

	start := time.Now()
	err := l.safePublish(ctx, now, snap)
	took := time.Since(start)
	if l.observer != nil {
		l.observer.ObservePublish(now, err, took)
	}

	l.latest.Store(&Latest{At: now, Snapshot: snap, Published: err == nil, Ticks: l.ticks})
	if err != nil {
		return &SinkPublishFailure{At: now, Err: err}
	}
	l.log.Info("tick_published",
		slog.Time("at", now),
		slog.Int("zones", len(snap)),
		slog.Int("out_of_range", snap.OutOfRange()),
		slog.Duration("took", took),
	)
	return nil
}

func (l *Loop) safePublish(ctx context.Context, at time.Time, snap telemetry.Snapshot) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return l.sink.Publish(ctx, at, snap)
}
