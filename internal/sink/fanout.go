// v0
// internal/sink/fanout.go
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/circuitbreaker"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

// Named pairs a sink with the name used in logs and errors.
type Named struct {
	Name string
	Sink Sink
}

// Fanout publishes every snapshot to all of its sinks concurrently. The
// publish fails if any sink fails; the other sinks still receive it.
type Fanout struct {
	sinks []Named
}

func NewFanout(sinks ...Named) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Publish(ctx context.Context, at time.Time, snap telemetry.Snapshot) error {
	if len(f.sinks) == 1 {
		if err := f.sinks[0].Sink.Publish(ctx, at, snap); err != nil {
			return fmt.Errorf("%s: %w", f.sinks[0].Name, err)
		}
		return nil
	}
	errs := make([]error, len(f.sinks))
	var wg sync.WaitGroup
	for i, s := range f.sinks {
		wg.Add(1)
		go func(i int, s Named) {
			defer wg.Done()
			if err := s.Sink.Publish(ctx, at, snap); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name, err)
			}
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if c, ok := s.Sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Guarded runs a sink under a circuitbreaker.Guard.
type Guarded struct {
	inner Sink
	guard *circuitbreaker.Guard
}

func WithGuard(inner Sink, guard *circuitbreaker.Guard) *Guarded {
	return &Guarded{inner: inner, guard: guard}
}

func (g *Guarded) Publish(ctx context.Context, at time.Time, snap telemetry.Snapshot) error {
	return g.guard.Do(ctx, func(ctx context.Context) error {
		return g.inner.Publish(ctx, at, snap)
	})
}

func (g *Guarded) Close() error {
	if c, ok := g.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
