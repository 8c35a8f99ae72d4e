// Package notify delivers correlation engine events to outside consumers
// without blocking the engine.
package notify

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-correlate/internal/log"
	"github.com/teslashibe/go-correlate/pkg/correlation"
)

// DefaultQueueSize is the dispatcher queue depth.
const DefaultQueueSize = 1024

// Dispatcher is a correlation.Sink that queues events and delivers them to
// its sinks on its own goroutine. When the queue is full new events are
// dropped and counted.
type Dispatcher struct {
	queue   chan correlation.Event
	sinks   []correlation.Sink
	logger  *slog.Logger
	dropped atomic.Uint64
	sent    atomic.Uint64
	failed  atomic.Uint64
}

// NewDispatcher creates a dispatcher with the given queue depth.
func NewDispatcher(size int, sinks ...correlation.Sink) *Dispatcher {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		queue:  make(chan correlation.Event, size),
		sinks:  sinks,
		logger: log.With("component", "notify"),
	}
}

// Publish enqueues e. It never blocks.
func (d *Dispatcher) Publish(e correlation.Event) {
	select {
	case d.queue <- e:
	default:
		if n := d.dropped.Add(1); n == 1 || n%100 == 0 {
			d.logger.Warn("notification queue full, dropping events", "dropped", n, "kind", e.Kind())
		}
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-d.queue:
					d.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(e correlation.Event) {
	for _, s := range d.sinks {
		d.publish(s, e)
	}
	d.sent.Add(1)
}

// publish isolates the remaining sinks and the dispatcher goroutine from a
// sink that panics.
func (d *Dispatcher) publish(s correlation.Sink, e correlation.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("sink panicked", "kind", e.Kind(), "panic", r)
		}
	}()
	s.Publish(e)
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Delivered returns how many events reached the sinks.
func (d *Dispatcher) Delivered() uint64 { return d.sent.Load() }

// Panics returns how many sink calls panicked.
func (d *Dispatcher) Panics() uint64 { return d.failed.Load() }

// Filter passes only events whose kind is listed.
func Filter(s correlation.Sink, kinds ...correlation.EventKind) correlation.Sink {
	allow := make(map[correlation.EventKind]bool, len(kinds))
	for _, k := range kinds {
		allow[k] = true
	}
	return correlation.SinkFunc(func(e correlation.Event) {
		if allow[e.Kind()] {
			s.Publish(e)
		}
	})
}
