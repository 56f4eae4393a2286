// Package recorder runs the single-producer/single-consumer queue that
// feeds internal/activity's EventCache. Producers (the dispatcher) block
// on enqueue once the queue is full, creating intentional back-pressure
// on ingest per the concurrency model.
package recorder

import (
	"context"

	"github.com/atscope/modguard/internal/activity"
	"github.com/atscope/modguard/pkg/mlog"
)

// DefaultCapacity is the recorder queue's design constant (≈10,000).
const DefaultCapacity = 10_000

// Recorder owns the bounded channel and the single goroutine that
// drains it into an EventCache. No other goroutine may call
// EventCache.Record directly once a Recorder owns that cache — this is
// what lets EventCache remain lock-free internally.
type Recorder struct {
	cache *activity.EventCache
	queue chan activity.TimedEvent
	done  chan struct{}
}

// New constructs a Recorder with the given queue capacity.
func New(cache *activity.EventCache, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		cache: cache,
		queue: make(chan activity.TimedEvent, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue blocks until te is accepted or ctx is done. The dispatcher
// calls this for every activity event it produces.
func (r *Recorder) Enqueue(ctx context.Context, te activity.TimedEvent) error {
	select {
	case r.queue <- te:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue into the event cache until ctx is cancelled, then
// drains whatever remains before returning. It selects on the queue and
// ctx together, so cancellation is observed promptly without forcibly
// interrupting an in-flight record.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case te := <-r.queue:
			r.cache.Record(te)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case te := <-r.queue:
			r.cache.Record(te)
		default:
			mlog.Info("recorder: queue drained, shutting down")
			return
		}
	}
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Backlog reports the current queue depth, for the telemetry gauges
// named in spec.md.
func (r *Recorder) Backlog() int { return len(r.queue) }
