// Package watch implements the generic long-poll loop spec §4.1 names
// WatchTask/WatchStream: it tracks a monotonic revision, reissues the
// next watch call as soon as one returns, backs off after errors, and
// terminates when its handle is closed.
package watch

import (
	"context"
	"time"

	"github.com/xbusio/xbus-go/internal/xlog"
)

// BackoffDelay is the fixed delay after a watch error before the next
// poll is attempted (spec §4.1, §9). It is a var, not a const, so tests
// can shrink it instead of sleeping the real 5 seconds.
var BackoffDelay = 5 * time.Second

// Revisioned is the constraint spec §4.1 states as "T exposes
// get_revision() -> u64".
type Revisioned interface {
	GetRevision() uint64
}

// Func is the watch closure a caller supplies: given the last observed
// revision (nil means "no revision observed yet", the initial fetch),
// it returns the next value, or (nil, nil) when the long-poll elapsed
// with no change. The closure owns the revision + 1 increment policy
// (spec §4.1); the task only remembers the last value it saw.
type Func[T Revisioned] func(ctx context.Context, lastRevision *uint64) (*T, error)

// Handle lets a caller cancel a running WatchTask. Go has no destructor
// to hook a "handle dropped" event the way the original relies on, so
// Close is the explicit analogue of dropping the handle in spec §4.1.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Close requests termination and waits for the task to stop. Safe to
// call more than once.
func (h *Handle) Close() {
	h.cancel()
	<-h.done
}

// Stream is a WatchStream<T>: a handle plus the channel of delivered
// values. Closing the stream terminates the backing task; the task
// closes Values once it has stopped so a ranging consumer exits
// cleanly.
type Stream[T Revisioned] struct {
	Values <-chan T
	handle *Handle
}

// Close terminates the backing WatchTask and waits for it to exit.
func (s *Stream[T]) Close() {
	s.handle.Close()
}

// Spawn starts a WatchTask driving fn and returns the WatchStream a
// caller reads from. initialRevision is nil for a first full fetch, or
// a specific revision to resume from.
func Spawn[T Revisioned](ctx context.Context, initialRevision *uint64, fn Func[T]) *Stream[T] {
	taskCtx, cancel := context.WithCancel(ctx)
	values := make(chan T)
	done := make(chan struct{})

	go runTask(taskCtx, initialRevision, fn, values, done)

	return &Stream[T]{
		Values: values,
		handle: &Handle{cancel: cancel, done: done},
	}
}

// runTask is the WatchTask state machine: Polling/Backoff/Terminated
// collapsed into one goroutine driven by select, since Go has no polled
// Future to suspend and resume the way the original does.
func runTask[T Revisioned](ctx context.Context, initialRevision *uint64, fn Func[T], values chan<- T, done chan struct{}) {
	defer close(done)
	defer close(values)

	lastRevision := initialRevision

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := fn(ctx, lastRevision)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			xlog.Warnw("watch: poll failed, backing off", "error", err, "delay", BackoffDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(BackoffDelay):
			}
			continue
		}

		if result == nil {
			// Ok(None): long-poll elapsed with no change, re-poll immediately.
			continue
		}

		if rev := (*result).GetRevision(); rev > 0 {
			r := rev
			lastRevision = &r
		}

		select {
		case values <- *result:
		case <-ctx.Done():
			return
		}
	}
}
