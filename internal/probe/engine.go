package probe

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Pranshu258/cachecore/internal/minheap"
)

// maxWait bounds how long the scheduler ever blocks with nothing due,
// mirroring spec.md §4.3's "the scheduler never sleeps longer than ~8s,
// so a newly-enabled target is never starved by a long-idle heap".
const maxWait = 8 * time.Second

// Engine is the ProbeEngine: one scheduler loop over a due-time min-heap,
// dispatching ready targets onto a bounded worker pool. Grounded on the
// teacher's pkg/loadbalancer/prequal.go ProbeManager (scheduler goroutine
// plus worker semaphore) and internal/minheap for the due-time structure
// spec.md §4.3 calls for directly.
type Engine struct {
	mu   sync.Mutex
	cond *sync.Cond
	heap *minheap.Heap

	workers chan struct{} // bounded worker-pool semaphore
	nowFn   func() time.Time

	// limiter paces dispatched probe rounds across all targets. This
	// replaces the ad hoc "forced probe every N seconds, else
	// probabilistic" policy the original scheduler used with a token
	// bucket: bursts absorb a pile-up of simultaneously-due targets,
	// while the steady rate keeps total probe traffic bounded regardless
	// of how many backends are enabled.
	limiter *rate.Limiter

	stopped bool
}

// NewEngine builds an Engine with the given worker pool capacity. The
// dispatch rate is capped at ratePerSec probe rounds per second (with a
// matching burst), shared across every target this engine schedules.
func NewEngine(workerCapacity int) *Engine {
	return NewEngineWithRate(workerCapacity, 50, 50)
}

// NewEngineWithRate is NewEngine with an explicit token-bucket rate/burst.
func NewEngineWithRate(workerCapacity int, ratePerSec float64, burst int) *Engine {
	if workerCapacity <= 0 {
		workerCapacity = 8
	}
	if ratePerSec <= 0 {
		ratePerSec = 50
	}
	if burst <= 0 {
		burst = int(ratePerSec)
	}
	e := &Engine{
		heap:    minheap.New(),
		workers: make(chan struct{}, workerCapacity),
		nowFn:   time.Now,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *Engine) now() time.Time { return e.nowFn() }

// Run drives the scheduler loop until ctx is cancelled. It is meant to be
// launched as the single scheduler goroutine spec.md §4.3 describes.
func (e *Engine) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		e.mu.Lock()
		e.stopped = true
		e.cond.Broadcast()
		e.mu.Unlock()
		close(done)
	}()

	for {
		e.mu.Lock()
		if e.stopped {
			e.mu.Unlock()
			return
		}

		item, ok := e.heap.Peek()
		switch {
		case !ok:
			e.waitFor(maxWait)
		default:
			target := item.(*Target)
			due, scheduled := target.Due()
			if !scheduled {
				// Stale heap entry (target left SCHEDULED between Peek and
				// here); drop it and loop.
				e.heap.Remove(target)
				e.mu.Unlock()
				continue
			}
			wait := time.Unix(0, due).Sub(e.now())
			if wait > 0 {
				e.waitFor(min(wait, maxWait))
				e.mu.Unlock()
				continue
			}
			e.heap.PopRoot()
			target.mu.Lock()
			target.state = StateRunning
			target.mu.Unlock()
			e.mu.Unlock()
			e.dispatch(ctx, target)
			continue
		}
		e.mu.Unlock()
	}
}

// waitFor cond.Waits bounded by d. Caller holds e.mu.
func (e *Engine) waitFor(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer timer.Stop()
	e.cond.Wait()
}

// dispatch submits target to the worker pool. On backpressure (the pool
// is saturated) it re-runs task_complete from RUNNING, deferring the
// round to the next interval rather than blocking the scheduler.
func (e *Engine) dispatch(ctx context.Context, target *Target) {
	select {
	case e.workers <- struct{}{}:
		go func() {
			defer func() { <-e.workers }()
			if err := e.limiter.Wait(ctx); err != nil {
				e.taskComplete(target)
				return
			}
			runTask(ctx, target)
			e.taskComplete(target)
		}()
	default:
		e.taskComplete(target)
	}
}

// taskComplete implements spec.md §4.3's task_complete transition table.
func (e *Engine) taskComplete(target *Target) {
	target.mu.Lock()
	switch target.state {
	case StateRunning:
		target.state = StateScheduled
		target.due = e.now().Add(target.Spec.Interval)
		target.mu.Unlock()
		e.mu.Lock()
		e.heap.Insert(target)
		e.cond.Broadcast()
		e.mu.Unlock()
		return
	case StateCooling:
		target.state = StateCold
		target.mu.Unlock()
		return
	case StateDeleted:
		target.mu.Unlock()
		// The caller that set DELETED owns freeing; nothing left to do.
		return
	default:
		target.mu.Unlock()
		panic("probe: task_complete called from unexpected state")
	}
}

// Enable implements spec.md §4.3 Control(enable): seeds the target's
// initial-happy bits, publishes the starting verdict, and transitions
// COLD->SCHEDULED (heap-insert due=now) or COOLING->RUNNING (an in-flight
// task, when it completes, will now fall into task_complete's RUNNING
// branch instead of COOLING's).
func (e *Engine) Enable(target *Target) {
	target.mu.Lock()
	target.happy = 0
	target.goodIPv4, target.goodIPv6, target.goodUnix = 0, 0, 0
	target.goodXmit, target.goodRecv, target.errXmit, target.errRecv = 0, 0, 0, 0
	target.rate = 0
	target.avg = 0
	for i := 0; i < target.Spec.Initial; i++ {
		target.happy |= 1 << uint(i)
	}
	target.recomputeGood()
	state := target.state
	target.mu.Unlock()

	target.updateBackend(e.now())

	target.mu.Lock()
	switch state {
	case StateCold:
		target.state = StateScheduled
		target.due = e.now()
		target.mu.Unlock()
		e.mu.Lock()
		e.heap.Insert(target)
		e.cond.Broadcast()
		e.mu.Unlock()
	case StateCooling:
		target.state = StateRunning
		target.mu.Unlock()
	default:
		target.mu.Unlock()
	}
}

// Disable implements Control(disable): RUNNING->COOLING (let the in-flight
// task finish, then go COLD), or SCHEDULED->COLD (heap-remove now).
func (e *Engine) Disable(target *Target) {
	target.mu.Lock()
	switch target.state {
	case StateRunning:
		target.state = StateCooling
		target.mu.Unlock()
	case StateScheduled:
		target.state = StateCold
		target.mu.Unlock()
		e.mu.Lock()
		e.heap.Remove(target)
		e.mu.Unlock()
	default:
		target.mu.Unlock()
	}
}

// Remove marks target DELETED, returning true if it is safe for the
// caller to free it immediately (it was COLD or SCHEDULED). If it was
// RUNNING or COOLING, the in-flight task's eventual task_complete call
// observes DELETED and leaves the target alone. State() reports DELETED
// from this call on, so it does not show when that task has finished; this
// package gives no signal for it.
func (e *Engine) Remove(target *Target) (freeNow bool) {
	target.mu.Lock()
	state := target.state
	target.state = StateDeleted
	target.mu.Unlock()

	switch state {
	case StateCold:
		return true
	case StateScheduled:
		e.mu.Lock()
		e.heap.Remove(target)
		e.mu.Unlock()
		return true
	default:
		return false
	}
}

func min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
