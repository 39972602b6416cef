// Package probe implements the backend health prober spec.md §4.3 calls the
// ProbeEngine: a single scheduler goroutine driving per-backend probe
// tasks on a bounded worker pool, a bit-windowed success history, an EWMA
// latency estimate, and a hysteretic sick/healthy verdict. It is grounded
// on the teacher's pkg/loadbalancer/prequal.go (the corpus's fullest
// scheduler+worker+probe triad: ProbeTaskQueue, ProbePool, ProbeManager)
// generalized to spec.md's explicit state machine and bitmaps.
package probe

import (
	"math/bits"
	"sync"
	"time"

	"github.com/Pranshu258/cachecore/internal/connpool"
)

// State is a ProbeTarget's position in the state machine spec.md §4.3
// diagrams.
type State int

const (
	StateCold State = iota
	StateScheduled
	StateRunning
	StateCooling
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "COLD"
	case StateScheduled:
		return "SCHEDULED"
	case StateRunning:
		return "RUNNING"
	case StateCooling:
		return "COOLING"
	case StateDeleted:
		return "DELETED"
	default:
		return "?"
	}
}

// BackendSink is the callback surface a ProbeTarget uses to publish
// results, implemented by internal/backend.Backend. Keeping this as an
// interface (rather than probe importing backend directly) avoids an
// import cycle, since a Backend owns a ProbeTarget.
type BackendSink interface {
	Name() string
	// SetSick publishes a new sick verdict, returning whether it changed.
	SetSick(sick bool, now time.Time) bool
	// DefaultHost is used to synthesize the probe request's Host header
	// when the target doesn't specify one explicitly.
	DefaultHost() string
}

// Spec holds the probe's configuration, with spec.md §4.3's defaults
// applied by NewSpec.
type Spec struct {
	Timeout        time.Duration
	Interval       time.Duration
	Window         int // <= 64
	Threshold      int
	Initial        int
	ExpectedStatus int
	RequestBytes   []byte // nil => synthesize GET <url> HTTP/1.1 ...
	URL            string
	HostHeader     string // "" => DefaultHost() from the backend sink
	ProxyLevel     int    // 0, 1, or 2
}

// NewSpec fills in spec.md §4.3's defaults for any zero-valued field.
func NewSpec(s Spec) Spec {
	if s.Timeout == 0 {
		s.Timeout = 2 * time.Second
	}
	if s.Interval == 0 {
		s.Interval = 5 * time.Second
	}
	if s.Window == 0 {
		s.Window = 8
	}
	if s.Window > 64 {
		s.Window = 64
	}
	if s.Threshold == 0 {
		s.Threshold = 3
	}
	if s.ExpectedStatus == 0 {
		s.ExpectedStatus = 200
	}
	if s.Initial == 0 {
		s.Initial = s.Threshold - 1
	}
	if s.Initial > s.Threshold {
		s.Initial = s.Threshold
	}
	if s.URL == "" {
		s.URL = "/"
	}
	return s
}

func (s Spec) windowMask() uint64 {
	if s.Window >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(s.Window)) - 1
}

// Target is spec.md §3's ProbeTarget: bound to at most one Backend, it
// accumulates per-round bitmaps and an EWMA latency estimate, and drives
// the sick/healthy verdict.
type Target struct {
	mu sync.Mutex // guards everything below; per target, separate from the engine's heap mutex

	Pool    *connpool.Pool
	Spec    Spec
	Backend BackendSink

	happy, goodIPv4, goodIPv6, goodUnix uint64
	goodXmit, goodRecv, errXmit, errRecv uint64

	respBuf []byte
	last    time.Duration
	avg     float64
	rate    int
	good    int

	state State
	due   time.Time
	idx   int // heap index; minheap.NIL when not scheduled
}

// NewTarget creates a Target bound to pool and sink, in state COLD.
func NewTarget(pool *connpool.Pool, spec Spec, sink BackendSink) *Target {
	return &Target{Pool: pool, Spec: NewSpec(spec), Backend: sink, state: StateCold, idx: -1}
}

// --- minheap.Item ---

func (t *Target) Due() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.due.UnixNano(), t.state == StateScheduled
}
func (t *Target) SetIndex(i int) { t.mu.Lock(); t.idx = i; t.mu.Unlock() }
func (t *Target) Index() int     { t.mu.Lock(); defer t.mu.Unlock(); return t.idx }

// State reports the target's current scheduling state.
func (t *Target) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Good reports the cached popcount of happy bits within the window.
func (t *Target) Good() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.good
}

// Avg reports the current EWMA latency estimate.
func (t *Target) Avg() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.avg
}

// Last reports the most recent successful probe's latency.
func (t *Target) Last() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// recomputeGood refreshes the windowed popcount. Caller must hold t.mu.
func (t *Target) recomputeGood() {
	t.good = bits.OnesCount64(t.happy & t.Spec.windowMask())
}

// statusString renders the 9-character compact status row spec.md §6's
// health log format embeds: one character per of the 9 most recent rounds
// (LSB = newest, rightmost), '1' for happy, '0' otherwise. Rounds that have
// not run yet also render as '0'.
func (t *Target) statusString() string {
	const rows = 9
	buf := make([]byte, rows)
	for i := 0; i < rows; i++ {
		bit := uint(i)
		if bit >= 64 {
			buf[rows-1-i] = '-'
			continue
		}
		if t.happy&(1<<bit) != 0 {
			buf[rows-1-i] = '1'
		} else {
			buf[rows-1-i] = '0'
		}
	}
	return string(buf)
}
