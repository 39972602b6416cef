package connpool

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// latencyRing keeps the last few dial latencies for a pool's diagnostics
// page, in the same spirit as the teacher's pkg/probe median-latency
// helper (gonum's stat.Quantile over a small recent sample), carried over
// here since connection establishment latency is exactly the kind of
// metric that helper was built to summarize.
type latencyRing struct {
	mu      sync.Mutex
	samples []float64
	cap     int
}

func newLatencyRing(cap int) *latencyRing {
	if cap <= 0 {
		cap = 32
	}
	return &latencyRing{cap: cap}
}

func (r *latencyRing) add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, d.Seconds())
	if len(r.samples) > r.cap {
		r.samples = r.samples[len(r.samples)-r.cap:]
	}
}

// median returns the gonum-computed median of the recent dial latencies,
// or 0 if there is no data yet.
func (r *latencyRing) median() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(r.samples))
	copy(sorted, r.samples)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// MedianOpenLatencySeconds reports the median of this pool's last 32 dial
// latencies, in seconds.
func (p *Pool) MedianOpenLatencySeconds() float64 {
	return p.diag.median()
}
