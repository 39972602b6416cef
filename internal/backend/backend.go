// Package backend implements spec.md §4.4's Backend record: the glue
// object binding a ConnPool and an optional ProbeTarget, carrying the
// sick verdict and the timestamp it last changed. Grounded on the
// teacher's go/contracts/backend.go (URL/Health/latency fields) and
// go/core/backend_registry.go for the registry shape, generalized to
// wrap this module's own ConnPool/ProbeTarget types instead of an
// http.Client-based heartbeat.
package backend

import (
	"sync"
	"time"

	"github.com/Pranshu258/cachecore/internal/connpool"
	"github.com/Pranshu258/cachecore/internal/probe"
)

// Backend binds a name, its connection pool, and (if health-checked) its
// probe target. It implements probe.BackendSink so a Target can publish
// verdicts back without importing this package.
type Backend struct {
	mu sync.RWMutex

	vclName          string
	host             string
	pool             *connpool.Pool
	target           *probe.Target
	proxyHeaderLevel int

	sick    bool
	changed time.Time

	// vsc-stats: the small set of counters spec.md §7 calls out as
	// published alongside the health verdict, modeled on the teacher's
	// contracts.Backend.InFlightRequests/AvgLatency fields.
	stats Stats
}

// Stats is the subset of varnish-style "vsc" counters this port tracks per
// backend; they are read through Stats(), not exported to internal/metrics.
type Stats struct {
	InFlightRequests int64
	AvgLatencySec    float64
}

// New creates a Backend bound to pool, initially healthy (sick=false)
// until a probe says otherwise.
func New(vclName, host string, pool *connpool.Pool, proxyHeaderLevel int) *Backend {
	return &Backend{vclName: vclName, host: host, pool: pool, proxyHeaderLevel: proxyHeaderLevel}
}

// Pool returns the backend's connection pool.
func (b *Backend) Pool() *connpool.Pool { return b.pool }

// BindTarget attaches a ProbeTarget to this backend. A backend with no
// bound target is always considered healthy (spec.md §4.4: health
// checking is optional per backend).
func (b *Backend) BindTarget(t *probe.Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = t
}

// Target returns the bound probe target, or nil.
func (b *Backend) Target() *probe.Target {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.target
}

// Name implements probe.BackendSink.
func (b *Backend) Name() string { return b.vclName }

// DefaultHost implements probe.BackendSink.
func (b *Backend) DefaultHost() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.host
}

// SetSick implements probe.BackendSink: publishes a new verdict, stamping
// Changed only when it actually flips.
func (b *Backend) SetSick(sick bool, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sick == sick {
		return false
	}
	b.sick = sick
	b.changed = now
	return true
}

// Healthy reports whether the backend currently accepts traffic: a
// backend with no bound probe target is always healthy; otherwise it
// reflects the target's last verdict.
func (b *Backend) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.target == nil {
		return true
	}
	return !b.sick
}

// Changed returns when the sick verdict last flipped.
func (b *Backend) Changed() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}

// ProxyHeaderLevel reports the PROXY protocol version (0, 1, or 2) probes
// against this backend should prepend, per spec.md §4.3.
func (b *Backend) ProxyHeaderLevel() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.proxyHeaderLevel
}

// Stats returns a snapshot of the backend's vsc-stats counters.
func (b *Backend) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// RecordRequestStart/RecordRequestEnd maintain the in-flight counter and a
// simple running average latency, mirroring the teacher's
// contracts.Backend.InFlightRequests/AvgLatency pair.
func (b *Backend) RecordRequestStart() {
	b.mu.Lock()
	b.stats.InFlightRequests++
	b.mu.Unlock()
}

func (b *Backend) RecordRequestEnd(latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stats.InFlightRequests > 0 {
		b.stats.InFlightRequests--
	}
	const rate = 8.0
	if b.stats.AvgLatencySec == 0 {
		b.stats.AvgLatencySec = latency.Seconds()
		return
	}
	b.stats.AvgLatencySec += (latency.Seconds() - b.stats.AvgLatencySec) / rate
}
