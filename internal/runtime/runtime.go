// Package runtime bundles the core's module-private global state — the
// object directory, the pools registry, and the probe engine — behind one
// handle, per spec.md §9's design note: "Keep as module-private
// singletons with explicit init and teardown; for languages that
// discourage globals, inject a CoreRuntime handle into every public entry
// point." Go discourages package-level mutable globals for anything
// beyond a single binary's lifetime, so CacheCore takes the injected-handle
// branch of that note.
package runtime

import (
	"context"
	"log"
	"runtime/debug"

	"github.com/Pranshu258/cachecore/internal/buckethash"
	"github.com/Pranshu258/cachecore/internal/connpool"
	"github.com/Pranshu258/cachecore/internal/probe"
	"github.com/Pranshu258/cachecore/internal/waiter"
)

// CoreRuntime is the handle every public entry point in a process built on
// this module should receive, rather than reaching for package-level
// globals.
type CoreRuntime struct {
	Objects *buckethash.BucketHash
	Pools   *connpool.Registry
	Probe   *probe.Engine
	Waiter  *waiter.Waiter

	cancel context.CancelFunc
}

// Config bundles the construction parameters for New.
type Config struct {
	Buckets         int
	PoolConfig      connpool.Config
	Dialer          connpool.Dialer
	ProbeWorkers    int
	ProbeRatePerSec float64
	ProbeBurst      int
}

// New constructs a CoreRuntime and starts its probe scheduler goroutine.
// Call Teardown when the process is shutting down.
func New(cfg Config) *CoreRuntime {
	w := waiter.New()
	rt := &CoreRuntime{
		Objects: buckethash.New(cfg.Buckets),
		Pools:   connpool.NewRegistry(cfg.PoolConfig, cfg.Dialer, w),
		Probe:   probe.NewEngineWithRate(cfg.ProbeWorkers, cfg.ProbeRatePerSec, cfg.ProbeBurst),
		Waiter:  w,
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	go rt.runProbeEngine(ctx)
	return rt
}

func (rt *CoreRuntime) runProbeEngine(ctx context.Context) {
	defer Recover("probe engine")
	rt.Probe.Run(ctx)
}

// Teardown stops the probe scheduler and shuts the waiter to new
// connections; connections it already watches are not closed. It does not
// close individual pools — callers own those through Pools.Rel.
func (rt *CoreRuntime) Teardown() {
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.Waiter.Shutdown()
}

// Recover is the panic dumper spec.md §2's size budget calls out under
// "Glue": the probe scheduler goroutine this runtime spawns defers it, so a
// panic there logs a stack trace and stops that goroutine without taking
// the process down (it does not restart itself). Probe task goroutines
// started by the engine do not defer it.
func Recover(label string) {
	if r := recover(); r != nil {
		log.Printf("cachecore: panic in %s: %v\n%s", label, r, debug.Stack())
	}
}
