package runtime

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Pranshu258/cachecore/internal/connpool"
	"github.com/Pranshu258/cachecore/internal/suckaddr"
)

type fakeDialer struct {
	calls int32
}

func (f *fakeDialer) Dial(ctx context.Context, ep suckaddr.Endpoint, timeout time.Duration, preferIPv6 bool) (net.Conn, suckaddr.Suckaddr, error) {
	atomic.AddInt32(&f.calls, 1)
	client, server := net.Pipe()
	go func() {
		buf := make([]byte, 1)
		server.Read(buf)
		server.Close()
	}()
	return client, suckaddr.Suckaddr{}, nil
}

func TestNewBuildsUsableSingletons(t *testing.T) {
	rt := New(Config{
		Buckets:         16,
		PoolConfig:      connpool.DefaultConfig(),
		Dialer:          &fakeDialer{},
		ProbeWorkers:    4,
		ProbeRatePerSec: 100,
		ProbeBurst:      10,
	})
	defer rt.Teardown()

	if rt.Objects == nil || rt.Pools == nil || rt.Probe == nil || rt.Waiter == nil {
		t.Fatalf("New left a nil singleton: %+v", rt)
	}

	// 16 is a power of two, so buckethash.New reduces it by one.
	if got := rt.Objects.NumBuckets(); got != 15 {
		t.Fatalf("NumBuckets() = %d, want 15", got)
	}

	v4, _ := suckaddr.FromIP(net.ParseIP("127.0.0.1"), 9000)
	ep, _ := suckaddr.NewIPEndpoint(&v4, nil, nil)
	pool := rt.Pools.Ref("t", ep)
	if pool == nil {
		t.Fatal("Pools.Ref returned nil")
	}
	pfd, err := pool.Get(context.Background(), time.Second, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := pool.Recycle(pfd); err != nil {
		t.Fatalf("Recycle: %v", err)
	}
}

func TestTeardownStopsProbeEngineWithoutPanicking(t *testing.T) {
	rt := New(Config{
		Buckets:         4,
		PoolConfig:      connpool.DefaultConfig(),
		Dialer:          &fakeDialer{},
		ProbeWorkers:    1,
		ProbeRatePerSec: 10,
		ProbeBurst:      1,
	})
	rt.Teardown()
	// A second Teardown call (context already cancelled) must not panic;
	// shutdown paths in long-lived servers are frequently invoked twice
	// (signal handler plus deferred cleanup).
	rt.Teardown()
}

func TestRecoverSwallowsPanicAndLogs(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer Recover("test goroutine")
		panic("boom")
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not return after panicking under Recover")
	}
}
