package connpool

import (
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/Pranshu258/cachecore/internal/suckaddr"
	"github.com/Pranshu258/cachecore/internal/waiter"
)

type fakeDialer struct {
	calls int32
	err   error
	pairs chan net.Conn
}

func (f *fakeDialer) Dial(ctx context.Context, ep suckaddr.Endpoint, timeout time.Duration, preferIPv6 bool) (net.Conn, suckaddr.Suckaddr, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, suckaddr.Suckaddr{}, f.err
	}
	client, server := net.Pipe()
	go func() {
		// Simulate an origin that just sits there until the client closes.
		buf := make([]byte, 1)
		server.Read(buf)
		server.Close()
	}()
	if f.pairs != nil {
		f.pairs <- server
	}
	return client, suckaddr.Suckaddr{}, nil
}

func testEndpoint() suckaddr.Endpoint {
	v4, _ := suckaddr.FromIP(net.ParseIP("127.0.0.1"), 65000)
	ep, _ := suckaddr.NewIPEndpoint(&v4, nil, nil)
	return ep
}

// Scenario 2 from spec.md §8: pool reuse after a clean close.
func TestPoolReuseAfterClose(t *testing.T) {
	fd := &fakeDialer{}
	w := waiter.New()
	p := newPool("t", testEndpoint(), [32]byte{}, DefaultConfig(), fd, w)

	pfd, err := p.Get(context.Background(), time.Second, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pfd.State() != StateUsed {
		t.Fatalf("expected USED, got %s", pfd.State())
	}

	if err := p.Recycle(pfd); err != nil {
		t.Fatalf("Recycle: %v", err)
	}
	if pfd.State() != StateAvail {
		t.Fatalf("expected AVAIL, got %s", pfd.State())
	}

	pfd2, err := p.Get(context.Background(), time.Second, false)
	if err != nil {
		t.Fatalf("Get (reuse): %v", err)
	}
	if pfd2 != pfd {
		t.Fatalf("expected same pfd reused")
	}
	if pfd2.State() != StateStolen {
		t.Fatalf("expected STOLEN immediately after steal, got %s", pfd2.State())
	}

	if err := pfd2.Wait(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if pfd2.State() != StateUsed {
		t.Fatalf("expected USED after wait, got %s", pfd2.State())
	}

	p.Close(pfd2)
	c := p.Counters()
	if c.NUsed != 0 || c.NConn != 0 {
		t.Fatalf("expected nUsed=0 nConn=0, got %+v", c)
	}
	if atomic.LoadInt32(&fd.calls) != 1 {
		t.Fatalf("expected exactly 1 dial, got %d", fd.calls)
	}
}

// Scenario 3 from spec.md §8: hold-down on refused connections avoids a
// second syscall until the hold-down expires.
func TestHolddownOnRefused(t *testing.T) {
	refused := &net.OpError{Op: "dial", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}
	fd := &fakeDialer{err: refused}
	w := waiter.New()
	cfg := DefaultConfig()
	cfg.RemoteErrorHolddown = 50 * time.Millisecond
	p := newPool("t", testEndpoint(), [32]byte{}, cfg, fd, w)

	_, err := p.Get(context.Background(), time.Second, false)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("expected ECONNREFUSED, got %v", err)
	}
	if atomic.LoadInt32(&fd.calls) != 1 {
		t.Fatalf("expected 1 dial attempt, got %d", fd.calls)
	}

	// Immediately again: should fail from hold-down without a new dial.
	_, err2 := p.Get(context.Background(), time.Second, false)
	if err2 == nil {
		t.Fatalf("expected error from holddown")
	}
	if atomic.LoadInt32(&fd.calls) != 1 {
		t.Fatalf("expected still 1 dial attempt (holddown), got %d", fd.calls)
	}

	time.Sleep(60 * time.Millisecond)
	_, err3 := p.Get(context.Background(), time.Second, false)
	if err3 == nil {
		t.Fatalf("expected error (origin still refusing), got nil")
	}
	if atomic.LoadInt32(&fd.calls) != 2 {
		t.Fatalf("expected 2 dial attempts after holddown expiry, got %d", fd.calls)
	}
}

func TestRegistryDedup(t *testing.T) {
	fd := &fakeDialer{}
	w := waiter.New()
	r := NewRegistry(DefaultConfig(), fd, w)

	p1 := r.Ref("origin-1", testEndpoint())
	p2 := r.Ref("origin-1", testEndpoint())
	if p1 != p2 {
		t.Fatalf("expected same pool for identical (ident, endpoint)")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 pool, got %d", r.Len())
	}

	r.Rel(p1)
	if r.Len() != 1 {
		t.Fatalf("expected pool to survive first Rel (refcount 2->1), got len=%d", r.Len())
	}
	r.Rel(p2)
	if r.Len() != 0 {
		t.Fatalf("expected pool removed after refcount reaches 0, got len=%d", r.Len())
	}
}
