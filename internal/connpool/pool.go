// Package connpool implements the per-endpoint outbound connection pool
// spec.md §4.2 describes: open/get/recycle/close over pooled file
// descriptors, with hold-down on failure and waiter-driven idle eviction.
// It is grounded on the teacher's absence of a real pool (OpenPrequal talks
// to backends with a fresh http.Client per probe) and on the corpus's
// connection-pool reference files — most directly
// other_examples/...beyond-ads-dns...connpool.go's channel-backed idle pool
// and drain-on-shutdown pattern, generalized here to the explicit
// AVAIL/STOLEN/USED/CLEANUP state machine spec.md requires.
package connpool

import (
	"container/list"
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/Pranshu258/cachecore/internal/coreerrors"
	"github.com/Pranshu258/cachecore/internal/suckaddr"
	"github.com/Pranshu258/cachecore/internal/waiter"
)

// Config bundles the tunables spec.md leaves as configuration.
type Config struct {
	LocalErrorHolddown  time.Duration
	RemoteErrorHolddown time.Duration
	BackendIdleTimeout  time.Duration
	PreferIPv6          bool
}

func DefaultConfig() Config {
	return Config{
		LocalErrorHolddown:  10 * time.Second,
		RemoteErrorHolddown: 250 * time.Millisecond,
		BackendIdleTimeout:  60 * time.Second,
		PreferIPv6:          false,
	}
}

// Pool is a per-endpoint collection of idle and in-use connections.
type Pool struct {
	Ident    string
	Endpoint suckaddr.Endpoint
	Digest   [32]byte

	cfg    Config
	dialer Dialer
	w      *waiter.Waiter

	mu        sync.Mutex
	cond      *sync.Cond
	refcount  int32
	connlist  list.List // of *Pfd, state==StateAvail
	nConn     int
	nUsed     int
	nKill     int
	holddown  time.Time
	lastErr   error
	nowFn     func() time.Time

	diag *latencyRing
}

func newPool(ident string, ep suckaddr.Endpoint, digest [32]byte, cfg Config, dialer Dialer, w *waiter.Waiter) *Pool {
	p := &Pool{
		Ident:    ident,
		Endpoint: ep,
		Digest:   digest,
		cfg:      cfg,
		dialer:   dialer,
		w:        w,
		nowFn:    time.Now,
		diag:     newLatencyRing(32),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *Pool) now() time.Time { return p.nowFn() }

// waitUntil cond.Waits, but wakes at deadline even with no Broadcast by
// scheduling a one-shot timer that broadcasts. Caller must hold p.mu.
func (p *Pool) waitUntil(deadline time.Time) {
	timer := time.AfterFunc(time.Until(deadline), func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer timer.Stop()
	p.cond.Wait()
}

// Open attempts a fresh connection, honoring hold-down. Implements
// spec.md §4.2 open(tmo).
func (p *Pool) Open(ctx context.Context, timeout time.Duration) (net.Conn, suckaddr.Suckaddr, error) {
	p.mu.Lock()
	if !p.holddown.IsZero() {
		if !p.now().Before(p.holddown) {
			p.holddown = time.Time{}
		} else {
			err := p.lastErr
			p.mu.Unlock()
			return nil, suckaddr.Suckaddr{}, err
		}
	}
	p.mu.Unlock()

	dialStart := p.now()
	conn, remote, err := p.dialer.Dial(ctx, p.Endpoint, timeout, p.cfg.PreferIPv6)
	if err != nil {
		p.installHolddown(err)
		return nil, suckaddr.Suckaddr{}, err
	}
	p.diag.add(p.now().Sub(dialStart))

	if len(p.Endpoint.Preamble) > 0 {
		n, werr := conn.Write(p.Endpoint.Preamble)
		if werr != nil || n != len(p.Endpoint.Preamble) {
			conn.Close()
			shortErr := coreerrors.New(coreerrors.KindWriteShort, werr)
			return nil, suckaddr.Suckaddr{}, shortErr
		}
	}
	return conn, remote, nil
}

// installHolddown classifies a dial error and, if it maps to a hold-down
// kind, sets the pool's hold-down deadline if none is set or the new one is
// sooner; per the hold-down monotone invariant it never moves it later.
func (p *Pool) installHolddown(err error) {
	dur, ok := p.holddownFor(err)
	if !ok {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		return
	}
	until := p.now().Add(dur)
	p.mu.Lock()
	if p.holddown.IsZero() || until.Before(p.holddown) {
		p.holddown = until
	}
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Pool) holddownFor(err error) (time.Duration, bool) {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return 0, false
	}
	switch errno {
	case syscall.EACCES, syscall.EPERM, syscall.EADDRNOTAVAIL:
		return p.cfg.LocalErrorHolddown, true
	case syscall.ECONNREFUSED, syscall.ENETUNREACH:
		return p.cfg.RemoteErrorHolddown, true
	default:
		return 0, false
	}
}

// Get implements spec.md §4.2 get(tmo, worker, force_fresh). If an idle
// connection is available and force_fresh is false, it is returned
// immediately in STOLEN state — the caller MUST call pfd.Wait before
// reading from it. Otherwise a fresh connection is opened and returned in
// USED state.
func (p *Pool) Get(ctx context.Context, timeout time.Duration, forceFresh bool) (*Pfd, error) {
	p.mu.Lock()
	var stolen *Pfd
	if !forceFresh && p.connlist.Len() > 0 {
		front := p.connlist.Front()
		pfd := front.Value.(*Pfd)
		if pfd.state == StateAvail {
			p.connlist.Remove(front)
			p.nConn--
			pfd.elem = nil
			pfd.state = StateStolen
			stolen = pfd
		}
	}
	p.nUsed++
	p.mu.Unlock()

	if stolen != nil {
		if stolen.handle != nil {
			stolen.handle.Leave()
		}
		return stolen, nil
	}

	conn, remote, err := p.Open(ctx, timeout)
	if err != nil {
		p.mu.Lock()
		p.nUsed--
		p.mu.Unlock()
		return nil, err
	}
	return newPfd(p, conn, remote), nil
}

// Recycle implements spec.md §4.2 recycle(worker, pfd): state USED->AVAIL,
// handed to the waiter with an idle timeout.
func (p *Pool) Recycle(pfd *Pfd) error {
	p.mu.Lock()
	if pfd.state != StateUsed {
		p.mu.Unlock()
		panic(coreerrors.ErrWrongStateTransition)
	}
	p.nUsed--
	p.mu.Unlock()

	h, err := p.w.Enter(pfd.Conn, p.cfg.BackendIdleTimeout, p, pfd)
	if err != nil {
		pfd.Conn.Close()
		return coreerrors.New(coreerrors.KindWaiterEnterFailure, err)
	}

	p.mu.Lock()
	pfd.handle = h
	pfd.state = StateAvail
	pfd.elem = p.connlist.PushFront(pfd)
	p.nConn++
	p.mu.Unlock()
	return nil
}

// Close implements spec.md §4.2 close(pfd).
func (p *Pool) Close(pfd *Pfd) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nUsed--

	switch pfd.state {
	case StateStolen:
		shutdownRW(pfd.Conn)
		pfd.state = StateCleanup
		p.nKill++
		if pfd.handle != nil {
			pfd.handle.Leave()
		}
	case StateUsed:
		pfd.Conn.Close()
	default:
		panic(coreerrors.ErrWrongStateTransition)
	}
}

// OnWaiterEvent implements waiter.Notifiee, dispatching on the pfd's
// current state exactly as spec.md §4.2's on_event describes.
func (p *Pool) OnWaiterEvent(tag any, ev waiter.Event) {
	pfd := tag.(*Pfd)
	p.mu.Lock()
	defer p.mu.Unlock()

	switch pfd.state {
	case StateStolen:
		pfd.state = StateUsed
		pfd.handle = nil
		p.cond.Broadcast()
	case StateAvail:
		if pfd.elem != nil {
			p.connlist.Remove(pfd.elem)
			pfd.elem = nil
			p.nConn--
		}
		pfd.Conn.Close()
	case StateCleanup:
		pfd.Conn.Close()
		p.nKill--
		pfd.handle = nil
	default:
		log.Printf("[ConnPool] on_event: unexpected state %s for %s (event=%s)", pfd.state, p.Ident, ev)
	}
}

// Counters snapshots the pool's accounting fields for tests and metrics.
type Counters struct {
	NConn, NUsed, NKill int
	Refcount            int32
	Holddown            time.Time
}

func (p *Pool) Counters() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Counters{NConn: p.nConn, NUsed: p.nUsed, NKill: p.nKill, Refcount: p.refcount, Holddown: p.holddown}
}

// shutdownRW attempts a half-close (shutdown(RW)) on conn, falling back to
// a full Close for connection types that don't support it.
func shutdownRW(conn net.Conn) {
	type closeWriter interface {
		CloseWrite() error
	}
	type closeReader interface {
		CloseRead() error
	}
	if cw, ok := conn.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
	if cr, ok := conn.(closeReader); ok {
		_ = cr.CloseRead()
	}
}

// drain moves every AVAIL pfd to CLEANUP and shuts it down, then
// spin-waits (short sleep, per spec.md's documented "busy-waits 20ms"
// trade-off — a condvar would be cleaner but this mirrors the source's
// accepted simplicity for a rare path) until nKill reaches zero.
func (p *Pool) drain() {
	p.mu.Lock()
	var toKill []*Pfd
	for e := p.connlist.Front(); e != nil; {
		next := e.Next()
		pfd := e.Value.(*Pfd)
		p.connlist.Remove(e)
		pfd.elem = nil
		p.nConn--
		pfd.state = StateCleanup
		p.nKill++
		toKill = append(toKill, pfd)
		e = next
	}
	p.mu.Unlock()

	for _, pfd := range toKill {
		shutdownRW(pfd.Conn)
		if pfd.handle != nil {
			pfd.handle.Leave()
		}
	}

	for {
		p.mu.Lock()
		done := p.nKill == 0
		p.mu.Unlock()
		if done {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
