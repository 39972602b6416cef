package connpool

import (
	"container/list"
	"net"
	"time"

	"github.com/Pranshu258/cachecore/internal/coreerrors"
	"github.com/Pranshu258/cachecore/internal/suckaddr"
	"github.com/Pranshu258/cachecore/internal/waiter"
)

// State is a Pfd's position in the state machine spec.md §3 defines.
type State int

const (
	// StateAvail: in connlist, owned by the waiter, eligible to be stolen.
	StateAvail State = iota
	// StateStolen: removed from connlist by a caller; the waiter may
	// still hold it until it signals release.
	StateStolen
	// StateUsed: caller owns exclusively; not in any list.
	StateUsed
	// StateCleanup: scheduled for destruction; the waiter still holds
	// the fd, transitions to freed on its callback.
	StateCleanup
)

func (s State) String() string {
	switch s {
	case StateAvail:
		return "AVAIL"
	case StateStolen:
		return "STOLEN"
	case StateUsed:
		return "USED"
	case StateCleanup:
		return "CLEANUP"
	default:
		return "?"
	}
}

// Pfd is a pooled file descriptor with an explicit lifecycle state. All
// state transitions happen under the owning Pool's mutex.
type Pfd struct {
	pool   *Pool
	Conn   net.Conn
	Remote suckaddr.Suckaddr

	state  State
	elem   *list.Element // position in pool.connlist when AVAIL
	handle *waiter.Handle
}

func newPfd(p *Pool, conn net.Conn, remote suckaddr.Suckaddr) *Pfd {
	return &Pfd{pool: p, Conn: conn, Remote: remote, state: StateUsed}
}

// State reports the Pfd's current state under the pool's mutex.
func (pfd *Pfd) State() State {
	pfd.pool.mu.Lock()
	defer pfd.pool.mu.Unlock()
	return pfd.state
}

// Wait blocks until a STOLEN pfd transitions to USED (the waiter released
// it) or deadline passes. Per spec.md §5 Ordering guarantees: a pfd
// returned by Get with force_fresh=false is exclusively owned by the
// caller only after Wait returns nil; on timeout the pfd is still STOLEN
// and the caller must call Close on it.
func (pfd *Pfd) Wait(deadline time.Time) error {
	p := pfd.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	for pfd.state == StateStolen {
		if !time.Now().Before(deadline) {
			return coreerrors.New(coreerrors.KindOpenTimeout, nil)
		}
		p.waitUntil(deadline)
	}
	return nil
}
