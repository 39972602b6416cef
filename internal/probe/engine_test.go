package probe

import (
	"context"
	"testing"
	"time"

	"github.com/Pranshu258/cachecore/internal/connpool"
	"github.com/Pranshu258/cachecore/internal/waiter"
)

func TestEngineEnableRunsAndHeals(t *testing.T) {
	fd := &scriptedDialer{response: []byte("HTTP/1.1 200 OK\r\n\r\n")}
	reg := connpool.NewRegistry(connpool.DefaultConfig(), fd, waiter.New())
	pool := reg.Ref("origin", testEndpoint())

	sink := &stubSink{name: "b1", sick: true}
	target := NewTarget(pool, Spec{Threshold: 1, Window: 8, Interval: 20 * time.Millisecond, Initial: 0}, sink)

	engine := NewEngine(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	engine.Enable(target)
	if target.State() != StateScheduled {
		t.Fatalf("expected SCHEDULED after Enable from COLD, got %s", target.State())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !sink.sick {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sink.sick {
		t.Fatalf("expected backend to heal after a successful probe round")
	}
}

func TestEngineDisableFromScheduled(t *testing.T) {
	fd := &scriptedDialer{response: []byte("HTTP/1.1 200 OK\r\n\r\n")}
	reg := connpool.NewRegistry(connpool.DefaultConfig(), fd, waiter.New())
	pool := reg.Ref("origin", testEndpoint())

	sink := &stubSink{name: "b2"}
	target := NewTarget(pool, Spec{Threshold: 1, Window: 8, Interval: time.Minute}, sink)

	engine := NewEngine(4)
	engine.Enable(target)
	if target.State() != StateScheduled {
		t.Fatalf("expected SCHEDULED, got %s", target.State())
	}
	engine.Disable(target)
	if target.State() != StateCold {
		t.Fatalf("expected COLD after Disable from SCHEDULED, got %s", target.State())
	}
}

func TestEngineRemoveFromCold(t *testing.T) {
	fd := &scriptedDialer{response: []byte("HTTP/1.1 200 OK\r\n\r\n")}
	reg := connpool.NewRegistry(connpool.DefaultConfig(), fd, waiter.New())
	pool := reg.Ref("origin", testEndpoint())

	sink := &stubSink{name: "b3"}
	target := NewTarget(pool, Spec{}, sink)

	engine := NewEngine(4)
	freeNow := engine.Remove(target)
	if !freeNow {
		t.Fatalf("expected immediate free for a COLD target")
	}
	if target.State() != StateDeleted {
		t.Fatalf("expected DELETED, got %s", target.State())
	}
}
