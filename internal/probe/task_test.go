package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Pranshu258/cachecore/internal/connpool"
	"github.com/Pranshu258/cachecore/internal/suckaddr"
	"github.com/Pranshu258/cachecore/internal/waiter"
)

// scriptedDialer answers every dial with a fresh net.Pipe whose server
// side writes a canned HTTP response, modeling an origin that always
// answers probes the same way.
type scriptedDialer struct {
	response []byte
}

func (d *scriptedDialer) Dial(ctx context.Context, ep suckaddr.Endpoint, timeout time.Duration, preferIPv6 bool) (net.Conn, suckaddr.Suckaddr, error) {
	client, server := net.Pipe()
	go func() {
		buf := make([]byte, 512)
		server.Read(buf)
		server.Write(d.response)
		server.Close()
	}()
	v4, _ := suckaddr.FromIP(net.ParseIP("127.0.0.1"), 80)
	return client, v4, nil
}

type stubSink struct {
	name string
	sick bool
}

func (s *stubSink) Name() string        { return s.name }
func (s *stubSink) DefaultHost() string { return s.name }
func (s *stubSink) SetSick(sick bool, now time.Time) bool {
	changed := s.sick != sick
	s.sick = sick
	return changed
}

func testEndpoint() suckaddr.Endpoint {
	v4, _ := suckaddr.FromIP(net.ParseIP("127.0.0.1"), 8080)
	ep, _ := suckaddr.NewIPEndpoint(&v4, nil, nil)
	return ep
}

func TestPokeHappyPath(t *testing.T) {
	fd := &scriptedDialer{response: []byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")}
	reg := connpool.NewRegistry(connpool.DefaultConfig(), fd, waiter.New())
	pool := reg.Ref("origin", testEndpoint())

	sink := &stubSink{name: "b1"}
	target := NewTarget(pool, Spec{Threshold: 3, Window: 8}, sink)

	startPoke(target)
	poke(context.Background(), target)
	hasPoked(target)

	if target.happy&1 == 0 {
		t.Fatalf("expected happy bit set for 200 response")
	}
	if target.goodXmit&1 == 0 || target.goodRecv&1 == 0 {
		t.Fatalf("expected goodXmit and goodRecv bits set")
	}
	if target.goodIPv4&1 == 0 {
		t.Fatalf("expected goodIPv4 bit set")
	}
	if target.rate != 1 {
		t.Fatalf("expected rate=1 after first happy round, got %d", target.rate)
	}
}

func TestPokeStatusMismatchNotHappy(t *testing.T) {
	fd := &scriptedDialer{response: []byte("HTTP/1.1 503 Service Unavailable\r\n\r\n")}
	reg := connpool.NewRegistry(connpool.DefaultConfig(), fd, waiter.New())
	pool := reg.Ref("origin", testEndpoint())

	sink := &stubSink{name: "b1"}
	target := NewTarget(pool, Spec{Threshold: 3, Window: 8}, sink)

	startPoke(target)
	poke(context.Background(), target)
	hasPoked(target)

	if target.happy&1 != 0 {
		t.Fatalf("expected happy bit clear for 503 response")
	}
	if target.rate != 0 {
		t.Fatalf("expected rate to remain 0 (never had a happy round), got %d", target.rate)
	}
}

// A failed round leaves an already-built-up rate alone rather than
// resetting it to 0 — only a happy round ever touches rate/avg, matching
// vbp_has_poked in cache_backend_probe.c.
func TestHasPokedLeavesRateUntouchedOnFailure(t *testing.T) {
	fd := &scriptedDialer{response: []byte("HTTP/1.1 200 OK\r\n\r\n")}
	reg := connpool.NewRegistry(connpool.DefaultConfig(), fd, waiter.New())
	pool := reg.Ref("origin", testEndpoint())

	sink := &stubSink{name: "b1"}
	target := NewTarget(pool, Spec{Threshold: 3, Window: 8}, sink)

	startPoke(target)
	poke(context.Background(), target)
	hasPoked(target)
	if target.rate != 1 {
		t.Fatalf("expected rate=1 after first happy round, got %d", target.rate)
	}
	wantAvg := target.avg

	target.happy = 0 // simulate a failed round's bit, bypassing startPoke's shift
	hasPoked(target)
	if target.rate != 1 {
		t.Fatalf("expected rate to remain 1 after a failed round, got %d", target.rate)
	}
	if target.avg != wantAvg {
		t.Fatalf("expected avg unchanged after a failed round, got %v want %v", target.avg, wantAvg)
	}
}

func TestUpdateBackendSicknessHysteresis(t *testing.T) {
	fd := &scriptedDialer{response: []byte("HTTP/1.1 500 Internal Server Error\r\n\r\n")}
	reg := connpool.NewRegistry(connpool.DefaultConfig(), fd, waiter.New())
	pool := reg.Ref("origin", testEndpoint())

	sink := &stubSink{name: "b1", sick: false}
	target := NewTarget(pool, Spec{Threshold: 3, Window: 8, Initial: 2}, sink)
	target.happy = 0b11 // the Initial=2 grace bits, as Engine.Enable seeds them
	target.recomputeGood()

	target.updateBackend(time.Now())
	if !sink.sick {
		t.Fatalf("expected backend marked sick once good(2) < threshold(3)")
	}
}
