package probe

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/Pranshu258/cachecore/internal/suckaddr"
)

// runTask implements spec.md §4.3's per-round worker logic: start_poke,
// poke, has_poked, update_backend, in that order. Errors at any stage
// still fall through to has_poked/update_backend so a failed round still
// updates the bit window and (eventually) the sick verdict.
func runTask(ctx context.Context, t *Target) {
	startPoke(t)
	poke(ctx, t)
	hasPoked(t)
	t.updateBackend(time.Now())
}

// startPoke shifts every bitmap left by one, making room for this round's
// bit at position 0, and resets the per-round scratch state.
func startPoke(t *Target) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.happy <<= 1
	t.goodIPv4 <<= 1
	t.goodIPv6 <<= 1
	t.goodUnix <<= 1
	t.goodXmit <<= 1
	t.goodRecv <<= 1
	t.errXmit <<= 1
	t.errRecv <<= 1
	t.respBuf = nil
}

const probeRespBufCap = 128

// poke dials a fresh connection directly (bypassing the idle pool, per
// spec.md §4.3: a probe round must exercise a real handshake, not reuse a
// connection another caller already proved live), sends the request, and
// reads up to the first 128 bytes of the response.
func poke(ctx context.Context, t *Target) {
	t.mu.Lock()
	spec := t.Spec
	pool := t.Pool
	t.mu.Unlock()

	tStart := time.Now()
	conn, remote, err := pool.Open(ctx, spec.Timeout)
	if err != nil {
		t.mu.Lock()
		t.respBuf = []byte(err.Error())
		t.mu.Unlock()
		return
	}
	defer conn.Close()

	t.mu.Lock()
	switch remote.Family() {
	case suckaddr.FamilyIPv4:
		t.goodIPv4 |= 1
	case suckaddr.FamilyIPv6:
		t.goodIPv6 |= 1
	case suckaddr.FamilyUnix:
		t.goodUnix |= 1
	}
	t.mu.Unlock()

	req := spec.RequestBytes
	if req == nil {
		req = buildRequest(t, spec)
	}
	if spec.ProxyLevel > 0 {
		preamble := buildProxyPreamble(spec.ProxyLevel, conn.LocalAddr())
		if len(preamble) > 0 {
			if _, werr := conn.Write(preamble); werr != nil {
				t.mu.Lock()
				t.errXmit |= 1
				t.respBuf = []byte(werr.Error())
				t.mu.Unlock()
				return
			}
		}
	}

	deadline := tStart.Add(spec.Timeout)
	conn.SetWriteDeadline(deadline)
	n, werr := conn.Write(req)
	if werr != nil || n != len(req) {
		t.mu.Lock()
		t.errXmit |= 1
		if werr != nil {
			t.respBuf = []byte(werr.Error())
		} else {
			t.respBuf = []byte("short write")
		}
		t.mu.Unlock()
		return
	}
	t.mu.Lock()
	t.goodXmit |= 1
	t.mu.Unlock()

	conn.SetReadDeadline(deadline)
	buf := make([]byte, 4096)
	var captured []byte
	var total int
	var readErr error
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			total += n
			if len(captured) < probeRespBufCap {
				take := n
				if len(captured)+take > probeRespBufCap {
					take = probeRespBufCap - len(captured)
				}
				captured = append(captured, buf[:take]...)
			}
		}
		if err != nil {
			readErr = err
			break
		}
	}

	if readErr != nil && readErr != io.EOF {
		t.mu.Lock()
		if isTimeout(readErr) {
			t.respBuf = []byte("timeout")
		} else {
			t.errRecv |= 1
			t.respBuf = []byte(readErr.Error())
		}
		t.mu.Unlock()
		return
	}
	if total == 0 {
		t.mu.Lock()
		t.respBuf = []byte("empty response")
		t.mu.Unlock()
		return
	}

	last := time.Since(tStart)
	t.mu.Lock()
	t.goodRecv |= 1
	t.last = last
	t.respBuf = captured
	t.mu.Unlock()

	parseAndMark(t, captured, spec.ExpectedStatus)
}

type timeoutError interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	te, ok := err.(timeoutError)
	return ok && te.Timeout()
}

// buildRequest synthesizes a minimal GET request when the target doesn't
// carry explicit request bytes.
func buildRequest(t *Target, spec Spec) []byte {
	host := spec.HostHeader
	if host == "" && t.Backend != nil {
		host = t.Backend.DefaultHost()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", spec.URL)
	if host != "" {
		fmt.Fprintf(&b, "Host: %s\r\n", host)
	}
	b.WriteString("Connection: close\r\n\r\n")
	return []byte(b.String())
}

// parseAndMark parses an "HTTP/<ver> <status>" status line from the first
// captured bytes and sets the happy bit for this round if status matches
// expected. Malformed or short responses simply leave happy unset.
func parseAndMark(t *Target, resp []byte, expected int) {
	line := resp
	if i := indexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	var minor, major int
	var status int
	n, err := fmt.Sscanf(string(line), "HTTP/%d.%d %d", &major, &minor, &status)
	if err != nil || n < 3 {
		return
	}
	if status == expected {
		t.mu.Lock()
		t.happy |= 1
		t.mu.Unlock()
	}
}

func indexAny(b []byte, chars string) int {
	for i, c := range b {
		for _, want := range chars {
			if byte(want) == c {
				return i
			}
		}
	}
	return -1
}

// hasPoked folds this round's happy bit into the EWMA latency estimate
// and the cached windowed popcount, per spec.md §4.3: the rate climbs by
// one per happy round, capped at 4, and the average gets a 1/rate update —
// an EWMA whose effective window widens as confidence grows, then holds
// steady. A failed round leaves both rate and avg unchanged.
func hasPoked(t *Target) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.happy&1 != 0 {
		if t.rate < 4 {
			t.rate++
		}
		t.avg += (t.last.Seconds() - t.avg) / float64(t.rate)
	}
	t.recomputeGood()
}

// updateBackend implements spec.md §4.3 update_backend: compares good
// against threshold, publishes the verdict to the bound backend, and logs
// one health-check line: name, Went/Still, sick/healthy, the 9-char status
// row, good, threshold, window, last and avg (seconds), and the quoted
// response snippet.
func (t *Target) updateBackend(now time.Time) {
	t.mu.Lock()
	good := t.good
	threshold := t.Spec.Threshold
	status := t.statusString()
	last := t.last
	avg := t.avg
	window := t.Spec.Window
	resp := string(t.respBuf)
	name := ""
	if t.Backend != nil {
		name = t.Backend.Name()
	}
	t.mu.Unlock()

	newSick := good < threshold
	var changed bool
	if t.Backend != nil {
		changed = t.Backend.SetSick(newSick, now)
	}

	verdict := "healthy"
	if newSick {
		verdict = "sick"
	}
	went := "Still"
	if changed {
		went = "Went"
	}
	log.Printf("%s %s %s %s %d %d %d %.6f %.6f %q",
		name, went, verdict, status, good, threshold, window, last.Seconds(), avg, resp)
}
