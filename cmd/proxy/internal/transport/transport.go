// Package transport adapts internal/connpool to the standard net/http
// client machinery: an http.RoundTripper that gets a connection from a
// backend's ConnPool, writes the request directly on the wire, and parses
// the response with bufio/http.ReadResponse, recycling the connection
// back into the pool once the body is fully drained. This is the
// "external collaborator" spec.md §4.2 describes consuming ConnPool's
// get/recycle/close surface — none of it lives in internal/connpool
// itself.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Pranshu258/cachecore/internal/connpool"
)

// RoundTripper issues HTTP requests over connections drawn from pool.
type RoundTripper struct {
	Pool    *connpool.Pool
	Timeout time.Duration
}

func New(pool *connpool.Pool, timeout time.Duration) *RoundTripper {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RoundTripper{Pool: pool, Timeout: timeout}
}

func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pfd, err := rt.Pool.Get(ctx, rt.Timeout, false)
	if err != nil {
		return nil, fmt.Errorf("transport: get connection: %w", err)
	}
	if err := pfd.Wait(time.Now().Add(rt.Timeout)); err != nil {
		rt.Pool.Close(pfd)
		return nil, fmt.Errorf("transport: wait for stolen connection: %w", err)
	}

	deadline := time.Now().Add(rt.Timeout)
	pfd.Conn.SetDeadline(deadline)

	if err := req.Write(pfd.Conn); err != nil {
		rt.Pool.Close(pfd)
		return nil, fmt.Errorf("transport: write request: %w", err)
	}

	br := bufio.NewReader(pfd.Conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		rt.Pool.Close(pfd)
		return nil, fmt.Errorf("transport: read response: %w", err)
	}

	resp.Body = &recyclingBody{body: resp.Body, pool: rt.Pool, pfd: pfd}
	return resp, nil
}

// recyclingBody recycles the underlying pfd back into the pool on Close,
// or closes it outright if the body was never fully drained (the
// connection can't be safely reused mid-stream).
type recyclingBody struct {
	body    io.ReadCloser
	pool    *connpool.Pool
	pfd     *connpool.Pfd
	drained bool
}

func (b *recyclingBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err == io.EOF {
		b.drained = true
	}
	return n, err
}

func (b *recyclingBody) Close() error {
	err := b.body.Close()
	if b.drained {
		if rerr := b.pool.Recycle(b.pfd); rerr != nil {
			b.pool.Close(b.pfd)
		}
	} else {
		b.pool.Close(b.pfd)
	}
	return err
}
