package suckaddr

import "fmt"

// Endpoint identifies where to connect: either an IP endpoint (v4 and/or v6
// address) or a Unix-domain socket path. An optional preamble is written
// verbatim on every newly opened socket before it is considered established
// (used by higher layers for PROXY-protocol style framing).
type Endpoint struct {
	V4       *Suckaddr
	V6       *Suckaddr
	UdsPath  string
	IsUds    bool
	Preamble []byte
}

// NewIPEndpoint builds an Endpoint from one or both address families. At
// least one of v4/v6 must be non-nil.
func NewIPEndpoint(v4, v6 *Suckaddr, preamble []byte) (Endpoint, error) {
	if v4 == nil && v6 == nil {
		return Endpoint{}, fmt.Errorf("suckaddr: IP endpoint needs at least one of v4/v6")
	}
	return Endpoint{V4: v4, V6: v6, Preamble: preamble}, nil
}

// NewUdsEndpoint builds an Endpoint naming a Unix-domain socket.
func NewUdsEndpoint(path string, preamble []byte) Endpoint {
	return Endpoint{UdsPath: path, IsUds: true, Preamble: preamble}
}

// Digest feeds the bytes specified in spec.md §6 ("Pool endpoint digest") to
// the supplied hash.Hash in order: ident, then the family-tagged address
// bytes, then the preamble if present. Callers (internal/connpool) wrap this
// around sha256.New().
func (e Endpoint) Digest(ident string, w interface{ Write([]byte) (int, error) }) {
	w.Write([]byte(ident))
	w.Write([]byte{0})
	if e.IsUds {
		w.Write([]byte("UDS\x00"))
		w.Write([]byte(e.UdsPath))
	} else {
		if e.V4 != nil {
			w.Write([]byte("IP4\x00"))
			w.Write(e.V4.Raw())
		}
		if e.V6 != nil {
			w.Write([]byte("IP6\x00"))
			w.Write(e.V6.Raw())
		}
	}
	if len(e.Preamble) > 0 {
		w.Write([]byte("PRE\x00"))
		w.Write(e.Preamble)
	}
}
