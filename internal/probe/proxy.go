package probe

import (
	"fmt"
	"net"
)

// proxyLocalPreamble is the exact PROXY v2 "LOCAL" preamble varnish sends
// ahead of a health-probe request: a probe is not a proxied connection, so
// there are no real client addresses to carry, and encoding one up as if
// there were would misrepresent the probe as traffic. Verified byte-for-
// byte against _examples/original_source's vbp_proxy_local (varnish's
// cache_backend_probe.c, vbp_poke).
var proxyLocalPreamble = []byte{
	0x0d, 0x0a, 0x0d, 0x0a, 0x00, 0x0d, 0x0a, 0x51,
	0x55, 0x49, 0x54, 0x0a, 0x20, 0x00, 0x00, 0x00,
}

// buildProxyPreamble renders the PROXY protocol header a probe writes
// ahead of its request, per spec.md §6's proxy_header_level. Level 1 is
// the v1 text form carrying the prober's own local address (the probe
// connection has no "other side" worth reporting); level 2 is the fixed
// v2 LOCAL preamble. Any other family than TCP4/TCP6 renders as "PROXY
// UNKNOWN\r\n" under level 1, matching vbp_write_proxy_v1's fallback.
func buildProxyPreamble(level int, local net.Addr) []byte {
	switch level {
	case 1:
		return buildProxyV1(local)
	case 2:
		return append([]byte(nil), proxyLocalPreamble...)
	default:
		return nil
	}
}

// buildProxyV1 renders "PROXY TCP4|TCP6 addr addr port port\r\n" using the
// prober's own local address in both the source and destination slots, or
// "PROXY UNKNOWN\r\n" for a non-TCP local address — grounded on
// vbp_write_proxy_v1, which calls VSA_getsockname once and prints that
// single address twice rather than pairing local and remote endpoints.
func buildProxyV1(local net.Addr) []byte {
	lt, ok := local.(*net.TCPAddr)
	if !ok {
		return []byte("PROXY UNKNOWN\r\n")
	}
	fam := "TCP4"
	if lt.IP.To4() == nil {
		fam = "TCP6"
	}
	return []byte(fmt.Sprintf("PROXY %s %s %s %d %d\r\n", fam, lt.IP.String(), lt.IP.String(), lt.Port, lt.Port))
}
