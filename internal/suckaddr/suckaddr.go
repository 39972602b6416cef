// Package suckaddr implements an opaque, byte-comparable socket address
// value type, modeled on the teacher's none (new for this module) but kept
// in the same terse, low-doc style as the rest of the core packages.
package suckaddr

import (
	"bytes"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Family tags which address family a Suckaddr carries.
type Family int

const (
	FamilyNone Family = iota
	FamilyIPv4
	FamilyIPv6
	FamilyUnix
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	case FamilyUnix:
		return "Unix"
	default:
		return "none"
	}
}

// sysFamily maps a Family to the raw address-family constant used when
// comparing against low-level socket structures.
func (f Family) sysFamily() int {
	switch f {
	case FamilyIPv4:
		return unix.AF_INET
	case FamilyIPv6:
		return unix.AF_INET6
	case FamilyUnix:
		return unix.AF_UNIX
	default:
		return unix.AF_UNSPEC
	}
}

// Suckaddr is an opaque, family-tagged socket address. The zero value is the
// "bogo" sentinel: no address, equal only to itself.
type Suckaddr struct {
	family Family
	raw    []byte // 4 bytes (IPv4), 16 bytes (IPv6), or path bytes (Unix)
	port   uint16
}

// Bogo is the sentinel "no address" value.
var Bogo = Suckaddr{family: FamilyNone}

// FromIP builds a Suckaddr from a net.IP and port, choosing IPv4 or IPv6
// based on the IP's natural 4-byte or 16-byte form.
func FromIP(ip net.IP, port uint16) (Suckaddr, error) {
	if v4 := ip.To4(); v4 != nil {
		return Suckaddr{family: FamilyIPv4, raw: append([]byte(nil), v4...), port: port}, nil
	}
	if v6 := ip.To16(); v6 != nil {
		return Suckaddr{family: FamilyIPv6, raw: append([]byte(nil), v6...), port: port}, nil
	}
	return Suckaddr{}, fmt.Errorf("suckaddr: invalid IP %v", ip)
}

// FromUnix builds a Suckaddr naming a Unix-domain socket path.
func FromUnix(path string) Suckaddr {
	return Suckaddr{family: FamilyUnix, raw: []byte(path)}
}

// Clone returns an independent copy; the original and the clone never share
// the backing array, so mutation of one's raw bytes (which nothing in this
// package does, but callers might via unsafe aliasing) cannot affect the other.
func (s Suckaddr) Clone() Suckaddr {
	if s.raw == nil {
		return s
	}
	out := Suckaddr{family: s.family, port: s.port, raw: make([]byte, len(s.raw))}
	copy(out.raw, s.raw)
	return out
}

// Equal compares two addresses byte-for-byte, including family and port.
// Bogo.Equal(Bogo) is true; Bogo never equals a real address.
func (s Suckaddr) Equal(o Suckaddr) bool {
	if s.family != o.family || s.port != o.port {
		return false
	}
	return bytes.Equal(s.raw, o.raw)
}

// Family reports the address family.
func (s Suckaddr) Family() Family { return s.family }

// IsBogo reports whether this is the "no address" sentinel.
func (s Suckaddr) IsBogo() bool { return s.family == FamilyNone }

// Port returns the numeric port, or 0 for Unix-domain addresses.
func (s Suckaddr) Port() uint16 { return s.port }

// IP returns the net.IP form of an IPv4/IPv6 Suckaddr, or nil for Unix or
// bogo addresses.
func (s Suckaddr) IP() net.IP {
	if s.family != FamilyIPv4 && s.family != FamilyIPv6 {
		return nil
	}
	return net.IP(s.raw)
}

// Raw exposes the underlying address bytes. Callers that need a stable
// pointer for lock-free identity comparison (rather than byte-equality) can
// compare &s.Raw()[0] across two Suckaddrs known to share storage (e.g. both
// obtained from the same Clone chain); ordinary comparisons should use Equal.
func (s Suckaddr) Raw() []byte { return s.raw }

// SysFamily returns the AF_* constant matching this Suckaddr's family, for
// interop with raw syscall-level socket code.
func (s Suckaddr) SysFamily() int { return s.family.sysFamily() }

// String renders a human-readable form for logging.
func (s Suckaddr) String() string {
	switch s.family {
	case FamilyIPv4, FamilyIPv6:
		ip := net.IP(s.raw)
		return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", s.port))
	case FamilyUnix:
		return string(s.raw)
	default:
		return "<bogo>"
	}
}
