package probe

import (
	"net"
	"testing"
)

func TestBuildProxyV2IsFixedLocalPreamble(t *testing.T) {
	local := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 4000}
	got := buildProxyPreamble(2, local)
	want := []byte{
		0x0d, 0x0a, 0x0d, 0x0a, 0x00, 0x0d, 0x0a, 0x51,
		0x55, 0x49, 0x54, 0x0a, 0x20, 0x00, 0x00, 0x00,
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestBuildProxyV1RepeatsLocalAddressInBothSlots(t *testing.T) {
	local := &net.TCPAddr{IP: net.ParseIP("192.168.1.5"), Port: 9090}
	got := string(buildProxyPreamble(1, local))
	want := "PROXY TCP4 192.168.1.5 192.168.1.5 9090 9090\r\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildProxyV1TCP6(t *testing.T) {
	local := &net.TCPAddr{IP: net.ParseIP("::1"), Port: 443}
	got := string(buildProxyPreamble(1, local))
	want := "PROXY TCP6 ::1 ::1 443 443\r\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

type fakeUnixAddr struct{}

func (fakeUnixAddr) Network() string { return "unix" }
func (fakeUnixAddr) String() string  { return "/tmp/backend.sock" }

func TestBuildProxyV1UnknownFamilyFallsBackToUnknown(t *testing.T) {
	got := string(buildProxyPreamble(1, fakeUnixAddr{}))
	want := "PROXY UNKNOWN\r\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildProxyPreambleLevelZeroIsNil(t *testing.T) {
	local := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 4000}
	if got := buildProxyPreamble(0, local); got != nil {
		t.Fatalf("level 0 preamble = %v, want nil", got)
	}
}
