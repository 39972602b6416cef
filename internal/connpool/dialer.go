package connpool

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Pranshu258/cachecore/internal/suckaddr"
)

// Dialer opens the raw transport connection for an Endpoint. Production
// code uses netDialer; tests substitute a fake to count dial attempts and
// inject errors (spec.md §8 scenario 3: "test with a fake connector
// counting calls").
type Dialer interface {
	Dial(ctx context.Context, ep suckaddr.Endpoint, timeout time.Duration, preferIPv6 bool) (net.Conn, suckaddr.Suckaddr, error)
}

// netDialer is the production Dialer, using the standard net package.
type netDialer struct{}

func NewNetDialer() Dialer { return netDialer{} }

func (netDialer) Dial(ctx context.Context, ep suckaddr.Endpoint, timeout time.Duration, preferIPv6 bool) (net.Conn, suckaddr.Suckaddr, error) {
	d := &net.Dialer{Timeout: timeout}

	if ep.IsUds {
		c, err := d.DialContext(ctx, "unix", ep.UdsPath)
		if err != nil {
			return nil, suckaddr.Suckaddr{}, err
		}
		return c, suckaddr.FromUnix(ep.UdsPath), nil
	}

	order := []*suckaddr.Suckaddr{ep.V6, ep.V4}
	if !preferIPv6 {
		order = []*suckaddr.Suckaddr{ep.V4, ep.V6}
	}

	var lastErr error
	for _, sa := range order {
		if sa == nil {
			continue
		}
		network := "tcp4"
		if sa.Family() == suckaddr.FamilyIPv6 {
			network = "tcp6"
		}
		addr := net.JoinHostPort(sa.IP().String(), fmt.Sprintf("%d", sa.Port()))
		c, err := d.DialContext(ctx, network, addr)
		if err == nil {
			return c, *sa, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("connpool: endpoint has no usable address")
	}
	return nil, suckaddr.Suckaddr{}, lastErr
}
