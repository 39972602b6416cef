package loadbalancer

import (
	"math/rand"

	"github.com/Pranshu258/cachecore/internal/backend"
)

// PowerOfTwoLeastRIF samples two healthy backends and picks the one with
// fewer in-flight requests, ported from the teacher's
// pkg/loadbalancer/power2_leastrif.go onto backend.Backend.Stats().
type PowerOfTwoLeastRIF struct {
	Registry *backend.Registry
}

func NewPowerOfTwoLeastRIF(reg *backend.Registry) *PowerOfTwoLeastRIF {
	return &PowerOfTwoLeastRIF{Registry: reg}
}

func (d *PowerOfTwoLeastRIF) Pick() *backend.Backend {
	healthy := d.Registry.Healthy()
	if len(healthy) == 0 {
		return nil
	}
	if len(healthy) == 1 {
		return healthy[0]
	}
	i1 := rand.Intn(len(healthy))
	i2 := rand.Intn(len(healthy))
	for i2 == i1 {
		i2 = rand.Intn(len(healthy))
	}
	b1, b2 := healthy[i1], healthy[i2]
	if b1.Stats().InFlightRequests <= b2.Stats().InFlightRequests {
		return b1
	}
	return b2
}
