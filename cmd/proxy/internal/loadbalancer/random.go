package loadbalancer

import (
	"math/rand"

	"github.com/Pranshu258/cachecore/internal/backend"
)

// RandomDirector picks uniformly among healthy backends.
type RandomDirector struct {
	Registry *backend.Registry
}

func NewRandomDirector(reg *backend.Registry) *RandomDirector {
	return &RandomDirector{Registry: reg}
}

func (d *RandomDirector) Pick() *backend.Backend {
	healthy := d.Registry.Healthy()
	if len(healthy) == 0 {
		return nil
	}
	return healthy[rand.Intn(len(healthy))]
}
