// Package loadbalancer is the demo proxy's director: spec.md §4.4 keeps
// backend selection policy entirely external to the core ("a director
// chooses among Backends for a request; the core has no say in policy"),
// so this package lives under cmd/proxy, not internal/, and only ever
// reads backend.Registry's published Healthy()/Stats() surface. Grounded
// on the teacher's pkg/loadbalancer strategy family (random.go,
// power2_leastrif.go), generalized to internal/backend.Backend instead of
// a flat URL list.
package loadbalancer

import "github.com/Pranshu258/cachecore/internal/backend"

// Director defines the backend-selection policy the core is opaque to.
type Director interface {
	Pick() *backend.Backend
}
