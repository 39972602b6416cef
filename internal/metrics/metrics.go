// Package metrics publishes CacheCore's runtime counters through
// prometheus/client_golang, in the same package-level-vars-plus-Init style
// as the teacher's src/metrics.go.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bucketLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachecore_bucket_lookups_total",
			Help: "Total number of BucketHash lookups, by hit/miss",
		},
		[]string{"result"},
	)

	poolOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachecore_pool_open_total",
			Help: "Total number of outbound connection opens, by outcome",
		},
		[]string{"pool", "outcome"},
	)

	poolConnGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cachecore_pool_connections",
			Help: "Current pool connection counts by state",
		},
		[]string{"pool", "state"},
	)

	poolHolddownGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cachecore_pool_holddown_active",
			Help: "1 while a pool is in hold-down, 0 otherwise",
		},
		[]string{"pool"},
	)

	backendSickGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cachecore_backend_sick",
			Help: "1 if the backend's last probe verdict was sick, 0 if healthy",
		},
		[]string{"backend"},
	)

	probeLatencyGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cachecore_probe_latency_seconds",
			Help: "EWMA latency estimate of the most recent successful probes",
		},
		[]string{"backend"},
	)
)

// Init registers every collector with the default Prometheus registry. Call
// once at process startup.
func Init() {
	prometheus.MustRegister(bucketLookups)
	prometheus.MustRegister(poolOpenTotal)
	prometheus.MustRegister(poolConnGauge)
	prometheus.MustRegister(poolHolddownGauge)
	prometheus.MustRegister(backendSickGauge)
	prometheus.MustRegister(probeLatencyGauge)
}

// Handler returns the HTTP handler admin servers should mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveBucketLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	bucketLookups.WithLabelValues(result).Inc()
}

func ObservePoolOpen(pool string, ok bool) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	poolOpenTotal.WithLabelValues(pool, outcome).Inc()
}

func SetPoolConnGauge(pool, state string, v float64) {
	poolConnGauge.WithLabelValues(pool, state).Set(v)
}

func SetPoolHolddown(pool string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	poolHolddownGauge.WithLabelValues(pool).Set(v)
}

func SetBackendSick(backend string, sick bool) {
	v := 0.0
	if sick {
		v = 1.0
	}
	backendSickGauge.WithLabelValues(backend).Set(v)
}

func SetProbeLatency(backend string, seconds float64) {
	probeLatencyGauge.WithLabelValues(backend).Set(seconds)
}
