// Command proxy is a thin demo binary wiring CacheCore's core primitives
// (BucketHash, ConnPool, ProbeEngine) into a working reverse proxy, in the
// same spirit as the teacher's cmd/proxy/main.go: backend list from env,
// a pluggable director, a heartbeat endpoint, and now a health-probed,
// connection-pooled, fingerprint-cached request path plus a gorilla/mux
// admin surface.
package main

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Pranshu258/cachecore/cmd/proxy/internal/loadbalancer"
	"github.com/Pranshu258/cachecore/cmd/proxy/internal/transport"
	"github.com/Pranshu258/cachecore/internal/backend"
	"github.com/Pranshu258/cachecore/internal/buckethash"
	"github.com/Pranshu258/cachecore/internal/config"
	"github.com/Pranshu258/cachecore/internal/connpool"
	"github.com/Pranshu258/cachecore/internal/logging"
	"github.com/Pranshu258/cachecore/internal/metrics"
	"github.com/Pranshu258/cachecore/internal/probe"
	corert "github.com/Pranshu258/cachecore/internal/runtime"
	"github.com/Pranshu258/cachecore/internal/suckaddr"
)

// cachedResponse is the opaque payload BucketHash's ObjHead carries for
// this demo; the core never interprets it.
type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

func main() {
	cfg := config.NewFromEnv()
	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("logging setup: %v", err)
	}
	metrics.Init()

	instanceID := uuid.NewString()
	log.Printf("cachecore proxy starting, instance=%s", instanceID)

	backends := backend.NewRegistry()
	rt := corert.New(corert.Config{
		Buckets: cfg.BucketHashBuckets,
		PoolConfig: connpool.Config{
			LocalErrorHolddown:  cfg.PoolLocalErrorHolddown,
			RemoteErrorHolddown: cfg.PoolRemoteErrorHolddown,
			BackendIdleTimeout:  cfg.PoolBackendIdleTimeout,
			PreferIPv6:          cfg.PoolPreferIPv6,
		},
		Dialer:          connpool.NewNetDialer(),
		ProbeWorkers:    cfg.ProbeWorkerPool,
		ProbeRatePerSec: 50,
		ProbeBurst:      50,
	})
	defer rt.Teardown()

	pools := rt.Pools
	engine := rt.Probe
	objects := rt.Objects

	for _, spec := range parseBackendSpecs(os.Getenv("CACHECORE_BACKENDS")) {
		registerBackend(spec, backends, pools, engine, cfg)
	}

	director := loadbalancer.NewPowerOfTwoLeastRIF(backends)

	mainMux := http.NewServeMux()
	mainMux.HandleFunc("/", proxyHandler(director, objects))

	adminRouter := mux.NewRouter()
	adminRouter.HandleFunc("/healthz", healthzHandler(instanceID)).Methods(http.MethodGet)
	adminRouter.HandleFunc("/backends", backendsHandler(backends)).Methods(http.MethodGet)
	adminRouter.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	go func() {
		log.Printf("admin surface listening on %s", cfg.AdminListenAddr)
		if err := http.ListenAndServe(cfg.AdminListenAddr, adminRouter); err != nil {
			log.Fatalf("admin server failed: %v", err)
		}
	}()

	log.Printf("proxy listening on %s", cfg.ProxyListenAddr)
	if err := http.ListenAndServe(cfg.ProxyListenAddr, mainMux); err != nil {
		log.Fatalf("proxy server failed: %v", err)
	}
}

type backendSpec struct {
	name string
	host string
	port uint16
}

// parseBackendSpecs reads "name=host:port,name=host:port" from env,
// falling back to three local demo backends.
func parseBackendSpecs(raw string) []backendSpec {
	if raw == "" {
		return []backendSpec{
			{name: "b1", host: "127.0.0.1", port: 8081},
			{name: "b2", host: "127.0.0.1", port: 8082},
			{name: "b3", host: "127.0.0.1", port: 8083},
		}
	}
	var out []backendSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		nameHost := strings.SplitN(part, "=", 2)
		if len(nameHost) != 2 {
			continue
		}
		host, portStr, err := net.SplitHostPort(nameHost[1])
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		out = append(out, backendSpec{name: nameHost[0], host: host, port: uint16(port)})
	}
	return out
}

func registerBackend(spec backendSpec, backends *backend.Registry, pools *connpool.Registry, engine *probe.Engine, cfg *config.Config) {
	ip := net.ParseIP(spec.host)
	if ip == nil {
		log.Printf("skipping backend %s: invalid host %q", spec.name, spec.host)
		return
	}
	sa, err := suckaddr.FromIP(ip, spec.port)
	if err != nil {
		log.Printf("skipping backend %s: %v", spec.name, err)
		return
	}
	ep, err := suckaddr.NewIPEndpoint(&sa, nil, nil)
	if err != nil {
		log.Printf("skipping backend %s: %v", spec.name, err)
		return
	}
	pool := pools.Ref(spec.name, ep)
	b := backend.New(spec.name, spec.host, pool, cfg.ProbeProxyLevel)
	backends.Register(b)

	target := probe.NewTarget(pool, probe.Spec{
		Timeout:        cfg.ProbeTimeout,
		Interval:       cfg.ProbeInterval,
		Window:         cfg.ProbeWindow,
		Threshold:      cfg.ProbeThreshold,
		ExpectedStatus: cfg.ProbeExpectedStatus,
		URL:            cfg.ProbeURL,
		ProxyLevel:     cfg.ProbeProxyLevel,
	}, b)
	b.BindTarget(target)
	engine.Enable(target)
}

func proxyHandler(director loadbalancer.Director, objects *buckethash.BucketHash) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fp := []byte(r.Method + " " + r.URL.RequestURI())

		if oh, ok := objects.Lookup(fp); ok {
			defer objects.Deref(oh)
			metrics.ObserveBucketLookup(true)
			writeCached(w, oh.Payload.(*cachedResponse))
			return
		}
		metrics.ObserveBucketLookup(false)

		b := director.Pick()
		if b == nil {
			http.Error(w, "no healthy backends", http.StatusServiceUnavailable)
			return
		}

		b.RecordRequestStart()
		start := time.Now()
		rt := transport.New(b.Pool(), 5*time.Second)
		resp, err := rt.RoundTrip(r)
		b.RecordRequestEnd(time.Since(start))
		if err != nil {
			log.Printf("proxy: backend %s error: %v", b.Name(), err)
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}

		cached := &cachedResponse{status: resp.StatusCode, header: resp.Header.Clone(), body: body}
		if resp.StatusCode == http.StatusOK && r.Method == http.MethodGet {
			// The reference taken here is kept, so the entry stays in the
			// table and later lookups of fp hit it.
			objects.LookupOrInsert(fp, cached)
		}
		writeCached(w, cached)
	}
}

func writeCached(w http.ResponseWriter, c *cachedResponse) {
	for k, vs := range c.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(c.status)
	w.Write(c.body)
}

func healthzHandler(instanceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "instance": instanceID})
	}
}

func backendsHandler(backends *backend.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type row struct {
			Name    string  `json:"name"`
			Healthy bool    `json:"healthy"`
			InFlt   int64   `json:"in_flight"`
			AvgLat  float64 `json:"avg_latency_sec"`
		}
		var out []row
		for _, b := range backends.List() {
			stats := b.Stats()
			out = append(out, row{Name: b.Name(), Healthy: b.Healthy(), InFlt: stats.InFlightRequests, AvgLat: stats.AvgLatencySec})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}
