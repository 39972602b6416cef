// Command backend is a demo origin server: it simulates variable latency
// under load and answers both normal requests and cachecore's probe
// requests with a plain 200 OK, so a proxy instance can health-check and
// proxy to it without any origin-side registration step (health is
// derived by active probing from the core, not pushed by the backend).
// Ported from the teacher's cmd/backend/main.go load-simulation logic,
// with the heartbeat-to-proxy goroutine dropped since nothing here needs
// to register itself anymore.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	host := os.Getenv("HOST")
	if host == "" {
		host = "localhost"
	}
	url := fmt.Sprintf("http://%s:%s", host, port)
	instanceID := uuid.NewString()

	metricsManager := NewMetricsManager()

	const (
		baseLatencyMs   = 50.0
		latencyStddevMs = 10.0
		latencyPerRIF   = 1.0
	)
	jitterMultiplier := 1.0 + rand.Float64()*2.0

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metricsManager.IncInFlight()
		rif := metricsManager.InFlight()
		defer func() {
			d := time.Since(start)
			metricsManager.DecInFlight()
			metricsManager.AddLatency(d)
		}()

		baseLatency := math.Max(0, rand.NormFloat64()*latencyStddevMs+baseLatencyMs)
		rifJitter := rand.Float64() * float64(rif) * latencyPerRIF
		totalLatencyMs := jitterMultiplier * (baseLatency + rifJitter)
		time.Sleep(time.Duration(totalLatencyMs * float64(time.Millisecond)))

		w.Header().Set("X-Backend-Url", url)
		w.Header().Set("X-Backend-Instance", instanceID)
		fmt.Fprintf(w, "hello from %s (instance=%s, rif=%d, latency=%.3fms)\n", url, instanceID, rif, totalLatencyMs)
	})

	http.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		avg := metricsManager.AvgLatencyLast5Min()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"in_flight":       metricsManager.InFlight(),
			"avg_latency_sec": avg.Seconds(),
			"instance":        instanceID,
		})
	})

	log.Printf("backend %s listening at %s", instanceID, url)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
