// Package config loads CacheCore's runtime configuration from environment
// variables, in the same getenv/getenvInt style as the teacher's
// go/config/config.go.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable this module's components read at startup.
type Config struct {
	ProxyListenAddr   string
	AdminListenAddr   string
	BucketHashBuckets int

	PoolLocalErrorHolddown  time.Duration
	PoolRemoteErrorHolddown time.Duration
	PoolBackendIdleTimeout  time.Duration
	PoolPreferIPv6          bool

	ProbeTimeout        time.Duration
	ProbeInterval       time.Duration
	ProbeWindow         int
	ProbeThreshold      int
	ProbeExpectedStatus int
	ProbeWorkerPool     int
	ProbeURL            string
	ProbeProxyLevel     int

	LogLevel string
	LogFile  string
}

// NewFromEnv builds a Config from the process environment, falling back to
// spec.md's documented defaults for anything unset.
func NewFromEnv() *Config {
	c := &Config{}
	c.ProxyListenAddr = getenv("CACHECORE_PROXY_ADDR", ":8000")
	c.AdminListenAddr = getenv("CACHECORE_ADMIN_ADDR", ":8001")
	c.BucketHashBuckets = getenvInt("CACHECORE_BUCKET_COUNT", 1024)

	c.PoolLocalErrorHolddown = getenvDuration("CACHECORE_POOL_LOCAL_HOLDDOWN", 10*time.Second)
	c.PoolRemoteErrorHolddown = getenvDuration("CACHECORE_POOL_REMOTE_HOLDDOWN", 250*time.Millisecond)
	c.PoolBackendIdleTimeout = getenvDuration("CACHECORE_POOL_IDLE_TIMEOUT", 60*time.Second)
	c.PoolPreferIPv6 = getenvBool("CACHECORE_POOL_PREFER_IPV6", false)

	c.ProbeTimeout = getenvDuration("CACHECORE_PROBE_TIMEOUT", 2*time.Second)
	c.ProbeInterval = getenvDuration("CACHECORE_PROBE_INTERVAL", 5*time.Second)
	c.ProbeWindow = getenvInt("CACHECORE_PROBE_WINDOW", 8)
	c.ProbeThreshold = getenvInt("CACHECORE_PROBE_THRESHOLD", 3)
	c.ProbeExpectedStatus = getenvInt("CACHECORE_PROBE_EXPECT_STATUS", 200)
	c.ProbeWorkerPool = getenvInt("CACHECORE_PROBE_WORKERS", 8)
	c.ProbeURL = getenv("CACHECORE_PROBE_URL", "/")
	c.ProbeProxyLevel = getenvInt("CACHECORE_PROBE_PROXY_LEVEL", 0)

	c.LogLevel = getenv("CACHECORE_LOG_LEVEL", "INFO")
	c.LogFile = getenv("CACHECORE_LOG_FILE", "logs/cachecore.log")

	return c
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
