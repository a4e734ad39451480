package config

import (
	"os"
	"strconv"
	"time"

	"github.com/yoockh/vtutor/internal/realtime"
)

// Tuning groups the runtime knobs that operators adjust per environment.
// Every field has a sane default; env vars override.
type Tuning struct {
	Resilience     realtime.Config
	BufferCapacity int
	NumWorkers     int
}

func LoadTuning() Tuning {
	backoff := realtime.DefaultBackoff()
	backoff.Base = envDuration("RETRY_BASE_DELAY", backoff.Base)
	backoff.Max = envDuration("RETRY_MAX_DELAY", backoff.Max)
	backoff.Multiplier = envFloat("RETRY_MULTIPLIER", backoff.Multiplier)
	backoff.MaxAttempts = envInt("RETRY_MAX_ATTEMPTS", backoff.MaxAttempts)

	return Tuning{
		Resilience: realtime.Config{
			ProbeInterval:    envDuration("PROBE_INTERVAL", 5*time.Second),
			ProbeTimeout:     envDuration("PROBE_TIMEOUT", 5*time.Second),
			ConnectTimeout:   envDuration("CONNECT_TIMEOUT", 10*time.Second),
			FailureThreshold: envInt("PROBE_FAILURE_THRESHOLD", 3),
			DegradedGrace:    envDuration("DEGRADED_GRACE", 15*time.Second),
			Backoff:          backoff,
		},
		BufferCapacity: envInt("DISPLAY_BUFFER_CAPACITY", 500),
		NumWorkers:     envInt("UTTERANCE_WORKERS", 5),
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}
