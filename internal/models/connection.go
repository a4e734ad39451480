package models

import "time"

type ConnectionEventKind string

const (
	EventConnecting   ConnectionEventKind = "connecting"
	EventConnected    ConnectionEventKind = "connected"
	EventDegraded     ConnectionEventKind = "degraded"
	EventDisconnected ConnectionEventKind = "disconnected"
	EventReconnecting ConnectionEventKind = "reconnecting"
	EventFailed       ConnectionEventKind = "failed"
)

// ConnectionEvent is append-only: produced by the resilience manager, never
// mutated after creation.
type ConnectionEvent struct {
	Kind      ConnectionEventKind `json:"kind"`
	Timestamp time.Time           `json:"timestamp"`
	Detail    string              `json:"detail,omitempty"`
}

// RetryAttempt only exists for the duration of one reconnect cycle.
type RetryAttempt struct {
	AttemptNumber int           `json:"attempt_number"`
	Delay         time.Duration `json:"delay_ms"`
	ScheduledAt   time.Time     `json:"scheduled_at"`
}

type HealthMetrics struct {
	LastProbeAt         time.Time     `json:"last_probe_at"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	RoundTrip           time.Duration `json:"round_trip_ms"`
}
