package domain

import "time"

// HealthStatus summarises the outcome of a dependency probe.
type HealthStatus string

const (
	// HealthStatusOK means the dependency answered within its deadline.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded means the dependency answered with an error.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError means the dependency timed out or was unreachable.
	HealthStatusError HealthStatus = "error"
)

// HealthCheck records a single dependency probe result.
type HealthCheck struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for the readiness endpoint.
type HealthReport struct {
	Status      HealthStatus
	Checks      map[string]HealthCheck
	GeneratedAt time.Time
}
