package domain

import "time"

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// DependencyHealth describes the outcome of one dependency probe.
type DependencyHealth struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency status for readiness checks.
type HealthReport struct {
	Status      string
	Checks      map[string]DependencyHealth
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
