package domain

import "time"

// Health status values reported by readiness probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// DependencyStatus is the outcome of probing one backing dependency.
type DependencyStatus struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// ReadinessReport aggregates dependency probes for /readyz.
type ReadinessReport struct {
	Status       string
	Dependencies map[string]DependencyStatus
	GeneratedAt  time.Time
}

// Ready reports whether every dependency answered.
func (r ReadinessReport) Ready() bool {
	return r.Status == HealthStatusOK
}
