package handlers

import (
	"net/http"
	"time"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/platform/httpx"
	"github.com/orderflow/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService wires the service that probes backing dependencies for /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthBuildInfo sets the build metadata reported by /healthz when no system service is wired.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	if h.system != nil {
		h.build = h.system.Build()
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type healthzResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

type readyzResponse struct {
	Status       string                       `json:"status"`
	Version      string                       `json:"version,omitempty"`
	CommitSHA    string                       `json:"commitSha,omitempty"`
	Environment  string                       `json:"environment,omitempty"`
	Uptime       string                       `json:"uptime"`
	GeneratedAt  string                       `json:"generatedAt"`
	Dependencies map[string]dependencyPayload `json:"dependencies"`
}

type dependencyPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, healthzResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   formatTime(now),
	})
}

// Readyz probes dependencies and answers 503 unless all of them are healthy.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("readiness_failed", "readiness probe failed", http.StatusServiceUnavailable))
		return
	}

	payload := readyzResponse{
		Status:       report.Status,
		Version:      report.Version,
		CommitSHA:    report.CommitSHA,
		Environment:  report.Environment,
		Uptime:       report.Uptime.Round(time.Second).String(),
		GeneratedAt:  formatTime(report.GeneratedAt),
		Dependencies: make(map[string]dependencyPayload, len(report.Dependencies)),
	}
	for name, dep := range report.Dependencies {
		payload.Dependencies[name] = dependencyPayload{
			Status:    dep.Status,
			Detail:    dep.Detail,
			LatencyMS: dep.Latency.Milliseconds(),
			CheckedAt: formatTime(dep.CheckedAt),
		}
	}

	status := http.StatusOK
	if !report.Ready() {
		status = http.StatusServiceUnavailable
	}
	setNoStoreHeaders(w)
	writeJSONResponse(w, status, payload)
}
