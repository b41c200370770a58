package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemHealthReport is the readiness report enriched with build metadata.
type SystemHealthReport struct {
	domain.ReadinessReport
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
}

// SystemService reports process liveness and dependency readiness.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	Build() BuildInfo
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	healthRepo repositories.HealthRepository
	clock      func() time.Time
	build      BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service backing /healthz and /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	build.Environment = strings.TrimSpace(build.Environment)

	return &systemService{
		healthRepo: deps.HealthRepository,
		clock: func() time.Time {
			return clock().UTC()
		},
		build: build,
	}, nil
}

func (s *systemService) Build() BuildInfo {
	return s.build
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if report.Dependencies == nil {
		report.Dependencies = map[string]domain.DependencyStatus{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = deriveStatus(report.Dependencies)
	}

	return SystemHealthReport{
		ReadinessReport: report,
		Version:         s.build.Version,
		CommitSHA:       s.build.CommitSHA,
		Environment:     s.build.Environment,
		Uptime:          now.Sub(s.build.StartedAt),
	}, nil
}

func deriveStatus(deps map[string]domain.DependencyStatus) string {
	status := domain.HealthStatusOK
	for _, dep := range deps {
		switch dep.Status {
		case domain.HealthStatusError:
			return domain.HealthStatusError
		case domain.HealthStatusDegraded:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
