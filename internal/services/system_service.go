package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// BuildInfo is the release metadata reported by the probes.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires the readiness service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	// ReportTTL reuses a collected report for this long. Zero collects on every call.
	ReportTTL time.Duration
}

type systemService struct {
	health repositories.HealthRepository
	now    func() time.Time
	build  BuildInfo
	ttl    time.Duration

	group    singleflight.Group
	mu       sync.Mutex
	cached   domain.HealthReport
	cachedAt time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service behind /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		health: deps.HealthRepository,
		now:    func() time.Time { return clock().UTC() },
		build:  deps.Build,
		ttl:    deps.ReportTTL,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (domain.HealthReport, error) {
	if ctx == nil {
		return domain.HealthReport{}, errors.New("system service: context is required")
	}
	if report, ok := s.fresh(); ok {
		return report, nil
	}

	// Concurrent probes share one collection.
	v, err, _ := s.group.Do("report", func() (any, error) {
		report, err := s.health.Collect(ctx)
		if err != nil {
			return domain.HealthReport{}, err
		}
		report = s.decorate(report)
		if s.ttl > 0 {
			s.mu.Lock()
			s.cached, s.cachedAt = report, s.now()
			s.mu.Unlock()
		}
		return report, nil
	})
	if err != nil {
		return domain.HealthReport{}, err
	}
	return v.(domain.HealthReport), nil
}

func (s *systemService) fresh() (domain.HealthReport, bool) {
	if s.ttl <= 0 {
		return domain.HealthReport{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedAt.IsZero() || s.now().Sub(s.cachedAt) >= s.ttl {
		return domain.HealthReport{}, false
	}
	return s.cached, true
}

func (s *systemService) decorate(report domain.HealthReport) domain.HealthReport {
	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if strings.TrimSpace(report.Version) == "" {
		report.Version = s.build.Version
		if strings.TrimSpace(report.Version) == "" {
			report.Version = s.build.CommitSHA
		}
	}
	if strings.TrimSpace(report.Environment) == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.DependencyHealth{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = overallStatus(report.Checks)
	}
	return report
}

// overallStatus is error if any check errored, degraded if any is neither ok nor error.
func overallStatus(checks map[string]domain.DependencyHealth) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
