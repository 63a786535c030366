package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

type countingHealth struct {
	report domain.HealthReport
	err    error
	calls  int
}

func (c *countingHealth) Collect(context.Context) (domain.HealthReport, error) {
	c.calls++
	return c.report, c.err
}

func TestSystemService_DecoratesReportWithBuildInfo(t *testing.T) {
	started := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Second)
	health := &countingHealth{report: domain.HealthReport{
		Checks: map[string]domain.DependencyHealth{"orders": {Status: domain.HealthStatusOK}},
	}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: health,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{Version: "2.0.1", CommitSHA: "f00d", Environment: "staging", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusOK || report.Version != "2.0.1" || report.Environment != "staging" {
		t.Fatalf("unexpected report %#v", report)
	}
	if report.Uptime != 90*time.Second || !report.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected timing uptime=%s generatedAt=%s", report.Uptime, report.GeneratedAt)
	}
}

func TestSystemService_VersionFallsBackToCommit(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &countingHealth{},
		Build:            BuildInfo{CommitSHA: "f00d"},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Version != "f00d" || report.Checks == nil {
		t.Fatalf("unexpected report %#v", report)
	}
}

func TestSystemService_OverallStatus(t *testing.T) {
	cases := map[string]struct {
		checks map[string]domain.DependencyHealth
		want   string
	}{
		"degraded": {
			checks: map[string]domain.DependencyHealth{
				"postgres": {Status: domain.HealthStatusDegraded},
				"orders":   {Status: domain.HealthStatusOK},
			},
			want: domain.HealthStatusDegraded,
		},
		"error wins": {
			checks: map[string]domain.DependencyHealth{
				"postgres": {Status: domain.HealthStatusDegraded},
				"pubsub":   {Status: domain.HealthStatusError},
			},
			want: domain.HealthStatusError,
		},
		"empty": {want: domain.HealthStatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, err := NewSystemService(SystemServiceDeps{
				HealthRepository: &countingHealth{report: domain.HealthReport{Checks: tc.checks}},
			})
			if err != nil {
				t.Fatalf("new system service: %v", err)
			}
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("health report: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, report.Status)
			}
		})
	}
}

func TestSystemService_CachesReportWithinTTL(t *testing.T) {
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	health := &countingHealth{}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: health,
		Clock:            func() time.Time { return now },
		ReportTTL:        2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	for range 3 {
		if _, err := svc.HealthReport(context.Background()); err != nil {
			t.Fatalf("health report: %v", err)
		}
	}
	if health.calls != 1 {
		t.Fatalf("expected one collection within ttl, got %d", health.calls)
	}

	now = now.Add(3 * time.Second)
	if _, err := svc.HealthReport(context.Background()); err != nil {
		t.Fatalf("health report: %v", err)
	}
	if health.calls != 2 {
		t.Fatalf("expected a fresh collection after ttl, got %d", health.calls)
	}
}

func TestSystemService_ErrorsAreNotCached(t *testing.T) {
	boom := errors.New("collect failed")
	health := &countingHealth{err: boom}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: health, ReportTTL: time.Minute})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	for range 2 {
		if _, err := svc.HealthReport(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("expected %v, got %v", boom, err)
		}
	}
	if health.calls != 2 {
		t.Fatalf("expected failed collections to be retried, got %d", health.calls)
	}
}

func TestNewSystemService_RequiresHealthRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error without health repository")
	}
}
