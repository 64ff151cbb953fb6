package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/stylehive/api/internal/domain"
)

type fakeHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (f *fakeHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return f.report, f.err
}

func TestHealthFillsBuildMetadata(t *testing.T) {
	started := testNow.Add(-90 * time.Minute)
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &fakeHealthRepository{report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
			},
		}},
		Clock: func() time.Time { return testNow },
		Build: BuildInfo{
			Version:     "1.4.0",
			CommitSHA:   "abc1234",
			Environment: "staging",
			StartedAt:   started,
		},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "abc1234" || report.Environment != "staging" {
		t.Fatalf("build metadata = %+v", report)
	}
	if report.Uptime != 90*time.Minute {
		t.Fatalf("Uptime = %v, want 90m", report.Uptime)
	}
	if !report.GeneratedAt.Equal(testNow) {
		t.Fatalf("GeneratedAt = %v, want %v", report.GeneratedAt, testNow)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("Status = %q, want ok", report.Status)
	}
}

func TestHealthKeepsRepositoryProvidedValues(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &fakeHealthRepository{report: domain.SystemHealthReport{
			Status:  domain.HealthStatusDegraded,
			Version: "from-repo",
			Uptime:  time.Minute,
		}},
		Clock: func() time.Time { return testNow },
		Build: BuildInfo{Version: "ignored", StartedAt: testNow.Add(-time.Hour)},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Version != "from-repo" {
		t.Fatalf("Version = %q, want repository value kept", report.Version)
	}
	if report.Status != domain.HealthStatusDegraded || report.Uptime != time.Minute {
		t.Fatalf("report = %+v", report)
	}
}

func TestHealthDerivesStatusFromChecks(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &fakeHealthRepository{report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
				"pubsub":    {Status: domain.HealthStatusError},
			},
		}},
		Clock: func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("Status = %q, want error", report.Status)
	}
}

func TestHealthPropagatesCollectorFailure(t *testing.T) {
	collectErr := errors.New("firestore unreachable")
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &fakeHealthRepository{err: collectErr},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	if _, err := svc.Health(context.Background()); !errors.Is(err, collectErr) {
		t.Fatalf("Health = %v, want collector failure", err)
	}
}
