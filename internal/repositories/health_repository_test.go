package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/orderflow/api/internal/domain"
)

func TestProbeHealthRepositoryCollectSuccess(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewProbeHealthRepository([]DependencyProbe{
		{Name: "postgres", Ping: func(ctx context.Context) error { return nil }},
		{Name: "redis", Ping: func(context.Context) error { return nil }},
	}, WithProbeClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !report.Ready() {
		t.Fatalf("expected ready report, got %s", report.Status)
	}
	if len(report.Dependencies) != 2 {
		t.Fatalf("expected 2 dependencies, got %d", len(report.Dependencies))
	}
	if report.Dependencies["redis"].CheckedAt != now {
		t.Fatalf("expected checkedAt %s, got %s", now, report.Dependencies["redis"].CheckedAt)
	}
}

func TestProbeHealthRepositoryCollectFailure(t *testing.T) {
	repo, err := NewProbeHealthRepository([]DependencyProbe{
		{Name: "firestore", Ping: func(context.Context) error { return errors.New("boom") }},
		{Name: "pubsub", Ping: func(context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if got := report.Dependencies["firestore"].Detail; got != "boom" {
		t.Fatalf("expected detail boom, got %q", got)
	}
}

func TestProbeHealthRepositoryCollectTimeout(t *testing.T) {
	repo, err := NewProbeHealthRepository([]DependencyProbe{{
		Name:    "kafka",
		Timeout: 5 * time.Millisecond,
		Ping: func(ctx context.Context) error {
			select {
			case <-time.After(200 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}})
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
	if report.Dependencies["kafka"].Detail != "timeout" {
		t.Fatalf("expected timeout detail, got %s", report.Dependencies["kafka"].Detail)
	}
}

func TestNewProbeHealthRepositoryValidates(t *testing.T) {
	if _, err := NewProbeHealthRepository(nil); err == nil {
		t.Fatal("expected error for empty probes")
	}
	if _, err := NewProbeHealthRepository([]DependencyProbe{{Name: "x"}}); err == nil {
		t.Fatal("expected error for missing ping")
	}
}

func TestStoreErrorClassification(t *testing.T) {
	err := NotFound("orders.get", "order missing")
	wrapped := errors.Join(errors.New("ctx"), err)
	if !IsNotFound(wrapped) {
		t.Fatal("expected not found classification")
	}
	if IsConflict(wrapped) || IsUnavailable(wrapped) {
		t.Fatal("unexpected classification")
	}
	if err.Error() != "orders.get: order missing" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
