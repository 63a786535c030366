package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

func TestDependencyHealthRepositoryCollectSuccess(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "pubsub", Check: func(context.Context) error { return nil }},
	}, WithDependencyClock(func() time.Time { return now }))
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.HealthStatusOK, report.Status)
	require.Len(t, report.Checks, 2)
	for name, check := range report.Checks {
		require.Equal(t, domain.HealthStatusOK, check.Status, name)
		require.Equal(t, now, check.CheckedAt, name)
	}
	require.Equal(t, now, report.GeneratedAt)
}

func TestDependencyHealthRepositoryCollectDegraded(t *testing.T) {
	t.Parallel()

	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return errors.New("boom") }},
		{Name: "pubsub", Check: func(context.Context) error { return nil }},
	})
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.HealthStatusDegraded, report.Status)
	require.Equal(t, "boom", report.Checks["firestore"].Detail)
	require.Equal(t, domain.HealthStatusOK, report.Checks["pubsub"].Status)
}

func TestDependencyHealthRepositoryCollectTimeout(t *testing.T) {
	t.Parallel()

	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{
			Name:    "postgres",
			Timeout: 5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	})
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.HealthStatusError, report.Status)
	require.Equal(t, "timeout", report.Checks["postgres"].Detail)
}

func TestNewDependencyHealthRepositoryValidatesChecks(t *testing.T) {
	t.Parallel()

	_, err := NewDependencyHealthRepository(nil)
	require.Error(t, err)

	_, err = NewDependencyHealthRepository([]DependencyCheck{{Name: "firestore"}})
	require.Error(t, err)

	_, err = NewDependencyHealthRepository([]DependencyCheck{{Check: func(context.Context) error { return nil }}})
	require.Error(t, err)

	ok := func(context.Context) error { return nil }
	_, err = NewDependencyHealthRepository([]DependencyCheck{{Name: "pubsub", Check: ok}, {Name: " pubsub ", Check: ok}})
	require.ErrorContains(t, err, "registered twice")
}

func TestDependencyHealthRepositoryOptionalChecksOnlyDegrade(t *testing.T) {
	t.Parallel()

	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{
			Name:     "storage",
			Optional: true,
			Timeout:  5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	})
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.HealthStatusDegraded, report.Status)
	require.Equal(t, domain.HealthStatusDegraded, report.Checks["storage"].Status)
	require.Equal(t, "timeout", report.Checks["storage"].Detail)
	require.Equal(t, domain.HealthStatusOK, report.Checks["firestore"].Status)
}
