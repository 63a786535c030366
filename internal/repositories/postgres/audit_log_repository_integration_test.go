//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

func TestAuditLogRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_AUDIT_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_AUDIT_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	require.NoError(t, repo.Ping(ctx))

	actor := "/users/it-" + ulid.Make().String()
	for _, action := range []string{"orders.bulk.pack", "orders.bulk.ship"} {
		require.NoError(t, repo.Append(ctx, domain.AuditLogEntry{
			ID:        "aud_" + ulid.Make().String(),
			Actor:     actor,
			ActorType: "staff",
			Action:    action,
			Severity:  "info",
			CreatedAt: time.Now().UTC(),
		}))
	}

	page, err := repo.List(ctx, repositories.AuditLogFilter{Actor: actor, Action: "orders.bulk.ship"})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalItems)
	require.Len(t, page.Items, 1)
	require.Equal(t, "orders.bulk.ship", page.Items[0].Action)
}
