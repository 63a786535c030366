package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

func TestAuditLogRowRoundTripsCollections(t *testing.T) {
	t.Parallel()

	entry := domain.AuditLogEntry{
		ID:            "aud_01",
		Actor:         "/users/admin",
		ActorType:     "staff",
		Action:        "orders.bulk.cancel",
		Scope:         "selected",
		TargetRef:     "/orders",
		TargetIDs:     []string{"o-1", "o-2"},
		Params:        map[string]any{"mode": "percent"},
		ResolvedCount: 2,
		AffectedCount: 1,
		Severity:      "warn",
		CreatedAt:     time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
	}

	row, err := newAuditLogRow(entry)
	require.NoError(t, err)
	require.Equal(t, `["o-1","o-2"]`, row.TargetIDs)
	require.Empty(t, row.Filters)

	decoded, err := row.toDomain()
	require.NoError(t, err)
	require.Equal(t, entry.TargetIDs, decoded.TargetIDs)
	require.Equal(t, "percent", decoded.Params["mode"])
	require.Nil(t, decoded.Filters)
	require.Equal(t, "order_audit_logs", auditLogRow{}.TableName())
}
