package firestore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

func TestUnionHistoryKeepsIdenticalEntriesDistinct(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.FixedZone("JST", 9*60*60))
	event := domain.OrderHistoryEvent{Code: "status.shipped", Label: "Shipped", At: at}

	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("h-%d", seq)
	}
	first := unionHistory([]domain.OrderHistoryEvent{event}, nextID)
	second := unionHistory([]domain.OrderHistoryEvent{event}, nextID)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	require.NotEqual(t, first[0], second[0])

	doc, ok := first[0].(historyDocument)
	require.True(t, ok)
	require.Equal(t, "h-1", doc.ID)
	require.Equal(t, "status.shipped", doc.Code)
	require.True(t, doc.At.Equal(at))
	require.Equal(t, time.UTC, doc.At.Location())
}

func TestUnionHistoryEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, unionHistory(nil, func() string { return "unused" }))
}
