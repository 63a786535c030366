package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

func seedOrders() []domain.Order {
	base := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	return []domain.Order{
		{ID: "o-1", OrderNumber: "ORD-1001", Status: domain.OrderStatusProcessing, Amounts: domain.OrderAmounts{Subtotal: decimal.NewFromInt(100), Total: decimal.NewFromInt(100)}, Contact: &domain.OrderContact{Name: "Jane Doe"}, CreatedAt: base},
		{ID: "o-2", OrderNumber: "ORD-1002", Status: domain.OrderStatusPacked, Amounts: domain.OrderAmounts{Subtotal: decimal.NewFromInt(50), Total: decimal.NewFromInt(50)}, CreatedAt: base.Add(time.Hour)},
		{ID: "o-3", OrderNumber: "ORD-1003", Status: domain.OrderStatusProcessing, Amounts: domain.OrderAmounts{Subtotal: decimal.NewFromInt(50), Total: decimal.NewFromInt(50)}, CreatedAt: base.Add(2 * time.Hour)},
	}
}

func TestOrderRepositoryListFiltersSortsAndPages(t *testing.T) {
	t.Parallel()

	repo := NewOrderRepository(seedOrders()...)
	ctx := context.Background()

	page, err := repo.List(ctx, repositories.OrderListFilter{PageSize: 2, Page: 1})
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalItems)
	require.True(t, page.HasNext)
	require.Equal(t, []string{"o-3", "o-2"}, ids(page.Items))

	page, err = repo.List(ctx, repositories.OrderListFilter{PageSize: 2, Page: 2})
	require.NoError(t, err)
	require.False(t, page.HasNext)
	require.Equal(t, []string{"o-1"}, ids(page.Items))

	byTotal, err := repo.ListIDs(ctx, repositories.OrderListFilter{
		OrderFilter: repositories.OrderFilter{Sort: repositories.OrderSort{Field: repositories.OrderSortTotal, Order: domain.SortAsc}},
		PageSize:    10,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"o-2", "o-3", "o-1"}, byTotal)

	processing, err := repo.ListIDs(ctx, repositories.OrderListFilter{
		OrderFilter: repositories.OrderFilter{Statuses: []domain.OrderStatus{domain.OrderStatusProcessing}},
		PageSize:    10,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"o-3", "o-1"}, processing)

	searched, err := repo.ListIDs(ctx, repositories.OrderListFilter{
		OrderFilter: repositories.OrderFilter{Search: "JANE"},
		PageSize:    10,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"o-1"}, searched)
}

func TestOrderRepositoryUpdateOneChecksVersion(t *testing.T) {
	t.Parallel()

	repo := NewOrderRepository(seedOrders()...)
	ctx := context.Background()
	packed := domain.OrderStatusPacked
	mutate := func(order domain.Order) (repositories.OrderMutation, bool, error) {
		return repositories.OrderMutation{OrderID: order.ID, Status: &packed}, true, nil
	}

	stale := int64(4)
	_, err := repo.UpdateOne(ctx, "o-1", &stale, mutate)
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsConflict())
	require.ErrorIs(t, err, repositories.ErrVersionMismatch)

	current := int64(0)
	updated, err := repo.UpdateOne(ctx, "o-1", &current, mutate)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPacked, updated.Status)
	require.Equal(t, int64(1), updated.Version)

	_, err = repo.UpdateOne(ctx, "missing", nil, mutate)
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsNotFound())
}

func TestOrderRepositoryUpdateManyReportsPartialFailures(t *testing.T) {
	t.Parallel()

	repo := NewOrderRepository(seedOrders()...)
	repo.FailWrites(func(orderID string) error {
		if orderID == "o-3" {
			return errors.New("write rejected")
		}
		return nil
	})
	packed := domain.OrderStatusPacked

	result, err := repo.UpdateMany(context.Background(), repositories.OrderTarget{IDs: []string{"o-1", "o-2", "o-3", "missing"}},
		func(order domain.Order) (repositories.OrderMutation, bool, error) {
			if order.Status == domain.OrderStatusPacked {
				return repositories.OrderMutation{}, false, nil
			}
			return repositories.OrderMutation{OrderID: order.ID, Status: &packed}, true, nil
		})
	require.NoError(t, err)
	require.Equal(t, 4, result.Matched)
	require.Equal(t, 1, result.Applied)
	require.Equal(t, 1, result.Skipped)
	require.Len(t, result.Failures, 2)

	order, err := repo.FindByID(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPacked, order.Status)
}

func TestOrderRepositoryDeleteManyByFilter(t *testing.T) {
	t.Parallel()

	repo := NewOrderRepository(seedOrders()...)
	filter := repositories.OrderFilter{Statuses: []domain.OrderStatus{domain.OrderStatusProcessing}}

	visited, err := repo.Scan(context.Background(), repositories.OrderTarget{Filter: &filter}, func(domain.Order) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 2, visited)

	result, err := repo.DeleteMany(context.Background(), repositories.OrderTarget{Filter: &filter})
	require.NoError(t, err)
	require.Equal(t, 2, result.Applied)
	require.Equal(t, 1, repo.Len())
}

func ids(orders []domain.Order) []string {
	out := make([]string, 0, len(orders))
	for _, order := range orders {
		out = append(out, order.ID)
	}
	return out
}
