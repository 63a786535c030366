package repositories

import (
	"strings"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/textutil"
)

// DefaultOrderSort is applied when a listing does not name a sort.
var DefaultOrderSort = OrderSort{Field: OrderSortCreatedAt, Order: domain.SortDesc}

// NormalizeSort fills missing sort parts with the defaults.
func NormalizeSort(sort OrderSort) OrderSort {
	switch sort.Field {
	case OrderSortCreatedAt, OrderSortTotal, OrderSortOrderNumber:
	default:
		sort.Field = DefaultOrderSort.Field
	}
	if sort.Order != domain.SortAsc && sort.Order != domain.SortDesc {
		sort.Order = DefaultOrderSort.Order
	}
	return sort
}

// OrderKeywords derives the search keywords stored with an order.
func OrderKeywords(order domain.Order) []string {
	values := []string{order.ID, order.OrderNumber}
	if order.Contact != nil {
		values = append(values, order.Contact.Name, order.Contact.Email, order.Contact.Phone)
	}
	if order.BillingAddress != nil {
		values = append(values, order.BillingAddress.Recipient)
	}
	return textutil.Keywords(values...)
}

// NormalizeTargetIDs trims and de-duplicates ids, keeping first occurrence order.
func NormalizeTargetIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
