package repositories

import (
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

// OrderMutation describes the fields a single write changes on one order. Nil fields are left
// untouched. Amounts replaces the whole amounts block so removed adjustments disappear with it.
type OrderMutation struct {
	OrderID        string
	Status         *domain.OrderStatus
	Rider          *domain.Rider
	Amounts        *domain.OrderAmounts
	BillingAddress *domain.Address
	AppendHistory  []domain.OrderHistoryEvent
	UpdatedAt      time.Time
}

// Apply returns a copy of order with the mutation applied and the version advanced.
func (m OrderMutation) Apply(order domain.Order) domain.Order {
	out := order.Clone()
	if m.Status != nil {
		out.Status = *m.Status
	}
	if m.Rider != nil {
		rider := *m.Rider
		out.Rider = &rider
	}
	if m.Amounts != nil {
		out.Amounts = m.Amounts.Clone()
	}
	if m.BillingAddress != nil {
		out.BillingAddress = m.BillingAddress.Clone()
	}
	if len(m.AppendHistory) > 0 {
		out.History = append(out.History, m.AppendHistory...)
	}
	if !m.UpdatedAt.IsZero() {
		out.UpdatedAt = m.UpdatedAt.UTC()
	}
	out.Version++
	return out
}
