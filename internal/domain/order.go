package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates fulfilment states of an order.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPacked     OrderStatus = "packed"
	OrderStatusAssigned   OrderStatus = "assigned"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every known status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusProcessing,
	OrderStatusPacked,
	OrderStatusAssigned,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether the status is one of the known fulfilment states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusPacked, OrderStatusAssigned, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Order is the root aggregate managed by the admin order engine.
type Order struct {
	ID              string
	OrderNumber     string
	Status          OrderStatus
	Amounts         OrderAmounts
	Rider           *Rider
	BillingAddress  *Address
	ShippingAddress *Address
	Contact         *OrderContact
	History         []OrderHistoryEvent
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing repository state.
func (o Order) Clone() Order {
	out := o
	out.Amounts = o.Amounts.Clone()
	if o.Rider != nil {
		rider := *o.Rider
		out.Rider = &rider
	}
	out.BillingAddress = o.BillingAddress.Clone()
	out.ShippingAddress = o.ShippingAddress.Clone()
	if o.Contact != nil {
		contact := *o.Contact
		out.Contact = &contact
	}
	if o.History != nil {
		out.History = append([]OrderHistoryEvent(nil), o.History...)
	}
	return out
}

// OrderAmounts holds the monetary fields of an order. All values carry two decimal places.
//
// OriginalTotal is captured by the first discount or shipping adjustment and is the baseline for
// every later adjustment.
type OrderAmounts struct {
	Subtotal      decimal.Decimal
	Discount      *DiscountRecord
	Shipping      *decimal.Decimal
	Total         decimal.Decimal
	OriginalTotal *decimal.Decimal
}

// Clone returns a deep copy of the amounts.
func (a OrderAmounts) Clone() OrderAmounts {
	out := a
	if a.Discount != nil {
		discount := *a.Discount
		if a.Discount.Percent != nil {
			percent := *a.Discount.Percent
			discount.Percent = &percent
		}
		out.Discount = &discount
	}
	if a.Shipping != nil {
		shipping := *a.Shipping
		out.Shipping = &shipping
	}
	if a.OriginalTotal != nil {
		original := *a.OriginalTotal
		out.OriginalTotal = &original
	}
	return out
}

// HasAdjustments reports whether a discount or shipping fee is recorded.
func (a OrderAmounts) HasAdjustments() bool {
	return a.Discount != nil || a.Shipping != nil
}

// Base returns the amount adjustments are computed against.
func (a OrderAmounts) Base() decimal.Decimal {
	if a.OriginalTotal != nil {
		return *a.OriginalTotal
	}
	return a.Total
}

// DiscountMode selects how a discount value is interpreted.
type DiscountMode string

const (
	DiscountModeAmount  DiscountMode = "amount"
	DiscountModePercent DiscountMode = "percent"
)

// Valid reports whether the mode is supported.
func (m DiscountMode) Valid() bool {
	return m == DiscountModeAmount || m == DiscountModePercent
}

// DiscountRecord stores the requested discount and its resolved monetary amount.
type DiscountRecord struct {
	Type    DiscountMode
	Value   decimal.Decimal
	Amount  decimal.Decimal
	Percent *decimal.Decimal
}

// Rider identifies the courier assigned to deliver an order.
type Rider struct {
	Name string
}

// OrderContact is the buyer contact snapshot captured at placement.
type OrderContact struct {
	Name  string
	Email string
	Phone string
}

// OrderHistoryEvent is one append-only entry in an order's history.
type OrderHistoryEvent struct {
	Code  string
	Label string
	At    time.Time
}
