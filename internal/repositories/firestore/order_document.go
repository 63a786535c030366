package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// Monetary values are stored as canonical decimal strings. totalMinor mirrors the total in minor
// units so listings can be ordered numerically.
type orderDocument struct {
	OrderNumber     string               `firestore:"orderNumber"`
	Status          string               `firestore:"status"`
	Amounts         orderAmountsDocument `firestore:"amounts"`
	TotalMinor      int64                `firestore:"totalMinor"`
	Rider           *riderDocument       `firestore:"rider,omitempty"`
	BillingAddress  *addressDocument     `firestore:"billingAddress,omitempty"`
	ShippingAddress *addressDocument     `firestore:"shippingAddress,omitempty"`
	Contact         *contactDocument     `firestore:"contact,omitempty"`
	History         []historyDocument    `firestore:"history"`
	SearchKeywords  []string             `firestore:"searchKeywords"`
	Version         int64                `firestore:"version"`
	CreatedAt       time.Time            `firestore:"createdAt"`
	UpdatedAt       time.Time            `firestore:"updatedAt"`
}

type orderAmountsDocument struct {
	Subtotal      string            `firestore:"subtotal"`
	Discount      *discountDocument `firestore:"discount,omitempty"`
	Shipping      *string           `firestore:"shipping,omitempty"`
	Total         string            `firestore:"total"`
	OriginalTotal *string           `firestore:"originalTotal,omitempty"`
}

type discountDocument struct {
	Type    string  `firestore:"type"`
	Value   string  `firestore:"value"`
	Amount  string  `firestore:"amount"`
	Percent *string `firestore:"percent,omitempty"`
}

type riderDocument struct {
	Name string `firestore:"name"`
}

type contactDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
}

type addressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

type historyDocument struct {
	// ID is only set on entries appended through ArrayUnion.
	ID    string    `firestore:"id,omitempty"`
	Code  string    `firestore:"code"`
	Label string    `firestore:"label"`
	At    time.Time `firestore:"at"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		Amounts:         newOrderAmountsDocument(order.Amounts),
		TotalMinor:      minorUnits(order.Amounts.Total),
		BillingAddress:  newAddressDocument(order.BillingAddress),
		ShippingAddress: newAddressDocument(order.ShippingAddress),
		History:         newHistoryDocuments(order.History),
		SearchKeywords:  repositories.OrderKeywords(order),
		Version:         order.Version,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
	if doc.History == nil {
		doc.History = []historyDocument{}
	}
	if order.Rider != nil {
		doc.Rider = &riderDocument{Name: order.Rider.Name}
	}
	if order.Contact != nil {
		doc.Contact = &contactDocument{Name: order.Contact.Name, Email: order.Contact.Email, Phone: order.Contact.Phone}
	}
	return doc
}

func newOrderAmountsDocument(amounts domain.OrderAmounts) orderAmountsDocument {
	doc := orderAmountsDocument{
		Subtotal:      amounts.Subtotal.StringFixed(2),
		Total:         amounts.Total.StringFixed(2),
		Shipping:      decimalString(amounts.Shipping),
		OriginalTotal: decimalString(amounts.OriginalTotal),
	}
	if amounts.Discount != nil {
		doc.Discount = &discountDocument{
			Type:    string(amounts.Discount.Type),
			Value:   amounts.Discount.Value.String(),
			Amount:  amounts.Discount.Amount.StringFixed(2),
			Percent: decimalString(amounts.Discount.Percent),
		}
	}
	return doc
}

func newAddressDocument(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	cloned := addr.Clone()
	return &addressDocument{
		Recipient:  cloned.Recipient,
		Line1:      cloned.Line1,
		Line2:      cloned.Line2,
		City:       cloned.City,
		State:      cloned.State,
		PostalCode: cloned.PostalCode,
		Country:    cloned.Country,
		Phone:      cloned.Phone,
	}
}

func newHistoryDocuments(events []domain.OrderHistoryEvent) []historyDocument {
	if len(events) == 0 {
		return nil
	}
	out := make([]historyDocument, 0, len(events))
	for _, event := range events {
		out = append(out, historyDocument{Code: event.Code, Label: event.Label, At: event.At.UTC()})
	}
	return out
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	amounts, err := d.Amounts.toDomain()
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, err)
	}
	order := domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		Status:          domain.OrderStatus(d.Status),
		Amounts:         amounts,
		BillingAddress:  d.BillingAddress.toDomain(),
		ShippingAddress: d.ShippingAddress.toDomain(),
		Version:         d.Version,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	if d.Rider != nil {
		order.Rider = &domain.Rider{Name: d.Rider.Name}
	}
	if d.Contact != nil {
		order.Contact = &domain.OrderContact{Name: d.Contact.Name, Email: d.Contact.Email, Phone: d.Contact.Phone}
	}
	if len(d.History) > 0 {
		order.History = make([]domain.OrderHistoryEvent, 0, len(d.History))
		for _, event := range d.History {
			order.History = append(order.History, domain.OrderHistoryEvent{Code: event.Code, Label: event.Label, At: event.At.UTC()})
		}
	}
	return order, nil
}

func (d orderAmountsDocument) toDomain() (domain.OrderAmounts, error) {
	subtotal, err := parseDecimal("subtotal", d.Subtotal)
	if err != nil {
		return domain.OrderAmounts{}, err
	}
	total, err := parseDecimal("total", d.Total)
	if err != nil {
		return domain.OrderAmounts{}, err
	}
	amounts := domain.OrderAmounts{Subtotal: subtotal, Total: total}
	if amounts.Shipping, err = parseDecimalPtr("shipping", d.Shipping); err != nil {
		return domain.OrderAmounts{}, err
	}
	if amounts.OriginalTotal, err = parseDecimalPtr("originalTotal", d.OriginalTotal); err != nil {
		return domain.OrderAmounts{}, err
	}
	if d.Discount != nil {
		value, err := parseDecimal("discount.value", d.Discount.Value)
		if err != nil {
			return domain.OrderAmounts{}, err
		}
		amount, err := parseDecimal("discount.amount", d.Discount.Amount)
		if err != nil {
			return domain.OrderAmounts{}, err
		}
		percent, err := parseDecimalPtr("discount.percent", d.Discount.Percent)
		if err != nil {
			return domain.OrderAmounts{}, err
		}
		amounts.Discount = &domain.DiscountRecord{
			Type:    domain.DiscountMode(d.Discount.Type),
			Value:   value,
			Amount:  amount,
			Percent: percent,
		}
	}
	return amounts, nil
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	addr := domain.Address{
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      d.Phone,
	}
	return addr.Clone()
}

func decimalString(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	s := value.StringFixed(2)
	return &s
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode %s: %w", field, err)
	}
	return value, nil
}

func parseDecimalPtr(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := parseDecimal(field, *raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func minorUnits(value decimal.Decimal) int64 {
	return value.Shift(2).Round(0).IntPart()
}
