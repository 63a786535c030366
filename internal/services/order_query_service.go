package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/pagination"
	"github.com/hanko-field/orderdesk/internal/platform/textutil"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const maxAddressFieldLength = 200

var billingUpdatedLabel = historyLabel{Code: "billing-updated", Label: "Billing address updated"}

// OrderQueryServiceDeps configures the listing and detail service.
type OrderQueryServiceDeps struct {
	OrderEngineDeps
	DefaultPageSize int
	MaxPageSize     int
}

type orderQueryService struct {
	orders  repositories.OrderRepository
	runner  *orderMutationRunner
	listing pagination.Options
}

// NewOrderQueryService constructs the service behind the admin order screens.
func NewOrderQueryService(deps OrderQueryServiceDeps) (OrderQueryService, error) {
	runner, err := newOrderMutationRunner("order query service", deps.OrderEngineDeps)
	if err != nil {
		return nil, err
	}
	return &orderQueryService{
		orders:  deps.Orders,
		runner:  runner,
		listing: OrderListOptions(deps.DefaultPageSize, deps.MaxPageSize),
	}, nil
}

func (s *orderQueryService) ListOrders(ctx context.Context, actor Actor, params OrderListParams) (domain.OffsetPage[domain.Order], error) {
	if err := authorize(actor); err != nil {
		return domain.OffsetPage[domain.Order]{}, err
	}
	filter, err := BuildOrderListFilter(params, s.listing)
	if err != nil {
		return domain.OffsetPage[domain.Order]{}, err
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.OffsetPage[domain.Order]{}, fmt.Errorf("%w: list orders: %w", ErrOrderPersistence, err)
	}
	return page, nil
}

func (s *orderQueryService) GetOrder(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	if err := authorize(actor); err != nil {
		return domain.Order{}, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, validationError(msgInvalidOrderID, nil)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Order{}, &OrderActionError{Kind: ErrorKindNotFound, Message: msgOrderNotFound, Err: err}
		}
		return domain.Order{}, fmt.Errorf("%w: get order: %w", ErrOrderPersistence, err)
	}
	return order, nil
}

func (s *orderQueryService) UpdateBillingAddress(ctx context.Context, cmd UpdateBillingAddressCommand) MutationResult {
	address, invalid := sanitizeAddress(cmd.Address)
	return s.runner.run(ctx, cmd.OrderCommand, "billingAddress", nil, invalid, func(order domain.Order, now time.Time) (repositories.OrderMutation, bool, error) {
		if order.Status.IsTerminal() {
			return repositories.OrderMutation{}, false, validationError(msgOrderClosed, fmt.Errorf("%w: order status %s", ErrOrderValidation, order.Status))
		}
		if addressesEqual(order.BillingAddress, &address) {
			return repositories.OrderMutation{}, false, nil
		}
		return repositories.OrderMutation{
			OrderID:        order.ID,
			BillingAddress: &address,
			AppendHistory:  []domain.OrderHistoryEvent{{Code: billingUpdatedLabel.Code, Label: billingUpdatedLabel.Label, At: now}},
			UpdatedAt:      now,
		}, true, nil
	})
}

// sanitizeAddress strips markup from every line and checks the required fields.
func sanitizeAddress(input domain.Address) (domain.Address, error) {
	out := domain.Address{
		Recipient:  textutil.StripMarkup(input.Recipient),
		Line1:      textutil.StripMarkup(input.Line1),
		Line2:      textutil.StripMarkupPtr(input.Line2),
		City:       textutil.StripMarkup(input.City),
		State:      textutil.StripMarkupPtr(input.State),
		PostalCode: textutil.StripMarkup(input.PostalCode),
		Country:    strings.ToUpper(textutil.StripMarkup(input.Country)),
		Phone:      textutil.StripMarkupPtr(input.Phone),
	}
	required := map[string]string{
		"recipient":  out.Recipient,
		"line1":      out.Line1,
		"city":       out.City,
		"postalCode": out.PostalCode,
		"country":    out.Country,
	}
	for field, value := range required {
		if value == "" {
			return domain.Address{}, validationError(msgInvalidBillingAddr, fmt.Errorf("%w: %s is required", ErrOrderValidation, field))
		}
	}
	for _, value := range []*string{&out.Recipient, &out.Line1, out.Line2, &out.City, out.State, &out.PostalCode, &out.Country, out.Phone} {
		if value != nil && len([]rune(*value)) > maxAddressFieldLength {
			return domain.Address{}, validationError(msgInvalidBillingAddr, fmt.Errorf("%w: address field too long", ErrOrderValidation))
		}
	}
	return out, nil
}

func addressesEqual(a, b *domain.Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Recipient == b.Recipient &&
		a.Line1 == b.Line1 &&
		optionalEqual(a.Line2, b.Line2) &&
		a.City == b.City &&
		optionalEqual(a.State, b.State) &&
		a.PostalCode == b.PostalCode &&
		a.Country == b.Country &&
		optionalEqual(a.Phone, b.Phone)
}

func optionalEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
