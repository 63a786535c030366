package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

func newQueryService(t *testing.T, h *engineHarness) OrderQueryService {
	t.Helper()
	svc, err := NewOrderQueryService(OrderQueryServiceDeps{OrderEngineDeps: h.deps(), DefaultPageSize: 10, MaxPageSize: 50})
	if err != nil {
		t.Fatalf("new query service: %v", err)
	}
	return svc
}

func TestOrderQueryServiceListSearchesKeywords(t *testing.T) {
	t.Parallel()

	orders := fixtureOrders(15)
	orders[4].Contact = &domain.OrderContact{Name: "Hanako Yamada", Email: "hanako@example.com"}
	h := newEngineHarness(orders...)
	svc := newQueryService(t, h)

	page, err := svc.ListOrders(context.Background(), adminActor(), OrderListParams{Search: " YAMADA "})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "ord-004" {
		t.Fatalf("unexpected search result %#v", page.Items)
	}

	all, err := svc.ListOrders(context.Background(), adminActor(), OrderListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if all.PageSize != 10 || len(all.Items) != 10 || !all.HasNext || all.TotalPages() != 2 {
		t.Fatalf("unexpected default page %#v", all)
	}
	if all.Items[0].ID != "ord-014" {
		t.Fatalf("expected newest first, got %s", all.Items[0].ID)
	}
}

func TestOrderQueryServiceListRejects(t *testing.T) {
	t.Parallel()

	svc := newQueryService(t, newEngineHarness())
	if _, err := svc.ListOrders(context.Background(), customerActor(), OrderListParams{}); !errors.Is(err, ErrOrderUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.ListOrders(context.Background(), adminActor(), OrderListParams{Sort: "price"}); !errors.Is(err, ErrOrderValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOrderQueryServiceGetOrder(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(fixtureOrder("o1", domain.OrderStatusPacked, "100"))
	svc := newQueryService(t, h)

	order, err := svc.GetOrder(context.Background(), adminActor(), " o1 ")
	if err != nil || order.ID != "o1" {
		t.Fatalf("expected order, got %#v %v", order, err)
	}
	_, err = svc.GetOrder(context.Background(), adminActor(), "missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if result := ResultFromError(err); result.Kind != ErrorKindNotFound || result.Message != msgOrderNotFound {
		t.Fatalf("unexpected conversion %#v", result)
	}
}

func TestOrderQueryServiceUpdateBillingAddress(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(fixtureOrder("o1", domain.OrderStatusProcessing, "100"))
	svc := newQueryService(t, h)
	line2 := "  "
	address := domain.Address{
		Recipient:  "<script>x</script>Taro Yamada",
		Line1:      "1-2-3 Shibuya",
		Line2:      &line2,
		City:       "Tokyo",
		PostalCode: "150-0002",
		Country:    "jp",
	}

	result := svc.UpdateBillingAddress(context.Background(), UpdateBillingAddressCommand{
		OrderCommand: OrderCommand{Actor: adminActor(), OrderID: "o1"},
		Address:      address,
	})
	if !result.OK || result.AffectedCount != 1 {
		t.Fatalf("expected success, got %#v", result)
	}
	order := h.order("o1")
	if order.BillingAddress == nil || order.BillingAddress.Recipient != "Taro Yamada" || order.BillingAddress.Country != "JP" || order.BillingAddress.Line2 != nil {
		t.Fatalf("unexpected address %#v", order.BillingAddress)
	}
	if len(order.History) != 1 || order.History[0].Code != "billing-updated" {
		t.Fatalf("unexpected history %#v", order.History)
	}

	again := svc.UpdateBillingAddress(context.Background(), UpdateBillingAddressCommand{
		OrderCommand: OrderCommand{Actor: adminActor(), OrderID: "o1"},
		Address:      address,
	})
	if !again.OK || again.AffectedCount != 0 || again.Message != msgNoChanges {
		t.Fatalf("expected no-op on identical address, got %#v", again)
	}
}

func TestOrderQueryServiceUpdateBillingAddressRejects(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(fixtureOrder("closed", domain.OrderStatusCancelled, "100"), fixtureOrder("open", domain.OrderStatusProcessing, "100"))
	svc := newQueryService(t, h)
	valid := domain.Address{Recipient: "A", Line1: "B", City: "C", PostalCode: "D", Country: "JP"}

	closed := svc.UpdateBillingAddress(context.Background(), UpdateBillingAddressCommand{
		OrderCommand: OrderCommand{Actor: adminActor(), OrderID: "closed"},
		Address:      valid,
	})
	if closed.OK || closed.Message != msgOrderClosed {
		t.Fatalf("expected closed rejection, got %#v", closed)
	}

	missing := valid
	missing.City = "<b></b>"
	invalid := svc.UpdateBillingAddress(context.Background(), UpdateBillingAddressCommand{
		OrderCommand: OrderCommand{Actor: adminActor(), OrderID: "open"},
		Address:      missing,
	})
	if invalid.OK || invalid.Kind != ErrorKindValidation || invalid.Message != msgInvalidBillingAddr {
		t.Fatalf("expected invalid address, got %#v", invalid)
	}
}
