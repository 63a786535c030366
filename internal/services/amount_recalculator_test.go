package services

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

func assertMoney(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(money(want)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got.StringFixed(2))
	}
}

func baseAmounts(total string) domain.OrderAmounts {
	return domain.OrderAmounts{Subtotal: money(total), Total: money(total)}
}

func mustDiscount(t *testing.T, amounts domain.OrderAmounts, mode domain.DiscountMode, value float64) domain.OrderAmounts {
	t.Helper()
	req, err := parseDiscount(mode, value)
	if err != nil {
		t.Fatalf("parse discount: %v", err)
	}
	out, err := req.apply(amounts)
	if err != nil {
		t.Fatalf("apply discount: %v", err)
	}
	return out
}

func TestPercentDiscountOnHundred(t *testing.T) {
	t.Parallel()

	out := mustDiscount(t, baseAmounts("100"), domain.DiscountModePercent, 10)
	assertMoney(t, "discount", out.Discount.Amount, "10")
	assertMoney(t, "total", out.Total, "90")
	assertMoney(t, "originalTotal", *out.OriginalTotal, "100")
	if out.Discount.Percent == nil || !out.Discount.Percent.Equal(money("10")) {
		t.Fatalf("expected percent recorded, got %#v", out.Discount.Percent)
	}
}

func TestDiscountsDoNotCompound(t *testing.T) {
	t.Parallel()

	first := mustDiscount(t, baseAmounts("100"), domain.DiscountModeAmount, 10)
	assertMoney(t, "first total", first.Total, "90")
	second := mustDiscount(t, first, domain.DiscountModePercent, 10)
	assertMoney(t, "second total", second.Total, "90")
	assertMoney(t, "originalTotal", *second.OriginalTotal, "100")
}

func TestDiscountRoundTripRestoresTotal(t *testing.T) {
	t.Parallel()

	start := baseAmounts("48.20")
	discounted := mustDiscount(t, start, domain.DiscountModeAmount, 7.35)
	assertMoney(t, "discounted", discounted.Total, "40.85")

	cleared, changed := clearDiscountAmounts(discounted)
	if !changed {
		t.Fatalf("expected change")
	}
	assertMoney(t, "restored", cleared.Total, "48.20")
	if cleared.OriginalTotal != nil || cleared.Discount != nil {
		t.Fatalf("expected full restoration, got %#v", cleared)
	}
}

func TestAmountDiscountClampsToBase(t *testing.T) {
	t.Parallel()

	out := mustDiscount(t, baseAmounts("30"), domain.DiscountModeAmount, 50)
	assertMoney(t, "discount", out.Discount.Amount, "30")
	assertMoney(t, "total", out.Total, "0")

	percent := mustDiscount(t, baseAmounts("30"), domain.DiscountModePercent, 150)
	assertMoney(t, "percent discount", percent.Discount.Amount, "30")
	if !percent.Discount.Percent.Equal(money("100")) {
		t.Fatalf("expected percent clamped to 100, got %s", percent.Discount.Percent)
	}
}

func TestPercentDiscountRoundsToCents(t *testing.T) {
	t.Parallel()

	out := mustDiscount(t, baseAmounts("19.99"), domain.DiscountModePercent, 33.333)
	assertMoney(t, "discount", out.Discount.Amount, "6.66")
	assertMoney(t, "total", out.Total, "13.33")
	if out.Total.Exponent() < -2 {
		t.Fatalf("expected at most two decimal places, got %s", out.Total)
	}
}

func TestFractionalPercentIsNotPreRounded(t *testing.T) {
	t.Parallel()

	out := mustDiscount(t, baseAmounts("1000"), domain.DiscountModePercent, 12.345)
	assertMoney(t, "discount", out.Discount.Amount, "123.45")
	assertMoney(t, "total", out.Total, "876.55")
	if out.Discount.Percent == nil || !out.Discount.Percent.Equal(money("12.345")) {
		t.Fatalf("expected percent kept at 12.345, got %v", out.Discount.Percent)
	}
}

func TestAmountDiscountValueRoundedToCents(t *testing.T) {
	t.Parallel()

	out := mustDiscount(t, baseAmounts("50"), domain.DiscountModeAmount, 10.005)
	assertMoney(t, "discount", out.Discount.Amount, "10.01")
	assertMoney(t, "value", out.Discount.Value, "10.01")
	assertMoney(t, "total", out.Total, "39.99")
}

func TestShippingThenDiscountScenario(t *testing.T) {
	t.Parallel()

	fee, err := parseShippingFee(15)
	if err != nil {
		t.Fatalf("parse fee: %v", err)
	}
	shipped := applyShippingAmounts(baseAmounts("100"), fee)
	assertMoney(t, "after shipping", shipped.Total, "115")
	assertMoney(t, "originalTotal", *shipped.OriginalTotal, "100")

	discounted := mustDiscount(t, shipped, domain.DiscountModePercent, 10)
	assertMoney(t, "discount amount", discounted.Discount.Amount, "10")
	assertMoney(t, "after discount", discounted.Total, "105")

	noDiscount, _ := clearDiscountAmounts(discounted)
	assertMoney(t, "after clear discount", noDiscount.Total, "115")
	if noDiscount.OriginalTotal == nil {
		t.Fatalf("expected originalTotal kept while shipping remains")
	}

	clean, _ := clearShippingAmounts(noDiscount)
	assertMoney(t, "after clear shipping", clean.Total, "100")
	if clean.OriginalTotal != nil {
		t.Fatalf("expected originalTotal removed")
	}
}

func TestClearWithoutAdjustmentIsNoOp(t *testing.T) {
	t.Parallel()

	amounts := baseAmounts("100")
	amounts.OriginalTotal = moneyPtr("100")

	if _, changed := clearShippingAmounts(amounts); changed {
		t.Fatalf("expected no change when no shipping fee is set")
	}
	if _, changed := clearDiscountAmounts(amounts); changed {
		t.Fatalf("expected no change when no discount is set")
	}
}

func TestInvalidAmountInputs(t *testing.T) {
	t.Parallel()

	for _, value := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := parseDiscount(domain.DiscountModeAmount, value); err == nil {
			t.Fatalf("expected discount %v to be rejected", value)
		}
		if _, err := parseShippingFee(value); err == nil {
			t.Fatalf("expected fee %v to be rejected", value)
		}
	}
	if _, err := parseDiscount("fixed", 5); err == nil {
		t.Fatalf("expected unknown mode to be rejected")
	}

	req, _ := parseDiscount(domain.DiscountModeAmount, 5)
	if _, err := req.apply(baseAmounts("0")); err == nil {
		t.Fatalf("expected zero base to be rejected")
	}
}

func newRecalculator(t *testing.T, h *engineHarness) AmountRecalculator {
	t.Helper()
	svc, err := NewAmountRecalculator(h.deps())
	if err != nil {
		t.Fatalf("new amount recalculator: %v", err)
	}
	return svc
}

func TestAmountRecalculatorScenarioEndToEnd(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(fixtureOrder("o1", domain.OrderStatusProcessing, "100"))
	svc := newRecalculator(t, h)
	ctx := context.Background()
	cmd := OrderCommand{Actor: adminActor(), OrderID: "o1"}

	steps := []struct {
		name  string
		run   func() MutationResult
		total string
		orig  bool
		code  string
	}{
		{"shipping", func() MutationResult { return svc.ApplyShipping(ctx, ApplyShippingCommand{OrderCommand: cmd, Fee: 15}) }, "115", true, "shipping"},
		{"discount", func() MutationResult {
			return svc.ApplyDiscount(ctx, ApplyDiscountCommand{OrderCommand: cmd, Mode: domain.DiscountModePercent, Value: 10})
		}, "105", true, "discount"},
		{"clear discount", func() MutationResult { return svc.ClearDiscount(ctx, cmd) }, "115", true, "discount-cleared"},
		{"clear shipping", func() MutationResult { return svc.ClearShipping(ctx, cmd) }, "100", false, "shipping-cleared"},
	}
	for i, step := range steps {
		result := step.run()
		if !result.OK || result.AffectedCount != 1 {
			t.Fatalf("%s: expected success, got %#v", step.name, result)
		}
		order := h.order("o1")
		assertMoney(t, step.name, order.Amounts.Total, step.total)
		if (order.Amounts.OriginalTotal != nil) != step.orig {
			t.Fatalf("%s: unexpected originalTotal %#v", step.name, order.Amounts.OriginalTotal)
		}
		if len(order.History) != i+1 || order.History[i].Code != step.code {
			t.Fatalf("%s: unexpected history %#v", step.name, order.History)
		}
	}
	if h.audit.count() != len(steps) {
		t.Fatalf("expected one audit entry per step, got %d", h.audit.count())
	}
}

func TestAmountRecalculatorNoOpClear(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(fixtureOrder("o1", domain.OrderStatusProcessing, "100"))
	svc := newRecalculator(t, h)

	result := svc.ClearDiscount(context.Background(), OrderCommand{Actor: adminActor(), OrderID: "o1"})
	if !result.OK || result.AffectedCount != 0 || result.Message != msgNoChanges {
		t.Fatalf("expected no-op success, got %#v", result)
	}
	order := h.order("o1")
	if len(order.History) != 0 || order.Version != 1 {
		t.Fatalf("expected untouched order, got %#v", order)
	}
	if h.audit.count() != 0 || len(h.publisher.events) != 0 {
		t.Fatalf("expected no audit and no event for a no-op")
	}
}

func TestAmountRecalculatorRejectsClosedOrders(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(fixtureOrder("o1", domain.OrderStatusDelivered, "100"))
	svc := newRecalculator(t, h)

	result := svc.ApplyShipping(context.Background(), ApplyShippingCommand{
		OrderCommand: OrderCommand{Actor: adminActor(), OrderID: "o1"},
		Fee:          5,
	})
	if result.OK || result.Kind != ErrorKindValidation || result.Message != msgOrderClosed {
		t.Fatalf("expected closed order rejection, got %#v", result)
	}
}

func TestAmountRecalculatorValidatesBeforeFetching(t *testing.T) {
	t.Parallel()

	h := newEngineHarness()
	svc := newRecalculator(t, h)

	result := svc.ApplyDiscount(context.Background(), ApplyDiscountCommand{
		OrderCommand: OrderCommand{Actor: adminActor(), OrderID: "unknown"},
		Mode:         domain.DiscountModeAmount,
		Value:        math.NaN(),
	})
	if result.OK || result.Kind != ErrorKindValidation || result.Message != msgInvalidDiscount {
		t.Fatalf("expected invalid discount before lookup, got %#v", result)
	}
}
