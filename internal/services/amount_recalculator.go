package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

var (
	discountAppliedLabel = historyLabel{Code: "discount", Label: "Discount applied"}
	discountClearedLabel = historyLabel{Code: "discount-cleared", Label: "Discount cleared"}
	shippingAppliedLabel = historyLabel{Code: "shipping", Label: "Shipping fee applied"}
	shippingClearedLabel = historyLabel{Code: "shipping-cleared", Label: "Shipping fee cleared"}

	hundred = decimal.NewFromInt(100)
)

func round2(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

// recomputeTotal sets total from the base and whatever adjustments remain.
func recomputeTotal(amounts *domain.OrderAmounts) {
	total := amounts.Base()
	if amounts.Discount != nil {
		total = total.Sub(amounts.Discount.Amount)
	}
	if amounts.Shipping != nil {
		total = total.Add(*amounts.Shipping)
	}
	amounts.Total = decimal.Max(decimal.Zero, round2(total))
}

// captureOriginal pins the baseline the first time an adjustment is applied.
func captureOriginal(amounts *domain.OrderAmounts) {
	if amounts.OriginalTotal == nil {
		base := round2(amounts.Total)
		amounts.OriginalTotal = &base
	}
}

// dropOriginalWhenClean removes the baseline once no adjustment remains.
func dropOriginalWhenClean(amounts *domain.OrderAmounts) {
	if !amounts.HasAdjustments() && amounts.OriginalTotal != nil {
		amounts.Total = round2(*amounts.OriginalTotal)
		amounts.OriginalTotal = nil
	}
}

func finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// discountRequest is a validated discount, not yet resolved against any order.
type discountRequest struct {
	mode  domain.DiscountMode
	value decimal.Decimal
}

func parseDiscount(mode domain.DiscountMode, value float64) (discountRequest, error) {
	mode = domain.DiscountMode(strings.ToLower(strings.TrimSpace(string(mode))))
	if !mode.Valid() {
		return discountRequest{}, validationError(msgInvalidDiscount, fmt.Errorf("%w: discount mode %q", ErrOrderValidation, mode))
	}
	if !finite(value) || value < 0 {
		return discountRequest{}, validationError(msgInvalidDiscount, fmt.Errorf("%w: discount value %v", ErrOrderValidation, value))
	}
	// A percentage keeps its precision; only the resolved money amount is rounded.
	return discountRequest{mode: mode, value: decimal.NewFromFloat(value)}, nil
}

// apply resolves the discount against the base and returns the new amounts.
func (d discountRequest) apply(current domain.OrderAmounts) (domain.OrderAmounts, error) {
	amounts := current.Clone()
	base := round2(amounts.Base())
	if !base.IsPositive() {
		return domain.OrderAmounts{}, validationError(msgNothingToDiscount, nil)
	}

	record := domain.DiscountRecord{Type: d.mode, Value: d.value}
	switch d.mode {
	case domain.DiscountModePercent:
		percent := decimal.Min(d.value, hundred)
		record.Percent = &percent
		record.Amount = round2(base.Mul(percent).Div(hundred))
	default:
		record.Value = round2(d.value)
		record.Amount = round2(decimal.Min(record.Value, base))
	}

	captureOriginal(&amounts)
	amounts.Discount = &record
	recomputeTotal(&amounts)
	return amounts, nil
}

// clearDiscountAmounts removes the discount. changed=false when there was none.
func clearDiscountAmounts(current domain.OrderAmounts) (domain.OrderAmounts, bool) {
	if current.Discount == nil {
		return current, false
	}
	amounts := current.Clone()
	amounts.Discount = nil
	recomputeTotal(&amounts)
	dropOriginalWhenClean(&amounts)
	return amounts, true
}

func parseShippingFee(fee float64) (decimal.Decimal, error) {
	if !finite(fee) || fee < 0 {
		return decimal.Decimal{}, validationError(msgInvalidShipping, fmt.Errorf("%w: shipping fee %v", ErrOrderValidation, fee))
	}
	return round2(decimal.NewFromFloat(fee)), nil
}

func applyShippingAmounts(current domain.OrderAmounts, fee decimal.Decimal) domain.OrderAmounts {
	amounts := current.Clone()
	captureOriginal(&amounts)
	shipping := round2(fee)
	amounts.Shipping = &shipping
	recomputeTotal(&amounts)
	return amounts
}

// clearShippingAmounts removes the shipping fee. changed=false when there was none, in which case
// any baseline is left as it is.
func clearShippingAmounts(current domain.OrderAmounts) (domain.OrderAmounts, bool) {
	if current.Shipping == nil {
		return current, false
	}
	amounts := current.Clone()
	amounts.Shipping = nil
	recomputeTotal(&amounts)
	dropOriginalWhenClean(&amounts)
	return amounts, true
}

// amountEdit computes new amounts for an order. changed=false means nothing to write.
type amountEdit func(current domain.OrderAmounts) (amounts domain.OrderAmounts, changed bool, err error)

// amountMutation turns an amount edit into an order mutation with its history event.
func amountMutation(order domain.Order, now time.Time, label historyLabel, edit amountEdit) (repositories.OrderMutation, bool, error) {
	if order.Status.IsTerminal() {
		return repositories.OrderMutation{}, false, validationError(msgOrderClosed, fmt.Errorf("%w: order status %s", ErrOrderValidation, order.Status))
	}
	amounts, changed, err := edit(order.Amounts)
	if err != nil || !changed {
		return repositories.OrderMutation{}, false, err
	}
	return repositories.OrderMutation{
		OrderID:       order.ID,
		Amounts:       &amounts,
		AppendHistory: []domain.OrderHistoryEvent{{Code: label.Code, Label: label.Label, At: now}},
		UpdatedAt:     now,
	}, true, nil
}

func discountEdit(req discountRequest) amountEdit {
	return func(current domain.OrderAmounts) (domain.OrderAmounts, bool, error) {
		amounts, err := req.apply(current)
		if err != nil {
			return domain.OrderAmounts{}, false, err
		}
		return amounts, true, nil
	}
}

func clearDiscountEdit(current domain.OrderAmounts) (domain.OrderAmounts, bool, error) {
	amounts, changed := clearDiscountAmounts(current)
	return amounts, changed, nil
}

func shippingEdit(fee decimal.Decimal) amountEdit {
	return func(current domain.OrderAmounts) (domain.OrderAmounts, bool, error) {
		return applyShippingAmounts(current, fee), true, nil
	}
}

func clearShippingEdit(current domain.OrderAmounts) (domain.OrderAmounts, bool, error) {
	amounts, changed := clearShippingAmounts(current)
	return amounts, changed, nil
}

type amountRecalculator struct {
	runner *orderMutationRunner
}

// NewAmountRecalculator constructs the single-order discount and shipping service.
func NewAmountRecalculator(deps OrderEngineDeps) (AmountRecalculator, error) {
	runner, err := newOrderMutationRunner("amount recalculator", deps)
	if err != nil {
		return nil, err
	}
	return &amountRecalculator{runner: runner}, nil
}

func (s *amountRecalculator) ApplyDiscount(ctx context.Context, cmd ApplyDiscountCommand) MutationResult {
	req, invalid := parseDiscount(cmd.Mode, cmd.Value)
	params := map[string]any{"mode": string(cmd.Mode), "value": cmd.Value}
	return s.runner.run(ctx, cmd.OrderCommand, bulkActionApplyDiscount, params, invalid, func(order domain.Order, now time.Time) (repositories.OrderMutation, bool, error) {
		return amountMutation(order, now, discountAppliedLabel, discountEdit(req))
	})
}

func (s *amountRecalculator) ClearDiscount(ctx context.Context, cmd OrderCommand) MutationResult {
	return s.runner.run(ctx, cmd, bulkActionClearDiscount, nil, nil, func(order domain.Order, now time.Time) (repositories.OrderMutation, bool, error) {
		return amountMutation(order, now, discountClearedLabel, clearDiscountEdit)
	})
}

func (s *amountRecalculator) ApplyShipping(ctx context.Context, cmd ApplyShippingCommand) MutationResult {
	fee, invalid := parseShippingFee(cmd.Fee)
	params := map[string]any{"fee": cmd.Fee}
	return s.runner.run(ctx, cmd.OrderCommand, bulkActionApplyShipping, params, invalid, func(order domain.Order, now time.Time) (repositories.OrderMutation, bool, error) {
		return amountMutation(order, now, shippingAppliedLabel, shippingEdit(fee))
	})
}

func (s *amountRecalculator) ClearShipping(ctx context.Context, cmd OrderCommand) MutationResult {
	return s.runner.run(ctx, cmd, bulkActionClearShipping, nil, nil, func(order domain.Order, now time.Time) (repositories.OrderMutation, bool, error) {
		return amountMutation(order, now, shippingClearedLabel, clearShippingEdit)
	})
}
