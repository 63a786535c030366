package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// Bulk action identifiers.
const (
	bulkActionPack          = "pack"
	bulkActionAssign        = "assign"
	bulkActionShip          = "ship"
	bulkActionDeliver       = "deliver"
	bulkActionCancel        = "cancel"
	bulkActionRevert        = "revert"
	bulkActionApplyDiscount = "applyDiscount"
	bulkActionClearDiscount = "clearDiscount"
	bulkActionApplyShipping = "applyShipping"
	bulkActionClearShipping = "clearShipping"
	bulkActionDelete        = "delete"
)

// Bulk action kinds.
const (
	BulkKindStatus = "status"
	BulkKindAmount = "amount"
	BulkKindDelete = "delete"
)

// bulkPlanner computes the mutation one order receives. changed=false leaves the order untouched.
type bulkPlanner func(order domain.Order, now time.Time) (repositories.OrderMutation, bool, error)

type bulkStrategy struct {
	action    string
	kind      string
	label     string
	confirm   bool
	sensitive bool
	// prepare validates the action parameters and returns the per-order planner. Delete has none.
	prepare func(params map[string]any) (bulkPlanner, map[string]any, error)
}

var bulkStrategies = []bulkStrategy{
	statusStrategy(bulkActionPack, "Mark as packed", domain.OrderStatusPacked, false, false),
	{
		action:  bulkActionAssign,
		kind:    BulkKindStatus,
		label:   "Assign rider",
		prepare: prepareAssign,
	},
	statusStrategy(bulkActionShip, "Mark as shipped", domain.OrderStatusShipped, false, false),
	statusStrategy(bulkActionDeliver, "Mark as delivered", domain.OrderStatusDelivered, false, true),
	statusStrategy(bulkActionCancel, "Cancel orders", domain.OrderStatusCancelled, true, true),
	{
		action: bulkActionRevert,
		kind:   BulkKindStatus,
		label:  "Revert to processing",
		prepare: func(map[string]any) (bulkPlanner, map[string]any, error) {
			return statusPlanner(statusChange{revert: true, target: domain.OrderStatusProcessing}), nil, nil
		},
	},
	{
		action:  bulkActionApplyDiscount,
		kind:    BulkKindAmount,
		label:   "Apply discount",
		prepare: prepareDiscount,
	},
	{
		action: bulkActionClearDiscount,
		kind:   BulkKindAmount,
		label:  "Clear discount",
		prepare: func(map[string]any) (bulkPlanner, map[string]any, error) {
			return amountPlanner(discountClearedLabel, clearDiscountEdit), nil, nil
		},
	},
	{
		action:  bulkActionApplyShipping,
		kind:    BulkKindAmount,
		label:   "Apply shipping fee",
		prepare: prepareShipping,
	},
	{
		action: bulkActionClearShipping,
		kind:   BulkKindAmount,
		label:  "Clear shipping fee",
		prepare: func(map[string]any) (bulkPlanner, map[string]any, error) {
			return amountPlanner(shippingClearedLabel, clearShippingEdit), nil, nil
		},
	},
	{
		action:    bulkActionDelete,
		kind:      BulkKindDelete,
		label:     "Delete orders",
		confirm:   true,
		sensitive: true,
		prepare: func(map[string]any) (bulkPlanner, map[string]any, error) {
			return nil, nil, nil
		},
	},
}

func lookupBulkStrategy(action string) (bulkStrategy, bool) {
	action = strings.TrimSpace(action)
	for _, strategy := range bulkStrategies {
		if strings.EqualFold(strategy.action, action) {
			return strategy, true
		}
	}
	return bulkStrategy{}, false
}

// BulkActions lists the action catalogue in display order.
func BulkActions() []BulkActionDescriptor {
	out := make([]BulkActionDescriptor, 0, len(bulkStrategies))
	for _, strategy := range bulkStrategies {
		out = append(out, BulkActionDescriptor{
			Action:               strategy.action,
			Kind:                 strategy.kind,
			Label:                strategy.label,
			RequiresConfirmation: strategy.confirm,
			Sensitive:            strategy.sensitive,
		})
	}
	return out
}

func statusStrategy(action, label string, target domain.OrderStatus, confirm, sensitive bool) bulkStrategy {
	return bulkStrategy{
		action:    action,
		kind:      BulkKindStatus,
		label:     label,
		confirm:   confirm,
		sensitive: sensitive,
		prepare: func(map[string]any) (bulkPlanner, map[string]any, error) {
			return statusPlanner(statusChange{target: target}), nil, nil
		},
	}
}

func statusPlanner(change statusChange) bulkPlanner {
	return func(order domain.Order, now time.Time) (repositories.OrderMutation, bool, error) {
		mutation, err := change.mutation(order, now)
		if err != nil {
			return repositories.OrderMutation{}, false, err
		}
		return mutation, true, nil
	}
}

func amountPlanner(label historyLabel, edit amountEdit) bulkPlanner {
	return func(order domain.Order, now time.Time) (repositories.OrderMutation, bool, error) {
		return amountMutation(order, now, label, edit)
	}
}

func prepareAssign(params map[string]any) (bulkPlanner, map[string]any, error) {
	name, _, err := stringParam(params, "riderName")
	if err != nil {
		return nil, nil, err
	}
	change, err := parseStatusChange(string(domain.OrderStatusAssigned), &name)
	if err != nil {
		return nil, nil, err
	}
	var recorded map[string]any
	if change.rider != nil {
		recorded = map[string]any{"riderName": change.rider.Name}
	}
	return statusPlanner(change), recorded, nil
}

func prepareDiscount(params map[string]any) (bulkPlanner, map[string]any, error) {
	mode, ok, err := stringParam(params, "mode")
	if err != nil || !ok {
		return nil, nil, validationError(msgInvalidDiscount, err)
	}
	value, ok, err := numberParam(params, "value")
	if err != nil || !ok {
		return nil, nil, validationError(msgInvalidDiscount, err)
	}
	req, err := parseDiscount(domain.DiscountMode(mode), value)
	if err != nil {
		return nil, nil, err
	}
	recorded := map[string]any{"mode": string(req.mode), "value": req.value.String()}
	return amountPlanner(discountAppliedLabel, discountEdit(req)), recorded, nil
}

func prepareShipping(params map[string]any) (bulkPlanner, map[string]any, error) {
	raw, ok, err := numberParam(params, "fee")
	if err != nil || !ok {
		return nil, nil, validationError(msgInvalidShipping, err)
	}
	fee, err := parseShippingFee(raw)
	if err != nil {
		return nil, nil, err
	}
	return amountPlanner(shippingAppliedLabel, shippingEdit(fee)), map[string]any{"fee": fee.StringFixed(2)}, nil
}

func stringParam(params map[string]any, key string) (string, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("%w: %s must be a string", ErrOrderValidation, key)
	}
	return value, true, nil
}

func numberParam(params map[string]any, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s must be a number", ErrOrderValidation, key)
		}
		return f, true, nil
	}
	return 0, false, fmt.Errorf("%w: %s must be a number", ErrOrderValidation, key)
}
