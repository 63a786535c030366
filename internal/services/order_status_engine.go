package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/textutil"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// StatusRevert is the pseudo status that forces a non-terminal order back to processing.
const StatusRevert = "revert"

const maxRiderNameLength = 120

var orderStatusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusProcessing: {domain.OrderStatusPacked, domain.OrderStatusAssigned, domain.OrderStatusCancelled},
	domain.OrderStatusPacked:     {domain.OrderStatusAssigned, domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusAssigned:   {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
}

type historyLabel struct {
	Code  string
	Label string
}

var statusHistoryLabels = map[domain.OrderStatus]historyLabel{
	domain.OrderStatusPacked:    {Code: "packed", Label: "Packed"},
	domain.OrderStatusAssigned:  {Code: "rider-assigned", Label: "Rider assigned"},
	domain.OrderStatusShipped:   {Code: "shipped", Label: "Shipped"},
	domain.OrderStatusDelivered: {Code: "delivered", Label: "Delivered"},
	domain.OrderStatusCancelled: {Code: "cancelled", Label: "Cancelled"},
}

var revertHistoryLabel = historyLabel{Code: "reverted", Label: "Reverted to processing"}

// statusActions names the action recorded for each requested status.
var statusActions = map[string]string{
	string(domain.OrderStatusPacked):    bulkActionPack,
	string(domain.OrderStatusAssigned):  bulkActionAssign,
	string(domain.OrderStatusShipped):   bulkActionShip,
	string(domain.OrderStatusDelivered): bulkActionDeliver,
	string(domain.OrderStatusCancelled): bulkActionCancel,
	StatusRevert:                        bulkActionRevert,
}

// CanTransition reports whether the edge current -> target exists. Self transitions are not edges.
func CanTransition(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStatusTransitions[current], target)
}

// statusChange is a validated request for a status change, independent of any order.
type statusChange struct {
	revert bool
	target domain.OrderStatus
	rider  *domain.Rider
}

// parseStatusChange validates the requested status and optional rider name.
func parseStatusChange(requested string, riderName *string) (statusChange, error) {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested == StatusRevert {
		return statusChange{revert: true, target: domain.OrderStatusProcessing}, nil
	}
	target := domain.OrderStatus(requested)
	if !target.Valid() {
		return statusChange{}, validationError("Unknown status", fmt.Errorf("%w: status %q", ErrOrderValidation, requested))
	}
	change := statusChange{target: target}
	if target == domain.OrderStatusAssigned && riderName != nil {
		name := textutil.StripMarkup(*riderName)
		if len([]rune(name)) > maxRiderNameLength {
			return statusChange{}, validationError("Rider name is too long", nil)
		}
		if name != "" {
			change.rider = &domain.Rider{Name: name}
		}
	}
	return change, nil
}

// mutation evaluates the change against the order's current status. Status and history are
// returned together so they are written together.
func (c statusChange) mutation(order domain.Order, now time.Time) (repositories.OrderMutation, error) {
	label, ok := statusHistoryLabels[c.target]
	if c.revert {
		if order.Status.IsTerminal() || order.Status == domain.OrderStatusProcessing {
			return repositories.OrderMutation{}, &StatusTransitionError{From: order.Status, To: StatusRevert}
		}
		label, ok = revertHistoryLabel, true
	} else if !CanTransition(order.Status, c.target) {
		return repositories.OrderMutation{}, &StatusTransitionError{From: order.Status, To: string(c.target)}
	}
	if !ok {
		return repositories.OrderMutation{}, &StatusTransitionError{From: order.Status, To: string(c.target)}
	}

	target := c.target
	mutation := repositories.OrderMutation{
		OrderID:       order.ID,
		Status:        &target,
		AppendHistory: []domain.OrderHistoryEvent{{Code: label.Code, Label: label.Label, At: now}},
		UpdatedAt:     now,
	}
	if c.rider != nil {
		rider := *c.rider
		mutation.Rider = &rider
	}
	return mutation, nil
}

type orderStatusEngine struct {
	runner *orderMutationRunner
}

// NewOrderStatusEngine constructs the single-order status engine.
func NewOrderStatusEngine(deps OrderEngineDeps) (OrderStatusEngine, error) {
	runner, err := newOrderMutationRunner("order status engine", deps)
	if err != nil {
		return nil, err
	}
	return &orderStatusEngine{runner: runner}, nil
}

func (e *orderStatusEngine) Transition(ctx context.Context, cmd TransitionCommand) MutationResult {
	change, invalid := parseStatusChange(cmd.Status, cmd.RiderName)
	action := statusActions[strings.ToLower(strings.TrimSpace(cmd.Status))]
	if action == "" {
		action = "status"
	}
	params := map[string]any{"status": strings.TrimSpace(cmd.Status)}
	if change.rider != nil {
		params["riderName"] = change.rider.Name
	}
	return e.runner.run(ctx, cmd.OrderCommand, action, params, invalid, func(order domain.Order, now time.Time) (repositories.OrderMutation, bool, error) {
		mutation, err := change.mutation(order, now)
		if err != nil {
			return repositories.OrderMutation{}, false, err
		}
		return mutation, true, nil
	})
}
