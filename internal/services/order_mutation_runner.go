package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// OrderEngineDeps bundles collaborators shared by the single-order services.
type OrderEngineDeps struct {
	Orders repositories.OrderRepository
	Audit  AuditLogService
	Events OrderEventPublisher
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// orderPlan computes the mutation for one order. changed=false means the call is a no-op.
type orderPlan func(order domain.Order, now time.Time) (mutation repositories.OrderMutation, changed bool, err error)

// orderMutationRunner runs the read-check-write cycle shared by every single-order operation.
type orderMutationRunner struct {
	orders repositories.OrderRepository
	audit  AuditLogService
	events *orderEventEmitter
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

func newOrderMutationRunner(component string, deps OrderEngineDeps) (*orderMutationRunner, error) {
	if deps.Orders == nil {
		return nil, fmt.Errorf("%s: order repository is required", component)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderMutationRunner{
		orders: deps.Orders,
		audit:  deps.Audit,
		events: newOrderEventEmitter(deps.Events, logger),
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// run authorizes the actor, rejects invalid input, then applies plan inside UpdateOne. On success it
// records one audit entry and emits the mutation event.
func (r *orderMutationRunner) run(ctx context.Context, cmd OrderCommand, action string, params map[string]any, invalid error, plan orderPlan) MutationResult {
	if err := authorize(cmd.Actor); err != nil {
		return r.fail(ctx, action, cmd.OrderID, err)
	}
	if invalid != nil {
		return r.fail(ctx, action, cmd.OrderID, invalid)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return r.fail(ctx, action, orderID, validationError(msgInvalidOrderID, nil))
	}

	now := r.clock()
	changed := false
	updated, err := r.orders.UpdateOne(ctx, orderID, cmd.ExpectedVersion, func(order domain.Order) (repositories.OrderMutation, bool, error) {
		mutation, ok, err := plan(order, now)
		if err != nil || !ok {
			return repositories.OrderMutation{}, false, err
		}
		mutation.OrderID = order.ID
		mutation.UpdatedAt = now
		changed = true
		return mutation, true, nil
	})
	if err != nil {
		return r.fail(ctx, action, orderID, err)
	}
	if !changed {
		return MutationResult{OK: true, ResolvedCount: 1, Message: msgNoChanges, Order: &updated}
	}

	if r.audit != nil {
		r.audit.Record(ctx, AuditLogRecord{
			Actor:         cmd.Actor.Ref(),
			ActorType:     "staff",
			Action:        "orders." + action,
			Scope:         "single",
			TargetRef:     "/orders/" + orderID,
			TargetIDs:     []string{orderID},
			Params:        params,
			ResolvedCount: 1,
			AffectedCount: 1,
			IPAddress:     cmd.Actor.IPAddress,
			UserAgent:     cmd.Actor.UserAgent,
			RequestID:     cmd.Actor.RequestID,
			Severity:      actionSeverity(action),
			OccurredAt:    now,
		})
	}
	r.events.emit(ctx, OrderMutationEvent{
		Action:        action,
		Scope:         "single",
		OrderIDs:      []string{orderID},
		AffectedCount: 1,
		ActorID:       cmd.Actor.ID,
		OccurredAt:    now,
	})

	return MutationResult{OK: true, AffectedCount: 1, ResolvedCount: 1, Message: msgOrderUpdated, Order: &updated}
}

func (r *orderMutationRunner) fail(ctx context.Context, action, orderID string, err error) MutationResult {
	classified := classifyError(err)
	fields := map[string]any{
		"action": action,
		"order":  orderID,
		"kind":   string(classified.Kind),
		"error":  err.Error(),
	}
	if classified.Kind == ErrorKindPersistence {
		r.logger(ctx, "orders.mutation.failed", fields)
	} else {
		r.logger(ctx, "orders.mutation.rejected", fields)
	}
	return MutationResult{OK: false, Kind: classified.Kind, Message: classified.Message}
}

func actionSeverity(action string) string {
	switch action {
	case bulkActionCancel, bulkActionDelete, bulkActionDeliver:
		return "warn"
	}
	return "info"
}
