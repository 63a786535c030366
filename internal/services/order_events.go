package services

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// EventOrdersMutationCompleted is emitted after a mutation changed at least one order. Consumers
// use it to refresh cached views.
const EventOrdersMutationCompleted = "orders.mutation.completed"

// OrderMutationEvent describes a completed mutation. OrderIDs is empty for predicate-based bulk
// runs; Filter then describes the predicate.
type OrderMutationEvent struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Action        string         `json:"action"`
	Scope         string         `json:"scope,omitempty"`
	OrderIDs      []string       `json:"orderIds,omitempty"`
	Filter        map[string]any `json:"filter,omitempty"`
	AffectedCount int            `json:"affectedCount"`
	ActorID       string         `json:"actorId,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
}

// OrderEventPublisher delivers mutation events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderMutationEvent) error
}

// orderEventEmitter stamps and publishes events. Publish failures are logged and never returned.
type orderEventEmitter struct {
	publisher OrderEventPublisher
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

func newOrderEventEmitter(publisher OrderEventPublisher, logger func(context.Context, string, map[string]any)) *orderEventEmitter {
	return &orderEventEmitter{
		publisher: publisher,
		newID:     newEventID,
		logger:    logger,
	}
}

func (e *orderEventEmitter) emit(ctx context.Context, event OrderMutationEvent) {
	if e == nil || e.publisher == nil || event.AffectedCount <= 0 {
		return
	}
	event.Type = EventOrdersMutationCompleted
	if event.ID == "" {
		event.ID = e.newID()
	}
	event.OrderIDs = slices.Clone(event.OrderIDs)
	if event.Filter != nil {
		event.Filter = maps.Clone(event.Filter)
	}
	if err := e.publisher.PublishOrderEvent(ctx, event); err != nil {
		e.logger(ctx, "orders.event.publish.failed", map[string]any{
			"eventId":  event.ID,
			"action":   event.Action,
			"affected": event.AffectedCount,
			"error":    err.Error(),
		})
	}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
