package memory

import (
	"context"

	"github.com/hanko-field/orderdesk/internal/repositories"
)

// Registry bundles the in-memory repositories.
type Registry struct {
	orders *OrderRepository
	audit  *AuditLogRepository
	health repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs an empty registry. health may be nil.
func NewRegistry(health repositories.HealthRepository) *Registry {
	return &Registry{
		orders: NewOrderRepository(),
		audit:  NewAuditLogRepository(),
		health: health,
	}
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.audit }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// OrderStore exposes the concrete order repository for seeding.
func (r *Registry) OrderStore() *OrderRepository { return r.orders }

// AuditStore exposes the concrete audit repository for inspection.
func (r *Registry) AuditStore() *AuditLogRepository { return r.audit }
