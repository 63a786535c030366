package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories/memory"
)

var fixtureNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixtureNow }

func adminActor() Actor {
	return Actor{ID: "op-1", Email: "op@example.com", Roles: []string{RoleAdmin}, IPAddress: "198.51.100.7", RequestID: "req-1"}
}

func sellerActor() Actor {
	return Actor{ID: "seller-1", Roles: []string{"Seller"}}
}

func customerActor() Actor {
	return Actor{ID: "cust-1", Roles: []string{"customer"}}
}

func money(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func moneyPtr(value string) *decimal.Decimal {
	d := money(value)
	return &d
}

func fixtureOrder(id string, status domain.OrderStatus, total string) domain.Order {
	return domain.Order{
		ID:          id,
		OrderNumber: "HF-" + id,
		Status:      status,
		Amounts:     domain.OrderAmounts{Subtotal: money(total), Total: money(total)},
		Contact:     &domain.OrderContact{Name: "Customer " + id, Email: id + "@example.com"},
		Version:     1,
		CreatedAt:   fixtureNow.Add(-time.Hour),
		UpdatedAt:   fixtureNow.Add(-time.Hour),
	}
}

// fixtureOrders builds n processing orders created one minute apart, newest last.
func fixtureOrders(n int) []domain.Order {
	orders := make([]domain.Order, 0, n)
	for i := 0; i < n; i++ {
		order := fixtureOrder(fmt.Sprintf("ord-%03d", i), domain.OrderStatusProcessing, "100")
		order.CreatedAt = fixtureNow.Add(-time.Duration(n-i) * time.Minute)
		orders = append(orders, order)
	}
	return orders
}

type recordingAuditService struct {
	mu      sync.Mutex
	records []AuditLogRecord
}

func (r *recordingAuditService) Record(_ context.Context, record AuditLogRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *recordingAuditService) List(context.Context, Actor, AuditLogFilter) (domain.OffsetPage[domain.AuditLogEntry], error) {
	return domain.OffsetPage[domain.AuditLogEntry]{}, nil
}

func (r *recordingAuditService) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderMutationEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderMutationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type capturedLog struct {
	event  string
	fields map[string]any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []capturedLog
}

func (l *recordingLogger) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, capturedLog{event: event, fields: fields})
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.event == event {
			return true
		}
	}
	return false
}

type engineHarness struct {
	orders    *memory.OrderRepository
	audit     *recordingAuditService
	publisher *recordingPublisher
	logger    *recordingLogger
}

func newEngineHarness(orders ...domain.Order) *engineHarness {
	return &engineHarness{
		orders:    memory.NewOrderRepository(orders...),
		audit:     &recordingAuditService{},
		publisher: &recordingPublisher{},
		logger:    &recordingLogger{},
	}
}

func (h *engineHarness) deps() OrderEngineDeps {
	return OrderEngineDeps{
		Orders: h.orders,
		Audit:  h.audit,
		Events: h.publisher,
		Clock:  fixedClock,
		Logger: h.logger.log,
	}
}

func (h *engineHarness) order(id string) domain.Order {
	order, err := h.orders.FindByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return order
}
