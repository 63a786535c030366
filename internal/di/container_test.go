package di

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/config"
	"github.com/hanko-field/orderdesk/internal/repositories"
	"github.com/hanko-field/orderdesk/internal/repositories/memory"
	"github.com/hanko-field/orderdesk/internal/services"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type recordingSink struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

func (s *recordingSink) Append(_ context.Context, entry domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

type recordingPublisher struct {
	events []services.OrderMutationEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event services.OrderMutationEvent) error {
	p.events = append(p.events, event)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Orders: config.OrdersConfig{
			Backend:         config.BackendMemory,
			ConfirmToken:    "YES",
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
	}
}

func seededRegistry(t *testing.T, health repositories.HealthRepository) *memory.Registry {
	t.Helper()
	reg := memory.NewRegistry(health)
	for _, id := range []string{"ord-1", "ord-2"} {
		reg.OrderStore().Seed(domain.Order{
			ID:        id,
			Status:    domain.OrderStatusProcessing,
			Amounts:   domain.OrderAmounts{Subtotal: decimal.NewFromInt(100), Total: decimal.NewFromInt(100)},
			Version:   1,
			CreatedAt: testNow.Add(-time.Hour),
		})
	}
	return reg
}

func admin() services.Actor {
	return services.Actor{ID: "op-1", Roles: []string{services.RoleAdmin}}
}

func TestNewContainer_RequiresRegistry(t *testing.T) {
	if _, err := NewContainer(testConfig(), Infrastructure{}); err == nil {
		t.Fatalf("expected error without registry")
	}
}

func TestNewContainer_WiresBulkThroughSinksAndEvents(t *testing.T) {
	reg := seededRegistry(t, nil)
	sink := &recordingSink{}
	events := &recordingPublisher{}
	container, err := NewContainer(testConfig(), Infrastructure{
		Registry:   reg,
		Events:     events,
		AuditSinks: []services.AuditSink{sink},
		Clock:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	if container.Services.System != nil {
		t.Fatalf("expected no system service without a health repository")
	}

	result := container.Services.Bulk.Execute(context.Background(), services.BulkActionRequest{
		Actor:  admin(),
		Action: "cancel",
		Scope:  services.ScopeSelected,
		IDs:    []string{"ord-1", "ord-2"},
	})
	if result.OK {
		t.Fatalf("expected cancel without the configured token to fail")
	}

	result = container.Services.Bulk.Execute(context.Background(), services.BulkActionRequest{
		Actor:        admin(),
		Action:       "cancel",
		Scope:        services.ScopeSelected,
		IDs:          []string{"ord-1", "ord-2"},
		ConfirmToken: "YES",
	})
	if !result.OK || result.AffectedCount != 2 {
		t.Fatalf("unexpected result %#v", result)
	}

	order, err := container.Services.Queries.GetOrder(context.Background(), admin(), "ord-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}
	if got := len(reg.AuditStore().Entries()); got != 1 {
		t.Fatalf("expected one audit entry, got %d", got)
	}
	if len(sink.entries) != 1 {
		t.Fatalf("expected sink to receive the entry, got %d", len(sink.entries))
	}
	if len(events.events) != 1 || events.events[0].AffectedCount != 2 {
		t.Fatalf("expected one mutation event, got %#v", events.events)
	}
}

type staticHealth struct{}

func (staticHealth) Collect(context.Context) (domain.HealthReport, error) {
	return domain.HealthReport{Status: domain.HealthStatusOK}, nil
}

func TestNewContainer_BuildsSystemServiceWithHealth(t *testing.T) {
	container, err := NewContainer(testConfig(), Infrastructure{Registry: seededRegistry(t, staticHealth{})})
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	if container.Services.System == nil {
		t.Fatalf("expected system service")
	}
}

func TestContainer_CloseRunsClosersInReverse(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	container, err := NewContainer(testConfig(), Infrastructure{
		Registry: seededRegistry(t, nil),
		Closers: []func(context.Context) error{
			func(context.Context) error { order = append(order, "first"); return nil },
			func(context.Context) error { order = append(order, "second"); return boom },
		},
	})
	if err != nil {
		t.Fatalf("new container: %v", err)
	}

	err = container.Close(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined closer error, got %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("unexpected close order %v", order)
	}
}
