package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/orderdesk/internal/platform/config"
	"github.com/hanko-field/orderdesk/internal/platform/observability"
	"github.com/hanko-field/orderdesk/internal/repositories"
	"github.com/hanko-field/orderdesk/internal/services"
)

const healthReportTTL = 2 * time.Second

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Audit    services.AuditLogService
	Queries  services.OrderQueryService
	Status   services.OrderStatusEngine
	Amounts  services.AmountRecalculator
	Resolver services.ScopeResolver
	Bulk     services.OrderBulkExecutor
	System   services.SystemService
}

// Infrastructure carries the already constructed adapters the services are built on. Only Registry
// is required; a nil publisher, sink list or metrics recorder disables that concern.
type Infrastructure struct {
	Registry   repositories.Registry
	Events     services.OrderEventPublisher
	AuditSinks []services.AuditSink
	Metrics    services.BulkMetrics
	Logger     *zap.Logger
	Clock      func() time.Time
	Build      services.BuildInfo
	// Closers run in reverse order after the registry is closed.
	Closers []func(context.Context) error
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services

	closers []func(context.Context) error
}

// NewContainer constructs the runtime dependencies. Tests pass the in-memory registry.
func NewContainer(cfg config.Config, infra Infrastructure) (*Container, error) {
	if infra.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	svc, err := buildServices(cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: infra.Registry,
		Services:     svc,
		closers:      append([]func(context.Context) error(nil), infra.Closers...),
	}, nil
}

// Close releases the registry and then every extra closer, returning the joined errors.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close registry: %w", err))
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if c.closers[i] == nil {
			continue
		}
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildServices(cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services
	reg := infra.Registry
	logger := infra.Logger

	auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: reg.AuditLogs(),
		Sinks:      infra.AuditSinks,
		Clock:      infra.Clock,
		Logger:     observability.NewPrintfAdapter(logger.Named("audit")),
		HashSalt:   cfg.Audit.HashSalt,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = auditSvc

	engine := services.OrderEngineDeps{
		Orders: reg.Orders(),
		Audit:  auditSvc,
		Events: infra.Events,
		Clock:  infra.Clock,
		Logger: observability.ServiceLogger(logger.Named("orders")),
	}

	if svc.Status, err = services.NewOrderStatusEngine(engine); err != nil {
		return Services{}, fmt.Errorf("build order status engine: %w", err)
	}
	if svc.Amounts, err = services.NewAmountRecalculator(engine); err != nil {
		return Services{}, fmt.Errorf("build amount recalculator: %w", err)
	}
	if svc.Queries, err = services.NewOrderQueryService(services.OrderQueryServiceDeps{
		OrderEngineDeps: engine,
		DefaultPageSize: cfg.Orders.DefaultPageSize,
		MaxPageSize:     cfg.Orders.MaxPageSize,
	}); err != nil {
		return Services{}, fmt.Errorf("build order query service: %w", err)
	}

	if svc.Resolver, err = services.NewOrderScopeResolver(services.OrderScopeResolverDeps{
		Orders:          reg.Orders(),
		DefaultPageSize: cfg.Orders.DefaultPageSize,
		MaxPageSize:     cfg.Orders.MaxPageSize,
	}); err != nil {
		return Services{}, fmt.Errorf("build scope resolver: %w", err)
	}
	if svc.Bulk, err = services.NewOrderBulkExecutor(services.OrderBulkExecutorDeps{
		Orders:       reg.Orders(),
		Resolver:     svc.Resolver,
		Audit:        auditSvc,
		Events:       infra.Events,
		Metrics:      infra.Metrics,
		ConfirmToken: cfg.Orders.ConfirmToken,
		Clock:        infra.Clock,
		Logger:       observability.ServiceLogger(logger.Named("bulk")),
	}); err != nil {
		return Services{}, fmt.Errorf("build bulk executor: %w", err)
	}

	if health := reg.Health(); health != nil {
		if svc.System, err = services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Clock:            infra.Clock,
			Build:            infra.Build,
			ReportTTL:        healthReportTTL,
		}); err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
	}

	return svc, nil
}
