package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// DefaultConfirmToken is the literal destructive bulk actions must echo back.
const DefaultConfirmToken = "CONFIRM"

// BulkMetrics receives one observation per bulk execution.
type BulkMetrics interface {
	RecordBulkExecution(ctx context.Context, action, outcome string, affected int, elapsed time.Duration)
}

// Bulk execution outcomes reported to metrics.
const (
	bulkOutcomeApplied  = "applied"
	bulkOutcomeDryRun   = "dry_run"
	bulkOutcomeNoTarget = "no_targets"
	bulkOutcomeRejected = "rejected"
	bulkOutcomeFailed   = "failed"
)

// OrderBulkExecutorDeps configures the bulk executor.
type OrderBulkExecutorDeps struct {
	Orders       repositories.OrderRepository
	Resolver     ScopeResolver
	Audit        AuditLogService
	Events       OrderEventPublisher
	Metrics      BulkMetrics
	ConfirmToken string
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderBulkExecutor struct {
	orders       repositories.OrderRepository
	resolver     ScopeResolver
	audit        AuditLogService
	events       *orderEventEmitter
	metrics      BulkMetrics
	confirmToken string
	clock        func() time.Time
	logger       func(context.Context, string, map[string]any)
}

// NewOrderBulkExecutor constructs the bulk executor.
func NewOrderBulkExecutor(deps OrderBulkExecutorDeps) (OrderBulkExecutor, error) {
	if deps.Orders == nil {
		return nil, errors.New("order bulk executor: order repository is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("order bulk executor: scope resolver is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("order bulk executor: audit log service is required")
	}
	token := strings.TrimSpace(deps.ConfirmToken)
	if token == "" {
		token = DefaultConfirmToken
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderBulkExecutor{
		orders:       deps.Orders,
		resolver:     deps.Resolver,
		audit:        deps.Audit,
		events:       newOrderEventEmitter(deps.Events, logger),
		metrics:      deps.Metrics,
		confirmToken: token,
		clock:        func() time.Time { return clock().UTC() },
		logger:       logger,
	}, nil
}

func (e *orderBulkExecutor) Actions() []BulkActionDescriptor {
	return BulkActions()
}

// Execute resolves the scope, then applies the action to every target in one batch. It returns
// ok:true whenever the batch ran, even if some orders were not changed.
func (e *orderBulkExecutor) Execute(ctx context.Context, req BulkActionRequest) MutationResult {
	started := time.Now()
	result, outcome := e.execute(ctx, req)
	if e.metrics != nil {
		e.metrics.RecordBulkExecution(ctx, strings.TrimSpace(req.Action), outcome, result.AffectedCount, time.Since(started))
	}
	return result
}

func (e *orderBulkExecutor) execute(ctx context.Context, req BulkActionRequest) (MutationResult, string) {
	if err := authorize(req.Actor); err != nil {
		return e.reject(ctx, req, err), bulkOutcomeRejected
	}
	strategy, ok := lookupBulkStrategy(req.Action)
	if !ok {
		return e.reject(ctx, req, validationError(msgUnknownAction, fmt.Errorf("%w: action %q", ErrOrderValidation, req.Action))), bulkOutcomeRejected
	}
	planner, params, err := strategy.prepare(req.ActionParams)
	if err != nil {
		return e.reject(ctx, req, err), bulkOutcomeRejected
	}
	if strategy.confirm && strings.TrimSpace(req.ConfirmToken) != e.confirmToken {
		return e.reject(ctx, req, validationError(msgConfirmRequired, nil)), bulkOutcomeRejected
	}

	targets, err := e.resolver.Resolve(ctx, ScopeRequest{Scope: req.Scope, Params: req.FilterParams, IDs: req.IDs})
	if err != nil {
		if classifyError(err).Kind == ErrorKindPersistence {
			return e.storeFailure(ctx, req, err), bulkOutcomeFailed
		}
		return e.reject(ctx, req, err), bulkOutcomeRejected
	}
	if targets.IsEmpty() {
		return noTargets(req.DryRun), bulkOutcomeNoTarget
	}

	now := e.clock()
	if req.DryRun {
		return e.dryRun(ctx, req, strategy, planner, targets, now)
	}

	var (
		batch   repositories.OrderBatchResult
		written []string
	)
	if strategy.kind == BulkKindDelete {
		batch, err = e.orders.DeleteMany(ctx, targets.Target())
	} else {
		batch, err = e.orders.UpdateMany(ctx, targets.Target(), func(order domain.Order) (repositories.OrderMutation, bool, error) {
			mutation, changed, err := planner(order, now)
			if err != nil || !changed {
				return repositories.OrderMutation{}, false, err
			}
			mutation.OrderID = order.ID
			mutation.UpdatedAt = now
			written = append(written, order.ID)
			return mutation, true, nil
		})
	}
	if err != nil {
		if batch.Applied == 0 {
			return e.storeFailure(ctx, req, err), bulkOutcomeFailed
		}
		e.logger(ctx, "orders.bulk.partial", map[string]any{
			"action":  strategy.action,
			"scope":   targets.Scope,
			"applied": batch.Applied,
			"error":   err.Error(),
		})
	}

	resolved := len(targets.IDs)
	if targets.Filter != nil {
		resolved = batch.Matched
		if resolved == 0 {
			return noTargets(false), bulkOutcomeNoTarget
		}
	}
	affected := batch.Applied

	var affectedIDs []string
	if strategy.kind == BulkKindDelete {
		affectedIDs = excludeFailed(targets.IDs, batch.Failures)
	} else {
		affectedIDs = excludeFailed(written, batch.Failures)
	}

	e.audit.Record(ctx, AuditLogRecord{
		Actor:         req.Actor.Ref(),
		ActorType:     "staff",
		Action:        "orders.bulk." + strategy.action,
		Scope:         targets.Scope,
		TargetRef:     "/orders",
		TargetIDs:     targets.IDs,
		Filters:       targets.Description,
		Params:        params,
		Metadata:      batchMetadata(batch),
		ResolvedCount: resolved,
		AffectedCount: affected,
		IPAddress:     req.Actor.IPAddress,
		UserAgent:     req.Actor.UserAgent,
		RequestID:     req.Actor.RequestID,
		Severity:      bulkSeverity(strategy),
		OccurredAt:    now,
	})

	if len(batch.Failures) > 0 {
		e.logger(ctx, "orders.bulk.failures", map[string]any{
			"action":   strategy.action,
			"scope":    targets.Scope,
			"failed":   len(batch.Failures),
			"resolved": resolved,
		})
	}

	e.events.emit(ctx, OrderMutationEvent{
		Action:        strategy.action,
		Scope:         targets.Scope,
		OrderIDs:      affectedIDs,
		Filter:        filterForEvent(targets),
		AffectedCount: affected,
		ActorID:       req.Actor.ID,
		OccurredAt:    now,
	})

	return MutationResult{
		OK:            true,
		AffectedCount: affected,
		ResolvedCount: resolved,
		Message:       executedMessage(strategy, affected, resolved),
	}, bulkOutcomeApplied
}

// dryRun evaluates the strategy against every target without writing anything.
func (e *orderBulkExecutor) dryRun(ctx context.Context, req BulkActionRequest, strategy bulkStrategy, planner bulkPlanner, targets TargetSet, now time.Time) (MutationResult, string) {
	wouldChange := 0
	visited, err := e.orders.Scan(ctx, targets.Target(), func(order domain.Order) error {
		if planner == nil {
			wouldChange++
			return nil
		}
		if _, changed, err := planner(order, now); err == nil && changed {
			wouldChange++
		}
		return nil
	})
	if err != nil {
		return e.storeFailure(ctx, req, err), bulkOutcomeFailed
	}
	resolved := len(targets.IDs)
	if targets.Filter != nil {
		resolved = visited
		if resolved == 0 {
			return noTargets(true), bulkOutcomeNoTarget
		}
	}
	return MutationResult{
		OK:            true,
		AffectedCount: wouldChange,
		ResolvedCount: resolved,
		DryRun:        true,
		Message:       fmt.Sprintf("%s would be %s", pluralOrders(wouldChange), verbFor(strategy)),
	}, bulkOutcomeDryRun
}

func (e *orderBulkExecutor) reject(ctx context.Context, req BulkActionRequest, err error) MutationResult {
	classified := classifyError(err)
	e.logger(ctx, "orders.bulk.rejected", map[string]any{
		"action": strings.TrimSpace(req.Action),
		"scope":  strings.TrimSpace(req.Scope),
		"kind":   string(classified.Kind),
		"error":  err.Error(),
	})
	return MutationResult{OK: false, Kind: classified.Kind, Message: classified.Message, DryRun: req.DryRun}
}

func (e *orderBulkExecutor) storeFailure(ctx context.Context, req BulkActionRequest, err error) MutationResult {
	e.logger(ctx, "orders.bulk.failed", map[string]any{
		"action": strings.TrimSpace(req.Action),
		"scope":  strings.TrimSpace(req.Scope),
		"error":  err.Error(),
	})
	return MutationResult{OK: false, Kind: ErrorKindPersistence, Message: msgBulkUpdateFailed, DryRun: req.DryRun}
}

func noTargets(dryRun bool) MutationResult {
	return MutationResult{OK: false, Kind: ErrorKindNotFound, Message: msgNoOrdersMatched, DryRun: dryRun}
}

func excludeFailed(ids []string, failures []repositories.OrderBatchFailure) []string {
	if len(ids) == 0 {
		return nil
	}
	failed := make(map[string]struct{}, len(failures))
	for _, failure := range failures {
		failed[failure.OrderID] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := failed[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// batchMetadata summarises per-order outcomes by kind. Order ids of failures are not recorded.
func batchMetadata(batch repositories.OrderBatchResult) map[string]any {
	meta := map[string]any{
		"skipped": batch.Skipped,
		"failed":  len(batch.Failures),
	}
	if len(batch.Failures) > 0 {
		kinds := make(map[string]int)
		for _, failure := range batch.Failures {
			kinds[string(classifyError(failure.Err).Kind)]++
		}
		meta["failureKinds"] = kinds
	}
	return meta
}

func filterForEvent(targets TargetSet) map[string]any {
	if targets.Filter == nil {
		return nil
	}
	return targets.Description
}

func bulkSeverity(strategy bulkStrategy) string {
	if strategy.sensitive {
		return "warn"
	}
	return "info"
}

func verbFor(strategy bulkStrategy) string {
	if strategy.kind == BulkKindDelete {
		return "deleted"
	}
	return "updated"
}

func pluralOrders(n int) string {
	if n == 1 {
		return "1 order"
	}
	return fmt.Sprintf("%d orders", n)
}

func executedMessage(strategy bulkStrategy, affected, resolved int) string {
	if affected == resolved {
		return fmt.Sprintf("%s %s", pluralOrders(affected), verbFor(strategy))
	}
	return fmt.Sprintf("%d of %s %s", affected, pluralOrders(resolved), verbFor(strategy))
}
