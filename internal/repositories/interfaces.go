package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	AuditLogs() AuditLogRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ErrVersionMismatch is returned by UpdateOne when the stored version differs from the expected one.
var ErrVersionMismatch = errors.New("repositories: order version mismatch")

// OrderRepository persists orders and applies single and bulk mutations.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByIDs returns the orders that exist, in request order. Missing ids are skipped.
	FindByIDs(ctx context.Context, orderIDs []string) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.OffsetPage[domain.Order], error)
	// ListIDs returns only the identifiers of the page List would return for the same filter.
	ListIDs(ctx context.Context, filter OrderListFilter) ([]string, error)
	// Scan streams every order in the target to fn and returns how many were visited.
	Scan(ctx context.Context, target OrderTarget, fn func(domain.Order) error) (int, error)
	// UpdateOne runs fn against the current document and persists the mutation atomically.
	// A nil expectedVersion skips the version check.
	UpdateOne(ctx context.Context, orderID string, expectedVersion *int64, fn OrderMutator) (domain.Order, error)
	// UpdateMany applies fn to every order in the target as one unordered batch of per-document writes.
	UpdateMany(ctx context.Context, target OrderTarget, fn OrderMutator) (OrderBatchResult, error)
	DeleteMany(ctx context.Context, target OrderTarget) (OrderBatchResult, error)
}

// OrderMutator computes the mutation for one order. Returning changed=false skips the write.
type OrderMutator func(order domain.Order) (mutation OrderMutation, changed bool, err error)

// AuditLogRepository appends and lists audit entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.OffsetPage[domain.AuditLogEntry], error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// OrderSortField names the attribute an order listing is ordered by.
type OrderSortField string

const (
	OrderSortCreatedAt   OrderSortField = "createdAt"
	OrderSortTotal       OrderSortField = "total"
	OrderSortOrderNumber OrderSortField = "orderNumber"
)

// OrderSort is the primary ordering. Ties are always broken by document id in the same direction.
type OrderSort struct {
	Field OrderSortField
	Order domain.SortOrder
}

// OrderFilter is a predicate over orders built from listing parameters.
type OrderFilter struct {
	// Search is a single normalised keyword matched against the order's search keywords.
	Search       string
	Statuses     []domain.OrderStatus
	CreatedRange domain.RangeQuery[time.Time]
	Sort         OrderSort
}

// OrderListFilter selects one page of a filtered listing.
type OrderListFilter struct {
	OrderFilter
	Page     int
	PageSize int
}

// Offset returns the number of documents skipped before the page.
func (f OrderListFilter) Offset() int {
	if f.Page <= 1 || f.PageSize <= 0 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// OrderTarget is either an explicit id list or a filter predicate. Filter takes precedence.
type OrderTarget struct {
	IDs    []string
	Filter *OrderFilter
}

// IsPredicate reports whether the target is resolved by the store from a filter.
func (t OrderTarget) IsPredicate() bool {
	return t.Filter != nil
}

// OrderBatchResult summarises a bulk write.
type OrderBatchResult struct {
	// Matched counts requested ids, or documents visited for predicate targets.
	Matched  int
	Applied  int
	Skipped  int
	Failures []OrderBatchFailure
}

// OrderBatchFailure records why a single target was not written.
type OrderBatchFailure struct {
	OrderID string
	Err     error
}

type AuditLogFilter struct {
	Actor    string
	Action   string
	Page     int
	PageSize int
}
