package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/textutil"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// OrderRepository keeps orders in process memory. It is used by tests and local runs without a
// Firestore emulator. Filtering, ordering and paging follow the Firestore repository.
type OrderRepository struct {
	mu        sync.RWMutex
	orders    map[string]domain.Order
	writeHook func(orderID string) error
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a repository seeded with the provided orders.
func NewOrderRepository(orders ...domain.Order) *OrderRepository {
	repo := &OrderRepository{orders: make(map[string]domain.Order)}
	repo.Seed(orders...)
	return repo
}

// Seed inserts or replaces orders. Orders without an id are ignored.
func (r *OrderRepository) Seed(orders ...domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range orders {
		id := strings.TrimSpace(order.ID)
		if id == "" {
			continue
		}
		order.ID = id
		r.orders[id] = order.Clone()
	}
}

// FailWrites installs a hook consulted before every per-order write. A non-nil error fails that
// write only. Passing nil removes the hook.
func (r *OrderRepository) FailWrites(hook func(orderID string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeHook = hook
}

// Len returns the number of stored orders.
func (r *OrderRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, repositories.NewOrderNotFoundError("memory.orders.find", orderID)
	}
	return order.Clone(), nil
}

func (r *OrderRepository) FindByIDs(ctx context.Context, orderIDs []string) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		if order, ok := r.orders[strings.TrimSpace(id)]; ok {
			out = append(out, order.Clone())
		}
	}
	return out, nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.OffsetPage[domain.Order], error) {
	if err := ctx.Err(); err != nil {
		return domain.OffsetPage[domain.Order]{}, err
	}
	r.mu.RLock()
	matched := r.filtered(filter.OrderFilter)
	r.mu.RUnlock()

	page := domain.OffsetPage[domain.Order]{
		Page:       max(filter.Page, 1),
		PageSize:   filter.PageSize,
		TotalItems: len(matched),
	}
	start := min(filter.Offset(), len(matched))
	end := len(matched)
	if filter.PageSize > 0 {
		end = min(start+filter.PageSize, len(matched))
	}
	page.Items = make([]domain.Order, 0, end-start)
	for _, order := range matched[start:end] {
		page.Items = append(page.Items, order.Clone())
	}
	page.HasNext = end < len(matched)
	return page, nil
}

func (r *OrderRepository) ListIDs(ctx context.Context, filter repositories.OrderListFilter) ([]string, error) {
	page, err := r.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page.Items))
	for _, order := range page.Items {
		ids = append(ids, order.ID)
	}
	return ids, nil
}

func (r *OrderRepository) Scan(ctx context.Context, target repositories.OrderTarget, fn func(domain.Order) error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	orders := r.targets(target)
	r.mu.RUnlock()

	visited := 0
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return visited, err
		}
		visited++
		if err := fn(order.Clone()); err != nil {
			return visited, err
		}
	}
	return visited, nil
}

func (r *OrderRepository) UpdateOne(ctx context.Context, orderID string, expectedVersion *int64, fn repositories.OrderMutator) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	const op = "memory.orders.update"
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, repositories.NewOrderNotFoundError(op, orderID)
	}
	if expectedVersion != nil && *expectedVersion != current.Version {
		return domain.Order{}, repositories.NewVersionMismatchError(op, current.ID, *expectedVersion, current.Version)
	}
	mutation, changed, err := fn(current.Clone())
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return current.Clone(), nil
	}
	if r.writeHook != nil {
		if err := r.writeHook(current.ID); err != nil {
			return domain.Order{}, err
		}
	}
	updated := mutation.Apply(current)
	r.orders[current.ID] = updated
	return updated.Clone(), nil
}

func (r *OrderRepository) UpdateMany(ctx context.Context, target repositories.OrderTarget, fn repositories.OrderMutator) (repositories.OrderBatchResult, error) {
	if err := ctx.Err(); err != nil {
		return repositories.OrderBatchResult{}, err
	}
	const op = "memory.orders.updateMany"
	r.mu.Lock()
	defer r.mu.Unlock()

	var result repositories.OrderBatchResult
	orders := r.targets(target)
	result.Matched = len(orders)
	if !target.IsPredicate() {
		result.Matched = len(target.IDs)
		result.Failures = r.missing(op, target.IDs)
	}
	for _, order := range orders {
		mutation, changed, err := fn(order.Clone())
		if err != nil {
			result.Failures = append(result.Failures, repositories.OrderBatchFailure{OrderID: order.ID, Err: err})
			continue
		}
		if !changed {
			result.Skipped++
			continue
		}
		if r.writeHook != nil {
			if err := r.writeHook(order.ID); err != nil {
				result.Failures = append(result.Failures, repositories.OrderBatchFailure{OrderID: order.ID, Err: err})
				continue
			}
		}
		r.orders[order.ID] = mutation.Apply(order)
		result.Applied++
	}
	return result, nil
}

func (r *OrderRepository) DeleteMany(ctx context.Context, target repositories.OrderTarget) (repositories.OrderBatchResult, error) {
	if err := ctx.Err(); err != nil {
		return repositories.OrderBatchResult{}, err
	}
	const op = "memory.orders.deleteMany"
	r.mu.Lock()
	defer r.mu.Unlock()

	var result repositories.OrderBatchResult
	orders := r.targets(target)
	result.Matched = len(orders)
	if !target.IsPredicate() {
		result.Matched = len(target.IDs)
		result.Failures = r.missing(op, target.IDs)
	}
	for _, order := range orders {
		if r.writeHook != nil {
			if err := r.writeHook(order.ID); err != nil {
				result.Failures = append(result.Failures, repositories.OrderBatchFailure{OrderID: order.ID, Err: err})
				continue
			}
		}
		delete(r.orders, order.ID)
		result.Applied++
	}
	return result, nil
}

// targets must be called with the lock held.
func (r *OrderRepository) targets(target repositories.OrderTarget) []domain.Order {
	if target.IsPredicate() {
		return r.filtered(*target.Filter)
	}
	out := make([]domain.Order, 0, len(target.IDs))
	for _, id := range target.IDs {
		if order, ok := r.orders[id]; ok {
			out = append(out, order)
		}
	}
	return out
}

func (r *OrderRepository) missing(op string, ids []string) []repositories.OrderBatchFailure {
	var failures []repositories.OrderBatchFailure
	for _, id := range ids {
		if _, ok := r.orders[id]; !ok {
			failures = append(failures, repositories.OrderBatchFailure{
				OrderID: id,
				Err:     repositories.NewOrderNotFoundError(op, id),
			})
		}
	}
	return failures
}

func (r *OrderRepository) filtered(filter repositories.OrderFilter) []domain.Order {
	search := textutil.NormalizeKeyword(filter.Search)
	out := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if matchesFilter(order, search, filter) {
			out = append(out, order)
		}
	}
	sortOrders(out, repositories.NormalizeSort(filter.Sort))
	return out
}

func matchesFilter(order domain.Order, search string, filter repositories.OrderFilter) bool {
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, order.Status) {
		return false
	}
	if from := filter.CreatedRange.From; from != nil && order.CreatedAt.Before(*from) {
		return false
	}
	if to := filter.CreatedRange.To; to != nil && order.CreatedAt.After(*to) {
		return false
	}
	if search != "" && !slices.Contains(repositories.OrderKeywords(order), search) {
		return false
	}
	return true
}

func sortOrders(orders []domain.Order, sort repositories.OrderSort) {
	slices.SortFunc(orders, func(a, b domain.Order) int {
		var cmp int
		switch sort.Field {
		case repositories.OrderSortTotal:
			cmp = a.Amounts.Total.Cmp(b.Amounts.Total)
		case repositories.OrderSortOrderNumber:
			cmp = strings.Compare(a.OrderNumber, b.OrderNumber)
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if cmp == 0 {
			cmp = strings.Compare(a.ID, b.ID)
		}
		if sort.Order == domain.SortDesc {
			return -cmp
		}
		return cmp
	})
}
