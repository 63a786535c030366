package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/pagination"
	"github.com/hanko-field/orderdesk/internal/platform/textutil"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const dateLayout = "2006-01-02"

// Sort keys accepted by the listing and the page scope.
var orderSorts = map[string]repositories.OrderSort{
	"createdAt_desc":   {Field: repositories.OrderSortCreatedAt, Order: domain.SortDesc},
	"createdAt_asc":    {Field: repositories.OrderSortCreatedAt, Order: domain.SortAsc},
	"total_desc":       {Field: repositories.OrderSortTotal, Order: domain.SortDesc},
	"total_asc":        {Field: repositories.OrderSortTotal, Order: domain.SortAsc},
	"orderNumber_asc":  {Field: repositories.OrderSortOrderNumber, Order: domain.SortAsc},
	"orderNumber_desc": {Field: repositories.OrderSortOrderNumber, Order: domain.SortDesc},
}

const defaultOrderSortKey = "createdAt_desc"

// OrderListOptions returns the pagination limits applied to order listings.
func OrderListOptions(defaultPageSize, maxPageSize int) pagination.Options {
	sorts := make([]string, 0, len(orderSorts))
	for key := range orderSorts {
		sorts = append(sorts, key)
	}
	return pagination.Options{
		DefaultPageSize: defaultPageSize,
		MaxPageSize:     maxPageSize,
		AllowedSorts:    sorts,
		DefaultSort:     defaultOrderSortKey,
	}
}

// TargetSet is the resolved target of a bulk action: an explicit id list or a filter predicate.
type TargetSet struct {
	Scope  string
	IDs    []string
	Filter *repositories.OrderFilter
	// Description is the audit-safe summary of how the targets were chosen.
	Description map[string]any
}

// IsEmpty reports whether an id-based target set carries no ids. Predicate sets are never empty
// until the store has been asked.
func (t TargetSet) IsEmpty() bool {
	return t.Filter == nil && len(t.IDs) == 0
}

// Target converts the set into the repository addressing form.
func (t TargetSet) Target() repositories.OrderTarget {
	if t.Filter != nil {
		filter := *t.Filter
		return repositories.OrderTarget{Filter: &filter}
	}
	return repositories.OrderTarget{IDs: append([]string(nil), t.IDs...)}
}

// BuildOrderListFilter converts listing parameters into a repository filter. The admin listing and
// the page scope both go through here so they always agree on what a page contains.
func BuildOrderListFilter(params OrderListParams, opts pagination.Options) (repositories.OrderListFilter, error) {
	paging, err := pagination.Normalize(pagination.Params{
		Page:     params.Page,
		PageSize: params.PageSize,
		Sort:     params.Sort,
	}, opts)
	if err != nil {
		return repositories.OrderListFilter{}, validationError(msgInvalidListParams, err)
	}
	sort, ok := orderSorts[paging.Sort]
	if !ok {
		sort = repositories.DefaultOrderSort
	}

	filter := repositories.OrderFilter{
		Search: textutil.NormalizeKeyword(params.Search),
		Sort:   sort,
	}

	statuses, err := parseStatusList(params.Status)
	if err != nil {
		return repositories.OrderListFilter{}, err
	}
	filter.Statuses = statuses

	if raw := strings.TrimSpace(params.From); raw != "" {
		from, err := parseBoundary(raw, false)
		if err != nil {
			return repositories.OrderListFilter{}, validationError(msgInvalidListParams, err)
		}
		filter.CreatedRange.From = &from
	}
	if raw := strings.TrimSpace(params.To); raw != "" {
		to, err := parseBoundary(raw, true)
		if err != nil {
			return repositories.OrderListFilter{}, validationError(msgInvalidListParams, err)
		}
		filter.CreatedRange.To = &to
	}
	if filter.CreatedRange.From != nil && filter.CreatedRange.To != nil && filter.CreatedRange.From.After(*filter.CreatedRange.To) {
		return repositories.OrderListFilter{}, validationError(msgInvalidListParams, errors.New("from is after to"))
	}

	return repositories.OrderListFilter{
		OrderFilter: filter,
		Page:        paging.Page,
		PageSize:    paging.PageSize,
	}, nil
}

func parseStatusList(raw string) ([]domain.OrderStatus, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	seen := make(map[domain.OrderStatus]struct{})
	var statuses []domain.OrderStatus
	for _, part := range strings.Split(raw, ",") {
		status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(part)))
		if status == "" {
			continue
		}
		if !status.Valid() {
			return nil, validationError(msgInvalidListParams, fmt.Errorf("%w: status %q", ErrOrderValidation, status))
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// parseBoundary accepts a calendar date or an RFC 3339 timestamp. A bare date used as the upper
// bound covers the whole day.
func parseBoundary(raw string, upper bool) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	if upper {
		return day.Add(24*time.Hour - time.Nanosecond).UTC(), nil
	}
	return day.UTC(), nil
}

// describeFilter renders the filter part of the listing parameters for audit entries.
func describeFilter(params OrderListParams) map[string]any {
	out := make(map[string]any)
	if v := strings.TrimSpace(params.Search); v != "" {
		out["search"] = v
	}
	if v := strings.TrimSpace(params.From); v != "" {
		out["from"] = v
	}
	if v := strings.TrimSpace(params.To); v != "" {
		out["to"] = v
	}
	if v := strings.TrimSpace(params.Status); v != "" {
		out["status"] = v
	}
	if v := strings.TrimSpace(params.Sort); v != "" {
		out["sort"] = v
	}
	return out
}

// OrderScopeResolverDeps configures the scope resolver.
type OrderScopeResolverDeps struct {
	Orders          repositories.OrderRepository
	DefaultPageSize int
	MaxPageSize     int
}

type orderScopeResolver struct {
	orders  repositories.OrderRepository
	listing pagination.Options
}

// NewOrderScopeResolver constructs the resolver used by bulk execution.
func NewOrderScopeResolver(deps OrderScopeResolverDeps) (ScopeResolver, error) {
	if deps.Orders == nil {
		return nil, errors.New("order scope resolver: order repository is required")
	}
	return &orderScopeResolver{
		orders:  deps.Orders,
		listing: OrderListOptions(deps.DefaultPageSize, deps.MaxPageSize),
	}, nil
}

// Resolve decides which orders a bulk action addresses. It never looks at action parameters.
func (r *orderScopeResolver) Resolve(ctx context.Context, req ScopeRequest) (TargetSet, error) {
	scope := strings.ToLower(strings.TrimSpace(req.Scope))
	switch scope {
	case ScopeSelected:
		ids := repositories.NormalizeTargetIDs(req.IDs)
		return TargetSet{Scope: ScopeSelected, IDs: ids, Description: map[string]any{"ids": len(ids)}}, nil

	case ScopePage:
		filter, err := BuildOrderListFilter(req.Params, r.listing)
		if err != nil {
			return TargetSet{}, err
		}
		ids, err := r.orders.ListIDs(ctx, filter)
		if err != nil {
			return TargetSet{}, fmt.Errorf("%w: resolve page: %w", ErrOrderPersistence, err)
		}
		desc := describeFilter(req.Params)
		desc["page"] = filter.Page
		desc["pageSize"] = filter.PageSize
		return TargetSet{Scope: ScopePage, IDs: ids, Description: desc}, nil

	case ScopeFiltered:
		filter, err := BuildOrderListFilter(req.Params, r.listing)
		if err != nil {
			return TargetSet{}, err
		}
		predicate := filter.OrderFilter
		return TargetSet{Scope: ScopeFiltered, Filter: &predicate, Description: describeFilter(req.Params)}, nil
	}
	return TargetSet{}, validationError(msgUnknownScope, fmt.Errorf("%w: scope %q", ErrOrderValidation, req.Scope))
}
