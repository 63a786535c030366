package services

import (
	"context"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

// Elevated roles allowed to mutate orders.
const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

// Actor identifies the operator behind an admin call. Handlers build it from the verified identity.
type Actor struct {
	ID        string
	Email     string
	Roles     []string
	IPAddress string
	UserAgent string
	RequestID string
}

// HasAnyRole reports whether the actor holds at least one of the roles.
func (a Actor) HasAnyRole(roles ...string) bool {
	for _, role := range a.Roles {
		if slices.Contains(roles, strings.ToLower(strings.TrimSpace(role))) {
			return true
		}
	}
	return false
}

// Ref is the actor reference written to audit entries.
func (a Actor) Ref() string {
	id := strings.TrimSpace(a.ID)
	if id == "" {
		return ""
	}
	return "/staff/" + id
}

// MutationResult is the uniform outcome of every mutating call. Failures never carry raw errors:
// Kind classifies the failure and Message is safe to show to the operator.
type MutationResult struct {
	OK            bool
	AffectedCount int
	ResolvedCount int
	DryRun        bool
	Message       string
	Kind          ErrorKind
	// Order is the order after the change for single-order calls.
	Order *domain.Order
}

// OrderStatusEngine validates and applies status changes on a single order.
type OrderStatusEngine interface {
	Transition(ctx context.Context, cmd TransitionCommand) MutationResult
}

// AmountRecalculator applies and clears discount and shipping adjustments on a single order.
type AmountRecalculator interface {
	ApplyDiscount(ctx context.Context, cmd ApplyDiscountCommand) MutationResult
	ClearDiscount(ctx context.Context, cmd OrderCommand) MutationResult
	ApplyShipping(ctx context.Context, cmd ApplyShippingCommand) MutationResult
	ClearShipping(ctx context.Context, cmd OrderCommand) MutationResult
}

// ScopeResolver turns a scope designator into a concrete target set.
type ScopeResolver interface {
	Resolve(ctx context.Context, req ScopeRequest) (TargetSet, error)
}

// OrderBulkExecutor runs one action across a resolved target set.
type OrderBulkExecutor interface {
	Execute(ctx context.Context, req BulkActionRequest) MutationResult
	Actions() []BulkActionDescriptor
}

// OrderQueryService serves the admin listing, order detail and billing edits.
type OrderQueryService interface {
	ListOrders(ctx context.Context, actor Actor, params OrderListParams) (domain.OffsetPage[domain.Order], error)
	GetOrder(ctx context.Context, actor Actor, orderID string) (domain.Order, error)
	UpdateBillingAddress(ctx context.Context, cmd UpdateBillingAddressCommand) MutationResult
}

// AuditLogService records and lists audit entries.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, actor Actor, filter AuditLogFilter) (domain.OffsetPage[domain.AuditLogEntry], error)
}

// SystemService exposes health information for readiness probes.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.HealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

// OrderCommand addresses a single order.
type OrderCommand struct {
	Actor           Actor
	OrderID         string
	ExpectedVersion *int64
}

// TransitionCommand requests a status change. Status is a target status or "revert".
type TransitionCommand struct {
	OrderCommand
	Status    string
	RiderName *string
}

type ApplyDiscountCommand struct {
	OrderCommand
	Mode  domain.DiscountMode
	Value float64
}

type ApplyShippingCommand struct {
	OrderCommand
	Fee float64
}

type UpdateBillingAddressCommand struct {
	OrderCommand
	Address domain.Address
}

// OrderListParams are the listing parameters shared by the admin listing and the page scope.
// Dates accept YYYY-MM-DD or RFC 3339. Status is a comma separated list.
type OrderListParams struct {
	Search   string `json:"search,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Sort     string `json:"sort,omitempty"`
	Status   string `json:"status,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
}

// Scope designators.
const (
	ScopeSelected = "selected"
	ScopePage     = "page"
	ScopeFiltered = "filtered"
)

type ScopeRequest struct {
	Scope  string
	Params OrderListParams
	IDs    []string
}

// BulkActionRequest is the decoded bulk-action body plus the calling actor.
type BulkActionRequest struct {
	Actor        Actor
	Action       string
	Scope        string
	IDs          []string
	FilterParams OrderListParams
	ActionParams map[string]any
	DryRun       bool
	ConfirmToken string
}

// BulkActionDescriptor documents one entry of the action catalogue.
type BulkActionDescriptor struct {
	Action               string
	Kind                 string
	Label                string
	RequiresConfirmation bool
	Sensitive            bool
}

// AuditLogRecord is the input to AuditLogService.Record.
type AuditLogRecord struct {
	Actor                 string
	ActorType             string
	Action                string
	Scope                 string
	TargetRef             string
	TargetIDs             []string
	Filters               map[string]any
	Params                map[string]any
	Metadata              map[string]any
	SensitiveMetadataKeys []string
	ResolvedCount         int
	AffectedCount         int
	IPAddress             string
	UserAgent             string
	RequestID             string
	Severity              string
	OccurredAt            time.Time
}

type AuditLogFilter struct {
	Actor    string
	Action   string
	Page     int
	PageSize int
}
