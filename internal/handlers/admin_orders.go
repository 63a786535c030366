package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/auth"
	"github.com/hanko-field/orderdesk/internal/platform/httpx"
	"github.com/hanko-field/orderdesk/internal/services"
)

const (
	maxOrderMutationBodySize int64 = 8 * 1024
	msgTooManyBulkRequests         = "Too many bulk requests"
	msgServiceUnavailable          = "Order service unavailable"
	msgInvalidDiscount             = "Invalid discount value"
	msgInvalidShipping             = "Invalid shipping fee"
)

// AdminOrderHandlersDeps bundles the services behind the admin order endpoints.
type AdminOrderHandlersDeps struct {
	Authenticator *auth.Authenticator
	Queries       services.OrderQueryService
	Status        services.OrderStatusEngine
	Amounts       services.AmountRecalculator
	Bulk          services.OrderBulkExecutor
	// BulkPerMinute and BulkBurst bound bulk requests per operator. Zero disables the limit.
	BulkPerMinute int
	BulkBurst     int
	// BulkTimeout bounds one bulk execution. MaxBulkSelection caps the ids of a selected scope.
	BulkTimeout      time.Duration
	MaxBulkSelection int
	Clock            func() time.Time
}

// AdminOrderHandlers exposes the admin order listing, single-order mutations and bulk actions.
type AdminOrderHandlers struct {
	authn       *auth.Authenticator
	queries     services.OrderQueryService
	status      services.OrderStatusEngine
	amounts     services.AmountRecalculator
	bulk        services.OrderBulkExecutor
	bulkLimiter rateLimiter
	bulkTimeout time.Duration
	maxSelected int
}

// NewAdminOrderHandlers constructs the admin order handlers.
func NewAdminOrderHandlers(deps AdminOrderHandlersDeps) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:       deps.Authenticator,
		queries:     deps.Queries,
		status:      deps.Status,
		amounts:     deps.Amounts,
		bulk:        deps.Bulk,
		bulkLimiter: newKeyedRateLimiter(deps.BulkPerMinute, deps.BulkBurst, deps.Clock),
		bulkTimeout: deps.BulkTimeout,
		maxSelected: deps.MaxBulkSelection,
	}
}

// Routes registers the /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		if h.authn != nil {
			r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleSeller))
		}
		r.Get("/orders", h.listOrders)
		r.Get("/orders/bulk-actions", h.listBulkActions)
		r.Post("/orders:bulk", h.executeBulk)
		r.Get("/orders/{orderId}", h.getOrder)
		r.Post("/orders/{orderId}/status", h.transitionStatus)
		r.Post("/orders/{orderId}/discount", h.applyDiscount)
		r.Delete("/orders/{orderId}/discount", h.clearDiscount)
		r.Post("/orders/{orderId}/shipping", h.applyShipping)
		r.Delete("/orders/{orderId}/shipping", h.clearShipping)
		r.Put("/orders/{orderId}/billing-address", h.updateBillingAddress)
	})
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	page, ok := parseOptionalInt(query, "page")
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page must be an integer", http.StatusBadRequest))
		return
	}
	pageSize, ok := parseOptionalInt(query, "pageSize")
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pageSize must be an integer", http.StatusBadRequest))
		return
	}

	params := services.OrderListParams{
		Search:   strings.TrimSpace(query.Get("search")),
		From:     strings.TrimSpace(query.Get("from")),
		To:       strings.TrimSpace(query.Get("to")),
		Sort:     strings.TrimSpace(query.Get("sort")),
		Status:   strings.Join(query["status"], ","),
		Page:     page,
		PageSize: pageSize,
	}
	result, err := h.queries.ListOrders(ctx, actorFromRequest(r), params)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderPageResponse(result))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	order, err := h.queries.GetOrder(ctx, actorFromRequest(r), chi.URLParam(r, "orderId"))
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

type bulkActionDescriptorResponse struct {
	Action               string `json:"action"`
	Kind                 string `json:"kind"`
	Label                string `json:"label"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
	Sensitive            bool   `json:"sensitive"`
}

func (h *AdminOrderHandlers) listBulkActions(w http.ResponseWriter, r *http.Request) {
	if h.bulk == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	descriptors := h.bulk.Actions()
	items := make([]bulkActionDescriptorResponse, 0, len(descriptors))
	for _, d := range descriptors {
		items = append(items, bulkActionDescriptorResponse{
			Action:               d.Action,
			Kind:                 d.Kind,
			Label:                d.Label,
			RequiresConfirmation: d.RequiresConfirmation,
			Sensitive:            d.Sensitive,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"actions": items})
}

type bulkActionRequest struct {
	BulkAction   string                   `json:"bulkAction"`
	Scope        string                   `json:"scope"`
	IDs          []string                 `json:"ids"`
	FilterParams services.OrderListParams `json:"filterParams"`
	ActionParams map[string]any           `json:"actionParams"`
	DryRun       bool                     `json:"dryRun"`
	ConfirmToken string                   `json:"confirmToken"`
}

func (h *AdminOrderHandlers) executeBulk(w http.ResponseWriter, r *http.Request) {
	if h.bulk == nil {
		writeMutation(w, http.StatusServiceUnavailable, services.MutationResult{Message: msgServiceUnavailable})
		return
	}
	actor := actorFromRequest(r)
	if h.bulkLimiter != nil && !h.bulkLimiter.Allow(actor.ID) {
		w.Header().Set("Retry-After", strconv.Itoa(60))
		writeMutation(w, http.StatusTooManyRequests, services.MutationResult{Message: msgTooManyBulkRequests})
		return
	}

	var body bulkActionRequest
	if err := httpx.DecodeJSON(w, r, httpx.DefaultBodyLimit, &body); err != nil {
		writeMutationDecodeError(w, err)
		return
	}
	if h.maxSelected > 0 && len(body.IDs) > h.maxSelected {
		writeMutation(w, http.StatusBadRequest, services.MutationResult{Message: fmt.Sprintf("At most %d orders can be selected", h.maxSelected)})
		return
	}

	ctx := r.Context()
	if h.bulkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.bulkTimeout)
		defer cancel()
	}
	writeMutationResult(w, h.bulk.Execute(ctx, services.BulkActionRequest{
		Actor:        actor,
		Action:       body.BulkAction,
		Scope:        body.Scope,
		IDs:          body.IDs,
		FilterParams: body.FilterParams,
		ActionParams: body.ActionParams,
		DryRun:       body.DryRun,
		ConfirmToken: body.ConfirmToken,
	}))
}

type statusChangeRequest struct {
	Status          string  `json:"status"`
	RiderName       *string `json:"riderName"`
	ExpectedVersion *int64  `json:"expectedVersion"`
}

func (h *AdminOrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeMutation(w, http.StatusServiceUnavailable, services.MutationResult{Message: msgServiceUnavailable})
		return
	}
	var body statusChangeRequest
	if err := httpx.DecodeJSON(w, r, maxOrderMutationBodySize, &body); err != nil {
		writeMutationDecodeError(w, err)
		return
	}
	writeMutationResult(w, h.status.Transition(r.Context(), services.TransitionCommand{
		OrderCommand: orderCommand(r, body.ExpectedVersion),
		Status:       body.Status,
		RiderName:    body.RiderName,
	}))
}

type discountRequest struct {
	Mode            string   `json:"mode"`
	Value           *float64 `json:"value"`
	ExpectedVersion *int64   `json:"expectedVersion"`
}

func (h *AdminOrderHandlers) applyDiscount(w http.ResponseWriter, r *http.Request) {
	if h.amounts == nil {
		writeMutation(w, http.StatusServiceUnavailable, services.MutationResult{Message: msgServiceUnavailable})
		return
	}
	var body discountRequest
	if err := httpx.DecodeJSON(w, r, maxOrderMutationBodySize, &body); err != nil {
		writeMutationDecodeError(w, err)
		return
	}
	if body.Value == nil {
		writeMutation(w, http.StatusBadRequest, services.MutationResult{Kind: services.ErrorKindValidation, Message: msgInvalidDiscount})
		return
	}
	writeMutationResult(w, h.amounts.ApplyDiscount(r.Context(), services.ApplyDiscountCommand{
		OrderCommand: orderCommand(r, body.ExpectedVersion),
		Mode:         domain.DiscountMode(strings.ToLower(strings.TrimSpace(body.Mode))),
		Value:        *body.Value,
	}))
}

func (h *AdminOrderHandlers) clearDiscount(w http.ResponseWriter, r *http.Request) {
	if h.amounts == nil {
		writeMutation(w, http.StatusServiceUnavailable, services.MutationResult{Message: msgServiceUnavailable})
		return
	}
	cmd, ok := orderCommandFromQuery(w, r)
	if !ok {
		return
	}
	writeMutationResult(w, h.amounts.ClearDiscount(r.Context(), cmd))
}

type shippingRequest struct {
	Fee             *float64 `json:"fee"`
	ExpectedVersion *int64   `json:"expectedVersion"`
}

func (h *AdminOrderHandlers) applyShipping(w http.ResponseWriter, r *http.Request) {
	if h.amounts == nil {
		writeMutation(w, http.StatusServiceUnavailable, services.MutationResult{Message: msgServiceUnavailable})
		return
	}
	var body shippingRequest
	if err := httpx.DecodeJSON(w, r, maxOrderMutationBodySize, &body); err != nil {
		writeMutationDecodeError(w, err)
		return
	}
	if body.Fee == nil {
		writeMutation(w, http.StatusBadRequest, services.MutationResult{Kind: services.ErrorKindValidation, Message: msgInvalidShipping})
		return
	}
	writeMutationResult(w, h.amounts.ApplyShipping(r.Context(), services.ApplyShippingCommand{
		OrderCommand: orderCommand(r, body.ExpectedVersion),
		Fee:          *body.Fee,
	}))
}

func (h *AdminOrderHandlers) clearShipping(w http.ResponseWriter, r *http.Request) {
	if h.amounts == nil {
		writeMutation(w, http.StatusServiceUnavailable, services.MutationResult{Message: msgServiceUnavailable})
		return
	}
	cmd, ok := orderCommandFromQuery(w, r)
	if !ok {
		return
	}
	writeMutationResult(w, h.amounts.ClearShipping(r.Context(), cmd))
}

type billingAddressRequest struct {
	addressPayload
	ExpectedVersion *int64 `json:"expectedVersion"`
}

func (h *AdminOrderHandlers) updateBillingAddress(w http.ResponseWriter, r *http.Request) {
	if h.queries == nil {
		writeMutation(w, http.StatusServiceUnavailable, services.MutationResult{Message: msgServiceUnavailable})
		return
	}
	var body billingAddressRequest
	if err := httpx.DecodeJSON(w, r, maxOrderMutationBodySize, &body); err != nil {
		writeMutationDecodeError(w, err)
		return
	}
	writeMutationResult(w, h.queries.UpdateBillingAddress(r.Context(), services.UpdateBillingAddressCommand{
		OrderCommand: orderCommand(r, body.ExpectedVersion),
		Address:      body.toDomain(),
	}))
}

func orderCommand(r *http.Request, expectedVersion *int64) services.OrderCommand {
	return services.OrderCommand{
		Actor:           actorFromRequest(r),
		OrderID:         chi.URLParam(r, "orderId"),
		ExpectedVersion: expectedVersion,
	}
}

// orderCommandFromQuery reads the optional expectedVersion query parameter used by DELETE calls.
func orderCommandFromQuery(w http.ResponseWriter, r *http.Request) (services.OrderCommand, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("expectedVersion"))
	if raw == "" {
		return orderCommand(r, nil), true
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeMutation(w, http.StatusBadRequest, services.MutationResult{Message: "expectedVersion must be an integer"})
		return services.OrderCommand{}, false
	}
	return orderCommand(r, &version), true
}
