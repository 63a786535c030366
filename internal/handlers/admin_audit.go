package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/auth"
	"github.com/hanko-field/orderdesk/internal/platform/httpx"
	"github.com/hanko-field/orderdesk/internal/services"
)

// AdminAuditHandlers lets operators browse the audit trail.
type AdminAuditHandlers struct {
	authn *auth.Authenticator
	audit services.AuditLogService
}

func NewAdminAuditHandlers(authn *auth.Authenticator, audit services.AuditLogService) *AdminAuditHandlers {
	return &AdminAuditHandlers{authn: authn, audit: audit}
}

// Routes registers /admin/audit-logs.
func (h *AdminAuditHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		if h.authn != nil {
			r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleSeller))
		}
		r.Get("/audit-logs", h.listAuditLogs)
	})
}

type auditLogResponse struct {
	ID            string         `json:"id"`
	Actor         string         `json:"actor"`
	ActorType     string         `json:"actorType,omitempty"`
	Action        string         `json:"action"`
	Scope         string         `json:"scope,omitempty"`
	TargetRef     string         `json:"targetRef,omitempty"`
	TargetIDs     []string       `json:"targetIds,omitempty"`
	Filters       map[string]any `json:"filters,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ResolvedCount int            `json:"resolvedCount"`
	AffectedCount int            `json:"affectedCount"`
	Severity      string         `json:"severity,omitempty"`
	RequestID     string         `json:"requestId,omitempty"`
	CreatedAt     string         `json:"createdAt"`
}

func (h *AdminAuditHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_service_unavailable", "audit service unavailable", http.StatusServiceUnavailable))
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

	result, err := h.audit.List(ctx, actorFromRequest(r), services.AuditLogFilter{
		Actor:    strings.TrimSpace(query.Get("actor")),
		Action:   strings.TrimSpace(query.Get("action")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeQueryError(w, r, err)
		return
	}

	items := make([]auditLogResponse, 0, len(result.Items))
	for _, entry := range result.Items {
		items = append(items, newAuditLogResponse(entry))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalItems": result.TotalItems,
		"hasNext":    result.HasNext,
	})
}

func newAuditLogResponse(entry domain.AuditLogEntry) auditLogResponse {
	return auditLogResponse{
		ID:            entry.ID,
		Actor:         entry.Actor,
		ActorType:     entry.ActorType,
		Action:        entry.Action,
		Scope:         entry.Scope,
		TargetRef:     entry.TargetRef,
		TargetIDs:     entry.TargetIDs,
		Filters:       entry.Filters,
		Params:        entry.Params,
		Metadata:      entry.Metadata,
		ResolvedCount: entry.ResolvedCount,
		AffectedCount: entry.AffectedCount,
		Severity:      entry.Severity,
		RequestID:     entry.RequestID,
		CreatedAt:     formatTime(entry.CreatedAt),
	}
}
