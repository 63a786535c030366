package handlers

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/auth"
	"github.com/hanko-field/orderdesk/internal/platform/httpx"
	"github.com/hanko-field/orderdesk/internal/services"
)

// statusForKind maps a failure kind onto the HTTP status of the response.
func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.ErrorKindValidation:
		return http.StatusBadRequest
	case services.ErrorKindAuthorization:
		return http.StatusForbidden
	case services.ErrorKindNotFound:
		return http.StatusNotFound
	case services.ErrorKindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type mutationResponse struct {
	OK            bool           `json:"ok"`
	AffectedCount int            `json:"affectedCount"`
	ResolvedCount int            `json:"resolvedCount"`
	DryRun        bool           `json:"dryRun"`
	Message       string         `json:"message"`
	Order         *orderResponse `json:"order,omitempty"`
}

func writeMutationResult(w http.ResponseWriter, result services.MutationResult) {
	status := http.StatusOK
	if !result.OK {
		status = statusForKind(result.Kind)
	}
	writeMutation(w, status, result)
}

func writeMutation(w http.ResponseWriter, status int, result services.MutationResult) {
	resp := mutationResponse{
		OK:            result.OK,
		AffectedCount: result.AffectedCount,
		ResolvedCount: result.ResolvedCount,
		DryRun:        result.DryRun,
		Message:       result.Message,
	}
	if result.OK && result.Order != nil {
		order := newOrderResponse(*result.Order)
		resp.Order = &order
	}
	httpx.WriteJSON(w, status, resp)
}

// writeMutationDecodeError reports a rejected request body in the mutation result shape.
func writeMutationDecodeError(w http.ResponseWriter, err error) {
	httpErr := asHTTPError(err)
	writeMutation(w, httpErr.Status, services.MutationResult{Message: httpErr.Message})
}

// writeQueryError reports a failed read with the standard error envelope.
func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	result := services.ResultFromError(err)
	httpx.WriteError(r.Context(), w, httpx.NewError(string(result.Kind), result.Message, statusForKind(result.Kind)))
}

func asHTTPError(err error) httpx.Error {
	var httpErr httpx.Error
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return httpx.NewError("invalid_request", "invalid request", http.StatusBadRequest)
}

// actorFromRequest builds the service actor from the verified identity. An unauthenticated request
// yields an actor without roles, which every service rejects.
func actorFromRequest(r *http.Request) services.Actor {
	actor := services.Actor{
		IPAddress: remoteAddr(r),
		UserAgent: r.UserAgent(),
		RequestID: middleware.GetReqID(r.Context()),
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		actor.ID = identity.UID
		actor.Email = identity.Email
		actor.Roles = append([]string(nil), identity.Roles...)
	}
	return actor
}

func remoteAddr(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func parseOptionalInt(values map[string][]string, key string) (int, bool) {
	raw := strings.TrimSpace(firstValue(values, key))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

func firstValue(values map[string][]string, key string) string {
	if list := values[key]; len(list) > 0 {
		return list[0]
	}
	return ""
}

// Response views -------------------------------------------------------------

type orderPageResponse struct {
	Items      []orderResponse `json:"items"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalItems int             `json:"totalItems"`
	TotalPages int             `json:"totalPages"`
	HasNext    bool            `json:"hasNext"`
}

type orderResponse struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"orderNumber,omitempty"`
	Status          string                 `json:"status"`
	Amounts         amountsResponse        `json:"amounts"`
	RiderName       string                 `json:"riderName,omitempty"`
	BillingAddress  *addressPayload        `json:"billingAddress,omitempty"`
	ShippingAddress *addressPayload        `json:"shippingAddress,omitempty"`
	Contact         *contactResponse       `json:"contact,omitempty"`
	History         []historyEventResponse `json:"history"`
	Version         int64                  `json:"version"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt,omitempty"`
}

type amountsResponse struct {
	Subtotal      string            `json:"subtotal"`
	Discount      *discountResponse `json:"discount,omitempty"`
	Shipping      *string           `json:"shipping,omitempty"`
	Total         string            `json:"total"`
	OriginalTotal *string           `json:"originalTotal,omitempty"`
}

type discountResponse struct {
	Type    string  `json:"type"`
	Value   string  `json:"value"`
	Amount  string  `json:"amount"`
	Percent *string `json:"percent,omitempty"`
}

type contactResponse struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type historyEventResponse struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	At    string `json:"at"`
}

// addressPayload is shared by the billing address request and the order view.
type addressPayload struct {
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      *string `json:"state,omitempty"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		Recipient:  p.Recipient,
		Line1:      p.Line1,
		Line2:      p.Line2,
		City:       p.City,
		State:      p.State,
		PostalCode: p.PostalCode,
		Country:    p.Country,
		Phone:      p.Phone,
	}
}

func newAddressPayload(addr *domain.Address) *addressPayload {
	if addr == nil {
		return nil
	}
	return &addressPayload{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func newOrderPageResponse(page domain.OffsetPage[domain.Order]) orderPageResponse {
	items := make([]orderResponse, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, newOrderResponse(order))
	}
	return orderPageResponse{
		Items:      items,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages(),
		HasNext:    page.HasNext,
	}
}

func newOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		Amounts:         newAmountsResponse(order.Amounts),
		BillingAddress:  newAddressPayload(order.BillingAddress),
		ShippingAddress: newAddressPayload(order.ShippingAddress),
		History:         make([]historyEventResponse, 0, len(order.History)),
		Version:         order.Version,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
	if order.Rider != nil {
		resp.RiderName = order.Rider.Name
	}
	if order.Contact != nil {
		resp.Contact = &contactResponse{Name: order.Contact.Name, Email: order.Contact.Email, Phone: order.Contact.Phone}
	}
	for _, event := range order.History {
		resp.History = append(resp.History, historyEventResponse{Code: event.Code, Label: event.Label, At: formatTime(event.At)})
	}
	return resp
}

func newAmountsResponse(amounts domain.OrderAmounts) amountsResponse {
	resp := amountsResponse{
		Subtotal:      formatMoney(amounts.Subtotal),
		Total:         formatMoney(amounts.Total),
		Shipping:      formatMoneyPtr(amounts.Shipping),
		OriginalTotal: formatMoneyPtr(amounts.OriginalTotal),
	}
	if d := amounts.Discount; d != nil {
		resp.Discount = &discountResponse{
			Type:    string(d.Type),
			Value:   d.Value.String(),
			Amount:  formatMoney(d.Amount),
			Percent: formatMoneyPtr(d.Percent),
		}
	}
	return resp
}

func formatMoney(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatMoneyPtr(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	s := formatMoney(*value)
	return &s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
