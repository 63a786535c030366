package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/orderdesk/internal/platform/requestctx"
)

// Error is the envelope for failures raised before a service runs, such as bad JSON, missing
// auth, rate limits and panics.
type Error struct {
	Code    string
	Message string
	Status  int
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// NewError builds an Error with single-line, bounded code and message. Status 0 means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: clip(code, 80), Message: clip(message, 512), Status: status}
}

func (e Error) Error() string { return e.Code + ": " + e.Message }

type errorBody struct {
	OK        bool   `json:"ok"`
	Code      string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteError renders err, tagged with the request and trace ids found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	body := errorBody{
		Code:      err.Code,
		Message:   err.Message,
		Status:    err.Status,
		RequestID: clip(middleware.GetReqID(ctx), 80),
		TraceID:   clip(requestctx.TraceID(ctx), 64),
	}
	if body.Status == 0 {
		body.Status = http.StatusInternalServerError
	}
	WriteJSON(w, body.Status, body)
}

func clip(value string, limit int) string {
	value = strings.TrimSpace(lineBreaks.Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
