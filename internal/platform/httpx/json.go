package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultBodyLimit caps request bodies for admin endpoints.
const DefaultBodyLimit int64 = 64 << 10

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// DecodeJSON reads at most limit bytes into dst. Unknown fields, trailing data and oversized
// bodies are rejected with a 400 or 413 Error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, io.EOF):
			return NewError("invalid_request", "request body is required", http.StatusBadRequest)
		default:
			return NewError("invalid_request", fmt.Sprintf("invalid JSON body: %s", describeDecodeError(err)), http.StatusBadRequest)
		}
	}
	if decoder.More() {
		return NewError("invalid_request", "request body must contain a single JSON object", http.StatusBadRequest)
	}
	return nil
}

// describeDecodeError keeps the decoder message for unknown fields and type mismatches without
// echoing the payload back.
func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "malformed JSON"
	}
	return err.Error()
}
