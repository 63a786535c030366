package observability

import (
	"context"
	"net/http"

	"github.com/hanko-field/orderdesk/internal/platform/requestctx"
)

type operatorCaptureKey struct{}

// operatorCapture lets the request logger learn the operator id that authentication resolves
// deeper in the middleware chain.
type operatorCapture struct {
	uid string
}

func withOperatorCapture(ctx context.Context, capture *operatorCapture) context.Context {
	return context.WithValue(ctx, operatorCaptureKey{}, capture)
}

// RecordOperator stores uid on the request context and reports it to the request logger.
func RecordOperator(r *http.Request, uid string) *http.Request {
	ctx := r.Context()
	if capture, ok := ctx.Value(operatorCaptureKey{}).(*operatorCapture); ok && capture != nil {
		capture.uid = uid
	}
	return r.WithContext(requestctx.WithOperator(ctx, uid))
}
