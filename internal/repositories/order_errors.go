package repositories

import "fmt"

// OrderErrorCode enumerates repository error causes for order operations.
type OrderErrorCode string

const (
	// OrderErrorNotFound indicates the order document does not exist.
	OrderErrorNotFound OrderErrorCode = "order_not_found"
	// OrderErrorVersionMismatch indicates the stored version differs from the expected one.
	OrderErrorVersionMismatch OrderErrorCode = "order_version_mismatch"
	// OrderErrorUnavailable indicates the backing store could not be reached.
	OrderErrorUnavailable OrderErrorCode = "order_unavailable"
)

// OrderError wraps order-specific store failures with machine readable codes. It satisfies
// RepositoryError so services can classify it without knowing the backend.
type OrderError struct {
	Op      string
	Code    OrderErrorCode
	OrderID string
	Err     error
}

var _ RepositoryError = (*OrderError)(nil)

// Error implements the error interface.
func (e *OrderError) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Code)
	if e.OrderID != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.OrderID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *OrderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *OrderError) IsNotFound() bool    { return e != nil && e.Code == OrderErrorNotFound }
func (e *OrderError) IsConflict() bool    { return e != nil && e.Code == OrderErrorVersionMismatch }
func (e *OrderError) IsUnavailable() bool { return e != nil && e.Code == OrderErrorUnavailable }

// NewOrderNotFoundError reports a missing order document.
func NewOrderNotFoundError(op, orderID string) *OrderError {
	return &OrderError{Op: op, Code: OrderErrorNotFound, OrderID: orderID}
}

// NewVersionMismatchError reports an optimistic concurrency failure. It unwraps to ErrVersionMismatch.
func NewVersionMismatchError(op, orderID string, expected, actual int64) *OrderError {
	return &OrderError{
		Op:      op,
		Code:    OrderErrorVersionMismatch,
		OrderID: orderID,
		Err:     fmt.Errorf("%w: expected %d got %d", ErrVersionMismatch, expected, actual),
	}
}
