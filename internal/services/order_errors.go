package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

// ErrorKind classifies a failed order action.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindAuthorization ErrorKind = "authorization"
	ErrorKindConflict      ErrorKind = "conflict"
	ErrorKindPersistence   ErrorKind = "persistence"
)

var (
	// ErrOrderValidation signals malformed or out-of-range input.
	ErrOrderValidation = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderUnauthorized indicates the caller lacks an elevated role.
	ErrOrderUnauthorized = errors.New("order: unauthorized")
	// ErrOrderConflict indicates the order changed since the caller read it.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderPersistence indicates the store operation failed.
	ErrOrderPersistence = errors.New("order: persistence failure")
)

const (
	msgNotAuthorized      = "Not authorized to modify orders"
	msgOrderNotFound      = "Order not found"
	msgOrderConflict      = "Order was modified by another operator"
	msgUpdateFailed       = "Failed to update order"
	msgBulkUpdateFailed   = "Failed to update orders"
	msgInvalidTransition  = "Invalid status transition"
	msgInvalidDiscount    = "Invalid discount value"
	msgInvalidShipping    = "Invalid shipping fee"
	msgNothingToDiscount  = "Order total has nothing to discount"
	msgOrderClosed        = "Order is closed"
	msgConfirmRequired    = "Confirmation required"
	msgUnknownAction      = "Unknown bulk action"
	msgUnknownScope       = "Unknown scope"
	msgNoOrdersMatched    = "No orders matched"
	msgNoChanges          = "No changes applied"
	msgOrderUpdated       = "Order updated"
	msgInvalidOrderID     = "Order id is required"
	msgInvalidListParams  = "Invalid listing parameters"
	msgInvalidBillingAddr = "Invalid billing address"
)

// DomainError represents a structured error with stable codes for transport across layers.
type DomainError interface {
	error
	Code() string
	SafeMessage() string
}

// OrderActionError carries a terse operator-facing message alongside the underlying cause.
type OrderActionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

var _ DomainError = (*OrderActionError)(nil)

func (e *OrderActionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *OrderActionError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := []error{kindSentinel(e.Kind)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *OrderActionError) Code() string {
	if e == nil {
		return ""
	}
	return string(e.Kind)
}

func (e *OrderActionError) SafeMessage() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// StatusTransitionError reports an edge missing from the transition table.
type StatusTransitionError struct {
	From domain.OrderStatus
	To   string
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("order: transition %s -> %s not allowed", e.From, e.To)
}

func (e *StatusTransitionError) Unwrap() error { return ErrOrderValidation }

func validationError(message string, err error) *OrderActionError {
	return &OrderActionError{Kind: ErrorKindValidation, Message: message, Err: err}
}

func kindSentinel(kind ErrorKind) error {
	switch kind {
	case ErrorKindValidation:
		return ErrOrderValidation
	case ErrorKindNotFound:
		return ErrOrderNotFound
	case ErrorKindAuthorization:
		return ErrOrderUnauthorized
	case ErrorKindConflict:
		return ErrOrderConflict
	default:
		return ErrOrderPersistence
	}
}

// authorize rejects callers without an elevated role.
func authorize(actor Actor) error {
	if !actor.HasAnyRole(RoleAdmin, RoleSeller) {
		return &OrderActionError{Kind: ErrorKindAuthorization, Message: msgNotAuthorized}
	}
	return nil
}

// classifyError maps any error onto the order error taxonomy.
func classifyError(err error) *OrderActionError {
	if err == nil {
		return nil
	}
	var actionErr *OrderActionError
	if errors.As(err, &actionErr) {
		return actionErr
	}
	var transitionErr *StatusTransitionError
	if errors.As(err, &transitionErr) {
		return validationError(msgInvalidTransition, err)
	}
	if errors.Is(err, repositories.ErrVersionMismatch) {
		return &OrderActionError{Kind: ErrorKindConflict, Message: msgOrderConflict, Err: err}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return &OrderActionError{Kind: ErrorKindNotFound, Message: msgOrderNotFound, Err: err}
		case repoErr.IsConflict():
			return &OrderActionError{Kind: ErrorKindConflict, Message: msgOrderConflict, Err: err}
		}
	}
	switch {
	case errors.Is(err, ErrOrderValidation):
		return validationError(safeValidationMessage(err), err)
	case errors.Is(err, ErrOrderNotFound):
		return &OrderActionError{Kind: ErrorKindNotFound, Message: msgOrderNotFound, Err: err}
	case errors.Is(err, ErrOrderUnauthorized):
		return &OrderActionError{Kind: ErrorKindAuthorization, Message: msgNotAuthorized, Err: err}
	case errors.Is(err, ErrOrderConflict):
		return &OrderActionError{Kind: ErrorKindConflict, Message: msgOrderConflict, Err: err}
	}
	return &OrderActionError{Kind: ErrorKindPersistence, Message: msgUpdateFailed, Err: err}
}

func safeValidationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), ErrOrderValidation.Error()+": ")
	if msg == "" || msg == err.Error() {
		return "Invalid request"
	}
	return msg
}

// ResultFromError converts any error into the uniform failure result.
func ResultFromError(err error) MutationResult {
	classified := classifyError(err)
	if classified == nil {
		return MutationResult{OK: true}
	}
	return MutationResult{OK: false, Kind: classified.Kind, Message: classified.Message}
}
