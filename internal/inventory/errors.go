package inventory

import (
	"errors"
	"fmt"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
)

// Kind classifies failures of the ledger and the settlement coordinator.
type Kind string

const (
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindNotFound          Kind = "NOT_FOUND"
	KindOrderNotFound     Kind = "ORDER_NOT_FOUND"
	KindInvalidMethod     Kind = "INVALID_METHOD"
	KindInvalidQuantity   Kind = "INVALID_QUANTITY"
	KindInvalidArgument   Kind = "INVALID_ARGUMENT"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindConflict          Kind = "CONFLICT"
	KindStoreError        Kind = "STORE_ERROR"
	// KindLogFailure is only ever logged; journal failures are never returned.
	KindLogFailure Kind = "LOG_FAILURE"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewInsufficientStock(variantID string, available, requested int) *Error {
	return Errorf(KindInsufficientStock,
		"Insufficient stock for variant %s. Available: %d, Requested: %d", variantID, available, requested)
}

func NewInvalidQuantity(qty int) *Error {
	return Errorf(KindInvalidQuantity, "Quantity must be positive, got %d", qty)
}

// NewStoreError wraps a data-store failure, passing its message through.
func NewStoreError(op string, err error) *Error {
	return &Error{Kind: KindStoreError, Message: fmt.Sprintf("%s: %v", op, err), Err: err}
}

// KindOf returns the Kind carried by err. Errors that did not originate
// here are reported as store errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStoreError
}

func variantLookupError(variantID string, err error) *Error {
	if errors.Is(err, orders.ErrNotFound) {
		return &Error{Kind: KindNotFound, Message: fmt.Sprintf("Variant %s not found", variantID), Err: err}
	}
	return NewStoreError("fetch variant "+variantID, err)
}
