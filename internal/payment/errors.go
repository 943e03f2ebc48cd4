package payment

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindForbidden
	KindNotFound
	KindGateway
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindGateway:
		return "gateway"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error is what the coordinator returns to the HTTP boundary. Msg is safe to show to the caller.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrUnauthenticated = &Error{Kind: KindAuth, Msg: "user not authenticated"}
	ErrInvalidAmount   = &Error{Kind: KindValidation, Msg: "invalid amount"}
	ErrEmptyCart       = &Error{Kind: KindValidation, Msg: "cart is empty"}
	ErrMissingToken    = &Error{Kind: KindValidation, Msg: "token not provided"}
	ErrOrderNotFound   = &Error{Kind: KindNotFound, Msg: "order not found"}
	ErrForbidden       = &Error{Kind: KindForbidden, Msg: "order belongs to another user"}
)

// KindOf returns the kind carried by err, or 0 for errors that did not come from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func storeError(msg string, err error) *Error {
	return &Error{Kind: KindStore, Msg: msg, Err: err}
}
