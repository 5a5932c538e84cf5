// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrClaimNotFound          = errors.New("claim not found")
	ErrConcurrentModification = errors.New("aggregate was modified concurrently")
	ErrActiveClaimExists      = errors.New("an active claim already exists for this order")
	ErrDuplicateRequest       = errors.New("duplicate request")
	ErrDuplicateEvent         = errors.New("external event already processed")
	ErrUnknownCarrierStatus   = errors.New("unknown carrier status")
	ErrUnknownCallbackType    = errors.New("unknown gateway callback type")
)

// Kind classifies an error for callers at the API boundary.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindInvalidTransition Kind = "invalid_state_transition"
	KindMonetary          Kind = "monetary_invariant"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal"
)

// Kinded is implemented by typed errors that know their kind.
type Kinded interface {
	Kind() Kind
}

// KindOf walks the wrap chain and reports the first known kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrClaimNotFound):
		return KindNotFound
	case errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrActiveClaimExists),
		errors.Is(err, ErrDuplicateRequest),
		errors.Is(err, ErrDuplicateEvent):
		return KindConflict
	case errors.Is(err, ErrUnknownCarrierStatus), errors.Is(err, ErrUnknownCallbackType):
		return KindValidation
	}
	return KindInternal
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }

func Join(errs ...error) error { return errors.Join(errs...) }
