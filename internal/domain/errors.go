package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

// ValidationError reports malformed input to a constructor or command.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Kind() errors.Kind { return errors.KindValidation }

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PaymentStatusError is returned when a payment operation is attempted from a disallowed status.
type PaymentStatusError struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	Operation string          `json:"operation"`
	Current   PaymentStatus   `json:"current"`
	Allowed   []PaymentStatus `json:"allowed"`
}

func (e *PaymentStatusError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("payment %s: cannot %s from %s (allowed: %s)",
		e.PaymentID, e.Operation, e.Current, strings.Join(allowed, ", "))
}

func (e *PaymentStatusError) Kind() errors.Kind { return errors.KindInvalidTransition }

// RefundAmountError is returned when a refund would exceed the refundable amount.
type RefundAmountError struct {
	PaymentID  uuid.UUID   `json:"payment_id"`
	Requested  money.Money `json:"requested"`
	Refundable money.Money `json:"refundable"`
}

func (e *RefundAmountError) Error() string {
	return fmt.Sprintf("payment %s: refund %s exceeds refundable amount %s",
		e.PaymentID, e.Requested, e.Refundable)
}

func (e *RefundAmountError) Kind() errors.Kind { return errors.KindMonetary }

// ClaimStatusError is returned when a claim operation is attempted from a disallowed state.
// Shipment fields are populated when the return shipment sub-state was the deciding factor.
type ClaimStatusError struct {
	ClaimID         uuid.UUID        `json:"claim_id"`
	Operation       string           `json:"operation"`
	Current         ClaimStatus      `json:"current"`
	Allowed         []ClaimStatus    `json:"allowed"`
	CurrentShipment ShipmentStatus   `json:"current_shipment,omitempty"`
	AllowedShipment []ShipmentStatus `json:"allowed_shipment,omitempty"`
}

func (e *ClaimStatusError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	msg := fmt.Sprintf("claim %s: cannot %s from %s (allowed: %s)",
		e.ClaimID, e.Operation, e.Current, strings.Join(allowed, ", "))
	if len(e.AllowedShipment) > 0 {
		shipments := make([]string, len(e.AllowedShipment))
		for i, s := range e.AllowedShipment {
			shipments[i] = string(s)
		}
		current := string(e.CurrentShipment)
		if current == "" {
			current = "none"
		}
		msg += fmt.Sprintf("; return shipment %s (allowed: %s)", current, strings.Join(shipments, ", "))
	}
	return msg
}

func (e *ClaimStatusError) Kind() errors.Kind { return errors.KindInvalidTransition }

// ClaimTypeError is returned when an operation does not apply to the claim's type,
// e.g. exchange shipping on a RETURN claim.
type ClaimTypeError struct {
	ClaimID   uuid.UUID `json:"claim_id"`
	Operation string    `json:"operation"`
	Type      ClaimType `json:"type"`
}

func (e *ClaimTypeError) Error() string {
	return fmt.Sprintf("claim %s: %s is not applicable to %s claims", e.ClaimID, e.Operation, e.Type)
}

func (e *ClaimTypeError) Kind() errors.Kind { return errors.KindInvalidTransition }
