// Package domain holds the payment and claim aggregates. Every transition takes a snapshot by
// value and returns a new snapshot plus the events it produced; nothing here performs I/O.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

type PaymentStatus string

const (
	PaymentStatusPending         PaymentStatus = "PENDING"
	PaymentStatusApproved        PaymentStatus = "APPROVED"
	PaymentStatusPartialRefunded PaymentStatus = "PARTIAL_REFUNDED"
	PaymentStatusFullyRefunded   PaymentStatus = "FULLY_REFUNDED"
	PaymentStatusCancelled       PaymentStatus = "CANCELLED"
	PaymentStatusFailed          PaymentStatus = "FAILED"
)

// IsCaptured reports whether money was captured, i.e. approvedAt must be set.
func (s PaymentStatus) IsCaptured() bool {
	switch s {
	case PaymentStatusApproved, PaymentStatusPartialRefunded, PaymentStatusFullyRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) CanRefund() bool {
	return s == PaymentStatusApproved || s == PaymentStatusPartialRefunded
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusPartialRefunded,
		PaymentStatusFullyRefunded, PaymentStatusCancelled, PaymentStatusFailed:
		return true
	}
	return false
}

type PaymentProvider string

const (
	ProviderToss     PaymentProvider = "TOSS"
	ProviderKakaoPay PaymentProvider = "KAKAOPAY"
	ProviderNaverPay PaymentProvider = "NAVERPAY"
	ProviderInicis   PaymentProvider = "INICIS"
)

func (p PaymentProvider) IsValid() bool {
	switch p {
	case ProviderToss, ProviderKakaoPay, ProviderNaverPay, ProviderInicis:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCard           PaymentMethod = "CARD"
	MethodBankTransfer   PaymentMethod = "BANK_TRANSFER"
	MethodVirtualAccount PaymentMethod = "VIRTUAL_ACCOUNT"
	MethodMobile         PaymentMethod = "MOBILE"
	MethodEasyPay        PaymentMethod = "EASY_PAY"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodVirtualAccount, MethodMobile, MethodEasyPay:
		return true
	}
	return false
}

const DefaultCurrency = "KRW"

// Payment is the payment aggregate snapshot. Version belongs to the persistence layer and is
// carried through transitions untouched so the write can be checked against it.
type Payment struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	CheckoutRef          string          `json:"checkout_ref" db:"checkout_ref"`
	Provider             PaymentProvider `json:"provider" db:"provider"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`
	Method               PaymentMethod   `json:"method" db:"method"`
	Status               PaymentStatus   `json:"status" db:"status"`
	Currency             string          `json:"currency" db:"currency"`
	RequestedAmount      money.Money     `json:"requested_amount" db:"requested_amount"`
	ApprovedAmount       money.Money     `json:"approved_amount" db:"approved_amount"`
	RefundedAmount       money.Money     `json:"refunded_amount" db:"refunded_amount"`
	FailureReason        string          `json:"failure_reason,omitempty" db:"failure_reason"`
	RequestedAt          time.Time       `json:"requested_at" db:"requested_at"`
	ApprovedAt           *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	FailedAt             *time.Time      `json:"failed_at,omitempty" db:"failed_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
	Version              int64           `json:"version" db:"version"`
}

// NewPayment starts a payment in PENDING for a checkout.
func NewPayment(checkoutRef string, provider PaymentProvider, method PaymentMethod, requested money.Money, now time.Time) (Payment, error) {
	if strings.TrimSpace(checkoutRef) == "" {
		return Payment{}, invalid("checkout_ref", "is required")
	}
	if !provider.IsValid() {
		return Payment{}, invalid("provider", "unknown provider %q", provider)
	}
	if !method.IsValid() {
		return Payment{}, invalid("method", "unknown payment method %q", method)
	}
	if !requested.IsPositive() {
		return Payment{}, invalid("requested_amount", "must be greater than zero")
	}

	return Payment{
		ID:              uuid.New(),
		CheckoutRef:     checkoutRef,
		Provider:        provider,
		Method:          method,
		Status:          PaymentStatusPending,
		Currency:        DefaultCurrency,
		RequestedAmount: requested,
		ApprovedAmount:  money.Zero(),
		RefundedAmount:  money.Zero(),
		RequestedAt:     now,
		UpdatedAt:       now,
	}, nil
}

func (p Payment) statusError(op string, allowed ...PaymentStatus) error {
	return &PaymentStatusError{PaymentID: p.ID, Operation: op, Current: p.Status, Allowed: allowed}
}

// Approve records the gateway capture. Only a PENDING payment can be approved.
func (p Payment) Approve(gatewayTxID string, approved money.Money, now time.Time) (Payment, []Event, error) {
	if p.Status != PaymentStatusPending {
		return p, nil, p.statusError("approve", PaymentStatusPending)
	}
	if strings.TrimSpace(gatewayTxID) == "" {
		return p, nil, invalid("gateway_transaction_id", "is required")
	}
	if !approved.IsPositive() {
		return p, nil, invalid("approved_amount", "must be greater than zero")
	}
	if approved.GreaterThan(p.RequestedAmount) {
		return p, nil, invalid("approved_amount", "%s exceeds requested amount %s", approved, p.RequestedAmount)
	}

	next := p
	next.Status = PaymentStatusApproved
	next.GatewayTransactionID = gatewayTxID
	next.ApprovedAmount = approved
	next.RefundedAmount = money.Zero()
	next.ApprovedAt = timePtr(now)
	next.UpdatedAt = now

	return next, []Event{&PaymentApprovedEvent{
		PaymentID:            p.ID,
		CheckoutRef:          p.CheckoutRef,
		Provider:             p.Provider,
		GatewayTransactionID: gatewayTxID,
		Method:               p.Method,
		ApprovedAmount:       approved,
		Timestamp:            now,
	}}, nil
}

// Refund applies a partial or full refund against the captured amount. The refund is never
// capped: an amount above the refundable remainder fails and leaves the snapshot unchanged.
func (p Payment) Refund(amount money.Money, now time.Time) (Payment, []Event, error) {
	if err := RefundEligibility(p, amount); err != nil {
		return p, nil, err
	}

	next := p
	next.RefundedAmount = p.RefundedAmount.Add(amount)
	if next.RefundedAmount.Equal(p.ApprovedAmount) {
		next.Status = PaymentStatusFullyRefunded
	} else {
		next.Status = PaymentStatusPartialRefunded
	}
	next.UpdatedAt = now

	return next, []Event{&PaymentRefundedEvent{
		PaymentID:           p.ID,
		RefundedAmount:      amount,
		TotalRefundedAmount: next.RefundedAmount,
		RemainingAmount:     next.RefundableAmount(),
		Status:              next.Status,
		Timestamp:           now,
	}}, nil
}

// Cancel voids a payment before capture.
func (p Payment) Cancel(now time.Time) (Payment, []Event, error) {
	if p.Status != PaymentStatusPending {
		return p, nil, p.statusError("cancel", PaymentStatusPending)
	}

	next := p
	next.Status = PaymentStatusCancelled
	next.CancelledAt = timePtr(now)
	next.UpdatedAt = now

	return next, []Event{&PaymentCancelledEvent{
		PaymentID:       p.ID,
		CheckoutRef:     p.CheckoutRef,
		CancelledAmount: p.RequestedAmount,
		Timestamp:       now,
	}}, nil
}

// Fail marks a pending payment as failed at the gateway.
func (p Payment) Fail(reason string, now time.Time) (Payment, []Event, error) {
	if p.Status != PaymentStatusPending {
		return p, nil, p.statusError("fail", PaymentStatusPending)
	}

	next := p
	next.Status = PaymentStatusFailed
	next.FailureReason = strings.TrimSpace(reason)
	next.FailedAt = timePtr(now)
	next.UpdatedAt = now

	return next, []Event{&PaymentFailedEvent{
		PaymentID:       p.ID,
		CheckoutRef:     p.CheckoutRef,
		RequestedAmount: p.RequestedAmount,
		FailureReason:   next.FailureReason,
		Timestamp:       now,
	}}, nil
}

// RefundableAmount is approvedAmount - refundedAmount.
func (p Payment) RefundableAmount() money.Money {
	remaining, err := p.ApprovedAmount.Sub(p.RefundedAmount)
	if err != nil {
		return money.Zero()
	}
	return remaining
}

func (p Payment) CanBeRefunded() bool {
	return p.Status.CanRefund() && p.RefundableAmount().IsPositive()
}

func (p Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusCancelled, PaymentStatusFailed, PaymentStatusFullyRefunded:
		return true
	}
	return false
}

// CheckInvariants verifies a snapshot, typically one restored from storage.
func (p Payment) CheckInvariants() error {
	if !p.Status.IsValid() {
		return fmt.Errorf("payment %s: unknown status %q", p.ID, p.Status)
	}
	if p.RefundedAmount.GreaterThan(p.ApprovedAmount) {
		return fmt.Errorf("payment %s: refunded %s exceeds approved %s", p.ID, p.RefundedAmount, p.ApprovedAmount)
	}
	if p.ApprovedAmount.GreaterThan(p.RequestedAmount) {
		return fmt.Errorf("payment %s: approved %s exceeds requested %s", p.ID, p.ApprovedAmount, p.RequestedAmount)
	}
	if p.Status.IsCaptured() != (p.ApprovedAt != nil) {
		return fmt.Errorf("payment %s: approved_at inconsistent with status %s", p.ID, p.Status)
	}
	if (p.Status == PaymentStatusCancelled) != (p.CancelledAt != nil) {
		return fmt.Errorf("payment %s: cancelled_at inconsistent with status %s", p.ID, p.Status)
	}
	if (p.Status == PaymentStatusFailed) != (p.FailedAt != nil) {
		return fmt.Errorf("payment %s: failed_at inconsistent with status %s", p.ID, p.Status)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
