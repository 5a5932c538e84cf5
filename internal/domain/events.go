package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

// Event is an immutable fact emitted by an aggregate transition.
type Event interface {
	EventType() string
	AggregateID() uuid.UUID
	OccurredAt() time.Time
}

const (
	AggregatePayment = "payment"
	AggregateClaim   = "claim"
)

// AggregateOf reports which aggregate family emitted the event.
func AggregateOf(e Event) string {
	switch e.(type) {
	case *PaymentApprovedEvent, *PaymentFailedEvent, *PaymentCancelledEvent, *PaymentRefundedEvent:
		return AggregatePayment
	default:
		return AggregateClaim
	}
}

// Payment events

type PaymentApprovedEvent struct {
	PaymentID            uuid.UUID       `json:"payment_id"`
	CheckoutRef          string          `json:"checkout_ref"`
	Provider             PaymentProvider `json:"provider"`
	GatewayTransactionID string          `json:"gateway_transaction_id"`
	Method               PaymentMethod   `json:"method"`
	ApprovedAmount       money.Money     `json:"approved_amount"`
	Timestamp            time.Time       `json:"timestamp"`
}

func (e *PaymentApprovedEvent) EventType() string      { return "PaymentApproved" }
func (e *PaymentApprovedEvent) AggregateID() uuid.UUID { return e.PaymentID }
func (e *PaymentApprovedEvent) OccurredAt() time.Time  { return e.Timestamp }

// PaymentFailedEvent carries the requested amount so inventory reservations can be released.
type PaymentFailedEvent struct {
	PaymentID       uuid.UUID   `json:"payment_id"`
	CheckoutRef     string      `json:"checkout_ref"`
	RequestedAmount money.Money `json:"requested_amount"`
	FailureReason   string      `json:"failure_reason"`
	Timestamp       time.Time   `json:"timestamp"`
}

func (e *PaymentFailedEvent) EventType() string      { return "PaymentFailed" }
func (e *PaymentFailedEvent) AggregateID() uuid.UUID { return e.PaymentID }
func (e *PaymentFailedEvent) OccurredAt() time.Time  { return e.Timestamp }

type PaymentCancelledEvent struct {
	PaymentID       uuid.UUID   `json:"payment_id"`
	CheckoutRef     string      `json:"checkout_ref"`
	CancelledAmount money.Money `json:"cancelled_amount"`
	Timestamp       time.Time   `json:"timestamp"`
}

func (e *PaymentCancelledEvent) EventType() string      { return "PaymentCancelled" }
func (e *PaymentCancelledEvent) AggregateID() uuid.UUID { return e.PaymentID }
func (e *PaymentCancelledEvent) OccurredAt() time.Time  { return e.Timestamp }

type PaymentRefundedEvent struct {
	PaymentID           uuid.UUID     `json:"payment_id"`
	RefundedAmount      money.Money   `json:"refunded_amount"`
	TotalRefundedAmount money.Money   `json:"total_refunded_amount"`
	RemainingAmount     money.Money   `json:"remaining_amount"`
	Status              PaymentStatus `json:"status"`
	Timestamp           time.Time     `json:"timestamp"`
}

func (e *PaymentRefundedEvent) EventType() string      { return "PaymentRefunded" }
func (e *PaymentRefundedEvent) AggregateID() uuid.UUID { return e.PaymentID }
func (e *PaymentRefundedEvent) OccurredAt() time.Time  { return e.Timestamp }

// Claim events

type ClaimRequestedEvent struct {
	ClaimID         uuid.UUID   `json:"claim_id"`
	ClaimNumber     string      `json:"claim_number"`
	OrderRef        string      `json:"order_ref"`
	Type            ClaimType   `json:"type"`
	Reason          ClaimReason `json:"reason"`
	RequestedAmount money.Money `json:"requested_amount"`
	Timestamp       time.Time   `json:"timestamp"`
}

func (e *ClaimRequestedEvent) EventType() string      { return "ClaimRequested" }
func (e *ClaimRequestedEvent) AggregateID() uuid.UUID { return e.ClaimID }
func (e *ClaimRequestedEvent) OccurredAt() time.Time  { return e.Timestamp }

type ClaimApprovedEvent struct {
	ClaimID     uuid.UUID `json:"claim_id"`
	OrderRef    string    `json:"order_ref"`
	Type        ClaimType `json:"type"`
	ProcessedBy string    `json:"processed_by"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *ClaimApprovedEvent) EventType() string      { return "ClaimApproved" }
func (e *ClaimApprovedEvent) AggregateID() uuid.UUID { return e.ClaimID }
func (e *ClaimApprovedEvent) OccurredAt() time.Time  { return e.Timestamp }

type ClaimRejectedEvent struct {
	ClaimID        uuid.UUID   `json:"claim_id"`
	OrderRef       string      `json:"order_ref"`
	PreviousStatus ClaimStatus `json:"previous_status"`
	RejectReason   string      `json:"reject_reason"`
	Timestamp      time.Time   `json:"timestamp"`
}

func (e *ClaimRejectedEvent) EventType() string      { return "ClaimRejected" }
func (e *ClaimRejectedEvent) AggregateID() uuid.UUID { return e.ClaimID }
func (e *ClaimRejectedEvent) OccurredAt() time.Time  { return e.Timestamp }

type ClaimWithdrawnEvent struct {
	ClaimID   uuid.UUID `json:"claim_id"`
	OrderRef  string    `json:"order_ref"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ClaimWithdrawnEvent) EventType() string      { return "ClaimWithdrawn" }
func (e *ClaimWithdrawnEvent) AggregateID() uuid.UUID { return e.ClaimID }
func (e *ClaimWithdrawnEvent) OccurredAt() time.Time  { return e.Timestamp }

type ClaimReturnShippingChangedEvent struct {
	ClaimID        uuid.UUID      `json:"claim_id"`
	From           ShipmentStatus `json:"from"`
	To             ShipmentStatus `json:"to"`
	CarrierID      string         `json:"carrier_id,omitempty"`
	TrackingNumber string         `json:"tracking_number,omitempty"`
	ClaimStatus    ClaimStatus    `json:"claim_status"`
	Timestamp      time.Time      `json:"timestamp"`
}

func (e *ClaimReturnShippingChangedEvent) EventType() string      { return "ClaimReturnShippingChanged" }
func (e *ClaimReturnShippingChangedEvent) AggregateID() uuid.UUID { return e.ClaimID }
func (e *ClaimReturnShippingChangedEvent) OccurredAt() time.Time  { return e.Timestamp }

type ClaimInspectionRecordedEvent struct {
	ClaimID      uuid.UUID         `json:"claim_id"`
	Outcome      InspectionOutcome `json:"outcome"`
	RefundAmount money.Money       `json:"refund_amount"`
	Note         string            `json:"note,omitempty"`
	ClaimStatus  ClaimStatus       `json:"claim_status"`
	Timestamp    time.Time         `json:"timestamp"`
}

func (e *ClaimInspectionRecordedEvent) EventType() string      { return "ClaimInspectionRecorded" }
func (e *ClaimInspectionRecordedEvent) AggregateID() uuid.UUID { return e.ClaimID }
func (e *ClaimInspectionRecordedEvent) OccurredAt() time.Time  { return e.Timestamp }

// ClaimRefundRequestedEvent asks the payment side to refund; the claim completes once it succeeds.
type ClaimRefundRequestedEvent struct {
	ClaimID   uuid.UUID   `json:"claim_id"`
	OrderRef  string      `json:"order_ref"`
	PaymentID uuid.UUID   `json:"payment_id"`
	Amount    money.Money `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
}

func (e *ClaimRefundRequestedEvent) EventType() string      { return "ClaimRefundRequested" }
func (e *ClaimRefundRequestedEvent) AggregateID() uuid.UUID { return e.ClaimID }
func (e *ClaimRefundRequestedEvent) OccurredAt() time.Time  { return e.Timestamp }

type ClaimExchangeShippedEvent struct {
	ClaimID        uuid.UUID `json:"claim_id"`
	CarrierID      string    `json:"carrier_id"`
	TrackingNumber string    `json:"tracking_number"`
	Timestamp      time.Time `json:"timestamp"`
}

func (e *ClaimExchangeShippedEvent) EventType() string      { return "ClaimExchangeShipped" }
func (e *ClaimExchangeShippedEvent) AggregateID() uuid.UUID { return e.ClaimID }
func (e *ClaimExchangeShippedEvent) OccurredAt() time.Time  { return e.Timestamp }

type ClaimCompletedEvent struct {
	ClaimID      uuid.UUID   `json:"claim_id"`
	OrderRef     string      `json:"order_ref"`
	Type         ClaimType   `json:"type"`
	RefundAmount money.Money `json:"refund_amount"`
	Timestamp    time.Time   `json:"timestamp"`
}

func (e *ClaimCompletedEvent) EventType() string      { return "ClaimCompleted" }
func (e *ClaimCompletedEvent) AggregateID() uuid.UUID { return e.ClaimID }
func (e *ClaimCompletedEvent) OccurredAt() time.Time  { return e.Timestamp }
