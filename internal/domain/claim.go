package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

type ClaimType string

const (
	ClaimTypeCancel        ClaimType = "CANCEL"
	ClaimTypeReturn        ClaimType = "RETURN"
	ClaimTypeExchange      ClaimType = "EXCHANGE"
	ClaimTypePartialRefund ClaimType = "PARTIAL_REFUND"
)

func (t ClaimType) IsValid() bool {
	switch t {
	case ClaimTypeCancel, ClaimTypeReturn, ClaimTypeExchange, ClaimTypePartialRefund:
		return true
	}
	return false
}

// RequiresReturn reports whether the item must physically come back to the seller.
func (t ClaimType) RequiresReturn() bool {
	switch t {
	case ClaimTypeReturn, ClaimTypeExchange, ClaimTypePartialRefund:
		return true
	}
	return false
}

// RefundsMoney reports whether completing the claim moves money back to the customer.
func (t ClaimType) RefundsMoney() bool {
	return t != ClaimTypeExchange
}

type ClaimReason string

const (
	ReasonChangeOfMind    ClaimReason = "CHANGE_OF_MIND"
	ReasonDefective       ClaimReason = "DEFECTIVE"
	ReasonWrongDelivery   ClaimReason = "WRONG_DELIVERY"
	ReasonDelayedDelivery ClaimReason = "DELAYED_DELIVERY"
	ReasonOther           ClaimReason = "OTHER"
)

func (r ClaimReason) IsValid() bool {
	switch r {
	case ReasonChangeOfMind, ReasonDefective, ReasonWrongDelivery, ReasonDelayedDelivery, ReasonOther:
		return true
	}
	return false
}

// IsCustomerFault is true when the customer, not the seller, bears return costs.
func (r ClaimReason) IsCustomerFault() bool {
	return r == ReasonChangeOfMind
}

type ClaimStatus string

const (
	ClaimStatusRequested        ClaimStatus = "REQUESTED"
	ClaimStatusApproved         ClaimStatus = "APPROVED"
	ClaimStatusReturnInProgress ClaimStatus = "RETURN_IN_PROGRESS"
	ClaimStatusReturnReceived   ClaimStatus = "RETURN_RECEIVED"
	ClaimStatusRefundPending    ClaimStatus = "REFUND_PENDING"
	ClaimStatusExchangePending  ClaimStatus = "EXCHANGE_PENDING"
	ClaimStatusExchangeShipping ClaimStatus = "EXCHANGE_SHIPPING"
	ClaimStatusCompleted        ClaimStatus = "COMPLETED"
	ClaimStatusRejected         ClaimStatus = "REJECTED"
	ClaimStatusWithdrawn        ClaimStatus = "WITHDRAWN"
)

func (s ClaimStatus) IsTerminal() bool {
	switch s {
	case ClaimStatusCompleted, ClaimStatusRejected, ClaimStatusWithdrawn:
		return true
	}
	return false
}

// TerminalClaimStatuses lists statuses that end a claim; storage uses it for the active-claim index.
func TerminalClaimStatuses() []ClaimStatus {
	return []ClaimStatus{ClaimStatusCompleted, ClaimStatusRejected, ClaimStatusWithdrawn}
}

type InspectionOutcome string

const (
	InspectionNone    InspectionOutcome = ""
	InspectionPass    InspectionOutcome = "PASS"
	InspectionFail    InspectionOutcome = "FAIL"
	InspectionPartial InspectionOutcome = "PARTIAL"
)

// ClaimRequest is the customer's input when opening a claim.
type ClaimRequest struct {
	OrderRef        string
	OrderItemRef    string
	PaymentID       uuid.UUID
	Type            ClaimType
	Reason          ClaimReason
	ReasonDetail    string
	Quantity        int
	RequestedAmount money.Money
}

// Claim is the claim aggregate snapshot.
type Claim struct {
	ID                   uuid.UUID         `json:"id"`
	ClaimNumber          string            `json:"claim_number"`
	OrderRef             string            `json:"order_ref"`
	OrderItemRef         string            `json:"order_item_ref,omitempty"`
	PaymentID            uuid.UUID         `json:"payment_id"`
	Type                 ClaimType         `json:"type"`
	Reason               ClaimReason       `json:"reason"`
	ReasonDetail         string            `json:"reason_detail,omitempty"`
	Quantity             int               `json:"quantity"`
	Status               ClaimStatus       `json:"status"`
	RequestedAmount      money.Money       `json:"requested_amount"`
	ApprovedRefundAmount money.Money       `json:"approved_refund_amount"`
	Inspection           InspectionOutcome `json:"inspection,omitempty"`
	InspectionNote       string            `json:"inspection_note,omitempty"`
	ReturnShipment       *ReturnShipment   `json:"return_shipment,omitempty"`
	ExchangeShipment     *ExchangeShipment `json:"exchange_shipment,omitempty"`
	ProcessedBy          string            `json:"processed_by,omitempty"`
	ProcessedAt          *time.Time        `json:"processed_at,omitempty"`
	RejectReason         string            `json:"reject_reason,omitempty"`
	RequestedAt          time.Time         `json:"requested_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt            time.Time         `json:"updated_at"`
	Version              int64             `json:"version"`
}

// NewClaim opens a claim in REQUESTED. The one-active-claim-per-order rule needs other claims
// and is enforced by the caller.
func NewClaim(req ClaimRequest, now time.Time) (Claim, []Event, error) {
	if strings.TrimSpace(req.OrderRef) == "" {
		return Claim{}, nil, invalid("order_ref", "is required")
	}
	if !req.Type.IsValid() {
		return Claim{}, nil, invalid("type", "unknown claim type %q", req.Type)
	}
	if !req.Reason.IsValid() {
		return Claim{}, nil, invalid("reason", "unknown claim reason %q", req.Reason)
	}
	if req.Quantity < 0 {
		return Claim{}, nil, invalid("quantity", "must not be negative")
	}
	if req.Type.RefundsMoney() && !req.RequestedAmount.IsPositive() {
		return Claim{}, nil, invalid("requested_amount", "must be greater than zero for %s claims", req.Type)
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	id := uuid.New()
	c := Claim{
		ID:                   id,
		ClaimNumber:          claimNumber(id, now),
		OrderRef:             req.OrderRef,
		OrderItemRef:         req.OrderItemRef,
		PaymentID:            req.PaymentID,
		Type:                 req.Type,
		Reason:               req.Reason,
		ReasonDetail:         strings.TrimSpace(req.ReasonDetail),
		Quantity:             quantity,
		Status:               ClaimStatusRequested,
		RequestedAmount:      req.RequestedAmount,
		ApprovedRefundAmount: money.Zero(),
		RequestedAt:          now,
		UpdatedAt:            now,
	}
	if req.Type.RequiresReturn() {
		c.ReturnShipment = &ReturnShipment{Status: ShipmentPending}
	}

	return c, []Event{&ClaimRequestedEvent{
		ClaimID:         c.ID,
		ClaimNumber:     c.ClaimNumber,
		OrderRef:        c.OrderRef,
		Type:            c.Type,
		Reason:          c.Reason,
		RequestedAmount: c.RequestedAmount,
		Timestamp:       now,
	}}, nil
}

func claimNumber(id uuid.UUID, now time.Time) string {
	return fmt.Sprintf("CLM-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(id.String()[:8]))
}

func (c Claim) statusError(op string, allowed ...ClaimStatus) error {
	return &ClaimStatusError{ClaimID: c.ID, Operation: op, Current: c.Status, Allowed: allowed}
}

func (c Claim) shipmentError(op string, allowed []ClaimStatus, allowedShipment ...ShipmentStatus) error {
	err := &ClaimStatusError{
		ClaimID:         c.ID,
		Operation:       op,
		Current:         c.Status,
		Allowed:         allowed,
		AllowedShipment: allowedShipment,
	}
	if c.ReturnShipment != nil {
		err.CurrentShipment = c.ReturnShipment.Status
	}
	return err
}

func (c Claim) requireReturn(op string) error {
	if !c.Type.RequiresReturn() || c.ReturnShipment == nil {
		return &ClaimTypeError{ClaimID: c.ID, Operation: op, Type: c.Type}
	}
	return nil
}

// clone copies the snapshot including its embedded shipments so callers never share them.
func (c Claim) clone() Claim {
	next := c
	if c.ReturnShipment != nil {
		rs := *c.ReturnShipment
		next.ReturnShipment = &rs
	}
	if c.ExchangeShipment != nil {
		es := *c.ExchangeShipment
		next.ExchangeShipment = &es
	}
	return next
}

func (c Claim) shipmentChanged(from ShipmentStatus, next Claim, now time.Time) Event {
	return &ClaimReturnShippingChangedEvent{
		ClaimID:        c.ID,
		From:           from,
		To:             next.ReturnShipment.Status,
		CarrierID:      next.ReturnShipment.CarrierID,
		TrackingNumber: next.ReturnShipment.TrackingNumber,
		ClaimStatus:    next.Status,
		Timestamp:      now,
	}
}

func (c Claim) refundRequested(amount money.Money, now time.Time) Event {
	return &ClaimRefundRequestedEvent{
		ClaimID:   c.ID,
		OrderRef:  c.OrderRef,
		PaymentID: c.PaymentID,
		Amount:    amount,
		Timestamp: now,
	}
}

// Approve accepts the claim. An approved CANCEL immediately asks for its refund.
func (c Claim) Approve(processedBy string, now time.Time) (Claim, []Event, error) {
	if c.Status != ClaimStatusRequested {
		return c, nil, c.statusError("approve", ClaimStatusRequested)
	}

	next := c.clone()
	next.Status = ClaimStatusApproved
	next.ProcessedBy = processedBy
	next.ProcessedAt = timePtr(now)
	next.UpdatedAt = now

	events := []Event{&ClaimApprovedEvent{
		ClaimID:     c.ID,
		OrderRef:    c.OrderRef,
		Type:        c.Type,
		ProcessedBy: processedBy,
		Timestamp:   now,
	}}
	if c.Type == ClaimTypeCancel {
		next.ApprovedRefundAmount = c.RequestedAmount
		events = append(events, next.refundRequested(c.RequestedAmount, now))
	}
	return next, events, nil
}

func (c Claim) Reject(processedBy, reason string, now time.Time) (Claim, []Event, error) {
	if c.Status != ClaimStatusRequested {
		return c, nil, c.statusError("reject", ClaimStatusRequested)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return c, nil, invalid("reject_reason", "is required")
	}

	next := c.clone()
	next.Status = ClaimStatusRejected
	next.ProcessedBy = processedBy
	next.ProcessedAt = timePtr(now)
	next.RejectReason = reason
	next.UpdatedAt = now

	return next, []Event{&ClaimRejectedEvent{
		ClaimID:        c.ID,
		OrderRef:       c.OrderRef,
		PreviousStatus: c.Status,
		RejectReason:   reason,
		Timestamp:      now,
	}}, nil
}

// Withdraw lets the customer take the claim back before anything physical has happened.
func (c Claim) Withdraw(now time.Time) (Claim, []Event, error) {
	switch {
	case c.Status == ClaimStatusRequested:
	case c.Status == ClaimStatusApproved && c.ReturnShipment != nil && c.ReturnShipment.Status == ShipmentPending:
	default:
		if c.ReturnShipment != nil && !c.Status.IsTerminal() {
			return c, nil, c.shipmentError("withdraw", []ClaimStatus{ClaimStatusRequested, ClaimStatusApproved}, ShipmentPending)
		}
		return c, nil, c.statusError("withdraw", ClaimStatusRequested)
	}

	next := c.clone()
	next.Status = ClaimStatusWithdrawn
	next.UpdatedAt = now

	return next, []Event{&ClaimWithdrawnEvent{ClaimID: c.ID, OrderRef: c.OrderRef, Timestamp: now}}, nil
}

// SchedulePickup books a carrier pickup at the customer's address.
func (c Claim) SchedulePickup(carrierID string, pickupAt time.Time, address, phone string, now time.Time) (Claim, []Event, error) {
	const op = "schedule pickup"
	if err := c.requireReturn(op); err != nil {
		return c, nil, err
	}
	allowed := []ClaimStatus{ClaimStatusApproved, ClaimStatusReturnInProgress}
	if (c.Status != ClaimStatusApproved && c.Status != ClaimStatusReturnInProgress) ||
		c.ReturnShipment.Status != ShipmentPending {
		return c, nil, c.shipmentError(op, allowed, ShipmentPending)
	}
	if strings.TrimSpace(carrierID) == "" {
		return c, nil, invalid("carrier_id", "is required")
	}
	if !pickupAt.After(now) {
		return c, nil, invalid("pickup_time", "must be in the future")
	}
	if strings.TrimSpace(address) == "" {
		return c, nil, invalid("pickup_address", "is required")
	}

	next := c.clone()
	next.Status = ClaimStatusReturnInProgress
	next.ReturnShipment.CarrierID = carrierID
	next.ReturnShipment.Status = ShipmentPickupScheduled
	next.ReturnShipment.PickupScheduledAt = timePtr(pickupAt)
	next.ReturnShipment.PickupAddress = strings.TrimSpace(address)
	next.ReturnShipment.CustomerPhone = strings.TrimSpace(phone)
	next.UpdatedAt = now

	return next, []Event{c.shipmentChanged(c.ReturnShipment.Status, next, now)}, nil
}

// RegisterReturnShipping records the carrier and invoice number of the return parcel.
func (c Claim) RegisterReturnShipping(carrierID, trackingNumber string, now time.Time) (Claim, []Event, error) {
	const op = "register return shipping"
	if err := c.requireReturn(op); err != nil {
		return c, nil, err
	}
	allowed := []ClaimStatus{ClaimStatusApproved, ClaimStatusReturnInProgress}
	shipment := c.ReturnShipment.Status
	if (c.Status != ClaimStatusApproved && c.Status != ClaimStatusReturnInProgress) ||
		(shipment != ShipmentPending && shipment != ShipmentPickupScheduled) {
		return c, nil, c.shipmentError(op, allowed, ShipmentPending, ShipmentPickupScheduled)
	}
	if strings.TrimSpace(carrierID) == "" {
		return c, nil, invalid("carrier_id", "is required")
	}
	if strings.TrimSpace(trackingNumber) == "" {
		return c, nil, invalid("tracking_number", "is required")
	}

	next := c.clone()
	next.Status = ClaimStatusReturnInProgress
	next.ReturnShipment.CarrierID = carrierID
	next.ReturnShipment.TrackingNumber = trackingNumber
	next.ReturnShipment.Status = ShipmentPickedUp
	next.UpdatedAt = now

	return next, []Event{c.shipmentChanged(shipment, next, now)}, nil
}

// UpdateReturnShippingStatus applies a carrier status. Carriers resend and reorder events, so a
// status that does not move the shipment forward is a no-op: the snapshot is returned as is and
// no events are produced.
func (c Claim) UpdateReturnShippingStatus(status ShipmentStatus, now time.Time) (Claim, []Event, error) {
	const op = "update return shipping status"
	if err := c.requireReturn(op); err != nil {
		return c, nil, err
	}
	if !status.IsValid() {
		return c, nil, invalid("shipment_status", "unknown status %q", status)
	}
	current := c.ReturnShipment.Status
	if !status.After(current) {
		return c, nil, nil
	}
	if c.Status != ClaimStatusApproved && c.Status != ClaimStatusReturnInProgress {
		return c, nil, c.statusError(op, ClaimStatusApproved, ClaimStatusReturnInProgress)
	}

	next := c.clone()
	next.ReturnShipment.Status = status
	next.Status = ClaimStatusReturnInProgress
	if status == ShipmentReceived {
		next.Status = ClaimStatusReturnReceived
		next.ReturnShipment.ReceivedAt = timePtr(now)
	}
	next.UpdatedAt = now

	return next, []Event{c.shipmentChanged(current, next, now)}, nil
}

// ConfirmReturnReceived records the seller's inspection of the returned item. partialAmount is
// only read for PARTIAL outcomes.
func (c Claim) ConfirmReturnReceived(outcome InspectionOutcome, partialAmount money.Money, note string, now time.Time) (Claim, []Event, error) {
	const op = "confirm return received"
	if err := c.requireReturn(op); err != nil {
		return c, nil, err
	}
	if c.Status != ClaimStatusReturnReceived || c.ReturnShipment.Status != ShipmentReceived || c.Inspection != InspectionNone {
		return c, nil, c.shipmentError(op, []ClaimStatus{ClaimStatusReturnReceived}, ShipmentReceived)
	}
	route, err := RouteInspection(c.Type, outcome)
	if err != nil {
		return c, nil, err
	}

	next := c.clone()
	next.Status = route.Next
	next.Inspection = outcome
	next.InspectionNote = strings.TrimSpace(note)
	next.UpdatedAt = now

	switch outcome {
	case InspectionPass:
		if c.Type.RefundsMoney() {
			next.ApprovedRefundAmount = c.RequestedAmount
		}
	case InspectionPartial:
		if err := PartialRefundBound(c.RequestedAmount, partialAmount); err != nil {
			return c, nil, err
		}
		next.ApprovedRefundAmount = partialAmount
	case InspectionFail:
		detail := next.InspectionNote
		if detail == "" {
			detail = "item condition not accepted"
		}
		next.RejectReason = "inspection failed: " + detail
	}

	events := []Event{&ClaimInspectionRecordedEvent{
		ClaimID:      c.ID,
		Outcome:      outcome,
		RefundAmount: next.ApprovedRefundAmount,
		Note:         next.InspectionNote,
		ClaimStatus:  next.Status,
		Timestamp:    now,
	}}
	if outcome == InspectionFail {
		events = append(events, &ClaimRejectedEvent{
			ClaimID:        c.ID,
			OrderRef:       c.OrderRef,
			PreviousStatus: c.Status,
			RejectReason:   next.RejectReason,
			Timestamp:      now,
		})
	}
	if route.RequestRefund {
		events = append(events, next.refundRequested(next.ApprovedRefundAmount, now))
	}
	return next, events, nil
}

// RegisterExchangeShipping ships the replacement item after a passed inspection.
func (c Claim) RegisterExchangeShipping(carrierID, trackingNumber string, now time.Time) (Claim, []Event, error) {
	if err := ExchangeShippingEligibility(c); err != nil {
		return c, nil, err
	}
	if strings.TrimSpace(carrierID) == "" {
		return c, nil, invalid("carrier_id", "is required")
	}
	if strings.TrimSpace(trackingNumber) == "" {
		return c, nil, invalid("tracking_number", "is required")
	}

	next := c.clone()
	next.Status = ClaimStatusExchangeShipping
	next.ExchangeShipment = &ExchangeShipment{
		CarrierID:      carrierID,
		TrackingNumber: trackingNumber,
		ShippedAt:      now,
	}
	next.UpdatedAt = now

	return next, []Event{&ClaimExchangeShippedEvent{
		ClaimID:        c.ID,
		CarrierID:      carrierID,
		TrackingNumber: trackingNumber,
		Timestamp:      now,
	}}, nil
}

// ConfirmExchangeDelivered closes an exchange once the replacement reached the customer.
func (c Claim) ConfirmExchangeDelivered(now time.Time) (Claim, []Event, error) {
	if c.Status != ClaimStatusExchangeShipping || c.ExchangeShipment == nil {
		return c, nil, c.statusError("confirm exchange delivered", ClaimStatusExchangeShipping)
	}

	next := c.clone()
	next.ExchangeShipment.DeliveredAt = timePtr(now)
	return next.finish(now)
}

// Complete marks a refund-bearing claim done once its refund was confirmed externally.
func (c Claim) Complete(now time.Time) (Claim, []Event, error) {
	switch {
	case c.Type == ClaimTypeCancel && c.Status == ClaimStatusApproved:
	case c.Type.RequiresReturn() && c.Type.RefundsMoney() && c.Status == ClaimStatusRefundPending:
	default:
		if c.Type == ClaimTypeCancel {
			return c, nil, c.statusError("complete", ClaimStatusApproved)
		}
		if c.Type == ClaimTypeExchange {
			return c, nil, &ClaimTypeError{ClaimID: c.ID, Operation: "complete without exchange delivery", Type: c.Type}
		}
		return c, nil, c.statusError("complete", ClaimStatusRefundPending)
	}
	return c.clone().finish(now)
}

func (c Claim) finish(now time.Time) (Claim, []Event, error) {
	prev := c.Status
	c.Status = ClaimStatusCompleted
	c.CompletedAt = timePtr(now)
	c.UpdatedAt = now
	if err := c.CheckInvariants(); err != nil {
		c.Status = prev
		return c, nil, err
	}
	return c, []Event{&ClaimCompletedEvent{
		ClaimID:      c.ID,
		OrderRef:     c.OrderRef,
		Type:         c.Type,
		RefundAmount: c.ApprovedRefundAmount,
		Timestamp:    now,
	}}, nil
}

// IsActive reports whether the claim still blocks new claims on its order.
func (c Claim) IsActive() bool {
	return !c.Status.IsTerminal()
}

// CheckInvariants verifies the joint consistency of claim and return shipment state.
func (c Claim) CheckInvariants() error {
	if c.Type.RequiresReturn() != (c.ReturnShipment != nil) {
		return fmt.Errorf("claim %s: return shipment presence inconsistent with type %s", c.ID, c.Type)
	}
	if c.Inspection != InspectionNone && (c.ReturnShipment == nil || c.ReturnShipment.Status != ShipmentReceived) {
		return fmt.Errorf("claim %s: inspection recorded before return was received", c.ID)
	}
	if c.Type.RequiresReturn() && c.Status == ClaimStatusCompleted {
		if c.ReturnShipment.Status != ShipmentReceived || c.Inspection == InspectionNone {
			return fmt.Errorf("claim %s: completed without received return and inspection", c.ID)
		}
	}
	if c.ApprovedRefundAmount.GreaterThan(c.RequestedAmount) {
		return fmt.Errorf("claim %s: approved refund %s exceeds requested %s", c.ID, c.ApprovedRefundAmount, c.RequestedAmount)
	}
	return nil
}
