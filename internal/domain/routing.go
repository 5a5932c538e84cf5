package domain

import (
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

// RefundEligibility decides whether amount may be refunded from p right now.
func RefundEligibility(p Payment, amount money.Money) error {
	if !p.Status.CanRefund() {
		return p.statusError("refund", PaymentStatusApproved, PaymentStatusPartialRefunded)
	}
	if !amount.IsPositive() {
		return invalid("refund_amount", "must be greater than zero")
	}
	refundable := p.RefundableAmount()
	if amount.GreaterThan(refundable) {
		return &RefundAmountError{PaymentID: p.ID, Requested: amount, Refundable: refundable}
	}
	return nil
}

// InspectionRoute is where a claim goes after an inspection outcome is recorded.
type InspectionRoute struct {
	Next          ClaimStatus
	RequestRefund bool
}

// RouteInspection maps a claim type and outcome to the next claim status.
func RouteInspection(t ClaimType, outcome InspectionOutcome) (InspectionRoute, error) {
	switch outcome {
	case InspectionFail:
		return InspectionRoute{Next: ClaimStatusRejected}, nil
	case InspectionPass:
		if t == ClaimTypeExchange {
			return InspectionRoute{Next: ClaimStatusExchangePending}, nil
		}
		return InspectionRoute{Next: ClaimStatusRefundPending, RequestRefund: true}, nil
	case InspectionPartial:
		if t == ClaimTypeExchange {
			return InspectionRoute{}, invalid("inspection_outcome", "PARTIAL is not applicable to exchange claims")
		}
		return InspectionRoute{Next: ClaimStatusRefundPending, RequestRefund: true}, nil
	}
	return InspectionRoute{}, invalid("inspection_outcome", "unknown outcome %q", outcome)
}

// PartialRefundBound checks an inspection-reduced refund against the amount the customer asked for.
func PartialRefundBound(requested, partial money.Money) error {
	if !partial.IsPositive() {
		return invalid("partial_refund_amount", "must be greater than zero")
	}
	if partial.GreaterThan(requested) {
		return invalid("partial_refund_amount", "%s exceeds requested amount %s", partial, requested)
	}
	return nil
}

// ExchangeShippingEligibility reports whether the replacement item may be shipped.
func ExchangeShippingEligibility(c Claim) error {
	if c.Status != ClaimStatusExchangePending {
		return c.statusError("register exchange shipping", ClaimStatusExchangePending)
	}
	if c.Type != ClaimTypeExchange {
		return &ClaimTypeError{ClaimID: c.ID, Operation: "register exchange shipping", Type: c.Type}
	}
	if c.Inspection != InspectionPass {
		return invalid("inspection_outcome", "exchange requires a PASS inspection")
	}
	return nil
}
