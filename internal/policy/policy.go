// Package policy holds the configurable business rules that sit around the claim aggregate.
package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/config"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

// PartialRefundPolicy caps a PARTIAL inspection refund at MaxRatio of the requested amount.
type PartialRefundPolicy struct {
	MaxRatio decimal.Decimal
}

func (p PartialRefundPolicy) Check(requested, partial money.Money) error {
	if !partial.IsPositive() {
		return &domain.ValidationError{Field: "partial_refund_amount", Message: "must be greater than zero"}
	}
	limit, err := requested.MulRatio(p.MaxRatio)
	if err != nil {
		return errors.Wrap(err, "computing partial refund limit")
	}
	if partial.GreaterThan(limit) {
		return &domain.ValidationError{
			Field:   "partial_refund_amount",
			Message: fmt.Sprintf("%s exceeds the allowed %s (%s of requested %s)", partial, limit, p.MaxRatio, requested),
		}
	}
	return nil
}

type Scope string

const (
	ScopeOrder     Scope = "order"
	ScopeOrderItem Scope = "order_item"
)

// ActiveClaimPolicy allows one non-terminal claim per order, or per order item.
type ActiveClaimPolicy struct {
	Scope Scope
}

// Check fails with ErrActiveClaimExists when an existing claim on the order still blocks req.
func (p ActiveClaimPolicy) Check(existing []domain.Claim, req domain.ClaimRequest) error {
	for _, c := range existing {
		if !c.IsActive() || c.OrderRef != req.OrderRef {
			continue
		}
		if p.Scope == ScopeOrderItem && c.OrderItemRef != "" && req.OrderItemRef != "" && c.OrderItemRef != req.OrderItemRef {
			continue
		}
		return errors.Wrap(errors.ErrActiveClaimExists, fmt.Sprintf("claim %s", c.ClaimNumber))
	}
	return nil
}

// Key names what a claim blocks while active. Storage keeps it unique among non-terminal claims.
func (p ActiveClaimPolicy) Key(c *domain.Claim) string {
	if p.Scope == ScopeOrderItem && c.OrderItemRef != "" {
		return c.OrderRef + "/" + c.OrderItemRef
	}
	return c.OrderRef
}

// ReturnWindow rejects claims opened more than Days after the order was placed.
type ReturnWindow struct {
	Days int
}

// Check ignores a zero orderedAt and CANCEL claims, which have no window.
func (w ReturnWindow) Check(t domain.ClaimType, orderedAt, now time.Time) error {
	if orderedAt.IsZero() || t == domain.ClaimTypeCancel || w.Days <= 0 {
		return nil
	}
	deadline := orderedAt.AddDate(0, 0, w.Days)
	if now.After(deadline) {
		return &domain.ValidationError{
			Field:   "ordered_at",
			Message: fmt.Sprintf("claim window of %d days closed at %s", w.Days, deadline.Format(time.RFC3339)),
		}
	}
	return nil
}

// ReturnShippingCost is charged to the customer on RETURN claims they caused.
type ReturnShippingCost struct {
	Amount money.Money
}

// Apply returns the refundable amount after the shipping deduction.
func (c ReturnShippingCost) Apply(t domain.ClaimType, reason domain.ClaimReason, requested money.Money) (money.Money, error) {
	if t != domain.ClaimTypeReturn || !reason.IsCustomerFault() || c.Amount.IsZero() {
		return requested, nil
	}
	net, err := requested.Sub(c.Amount)
	if err != nil || !net.IsPositive() {
		return requested, &domain.ValidationError{
			Field:   "requested_amount",
			Message: fmt.Sprintf("%s does not cover the return shipping cost %s", requested, c.Amount),
		}
	}
	return net, nil
}

// Set bundles every claim policy.
type Set struct {
	PartialRefund PartialRefundPolicy
	ActiveClaim   ActiveClaimPolicy
	ReturnWindow  ReturnWindow
	ShippingCost  ReturnShippingCost
}

func Default() Set {
	return Set{
		PartialRefund: PartialRefundPolicy{MaxRatio: decimal.NewFromInt(1)},
		ActiveClaim:   ActiveClaimPolicy{Scope: ScopeOrder},
		ReturnWindow:  ReturnWindow{Days: 7},
		ShippingCost:  ReturnShippingCost{Amount: money.Zero()},
	}
}

func FromConfig(cfg config.ClaimPolicyConfig) (Set, error) {
	scope := Scope(cfg.ActiveClaimScope)
	if scope != ScopeOrder && scope != ScopeOrderItem {
		return Set{}, fmt.Errorf("unknown active claim scope %q", cfg.ActiveClaimScope)
	}
	ratio := decimal.NewFromFloat(cfg.PartialRefundMaxRatio)
	if !ratio.IsPositive() || ratio.GreaterThan(decimal.NewFromInt(1)) {
		return Set{}, fmt.Errorf("partial refund ratio %s out of range", ratio)
	}
	cost, err := money.New(decimal.NewFromInt(cfg.ReturnShippingCost))
	if err != nil {
		return Set{}, errors.Wrap(err, "return shipping cost")
	}
	return Set{
		PartialRefund: PartialRefundPolicy{MaxRatio: ratio},
		ActiveClaim:   ActiveClaimPolicy{Scope: scope},
		ReturnWindow:  ReturnWindow{Days: cfg.ReturnWindowDays},
		ShippingCost:  ReturnShippingCost{Amount: cost},
	}, nil
}
