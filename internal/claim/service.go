// Package claim runs customer and seller commands against the claim aggregate and applies the
// configured claim policies around it.
package claim

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/events"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/metrics"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/policy"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/tracing"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/validator"
)

// Repository persists claim snapshots with version-checked updates. Create must refuse a second
// active claim for the same active key with ErrActiveClaimExists.
type Repository interface {
	Create(ctx context.Context, c *domain.Claim) error
	Update(ctx context.Context, c *domain.Claim) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error)
	FindByOrderRef(ctx context.Context, orderRef string) ([]*domain.Claim, error)
	FindByReturnTracking(ctx context.Context, carrierID, trackingNumber string) (*domain.Claim, error)
}

type EventTracker interface {
	Claim(ctx context.Context, source, eventID string) error
	Release(ctx context.Context, source, eventID string) error
}

const maxAttempts = 2

type Service struct {
	repo      Repository
	publisher events.Publisher
	tracker   EventTracker
	policies  policy.Set
	validator *validator.Validator
	logger    logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, publisher events.Publisher, tracker EventTracker, policies policy.Set, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		tracker:   tracker,
		policies:  policies,
		validator: validator.New(),
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type RequestClaimRequest struct {
	OrderRef        string             `json:"order_ref" validate:"required,notblank,max=64"`
	OrderItemRef    string             `json:"order_item_ref" validate:"max=64"`
	PaymentID       uuid.UUID          `json:"payment_id"`
	Type            domain.ClaimType   `json:"type" validate:"required"`
	Reason          domain.ClaimReason `json:"reason" validate:"required"`
	ReasonDetail    string             `json:"reason_detail" validate:"max=1000"`
	Quantity        int                `json:"quantity" validate:"gte=0"`
	RequestedAmount money.Money        `json:"requested_amount"`
	OrderedAt       time.Time          `json:"ordered_at"`
}

type RejectClaimRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=500"`
}

type SchedulePickupRequest struct {
	CarrierID     string    `json:"carrier_id" validate:"required,notblank"`
	PickupAt      time.Time `json:"pickup_at" validate:"required"`
	Address       string    `json:"address" validate:"required,notblank,max=300"`
	CustomerPhone string    `json:"customer_phone" validate:"omitempty,kr_phone"`
}

type ShippingRequest struct {
	CarrierID      string `json:"carrier_id" validate:"required,notblank"`
	TrackingNumber string `json:"tracking_number" validate:"required,notblank,max=64"`
}

type InspectionRequest struct {
	Outcome             domain.InspectionOutcome `json:"outcome" validate:"required,oneof=PASS FAIL PARTIAL"`
	PartialRefundAmount money.Money              `json:"partial_refund_amount"`
	Note                string                   `json:"note" validate:"max=1000"`
}

// RequestClaim opens a claim after the return window, shipping cost and active-claim rules pass.
func (s *Service) RequestClaim(ctx context.Context, req *RequestClaimRequest) (*domain.Claim, error) {
	ctx, span := tracing.Tracer().Start(ctx, "claim.request",
		trace.WithAttributes(attribute.String("order.ref", req.OrderRef)))
	defer span.End()

	c, evts, err := s.newClaim(ctx, req)
	if err != nil {
		return nil, s.fail(span, "request", uuid.Nil, err)
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, s.fail(span, "request", c.ID, err)
	}

	metrics.RecordTransition(domain.AggregateClaim, "request", nil)
	s.logger.Info("Claim requested", map[string]interface{}{
		"claim_id":     c.ID,
		"claim_number": c.ClaimNumber,
		"order_ref":    c.OrderRef,
		"type":         c.Type,
		"amount":       c.RequestedAmount.String(),
	})
	s.publish(ctx, evts)
	return c, nil
}

func (s *Service) newClaim(ctx context.Context, req *RequestClaimRequest) (*domain.Claim, []domain.Event, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, nil, err
	}
	now := s.now()
	if err := s.policies.ReturnWindow.Check(req.Type, req.OrderedAt, now); err != nil {
		return nil, nil, err
	}
	amount, err := s.policies.ShippingCost.Apply(req.Type, req.Reason, req.RequestedAmount)
	if err != nil {
		return nil, nil, err
	}

	cr := domain.ClaimRequest{
		OrderRef:        req.OrderRef,
		OrderItemRef:    req.OrderItemRef,
		PaymentID:       req.PaymentID,
		Type:            req.Type,
		Reason:          req.Reason,
		ReasonDetail:    validator.Sanitize(req.ReasonDetail),
		Quantity:        req.Quantity,
		RequestedAmount: amount,
	}

	existing, err := s.repo.FindByOrderRef(ctx, req.OrderRef)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load order claims")
	}
	claims := make([]domain.Claim, len(existing))
	for i, c := range existing {
		claims[i] = *c
	}
	if err := s.policies.ActiveClaim.Check(claims, cr); err != nil {
		return nil, nil, err
	}

	c, evts, err := domain.NewClaim(cr, now)
	if err != nil {
		return nil, nil, err
	}
	return &c, evts, nil
}

func (s *Service) GetClaim(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListOrderClaims(ctx context.Context, orderRef string) ([]*domain.Claim, error) {
	return s.repo.FindByOrderRef(ctx, orderRef)
}

func (s *Service) ApproveClaim(ctx context.Context, id uuid.UUID, actor string) (*domain.Claim, error) {
	return s.transition(ctx, "approve", id, func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error) {
		return c.Approve(actor, now)
	})
}

func (s *Service) RejectClaim(ctx context.Context, id uuid.UUID, actor string, req *RejectClaimRequest) (*domain.Claim, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	return s.transition(ctx, "reject", id, func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error) {
		return c.Reject(actor, validator.Sanitize(req.Reason), now)
	})
}

func (s *Service) WithdrawClaim(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	return s.transition(ctx, "withdraw", id, func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error) {
		return c.Withdraw(now)
	})
}

func (s *Service) SchedulePickup(ctx context.Context, id uuid.UUID, req *SchedulePickupRequest) (*domain.Claim, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	return s.transition(ctx, "schedule_pickup", id, func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error) {
		return c.SchedulePickup(req.CarrierID, req.PickupAt, req.Address, req.CustomerPhone, now)
	})
}

func (s *Service) RegisterReturnShipping(ctx context.Context, id uuid.UUID, req *ShippingRequest) (*domain.Claim, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	return s.transition(ctx, "register_return_shipping", id, func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error) {
		return c.RegisterReturnShipping(req.CarrierID, req.TrackingNumber, now)
	})
}

// UpdateReturnShippingStatus advances the return leg. A status that does not advance it is
// accepted and leaves the stored claim untouched.
func (s *Service) UpdateReturnShippingStatus(ctx context.Context, id uuid.UUID, status domain.ShipmentStatus) (*domain.Claim, error) {
	return s.transition(ctx, "update_return_shipping", id, func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error) {
		return c.UpdateReturnShippingStatus(status, now)
	})
}

// ConfirmReturnReceived records the inspection. PARTIAL amounts are checked against the partial
// refund policy before the aggregate sees them.
func (s *Service) ConfirmReturnReceived(ctx context.Context, id uuid.UUID, req *InspectionRequest) (*domain.Claim, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	return s.transition(ctx, "confirm_return_received", id, func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error) {
		if req.Outcome == domain.InspectionPartial && c.Type.RefundsMoney() {
			if err := s.policies.PartialRefund.Check(c.RequestedAmount, req.PartialRefundAmount); err != nil {
				return c, nil, err
			}
		}
		return c.ConfirmReturnReceived(req.Outcome, req.PartialRefundAmount, validator.Sanitize(req.Note), now)
	})
}

func (s *Service) RegisterExchangeShipping(ctx context.Context, id uuid.UUID, req *ShippingRequest) (*domain.Claim, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	return s.transition(ctx, "register_exchange_shipping", id, func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error) {
		return c.RegisterExchangeShipping(req.CarrierID, req.TrackingNumber, now)
	})
}

func (s *Service) ConfirmExchangeDelivered(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	return s.transition(ctx, "confirm_exchange_delivered", id, func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error) {
		return c.ConfirmExchangeDelivered(now)
	})
}

// CompleteClaim closes a refund-bearing claim once its refund went through.
func (s *Service) CompleteClaim(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	return s.transition(ctx, "complete", id, func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error) {
		return c.Complete(now)
	})
}

type transitionFunc func(c domain.Claim, now time.Time) (domain.Claim, []domain.Event, error)

func (s *Service) transition(ctx context.Context, op string, id uuid.UUID, fn transitionFunc) (*domain.Claim, error) {
	ctx, span := tracing.Tracer().Start(ctx, "claim."+op,
		trace.WithAttributes(attribute.String("claim.id", id.String())))
	defer span.End()

	var (
		next *domain.Claim
		evts []domain.Event
		err  error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		next, evts, err = s.apply(ctx, id, fn)
		if !errors.Is(err, errors.ErrConcurrentModification) {
			break
		}
		s.logger.Warn("Claim modified concurrently", map[string]interface{}{
			"claim_id":  id,
			"operation": op,
			"attempt":   attempt,
		})
	}
	if err != nil {
		return nil, s.fail(span, op, id, err)
	}

	metrics.RecordTransition(domain.AggregateClaim, op, nil)
	if len(evts) == 0 {
		s.logger.Info("Claim transition was a no-op", map[string]interface{}{
			"claim_id":  id,
			"operation": op,
			"status":    next.Status,
		})
		return next, nil
	}
	s.logger.Info("Claim transitioned", map[string]interface{}{
		"claim_id":  id,
		"operation": op,
		"status":    next.Status,
		"version":   next.Version,
	})
	s.publish(ctx, evts)
	return next, nil
}

// apply loads, transitions and saves. A transition without events changed nothing and is not
// written.
func (s *Service) apply(ctx context.Context, id uuid.UUID, fn transitionFunc) (*domain.Claim, []domain.Event, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	next, evts, err := fn(*current, s.now())
	if err != nil {
		return nil, nil, err
	}
	if len(evts) == 0 {
		return current, nil, nil
	}
	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, nil, err
	}
	return &next, evts, nil
}

func (s *Service) publish(ctx context.Context, evts []domain.Event) {
	if len(evts) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.Error("Failed to publish claim events", map[string]interface{}{
			"error":  err,
			"events": len(evts),
		})
	}
}

func (s *Service) fail(span trace.Span, op string, id uuid.UUID, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.RecordTransition(domain.AggregateClaim, op, err)

	fields := map[string]interface{}{
		"operation": op,
		"kind":      errors.KindOf(err),
		"error":     err,
	}
	if id != uuid.Nil {
		fields["claim_id"] = id
	}
	if errors.KindOf(err) == errors.KindInternal {
		s.logger.Error("Claim command failed", fields)
	} else {
		s.logger.Warn("Claim command rejected", fields)
	}
	return err
}
