// Package payment runs payment commands against the payment aggregate: load, transition,
// version-checked save, then publish.
package payment

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
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/tracing"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/validator"
)

// Repository persists payment snapshots. Update must fail with ErrConcurrentModification when the
// stored version differs from p.Version, and bump p.Version on success.
type Repository interface {
	Create(ctx context.Context, p *domain.Payment) error
	Update(ctx context.Context, p *domain.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	FindByCheckoutRef(ctx context.Context, checkoutRef string) ([]*domain.Payment, error)
}

// EventTracker claims external event ids before they are applied.
type EventTracker interface {
	Claim(ctx context.Context, source, eventID string) error
	Release(ctx context.Context, source, eventID string) error
}

// maxAttempts bounds the reload-and-retry loop on version conflicts.
const maxAttempts = 2

type Service struct {
	repo      Repository
	publisher events.Publisher
	tracker   EventTracker
	validator *validator.Validator
	logger    logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, publisher events.Publisher, tracker EventTracker, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		tracker:   tracker,
		validator: validator.New(),
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type RequestPaymentRequest struct {
	CheckoutRef string                 `json:"checkout_ref" validate:"required,notblank,max=64"`
	Provider    domain.PaymentProvider `json:"provider" validate:"required"`
	Method      domain.PaymentMethod   `json:"method" validate:"required"`
	Amount      money.Money            `json:"amount" validate:"gt=0"`
}

type ApprovePaymentRequest struct {
	GatewayTransactionID string      `json:"gateway_transaction_id" validate:"required,notblank"`
	Amount               money.Money `json:"amount" validate:"gt=0"`
}

type RefundPaymentRequest struct {
	Amount money.Money `json:"amount" validate:"gt=0"`
	Reason string      `json:"reason" validate:"max=500"`
}

func (s *Service) RequestPayment(ctx context.Context, req *RequestPaymentRequest) (*domain.Payment, error) {
	ctx, span := tracing.Tracer().Start(ctx, "payment.request")
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		return nil, s.fail(span, "request", uuid.Nil, err)
	}

	p, err := domain.NewPayment(req.CheckoutRef, req.Provider, req.Method, req.Amount, s.now())
	if err != nil {
		return nil, s.fail(span, "request", uuid.Nil, err)
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, s.fail(span, "request", p.ID, errors.Wrap(err, "failed to create payment"))
	}

	metrics.RecordTransition(domain.AggregatePayment, "request", nil)
	s.logger.Info("Payment requested", map[string]interface{}{
		"payment_id":   p.ID,
		"checkout_ref": p.CheckoutRef,
		"provider":     p.Provider,
		"amount":       p.RequestedAmount.String(),
	})
	return &p, nil
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListCheckoutPayments(ctx context.Context, checkoutRef string) ([]*domain.Payment, error) {
	return s.repo.FindByCheckoutRef(ctx, checkoutRef)
}

func (s *Service) ApprovePayment(ctx context.Context, id uuid.UUID, req *ApprovePaymentRequest) (*domain.Payment, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	return s.transition(ctx, "approve", id, func(p domain.Payment, now time.Time) (domain.Payment, []domain.Event, error) {
		return p.Approve(req.GatewayTransactionID, req.Amount, now)
	})
}

func (s *Service) FailPayment(ctx context.Context, id uuid.UUID, reason string) (*domain.Payment, error) {
	return s.transition(ctx, "fail", id, func(p domain.Payment, now time.Time) (domain.Payment, []domain.Event, error) {
		return p.Fail(reason, now)
	})
}

func (s *Service) CancelPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.transition(ctx, "cancel", id, func(p domain.Payment, now time.Time) (domain.Payment, []domain.Event, error) {
		return p.Cancel(now)
	})
}

func (s *Service) RefundPayment(ctx context.Context, id uuid.UUID, req *RefundPaymentRequest) (*domain.Payment, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	p, err := s.transition(ctx, "refund", id, func(p domain.Payment, now time.Time) (domain.Payment, []domain.Event, error) {
		return p.Refund(req.Amount, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordRefundedAmount(req.Amount.Decimal().InexactFloat64())
	return p, nil
}

type transitionFunc func(p domain.Payment, now time.Time) (domain.Payment, []domain.Event, error)

// transition applies fn to the stored snapshot. A version conflict reloads and reapplies once, so
// the loser of a race sees the winner's state and fails with the aggregate's own error.
func (s *Service) transition(ctx context.Context, op string, id uuid.UUID, fn transitionFunc) (*domain.Payment, error) {
	ctx, span := tracing.Tracer().Start(ctx, "payment."+op,
		trace.WithAttributes(attribute.String("payment.id", id.String())))
	defer span.End()

	var (
		next *domain.Payment
		evts []domain.Event
		err  error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		next, evts, err = s.apply(ctx, id, fn)
		if !errors.Is(err, errors.ErrConcurrentModification) {
			break
		}
		s.logger.Warn("Payment modified concurrently", map[string]interface{}{
			"payment_id": id,
			"operation":  op,
			"attempt":    attempt,
		})
	}
	if err != nil {
		return nil, s.fail(span, op, id, err)
	}

	metrics.RecordTransition(domain.AggregatePayment, op, nil)
	s.logger.Info("Payment transitioned", map[string]interface{}{
		"payment_id": id,
		"operation":  op,
		"status":     next.Status,
		"version":    next.Version,
	})
	s.publish(ctx, evts)
	return next, nil
}

func (s *Service) apply(ctx context.Context, id uuid.UUID, fn transitionFunc) (*domain.Payment, []domain.Event, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	next, evts, err := fn(*current, s.now())
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, nil, err
	}
	return &next, evts, nil
}

// publish runs after the snapshot is saved. A delivery failure cannot undo the transition, so it is
// logged and left to the consumers' reconciliation.
func (s *Service) publish(ctx context.Context, evts []domain.Event) {
	if len(evts) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.Error("Failed to publish payment events", map[string]interface{}{
			"error":  err,
			"events": len(evts),
		})
	}
}

func (s *Service) fail(span trace.Span, op string, id uuid.UUID, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.RecordTransition(domain.AggregatePayment, op, err)

	fields := map[string]interface{}{
		"operation": op,
		"kind":      errors.KindOf(err),
		"error":     err,
	}
	if id != uuid.Nil {
		fields["payment_id"] = id
	}
	if errors.KindOf(err) == errors.KindInternal {
		s.logger.Error("Payment command failed", fields)
	} else {
		s.logger.Warn("Payment command rejected", fields)
	}
	return err
}
