// Package saga coordinates the payment and claim aggregates through their events. Neither
// aggregate locks the other; each step is its own version-checked command.
package saga

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/events"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/payment"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/tracing"
)

type PaymentRefunder interface {
	RefundPayment(ctx context.Context, id uuid.UUID, req *payment.RefundPaymentRequest) (*domain.Payment, error)
}

type ClaimCompleter interface {
	CompleteClaim(ctx context.Context, id uuid.UUID) (*domain.Claim, error)
}

// RefundSaga turns a claim's refund request into a payment refund and, once that succeeded,
// completes the claim. A failed refund leaves the claim in REFUND_PENDING for reconciliation.
type RefundSaga struct {
	payments PaymentRefunder
	claims   ClaimCompleter
	logger   logger.Logger
}

func NewRefundSaga(payments PaymentRefunder, claims ClaimCompleter, log logger.Logger) *RefundSaga {
	return &RefundSaga{payments: payments, claims: claims, logger: log}
}

// Register subscribes the saga to refund requests on d.
func (s *RefundSaga) Register(d *events.Dispatcher) {
	d.Subscribe((&domain.ClaimRefundRequestedEvent{}).EventType(), s.Handle)
}

func (s *RefundSaga) Handle(ctx context.Context, event domain.Event) error {
	e, ok := event.(*domain.ClaimRefundRequestedEvent)
	if !ok {
		return nil
	}

	ctx, span := tracing.Tracer().Start(ctx, "saga.claim_refund", trace.WithAttributes(
		attribute.String("claim.id", e.ClaimID.String()),
		attribute.String("payment.id", e.PaymentID.String()),
		attribute.String("refund.amount", e.Amount.String()),
	))
	defer span.End()

	if err := s.refund(ctx, e); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("Claim refund failed; claim stays in REFUND_PENDING", map[string]interface{}{
			"claim_id":   e.ClaimID,
			"payment_id": e.PaymentID,
			"amount":     e.Amount.String(),
			"kind":       errors.KindOf(err),
			"error":      err,
		})
		return err
	}

	if _, err := s.claims.CompleteClaim(ctx, e.ClaimID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("Refund succeeded but claim could not be completed", map[string]interface{}{
			"claim_id":   e.ClaimID,
			"payment_id": e.PaymentID,
			"error":      err,
		})
		return err
	}

	s.logger.Info("Claim refund completed", map[string]interface{}{
		"claim_id":   e.ClaimID,
		"payment_id": e.PaymentID,
		"amount":     e.Amount.String(),
	})
	return nil
}

// refund skips zero amounts; a refund without a payment to draw from is an error.
func (s *RefundSaga) refund(ctx context.Context, e *domain.ClaimRefundRequestedEvent) error {
	if e.Amount.IsZero() {
		return nil
	}
	if e.PaymentID == uuid.Nil {
		return &domain.ValidationError{Field: "payment_id", Message: "claim has no payment to refund"}
	}
	_, err := s.payments.RefundPayment(ctx, e.PaymentID, &payment.RefundPaymentRequest{
		Amount: e.Amount,
		Reason: "claim " + e.ClaimID.String(),
	})
	return err
}
