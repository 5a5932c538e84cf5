package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/metrics"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

const gatewaySource = "pg"

type CallbackType string

const (
	CallbackApproved  CallbackType = "APPROVED"
	CallbackFailed    CallbackType = "FAILED"
	CallbackCancelled CallbackType = "CANCELLED"
	CallbackRefunded  CallbackType = "REFUNDED"
)

// GatewayCallback is a PG webhook payload. EventID names the gateway-side event; redeliveries
// carry the same id.
type GatewayCallback struct {
	EventID       string       `json:"event_id" validate:"required,notblank"`
	Type          CallbackType `json:"type" validate:"required"`
	PaymentID     uuid.UUID    `json:"payment_id"`
	TransactionID string       `json:"transaction_id"`
	Amount        money.Money  `json:"amount"`
	Reason        string       `json:"reason"`
}

// HandleGatewayCallback applies a PG callback exactly once per event id. A redelivered event
// returns ErrDuplicateEvent without touching the payment.
func (s *Service) HandleGatewayCallback(ctx context.Context, cb *GatewayCallback) (*domain.Payment, error) {
	if err := s.validator.Validate(cb); err != nil {
		metrics.RecordWebhookEvent(gatewaySource, "invalid")
		return nil, err
	}
	if cb.PaymentID == uuid.Nil {
		metrics.RecordWebhookEvent(gatewaySource, "invalid")
		return nil, &domain.ValidationError{Field: "payment_id", Message: "is required"}
	}

	if err := s.tracker.Claim(ctx, gatewaySource, cb.EventID); err != nil {
		if errors.Is(err, errors.ErrDuplicateEvent) {
			metrics.RecordWebhookEvent(gatewaySource, "duplicate")
			s.logger.Info("Duplicate gateway callback ignored", map[string]interface{}{
				"event_id":   cb.EventID,
				"payment_id": cb.PaymentID,
			})
		}
		return nil, err
	}

	p, err := s.route(ctx, cb)
	if err != nil {
		metrics.RecordWebhookEvent(gatewaySource, "failed")
		if retryable(err) {
			if rerr := s.tracker.Release(ctx, gatewaySource, cb.EventID); rerr != nil {
				s.logger.Error("Failed to release gateway event id", map[string]interface{}{
					"event_id": cb.EventID,
					"error":    rerr,
				})
			}
		}
		return nil, err
	}

	metrics.RecordWebhookEvent(gatewaySource, "applied")
	return p, nil
}

func (s *Service) route(ctx context.Context, cb *GatewayCallback) (*domain.Payment, error) {
	switch CallbackType(strings.ToUpper(string(cb.Type))) {
	case CallbackApproved:
		return s.ApprovePayment(ctx, cb.PaymentID, &ApprovePaymentRequest{
			GatewayTransactionID: cb.TransactionID,
			Amount:               cb.Amount,
		})
	case CallbackFailed:
		return s.FailPayment(ctx, cb.PaymentID, cb.Reason)
	case CallbackCancelled:
		return s.CancelPayment(ctx, cb.PaymentID)
	case CallbackRefunded:
		return s.RefundPayment(ctx, cb.PaymentID, &RefundPaymentRequest{Amount: cb.Amount, Reason: cb.Reason})
	}
	return nil, errors.Wrap(errors.ErrUnknownCallbackType, string(cb.Type))
}

// retryable reports whether a redelivery of the same event could succeed.
func retryable(err error) bool {
	switch errors.KindOf(err) {
	case errors.KindInternal, errors.KindConflict:
		return true
	}
	return false
}
