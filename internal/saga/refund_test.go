package saga

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/claim"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/dedup"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/events"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/payment"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/policy"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/repository/bolt"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

type wiring struct {
	payments *payment.Service
	claims   *claim.Service
}

// recorder stands in for an external transport and keeps the event types it receives.
type recorder struct {
	mu    sync.Mutex
	types []string
}

func (r *recorder) Publish(ctx context.Context, evts ...domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range evts {
		if domain.AggregateOf(e) == domain.AggregateClaim {
			r.types = append(r.types, e.EventType())
		}
	}
	return nil
}

func newWiring(t *testing.T, external ...events.Publisher) wiring {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "saga.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logger.NewNop()
	bus := events.NewDispatcher(log)
	tracker := dedup.NewTracker(store, time.Hour)
	policies := policy.Default()

	publisher := events.Instrumented{Next: events.Chain(bus, external...)}

	payments := payment.NewService(store.Payments(), publisher, tracker, log)
	claims := claim.NewService(store.Claims(policies.ActiveClaim.Key), publisher, tracker, policies, log)
	NewRefundSaga(payments, claims, log).Register(bus)

	return wiring{payments: payments, claims: claims}
}

func (w wiring) approvedPayment(t *testing.T, amount int64) *domain.Payment {
	t.Helper()
	ctx := context.Background()
	p, err := w.payments.RequestPayment(ctx, &payment.RequestPaymentRequest{
		CheckoutRef: "C1",
		Provider:    domain.ProviderToss,
		Method:      domain.MethodCard,
		Amount:      money.FromInt(amount),
	})
	require.NoError(t, err)
	p, err = w.payments.ApprovePayment(ctx, p.ID, &payment.ApprovePaymentRequest{GatewayTransactionID: "pg_1", Amount: money.FromInt(amount)})
	require.NoError(t, err)
	return p
}

func TestRefundSaga_PassedInspectionRefundsAndCompletes(t *testing.T) {
	w := newWiring(t)
	ctx := context.Background()
	p := w.approvedPayment(t, 50000)

	c, err := w.claims.RequestClaim(ctx, &claim.RequestClaimRequest{
		OrderRef:        "O1",
		PaymentID:       p.ID,
		Type:            domain.ClaimTypeReturn,
		Reason:          domain.ReasonDefective,
		RequestedAmount: money.FromInt(20000),
	})
	require.NoError(t, err)
	_, err = w.claims.ApproveClaim(ctx, c.ID, "admin-1")
	require.NoError(t, err)
	_, err = w.claims.RegisterReturnShipping(ctx, c.ID, &claim.ShippingRequest{CarrierID: "CJ", TrackingNumber: "T1"})
	require.NoError(t, err)
	_, err = w.claims.UpdateReturnShippingStatus(ctx, c.ID, domain.ShipmentReceived)
	require.NoError(t, err)

	_, err = w.claims.ConfirmReturnReceived(ctx, c.ID, &claim.InspectionRequest{Outcome: domain.InspectionPass})
	require.NoError(t, err)

	refunded, err := w.payments.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPartialRefunded, refunded.Status)
	assert.True(t, refunded.RefundedAmount.Equal(money.FromInt(20000)))

	completed, err := w.claims.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusCompleted, completed.Status)
	assert.NoError(t, completed.CheckInvariants())
}

func TestRefundSaga_ExternalTransportSeesClaimEventsInOrder(t *testing.T) {
	rec := &recorder{}
	w := newWiring(t, rec)
	ctx := context.Background()
	p := w.approvedPayment(t, 50000)

	c, err := w.claims.RequestClaim(ctx, &claim.RequestClaimRequest{
		OrderRef:        "O1",
		PaymentID:       p.ID,
		Type:            domain.ClaimTypeReturn,
		Reason:          domain.ReasonDefective,
		RequestedAmount: money.FromInt(20000),
	})
	require.NoError(t, err)
	_, err = w.claims.ApproveClaim(ctx, c.ID, "admin-1")
	require.NoError(t, err)
	_, err = w.claims.RegisterReturnShipping(ctx, c.ID, &claim.ShippingRequest{CarrierID: "CJ", TrackingNumber: "T1"})
	require.NoError(t, err)
	_, err = w.claims.UpdateReturnShippingStatus(ctx, c.ID, domain.ShipmentReceived)
	require.NoError(t, err)
	_, err = w.claims.ConfirmReturnReceived(ctx, c.ID, &claim.InspectionRequest{Outcome: domain.InspectionPass})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ClaimRequested",
		"ClaimApproved",
		"ClaimReturnShippingChanged",
		"ClaimReturnShippingChanged",
		"ClaimInspectionRecorded",
		"ClaimRefundRequested",
		"ClaimCompleted",
	}, rec.types)
}

func TestRefundSaga_FailedRefundLeavesClaimPending(t *testing.T) {
	w := newWiring(t)
	ctx := context.Background()
	p := w.approvedPayment(t, 50000)

	c, err := w.claims.RequestClaim(ctx, &claim.RequestClaimRequest{
		OrderRef:        "O1",
		PaymentID:       p.ID,
		Type:            domain.ClaimTypeCancel,
		Reason:          domain.ReasonChangeOfMind,
		RequestedAmount: money.FromInt(60000),
	})
	require.NoError(t, err)

	// approval succeeds even though the downstream refund is refused
	_, err = w.claims.ApproveClaim(ctx, c.ID, "admin-1")
	require.NoError(t, err)

	stored, err := w.claims.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusApproved, stored.Status)

	untouched, err := w.payments.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusApproved, untouched.Status)
	assert.True(t, untouched.RefundedAmount.IsZero())
}

type mockRefunder struct {
	mock.Mock
}

func (m *mockRefunder) RefundPayment(ctx context.Context, id uuid.UUID, req *payment.RefundPaymentRequest) (*domain.Payment, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) CompleteClaim(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Claim), args.Error(1)
}

func TestRefundSaga_ZeroAmountSkipsRefund(t *testing.T) {
	refunder, completer := new(mockRefunder), new(mockCompleter)
	s := NewRefundSaga(refunder, completer, logger.NewNop())

	claimID := uuid.New()
	completer.On("CompleteClaim", mock.Anything, claimID).Return(&domain.Claim{ID: claimID}, nil)

	err := s.Handle(context.Background(), &domain.ClaimRefundRequestedEvent{ClaimID: claimID, PaymentID: uuid.New(), Amount: money.Zero()})
	require.NoError(t, err)
	refunder.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything, mock.Anything)
	completer.AssertExpectations(t)
}

func TestRefundSaga_MissingPaymentKeepsClaimOpen(t *testing.T) {
	refunder, completer := new(mockRefunder), new(mockCompleter)
	s := NewRefundSaga(refunder, completer, logger.NewNop())

	err := s.Handle(context.Background(), &domain.ClaimRefundRequestedEvent{ClaimID: uuid.New(), Amount: money.FromInt(1000)})
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	completer.AssertNotCalled(t, "CompleteClaim", mock.Anything, mock.Anything)
}

func TestRefundSaga_IgnoresOtherEvents(t *testing.T) {
	refunder, completer := new(mockRefunder), new(mockCompleter)
	s := NewRefundSaga(refunder, completer, logger.NewNop())

	assert.NoError(t, s.Handle(context.Background(), &domain.ClaimApprovedEvent{ClaimID: uuid.New()}))
	refunder.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything, mock.Anything)
}
