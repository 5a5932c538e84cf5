package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func approvedPayment(t *testing.T, amount int64) Payment {
	t.Helper()
	p, err := NewPayment("C1", ProviderToss, MethodCard, money.FromInt(amount), testNow)
	require.NoError(t, err)
	p, _, err = p.Approve("pg_1", money.FromInt(amount), testNow)
	require.NoError(t, err)
	return p
}

func TestNewPayment(t *testing.T) {
	p, err := NewPayment("C1", ProviderToss, MethodCard, money.FromInt(50000), testNow)
	require.NoError(t, err)

	assert.Equal(t, PaymentStatusPending, p.Status)
	assert.True(t, p.ApprovedAmount.IsZero())
	assert.True(t, p.RefundedAmount.IsZero())
	assert.Equal(t, DefaultCurrency, p.Currency)
	assert.NoError(t, p.CheckInvariants())

	tests := []struct {
		name      string
		ref       string
		provider  PaymentProvider
		method    PaymentMethod
		requested money.Money
		field     string
	}{
		{"missing checkout", " ", ProviderToss, MethodCard, money.FromInt(1), "checkout_ref"},
		{"unknown provider", "C1", "PAYPAL", MethodCard, money.FromInt(1), "provider"},
		{"unknown method", "C1", ProviderToss, "CASH", money.FromInt(1), "method"},
		{"zero amount", "C1", ProviderToss, MethodCard, money.Zero(), "requested_amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPayment(tt.ref, tt.provider, tt.method, tt.requested, testNow)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, errors.KindValidation, errors.KindOf(err))
		})
	}
}

func TestPaymentLifecycle(t *testing.T) {
	p, err := NewPayment("C1", ProviderToss, MethodCard, money.FromInt(50000), testNow)
	require.NoError(t, err)

	p, events, err := p.Approve("pg_1", money.FromInt(50000), testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusApproved, p.Status)
	require.NotNil(t, p.ApprovedAt)
	require.Len(t, events, 1)
	approved, ok := events[0].(*PaymentApprovedEvent)
	require.True(t, ok)
	assert.Equal(t, "pg_1", approved.GatewayTransactionID)
	assert.Equal(t, "C1", approved.CheckoutRef)

	p, events, err = p.Refund(money.FromInt(10000), testNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPartialRefunded, p.Status)
	assert.True(t, p.RefundedAmount.Equal(money.FromInt(10000)))
	assert.True(t, p.RefundableAmount().Equal(money.FromInt(40000)))
	refunded := events[0].(*PaymentRefundedEvent)
	assert.True(t, refunded.RemainingAmount.Equal(money.FromInt(40000)))
	assert.True(t, refunded.TotalRefundedAmount.Equal(money.FromInt(10000)))

	p, _, err = p.Refund(money.FromInt(40000), testNow.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFullyRefunded, p.Status)
	assert.True(t, p.RefundedAmount.Equal(money.FromInt(50000)))
	assert.True(t, p.IsTerminal())
	assert.False(t, p.CanBeRefunded())
	assert.NoError(t, p.CheckInvariants())
}

func TestPaymentRefundExceedingRemainder(t *testing.T) {
	p := approvedPayment(t, 50000)

	next, events, err := p.Refund(money.FromInt(60000), testNow)

	var aerr *RefundAmountError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, errors.KindMonetary, errors.KindOf(err))
	assert.True(t, aerr.Refundable.Equal(money.FromInt(50000)))
	assert.Nil(t, events)
	assert.Equal(t, p, next)
	assert.Equal(t, PaymentStatusApproved, next.Status)
	assert.True(t, next.RefundedAmount.IsZero())
}

func TestPaymentRefundZeroRejected(t *testing.T) {
	p := approvedPayment(t, 1000)

	next, _, err := p.Refund(money.Zero(), testNow)

	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.Equal(t, p, next)
}

func TestPaymentRefundExactRemainder(t *testing.T) {
	p := approvedPayment(t, 30000)
	p, _, err := p.Refund(money.FromInt(12345), testNow)
	require.NoError(t, err)

	p, _, err = p.Refund(p.RefundableAmount(), testNow)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFullyRefunded, p.Status)
}

func TestPaymentTransitionsFromWrongState(t *testing.T) {
	p := approvedPayment(t, 1000)

	_, _, err := p.Approve("pg_2", money.FromInt(1000), testNow)
	var serr *PaymentStatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, PaymentStatusApproved, serr.Current)
	assert.Equal(t, []PaymentStatus{PaymentStatusPending}, serr.Allowed)
	assert.Equal(t, errors.KindInvalidTransition, errors.KindOf(err))

	_, _, err = p.Cancel(testNow)
	assert.ErrorAs(t, err, &serr)
	_, _, err = p.Fail("timeout", testNow)
	assert.ErrorAs(t, err, &serr)

	pending, err := NewPayment("C2", ProviderKakaoPay, MethodEasyPay, money.FromInt(1000), testNow)
	require.NoError(t, err)
	_, _, err = pending.Refund(money.FromInt(1), testNow)
	assert.ErrorAs(t, err, &serr)
}

func TestPaymentApproveValidation(t *testing.T) {
	p, err := NewPayment("C1", ProviderInicis, MethodCard, money.FromInt(1000), testNow)
	require.NoError(t, err)

	_, _, err = p.Approve("", money.FromInt(1000), testNow)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	_, _, err = p.Approve("pg", money.FromInt(1001), testNow)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	next, _, err := p.Approve("pg", money.FromInt(900), testNow)
	require.NoError(t, err)
	assert.True(t, next.ApprovedAmount.Equal(money.FromInt(900)))
}

func TestPaymentCancelAndFail(t *testing.T) {
	p, err := NewPayment("C1", ProviderNaverPay, MethodVirtualAccount, money.FromInt(7000), testNow)
	require.NoError(t, err)

	cancelled, events, err := p.Cancel(testNow)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.True(t, events[0].(*PaymentCancelledEvent).CancelledAmount.Equal(money.FromInt(7000)))
	assert.NoError(t, cancelled.CheckInvariants())

	failed, events, err := p.Fail(" card declined ", testNow)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFailed, failed.Status)
	assert.Equal(t, "card declined", failed.FailureReason)
	ev := events[0].(*PaymentFailedEvent)
	assert.True(t, ev.RequestedAmount.Equal(money.FromInt(7000)))
	assert.NoError(t, failed.CheckInvariants())
}

// Random command sequences must never break the ledger ordering or timestamp consistency.
func TestPaymentInvariantsUnderRandomCommands(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		requested := money.FromInt(rng.Int63n(100000) + 1)
		p, err := NewPayment("C", ProviderToss, MethodCard, requested, testNow)
		require.NoError(t, err)

		for step := 0; step < 12; step++ {
			var next Payment
			switch rng.Intn(4) {
			case 0:
				next, _, err = p.Approve("pg", money.FromInt(rng.Int63n(requested.Decimal().IntPart()+10)), testNow)
			case 1:
				next, _, err = p.Refund(money.FromInt(rng.Int63n(requested.Decimal().IntPart()+10)), testNow)
			case 2:
				next, _, err = p.Cancel(testNow)
			case 3:
				next, _, err = p.Fail("x", testNow)
			}
			if err != nil {
				assert.Equal(t, p, next)
			} else {
				p = next
			}
			require.NoError(t, p.CheckInvariants())
			assert.False(t, p.RefundedAmount.GreaterThan(p.ApprovedAmount))
			assert.False(t, p.ApprovedAmount.GreaterThan(p.RequestedAmount))
			if p.Status.IsCaptured() {
				assert.NotNil(t, p.ApprovedAt)
			}
		}
	}
}
