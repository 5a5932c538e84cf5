package bolt

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/cache"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPaymentRepository_RoundTripAndVersion(t *testing.T) {
	repo := openStore(t).Payments()
	ctx := context.Background()

	p, err := domain.NewPayment("C1", domain.ProviderToss, domain.MethodCard, money.FromInt(50000), fixedNow)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, &p))
	assert.ErrorIs(t, repo.Create(ctx, &p), errors.ErrDuplicateRequest)

	loaded, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, loaded.RequestedAmount.Equal(money.FromInt(50000)))
	assert.Equal(t, domain.PaymentStatusPending, loaded.Status)

	approved, _, err := loaded.Approve("pg_1", money.FromInt(50000), fixedNow)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, &approved))
	assert.Equal(t, int64(1), approved.Version)

	// a writer still holding version 0 loses
	stale := *loaded
	assert.ErrorIs(t, repo.Update(ctx, &stale), errors.ErrConcurrentModification)

	byCheckout, err := repo.FindByCheckoutRef(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, byCheckout, 1)
	assert.Equal(t, domain.PaymentStatusApproved, byCheckout[0].Status)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, errors.ErrPaymentNotFound)
}

func TestPaymentRepository_ConcurrentUpdatesFromSameSnapshot(t *testing.T) {
	repo := openStore(t).Payments()
	ctx := context.Background()

	p, err := domain.NewPayment("C1", domain.ProviderToss, domain.MethodCard, money.FromInt(1000), fixedNow)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, &p))

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, _, err := p.Approve("pg", money.FromInt(1000), fixedNow)
			if err != nil {
				results <- err
				return
			}
			results <- repo.Update(ctx, &next)
		}()
	}
	wg.Wait()
	close(results)

	succeeded, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, errors.ErrConcurrentModification):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)
}

func newReturnClaim(t *testing.T, orderRef, itemRef string) domain.Claim {
	t.Helper()
	c, _, err := domain.NewClaim(domain.ClaimRequest{
		OrderRef:        orderRef,
		OrderItemRef:    itemRef,
		Type:            domain.ClaimTypeReturn,
		Reason:          domain.ReasonDefective,
		RequestedAmount: money.FromInt(20000),
	}, fixedNow)
	require.NoError(t, err)
	return c
}

func TestClaimRepository_ActiveClaimIndex(t *testing.T) {
	repo := openStore(t).Claims(nil)
	ctx := context.Background()

	first := newReturnClaim(t, "O1", "I1")
	require.NoError(t, repo.Create(ctx, &first))

	second := newReturnClaim(t, "O1", "I2")
	err := repo.Create(ctx, &second)
	assert.ErrorIs(t, err, errors.ErrActiveClaimExists)

	withdrawn, _, err := first.Withdraw(fixedNow)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, &withdrawn))

	require.NoError(t, repo.Create(ctx, &second))

	claims, err := repo.FindByOrderRef(ctx, "O1")
	require.NoError(t, err)
	assert.Len(t, claims, 2)
}

func TestClaimRepository_OrderItemScope(t *testing.T) {
	repo := openStore(t).Claims(func(c *domain.Claim) string { return c.OrderRef + "/" + c.OrderItemRef })
	ctx := context.Background()

	a := newReturnClaim(t, "O1", "I1")
	b := newReturnClaim(t, "O1", "I2")
	require.NoError(t, repo.Create(ctx, &a))
	require.NoError(t, repo.Create(ctx, &b))

	dup := newReturnClaim(t, "O1", "I1")
	assert.ErrorIs(t, repo.Create(ctx, &dup), errors.ErrActiveClaimExists)
}

func TestClaimRepository_FindByReturnTracking(t *testing.T) {
	repo := openStore(t).Claims(nil)
	ctx := context.Background()

	c := newReturnClaim(t, "O1", "")
	require.NoError(t, repo.Create(ctx, &c))

	_, err := repo.FindByReturnTracking(ctx, "CJ", "T1")
	assert.ErrorIs(t, err, errors.ErrClaimNotFound)

	approved, _, err := c.Approve("admin", fixedNow)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, &approved))
	shipped, _, err := approved.RegisterReturnShipping("CJ", "T1", fixedNow)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, &shipped))

	found, err := repo.FindByReturnTracking(ctx, "CJ", "T1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)
	assert.Equal(t, domain.ShipmentPickedUp, found.ReturnShipment.Status)
	assert.Equal(t, int64(2), found.Version)
}

func TestStoreCache(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := fixedNow
	s.now = func() time.Time { return now }

	ok, err := s.SetNX(ctx, "k", []byte("v1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "k", []byte("v2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrMiss)

	ok, err = s.SetNX(ctx, "k", []byte("v3"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestStorePurgeExpired(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := fixedNow
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, s.Set(ctx, "long", []byte("b"), time.Hour))
	require.NoError(t, s.Set(ctx, "forever", []byte("c"), 0))

	now = now.Add(10 * time.Minute)
	removed, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	v, err := s.Get(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, "b", string(v))
	_, err = s.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestStoreIncr(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := fixedNow
	s.now = func() time.Time { return now }

	for want := int64(1); want <= 3; want++ {
		n, err := s.Incr(ctx, "ratelimit:actor:u1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
		now = now.Add(10 * time.Second)
	}

	// the window is fixed at the first increment
	now = fixedNow.Add(61 * time.Second)
	n, err := s.Incr(ctx, "ratelimit:actor:u1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
