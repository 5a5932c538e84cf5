// Package dedup remembers which external webhook events were already applied.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/cache"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
)

// Tracker claims external event ids. Gateway and carrier webhooks are delivered at least once and
// the payment transitions are not idempotent, so every event id is claimed before it is applied.
type Tracker struct {
	store cache.Store
	ttl   time.Duration
}

func NewTracker(store cache.Store, ttl time.Duration) *Tracker {
	return &Tracker{store: store, ttl: ttl}
}

func key(source, eventID string) string {
	return fmt.Sprintf("dedup:%s:%s", source, eventID)
}

// Claim marks eventID from source as in progress. It returns ErrDuplicateEvent when the id was
// seen before.
func (t *Tracker) Claim(ctx context.Context, source, eventID string) error {
	ok, err := t.store.SetNX(ctx, key(source, eventID), []byte(time.Now().UTC().Format(time.RFC3339)), t.ttl)
	if err != nil {
		return errors.Wrap(err, "claiming event id")
	}
	if !ok {
		return errors.ErrDuplicateEvent
	}
	return nil
}

// Release forgets eventID so a redelivery can be applied again. Callers release when applying the
// event failed for a reason a retry could fix.
func (t *Tracker) Release(ctx context.Context, source, eventID string) error {
	return t.store.Delete(ctx, key(source, eventID))
}
