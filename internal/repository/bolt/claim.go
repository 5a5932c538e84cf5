package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	boltdb "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
)

// ActiveKeyFunc names what a claim blocks while it is active.
type ActiveKeyFunc func(c *domain.Claim) string

// ClaimRepository keeps two indexes next to the claims: active key -> claim id for the
// one-active-claim rule, and carrier/tracking -> claim id for carrier webhooks.
type ClaimRepository struct {
	store     *Store
	activeKey ActiveKeyFunc
}

func (s *Store) Claims(activeKey ActiveKeyFunc) *ClaimRepository {
	if activeKey == nil {
		activeKey = func(c *domain.Claim) string { return c.OrderRef }
	}
	return &ClaimRepository{store: s, activeKey: activeKey}
}

func trackingKey(carrierID, trackingNumber string) []byte {
	return []byte(carrierID + "|" + trackingNumber)
}

func (r *ClaimRepository) Create(ctx context.Context, c *domain.Claim) error {
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to encode claim")
	}
	return r.store.db.Update(func(tx *boltdb.Tx) error {
		b := tx.Bucket(bucketClaims)
		if b.Get(c.ID[:]) != nil {
			return errors.Wrap(errors.ErrDuplicateRequest, "claim "+c.ClaimNumber)
		}
		if c.IsActive() {
			active := tx.Bucket(bucketClaimActive)
			key := []byte(r.activeKey(c))
			if active.Get(key) != nil {
				return errors.Wrap(errors.ErrActiveClaimExists, "order "+c.OrderRef)
			}
			if err := active.Put(key, c.ID[:]); err != nil {
				return err
			}
		}
		if err := r.indexTracking(tx, c); err != nil {
			return err
		}
		return b.Put(c.ID[:], data)
	})
}

// Update writes c only if the stored version still equals c.Version, then bumps c.Version.
func (r *ClaimRepository) Update(ctx context.Context, c *domain.Claim) error {
	next := *c
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "failed to encode claim")
	}

	err = r.store.db.Update(func(tx *boltdb.Tx) error {
		b := tx.Bucket(bucketClaims)
		raw := b.Get(c.ID[:])
		if raw == nil {
			return errors.ErrClaimNotFound
		}
		var stored domain.Claim
		if err := json.Unmarshal(raw, &stored); err != nil {
			return errors.Wrap(err, "failed to decode claim")
		}
		if stored.Version != c.Version {
			return errors.Wrap(errors.ErrConcurrentModification, "claim "+c.ID.String())
		}
		if !c.IsActive() {
			active := tx.Bucket(bucketClaimActive)
			key := []byte(r.activeKey(c))
			if bytes.Equal(active.Get(key), c.ID[:]) {
				if err := active.Delete(key); err != nil {
					return err
				}
			}
		}
		if err := r.indexTracking(tx, c); err != nil {
			return err
		}
		return b.Put(c.ID[:], data)
	})
	if err != nil {
		return err
	}
	c.Version = next.Version
	return nil
}

func (r *ClaimRepository) indexTracking(tx *boltdb.Tx, c *domain.Claim) error {
	rs := c.ReturnShipment
	if rs == nil || rs.TrackingNumber == "" {
		return nil
	}
	return tx.Bucket(bucketClaimTracking).Put(trackingKey(rs.CarrierID, rs.TrackingNumber), c.ID[:])
}

func (r *ClaimRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	var c domain.Claim
	err := r.store.db.View(func(tx *boltdb.Tx) error {
		raw := tx.Bucket(bucketClaims).Get(id[:])
		if raw == nil {
			return errors.ErrClaimNotFound
		}
		return json.Unmarshal(raw, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ClaimRepository) FindByOrderRef(ctx context.Context, orderRef string) ([]*domain.Claim, error) {
	claims := []*domain.Claim{}
	err := r.store.db.View(func(tx *boltdb.Tx) error {
		return tx.Bucket(bucketClaims).ForEach(func(k, v []byte) error {
			var c domain.Claim
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.OrderRef == orderRef {
				claims = append(claims, &c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan claims")
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].RequestedAt.After(claims[j].RequestedAt) })
	return claims, nil
}

func (r *ClaimRepository) FindByReturnTracking(ctx context.Context, carrierID, trackingNumber string) (*domain.Claim, error) {
	var id uuid.UUID
	err := r.store.db.View(func(tx *boltdb.Tx) error {
		raw := tx.Bucket(bucketClaimTracking).Get(trackingKey(carrierID, trackingNumber))
		if raw == nil {
			return errors.ErrClaimNotFound
		}
		copy(id[:], raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}
