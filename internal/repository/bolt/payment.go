package bolt

import (
	"context"
	"encoding/json"

	boltdb "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
)

type PaymentRepository struct {
	store *Store
}

func (s *Store) Payments() *PaymentRepository {
	return &PaymentRepository{store: s}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "failed to encode payment")
	}
	return r.store.db.Update(func(tx *boltdb.Tx) error {
		b := tx.Bucket(bucketPayments)
		if b.Get(p.ID[:]) != nil {
			return errors.Wrap(errors.ErrDuplicateRequest, "payment "+p.ID.String())
		}
		return b.Put(p.ID[:], data)
	})
}

// Update writes p only if the stored version still equals p.Version, then bumps p.Version.
func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	next := *p
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "failed to encode payment")
	}

	err = r.store.db.Update(func(tx *boltdb.Tx) error {
		b := tx.Bucket(bucketPayments)
		raw := b.Get(p.ID[:])
		if raw == nil {
			return errors.ErrPaymentNotFound
		}
		var stored domain.Payment
		if err := json.Unmarshal(raw, &stored); err != nil {
			return errors.Wrap(err, "failed to decode payment")
		}
		if stored.Version != p.Version {
			return errors.Wrap(errors.ErrConcurrentModification, "payment "+p.ID.String())
		}
		return b.Put(p.ID[:], data)
	})
	if err != nil {
		return err
	}
	p.Version = next.Version
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	var p domain.Payment
	err := r.store.db.View(func(tx *boltdb.Tx) error {
		raw := tx.Bucket(bucketPayments).Get(id[:])
		if raw == nil {
			return errors.ErrPaymentNotFound
		}
		return json.Unmarshal(raw, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) FindByCheckoutRef(ctx context.Context, checkoutRef string) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := r.store.db.View(func(tx *boltdb.Tx) error {
		return tx.Bucket(bucketPayments).ForEach(func(k, v []byte) error {
			var p domain.Payment
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.CheckoutRef == checkoutRef {
				payments = append(payments, &p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan payments")
	}
	return payments, nil
}
