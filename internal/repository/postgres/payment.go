package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
)

const uniqueViolation = "23505"

const paymentColumns = `
	id, checkout_ref, provider, gateway_transaction_id, method, status, currency,
	requested_amount, approved_amount, refunded_amount, failure_reason,
	requested_at, approved_at, cancelled_at, failed_at, updated_at, version`

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (
			:id, :checkout_ref, :provider, :gateway_transaction_id, :method, :status, :currency,
			:requested_amount, :approved_amount, :refunded_amount, :failure_reason,
			:requested_at, :approved_at, :cancelled_at, :failed_at, :updated_at, :version
		)`

	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return errors.Wrap(errors.ErrDuplicateRequest, "payment "+p.ID.String())
		}
		return errors.Wrap(err, "failed to create payment")
	}
	return nil
}

// Update writes p only if the stored version still equals p.Version, then bumps p.Version.
func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	query := `
		UPDATE payments SET
			gateway_transaction_id = $1, status = $2, approved_amount = $3, refunded_amount = $4,
			failure_reason = $5, approved_at = $6, cancelled_at = $7, failed_at = $8,
			updated_at = $9, version = version + 1
		WHERE id = $10 AND version = $11`

	result, err := r.db.ExecContext(ctx, query,
		p.GatewayTransactionID, p.Status, p.ApprovedAmount, p.RefundedAmount,
		p.FailureReason, p.ApprovedAt, p.CancelledAt, p.FailedAt,
		p.UpdatedAt, p.ID, p.Version,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update payment")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrap(errors.ErrConcurrentModification, "payment "+p.ID.String())
	}
	p.Version++
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	var p domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	err := r.db.GetContext(ctx, &p, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find payment")
	}
	return &p, nil
}

func (r *PaymentRepository) FindByCheckoutRef(ctx context.Context, checkoutRef string) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE checkout_ref = $1 ORDER BY requested_at DESC`

	if err := r.db.SelectContext(ctx, &payments, query, checkoutRef); err != nil {
		return nil, errors.Wrap(err, "failed to find payments by checkout")
	}
	return payments, nil
}
