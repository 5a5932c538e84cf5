package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/money"
)

const claimColumns = `
	id, claim_number, order_ref, order_item_ref, payment_id, claim_type, reason, reason_detail,
	quantity, status, active_key, requested_amount, approved_refund_amount, inspection, inspection_note,
	return_status, return_carrier_id, return_tracking_number, return_pickup_scheduled_at,
	return_pickup_address, return_customer_phone, return_received_at,
	exchange_carrier_id, exchange_tracking_number, exchange_shipped_at, exchange_delivered_at,
	processed_by, processed_at, reject_reason, requested_at, completed_at, updated_at, version`

// claimRow flattens the claim and its shipments into the claims table.
type claimRow struct {
	ID                      uuid.UUID      `db:"id"`
	ClaimNumber             string         `db:"claim_number"`
	OrderRef                string         `db:"order_ref"`
	OrderItemRef            string         `db:"order_item_ref"`
	PaymentID               uuid.NullUUID  `db:"payment_id"`
	Type                    string         `db:"claim_type"`
	Reason                  string         `db:"reason"`
	ReasonDetail            string         `db:"reason_detail"`
	Quantity                int            `db:"quantity"`
	Status                  string         `db:"status"`
	ActiveKey               string         `db:"active_key"`
	RequestedAmount         money.Money    `db:"requested_amount"`
	ApprovedRefundAmount    money.Money    `db:"approved_refund_amount"`
	Inspection              string         `db:"inspection"`
	InspectionNote          string         `db:"inspection_note"`
	ReturnStatus            sql.NullString `db:"return_status"`
	ReturnCarrierID         string         `db:"return_carrier_id"`
	ReturnTrackingNumber    string         `db:"return_tracking_number"`
	ReturnPickupScheduledAt *time.Time     `db:"return_pickup_scheduled_at"`
	ReturnPickupAddress     string         `db:"return_pickup_address"`
	ReturnCustomerPhone     string         `db:"return_customer_phone"`
	ReturnReceivedAt        *time.Time     `db:"return_received_at"`
	ExchangeCarrierID       string         `db:"exchange_carrier_id"`
	ExchangeTrackingNumber  string         `db:"exchange_tracking_number"`
	ExchangeShippedAt       *time.Time     `db:"exchange_shipped_at"`
	ExchangeDeliveredAt     *time.Time     `db:"exchange_delivered_at"`
	ProcessedBy             string         `db:"processed_by"`
	ProcessedAt             *time.Time     `db:"processed_at"`
	RejectReason            string         `db:"reject_reason"`
	RequestedAt             time.Time      `db:"requested_at"`
	CompletedAt             *time.Time     `db:"completed_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
	Version                 int64          `db:"version"`
}

func newClaimRow(c *domain.Claim, activeKey string) claimRow {
	row := claimRow{
		ID:                   c.ID,
		ClaimNumber:          c.ClaimNumber,
		OrderRef:             c.OrderRef,
		OrderItemRef:         c.OrderItemRef,
		PaymentID:            uuid.NullUUID{UUID: c.PaymentID, Valid: c.PaymentID != uuid.Nil},
		Type:                 string(c.Type),
		Reason:               string(c.Reason),
		ReasonDetail:         c.ReasonDetail,
		Quantity:             c.Quantity,
		Status:               string(c.Status),
		ActiveKey:            activeKey,
		RequestedAmount:      c.RequestedAmount,
		ApprovedRefundAmount: c.ApprovedRefundAmount,
		Inspection:           string(c.Inspection),
		InspectionNote:       c.InspectionNote,
		ProcessedBy:          c.ProcessedBy,
		ProcessedAt:          c.ProcessedAt,
		RejectReason:         c.RejectReason,
		RequestedAt:          c.RequestedAt,
		CompletedAt:          c.CompletedAt,
		UpdatedAt:            c.UpdatedAt,
		Version:              c.Version,
	}
	if rs := c.ReturnShipment; rs != nil {
		row.ReturnStatus = sql.NullString{String: string(rs.Status), Valid: true}
		row.ReturnCarrierID = rs.CarrierID
		row.ReturnTrackingNumber = rs.TrackingNumber
		row.ReturnPickupScheduledAt = rs.PickupScheduledAt
		row.ReturnPickupAddress = rs.PickupAddress
		row.ReturnCustomerPhone = rs.CustomerPhone
		row.ReturnReceivedAt = rs.ReceivedAt
	}
	if es := c.ExchangeShipment; es != nil {
		row.ExchangeCarrierID = es.CarrierID
		row.ExchangeTrackingNumber = es.TrackingNumber
		row.ExchangeShippedAt = &es.ShippedAt
		row.ExchangeDeliveredAt = es.DeliveredAt
	}
	return row
}

func (row claimRow) toDomain() *domain.Claim {
	c := &domain.Claim{
		ID:                   row.ID,
		ClaimNumber:          row.ClaimNumber,
		OrderRef:             row.OrderRef,
		OrderItemRef:         row.OrderItemRef,
		PaymentID:            row.PaymentID.UUID,
		Type:                 domain.ClaimType(row.Type),
		Reason:               domain.ClaimReason(row.Reason),
		ReasonDetail:         row.ReasonDetail,
		Quantity:             row.Quantity,
		Status:               domain.ClaimStatus(row.Status),
		RequestedAmount:      row.RequestedAmount,
		ApprovedRefundAmount: row.ApprovedRefundAmount,
		Inspection:           domain.InspectionOutcome(row.Inspection),
		InspectionNote:       row.InspectionNote,
		ProcessedBy:          row.ProcessedBy,
		ProcessedAt:          row.ProcessedAt,
		RejectReason:         row.RejectReason,
		RequestedAt:          row.RequestedAt,
		CompletedAt:          row.CompletedAt,
		UpdatedAt:            row.UpdatedAt,
		Version:              row.Version,
	}
	if row.ReturnStatus.Valid {
		c.ReturnShipment = &domain.ReturnShipment{
			CarrierID:         row.ReturnCarrierID,
			TrackingNumber:    row.ReturnTrackingNumber,
			Status:            domain.ShipmentStatus(row.ReturnStatus.String),
			PickupScheduledAt: row.ReturnPickupScheduledAt,
			PickupAddress:     row.ReturnPickupAddress,
			CustomerPhone:     row.ReturnCustomerPhone,
			ReceivedAt:        row.ReturnReceivedAt,
		}
	}
	if row.ExchangeShippedAt != nil {
		c.ExchangeShipment = &domain.ExchangeShipment{
			CarrierID:      row.ExchangeCarrierID,
			TrackingNumber: row.ExchangeTrackingNumber,
			ShippedAt:      *row.ExchangeShippedAt,
			DeliveredAt:    row.ExchangeDeliveredAt,
		}
	}
	return c
}

// ActiveKeyFunc names what a claim blocks while it is active; see policy.ActiveClaimPolicy.Key.
type ActiveKeyFunc func(c *domain.Claim) string

type ClaimRepository struct {
	db        *sqlx.DB
	activeKey ActiveKeyFunc
}

func NewClaimRepository(db *sqlx.DB, activeKey ActiveKeyFunc) *ClaimRepository {
	if activeKey == nil {
		activeKey = func(c *domain.Claim) string { return c.OrderRef }
	}
	return &ClaimRepository{db: db, activeKey: activeKey}
}

func (r *ClaimRepository) Create(ctx context.Context, c *domain.Claim) error {
	query := `
		INSERT INTO claims (` + claimColumns + `)
		VALUES (
			:id, :claim_number, :order_ref, :order_item_ref, :payment_id, :claim_type, :reason, :reason_detail,
			:quantity, :status, :active_key, :requested_amount, :approved_refund_amount, :inspection, :inspection_note,
			:return_status, :return_carrier_id, :return_tracking_number, :return_pickup_scheduled_at,
			:return_pickup_address, :return_customer_phone, :return_received_at,
			:exchange_carrier_id, :exchange_tracking_number, :exchange_shipped_at, :exchange_delivered_at,
			:processed_by, :processed_at, :reject_reason, :requested_at, :completed_at, :updated_at, :version
		)`

	if _, err := r.db.NamedExecContext(ctx, query, newClaimRow(c, r.activeKey(c))); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			if strings.Contains(pqErr.Constraint, "active") {
				return errors.Wrap(errors.ErrActiveClaimExists, "order "+c.OrderRef)
			}
			return errors.Wrap(errors.ErrDuplicateRequest, "claim "+c.ClaimNumber)
		}
		return errors.Wrap(err, "failed to create claim")
	}
	return nil
}

// Update writes c only if the stored version still equals c.Version, then bumps c.Version.
func (r *ClaimRepository) Update(ctx context.Context, c *domain.Claim) error {
	query := `
		UPDATE claims SET
			status = :status, approved_refund_amount = :approved_refund_amount,
			inspection = :inspection, inspection_note = :inspection_note,
			return_status = :return_status, return_carrier_id = :return_carrier_id,
			return_tracking_number = :return_tracking_number,
			return_pickup_scheduled_at = :return_pickup_scheduled_at,
			return_pickup_address = :return_pickup_address, return_customer_phone = :return_customer_phone,
			return_received_at = :return_received_at,
			exchange_carrier_id = :exchange_carrier_id, exchange_tracking_number = :exchange_tracking_number,
			exchange_shipped_at = :exchange_shipped_at, exchange_delivered_at = :exchange_delivered_at,
			processed_by = :processed_by, processed_at = :processed_at, reject_reason = :reject_reason,
			completed_at = :completed_at, updated_at = :updated_at, version = version + 1
		WHERE id = :id AND version = :version`

	result, err := r.db.NamedExecContext(ctx, query, newClaimRow(c, r.activeKey(c)))
	if err != nil {
		return errors.Wrap(err, "failed to update claim")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrap(errors.ErrConcurrentModification, "claim "+c.ID.String())
	}
	c.Version++
	return nil
}

func (r *ClaimRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	var row claimRow
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`

	err := r.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrClaimNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find claim")
	}
	return row.toDomain(), nil
}

func (r *ClaimRepository) FindByOrderRef(ctx context.Context, orderRef string) ([]*domain.Claim, error) {
	var rows []claimRow
	query := `SELECT ` + claimColumns + ` FROM claims WHERE order_ref = $1 ORDER BY requested_at DESC`

	if err := r.db.SelectContext(ctx, &rows, query, orderRef); err != nil {
		return nil, errors.Wrap(err, "failed to find claims by order")
	}
	claims := make([]*domain.Claim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, row.toDomain())
	}
	return claims, nil
}

// FindByReturnTracking resolves a carrier webhook to the claim whose return parcel it describes.
func (r *ClaimRepository) FindByReturnTracking(ctx context.Context, carrierID, trackingNumber string) (*domain.Claim, error) {
	var row claimRow
	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE return_carrier_id = $1 AND return_tracking_number = $2
		ORDER BY requested_at DESC LIMIT 1`

	err := r.db.GetContext(ctx, &row, query, carrierID, trackingNumber)
	if err == sql.ErrNoRows {
		return nil, errors.ErrClaimNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find claim by tracking number")
	}
	return row.toDomain(), nil
}
