package claim

import (
	"context"
	"strings"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/metrics"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
)

const carrierSource = "carrier"

// CarrierEvent is a tracking update pushed by a carrier. Carriers resend, so the same EventID may
// arrive several times and older statuses may arrive after newer ones.
type CarrierEvent struct {
	EventID        string    `json:"event_id" validate:"required,notblank"`
	CarrierID      string    `json:"carrier_id" validate:"required,notblank"`
	TrackingNumber string    `json:"tracking_number" validate:"required,notblank"`
	Status         string    `json:"status" validate:"required"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// carrierStatuses maps carrier tracking codes, including the numeric delivery levels some
// tracking APIs report, onto the return leg.
var carrierStatuses = map[string]domain.ShipmentStatus{
	"PENDING":          domain.ShipmentPending,
	"1":                domain.ShipmentPending,
	"PICKUP_SCHEDULED": domain.ShipmentPickupScheduled,
	"PICKED_UP":        domain.ShipmentPickedUp,
	"COLLECTED":        domain.ShipmentPickedUp,
	"IN_TRANSIT":       domain.ShipmentInTransit,
	"OUT_FOR_DELIVERY": domain.ShipmentInTransit,
	"2":                domain.ShipmentInTransit,
	"3":                domain.ShipmentInTransit,
	"4":                domain.ShipmentInTransit,
	"5":                domain.ShipmentInTransit,
	"DELIVERED":        domain.ShipmentReceived,
	"RECEIVED":         domain.ShipmentReceived,
	"6":                domain.ShipmentReceived,
}

// ParseCarrierStatus translates a carrier code into a return shipment status.
func ParseCarrierStatus(code string) (domain.ShipmentStatus, error) {
	status, ok := carrierStatuses[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return "", errors.Wrap(errors.ErrUnknownCarrierStatus, code)
	}
	return status, nil
}

// HandleCarrierEvent applies a carrier tracking update to the claim that owns the tracking number.
// Redelivered events return ErrDuplicateEvent; updates that do not advance the shipment are
// counted as no-ops and return the claim unchanged.
func (s *Service) HandleCarrierEvent(ctx context.Context, ev *CarrierEvent) (*domain.Claim, error) {
	if err := s.validator.Validate(ev); err != nil {
		metrics.RecordWebhookEvent(carrierSource, "invalid")
		return nil, err
	}
	status, err := ParseCarrierStatus(ev.Status)
	if err != nil {
		metrics.RecordWebhookEvent(carrierSource, "invalid")
		return nil, err
	}

	if err := s.tracker.Claim(ctx, carrierSource, ev.CarrierID+":"+ev.EventID); err != nil {
		if errors.Is(err, errors.ErrDuplicateEvent) {
			metrics.RecordWebhookEvent(carrierSource, "duplicate")
			s.logger.Info("Duplicate carrier event ignored", map[string]interface{}{
				"event_id":   ev.EventID,
				"carrier_id": ev.CarrierID,
			})
		}
		return nil, err
	}

	c, noop, err := s.applyCarrierStatus(ctx, ev, status)
	if err != nil {
		metrics.RecordWebhookEvent(carrierSource, "failed")
		if k := errors.KindOf(err); k == errors.KindInternal || k == errors.KindConflict {
			if rerr := s.tracker.Release(ctx, carrierSource, ev.CarrierID+":"+ev.EventID); rerr != nil {
				s.logger.Error("Failed to release carrier event id", map[string]interface{}{
					"event_id": ev.EventID,
					"error":    rerr,
				})
			}
		}
		return nil, err
	}

	if noop {
		metrics.RecordWebhookEvent(carrierSource, "noop")
		s.logger.Info("Carrier status did not advance the return shipment", map[string]interface{}{
			"claim_id":        c.ID,
			"tracking_number": ev.TrackingNumber,
			"carrier_status":  ev.Status,
			"shipment_status": c.ReturnShipment.Status,
		})
		return c, nil
	}
	metrics.RecordWebhookEvent(carrierSource, "applied")
	return c, nil
}

func (s *Service) applyCarrierStatus(ctx context.Context, ev *CarrierEvent, status domain.ShipmentStatus) (*domain.Claim, bool, error) {
	found, err := s.repo.FindByReturnTracking(ctx, ev.CarrierID, ev.TrackingNumber)
	if err != nil {
		return nil, false, err
	}
	c, err := s.UpdateReturnShippingStatus(ctx, found.ID, status)
	if err != nil {
		return nil, false, err
	}
	return c, c.Version == found.Version, nil
}
