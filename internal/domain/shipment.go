package domain

import "time"

// ShipmentStatus tracks a returned item from customer to seller. Values only move forward.
type ShipmentStatus string

const (
	ShipmentPending         ShipmentStatus = "PENDING"
	ShipmentPickupScheduled ShipmentStatus = "PICKUP_SCHEDULED"
	ShipmentPickedUp        ShipmentStatus = "PICKED_UP"
	ShipmentInTransit       ShipmentStatus = "IN_TRANSIT"
	ShipmentReceived        ShipmentStatus = "RECEIVED"
)

var shipmentRank = map[ShipmentStatus]int{
	ShipmentPending:         0,
	ShipmentPickupScheduled: 1,
	ShipmentPickedUp:        2,
	ShipmentInTransit:       3,
	ShipmentReceived:        4,
}

func (s ShipmentStatus) IsValid() bool {
	_, ok := shipmentRank[s]
	return ok
}

// Rank orders statuses along the return route; unknown statuses rank below PENDING.
func (s ShipmentStatus) Rank() int {
	if r, ok := shipmentRank[s]; ok {
		return r
	}
	return -1
}

// After reports whether s is strictly further along than other.
func (s ShipmentStatus) After(other ShipmentStatus) bool {
	return s.Rank() > other.Rank()
}

// ReturnShipment is the embedded return leg of a claim.
type ReturnShipment struct {
	CarrierID         string         `json:"carrier_id,omitempty"`
	TrackingNumber    string         `json:"tracking_number,omitempty"`
	Status            ShipmentStatus `json:"status"`
	PickupScheduledAt *time.Time     `json:"pickup_scheduled_at,omitempty"`
	PickupAddress     string         `json:"pickup_address,omitempty"`
	CustomerPhone     string         `json:"customer_phone,omitempty"`
	ReceivedAt        *time.Time     `json:"received_at,omitempty"`
}

// ExchangeShipment is the replacement leg sent back to the customer on exchange claims.
type ExchangeShipment struct {
	CarrierID      string     `json:"carrier_id"`
	TrackingNumber string     `json:"tracking_number"`
	ShippedAt      time.Time  `json:"shipped_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}
