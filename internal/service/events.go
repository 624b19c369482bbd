package service

import (
	"encoding/json"
	"time"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

// MovementEventType тип события в топике движений склада
const MovementEventType = "stock.movement.recorded"

// MovementEvent - payload события движения, публикуется через outbox
type MovementEvent struct {
	EventID           string `json:"event_id"`
	EventType         string `json:"event_type"`
	EventVersion      int    `json:"event_version"`
	OccurredAt        string `json:"occurred_at"`
	ProductID         string `json:"product_id"`
	VariantID         string `json:"variant_id,omitempty"`
	Location          string `json:"location"`
	MovementKind      string `json:"movement_kind"`
	QuantityDelta     int32  `json:"quantity_delta"`
	ReservationID     string `json:"reservation_id,omitempty"`
	QuantityAvailable int32  `json:"quantity_available"`
	QuantityReserved  int32  `json:"quantity_reserved"`
}

func newMovementEvent(eventID string, at time.Time, rec repository.StockRecord, m repository.Movement) MovementEvent {
	return MovementEvent{
		EventID:           eventID,
		EventType:         MovementEventType,
		EventVersion:      1,
		OccurredAt:        at.UTC().Format(time.RFC3339Nano),
		ProductID:         rec.Key.ProductID,
		VariantID:         rec.Key.VariantID,
		Location:          rec.Key.Location,
		MovementKind:      string(m.Kind),
		QuantityDelta:     m.QuantityDelta,
		ReservationID:     m.ReservationID,
		QuantityAvailable: rec.QuantityAvailable,
		QuantityReserved:  rec.QuantityReserved,
	}
}

func (e MovementEvent) marshal() ([]byte, error) {
	return json.Marshal(e)
}
