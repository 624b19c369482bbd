package httpapi

import (
	"time"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

// ReserveRequest тело POST /reservations
type ReserveRequest struct {
	ProductID *string `json:"product_id"`
	VariantID string  `json:"variant_id"`
	Location  *string `json:"location"`
	Quantity  *int    `json:"quantity"`
	Reference string  `json:"reference"`
	Note      string  `json:"note"`
}

// AdjustRequest тело PATCH /reservations/{id}
type AdjustRequest struct {
	Quantity *int `json:"quantity"`
}

// RestockRequest тело POST /stock/restock
type RestockRequest struct {
	ProductID *string `json:"product_id"`
	VariantID string  `json:"variant_id"`
	Location  *string `json:"location"`
	Quantity  *int    `json:"quantity"`
	Note      string  `json:"note"`
}

// ReservationResponse представляет резерв в HTTP ответе
type ReservationResponse struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	VariantID string    `json:"variant_id,omitempty"`
	Location  string    `json:"location"`
	Quantity  int32     `json:"quantity"`
	Status    string    `json:"status"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StockResponse представляет запись склада в HTTP ответе
type StockResponse struct {
	ProductID         string    `json:"product_id"`
	VariantID         string    `json:"variant_id,omitempty"`
	Location          string    `json:"location"`
	QuantityAvailable int32     `json:"quantity_available"`
	QuantityReserved  int32     `json:"quantity_reserved"`
	QuantityTotal     int32     `json:"quantity_total"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MovementResponse представляет запись журнала движений
type MovementResponse struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"movement_kind"`
	QuantityDelta int32     `json:"quantity_delta"`
	ReservationID string    `json:"reservation_id,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ErrorResponse тело ответа с ошибкой. Available заполняется только для insufficient_stock.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Available *int32 `json:"available,omitempty"`
}

func toReservationResponse(r repository.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:        r.ID,
		ProductID: r.Key.ProductID,
		VariantID: r.Key.VariantID,
		Location:  r.Key.Location,
		Quantity:  r.Quantity,
		Status:    string(r.Status),
		Reference: r.Reference,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toStockResponse(rec repository.StockRecord) StockResponse {
	return StockResponse{
		ProductID:         rec.Key.ProductID,
		VariantID:         rec.Key.VariantID,
		Location:          rec.Key.Location,
		QuantityAvailable: rec.QuantityAvailable,
		QuantityReserved:  rec.QuantityReserved,
		QuantityTotal:     rec.Total(),
		UpdatedAt:         rec.UpdatedAt,
	}
}

func toMovementResponses(movements []repository.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, MovementResponse{
			ID:            m.ID,
			Kind:          string(m.Kind),
			QuantityDelta: m.QuantityDelta,
			ReservationID: m.ReservationID,
			Note:          m.Note,
			CreatedAt:     m.CreatedAt,
		})
	}
	return out
}
