package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

// stockDocument представляет запись склада в коллекции stock_records.
// Version увеличивается при каждой блокировке, MovementSeq нумерует движения записи.
type stockDocument struct {
	ID                int64     `bson:"_id"`
	ProductID         string    `bson:"product_id"`
	VariantID         string    `bson:"variant_id"`
	Location          string    `bson:"location"`
	QuantityAvailable int32     `bson:"quantity_available"`
	QuantityReserved  int32     `bson:"quantity_reserved"`
	MovementSeq       int64     `bson:"movement_seq"`
	Version           int64     `bson:"version"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func (d stockDocument) toDomain() repository.StockRecord {
	return repository.StockRecord{
		ID:                d.ID,
		Key:               repository.StockKey{ProductID: d.ProductID, VariantID: d.VariantID, Location: d.Location},
		QuantityAvailable: d.QuantityAvailable,
		QuantityReserved:  d.QuantityReserved,
		UpdatedAt:         d.UpdatedAt,
	}
}

type reservationDocument struct {
	ID            string    `bson:"_id"`
	StockRecordID int64     `bson:"stock_record_id"`
	ProductID     string    `bson:"product_id"`
	VariantID     string    `bson:"variant_id"`
	Location      string    `bson:"location"`
	Quantity      int32     `bson:"quantity"`
	Status        string    `bson:"status"`
	Reference     string    `bson:"reference"`
	Version       int64     `bson:"version"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func newReservationDocument(r repository.Reservation) reservationDocument {
	return reservationDocument{
		ID:            r.ID,
		StockRecordID: r.StockRecordID,
		ProductID:     r.Key.ProductID,
		VariantID:     r.Key.VariantID,
		Location:      r.Key.Location,
		Quantity:      r.Quantity,
		Status:        string(r.Status),
		Reference:     r.Reference,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (d reservationDocument) toDomain() repository.Reservation {
	return repository.Reservation{
		ID:            d.ID,
		StockRecordID: d.StockRecordID,
		Key:           repository.StockKey{ProductID: d.ProductID, VariantID: d.VariantID, Location: d.Location},
		Quantity:      d.Quantity,
		Status:        repository.ReservationStatus(d.Status),
		Reference:     d.Reference,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type movementDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Seq           int64              `bson:"seq"`
	StockRecordID int64              `bson:"stock_record_id"`
	ProductID     string             `bson:"product_id"`
	VariantID     string             `bson:"variant_id"`
	Location      string             `bson:"location"`
	QuantityDelta int32              `bson:"quantity_delta"`
	Kind          string             `bson:"movement_kind"`
	ReservationID string             `bson:"reservation_id,omitempty"`
	Note          string             `bson:"note,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
}

func (d movementDocument) toDomain() repository.Movement {
	return repository.Movement{
		ID:            d.Seq,
		StockRecordID: d.StockRecordID,
		Key:           repository.StockKey{ProductID: d.ProductID, VariantID: d.VariantID, Location: d.Location},
		QuantityDelta: d.QuantityDelta,
		Kind:          repository.MovementKind(d.Kind),
		ReservationID: d.ReservationID,
		Note:          d.Note,
		CreatedAt:     d.CreatedAt,
	}
}

type outboxDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	EventID     string             `bson:"event_id"`
	AggregateID string             `bson:"aggregate_id"`
	Topic       string             `bson:"topic"`
	Payload     []byte             `bson:"payload"`
	Status      string             `bson:"status"`
	Attempts    int                `bson:"attempts"`
	LastError   string             `bson:"last_error,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	SentAt      *time.Time         `bson:"sent_at,omitempty"`
}

type counterDocument struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}
