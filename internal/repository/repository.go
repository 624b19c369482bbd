package repository

import (
	"context"
	"errors"
	"time"
)

// StockKey идентифицирует запись склада: товар + (опционально) вариант + локация.
// Пустой VariantID означает базовый товар без варианта.
type StockKey struct {
	ProductID string
	VariantID string
	Location  string
}

// String возвращает ключ в виде "product/variant/location" (используется как key сообщений Kafka)
func (k StockKey) String() string {
	return k.ProductID + "/" + k.VariantID + "/" + k.Location
}

// StockRecord - счётчики одной записи склада.
// Инвариант: QuantityAvailable >= 0 и QuantityReserved >= 0.
type StockRecord struct {
	ID                int64
	Key               StockKey
	QuantityAvailable int32
	QuantityReserved  int32
	UpdatedAt         time.Time
}

// Total возвращает весь физический остаток записи
func (r StockRecord) Total() int32 {
	return r.QuantityAvailable + r.QuantityReserved
}

// ReservationStatus состояние резерва
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationReleased  ReservationStatus = "released"
	ReservationFulfilled ReservationStatus = "fulfilled"
)

// Reservation - резерв одной строки заказа против записи склада
type Reservation struct {
	ID            string
	StockRecordID int64
	Key           StockKey
	Quantity      int32
	Status        ReservationStatus
	// Reference внешний идентификатор (например, id заказа или walk-in транзакции)
	Reference string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MovementKind тип движения в журнале
type MovementKind string

const (
	MovementReserve MovementKind = "reserve"
	MovementAdjust  MovementKind = "adjust"
	MovementRelease MovementKind = "release"
	MovementRestock MovementKind = "restock"
	MovementSale    MovementKind = "sale"
)

// Movement - запись append-only журнала движений.
// QuantityDelta для reserve/adjust/release/restock - изменение quantity_available,
// для sale - изменение общего остатка (списание из резерва).
type Movement struct {
	ID            int64
	StockRecordID int64
	Key           StockKey
	QuantityDelta int32
	Kind          MovementKind
	ReservationID string
	Note          string
	CreatedAt     time.Time
}

// OutboxEvent событие для публикации в Kafka, пишется в той же транзакции, что и движение
type OutboxEvent struct {
	EventID     string
	AggregateID string
	Topic       string
	Payload     []byte
	CreatedAt   time.Time
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=StockRepository --dir=. --output=./mocks --outpkg=mocks

// StockRepository определяет интерфейс хранилища склада.
// Service слой зависит от этого интерфейса, а не от конкретной реализации (postgres/mongo/memory).
type StockRepository interface {
	// InTx выполняет fn в одной атомарной транзакции.
	// Если fn вернула ошибку - все изменения откатываются и ошибка возвращается как есть.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// GetStock читает запись без блокировки
	// Возвращает ErrNotFound, если записи нет
	GetStock(ctx context.Context, key StockKey) (StockRecord, error)

	// GetReservation читает резерв без блокировки
	GetReservation(ctx context.Context, id string) (Reservation, error)

	// ListMovements возвращает последние движения по записи, новые первыми
	ListMovements(ctx context.Context, key StockKey, limit int) ([]Movement, error)

	// Ping проверяет доступность хранилища (для readiness)
	Ping(ctx context.Context) error
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Tx --dir=. --output=./mocks --outpkg=mocks

// Tx - операции внутри транзакции. Lock* методы захватывают строку эксклюзивно
// до конца транзакции, так что проверка и запись счётчиков не пересекаются с другими вызовами.
type Tx interface {
	// LockStock блокирует запись по ключу. ErrNotFound, если записи нет
	LockStock(ctx context.Context, key StockKey) (StockRecord, error)
	// LockStockByID блокирует запись по id
	LockStockByID(ctx context.Context, id int64) (StockRecord, error)
	// LockReservation блокирует резерв. ErrNotFound, если резерва нет
	LockReservation(ctx context.Context, id string) (Reservation, error)

	// CreateStock создаёт пустую запись (0, 0) и возвращает её заблокированной.
	// Если запись уже есть - возвращает существующую, тоже заблокированной.
	CreateStock(ctx context.Context, key StockKey) (StockRecord, error)
	// UpdateStock сохраняет новые значения счётчиков
	UpdateStock(ctx context.Context, record StockRecord) error

	InsertReservation(ctx context.Context, r Reservation) error
	UpdateReservation(ctx context.Context, r Reservation) error

	AppendMovement(ctx context.Context, m Movement) error
	AppendOutbox(ctx context.Context, e OutboxEvent) error
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=OutboxRepository --dir=. --output=./mocks --outpkg=mocks

// OutboxRepository используется outbox dispatcher'ом
type OutboxRepository interface {
	GetPendingOutboxEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxEventSent(ctx context.Context, eventID string) error
	MarkOutboxEventFailed(ctx context.Context, eventID string, errMsg string) error
}

var (
	// ErrNotFound возвращается, когда запись склада или резерв не найдены
	ErrNotFound = errors.New("not found")
	// ErrConflict возвращается, когда хранилище отвергло транзакцию из-за конкурентного доступа
	// (serialization failure / deadlock / write conflict) и повторы исчерпаны
	ErrConflict = errors.New("concurrent modification")
)
