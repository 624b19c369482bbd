package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

const (
	stocksCollection       = "stock_records"
	reservationsCollection = "stock_reservations"
	movementsCollection    = "stock_movements"
	outboxCollection       = "stock_outbox"
	countersCollection     = "counters"

	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"
)

var (
	_ repository.StockRepository  = (*Repository)(nil)
	_ repository.OutboxRepository = (*Repository)(nil)
)

// Repository реализует StockRepository используя MongoDB.
// Нужен replica set: все изменения идут через multi-document транзакции.
// Блокировка документа - запись в него ($inc version) в начале транзакции:
// конкурентная транзакция получит WriteConflict, и драйвер повторит её целиком.
type Repository struct {
	client       *mongo.Client
	db           *mongo.Database
	stocks       *mongo.Collection
	reservations *mongo.Collection
	movements    *mongo.Collection
	outbox       *mongo.Collection
	counters     *mongo.Collection
}

// NewRepository создаёт новый MongoDB репозиторий
// Создаёт индексы при инициализации
func NewRepository(client *mongo.Client, dbName string) *Repository {
	db := client.Database(dbName)
	r := &Repository{
		client:       client,
		db:           db,
		stocks:       db.Collection(stocksCollection),
		reservations: db.Collection(reservationsCollection),
		movements:    db.Collection(movementsCollection),
		outbox:       db.Collection(outboxCollection),
		counters:     db.Collection(countersCollection),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Создаём индексы (если уже существуют - игнорируем ошибку)
	_, _ = r.stocks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "product_id", Value: 1}, {Key: "variant_id", Value: 1}, {Key: "location", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	_, _ = r.movements.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "stock_record_id", Value: 1}, {Key: "seq", Value: -1}},
	})
	_, _ = r.outbox.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "_id", Value: 1}}},
	})

	return r
}

// InTx выполняет fn в транзакции MongoDB (snapshot read concern, majority write concern).
// При transient ошибках драйвер повторяет fn целиком.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	sess, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{repo: r})
	}, txOpts)
	return err
}

// GetStock получает запись склада по ключу
func (r *Repository) GetStock(ctx context.Context, key repository.StockKey) (repository.StockRecord, error) {
	var doc stockDocument
	if err := r.stocks.FindOne(ctx, keyFilter(key)).Decode(&doc); err != nil {
		return repository.StockRecord{}, notFound(err)
	}
	return doc.toDomain(), nil
}

// GetReservation получает резерв по id
func (r *Repository) GetReservation(ctx context.Context, id string) (repository.Reservation, error) {
	var doc reservationDocument
	if err := r.reservations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return repository.Reservation{}, notFound(err)
	}
	return doc.toDomain(), nil
}

// ListMovements возвращает последние limit движений по ключу, новые первыми
func (r *Repository) ListMovements(ctx context.Context, key repository.StockKey, limit int) ([]repository.Movement, error) {
	out := make([]repository.Movement, 0)

	rec, err := r.GetStock(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return out, nil
		}
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.movements.Find(ctx, bson.M{"stock_record_id": rec.ID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc movementDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping проверяет доступность primary
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// GetPendingOutboxEvents возвращает неотправленные события в порядке вставки
func (r *Repository) GetPendingOutboxEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cur, err := r.outbox.Find(ctx, bson.M{"status": bson.M{"$in": bson.A{outboxPending, outboxFailed}}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	events := make([]repository.OutboxEvent, 0)
	for cur.Next(ctx) {
		var doc outboxDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		events = append(events, repository.OutboxEvent{
			EventID:     doc.EventID,
			AggregateID: doc.AggregateID,
			Topic:       doc.Topic,
			Payload:     doc.Payload,
			CreatedAt:   doc.CreatedAt,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// MarkOutboxEventSent помечает событие отправленным
func (r *Repository) MarkOutboxEventSent(ctx context.Context, eventID string) error {
	return r.updateOutbox(ctx, eventID, bson.M{
		"$set":   bson.M{"status": outboxSent, "sent_at": time.Now().UTC()},
		"$unset": bson.M{"last_error": ""},
		"$inc":   bson.M{"attempts": 1},
	})
}

// MarkOutboxEventFailed фиксирует неудачную попытку публикации
func (r *Repository) MarkOutboxEventFailed(ctx context.Context, eventID string, errMsg string) error {
	return r.updateOutbox(ctx, eventID, bson.M{
		"$set": bson.M{"status": outboxFailed, "last_error": errMsg},
		"$inc": bson.M{"attempts": 1},
	})
}

func (r *Repository) updateOutbox(ctx context.Context, eventID string, update bson.M) error {
	res, err := r.outbox.UpdateOne(ctx, bson.M{"event_id": eventID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func keyFilter(key repository.StockKey) bson.M {
	return bson.M{
		"product_id": key.ProductID,
		"variant_id": key.VariantID,
		"location":   key.Location,
	}
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	return err
}

// mongoTx реализует repository.Tx. ctx в методах - SessionContext транзакции.
type mongoTx struct {
	repo *Repository
}

var _ repository.Tx = (*mongoTx)(nil)

// lock берёт документ в транзакцию записью в него
func (t *mongoTx) lock(ctx context.Context, col *mongo.Collection, filter bson.M, out interface{}) error {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := col.FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{"version": 1}}, opts).Decode(out)
	return notFound(err)
}

func (t *mongoTx) LockStock(ctx context.Context, key repository.StockKey) (repository.StockRecord, error) {
	var doc stockDocument
	if err := t.lock(ctx, t.repo.stocks, keyFilter(key), &doc); err != nil {
		return repository.StockRecord{}, err
	}
	return doc.toDomain(), nil
}

func (t *mongoTx) LockStockByID(ctx context.Context, id int64) (repository.StockRecord, error) {
	var doc stockDocument
	if err := t.lock(ctx, t.repo.stocks, bson.M{"_id": id}, &doc); err != nil {
		return repository.StockRecord{}, err
	}
	return doc.toDomain(), nil
}

func (t *mongoTx) LockReservation(ctx context.Context, id string) (repository.Reservation, error) {
	var doc reservationDocument
	if err := t.lock(ctx, t.repo.reservations, bson.M{"_id": id}, &doc); err != nil {
		return repository.Reservation{}, err
	}
	return doc.toDomain(), nil
}

func (t *mongoTx) CreateStock(ctx context.Context, key repository.StockKey) (repository.StockRecord, error) {
	rec, err := t.LockStock(ctx, key)
	if err == nil || !errors.Is(err, repository.ErrNotFound) {
		return rec, err
	}

	id, err := t.nextSeq(ctx, stocksCollection)
	if err != nil {
		return repository.StockRecord{}, err
	}

	// upsert: если запись создали параллельно, получим её (или WriteConflict и повтор транзакции)
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":                id,
			"quantity_available": int32(0),
			"quantity_reserved":  int32(0),
			"movement_seq":       int64(0),
			"updated_at":         time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}
	var doc stockDocument
	if err := t.repo.stocks.FindOneAndUpdate(ctx, keyFilter(key), update, opts).Decode(&doc); err != nil {
		return repository.StockRecord{}, err
	}
	return doc.toDomain(), nil
}

func (t *mongoTx) UpdateStock(ctx context.Context, rec repository.StockRecord) error {
	if rec.QuantityAvailable < 0 || rec.QuantityReserved < 0 {
		return fmt.Errorf("mongo: negative counters for stock record %d: available=%d reserved=%d",
			rec.ID, rec.QuantityAvailable, rec.QuantityReserved)
	}
	res, err := t.repo.stocks.UpdateOne(ctx, bson.M{"_id": rec.ID}, bson.M{
		"$set": bson.M{
			"quantity_available": rec.QuantityAvailable,
			"quantity_reserved":  rec.QuantityReserved,
			"updated_at":         rec.UpdatedAt,
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *mongoTx) InsertReservation(ctx context.Context, res repository.Reservation) error {
	_, err := t.repo.reservations.InsertOne(ctx, newReservationDocument(res))
	return err
}

func (t *mongoTx) UpdateReservation(ctx context.Context, res repository.Reservation) error {
	result, err := t.repo.reservations.UpdateOne(ctx, bson.M{"_id": res.ID}, bson.M{
		"$set": bson.M{
			"quantity":   res.Quantity,
			"status":     string(res.Status),
			"updated_at": res.UpdatedAt,
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendMovement нумерует движение счётчиком заблокированной записи склада
func (t *mongoTx) AppendMovement(ctx context.Context, m repository.Movement) error {
	var stock stockDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := t.repo.stocks.FindOneAndUpdate(ctx,
		bson.M{"_id": m.StockRecordID},
		bson.M{"$inc": bson.M{"movement_seq": 1}},
		opts,
	).Decode(&stock)
	if err != nil {
		return notFound(err)
	}

	_, err = t.repo.movements.InsertOne(ctx, movementDocument{
		Seq:           stock.MovementSeq,
		StockRecordID: m.StockRecordID,
		ProductID:     m.Key.ProductID,
		VariantID:     m.Key.VariantID,
		Location:      m.Key.Location,
		QuantityDelta: m.QuantityDelta,
		Kind:          string(m.Kind),
		ReservationID: m.ReservationID,
		Note:          m.Note,
		CreatedAt:     m.CreatedAt,
	})
	return err
}

func (t *mongoTx) AppendOutbox(ctx context.Context, e repository.OutboxEvent) error {
	_, err := t.repo.outbox.InsertOne(ctx, outboxDocument{
		EventID:     e.EventID,
		AggregateID: e.AggregateID,
		Topic:       e.Topic,
		Payload:     e.Payload,
		Status:      outboxPending,
		CreatedAt:   e.CreatedAt,
	})
	return err
}

func (t *mongoTx) nextSeq(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var doc counterDocument
	err := t.repo.counters.FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}
