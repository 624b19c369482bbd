package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
)

type outboxEntry struct {
	event     repository.OutboxEvent
	status    string
	attempts  int
	lastError string
}

var (
	_ repository.StockRepository  = (*Repository)(nil)
	_ repository.OutboxRepository = (*Repository)(nil)
	_ repository.Tx               = (*memTx)(nil)
)

// Repository реализует StockRepository в памяти.
// Используется для разработки и тестов. Все транзакции сериализуются одним мьютексом,
// изменения копятся в транзакции и применяются только при успешном завершении fn.
type Repository struct {
	mu sync.Mutex

	nextStockID    int64
	nextMovementID int64

	stocks       map[int64]repository.StockRecord
	byKey        map[repository.StockKey]int64
	reservations map[string]repository.Reservation
	movements    []repository.Movement
	outbox       []*outboxEntry
}

// NewRepository создаёт пустое in-memory хранилище
func NewRepository() *Repository {
	return &Repository{
		stocks:       make(map[int64]repository.StockRecord),
		byKey:        make(map[repository.StockKey]int64),
		reservations: make(map[string]repository.Reservation),
	}
}

// InTx выполняет fn под мьютексом хранилища. Ошибка fn откатывает все изменения.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := newTx(r)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// GetStock возвращает запись по ключу
func (r *Repository) GetStock(ctx context.Context, key repository.StockKey) (repository.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byKey[key]
	if !ok {
		return repository.StockRecord{}, repository.ErrNotFound
	}
	return r.stocks[id], nil
}

// GetReservation возвращает резерв по id
func (r *Repository) GetReservation(ctx context.Context, id string) (repository.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return repository.Reservation{}, repository.ErrNotFound
	}
	return res, nil
}

// ListMovements возвращает последние limit движений по ключу, новые первыми
func (r *Repository) ListMovements(ctx context.Context, key repository.StockKey, limit int) ([]repository.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]repository.Movement, 0)
	for i := len(r.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if r.movements[i].Key == key {
			out = append(out, r.movements[i])
		}
	}
	return out, nil
}

// Ping всегда успешен
func (r *Repository) Ping(ctx context.Context) error {
	return nil
}

// GetPendingOutboxEvents возвращает неотправленные события в порядке записи
func (r *Repository) GetPendingOutboxEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]repository.OutboxEvent, 0)
	for _, e := range r.outbox {
		if len(out) >= limit {
			break
		}
		if e.status == outboxPending {
			out = append(out, e.event)
		}
	}
	return out, nil
}

// MarkOutboxEventSent помечает событие отправленным
func (r *Repository) MarkOutboxEventSent(ctx context.Context, eventID string) error {
	return r.updateOutbox(eventID, func(e *outboxEntry) {
		e.status = outboxSent
		e.attempts++
	})
}

// MarkOutboxEventFailed фиксирует неудачную попытку; событие остаётся pending и будет отправлено позже
func (r *Repository) MarkOutboxEventFailed(ctx context.Context, eventID string, errMsg string) error {
	return r.updateOutbox(eventID, func(e *outboxEntry) {
		e.attempts++
		e.lastError = errMsg
	})
}

func (r *Repository) updateOutbox(eventID string, fn func(e *outboxEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.outbox {
		if e.event.EventID == eventID {
			fn(e)
			return nil
		}
	}
	return repository.ErrNotFound
}

// memTx копит изменения одной транзакции поверх состояния Repository.
// Вызывается только под r.mu.
type memTx struct {
	repo *Repository

	nextStockID  int64
	stocks       map[int64]repository.StockRecord
	newKeys      map[repository.StockKey]int64
	reservations map[string]repository.Reservation
	movements    []repository.Movement
	outbox       []repository.OutboxEvent
}

func newTx(r *Repository) *memTx {
	return &memTx{
		repo:         r,
		nextStockID:  r.nextStockID,
		stocks:       make(map[int64]repository.StockRecord),
		newKeys:      make(map[repository.StockKey]int64),
		reservations: make(map[string]repository.Reservation),
	}
}

func (t *memTx) stock(id int64) (repository.StockRecord, bool) {
	if rec, ok := t.stocks[id]; ok {
		return rec, true
	}
	rec, ok := t.repo.stocks[id]
	return rec, ok
}

func (t *memTx) stockID(key repository.StockKey) (int64, bool) {
	if id, ok := t.newKeys[key]; ok {
		return id, true
	}
	id, ok := t.repo.byKey[key]
	return id, ok
}

func (t *memTx) LockStock(ctx context.Context, key repository.StockKey) (repository.StockRecord, error) {
	id, ok := t.stockID(key)
	if !ok {
		return repository.StockRecord{}, repository.ErrNotFound
	}
	return t.LockStockByID(ctx, id)
}

func (t *memTx) LockStockByID(ctx context.Context, id int64) (repository.StockRecord, error) {
	rec, ok := t.stock(id)
	if !ok {
		return repository.StockRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (t *memTx) LockReservation(ctx context.Context, id string) (repository.Reservation, error) {
	if res, ok := t.reservations[id]; ok {
		return res, nil
	}
	res, ok := t.repo.reservations[id]
	if !ok {
		return repository.Reservation{}, repository.ErrNotFound
	}
	return res, nil
}

func (t *memTx) CreateStock(ctx context.Context, key repository.StockKey) (repository.StockRecord, error) {
	if id, ok := t.stockID(key); ok {
		return t.LockStockByID(ctx, id)
	}

	t.nextStockID++
	rec := repository.StockRecord{
		ID:        t.nextStockID,
		Key:       key,
		UpdatedAt: time.Now().UTC(),
	}
	t.stocks[rec.ID] = rec
	t.newKeys[key] = rec.ID
	return rec, nil
}

// UpdateStock повторяет CHECK-ограничения таблицы stock_records
func (t *memTx) UpdateStock(ctx context.Context, rec repository.StockRecord) error {
	current, ok := t.stock(rec.ID)
	if !ok {
		return repository.ErrNotFound
	}
	if rec.QuantityAvailable < 0 || rec.QuantityReserved < 0 {
		return fmt.Errorf("memory: check constraint violated for stock record %d: available=%d reserved=%d",
			rec.ID, rec.QuantityAvailable, rec.QuantityReserved)
	}
	rec.Key = current.Key
	t.stocks[rec.ID] = rec
	return nil
}

func (t *memTx) InsertReservation(ctx context.Context, res repository.Reservation) error {
	if _, err := t.LockReservation(ctx, res.ID); err == nil {
		return fmt.Errorf("memory: duplicate reservation id %s", res.ID)
	}
	if _, ok := t.stock(res.StockRecordID); !ok {
		return fmt.Errorf("memory: reservation %s references missing stock record %d", res.ID, res.StockRecordID)
	}
	t.reservations[res.ID] = res
	return nil
}

func (t *memTx) UpdateReservation(ctx context.Context, res repository.Reservation) error {
	if _, err := t.LockReservation(ctx, res.ID); err != nil {
		return err
	}
	t.reservations[res.ID] = res
	return nil
}

func (t *memTx) AppendMovement(ctx context.Context, m repository.Movement) error {
	t.movements = append(t.movements, m)
	return nil
}

func (t *memTx) AppendOutbox(ctx context.Context, e repository.OutboxEvent) error {
	t.outbox = append(t.outbox, e)
	return nil
}

func (t *memTx) commit() {
	r := t.repo

	r.nextStockID = t.nextStockID
	for key, id := range t.newKeys {
		r.byKey[key] = id
	}
	for id, rec := range t.stocks {
		r.stocks[id] = rec
	}
	for id, res := range t.reservations {
		r.reservations[id] = res
	}
	for _, m := range t.movements {
		r.nextMovementID++
		m.ID = r.nextMovementID
		r.movements = append(r.movements, m)
	}
	for _, e := range t.outbox {
		r.outbox = append(r.outbox, &outboxEntry{event: e, status: outboxPending})
	}
}

// Snapshot возвращает копию всех записей склада, отсортированную по id (для тестов и отладки)
func (r *Repository) Snapshot() []repository.StockRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]repository.StockRecord, 0, len(r.stocks))
	for _, rec := range r.stocks {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
