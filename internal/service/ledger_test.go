package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
	"github.com/Epky/GA-Enterprice-sub001/internal/repository/memory"
	"github.com/Epky/GA-Enterprice-sub001/internal/repository/mocks"
)

const movementsTopic = "stock.movements"

var testKey = repository.StockKey{ProductID: "product-1", VariantID: "red-xl", Location: "store-1"}

type recordingMetrics struct {
	mu         sync.Mutex
	operations map[string]int
	movements  map[repository.MovementKind]int32
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		operations: make(map[string]int),
		movements:  make(map[repository.MovementKind]int32),
	}
}

func (m *recordingMetrics) ObserveOperation(op, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[op+":"+result]++
}

func (m *recordingMetrics) ObserveMovement(kind repository.MovementKind, delta int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements[kind] += delta
}

func newMemoryLedger(t *testing.T, available int32) (*StockLedger, *memory.Repository) {
	t.Helper()

	repo := memory.NewRepository()
	ledger := NewStockLedger(repo, zap.NewNop(), nil, movementsTopic)
	if available > 0 {
		_, err := ledger.Restock(context.Background(), RestockInput{Key: testKey, Quantity: available})
		require.NoError(t, err)
	}
	return ledger, repo
}

func requireStock(t *testing.T, ledger *StockLedger, available, reserved int32) {
	t.Helper()

	rec, err := ledger.GetStock(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, available, rec.QuantityAvailable, "available")
	require.Equal(t, reserved, rec.QuantityReserved, "reserved")
}

func TestStockLedger_Scenario(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newMemoryLedger(t, 10)
	requireStock(t, ledger, 10, 0)

	first, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 5, Reference: "order-1"})
	require.NoError(t, err)
	require.Equal(t, repository.ReservationActive, first.Status)
	require.Equal(t, "order-1", first.Reference)
	requireStock(t, ledger, 5, 5)

	adjusted, err := ledger.Adjust(ctx, first.ID, 7)
	require.NoError(t, err)
	require.Equal(t, int32(7), adjusted.Quantity)
	requireStock(t, ledger, 3, 7)

	_, err = ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 4})
	insufficient, ok := AsInsufficientStock(err)
	require.True(t, ok, "expected InsufficientStockError, got %v", err)
	require.Equal(t, int32(3), insufficient.Available)
	requireStock(t, ledger, 3, 7)

	require.NoError(t, ledger.Release(ctx, first.ID))
	requireStock(t, ledger, 10, 0)

	res, err := ledger.GetReservation(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, repository.ReservationReleased, res.Status)
}

func TestStockLedger_Reserve(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name              string
		available         int32
		quantity          int32
		key               repository.StockKey
		expectedErr       error
		expectedAvailable int32
		expectInsufficent bool
	}{
		{
			name:              "success: exact match empties available",
			available:         5,
			quantity:          5,
			key:               testKey,
			expectedAvailable: 0,
		},
		{
			name:              "success: partial reserve",
			available:         10,
			quantity:          4,
			key:               testKey,
			expectedAvailable: 6,
		},
		{
			name:              "error: more than available",
			available:         5,
			quantity:          6,
			key:               testKey,
			expectInsufficent: true,
			expectedAvailable: 5,
		},
		{
			name:              "error: zero quantity",
			available:         5,
			quantity:          0,
			key:               testKey,
			expectedErr:       ErrInvalidQuantity,
			expectedAvailable: 5,
		},
		{
			name:              "error: negative quantity",
			available:         5,
			quantity:          -1,
			key:               testKey,
			expectedErr:       ErrInvalidQuantity,
			expectedAvailable: 5,
		},
		{
			name:              "error: missing location",
			available:         5,
			quantity:          1,
			key:               repository.StockKey{ProductID: "product-1"},
			expectedErr:       ErrInvalidStockKey,
			expectedAvailable: 5,
		},
		{
			name:              "error: unknown stock record",
			available:         5,
			quantity:          1,
			key:               repository.StockKey{ProductID: "product-2", Location: "store-1"},
			expectedErr:       ErrStockRecordNotFound,
			expectedAvailable: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, repo := newMemoryLedger(t, tt.available)

			res, err := ledger.Reserve(ctx, ReserveInput{Key: tt.key, Quantity: tt.quantity})

			switch {
			case tt.expectInsufficent:
				insufficient, ok := AsInsufficientStock(err)
				require.True(t, ok)
				require.Equal(t, tt.available, insufficient.Available)
				require.Equal(t, tt.quantity, insufficient.Requested)
			case tt.expectedErr != nil:
				require.ErrorIs(t, err, tt.expectedErr)
				require.False(t, errors.Is(err, ErrStorage))
			default:
				require.NoError(t, err)
				require.NotEmpty(t, res.ID)
				require.Equal(t, tt.quantity, res.Quantity)
			}

			reserved := tt.available - tt.expectedAvailable
			requireStock(t, ledger, tt.expectedAvailable, reserved)

			// только restock из newMemoryLedger и, при успехе, сам резерв
			movements, err := repo.ListMovements(ctx, testKey, 10)
			require.NoError(t, err)
			if reserved > 0 {
				require.Len(t, movements, 2)
				require.Equal(t, repository.MovementReserve, movements[0].Kind)
				require.Equal(t, -tt.quantity, movements[0].QuantityDelta)
				require.Equal(t, res.ID, movements[0].ReservationID)
			} else {
				require.Len(t, movements, 1)
			}
		})
	}
}

func TestStockLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	ledger, repo := newMemoryLedger(t, 10)

	const workers = 50

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 1})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if _, ok := AsInsufficientStock(err); ok {
				insufficient++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, succeeded)
	require.Equal(t, workers-10, insufficient)
	requireStock(t, ledger, 0, 10)

	for _, rec := range repo.Snapshot() {
		require.GreaterOrEqual(t, rec.QuantityAvailable, int32(0))
		require.GreaterOrEqual(t, rec.QuantityReserved, int32(0))
	}
}

func TestStockLedger_Adjust(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name              string
		available         int32
		reserve           int32
		newQuantity       int32
		expectedErr       error
		insufficientAvail int32
		expectInsufficent bool
		expectedAvailable int32
		expectedReserved  int32
		expectMovement    bool
	}{
		{
			name:              "grow within available",
			available:         10,
			reserve:           5,
			newQuantity:       7,
			expectedAvailable: 3,
			expectedReserved:  7,
			expectMovement:    true,
		},
		{
			name:              "grow beyond available reports available",
			available:         10,
			reserve:           3,
			newQuantity:       15,
			expectInsufficent: true,
			insufficientAvail: 7,
			expectedAvailable: 7,
			expectedReserved:  3,
		},
		{
			name:              "shrink returns difference",
			available:         11,
			reserve:           8,
			newQuantity:       3,
			expectedAvailable: 8,
			expectedReserved:  3,
			expectMovement:    true,
		},
		{
			name:              "same quantity is a no-op",
			available:         10,
			reserve:           4,
			newQuantity:       4,
			expectedAvailable: 6,
			expectedReserved:  4,
		},
		{
			name:              "shrink to zero keeps reservation",
			available:         10,
			reserve:           4,
			newQuantity:       0,
			expectedAvailable: 10,
			expectedReserved:  0,
			expectMovement:    true,
		},
		{
			name:              "negative quantity",
			available:         10,
			reserve:           4,
			newQuantity:       -2,
			expectedErr:       ErrInvalidQuantity,
			expectedAvailable: 6,
			expectedReserved:  4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, repo := newMemoryLedger(t, tt.available)

			res, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: tt.reserve})
			require.NoError(t, err)

			adjusted, err := ledger.Adjust(ctx, res.ID, tt.newQuantity)

			switch {
			case tt.expectInsufficent:
				insufficient, ok := AsInsufficientStock(err)
				require.True(t, ok)
				require.Equal(t, tt.insufficientAvail, insufficient.Available)
			case tt.expectedErr != nil:
				require.ErrorIs(t, err, tt.expectedErr)
			default:
				require.NoError(t, err)
				require.Equal(t, tt.newQuantity, adjusted.Quantity)
				require.Equal(t, repository.ReservationActive, adjusted.Status)
			}

			requireStock(t, ledger, tt.expectedAvailable, tt.expectedReserved)

			movements, err := repo.ListMovements(ctx, testKey, 10)
			require.NoError(t, err)
			if tt.expectMovement {
				require.Len(t, movements, 3)
				require.Equal(t, repository.MovementAdjust, movements[0].Kind)
				require.Equal(t, tt.reserve-tt.newQuantity, movements[0].QuantityDelta)
			} else {
				require.Len(t, movements, 2)
			}
		})
	}
}

func TestStockLedger_ReleaseTwiceIsInvalid(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newMemoryLedger(t, 10)

	res, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 4})
	require.NoError(t, err)

	require.NoError(t, ledger.Release(ctx, res.ID))
	requireStock(t, ledger, 10, 0)

	err = ledger.Release(ctx, res.ID)
	require.ErrorIs(t, err, ErrInvalidReservation)
	requireStock(t, ledger, 10, 0)

	_, err = ledger.Adjust(ctx, res.ID, 2)
	require.ErrorIs(t, err, ErrInvalidReservation)

	require.ErrorIs(t, ledger.Release(ctx, "unknown"), ErrInvalidReservation)
	require.ErrorIs(t, ledger.Release(ctx, ""), ErrInvalidReservation)
	requireStock(t, ledger, 10, 0)
}

func TestStockLedger_Fulfill(t *testing.T) {
	ctx := context.Background()
	ledger, repo := newMemoryLedger(t, 10)

	res, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 4})
	require.NoError(t, err)

	require.NoError(t, ledger.Fulfill(ctx, res.ID))
	requireStock(t, ledger, 6, 0)

	got, err := ledger.GetReservation(ctx, res.ID)
	require.NoError(t, err)
	require.Equal(t, repository.ReservationFulfilled, got.Status)

	require.ErrorIs(t, ledger.Release(ctx, res.ID), ErrInvalidReservation)
	require.ErrorIs(t, ledger.Fulfill(ctx, res.ID), ErrInvalidReservation)

	movements, err := repo.ListMovements(ctx, testKey, 1)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, repository.MovementSale, movements[0].Kind)
	require.Equal(t, int32(-4), movements[0].QuantityDelta)
}

func TestStockLedger_ConservesTotal(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newMemoryLedger(t, 20)

	a, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 6})
	require.NoError(t, err)
	b, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 9})
	require.NoError(t, err)

	_, err = ledger.Adjust(ctx, a.ID, 10)
	require.NoError(t, err)
	_, err = ledger.Adjust(ctx, b.ID, 2)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 100})
	require.Error(t, err)
	require.NoError(t, ledger.Release(ctx, a.ID))

	rec, err := ledger.GetStock(ctx, testKey)
	require.NoError(t, err)
	require.Equal(t, int32(20), rec.Total())
	require.Equal(t, int32(18), rec.QuantityAvailable)
	require.Equal(t, int32(2), rec.QuantityReserved)
}

func TestStockLedger_RestockCreatesRecord(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newMemoryLedger(t, 0)

	_, err := ledger.GetStock(ctx, testKey)
	require.ErrorIs(t, err, ErrStockRecordNotFound)

	rec, err := ledger.Restock(ctx, RestockInput{Key: testKey, Quantity: 3, Note: "delivery"})
	require.NoError(t, err)
	require.Equal(t, int32(3), rec.QuantityAvailable)

	rec, err = ledger.Restock(ctx, RestockInput{Key: testKey, Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, int32(5), rec.QuantityAvailable)

	_, err = ledger.Restock(ctx, RestockInput{Key: testKey, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	movements, err := ledger.ListMovements(ctx, testKey, 0)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Equal(t, "delivery", movements[1].Note)
}

func TestStockLedger_WritesOutboxEvents(t *testing.T) {
	ctx := context.Background()
	ledger, repo := newMemoryLedger(t, 10)

	res, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 2})
	require.NoError(t, err)
	_, _ = ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 50})

	events, err := repo.GetPendingOutboxEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	last := events[1]
	require.Equal(t, movementsTopic, last.Topic)
	require.Equal(t, testKey.String(), last.AggregateID)

	var payload MovementEvent
	require.NoError(t, json.Unmarshal(last.Payload, &payload))
	require.Equal(t, last.EventID, payload.EventID)
	require.Equal(t, MovementEventType, payload.EventType)
	require.Equal(t, "reserve", payload.MovementKind)
	require.Equal(t, int32(-2), payload.QuantityDelta)
	require.Equal(t, res.ID, payload.ReservationID)
	require.Equal(t, int32(8), payload.QuantityAvailable)
	require.Equal(t, int32(2), payload.QuantityReserved)
	require.Equal(t, "red-xl", payload.VariantID)
}

func TestStockLedger_Metrics(t *testing.T) {
	ctx := context.Background()
	metrics := newRecordingMetrics()
	ledger := NewStockLedger(memory.NewRepository(), zap.NewNop(), metrics, movementsTopic)

	_, err := ledger.Restock(ctx, RestockInput{Key: testKey, Quantity: 5})
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 3})
	require.NoError(t, err)
	_, _ = ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 3})
	_ = ledger.Release(ctx, "missing")

	require.Equal(t, 1, metrics.operations["restock:"+ResultOK])
	require.Equal(t, 1, metrics.operations["reserve:"+ResultOK])
	require.Equal(t, 1, metrics.operations["reserve:"+ResultInsufficientStock])
	require.Equal(t, 1, metrics.operations["release:"+ResultInvalid])
	require.Equal(t, int32(5), metrics.movements[repository.MovementRestock])
	require.Equal(t, int32(-3), metrics.movements[repository.MovementReserve])
}

func TestStockLedger_ListMovementsLimit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		limit    int
		expected int
	}{
		{name: "default", limit: 0, expected: defaultMovementsLimit},
		{name: "explicit", limit: 10, expected: 10},
		{name: "capped", limit: 10_000, expected: maxMovementsLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := mocks.NewStockRepository(t)
			ledger := NewStockLedger(mockRepo, zap.NewNop(), nil, movementsTopic)

			mockRepo.On("ListMovements", ctx, testKey, tt.expected).Return([]repository.Movement{}, nil).Once()

			_, err := ledger.ListMovements(ctx, testKey, tt.limit)
			require.NoError(t, err)
		})
	}
}

func runInTx(tx repository.Tx) func(context.Context, func(context.Context, repository.Tx) error) error {
	return func(ctx context.Context, fn func(context.Context, repository.Tx) error) error {
		return fn(ctx, tx)
	}
}

func TestStockLedger_StorageErrors(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("connection reset by peer")

	tests := []struct {
		name  string
		setup func(repo *mocks.StockRepository, tx *mocks.Tx)
		call  func(ledger *StockLedger) error
	}{
		{
			name: "reserve: transaction cannot start",
			setup: func(repo *mocks.StockRepository, tx *mocks.Tx) {
				repo.On("InTx", ctx, mock.Anything).Return(dbErr).Once()
			},
			call: func(ledger *StockLedger) error {
				_, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 1})
				return err
			},
		},
		{
			name: "reserve: lock fails with conflict",
			setup: func(repo *mocks.StockRepository, tx *mocks.Tx) {
				repo.On("InTx", ctx, mock.Anything).Return(runInTx(tx)).Once()
				tx.On("LockStock", ctx, testKey).Return(repository.StockRecord{}, repository.ErrConflict).Once()
			},
			call: func(ledger *StockLedger) error {
				_, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 1})
				return err
			},
		},
		{
			name: "reserve: movement insert fails",
			setup: func(repo *mocks.StockRepository, tx *mocks.Tx) {
				rec := repository.StockRecord{ID: 1, Key: testKey, QuantityAvailable: 5}
				repo.On("InTx", ctx, mock.Anything).Return(runInTx(tx)).Once()
				tx.On("LockStock", ctx, testKey).Return(rec, nil).Once()
				tx.On("UpdateStock", ctx, mock.AnythingOfType("repository.StockRecord")).Return(nil).Once()
				tx.On("InsertReservation", ctx, mock.AnythingOfType("repository.Reservation")).Return(nil).Once()
				tx.On("AppendMovement", ctx, mock.AnythingOfType("repository.Movement")).Return(dbErr).Once()
			},
			call: func(ledger *StockLedger) error {
				_, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 1})
				return err
			},
		},
		{
			name: "release: reservation lock fails",
			setup: func(repo *mocks.StockRepository, tx *mocks.Tx) {
				repo.On("InTx", ctx, mock.Anything).Return(runInTx(tx)).Once()
				tx.On("LockReservation", ctx, "res-1").Return(repository.Reservation{}, dbErr).Once()
			},
			call: func(ledger *StockLedger) error {
				return ledger.Release(ctx, "res-1")
			},
		},
		{
			name: "get stock: read fails",
			setup: func(repo *mocks.StockRepository, tx *mocks.Tx) {
				repo.On("GetStock", ctx, testKey).Return(repository.StockRecord{}, dbErr).Once()
			},
			call: func(ledger *StockLedger) error {
				_, err := ledger.GetStock(ctx, testKey)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := mocks.NewStockRepository(t)
			mockTx := mocks.NewTx(t)
			ledger := NewStockLedger(mockRepo, zap.NewNop(), nil, movementsTopic)

			tt.setup(mockRepo, mockTx)

			err := tt.call(ledger)
			require.ErrorIs(t, err, ErrStorage)
			require.False(t, isInsufficient(err))
		})
	}
}

func TestStockLedger_InsufficientDoesNotWrite(t *testing.T) {
	ctx := context.Background()

	mockRepo := mocks.NewStockRepository(t)
	mockTx := mocks.NewTx(t)
	ledger := NewStockLedger(mockRepo, zap.NewNop(), nil, movementsTopic)

	mockRepo.On("InTx", ctx, mock.Anything).Return(runInTx(mockTx)).Once()
	mockTx.On("LockStock", ctx, testKey).
		Return(repository.StockRecord{ID: 1, Key: testKey, QuantityAvailable: 2, QuantityReserved: 8}, nil).Once()

	_, err := ledger.Reserve(ctx, ReserveInput{Key: testKey, Quantity: 3})

	insufficient, ok := AsInsufficientStock(err)
	require.True(t, ok)
	require.Equal(t, int32(2), insufficient.Available)
	require.False(t, errors.Is(err, ErrStorage))
	mockTx.AssertNotCalled(t, "UpdateStock", mock.Anything, mock.Anything)
	mockTx.AssertNotCalled(t, "AppendMovement", mock.Anything, mock.Anything)
}

func TestStockLedger_ReleaseMissingStockIsInvariantViolation(t *testing.T) {
	ctx := context.Background()

	mockRepo := mocks.NewStockRepository(t)
	mockTx := mocks.NewTx(t)
	ledger := NewStockLedger(mockRepo, zap.NewNop(), nil, movementsTopic)

	mockRepo.On("InTx", ctx, mock.Anything).Return(runInTx(mockTx)).Once()
	mockTx.On("LockReservation", ctx, "res-1").
		Return(repository.Reservation{ID: "res-1", StockRecordID: 7, Quantity: 3, Status: repository.ReservationActive}, nil).Once()
	mockTx.On("LockStockByID", ctx, int64(7)).
		Return(repository.StockRecord{ID: 7, Key: testKey, QuantityAvailable: 0, QuantityReserved: 1}, nil).Once()

	err := ledger.Release(ctx, "res-1")
	require.ErrorIs(t, err, ErrInvariantViolation)
	require.False(t, errors.Is(err, ErrStorage))
}
