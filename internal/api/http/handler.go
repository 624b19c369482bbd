package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Epky/GA-Enterprice-sub001/internal/api/http/middleware"
	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
	"github.com/Epky/GA-Enterprice-sub001/internal/service"
	"github.com/Epky/GA-Enterprice-sub001/platform/observability"
)

const maxBodyBytes = 1 << 20

// ReplayedHeader выставляется в ответе, если резерв вернулся по уже использованному Idempotency-Key
const ReplayedHeader = "Idempotent-Replayed"

// Handler содержит HTTP-обработчики Stock Service
// Зависит от service слоя, но не знает о деталях хранилища
type Handler struct {
	ledger   *service.StockLedger
	reserver *service.IdempotentReserver
	logger   *zap.Logger
}

// NewHandler создаёт новый HTTP handler
func NewHandler(ledger *service.StockLedger, reserver *service.IdempotentReserver, logger *zap.Logger) *Handler {
	return &Handler{
		ledger:   ledger,
		reserver: reserver,
		logger:   logger,
	}
}

// PostReservations обрабатывает POST /reservations - резерв товара под строку заказа
func (h *Handler) PostReservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	var req ReserveRequest
	if !h.decode(w, r, &req) {
		return
	}
	key, ok := stockKey(req.ProductID, req.VariantID, req.Location)
	if !ok {
		writeBadRequest(w, log, "product_id and location are required")
		return
	}
	quantity, err := quantityValue(req.Quantity)
	if err != nil {
		writeBadRequest(w, log, err.Error())
		return
	}

	idemKey, _ := middleware.IdempotencyKeyFromContext(ctx)
	res, replayed, err := h.reserver.Reserve(ctx, idemKey, service.ReserveInput{
		Key:       key,
		Quantity:  quantity,
		Reference: req.Reference,
		Note:      req.Note,
	})
	if err != nil {
		writeError(w, log, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
		status = http.StatusOK
	}
	writeJSON(w, log, status, toReservationResponse(res))
}

// GetReservation обрабатывает GET /reservations/{id}
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	res, err := h.ledger.GetReservation(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidReservation) {
			writeJSON(w, log, http.StatusNotFound, ErrorResponse{Error: codeNotFound, Message: "reservation not found"})
			return
		}
		writeError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, toReservationResponse(res))
}

// PatchReservation обрабатывает PATCH /reservations/{id} - изменение количества резерва
func (h *Handler) PatchReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	var req AdjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeBadRequest(w, log, "quantity is required")
		return
	}
	if *req.Quantity < 0 || *req.Quantity > math.MaxInt32 {
		writeBadRequest(w, log, "quantity must be between 0 and 2147483647")
		return
	}

	res, err := h.ledger.Adjust(ctx, chi.URLParam(r, "id"), int32(*req.Quantity))
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, toReservationResponse(res))
}

// DeleteReservation обрабатывает DELETE /reservations/{id} - снятие резерва
func (h *Handler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	if err := h.ledger.Release(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostFulfill обрабатывает POST /reservations/{id}/fulfill - списание резерва при продаже
func (h *Handler) PostFulfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	if err := h.ledger.Fulfill(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStock обрабатывает GET /stock?product_id=&variant_id=&location=
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	rec, err := h.ledger.GetStock(ctx, queryKey(r))
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, toStockResponse(rec))
}

// PostRestock обрабатывает POST /stock/restock - поступление товара
func (h *Handler) PostRestock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	var req RestockRequest
	if !h.decode(w, r, &req) {
		return
	}
	key, ok := stockKey(req.ProductID, req.VariantID, req.Location)
	if !ok {
		writeBadRequest(w, log, "product_id and location are required")
		return
	}
	quantity, err := quantityValue(req.Quantity)
	if err != nil {
		writeBadRequest(w, log, err.Error())
		return
	}

	rec, err := h.ledger.Restock(ctx, service.RestockInput{Key: key, Quantity: quantity, Note: req.Note})
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, toStockResponse(rec))
}

// GetMovements обрабатывает GET /stock/movements?product_id=&variant_id=&location=&limit=
func (h *Handler) GetMovements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, log, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	movements, err := h.ledger.ListMovements(ctx, queryKey(r), limit)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, toMovementResponses(movements))
}

// decode читает JSON тело запроса, при ошибке сам отвечает 400
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, observability.L(r.Context(), h.logger), fmt.Sprintf("Invalid JSON: %v", err))
		return false
	}
	return true
}

func stockKey(productID *string, variantID string, location *string) (repository.StockKey, bool) {
	if productID == nil || *productID == "" || location == nil || *location == "" {
		return repository.StockKey{}, false
	}
	return repository.StockKey{ProductID: *productID, VariantID: variantID, Location: *location}, true
}

func queryKey(r *http.Request) repository.StockKey {
	q := r.URL.Query()
	return repository.StockKey{
		ProductID: q.Get("product_id"),
		VariantID: q.Get("variant_id"),
		Location:  q.Get("location"),
	}
}

func quantityValue(q *int) (int32, error) {
	if q == nil {
		return 0, errors.New("quantity is required")
	}
	if *q <= 0 || *q > math.MaxInt32 {
		return 0, errors.New("quantity must be between 1 and 2147483647")
	}
	return int32(*q), nil
}
