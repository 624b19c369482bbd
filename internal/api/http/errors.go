package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Epky/GA-Enterprice-sub001/internal/service"
)

// Коды ошибок в теле ответа
const (
	codeInsufficientStock  = "insufficient_stock"
	codeInvalidReservation = "invalid_reservation"
	codeInvalidRequest     = "invalid_request"
	codeNotFound           = "not_found"
	codeStorageFailure     = "storage_failure"
	codeInternal           = "internal_error"

	codeIdempotencyKeyReused = "idempotency_key_reused"
)

// errorStatus переводит ошибку service слоя в HTTP статус и код ошибки
func errorStatus(err error) (int, ErrorResponse) {
	if insufficient, ok := service.AsInsufficientStock(err); ok {
		available := insufficient.Available
		return http.StatusConflict, ErrorResponse{
			Error:     codeInsufficientStock,
			Message:   err.Error(),
			Available: &available,
		}
	}

	switch {
	case errors.Is(err, service.ErrInvalidReservation):
		return http.StatusConflict, ErrorResponse{Error: codeInvalidReservation, Message: err.Error()}
	case errors.Is(err, service.ErrIdempotencyKeyReused):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: codeIdempotencyKeyReused, Message: err.Error()}
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrInvalidStockKey):
		return http.StatusBadRequest, ErrorResponse{Error: codeInvalidRequest, Message: err.Error()}
	case errors.Is(err, service.ErrStockRecordNotFound):
		return http.StatusNotFound, ErrorResponse{Error: codeNotFound, Message: err.Error()}
	case errors.Is(err, service.ErrStorage):
		// детали хранилища наружу не отдаём
		return http.StatusServiceUnavailable, ErrorResponse{Error: codeStorageFailure, Message: "storage is temporarily unavailable"}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: codeInternal, Message: "internal error"}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, body := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err), zap.Int("status", status))
	}
	writeJSON(w, log, status, body)
}

func writeBadRequest(w http.ResponseWriter, log *zap.Logger, msg string) {
	writeJSON(w, log, http.StatusBadRequest, ErrorResponse{Error: codeInvalidRequest, Message: msg})
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("failed to encode response", zap.Error(err))
	}
}
