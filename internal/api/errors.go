package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

// statusForError переводит доменную ошибку в HTTP-статус.
// Конфликт конкурентности и нехватка стока — 409: запрос корректен,
// но текущее состояние его отвергает; повтор допустим.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrStoreNotFound),
		errors.Is(err, domain.ErrSKUNotFound),
		errors.Is(err, domain.ErrAlertNotFound),
		errors.Is(err, domain.ErrOutboxEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrIdempotencyInProgress),
		errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorCode — машиночитаемый код для тела ответа.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrItemsRequired):
		return "items_required"
	case errors.Is(err, domain.ErrItemQtyInvalid):
		return "invalid_quantity"
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return "missing_idempotency_key"
	case errors.Is(err, domain.ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, domain.ErrStoreNotFound):
		return "store_not_found"
	case errors.Is(err, domain.ErrSKUNotFound):
		return "sku_not_found"
	case errors.Is(err, domain.ErrAlertNotFound):
		return "alert_not_found"
	case errors.Is(err, domain.ErrOutboxEventNotFound):
		return "outbox_event_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "invalid_state_transition"
	case errors.Is(err, domain.ErrIdempotencyInProgress):
		return "request_in_progress"
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return "idempotency_key_reused"
	default:
		return "internal_error"
	}
}

func writeError(c *gin.Context, err error) {
	status := statusForError(err)
	body := gin.H{"error": errorCode(err)}
	// Текст внутренних ошибок наружу не отдаём
	if status != http.StatusInternalServerError {
		body["detail"] = err.Error()
	}
	c.JSON(status, body)
}
