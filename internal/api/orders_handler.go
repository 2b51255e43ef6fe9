package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

const idempotencyKeyHeader = "Idempotency-Key"

// createOrder выполняет сагу резервирования под защитой Idempotency-Key.
// Тело читается целиком до парсинга: отпечаток запроса считается по сырым байтам.
func (h *handlers) createOrder(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "detail": err.Error()})
		return
	}
	if !validateStruct(c, h.validate, &req) {
		return
	}

	key := c.GetHeader(idempotencyKeyHeader)
	outcome, err := h.deps.Guard.Execute(
		c.Request.Context(), key, c.Request.Method, c.Request.URL.Path, body,
		func(ctx context.Context) (int, []byte, error) {
			result, err := h.deps.Orders.CreateOrder(ctx, req.toServiceRequest())
			if err != nil {
				return statusForError(err), nil, err
			}
			respBody, merr := json.Marshal(gin.H{
				"order_id":           result.OrderID,
				"status":             string(result.Status),
				"total_amount_minor": result.TotalAmountMinor,
			})
			if merr != nil {
				return http.StatusInternalServerError, nil, merr
			}
			return http.StatusCreated, respBody, nil
		})
	if err != nil {
		writeError(c, err)
		return
	}

	if outcome.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	c.Data(outcome.StatusCode, "application/json", outcome.Body)
}

func (h *handlers) confirmOrder(c *gin.Context) {
	if err := h.deps.Orders.ConfirmOrder(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "status": string(domain.OrderStatusConfirmed)})
}

func (h *handlers) cancelOrder(c *gin.Context) {
	if err := h.deps.Orders.CancelOrder(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "status": string(domain.OrderStatusCancelled)})
}

func (h *handlers) getOrder(c *gin.Context) {
	ord, err := h.deps.OrderRead.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(ord))
}

func (h *handlers) listOrders(c *gin.Context) {
	filter := domain.OrderFilter{Limit: parseLimit(c, 50)}

	if raw := c.Query("store_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_store_id"})
			return
		}
		filter.StoreID = &id
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.OrderStatus(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
			return
		}
		filter.Status = &status
	}

	orders, err := h.deps.OrderRead.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, ord := range orders {
		out = append(out, toOrderResponse(ord))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

// parseLimit читает limit из query с верхней границей 500.
func parseLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > 500 {
		return 500
	}
	return limit
}
