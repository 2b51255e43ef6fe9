package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

func (h *handlers) listAlerts(c *gin.Context) {
	filter := domain.AlertFilter{Limit: parseLimit(c, 50)}

	if raw := c.Query("store_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_store_id"})
			return
		}
		filter.StoreID = &id
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.AlertStatus(raw)
		switch status {
		case domain.AlertStatusOpen, domain.AlertStatusAcknowledged, domain.AlertStatusResolved:
			filter.Status = &status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
			return
		}
	}

	alerts, err := h.deps.Alerts.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

func (h *handlers) acknowledgeAlert(c *gin.Context) {
	h.setAlertStatus(c, domain.AlertStatusAcknowledged)
}

func (h *handlers) resolveAlert(c *gin.Context) {
	h.setAlertStatus(c, domain.AlertStatusResolved)
}

func (h *handlers) setAlertStatus(c *gin.Context, status domain.AlertStatus) {
	id := c.Param("id")
	if err := h.deps.Alerts.SetStatus(c.Request.Context(), id, status); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert_id": id, "status": string(status)})
}

func (h *handlers) listOutbox(c *gin.Context) {
	filter := domain.OutboxFilter{
		Type:          c.Query("type"),
		OnlyPending:   c.Query("pending") == "true",
		OnlyExhausted: c.Query("exhausted") == "true",
		Limit:         parseLimit(c, 50),
	}

	events, err := h.deps.Outbox.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]outboxEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toOutboxEventResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (h *handlers) outboxStats(c *gin.Context) {
	stats, err := h.deps.Outbox.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending_count":     stats.PendingCount,
		"oldest_pending_at": stats.OldestPendingAt,
	})
}

// requeueOutboxEvent возвращает исчерпанное событие в очередь диспетчера.
func (h *handlers) requeueOutboxEvent(c *gin.Context) {
	id := c.Param("id")
	if err := h.deps.Outbox.Requeue(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	h.logger.WithField("event_id", id).Info("outbox event requeued")
	c.JSON(http.StatusOK, gin.H{"event_id": id, "status": "requeued"})
}

func (h *handlers) listAudit(c *gin.Context) {
	filter := domain.AuditFilter{
		Entity: c.Query("entity"),
		Action: c.Query("action"),
		Limit:  parseLimit(c, 100),
	}

	entries, err := h.deps.Audit.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toAuditEntryResponse(entry))
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}
