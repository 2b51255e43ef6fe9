package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *handlers) criticalStockReport(c *gin.Context) {
	storeID, ok := parseOptionalStoreID(c)
	if !ok {
		return
	}

	rows, err := h.deps.Reports.CriticalStock(c.Request.Context(), storeID, parseLimit(c, 100))
	if err != nil {
		writeError(c, err)
		return
	}

	type row struct {
		StoreID      int64  `json:"store_id"`
		SkuID        int64  `json:"sku_id"`
		SkuCode      string `json:"sku_code"`
		Available    int32  `json:"available"`
		ReorderPoint int32  `json:"reorder_point"`
	}
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		out = append(out, row{
			StoreID:      r.StoreID,
			SkuID:        r.SkuID,
			SkuCode:      r.SkuCode,
			Available:    r.Available,
			ReorderPoint: r.ReorderPoint,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rows": out})
}

func (h *handlers) ordersSummaryReport(c *gin.Context) {
	storeID, ok := parseOptionalStoreID(c)
	if !ok {
		return
	}
	from, to, ok := parsePeriod(c)
	if !ok {
		return
	}

	summary, err := h.deps.Reports.OrdersSummary(c.Request.Context(), storeID, from, to)
	if err != nil {
		writeError(c, err)
		return
	}

	byStatus := make(map[string]int, len(summary.ByStatus))
	for status, count := range summary.ByStatus {
		byStatus[string(status)] = count
	}
	c.JSON(http.StatusOK, gin.H{
		"total_orders":       summary.TotalOrders,
		"total_amount_minor": summary.TotalAmountMinor,
		"by_status":          byStatus,
	})
}

func (h *handlers) topSKUsReport(c *gin.Context) {
	storeID, ok := parseOptionalStoreID(c)
	if !ok {
		return
	}
	from, to, ok := parsePeriod(c)
	if !ok {
		return
	}

	rows, err := h.deps.Reports.TopSKUs(c.Request.Context(), storeID, from, to, parseLimit(c, 10))
	if err != nil {
		writeError(c, err)
		return
	}

	type row struct {
		SkuID         int64  `json:"sku_id"`
		SkuCode       string `json:"sku_code"`
		TotalQuantity int64  `json:"total_quantity"`
		TotalMinor    int64  `json:"total_minor"`
	}
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		out = append(out, row{
			SkuID:         r.SkuID,
			SkuCode:       r.SkuCode,
			TotalQuantity: r.TotalQuantity,
			TotalMinor:    r.TotalMinor,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rows": out})
}

func parseOptionalStoreID(c *gin.Context) (*int64, bool) {
	raw := c.Query("store_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_store_id"})
		return nil, false
	}
	return &id, true
}

// parsePeriod читает границы периода в формате RFC3339.
func parsePeriod(c *gin.Context) (from, to *time.Time, ok bool) {
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_from"})
			return nil, nil, false
		}
		from = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_to"})
			return nil, nil, false
		}
		to = &t
	}
	return from, to, true
}
