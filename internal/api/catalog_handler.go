package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *handlers) listStores(c *gin.Context) {
	stores, err := h.deps.Stores.ListStores(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]storeResponse, 0, len(stores))
	for _, st := range stores {
		out = append(out, storeResponse{ID: st.ID, Name: st.Name, Code: st.Code})
	}
	c.JSON(http.StatusOK, gin.H{"stores": out})
}

func (h *handlers) listInventory(c *gin.Context) {
	storeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_store_id"})
		return
	}

	levels, err := h.deps.Inventory.ListByStore(c.Request.Context(), storeID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]inventoryLevelResponse, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, toInventoryLevelResponse(lvl))
	}
	c.JSON(http.StatusOK, gin.H{"store_id": storeID, "inventory": out})
}
