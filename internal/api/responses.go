package api

import (
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

type orderItemResponse struct {
	ID             string `json:"id"`
	SkuID          int64  `json:"sku_id"`
	Quantity       int32  `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	SubtotalMinor  int64  `json:"subtotal_minor"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	StoreID          int64               `json:"store_id"`
	Status           string              `json:"status"`
	TotalAmountMinor int64               `json:"total_amount_minor"`
	Items            []orderItemResponse `json:"items,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:             it.ID,
			SkuID:          it.SkuID,
			Quantity:       it.Quantity,
			UnitPriceMinor: it.UnitPriceMinor,
			SubtotalMinor:  it.SubtotalMinor,
		})
	}
	return orderResponse{
		ID:               o.ID,
		StoreID:          o.StoreID,
		Status:           string(o.Status),
		TotalAmountMinor: o.TotalAmountMinor,
		Items:            items,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

type storeResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type inventoryLevelResponse struct {
	SkuID        int64  `json:"sku_id"`
	SkuCode      string `json:"sku_code"`
	SkuName      string `json:"sku_name"`
	OnHand       int32  `json:"on_hand"`
	Reserved     int32  `json:"reserved"`
	Available    int32  `json:"available"`
	ReorderPoint int32  `json:"reorder_point"`
}

func toInventoryLevelResponse(lvl domain.InventoryLevel) inventoryLevelResponse {
	return inventoryLevelResponse{
		SkuID:        lvl.SkuID,
		SkuCode:      lvl.SkuCode,
		SkuName:      lvl.SkuName,
		OnHand:       lvl.OnHand,
		Reserved:     lvl.Reserved,
		Available:    lvl.Available(),
		ReorderPoint: lvl.ReorderPoint,
	}
}

type alertResponse struct {
	ID        string    `json:"id"`
	StoreID   int64     `json:"store_id"`
	SkuID     int64     `json:"sku_id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAlertResponse(a domain.StockAlert) alertResponse {
	return alertResponse{
		ID:        a.ID,
		StoreID:   a.StoreID,
		SkuID:     a.SkuID,
		Type:      a.Type,
		Status:    string(a.Status),
		Message:   a.Message,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type outboxEventResponse struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Payload      string     `json:"payload"`
	OccurredOn   time.Time  `json:"occurred_on"`
	ProcessedOn  *time.Time `json:"processed_on,omitempty"`
	Error        string     `json:"error,omitempty"`
	AttemptCount int        `json:"attempt_count"`
}

func toOutboxEventResponse(e domain.OutboxEvent) outboxEventResponse {
	return outboxEventResponse{
		ID:           e.ID,
		Type:         e.Type,
		Payload:      string(e.Payload),
		OccurredOn:   e.OccurredOn,
		ProcessedOn:  e.ProcessedOn,
		Error:        e.Error,
		AttemptCount: e.AttemptCount,
	}
}

type auditEntryResponse struct {
	ID         string    `json:"id"`
	EntityName string    `json:"entity_name"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Changes    string    `json:"changes"`
	OccurredAt time.Time `json:"occurred_at"`
}

func toAuditEntryResponse(a domain.AuditLog) auditEntryResponse {
	return auditEntryResponse{
		ID:         a.ID,
		EntityName: a.EntityName,
		EntityID:   a.EntityID,
		Action:     string(a.Action),
		Changes:    string(a.Changes),
		OccurredAt: a.OccurredAt,
	}
}
