package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/storage/memory"
)

func seedAlert(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	created, err := store.Alerts().CreateIfAbsent(context.Background(), domain.StockAlert{
		ID:        id,
		StoreID:   1,
		SkuID:     20,
		Type:      domain.AlertTypeStockLow,
		Status:    domain.AlertStatusOpen,
		Message:   "Critical stock: only 1 units left (reorder point: 1)",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}
	if !created {
		t.Fatal("seed alert: expected creation")
	}
}

func TestAlertLifecycle(t *testing.T) {
	router, store := newTestRouter(t)
	seedAlert(t, store, "alert-1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/alerts?store_id=1&status=open", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var list struct {
		Alerts []alertResponse `json:"alerts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(list.Alerts))
	}

	aw := httptest.NewRecorder()
	router.ServeHTTP(aw, httptest.NewRequest(http.MethodPost, "/api/alerts/alert-1/ack", nil))
	if aw.Code != http.StatusOK {
		t.Fatalf("ack: expected 200, got %d", aw.Code)
	}

	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/api/alerts/alert-1/resolve", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d", rw.Code)
	}

	// После resolve открытых алертов не остаётся
	ow := httptest.NewRecorder()
	router.ServeHTTP(ow, httptest.NewRequest(http.MethodGet, "/api/alerts?status=open", nil))
	var open struct {
		Alerts []alertResponse `json:"alerts"`
	}
	if err := json.Unmarshal(ow.Body.Bytes(), &open); err != nil {
		t.Fatalf("decode open list: %v", err)
	}
	if len(open.Alerts) != 0 {
		t.Errorf("expected no open alerts, got %d", len(open.Alerts))
	}
}

func TestAlertAck_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/alerts/missing/ack", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestOutboxEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	if w := postOrder(router, "key-outbox", validOrderBody); w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/outbox?pending=true", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var list struct {
		Events []outboxEventResponse `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Events) == 0 {
		t.Fatal("expected pending outbox events after order creation")
	}

	sw := httptest.NewRecorder()
	router.ServeHTTP(sw, httptest.NewRequest(http.MethodGet, "/api/outbox/stats", nil))
	if sw.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", sw.Code)
	}
	var stats struct {
		PendingCount int `json:"pending_count"`
	}
	if err := json.Unmarshal(sw.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.PendingCount != len(list.Events) {
		t.Errorf("stats pending %d != listed %d", stats.PendingCount, len(list.Events))
	}

	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/api/outbox/missing/requeue", nil))
	if rw.Code != http.StatusNotFound {
		t.Fatalf("requeue missing: expected 404, got %d", rw.Code)
	}
}

func TestAuditEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	// Журнал пуст: сага в этом роутере не обёрнута аудит-декоратором
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit?entity=orders", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Entries []auditEntryResponse `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Entries) != 0 {
		t.Errorf("expected empty audit log, got %d entries", len(resp.Entries))
	}
}

func TestReportsEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	if w := postOrder(router, "key-report", `{"store_id":1,"items":[{"sku_id":20,"quantity":2}]}`); w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", w.Code)
	}

	cw := httptest.NewRecorder()
	router.ServeHTTP(cw, httptest.NewRequest(http.MethodGet, "/api/reports/critical-stock?store_id=1", nil))
	if cw.Code != http.StatusOK {
		t.Fatalf("critical-stock: expected 200, got %d", cw.Code)
	}
	var critical struct {
		Rows []struct {
			SkuID     int64 `json:"sku_id"`
			Available int32 `json:"available"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(cw.Body.Bytes(), &critical); err != nil {
		t.Fatalf("decode critical: %v", err)
	}
	// Sku 20: 3 on hand, 2 reserved, reorder point 1 — критичный остаток
	if len(critical.Rows) != 1 || critical.Rows[0].SkuID != 20 {
		t.Errorf("unexpected critical stock rows: %+v", critical.Rows)
	}

	sw := httptest.NewRecorder()
	router.ServeHTTP(sw, httptest.NewRequest(http.MethodGet, "/api/reports/orders-summary", nil))
	if sw.Code != http.StatusOK {
		t.Fatalf("orders-summary: expected 200, got %d", sw.Code)
	}
	var summary struct {
		TotalOrders int            `json:"total_orders"`
		ByStatus    map[string]int `json:"by_status"`
	}
	if err := json.Unmarshal(sw.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.TotalOrders != 1 || summary.ByStatus["reserved"] != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	tw := httptest.NewRecorder()
	router.ServeHTTP(tw, httptest.NewRequest(http.MethodGet, "/api/reports/top-skus?limit=5", nil))
	if tw.Code != http.StatusOK {
		t.Fatalf("top-skus: expected 200, got %d", tw.Code)
	}
	var top struct {
		Rows []struct {
			SkuID         int64 `json:"sku_id"`
			TotalQuantity int64 `json:"total_quantity"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(tw.Body.Bytes(), &top); err != nil {
		t.Fatalf("decode top: %v", err)
	}
	if len(top.Rows) != 1 || top.Rows[0].SkuID != 20 || top.Rows[0].TotalQuantity != 2 {
		t.Errorf("unexpected top rows: %+v", top.Rows)
	}

	bw := httptest.NewRecorder()
	router.ServeHTTP(bw, httptest.NewRequest(http.MethodGet, "/api/reports/orders-summary?from=not-a-time", nil))
	if bw.Code != http.StatusBadRequest {
		t.Fatalf("bad period: expected 400, got %d", bw.Code)
	}
}
