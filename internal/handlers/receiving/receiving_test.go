package receiving

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"partsdesk/internal/fulfillment"
	"partsdesk/internal/models"
	"partsdesk/internal/testutil"

	_ "modernc.org/sqlite"
)

func setupHandler(t *testing.T) (*Handler, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { db.Close() })
	return &Handler{DB: db, Engine: &fulfillment.Engine{DB: db}}, db
}

func seedItemFixture(t *testing.T, db *sql.DB, requested, approved float64) {
	t.Helper()
	testutil.SeedShop(t, db, "SHOP-001", "LOC-0001")
	testutil.SeedPart(t, db, "PRT-0001", "SHOP-001", "BRK-PAD-F", "", 42.50)
	testutil.SeedRequestItem(t, db, "RQI-0001", "SHOP-001", "PRT-0001", requested, approved)
}

func TestReceiveItemPartial(t *testing.T) {
	h, db := setupHandler(t)
	seedItemFixture(t, db, 10, 10)

	body := map[string]interface{}{"location_id": "LOC-0001", "qty": 7}
	req := testutil.AuthedJSONRequest("POST", "/api/v1/part-request-items/RQI-0001/receive", body, "")
	w := httptest.NewRecorder()
	h.ReceiveItem(w, req, "RQI-0001")

	testutil.AssertStatus(t, w, 200)

	var resp struct {
		OK        bool                   `json:"ok"`
		Item      models.PartRequestItem `json:"item"`
		ReceiptID string                 `json:"receipt_id"`
		Duplicate bool                   `json:"duplicate"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.OK || resp.Duplicate {
		t.Errorf("Expected ok non-duplicate receive, got %+v", resp)
	}
	if resp.Item.QtyReceived != 7 || resp.Item.Status != "partially_received" {
		t.Errorf("Expected 7 partially_received, got %g %s", resp.Item.QtyReceived, resp.Item.Status)
	}
	if resp.ReceiptID == "" {
		t.Error("Expected generated receipt_id")
	}

	var auditCount int
	db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE module='part_request_item'").Scan(&auditCount)
	if auditCount != 1 {
		t.Errorf("Expected 1 audit entry, got %d", auditCount)
	}
}

func TestReceiveItemDuplicateKey(t *testing.T) {
	h, db := setupHandler(t)
	seedItemFixture(t, db, 10, 10)

	body := map[string]interface{}{"location_id": "LOC-0001", "qty": 4, "receipt_id": "rcpt-1"}
	for i := 0; i < 2; i++ {
		req := testutil.AuthedJSONRequest("POST", "/api/v1/part-request-items/RQI-0001/receive", body, "")
		w := httptest.NewRecorder()
		h.ReceiveItem(w, req, "RQI-0001")
		testutil.AssertStatus(t, w, 200)

		var resp struct {
			Duplicate bool                   `json:"duplicate"`
			Item      models.PartRequestItem `json:"item"`
		}
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Duplicate != (i == 1) {
			t.Errorf("Call %d: duplicate=%v", i+1, resp.Duplicate)
		}
		if resp.Item.QtyReceived != 4 {
			t.Errorf("Call %d: expected qty_received=4, got %g", i+1, resp.Item.QtyReceived)
		}
	}

	// Replay is not audited
	var auditCount int
	db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE module='part_request_item'").Scan(&auditCount)
	if auditCount != 1 {
		t.Errorf("Expected 1 audit entry after replay, got %d", auditCount)
	}
}

func TestReceiveItemKeyReuseAcrossItemsConflicts(t *testing.T) {
	h, db := setupHandler(t)
	seedItemFixture(t, db, 10, 10)
	testutil.SeedRequestItem(t, db, "RQI-0002", "SHOP-001", "PRT-0001", 6, 6)

	body := map[string]interface{}{"location_id": "LOC-0001", "qty": 4, "receipt_id": "rcpt-1"}
	req := testutil.AuthedJSONRequest("POST", "/api/v1/part-request-items/RQI-0001/receive", body, "")
	w := httptest.NewRecorder()
	h.ReceiveItem(w, req, "RQI-0001")
	testutil.AssertStatus(t, w, 200)

	req = testutil.AuthedJSONRequest("POST", "/api/v1/part-request-items/RQI-0002/receive", body, "")
	w = httptest.NewRecorder()
	h.ReceiveItem(w, req, "RQI-0002")
	testutil.AssertStatus(t, w, 409)

	var received float64
	db.QueryRow("SELECT qty_received FROM part_request_items WHERE id='RQI-0002'").Scan(&received)
	if received != 0 {
		t.Errorf("Conflicting receive must not apply: expected 0 on RQI-0002, got %g", received)
	}
}

func TestReceiveItemOverReceive(t *testing.T) {
	h, db := setupHandler(t)
	seedItemFixture(t, db, 10, 10)
	db.Exec("UPDATE part_request_items SET qty_received=7 WHERE id='RQI-0001'")

	body := map[string]interface{}{"location_id": "LOC-0001", "qty": 5}
	req := testutil.AuthedJSONRequest("POST", "/api/v1/part-request-items/RQI-0001/receive", body, "")
	w := httptest.NewRecorder()
	h.ReceiveItem(w, req, "RQI-0001")

	testutil.AssertStatus(t, w, 400)

	var resp struct {
		Error   string `json:"error"`
		Details struct {
			Requested float64 `json:"requested"`
			Remaining float64 `json:"remaining"`
		} `json:"details"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Details.Requested != 5 || resp.Details.Remaining != 3 {
		t.Errorf("Expected requested=5 remaining=3, got %+v", resp.Details)
	}
}

func TestReceiveItemUnknown(t *testing.T) {
	h, db := setupHandler(t)
	testutil.SeedShop(t, db, "SHOP-001", "LOC-0001")

	body := map[string]interface{}{"location_id": "LOC-0001", "qty": 1}
	req := testutil.AuthedJSONRequest("POST", "/api/v1/part-request-items/RQI-9999/receive", body, "")
	w := httptest.NewRecorder()
	h.ReceiveItem(w, req, "RQI-9999")
	testutil.AssertStatus(t, w, 404)
}

func TestQueueOnlyOutstandingItems(t *testing.T) {
	h, db := setupHandler(t)
	seedItemFixture(t, db, 10, 10)
	testutil.SeedRequestItem(t, db, "RQI-0002", "SHOP-001", "PRT-0001", 4, 4)
	db.Exec("UPDATE part_request_items SET qty_received=4, status='received' WHERE id='RQI-0002'")

	req := testutil.AuthedRequest("GET", "/api/v1/receiving/queue", nil, "")
	w := httptest.NewRecorder()
	h.Queue(w, req)
	testutil.AssertStatus(t, w, 200)

	var items []models.PartRequestItem
	testutil.DecodeEnvelope(t, w, &items)
	if len(items) != 1 || items[0].ID != "RQI-0001" {
		t.Errorf("Expected only RQI-0001 outstanding, got %+v", items)
	}
}

func TestListReceipts(t *testing.T) {
	h, db := setupHandler(t)
	seedItemFixture(t, db, 10, 10)

	for _, qty := range []float64{3, 4} {
		body := map[string]interface{}{"location_id": "LOC-0001", "qty": qty}
		req := testutil.AuthedJSONRequest("POST", "/api/v1/part-request-items/RQI-0001/receive", body, "")
		w := httptest.NewRecorder()
		h.ReceiveItem(w, req, "RQI-0001")
		testutil.AssertStatus(t, w, 200)
	}

	req := testutil.AuthedRequest("GET", "/api/v1/part-request-items/RQI-0001/receipts", nil, "")
	w := httptest.NewRecorder()
	h.ListReceipts(w, req, "RQI-0001")
	testutil.AssertStatus(t, w, 200)

	var events []models.ReceiptEvent
	testutil.DecodeEnvelope(t, w, &events)
	if len(events) != 2 {
		t.Fatalf("Expected 2 receipt events, got %d", len(events))
	}
	if events[0].Qty+events[1].Qty != 7 {
		t.Errorf("Expected receipts totalling 7, got %g", events[0].Qty+events[1].Qty)
	}
}
