package inventory

import (
	"database/sql"
	"net/http/httptest"
	"testing"

	"partsdesk/internal/models"
	"partsdesk/internal/testutil"

	_ "modernc.org/sqlite"
)

func setupHandler(t *testing.T) (*Handler, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { db.Close() })
	counter := 0
	return &Handler{DB: db, NextIDFunc: func(prefix, table string, digits int) string {
		counter++
		return prefix + "-TEST-" + string(rune('0'+counter))
	}}, db
}

func transact(t *testing.T, h *Handler, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.AuthedJSONRequest("POST", "/api/v1/stock/transact", body, "")
	w := httptest.NewRecorder()
	h.Transact(w, req)
	return w
}

func TestTransactReceiveCreatesStockRow(t *testing.T) {
	h, db := setupHandler(t)
	testutil.SeedShop(t, db, "SHOP-001", "LOC-0001")

	w := transact(t, h, map[string]interface{}{
		"part_id": "PRT-0001", "location_id": "LOC-0001", "type": "receive", "qty": 5,
	})
	testutil.AssertStatus(t, w, 200)

	var onHand float64
	db.QueryRow("SELECT qty_on_hand FROM part_stock WHERE part_id='PRT-0001' AND location_id='LOC-0001'").Scan(&onHand)
	if onHand != 5 {
		t.Errorf("Expected on-hand 5, got %g", onHand)
	}
}

func TestTransactIssueRespectsReservations(t *testing.T) {
	h, db := setupHandler(t)
	testutil.SeedShop(t, db, "SHOP-001", "LOC-0001")
	testutil.SeedStock(t, db, "PRT-0001", "LOC-0001", 10, 8)

	// Only 2 unreserved; issuing 5 must be rejected
	w := transact(t, h, map[string]interface{}{
		"part_id": "PRT-0001", "location_id": "LOC-0001", "type": "issue", "qty": 5,
	})
	testutil.AssertStatus(t, w, 400)

	w = transact(t, h, map[string]interface{}{
		"part_id": "PRT-0001", "location_id": "LOC-0001", "type": "issue", "qty": 2,
	})
	testutil.AssertStatus(t, w, 200)

	var onHand float64
	db.QueryRow("SELECT qty_on_hand FROM part_stock WHERE part_id='PRT-0001'").Scan(&onHand)
	if onHand != 8 {
		t.Errorf("Expected on-hand 8, got %g", onHand)
	}
}

func TestTransactReserveAndRelease(t *testing.T) {
	h, db := setupHandler(t)
	testutil.SeedShop(t, db, "SHOP-001", "LOC-0001")
	testutil.SeedStock(t, db, "PRT-0001", "LOC-0001", 4, 0)

	w := transact(t, h, map[string]interface{}{
		"part_id": "PRT-0001", "location_id": "LOC-0001", "type": "reserve", "qty": 4,
	})
	testutil.AssertStatus(t, w, 200)

	// Nothing left to reserve
	w = transact(t, h, map[string]interface{}{
		"part_id": "PRT-0001", "location_id": "LOC-0001", "type": "reserve", "qty": 1,
	})
	testutil.AssertStatus(t, w, 400)

	w = transact(t, h, map[string]interface{}{
		"part_id": "PRT-0001", "location_id": "LOC-0001", "type": "release", "qty": 4,
	})
	testutil.AssertStatus(t, w, 200)

	var reserved float64
	db.QueryRow("SELECT qty_reserved FROM part_stock WHERE part_id='PRT-0001'").Scan(&reserved)
	if reserved != 0 {
		t.Errorf("Expected reservations released, got %g", reserved)
	}
}

func TestTransactValidation(t *testing.T) {
	h, _ := setupHandler(t)

	cases := []map[string]interface{}{
		{"location_id": "LOC-0001", "type": "receive", "qty": 1},               // no part
		{"part_id": "P", "location_id": "L", "type": "teleport", "qty": 1},     // bad type
		{"part_id": "P", "location_id": "L", "type": "receive", "qty": 0},      // zero qty
		{"part_id": "P", "location_id": "L", "type": "receive", "qty": -3},     // negative
		{"part_id": "P", "location_id": "L", "type": "receive", "qty": 2e9},    // over max
	}
	for i, body := range cases {
		w := transact(t, h, body)
		if w.Code != 400 {
			t.Errorf("Case %d: expected 400, got %d (%s)", i, w.Code, w.Body.String())
		}
	}
}

func TestHistoryListsTransactions(t *testing.T) {
	h, db := setupHandler(t)
	testutil.SeedShop(t, db, "SHOP-001", "LOC-0001")

	for _, qty := range []float64{5, 3} {
		w := transact(t, h, map[string]interface{}{
			"part_id": "PRT-0001", "location_id": "LOC-0001", "type": "receive", "qty": qty,
		})
		testutil.AssertStatus(t, w, 200)
	}

	req := testutil.AuthedRequest("GET", "/api/v1/stock/PRT-0001/LOC-0001/history", nil, "")
	w := httptest.NewRecorder()
	h.History(w, req, "PRT-0001", "LOC-0001")
	testutil.AssertStatus(t, w, 200)

	var txns []models.StockTransaction
	testutil.DecodeEnvelope(t, w, &txns)
	if len(txns) != 2 {
		t.Errorf("Expected 2 transactions, got %d", len(txns))
	}
}

func TestGetStockNotFound(t *testing.T) {
	h, _ := setupHandler(t)
	req := testutil.AuthedRequest("GET", "/api/v1/stock/PRT-0001/LOC-0001", nil, "")
	w := httptest.NewRecorder()
	h.GetStock(w, req, "PRT-0001", "LOC-0001")
	testutil.AssertStatus(t, w, 404)
}

func TestListStockFiltersByLocation(t *testing.T) {
	h, db := setupHandler(t)
	testutil.SeedShop(t, db, "SHOP-001", "LOC-0001")
	db.Exec("INSERT INTO stock_locations (id, shop_id, code) VALUES ('LOC-0002', 'SHOP-001', 'BACK')")
	testutil.SeedStock(t, db, "PRT-0001", "LOC-0001", 5, 0)
	testutil.SeedStock(t, db, "PRT-0001", "LOC-0002", 2, 0)

	req := testutil.AuthedRequest("GET", "/api/v1/stock?location_id=LOC-0002", nil, "")
	w := httptest.NewRecorder()
	h.ListStock(w, req)

	var items []models.PartStock
	testutil.DecodeEnvelope(t, w, &items)
	if len(items) != 1 || items[0].QtyOnHand != 2 {
		t.Errorf("Expected single LOC-0002 row, got %+v", items)
	}
}
