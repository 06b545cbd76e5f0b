package inventory

import (
	"database/sql"
	"net/http"
	"time"

	"partsdesk/internal/audit"
	"partsdesk/internal/models"
	"partsdesk/internal/response"
	"partsdesk/internal/validation"
	"partsdesk/internal/websocket"
)

// Handler holds dependencies for stock handlers.
type Handler struct {
	DB         *sql.DB
	Hub        *websocket.Hub
	NextIDFunc func(prefix, table string, digits int) string
}

// ListStock handles GET /api/v1/stock, optionally filtered by location.
func (h *Handler) ListStock(w http.ResponseWriter, r *http.Request) {
	query := "SELECT part_id,location_id,qty_on_hand,qty_reserved,updated_at FROM part_stock"
	var args []interface{}
	if loc := r.URL.Query().Get("location_id"); loc != "" {
		query += " WHERE location_id=?"
		args = append(args, loc)
	}
	query += " ORDER BY part_id, location_id"
	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.PartStock
	for rows.Next() {
		var s models.PartStock
		rows.Scan(&s.PartID, &s.LocationID, &s.QtyOnHand, &s.QtyReserved, &s.UpdatedAt)
		items = append(items, s)
	}
	if items == nil {
		items = []models.PartStock{}
	}
	response.JSON(w, items)
}

// GetStock handles GET /api/v1/stock/:part/:location.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request, partID, locationID string) {
	var s models.PartStock
	err := h.DB.QueryRow("SELECT part_id,location_id,qty_on_hand,qty_reserved,updated_at FROM part_stock WHERE part_id=? AND location_id=?", partID, locationID).
		Scan(&s.PartID, &s.LocationID, &s.QtyOnHand, &s.QtyReserved, &s.UpdatedAt)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	response.JSON(w, s)
}

// Transact handles POST /api/v1/stock/transact: manual stock movements.
// Conditional updates keep qty_reserved <= qty_on_hand under concurrency.
func (h *Handler) Transact(w http.ResponseWriter, r *http.Request) {
	var t models.StockTransaction
	if err := response.DecodeBody(r, &t); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "part_id", t.PartID)
	validation.RequireField(ve, "location_id", t.LocationID)
	validation.RequireField(ve, "type", t.Type)
	validation.ValidateEnum(ve, "type", t.Type, validation.ValidStockTransactionTypes)
	if t.Type == "adjust" {
		validation.ValidateNonNegativeFloat(ve, "qty", t.Qty)
	} else {
		validation.ValidatePositiveQty(ve, "qty", t.Qty)
	}
	validation.ValidateMaxQuantity(ve, "qty", t.Qty)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT OR IGNORE INTO part_stock (part_id, location_id, qty_on_hand, qty_reserved, updated_at) VALUES (?,?,0,0,?)",
		t.PartID, t.LocationID, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	var res sql.Result
	switch t.Type {
	case "receive":
		res, err = tx.Exec("UPDATE part_stock SET qty_on_hand=qty_on_hand+?, updated_at=? WHERE part_id=? AND location_id=?",
			t.Qty, now, t.PartID, t.LocationID)
	case "issue":
		res, err = tx.Exec("UPDATE part_stock SET qty_on_hand=qty_on_hand-?, updated_at=? WHERE part_id=? AND location_id=? AND qty_on_hand - qty_reserved >= ?",
			t.Qty, now, t.PartID, t.LocationID, t.Qty)
	case "reserve":
		res, err = tx.Exec("UPDATE part_stock SET qty_reserved=qty_reserved+?, updated_at=? WHERE part_id=? AND location_id=? AND qty_on_hand - qty_reserved >= ?",
			t.Qty, now, t.PartID, t.LocationID, t.Qty)
	case "release":
		res, err = tx.Exec("UPDATE part_stock SET qty_reserved=qty_reserved-?, updated_at=? WHERE part_id=? AND location_id=? AND qty_reserved >= ?",
			t.Qty, now, t.PartID, t.LocationID, t.Qty)
	case "adjust":
		res, err = tx.Exec("UPDATE part_stock SET qty_on_hand=?, updated_at=? WHERE part_id=? AND location_id=? AND qty_reserved <= ?",
			t.Qty, now, t.PartID, t.LocationID, t.Qty)
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "insufficient stock", 400)
		return
	}

	_, err = tx.Exec("INSERT INTO stock_transactions (part_id,location_id,type,qty,reference,notes,created_at) VALUES (?,?,?,?,?,?,?)",
		t.PartID, t.LocationID, t.Type, t.Qty, t.Reference, t.Notes, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	if err = tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	audit.LogAudit(h.DB, h.Hub, audit.GetUsername(h.DB, r), t.Type, "stock", t.PartID,
		"Stock "+t.Type+": "+t.PartID+" at "+t.LocationID)
	response.JSON(w, map[string]string{"status": "ok"})
}

// History handles GET /api/v1/stock/:part/:location/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request, partID, locationID string) {
	rows, err := h.DB.Query("SELECT id,part_id,location_id,type,qty,COALESCE(reference,''),COALESCE(notes,''),created_at FROM stock_transactions WHERE part_id=? AND location_id=? ORDER BY created_at DESC",
		partID, locationID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.StockTransaction
	for rows.Next() {
		var t models.StockTransaction
		rows.Scan(&t.ID, &t.PartID, &t.LocationID, &t.Type, &t.Qty, &t.Reference, &t.Notes, &t.CreatedAt)
		items = append(items, t)
	}
	if items == nil {
		items = []models.StockTransaction{}
	}
	response.JSON(w, items)
}
