package procurement

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"partsdesk/internal/audit"
	"partsdesk/internal/models"
	"partsdesk/internal/response"
	"partsdesk/internal/validation"

	"github.com/shopspring/decimal"
)

// ListPOs returns all purchase orders, optionally filtered by shop or status.
func (h *Handler) ListPOs(w http.ResponseWriter, r *http.Request) {
	query := "SELECT id,COALESCE(shop_id,''),COALESCE(supplier_id,''),status,COALESCE(notes,''),total,COALESCE(created_by,''),created_at,COALESCE(expected_date,''),received_at FROM purchase_orders WHERE 1=1"
	var args []interface{}
	if shop := r.URL.Query().Get("shop_id"); shop != "" {
		query += " AND shop_id=?"
		args = append(args, shop)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		query += " AND status=?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"
	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.PurchaseOrder
	for rows.Next() {
		var p models.PurchaseOrder
		var ra sql.NullString
		rows.Scan(&p.ID, &p.ShopID, &p.SupplierID, &p.Status, &p.Notes, &p.Total, &p.CreatedBy, &p.CreatedAt, &p.ExpectedDate, &ra)
		if ra.Valid {
			p.ReceivedAt = &ra.String
		}
		items = append(items, p)
	}
	if items == nil {
		items = []models.PurchaseOrder{}
	}
	response.JSON(w, items)
}

// GetPO returns a single purchase order with items.
func (h *Handler) GetPO(w http.ResponseWriter, r *http.Request, id string) {
	var p models.PurchaseOrder
	var ra sql.NullString
	err := h.DB.QueryRow("SELECT id,COALESCE(shop_id,''),COALESCE(supplier_id,''),status,COALESCE(notes,''),total,COALESCE(created_by,''),created_at,COALESCE(expected_date,''),received_at FROM purchase_orders WHERE id=?", id).
		Scan(&p.ID, &p.ShopID, &p.SupplierID, &p.Status, &p.Notes, &p.Total, &p.CreatedBy, &p.CreatedAt, &p.ExpectedDate, &ra)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	if ra.Valid {
		p.ReceivedAt = &ra.String
	}

	rows, err := h.DB.Query("SELECT id,po_id,COALESCE(part_id,''),COALESCE(description,''),qty_ordered,qty_received,unit_cost,COALESCE(location_id,'') FROM purchase_order_items WHERE po_id=? ORDER BY id", id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var it models.PurchaseOrderItem
		rows.Scan(&it.ID, &it.POID, &it.PartID, &it.Description, &it.QtyOrdered, &it.QtyReceived, &it.UnitCost, &it.LocationID)
		p.Items = append(p.Items, it)
	}
	if p.Items == nil {
		p.Items = []models.PurchaseOrderItem{}
	}
	response.JSON(w, p)
}

// CreatePO creates a purchase order with items. Fulfillment spawns draft
// POs itself; this endpoint covers manually raised orders.
func (h *Handler) CreatePO(w http.ResponseWriter, r *http.Request) {
	var p models.PurchaseOrder
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "shop_id", p.ShopID)
	validation.RequireField(ve, "supplier_id", p.SupplierID)
	if p.Status != "" {
		validation.ValidateEnum(ve, "status", p.Status, validation.ValidPOStatuses)
	}
	validation.ValidateDate(ve, "expected_date", p.ExpectedDate)
	for i, it := range p.Items {
		if it.QtyOrdered <= 0 {
			ve.Add(fmt.Sprintf("items[%d].qty_ordered", i), "must be positive")
		}
		validation.ValidateMaxQuantity(ve, fmt.Sprintf("items[%d].qty_ordered", i), it.QtyOrdered)
		if it.UnitCost < 0 {
			ve.Add(fmt.Sprintf("items[%d].unit_cost", i), "must be non-negative")
		}
		validation.ValidateMaxPrice(ve, fmt.Sprintf("items[%d].unit_cost", i), it.UnitCost)
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	p.ID = h.NextIDFunc("PO", "purchase_orders", 4)
	if p.Status == "" {
		p.Status = "draft"
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	createdBy := audit.GetUsername(h.DB, r)

	total := decimal.Zero
	for _, it := range p.Items {
		total = total.Add(decimal.NewFromFloat(it.QtyOrdered).Mul(decimal.NewFromFloat(it.UnitCost)))
	}
	p.Total, _ = total.Float64()

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT INTO purchase_orders (id,shop_id,supplier_id,status,notes,total,created_by,created_at,expected_date) VALUES (?,?,?,?,?,?,?,?,?)",
		p.ID, p.ShopID, p.SupplierID, p.Status, p.Notes, p.Total, createdBy, now, p.ExpectedDate)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	for _, it := range p.Items {
		_, err = tx.Exec("INSERT INTO purchase_order_items (po_id,part_id,description,qty_ordered,unit_cost,location_id) VALUES (?,?,?,?,?,?)",
			p.ID, it.PartID, it.Description, it.QtyOrdered, it.UnitCost, it.LocationID)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}
	if err = tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	p.CreatedBy = createdBy
	p.CreatedAt = now
	audit.LogAudit(h.DB, h.Hub, createdBy, "created", "po", p.ID, "Created PO "+p.ID)
	response.JSON(w, p)
}

// UpdatePO updates header fields of an existing purchase order.
func (h *Handler) UpdatePO(w http.ResponseWriter, r *http.Request, id string) {
	var p models.PurchaseOrder
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	if p.Status != "" {
		validation.ValidateEnum(ve, "status", p.Status, validation.ValidPOStatuses)
	}
	validation.ValidateDate(ve, "expected_date", p.ExpectedDate)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	res, err := h.DB.Exec("UPDATE purchase_orders SET supplier_id=?,status=?,notes=?,expected_date=? WHERE id=?",
		p.SupplierID, p.Status, p.Notes, p.ExpectedDate, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", 404)
		return
	}
	username := audit.GetUsername(h.DB, r)
	audit.LogAudit(h.DB, h.Hub, username, "updated", "po", id, "Updated PO "+id)
	h.GetPO(w, r, id)
}
