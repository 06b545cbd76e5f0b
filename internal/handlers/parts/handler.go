package parts

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

// Handler holds dependencies for part master handlers.
type Handler struct {
	DB         *sql.DB
	Hub        *websocket.Hub
	NextIDFunc func(prefix, table string, digits int) string
}

// ListParts returns all part master rows, optionally filtered by shop or search.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	query := "SELECT id,COALESCE(shop_id,''),sku,COALESCE(name,''),COALESCE(description,''),COALESCE(default_supplier_id,''),unit_cost,created_at,updated_at FROM parts WHERE 1=1"
	var args []interface{}
	if shop := r.URL.Query().Get("shop_id"); shop != "" {
		query += " AND shop_id=?"
		args = append(args, shop)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		query += " AND (sku LIKE ? OR name LIKE ? OR description LIKE ?)"
		term := "%" + search + "%"
		args = append(args, term, term, term)
	}
	query += " ORDER BY sku"
	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.Part
	for rows.Next() {
		var p models.Part
		rows.Scan(&p.ID, &p.ShopID, &p.SKU, &p.Name, &p.Description, &p.DefaultSupplierID, &p.UnitCost, &p.CreatedAt, &p.UpdatedAt)
		items = append(items, p)
	}
	if items == nil {
		items = []models.Part{}
	}
	response.JSON(w, items)
}

// GetPart returns a single part by ID.
func (h *Handler) GetPart(w http.ResponseWriter, r *http.Request, id string) {
	var p models.Part
	err := h.DB.QueryRow("SELECT id,COALESCE(shop_id,''),sku,COALESCE(name,''),COALESCE(description,''),COALESCE(default_supplier_id,''),unit_cost,created_at,updated_at FROM parts WHERE id=?", id).
		Scan(&p.ID, &p.ShopID, &p.SKU, &p.Name, &p.Description, &p.DefaultSupplierID, &p.UnitCost, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	response.JSON(w, p)
}

// CreatePart creates a new part master row.
func (h *Handler) CreatePart(w http.ResponseWriter, r *http.Request) {
	var p models.Part
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "sku", p.SKU)
	validation.ValidateMaxLength(ve, "sku", p.SKU, 64)
	validation.ValidateMaxLength(ve, "name", p.Name, 255)
	validation.ValidateMaxLength(ve, "description", p.Description, validation.MaxStringLength)
	validation.ValidateNonNegativeFloat(ve, "unit_cost", p.UnitCost)
	validation.ValidateMaxPrice(ve, "unit_cost", p.UnitCost)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	p.ID = h.NextIDFunc("PRT", "parts", 4)
	now := time.Now().Format("2006-01-02 15:04:05")
	_, err := h.DB.Exec("INSERT INTO parts (id,shop_id,sku,name,description,default_supplier_id,unit_cost,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)",
		p.ID, p.ShopID, p.SKU, p.Name, p.Description, p.DefaultSupplierID, p.UnitCost, now, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	audit.LogAudit(h.DB, h.Hub, audit.GetUsername(h.DB, r), "created", "part", p.ID, "Created part "+p.SKU)
	response.JSON(w, p)
}

// UpdatePart updates an existing part master row.
func (h *Handler) UpdatePart(w http.ResponseWriter, r *http.Request, id string) {
	var p models.Part
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "sku", p.SKU)
	validation.ValidateNonNegativeFloat(ve, "unit_cost", p.UnitCost)
	validation.ValidateMaxPrice(ve, "unit_cost", p.UnitCost)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	res, err := h.DB.Exec("UPDATE parts SET sku=?,name=?,description=?,default_supplier_id=?,unit_cost=?,updated_at=? WHERE id=?",
		p.SKU, p.Name, p.Description, p.DefaultSupplierID, p.UnitCost, now, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", 404)
		return
	}
	audit.LogAudit(h.DB, h.Hub, audit.GetUsername(h.DB, r), "updated", "part", id, "Updated part "+id)
	h.GetPart(w, r, id)
}
