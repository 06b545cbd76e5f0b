package inventory

import (
	"net/http"
	"time"

	"partsdesk/internal/audit"
	"partsdesk/internal/models"
	"partsdesk/internal/response"
	"partsdesk/internal/validation"
)

// ListLocations handles GET /api/v1/locations, optionally filtered by shop.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	query := "SELECT id,shop_id,code,COALESCE(name,''),created_at FROM stock_locations"
	var args []interface{}
	if shop := r.URL.Query().Get("shop_id"); shop != "" {
		query += " WHERE shop_id=?"
		args = append(args, shop)
	}
	query += " ORDER BY created_at, id"
	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.StockLocation
	for rows.Next() {
		var l models.StockLocation
		rows.Scan(&l.ID, &l.ShopID, &l.Code, &l.Name, &l.CreatedAt)
		items = append(items, l)
	}
	if items == nil {
		items = []models.StockLocation{}
	}
	response.JSON(w, items)
}

// CreateLocation handles POST /api/v1/locations.
func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var l models.StockLocation
	if err := response.DecodeBody(r, &l); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "shop_id", l.ShopID)
	validation.RequireField(ve, "code", l.Code)
	validation.ValidateMaxLength(ve, "code", l.Code, 32)
	validation.ValidateMaxLength(ve, "name", l.Name, 255)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	l.ID = h.NextIDFunc("LOC", "stock_locations", 4)
	now := time.Now().Format("2006-01-02 15:04:05")
	_, err := h.DB.Exec("INSERT INTO stock_locations (id, shop_id, code, name, created_at) VALUES (?,?,?,?,?)",
		l.ID, l.ShopID, l.Code, l.Name, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	l.CreatedAt = now
	audit.LogAudit(h.DB, h.Hub, audit.GetUsername(h.DB, r), "created", "location", l.ID, "Created location "+l.Code)
	response.JSON(w, l)
}
