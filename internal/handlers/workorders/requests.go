package workorders

import (
	"net/http"

	"partsdesk/internal/models"
	"partsdesk/internal/response"
)

// ListPartRequests returns part requests, optionally filtered by shop or work order.
func (h *Handler) ListPartRequests(w http.ResponseWriter, r *http.Request) {
	query := "SELECT id,COALESCE(shop_id,''),COALESCE(work_order_id,''),status,created_at FROM part_requests WHERE 1=1"
	var args []interface{}
	if shop := r.URL.Query().Get("shop_id"); shop != "" {
		query += " AND shop_id=?"
		args = append(args, shop)
	}
	if wo := r.URL.Query().Get("work_order_id"); wo != "" {
		query += " AND work_order_id=?"
		args = append(args, wo)
	}
	query += " ORDER BY created_at DESC"
	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.PartRequest
	for rows.Next() {
		var p models.PartRequest
		rows.Scan(&p.ID, &p.ShopID, &p.WorkOrderID, &p.Status, &p.CreatedAt)
		items = append(items, p)
	}
	if items == nil {
		items = []models.PartRequest{}
	}
	response.JSON(w, items)
}

// GetPartRequest returns a part request with its items.
func (h *Handler) GetPartRequest(w http.ResponseWriter, r *http.Request, id string) {
	var p models.PartRequest
	err := h.DB.QueryRow("SELECT id,COALESCE(shop_id,''),COALESCE(work_order_id,''),status,created_at FROM part_requests WHERE id=?", id).
		Scan(&p.ID, &p.ShopID, &p.WorkOrderID, &p.Status, &p.CreatedAt)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}

	rows, err := h.DB.Query(`SELECT id,COALESCE(request_id,''),COALESCE(shop_id,''),COALESCE(work_order_line_id,''),COALESCE(part_id,''),COALESCE(description,''),
		qty_requested,qty_approved,qty_reserved,qty_received,status,created_at
		FROM part_request_items WHERE request_id=? ORDER BY created_at, id`, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var i models.PartRequestItem
		rows.Scan(&i.ID, &i.RequestID, &i.ShopID, &i.WorkOrderLineID, &i.PartID, &i.Description,
			&i.QtyRequested, &i.QtyApproved, &i.QtyReserved, &i.QtyReceived, &i.Status, &i.CreatedAt)
		p.Items = append(p.Items, i)
	}
	if p.Items == nil {
		p.Items = []models.PartRequestItem{}
	}
	response.JSON(w, p)
}
