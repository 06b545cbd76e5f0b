package workorders

import (
	"database/sql"
	"net/http"

	"partsdesk/internal/models"
	"partsdesk/internal/response"
)

// ListWorkOrders returns all work orders, optionally filtered by shop.
func (h *Handler) ListWorkOrders(w http.ResponseWriter, r *http.Request) {
	query := "SELECT id,shop_id,COALESCE(customer_ref,''),COALESCE(vehicle_ref,''),status,COALESCE(notes,''),created_at FROM work_orders"
	var args []interface{}
	if shop := r.URL.Query().Get("shop_id"); shop != "" {
		query += " WHERE shop_id=?"
		args = append(args, shop)
	}
	query += " ORDER BY created_at DESC"
	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.WorkOrder
	for rows.Next() {
		var wo models.WorkOrder
		rows.Scan(&wo.ID, &wo.ShopID, &wo.CustomerRef, &wo.VehicleRef, &wo.Status, &wo.Notes, &wo.CreatedAt)
		items = append(items, wo)
	}
	if items == nil {
		items = []models.WorkOrder{}
	}
	response.JSON(w, items)
}

// GetWorkOrder returns a single work order with its lines.
func (h *Handler) GetWorkOrder(w http.ResponseWriter, r *http.Request, id string) {
	var wo models.WorkOrder
	err := h.DB.QueryRow("SELECT id,shop_id,COALESCE(customer_ref,''),COALESCE(vehicle_ref,''),status,COALESCE(notes,''),created_at FROM work_orders WHERE id=?", id).
		Scan(&wo.ID, &wo.ShopID, &wo.CustomerRef, &wo.VehicleRef, &wo.Status, &wo.Notes, &wo.CreatedAt)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}

	lines, err := h.loadLines(wo.ID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]interface{}{"work_order": wo, "lines": lines})
}

// GetLine returns a single work order line.
func (h *Handler) GetLine(w http.ResponseWriter, r *http.Request, id string) {
	line, err := h.loadLine(id)
	if err == sql.ErrNoRows {
		response.Err(w, "not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, line)
}

// ListLineAllocations returns the allocation rows committed to a line.
func (h *Handler) ListLineAllocations(w http.ResponseWriter, r *http.Request, lineID string) {
	rows, err := h.DB.Query(`SELECT id,work_order_id,work_order_line_id,shop_id,part_id,location_id,qty,unit_cost,created_at
		FROM work_order_part_allocations WHERE work_order_line_id=? ORDER BY id`, lineID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.PartAllocation
	for rows.Next() {
		var a models.PartAllocation
		rows.Scan(&a.ID, &a.WorkOrderID, &a.WorkOrderLineID, &a.ShopID, &a.PartID, &a.LocationID, &a.Qty, &a.UnitCost, &a.CreatedAt)
		items = append(items, a)
	}
	if items == nil {
		items = []models.PartAllocation{}
	}
	response.JSON(w, items)
}

func (h *Handler) loadLines(workOrderID string) ([]models.WorkOrderLine, error) {
	rows, err := h.DB.Query(`SELECT id,COALESCE(work_order_id,''),COALESCE(shop_id,''),COALESCE(description,''),COALESCE(status,''),line_status,COALESCE(approval_state,''),COALESCE(notes,''),approval_at,COALESCE(approval_by,''),created_at
		FROM work_order_lines WHERE work_order_id=? ORDER BY created_at, id`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []models.WorkOrderLine{}
	for rows.Next() {
		var l models.WorkOrderLine
		var lineStatus, approvalAt sql.NullString
		rows.Scan(&l.ID, &l.WorkOrderID, &l.ShopID, &l.Description, &l.Status, &lineStatus, &l.ApprovalState, &l.Notes, &approvalAt, &l.ApprovalBy, &l.CreatedAt)
		if lineStatus.Valid {
			l.LineStatus = &lineStatus.String
		}
		if approvalAt.Valid {
			l.ApprovalAt = &approvalAt.String
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (h *Handler) loadLine(id string) (models.WorkOrderLine, error) {
	var l models.WorkOrderLine
	var lineStatus, approvalAt sql.NullString
	err := h.DB.QueryRow(`SELECT id,COALESCE(work_order_id,''),COALESCE(shop_id,''),COALESCE(description,''),COALESCE(status,''),line_status,COALESCE(approval_state,''),COALESCE(notes,''),approval_at,COALESCE(approval_by,''),created_at
		FROM work_order_lines WHERE id=?`, id).
		Scan(&l.ID, &l.WorkOrderID, &l.ShopID, &l.Description, &l.Status, &lineStatus, &l.ApprovalState, &l.Notes, &approvalAt, &l.ApprovalBy, &l.CreatedAt)
	if err != nil {
		return l, err
	}
	if lineStatus.Valid {
		l.LineStatus = &lineStatus.String
	}
	if approvalAt.Valid {
		l.ApprovalAt = &approvalAt.String
	}
	return l, nil
}
