package receiving

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"partsdesk/internal/audit"
	"partsdesk/internal/fulfillment"
	"partsdesk/internal/models"
	"partsdesk/internal/response"
)

// ReceiveItem handles POST /api/v1/part-request-items/:id/receive.
func (h *Handler) ReceiveItem(w http.ResponseWriter, r *http.Request, itemID string) {
	var body struct {
		LocationID string  `json:"location_id"`
		Qty        float64 `json:"qty"`
		POID       string  `json:"po_id"`
		ReceiptID  string  `json:"receipt_id"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	username := audit.GetUsername(h.DB, r)
	res, err := h.Engine.Receive(fulfillment.ReceiveRequest{
		ItemID:     itemID,
		LocationID: body.LocationID,
		Qty:        body.Qty,
		POID:       body.POID,
		ReceiptID:  body.ReceiptID,
		ReceivedBy: username,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if !res.Duplicate {
		audit.LogAudit(h.DB, h.Hub, username, "received", "part_request_item", itemID,
			fmt.Sprintf("Received %g on item %s", body.Qty, itemID))
	}

	item, err := h.loadItem(itemID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":         true,
		"item":       item,
		"receipt_id": res.ReceiptID,
		"duplicate":  res.Duplicate,
	})
}

// Queue handles GET /api/v1/receiving/queue: request items still awaiting
// delivery (remaining > 0), optionally filtered by shop.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	query := `SELECT id,COALESCE(request_id,''),COALESCE(shop_id,''),COALESCE(work_order_line_id,''),COALESCE(part_id,''),COALESCE(description,''),
		qty_requested,qty_approved,qty_reserved,qty_received,status,created_at
		FROM part_request_items
		WHERE (CASE WHEN qty_approved > 0 THEN qty_approved ELSE qty_requested END) - qty_received > 0`
	var args []interface{}
	if shop := r.URL.Query().Get("shop_id"); shop != "" {
		query += " AND shop_id=?"
		args = append(args, shop)
	}
	query += " ORDER BY created_at"
	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.PartRequestItem
	for rows.Next() {
		var i models.PartRequestItem
		rows.Scan(&i.ID, &i.RequestID, &i.ShopID, &i.WorkOrderLineID, &i.PartID, &i.Description,
			&i.QtyRequested, &i.QtyApproved, &i.QtyReserved, &i.QtyReceived, &i.Status, &i.CreatedAt)
		items = append(items, i)
	}
	if items == nil {
		items = []models.PartRequestItem{}
	}
	response.JSON(w, items)
}

// ListReceipts handles GET /api/v1/part-request-items/:id/receipts.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request, itemID string) {
	rows, err := h.DB.Query("SELECT id,item_id,location_id,COALESCE(po_id,''),qty,COALESCE(created_by,''),created_at FROM receipt_events WHERE item_id=? ORDER BY created_at, id", itemID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var events []models.ReceiptEvent
	for rows.Next() {
		var e models.ReceiptEvent
		rows.Scan(&e.ID, &e.ItemID, &e.LocationID, &e.POID, &e.Qty, &e.CreatedBy, &e.CreatedAt)
		events = append(events, e)
	}
	if events == nil {
		events = []models.ReceiptEvent{}
	}
	response.JSON(w, events)
}

// GetItem handles GET /api/v1/part-request-items/:id.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request, itemID string) {
	item, err := h.loadItem(itemID)
	if err == sql.ErrNoRows {
		response.Err(w, "not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, item)
}

func (h *Handler) loadItem(id string) (models.PartRequestItem, error) {
	var i models.PartRequestItem
	err := h.DB.QueryRow(`SELECT id,COALESCE(request_id,''),COALESCE(shop_id,''),COALESCE(work_order_line_id,''),COALESCE(part_id,''),COALESCE(description,''),
		qty_requested,qty_approved,qty_reserved,qty_received,status,created_at
		FROM part_request_items WHERE id=?`, id).
		Scan(&i.ID, &i.RequestID, &i.ShopID, &i.WorkOrderLineID, &i.PartID, &i.Description,
			&i.QtyRequested, &i.QtyApproved, &i.QtyReserved, &i.QtyReceived, &i.Status, &i.CreatedAt)
	return i, err
}

func writeEngineError(w http.ResponseWriter, err error) {
	var ve *fulfillment.ValidationError
	var nf *fulfillment.NotFoundError
	var rc *fulfillment.ReceiptConflictError
	var or *fulfillment.OverReceiveError
	var se *fulfillment.StorageError
	switch {
	case errors.As(err, &ve):
		response.Err(w, ve.Error(), 400)
	case errors.As(err, &nf):
		response.Err(w, nf.Error(), 404)
	case errors.As(err, &rc):
		response.Err(w, rc.Error(), 409)
	case errors.As(err, &or):
		response.ErrDetails(w, "qty exceeds remaining",
			map[string]float64{"requested": or.Requested, "remaining": or.Remaining}, 400)
	case errors.As(err, &se):
		response.ErrDetails(w, "storage error", se.Error(), 500)
	default:
		response.Err(w, err.Error(), 500)
	}
}
