package fulfillment

import (
	"database/sql"
	"math"
	"strings"

	"github.com/google/uuid"
)

// ReceiveRequest is the input to Receive.
type ReceiveRequest struct {
	ItemID     string
	LocationID string
	Qty        float64
	POID       string // optional cost/audit attribution
	ReceiptID  string // optional idempotency key; generated when empty
	ReceivedBy string
}

// ReceiveResult is the outcome of one receive call.
type ReceiveResult struct {
	ItemID      string  `json:"item_id"`
	QtyReceived float64 `json:"qty_received"`
	Remaining   float64 `json:"remaining"`
	Status      string  `json:"status"`
	ReceiptID   string  `json:"receipt_id"`
	Duplicate   bool    `json:"duplicate,omitempty"`
}

// Receive records a delivery against one part request item: increments
// the item's received quantity bounded by its target, increments on-hand
// stock at the destination location, and writes a receipt event. The
// whole operation is one transaction. A receipt id repeated for the
// same item is a no-op returning the item's current state; the same id
// presented for a different item is rejected as a conflict. Without a
// receipt id the call is NOT idempotent and a retry double-counts.
func (e *Engine) Receive(req ReceiveRequest) (*ReceiveResult, error) {
	if math.IsNaN(req.Qty) || math.IsInf(req.Qty, 0) || req.Qty <= 0 {
		return nil, &ValidationError{Msg: "qty must be positive"}
	}
	if strings.TrimSpace(req.ItemID) == "" {
		return nil, &ValidationError{Msg: "item id is required"}
	}
	if strings.TrimSpace(req.LocationID) == "" {
		return nil, &ValidationError{Msg: "location_id is required"}
	}

	tx, err := e.DB.Begin()
	if err != nil {
		return nil, &StorageError{Op: "begin receive transaction", Err: err}
	}
	defer tx.Rollback()

	if req.ReceiptID != "" {
		var existing string
		err := tx.QueryRow("SELECT item_id FROM receipt_events WHERE id=?", req.ReceiptID).Scan(&existing)
		if err == nil {
			if existing != req.ItemID {
				return nil, &ReceiptConflictError{ReceiptID: req.ReceiptID, ItemID: existing}
			}
			res, err := loadItemState(tx, req.ItemID)
			if err != nil {
				return nil, err
			}
			res.ReceiptID = req.ReceiptID
			res.Duplicate = true
			return res, tx.Commit()
		}
		if err != sql.ErrNoRows {
			return nil, &StorageError{Op: "check receipt id", Err: err}
		}
	}

	var partID sql.NullString
	err = tx.QueryRow("SELECT part_id FROM part_request_items WHERE id=?", req.ItemID).Scan(&partID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "part request item", ID: req.ItemID}
	}
	if err != nil {
		return nil, &StorageError{Op: "load part request item", Err: err}
	}

	var locID string
	err = tx.QueryRow("SELECT id FROM stock_locations WHERE id=?", req.LocationID).Scan(&locID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "stock location", ID: req.LocationID}
	}
	if err != nil {
		return nil, &StorageError{Op: "load stock location", Err: err}
	}

	if req.POID != "" {
		var poID string
		err = tx.QueryRow("SELECT id FROM purchase_orders WHERE id=?", req.POID).Scan(&poID)
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Entity: "purchase order", ID: req.POID}
		}
		if err != nil {
			return nil, &StorageError{Op: "load purchase order", Err: err}
		}
	}

	now := e.now()

	// Bounded increment: zero rows affected means the quantity exceeds
	// what is still outstanding. Received never passes the target even
	// under concurrent receives against the same item.
	r, err := tx.Exec(`UPDATE part_request_items SET qty_received=qty_received+?
		WHERE id=? AND (CASE WHEN qty_approved > 0 THEN qty_approved ELSE qty_requested END) - qty_received >= ?`,
		req.Qty, req.ItemID, req.Qty)
	if err != nil {
		return nil, &StorageError{Op: "increment received qty", Err: err}
	}
	if n, _ := r.RowsAffected(); n == 0 {
		state, err := loadItemState(tx, req.ItemID)
		if err != nil {
			return nil, err
		}
		return nil, &OverReceiveError{Requested: req.Qty, Remaining: state.Remaining}
	}

	_, err = tx.Exec(`UPDATE part_request_items SET status=CASE
		WHEN (CASE WHEN qty_approved > 0 THEN qty_approved ELSE qty_requested END) - qty_received <= 0 THEN 'received'
		ELSE 'partially_received' END
		WHERE id=?`, req.ItemID)
	if err != nil {
		return nil, &StorageError{Op: "update item status", Err: err}
	}

	// Free-text items with no part master row have no stock to track.
	if partID.Valid && partID.String != "" {
		_, err = tx.Exec("INSERT OR IGNORE INTO part_stock (part_id, location_id, qty_on_hand, qty_reserved, updated_at) VALUES (?,?,0,0,?)",
			partID.String, req.LocationID, now)
		if err != nil {
			return nil, &StorageError{Op: "create stock row", Err: err}
		}
		_, err = tx.Exec("UPDATE part_stock SET qty_on_hand=qty_on_hand+?, updated_at=? WHERE part_id=? AND location_id=?",
			req.Qty, now, partID.String, req.LocationID)
		if err != nil {
			return nil, &StorageError{Op: "increment on-hand stock", Err: err}
		}

		reference := req.POID
		if reference == "" {
			reference = "item:" + req.ItemID
		}
		_, err = tx.Exec("INSERT INTO stock_transactions (part_id, location_id, type, qty, reference, created_at) VALUES (?,?,?,?,?,?)",
			partID.String, req.LocationID, "receive", req.Qty, reference, now)
		if err != nil {
			return nil, &StorageError{Op: "insert stock transaction", Err: err}
		}
	}

	receiptID := req.ReceiptID
	if receiptID == "" {
		receiptID = uuid.NewString()
	}
	_, err = tx.Exec("INSERT INTO receipt_events (id, item_id, location_id, po_id, qty, created_by, created_at) VALUES (?,?,?,?,?,?,?)",
		receiptID, req.ItemID, req.LocationID, req.POID, req.Qty, req.ReceivedBy, now)
	if err != nil {
		return nil, &StorageError{Op: "insert receipt event", Err: err}
	}

	res, err := loadItemState(tx, req.ItemID)
	if err != nil {
		return nil, err
	}
	res.ReceiptID = receiptID

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "commit receive transaction", Err: err}
	}
	return res, nil
}

func loadItemState(tx *sql.Tx, itemID string) (*ReceiveResult, error) {
	var received, approved, requested float64
	var status string
	err := tx.QueryRow("SELECT qty_received, qty_approved, qty_requested, status FROM part_request_items WHERE id=?", itemID).
		Scan(&received, &approved, &requested, &status)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "part request item", ID: itemID}
	}
	if err != nil {
		return nil, &StorageError{Op: "load part request item", Err: err}
	}
	target := approved
	if target <= 0 {
		target = requested
	}
	remaining := target - received
	if remaining < 0 {
		remaining = 0
	}
	return &ReceiveResult{
		ItemID:      itemID,
		QtyReceived: received,
		Remaining:   remaining,
		Status:      status,
	}, nil
}
