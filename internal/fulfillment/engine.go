package fulfillment

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Engine runs the allocation and receiving workflows. Each public
// operation executes inside a single database transaction; on any failure
// every write from that call is rolled back. The engine performs no
// authorization checks; callers gate access before invoking it.
type Engine struct {
	DB *sql.DB

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (e *Engine) now() string {
	if e.Now != nil {
		return e.Now().Format("2006-01-02 15:04:05")
	}
	return time.Now().Format("2006-01-02 15:04:05")
}

// PartNeed is one requested part on an approval call.
type PartNeed struct {
	PartID      string  `json:"partId"`
	Qty         float64 `json:"qty"`
	UnitCost    float64 `json:"unitCost,omitempty"`
	Description string  `json:"description,omitempty"`
	SupplierID  string  `json:"supplierId,omitempty"`
}

// ApproveRequest is the input to ApproveWithParts.
type ApproveRequest struct {
	WorkOrderLineID string
	Parts           []PartNeed
	SupplierID      string // override, wins over per-need hints and part defaults
	SpawnPO         bool   // create a draft PO for shortfalls
	Note            string
	ApprovedBy      string
}

// Allocated is the fulfilled portion of one part need.
type Allocated struct {
	PartID string  `json:"partId"`
	Qty    float64 `json:"qty"`
}

// Shortfall is the unfulfilled portion of one part need.
type Shortfall struct {
	PartID     string  `json:"partId"`
	MissingQty float64 `json:"missingQty"`
}

// ApproveResult is the outcome of one approval call.
type ApproveResult struct {
	WorkOrderLineID string      `json:"workOrderLineId"`
	WorkOrderID     string      `json:"workOrderId"`
	ShopID          string      `json:"shopId"`
	LocationID      string      `json:"locationId"`
	Allocated       []Allocated `json:"allocated"`
	Missing         []Shortfall `json:"missing"`
	POID            string      `json:"poId,omitempty"`
	LineStatus      *string     `json:"line_status"`
	UnresolvedParts []string    `json:"unresolvedParts,omitempty"`
}

// LineStatusAwaitingAuth marks a line with an unfulfilled shortfall.
const LineStatusAwaitingAuth = "awaiting_authorization"

// ApproveWithParts approves a work order line against on-hand stock,
// reserving what is available, recording allocations, spawning a draft
// purchase order for any shortfall, and updating the line state. The
// whole operation is one transaction.
func (e *Engine) ApproveWithParts(req ApproveRequest) (*ApproveResult, error) {
	if err := validateApprove(req); err != nil {
		return nil, err
	}

	tx, err := e.DB.Begin()
	if err != nil {
		return nil, &StorageError{Op: "begin approval transaction", Err: err}
	}
	defer tx.Rollback()

	var workOrderID, shopID sql.NullString
	err = tx.QueryRow("SELECT work_order_id, shop_id FROM work_order_lines WHERE id=?", req.WorkOrderLineID).
		Scan(&workOrderID, &shopID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "work order line", ID: req.WorkOrderLineID}
	}
	if err != nil {
		return nil, &StorageError{Op: "load work order line", Err: err}
	}
	if !workOrderID.Valid || workOrderID.String == "" || !shopID.Valid || shopID.String == "" {
		return nil, &DataIntegrityError{
			Entity: "work order line", ID: req.WorkOrderLineID,
			Msg: "missing shop or work order linkage",
		}
	}

	locationID, err := e.resolveLocation(tx, shopID.String)
	if err != nil {
		return nil, err
	}

	res := &ApproveResult{
		WorkOrderLineID: req.WorkOrderLineID,
		WorkOrderID:     workOrderID.String,
		ShopID:          shopID.String,
		LocationID:      locationID,
		Allocated:       []Allocated{},
		Missing:         []Shortfall{},
	}

	now := e.now()
	for _, need := range req.Parts {
		got, err := e.reserve(tx, need.PartID, locationID, need.Qty, now)
		if err != nil {
			return nil, err
		}
		if got > 0 {
			_, err = tx.Exec(`INSERT INTO work_order_part_allocations
				(work_order_id, work_order_line_id, shop_id, part_id, location_id, qty, unit_cost, created_at)
				VALUES (?,?,?,?,?,?,?,?)`,
				workOrderID.String, req.WorkOrderLineID, shopID.String, need.PartID, locationID, got, need.UnitCost, now)
			if err != nil {
				return nil, &StorageError{Op: "insert allocation", Err: err}
			}
			_, err = tx.Exec(`INSERT INTO stock_transactions (part_id, location_id, type, qty, reference, created_at)
				VALUES (?,?,?,?,?,?)`,
				need.PartID, locationID, "reserve", got, "line:"+req.WorkOrderLineID, now)
			if err != nil {
				return nil, &StorageError{Op: "insert stock transaction", Err: err}
			}
			res.Allocated = append(res.Allocated, Allocated{PartID: need.PartID, Qty: got})
		}
		if missing := need.Qty - got; missing > 0 {
			res.Missing = append(res.Missing, Shortfall{PartID: need.PartID, MissingQty: missing})
		}
	}

	if len(res.Missing) > 0 && req.SpawnPO {
		poID, unresolved, err := e.spawnPO(tx, req, res, now)
		if err != nil {
			return nil, err
		}
		res.POID = poID
		res.UnresolvedParts = unresolved
	}

	if err := e.updateLine(tx, req, res, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "commit approval transaction", Err: err}
	}
	return res, nil
}

func validateApprove(req ApproveRequest) error {
	if strings.TrimSpace(req.WorkOrderLineID) == "" {
		return &ValidationError{Msg: "workOrderLineId is required"}
	}
	if len(req.Parts) == 0 {
		return &ValidationError{Msg: "parts must be a non-empty array"}
	}
	for i, p := range req.Parts {
		if strings.TrimSpace(p.PartID) == "" {
			return &ValidationError{Msg: fmt.Sprintf("parts[%d].partId is required", i)}
		}
		if math.IsNaN(p.Qty) || math.IsInf(p.Qty, 0) || p.Qty <= 0 {
			return &ValidationError{Msg: fmt.Sprintf("parts[%d].qty must be positive", i)}
		}
		if p.UnitCost < 0 {
			return &ValidationError{Msg: fmt.Sprintf("parts[%d].unitCost must be non-negative", i)}
		}
	}
	return nil
}

// resolveLocation picks the stock location for a shop: the configured
// default, else the earliest-created location, else a lazily created
// "MAIN" location. Only creation failure is terminal.
func (e *Engine) resolveLocation(tx *sql.Tx, shopID string) (string, error) {
	var defaultLoc sql.NullString
	err := tx.QueryRow("SELECT default_location_id FROM shops WHERE id=?", shopID).Scan(&defaultLoc)
	if err != nil && err != sql.ErrNoRows {
		return "", &StorageError{Op: "load shop", Err: err}
	}
	if defaultLoc.Valid && defaultLoc.String != "" {
		var id string
		err := tx.QueryRow("SELECT id FROM stock_locations WHERE id=? AND shop_id=?", defaultLoc.String, shopID).Scan(&id)
		if err == nil {
			return id, nil
		}
	}

	var id string
	err = tx.QueryRow("SELECT id FROM stock_locations WHERE shop_id=? ORDER BY created_at, id LIMIT 1", shopID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", &StorageError{Op: "load stock locations", Err: err}
	}

	id = nextIDTx(tx, "LOC", "stock_locations", 4)
	_, err = tx.Exec("INSERT INTO stock_locations (id, shop_id, code, name, created_at) VALUES (?,?,?,?,?)",
		id, shopID, "MAIN", "Main", e.now())
	if err != nil {
		return "", &StorageError{Op: "create stock location", Err: err}
	}
	return id, nil
}

// reserve atomically reserves up to qty of a part at a location and
// returns the quantity actually reserved. The conditional update keeps
// qty_reserved <= qty_on_hand even under concurrent approvals; zero rows
// affected means insufficient stock and downgrades to a partial reserve
// of whatever is available.
func (e *Engine) reserve(tx *sql.Tx, partID, locationID string, qty float64, now string) (float64, error) {
	r, err := tx.Exec(`UPDATE part_stock SET qty_reserved=qty_reserved+?, updated_at=?
		WHERE part_id=? AND location_id=? AND qty_on_hand - qty_reserved >= ?`,
		qty, now, partID, locationID, qty)
	if err != nil {
		return 0, &StorageError{Op: "reserve stock", Err: err}
	}
	if n, _ := r.RowsAffected(); n > 0 {
		return qty, nil
	}

	var avail float64
	err = tx.QueryRow("SELECT qty_on_hand - qty_reserved FROM part_stock WHERE part_id=? AND location_id=?",
		partID, locationID).Scan(&avail)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, &StorageError{Op: "read stock availability", Err: err}
	}
	if avail <= 0 {
		return 0, nil
	}

	r, err = tx.Exec(`UPDATE part_stock SET qty_reserved=qty_reserved+?, updated_at=?
		WHERE part_id=? AND location_id=? AND qty_on_hand - qty_reserved >= ?`,
		avail, now, partID, locationID, avail)
	if err != nil {
		return 0, &StorageError{Op: "reserve stock", Err: err}
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return 0, nil
	}
	return avail, nil
}

// spawnPO creates one draft purchase order covering every shortfall.
// Supplier resolution per missing part: request override, then the
// per-need hint, then the part master default. All shortfall lines land
// on the first resolved supplier even when other lines hinted a
// different one; splitting per supplier is deliberately not done.
func (e *Engine) spawnPO(tx *sql.Tx, req ApproveRequest, res *ApproveResult, now string) (string, []string, error) {
	needByPart := make(map[string]PartNeed, len(req.Parts))
	for _, n := range req.Parts {
		needByPart[n.PartID] = n
	}

	var chosenSupplier string
	var unresolved []string
	for _, m := range res.Missing {
		supplier := req.SupplierID
		if supplier == "" {
			supplier = needByPart[m.PartID].SupplierID
		}
		if supplier == "" {
			var def sql.NullString
			err := tx.QueryRow("SELECT default_supplier_id FROM parts WHERE id=?", m.PartID).Scan(&def)
			if err != nil && err != sql.ErrNoRows {
				return "", nil, &StorageError{Op: "load part master", Err: err}
			}
			if def.Valid {
				supplier = def.String
			}
		}
		if supplier == "" {
			unresolved = append(unresolved, m.PartID)
			continue
		}
		if chosenSupplier == "" {
			chosenSupplier = supplier
		}
	}

	if chosenSupplier == "" {
		return "", nil, &MissingSupplierError{UnresolvedParts: unresolved}
	}

	poID := nextIDTx(tx, "PO", "purchase_orders", 4)
	notes := "Auto-generated for work order line " + req.WorkOrderLineID
	if req.Note != "" {
		notes += " • " + req.Note
	}
	_, err := tx.Exec(`INSERT INTO purchase_orders (id, shop_id, supplier_id, status, notes, total, created_by, created_at)
		VALUES (?,?,?,'draft',?,0,?,?)`,
		poID, res.ShopID, chosenSupplier, notes, req.ApprovedBy, now)
	if err != nil {
		return "", nil, &StorageError{Op: "insert purchase order", Err: err}
	}

	total := decimal.Zero
	for _, m := range res.Missing {
		need := needByPart[m.PartID]
		_, err := tx.Exec(`INSERT INTO purchase_order_items (po_id, part_id, description, qty_ordered, unit_cost, location_id)
			VALUES (?,?,?,?,?,?)`,
			poID, m.PartID, need.Description, m.MissingQty, need.UnitCost, res.LocationID)
		if err != nil {
			return "", nil, &StorageError{Op: "insert purchase order items", Err: err}
		}
		total = total.Add(decimal.NewFromFloat(m.MissingQty).Mul(decimal.NewFromFloat(need.UnitCost)))
	}
	f, _ := total.Float64()
	if _, err := tx.Exec("UPDATE purchase_orders SET total=? WHERE id=?", f, poID); err != nil {
		return "", nil, &StorageError{Op: "update purchase order total", Err: err}
	}

	return poID, unresolved, nil
}

// updateLine writes the final bookkeeping onto the originating line:
// approval stamp, backorder marker, and a bullet-joined note.
func (e *Engine) updateLine(tx *sql.Tx, req ApproveRequest, res *ApproveResult, now string) error {
	var prevNotes sql.NullString
	if err := tx.QueryRow("SELECT notes FROM work_order_lines WHERE id=?", req.WorkOrderLineID).Scan(&prevNotes); err != nil {
		return &StorageError{Op: "load line notes", Err: err}
	}

	parts := []string{}
	if prevNotes.Valid && prevNotes.String != "" {
		parts = append(parts, prevNotes.String)
	}
	if req.Note != "" {
		parts = append(parts, req.Note)
	}
	if res.POID != "" {
		parts = append(parts, "PO "+res.POID+" created")
	}
	if len(res.Allocated) > 0 {
		parts = append(parts, "allocated parts at location "+res.LocationID)
	}
	notes := strings.Join(parts, " • ")

	var lineStatus interface{}
	if len(res.Missing) > 0 {
		lineStatus = LineStatusAwaitingAuth
		s := LineStatusAwaitingAuth
		res.LineStatus = &s
	}

	_, err := tx.Exec(`UPDATE work_order_lines SET
		approval_state='approved',
		status=CASE WHEN status IS NULL OR status='' THEN 'awaiting' ELSE status END,
		line_status=?,
		notes=?,
		approval_at=?,
		approval_by=?
		WHERE id=?`,
		lineStatus, notes, now, req.ApprovedBy, req.WorkOrderLineID)
	if err != nil {
		return &StorageError{Op: "update work order line", Err: err}
	}
	return nil
}

// nextIDTx generates the next sequential id like PO-2026-0001 within a
// transaction.
func nextIDTx(tx *sql.Tx, prefix, table string, digits int) string {
	year := time.Now().Format("2006")
	pattern := prefix + "-" + year + "-%"
	var maxID sql.NullString
	tx.QueryRow("SELECT id FROM "+table+" WHERE id LIKE ? ORDER BY id DESC LIMIT 1", pattern).Scan(&maxID)

	next := 1
	if maxID.Valid {
		parts := strings.Split(maxID.String, "-")
		if len(parts) >= 3 {
			if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
				next = n + 1
			}
		}
	}
	return fmt.Sprintf("%s-%s-%0*d", prefix, year, digits, next)
}
