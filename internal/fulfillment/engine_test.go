package fulfillment

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	"partsdesk/internal/testutil"

	_ "modernc.org/sqlite"
)

func setupEngine(t *testing.T) (*Engine, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { db.Close() })
	return &Engine{DB: db}, db
}

// seedApprovalFixture creates a shop with a default location, one
// supplier, one part backed by that supplier, and an open work order line.
func seedApprovalFixture(t *testing.T, db *sql.DB, onHand float64) {
	t.Helper()
	testutil.SeedShop(t, db, "SHOP-001", "LOC-0001")
	testutil.SeedSupplier(t, db, "SUP-0001", "SHOP-001", "NorthStar Parts Co")
	testutil.SeedPart(t, db, "PRT-0001", "SHOP-001", "BRK-PAD-F", "SUP-0001", 42.50)
	if onHand > 0 {
		testutil.SeedStock(t, db, "PRT-0001", "LOC-0001", onHand, 0)
	}
	testutil.SeedWorkOrderLine(t, db, "WO-0001", "WOL-0001", "SHOP-001")
}

func TestApproveFullAllocation(t *testing.T) {
	e, db := setupEngine(t)
	seedApprovalFixture(t, db, 5)

	res, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-0001",
		Parts:           []PartNeed{{PartID: "PRT-0001", Qty: 3}},
		SpawnPO:         true,
		ApprovedBy:      "advisor",
	})
	if err != nil {
		t.Fatalf("ApproveWithParts failed: %v", err)
	}

	if len(res.Allocated) != 1 || res.Allocated[0].Qty != 3 {
		t.Errorf("Expected 3 allocated, got %+v", res.Allocated)
	}
	if len(res.Missing) != 0 {
		t.Errorf("Expected no shortfall, got %+v", res.Missing)
	}
	if res.POID != "" {
		t.Errorf("Expected no PO, got %s", res.POID)
	}
	if res.LineStatus != nil {
		t.Errorf("Expected nil line_status, got %s", *res.LineStatus)
	}
	if res.LocationID != "LOC-0001" {
		t.Errorf("Expected default location, got %s", res.LocationID)
	}

	var reserved float64
	db.QueryRow("SELECT qty_reserved FROM part_stock WHERE part_id='PRT-0001' AND location_id='LOC-0001'").Scan(&reserved)
	if reserved != 3 {
		t.Errorf("Expected qty_reserved=3, got %g", reserved)
	}

	var allocQty float64
	err = db.QueryRow("SELECT qty FROM work_order_part_allocations WHERE work_order_line_id='WOL-0001'").Scan(&allocQty)
	if err != nil || allocQty != 3 {
		t.Errorf("Expected allocation row qty=3, got %g (err %v)", allocQty, err)
	}

	var txnCount int
	db.QueryRow("SELECT COUNT(*) FROM stock_transactions WHERE type='reserve' AND part_id='PRT-0001'").Scan(&txnCount)
	if txnCount != 1 {
		t.Errorf("Expected 1 reserve transaction, got %d", txnCount)
	}

	var approvalState string
	db.QueryRow("SELECT approval_state FROM work_order_lines WHERE id='WOL-0001'").Scan(&approvalState)
	if approvalState != "approved" {
		t.Errorf("Expected approval_state=approved, got %s", approvalState)
	}
}

func TestApprovePartialAllocationSpawnsPO(t *testing.T) {
	e, db := setupEngine(t)
	seedApprovalFixture(t, db, 2)
	testutil.SeedSupplier(t, db, "SUP-0002", "SHOP-001", "Bayview Auto Supply")

	res, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-0001",
		Parts:           []PartNeed{{PartID: "PRT-0001", Qty: 5, UnitCost: 10, SupplierID: "SUP-0002"}},
		SpawnPO:         true,
		ApprovedBy:      "advisor",
	})
	if err != nil {
		t.Fatalf("ApproveWithParts failed: %v", err)
	}

	if len(res.Allocated) != 1 || res.Allocated[0].Qty != 2 {
		t.Errorf("Expected 2 allocated, got %+v", res.Allocated)
	}
	if len(res.Missing) != 1 || res.Missing[0].MissingQty != 3 {
		t.Errorf("Expected missing 3, got %+v", res.Missing)
	}
	if res.POID == "" {
		t.Fatal("Expected a draft PO to be created")
	}
	if res.LineStatus == nil || *res.LineStatus != LineStatusAwaitingAuth {
		t.Errorf("Expected line_status=%s, got %v", LineStatusAwaitingAuth, res.LineStatus)
	}

	var supplierID, status string
	var total float64
	db.QueryRow("SELECT supplier_id, status, total FROM purchase_orders WHERE id=?", res.POID).Scan(&supplierID, &status, &total)
	if supplierID != "SUP-0002" {
		t.Errorf("Expected per-need supplier hint SUP-0002, got %s", supplierID)
	}
	if status != "draft" {
		t.Errorf("Expected draft PO, got %s", status)
	}
	if total != 30 {
		t.Errorf("Expected PO total 30, got %g", total)
	}

	var qtyOrdered float64
	db.QueryRow("SELECT qty_ordered FROM purchase_order_items WHERE po_id=?", res.POID).Scan(&qtyOrdered)
	if qtyOrdered != 3 {
		t.Errorf("Expected PO item qty_ordered=3, got %g", qtyOrdered)
	}
}

func TestApproveConservation(t *testing.T) {
	e, db := setupEngine(t)
	seedApprovalFixture(t, db, 2)
	testutil.SeedPart(t, db, "PRT-0002", "SHOP-001", "OIL-FLT-01", "SUP-0001", 6.80)
	testutil.SeedStock(t, db, "PRT-0002", "LOC-0001", 10, 4)

	requested := map[string]float64{"PRT-0001": 7, "PRT-0002": 6}
	res, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-0001",
		Parts: []PartNeed{
			{PartID: "PRT-0001", Qty: 7},
			{PartID: "PRT-0002", Qty: 6},
		},
		SpawnPO: true,
	})
	if err != nil {
		t.Fatalf("ApproveWithParts failed: %v", err)
	}

	got := map[string]float64{}
	for _, a := range res.Allocated {
		got[a.PartID] += a.Qty
	}
	for _, m := range res.Missing {
		got[m.PartID] += m.MissingQty
	}
	for partID, want := range requested {
		if got[partID] != want {
			t.Errorf("Part %s: allocated+missing=%g, requested %g", partID, got[partID], want)
		}
	}

	// Reserved never exceeds on-hand
	rows, _ := db.Query("SELECT part_id, qty_on_hand, qty_reserved FROM part_stock")
	defer rows.Close()
	for rows.Next() {
		var partID string
		var onHand, reserved float64
		rows.Scan(&partID, &onHand, &reserved)
		if reserved > onHand {
			t.Errorf("Part %s: qty_reserved %g exceeds qty_on_hand %g", partID, reserved, onHand)
		}
	}
}

func TestApproveMissingSupplier(t *testing.T) {
	e, db := setupEngine(t)
	testutil.SeedShop(t, db, "SHOP-001", "LOC-0001")
	testutil.SeedPart(t, db, "PRT-0003", "SHOP-001", "WPR-BLD-22", "", 9.25)
	testutil.SeedWorkOrderLine(t, db, "WO-0001", "WOL-0001", "SHOP-001")

	_, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-0001",
		Parts:           []PartNeed{{PartID: "PRT-0003", Qty: 2}},
		SpawnPO:         true,
	})

	var ms *MissingSupplierError
	if !errors.As(err, &ms) {
		t.Fatalf("Expected MissingSupplierError, got %v", err)
	}
	if len(ms.UnresolvedParts) != 1 || ms.UnresolvedParts[0] != "PRT-0003" {
		t.Errorf("Expected unresolved [PRT-0003], got %v", ms.UnresolvedParts)
	}

	// Whole transaction rolled back: no PO, no allocations, no line stamp
	var poCount int
	db.QueryRow("SELECT COUNT(*) FROM purchase_orders").Scan(&poCount)
	if poCount != 0 {
		t.Errorf("Expected no PO rows after rollback, got %d", poCount)
	}
	var approvalState string
	db.QueryRow("SELECT approval_state FROM work_order_lines WHERE id='WOL-0001'").Scan(&approvalState)
	if approvalState != "" {
		t.Errorf("Expected line untouched after rollback, got approval_state=%s", approvalState)
	}
}

func TestApproveSupplierOverrideWins(t *testing.T) {
	e, db := setupEngine(t)
	seedApprovalFixture(t, db, 0)
	testutil.SeedSupplier(t, db, "SUP-0002", "SHOP-001", "Bayview Auto Supply")
	testutil.SeedSupplier(t, db, "SUP-0003", "SHOP-001", "Override Supply")

	res, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-0001",
		Parts:           []PartNeed{{PartID: "PRT-0001", Qty: 4, SupplierID: "SUP-0002"}},
		SupplierID:      "SUP-0003",
		SpawnPO:         true,
	})
	if err != nil {
		t.Fatalf("ApproveWithParts failed: %v", err)
	}

	var supplierID string
	db.QueryRow("SELECT supplier_id FROM purchase_orders WHERE id=?", res.POID).Scan(&supplierID)
	if supplierID != "SUP-0003" {
		t.Errorf("Expected request override SUP-0003, got %s", supplierID)
	}
}

func TestApproveFirstResolvedSupplierTakesAll(t *testing.T) {
	e, db := setupEngine(t)
	seedApprovalFixture(t, db, 0)
	testutil.SeedSupplier(t, db, "SUP-0002", "SHOP-001", "Bayview Auto Supply")
	testutil.SeedPart(t, db, "PRT-0002", "SHOP-001", "OIL-FLT-01", "SUP-0002", 6.80)

	// Two shortfalls resolving to different suppliers: a single PO is
	// created for the first resolved one and carries both lines.
	res, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-0001",
		Parts: []PartNeed{
			{PartID: "PRT-0001", Qty: 2}, // default SUP-0001
			{PartID: "PRT-0002", Qty: 3}, // default SUP-0002
		},
		SpawnPO: true,
	})
	if err != nil {
		t.Fatalf("ApproveWithParts failed: %v", err)
	}

	var poCount int
	db.QueryRow("SELECT COUNT(*) FROM purchase_orders").Scan(&poCount)
	if poCount != 1 {
		t.Fatalf("Expected exactly one PO, got %d", poCount)
	}
	var supplierID string
	db.QueryRow("SELECT supplier_id FROM purchase_orders WHERE id=?", res.POID).Scan(&supplierID)
	if supplierID != "SUP-0001" {
		t.Errorf("Expected first resolved supplier SUP-0001, got %s", supplierID)
	}
	var itemCount int
	db.QueryRow("SELECT COUNT(*) FROM purchase_order_items WHERE po_id=?", res.POID).Scan(&itemCount)
	if itemCount != 2 {
		t.Errorf("Expected both shortfall lines on the PO, got %d", itemCount)
	}
}

func TestApproveShortfallWithoutPO(t *testing.T) {
	e, db := setupEngine(t)
	seedApprovalFixture(t, db, 1)

	res, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-0001",
		Parts:           []PartNeed{{PartID: "PRT-0001", Qty: 4}},
		SpawnPO:         false,
	})
	if err != nil {
		t.Fatalf("ApproveWithParts failed: %v", err)
	}
	if res.POID != "" {
		t.Errorf("Expected no PO when disabled, got %s", res.POID)
	}
	if len(res.Missing) != 1 || res.Missing[0].MissingQty != 3 {
		t.Errorf("Expected shortfall still reported, got %+v", res.Missing)
	}
	if res.LineStatus == nil || *res.LineStatus != LineStatusAwaitingAuth {
		t.Errorf("Expected backorder marker on line, got %v", res.LineStatus)
	}
}

func TestApproveAutoCreatesLocation(t *testing.T) {
	e, db := setupEngine(t)
	// Shop with no stock locations at all
	if _, err := db.Exec("INSERT INTO shops (id, name) VALUES ('SHOP-002', 'Annex')"); err != nil {
		t.Fatalf("Failed to seed shop: %v", err)
	}
	testutil.SeedSupplier(t, db, "SUP-0001", "SHOP-002", "NorthStar Parts Co")
	testutil.SeedPart(t, db, "PRT-0001", "SHOP-002", "BRK-PAD-F", "SUP-0001", 42.50)
	testutil.SeedWorkOrderLine(t, db, "WO-0001", "WOL-0001", "SHOP-002")

	res, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-0001",
		Parts:           []PartNeed{{PartID: "PRT-0001", Qty: 2}},
		SpawnPO:         true,
	})
	if err != nil {
		t.Fatalf("ApproveWithParts failed: %v", err)
	}
	if res.LocationID == "" {
		t.Fatal("Expected an auto-created location")
	}

	var code, shopID string
	err = db.QueryRow("SELECT code, shop_id FROM stock_locations WHERE id=?", res.LocationID).Scan(&code, &shopID)
	if err != nil {
		t.Fatalf("Auto-created location not persisted: %v", err)
	}
	if code != "MAIN" || shopID != "SHOP-002" {
		t.Errorf("Expected MAIN location for SHOP-002, got %s/%s", code, shopID)
	}
	// No stock anywhere, so everything is a shortfall on a PO
	if len(res.Missing) != 1 || res.Missing[0].MissingQty != 2 {
		t.Errorf("Expected full shortfall, got %+v", res.Missing)
	}
	if res.POID == "" {
		t.Error("Expected draft PO for the shortfall")
	}
}

func TestApproveLineNotFound(t *testing.T) {
	e, _ := setupEngine(t)
	_, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-9999",
		Parts:           []PartNeed{{PartID: "PRT-0001", Qty: 1}},
	})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestApproveDataIntegrity(t *testing.T) {
	e, db := setupEngine(t)
	// Line with no work order or shop linkage
	if _, err := db.Exec("INSERT INTO work_order_lines (id, description) VALUES ('WOL-ORPHAN', 'orphan')"); err != nil {
		t.Fatalf("Failed to seed orphan line: %v", err)
	}

	_, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-ORPHAN",
		Parts:           []PartNeed{{PartID: "PRT-0001", Qty: 1}},
	})
	var di *DataIntegrityError
	if !errors.As(err, &di) {
		t.Fatalf("Expected DataIntegrityError, got %v", err)
	}
	if !strings.Contains(di.Error(), "WOL-ORPHAN") {
		t.Errorf("Expected error to name the line, got %s", di.Error())
	}
}

func TestApproveValidation(t *testing.T) {
	e, _ := setupEngine(t)

	cases := []struct {
		name string
		req  ApproveRequest
	}{
		{"empty line id", ApproveRequest{Parts: []PartNeed{{PartID: "P", Qty: 1}}}},
		{"no parts", ApproveRequest{WorkOrderLineID: "WOL-0001"}},
		{"zero qty", ApproveRequest{WorkOrderLineID: "WOL-0001", Parts: []PartNeed{{PartID: "P", Qty: 0}}}},
		{"negative qty", ApproveRequest{WorkOrderLineID: "WOL-0001", Parts: []PartNeed{{PartID: "P", Qty: -2}}}},
		{"missing part id", ApproveRequest{WorkOrderLineID: "WOL-0001", Parts: []PartNeed{{Qty: 1}}}},
		{"negative unit cost", ApproveRequest{WorkOrderLineID: "WOL-0001", Parts: []PartNeed{{PartID: "P", Qty: 1, UnitCost: -1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.ApproveWithParts(tc.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("Expected ValidationError, got %v", err)
			}
		})
	}
}

func TestApproveNotesAccumulate(t *testing.T) {
	e, db := setupEngine(t)
	seedApprovalFixture(t, db, 10)
	db.Exec("UPDATE work_order_lines SET notes='customer waiting' WHERE id='WOL-0001'")

	_, err := e.ApproveWithParts(ApproveRequest{
		WorkOrderLineID: "WOL-0001",
		Parts:           []PartNeed{{PartID: "PRT-0001", Qty: 2}},
		Note:            "rush job",
	})
	if err != nil {
		t.Fatalf("ApproveWithParts failed: %v", err)
	}

	var notes string
	db.QueryRow("SELECT notes FROM work_order_lines WHERE id='WOL-0001'").Scan(&notes)
	if !strings.Contains(notes, "customer waiting") || !strings.Contains(notes, "rush job") {
		t.Errorf("Expected prior and new notes joined, got %q", notes)
	}
}
