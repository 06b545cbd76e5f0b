package common

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Handler holds dependencies for shared export handlers.
type Handler struct {
	DB *sql.DB
}

// ExportStock exports part stock to CSV or Excel.
func (h *Handler) ExportStock(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	query := `SELECT s.part_id, COALESCE(p.sku,''), COALESCE(p.name,''), s.location_id, s.qty_on_hand, s.qty_reserved, s.updated_at
		FROM part_stock s LEFT JOIN parts p ON p.id = s.part_id`
	var args []interface{}
	if loc := r.URL.Query().Get("location_id"); loc != "" {
		query += " WHERE s.location_id=?"
		args = append(args, loc)
	}
	query += " ORDER BY s.part_id, s.location_id"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	headers := []string{"Part", "SKU", "Name", "Location", "Qty On Hand", "Qty Reserved", "Available", "Updated At"}
	var data [][]string
	for rows.Next() {
		var partID, sku, name, locationID, updatedAt string
		var onHand, reserved float64
		rows.Scan(&partID, &sku, &name, &locationID, &onHand, &reserved, &updatedAt)
		avail := onHand - reserved
		if avail < 0 {
			avail = 0
		}
		data = append(data, []string{
			partID, sku, name, locationID,
			strconv.FormatFloat(onHand, 'f', -1, 64),
			strconv.FormatFloat(reserved, 'f', -1, 64),
			strconv.FormatFloat(avail, 'f', -1, 64),
			updatedAt,
		})
	}

	if format == "xlsx" {
		ExportExcel(w, "Stock", headers, data)
	} else {
		ExportCSV(w, "stock.csv", headers, data)
	}
}

// ExportPOs exports purchase orders with items to CSV or Excel.
func (h *Handler) ExportPOs(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	query := `SELECT o.id, COALESCE(o.supplier_id,''), o.status, i.part_id, COALESCE(i.description,''), i.qty_ordered, i.qty_received, i.unit_cost, o.created_at
		FROM purchase_orders o JOIN purchase_order_items i ON i.po_id = o.id WHERE 1=1`
	var args []interface{}
	if status := r.URL.Query().Get("status"); status != "" {
		query += " AND o.status=?"
		args = append(args, status)
	}
	query += " ORDER BY o.created_at DESC, i.id"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	headers := []string{"PO", "Supplier", "Status", "Part", "Description", "Qty Ordered", "Qty Received", "Unit Cost", "Created At"}
	var data [][]string
	for rows.Next() {
		var poID, supplierID, status, partID, description, createdAt string
		var qtyOrdered, qtyReceived, unitCost float64
		rows.Scan(&poID, &supplierID, &status, &partID, &description, &qtyOrdered, &qtyReceived, &unitCost, &createdAt)
		data = append(data, []string{
			poID, supplierID, status, partID, description,
			strconv.FormatFloat(qtyOrdered, 'f', -1, 64),
			strconv.FormatFloat(qtyReceived, 'f', -1, 64),
			strconv.FormatFloat(unitCost, 'f', 2, 64),
			createdAt,
		})
	}

	if format == "xlsx" {
		ExportExcel(w, "Purchase Orders", headers, data)
	} else {
		ExportCSV(w, "purchase_orders.csv", headers, data)
	}
}

// ExportCSV writes data to CSV format.
func ExportCSV(w http.ResponseWriter, filename string, headers []string, data [][]string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(headers); err != nil {
		http.Error(w, "Failed to write CSV headers", 500)
		return
	}
	for _, row := range data {
		if err := writer.Write(row); err != nil {
			http.Error(w, "Failed to write CSV row", 500)
			return
		}
	}
}

// ExportExcel writes data to Excel format.
func ExportExcel(w http.ResponseWriter, sheetName string, headers []string, data [][]string) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		http.Error(w, "Failed to create Excel sheet", 500)
		return
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		http.Error(w, "Failed to create header style", 500)
		return
	}

	for i, header := range headers {
		cell := fmt.Sprintf("%s1", string(rune('A'+i)))
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}
	for rowIdx, row := range data {
		for colIdx, value := range row {
			cell := fmt.Sprintf("%s%d", string(rune('A'+colIdx)), rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}
	for i := range headers {
		col := string(rune('A' + i))
		f.SetColWidth(sheetName, col, col, 15)
	}
	if sheetName != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", sheetName))
	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write Excel file", 500)
	}
}
