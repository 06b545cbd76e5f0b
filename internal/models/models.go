package models

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

type Shop struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	DefaultLocationID string `json:"default_location_id"`
	CreatedAt         string `json:"created_at"`
}

type Supplier struct {
	ID           string `json:"id"`
	ShopID       string `json:"shop_id"`
	Name         string `json:"name"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	Notes        string `json:"notes"`
	Status       string `json:"status"`
	LeadTimeDays int    `json:"lead_time_days"`
	CreatedAt    string `json:"created_at"`
}

type Part struct {
	ID                string  `json:"id"`
	ShopID            string  `json:"shop_id"`
	SKU               string  `json:"sku"`
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	DefaultSupplierID string  `json:"default_supplier_id"`
	UnitCost          float64 `json:"unit_cost"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

type StockLocation struct {
	ID        string `json:"id"`
	ShopID    string `json:"shop_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type PartStock struct {
	PartID      string  `json:"part_id"`
	LocationID  string  `json:"location_id"`
	QtyOnHand   float64 `json:"qty_on_hand"`
	QtyReserved float64 `json:"qty_reserved"`
	UpdatedAt   string  `json:"updated_at"`
}

// Available is on-hand minus reserved, floored at zero.
func (s PartStock) Available() float64 {
	avail := s.QtyOnHand - s.QtyReserved
	if avail < 0 {
		return 0
	}
	return avail
}

type StockTransaction struct {
	ID         int     `json:"id"`
	PartID     string  `json:"part_id"`
	LocationID string  `json:"location_id"`
	Type       string  `json:"type"`
	Qty        float64 `json:"qty"`
	Reference  string  `json:"reference"`
	Notes      string  `json:"notes"`
	CreatedAt  string  `json:"created_at"`
}

type WorkOrder struct {
	ID          string `json:"id"`
	ShopID      string `json:"shop_id"`
	CustomerRef string `json:"customer_ref"`
	VehicleRef  string `json:"vehicle_ref"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
	CreatedAt   string `json:"created_at"`
}

type WorkOrderLine struct {
	ID            string  `json:"id"`
	WorkOrderID   string  `json:"work_order_id"`
	ShopID        string  `json:"shop_id"`
	Description   string  `json:"description"`
	Status        string  `json:"status"`
	LineStatus    *string `json:"line_status"`
	ApprovalState string  `json:"approval_state"`
	Notes         string  `json:"notes"`
	ApprovalAt    *string `json:"approval_at"`
	ApprovalBy    string  `json:"approval_by"`
	CreatedAt     string  `json:"created_at"`
}

type PartRequest struct {
	ID          string            `json:"id"`
	ShopID      string            `json:"shop_id"`
	WorkOrderID string            `json:"work_order_id"`
	Status      string            `json:"status"`
	CreatedAt   string            `json:"created_at"`
	Items       []PartRequestItem `json:"items,omitempty"`
}

type PartRequestItem struct {
	ID              string  `json:"id"`
	RequestID       string  `json:"request_id"`
	ShopID          string  `json:"shop_id"`
	WorkOrderLineID string  `json:"work_order_line_id"`
	PartID          string  `json:"part_id"`
	Description     string  `json:"description"`
	QtyRequested    float64 `json:"qty_requested"`
	QtyApproved     float64 `json:"qty_approved"`
	QtyReserved     float64 `json:"qty_reserved"`
	QtyReceived     float64 `json:"qty_received"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
}

// Target is the receiving ceiling: approved qty when recorded, else requested.
func (i PartRequestItem) Target() float64 {
	if i.QtyApproved > 0 {
		return i.QtyApproved
	}
	return i.QtyRequested
}

// Remaining is target minus received, floored at zero.
func (i PartRequestItem) Remaining() float64 {
	rem := i.Target() - i.QtyReceived
	if rem < 0 {
		return 0
	}
	return rem
}

type PartAllocation struct {
	ID              int     `json:"id"`
	WorkOrderID     string  `json:"work_order_id"`
	WorkOrderLineID string  `json:"work_order_line_id"`
	ShopID          string  `json:"shop_id"`
	PartID          string  `json:"part_id"`
	LocationID      string  `json:"location_id"`
	Qty             float64 `json:"qty"`
	UnitCost        float64 `json:"unit_cost"`
	CreatedAt       string  `json:"created_at"`
}

type PurchaseOrder struct {
	ID           string              `json:"id"`
	ShopID       string              `json:"shop_id"`
	SupplierID   string              `json:"supplier_id"`
	Status       string              `json:"status"`
	Notes        string              `json:"notes"`
	Total        float64             `json:"total"`
	CreatedBy    string              `json:"created_by"`
	CreatedAt    string              `json:"created_at"`
	ExpectedDate string              `json:"expected_date"`
	ReceivedAt   *string             `json:"received_at"`
	Items        []PurchaseOrderItem `json:"items,omitempty"`
}

type PurchaseOrderItem struct {
	ID          int     `json:"id"`
	POID        string  `json:"po_id"`
	PartID      string  `json:"part_id"`
	Description string  `json:"description"`
	QtyOrdered  float64 `json:"qty_ordered"`
	QtyReceived float64 `json:"qty_received"`
	UnitCost    float64 `json:"unit_cost"`
	LocationID  string  `json:"location_id"`
}

type ReceiptEvent struct {
	ID         string  `json:"id"`
	ItemID     string  `json:"item_id"`
	LocationID string  `json:"location_id"`
	POID       string  `json:"po_id"`
	Qty        float64 `json:"qty"`
	CreatedBy  string  `json:"created_by"`
	CreatedAt  string  `json:"created_at"`
}

type AuditEntry struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	ShopID      string `json:"shop_id"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
}
