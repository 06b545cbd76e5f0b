package procurement

import (
	"net/http"
	"time"

	"partsdesk/internal/audit"
	"partsdesk/internal/models"
	"partsdesk/internal/response"
	"partsdesk/internal/validation"
)

// ListSuppliers returns all suppliers, optionally filtered by shop.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	query := "SELECT id,COALESCE(shop_id,''),name,COALESCE(contact_name,''),COALESCE(contact_email,''),COALESCE(contact_phone,''),COALESCE(notes,''),status,lead_time_days,created_at FROM suppliers"
	var args []interface{}
	if shop := r.URL.Query().Get("shop_id"); shop != "" {
		query += " WHERE shop_id=?"
		args = append(args, shop)
	}
	query += " ORDER BY name"
	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var items []models.Supplier
	for rows.Next() {
		var s models.Supplier
		rows.Scan(&s.ID, &s.ShopID, &s.Name, &s.ContactName, &s.ContactEmail, &s.ContactPhone, &s.Notes, &s.Status, &s.LeadTimeDays, &s.CreatedAt)
		items = append(items, s)
	}
	if items == nil {
		items = []models.Supplier{}
	}
	response.JSON(w, items)
}

// GetSupplier returns a single supplier by ID.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request, id string) {
	var s models.Supplier
	err := h.DB.QueryRow("SELECT id,COALESCE(shop_id,''),name,COALESCE(contact_name,''),COALESCE(contact_email,''),COALESCE(contact_phone,''),COALESCE(notes,''),status,lead_time_days,created_at FROM suppliers WHERE id=?", id).
		Scan(&s.ID, &s.ShopID, &s.Name, &s.ContactName, &s.ContactEmail, &s.ContactPhone, &s.Notes, &s.Status, &s.LeadTimeDays, &s.CreatedAt)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	response.JSON(w, s)
}

// CreateSupplier creates a new supplier.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var s models.Supplier
	if err := response.DecodeBody(r, &s); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", s.Name)
	validation.ValidateMaxLength(ve, "name", s.Name, 255)
	validation.ValidateMaxLength(ve, "contact_name", s.ContactName, 255)
	validation.ValidateMaxLength(ve, "contact_phone", s.ContactPhone, 50)
	validation.ValidateMaxLength(ve, "notes", s.Notes, validation.MaxStringLength)
	validation.ValidateEmail(ve, "contact_email", s.ContactEmail)
	if s.Status != "" {
		validation.ValidateEnum(ve, "status", s.Status, validation.ValidSupplierStatuses)
	}
	validation.ValidateIntRange(ve, "lead_time_days", s.LeadTimeDays, 0, validation.MaxLeadTimeDays)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	s.ID = h.NextIDFunc("SUP", "suppliers", 4)
	if s.Status == "" {
		s.Status = "active"
	}
	now := time.Now().Format("2006-01-02 15:04:05")
	_, err := h.DB.Exec("INSERT INTO suppliers (id,shop_id,name,contact_name,contact_email,contact_phone,notes,status,lead_time_days,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)",
		s.ID, s.ShopID, s.Name, s.ContactName, s.ContactEmail, s.ContactPhone, s.Notes, s.Status, s.LeadTimeDays, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	s.CreatedAt = now
	audit.LogAudit(h.DB, h.Hub, audit.GetUsername(h.DB, r), "created", "supplier", s.ID, "Created supplier "+s.Name)
	response.JSON(w, s)
}

// UpdateSupplier updates an existing supplier.
func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request, id string) {
	var s models.Supplier
	if err := response.DecodeBody(r, &s); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", s.Name)
	validation.ValidateEmail(ve, "contact_email", s.ContactEmail)
	if s.Status != "" {
		validation.ValidateEnum(ve, "status", s.Status, validation.ValidSupplierStatuses)
	}
	validation.ValidateIntRange(ve, "lead_time_days", s.LeadTimeDays, 0, validation.MaxLeadTimeDays)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	res, err := h.DB.Exec("UPDATE suppliers SET name=?,contact_name=?,contact_email=?,contact_phone=?,notes=?,status=?,lead_time_days=? WHERE id=?",
		s.Name, s.ContactName, s.ContactEmail, s.ContactPhone, s.Notes, s.Status, s.LeadTimeDays, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "not found", 404)
		return
	}
	audit.LogAudit(h.DB, h.Hub, audit.GetUsername(h.DB, r), "updated", "supplier", id, "Updated supplier "+id)
	h.GetSupplier(w, r, id)
}
