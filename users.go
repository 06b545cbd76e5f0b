package main

import (
	"encoding/json"
	"net/http"

	"partsdesk/internal/audit"
	"partsdesk/internal/auth"
	"partsdesk/internal/response"
	"partsdesk/internal/validation"
	"partsdesk/internal/websocket"
)

// User management is admin-only regardless of the general write gate.

func handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(audit.GetUserRole(db, r)) {
		response.Err(w, "Admin access required", 403)
		return
	}

	rows, err := db.Query("SELECT id, username, display_name, role, COALESCE(shop_id,''), active FROM users ORDER BY username")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	type userRow struct {
		ID          int    `json:"id"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
		ShopID      string `json:"shop_id"`
		Active      int    `json:"active"`
	}
	var users []userRow
	for rows.Next() {
		var u userRow
		rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &u.ShopID, &u.Active)
		users = append(users, u)
	}
	if users == nil {
		users = []userRow{}
	}
	response.JSON(w, users)
}

func handleCreateUser(w http.ResponseWriter, r *http.Request, hub *websocket.Hub) {
	if !auth.IsAdmin(audit.GetUserRole(db, r)) {
		response.Err(w, "Admin access required", 403)
		return
	}

	var body struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
		ShopID      string `json:"shop_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", body.Username)
	validation.ValidateMaxLength(ve, "username", body.Username, 64)
	validation.RequireField(ve, "role", body.Role)
	validation.ValidateEnum(ve, "role", body.Role, validation.ValidRoles)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if err := auth.ValidatePasswordStrength(body.Password); err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	res, err := db.Exec("INSERT INTO users (username, password_hash, display_name, role, shop_id, active) VALUES (?, ?, ?, ?, ?, 1)",
		body.Username, hash, body.DisplayName, body.Role, body.ShopID)
	if err != nil {
		response.Err(w, "username already exists", 409)
		return
	}
	id, _ := res.LastInsertId()

	audit.LogAudit(db, hub, audit.GetUsername(db, r), "created", "user", body.Username, "Created user "+body.Username)
	response.JSON(w, UserResponse{ID: int(id), Username: body.Username, DisplayName: body.DisplayName, Role: body.Role, ShopID: body.ShopID})
}
