package audit

import (
	"database/sql"
	"log"
	"net/http"

	"partsdesk/internal/websocket"
)

// SessionCookie is the name of the session cookie set at login.
const SessionCookie = "partsdesk_session"

// LogAudit records an audited mutation and broadcasts it to connected clients.
func LogAudit(db *sql.DB, hub *websocket.Hub, username, action, module, recordID, summary string) {
	_, err := db.Exec("INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?, ?, ?, ?, ?)",
		username, action, module, recordID, summary)
	if err != nil {
		log.Printf("audit log error: %v", err)
	}
	if hub != nil {
		hub.Broadcast(websocket.Event{
			Type:   module + "_" + action + "d",
			ID:     recordID,
			Action: action,
		})
	}
}

// GetUsername extracts the username from a session cookie.
func GetUsername(db *sql.DB, r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "system"
	}
	var username string
	err = db.QueryRow("SELECT u.username FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", cookie.Value).Scan(&username)
	if err != nil {
		return "system"
	}
	return username
}

// GetUserRole returns the role of the session user, or "" when unauthenticated.
func GetUserRole(db *sql.DB, r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	var role string
	err = db.QueryRow("SELECT u.role FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", cookie.Value).Scan(&role)
	if err != nil {
		return ""
	}
	return role
}
