package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"partsdesk/internal/audit"
	"partsdesk/internal/auth"
	"partsdesk/internal/server"
)

func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Exempt paths
		if path == "/auth/login" ||
			path == "/auth/logout" ||
			path == "/auth/me" {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(audit.SessionCookie)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(401)
			json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized", "code": "UNAUTHORIZED"})
			return
		}

		var userID int
		var username, role, shopID string
		var active int
		err = db.QueryRow(`SELECT s.user_id, u.username, u.role, COALESCE(u.shop_id,''), u.active
			FROM sessions s JOIN users u ON s.user_id = u.id
			WHERE s.token = ? AND s.expires_at > CURRENT_TIMESTAMP`, cookie.Value).
			Scan(&userID, &username, &role, &shopID, &active)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(401)
			json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized", "code": "UNAUTHORIZED"})
			return
		}

		if active == 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(403)
			json.NewEncoder(w).Encode(map[string]string{"error": "Account deactivated", "code": "FORBIDDEN"})
			return
		}

		// Sliding window: extend session expiry on each authenticated request
		newExpiry := time.Now().Add(time.Duration(cfg.SessionHours) * time.Hour)
		db.Exec("UPDATE sessions SET expires_at = ?, last_activity = CURRENT_TIMESTAMP WHERE token = ?",
			newExpiry.Format("2006-01-02 15:04:05"), cookie.Value)

		http.SetCookie(w, &http.Cookie{
			Name:     audit.SessionCookie,
			Value:    cookie.Value,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Expires:  newExpiry,
		})

		ctx := context.WithValue(r.Context(), server.CtxUserID, userID)
		ctx = context.WithValue(ctx, server.CtxUsername, username)
		ctx = context.WithValue(ctx, server.CtxRole, role)
		ctx = context.WithValue(ctx, server.CtxShopID, shopID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole enforces role-based access on /api/v1/ routes. Viewers get
// read-only access; fulfillment mutations need a shop staff role.
func requireRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if !strings.HasPrefix(path, "/api/v1/") || r.Method == "GET" {
			next.ServeHTTP(w, r)
			return
		}

		role, _ := r.Context().Value(server.CtxRole).(string)
		if auth.IsAdmin(role) {
			next.ServeHTTP(w, r)
			return
		}

		if !auth.CanFulfill(role) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(403)
			json.NewEncoder(w).Encode(map[string]string{"error": "Read-only access", "code": "FORBIDDEN"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
