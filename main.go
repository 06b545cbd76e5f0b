package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"partsdesk/internal/config"
	"partsdesk/internal/fulfillment"
	"partsdesk/internal/handlers/common"
	"partsdesk/internal/handlers/inventory"
	"partsdesk/internal/handlers/parts"
	"partsdesk/internal/handlers/procurement"
	"partsdesk/internal/handlers/receiving"
	"partsdesk/internal/handlers/workorders"
	"partsdesk/internal/models"
	"partsdesk/internal/response"
	"partsdesk/internal/websocket"
)

var cfg config.Config

func main() {
	port := flag.Int("port", 0, "HTTP port (overrides config file)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config file)")
	cfgPath := flag.String("config", "config.yaml", "YAML config file path")
	flag.Parse()

	var err error
	cfg, err = config.Load(*cfgPath)
	if err != nil {
		log.Fatal("Config load failed:", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	if err := initDB(cfg.DBPath); err != nil {
		log.Fatal("DB init failed:", err)
	}
	seedDB()

	hub := websocket.NewHub()
	engine := &fulfillment.Engine{DB: db}

	wo := &workorders.Handler{DB: db, Hub: hub, Engine: engine}
	rcv := &receiving.Handler{DB: db, Hub: hub, Engine: engine}
	inv := &inventory.Handler{DB: db, Hub: hub, NextIDFunc: nextID}
	proc := &procurement.Handler{DB: db, Hub: hub, NextIDFunc: nextID}
	pm := &parts.Handler{DB: db, Hub: hub, NextIDFunc: nextID}
	exp := &common.Handler{DB: db}

	mux := http.NewServeMux()

	// Auth routes
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			handleLogin(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			handleLogout(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		handleMe(w, r)
	})
	mux.HandleFunc("/auth/password", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			handleChangePassword(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})

	// Live updates
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.HandleWebSocket(hub, w, r)
	})

	// API routes - using a simple router
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		seg := strings.Split(path, "/")

		switch {
		// Config
		case path == "config" && r.Method == "GET":
			response.JSON(w, map[string]string{"company_name": cfg.CompanyName})

		// Audit
		case path == "audit" && r.Method == "GET":
			handleAuditLog(w, r)

		// Users (admin only)
		case path == "users" && r.Method == "GET":
			handleListUsers(w, r)
		case path == "users" && r.Method == "POST":
			handleCreateUser(w, r, hub)

		// Work orders
		case seg[0] == "workorders" && len(seg) == 1 && r.Method == "GET":
			wo.ListWorkOrders(w, r)
		case seg[0] == "workorders" && len(seg) == 2 && r.Method == "GET":
			wo.GetWorkOrder(w, r, seg[1])

		// Work order lines
		case seg[0] == "workorder-lines" && len(seg) == 3 && seg[2] == "approve-parts" && r.Method == "POST":
			wo.ApproveParts(w, r, seg[1])
		case seg[0] == "workorder-lines" && len(seg) == 3 && seg[2] == "allocations" && r.Method == "GET":
			wo.ListLineAllocations(w, r, seg[1])
		case seg[0] == "workorder-lines" && len(seg) == 2 && r.Method == "GET":
			wo.GetLine(w, r, seg[1])

		// Part requests
		case seg[0] == "part-requests" && len(seg) == 1 && r.Method == "GET":
			wo.ListPartRequests(w, r)
		case seg[0] == "part-requests" && len(seg) == 2 && r.Method == "GET":
			wo.GetPartRequest(w, r, seg[1])

		// Receiving
		case seg[0] == "part-request-items" && len(seg) == 3 && seg[2] == "receive" && r.Method == "POST":
			rcv.ReceiveItem(w, r, seg[1])
		case seg[0] == "part-request-items" && len(seg) == 3 && seg[2] == "receipts" && r.Method == "GET":
			rcv.ListReceipts(w, r, seg[1])
		case seg[0] == "part-request-items" && len(seg) == 2 && r.Method == "GET":
			rcv.GetItem(w, r, seg[1])
		case path == "receiving/queue" && r.Method == "GET":
			rcv.Queue(w, r)

		// Stock
		case seg[0] == "stock" && len(seg) == 2 && seg[1] == "transact" && r.Method == "POST":
			inv.Transact(w, r)
		case seg[0] == "stock" && len(seg) == 1 && r.Method == "GET":
			inv.ListStock(w, r)
		case seg[0] == "stock" && len(seg) == 4 && seg[3] == "history" && r.Method == "GET":
			inv.History(w, r, seg[1], seg[2])
		case seg[0] == "stock" && len(seg) == 3 && r.Method == "GET":
			inv.GetStock(w, r, seg[1], seg[2])

		// Locations
		case seg[0] == "locations" && len(seg) == 1 && r.Method == "GET":
			inv.ListLocations(w, r)
		case seg[0] == "locations" && len(seg) == 1 && r.Method == "POST":
			inv.CreateLocation(w, r)

		// Purchase orders
		case seg[0] == "pos" && len(seg) == 1 && r.Method == "GET":
			proc.ListPOs(w, r)
		case seg[0] == "pos" && len(seg) == 1 && r.Method == "POST":
			proc.CreatePO(w, r)
		case seg[0] == "pos" && len(seg) == 2 && r.Method == "GET":
			proc.GetPO(w, r, seg[1])
		case seg[0] == "pos" && len(seg) == 2 && r.Method == "PUT":
			proc.UpdatePO(w, r, seg[1])

		// Suppliers
		case seg[0] == "suppliers" && len(seg) == 1 && r.Method == "GET":
			proc.ListSuppliers(w, r)
		case seg[0] == "suppliers" && len(seg) == 1 && r.Method == "POST":
			proc.CreateSupplier(w, r)
		case seg[0] == "suppliers" && len(seg) == 2 && r.Method == "GET":
			proc.GetSupplier(w, r, seg[1])
		case seg[0] == "suppliers" && len(seg) == 2 && r.Method == "PUT":
			proc.UpdateSupplier(w, r, seg[1])

		// Part master
		case seg[0] == "parts" && len(seg) == 1 && r.Method == "GET":
			pm.ListParts(w, r)
		case seg[0] == "parts" && len(seg) == 1 && r.Method == "POST":
			pm.CreatePart(w, r)
		case seg[0] == "parts" && len(seg) == 2 && r.Method == "GET":
			pm.GetPart(w, r, seg[1])
		case seg[0] == "parts" && len(seg) == 2 && r.Method == "PUT":
			pm.UpdatePart(w, r, seg[1])

		// Exports
		case path == "export/stock" && r.Method == "GET":
			exp.ExportStock(w, r)
		case path == "export/pos" && r.Method == "GET":
			exp.ExportPOs(w, r)

		default:
			response.Err(w, "not found", 404)
		}
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("partsdesk server starting on http://localhost%s", addr)
	log.Fatal(http.ListenAndServe(addr, logging(requireAuth(requireRole(mux)))))
}

func handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	var total int
	db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&total)
	rows, err := db.Query(`SELECT id, username, action, module, record_id, summary, created_at
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.CreatedAt)
		entries = append(entries, e)
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	response.JSONMeta(w, entries, total, 1, limit)
}
