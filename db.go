package main

import (
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var db *sql.DB

func initDB(path string) error {
	// Close previous connection if any (prevents goroutine leaks in tests)
	if db != nil {
		db.Close()
	}
	var err error
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err = sql.Open("sqlite", path+sep+"_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=1")
	if err != nil {
		return err
	}

	// SQLite handles 1 writer + multiple readers with WAL mode
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	// Explicitly set WAL mode (some drivers don't parse connection string params correctly)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	return runMigrations()
}

func runMigrations() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS shops (
			id TEXT PRIMARY KEY, name TEXT NOT NULL,
			default_location_id TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			display_name TEXT DEFAULT '',
			role TEXT DEFAULT 'viewer' CHECK(role IN ('admin','service_advisor','parts','viewer')),
			shop_id TEXT DEFAULT '',
			active INTEGER DEFAULT 1,
			last_login TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT DEFAULT 'system',
			action TEXT NOT NULL,
			module TEXT NOT NULL,
			record_id TEXT NOT NULL,
			summary TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS suppliers (
			id TEXT PRIMARY KEY, shop_id TEXT DEFAULT '', name TEXT NOT NULL,
			contact_name TEXT DEFAULT '', contact_email TEXT DEFAULT '', contact_phone TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			status TEXT DEFAULT 'active' CHECK(status IN ('active','inactive')),
			lead_time_days INTEGER DEFAULT 0 CHECK(lead_time_days >= 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS parts (
			id TEXT PRIMARY KEY, shop_id TEXT DEFAULT '',
			sku TEXT NOT NULL, name TEXT DEFAULT '', description TEXT DEFAULT '',
			default_supplier_id TEXT DEFAULT '',
			unit_cost REAL DEFAULT 0 CHECK(unit_cost >= 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(shop_id, sku)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_locations (
			id TEXT PRIMARY KEY, shop_id TEXT NOT NULL,
			code TEXT NOT NULL, name TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(shop_id, code)
		)`,
		`CREATE TABLE IF NOT EXISTS part_stock (
			part_id TEXT NOT NULL, location_id TEXT NOT NULL,
			qty_on_hand REAL DEFAULT 0 CHECK(qty_on_hand >= 0),
			qty_reserved REAL DEFAULT 0 CHECK(qty_reserved >= 0 AND qty_reserved <= qty_on_hand),
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (part_id, location_id)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			part_id TEXT NOT NULL, location_id TEXT NOT NULL,
			type TEXT NOT NULL CHECK(type IN ('receive','issue','adjust','reserve','release')),
			qty REAL NOT NULL,
			reference TEXT DEFAULT '', notes TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS work_orders (
			id TEXT PRIMARY KEY, shop_id TEXT NOT NULL,
			customer_ref TEXT DEFAULT '', vehicle_ref TEXT DEFAULT '',
			status TEXT DEFAULT 'open' CHECK(status IN ('open','in_progress','completed','invoiced','closed')),
			notes TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS work_order_lines (
			id TEXT PRIMARY KEY,
			work_order_id TEXT, shop_id TEXT,
			description TEXT DEFAULT '',
			status TEXT DEFAULT 'awaiting',
			line_status TEXT,
			approval_state TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			approval_at DATETIME, approval_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS part_requests (
			id TEXT PRIMARY KEY, shop_id TEXT DEFAULT '', work_order_id TEXT DEFAULT '',
			status TEXT DEFAULT 'open',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS part_request_items (
			id TEXT PRIMARY KEY, request_id TEXT DEFAULT '', shop_id TEXT DEFAULT '',
			work_order_line_id TEXT DEFAULT '', part_id TEXT,
			description TEXT DEFAULT '',
			qty_requested REAL DEFAULT 0 CHECK(qty_requested >= 0),
			qty_approved REAL DEFAULT 0 CHECK(qty_approved >= 0),
			qty_reserved REAL DEFAULT 0 CHECK(qty_reserved >= 0),
			qty_received REAL DEFAULT 0 CHECK(qty_received >= 0),
			status TEXT DEFAULT 'approved' CHECK(status IN ('approved','reserved','ordered','picking','picked','partially_received','received')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS work_order_part_allocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_order_id TEXT NOT NULL, work_order_line_id TEXT NOT NULL, shop_id TEXT NOT NULL,
			part_id TEXT NOT NULL, location_id TEXT NOT NULL,
			qty REAL NOT NULL CHECK(qty > 0),
			unit_cost REAL DEFAULT 0 CHECK(unit_cost >= 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_orders (
			id TEXT PRIMARY KEY, shop_id TEXT DEFAULT '', supplier_id TEXT DEFAULT '',
			status TEXT DEFAULT 'draft' CHECK(status IN ('draft','submitted','partial','received','cancelled')),
			notes TEXT DEFAULT '',
			total REAL DEFAULT 0,
			created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expected_date TEXT DEFAULT '',
			received_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_order_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			po_id TEXT NOT NULL,
			part_id TEXT DEFAULT '', description TEXT DEFAULT '',
			qty_ordered REAL NOT NULL CHECK(qty_ordered > 0),
			qty_received REAL DEFAULT 0 CHECK(qty_received >= 0),
			unit_cost REAL DEFAULT 0 CHECK(unit_cost >= 0),
			location_id TEXT DEFAULT '',
			FOREIGN KEY (po_id) REFERENCES purchase_orders(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS receipt_events (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL, location_id TEXT NOT NULL,
			po_id TEXT DEFAULT '',
			qty REAL NOT NULL CHECK(qty > 0),
			created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, t := range tables {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_stock_locations_shop ON stock_locations(shop_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_allocations_line ON work_order_part_allocations(work_order_line_id)`,
		`CREATE INDEX IF NOT EXISTS idx_po_items_po ON purchase_order_items(po_id)`,
		`CREATE INDEX IF NOT EXISTS idx_request_items_request ON part_request_items(request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_receipt_events_item ON receipt_events(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_transactions_part ON stock_transactions(part_id, location_id)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("index migration: %w", err)
		}
	}
	return nil
}

func seedDB() {
	// Always ensure admin user exists
	var userCount int
	db.QueryRow("SELECT COUNT(*) FROM users WHERE username = 'admin'").Scan(&userCount)
	if userCount == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("Failed to hash admin password: %v", err)
		} else {
			db.Exec("INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
				"admin", string(hash), "Administrator", "admin")
		}
	}

	for _, u := range []struct{ username, display, role string }{
		{"advisor", "Service Advisor", "service_advisor"},
		{"counter", "Parts Counter", "parts"},
		{"viewer", "Viewer", "viewer"},
	} {
		var n int
		db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", u.username).Scan(&n)
		if n == 0 {
			hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
			if err == nil {
				db.Exec("INSERT INTO users (username, password_hash, display_name, role, active) VALUES (?, ?, ?, ?, 1)",
					u.username, string(hash), u.display, u.role)
			}
		}
	}

	var shopCount int
	db.QueryRow("SELECT COUNT(*) FROM shops").Scan(&shopCount)
	if shopCount > 0 {
		return
	}

	db.Exec("INSERT INTO shops (id, name) VALUES ('SHOP-001', 'Main Street Auto')")
	db.Exec("INSERT INTO stock_locations (id, shop_id, code, name) VALUES ('LOC-0001', 'SHOP-001', 'MAIN', 'Main')")
	db.Exec("UPDATE shops SET default_location_id='LOC-0001' WHERE id='SHOP-001'")

	db.Exec(`INSERT INTO suppliers (id, shop_id, name, contact_email, lead_time_days) VALUES
		('SUP-0001', 'SHOP-001', 'NorthStar Parts Co', 'orders@northstarparts.example', 3),
		('SUP-0002', 'SHOP-001', 'Bayview Auto Supply', 'sales@bayviewauto.example', 5)`)

	db.Exec(`INSERT INTO parts (id, shop_id, sku, name, default_supplier_id, unit_cost) VALUES
		('PRT-0001', 'SHOP-001', 'BRK-PAD-F', 'Front brake pad set', 'SUP-0001', 42.50),
		('PRT-0002', 'SHOP-001', 'OIL-FLT-01', 'Oil filter', 'SUP-0001', 6.80),
		('PRT-0003', 'SHOP-001', 'WPR-BLD-22', '22in wiper blade', '', 9.25)`)

	db.Exec(`INSERT INTO part_stock (part_id, location_id, qty_on_hand, qty_reserved) VALUES
		('PRT-0001', 'LOC-0001', 8, 0),
		('PRT-0002', 'LOC-0001', 24, 0)`)

	db.Exec(`INSERT INTO work_orders (id, shop_id, customer_ref, vehicle_ref) VALUES
		('WO-0001', 'SHOP-001', 'C-1042', '2018 Subaru Outback')`)
	db.Exec(`INSERT INTO work_order_lines (id, work_order_id, shop_id, description) VALUES
		('WOL-0001', 'WO-0001', 'SHOP-001', 'Front brake service')`)

	db.Exec(`INSERT INTO part_requests (id, shop_id, work_order_id) VALUES ('REQ-0001', 'SHOP-001', 'WO-0001')`)
	db.Exec(`INSERT INTO part_request_items (id, request_id, shop_id, work_order_line_id, part_id, description, qty_requested, qty_approved) VALUES
		('RQI-0001', 'REQ-0001', 'SHOP-001', 'WOL-0001', 'PRT-0001', 'Front brake pad set', 2, 2)`)
}

// ID generation helpers
func nextID(prefix string, table string, digits int) string {
	year := time.Now().Format("2006")
	pattern := prefix + "-" + year + "-%"
	var maxID sql.NullString
	db.QueryRow("SELECT id FROM "+table+" WHERE id LIKE ? ORDER BY id DESC LIMIT 1", pattern).Scan(&maxID)

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

func ns(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func sp(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}
