package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"partsdesk/internal/models"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// SetupTestDB creates a standard in-memory SQLite database for testing
// with foreign keys enabled and common tables created.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}

	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	CreateTables(t, testDB)
	seedAdminUser(t, testDB)

	return testDB
}

// SetupSharedTestDB opens a shared-cache in-memory database that supports
// multiple concurrent connections. Used by concurrency tests.
func SetupSharedTestDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	dsn := "file:" + name + "?mode=memory&cache=shared&_journal_mode=WAL&_busy_timeout=10000"
	testDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("Failed to open shared test DB: %v", err)
	}
	if _, err := testDB.Exec("PRAGMA busy_timeout=10000"); err != nil {
		t.Fatalf("Failed to set busy_timeout: %v", err)
	}
	CreateTables(t, testDB)
	seedAdminUser(t, testDB)
	return testDB
}

// CreateTables creates the full application schema on the given database.
func CreateTables(t *testing.T, db *sql.DB) {
	t.Helper()
	tables := []struct {
		name string
		ddl  string
	}{
		{"shops", `CREATE TABLE IF NOT EXISTS shops (
			id TEXT PRIMARY KEY, name TEXT NOT NULL,
			default_location_id TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
		{"users", `CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			display_name TEXT DEFAULT '',
			role TEXT DEFAULT 'viewer' CHECK(role IN ('admin','service_advisor','parts','viewer')),
			shop_id TEXT DEFAULT '',
			active INTEGER DEFAULT 1,
			last_login TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`},
		{"sessions", `CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`},
		{"audit_log", `CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT DEFAULT 'system',
			action TEXT NOT NULL,
			module TEXT NOT NULL,
			record_id TEXT NOT NULL,
			summary TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
		{"suppliers", `CREATE TABLE IF NOT EXISTS suppliers (
			id TEXT PRIMARY KEY, shop_id TEXT DEFAULT '', name TEXT NOT NULL,
			contact_name TEXT DEFAULT '', contact_email TEXT DEFAULT '', contact_phone TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			status TEXT DEFAULT 'active' CHECK(status IN ('active','inactive')),
			lead_time_days INTEGER DEFAULT 0 CHECK(lead_time_days >= 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
		{"parts", `CREATE TABLE IF NOT EXISTS parts (
			id TEXT PRIMARY KEY, shop_id TEXT DEFAULT '',
			sku TEXT NOT NULL, name TEXT DEFAULT '', description TEXT DEFAULT '',
			default_supplier_id TEXT DEFAULT '',
			unit_cost REAL DEFAULT 0 CHECK(unit_cost >= 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(shop_id, sku)
		)`},
		{"stock_locations", `CREATE TABLE IF NOT EXISTS stock_locations (
			id TEXT PRIMARY KEY, shop_id TEXT NOT NULL,
			code TEXT NOT NULL, name TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(shop_id, code)
		)`},
		{"part_stock", `CREATE TABLE IF NOT EXISTS part_stock (
			part_id TEXT NOT NULL, location_id TEXT NOT NULL,
			qty_on_hand REAL DEFAULT 0 CHECK(qty_on_hand >= 0),
			qty_reserved REAL DEFAULT 0 CHECK(qty_reserved >= 0 AND qty_reserved <= qty_on_hand),
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (part_id, location_id)
		)`},
		{"stock_transactions", `CREATE TABLE IF NOT EXISTS stock_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			part_id TEXT NOT NULL, location_id TEXT NOT NULL,
			type TEXT NOT NULL CHECK(type IN ('receive','issue','adjust','reserve','release')),
			qty REAL NOT NULL,
			reference TEXT DEFAULT '', notes TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
		{"work_orders", `CREATE TABLE IF NOT EXISTS work_orders (
			id TEXT PRIMARY KEY, shop_id TEXT NOT NULL,
			customer_ref TEXT DEFAULT '', vehicle_ref TEXT DEFAULT '',
			status TEXT DEFAULT 'open' CHECK(status IN ('open','in_progress','completed','invoiced','closed')),
			notes TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
		{"work_order_lines", `CREATE TABLE IF NOT EXISTS work_order_lines (
			id TEXT PRIMARY KEY,
			work_order_id TEXT, shop_id TEXT,
			description TEXT DEFAULT '',
			status TEXT DEFAULT 'awaiting',
			line_status TEXT,
			approval_state TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			approval_at DATETIME, approval_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
		{"part_requests", `CREATE TABLE IF NOT EXISTS part_requests (
			id TEXT PRIMARY KEY, shop_id TEXT DEFAULT '', work_order_id TEXT DEFAULT '',
			status TEXT DEFAULT 'open',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
		{"part_request_items", `CREATE TABLE IF NOT EXISTS part_request_items (
			id TEXT PRIMARY KEY, request_id TEXT DEFAULT '', shop_id TEXT DEFAULT '',
			work_order_line_id TEXT DEFAULT '', part_id TEXT,
			description TEXT DEFAULT '',
			qty_requested REAL DEFAULT 0 CHECK(qty_requested >= 0),
			qty_approved REAL DEFAULT 0 CHECK(qty_approved >= 0),
			qty_reserved REAL DEFAULT 0 CHECK(qty_reserved >= 0),
			qty_received REAL DEFAULT 0 CHECK(qty_received >= 0),
			status TEXT DEFAULT 'approved' CHECK(status IN ('approved','reserved','ordered','picking','picked','partially_received','received')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
		{"work_order_part_allocations", `CREATE TABLE IF NOT EXISTS work_order_part_allocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_order_id TEXT NOT NULL, work_order_line_id TEXT NOT NULL, shop_id TEXT NOT NULL,
			part_id TEXT NOT NULL, location_id TEXT NOT NULL,
			qty REAL NOT NULL CHECK(qty > 0),
			unit_cost REAL DEFAULT 0 CHECK(unit_cost >= 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
		{"purchase_orders", `CREATE TABLE IF NOT EXISTS purchase_orders (
			id TEXT PRIMARY KEY, shop_id TEXT DEFAULT '', supplier_id TEXT DEFAULT '',
			status TEXT DEFAULT 'draft' CHECK(status IN ('draft','submitted','partial','received','cancelled')),
			notes TEXT DEFAULT '',
			total REAL DEFAULT 0,
			created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expected_date TEXT DEFAULT '',
			received_at DATETIME
		)`},
		{"purchase_order_items", `CREATE TABLE IF NOT EXISTS purchase_order_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			po_id TEXT NOT NULL,
			part_id TEXT DEFAULT '', description TEXT DEFAULT '',
			qty_ordered REAL NOT NULL CHECK(qty_ordered > 0),
			qty_received REAL DEFAULT 0 CHECK(qty_received >= 0),
			unit_cost REAL DEFAULT 0 CHECK(unit_cost >= 0),
			location_id TEXT DEFAULT '',
			FOREIGN KEY (po_id) REFERENCES purchase_orders(id) ON DELETE CASCADE
		)`},
		{"receipt_events", `CREATE TABLE IF NOT EXISTS receipt_events (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL, location_id TEXT NOT NULL,
			po_id TEXT DEFAULT '',
			qty REAL NOT NULL CHECK(qty > 0),
			created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
	}

	for _, tbl := range tables {
		if _, err := db.Exec(tbl.ddl); err != nil {
			t.Fatalf("Failed to create %s table: %v", tbl.name, err)
		}
	}
}

func seedAdminUser(t *testing.T, db *sql.DB) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("Failed to hash admin password: %v", err)
	}
	_, err = db.Exec(`INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)`,
		"admin", string(hash), "Administrator", "admin")
	if err != nil {
		t.Fatalf("Failed to create default admin user: %v", err)
	}
}

// SeedShop inserts a shop and its default stock location.
func SeedShop(t *testing.T, db *sql.DB, shopID, locationID string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO shops (id, name, default_location_id) VALUES (?, ?, ?)",
		shopID, "Test Shop "+shopID, locationID); err != nil {
		t.Fatalf("Failed to seed shop: %v", err)
	}
	if locationID != "" {
		if _, err := db.Exec("INSERT INTO stock_locations (id, shop_id, code, name) VALUES (?, ?, 'MAIN', 'Main')",
			locationID, shopID); err != nil {
			t.Fatalf("Failed to seed location: %v", err)
		}
	}
}

// SeedSupplier inserts an active supplier.
func SeedSupplier(t *testing.T, db *sql.DB, id, shopID, name string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO suppliers (id, shop_id, name) VALUES (?, ?, ?)", id, shopID, name); err != nil {
		t.Fatalf("Failed to seed supplier: %v", err)
	}
}

// SeedPart inserts a part master record.
func SeedPart(t *testing.T, db *sql.DB, id, shopID, sku, defaultSupplierID string, unitCost float64) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO parts (id, shop_id, sku, name, default_supplier_id, unit_cost) VALUES (?, ?, ?, ?, ?, ?)",
		id, shopID, sku, sku, defaultSupplierID, unitCost); err != nil {
		t.Fatalf("Failed to seed part: %v", err)
	}
}

// SeedStock inserts a stock row for a part at a location.
func SeedStock(t *testing.T, db *sql.DB, partID, locationID string, onHand, reserved float64) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO part_stock (part_id, location_id, qty_on_hand, qty_reserved) VALUES (?, ?, ?, ?)",
		partID, locationID, onHand, reserved); err != nil {
		t.Fatalf("Failed to seed stock: %v", err)
	}
}

// SeedWorkOrderLine inserts a work order and one line against it.
func SeedWorkOrderLine(t *testing.T, db *sql.DB, woID, lineID, shopID string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO work_orders (id, shop_id) VALUES (?, ?)", woID, shopID); err != nil {
		t.Fatalf("Failed to seed work order: %v", err)
	}
	if _, err := db.Exec("INSERT INTO work_order_lines (id, work_order_id, shop_id, description) VALUES (?, ?, ?, 'Test line')",
		lineID, woID, shopID); err != nil {
		t.Fatalf("Failed to seed work order line: %v", err)
	}
}

// SeedRequestItem inserts a part request item awaiting receipt.
func SeedRequestItem(t *testing.T, db *sql.DB, itemID, shopID, partID string, requested, approved float64) {
	t.Helper()
	var pid interface{}
	if partID != "" {
		pid = partID
	}
	if _, err := db.Exec(`INSERT INTO part_request_items (id, shop_id, part_id, description, qty_requested, qty_approved, status)
		VALUES (?, ?, ?, 'Test item', ?, ?, 'ordered')`, itemID, shopID, pid, requested, approved); err != nil {
		t.Fatalf("Failed to seed request item: %v", err)
	}
}

// CreateTestUser creates a test user with the given credentials.
func CreateTestUser(t *testing.T, db *sql.DB, username, password, role string, active bool) int {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	activeInt := 0
	if active {
		activeInt = 1
	}

	result, err := db.Exec(
		"INSERT INTO users (username, password_hash, display_name, role, active) VALUES (?, ?, ?, ?, ?)",
		username, string(hash), username+" Display", role, activeInt,
	)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	id, _ := result.LastInsertId()
	return int(id)
}

// CreateTestSessionSimple creates a session token for the given user with default 24h expiry.
func CreateTestSessionSimple(t *testing.T, db *sql.DB, userID int) string {
	t.Helper()
	token := "test-session-token-" + time.Now().Format("20060102150405.000000")
	expiresAt := time.Now().Add(24 * time.Hour)

	_, err := db.Exec(
		"INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expiresAt.Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}

	return token
}

// LoginAdmin returns a session token for the default admin user.
func LoginAdmin(t *testing.T, db *sql.DB) string {
	t.Helper()
	var adminID int
	err := db.QueryRow("SELECT id FROM users WHERE username = 'admin'").Scan(&adminID)
	if err != nil {
		t.Fatalf("Failed to find admin user: %v", err)
	}
	return CreateTestSessionSimple(t, db, adminID)
}

// LoginUser creates a user with the given role and returns their session token.
func LoginUser(t *testing.T, db *sql.DB, username, role string) string {
	t.Helper()
	userID := CreateTestUser(t, db, username, "password", role, true)
	return CreateTestSessionSimple(t, db, userID)
}

// AuthedRequest creates an authenticated HTTP request with a session cookie.
func AuthedRequest(method, path string, body []byte, sessionToken string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "partsdesk_session", Value: sessionToken})
	}

	return req
}

// AuthedJSONRequest creates an authenticated HTTP request with JSON content type.
func AuthedJSONRequest(method, path string, body interface{}, sessionToken string) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}

	req := AuthedRequest(method, path, bodyBytes, sessionToken)
	req.Header.Set("Content-Type", "application/json")

	return req
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
}
