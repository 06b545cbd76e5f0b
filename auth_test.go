package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"partsdesk/internal/audit"
	"partsdesk/internal/config"
	"partsdesk/internal/testutil"

	_ "modernc.org/sqlite"
)

func setupMainTest(t *testing.T) {
	t.Helper()
	cfg = config.Default()
	if err := initDB(":memory:"); err != nil {
		t.Fatalf("Failed to init test DB: %v", err)
	}
	seedDB()
	t.Cleanup(func() { db.Close() })
}

func doLogin(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest("POST", "/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handleLogin(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == audit.SessionCookie {
			return c
		}
	}
	return nil
}

func TestLoginSuccess(t *testing.T) {
	setupMainTest(t)

	w := doLogin(t, "admin", "changeme")
	testutil.AssertStatus(t, w, 200)

	cookie := sessionCookie(w)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("Expected session cookie on login")
	}

	var resp struct {
		User UserResponse `json:"user"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.User.Username != "admin" || resp.User.Role != "admin" {
		t.Errorf("Unexpected user payload: %+v", resp.User)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	setupMainTest(t)
	w := doLogin(t, "admin", "wrong")
	testutil.AssertStatus(t, w, 401)
	if sessionCookie(w) != nil {
		t.Error("No cookie expected on failed login")
	}
}

func TestMeAndLogout(t *testing.T) {
	setupMainTest(t)

	login := doLogin(t, "counter", "changeme")
	testutil.AssertStatus(t, login, 200)
	cookie := sessionCookie(login)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	handleMe(w, req)
	testutil.AssertStatus(t, w, 200)

	var resp struct {
		User UserResponse `json:"user"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.User.Role != "parts" {
		t.Errorf("Expected parts role, got %s", resp.User.Role)
	}

	req = httptest.NewRequest("POST", "/auth/logout", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	handleLogout(w, req)
	testutil.AssertStatus(t, w, 200)

	req = httptest.NewRequest("GET", "/auth/me", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	handleMe(w, req)
	testutil.AssertStatus(t, w, 401)
}

func TestRequireAuthRejectsAnonymousAPI(t *testing.T) {
	setupMainTest(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})
	req := httptest.NewRequest("GET", "/api/v1/stock", nil)
	w := httptest.NewRecorder()
	requireAuth(inner).ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 401)
}

func TestViewerIsReadOnly(t *testing.T) {
	setupMainTest(t)

	reached := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(200)
	})
	chain := requireAuth(requireRole(inner))

	login := doLogin(t, "viewer", "changeme")
	cookie := sessionCookie(login)

	// Reads pass
	req := httptest.NewRequest("GET", "/api/v1/stock", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 200)

	// Mutations are forbidden
	reached = false
	req = httptest.NewRequest("POST", "/api/v1/stock/transact", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	chain.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 403)
	if reached {
		t.Error("Viewer mutation must not reach the handler")
	}
}

func TestPartsRoleCanMutate(t *testing.T) {
	setupMainTest(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})
	chain := requireAuth(requireRole(inner))

	login := doLogin(t, "counter", "changeme")
	cookie := sessionCookie(login)

	req := httptest.NewRequest("POST", "/api/v1/part-request-items/RQI-0001/receive", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 200)
}

func TestInactiveUserRejected(t *testing.T) {
	setupMainTest(t)

	login := doLogin(t, "advisor", "changeme")
	cookie := sessionCookie(login)
	db.Exec("UPDATE users SET active=0 WHERE username='advisor'")

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})
	req := httptest.NewRequest("GET", "/api/v1/stock", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	requireAuth(inner).ServeHTTP(w, req)
	testutil.AssertStatus(t, w, 403)
}
