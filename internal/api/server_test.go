package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/convoy-ops/convoy/internal/actionstate"
	"github.com/convoy-ops/convoy/internal/alert"
	"github.com/convoy-ops/convoy/internal/auth"
	"github.com/convoy-ops/convoy/internal/config"
	"github.com/convoy-ops/convoy/internal/execute"
	"github.com/convoy-ops/convoy/internal/listener"
	"github.com/convoy-ops/convoy/internal/logging"
	"github.com/convoy-ops/convoy/internal/monitor"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/syncer"
	"github.com/convoy-ops/convoy/internal/updates"
)

// newTestServer wires a full server over a fresh store and serves it.
func newTestServer(t *testing.T) (*httptest.Server, *store.DB) {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "convoy.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logging.New(false, "error")
	cfg := config.Defaults()
	jwtProvider, err := auth.NewJWTProvider(time.Hour)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}
	authSvc := auth.NewService(db, jwtProvider)
	state := actionstate.New()
	pipeline := updates.NewPipeline(db)
	executor := execute.New(db, cfg, authSvc, state, pipeline, log)
	syncs := syncer.New(db, cfg, executor, log)
	executor.SetSyncEngine(syncs)

	s := NewServer(Deps{
		Config:     cfg,
		DB:         db,
		Auth:       authSvc,
		OAuth:      auth.NewOAuthHandler(authSvc, cfg),
		Executor:   executor,
		Syncs:      syncs,
		State:      state,
		Cache:      monitor.NewStatusCache(),
		Dispatcher: alert.NewDispatcher(db, log),
		Pipeline:   pipeline,
		Listener:   listener.New(db, executor, authSvc, cfg.WebhookSecret, log),
		Log:        log,
	})
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv, db
}

// post sends a union request and decodes the JSON response.
func post(t *testing.T, srv *httptest.Server, path, jwt, reqType string, params any) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"type": reqType, "params": params})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if jwt != "" {
		req.Header.Set("Authorization", "Bearer "+jwt)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

// postList is post for endpoints that answer with a JSON array.
func postList(t *testing.T, srv *httptest.Server, path, jwt, reqType string, params any) (int, []any) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"type": reqType, "params": params})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+jwt)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	var out []any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

// signup creates a local user and returns its JWT (empty when the account
// lands disabled).
func signup(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()
	status, body := post(t, srv, "/auth", "", "CreateLocalUser", map[string]string{
		"username": username,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("CreateLocalUser %s: status %d, body %v", username, status, body)
	}
	jwt, _ := body["jwt"].(string)
	return jwt
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestFirstUserBecomesAdmin(t *testing.T) {
	srv, _ := newTestServer(t)

	jwt := signup(t, srv, "root", "first user password")
	if jwt == "" {
		t.Fatal("first signup returned no jwt")
	}

	status, user := post(t, srv, "/auth", jwt, "GetUser", nil)
	if status != http.StatusOK {
		t.Fatalf("GetUser: status %d", status)
	}
	if user["admin"] != true {
		t.Error("first user is not admin")
	}
	if user["enabled"] != true {
		t.Error("first user is not enabled")
	}
	cred, _ := user["credential"].(map[string]any)
	if cred != nil {
		if params, _ := cred["params"].(map[string]any); params != nil {
			if hash, ok := params["password_hash"].(string); ok && hash != "" {
				t.Error("password hash leaked through GetUser")
			}
		}
	}
}

func TestLaterSignupsWaitForEnablement(t *testing.T) {
	srv, _ := newTestServer(t)
	signup(t, srv, "root", "first user password")

	status, body := post(t, srv, "/auth", "", "CreateLocalUser", map[string]string{
		"username": "newcomer",
		"password": "newcomer password",
	})
	if status != http.StatusOK {
		t.Fatalf("second signup: status %d", status)
	}
	if body["enabled"] != false {
		t.Errorf("second signup body = %v, want enabled false", body)
	}

	// Disabled users cannot log in.
	status, _ = post(t, srv, "/auth", "", "LoginLocalUser", map[string]string{
		"username": "newcomer",
		"password": "newcomer password",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("disabled login status = %d, want 401", status)
	}
}

func TestLoginFailuresIndistinguishable(t *testing.T) {
	srv, _ := newTestServer(t)
	signup(t, srv, "root", "first user password")

	statusUnknown, bodyUnknown := post(t, srv, "/auth", "", "LoginLocalUser", map[string]string{
		"username": "ghost",
		"password": "whatever else",
	})
	statusWrong, bodyWrong := post(t, srv, "/auth", "", "LoginLocalUser", map[string]string{
		"username": "root",
		"password": "not the password",
	})

	if statusUnknown != http.StatusUnauthorized || statusWrong != http.StatusUnauthorized {
		t.Errorf("statuses = %d / %d, want 401 / 401", statusUnknown, statusWrong)
	}
	if bodyUnknown["error"] != bodyWrong["error"] {
		t.Errorf("errors differ: %q vs %q", bodyUnknown["error"], bodyWrong["error"])
	}
}

func TestLoginRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	signup(t, srv, "root", "first user password")

	status, body := post(t, srv, "/auth", "", "LoginLocalUser", map[string]string{
		"username": "root",
		"password": "first user password",
	})
	if status != http.StatusOK {
		t.Fatalf("login: status %d, body %v", status, body)
	}
	jwt, _ := body["jwt"].(string)
	if jwt == "" {
		t.Fatal("login returned no jwt")
	}

	status, user := post(t, srv, "/auth", jwt, "GetUser", nil)
	if status != http.StatusOK || user["username"] != "root" {
		t.Errorf("GetUser = %d %v, want the logged-in user", status, user)
	}
}

func TestUnknownRequestType(t *testing.T) {
	srv, _ := newTestServer(t)
	jwt := signup(t, srv, "root", "first user password")

	for _, path := range []string{"/auth", "/read", "/write"} {
		status, _ := post(t, srv, path, jwt, "DoSomethingNovel", nil)
		if status != http.StatusBadRequest {
			t.Errorf("POST %s unknown type status = %d, want 400", path, status)
		}
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := post(t, srv, "/read", "", "GetVersion", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("no-token status = %d, want 401", status)
	}
	status, _ = post(t, srv, "/read", "not-a-jwt", "GetVersion", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("garbage-token status = %d, want 401", status)
	}
}

func TestWriteCreateAndRead(t *testing.T) {
	srv, _ := newTestServer(t)
	jwt := signup(t, srv, "root", "first user password")

	status, created := post(t, srv, "/write", jwt, "CreateResource", map[string]any{
		"resource_type": "Server",
		"name":          "edge",
		"tags":          []string{"prod"},
		"config":        map[string]any{"address": "https://edge:8120", "enabled": true},
	})
	if status != http.StatusOK {
		t.Fatalf("CreateResource: status %d, body %v", status, created)
	}
	if created["name"] != "edge" {
		t.Errorf("created name = %v, want edge", created["name"])
	}

	status, items := postList(t, srv, "/read", jwt, "ListServers", nil)
	if status != http.StatusOK || len(items) != 1 {
		t.Fatalf("ListServers = %d with %d items, want 200 with 1", status, len(items))
	}

	status, got := post(t, srv, "/read", jwt, "GetServer", map[string]string{"id": "edge"})
	if status != http.StatusOK {
		t.Fatalf("GetServer: status %d", status)
	}
	cfg, _ := got["config"].(map[string]any)
	if cfg == nil || cfg["address"] != "https://edge:8120" {
		t.Errorf("GetServer config = %v", cfg)
	}

	status, _ = post(t, srv, "/read", jwt, "GetServer", map[string]string{"id": "no-such-server"})
	if status != http.StatusNotFound {
		t.Errorf("missing server status = %d, want 404", status)
	}
}

func TestNonAdminHasNoAccess(t *testing.T) {
	srv, db := newTestServer(t)
	adminJWT := signup(t, srv, "root", "first user password")

	status, _ := post(t, srv, "/write", adminJWT, "CreateResource", map[string]any{
		"resource_type": "Server",
		"name":          "edge",
	})
	if status != http.StatusOK {
		t.Fatalf("admin create: status %d", status)
	}

	signup(t, srv, "viewer", "viewer password")
	viewer, err := db.GetUserByUsername("viewer")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	viewer.Enabled = true
	if err := db.PutUser(viewer); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	status, body := post(t, srv, "/auth", "", "LoginLocalUser", map[string]string{
		"username": "viewer",
		"password": "viewer password",
	})
	if status != http.StatusOK {
		t.Fatalf("viewer login: status %d", status)
	}
	viewerJWT, _ := body["jwt"].(string)

	// No grants: listings come back empty, gets and creates are denied.
	status, items := postList(t, srv, "/read", viewerJWT, "ListServers", nil)
	if status != http.StatusOK || len(items) != 0 {
		t.Errorf("viewer ListServers = %d with %d items, want 200 with 0", status, len(items))
	}
	status, _ = post(t, srv, "/read", viewerJWT, "GetServer", map[string]string{"id": "edge"})
	if status != http.StatusForbidden {
		t.Errorf("viewer GetServer status = %d, want 403", status)
	}
	status, _ = post(t, srv, "/write", viewerJWT, "CreateResource", map[string]any{
		"resource_type": "Server",
		"name":          "rogue",
	})
	if status != http.StatusForbidden {
		t.Errorf("viewer CreateResource status = %d, want 403", status)
	}
}

func TestExecuteRejectsEmptyType(t *testing.T) {
	srv, _ := newTestServer(t)
	jwt := signup(t, srv, "root", "first user password")

	body, _ := json.Marshal(map[string]any{"params": map[string]string{}})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/execute", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+jwt)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST /execute: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty execution type status = %d, want 400", resp.StatusCode)
	}
}

func TestDuplicateNameConflicts(t *testing.T) {
	srv, _ := newTestServer(t)
	jwt := signup(t, srv, "root", "first user password")

	params := map[string]any{"resource_type": "Deployment", "name": "web"}
	if status, _ := post(t, srv, "/write", jwt, "CreateResource", params); status != http.StatusOK {
		t.Fatalf("first create: status %d", status)
	}
	status, _ := post(t, srv, "/write", jwt, "CreateResource", params)
	if status != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", status)
	}
}
