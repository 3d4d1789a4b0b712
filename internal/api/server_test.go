package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dispatchd/internal/auth"
	"dispatchd/internal/ops"
	"dispatchd/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.SQLiteDB, time.Time) {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	loc, err := ops.LoadLocation("")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	now := time.Date(2025, 2, 25, 8, 0, 0, 0, loc)
	clock := func() time.Time { return now }

	srv := NewServer(Deps{
		DB:      db,
		Overlay: store.NewOverlay(),
		Signer:  auth.NewSigner([]byte("test-key")),
		Loc:     loc,
		Clock:   clock,
	}, Config{Addr: ":0"})

	return srv, db, now
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["ok"] != true {
		t.Errorf("ok = %v, want true", resp["ok"])
	}
}

func TestDispatchRowsRequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/dispatch/rows", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginAndDispatchFlow(t *testing.T) {
	srv, db, now := newTestServer(t)
	ctx := context.Background()

	_ = db.InsertFlights(ctx, []*store.Flight{{
		OpsDate: "2025-02-25", Type: "ARR", FlightNo: "WS 816", SchedLocal: "06:30",
		SchedUTC: now, EstUTC: now, ZoneCurrent: "Pier A", ZonePrevious: "Pier A",
		CreatedAt: now, UpdatedAt: now,
	}})

	// Seed the dispatch user directly through the SQL backend used by
	// this test double.
	mustSeedUser(t, db, "disp1", "1234", auth.RoleDispatch)

	loginRec := doJSON(t, srv.Router(), http.MethodPost, "/auth/login", "", loginRequest{Username: "disp1", PIN: "1234"})
	if loginRec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", loginRec.Code, loginRec.Body.String())
	}
	var loginResp loginResponse
	if err := json.Unmarshal(loginRec.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if loginResp.Token == "" {
		t.Fatal("expected non-empty token")
	}

	rowsRec := doJSON(t, srv.Router(), http.MethodGet, "/dispatch/rows", loginResp.Token, nil)
	if rowsRec.Code != http.StatusOK {
		t.Fatalf("rows status = %d body=%s", rowsRec.Code, rowsRec.Body.String())
	}
	var rowsResp struct {
		OK   bool      `json:"ok"`
		Rows []RowView `json:"rows"`
	}
	if err := json.Unmarshal(rowsRec.Body.Bytes(), &rowsResp); err != nil {
		t.Fatalf("decode rows response: %v", err)
	}
	if len(rowsResp.Rows) != 1 || rowsResp.Rows[0].Flight != "WS 816" {
		t.Fatalf("rows = %+v", rowsResp.Rows)
	}

	// A Lead-scoped route must reject the Dispatch token.
	leadRec := doJSON(t, srv.Router(), http.MethodGet, "/lead/rows", loginResp.Token, nil)
	if leadRec.Code != http.StatusForbidden {
		t.Fatalf("lead status = %d, want 403", leadRec.Code)
	}
}

func TestDispatchUpdateAndAckRoundTrip(t *testing.T) {
	srv, db, now := newTestServer(t)
	ctx := context.Background()
	mustSeedUser(t, db, "disp1", "1234", auth.RoleDispatch)

	key := "2025-02-25|ARR|WS 816|06:30"
	_ = db.InsertFlights(ctx, []*store.Flight{{
		OpsDate: "2025-02-25", Type: "ARR", FlightNo: "WS 816", SchedLocal: "06:30",
		SchedUTC: now, EstUTC: now, ZoneCurrent: "Pier A", ZonePrevious: "Pier A",
		GateChanged: true, AlertText: "Gate: B3 -> B20",
		CreatedAt: now, UpdatedAt: now,
	}})

	token := mustLogin(t, srv, "disp1", "1234")

	updateRec := doJSON(t, srv.Router(), http.MethodPatch, "/dispatch/update", token, dispatchUpdateRequest{
		Key: key, Comment: strPtr("watch for stroller"),
	})
	if updateRec.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", updateRec.Code, updateRec.Body.String())
	}

	ackRec := doJSON(t, srv.Router(), http.MethodPost, "/dispatch/ack", token, keyRequest{Key: key})
	if ackRec.Code != http.StatusOK {
		t.Fatalf("ack status = %d body=%s", ackRec.Code, ackRec.Body.String())
	}

	rowsRec := doJSON(t, srv.Router(), http.MethodGet, "/dispatch/rows", token, nil)
	var rowsResp struct {
		Rows []RowView `json:"rows"`
	}
	if err := json.Unmarshal(rowsRec.Body.Bytes(), &rowsResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rowsResp.Rows) != 1 {
		t.Fatalf("rows = %+v", rowsResp.Rows)
	}
	row := rowsResp.Rows[0]
	if row.Comment != "watch for stroller" {
		t.Errorf("comment = %q, want the written comment (overlay should mask read-after-write latency)", row.Comment)
	}
	if row.AlertText != "" || row.GateChanged {
		t.Errorf("expected acked row to be masked, got %+v", row)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/dispatch/rows", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q, want the echoed origin", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func mustSeedUser(t *testing.T, db *store.SQLiteDB, username, pin, role string) {
	t.Helper()
	if err := db.InsertUser(context.Background(), &store.User{Username: username, PIN: pin, Role: role}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func mustLogin(t *testing.T, srv *Server, username, pin string) string {
	t.Helper()
	rec := doJSON(t, srv.Router(), http.MethodPost, "/auth/login", "", loginRequest{Username: username, PIN: pin})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

func strPtr(s string) *string { return &s }
