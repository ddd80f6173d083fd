package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/k3vt/aprsgate/internal/aprs"
	"github.com/k3vt/aprsgate/internal/beacon"
	"github.com/k3vt/aprsgate/internal/command"
	"github.com/k3vt/aprsgate/internal/config"
	"github.com/k3vt/aprsgate/internal/storage"
	"github.com/k3vt/aprsgate/internal/storage/sqlite"
)

const testToken = "test-token"

type fakeTransmitter struct {
	mu    sync.Mutex
	sends []string
}

func (f *fakeTransmitter) Send(_ context.Context, id aprs.Identity, lat, lon float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := aprs.PositionPacket(id, "AB1CDE", lat, lon)
	f.sends = append(f.sends, p)
	return p, nil
}

func setupServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := &beacon.TestClock{CurrentTime: time.Unix(1700000000, 0).UTC()}
	manager := beacon.NewManager(store, &fakeTransmitter{}, nil, clock, zerolog.Nop())
	commands := command.NewDispatcher(store, nil, clock, 99, zerolog.Nop())

	cfg := config.GatewayConfig{
		Port:        8080,
		BindAddress: "127.0.0.1",
		BridgeToken: testToken,
		AdminUserID: 99,
	}
	return NewServer(cfg, manager, commands, store, zerolog.Nop()), store
}

func doRequest(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func addApprovedUser(t *testing.T, store storage.Store, userID int64, callsign string) {
	t.Helper()
	p := storage.NewUserProfile(userID, "alice", time.Unix(1690000000, 0).UTC())
	p.Callsign = callsign
	p.Approved = true
	if err := store.Profiles().Upsert(context.Background(), p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	s, _ := setupServer(t)

	if rec := doRequest(t, s, http.MethodPost, "/v1/locations", "", "{}"); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/v1/locations", "wrong", "{}"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", rec.Code)
	}

	// Health stays open.
	if rec := doRequest(t, s, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d", rec.Code)
	}
}

func TestSubmitLocation(t *testing.T) {
	s, store := setupServer(t)
	addApprovedUser(t, store, 42, "AB1CDE")

	body := `{"user_id":42,"latitude":45.5,"longitude":-9.25,"live_period":900}`
	rec := doRequest(t, s, http.MethodPost, "/v1/locations", testToken, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["outcome"] != "started" {
		t.Errorf("outcome = %q", resp["outcome"])
	}

	// The packet lands in the beacon log.
	entries, err := store.BeaconLog().Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Packet, "AB1CDE-9>") {
		t.Errorf("beacon log = %+v", entries)
	}
}

func TestSubmitLocationUnapproved(t *testing.T) {
	s, store := setupServer(t)
	addApprovedUser(t, store, 42, "AB1CDE")
	if err := store.Profiles().SetApproved(context.Background(), 42, false); err != nil {
		t.Fatalf("SetApproved: %v", err)
	}

	body := `{"user_id":42,"latitude":45.5,"longitude":-9.25}`
	rec := doRequest(t, s, http.MethodPost, "/v1/locations", testToken, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body = %s)", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != command.UnauthorizedReply {
		t.Errorf("error = %q", resp["error"])
	}

	entries, err := store.BeaconLog().Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("disapproved user beaconed: %+v", entries)
	}
}

func TestSubmitLocationWithoutProfile(t *testing.T) {
	s, _ := setupServer(t)

	body := `{"user_id":42,"latitude":45.5,"longitude":-9.25}`
	rec := doRequest(t, s, http.MethodPost, "/v1/locations", testToken, body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestSubmitLocationBadRequest(t *testing.T) {
	s, _ := setupServer(t)

	if rec := doRequest(t, s, http.MethodPost, "/v1/locations", testToken, "not json"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/v1/locations", testToken, `{"latitude":1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: status = %d", rec.Code)
	}
}

func TestMessageDispatch(t *testing.T) {
	s, _ := setupServer(t)

	body := `{"user_id":42,"username":"alice","text":"/start"}`
	rec := doRequest(t, s, http.MethodPost, "/v1/messages", testToken, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp["reply"], "pending approval") {
		t.Errorf("reply = %q", resp["reply"])
	}
}

func TestBeaconList(t *testing.T) {
	s, store := setupServer(t)
	addApprovedUser(t, store, 42, "AB1CDE")

	rec := doRequest(t, s, http.MethodGet, "/v1/beacons", testToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty log body = %s", rec.Body.String())
	}

	body := `{"user_id":42,"latitude":45.5,"longitude":-9.25}`
	if rec := doRequest(t, s, http.MethodPost, "/v1/locations", testToken, body); rec.Code != http.StatusOK {
		t.Fatalf("location: status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/v1/beacons?limit=10", testToken, "")
	var entries []storage.BeaconEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != 42 {
		t.Errorf("entries = %+v", entries)
	}

	if rec := doRequest(t, s, http.MethodGet, "/v1/beacons?limit=zero", testToken, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", rec.Code)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var gotAuth string
	var gotBody notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "hook-token", zerolog.Nop())
	if err := n.Notify(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotAuth != "Bearer hook-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody.UserID != 42 || gotBody.Text != "hello" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "hook-token", zerolog.Nop())
	if err := n.Notify(context.Background(), 42, "hello"); err == nil {
		t.Error("expected error on non-2xx response")
	}
}
