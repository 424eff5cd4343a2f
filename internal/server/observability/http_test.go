// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Chat License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

// mockMetrics implementa MetricsSource para testes.
type mockMetrics struct {
	data MetricsData
}

func (m *mockMetrics) MetricsSnapshot() MetricsData { return m.data }

// mockSessions implementa SessionSource para testes.
type mockSessions struct {
	sessions []SessionSummary
}

func (m *mockSessions) SessionSummaries() []SessionSummary { return m.sessions }

func localhostACL(t *testing.T) *ACL {
	t.Helper()
	return NewACL(parseCIDRs(t, "127.0.0.1/32"))
}

func emptyEventStore(t *testing.T) *EventStore {
	t.Helper()
	store, err := NewEventStore(StoreConfig{
		Path:    filepath.Join(t.TempDir(), "events.jsonl"),
		RingCap: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestRouter(t *testing.T, metrics *mockMetrics, sessions *mockSessions) http.Handler {
	t.Helper()
	if metrics == nil {
		metrics = &mockMetrics{}
	}
	if sessions == nil {
		sessions = &mockSessions{}
	}
	return NewRouter(metrics, sessions, emptyEventStore(t), localhostACL(t))
}

func get(t *testing.T, router http.Handler, path, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth_ReturnsOK(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := get(t, router, "/api/v1/health", "127.0.0.1:12345")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got %v", resp.Status)
	}
	if resp.Uptime == "" {
		t.Error("expected uptime field")
	}
	if resp.Version == "" {
		t.Error("expected version field")
	}
	if resp.Go == "" {
		t.Error("expected go version field")
	}
}

func TestMetrics_ReturnsData(t *testing.T) {
	metrics := &mockMetrics{data: MetricsData{
		ActiveConns:   3,
		NamedSessions: 2,
		PacketsIn:     150,
		ChunksRelayed: 40,
		BytesRelayed:  40 * 64 * 1024,
		UptimeSeconds: 3600,
	}}
	router := newTestRouter(t, metrics, nil)

	rec := get(t, router, "/api/v1/metrics", "127.0.0.1:12345")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp MetricsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.ActiveConns != 3 {
		t.Errorf("expected active_conns 3, got %d", resp.ActiveConns)
	}
	if resp.NamedSessions != 2 {
		t.Errorf("expected named_sessions 2, got %d", resp.NamedSessions)
	}
	if resp.ChunksRelayed != 40 {
		t.Errorf("expected chunks_relayed 40, got %d", resp.ChunksRelayed)
	}
	if resp.BytesRelayed != 40*64*1024 {
		t.Errorf("expected bytes_relayed %d, got %d", 40*64*1024, resp.BytesRelayed)
	}
}

func TestSessions_EmptyList(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := get(t, router, "/api/v1/sessions", "127.0.0.1:12345")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []SessionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp) != 0 {
		t.Errorf("expected empty sessions, got %d", len(resp))
	}
}

func TestSessions_SortedByConnectedAt(t *testing.T) {
	sessions := &mockSessions{sessions: []SessionSummary{
		{SessionID: "b", Name: "bob", ConnectedAt: "2025-01-01T00:05:00Z"},
		{SessionID: "a", Name: "alice", ConnectedAt: "2025-01-01T00:00:00Z"},
	}}
	router := newTestRouter(t, nil, sessions)

	rec := get(t, router, "/api/v1/sessions", "127.0.0.1:12345")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []SessionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(resp))
	}
	// Mais antigo primeiro.
	if resp[0].SessionID != "a" || resp[1].SessionID != "b" {
		t.Errorf("expected order [a b], got [%s %s]", resp[0].SessionID, resp[1].SessionID)
	}
}

func TestEvents_WithLimit(t *testing.T) {
	store := emptyEventStore(t)
	for i := 0; i < 5; i++ {
		store.PushEvent("info", "connect", "sess", "", "connected")
	}
	router := NewRouter(&mockMetrics{}, &mockSessions{}, store, localhostACL(t))

	rec := get(t, router, "/api/v1/events?limit=3", "127.0.0.1:12345")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []EventEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp) != 3 {
		t.Errorf("expected 3 events with limit, got %d", len(resp))
	}
}

func TestEvents_InvalidLimit(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := get(t, router, "/api/v1/events?limit=abc", "127.0.0.1:12345")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = get(t, router, "/api/v1/events?limit=-1", "127.0.0.1:12345")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative limit, got %d", rec.Code)
	}
}

func TestACL_BlocksEndpoints(t *testing.T) {
	// ACL só permite 10.0.0.0/8
	acl := NewACL([]*net.IPNet{mustParseCIDR("10.0.0.0/8")})
	router := NewRouter(&mockMetrics{}, &mockSessions{}, emptyEventStore(t), acl)

	rec := get(t, router, "/api/v1/health", "192.168.1.1:12345")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestNotFound_Returns404(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := get(t, router, "/nonexistent", "127.0.0.1:12345")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func mustParseCIDR(s string) *net.IPNet {
	_, cidr, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return cidr
}
