package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wricardo/bridge/bridge/service"
)

// MockBridgeService implements service.BridgeService for testing
type MockBridgeService struct {
	// Lifecycle
	StartFunc    func()
	RestartFunc  func()
	DisposeFunc  func()
	IsActiveFunc func() bool
	StateFunc    func() service.State

	// Status
	ServerStatusFunc     func() service.ServerStatus
	ClientStatusListFunc func() []service.ClientStatus
	StatsFunc            func() service.Stats
}

// Lifecycle
func (m *MockBridgeService) Start() {
	if m.StartFunc != nil {
		m.StartFunc()
	}
}

func (m *MockBridgeService) Restart() {
	if m.RestartFunc != nil {
		m.RestartFunc()
	}
}

func (m *MockBridgeService) Dispose() {
	if m.DisposeFunc != nil {
		m.DisposeFunc()
	}
}

func (m *MockBridgeService) IsActive() bool {
	if m.IsActiveFunc != nil {
		return m.IsActiveFunc()
	}
	return true
}

func (m *MockBridgeService) State() service.State {
	if m.StateFunc != nil {
		return m.StateFunc()
	}
	return service.StateActive
}

// Status
func (m *MockBridgeService) ServerStatus() service.ServerStatus {
	if m.ServerStatusFunc != nil {
		return m.ServerStatusFunc()
	}
	return service.ServerStatus{
		BindAddress:        "0.0.0.0",
		Port:               9999,
		IdleTimeoutSeconds: 180,
		Active:             m.IsActive(),
	}
}

func (m *MockBridgeService) ClientStatusList() []service.ClientStatus {
	if m.ClientStatusListFunc != nil {
		return m.ClientStatusListFunc()
	}
	return []service.ClientStatus{}
}

func (m *MockBridgeService) Stats() service.Stats {
	if m.StatsFunc != nil {
		return m.StatsFunc()
	}
	return service.Stats{State: m.State()}
}

// Helper functions
func setupTestServer(mockService *MockBridgeService) *Server {
	return NewServer(mockService, nil)
}

func makeRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func sampleClients() []service.ClientStatus {
	return []service.ClientStatus{
		{Identity: "alice", RemoteIP: "10.0.0.2", SessionID: 3, LastActivity: "2024-03-09 14:05:07"},
		{Identity: "bob", RemoteIP: "1.2.3.4", SessionID: 7, LastActivity: "2024-03-09 14:06:00"},
	}
}

// Status Tests

func TestServerStatus(t *testing.T) {
	tests := []struct {
		name   string
		active bool
	}{
		{"Active acceptor", true},
		{"Inactive acceptor", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockBridgeService{
				IsActiveFunc: func() bool { return tt.active },
			}
			server := setupTestServer(mockService)
			w := httptest.NewRecorder()

			server.ServeHTTP(w, makeRequest("GET", "/api/status"))

			if w.Code != http.StatusOK {
				t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
			}

			var resp service.ServerStatus
			parseResponse(t, w, &resp)
			want := service.ServerStatus{BindAddress: "0.0.0.0", Port: 9999, IdleTimeoutSeconds: 180, Active: tt.active}
			if resp != want {
				t.Errorf("Expected %+v, got %+v", want, resp)
			}
		})
	}
}

func TestClientList(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		clients        []service.ClientStatus
		expectedStatus int
		expectedCount  int
		expectedTotal  int
	}{
		{"All clients", "/api/clients", sampleClients(), http.StatusOK, 2, 2},
		{"No clients", "/api/clients", []service.ClientStatus{}, http.StatusOK, 0, 0},
		{"Limited", "/api/clients?limit=1", sampleClients(), http.StatusOK, 1, 2},
		{"Limit above total", "/api/clients?limit=10", sampleClients(), http.StatusOK, 2, 2},
		{"Invalid limit", "/api/clients?limit=abc", sampleClients(), http.StatusBadRequest, 0, 0},
		{"Negative limit", "/api/clients?limit=-1", sampleClients(), http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockBridgeService{
				ClientStatusListFunc: func() []service.ClientStatus { return tt.clients },
			}
			server := setupTestServer(mockService)
			w := httptest.NewRecorder()

			server.ServeHTTP(w, makeRequest("GET", tt.path))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if w.Code != http.StatusOK {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if resp["error"] == "" {
					t.Error("Expected error message")
				}
				return
			}

			var resp struct {
				Count   int                    `json:"count"`
				Total   int                    `json:"total"`
				Clients []service.ClientStatus `json:"clients"`
			}
			parseResponse(t, w, &resp)
			if resp.Count != tt.expectedCount || len(resp.Clients) != tt.expectedCount {
				t.Errorf("Expected %d clients, got count=%d len=%d", tt.expectedCount, resp.Count, len(resp.Clients))
			}
			if resp.Total != tt.expectedTotal {
				t.Errorf("Expected total %d, got %d", tt.expectedTotal, resp.Total)
			}
			if resp.Clients == nil {
				t.Error("Expected clients to be an array, not null")
			}
		})
	}
}

func TestClientListFields(t *testing.T) {
	mockService := &MockBridgeService{
		ClientStatusListFunc: sampleClients,
	}
	server := setupTestServer(mockService)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, makeRequest("GET", "/api/clients"))

	var resp struct {
		Clients []map[string]interface{} `json:"clients"`
	}
	parseResponse(t, w, &resp)
	if len(resp.Clients) != 2 {
		t.Fatalf("Expected 2 clients, got %d", len(resp.Clients))
	}

	bob := resp.Clients[1]
	if bob["identity"] != "bob" || bob["remote_ip"] != "1.2.3.4" || bob["last_activity"] != "2024-03-09 14:06:00" {
		t.Errorf("Unexpected client JSON: %v", bob)
	}
	if bob["session_id"] != float64(7) {
		t.Errorf("Expected session_id 7, got %v", bob["session_id"])
	}
}

func TestStats(t *testing.T) {
	mockService := &MockBridgeService{
		StatsFunc: func() service.Stats {
			return service.Stats{State: service.StateInactive, Restarts: 3, BindFailures: 1}
		},
	}
	server := setupTestServer(mockService)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, makeRequest("GET", "/api/stats"))

	var resp map[string]interface{}
	parseResponse(t, w, &resp)
	if resp["state"] != "inactive" {
		t.Errorf("Expected state inactive, got %v", resp["state"])
	}
	if resp["restarts"] != float64(3) {
		t.Errorf("Expected 3 restarts, got %v", resp["restarts"])
	}
}

// Lifecycle Tests

func TestLifecycleEndpoints(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		bindSucceeds   bool
		expectedStatus int
	}{
		{"Start succeeds", "/api/start", true, http.StatusOK},
		{"Start bind failure", "/api/start", false, http.StatusServiceUnavailable},
		{"Restart succeeds", "/api/restart", true, http.StatusOK},
		{"Restart bind failure", "/api/restart", false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active := false
			var started, restarted int
			mockService := &MockBridgeService{
				StartFunc: func() {
					started++
					active = tt.bindSucceeds
				},
				RestartFunc: func() {
					restarted++
					active = tt.bindSucceeds
				},
				IsActiveFunc: func() bool { return active },
			}
			server := setupTestServer(mockService)
			w := httptest.NewRecorder()

			server.ServeHTTP(w, makeRequest("POST", tt.path))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if started+restarted != 1 {
				t.Errorf("Expected exactly one lifecycle call, got start=%d restart=%d", started, restarted)
			}

			var resp service.ServerStatus
			parseResponse(t, w, &resp)
			if resp.Active != tt.bindSucceeds {
				t.Errorf("Expected active=%v, got %v", tt.bindSucceeds, resp.Active)
			}
		})
	}
}

func TestLifecycleRequiresPost(t *testing.T) {
	called := false
	mockService := &MockBridgeService{
		RestartFunc: func() { called = true },
	}
	server := setupTestServer(mockService)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, makeRequest("GET", "/api/restart"))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
	if called {
		t.Error("Restart must not run on GET")
	}
}

// Health and middleware

func TestHealth(t *testing.T) {
	mockService := &MockBridgeService{
		IsActiveFunc: func() bool { return false },
		StateFunc:    func() service.State { return service.StateInactive },
	}
	server := setupTestServer(mockService)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, makeRequest("GET", "/health"))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp map[string]interface{}
	parseResponse(t, w, &resp)
	if resp["status"] != "ok" || resp["active"] != false || resp["state"] != "inactive" {
		t.Errorf("Unexpected health response: %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	server := setupTestServer(&MockBridgeService{})

	t.Run("Generated when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/health"))
		if len(w.Header().Get(RequestIDHeader)) != 36 {
			t.Errorf("Expected a UUID request ID, got %q", w.Header().Get(RequestIDHeader))
		}
	})

	t.Run("Propagated when present", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := makeRequest("GET", "/health")
		req.Header.Set(RequestIDHeader, "abc-123")
		server.ServeHTTP(w, req)
		if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Errorf("Expected abc-123, got %q", got)
		}
	})
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bridge_acceptor_active 1\n"))
	})

	t.Run("Mounted", func(t *testing.T) {
		server := NewServer(&MockBridgeService{}, metrics)
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/metrics"))
		if w.Code != http.StatusOK || w.Body.String() != "bridge_acceptor_active 1\n" {
			t.Errorf("Unexpected metrics response %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("Absent without handler", func(t *testing.T) {
		server := NewServer(&MockBridgeService{}, nil)
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/metrics"))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}

func TestHandleMountsExtraRoute(t *testing.T) {
	server := setupTestServer(&MockBridgeService{})
	server.Handle("/mcp", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/mcp"))
	if w.Code != http.StatusTeapot {
		t.Errorf("Expected mounted handler to run, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Middleware should apply to mounted routes")
	}
}
