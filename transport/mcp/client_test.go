package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wricardo/bridge/bridge/service"
)

func newRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	if args == nil {
		args = map[string]interface{}{}
	}
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("Expected result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/", "test")

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(service.ServerStatus{BindAddress: "0.0.0.0", Port: 9999})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test")

	var status service.ServerStatus
	if err := client.apiCall(context.Background(), "GET", "/api/status", nil, &status); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if status.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", status.Port)
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999", "test")

	if err := client.apiCall(context.Background(), "GET", "/api/status", nil, nil); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expectedMsg string
	}{
		{"JSON error body", http.StatusBadRequest, `{"error":"limit must be a non-negative integer"}`, "limit must be a non-negative integer"},
		{"Plain body", http.StatusInternalServerError, "Internal Server Error", "API error: 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "test")
			err := client.apiCall(context.Background(), "GET", "/api/clients", nil, nil)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, apiErr.StatusCode)
			}
			if err.Error() != tt.expectedMsg {
				t.Errorf("Expected %q, got %q", tt.expectedMsg, err.Error())
			}
		})
	}
}

func TestHandleServerStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(service.ServerStatus{
			BindAddress:        "0.0.0.0",
			Port:               9999,
			IdleTimeoutSeconds: 180,
			Active:             true,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test")
	result, err := client.handleServerStatus(context.Background(), newRequest("server_status", nil))
	if err != nil {
		t.Fatalf("handleServerStatus failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"Acceptor: active", "Bind address: 0.0.0.0", "Port: 9999", "Idle timeout: 180s"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}
}

func TestHandleClientList(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count": 1,
			"total": 2,
			"clients": []service.ClientStatus{
				{Identity: "bob", RemoteIP: "1.2.3.4", SessionID: 7, LastActivity: "2024-03-09 14:05:07"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test")
	result, err := client.handleClientList(context.Background(), newRequest("client_list", map[string]interface{}{"limit": float64(1)}))
	if err != nil {
		t.Fatalf("handleClientList failed: %v", err)
	}

	if gotQuery != "limit=1" {
		t.Errorf("Expected limit=1 query, got %q", gotQuery)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "Connected clients (1 of 2)") {
		t.Errorf("Expected header with total, got: %s", text)
	}
	if !strings.Contains(text, "- bob from 1.2.3.4 (session 7, last activity 2024-03-09 14:05:07)") {
		t.Errorf("Expected bob line, got: %s", text)
	}
}

func TestHandleClientList_NegativeLimit(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "test")
	result, _ := client.handleClientList(context.Background(), newRequest("client_list", map[string]interface{}{"limit": float64(-2)}))
	if !result.IsError {
		t.Error("Expected tool error for negative limit")
	}
}

func TestHandleRestart(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		active      bool
		expectError bool
		expectText  string
	}{
		{"Rebound", http.StatusOK, true, false, "Acceptor restarted"},
		{"Bind failure", http.StatusServiceUnavailable, false, true, "failed to rebind 0.0.0.0:9999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotReason string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != "POST" || r.URL.Path != "/api/restart" {
					t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
				}
				gotReason = r.URL.Query().Get("reason")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(service.ServerStatus{BindAddress: "0.0.0.0", Port: 9999, IdleTimeoutSeconds: 180, Active: tt.active})
			}))
			defer server.Close()

			client := NewClient(server.URL, "test")
			result, err := client.handleRestart(context.Background(),
				newRequest("restart_acceptor", map[string]interface{}{"reason": "stuck clients"}))
			if err != nil {
				t.Fatalf("handleRestart failed: %v", err)
			}

			if result.IsError != tt.expectError {
				t.Errorf("Expected IsError=%v", tt.expectError)
			}
			if text := resultText(t, result); !strings.Contains(text, tt.expectText) {
				t.Errorf("Expected %q in result, got: %s", tt.expectText, text)
			}
			if gotReason != "stuck clients" {
				t.Errorf("Expected reason to be forwarded, got %q", gotReason)
			}
		})
	}
}

func TestHandleStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(service.ServerStatus{BindAddress: "127.0.0.1", Port: 9000, IdleTimeoutSeconds: 60, Active: true})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test")
	result, err := client.handleStart(context.Background(), newRequest("start_acceptor", nil))
	if err != nil {
		t.Fatalf("handleStart failed: %v", err)
	}
	if result.IsError {
		t.Error("Expected success")
	}
	if text := resultText(t, result); !strings.Contains(text, "Port: 9000") {
		t.Errorf("Expected status in result, got: %s", text)
	}
}

func TestHandleStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"active","restarts":2,"bind_failures":1,"live_sessions":3,"registered_identities":2,"bound_at":"0001-01-01T00:00:00Z"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test")
	result, err := client.handleStats(context.Background(), newRequest("bridge_stats", nil))
	if err != nil {
		t.Fatalf("handleStats failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"State: active", "Restarts: 2", "Bind failures: 1", "Live sessions: 3"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}
	if strings.Contains(text, "Bound at") {
		t.Errorf("Zero bound time should be omitted, got: %s", text)
	}
}

func TestFormatClientList_Empty(t *testing.T) {
	if got := formatClientList(nil, 0); got != "No connected clients.\n" {
		t.Errorf("Unexpected empty rendering: %q", got)
	}
}

func TestHTTPHandler(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "test")
	h := client.HTTPHandler()

	t.Run("Rejects GET", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/mcp", nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", w.Code)
		}
	})

	t.Run("Lists tools", func(t *testing.T) {
		body := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("POST", "/mcp", strings.NewReader(body)))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		for _, tool := range []string{"server_status", "client_list", "bridge_stats", "start_acceptor", "restart_acceptor"} {
			if !strings.Contains(w.Body.String(), tool) {
				t.Errorf("Expected tool %s in listing", tool)
			}
		}
	})
}
