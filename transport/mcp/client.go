package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/bridge/bridge/service"
)

// APIError is a non-2xx response from the management API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d", e.StatusCode)
}

// Client is a thin MCP client that proxies to the management REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API at baseURL
func NewClient(baseURL string, version string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Restart waits for every session to close.
			Timeout: 30 * time.Second,
		},
	}

	c.initMCPServer(version)
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer(version string) {
	c.mcpServer = server.NewMCPServer(
		"Bridge",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Bridge - MCP Interface

This is a thin client that proxies all requests to the bridge management API.

The bridge accepts websocket client connections on one listening port. Clients
log in with an identity; the bridge reports which identities are connected.

AVAILABLE TOOLS:
- server_status: Listening address, port, idle timeout and whether the acceptor is active
- client_list: Identified clients with a live session
- bridge_stats: Restart and bind failure counters
- start_acceptor: Bind the acceptor if it is not running
- restart_acceptor: Disconnect every client and rebind the listening port

NOTE: restart_acceptor disconnects all clients. Check client_list first.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Status
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_status",
		Description: "Get the acceptor's configured address, port, idle timeout and active flag",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleServerStatus)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "client_list",
		Description: "List identified clients with a live session, sorted by identity",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of clients to return (optional)",
				},
			},
		},
	}, c.handleClientList)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "bridge_stats",
		Description: "Get lifecycle counters: state, restarts, bind failures, session and identity counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleStats)

	// Lifecycle
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_acceptor",
		Description: "Bind the acceptor if it is not already active",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleStart)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "restart_acceptor",
		Description: "Dispose the acceptor, closing every client connection, and bind a new one",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"reason": map[string]interface{}{
					"type":        "string",
					"description": "Why the restart is needed; recorded in the bridge log",
				},
			},
		},
	}, c.handleRestart)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// HTTPHandler serves JSON-RPC messages posted to it
func (c *Client) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := c.mcpServer.HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
}

// Helper methods for API calls

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	status, data, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}

	if status >= 400 {
		var errResp map[string]interface{}
		json.Unmarshal(data, &errResp)
		msg, _ := errResp["error"].(string)
		return &APIError{StatusCode: status, Message: msg}
	}

	if result != nil {
		return json.Unmarshal(data, result)
	}
	return nil
}

// lifecycleCall posts to a lifecycle endpoint. A failed bind comes back as
// 503 with the server status in the body.
func (c *Client) lifecycleCall(ctx context.Context, path, reason string) (*service.ServerStatus, error) {
	if reason != "" {
		path += "?reason=" + url.QueryEscape(reason)
	}

	status, data, err := c.do(ctx, "POST", path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusServiceUnavailable {
		var errResp map[string]interface{}
		json.Unmarshal(data, &errResp)
		msg, _ := errResp["error"].(string)
		return nil, &APIError{StatusCode: status, Message: msg}
	}

	var st service.ServerStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Tool handlers

func (c *Client) handleServerStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var status service.ServerStatus
	if err := c.apiCall(ctx, "GET", "/api/status", nil, &status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatServerStatus(&status)), nil
}

func (c *Client) handleClientList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	path := "/api/clients"
	if limit, ok := args["limit"].(float64); ok {
		if limit < 0 {
			return mcp.NewToolResultError("limit must be non-negative"), nil
		}
		path = fmt.Sprintf("/api/clients?limit=%d", int(limit))
	}

	var response struct {
		Count   int                    `json:"count"`
		Total   int                    `json:"total"`
		Clients []service.ClientStatus `json:"clients"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatClientList(response.Clients, response.Total)), nil
}

func (c *Client) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats struct {
		State                string    `json:"state"`
		Restarts             int64     `json:"restarts"`
		BindFailures         int64     `json:"bind_failures"`
		LiveSessions         int       `json:"live_sessions"`
		RegisteredIdentities int       `json:"registered_identities"`
		BoundAt              time.Time `json:"bound_at"`
	}
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", stats.State)
	fmt.Fprintf(&b, "Restarts: %d\n", stats.Restarts)
	fmt.Fprintf(&b, "Bind failures: %d\n", stats.BindFailures)
	fmt.Fprintf(&b, "Live sessions: %d\n", stats.LiveSessions)
	fmt.Fprintf(&b, "Registered identities: %d\n", stats.RegisteredIdentities)
	if !stats.BoundAt.IsZero() {
		fmt.Fprintf(&b, "Bound at: %s\n", stats.BoundAt.Local().Format(service.TimestampLayout))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := c.lifecycleCall(ctx, "/api/start", "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !status.Active {
		return mcp.NewToolResultError(fmt.Sprintf("Acceptor failed to bind %s:%d; check the bridge log", status.BindAddress, status.Port)), nil
	}
	return mcp.NewToolResultText("Acceptor started.\n\n" + formatServerStatus(status)), nil
}

func (c *Client) handleRestart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	reason, _ := args["reason"].(string)

	status, err := c.lifecycleCall(ctx, "/api/restart", reason)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !status.Active {
		return mcp.NewToolResultError(fmt.Sprintf("Acceptor was disposed but failed to rebind %s:%d; check the bridge log", status.BindAddress, status.Port)), nil
	}
	return mcp.NewToolResultText("Acceptor restarted. All clients were disconnected.\n\n" + formatServerStatus(status)), nil
}

// Formatting

func formatServerStatus(status *service.ServerStatus) string {
	state := "inactive"
	if status.Active {
		state = "active"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Acceptor: %s\n", state)
	fmt.Fprintf(&b, "Bind address: %s\n", status.BindAddress)
	fmt.Fprintf(&b, "Port: %d\n", status.Port)
	fmt.Fprintf(&b, "Idle timeout: %ds\n", status.IdleTimeoutSeconds)
	return b.String()
}

func formatClientList(clients []service.ClientStatus, total int) string {
	if len(clients) == 0 {
		return "No connected clients.\n"
	}

	var b strings.Builder
	if total > len(clients) {
		fmt.Fprintf(&b, "Connected clients (%d of %d):\n\n", len(clients), total)
	} else {
		fmt.Fprintf(&b, "Connected clients (%d):\n\n", len(clients))
	}
	for _, c := range clients {
		fmt.Fprintf(&b, "- %s from %s (session %d, last activity %s)\n",
			c.Identity, c.RemoteIP, c.SessionID, c.LastActivity)
	}
	return b.String()
}
