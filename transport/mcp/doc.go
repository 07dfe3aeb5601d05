// Package mcp provides the Model Context Protocol interface to the bridge.
//
// The mcp package implements:
//   - MCP tools for acceptor status and lifecycle
//   - A thin client proxying every tool to the management REST API
//   - Stdio and HTTP transport modes
//
// MCP Tools:
//
// The package exposes the following tools for AI agents:
//   - server_status: Configured address, port, idle timeout and active flag
//   - client_list: Identified clients with a live session
//   - bridge_stats: Lifecycle counters
//   - start_acceptor: Bind the acceptor if it is not running
//   - restart_acceptor: Disconnect all clients and rebind
//
// Transport Modes:
//
// The server supports two transport modes:
//   - Stdio: Direct stdio communication for local MCP clients
//   - HTTP: JSON-RPC messages posted to the /mcp endpoint
//
// Usage:
//
//	// Stdio mode
//	client := mcp.NewClient("http://localhost:8080", version)
//	server.ServeStdio(client.GetMCPServer())
//
//	// HTTP mode
//	apiServer.Handle("/mcp", client.HTTPHandler())
//
// Errors from the management API are returned as tool errors, not protocol
// errors, so agents see the message.
package mcp
