// Package api provides the management REST API for the bridge.
//
// The api package implements:
//   - Server and client status endpoints
//   - Acceptor start and restart endpoints
//   - Health and prometheus endpoints
//   - Request ID propagation
//
// Endpoints:
//
// Status:
//   - GET /api/status - Configured address, port, idle timeout and active flag
//   - GET /api/clients - Identified clients with a live session, sorted by identity
//   - GET /api/stats - Lifecycle counters
//
// Lifecycle:
//   - POST /api/start - Bind the acceptor if it is not active
//   - POST /api/restart - Dispose the acceptor and bind a new one
//
// Both lifecycle endpoints return the server status afterwards. A failed bind
// is reported with 503 and "active": false.
//
// Operations:
//   - GET /health - Liveness and acceptor state
//   - GET /metrics - Prometheus exposition, when a metrics handler is given
//
// Query Parameters:
//
// GET /api/clients accepts limit=N to cap the returned list. The response
// carries both the returned count and the total:
//
//	{
//	  "count": 1,
//	  "total": 2,
//	  "clients": [
//	    {"identity": "alice", "remote_ip": "10.0.0.2", "session_id": 3, "last_activity": "2024-03-09 14:05:07"}
//	  ]
//	}
//
// Usage:
//
//	server := api.NewServer(bridge, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//	http.ListenAndServe(":8080", server)
//
// Error Handling:
//
// Errors are returned as JSON with an appropriate HTTP status code:
//
//	{"error": "limit must be a non-negative integer"}
//
// Every response carries an X-Request-ID header, copied from the request when
// present and generated otherwise.
package api
