// Package service provides the acceptor lifecycle manager and status reporter
// for the bridge.
//
// The service package implements:
//   - Start, Restart and Dispose of a single owned acceptor
//   - Server status derived from the immutable configuration
//   - Client status lists joining the identity registry with live sessions
//   - Lifecycle counters for metrics
//
// Core Interfaces:
//
// BridgeService is the operation set used by the management API, the MCP tools
// and the metrics collector. Bridge is its implementation. SessionRegistry is
// the read side of the identity registry, and Acceptor is the networking-layer
// handle the bridge owns. A Binder creates acceptors; ListenWebsocket is the
// default.
//
// Concurrency:
//
// The current acceptor is held in an atomic pointer. Lifecycle calls serialize
// on a mutex and publish a new acceptor only after it is bound and serving.
// Restart unpublishes and fully disposes the old acceptor before binding again,
// so the port is free for the new bind. Status queries load the pointer once
// and work from copies of the registry and the live session table.
//
// Staleness:
//
// The registry is maintained by the connection handler and may briefly hold
// entries whose session has already closed. ClientStatusList skips those
// entries without removing them; pruning is the handler's job.
//
// Usage:
//
//	registry := session.NewRegistry()
//	h := handler.New(registry)
//	bridge := service.NewBridge(cfg, registry, h)
//
//	bridge.Start()
//	defer bridge.Dispose()
//
//	for _, c := range bridge.ClientStatusList() {
//		fmt.Println(c.Identity, c.RemoteIP, c.LastActivity)
//	}
package service
