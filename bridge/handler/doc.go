// Package handler is the bridge's connection-handling layer.
//
// It receives session events from the websocket acceptor and keeps the identity
// registry in step with them. Clients send JSON frames:
//
//	{"type":"login","identity":"bob"}
//	{"type":"logout"}
//	{"type":"heartbeat"}
//
// and receive {"type":"ack","of":"login"} or {"type":"error","message":"..."}.
// Any non-empty identity is accepted.
//
// A closed session releases its identity in SessionClosed. Sweep catches the
// rare entry that outlives its session, such as a login handled while the
// session was being torn down.
package handler
