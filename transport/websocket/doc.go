// Package websocket provides the networking layer of the bridge.
//
// The websocket package implements:
//   - Binding a listening socket and accepting websocket sessions
//   - A live session table keyed by process-unique session ID
//   - Bidirectional idle detection and disconnection
//   - Full teardown of the listener and every session on Dispose
//
// Architecture:
//
// An Acceptor owns one listener. Each accepted connection becomes a Session
// served by a read pump and a write pump. Session events are delivered to a
// Handler supplied at Listen time; the Handler is the connection handling
// layer and decides what frames mean. Frames are passed through untouched.
//
// Live Session Table:
//
// A session is inserted into the table before SessionOpened fires and removed
// before SessionClosed fires, at the moment its connection is torn down.
// ManagedSessions returns a copy of the table, so readers never observe
// concurrent mutation.
//
// Idle Policy:
//
// A session whose last read and last write are both older than the configured
// idle timeout receives SessionIdle and is then closed.
//
// Usage:
//
//	acceptor, err := websocket.Listen(cfg, handler)
//	if err != nil {
//		log.Printf("bind failed: %v", err)
//		return
//	}
//	defer acceptor.Dispose()
//
//	for id, info := range acceptor.ManagedSessions() {
//		fmt.Println(id, info.RemoteIP, info.LastActivity)
//	}
//
// Concurrency:
//
// All Acceptor and Session methods are safe for concurrent use. Dispose blocks
// until every goroutine it started has exited, so the port is free for a new
// Listen as soon as it returns.
package websocket
