// Package session provides the identity registry for the bridge.
//
// The session package implements:
//   - Thread-safe identity to session ID storage
//   - One identity per session, one session per identity
//   - Copy-on-read snapshots for status reporting
//   - Pruning of entries whose session has gone away
//
// Ownership:
//
// The registry is written only by the connection handling layer: an entry is
// created when a client logs in and removed on logout or disconnect. Removal is
// not synchronous with the network connection closing, so readers must treat a
// session ID as valid only while the networking layer still reports it live.
//
// Concurrency:
//
// All methods are safe for concurrent use. Snapshot holds the read lock only for
// the duration of the copy, so status queries never block writers for long.
//
// Usage:
//
//	registry := session.NewRegistry()
//
//	if _, _, err := registry.Bind("bob", 7); err != nil {
//		log.Fatal(err)
//	}
//
//	for _, entry := range registry.Snapshot() {
//		fmt.Println(entry.Identity, entry.SessionID)
//	}
package session
