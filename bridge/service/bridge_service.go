package service

import (
	"github.com/wricardo/bridge/bridge/config"
	"github.com/wricardo/bridge/bridge/session"
	"github.com/wricardo/bridge/transport/websocket"
)

// BridgeService defines the acceptor lifecycle and status operations
type BridgeService interface {
	// Lifecycle
	Start()
	Restart()
	Dispose()
	IsActive() bool
	State() State

	// Status
	ServerStatus() ServerStatus
	ClientStatusList() []ClientStatus
	Stats() Stats
}

// SessionRegistry is the read side of the identity registry the status
// reporter joins against
type SessionRegistry interface {
	Snapshot() []session.Entry
}

// Acceptor is the networking-layer handle owned by the bridge
type Acceptor interface {
	IsActive() bool
	Dispose()
	ManagedSessions() map[int64]websocket.SessionInfo
}

// Binder binds a new acceptor for cfg and delivers its session events to h.
// The returned Acceptor must already be serving.
type Binder func(cfg config.Config, h websocket.Handler) (Acceptor, error)

// ListenWebsocket is the default Binder.
func ListenWebsocket(cfg config.Config, h websocket.Handler) (Acceptor, error) {
	a, err := websocket.Listen(cfg, h)
	if err != nil {
		// Return a nil interface rather than a typed nil pointer.
		return nil, err
	}
	return a, nil
}
