package websocket

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/bridge/bridge/config"
	"github.com/wricardo/bridge/logger"
	"golang.org/x/net/netutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Outbound frames buffered per session before Send reports backpressure.
	sendBufferSize = 256

	// Upper bound on how often idle sessions are checked.
	maxIdleCheckInterval = time.Second

	// Time allowed for the close frame when a session is closed.
	closeGracePeriod = time.Second
)

// ErrAcceptorDisposed is returned by Session.Send after the acceptor that owns
// the session was disposed.
var ErrAcceptorDisposed = errors.New("acceptor disposed")

// Session IDs are unique for the lifetime of the process, across acceptors, so
// a registry entry left over from a disposed acceptor can never match a
// session accepted after a restart.
var sessionIDs atomic.Int64

// Handler receives session events from an Acceptor. Callbacks run on the
// session's own goroutines and must not block for long.
type Handler interface {
	SessionOpened(s *Session)
	MessageReceived(s *Session, data []byte)
	SessionIdle(s *Session)
	SessionClosed(s *Session)
}

// SessionInfo is a point-in-time copy of a live session's handle.
type SessionInfo struct {
	ID           int64     `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	RemoteIP     string    `json:"remote_ip"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Acceptor owns one listening socket and the sessions accepted on it. An
// Acceptor is bound by Listen and cannot be rebound once disposed.
type Acceptor struct {
	cfg        config.Config
	handler    Handler
	listener   net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader

	// Live session table
	sessions map[int64]*Session
	closed   bool
	mu       sync.RWMutex

	active      atomic.Bool
	done        chan struct{}
	disposeOnce sync.Once
	wg          sync.WaitGroup
}

// Listen binds cfg.Addr() and starts accepting websocket sessions, delivering
// their events to handler. The returned Acceptor is fully serving.
func Listen(cfg config.Config, handler Handler) (*Acceptor, error) {
	if handler == nil {
		return nil, errors.New("websocket: nil handler")
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", cfg.Addr(), err)
	}

	a := &Acceptor{
		cfg:      cfg,
		handler:  handler,
		listener: ln,
		sessions: make(map[int64]*Session),
		done:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Clients are not browsers; origin carries no meaning here.
				return true
			},
		},
	}

	served := ln
	if n := cfg.MaxConnections(); n > 0 {
		served = netutil.LimitListener(ln, n)
	}

	a.httpServer = &http.Server{
		Handler:           http.HandlerFunc(a.serveWS),
		ReadHeaderTimeout: writeWait,
	}

	a.active.Store(true)

	a.wg.Add(2)
	go a.serve(served)
	go a.idleLoop()

	return a, nil
}

// serve runs the HTTP accept loop until the listener is closed
func (a *Acceptor) serve(ln net.Listener) {
	defer a.wg.Done()

	err := a.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Acceptor on %s stopped serving: %v", a.cfg.Addr(), err)
	}
	a.active.Store(false)
}

// serveWS upgrades an HTTP request and registers the resulting session
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	s := newSession(sessionIDs.Add(1), conn, a)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.sessions[s.id] = s
	a.wg.Add(2)
	total := len(a.sessions)
	a.mu.Unlock()

	logger.Debug("Session %d opened from %s (total sessions: %d)", s.id, s.RemoteAddr(), total)
	a.handler.SessionOpened(s)

	go s.writePump()
	go s.readPump()
}

// remove drops a session from the live table. Called exactly once per session
// from Session.Close.
func (a *Acceptor) remove(s *Session) {
	a.mu.Lock()
	delete(a.sessions, s.id)
	remaining := len(a.sessions)
	a.mu.Unlock()

	logger.Debug("Session %d removed (remaining sessions: %d)", s.id, remaining)
}

// idleLoop closes sessions that saw no reads and no writes for the idle timeout
func (a *Acceptor) idleLoop() {
	defer a.wg.Done()

	idle := a.cfg.IdleTimeout()
	if idle <= 0 {
		logger.Warn("Acceptor on %s has no idle timeout; idle sessions are never closed", a.cfg.Addr())
		return
	}
	interval := idle / 4
	if interval > maxIdleCheckInterval {
		interval = maxIdleCheckInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case now := <-ticker.C:
			a.closeIdle(now, idle)
		}
	}
}

func (a *Acceptor) closeIdle(now time.Time, idle time.Duration) {
	var expired []*Session
	for _, s := range a.liveSessions() {
		if s.idleFor(now) >= idle {
			expired = append(expired, s)
		}
	}

	closeSessions(expired, func(s *Session) {
		logger.Info("Session %d idle for %s in both directions, closing", s.id, idle)
		a.handler.SessionIdle(s)
	})
}

// closeSessions closes every session concurrently, running before on each
// first, and returns once all are closed. The total wait is bounded by one
// closeGracePeriod regardless of how many peers are unresponsive.
func closeSessions(sessions []*Session, before func(*Session)) {
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if before != nil {
				before(s)
			}
			s.Close()
		}(s)
	}
	wg.Wait()
}

func (a *Acceptor) liveSessions() []*Session {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sessions := make([]*Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Session returns the live session with the given ID
func (a *Acceptor) Session(id int64) (*Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.sessions[id]
	return s, ok
}

// ManagedSessions returns a copy of the live session table keyed by session ID.
// The copy is taken under the read lock; callers may use it freely.
func (a *Acceptor) ManagedSessions() map[int64]SessionInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()

	table := make(map[int64]SessionInfo, len(a.sessions))
	for id, s := range a.sessions {
		table[id] = s.Info()
	}
	return table
}

// SessionCount returns the number of live sessions
func (a *Acceptor) SessionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

// Addr returns the bound listener address, which differs from the configured
// one when port 0 was requested.
func (a *Acceptor) Addr() net.Addr {
	return a.listener.Addr()
}

// IsActive reports whether the listener is bound and accepting.
func (a *Acceptor) IsActive() bool {
	return a != nil && a.active.Load()
}

// Dispose closes the listener and every live session, then waits for all
// serving goroutines to exit. When Dispose returns the port is released.
// It is safe to call more than once.
func (a *Acceptor) Dispose() {
	a.disposeOnce.Do(func() {
		logger.Info("Disposing acceptor on %s", a.cfg.Addr())

		a.active.Store(false)
		close(a.done)

		a.mu.Lock()
		a.closed = true
		sessions := make([]*Session, 0, len(a.sessions))
		for _, s := range a.sessions {
			sessions = append(sessions, s)
		}
		a.mu.Unlock()

		if err := a.httpServer.Close(); err != nil {
			logger.Warn("Error closing listener on %s: %v", a.cfg.Addr(), err)
		}

		closeSessions(sessions, nil)

		a.wg.Wait()
		logger.Info("Acceptor on %s disposed (%d sessions closed)", a.cfg.Addr(), len(sessions))
	})
}
