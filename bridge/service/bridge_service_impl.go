package service

import (
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wricardo/bridge/bridge/config"
	"github.com/wricardo/bridge/logger"
	"github.com/wricardo/bridge/transport/websocket"
)

// boundAcceptor is the published acceptor together with when it was bound
type boundAcceptor struct {
	acceptor Acceptor
	boundAt  time.Time
}

// Bridge owns at most one acceptor and reports status across it and the
// identity registry.
//
// Start, Restart and Dispose serialize on mu. Readers never take mu: they load
// the published acceptor once and work from copies of both tables, so a query
// running during Restart sees either the old acceptor's sessions or the new
// one's, never a mix.
type Bridge struct {
	cfg      config.Config
	registry SessionRegistry
	handler  websocket.Handler
	bind     Binder
	loc      *time.Location
	log      *logger.Logger

	current atomic.Pointer[boundAcceptor]
	mu      sync.Mutex

	started      atomic.Bool
	restarts     atomic.Int64
	bindFailures atomic.Int64
}

var _ BridgeService = (*Bridge)(nil)

// Option configures a Bridge
type Option func(*Bridge)

// WithBinder replaces the function used to bind acceptors
func WithBinder(bind Binder) Option {
	return func(b *Bridge) { b.bind = bind }
}

// WithLocation sets the time zone used to format client timestamps.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(b *Bridge) { b.loc = loc }
}

// WithLogger sets the logger used for lifecycle messages
func WithLogger(l *logger.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// NewBridge creates a bridge with no acceptor. Call Start to bind. cfg should
// come from config.New; a zero Config binds an ephemeral port on every
// interface and never closes idle sessions.
func NewBridge(cfg config.Config, registry SessionRegistry, handler websocket.Handler, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:      cfg,
		registry: registry,
		handler:  handler,
		bind:     ListenWebsocket,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Global().WithPrefix("bridge")
	}
	return b
}

// Start binds a new acceptor on the configured address. A bind failure is
// logged and leaves the bridge inactive. Start on an active bridge does
// nothing.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur := b.current.Load(); cur != nil && cur.acceptor.IsActive() {
		b.log.Info("Acceptor already active on %s, ignoring start", b.cfg.Addr())
		return
	}
	b.startLocked()
}

// Restart disposes the current acceptor, releasing its port and closing every
// session, then binds a fresh one.
func (b *Bridge) Restart() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.restarts.Add(1)
	b.log.Info("Restarting acceptor on %s", b.cfg.Addr())
	b.startLocked()
}

// Dispose closes the acceptor and leaves the bridge inactive
func (b *Bridge) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.disposeLocked()
}

// startLocked disposes any existing acceptor and binds a new one. The new
// acceptor is published only once it is serving.
func (b *Bridge) startLocked() {
	b.disposeLocked()
	b.started.Store(true)

	acceptor, err := b.bind(b.cfg, b.handler)
	if err != nil {
		b.bindFailures.Add(1)
		b.log.Error("Failed to start acceptor on %s: %v", b.cfg.Addr(), err)
		return
	}

	b.current.Store(&boundAcceptor{acceptor: acceptor, boundAt: time.Now()})
	b.log.Info("Acceptor listening on %s (idle timeout %ds)", b.cfg.Addr(), b.cfg.IdleTimeoutSeconds())
}

// disposeLocked unpublishes the acceptor, then disposes it. Dispose returns
// only after the port is released.
func (b *Bridge) disposeLocked() {
	cur := b.current.Swap(nil)
	if cur == nil {
		return
	}
	cur.acceptor.Dispose()
}

// IsActive reports whether an acceptor exists and is accepting
func (b *Bridge) IsActive() bool {
	cur := b.current.Load()
	return cur != nil && cur.acceptor.IsActive()
}

// State returns the lifecycle state
func (b *Bridge) State() State {
	if !b.started.Load() {
		return StateUninitialized
	}
	if b.IsActive() {
		return StateActive
	}
	return StateInactive
}

// ServerStatus returns the configured settings verbatim and the active flag
func (b *Bridge) ServerStatus() ServerStatus {
	return ServerStatus{
		BindAddress:        b.cfg.BindAddress(),
		Port:               b.cfg.Port(),
		IdleTimeoutSeconds: b.cfg.IdleTimeoutSeconds(),
		Active:             b.IsActive(),
	}
}

// LiveSessions returns a copy of the current acceptor's session table, or an
// empty table when there is no acceptor
func (b *Bridge) LiveSessions() map[int64]websocket.SessionInfo {
	cur := b.current.Load()
	if cur == nil {
		return map[int64]websocket.SessionInfo{}
	}
	return cur.acceptor.ManagedSessions()
}

// ClientStatusList joins the registry with the live session table on session
// ID. Registry entries whose session is no longer live are left out; neither
// table is modified. The result is sorted by identity and never nil.
func (b *Bridge) ClientStatusList() []ClientStatus {
	entries := b.registry.Snapshot()
	live := b.LiveSessions()

	clients := make([]ClientStatus, 0, len(entries))
	for _, entry := range entries {
		info, ok := live[entry.SessionID]
		if !ok {
			continue
		}
		clients = append(clients, ClientStatus{
			Identity:     entry.Identity,
			RemoteIP:     remoteIP(info),
			SessionID:    entry.SessionID,
			LastActivity: info.LastActivity.In(b.loc).Format(TimestampLayout),
		})
	}

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].Identity < clients[j].Identity
	})
	return clients
}

// Stats returns lifecycle counters and current table sizes
func (b *Bridge) Stats() Stats {
	stats := Stats{
		State:                b.State(),
		Restarts:             b.restarts.Load(),
		BindFailures:         b.bindFailures.Load(),
		RegisteredIdentities: len(b.registry.Snapshot()),
	}
	if cur := b.current.Load(); cur != nil {
		stats.LiveSessions = len(cur.acceptor.ManagedSessions())
		stats.BoundAt = cur.boundAt
	}
	return stats
}

func remoteIP(info websocket.SessionInfo) string {
	if info.RemoteIP != "" {
		return info.RemoteIP
	}
	host, _, err := net.SplitHostPort(info.RemoteAddr)
	if err != nil {
		return info.RemoteAddr
	}
	return host
}
