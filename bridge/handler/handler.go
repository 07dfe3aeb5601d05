package handler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/wricardo/bridge/bridge/session"
	"github.com/wricardo/bridge/logger"
	"github.com/wricardo/bridge/transport/websocket"
)

// Frame types
const (
	TypeLogin     = "login"
	TypeLogout    = "logout"
	TypeHeartbeat = "heartbeat"
	TypeAck       = "ack"
	TypeError     = "error"
)

// Frame is the JSON envelope exchanged with clients
type Frame struct {
	Type     string `json:"type"`
	Identity string `json:"identity,omitempty"`
	Of       string `json:"of,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Registry is the identity registry the handler maintains
type Registry interface {
	Bind(identity string, sessionID int64) (previous int64, replaced bool, err error)
	IdentityOf(sessionID int64) (string, bool)
	UnbindSession(sessionID int64) int
	Snapshot() []session.Entry
	Prune(keep func(sessionID int64) bool) int
}

// LiveSessions returns a copy of the current live session table
type LiveSessions func() map[int64]websocket.SessionInfo

// FrameRecorder counts client frames by type
type FrameRecorder interface {
	RecordReceived(frameType string)
	RecordRejected(frameType string)
}

type nopRecorder struct{}

func (nopRecorder) RecordReceived(string) {}
func (nopRecorder) RecordRejected(string) {}

// Handler binds identities to sessions as clients log in and out. It is the
// only writer of the registry.
type Handler struct {
	registry Registry
	frames   FrameRecorder
	log      *logger.Logger
}

var _ websocket.Handler = (*Handler)(nil)

// Option configures a Handler
type Option func(*Handler)

// WithFrameRecorder counts frames handled
func WithFrameRecorder(r FrameRecorder) Option {
	return func(h *Handler) { h.frames = r }
}

// New creates a handler writing to registry
func New(registry Registry, opts ...Option) *Handler {
	h := &Handler{
		registry: registry,
		frames:   nopRecorder{},
		log:      logger.Global().WithPrefix("handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SessionOpened logs the new connection. Sessions are anonymous until login.
func (h *Handler) SessionOpened(s *websocket.Session) {
	h.log.Debug("Session %d opened from %s", s.ID(), s.RemoteIP())
}

// MessageReceived dispatches one client frame and replies with an ack or an
// error frame
func (h *Handler) MessageReceived(s *websocket.Session, data []byte) {
	var in Frame
	label := "malformed"
	out := Frame{Type: TypeError, Message: "malformed frame"}

	if err := json.Unmarshal(data, &in); err == nil {
		switch in.Type {
		case TypeLogin:
			label, out = in.Type, h.login(s, in.Identity)
		case TypeLogout:
			label, out = in.Type, h.logout(s)
		case TypeHeartbeat:
			label, out = in.Type, Frame{Type: TypeAck, Of: TypeHeartbeat}
		default:
			label, out = "unknown", Frame{Type: TypeError, Message: "unknown frame type: " + in.Type}
		}
	}

	h.frames.RecordReceived(label)
	if out.Type == TypeError {
		h.frames.RecordRejected(label)
	}
	if out.Type != "" {
		h.reply(s, out)
	}
}

func (h *Handler) login(s *websocket.Session, identity string) Frame {
	identity = strings.TrimSpace(identity)

	previous, replaced, err := h.registry.Bind(identity, s.ID())
	if err != nil {
		return Frame{Type: TypeError, Message: err.Error()}
	}

	// The session may have closed while this frame was handled, in which case
	// SessionClosed may already have run.
	select {
	case <-s.Closed():
		h.registry.UnbindSession(s.ID())
		return Frame{}
	default:
	}

	if replaced {
		h.log.Info("Identity %s moved from session %d to session %d", identity, previous, s.ID())
	} else {
		h.log.Info("Identity %s logged in on session %d from %s", identity, s.ID(), s.RemoteIP())
	}
	return Frame{Type: TypeAck, Of: TypeLogin}
}

func (h *Handler) logout(s *websocket.Session) Frame {
	identity, ok := h.registry.IdentityOf(s.ID())
	if !ok {
		return Frame{Type: TypeError, Message: "not logged in"}
	}
	h.registry.UnbindSession(s.ID())
	h.log.Info("Identity %s logged out of session %d", identity, s.ID())
	return Frame{Type: TypeAck, Of: TypeLogout}
}

// SessionIdle logs the idle eviction. The acceptor closes the session next.
func (h *Handler) SessionIdle(s *websocket.Session) {
	if identity, ok := h.registry.IdentityOf(s.ID()); ok {
		h.log.Info("Identity %s idle on session %d, disconnecting", identity, s.ID())
	}
}

// SessionClosed releases the session's identity
func (h *Handler) SessionClosed(s *websocket.Session) {
	if n := h.registry.UnbindSession(s.ID()); n > 0 {
		h.log.Debug("Session %d closed, released %d identity", s.ID(), n)
	}
}

func (h *Handler) reply(s *websocket.Session, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.Error("Failed to encode %s frame: %v", f.Type, err)
		return
	}
	if err := s.Send(data); err != nil {
		h.log.Debug("Reply to session %d dropped: %v", s.ID(), err)
	}
}

// Sweep removes registry entries whose session is no longer live and returns
// how many were removed.
//
// Only entries already present before the live table is read are candidates,
// so a login racing with the sweep is never removed. Session IDs are never
// reused, so a candidate missing from the live table is gone for good.
func (h *Handler) Sweep(live LiveSessions) int {
	candidates := h.registry.Snapshot()
	table := live()

	stale := make(map[int64]struct{})
	for _, e := range candidates {
		if _, ok := table[e.SessionID]; !ok {
			stale[e.SessionID] = struct{}{}
		}
	}
	if len(stale) == 0 {
		return 0
	}

	removed := h.registry.Prune(func(sessionID int64) bool {
		_, dead := stale[sessionID]
		return !dead
	})
	if removed > 0 {
		h.log.Info("Swept %d stale registry entries", removed)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled. A non-positive
// interval disables sweeping and returns immediately.
func (h *Handler) RunSweeper(ctx context.Context, interval time.Duration, live LiveSessions) error {
	if interval <= 0 {
		h.log.Info("Registry sweeper disabled (interval %s)", interval)
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Sweep(live)
		}
	}
}
