package websocket

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/bridge/logger"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("session send buffer full")
)

// Session is one accepted websocket connection
type Session struct {
	id         int64
	acceptor   *Acceptor
	conn       *websocket.Conn
	remoteAddr net.Addr
	createdAt  time.Time
	send       chan []byte

	// Unix nanoseconds of the last completed read and write.
	lastRead  atomic.Int64
	lastWrite atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id int64, conn *websocket.Conn, a *Acceptor) *Session {
	now := time.Now()
	s := &Session{
		id:         id,
		acceptor:   a,
		conn:       conn,
		remoteAddr: conn.RemoteAddr(),
		createdAt:  now,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
	}
	s.lastRead.Store(now.UnixNano())
	s.lastWrite.Store(now.UnixNano())
	return s
}

// ID returns the process-unique session ID
func (s *Session) ID() int64 { return s.id }

// RemoteAddr returns the peer address
func (s *Session) RemoteAddr() net.Addr { return s.remoteAddr }

// RemoteIP returns the peer IP without the port
func (s *Session) RemoteIP() string {
	return hostOf(s.remoteAddr)
}

// LastActivity returns the later of the last read and last write
func (s *Session) LastActivity() time.Time {
	r, w := s.lastRead.Load(), s.lastWrite.Load()
	if w > r {
		r = w
	}
	return time.Unix(0, r)
}

// Info returns a copy of the session handle
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:           s.id,
		RemoteAddr:   addrString(s.remoteAddr),
		RemoteIP:     s.RemoteIP(),
		CreatedAt:    s.createdAt,
		LastActivity: s.LastActivity(),
	}
}

// idleFor returns how long both directions have been quiet
func (s *Session) idleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

// Send queues a text frame for the peer without blocking. It fails with
// ErrAcceptorDisposed once the owning acceptor is disposed.
func (s *Session) Send(data []byte) error {
	select {
	case <-s.acceptor.done:
		return ErrAcceptorDisposed
	default:
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSendBufferFull
	}
}

// Closed returns a channel that is closed once the session is closed
func (s *Session) Closed() <-chan struct{} { return s.done }

// Close removes the session from the live table and closes the connection.
// The handler's SessionClosed runs once, after removal.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.acceptor.remove(s)

		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(closeGracePeriod))
		err = s.conn.Close()

		s.acceptor.handler.SessionClosed(s)
	})
	return err
}

// readPump pumps frames from the connection to the handler
func (s *Session) readPump() {
	defer func() {
		s.Close()
		s.acceptor.wg.Done()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetPingHandler(func(appData string) error {
		s.lastRead.Store(time.Now().UnixNano())
		err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == nil {
			s.lastWrite.Store(time.Now().UnixNano())
		}
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("Session %d read error: %v", s.id, err)
			}
			return
		}
		s.lastRead.Store(time.Now().UnixNano())
		s.acceptor.handler.MessageReceived(s, data)
	}
}

// writePump pumps queued frames from Send to the connection
func (s *Session) writePump() {
	defer func() {
		s.Close()
		s.acceptor.wg.Done()
	}()

	for {
		select {
		case <-s.done:
			return
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("Session %d write failed: %v", s.id, err)
				return
			}
			s.lastWrite.Store(time.Now().UnixNano())
		}
	}
}

func hostOf(addr net.Addr) string {
	switch a := addr.(type) {
	case nil:
		return ""
	case *net.TCPAddr:
		return a.IP.String()
	default:
		host, _, err := net.SplitHostPort(a.String())
		if err != nil {
			return a.String()
		}
		return host
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
