package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// Session is one authenticated websocket connection. The actor is attached
// once, at authentication, and every handler uses it instead of anything
// the client sends.
type Session struct {
	id    string
	actor chat.Actor
	conn  *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, actor chat.Actor) *Session {
	return &Session{
		id:    uuid.NewString(),
		actor: actor,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
	}
}

func (s *Session) SessionID() string { return s.id }

// Actor returns the identity attached at authentication.
func (s *Session) Actor() chat.Actor { return s.actor }

// Send queues frame for the write pump. It never blocks: a full queue or a
// closed session reports false.
func (s *Session) Send(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// writePump is the only writer of the connection after authentication.
func (s *Session) writePump(log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("write failed", zap.String("session_id", s.id), zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
