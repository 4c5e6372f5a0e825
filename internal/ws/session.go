package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pollsync/internal/domain/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 32
)

// session is one WebSocket connection. Outbound frames go through a buffered
// channel drained by a single write pump, so delivery to this client is
// ordered and never performed on the room mutation path.
type session struct {
	id   string
	conn *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once

	// bound identity, set by a successful join and read only from the
	// session's own read loop
	roomCode      string
	participantID string
	isHost        bool
}

func newSession(conn *websocket.Conn) *session {
	return &session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (s *session) bound() bool { return s.participantID != "" }

// trySend enqueues without blocking. A false return means the client's buffer
// is full; the caller decides whether that is fatal for the session.
func (s *session) trySend(frame []byte) bool {
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

// sendReply enqueues an ack or error with a bounded wait so a hung connection
// cannot park the read loop forever. On timeout the caller closes the session
// and the client retries through reconnect.
func (s *session) sendReply(msg message, timeout time.Duration) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return room.ErrTimeout
	case <-timer.C:
		return room.ErrTimeout
	}
}

// writePump owns all writes to the connection, including keepalive pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}
