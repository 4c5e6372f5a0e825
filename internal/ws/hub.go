package ws

import (
	"log/slog"
	"sync"

	"pollsync/internal/domain/room"
	"pollsync/internal/metrics"
)

// Hub is the broadcast dispatcher: it knows which sessions are bound to which
// room and fans room events out to them.
//
// Publish is called while the owning room's lock is held, which serializes
// publishes per room; each session's buffered channel then preserves that
// order, so no client ever sees a lower sequence number after a higher one.
// Delivery itself is asynchronous per session (the write pump), and a session
// whose buffer is full is cut loose instead of delaying the room: best-effort
// delivery, with reconnect recovered by a full snapshot.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*session]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[*session]struct{}),
		logger: logger,
	}
}

var _ room.Broadcaster = (*Hub)(nil)

func (h *Hub) Publish(roomCode string, ev room.Event) {
	frame, err := encodeEvent(ev)
	if err != nil {
		h.logger.Error("encode event", "room", roomCode, "type", ev.Type, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[roomCode] {
		if !s.trySend(frame) {
			metrics.IncDroppedEvent()
			h.logger.Warn("session buffer full, dropping session",
				"room", roomCode, "session", s.id, "seq", ev.Seq)
			s.close()
		}
	}
}

func (h *Hub) add(roomCode string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomCode] == nil {
		h.rooms[roomCode] = make(map[*session]struct{})
	}
	h.rooms[roomCode][s] = struct{}{}
}

func (h *Hub) remove(roomCode string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[roomCode]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.rooms, roomCode)
	}
}

// CloseAll closes every bound session. Server shutdown does not reach
// hijacked connections, so the hub has to cut them itself.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for code, set := range h.rooms {
		for s := range set {
			s.close()
		}
		delete(h.rooms, code)
	}
}

// Sessions reports how many sessions are currently bound to a room.
func (h *Hub) Sessions(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}
