package room

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pollsync/internal/metrics"
)

const maxCodeAttempts = 10

// Registry owns the map from room code to live Room. The map itself is only
// touched under the registry lock; everything inside a Room goes through the
// room's own lock, so operations on different rooms run fully in parallel.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	grace   time.Duration
	idleTTL time.Duration

	broadcaster Broadcaster
	archiveCh   chan<- ArchiveRecord // optional; nil drops records
	logger      *slog.Logger
}

func NewRegistry(b Broadcaster, grace, idleTTL time.Duration, archiveCh chan<- ArchiveRecord, logger *slog.Logger) *Registry {
	if b == nil {
		b = NopBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		grace:       grace,
		idleTTL:     idleTTL,
		broadcaster: b,
		archiveCh:   archiveCh,
		logger:      logger,
	}
}

// CreateRoom makes a new room with a unique code. Collisions against live
// rooms are astronomically unlikely with a 32-symbol 6-character code, but the
// generator still checks and retries rather than assuming it cannot happen.
func (reg *Registry) CreateRoom(question string, options []string) (*Room, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrQuestionRequired
	}
	if len(options) < 2 || len(options) > 5 {
		return nil, ErrInvalidOptions
	}
	for _, o := range options {
		if strings.TrimSpace(o) == "" {
			return nil, ErrInvalidOptions
		}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	var code string
	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return nil, ErrCodeSpaceDrained
		}
		c, err := newCode()
		if err != nil {
			return nil, err
		}
		if _, taken := reg.rooms[c]; !taken {
			code = c
			break
		}
	}

	p := Poll{
		ID:        uuid.NewString(),
		RoomCode:  code,
		Question:  question,
		Options:   append([]string(nil), options...),
		State:     StateWaiting,
		CreatedAt: time.Now(),
	}
	r := newRoom(p, reg.grace, func(ev Event) { reg.broadcaster.Publish(code, ev) })
	reg.rooms[code] = r
	metrics.SetActiveRooms(len(reg.rooms))

	reg.logger.Info("room created", "room", code, "poll_id", p.ID, "options", len(options))
	return r, nil
}

func (reg *Registry) Get(code string) (*Room, error) {
	reg.mu.RLock()
	r, ok := reg.rooms[code]
	reg.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Destroy removes the room from the registry and kills it atomically: once
// the map entry is gone and the destroyed flag is set, no component can
// observe a half-destroyed room. A closed poll's final result is offered to
// the archive channel without blocking.
func (reg *Registry) Destroy(code string) {
	reg.mu.Lock()
	r, ok := reg.rooms[code]
	if ok {
		delete(reg.rooms, code)
		metrics.SetActiveRooms(len(reg.rooms))
	}
	reg.mu.Unlock()
	if !ok {
		return
	}

	rec, archivable := r.destroy()
	reg.logger.Info("room destroyed", "room", code)
	if archivable && reg.archiveCh != nil {
		select {
		case reg.archiveCh <- rec:
		default:
			reg.logger.Warn("archive queue full, dropping record", "room", code)
		}
	}
}

func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Run sweeps idle rooms until ctx is cancelled, keeping memory bounded when
// hosts abandon rooms without closing them.
func (reg *Registry) Run(ctx context.Context) {
	interval := reg.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.sweep()
		}
	}
}

func (reg *Registry) sweep() {
	reg.mu.RLock()
	var stale []string
	for code, r := range reg.rooms {
		if r.idle(reg.idleTTL) {
			stale = append(stale, code)
		}
	}
	reg.mu.RUnlock()

	for _, code := range stale {
		reg.logger.Info("expiring idle room", "room", code)
		reg.Destroy(code)
	}
}
