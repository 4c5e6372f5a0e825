package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Room is the aggregate root for one poll: metadata, participants and the
// vote map, all mutated under a single mutex so that join, vote and
// state-change operations on the same room never interleave partially.
//
// Broadcasts are produced while the lock is held. The publish hook only
// enqueues (see Broadcaster), which keeps enqueue order identical to sequence
// order without letting slow clients block the mutation path.
type Room struct {
	mu sync.Mutex

	poll         Poll
	participants map[string]*Participant // by participant id
	byNickname   map[string]string       // nickname -> participant id
	votes        map[string]int          // participant id -> option index
	graceTimers  map[string]*time.Timer

	seq          uint64
	grace        time.Duration
	lastActivity time.Time
	destroyed    bool

	publish func(Event)
}

func newRoom(p Poll, grace time.Duration, publish func(Event)) *Room {
	if publish == nil {
		publish = func(Event) {}
	}
	return &Room{
		poll:         p,
		participants: make(map[string]*Participant),
		byNickname:   make(map[string]string),
		votes:        make(map[string]int),
		graceTimers:  make(map[string]*time.Timer),
		grace:        grace,
		lastActivity: time.Now(),
		publish:      publish,
	}
}

func (r *Room) Code() string { return r.poll.RoomCode }

// Join binds a connection to a participant identity. A nickname held by a
// currently connected participant fails with ErrNicknameTaken; a nickname held
// by a participant inside the grace window rebinds that participant, so the
// prior vote is still reflected in the tally and no duplicate is created.
func (r *Room) Join(nickname, connectionID string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return Participant{}, ErrRoomNotFound
	}

	if id, ok := r.byNickname[nickname]; ok {
		p := r.participants[id]
		if p.connected() {
			return Participant{}, ErrNicknameTaken
		}
		r.rebindLocked(p, connectionID)
		return *p, nil
	}

	p := &Participant{
		ID:           uuid.NewString(),
		Nickname:     nickname,
		RoomCode:     r.poll.RoomCode,
		ConnectionID: connectionID,
		JoinedAt:     time.Now(),
	}
	r.participants[p.ID] = p
	r.byNickname[nickname] = p.ID
	r.touchLocked()

	r.emitLocked(EventParticipantJoin, ParticipantPayload{
		ParticipantID:    p.ID,
		Nickname:         p.Nickname,
		ParticipantCount: r.connectedLocked(),
	})
	return *p, nil
}

// Resume rebinds a known participant id to a new connection, used when a
// client reconnects with its session token. Resuming over a connection the
// server still believes is live just replaces it; the client is the authority
// on which of its connections is current.
func (r *Room) Resume(participantID, connectionID string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return Participant{}, ErrRoomNotFound
	}
	p, ok := r.participants[participantID]
	if !ok {
		return Participant{}, ErrParticipantGone
	}
	if p.connected() {
		p.ConnectionID = connectionID
		r.touchLocked()
		return *p, nil
	}
	r.rebindLocked(p, connectionID)
	return *p, nil
}

// rebindLocked resumes a disconnected participant: grace timer cancelled,
// connection restored, and the room told they are back.
func (r *Room) rebindLocked(p *Participant, connectionID string) {
	if t, ok := r.graceTimers[p.ID]; ok {
		t.Stop()
		delete(r.graceTimers, p.ID)
	}
	p.ConnectionID = connectionID
	r.touchLocked()

	r.emitLocked(EventParticipantJoin, ParticipantPayload{
		ParticipantID:    p.ID,
		Nickname:         p.Nickname,
		ParticipantCount: r.connectedLocked(),
	})
}

// Disconnect clears the participant's connection and starts the grace window.
// No participant-left is emitted yet: a disconnect that resolves within the
// window is invisible to the room. Stale disconnects from a connection that
// has already been replaced are ignored.
func (r *Room) Disconnect(participantID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return
	}
	p, ok := r.participants[participantID]
	if !ok || p.ConnectionID != connectionID {
		return
	}
	p.ConnectionID = ""
	r.touchLocked()

	id := participantID
	r.graceTimers[id] = time.AfterFunc(r.grace, func() { r.expire(id) })
}

// expire permanently removes a participant whose grace window ran out. The
// nickname is freed and participant-left goes out now; this is the only point
// such an event is emitted. Votes already cast stay in the tally: a ballot is
// an anonymous increment once counted.
func (r *Room) expire(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[participantID]
	if r.destroyed || !ok || p.connected() {
		return
	}
	delete(r.participants, participantID)
	delete(r.byNickname, p.Nickname)
	delete(r.graceTimers, participantID)

	r.emitLocked(EventParticipantLeft, ParticipantPayload{
		ParticipantID:    p.ID,
		Nickname:         p.Nickname,
		ParticipantCount: r.connectedLocked(),
	})
}

// SubmitVote records or replaces the participant's vote (last write wins) and
// returns the recomputed tally. Resubmitting the same vote after a reconnect
// recomputes an identical tally, so the operation is idempotent.
func (r *Room) SubmitVote(participantID string, optionIndex int) (Tally, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return Tally{}, ErrRoomNotFound
	}
	if _, ok := r.participants[participantID]; !ok {
		return Tally{}, ErrParticipantGone
	}
	if r.poll.State != StateOpen {
		return Tally{}, ErrVotingClosed
	}
	if optionIndex < 0 || optionIndex >= len(r.poll.Options) {
		return Tally{}, ErrInvalidOption
	}

	r.votes[participantID] = optionIndex
	tally := computeTally(r.votes, len(r.poll.Options))
	r.touchLocked()

	seq := r.nextSeqLocked()
	r.publish(Event{Type: EventVoteUpdate, Seq: seq, Payload: VoteUpdatePayload{
		Votes:       tally.Counts,
		Percentages: tally.Percentages,
		Timestamp:   time.Now(),
		Sequence:    seq,
	}})
	return tally, nil
}

// Transition advances the poll lifecycle. Only waiting→open, open→closed and
// closed→open are accepted; everything else, including re-requesting the
// current state, fails with ErrInvalidTransition.
func (r *Room) Transition(requested PollState) (PollState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return "", ErrRoomNotFound
	}
	if !requested.valid() || !allowedTransition(r.poll.State, requested) {
		return "", ErrInvalidTransition
	}

	prev := r.poll.State
	r.poll.State = requested
	r.touchLocked()

	seq := r.nextSeqLocked()
	r.publish(Event{Type: EventPollStateChanged, Seq: seq, Payload: StateChangedPayload{
		PreviousState: prev,
		NewState:      requested,
		Timestamp:     time.Now(),
		Sequence:      seq,
	}})
	return prev, nil
}

// Snapshot returns the full current state for initial page load and for
// reconnection recovery; missed events are never replayed.
func (r *Room) Snapshot() (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return Snapshot{}, ErrRoomNotFound
	}
	p := r.poll
	p.Options = append([]string(nil), r.poll.Options...)
	return Snapshot{
		Poll:             p,
		Tally:            computeTally(r.votes, len(r.poll.Options)),
		ParticipantCount: r.connectedLocked(),
		Seq:              r.seq,
	}, nil
}

// ParticipantCount counts participants with a live connection.
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedLocked()
}

// destroy marks the room dead, stops all timers and reports whether the poll
// ended closed together with its final record. Runs at most once; the
// destroyed flag makes every later operation observe a missing room.
func (r *Room) destroy() (ArchiveRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return ArchiveRecord{}, false
	}
	r.destroyed = true
	for id, t := range r.graceTimers {
		t.Stop()
		delete(r.graceTimers, id)
	}

	if r.poll.State != StateClosed {
		return ArchiveRecord{}, false
	}
	tally := computeTally(r.votes, len(r.poll.Options))
	return ArchiveRecord{
		PollID:    r.poll.ID,
		RoomCode:  r.poll.RoomCode,
		Question:  r.poll.Question,
		Options:   append([]string(nil), r.poll.Options...),
		Counts:    tally.Counts,
		Total:     tally.Total,
		CreatedAt: r.poll.CreatedAt,
		ClosedAt:  time.Now(),
	}, true
}

// idle reports whether nobody is connected and nothing has happened for ttl.
func (r *Room) idle(ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedLocked() == 0 && time.Since(r.lastActivity) > ttl
}

func (r *Room) connectedLocked() int {
	n := 0
	for _, p := range r.participants {
		if p.connected() {
			n++
		}
	}
	return n
}

func (r *Room) nextSeqLocked() uint64 {
	r.seq++
	return r.seq
}

func (r *Room) emitLocked(t EventType, payload any) {
	r.publish(Event{Type: t, Seq: r.nextSeqLocked(), Payload: payload})
}

func (r *Room) touchLocked() {
	r.lastActivity = time.Now()
}
