package room

import "time"

type EventType string

const (
	EventVoteUpdate       EventType = "vote-update"
	EventPollStateChanged EventType = "poll-state-changed"
	EventParticipantJoin  EventType = "participant-joined"
	EventParticipantLeft  EventType = "participant-left"
)

// Event is one room-scoped broadcast. Seq is the room's transition/aggregation
// counter; events for the same room must reach every session in Seq order.
type Event struct {
	Type    EventType
	Seq     uint64
	Payload any
}

type VoteUpdatePayload struct {
	Votes       []int     `json:"votes"`
	Percentages []int     `json:"percentages"`
	Timestamp   time.Time `json:"timestamp"`
	Sequence    uint64    `json:"sequence"`
}

type StateChangedPayload struct {
	PreviousState PollState `json:"previous_state"`
	NewState      PollState `json:"new_state"`
	Timestamp     time.Time `json:"timestamp"`
	Sequence      uint64    `json:"sequence"`
}

type ParticipantPayload struct {
	ParticipantID    string `json:"participant_id"`
	Nickname         string `json:"nickname"`
	ParticipantCount int    `json:"participant_count"`
}

// Broadcaster fans one event out to every session bound to a room. Publish is
// called while the room lock is held, so implementations must not block: they
// enqueue and return.
type Broadcaster interface {
	Publish(roomCode string, ev Event)
}

// NopBroadcaster discards events; used in tests and before the hub is wired.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(string, Event) {}
