package room

import (
	"time"
)

// PollState is the lifecycle state of a room's poll.
type PollState string

const (
	StateWaiting PollState = "waiting"
	StateOpen    PollState = "open"
	StateClosed  PollState = "closed"
)

func (s PollState) valid() bool {
	return s == StateWaiting || s == StateOpen || s == StateClosed
}

type Poll struct {
	ID        string    `json:"id"`
	RoomCode  string    `json:"room_code"`
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	State     PollState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Participant is one joined client identity. ConnectionID is empty while the
// participant is disconnected; the identity survives inside the grace window.
type Participant struct {
	ID           string    `json:"id"`
	Nickname     string    `json:"nickname"`
	RoomCode     string    `json:"room_code"`
	ConnectionID string    `json:"-"`
	JoinedAt     time.Time `json:"joined_at"`
}

func (p *Participant) connected() bool {
	return p.ConnectionID != ""
}

// Tally is derived from the vote map; Counts and Percentages always have one
// entry per option and Percentages sum to exactly 100 when Total > 0.
type Tally struct {
	Counts      []int `json:"counts"`
	Percentages []int `json:"percentages"`
	Total       int   `json:"total"`
}

// Snapshot is the full-state view handed to clients on page load and on
// reconnection, instead of replaying missed events.
type Snapshot struct {
	Poll             Poll   `json:"poll"`
	Tally            Tally  `json:"tally"`
	ParticipantCount int    `json:"participant_count"`
	Seq              uint64 `json:"sequence"`
}

// ArchiveRecord is the final result of a destroyed room with a closed poll,
// handed to the archive worker.
type ArchiveRecord struct {
	PollID    string
	RoomCode  string
	Question  string
	Options   []string
	Counts    []int
	Total     int
	CreatedAt time.Time
	ClosedAt  time.Time
}
