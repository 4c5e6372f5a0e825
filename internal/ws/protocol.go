package ws

import (
	"encoding/json"
	"strings"

	"pollsync/internal/domain/room"
)

// Inbound command types.
const (
	cmdJoinRoom    = "join-room"
	cmdSubmitVote  = "submit-vote"
	cmdChangeState = "change-poll-state"
	cmdLeaveRoom   = "leave-room"
)

// Outbound message types that are not room broadcasts.
const (
	msgJoined   = "joined"
	msgAck      = "ack"
	msgError    = "error"
	msgSnapshot = "room-snapshot"
)

const maxNicknameLen = 50

// command is the inbound envelope. ID is a client correlation id echoed back
// on the matching ack or error.
type command struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type joinRoomPayload struct {
	RoomCode string `json:"room_code"`
	Nickname string `json:"nickname"`
	Token    string `json:"token,omitempty"`
}

type submitVotePayload struct {
	RoomCode      string `json:"room_code"`
	ParticipantID string `json:"participant_id"`
	OptionIndex   *int   `json:"option_index"`
}

type changeStatePayload struct {
	RoomCode       string `json:"room_code"`
	RequestedState string `json:"requested_state"`
}

// message is the outbound envelope, shared by acks, errors, snapshots and
// room broadcasts.
type message struct {
	Type    string     `json:"type"`
	ID      string     `json:"id,omitempty"`
	Payload any        `json:"payload,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type joinedPayload struct {
	ParticipantID string `json:"participant_id"`
	Nickname      string `json:"nickname"`
	Token         string `json:"token"`
}

// decodeCommand validates the envelope shape before anything touches room
// state. Anything that fails here is ErrMalformedMessage and is never applied.
func decodeCommand(data []byte) (command, error) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return command{}, room.ErrMalformedMessage
	}
	switch cmd.Type {
	case cmdJoinRoom, cmdSubmitVote, cmdChangeState, cmdLeaveRoom:
		return cmd, nil
	default:
		return command{}, room.ErrMalformedMessage
	}
}

func decodeJoinRoom(raw json.RawMessage) (joinRoomPayload, error) {
	var p joinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return joinRoomPayload{}, room.ErrMalformedMessage
	}
	p.Nickname = strings.TrimSpace(p.Nickname)
	if !room.ValidCode(p.RoomCode) {
		return joinRoomPayload{}, room.ErrMalformedMessage
	}
	if p.Nickname == "" || len(p.Nickname) > maxNicknameLen {
		return joinRoomPayload{}, room.ErrMalformedMessage
	}
	return p, nil
}

func decodeSubmitVote(raw json.RawMessage) (submitVotePayload, error) {
	var p submitVotePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return submitVotePayload{}, room.ErrMalformedMessage
	}
	if !room.ValidCode(p.RoomCode) || p.ParticipantID == "" {
		return submitVotePayload{}, room.ErrMalformedMessage
	}
	if p.OptionIndex == nil || *p.OptionIndex < 0 {
		return submitVotePayload{}, room.ErrMalformedMessage
	}
	return p, nil
}

func decodeChangeState(raw json.RawMessage) (changeStatePayload, error) {
	var p changeStatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return changeStatePayload{}, room.ErrMalformedMessage
	}
	if !room.ValidCode(p.RoomCode) || p.RequestedState == "" {
		return changeStatePayload{}, room.ErrMalformedMessage
	}
	return p, nil
}

func encodeEvent(ev room.Event) ([]byte, error) {
	return json.Marshal(message{Type: string(ev.Type), Payload: ev.Payload})
}
