package room

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrNicknameTaken     = errors.New("nickname already taken in this room")
	ErrInvalidOption     = errors.New("option index out of range")
	ErrVotingClosed      = errors.New("voting is closed")
	ErrInvalidTransition = errors.New("invalid poll state transition")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrTimeout           = errors.New("operation timed out")

	ErrQuestionRequired = errors.New("question required")
	ErrInvalidOptions   = errors.New("poll must have between 2 and 5 options")
	ErrParticipantGone  = errors.New("participant not found in room")
	ErrNotHost          = errors.New("only the host can change poll state")
	ErrCodeSpaceDrained = errors.New("could not generate a unique room code")
)
