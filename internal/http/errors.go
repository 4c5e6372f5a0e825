package api

import (
	"errors"
	"net/http"

	"pollsync/internal/domain/room"
	"pollsync/internal/platform/apperr"
)

func errorResponse(w http.ResponseWriter, err error) {
	appErr := mapError(err)
	writeJSON(w, appErr.StatusCode(), map[string]string{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

func mapError(err error) *apperr.AppError {
	if err == nil {
		return apperr.Internal("internal_error", "internal server error", nil)
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return apperr.NotFound("room_not_found", "room not found", err)
	case errors.Is(err, room.ErrNicknameTaken):
		return apperr.Conflict("nickname_taken", "nickname already taken", err)
	case errors.Is(err, room.ErrInvalidOption):
		return apperr.BadRequest("invalid_option", "option index out of range", err)
	case errors.Is(err, room.ErrQuestionRequired):
		return apperr.BadRequest("question_required", "question is required", err)
	case errors.Is(err, room.ErrInvalidOptions):
		return apperr.BadRequest("invalid_options", "poll must have between 2 and 5 options", err)
	case errors.Is(err, room.ErrVotingClosed):
		return apperr.BadRequest("voting_closed", "voting is closed", err)
	case errors.Is(err, room.ErrInvalidTransition):
		return apperr.BadRequest("invalid_transition", "invalid poll state transition", err)
	case errors.Is(err, room.ErrMalformedMessage):
		return apperr.BadRequest("malformed_message", "malformed message", err)
	case errors.Is(err, room.ErrNotHost):
		return apperr.Forbidden("forbidden", "only the host can change poll state", err)
	case errors.Is(err, room.ErrTimeout):
		return apperr.Timeout("timeout", "operation timed out", err)
	default:
		return apperr.Internal("internal_error", http.StatusText(http.StatusInternalServerError), err)
	}
}
