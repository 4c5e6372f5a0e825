package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pollsync/internal/domain/room"
	"pollsync/internal/platform/apperr"
	"pollsync/internal/platform/token"
)

const hostTokenTTL = 24 * time.Hour

type createRoomRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type createRoomResponse struct {
	RoomCode  string `json:"room_code"`
	PollID    string `json:"poll_id"`
	HostToken string `json:"host_token"`
}

// @Summary     Create a poll room
// @Tags        rooms
// @Accept      json
// @Produce     json
// @Param       request  body      createRoomRequest  true  "Question and 2-5 options"
// @Success     201      {object}  createRoomResponse
// @Failure     400      {object}  map[string]string  "invalid body or options"
// @Failure     429      {object}  map[string]string  "rate limited"
// @Failure     500      {object}  map[string]string  "server error"
// @Router      /api/v1/rooms [post]
func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	rm, err := h.registry.CreateRoom(req.Question, req.Options)
	if err != nil {
		errorResponse(w, err)
		return
	}

	hostToken, err := h.tokens.Host(rm.Code(), hostTokenTTL)
	if err != nil {
		// room without a reachable host is useless; roll it back
		h.registry.Destroy(rm.Code())
		errorResponse(w, err)
		return
	}

	snap, err := rm.Snapshot()
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomCode:  rm.Code(),
		PollID:    snap.Poll.ID,
		HostToken: hostToken,
	})
}

// @Summary     Room snapshot
// @Tags        rooms
// @Produce     json
// @Param       code  path      string  true  "Room code"
// @Success     200   {object}  room.Snapshot
// @Failure     400   {object}  map[string]string  "invalid room code"
// @Failure     404   {object}  map[string]string  "room not found"
// @Router      /api/v1/rooms/{code} [get]
func (h *Handler) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !room.ValidCode(code) {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid room code", nil))
		return
	}

	rm, err := h.registry.Get(code)
	if err != nil {
		errorResponse(w, err)
		return
	}

	snap, err := rm.Snapshot()
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// @Summary     Destroy a poll room
// @Tags        rooms
// @Produce     json
// @Param       code           path    string  true  "Room code"
// @Param       Authorization  header  string  true  "Bearer host token"
// @Success     204
// @Failure     401  {object}  map[string]string  "missing or invalid token"
// @Failure     403  {object}  map[string]string  "not this room's host"
// @Failure     404  {object}  map[string]string  "room not found"
// @Router      /api/v1/rooms/{code} [delete]
func (h *Handler) handleDestroyRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if !room.ValidCode(code) {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid room code", nil))
		return
	}

	header := r.Header.Get("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" || raw == header {
		errorResponse(w, apperr.Unauthorized("unauthorized", "host token required", nil))
		return
	}
	claims, err := h.tokens.Parse(raw)
	if err != nil {
		errorResponse(w, apperr.Unauthorized("unauthorized", "invalid host token", err))
		return
	}
	if claims.Role != token.RoleHost || claims.RoomCode != code {
		errorResponse(w, apperr.Forbidden("forbidden", "only the room's host can destroy it", nil))
		return
	}

	if _, err := h.registry.Get(code); err != nil {
		errorResponse(w, err)
		return
	}
	h.registry.Destroy(code)
	w.WriteHeader(http.StatusNoContent)
}
