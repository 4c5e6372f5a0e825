package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pollsync/internal/domain/room"
	"pollsync/internal/metrics"
	"pollsync/internal/platform/token"
)

// Handler upgrades HTTP requests and runs the realtime protocol: one read
// loop per connection turning inbound frames into room operations, with
// results acked to the sender and broadcasts fanned out by the hub.
type Handler struct {
	registry   *room.Registry
	hub        *Hub
	tokens     *token.Manager
	ackTimeout time.Duration
	sessionTTL time.Duration
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

func NewHandler(reg *room.Registry, hub *Hub, tokens *token.Manager, ackTimeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:   reg,
		hub:        hub,
		tokens:     tokens,
		ackTimeout: ackTimeout,
		sessionTTL: 24 * time.Hour,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the REST layer already allows any origin; the poll UI is
			// expected to be served from elsewhere
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}

	s := newSession(conn)
	metrics.ConnOpened()
	go s.writePump()

	h.readLoop(s)

	h.teardown(s)
	s.close()
	metrics.ConnClosed()
}

func (h *Handler) readLoop(s *session) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read", "session", s.id, "err", err)
			}
			return
		}

		cmd, err := decodeCommand(data)
		if err != nil {
			if h.replyErr(s, command{}, err) != nil {
				return
			}
			continue
		}
		if err := h.dispatch(s, cmd); err != nil {
			// reply could not be delivered in time; drop the session
			return
		}
	}
}

// dispatch runs one command. Domain failures are acked back to the sender
// only, never broadcast. The returned error is non-nil only when the session
// itself is unusable.
func (h *Handler) dispatch(s *session, cmd command) error {
	if cmd.Type != cmdJoinRoom && !s.bound() {
		return h.replyErr(s, cmd, room.ErrMalformedMessage)
	}

	switch cmd.Type {
	case cmdJoinRoom:
		return h.handleJoin(s, cmd)
	case cmdSubmitVote:
		return h.handleVote(s, cmd)
	case cmdChangeState:
		return h.handleChangeState(s, cmd)
	case cmdLeaveRoom:
		h.teardown(s)
		return h.reply(s, message{Type: msgAck, ID: cmd.ID})
	default:
		return h.replyErr(s, cmd, room.ErrMalformedMessage)
	}
}

func (h *Handler) handleJoin(s *session, cmd command) error {
	p, err := decodeJoinRoom(cmd.Payload)
	if err != nil {
		return h.replyErr(s, cmd, err)
	}
	if s.bound() {
		// one identity per connection; rejoin means reconnect
		return h.replyErr(s, cmd, room.ErrMalformedMessage)
	}

	rm, err := h.registry.Get(p.RoomCode)
	if err != nil {
		return h.replyErr(s, cmd, err)
	}

	isHost := false
	resumeID := ""
	if p.Token != "" {
		claims, err := h.tokens.Parse(p.Token)
		if err != nil || claims.RoomCode != p.RoomCode {
			return h.replyErr(s, cmd, room.ErrMalformedMessage)
		}
		isHost = claims.Role == token.RoleHost
		resumeID = claims.ParticipantID
	}

	// register with the hub first so the joiner also receives its own
	// participant-joined broadcast; the snapshot sent below carries the
	// sequence number clients use to discard anything older
	h.hub.add(p.RoomCode, s)

	var participant room.Participant
	if resumeID != "" {
		participant, err = rm.Resume(resumeID, s.id)
		if errors.Is(err, room.ErrParticipantGone) {
			// grace window expired; fall back to a fresh join
			participant, err = rm.Join(p.Nickname, s.id)
		}
	} else {
		participant, err = rm.Join(p.Nickname, s.id)
	}
	if err != nil {
		h.hub.remove(p.RoomCode, s)
		return h.replyErr(s, cmd, err)
	}

	s.roomCode = p.RoomCode
	s.participantID = participant.ID
	s.isHost = isHost

	role := token.RoleParticipant
	if isHost {
		role = token.RoleHost
	}
	sessionToken, err := h.tokens.Session(p.RoomCode, participant.ID, role, h.sessionTTL)
	if err != nil {
		h.logger.Error("mint session token", "room", p.RoomCode, "err", err)
		sessionToken = ""
	}

	if err := h.reply(s, message{Type: msgJoined, ID: cmd.ID, Payload: joinedPayload{
		ParticipantID: participant.ID,
		Nickname:      participant.Nickname,
		Token:         sessionToken,
	}}); err != nil {
		return err
	}

	snap, err := rm.Snapshot()
	if err != nil {
		return h.replyErr(s, cmd, err)
	}
	return h.reply(s, message{Type: msgSnapshot, Payload: snap})
}

func (h *Handler) handleVote(s *session, cmd command) error {
	p, err := decodeSubmitVote(cmd.Payload)
	if err != nil {
		return h.replyErr(s, cmd, err)
	}
	// a session may only vote as the participant it joined as
	if p.RoomCode != s.roomCode || p.ParticipantID != s.participantID {
		return h.replyErr(s, cmd, room.ErrMalformedMessage)
	}

	rm, err := h.registry.Get(s.roomCode)
	if err != nil {
		return h.replyErr(s, cmd, err)
	}
	tally, err := rm.SubmitVote(s.participantID, *p.OptionIndex)
	if err != nil {
		return h.replyErr(s, cmd, err)
	}
	metrics.IncVote()
	return h.reply(s, message{Type: msgAck, ID: cmd.ID, Payload: tally})
}

func (h *Handler) handleChangeState(s *session, cmd command) error {
	p, err := decodeChangeState(cmd.Payload)
	if err != nil {
		return h.replyErr(s, cmd, err)
	}
	if p.RoomCode != s.roomCode {
		return h.replyErr(s, cmd, room.ErrMalformedMessage)
	}
	if !s.isHost {
		return h.replyErr(s, cmd, room.ErrNotHost)
	}

	rm, err := h.registry.Get(s.roomCode)
	if err != nil {
		return h.replyErr(s, cmd, err)
	}
	if _, err := rm.Transition(room.PollState(p.RequestedState)); err != nil {
		return h.replyErr(s, cmd, err)
	}
	return h.reply(s, message{Type: msgAck, ID: cmd.ID})
}

// teardown unbinds the session from its room, starting the participant's
// grace window. Safe to call more than once.
func (h *Handler) teardown(s *session) {
	if !s.bound() {
		return
	}
	code, pid := s.roomCode, s.participantID
	s.roomCode, s.participantID, s.isHost = "", "", false

	h.hub.remove(code, s)
	if rm, err := h.registry.Get(code); err == nil {
		rm.Disconnect(pid, s.id)
	}
}

func (h *Handler) reply(s *session, msg message) error {
	if err := s.sendReply(msg, h.ackTimeout); err != nil {
		h.logger.Warn("reply timed out, closing session", "session", s.id)
		s.close()
		return err
	}
	return nil
}

func (h *Handler) replyErr(s *session, cmd command, err error) error {
	body := wsError(err)
	return h.reply(s, message{Type: msgError, ID: cmd.ID, Error: &body})
}

// wsError maps domain sentinels onto wire error codes. Unknown errors are
// reported as internal without leaking detail.
func wsError(err error) errorBody {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return errorBody{Code: "room_not_found", Message: "room not found"}
	case errors.Is(err, room.ErrNicknameTaken):
		return errorBody{Code: "nickname_taken", Message: "nickname already taken"}
	case errors.Is(err, room.ErrInvalidOption):
		return errorBody{Code: "invalid_option", Message: "option index out of range"}
	case errors.Is(err, room.ErrVotingClosed):
		return errorBody{Code: "voting_closed", Message: "voting is closed"}
	case errors.Is(err, room.ErrInvalidTransition):
		return errorBody{Code: "invalid_transition", Message: "invalid poll state transition"}
	case errors.Is(err, room.ErrParticipantGone):
		return errorBody{Code: "room_not_found", Message: "participant no longer in room"}
	case errors.Is(err, room.ErrNotHost):
		return errorBody{Code: "forbidden", Message: "only the host can change poll state"}
	case errors.Is(err, room.ErrTimeout):
		return errorBody{Code: "timeout", Message: "operation timed out"}
	case errors.Is(err, room.ErrMalformedMessage):
		return errorBody{Code: "malformed_message", Message: "malformed message"}
	default:
		return errorBody{Code: "internal_error", Message: "internal error"}
	}
}
