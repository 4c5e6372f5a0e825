package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pollsync/internal/domain/room"
	"pollsync/internal/platform/token"
)

type wsFixture struct {
	srv      *httptest.Server
	registry *room.Registry
	tokens   *token.Manager
}

func newWSFixture(t *testing.T, grace time.Duration) *wsFixture {
	t.Helper()
	hub := NewHub(discardLogger())
	reg := room.NewRegistry(hub, grace, time.Hour, nil, discardLogger())
	tokens := token.NewManager("test-secret", "")
	handler := NewHandler(reg, hub, tokens, time.Second, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &wsFixture{srv: srv, registry: reg, tokens: tokens}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *wsFixture) createRoom(t *testing.T, question string, options []string) (*room.Room, string) {
	t.Helper()
	rm, err := f.registry.CreateRoom(question, options)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}
	hostToken, err := f.tokens.Host(rm.Code(), time.Hour)
	if err != nil {
		t.Fatalf("host token failed: %v", err)
	}
	return rm, hostToken
}

type inboundMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
	Error   *errorBody      `json:"error"`
}

func send(t *testing.T, conn *websocket.Conn, typ, id string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(command{Type: typ, ID: id, Payload: raw}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) inboundMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
		if time.Now().After(deadline) {
			t.Fatalf("never received %s", typ)
		}
	}
}

func join(t *testing.T, conn *websocket.Conn, code, nickname, tok string) joinedPayload {
	t.Helper()
	send(t, conn, cmdJoinRoom, "j1", joinRoomPayload{RoomCode: code, Nickname: nickname, Token: tok})
	msg := readUntil(t, conn, msgJoined)
	var p joinedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode joined payload: %v", err)
	}
	return p
}

func TestJoinVoteBroadcastFlow(t *testing.T) {
	f := newWSFixture(t, time.Minute)
	rm, hostToken := f.createRoom(t, "Favourite letter?", []string{"A", "B", "C"})

	hostConn := f.dial(t)
	host := join(t, hostConn, rm.Code(), "Host", hostToken)
	if host.ParticipantID == "" || host.Token == "" {
		t.Fatalf("joined payload incomplete: %+v", host)
	}

	snap := readUntil(t, hostConn, msgSnapshot)
	var s room.Snapshot
	if err := json.Unmarshal(snap.Payload, &s); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if s.Poll.Question != "Favourite letter?" || s.Poll.State != room.StateWaiting {
		t.Fatalf("unexpected snapshot: %+v", s.Poll)
	}

	participantConn := f.dial(t)
	p := join(t, participantConn, rm.Code(), "Alice", "")

	joined := readUntil(t, hostConn, string(room.EventParticipantJoin))
	var jp room.ParticipantPayload
	if err := json.Unmarshal(joined.Payload, &jp); err != nil {
		t.Fatalf("decode participant-joined: %v", err)
	}
	if jp.Nickname != "Alice" || jp.ParticipantCount != 2 {
		t.Fatalf("unexpected participant-joined: %+v", jp)
	}

	send(t, hostConn, cmdChangeState, "s1", changeStatePayload{RoomCode: rm.Code(), RequestedState: "open"})
	for _, conn := range []*websocket.Conn{hostConn, participantConn} {
		msg := readUntil(t, conn, string(room.EventPollStateChanged))
		var sc room.StateChangedPayload
		if err := json.Unmarshal(msg.Payload, &sc); err != nil {
			t.Fatalf("decode state-changed: %v", err)
		}
		if sc.PreviousState != room.StateWaiting || sc.NewState != room.StateOpen {
			t.Fatalf("unexpected transition payload: %+v", sc)
		}
	}

	idx := 0
	send(t, participantConn, cmdSubmitVote, "v1", submitVotePayload{
		RoomCode: rm.Code(), ParticipantID: p.ParticipantID, OptionIndex: &idx,
	})
	for _, conn := range []*websocket.Conn{hostConn, participantConn} {
		msg := readUntil(t, conn, string(room.EventVoteUpdate))
		var vu room.VoteUpdatePayload
		if err := json.Unmarshal(msg.Payload, &vu); err != nil {
			t.Fatalf("decode vote-update: %v", err)
		}
		if vu.Votes[0] != 1 || vu.Percentages[0] != 100 {
			t.Fatalf("unexpected vote-update: %+v", vu)
		}
	}
}

func TestJoinErrors(t *testing.T) {
	f := newWSFixture(t, time.Minute)
	rm, _ := f.createRoom(t, "Q", []string{"A", "B"})

	c1 := f.dial(t)
	join(t, c1, rm.Code(), "Alice", "")

	c2 := f.dial(t)
	send(t, c2, cmdJoinRoom, "j1", joinRoomPayload{RoomCode: rm.Code(), Nickname: "Alice"})
	msg := readUntil(t, c2, msgError)
	if msg.Error == nil || msg.Error.Code != "nickname_taken" {
		t.Fatalf("expected nickname_taken, got %+v", msg.Error)
	}

	c3 := f.dial(t)
	send(t, c3, cmdJoinRoom, "j1", joinRoomPayload{RoomCode: "ZZZZZZ", Nickname: "Bob"})
	msg = readUntil(t, c3, msgError)
	if msg.Error == nil || msg.Error.Code != "room_not_found" {
		t.Fatalf("expected room_not_found, got %+v", msg.Error)
	}
}

func TestCommandsBeforeJoinAreRejected(t *testing.T) {
	f := newWSFixture(t, time.Minute)
	f.createRoom(t, "Q", []string{"A", "B"})

	conn := f.dial(t)
	idx := 0
	send(t, conn, cmdSubmitVote, "v1", submitVotePayload{RoomCode: "ABCDEF", ParticipantID: "p", OptionIndex: &idx})
	msg := readUntil(t, conn, msgError)
	if msg.Error == nil || msg.Error.Code != "malformed_message" {
		t.Fatalf("expected malformed_message, got %+v", msg.Error)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	msg = readUntil(t, conn, msgError)
	if msg.Error == nil || msg.Error.Code != "malformed_message" {
		t.Fatalf("expected malformed_message for garbage frame, got %+v", msg.Error)
	}
}

func TestChangeStateRequiresHost(t *testing.T) {
	f := newWSFixture(t, time.Minute)
	rm, _ := f.createRoom(t, "Q", []string{"A", "B"})

	conn := f.dial(t)
	join(t, conn, rm.Code(), "Alice", "")

	send(t, conn, cmdChangeState, "s1", changeStatePayload{RoomCode: rm.Code(), RequestedState: "open"})
	msg := readUntil(t, conn, msgError)
	if msg.Error == nil || msg.Error.Code != "forbidden" {
		t.Fatalf("expected forbidden, got %+v", msg.Error)
	}
}

func TestVotingClosedOverWS(t *testing.T) {
	f := newWSFixture(t, time.Minute)
	rm, hostToken := f.createRoom(t, "Q", []string{"A", "B"})

	hostConn := f.dial(t)
	host := join(t, hostConn, rm.Code(), "Host", hostToken)

	send(t, hostConn, cmdChangeState, "s1", changeStatePayload{RoomCode: rm.Code(), RequestedState: "open"})
	readUntil(t, hostConn, msgAck)
	send(t, hostConn, cmdChangeState, "s2", changeStatePayload{RoomCode: rm.Code(), RequestedState: "closed"})
	readUntil(t, hostConn, msgAck)

	idx := 0
	send(t, hostConn, cmdSubmitVote, "v1", submitVotePayload{
		RoomCode: rm.Code(), ParticipantID: host.ParticipantID, OptionIndex: &idx,
	})
	msg := readUntil(t, hostConn, msgError)
	if msg.Error == nil || msg.Error.Code != "voting_closed" {
		t.Fatalf("expected voting_closed, got %+v", msg.Error)
	}

	snap, _ := rm.Snapshot()
	if snap.Tally.Total != 0 {
		t.Fatalf("rejected vote changed the tally: %+v", snap.Tally)
	}
}

func TestInvalidTransitionOverWS(t *testing.T) {
	f := newWSFixture(t, time.Minute)
	rm, hostToken := f.createRoom(t, "Q", []string{"A", "B"})

	conn := f.dial(t)
	join(t, conn, rm.Code(), "Host", hostToken)

	send(t, conn, cmdChangeState, "s1", changeStatePayload{RoomCode: rm.Code(), RequestedState: "closed"})
	msg := readUntil(t, conn, msgError)
	if msg.Error == nil || msg.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %+v", msg.Error)
	}
}

func TestResumeWithSessionToken(t *testing.T) {
	f := newWSFixture(t, time.Minute)
	rm, hostToken := f.createRoom(t, "Q", []string{"A", "B"})

	hostConn := f.dial(t)
	join(t, hostConn, rm.Code(), "Host", hostToken)
	send(t, hostConn, cmdChangeState, "s1", changeStatePayload{RoomCode: rm.Code(), RequestedState: "open"})
	readUntil(t, hostConn, msgAck)

	conn := f.dial(t)
	alice := join(t, conn, rm.Code(), "Alice", "")
	idx := 1
	send(t, conn, cmdSubmitVote, "v1", submitVotePayload{
		RoomCode: rm.Code(), ParticipantID: alice.ParticipantID, OptionIndex: &idx,
	})
	readUntil(t, conn, msgAck)

	_ = conn.Close()

	// reconnect with the session token; identity and vote must survive
	conn2 := f.dial(t)
	back := join(t, conn2, rm.Code(), "Alice", alice.Token)
	if back.ParticipantID != alice.ParticipantID {
		t.Fatalf("resume created a new participant: %s != %s", back.ParticipantID, alice.ParticipantID)
	}

	snap := readUntil(t, conn2, msgSnapshot)
	var s room.Snapshot
	if err := json.Unmarshal(snap.Payload, &s); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if s.Tally.Total != 1 || s.Tally.Counts[1] != 1 {
		t.Fatalf("vote lost across reconnect: %+v", s.Tally)
	}
	if s.ParticipantCount != 2 {
		t.Fatalf("participant count = %d, want 2 (no duplicate)", s.ParticipantCount)
	}

	// resubmitting the same vote after reconnect must not change the tally
	send(t, conn2, cmdSubmitVote, "v2", submitVotePayload{
		RoomCode: rm.Code(), ParticipantID: back.ParticipantID, OptionIndex: &idx,
	})
	readUntil(t, conn2, msgAck)
	after, _ := rm.Snapshot()
	if after.Tally.Total != 1 {
		t.Fatalf("idempotent resubmit duplicated the vote: %+v", after.Tally)
	}
}

func TestVoteAsAnotherParticipantRejected(t *testing.T) {
	f := newWSFixture(t, time.Minute)
	rm, hostToken := f.createRoom(t, "Q", []string{"A", "B"})

	hostConn := f.dial(t)
	join(t, hostConn, rm.Code(), "Host", hostToken)
	send(t, hostConn, cmdChangeState, "s1", changeStatePayload{RoomCode: rm.Code(), RequestedState: "open"})
	readUntil(t, hostConn, msgAck)

	conn := f.dial(t)
	join(t, conn, rm.Code(), "Alice", "")
	idx := 0
	send(t, conn, cmdSubmitVote, "v1", submitVotePayload{
		RoomCode: rm.Code(), ParticipantID: "someone-else", OptionIndex: &idx,
	})
	msg := readUntil(t, conn, msgError)
	if msg.Error == nil || msg.Error.Code != "malformed_message" {
		t.Fatalf("expected malformed_message for spoofed participant, got %+v", msg.Error)
	}
}
