package room

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestRegistry(grace, idleTTL time.Duration, archiveCh chan ArchiveRecord) *Registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(NopBroadcaster{}, grace, idleTTL, archiveCh, logger)
}

func TestCreateRoomValidation(t *testing.T) {
	reg := newTestRegistry(time.Minute, time.Hour, nil)

	if _, err := reg.CreateRoom("", []string{"A", "B"}); !errors.Is(err, ErrQuestionRequired) {
		t.Fatalf("expected ErrQuestionRequired, got %v", err)
	}
	if _, err := reg.CreateRoom("Q", []string{"A"}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions for one option, got %v", err)
	}
	if _, err := reg.CreateRoom("Q", []string{"A", "B", "C", "D", "E", "F"}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions for six options, got %v", err)
	}
	if _, err := reg.CreateRoom("Q", []string{"A", "  "}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions for blank option, got %v", err)
	}

	r, err := reg.CreateRoom("Q", []string{"A", "B"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !ValidCode(r.Code()) {
		t.Fatalf("room code %q is not a valid code", r.Code())
	}
}

func TestRegistryGetAndDestroy(t *testing.T) {
	reg := newTestRegistry(time.Minute, time.Hour, nil)

	r, err := reg.CreateRoom("Q", []string{"A", "B"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := reg.Get(r.Code())
	if err != nil || got != r {
		t.Fatalf("get returned %v, %v", got, err)
	}
	if _, err := reg.Get("ZZZZZZ"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	reg.Destroy(r.Code())
	if _, err := reg.Get(r.Code()); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("destroyed room still retrievable: %v", err)
	}
	// a stale handle must observe the destruction too
	if _, err := r.Snapshot(); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("stale handle still usable after destroy: %v", err)
	}
	// destroying twice is a no-op
	reg.Destroy(r.Code())
}

func TestDestroyArchivesClosedPoll(t *testing.T) {
	archiveCh := make(chan ArchiveRecord, 1)
	reg := newTestRegistry(time.Minute, time.Hour, archiveCh)

	r, _ := reg.CreateRoom("Favourite letter?", []string{"A", "B"})
	alice, err := r.Join("Alice", "conn-1")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	_, _ = r.Transition(StateOpen)
	_, _ = r.SubmitVote(alice.ID, 1)
	_, _ = r.Transition(StateClosed)

	reg.Destroy(r.Code())

	select {
	case rec := <-archiveCh:
		if rec.Question != "Favourite letter?" || rec.Total != 1 || rec.Counts[1] != 1 {
			t.Fatalf("unexpected archive record: %+v", rec)
		}
	default:
		t.Fatal("expected an archive record for a closed poll")
	}
}

func TestDestroyDoesNotArchiveOpenPoll(t *testing.T) {
	archiveCh := make(chan ArchiveRecord, 1)
	reg := newTestRegistry(time.Minute, time.Hour, archiveCh)

	r, _ := reg.CreateRoom("Q", []string{"A", "B"})
	_, _ = r.Transition(StateOpen)
	reg.Destroy(r.Code())

	select {
	case rec := <-archiveCh:
		t.Fatalf("open poll must not be archived: %+v", rec)
	default:
	}
}

func TestSweepExpiresIdleRooms(t *testing.T) {
	reg := newTestRegistry(time.Minute, 10*time.Millisecond, nil)

	r, _ := reg.CreateRoom("Q", []string{"A", "B"})
	busy, _ := reg.CreateRoom("Q2", []string{"A", "B"})
	if _, err := busy.Join("Alice", "conn-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	reg.sweep()

	if _, err := reg.Get(r.Code()); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("idle room should have been swept, got %v", err)
	}
	if _, err := reg.Get(busy.Code()); err != nil {
		t.Fatalf("room with a connected participant must survive the sweep: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry size = %d, want 1", reg.Len())
	}
}
