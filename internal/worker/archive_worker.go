package worker

import (
	"context"
	"log/slog"
	"time"

	"pollsync/internal/domain/room"
	"pollsync/internal/retry"
)

// Archiver stores one closed poll's final result.
type Archiver interface {
	Save(ctx context.Context, rec room.ArchiveRecord) error
}

// ArchiveWorker drains room-closed records and writes them to the archive.
// With no archiver configured it only logs; the archive is strictly
// best-effort either way.
type ArchiveWorker struct {
	Ch       <-chan room.ArchiveRecord
	archiver Archiver
	logger   *slog.Logger
}

func NewArchiveWorker(ch <-chan room.ArchiveRecord, archiver Archiver, logger *slog.Logger) *ArchiveWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveWorker{Ch: ch, archiver: archiver, logger: logger}
}

func (w *ArchiveWorker) Run(ctx context.Context) {
	w.logger.Info("archive worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("archive worker stopped")
			return
		case rec := <-w.Ch:
			w.process(ctx, rec)
		}
	}
}

func (w *ArchiveWorker) process(ctx context.Context, rec room.ArchiveRecord) {
	if w.archiver == nil {
		w.logger.Info("poll closed",
			"room", rec.RoomCode, "poll_id", rec.PollID, "total_votes", rec.Total)
		return
	}

	err := retry.DoWithRetry(ctx, 3, 500*time.Millisecond, func() error {
		return w.archiver.Save(ctx, rec)
	})
	if err != nil {
		w.logger.Error("archive write failed",
			"room", rec.RoomCode, "poll_id", rec.PollID, "err", err)
		return
	}
	w.logger.Info("poll archived", "room", rec.RoomCode, "poll_id", rec.PollID)
}
