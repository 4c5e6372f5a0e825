package postgres

import (
	"context"
	"database/sql"

	"pollsync/internal/domain/room"
)

// ArchiveRepo persists the final result of closed polls. It is write-only
// from the core's point of view; anything reading the archive lives outside
// this service.
type ArchiveRepo struct {
	db *sql.DB
}

func NewArchiveRepo(db *sql.DB) *ArchiveRepo {
	return &ArchiveRepo{db: db}
}

func (r *ArchiveRepo) Save(ctx context.Context, rec room.ArchiveRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	queryPoll := `
        INSERT INTO poll_archive (poll_id, room_code, question, total_votes, created_at, closed_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (poll_id) DO NOTHING
    `
	if _, err := tx.ExecContext(ctx, queryPoll,
		rec.PollID,
		rec.RoomCode,
		rec.Question,
		rec.Total,
		rec.CreatedAt,
		rec.ClosedAt,
	); err != nil {
		return err
	}

	queryOpt := `
        INSERT INTO poll_archive_options (poll_id, option_index, text, votes)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (poll_id, option_index) DO UPDATE SET votes = EXCLUDED.votes
    `
	for i, text := range rec.Options {
		if _, err := tx.ExecContext(ctx, queryOpt, rec.PollID, i, text, rec.Counts[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}
