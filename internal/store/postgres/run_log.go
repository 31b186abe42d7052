package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/helpdesk/internal/domain"
)

var _ domain.RunLogRepository = (*RunLogRepo)(nil) //nolint:gochecknoglobals // compile-time check

type RunLogRepo struct {
	pool *pgxpool.Pool
}

func NewRunLogRepo(pool *pgxpool.Pool) *RunLogRepo {
	return &RunLogRepo{pool: pool}
}

func (r *RunLogRepo) Append(ctx context.Context, entry *domain.RunLogEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO run_log_entries (id, run_id, channel_id, entry_type, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.RunID, entry.ChannelID, entry.EntryType, entry.Content, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("runLogRepo.Append: %w", err)
	}

	return nil
}

// ListByChannel returns the channel's entries newest first.
func (r *RunLogRepo) ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*domain.RunLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, run_id, channel_id, entry_type, content, created_at
		 FROM run_log_entries WHERE channel_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		channelID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("runLogRepo.ListByChannel: %w", err)
	}
	defer rows.Close()

	var entries []*domain.RunLogEntry
	for rows.Next() {
		var e domain.RunLogEntry

		err = rows.Scan(&e.ID, &e.RunID, &e.ChannelID, &e.EntryType, &e.Content, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("runLogRepo.ListByChannel: scan: %w", err)
		}
		entries = append(entries, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("runLogRepo.ListByChannel: rows: %w", err)
	}

	return entries, nil
}
