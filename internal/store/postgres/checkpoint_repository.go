package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/store"
)

// CheckpointRepository implements store.CheckpointRepository against the
// read-store's projection_checkpoints table.
type CheckpointRepository struct {
	pool *pgxpool.Pool
}

// NewCheckpointRepository wraps pool.
func NewCheckpointRepository(pool *pgxpool.Pool) *CheckpointRepository {
	return &CheckpointRepository{pool: pool}
}

var _ store.CheckpointRepository = (*CheckpointRepository)(nil)

// GetCheckpoint returns the projector's cursor, or a zero-value checkpoint
// if the projection has never run.
func (r *CheckpointRepository) GetCheckpoint(ctx context.Context, projectionName string) (*domain.ProjectorCheckpoint, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT projection_name, last_processed_event_id, last_processed_at
		FROM projection_checkpoints WHERE projection_name = $1
	`, projectionName)

	cp := &domain.ProjectorCheckpoint{}
	err := row.Scan(&cp.ProjectionName, &cp.LastProcessedEventID, &cp.LastProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.ProjectorCheckpoint{ProjectionName: projectionName}, nil
	}
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("get checkpoint: %w", err), false)
	}
	return cp, nil
}

// SetCheckpoint advances the cursor (§4.3 step 3).
func (r *CheckpointRepository) SetCheckpoint(ctx context.Context, projectionName, lastProcessedEventID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO projection_checkpoints (projection_name, last_processed_event_id, last_processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (projection_name) DO UPDATE SET
			last_processed_event_id = excluded.last_processed_event_id,
			last_processed_at = excluded.last_processed_at
	`, projectionName, lastProcessedEventID, time.Now())
	if err != nil {
		return domain.WrapInternal(fmt.Errorf("set checkpoint: %w", err), false)
	}
	return nil
}

// SeenEventID implements the §4.3 at-least-once short circuit: an event
// whose id matches the last one applied for this projection is a replay
// and must be skipped rather than re-applied.
func (r *CheckpointRepository) SeenEventID(ctx context.Context, projectionName, eventID string) (bool, error) {
	var last string
	err := r.pool.QueryRow(ctx, `
		SELECT last_processed_event_id FROM projection_checkpoints WHERE projection_name = $1
	`, projectionName).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.WrapInternal(fmt.Errorf("check seen event: %w", err), false)
	}
	return last == eventID, nil
}
