package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/store"
)

// OutboxRepository implements store.OutboxRepository, adapted from the
// reference PostgresOutboxRepository's FOR UPDATE SKIP LOCKED polling.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository wraps pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

var _ store.OutboxRepository = (*OutboxRepository)(nil)

const outboxSelectColumns = `
	SELECT id, aggregate_type, aggregate_id, event_id, event_type,
		payload, topic, partition_key, coalesce(correlation_id, ''), coalesce(causation_id, ''),
		version, status, retry_count, max_retries, coalesce(last_error, ''),
		created_at, processed_at, published_at
`

func scanOutboxRows(rows pgx.Rows) ([]*domain.OutboxMessage, error) {
	var out []*domain.OutboxMessage
	for rows.Next() {
		m := &domain.OutboxMessage{}
		var status string
		if err := rows.Scan(
			&m.ID, &m.AggregateType, &m.AggregateID, &m.EventID, &m.EventType,
			&m.Payload, &m.Topic, &m.PartitionKey, &m.CorrelationID, &m.CausationID,
			&m.Version, &status, &m.RetryCount, &m.MaxRetries, &m.LastError,
			&m.CreatedAt, &m.ProcessedAt, &m.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		m.Status = domain.OutboxStatus(status)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}
	return out, nil
}

// GetPendingMessages polls the next batch of unpublished rows for the relay.
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	rows, err := r.pool.Query(ctx, outboxSelectColumns+`
		FROM booking_outbox WHERE status = $1 ORDER BY created_at ASC LIMIT $2 FOR UPDATE SKIP LOCKED
	`, string(domain.OutboxPending), limit)
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("get pending outbox messages: %w", err), false)
	}
	defer rows.Close()
	msgs, err := scanOutboxRows(rows)
	if err != nil {
		return nil, domain.WrapInternal(err, false)
	}
	return msgs, nil
}

// GetFailedMessages polls rows that still have retry budget left.
func (r *OutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	rows, err := r.pool.Query(ctx, outboxSelectColumns+`
		FROM booking_outbox WHERE status = $1 AND retry_count < max_retries
		ORDER BY created_at ASC LIMIT $2 FOR UPDATE SKIP LOCKED
	`, string(domain.OutboxFailed), limit)
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("get failed outbox messages: %w", err), false)
	}
	defer rows.Close()
	msgs, err := scanOutboxRows(rows)
	if err != nil {
		return nil, domain.WrapInternal(err, false)
	}
	return msgs, nil
}

// MarkAsPublished records a successful publish.
func (r *OutboxRepository) MarkAsPublished(ctx context.Context, id string) error {
	now := time.Now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE booking_outbox SET status = $2, processed_at = $3, published_at = $3 WHERE id = $1
	`, id, string(domain.OutboxPublished), now)
	if err != nil {
		return domain.WrapInternal(fmt.Errorf("mark outbox published: %w", err), false)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

// MarkAsFailed records a failed publish attempt and bumps the retry count.
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE booking_outbox SET status = $2, last_error = $3, retry_count = retry_count + 1, processed_at = $4
		WHERE id = $1
	`, id, string(domain.OutboxFailed), errMsg, time.Now())
	if err != nil {
		return domain.WrapInternal(fmt.Errorf("mark outbox failed: %w", err), false)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

// DeletePublished prunes published rows older than olderThanDays.
func (r *OutboxRepository) DeletePublished(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM booking_outbox WHERE status = $1 AND published_at < $2
	`, string(domain.OutboxPublished), cutoff)
	if err != nil {
		return 0, domain.WrapInternal(fmt.Errorf("delete published outbox rows: %w", err), false)
	}
	return tag.RowsAffected(), nil
}

// GetSince backs the reconciler's replay mitigation (§9): up to limit outbox
// rows created at or after `since`, oldest first.
func (r *OutboxRepository) GetSince(ctx context.Context, since time.Time, limit int) ([]*domain.OutboxMessage, error) {
	rows, err := r.pool.Query(ctx, outboxSelectColumns+`
		FROM booking_outbox WHERE created_at >= $1 ORDER BY created_at ASC LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("get outbox since: %w", err), false)
	}
	defer rows.Close()
	msgs, err := scanOutboxRows(rows)
	if err != nil {
		return nil, domain.WrapInternal(err, false)
	}
	return msgs, nil
}
