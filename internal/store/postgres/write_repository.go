// Package postgres implements store.WriteRepository, store.ReadRepository,
// store.CheckpointRepository, and store.OutboxRepository against the two
// pgxpool-backed database endpoints, grounded on the reference
// TransactionalBookingRepository's begin/lock/mutate/insert-event/commit
// shape (adapted here to the aggregate + seat_availability + outbox rows
// this service owns).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/events"
	"github.com/transitline/ticketing-core/internal/store"
)

// WriteRepository implements store.WriteRepository against the write-store
// pool, inserting an outbox row in the same transaction as every aggregate
// mutation (§4.1.5, §9 "transactional outbox").
type WriteRepository struct {
	pool  *pgxpool.Pool
	topic string
}

// NewWriteRepository wraps pool. topic is the bus topic every outbox row
// targets ("ticket-events").
func NewWriteRepository(pool *pgxpool.Pool, topic string) *WriteRepository {
	return &WriteRepository{pool: pool, topic: topic}
}

var _ store.WriteRepository = (*WriteRepository)(nil)

// Book implements §4.1.1.
func (r *WriteRepository) Book(ctx context.Context, p store.BookParams) (*domain.Booking, error) {
	now := time.Now()
	b := &domain.Booking{
		ID:             p.BookingID,
		UserID:         p.UserID,
		RouteID:        p.RouteID,
		ScheduleID:     p.ScheduleID,
		SeatNumber:     p.SeatNumber,
		PassengerName:  p.PassengerName,
		PassengerEmail: p.PassengerEmail,
		PassengerPhone: p.PassengerPhone,
		Price:          p.Price,
		Currency:       p.Currency,
		Status:         domain.StatusPending,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}

	payload := events.BookedPayload{
		BookingID:      b.ID,
		UserID:         b.UserID,
		RouteID:        b.RouteID,
		ScheduleID:     b.ScheduleID,
		SeatNumber:     b.SeatNumber,
		PassengerName:  b.PassengerName,
		PassengerEmail: b.PassengerEmail,
		Price:          b.Price,
		Currency:       b.Currency,
	}

	err := r.createWithSeat(ctx, b, domain.EventTicketBooked, payload, p.CorrelationID, p.EventID, domain.SeatBooked, nil)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Reserve implements §4.1.2.
func (r *WriteRepository) Reserve(ctx context.Context, p store.ReserveParams) (*domain.Booking, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(p.ReservationMinutes) * time.Minute)

	b := &domain.Booking{
		ID:             p.BookingID,
		UserID:         p.UserID,
		RouteID:        p.RouteID,
		ScheduleID:     p.ScheduleID,
		SeatNumber:     p.SeatNumber,
		PassengerName:  p.PassengerName,
		PassengerEmail: p.PassengerEmail,
		PassengerPhone: p.PassengerPhone,
		Price:          p.Price,
		Currency:       p.Currency,
		Status:         domain.StatusReserved,
		IdempotencyKey: p.IdempotencyKey,
		ExpiresAt:      &expiresAt,
		ReservedAt:     &now,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}

	payload := events.ReservedPayload{
		BookedPayload: events.BookedPayload{
			BookingID:      b.ID,
			UserID:         b.UserID,
			RouteID:        b.RouteID,
			ScheduleID:     b.ScheduleID,
			SeatNumber:     b.SeatNumber,
			PassengerName:  b.PassengerName,
			PassengerEmail: b.PassengerEmail,
			Price:          b.Price,
			Currency:       b.Currency,
		},
		ExpiresAt: expiresAt,
	}

	err := r.createWithSeat(ctx, b, domain.EventTicketReserved, payload, p.CorrelationID, p.EventID, domain.SeatLocked, &expiresAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// createWithSeat inserts the booking row, optionally claims the seat row,
// appends the version-1 event, and inserts the matching outbox row, all in
// one transaction.
func (r *WriteRepository) createWithSeat(
	ctx context.Context,
	b *domain.Booking,
	eventType domain.BookingEventType,
	payload any,
	correlationID, eventID string,
	seatStatus domain.SeatStatus,
	lockedUntil *time.Time,
) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.WrapInternal(fmt.Errorf("begin tx: %w", err), true)
	}
	defer tx.Rollback(ctx)

	if b.HasSeat() {
		acquired, err := r.acquireSeatTx(ctx, tx, b.ScheduleID, b.SeatNumber, b.ID, seatStatus, lockedUntil)
		if err != nil {
			return err
		}
		if !acquired {
			return domain.ErrInsufficientSeats
		}
	}

	if err := insertBookingTx(ctx, tx, b); err != nil {
		return domain.WrapInternal(fmt.Errorf("insert booking: %w", err), false)
	}

	if err := r.appendEventAndOutbox(ctx, tx, b, eventType, payload, correlationID, eventID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.WrapInternal(fmt.Errorf("commit tx: %w", err), true)
	}
	return nil
}

// acquireSeatTx locks the (scheduleId, seatNumber) row and claims it per
// the §4.1.2 acquisition rule (AVAILABLE, or stale LOCKED). Creates the row
// on first reference if it does not yet exist.
func (r *WriteRepository) acquireSeatTx(ctx context.Context, tx pgx.Tx, scheduleID, seatNumber, bookingID string, newStatus domain.SeatStatus, lockedUntil *time.Time) (bool, error) {
	var (
		status      string
		existingID  *string
		existingTTL *time.Time
	)

	err := tx.QueryRow(ctx, `
		SELECT status, booking_id, locked_until FROM seat_availability
		WHERE schedule_id = $1 AND seat_number = $2
		FOR UPDATE
	`, scheduleID, seatNumber).Scan(&status, &existingID, &existingTTL)

	now := time.Now()
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err := tx.Exec(ctx, `
			INSERT INTO seat_availability (schedule_id, seat_number, status, booking_id, locked_until)
			VALUES ($1, $2, $3, $4, $5)
		`, scheduleID, seatNumber, string(newStatus), bookingID, lockedUntil)
		if err != nil {
			return false, fmt.Errorf("insert seat_availability: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("lock seat_availability: %w", err)
	}

	row := &domain.SeatAvailability{
		ScheduleID:  scheduleID,
		SeatNumber:  seatNumber,
		Status:      domain.SeatStatus(status),
		LockedUntil: existingTTL,
	}
	if !row.Acquirable(now) {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE seat_availability SET status = $3, booking_id = $4, locked_until = $5
		WHERE schedule_id = $1 AND seat_number = $2
	`, scheduleID, seatNumber, string(newStatus), bookingID, lockedUntil)
	if err != nil {
		return false, fmt.Errorf("update seat_availability: %w", err)
	}
	return true, nil
}

func insertBookingTx(ctx context.Context, tx pgx.Tx, b *domain.Booking) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings (
			id, user_id, route_id, schedule_id, seat_number,
			passenger_name, passenger_email, passenger_phone,
			price, currency, status, payment_id, idempotency_key,
			reserved_at, confirmed_at, cancelled_at, expires_at,
			created_at, updated_at, version
		) VALUES (
			$1, $2, $3, $4, nullif($5, ''),
			$6, $7, nullif($8, ''),
			$9, $10, $11, nullif($12, ''), nullif($13, ''),
			$14, $15, $16, $17,
			$18, $19, $20
		)
	`,
		b.ID, b.UserID, b.RouteID, b.ScheduleID, b.SeatNumber,
		b.PassengerName, b.PassengerEmail, b.PassengerPhone,
		b.Price, b.Currency, string(b.Status), b.PaymentID, b.IdempotencyKey,
		b.ReservedAt, b.ConfirmedAt, b.CancelledAt, b.ExpiresAt,
		b.CreatedAt, b.UpdatedAt, b.Version,
	)
	return err
}

// appendEventAndOutbox inserts the booking_events row at b.Version and the
// matching outbox row within tx.
func (r *WriteRepository) appendEventAndOutbox(ctx context.Context, tx pgx.Tx, b *domain.Booking, eventType domain.BookingEventType, payload any, correlationID, eventID string) error {
	if eventID == "" {
		eventID = uuid.New().String()
	}

	env, err := events.New(eventID, eventType, b.ID, b.Version, correlationID, payload)
	if err != nil {
		return domain.WrapInternal(fmt.Errorf("build envelope: %w", err), false)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_events (event_id, event_type, aggregate_id, aggregate_type, payload, correlation_id, causation_id, version, created_at)
		VALUES ($1, $2, $3, 'Booking', $4, nullif($5, ''), nullif($6, ''), $7, $8)
	`, eventID, string(eventType), b.ID, env.Payload, correlationID, env.CausationID, b.Version, env.Timestamp)
	if err != nil {
		return domain.WrapInternal(fmt.Errorf("insert booking_events: %w", err), false)
	}

	envelopeJSON, err := marshalEnvelope(env)
	if err != nil {
		return domain.WrapInternal(err, false)
	}

	outboxID := uuid.New().String()
	_, err = tx.Exec(ctx, `
		INSERT INTO booking_outbox (
			id, aggregate_type, aggregate_id, event_id, event_type,
			payload, topic, partition_key, correlation_id, causation_id,
			version, status, retry_count, max_retries, created_at
		) VALUES (
			$1, 'Booking', $2, $3, $4,
			$5, $6, $7, nullif($8, ''), nullif($9, ''),
			$10, $11, 0, 5, $12
		)
	`, outboxID, b.ID, eventID, string(eventType),
		envelopeJSON, r.topic, b.ID, correlationID, env.CausationID,
		b.Version, string(domain.OutboxPending), time.Now())
	if err != nil {
		return domain.WrapInternal(fmt.Errorf("insert booking_outbox: %w", err), false)
	}
	return nil
}
