package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/transitline/ticketing-core/internal/domain"
)

const bookingSelectColumns = `
	SELECT
		id, user_id, route_id, schedule_id, coalesce(seat_number, ''),
		passenger_name, passenger_email, coalesce(passenger_phone, ''),
		price, currency, status, coalesce(payment_id, ''), coalesce(idempotency_key, ''),
		coalesce(confirmation_code, ''),
		reserved_at, confirmed_at, cancelled_at, expires_at,
		created_at, updated_at, version
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	var status string
	err := row.Scan(
		&b.ID, &b.UserID, &b.RouteID, &b.ScheduleID, &b.SeatNumber,
		&b.PassengerName, &b.PassengerEmail, &b.PassengerPhone,
		&b.Price, &b.Currency, &status, &b.PaymentID, &b.IdempotencyKey,
		&b.ConfirmationCode,
		&b.ReservedAt, &b.ConfirmedAt, &b.CancelledAt, &b.ExpiresAt,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	return b, nil
}

// GetBooking fetches a booking without taking a lock.
func (r *WriteRepository) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	row := r.pool.QueryRow(ctx, bookingSelectColumns+` FROM bookings WHERE id = $1`, bookingID)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("get booking: %w", err), false)
	}
	return b, nil
}

// FindByIdempotencyKey backs the command core's idempotency-key short
// circuit (§12 "idempotency key support").
func (r *WriteRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	row := r.pool.QueryRow(ctx, bookingSelectColumns+` FROM bookings WHERE idempotency_key = $1`, key)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("find by idempotency key: %w", err), false)
	}
	return b, nil
}

// GetExpiredReservations lists RESERVED bookings past expiry for the
// sweeper (§4.5), oldest first so a backlog drains in arrival order.
func (r *WriteRepository) GetExpiredReservations(ctx context.Context, limit int) ([]*domain.Booking, error) {
	rows, err := r.pool.Query(ctx, bookingSelectColumns+`
		FROM bookings
		WHERE status = $1 AND expires_at < now()
		ORDER BY expires_at ASC
		LIMIT $2
	`, string(domain.StatusReserved), limit)
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("get expired reservations: %w", err), false)
	}
	defer rows.Close()

	var out []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, domain.WrapInternal(fmt.Errorf("scan expired reservation: %w", err), false)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("iterate expired reservations: %w", err), false)
	}
	return out, nil
}
