package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/store"
)

// ReadRepository implements store.ReadRepository against the read-store
// pool (user_tickets_view, schedule_availability_view), owned exclusively
// by the projector per §3's lifecycle rule.
type ReadRepository struct {
	pool *pgxpool.Pool
}

// NewReadRepository wraps pool.
func NewReadRepository(pool *pgxpool.Pool) *ReadRepository {
	return &ReadRepository{pool: pool}
}

var _ store.ReadRepository = (*ReadRepository)(nil)

// UpsertTicketOnBookedOrReserved implements the §4.3 step-2 upsert for
// TICKET_BOOKED/TICKET_RESERVED, with the monotonic-status guard: an
// existing row already in a terminal-or-confirmed status is never
// regressed by a replayed creation event.
func (r *ReadRepository) UpsertTicketOnBookedOrReserved(ctx context.Context, t *domain.TicketView) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_tickets_view (
			id, user_id, route_id, schedule_id, seat_number,
			passenger_name, passenger_email, price, currency, status,
			payment_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, nullif($5, ''),
			$6, $7, $8, $9, $10,
			nullif($11, ''), $12, $13
		)
		ON CONFLICT (id) DO UPDATE SET
			status = CASE
				WHEN user_tickets_view.status IN ('CONFIRMED', 'CANCELLED', 'EXPIRED', 'REFUNDED') THEN user_tickets_view.status
				ELSE excluded.status
			END,
			updated_at = excluded.updated_at
	`,
		t.ID, t.UserID, t.RouteID, t.ScheduleID, t.SeatNumber,
		t.PassengerName, t.PassengerEmail, t.Price, t.Currency, string(t.Status),
		t.PaymentID, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return domain.WrapInternal(fmt.Errorf("upsert ticket view: %w", err), false)
	}
	return nil
}

// SetStatus implements the §4.3 step-2 handling for TICKET_CONFIRMED /
// TICKET_CANCELLED / TICKET_EXPIRED: a plain status update by id.
func (r *ReadRepository) SetStatus(ctx context.Context, bookingID string, status domain.BookingStatus) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_tickets_view SET status = $2, updated_at = now() WHERE id = $1
	`, bookingID, string(status))
	if err != nil {
		return domain.WrapInternal(fmt.Errorf("set ticket status: %w", err), false)
	}
	return nil
}

// GetTicket serves §4.4.2 on a cache miss.
func (r *ReadRepository) GetTicket(ctx context.Context, bookingID string) (*domain.TicketView, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, route_id, schedule_id, coalesce(seat_number, ''),
			passenger_name, passenger_email, price, currency, status,
			coalesce(payment_id, ''), route_name, departure_time, arrival_time,
			origin_stop, destination_stop, created_at, updated_at
		FROM user_tickets_view WHERE id = $1
	`, bookingID)

	t := &domain.TicketView{}
	var status string
	err := row.Scan(
		&t.ID, &t.UserID, &t.RouteID, &t.ScheduleID, &t.SeatNumber,
		&t.PassengerName, &t.PassengerEmail, &t.Price, &t.Currency, &status,
		&t.PaymentID, &t.RouteName, &t.DepartureTime, &t.ArrivalTime,
		&t.OriginStop, &t.DestinationStop, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("get ticket: %w", err), false)
	}
	t.Status = domain.BookingStatus(status)
	return t, nil
}

// ListUserTickets serves §4.4.1 on a cache miss, ordered by createdAt desc.
func (r *ReadRepository) ListUserTickets(ctx context.Context, userID string, status string, page, limit int) ([]*domain.TicketView, int, error) {
	offset := (page - 1) * limit

	var total int
	countErr := func() error {
		if status == "" {
			return r.pool.QueryRow(ctx, `SELECT count(*) FROM user_tickets_view WHERE user_id = $1`, userID).Scan(&total)
		}
		return r.pool.QueryRow(ctx, `SELECT count(*) FROM user_tickets_view WHERE user_id = $1 AND status = $2`, userID, status).Scan(&total)
	}()
	if countErr != nil {
		return nil, 0, domain.WrapInternal(fmt.Errorf("count user tickets: %w", countErr), false)
	}

	query := `
		SELECT id, user_id, route_id, schedule_id, coalesce(seat_number, ''),
			passenger_name, passenger_email, price, currency, status,
			coalesce(payment_id, ''), route_name, departure_time, arrival_time,
			origin_stop, destination_stop, created_at, updated_at
		FROM user_tickets_view
		WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, domain.WrapInternal(fmt.Errorf("list user tickets: %w", err), false)
	}
	defer rows.Close()

	var tickets []*domain.TicketView
	for rows.Next() {
		t := &domain.TicketView{}
		var st string
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.RouteID, &t.ScheduleID, &t.SeatNumber,
			&t.PassengerName, &t.PassengerEmail, &t.Price, &t.Currency, &st,
			&t.PaymentID, &t.RouteName, &t.DepartureTime, &t.ArrivalTime,
			&t.OriginStop, &t.DestinationStop, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, 0, domain.WrapInternal(fmt.Errorf("scan ticket view: %w", err), false)
		}
		t.Status = domain.BookingStatus(st)
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domain.WrapInternal(fmt.Errorf("iterate ticket views: %w", err), false)
	}

	return tickets, total, nil
}

// AdjustBookedSeats implements the §4.3 step-2 per-schedule counter bump,
// clamped at zero as §4.3/P6 require.
func (r *ReadRepository) AdjustBookedSeats(ctx context.Context, scheduleID string, delta int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_availability_view (schedule_id, total_seats, booked_seats)
		VALUES ($1, 0, greatest($2, 0))
		ON CONFLICT (schedule_id) DO UPDATE SET
			booked_seats = greatest(schedule_availability_view.booked_seats + $2, 0)
	`, scheduleID, delta)
	if err != nil {
		return domain.WrapInternal(fmt.Errorf("adjust booked seats: %w", err), false)
	}
	return nil
}

// GetScheduleAvailability serves the per-schedule availability counter.
func (r *ReadRepository) GetScheduleAvailability(ctx context.Context, scheduleID string) (*domain.ScheduleAvailability, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT schedule_id, total_seats, booked_seats FROM schedule_availability_view WHERE schedule_id = $1
	`, scheduleID)

	s := &domain.ScheduleAvailability{}
	err := row.Scan(&s.ScheduleID, &s.TotalSeats, &s.BookedSeats)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("get schedule availability: %w", err), false)
	}
	return s, nil
}

