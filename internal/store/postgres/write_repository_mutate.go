package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/events"
)

// Confirm implements §4.1.3.
func (r *WriteRepository) Confirm(ctx context.Context, bookingID, paymentID, correlationID, eventID string) (*domain.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("begin tx: %w", err), true)
	}
	defer tx.Rollback(ctx)

	b, err := lockBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if b.Status != domain.StatusPending && b.Status != domain.StatusReserved {
		return nil, domain.NewInvalidState(b.Status, "booking is not pending or reserved")
	}
	if b.Status == domain.StatusReserved && b.ExpiresAt != nil && b.ExpiresAt.Before(now) {
		return nil, domain.ErrReservationExpired
	}
	if !domain.CanTransition(b.Status, domain.StatusConfirmed) {
		return nil, domain.NewInvalidState(b.Status, "confirm not permitted from current status")
	}

	b.Status = domain.StatusConfirmed
	b.PaymentID = paymentID
	b.ConfirmedAt = &now
	b.ExpiresAt = nil
	b.UpdatedAt = now
	b.Version++
	b.ConfirmationCode = domain.GenerateConfirmationCode()

	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2, payment_id = $3, confirmed_at = $4, expires_at = NULL,
			updated_at = $5, version = $6, confirmation_code = $7
		WHERE id = $1
	`, b.ID, string(b.Status), b.PaymentID, b.ConfirmedAt, b.UpdatedAt, b.Version, b.ConfirmationCode); err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("update booking: %w", err), false)
	}

	if b.HasSeat() {
		if _, err := tx.Exec(ctx, `
			UPDATE seat_availability SET status = $3, locked_until = NULL
			WHERE schedule_id = $1 AND seat_number = $2
		`, b.ScheduleID, b.SeatNumber, string(domain.SeatBooked)); err != nil {
			return nil, domain.WrapInternal(fmt.Errorf("update seat_availability: %w", err), false)
		}
	}

	payload := events.ConfirmedPayload{
		BookingID:   b.ID,
		UserID:      b.UserID,
		PaymentID:   b.PaymentID,
		ConfirmedAt: now,
	}
	if err := r.appendEventAndOutbox(ctx, tx, b, domain.EventTicketConfirmed, payload, correlationID, eventID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("commit tx: %w", err), true)
	}
	return b, nil
}

// Cancel implements §4.1.4. userID, when non-empty, must match the
// booking's owner or the transition is rejected with Forbidden before any
// row is touched.
func (r *WriteRepository) Cancel(ctx context.Context, bookingID, userID, reason, correlationID, eventID string) (*domain.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("begin tx: %w", err), true)
	}
	defer tx.Rollback(ctx)

	b, err := lockBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}

	if userID != "" && b.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if !domain.CanTransition(b.Status, domain.StatusCancelled) {
		return nil, domain.NewInvalidState(b.Status, "cancel not permitted from current status")
	}

	now := time.Now()
	previousStatus := b.Status

	b.Status = domain.StatusCancelled
	b.CancelledAt = &now
	b.ExpiresAt = nil
	b.UpdatedAt = now
	b.Version++

	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2, cancelled_at = $3, expires_at = NULL, updated_at = $4, version = $5
		WHERE id = $1
	`, b.ID, string(b.Status), b.CancelledAt, b.UpdatedAt, b.Version); err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("update booking: %w", err), false)
	}

	if b.HasSeat() {
		if _, err := tx.Exec(ctx, `
			UPDATE seat_availability SET status = $3, booking_id = NULL, locked_until = NULL
			WHERE schedule_id = $1 AND seat_number = $2
		`, b.ScheduleID, b.SeatNumber, string(domain.SeatAvailable)); err != nil {
			return nil, domain.WrapInternal(fmt.Errorf("update seat_availability: %w", err), false)
		}
	}

	// Refund policy placeholder (§4.1.4, §12): full price iff the booking
	// was already CONFIRMED, otherwise no refund.
	var refundAmount *int64
	if previousStatus == domain.StatusConfirmed {
		amt := b.Price
		refundAmount = &amt
	}

	payload := events.CancelledPayload{
		BookingID:    b.ID,
		UserID:       b.UserID,
		Reason:       reason,
		CancelledAt:  now,
		RefundAmount: refundAmount,
	}
	if err := r.appendEventAndOutbox(ctx, tx, b, domain.EventTicketCancelled, payload, correlationID, eventID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("commit tx: %w", err), true)
	}
	return b, nil
}

// ExpireReservation implements the sweeper's per-booking transition (§4.5):
// the same atomic shape as Cancel but targeting EXPIRED and requiring the
// booking still be RESERVED — a concurrent Confirm that wins the row lock
// first leaves nothing for the sweeper to expire.
func (r *WriteRepository) ExpireReservation(ctx context.Context, bookingID, correlationID, eventID string) (*domain.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("begin tx: %w", err), true)
	}
	defer tx.Rollback(ctx)

	b, err := lockBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}

	if b.Status != domain.StatusReserved {
		return nil, domain.NewInvalidState(b.Status, "booking is no longer reserved")
	}

	now := time.Now()
	b.Status = domain.StatusExpired
	b.ExpiresAt = nil
	b.UpdatedAt = now
	b.Version++

	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2, expires_at = NULL, updated_at = $3, version = $4
		WHERE id = $1
	`, b.ID, string(b.Status), b.UpdatedAt, b.Version); err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("update booking: %w", err), false)
	}

	if b.HasSeat() {
		if _, err := tx.Exec(ctx, `
			UPDATE seat_availability SET status = $3, booking_id = NULL, locked_until = NULL
			WHERE schedule_id = $1 AND seat_number = $2
		`, b.ScheduleID, b.SeatNumber, string(domain.SeatAvailable)); err != nil {
			return nil, domain.WrapInternal(fmt.Errorf("update seat_availability: %w", err), false)
		}
	}

	payload := events.ExpiredPayload{
		BookingID: b.ID,
		UserID:    b.UserID,
		ExpiredAt: now,
	}
	if err := r.appendEventAndOutbox(ctx, tx, b, domain.EventTicketExpired, payload, correlationID, eventID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("commit tx: %w", err), true)
	}
	return b, nil
}

// lockBookingTx takes the row-level lock §4.1.5 step 1 requires for every
// mutation of an existing aggregate.
func lockBookingTx(ctx context.Context, tx pgx.Tx, bookingID string) (*domain.Booking, error) {
	row := tx.QueryRow(ctx, bookingSelectColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, domain.WrapInternal(fmt.Errorf("lock booking: %w", err), false)
	}
	return b, nil
}
