// Package store defines the repository interfaces the command core, query
// core, projector, and sweeper depend on. Concrete implementations live in
// store/postgres; tests use in-memory fakes.
package store

import (
	"context"
	"time"

	"github.com/transitline/ticketing-core/internal/domain"
)

// BookParams carries the validated inputs to WriteRepository.Book.
type BookParams struct {
	BookingID      string
	UserID         string
	RouteID        string
	ScheduleID     string
	SeatNumber     string
	PassengerName  string
	PassengerEmail string
	PassengerPhone string
	Price          int64
	Currency       string
	IdempotencyKey string
	CorrelationID  string
	EventID        string
}

// ReserveParams carries the validated inputs to WriteRepository.Reserve.
type ReserveParams struct {
	BookParams
	ReservationMinutes int
}

// WriteRepository implements the §4.1.5 transactional protocol: each method
// opens one write-store transaction, takes the necessary row locks, mutates
// bookings/seat_availability, appends the event-store row, inserts the
// matching outbox row, and commits — or returns a typed domain error without
// any partial effect.
type WriteRepository interface {
	Book(ctx context.Context, p BookParams) (*domain.Booking, error)
	Reserve(ctx context.Context, p ReserveParams) (*domain.Booking, error)
	Confirm(ctx context.Context, bookingID, paymentID, correlationID, eventID string) (*domain.Booking, error)
	Cancel(ctx context.Context, bookingID, userID, reason, correlationID, eventID string) (*domain.Booking, error)
	ExpireReservation(ctx context.Context, bookingID, correlationID, eventID string) (*domain.Booking, error)

	GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error)
	GetExpiredReservations(ctx context.Context, limit int) ([]*domain.Booking, error)
}

// ReadRepository is the projector's and query core's view of the read store.
type ReadRepository interface {
	UpsertTicketOnBookedOrReserved(ctx context.Context, t *domain.TicketView) error
	SetStatus(ctx context.Context, bookingID string, status domain.BookingStatus) error
	GetTicket(ctx context.Context, bookingID string) (*domain.TicketView, error)
	ListUserTickets(ctx context.Context, userID string, status string, page, limit int) (tickets []*domain.TicketView, total int, err error)

	AdjustBookedSeats(ctx context.Context, scheduleID string, delta int) error
	GetScheduleAvailability(ctx context.Context, scheduleID string) (*domain.ScheduleAvailability, error)
}

// CheckpointRepository persists the projector's per-projection cursor (the
// last applied event id).
type CheckpointRepository interface {
	GetCheckpoint(ctx context.Context, projectionName string) (*domain.ProjectorCheckpoint, error)
	SetCheckpoint(ctx context.Context, projectionName, lastProcessedEventID string) error
	// SeenEventID reports whether eventID is the last one applied for this
	// projection, the at-least-once short-circuit described in §4.3.
	SeenEventID(ctx context.Context, projectionName, eventID string) (bool, error)
}

// OutboxRepository is consumed by the relay worker and the reconciler.
type OutboxRepository interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	MarkAsPublished(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id, errMsg string) error
	DeletePublished(ctx context.Context, olderThanDays int) (int64, error)
	GetSince(ctx context.Context, since time.Time, limit int) ([]*domain.OutboxMessage, error)
}
