package domain

import "time"

// TicketView is the denormalized read-model projection of a Booking,
// maintained exclusively by the projector (§3 lifecycle rules).
type TicketView struct {
	ID             string
	UserID         string
	RouteID        string
	ScheduleID     string
	SeatNumber     string
	PassengerName  string
	PassengerEmail string
	Price          int64
	Currency       string
	Status         BookingStatus
	PaymentID      string

	RouteName       *string
	DepartureTime   *time.Time
	ArrivalTime     *time.Time
	OriginStop      *string
	DestinationStop *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduleAvailability is the per-schedule booked-seat counter read model.
type ScheduleAvailability struct {
	ScheduleID  string
	TotalSeats  int
	BookedSeats int
}

// AvailableSeats is the derived field from §3's ScheduleAvailability model.
func (s *ScheduleAvailability) AvailableSeats() int {
	avail := s.TotalSeats - s.BookedSeats
	if avail < 0 {
		return 0
	}
	return avail
}

// ProjectorCheckpoint is the named cursor the projector advances after each
// successfully-applied event (§3, §4.3 step 3).
type ProjectorCheckpoint struct {
	ProjectionName      string
	LastProcessedEventID string
	LastProcessedAt      time.Time
}
