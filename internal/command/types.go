// Package command implements the Command core (C): validates inbound
// booking commands, mutates the aggregate through store.WriteRepository,
// and publishes the resulting event, grounded on the reference
// bookingService's validate/call-repository/publish shape.
package command

// BookRequest is the validated input to Book (§4.1.1).
type BookRequest struct {
	UserID                 string
	RouteID                string
	ScheduleID             string
	SeatNumber             string
	PassengerName          string
	PassengerEmail         string
	PassengerPhone         string
	Price                  int64
	Currency               string
	IdempotencyKey         string
	CorrelationID          string
}

// ReserveRequest is the validated input to Reserve (§4.1.2).
type ReserveRequest struct {
	BookRequest
	ReservationDurationMinutes int
}

// ConfirmRequest is the input to Confirm (§4.1.3).
type ConfirmRequest struct {
	BookingID     string
	PaymentID     string
	CorrelationID string
}

// CancelRequest is the input to Cancel (§4.1.4).
type CancelRequest struct {
	BookingID     string
	UserID        string // enforced as owner when non-empty
	Reason        string
	CorrelationID string
}
