package domain

import "time"

// BookingEventType names one of the six domain events the command core emits.
type BookingEventType string

const (
	EventTicketBooked    BookingEventType = "TICKET_BOOKED"
	EventTicketReserved  BookingEventType = "TICKET_RESERVED"
	EventTicketConfirmed BookingEventType = "TICKET_CONFIRMED"
	EventTicketCancelled BookingEventType = "TICKET_CANCELLED"
	EventTicketExpired   BookingEventType = "TICKET_EXPIRED"
	EventTicketRefunded  BookingEventType = "TICKET_REFUNDED"
)

// BookingEvent is the append-only event-store row (§3). AggregateType is
// always "Booking"; (AggregateID, Version) is unique (I5, P1).
type BookingEvent struct {
	EventID       string
	EventType     BookingEventType
	AggregateID   string
	AggregateType string
	Payload       []byte // JSON
	CorrelationID string
	CausationID   string
	Version       int64
	CreatedAt     time.Time
}
