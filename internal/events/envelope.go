// Package events defines the wire envelope and typed payloads published to
// the bus, grounded on §4.2 of SPEC_FULL.
package events

import (
	"encoding/json"
	"time"

	"github.com/transitline/ticketing-core/internal/domain"
)

// Envelope is the self-describing object embedded as the bus message value.
// The message key is always the bookingId (guaranteeing per-aggregate
// ordering within a partition); headers carry EventType, CorrelationID,
// Timestamp redundantly for consumers that filter on headers alone.
type Envelope struct {
	EventID       string                      `json:"eventId"`
	EventType     domain.BookingEventType     `json:"eventType"`
	AggregateID   string                      `json:"aggregateId"`
	AggregateType string                      `json:"aggregateType"`
	Timestamp     time.Time                   `json:"timestamp"`
	Version       int64                       `json:"version"`
	CorrelationID string                      `json:"correlationId,omitempty"`
	CausationID   string                      `json:"causationId,omitempty"`
	Metadata      map[string]string           `json:"metadata,omitempty"`
	Payload       json.RawMessage             `json:"payload"`
}

// BookedPayload backs TICKET_BOOKED.
type BookedPayload struct {
	BookingID      string `json:"bookingId"`
	UserID         string `json:"userId"`
	RouteID        string `json:"routeId"`
	ScheduleID     string `json:"scheduleId"`
	SeatNumber     string `json:"seatNumber,omitempty"`
	PassengerName  string `json:"passengerName"`
	PassengerEmail string `json:"passengerEmail"`
	Price          int64  `json:"price"`
	Currency       string `json:"currency"`
}

// ReservedPayload backs TICKET_RESERVED: BookedPayload plus an expiry.
type ReservedPayload struct {
	BookedPayload
	ExpiresAt time.Time `json:"expiresAt"`
}

// ConfirmedPayload backs TICKET_CONFIRMED.
type ConfirmedPayload struct {
	BookingID   string    `json:"bookingId"`
	UserID      string    `json:"userId"`
	PaymentID   string    `json:"paymentId"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// CancelledPayload backs TICKET_CANCELLED.
type CancelledPayload struct {
	BookingID    string    `json:"bookingId"`
	UserID       string    `json:"userId"`
	Reason       string    `json:"reason,omitempty"`
	CancelledAt  time.Time `json:"cancelledAt"`
	RefundAmount *int64    `json:"refundAmount,omitempty"`
}

// ExpiredPayload backs TICKET_EXPIRED.
type ExpiredPayload struct {
	BookingID string    `json:"bookingId"`
	UserID    string    `json:"userId"`
	ExpiredAt time.Time `json:"expiredAt"`
}

// RefundedPayload backs TICKET_REFUNDED.
type RefundedPayload struct {
	BookingID    string    `json:"bookingId"`
	UserID       string    `json:"userId"`
	RefundAmount int64     `json:"refundAmount"`
	RefundedAt   time.Time `json:"refundedAt"`
}

// New builds an envelope with the payload marshaled into Payload.
func New(eventID string, eventType domain.BookingEventType, aggregateID string, version int64, correlationID string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: "Booking",
		Timestamp:     time.Now(),
		Version:       version,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// Decode unmarshals the envelope's raw payload into v.
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
