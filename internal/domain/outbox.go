package domain

import "time"

// OutboxStatus is the lifecycle status of an outbox row.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxMessage is a row in the booking_outbox table, inserted in the same
// transaction as the aggregate/event-store mutation (§9, §12 "Transactional
// outbox as the implemented choice"). Extended beyond a generic outbox row
// with Version/CorrelationID/CausationID so the relay can reconstruct the
// exact event envelope (§4.2) it publishes.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventID       string
	EventType     BookingEventType
	Payload       []byte // marshaled events.Envelope
	Topic         string
	PartitionKey  string
	CorrelationID string
	CausationID   string
	Version       int64
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	PublishedAt   *time.Time
}

// CanRetry reports whether a failed message has retry budget left.
func (m *OutboxMessage) CanRetry() bool {
	return m.Status == OutboxFailed && m.RetryCount < m.MaxRetries
}
