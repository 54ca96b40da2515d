// Package bus defines the Bus (B) contract the command core, outbox relay,
// and projector depend on, and a franz-go-backed implementation of both
// sides grounded on the consumer-group poll loop used elsewhere in this
// codebase for event consumption.
package bus

import (
	"context"

	"github.com/transitline/ticketing-core/internal/events"
)

// Message is one record read off the bus, enough for the projector to
// decode the envelope and acknowledge the read.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
}

// Publisher appends envelopes to the bus. Implementations must preserve
// per-aggregate ordering, which is why Publish takes an explicit
// partition key rather than deriving one internally.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, env *events.Envelope) error
	// PublishRaw produces a pre-serialized value, used by callers that
	// don't carry a domain event envelope (e.g. the projector's
	// dead-letter diversion), mirroring the reference SagaProducer's
	// raw-bytes Publish contract.
	PublishRaw(ctx context.Context, topic string, key string, value []byte) error
	Close() error
}

// Handler processes one message. Returning an error leaves the message
// uncommitted so the consumer's retry/DLQ policy applies.
type Handler func(ctx context.Context, msg Message) error

// Consumer polls a topic with a consumer group and hands each record to a
// Handler, committing offsets only after the handler succeeds.
type Consumer interface {
	Run(ctx context.Context, handler Handler) error
	Close() error
}
