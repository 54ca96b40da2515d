package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/transitline/ticketing-core/internal/events"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisherConfig configures the franz-go producer client.
type KafkaPublisherConfig struct {
	Brokers       []string
	ClientID      string
	MaxRetries    int
	RetryInterval time.Duration
}

// KafkaPublisher publishes envelopes onto the bus with the booking ID as
// the partition key, guaranteeing every event for one booking lands on
// the same partition and is therefore applied in order by the projector.
type KafkaPublisher struct {
	client *kgo.Client
}

// NewKafkaPublisher dials the seed brokers and returns a ready publisher.
func NewKafkaPublisher(ctx context.Context, cfg KafkaPublisherConfig) (*KafkaPublisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerBatchMaxBytes(1 << 20),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: failed to create kafka client: %w", err)
	}

	var lastErr error
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 3
	}
	interval := cfg.RetryInterval
	if interval == 0 {
		interval = time.Second
	}
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			time.Sleep(interval)
		}
		if lastErr = client.Ping(ctx); lastErr == nil {
			return &KafkaPublisher{client: client}, nil
		}
	}

	client.Close()
	return nil, fmt.Errorf("bus: failed to reach kafka after %d attempts: %w", retries+1, lastErr)
}

// Publish serializes env and produces it synchronously to topic.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key string, env *events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: failed to marshal envelope: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "event_id", Value: []byte(env.EventID)},
			{Key: "correlation_id", Value: []byte(env.CorrelationID)},
			{Key: "timestamp", Value: []byte(env.Timestamp.UTC().Format(time.RFC3339Nano))},
		},
	}
	return p.produce(ctx, topic, record)
}

// PublishRaw produces a pre-serialized value with no envelope headers.
func (p *KafkaPublisher) PublishRaw(ctx context.Context, topic string, key string, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	return p.produce(ctx, topic, record)
}

func (p *KafkaPublisher) produce(ctx context.Context, topic string, record *kgo.Record) error {
	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("bus: failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close releases the underlying client.
func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}
