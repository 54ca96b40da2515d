package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/transitline/ticketing-core/pkg/logger"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConsumerConfig configures the franz-go consumer-group client.
type KafkaConsumerConfig struct {
	Brokers          []string
	GroupID          string
	ClientID         string
	Topics           []string
	SessionTimeout   time.Duration
	RebalanceTimeout time.Duration
}

// KafkaConsumer polls Topics as part of GroupID, applying Handler to each
// record and only committing offsets for records the handler accepted.
// Records the handler rejects are retried on the next poll since their
// offset is withheld from the commit.
type KafkaConsumer struct {
	client *kgo.Client
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewKafkaConsumer dials the seed brokers and joins GroupID.
func NewKafkaConsumer(ctx context.Context, cfg KafkaConsumerConfig) (*KafkaConsumer, error) {
	sessionTimeout := cfg.SessionTimeout
	if sessionTimeout == 0 {
		sessionTimeout = 30 * time.Second
	}
	rebalanceTimeout := cfg.RebalanceTimeout
	if rebalanceTimeout == 0 {
		rebalanceTimeout = 60 * time.Second
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ClientID(cfg.ClientID),
		kgo.DisableAutoCommit(),
		kgo.SessionTimeout(sessionTimeout),
		kgo.RebalanceTimeout(rebalanceTimeout),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: failed to create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("bus: failed to ping kafka: %w", err)
	}

	return &KafkaConsumer{client: client, stopCh: make(chan struct{})}, nil
}

// Run polls fetches until ctx is cancelled or Close is called, applying
// handler to every record in the order received within a partition.
func (c *KafkaConsumer) Run(ctx context.Context, handler Handler) error {
	log := logger.Get()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				log.Errorw("bus: fetch error", "topic", fe.Topic, "partition", fe.Partition, "err", fe.Err)
			}
		}

		failed := map[string]map[int32]kgo.EpochOffset{}
		fetches.EachRecord(func(record *kgo.Record) {
			if _, ok := failed[record.Topic][record.Partition]; ok {
				return
			}
			msg := Message{
				Topic:     record.Topic,
				Partition: record.Partition,
				Offset:    record.Offset,
				Key:       record.Key,
				Value:     record.Value,
			}
			if err := handler(ctx, msg); err != nil {
				log.Errorw("bus: handler failed, offset withheld from commit",
					"topic", record.Topic, "partition", record.Partition, "offset", record.Offset, "err", err)
				if failed[record.Topic] == nil {
					failed[record.Topic] = map[int32]kgo.EpochOffset{}
				}
				failed[record.Topic][record.Partition] = kgo.EpochOffset{Epoch: record.LeaderEpoch, Offset: record.Offset}
				return
			}
			c.client.MarkCommitRecords(record)
		})
		if len(failed) > 0 {
			c.client.SetOffsets(failed)
		}

		if err := c.client.CommitMarkedOffsets(ctx); err != nil {
			log.Errorw("bus: failed to commit offsets", "err", err)
		}
	}
}

// Close stops polling and releases the client. Handlers run inline in Run's
// poll loop rather than in goroutines of their own.
func (c *KafkaConsumer) Close() error {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.wg.Wait()
	c.client.Close()
	return nil
}
