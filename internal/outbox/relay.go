// Package outbox implements the relay worker that drains the transactional
// outbox (§12 "Transactional outbox as the implemented choice") onto the
// event bus, grounded on the reference OutboxWorker's poll/retry/cleanup
// ticker shape.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/transitline/ticketing-core/internal/bus"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/events"
	"github.com/transitline/ticketing-core/internal/store"
	"github.com/transitline/ticketing-core/pkg/logger"
	"github.com/transitline/ticketing-core/pkg/retry"
)

const (
	defaultPollInterval         = 100 * time.Millisecond
	defaultRetryInterval        = 5 * time.Second
	defaultCleanupInterval      = time.Hour
	defaultBatchSize            = 100
	defaultCleanupRetentionDays = 7
)

// Config configures a Relay.
type Config struct {
	Outbox               store.OutboxRepository
	Publisher            bus.Publisher
	PollInterval         time.Duration
	RetryInterval        time.Duration
	CleanupInterval      time.Duration
	BatchSize            int
	CleanupRetentionDays int
	// PublishRetry configures the in-process backoff applied to each publish
	// attempt before the message is marked failed and left for the slower
	// retryFailedMessages ticker; nil uses defaultPublishRetryConfig, a
	// short backoff suited to a broker hiccup rather than the longer-horizon
	// retries retry.DefaultConfig targets.
	PublishRetry *retry.Config
}

// defaultPublishRetryConfig keeps the poll loop responsive: a couple of
// quick local retries for a transient broker blip, then fall through to
// processFailedMessages' own ticker-paced retries.
func defaultPublishRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:      2,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Relay drains the booking_outbox table onto the event bus. It is the only
// publisher of record in outbox publish mode; in inline publish mode it
// still runs to pick up whatever the command core's best-effort inline
// publish missed (§12).
type Relay struct {
	outbox   store.OutboxRepository
	producer bus.Publisher

	pollInterval         time.Duration
	retryInterval        time.Duration
	cleanupInterval      time.Duration
	batchSize            int
	cleanupRetentionDays int
	publishRetrier       *retry.Retrier

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a Relay from cfg, applying defaults for zero-valued fields.
func New(cfg Config) *Relay {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = defaultCleanupInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	retention := cfg.CleanupRetentionDays
	if retention <= 0 {
		retention = defaultCleanupRetentionDays
	}
	publishRetry := cfg.PublishRetry
	if publishRetry == nil {
		publishRetry = defaultPublishRetryConfig()
	}
	return &Relay{
		outbox:               cfg.Outbox,
		producer:             cfg.Publisher,
		pollInterval:         poll,
		retryInterval:        retryInterval,
		cleanupInterval:      cleanup,
		batchSize:            batch,
		cleanupRetentionDays: retention,
		publishRetrier:       retry.New(publishRetry),
	}
}

// Start launches the poll, retry and cleanup loops. Safe to call once; a
// second call before Stop returns an error.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox: relay already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	logger.Info("outbox: relay starting")
	r.wg.Add(3)
	go r.pollPendingMessages(ctx)
	go r.retryFailedMessages(ctx)
	go r.cleanupOldMessages(ctx)
	return nil
}

// Stop signals all loops to exit and waits for them to finish.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	logger.Info("outbox: relay stopping")
	r.wg.Wait()
	logger.Info("outbox: relay stopped")
}

func (r *Relay) pollPendingMessages(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.processPendingMessages(ctx)
		}
	}
}

func (r *Relay) processPendingMessages(ctx context.Context) {
	msgs, err := r.outbox.GetPendingMessages(ctx, r.batchSize)
	if err != nil {
		logger.Error("outbox: failed to list pending messages", "err", err)
		return
	}
	for _, msg := range msgs {
		if err := r.publishOutboxMessage(ctx, msg); err != nil {
			logger.Error("outbox: failed to publish message", "id", msg.ID, "err", err)
			if markErr := r.outbox.MarkAsFailed(ctx, msg.ID, err.Error()); markErr != nil {
				logger.Error("outbox: failed to mark message as failed", "id", msg.ID, "err", markErr)
			}
			continue
		}
		if markErr := r.outbox.MarkAsPublished(ctx, msg.ID); markErr != nil {
			logger.Error("outbox: failed to mark message as published", "id", msg.ID, "err", markErr)
		}
	}
}

func (r *Relay) retryFailedMessages(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.processFailedMessages(ctx)
		}
	}
}

func (r *Relay) processFailedMessages(ctx context.Context) {
	msgs, err := r.outbox.GetFailedMessages(ctx, r.batchSize)
	if err != nil {
		logger.Error("outbox: failed to list failed messages", "err", err)
		return
	}
	for _, msg := range msgs {
		if !msg.CanRetry() {
			continue
		}
		if err := r.publishOutboxMessage(ctx, msg); err != nil {
			logger.Error("outbox: retry failed", "id", msg.ID, "retryCount", msg.RetryCount, "err", err)
			if markErr := r.outbox.MarkAsFailed(ctx, msg.ID, err.Error()); markErr != nil {
				logger.Error("outbox: failed to mark message as failed", "id", msg.ID, "err", markErr)
			}
			continue
		}
		logger.Info("outbox: retry succeeded", "id", msg.ID, "retryCount", msg.RetryCount)
		if markErr := r.outbox.MarkAsPublished(ctx, msg.ID); markErr != nil {
			logger.Error("outbox: failed to mark message as published", "id", msg.ID, "err", markErr)
		}
	}
}

func (r *Relay) cleanupOldMessages(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			deleted, err := r.outbox.DeletePublished(ctx, r.cleanupRetentionDays)
			if err != nil {
				logger.Error("outbox: failed to clean up published messages", "err", err)
				continue
			}
			if deleted > 0 {
				logger.Info("outbox: cleaned up published messages", "count", deleted)
			}
		}
	}
}

// publishOutboxMessage reconstructs the event envelope stored in msg.Payload
// and publishes it under msg.Topic/msg.PartitionKey, retrying transient
// broker errors with backoff before giving up and letting the caller mark
// the message failed for the slower retryFailedMessages pass to pick up.
func (r *Relay) publishOutboxMessage(ctx context.Context, msg *domain.OutboxMessage) error {
	var env events.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return fmt.Errorf("unmarshal outbox payload: %w", err)
	}
	result := r.publishRetrier.Do(ctx, func(ctx context.Context) error {
		return r.producer.Publish(ctx, msg.Topic, msg.PartitionKey, &env)
	})
	return result.Err
}
