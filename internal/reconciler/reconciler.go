// Package reconciler implements the background replay stub described by
// §4.1.5's first mitigation: re-publish any outbox rows that a relay
// outage or bus incident left behind. It is not wired to a scheduler by
// default; operators invoke it manually or from a cron job.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/transitline/ticketing-core/internal/bus"
	"github.com/transitline/ticketing-core/internal/events"
	"github.com/transitline/ticketing-core/internal/store"
	"github.com/transitline/ticketing-core/pkg/logger"
)

const defaultBatchSize = 500

// Config wires a Reconciler to its collaborators.
type Config struct {
	Outbox    store.OutboxRepository
	Publisher bus.Publisher
	BatchSize int
}

// Reconciler replays outbox rows newer than a given checkpoint.
type Reconciler struct {
	outbox    store.OutboxRepository
	publisher bus.Publisher
	batchSize int
}

// New builds a Reconciler from cfg.
func New(cfg Config) *Reconciler {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Reconciler{outbox: cfg.Outbox, publisher: cfg.Publisher, batchSize: batch}
}

// Reconcile re-publishes up to BatchSize outbox rows created at or after
// since (oldest first), returning
// the number it successfully re-published. It does not mark rows as
// published — the relay's own poll loop owns that bookkeeping; reconcile is
// a belt-and-braces republish, not a replacement for the relay.
func (r *Reconciler) Reconcile(ctx context.Context, since time.Time) (int, error) {
	msgs, err := r.outbox.GetSince(ctx, since, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("reconciler: list messages since %s: %w", since, err)
	}

	var republished int
	for _, msg := range msgs {
		var env events.Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			logger.Error("reconciler: failed to unmarshal outbox payload, skipping", "id", msg.ID, "err", err)
			continue
		}
		if err := r.publisher.Publish(ctx, msg.Topic, msg.PartitionKey, &env); err != nil {
			logger.Error("reconciler: failed to republish message", "id", msg.ID, "err", err)
			continue
		}
		republished++
	}

	logger.Info("reconciler: pass complete", "since", since, "scanned", len(msgs), "republished", republished)
	return republished, nil
}
