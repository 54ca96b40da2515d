package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/events"
	"github.com/transitline/ticketing-core/internal/store"
)

type fakeOutboxRepository struct {
	since []*domain.OutboxMessage
}

func (f *fakeOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	return nil, nil
}
func (f *fakeOutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	return nil, nil
}
func (f *fakeOutboxRepository) MarkAsPublished(ctx context.Context, id string) error { return nil }
func (f *fakeOutboxRepository) MarkAsFailed(ctx context.Context, id, errMsg string) error {
	return nil
}
func (f *fakeOutboxRepository) DeletePublished(ctx context.Context, olderThanDays int) (int64, error) {
	return 0, nil
}
func (f *fakeOutboxRepository) GetSince(ctx context.Context, since time.Time, limit int) ([]*domain.OutboxMessage, error) {
	return f.since, nil
}

var _ store.OutboxRepository = (*fakeOutboxRepository)(nil)

type fakePublisher struct {
	published []string
	failKey   string
}

func (f *fakePublisher) Publish(ctx context.Context, topic, key string, env *events.Envelope) error {
	if f.failKey != "" && key == f.failKey {
		return errors.New("publish failed")
	}
	f.published = append(f.published, key)
	return nil
}
func (f *fakePublisher) PublishRaw(ctx context.Context, topic, key string, value []byte) error {
	return nil
}
func (f *fakePublisher) Close() error { return nil }

func outboxRow(t *testing.T, id, key string) *domain.OutboxMessage {
	t.Helper()
	env, err := events.New("evt-"+id, domain.EventTicketBooked, key, 1, "", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &domain.OutboxMessage{ID: id, Topic: "ticket-events", PartitionKey: key, Payload: payload}
}

func TestReconciler_RepublishesAllMessagesSinceCheckpoint(t *testing.T) {
	repo := &fakeOutboxRepository{since: []*domain.OutboxMessage{
		outboxRow(t, "1", "booking-1"),
		outboxRow(t, "2", "booking-2"),
	}}
	pub := &fakePublisher{}
	r := New(Config{Outbox: repo, Publisher: pub})

	n, err := r.Reconcile(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 republished, got %d", n)
	}
}

func TestReconciler_SkipsFailedPublishesWithoutAborting(t *testing.T) {
	repo := &fakeOutboxRepository{since: []*domain.OutboxMessage{
		outboxRow(t, "1", "booking-1"),
		outboxRow(t, "2", "booking-2"),
	}}
	pub := &fakePublisher{failKey: "booking-1"}
	r := New(Config{Outbox: repo, Publisher: pub})

	n, err := r.Reconcile(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 republished after skipping the failed one, got %d", n)
	}
}

func TestReconciler_ReturnsZeroWhenNothingToReplay(t *testing.T) {
	repo := &fakeOutboxRepository{}
	pub := &fakePublisher{}
	r := New(Config{Outbox: repo, Publisher: pub})

	n, err := r.Reconcile(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 republished, got %d", n)
	}
}
