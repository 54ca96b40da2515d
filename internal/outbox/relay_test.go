package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/events"
	"github.com/transitline/ticketing-core/internal/store"
)

type fakeOutboxRepository struct {
	mu        sync.Mutex
	pending   []*domain.OutboxMessage
	failed    []*domain.OutboxMessage
	published map[string]bool
	markedBad map[string]string
	deleted   int64
}

func newFakeOutboxRepository() *fakeOutboxRepository {
	return &fakeOutboxRepository{published: map[string]bool{}, markedBad: map[string]string{}}
}

func (f *fakeOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeOutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed, nil
}

func (f *fakeOutboxRepository) MarkAsPublished(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[id] = true
	return nil
}

func (f *fakeOutboxRepository) MarkAsFailed(ctx context.Context, id, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedBad[id] = errMsg
	return nil
}

func (f *fakeOutboxRepository) DeletePublished(ctx context.Context, olderThanDays int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted, nil
}

func (f *fakeOutboxRepository) GetSince(ctx context.Context, since time.Time, limit int) ([]*domain.OutboxMessage, error) {
	return nil, nil
}

var _ store.OutboxRepository = (*fakeOutboxRepository)(nil)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	failTopic string
}

func (f *fakePublisher) Publish(ctx context.Context, topic, key string, env *events.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTopic != "" && topic == f.failTopic {
		return errors.New("publish failed")
	}
	f.published = append(f.published, topic+"/"+key)
	return nil
}

func (f *fakePublisher) PublishRaw(ctx context.Context, topic, key string, value []byte) error {
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func outboxMessage(t *testing.T, id, topic, key string) *domain.OutboxMessage {
	t.Helper()
	env, err := events.New("evt-"+id, domain.EventTicketBooked, key, 1, "", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &domain.OutboxMessage{
		ID: id, Topic: topic, PartitionKey: key, Payload: payload,
		Status: domain.OutboxPending, RetryCount: 0, MaxRetries: 5,
	}
}

func TestRelay_PublishesPendingMessagesAndMarksThemPublished(t *testing.T) {
	repo := newFakeOutboxRepository()
	repo.pending = []*domain.OutboxMessage{outboxMessage(t, "msg-1", "ticket-events", "booking-1")}
	pub := &fakePublisher{}
	r := New(Config{Outbox: repo, Publisher: pub})

	r.processPendingMessages(context.Background())

	if !repo.published["msg-1"] {
		t.Fatalf("expected msg-1 to be marked published")
	}
	if len(pub.published) != 1 || pub.published[0] != "ticket-events/booking-1" {
		t.Fatalf("expected message to be published to ticket-events/booking-1, got %v", pub.published)
	}
}

func TestRelay_MarksFailedOnPublishError(t *testing.T) {
	repo := newFakeOutboxRepository()
	repo.pending = []*domain.OutboxMessage{outboxMessage(t, "msg-1", "ticket-events", "booking-1")}
	pub := &fakePublisher{failTopic: "ticket-events"}
	r := New(Config{Outbox: repo, Publisher: pub})

	r.processPendingMessages(context.Background())

	if repo.published["msg-1"] {
		t.Fatalf("did not expect msg-1 to be marked published")
	}
	if _, ok := repo.markedBad["msg-1"]; !ok {
		t.Fatalf("expected msg-1 to be marked failed")
	}
}

func TestRelay_RetriesOnlyMessagesWithRetryBudget(t *testing.T) {
	repo := newFakeOutboxRepository()
	exhausted := outboxMessage(t, "msg-1", "ticket-events", "booking-1")
	exhausted.Status = domain.OutboxFailed
	exhausted.RetryCount = 5
	exhausted.MaxRetries = 5
	retryable := outboxMessage(t, "msg-2", "ticket-events", "booking-2")
	retryable.Status = domain.OutboxFailed
	retryable.RetryCount = 1
	retryable.MaxRetries = 5
	repo.failed = []*domain.OutboxMessage{exhausted, retryable}
	pub := &fakePublisher{}
	r := New(Config{Outbox: repo, Publisher: pub})

	r.processFailedMessages(context.Background())

	if repo.published["msg-1"] {
		t.Fatalf("did not expect exhausted message to be republished")
	}
	if !repo.published["msg-2"] {
		t.Fatalf("expected retryable message to be published")
	}
}

func TestRelay_StartStopIsIdempotentAndClean(t *testing.T) {
	repo := newFakeOutboxRepository()
	pub := &fakePublisher{}
	r := New(Config{Outbox: repo, Publisher: pub, PollInterval: time.Hour, RetryInterval: time.Hour, CleanupInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected error starting relay: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Fatalf("expected second Start to fail while already running")
	}
	r.Stop()
}
