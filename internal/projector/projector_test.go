package projector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/transitline/ticketing-core/internal/bus"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/events"
	"github.com/transitline/ticketing-core/internal/store"
)

type fakeReadRepository struct {
	tickets         map[string]*domain.TicketView
	bookedSeatDelta map[string]int
	upsertErr       error
}

func newFakeReadRepository() *fakeReadRepository {
	return &fakeReadRepository{tickets: map[string]*domain.TicketView{}, bookedSeatDelta: map[string]int{}}
}

func (f *fakeReadRepository) UpsertTicketOnBookedOrReserved(ctx context.Context, t *domain.TicketView) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.tickets[t.ID]; ok && existing.Status.Terminal() {
		return nil
	}
	f.tickets[t.ID] = t
	return nil
}

func (f *fakeReadRepository) SetStatus(ctx context.Context, bookingID string, status domain.BookingStatus) error {
	t, ok := f.tickets[bookingID]
	if !ok {
		return domain.ErrBookingNotFound
	}
	t.Status = status
	return nil
}

func (f *fakeReadRepository) GetTicket(ctx context.Context, bookingID string) (*domain.TicketView, error) {
	t, ok := f.tickets[bookingID]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return t, nil
}

func (f *fakeReadRepository) ListUserTickets(ctx context.Context, userID, status string, page, limit int) ([]*domain.TicketView, int, error) {
	return nil, 0, nil
}

func (f *fakeReadRepository) AdjustBookedSeats(ctx context.Context, scheduleID string, delta int) error {
	f.bookedSeatDelta[scheduleID] += delta
	return nil
}

func (f *fakeReadRepository) GetScheduleAvailability(ctx context.Context, scheduleID string) (*domain.ScheduleAvailability, error) {
	return nil, nil
}

var _ store.ReadRepository = (*fakeReadRepository)(nil)

type fakeCheckpointRepository struct {
	seen map[string]bool
	last string
}

func newFakeCheckpointRepository() *fakeCheckpointRepository {
	return &fakeCheckpointRepository{seen: map[string]bool{}}
}

func (f *fakeCheckpointRepository) GetCheckpoint(ctx context.Context, projectionName string) (*domain.ProjectorCheckpoint, error) {
	return &domain.ProjectorCheckpoint{ProjectionName: projectionName, LastProcessedEventID: f.last}, nil
}

func (f *fakeCheckpointRepository) SetCheckpoint(ctx context.Context, projectionName, lastProcessedEventID string) error {
	f.last = lastProcessedEventID
	f.seen[lastProcessedEventID] = true
	return nil
}

func (f *fakeCheckpointRepository) SeenEventID(ctx context.Context, projectionName, eventID string) (bool, error) {
	return f.seen[eventID], nil
}

var _ store.CheckpointRepository = (*fakeCheckpointRepository)(nil)

func bookedEnvelope(t *testing.T, eventID, bookingID, userID, scheduleID string) []byte {
	t.Helper()
	payload := events.BookedPayload{
		BookingID: bookingID, UserID: userID, RouteID: "route-1", ScheduleID: scheduleID,
		PassengerName: "Jane", PassengerEmail: "jane@example.com", Price: 1000, Currency: "USD",
	}
	env, err := events.New(eventID, domain.EventTicketBooked, bookingID, 1, "", payload)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestProjector_AppliesBookedAndUpdatesSeatCount(t *testing.T) {
	read := newFakeReadRepository()
	checkpoint := newFakeCheckpointRepository()
	p := New(Config{Read: read, Checkpoint: checkpoint})

	raw := bookedEnvelope(t, "evt-1", "booking-1", "user-1", "sched-1")
	if err := p.handle(context.Background(), bus.Message{Topic: "ticket-events", Key: []byte("booking-1"), Value: raw}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ticket, ok := read.tickets["booking-1"]
	if !ok {
		t.Fatalf("expected ticket to be upserted")
	}
	if ticket.Status != domain.StatusPending {
		t.Fatalf("expected PENDING status, got %s", ticket.Status)
	}
	if read.bookedSeatDelta["sched-1"] != 1 {
		t.Fatalf("expected booked seat delta +1, got %d", read.bookedSeatDelta["sched-1"])
	}
	if !checkpoint.seen["evt-1"] {
		t.Fatalf("expected checkpoint to record evt-1")
	}
}

func TestProjector_SkipsAlreadySeenEvent(t *testing.T) {
	read := newFakeReadRepository()
	checkpoint := newFakeCheckpointRepository()
	checkpoint.seen["evt-1"] = true
	p := New(Config{Read: read, Checkpoint: checkpoint})

	raw := bookedEnvelope(t, "evt-1", "booking-1", "user-1", "sched-1")
	if err := p.handle(context.Background(), bus.Message{Value: raw}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := read.tickets["booking-1"]; ok {
		t.Fatalf("expected replayed event to be skipped, not reapplied")
	}
}

func TestProjector_UnknownEventTypeIsIgnored(t *testing.T) {
	read := newFakeReadRepository()
	checkpoint := newFakeCheckpointRepository()
	p := New(Config{Read: read, Checkpoint: checkpoint})

	env, _ := events.New("evt-x", domain.BookingEventType("TICKET_TELEPORTED"), "booking-1", 1, "", map[string]string{})
	raw, _ := json.Marshal(env)

	if err := p.handle(context.Background(), bus.Message{Value: raw}); err != nil {
		t.Fatalf("unexpected error for unknown event type: %v", err)
	}
}

type fakeDLQPublisher struct {
	published []string
}

func (f *fakeDLQPublisher) Publish(ctx context.Context, topic, key string, env *events.Envelope) error {
	return nil
}

func (f *fakeDLQPublisher) PublishRaw(ctx context.Context, topic, key string, value []byte) error {
	f.published = append(f.published, key)
	return nil
}

func (f *fakeDLQPublisher) Close() error { return nil }

func TestProjector_DivertsToDeadLetterAfterThreshold(t *testing.T) {
	read := newFakeReadRepository()
	read.upsertErr = errors.New("boom")
	checkpoint := newFakeCheckpointRepository()
	dlq := &fakeDLQPublisher{}
	p := New(Config{Read: read, Checkpoint: checkpoint, DLQPublisher: dlq, DLQTopic: "ticket-events.dlq", DLQThreshold: 2})

	raw := bookedEnvelope(t, "evt-1", "booking-1", "user-1", "sched-1")
	msg := bus.Message{Topic: "ticket-events", Key: []byte("booking-1"), Value: raw}

	if err := p.handle(context.Background(), msg); err == nil {
		t.Fatalf("expected first failure to return an error")
	}
	if len(dlq.published) != 0 {
		t.Fatalf("expected no dead-letter before threshold, got %d", len(dlq.published))
	}

	if err := p.handle(context.Background(), msg); err == nil {
		t.Fatalf("expected second failure to return an error")
	}
	if len(dlq.published) != 1 {
		t.Fatalf("expected dead-letter publish at threshold, got %d", len(dlq.published))
	}
}
