// Package projector implements the Projector (P): it consumes the ticket
// event topic, applies each event to the read store idempotently, and
// invalidates the cache, grounded on the reference saga step worker's
// consume/apply/ack poll-loop shape.
package projector

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/transitline/ticketing-core/internal/bus"
	"github.com/transitline/ticketing-core/internal/cache"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/events"
	"github.com/transitline/ticketing-core/internal/obsv"
	"github.com/transitline/ticketing-core/internal/store"
	"github.com/transitline/ticketing-core/pkg/logger"
	"github.com/transitline/ticketing-core/pkg/telemetry"
)

const defaultDLQThreshold = 5

// Config wires a Projector to its collaborators.
type Config struct {
	Consumer       bus.Consumer
	Read           store.ReadRepository
	Checkpoint     store.CheckpointRepository
	Cache          cache.Cache // best-effort; nil disables invalidation
	DLQPublisher   bus.Publisher
	DLQTopic       string
	DLQThreshold   int // consecutive failures before diverting to the DLQ
	ProjectionName string
}

// Projector applies events from the bus to the read store (§4.3).
type Projector struct {
	consumer       bus.Consumer
	read           store.ReadRepository
	checkpoint     store.CheckpointRepository
	cache          cache.Cache
	dlqPublisher   bus.Publisher
	dlqTopic       string
	dlqThreshold   int
	projectionName string

	mu            sync.Mutex
	failureCounts map[string]int
	firstFailedAt map[string]time.Time
}

// New builds a Projector from cfg.
func New(cfg Config) *Projector {
	threshold := cfg.DLQThreshold
	if threshold <= 0 {
		threshold = defaultDLQThreshold
	}
	name := cfg.ProjectionName
	if name == "" {
		name = "ticket_view"
	}
	return &Projector{
		consumer:       cfg.Consumer,
		read:           cfg.Read,
		checkpoint:     cfg.Checkpoint,
		cache:          cfg.Cache,
		dlqPublisher:   cfg.DLQPublisher,
		dlqTopic:       cfg.DLQTopic,
		dlqThreshold:   threshold,
		projectionName: name,
		failureCounts:  make(map[string]int),
		firstFailedAt:  make(map[string]time.Time),
	}
}

// Run blocks, consuming until ctx is cancelled or the consumer returns.
func (p *Projector) Run(ctx context.Context) error {
	return p.consumer.Run(ctx, p.handle)
}

// Close releases the underlying consumer.
func (p *Projector) Close() error {
	return p.consumer.Close()
}

// handle is the per-message entrypoint (§4.3 steps 1-5). Returning an error
// leaves the message unacknowledged so the broker redelivers it.
func (p *Projector) handle(ctx context.Context, msg bus.Message) error {
	ctx, span := telemetry.StartSpan(ctx, "projector.handle")
	defer span.End()

	var env events.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		logger.Warn("projector: failed to parse envelope, skipping", "topic", msg.Topic, "err", err)
		return nil
	}

	if err := p.apply(ctx, &env); err != nil {
		return p.onFailure(ctx, msg, &env, err)
	}

	p.clearFailure(env.EventID)
	lag := time.Since(env.Timestamp).Seconds()
	obsv.RecordProjectorApplied(ctx, string(env.EventType), lag)
	return nil
}

// apply implements §4.3 steps 2-4: mutate the read store, advance the
// checkpoint, invalidate the cache.
func (p *Projector) apply(ctx context.Context, env *events.Envelope) error {
	seen, err := p.checkpoint.SeenEventID(ctx, p.projectionName, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		logger.Debug("projector: event already applied, skipping", "eventId", env.EventID)
		return nil
	}

	var userID, bookingID string
	switch env.EventType {
	case domain.EventTicketBooked, domain.EventTicketReserved:
		userID, bookingID, err = p.applyBookedOrReserved(ctx, env)
	case domain.EventTicketConfirmed:
		userID, bookingID, err = p.applyConfirmed(ctx, env)
	case domain.EventTicketCancelled:
		userID, bookingID, err = p.applyCancelled(ctx, env)
	case domain.EventTicketExpired:
		userID, bookingID, err = p.applyExpired(ctx, env)
	case domain.EventTicketRefunded:
		userID, bookingID, err = p.applyRefunded(ctx, env)
	default:
		logger.Warn("projector: unknown event type, ignoring", "eventType", env.EventType)
		return nil
	}
	if err != nil {
		return err
	}

	if err := p.checkpoint.SetCheckpoint(ctx, p.projectionName, env.EventID); err != nil {
		return err
	}

	p.invalidate(ctx, bookingID, userID)
	return nil
}

func (p *Projector) applyBookedOrReserved(ctx context.Context, env *events.Envelope) (userID, bookingID string, err error) {
	var payload events.ReservedPayload
	if err := env.Decode(&payload); err != nil {
		return "", "", err
	}

	status := domain.StatusPending
	if env.EventType == domain.EventTicketReserved {
		status = domain.StatusReserved
	}

	t := &domain.TicketView{
		ID:             payload.BookingID,
		UserID:         payload.UserID,
		RouteID:        payload.RouteID,
		ScheduleID:     payload.ScheduleID,
		SeatNumber:     payload.SeatNumber,
		PassengerName:  payload.PassengerName,
		PassengerEmail: payload.PassengerEmail,
		Price:          payload.Price,
		Currency:       payload.Currency,
		Status:         status,
		CreatedAt:      env.Timestamp,
		UpdatedAt:      env.Timestamp,
	}

	if err := p.read.UpsertTicketOnBookedOrReserved(ctx, t); err != nil {
		return "", "", err
	}
	if err := p.read.AdjustBookedSeats(ctx, payload.ScheduleID, 1); err != nil {
		return "", "", err
	}
	return payload.UserID, payload.BookingID, nil
}

func (p *Projector) applyConfirmed(ctx context.Context, env *events.Envelope) (userID, bookingID string, err error) {
	var payload events.ConfirmedPayload
	if err := env.Decode(&payload); err != nil {
		return "", "", err
	}
	if err := p.read.SetStatus(ctx, payload.BookingID, domain.StatusConfirmed); err != nil {
		return "", "", err
	}
	return payload.UserID, payload.BookingID, nil
}

func (p *Projector) applyCancelled(ctx context.Context, env *events.Envelope) (userID, bookingID string, err error) {
	var payload events.CancelledPayload
	if err := env.Decode(&payload); err != nil {
		return "", "", err
	}
	if err := p.read.SetStatus(ctx, payload.BookingID, domain.StatusCancelled); err != nil {
		return "", "", err
	}
	if err := p.adjustSeatsForBooking(ctx, payload.BookingID, -1); err != nil {
		return "", "", err
	}
	return payload.UserID, payload.BookingID, nil
}

func (p *Projector) applyExpired(ctx context.Context, env *events.Envelope) (userID, bookingID string, err error) {
	var payload events.ExpiredPayload
	if err := env.Decode(&payload); err != nil {
		return "", "", err
	}
	if err := p.read.SetStatus(ctx, payload.BookingID, domain.StatusExpired); err != nil {
		return "", "", err
	}
	if err := p.adjustSeatsForBooking(ctx, payload.BookingID, -1); err != nil {
		return "", "", err
	}
	return payload.UserID, payload.BookingID, nil
}

func (p *Projector) applyRefunded(ctx context.Context, env *events.Envelope) (userID, bookingID string, err error) {
	var payload events.RefundedPayload
	if err := env.Decode(&payload); err != nil {
		return "", "", err
	}
	if err := p.read.SetStatus(ctx, payload.BookingID, domain.StatusRefunded); err != nil {
		return "", "", err
	}
	return payload.UserID, payload.BookingID, nil
}

// adjustSeatsForBooking looks up the ticket's scheduleId before adjusting
// the counter, since Cancelled/Expired payloads don't carry it directly.
func (p *Projector) adjustSeatsForBooking(ctx context.Context, bookingID string, delta int) error {
	t, err := p.read.GetTicket(ctx, bookingID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	}
	return p.read.AdjustBookedSeats(ctx, t.ScheduleID, delta)
}

// invalidate implements §4.3 step 4. Cache errors are logged only — the
// cache is best-effort (§5).
func (p *Projector) invalidate(ctx context.Context, bookingID, userID string) {
	if p.cache == nil {
		return
	}
	if bookingID != "" {
		if err := p.cache.Delete(ctx, cache.TicketKey(bookingID)); err != nil {
			logger.Warn("projector: cache invalidation failed", "bookingId", bookingID, "err", err)
		}
	}
	if userID != "" {
		if err := p.cache.DeleteByPrefix(ctx, cache.TicketListPrefix(userID)); err != nil {
			logger.Warn("projector: list cache invalidation failed", "userId", userID, "err", err)
		}
	}
}

// onFailure tracks consecutive failures per eventId and diverts to the DLQ
// after dlqThreshold, per §12. The message is always left unacknowledged.
func (p *Projector) onFailure(ctx context.Context, msg bus.Message, env *events.Envelope, applyErr error) error {
	p.mu.Lock()
	p.failureCounts[env.EventID]++
	count := p.failureCounts[env.EventID]
	first, ok := p.firstFailedAt[env.EventID]
	if !ok {
		first = time.Now()
		p.firstFailedAt[env.EventID] = first
	}
	p.mu.Unlock()

	logger.Error("projector: failed to apply event", "eventId", env.EventID, "eventType", env.EventType, "attempt", count, "err", applyErr)

	if count >= p.dlqThreshold {
		obsv.RecordDeadLettered(ctx, string(env.EventType))
		if err := p.publishDeadLetter(ctx, msg.Topic, string(msg.Key), msg.Value, applyErr, count, first); err != nil {
			logger.Error("projector: failed to publish dead letter", "eventId", env.EventID, "err", err)
		}
	}

	return applyErr
}

func (p *Projector) clearFailure(eventID string) {
	p.mu.Lock()
	delete(p.failureCounts, eventID)
	delete(p.firstFailedAt, eventID)
	p.mu.Unlock()
}
