package command

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/transitline/ticketing-core/internal/bus"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/events"
	"github.com/transitline/ticketing-core/internal/obsv"
	"github.com/transitline/ticketing-core/internal/store"
	"github.com/transitline/ticketing-core/pkg/logger"
	"github.com/transitline/ticketing-core/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PublishMode selects how a committed event reaches the bus.
type PublishMode string

const (
	// PublishInline publishes synchronously right after commit — the
	// "commit wins, publish best-effort" baseline of §4.1.5/§9. A publish
	// failure here is logged, never rolled back, and never surfaced to
	// the caller.
	PublishInline PublishMode = "inline"

	// PublishOutbox relies entirely on the outbox relay (§9 "transactional
	// outbox"); the command core never touches the bus directly.
	PublishOutbox PublishMode = "outbox"
)

// Service implements the four command-core operations (§4.1).
type Service struct {
	write       store.WriteRepository
	publisher   bus.Publisher
	topic       string
	publishMode PublishMode
}

// Config configures a Service.
type Config struct {
	Write       store.WriteRepository
	Publisher   bus.Publisher // unused when PublishMode is outbox; may be nil
	Topic       string
	PublishMode PublishMode
}

// New builds a command-core Service.
func New(cfg Config) *Service {
	mode := cfg.PublishMode
	if mode == "" {
		mode = PublishOutbox
	}
	return &Service{
		write:       cfg.Write,
		publisher:   cfg.Publisher,
		topic:       cfg.Topic,
		publishMode: mode,
	}
}

// Book implements §4.1.1.
func (s *Service) Book(ctx context.Context, req BookRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "command.book")
	defer span.End()
	obsv.RecordCommand(ctx, "book")

	if existing, ok := s.shortCircuitIdempotent(ctx, req.IdempotencyKey); ok {
		return existing, nil
	}

	if err := validateBookRequest(req); err != nil {
		return s.fail(ctx, span, "book", err)
	}

	p := store.BookParams{
		BookingID:      uuid.New().String(),
		UserID:         req.UserID,
		RouteID:        req.RouteID,
		ScheduleID:     req.ScheduleID,
		SeatNumber:     req.SeatNumber,
		PassengerName:  req.PassengerName,
		PassengerEmail: req.PassengerEmail,
		PassengerPhone: req.PassengerPhone,
		Price:          req.Price,
		Currency:       normalizeCurrency(req.Currency),
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
		EventID:        uuid.New().String(),
	}

	b, err := s.write.Book(ctx, p)
	if err != nil {
		return s.fail(ctx, span, "book", err)
	}

	s.publishInline(ctx, b, domain.EventTicketBooked, p.EventID, events.BookedPayload{
		BookingID: b.ID, UserID: b.UserID, RouteID: b.RouteID, ScheduleID: b.ScheduleID,
		SeatNumber: b.SeatNumber, PassengerName: b.PassengerName, PassengerEmail: b.PassengerEmail,
		Price: b.Price, Currency: b.Currency,
	}, req.CorrelationID)

	return b, nil
}

// Reserve implements §4.1.2.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "command.reserve")
	defer span.End()
	obsv.RecordCommand(ctx, "reserve")

	if existing, ok := s.shortCircuitIdempotent(ctx, req.IdempotencyKey); ok {
		return existing, nil
	}

	if err := validateBookRequest(req.BookRequest); err != nil {
		return s.fail(ctx, span, "reserve", err)
	}
	minutes, err := normalizeReservationMinutes(req.ReservationDurationMinutes)
	if err != nil {
		return s.fail(ctx, span, "reserve", err)
	}

	p := store.ReserveParams{
		BookParams: store.BookParams{
			BookingID:      uuid.New().String(),
			UserID:         req.UserID,
			RouteID:        req.RouteID,
			ScheduleID:     req.ScheduleID,
			SeatNumber:     req.SeatNumber,
			PassengerName:  req.PassengerName,
			PassengerEmail: req.PassengerEmail,
			PassengerPhone: req.PassengerPhone,
			Price:          req.Price,
			Currency:       normalizeCurrency(req.Currency),
			IdempotencyKey: req.IdempotencyKey,
			CorrelationID:  req.CorrelationID,
			EventID:        uuid.New().String(),
		},
		ReservationMinutes: minutes,
	}

	b, err := s.write.Reserve(ctx, p)
	if err != nil {
		return s.fail(ctx, span, "reserve", err)
	}
	obsv.ActiveReservations.Inc(ctx)

	s.publishInline(ctx, b, domain.EventTicketReserved, p.EventID, events.ReservedPayload{
		BookedPayload: events.BookedPayload{
			BookingID: b.ID, UserID: b.UserID, RouteID: b.RouteID, ScheduleID: b.ScheduleID,
			SeatNumber: b.SeatNumber, PassengerName: b.PassengerName, PassengerEmail: b.PassengerEmail,
			Price: b.Price, Currency: b.Currency,
		},
		ExpiresAt: *b.ExpiresAt,
	}, req.CorrelationID)

	return b, nil
}

// Confirm implements §4.1.3.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "command.confirm")
	defer span.End()
	obsv.RecordCommand(ctx, "confirm")

	if req.BookingID == "" || req.PaymentID == "" {
		return s.fail(ctx, span, "confirm", domain.NewBadRequest("bookingId and paymentId are required"))
	}

	eventID := uuid.New().String()
	b, err := s.write.Confirm(ctx, req.BookingID, req.PaymentID, req.CorrelationID, eventID)
	if err != nil {
		return s.fail(ctx, span, "confirm", err)
	}
	if b.ReservedAt != nil {
		obsv.ActiveReservations.Dec(ctx)
	}

	s.publishInline(ctx, b, domain.EventTicketConfirmed, eventID, events.ConfirmedPayload{
		BookingID: b.ID, UserID: b.UserID, PaymentID: b.PaymentID, ConfirmedAt: *b.ConfirmedAt,
	}, req.CorrelationID)

	return b, nil
}

// Cancel implements §4.1.4.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "command.cancel")
	defer span.End()
	obsv.RecordCommand(ctx, "cancel")

	if req.BookingID == "" {
		return s.fail(ctx, span, "cancel", domain.NewBadRequest("bookingId is required"))
	}

	eventID := uuid.New().String()
	b, err := s.write.Cancel(ctx, req.BookingID, req.UserID, req.Reason, req.CorrelationID, eventID)
	if err != nil {
		return s.fail(ctx, span, "cancel", err)
	}
	if b.ReservedAt != nil && b.ConfirmedAt == nil {
		obsv.ActiveReservations.Dec(ctx)
	}

	var refundAmount *int64
	if b.PaymentID != "" {
		amt := b.Price
		refundAmount = &amt
	}
	s.publishInline(ctx, b, domain.EventTicketCancelled, eventID, events.CancelledPayload{
		BookingID: b.ID, UserID: b.UserID, Reason: req.Reason, CancelledAt: *b.CancelledAt, RefundAmount: refundAmount,
	}, req.CorrelationID)

	return b, nil
}

// shortCircuitIdempotent implements §12's idempotency-key support: a repeat
// Book/Reserve with a previously-seen key returns the existing booking
// instead of attempting another insert.
func (s *Service) shortCircuitIdempotent(ctx context.Context, key string) (*domain.Booking, bool) {
	if key == "" {
		return nil, false
	}
	existing, err := s.write.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, false
	}
	return existing, true
}

// publishInline performs the dual-write publish step when running in
// inline mode. Failure is logged only — per §4.1.5 "publish failure is
// logged and does not roll back the commit" — the outbox row inserted in
// the same transaction still backstops delivery via the relay/reconciler
// regardless of mode.
func (s *Service) publishInline(ctx context.Context, b *domain.Booking, eventType domain.BookingEventType, eventID string, payload any, correlationID string) {
	if s.publishMode != PublishInline || s.publisher == nil {
		return
	}
	env, err := events.New(eventID, eventType, b.ID, b.Version, correlationID, payload)
	if err != nil {
		logger.Warn("command: failed to build envelope for inline publish", "bookingId", b.ID, "err", err)
		return
	}
	if err := s.publisher.Publish(ctx, s.topic, b.ID, env); err != nil {
		logger.Warn("command: inline publish failed, read model will lag until the reconciler catches up",
			"bookingId", b.ID, "eventType", eventType, "err", err)
	}
}

func (s *Service) fail(ctx context.Context, span trace.Span, command string, err error) (*domain.Booking, error) {
	var ae *domain.AppError
	kind := "INTERNAL"
	if errors.As(err, &ae) {
		kind = string(ae.Kind)
	}
	_ = span
	obsv.RecordCommandFailure(ctx, command, kind)
	telemetry.SetSpanAttributes(ctx, attribute.String("error_kind", kind))
	telemetry.SetSpanError(ctx, err)
	return nil, err
}
