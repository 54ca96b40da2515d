package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/store"
)

// fakeWriteRepository is an in-memory stand-in for store.WriteRepository.
type fakeWriteRepository struct {
	BookFunc                   func(ctx context.Context, p store.BookParams) (*domain.Booking, error)
	ReserveFunc                func(ctx context.Context, p store.ReserveParams) (*domain.Booking, error)
	ConfirmFunc                func(ctx context.Context, bookingID, paymentID, correlationID, eventID string) (*domain.Booking, error)
	CancelFunc                 func(ctx context.Context, bookingID, userID, reason, correlationID, eventID string) (*domain.Booking, error)
	ExpireReservationFunc      func(ctx context.Context, bookingID, correlationID, eventID string) (*domain.Booking, error)
	GetBookingFunc             func(ctx context.Context, bookingID string) (*domain.Booking, error)
	FindByIdempotencyKeyFunc   func(ctx context.Context, key string) (*domain.Booking, error)
	GetExpiredReservationsFunc func(ctx context.Context, limit int) ([]*domain.Booking, error)
}

func (f *fakeWriteRepository) Book(ctx context.Context, p store.BookParams) (*domain.Booking, error) {
	if f.BookFunc != nil {
		return f.BookFunc(ctx, p)
	}
	return &domain.Booking{ID: p.BookingID, Status: domain.StatusPending}, nil
}

func (f *fakeWriteRepository) Reserve(ctx context.Context, p store.ReserveParams) (*domain.Booking, error) {
	if f.ReserveFunc != nil {
		return f.ReserveFunc(ctx, p)
	}
	exp := time.Now().Add(time.Duration(p.ReservationMinutes) * time.Minute)
	return &domain.Booking{ID: p.BookingID, Status: domain.StatusReserved, ExpiresAt: &exp}, nil
}

func (f *fakeWriteRepository) Confirm(ctx context.Context, bookingID, paymentID, correlationID, eventID string) (*domain.Booking, error) {
	if f.ConfirmFunc != nil {
		return f.ConfirmFunc(ctx, bookingID, paymentID, correlationID, eventID)
	}
	now := time.Now()
	return &domain.Booking{ID: bookingID, Status: domain.StatusConfirmed, PaymentID: paymentID, ConfirmedAt: &now}, nil
}

func (f *fakeWriteRepository) Cancel(ctx context.Context, bookingID, userID, reason, correlationID, eventID string) (*domain.Booking, error) {
	if f.CancelFunc != nil {
		return f.CancelFunc(ctx, bookingID, userID, reason, correlationID, eventID)
	}
	now := time.Now()
	return &domain.Booking{ID: bookingID, Status: domain.StatusCancelled, CancelledAt: &now}, nil
}

func (f *fakeWriteRepository) ExpireReservation(ctx context.Context, bookingID, correlationID, eventID string) (*domain.Booking, error) {
	if f.ExpireReservationFunc != nil {
		return f.ExpireReservationFunc(ctx, bookingID, correlationID, eventID)
	}
	return nil, domain.ErrBookingNotFound
}

func (f *fakeWriteRepository) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if f.GetBookingFunc != nil {
		return f.GetBookingFunc(ctx, bookingID)
	}
	return nil, domain.ErrBookingNotFound
}

func (f *fakeWriteRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	if f.FindByIdempotencyKeyFunc != nil {
		return f.FindByIdempotencyKeyFunc(ctx, key)
	}
	return nil, domain.ErrBookingNotFound
}

func (f *fakeWriteRepository) GetExpiredReservations(ctx context.Context, limit int) ([]*domain.Booking, error) {
	if f.GetExpiredReservationsFunc != nil {
		return f.GetExpiredReservationsFunc(ctx, limit)
	}
	return nil, nil
}

var _ store.WriteRepository = (*fakeWriteRepository)(nil)

func validBookRequest() BookRequest {
	return BookRequest{
		UserID:         "user-1",
		RouteID:        "route-1",
		ScheduleID:     "sched-1",
		PassengerName:  "Jane Doe",
		PassengerEmail: "jane@example.com",
		Price:          2500,
	}
}

func TestService_Book_MissingFields(t *testing.T) {
	svc := New(Config{Write: &fakeWriteRepository{}})
	req := validBookRequest()
	req.UserID = ""

	_, err := svc.Book(context.Background(), req)
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestService_Book_NonPositivePrice(t *testing.T) {
	svc := New(Config{Write: &fakeWriteRepository{}})
	req := validBookRequest()
	req.Price = 0

	_, err := svc.Book(context.Background(), req)
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestService_Book_DefaultsCurrency(t *testing.T) {
	var seen store.BookParams
	repo := &fakeWriteRepository{
		BookFunc: func(ctx context.Context, p store.BookParams) (*domain.Booking, error) {
			seen = p
			return &domain.Booking{ID: p.BookingID, Status: domain.StatusPending, Currency: p.Currency}, nil
		},
	}
	svc := New(Config{Write: repo})

	if _, err := svc.Book(context.Background(), validBookRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.Currency != "USD" {
		t.Fatalf("expected default currency USD, got %q", seen.Currency)
	}
}

func TestService_Book_IdempotentReplay(t *testing.T) {
	existing := &domain.Booking{ID: "booking-existing", Status: domain.StatusPending}
	repo := &fakeWriteRepository{
		FindByIdempotencyKeyFunc: func(ctx context.Context, key string) (*domain.Booking, error) {
			if key == "replay-key" {
				return existing, nil
			}
			return nil, domain.ErrBookingNotFound
		},
		BookFunc: func(ctx context.Context, p store.BookParams) (*domain.Booking, error) {
			t.Fatal("Book should not be called on idempotent replay")
			return nil, nil
		},
	}
	svc := New(Config{Write: repo})

	req := validBookRequest()
	req.IdempotencyKey = "replay-key"

	b, err := svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != existing {
		t.Fatalf("expected the existing booking to be returned unchanged")
	}
}

func TestService_Reserve_DurationOutOfRange(t *testing.T) {
	svc := New(Config{Write: &fakeWriteRepository{}})
	req := ReserveRequest{BookRequest: validBookRequest(), ReservationDurationMinutes: 120}

	_, err := svc.Reserve(context.Background(), req)
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestService_Reserve_DefaultsDuration(t *testing.T) {
	var seen store.ReserveParams
	repo := &fakeWriteRepository{
		ReserveFunc: func(ctx context.Context, p store.ReserveParams) (*domain.Booking, error) {
			seen = p
			exp := time.Now().Add(time.Duration(p.ReservationMinutes) * time.Minute)
			return &domain.Booking{ID: p.BookingID, Status: domain.StatusReserved, ExpiresAt: &exp}, nil
		},
	}
	svc := New(Config{Write: repo})

	req := ReserveRequest{BookRequest: validBookRequest()}
	if _, err := svc.Reserve(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.ReservationMinutes != defaultReservationMinutes {
		t.Fatalf("expected default reservation minutes %d, got %d", defaultReservationMinutes, seen.ReservationMinutes)
	}
}

func TestService_Confirm_NotFound(t *testing.T) {
	repo := &fakeWriteRepository{
		ConfirmFunc: func(ctx context.Context, bookingID, paymentID, correlationID, eventID string) (*domain.Booking, error) {
			return nil, domain.ErrBookingNotFound
		},
	}
	svc := New(Config{Write: repo})

	_, err := svc.Confirm(context.Background(), ConfirmRequest{BookingID: "missing", PaymentID: "pay-1"})
	if !errors.Is(err, domain.ErrBookingNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestService_Confirm_MissingFields(t *testing.T) {
	svc := New(Config{Write: &fakeWriteRepository{}})
	_, err := svc.Confirm(context.Background(), ConfirmRequest{BookingID: "b-1"})
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestService_Cancel_Forbidden(t *testing.T) {
	repo := &fakeWriteRepository{
		CancelFunc: func(ctx context.Context, bookingID, userID, reason, correlationID, eventID string) (*domain.Booking, error) {
			return nil, domain.ErrForbidden
		},
	}
	svc := New(Config{Write: repo})

	_, err := svc.Cancel(context.Background(), CancelRequest{BookingID: "b-1", UserID: "not-the-owner"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestService_Cancel_InvalidState(t *testing.T) {
	repo := &fakeWriteRepository{
		CancelFunc: func(ctx context.Context, bookingID, userID, reason, correlationID, eventID string) (*domain.Booking, error) {
			return nil, domain.NewInvalidState(domain.StatusExpired, "booking already expired")
		},
	}
	svc := New(Config{Write: repo})

	_, err := svc.Cancel(context.Background(), CancelRequest{BookingID: "b-1"})
	if !errors.Is(err, domain.ErrInvalidBookingState) {
		t.Fatalf("expected InvalidBookingState, got %v", err)
	}
}
