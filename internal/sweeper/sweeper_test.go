package sweeper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/store"
)

type fakeWriteRepository struct {
	store.WriteRepository // embed to satisfy the interface; only the methods below are exercised

	expired       []*domain.Booking
	expireCalls   int32
	expireErr     error
}

func (f *fakeWriteRepository) GetExpiredReservations(ctx context.Context, limit int) ([]*domain.Booking, error) {
	return f.expired, nil
}

func (f *fakeWriteRepository) ExpireReservation(ctx context.Context, bookingID, correlationID, eventID string) (*domain.Booking, error) {
	atomic.AddInt32(&f.expireCalls, 1)
	if f.expireErr != nil {
		return nil, f.expireErr
	}
	return &domain.Booking{ID: bookingID, Status: domain.StatusExpired}, nil
}

func TestSweeper_ExpiresAllFoundReservations(t *testing.T) {
	repo := &fakeWriteRepository{expired: []*domain.Booking{
		{ID: "b-1", Status: domain.StatusReserved},
		{ID: "b-2", Status: domain.StatusReserved},
	}}
	s := New(Config{Write: repo, ScanInterval: time.Hour})

	s.tick(context.Background())

	if repo.expireCalls != 2 {
		t.Fatalf("expected 2 expire calls, got %d", repo.expireCalls)
	}
}

func TestSweeper_LostRaceIsNotAnError(t *testing.T) {
	repo := &fakeWriteRepository{
		expired:   []*domain.Booking{{ID: "b-1", Status: domain.StatusReserved}},
		expireErr: domain.NewInvalidState(domain.StatusConfirmed, "booking is no longer reserved"),
	}
	s := New(Config{Write: repo, ScanInterval: time.Hour})

	// tick must not panic and must treat the invalid-state race as benign.
	s.tick(context.Background())

	if repo.expireCalls != 1 {
		t.Fatalf("expected the sweeper to attempt the expire call once, got %d", repo.expireCalls)
	}
}

func TestSweeper_StartStopIsIdempotentAndClean(t *testing.T) {
	repo := &fakeWriteRepository{}
	s := New(Config{Write: repo, ScanInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("unexpected error starting sweeper: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Fatalf("expected second Start to fail while already running")
	}
	s.Stop()
}
