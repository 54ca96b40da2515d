package query

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/transitline/ticketing-core/internal/cache"
	"github.com/transitline/ticketing-core/internal/domain"
)

type fakeReadRepository struct {
	tickets map[string]*domain.TicketView
	byUser  map[string][]*domain.TicketView
}

func (f *fakeReadRepository) UpsertTicketOnBookedOrReserved(ctx context.Context, t *domain.TicketView) error {
	return nil
}

func (f *fakeReadRepository) SetStatus(ctx context.Context, bookingID string, status domain.BookingStatus) error {
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
	all := f.byUser[userID]
	return all, len(all), nil
}

func (f *fakeReadRepository) AdjustBookedSeats(ctx context.Context, scheduleID string, delta int) error {
	return nil
}

func (f *fakeReadRepository) GetScheduleAvailability(ctx context.Context, scheduleID string) (*domain.ScheduleAvailability, error) {
	return nil, domain.ErrBookingNotFound
}

type fakeCache struct {
	data map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *fakeCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	for k := range c.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.data, k)
		}
	}
	return nil
}

var _ cache.Cache = (*fakeCache)(nil)

func TestGetTicket_Forbidden(t *testing.T) {
	repo := &fakeReadRepository{tickets: map[string]*domain.TicketView{
		"b-1": {ID: "b-1", UserID: "owner"},
	}}
	svc := New(repo, newFakeCache())

	_, err := svc.GetTicket(context.Background(), "b-1", "not-the-owner")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestGetTicket_NotFound(t *testing.T) {
	repo := &fakeReadRepository{tickets: map[string]*domain.TicketView{}}
	svc := New(repo, newFakeCache())

	_, err := svc.GetTicket(context.Background(), "missing", "user-1")
	if !errors.Is(err, domain.ErrBookingNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetTicket_CacheHitReauthorizes(t *testing.T) {
	c := newFakeCache()
	raw, _ := json.Marshal(&domain.TicketView{ID: "b-1", UserID: "owner"})
	c.data[cache.TicketKey("b-1")] = raw

	repo := &fakeReadRepository{tickets: map[string]*domain.TicketView{}}
	svc := New(repo, c)

	_, err := svc.GetTicket(context.Background(), "b-1", "attacker")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden on cache-hit re-auth, got %v", err)
	}

	ticket, err := svc.GetTicket(context.Background(), "b-1", "owner")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.ID != "b-1" {
		t.Fatalf("expected cached ticket to be returned")
	}
}

func TestListUserTickets_DefaultsPageAndLimit(t *testing.T) {
	repo := &fakeReadRepository{byUser: map[string][]*domain.TicketView{
		"user-1": {{ID: "b-1", UserID: "user-1"}},
	}}
	svc := New(repo, newFakeCache())

	page, err := svc.ListUserTickets(context.Background(), ListUserTicketsRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Page != defaultPage || page.Limit != defaultLimit {
		t.Fatalf("expected defaults, got page=%d limit=%d", page.Page, page.Limit)
	}
	if page.TotalPages != 1 {
		t.Fatalf("expected totalPages=1, got %d", page.TotalPages)
	}
}

func TestListUserTickets_MissingUserID(t *testing.T) {
	svc := New(&fakeReadRepository{}, newFakeCache())

	_, err := svc.ListUserTickets(context.Background(), ListUserTicketsRequest{})
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestListUserTickets_InvalidPageRejected(t *testing.T) {
	svc := New(&fakeReadRepository{}, newFakeCache())

	for _, page := range []int{0, -1} {
		page := page
		_, err := svc.ListUserTickets(context.Background(), ListUserTicketsRequest{UserID: "user-1", Page: &page})
		if !errors.Is(err, domain.ErrBadRequest) {
			t.Fatalf("expected BadRequest for page=%d, got %v", page, err)
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct{ total, limit, want int }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{100, 10, 10},
	}
	for _, c := range cases {
		if got := totalPages(c.total, c.limit); got != c.want {
			t.Errorf("totalPages(%d,%d) = %d, want %d", c.total, c.limit, got, c.want)
		}
	}
}
