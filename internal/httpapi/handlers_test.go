package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/transitline/ticketing-core/internal/command"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/query"
	"github.com/transitline/ticketing-core/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeWriteRepository struct {
	store.WriteRepository
	booking *domain.Booking
}

func (f *fakeWriteRepository) Book(ctx context.Context, p store.BookParams) (*domain.Booking, error) {
	b := &domain.Booking{ID: p.BookingID, UserID: p.UserID, Status: domain.StatusPending}
	f.booking = b
	return b, nil
}

func (f *fakeWriteRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	return nil, domain.ErrBookingNotFound
}

type fakeReadRepository struct {
	store.ReadRepository
	ticket *domain.TicketView
}

func (f *fakeReadRepository) GetTicket(ctx context.Context, bookingID string) (*domain.TicketView, error) {
	if f.ticket == nil || f.ticket.ID != bookingID {
		return nil, domain.ErrBookingNotFound
	}
	return f.ticket, nil
}

func (f *fakeReadRepository) ListUserTickets(ctx context.Context, userID, status string, page, limit int) ([]*domain.TicketView, int, error) {
	if f.ticket == nil {
		return nil, 0, nil
	}
	return []*domain.TicketView{f.ticket}, 1, nil
}

func signToken(t *testing.T, secret, issuer, userID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   "jane@example.com",
		"role":    role,
		"iss":     issuer,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestRouter(write *fakeWriteRepository, read *fakeReadRepository) (*gin.Engine, string) {
	const secret = "test-secret"
	const issuer = "ticketing-core-test"

	commands := command.New(command.Config{Write: write, PublishMode: command.PublishOutbox})
	queries := query.New(read, nil)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CorrelationID())
	api := router.Group("/api")
	api.Use(Auth(secret, issuer))
	NewHandlers(commands, queries).Register(api)

	return router, secret
}

func TestBook_RequiresBearerToken(t *testing.T) {
	router, _ := newTestRouter(&fakeWriteRepository{}, &fakeReadRepository{})

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/commands/book", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestBook_SucceedsWithValidTokenAndBody(t *testing.T) {
	write := &fakeWriteRepository{}
	router, secret := newTestRouter(write, &fakeReadRepository{})
	token := signToken(t, secret, "ticketing-core-test", "user-1", "USER")

	body := `{"routeId":"route-1","scheduleId":"sched-1","passengerName":"Jane","passengerEmail":"jane@example.com","price":1000}`
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/commands/book", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success=true, got %+v", resp)
	}
	if resp.Meta == nil || resp.Meta.CorrelationID == "" {
		t.Fatalf("expected a correlation id in meta")
	}
}

func TestBook_RejectsMissingFieldsAsValidationError(t *testing.T) {
	router, secret := newTestRouter(&fakeWriteRepository{}, &fakeReadRepository{})
	token := signToken(t, secret, "ticketing-core-test", "user-1", "USER")

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/commands/book", bytes.NewBufferString(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetTicket_ForbiddenForNonOwner(t *testing.T) {
	read := &fakeReadRepository{ticket: &domain.TicketView{ID: "booking-1", UserID: "owner-1"}}
	router, secret := newTestRouter(&fakeWriteRepository{}, read)
	token := signToken(t, secret, "ticketing-core-test", "someone-else", "USER")

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/queries/booking-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetTicket_WrongIssuerIsUnauthorized(t *testing.T) {
	router, secret := newTestRouter(&fakeWriteRepository{}, &fakeReadRepository{})
	token := signToken(t, secret, "some-other-issuer", "user-1", "USER")

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/queries/booking-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}
