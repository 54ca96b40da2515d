// Package httpapi is the thin gin transport boundary: it binds requests,
// extracts the caller identity, calls into the command/query cores, and
// maps results/errors onto the wire envelope of §6/§7. It carries no
// business logic of its own, grounded on the reference booking handler's
// bind-call-respond shape.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/transitline/ticketing-core/internal/command"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/query"
)

// Handlers wires the command and query cores to gin routes.
type Handlers struct {
	commands *command.Service
	queries  *query.Service
}

// NewHandlers builds a Handlers from the command/query cores.
func NewHandlers(commands *command.Service, queries *query.Service) *Handlers {
	return &Handlers{commands: commands, queries: queries}
}

// Register mounts every route named in §6 under r.
func (h *Handlers) Register(r gin.IRouter) {
	r.POST("/tickets/commands/book", h.book)
	r.POST("/tickets/commands/reserve", h.reserve)
	r.POST("/tickets/commands/confirm", h.confirm)
	r.POST("/tickets/commands/cancel", h.cancel)
	r.GET("/tickets/queries/my-tickets", h.myTickets)
	r.GET("/tickets/queries/:bookingId", h.getTicket)
}

func (h *Handlers) identity(c *gin.Context) (domain.Identity, bool) {
	identity, ok := IdentityFromContext(c)
	if !ok {
		fail(c, domain.NewUnauthorized("missing caller identity"))
	}
	return identity, ok
}

func (h *Handlers) book(c *gin.Context) {
	identity, authed := h.identity(c)
	if !authed {
		return
	}
	var dto bookRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		fail(c, domain.NewValidationError(err.Error()))
		return
	}

	b, err := h.commands.Book(c.Request.Context(), command.BookRequest{
		UserID:         identity.UserID,
		RouteID:        dto.RouteID,
		ScheduleID:     dto.ScheduleID,
		SeatNumber:     dto.SeatNumber,
		PassengerName:  dto.PassengerName,
		PassengerEmail: dto.PassengerEmail,
		PassengerPhone: dto.PassengerPhone,
		Price:          dto.Price,
		Currency:       dto.Currency,
		IdempotencyKey: dto.IdempotencyKey,
		CorrelationID:  CorrelationIDOf(c),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, b)
}

func (h *Handlers) reserve(c *gin.Context) {
	identity, authed := h.identity(c)
	if !authed {
		return
	}
	var dto bookRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		fail(c, domain.NewValidationError(err.Error()))
		return
	}

	b, err := h.commands.Reserve(c.Request.Context(), command.ReserveRequest{
		BookRequest: command.BookRequest{
			UserID:         identity.UserID,
			RouteID:        dto.RouteID,
			ScheduleID:     dto.ScheduleID,
			SeatNumber:     dto.SeatNumber,
			PassengerName:  dto.PassengerName,
			PassengerEmail: dto.PassengerEmail,
			PassengerPhone: dto.PassengerPhone,
			Price:          dto.Price,
			Currency:       dto.Currency,
			IdempotencyKey: dto.IdempotencyKey,
			CorrelationID:  CorrelationIDOf(c),
		},
		ReservationDurationMinutes: dto.ReservationDurationMinutes,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, b)
}

func (h *Handlers) confirm(c *gin.Context) {
	if _, authed := h.identity(c); !authed {
		return
	}
	var dto confirmRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		fail(c, domain.NewValidationError(err.Error()))
		return
	}

	b, err := h.commands.Confirm(c.Request.Context(), command.ConfirmRequest{
		BookingID:     dto.BookingID,
		PaymentID:     dto.PaymentID,
		CorrelationID: CorrelationIDOf(c),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// cancel allows the owning user, or an admin acting on any booking, per §6
// "Caller identity" — ownership is enforced by the command core, not here;
// admins pass an empty userId to bypass the ownership check.
func (h *Handlers) cancel(c *gin.Context) {
	identity, authed := h.identity(c)
	if !authed {
		return
	}
	var dto cancelRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		fail(c, domain.NewValidationError(err.Error()))
		return
	}

	enforceOwner := identity.UserID
	if identity.IsAdmin() {
		enforceOwner = ""
	}

	b, err := h.commands.Cancel(c.Request.Context(), command.CancelRequest{
		BookingID:     dto.BookingID,
		UserID:        enforceOwner,
		Reason:        dto.Reason,
		CorrelationID: CorrelationIDOf(c),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

func (h *Handlers) myTickets(c *gin.Context) {
	identity, authed := h.identity(c)
	if !authed {
		return
	}

	page, pagePresent := parseIntQuery(c, "page", 1)
	limit, _ := parseIntQuery(c, "limit", 10)

	var pagePtr *int
	if pagePresent {
		pagePtr = &page
	}

	result, err := h.queries.ListUserTickets(c.Request.Context(), query.ListUserTicketsRequest{
		UserID: identity.UserID,
		Status: c.Query("status"),
		Page:   pagePtr,
		Limit:  limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, result)
}

func (h *Handlers) getTicket(c *gin.Context) {
	identity, authed := h.identity(c)
	if !authed {
		return
	}

	ticket, err := h.queries.GetTicket(c.Request.Context(), c.Param("bookingId"), identity.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, ticket)
}
