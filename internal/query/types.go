// Package query implements the Query core (Q): the read-only list/detail
// operations over the read store, fronted by a cache-aside layer, grounded
// on the reference ShowService's list/get-by-id + cache read-through shape.
package query

import "github.com/transitline/ticketing-core/internal/domain"

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// ListUserTicketsRequest is the validated input to ListUserTickets (§4.4.1).
// Page is a pointer so the zero value can't be confused with an explicit
// "page=0" from the caller: nil means "not supplied, use the default",
// a non-nil value less than 1 is a boundary violation (§8 "page < 1 →
// BadRequest"), distinct from Limit, which the spec has us clamp instead.
type ListUserTicketsRequest struct {
	UserID string
	Status string // optional filter; bypasses cache when present
	Page   *int
	Limit  int
}

// TicketPage is the response shape for ListUserTickets.
type TicketPage struct {
	Data       []*domain.TicketView `json:"data"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"totalPages"`
}

// resolvePage implements §8's page boundary: an omitted page defaults to 1,
// but an explicitly-supplied page below 1 is rejected rather than clamped.
func resolvePage(page *int) (int, error) {
	if page == nil {
		return defaultPage, nil
	}
	if *page < 1 {
		return 0, domain.NewBadRequest("page must be >= 1")
	}
	return *page, nil
}

func normalizeLimit(limit int) int {
	if limit < 1 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// totalPages implements ceil(total/limit) without floating point.
func totalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return pages
}
