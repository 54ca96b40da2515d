package query

import (
	"context"
	"encoding/json"

	"github.com/transitline/ticketing-core/internal/cache"
	"github.com/transitline/ticketing-core/internal/domain"
	"github.com/transitline/ticketing-core/internal/store"
	"github.com/transitline/ticketing-core/pkg/logger"
	"github.com/transitline/ticketing-core/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Service implements the Query core's two operations (§4.4).
type Service struct {
	read  store.ReadRepository
	cache cache.Cache
}

// New builds a query-core Service. cache may be nil, in which case every
// operation falls straight through to the read store — the cache is
// best-effort per §5's "Cache: treated as best-effort" rule.
func New(read store.ReadRepository, c cache.Cache) *Service {
	return &Service{read: read, cache: c}
}

// ListUserTickets implements §4.4.1.
func (s *Service) ListUserTickets(ctx context.Context, req ListUserTicketsRequest) (*TicketPage, error) {
	ctx, span := telemetry.StartSpan(ctx, "query.listUserTickets")
	defer span.End()

	if req.UserID == "" {
		return nil, domain.NewBadRequest("userId is required")
	}
	page, err := resolvePage(req.Page)
	if err != nil {
		return nil, err
	}
	limit := normalizeLimit(req.Limit)
	span.SetAttributes(attribute.String("user_id", req.UserID), attribute.Int("page", page), attribute.Int("limit", limit))

	useCache := req.Status == "" && s.cache != nil
	key := cache.TicketListKey(req.UserID, page, limit)

	if useCache {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var cached TicketPage
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return &cached, nil
			}
		} else if err != nil {
			logger.Warn("query: cache get failed, falling back to read store", "key", key, "err", err)
		}
	}

	tickets, total, err := s.read.ListUserTickets(ctx, req.UserID, req.Status, page, limit)
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, domain.WrapInternal(err, false)
	}

	result := &TicketPage{
		Data:       tickets,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}

	if useCache {
		if raw, err := json.Marshal(result); err == nil {
			if err := s.cache.Set(ctx, key, raw, cache.TicketListTTL); err != nil {
				logger.Warn("query: cache set failed", "key", key, "err", err)
			}
		}
	}

	return result, nil
}

// GetTicket implements §4.4.2.
func (s *Service) GetTicket(ctx context.Context, bookingID, userID string) (*domain.TicketView, error) {
	ctx, span := telemetry.StartSpan(ctx, "query.getTicket")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	if bookingID == "" {
		return nil, domain.NewBadRequest("bookingId is required")
	}

	key := cache.TicketKey(bookingID)
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var cached domain.TicketView
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				// Cache hit: re-check authorization against the cached
				// userId before returning (§4.4.2).
				if cached.UserID != userID {
					return nil, domain.ErrForbidden
				}
				return &cached, nil
			}
		} else if err != nil {
			logger.Warn("query: cache get failed, falling back to read store", "key", key, "err", err)
		}
	}

	ticket, err := s.read.GetTicket(ctx, bookingID)
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, domain.ErrForbidden
	}

	if s.cache != nil {
		if raw, err := json.Marshal(ticket); err == nil {
			if err := s.cache.Set(ctx, key, raw, cache.TicketDetailTTL); err != nil {
				logger.Warn("query: cache set failed", "key", key, "err", err)
			}
		}
	}

	return ticket, nil
}
