package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/transitline/ticketing-core/internal/domain"
)

// envelope is the wire response shape described in §6: success responses
// carry data plus a meta block with the correlation id; failures carry a
// typed error instead, adapted from the reference pkg/response envelope.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorData  `json:"error,omitempty"`
	Meta    *metaData   `json:"meta,omitempty"`
}

type metaData struct {
	CorrelationID string `json:"correlationId"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{
		Success: true,
		Data:    data,
		Meta:    &metaData{CorrelationID: CorrelationIDOf(c)},
	})
}

// statusForKind maps a domain error kind to the HTTP status table in §7.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindInsufficientSeats, domain.KindInvalidBookingState:
		return http.StatusConflict
	case domain.KindValidationError:
		return http.StatusUnprocessableEntity
	case domain.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the typed-error wire response for err, classifying it through
// domain.AppError per §7's propagation policy.
func fail(c *gin.Context, err error) {
	ae := domain.WrapInternal(err, false)
	c.JSON(statusForKind(ae.Kind), envelope{
		Success: false,
		Error: &errorData{
			Code:    string(ae.Kind),
			Message: ae.Message,
			Details: ae.Details,
		},
		Meta: &metaData{CorrelationID: CorrelationIDOf(c)},
	})
}
