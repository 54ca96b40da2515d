package command

import (
	"fmt"
	"strings"

	"github.com/transitline/ticketing-core/internal/domain"
)

const (
	defaultReservationMinutes = 15
	minReservationMinutes     = 5
	maxReservationMinutes     = 60
	defaultCurrency           = "USD"
)

func validateBookRequest(r BookRequest) error {
	var missing []string
	if r.UserID == "" {
		missing = append(missing, "userId")
	}
	if r.RouteID == "" {
		missing = append(missing, "routeId")
	}
	if r.ScheduleID == "" {
		missing = append(missing, "scheduleId")
	}
	if r.PassengerName == "" {
		missing = append(missing, "passengerName")
	}
	if r.PassengerEmail == "" {
		missing = append(missing, "passengerEmail")
	}
	if len(missing) > 0 {
		return domain.NewBadRequest(fmt.Sprintf("missing required field(s): %s", strings.Join(missing, ", ")))
	}
	if r.Price <= 0 {
		return domain.NewBadRequest("price must be positive")
	}
	return nil
}

func normalizeCurrency(currency string) string {
	if currency == "" {
		return defaultCurrency
	}
	return strings.ToUpper(currency)
}

func normalizeReservationMinutes(minutes int) (int, error) {
	if minutes == 0 {
		return defaultReservationMinutes, nil
	}
	if minutes < minReservationMinutes || minutes > maxReservationMinutes {
		return 0, domain.NewBadRequest(fmt.Sprintf(
			"reservationDurationMinutes must be between %d and %d", minReservationMinutes, maxReservationMinutes))
	}
	return minutes, nil
}
