// Package domain holds the Booking aggregate, its invariants, and the
// state machine that governs every transition against it.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// BookingStatus is one of the six states in the authoritative state machine (§4.6).
type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusReserved  BookingStatus = "RESERVED"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCancelled BookingStatus = "CANCELLED"
	StatusExpired   BookingStatus = "EXPIRED"
	StatusRefunded  BookingStatus = "REFUNDED"
)

// Terminal reports whether status can never transition again (I4).
func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusExpired, StatusRefunded:
		return true
	default:
		return false
	}
}

// Booking is the aggregate root. See SPEC_FULL §3 for field-level invariants.
type Booking struct {
	ID             string
	UserID         string
	RouteID        string
	ScheduleID     string
	SeatNumber     string // empty means no seat was requested
	PassengerName  string
	PassengerEmail string
	PassengerPhone string
	Price          int64 // fixed-point, minor units (cents); two fractional digits
	Currency       string
	Status         BookingStatus
	PaymentID      string
	IdempotencyKey string
	// ConfirmationCode is a cosmetic human-readable code assigned on Confirm
	// (§12 "Confirmation code"); empty until then.
	ConfirmationCode string

	ReservedAt  *time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Version int64
}

// HasSeat reports whether this booking targets a specific seat.
func (b *Booking) HasSeat() bool { return b.SeatNumber != "" }

// GenerateConfirmationCode mints the cosmetic code assigned on Confirm
// (§12 "Confirmation code").
func GenerateConfirmationCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return uuid.New().String()[:8]
	}
	return hex.EncodeToString(buf)
}

// transitions enumerates every legal (from, to) pair in the state machine (§4.6).
var transitions = map[BookingStatus]map[BookingStatus]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusReserved: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusExpired:   true,
	},
	StatusConfirmed: {
		StatusCancelled: true,
		StatusRefunded:  true,
	},
}

// CanTransition reports whether moving from `from` to `to` is a legal
// transition per §4.6. Terminal states never permit a further transition.
func CanTransition(from, to BookingStatus) bool {
	if from.Terminal() {
		return false
	}
	return transitions[from][to]
}

// PriceDecimal renders Price (minor units) as a two-decimal string, e.g. "25.00".
func PriceDecimal(minorUnits int64) string {
	sign := ""
	v := minorUnits
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / 100
	frac := v % 100
	return sign + itoa(whole) + "." + pad2(frac)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + itoa(v)
	}
	return itoa(v)
}
