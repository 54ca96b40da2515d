package domain

import "time"

// SeatStatus is the lifecycle state of a single (scheduleId, seatNumber) row.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatLocked    SeatStatus = "LOCKED"
	SeatBooked    SeatStatus = "BOOKED"
)

// SeatAvailability is the per-seat row guarded by a row-level lock during
// every command that touches a seat (§4.1.5, §9 "seat-contention strategy").
type SeatAvailability struct {
	ScheduleID  string
	SeatNumber  string
	Status      SeatStatus
	BookingID   string // empty when AVAILABLE
	LockedUntil *time.Time
}

// Acquirable reports whether this seat row can be claimed by Book/Reserve:
// either genuinely AVAILABLE, or LOCKED with a lock that has gone stale
// because the sweeper has not yet fired (§4.1.2 "Seat acquisition rule").
func (s *SeatAvailability) Acquirable(now time.Time) bool {
	if s.Status == SeatAvailable {
		return true
	}
	if s.Status == SeatLocked && s.LockedUntil != nil && s.LockedUntil.Before(now) {
		return true
	}
	return false
}
