package httpapi

// bookRequestDTO binds POST /tickets/commands/book and /reserve, mirroring
// the command-core request shape (§4.1.1/§4.1.2).
type bookRequestDTO struct {
	RouteID                    string `json:"routeId" binding:"required"`
	ScheduleID                 string `json:"scheduleId" binding:"required"`
	SeatNumber                 string `json:"seatNumber"`
	PassengerName              string `json:"passengerName" binding:"required"`
	PassengerEmail             string `json:"passengerEmail" binding:"required"`
	PassengerPhone             string `json:"passengerPhone"`
	Price                      int64  `json:"price" binding:"required"`
	Currency                   string `json:"currency"`
	IdempotencyKey             string `json:"idempotencyKey"`
	ReservationDurationMinutes int    `json:"reservationDurationMinutes"`
}

// confirmRequestDTO binds POST /tickets/commands/confirm.
type confirmRequestDTO struct {
	BookingID string `json:"bookingId" binding:"required"`
	PaymentID string `json:"paymentId" binding:"required"`
}

// cancelRequestDTO binds POST /tickets/commands/cancel.
type cancelRequestDTO struct {
	BookingID string `json:"bookingId" binding:"required"`
	Reason    string `json:"reason"`
}
