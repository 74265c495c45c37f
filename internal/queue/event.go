// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Both are durable and bound to the default exchange.
const (
    BookingConfirmedQueue = "booking.confirmed"
    BookingCancelledQueue = "booking.cancelled"
)

// BookingEvent is published when a booking is confirmed or cancelled.
// It contains enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary store.
type BookingEvent struct {
    Type        string   `json:"type"`
    BookingID   string   `json:"booking_id"`
    UserID      string   `json:"user_id"`
    MovieID     string   `json:"movie_id"`
    MovieTitle  string   `json:"movie_title"`
    TheaterID   string   `json:"theater_id"`
    TheaterName string   `json:"theater_name"`
    Showtime    string   `json:"showtime"`
    SeatLabels  []string `json:"seats"`
    SeatCount   int      `json:"seat_count"`
    TotalAmount string   `json:"total_amount"`
    OccurredAt  string   `json:"occurred_at"`
}
