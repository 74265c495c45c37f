package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a booking.  The only allowed
// transition is confirmed -> cancelled.
type BookingStatus string

const (
    BookingConfirmed BookingStatus = "confirmed"
    BookingCancelled BookingStatus = "cancelled"
)

// PaymentStatus is carried opaquely; no payment is processed.
type PaymentStatus string

const (
    PaymentPending  PaymentStatus = "pending"
    PaymentPaid     PaymentStatus = "paid"
    PaymentRefunded PaymentStatus = "refunded"
)

// Valid reports whether p is one of the known payment states.
func (p PaymentStatus) Valid() bool {
    switch p {
    case PaymentPending, PaymentPaid, PaymentRefunded:
        return true
    }
    return false
}

// Booking is a user's claim on seats for one showtime.  It exists only
// after the inventory hold for its seats has committed.
type Booking struct {
    ID            string          `json:"id"`
    UserID        string          `json:"userId"`
    MovieID       string          `json:"movieId"`
    TheaterID     string          `json:"theaterId"`
    Showtime      time.Time       `json:"showtime"`
    Seats         []SeatPosition  `json:"seats"`
    TotalAmount   decimal.Decimal `json:"totalAmount"`
    Status        BookingStatus   `json:"status"`
    PaymentStatus PaymentStatus   `json:"paymentStatus"`
    CreatedAt     time.Time       `json:"createdAt"`
    UpdatedAt     time.Time       `json:"updatedAt"`
}

// SeatLabels returns the compact labels of the booked seats.
func (b Booking) SeatLabels() []string {
    out := make([]string, len(b.Seats))
    for i, s := range b.Seats {
        out[i] = s.Label()
    }
    return out
}

// MovieSummary is the part of a movie embedded in booking listings.
type MovieSummary struct {
    ID        string `json:"id"`
    Title     string `json:"title"`
    PosterURL string `json:"posterUrl"`
    Duration  int    `json:"duration"`
    Language  string `json:"language"`
}

// TheaterSummary is the part of a theater embedded in booking listings.
type TheaterSummary struct {
    ID       string   `json:"id"`
    Name     string   `json:"name"`
    Location Location `json:"location"`
}

// BookingDetail is a booking joined with its movie and theater.  Either
// projection is nil when the referenced document no longer exists.
type BookingDetail struct {
    Booking
    Movie   *MovieSummary   `json:"movie"`
    Theater *TheaterSummary `json:"theater"`
}
