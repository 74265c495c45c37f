package inventory

import (
	"errors"
	"strings"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

var (
	// ErrInvalidRequest wraps every validation failure detected before
	// the store is touched.
	ErrInvalidRequest = errors.New("invalid inventory request")
	// ErrInsufficientInventory means a counter hold asked for more seats
	// than the showtime has left.
	ErrInsufficientInventory = errors.New("not enough seats available")
	// ErrSeatConflict is the sentinel behind *SeatConflictError.
	ErrSeatConflict = errors.New("one or more seats are already booked")
	// ErrNotHeld means a release named a seat the holder does not own.
	ErrNotHeld = errors.New("seat is not booked by this user")
	// ErrSeatOwnedByBooking means a release tried to free a seat that
	// belongs to a booking without naming that booking.
	ErrSeatOwnedByBooking = errors.New("seat belongs to a booking; cancel the booking instead")
	// ErrScreenBound means a change on a screen that hosts a showtime
	// did not move that showtime's counter with it.
	ErrScreenBound = errors.New("screen is bound to a showtime")
	// ErrSeatOutOfRange means booking would materialise more seats than
	// the screen has.
	ErrSeatOutOfRange = errors.New("seat exceeds screen capacity")

	ErrShowtimeNotFound = errors.New("showtime not found")
	ErrScreenNotFound   = errors.New("screen not found")
	ErrSeatNotFound     = errors.New("seat not found")

	// ErrContention is returned by optimistic stores that ran out of
	// retries.
	ErrContention = errors.New("inventory contention, retries exhausted")
)

// SeatConflictError lists the requested seats that were not available.
type SeatConflictError struct {
	Seats []model.SeatPosition
}

func (e *SeatConflictError) Error() string {
	labels := make([]string, len(e.Seats))
	for i, s := range e.Seats {
		labels[i] = s.Label()
	}
	return ErrSeatConflict.Error() + ": " + strings.Join(labels, ", ")
}

func (e *SeatConflictError) Unwrap() error { return ErrSeatConflict }
