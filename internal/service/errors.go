package service

import (
	"errors"
	"fmt"
)

var (
	ErrMovieNotFound    = errors.New("movie not found")
	ErrShowtimeNotFound = errors.New("showtime not found")
	ErrTheaterNotFound  = errors.New("theater not found")
	ErrScreenNotFound   = errors.New("screen not found")
	ErrSeatNotFound     = errors.New("seat not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrShowtimeExists   = errors.New("showtime already exists for this theater and time")

	// ErrScreenInUse means the screen already hosts a showtime or has
	// seats booked directly on it.
	ErrScreenInUse = errors.New("screen already hosts a showtime or has booked seats")
	// ErrMovieHasBookings blocks deleting a movie that still has
	// confirmed bookings.
	ErrMovieHasBookings = errors.New("movie has confirmed bookings")

	// ErrForbidden means the caller does not own the booking.
	ErrForbidden = errors.New("not authorized to access this booking")
	// ErrAlreadyCancelled means the booking left the confirmed state.
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
	// ErrCancellationWindowClosed means the showtime is too close.
	ErrCancellationWindowClosed = errors.New("cannot cancel booking this close to showtime")
)

// ValidationError reports bad input detected before anything changed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
