package inventory

import (
	"fmt"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// The helpers below hold the in-memory rules shared by stores that
// load a document, change it and write it back.  They never modify the
// caller's slices in place.

// TakeSeats decrements the showtime counter by n.
func TakeSeats(st *model.Showtime, n int) error {
	if n > st.AvailableSeats {
		return ErrInsufficientInventory
	}
	st.AvailableSeats -= n
	return nil
}

// ReturnSeats increments the showtime counter by n, clamped to capacity.
func ReturnSeats(st *model.Showtime, n int) {
	st.AvailableSeats += n
	if st.AvailableSeats > st.Capacity {
		st.AvailableSeats = st.Capacity
	}
}

// CheckBinding rejects a change on a bound screen unless it also targets
// the showtime the screen is bound to, so the seat map and the counter
// never drift apart.
func CheckBinding(sc model.Screen, ch Change) error {
	b := sc.Showtime
	if b == nil || ch.Screen == nil {
		return nil
	}
	st := ch.Showtime
	if st == nil || st.MovieID != b.MovieID || st.TheaterID != ch.Screen.TheaterID ||
		!model.NormalizeTime(st.Time).Equal(model.NormalizeTime(b.Time)) {
		return fmt.Errorf("%w: screen %d", ErrScreenBound, sc.ScreenNumber)
	}
	return nil
}

// Unavailable returns the requested positions that are not free.  A
// seat without a record is free.
func Unavailable(sc model.Screen, seats []model.SeatPosition) []model.SeatPosition {
	var out []model.SeatPosition
	for _, p := range seats {
		if i := sc.SeatIndex(p); i >= 0 && sc.Seats[i].Status != model.SeatAvailable {
			out = append(out, p)
		}
	}
	return out
}

// BookSeats marks every position booked for holder and tags it with
// ref when ref is not empty.  Either all seats are booked or sc is left
// unchanged.
func BookSeats(sc *model.Screen, seats []model.SeatPosition, holder, ref string, at time.Time) error {
	if taken := Unavailable(*sc, seats); len(taken) > 0 {
		return &SeatConflictError{Seats: taken}
	}
	fresh := 0
	for _, p := range seats {
		if sc.SeatIndex(p) < 0 {
			fresh++
		}
	}
	if len(sc.Seats)+fresh > sc.TotalSeats {
		return fmt.Errorf("%w: screen %d has %d seats", ErrSeatOutOfRange, sc.ScreenNumber, sc.TotalSeats)
	}

	next := append(make([]model.Seat, 0, len(sc.Seats)+fresh), sc.Seats...)
	for _, p := range seats {
		by, when := holder, at
		seat := model.Seat{Row: p.Row, Column: p.Column, Status: model.SeatBooked, BookedBy: &by, BookingTime: &when}
		if ref != "" {
			id := ref
			seat.BookingID = &id
		}
		if i := (&model.Screen{Seats: next}).SeatIndex(p); i >= 0 {
			next[i] = seat
		} else {
			next = append(next, seat)
		}
	}
	sc.Seats = next
	return nil
}

// FreeSeats resets every position held by holder back to available.
// A seat tagged with a booking ref is only freed when ref matches it.
// Either all seats are freed or sc is left unchanged.
func FreeSeats(sc *model.Screen, seats []model.SeatPosition, holder, ref string) error {
	for _, p := range seats {
		i := sc.SeatIndex(p)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrSeatNotFound, p.Label())
		}
		if !sc.Seats[i].HeldBy(holder) {
			return fmt.Errorf("%w: %s", ErrNotHeld, p.Label())
		}
		if id := sc.Seats[i].BookingID; id != nil && *id != ref {
			return fmt.Errorf("%w: %s", ErrSeatOwnedByBooking, p.Label())
		}
	}
	next := append([]model.Seat(nil), sc.Seats...)
	for _, p := range seats {
		i := sc.SeatIndex(p)
		next[i] = model.Seat{Row: p.Row, Column: p.Column, Status: model.SeatAvailable}
	}
	sc.Seats = next
	return nil
}
