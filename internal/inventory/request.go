package inventory

import (
	"fmt"
	"strconv"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// ShowtimeRef addresses a showtime by its natural key.
type ShowtimeRef struct {
	MovieID   string
	TheaterID string
	Time      time.Time
}

// Key is a stable string form used for per-showtime locking.
func (r ShowtimeRef) Key() string {
	return "showtime:" + r.MovieID + "|" + r.TheaterID + "|" + strconv.FormatInt(model.NormalizeTime(r.Time).UnixMilli(), 10)
}

// ScreenRef addresses a screen inside a theater.
type ScreenRef struct {
	TheaterID    string
	ScreenNumber int
}

// Key is a stable string form used for per-screen locking.
func (r ScreenRef) Key() string {
	return "screen:" + r.TheaterID + "|" + strconv.Itoa(r.ScreenNumber)
}

// Request describes a hold or release.  Counter mode needs Showtime and
// Count (or Seats, whose length becomes the count).  Identity mode needs
// Screen and Seats.  Both may be given, in which case the seats are
// marked and the counter moves by the same amount in one atomic unit.
type Request struct {
	Showtime *ShowtimeRef
	Screen   *ScreenRef
	Seats    []model.SeatPosition
	Count    int
	Holder   string
	Ref      string
}

// Change is a validated request as handed to a Store.
type Change struct {
	Showtime *ShowtimeRef
	Screen   *ScreenRef
	Seats    []model.SeatPosition
	Count    int
	Holder   string
	Ref      string
	At       time.Time
}

func (r Request) change(now time.Time) (Change, error) {
	if r.Showtime == nil && r.Screen == nil {
		return Change{}, fmt.Errorf("%w: a showtime or a screen is required", ErrInvalidRequest)
	}
	if r.Holder == "" {
		return Change{}, fmt.Errorf("%w: holder is required", ErrInvalidRequest)
	}
	if r.Count < 0 {
		return Change{}, fmt.Errorf("%w: count must not be negative", ErrInvalidRequest)
	}
	seen := make(map[model.SeatPosition]struct{}, len(r.Seats))
	seats := make([]model.SeatPosition, 0, len(r.Seats))
	for _, s := range r.Seats {
		if !s.Valid() {
			return Change{}, fmt.Errorf("%w: bad seat %q", ErrInvalidRequest, s.Label())
		}
		if _, dup := seen[s]; dup {
			return Change{}, fmt.Errorf("%w: seat %s requested twice", ErrInvalidRequest, s.Label())
		}
		seen[s] = struct{}{}
		seats = append(seats, s)
	}
	count := r.Count
	if len(seats) > 0 {
		if count == 0 {
			count = len(seats)
		}
		if count != len(seats) {
			return Change{}, fmt.Errorf("%w: count %d does not match %d seats", ErrInvalidRequest, count, len(seats))
		}
	}
	if r.Screen != nil && len(seats) == 0 {
		return Change{}, fmt.Errorf("%w: seats are required for a screen", ErrInvalidRequest)
	}
	if count == 0 {
		return Change{}, fmt.Errorf("%w: at least one seat is required", ErrInvalidRequest)
	}
	ch := Change{Screen: r.Screen, Seats: seats, Count: count, Holder: r.Holder, Ref: r.Ref, At: model.NormalizeTime(now)}
	if r.Showtime != nil {
		ref := *r.Showtime
		ref.Time = model.NormalizeTime(ref.Time)
		ch.Showtime = &ref
	}
	return ch, nil
}
