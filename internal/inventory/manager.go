// Package inventory is the only code that changes seat availability.
// It validates hold and release requests and hands them to a Store that
// applies them atomically, so a seat is never sold twice and a showtime
// is never oversold.
package inventory

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// Store applies validated changes.  Hold must verify and commit in one
// atomic unit per showtime and per screen; Release must check ownership
// of every seat before freeing any of them.
type Store interface {
	Showtime(ctx context.Context, ref ShowtimeRef) (model.Showtime, error)
	Screen(ctx context.Context, ref ScreenRef) (model.Screen, error)
	Hold(ctx context.Context, ch Change) error
	Release(ctx context.Context, ch Change) error
}

// Availability is the read-only answer of CheckAvailability.
type Availability struct {
	AvailableSeats int                  `json:"availableSeats"`
	Capacity       int                  `json:"capacity"`
	Fits           bool                 `json:"fits"`
	Unavailable    []model.SeatPosition `json:"unavailable,omitempty"`
}

// HoldResult describes a committed hold.
type HoldResult struct {
	Count  int
	Seats  []model.SeatPosition
	HeldAt time.Time
}

// Manager validates requests and delegates to a Store.
type Manager struct {
	store Store
	now   func() time.Time
	log   logrus.FieldLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for bookingTime.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger used for committed changes.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager panics on a nil store, like the handler constructors.
func NewManager(store Store, opts ...Option) *Manager {
	if store == nil {
		panic("nil inventory store")
	}
	m := &Manager{store: store, now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckAvailability reports without mutating anything.  For a showtime
// it returns the counter and whether the requested count fits; for a
// screen it lists requested seats that are not available.
func (m *Manager) CheckAvailability(ctx context.Context, req Request) (Availability, error) {
	ch, err := req.change(m.now())
	if err != nil {
		return Availability{}, err
	}
	out := Availability{Fits: true}
	if ch.Showtime != nil {
		st, err := m.store.Showtime(ctx, *ch.Showtime)
		if err != nil {
			return Availability{}, err
		}
		out.AvailableSeats = st.AvailableSeats
		out.Capacity = st.Capacity
		out.Fits = ch.Count <= st.AvailableSeats
	}
	if ch.Screen != nil {
		sc, err := m.store.Screen(ctx, *ch.Screen)
		if err != nil {
			return Availability{}, err
		}
		out.Unavailable = Unavailable(sc, ch.Seats)
		if len(out.Unavailable) > 0 {
			out.Fits = false
		}
	}
	return out, nil
}

// Hold verifies and commits a hold atomically.  It returns
// ErrInsufficientInventory or a *SeatConflictError without changing
// anything when the request cannot be satisfied in full.
func (m *Manager) Hold(ctx context.Context, req Request) (HoldResult, error) {
	ch, err := req.change(m.now())
	if err != nil {
		return HoldResult{}, err
	}
	if err := m.store.Hold(ctx, ch); err != nil {
		return HoldResult{}, err
	}
	m.entry(ch).Info("inventory held")
	return HoldResult{Count: ch.Count, Seats: ch.Seats, HeldAt: ch.At}, nil
}

// Release reverses a hold.  Identity releases fail with ErrNotHeld if
// any seat is not booked by the holder; counter releases are clamped to
// the showtime capacity.
func (m *Manager) Release(ctx context.Context, req Request) error {
	ch, err := req.change(m.now())
	if err != nil {
		return err
	}
	if err := m.store.Release(ctx, ch); err != nil {
		return err
	}
	m.entry(ch).Info("inventory released")
	return nil
}

func (m *Manager) entry(ch Change) logrus.FieldLogger {
	f := logrus.Fields{"holder": ch.Holder, "count": ch.Count}
	if ch.Showtime != nil {
		f["movie_id"] = ch.Showtime.MovieID
		f["theater_id"] = ch.Showtime.TheaterID
		f["showtime"] = ch.Showtime.Time
	}
	if ch.Screen != nil {
		f["theater_id"] = ch.Screen.TheaterID
		f["screen"] = ch.Screen.ScreenNumber
	}
	return m.log.WithFields(f)
}
