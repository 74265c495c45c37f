package repository

import (
	"context"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// MovieRepository stores movies and their embedded showtimes.  It never
// changes AvailableSeats of an existing showtime; that is the inventory
// store's job.
type MovieRepository interface {
	// List returns all movies ordered by release date, newest first.
	List(ctx context.Context) ([]model.Movie, error)
	GetByID(ctx context.Context, id string) (model.Movie, error)
	Create(ctx context.Context, m *model.Movie) error
	// Update rewrites the catalogue fields of m (everything except the
	// schedule and CreatedAt).
	Update(ctx context.Context, m *model.Movie) error
	// Delete removes the movie with its schedule and unbinds every
	// screen bound to one of its showtimes.
	Delete(ctx context.Context, id string) error
	// AddShowtime appends st to the movie's schedule.  It returns
	// ErrConflict when the movie already has a showtime at the same
	// theater and instant.  A showtime with a screen number also binds
	// that screen; ErrScreenInUse means the screen already hosts a
	// showtime or has booked seats.
	AddShowtime(ctx context.Context, movieID string, st *model.Showtime) error
}

// TheaterRepository stores theaters with their screens.  Seat records
// inside screens are owned by the inventory store.
type TheaterRepository interface {
	List(ctx context.Context) ([]model.Theater, error)
	GetByID(ctx context.Context, id string) (model.Theater, error)
	Create(ctx context.Context, t *model.Theater) error
}

// BookingRepository stores booking records.
type BookingRepository interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id string) (model.Booking, error)
	// ListByUser returns the user's bookings, newest first.
	ListByUser(ctx context.Context, userID string) ([]model.Booking, error)
	// CountConfirmed returns how many confirmed bookings the movie has.
	CountConfirmed(ctx context.Context, movieID string) (int, error)
	// Cancel moves a confirmed booking to cancelled/refunded with a
	// write conditioned on the stored status.  It returns ErrConflict if
	// the booking is no longer confirmed.
	Cancel(ctx context.Context, id string, at time.Time) (model.Booking, error)
	// Reinstate undoes Cancel after the inventory release failed.
	Reinstate(ctx context.Context, id string, payment model.PaymentStatus, at time.Time) error
}

// UserRepository stores accounts.  Emails are compared lower-cased.
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
}

// Repositories bundles one backend's implementations.  Close releases
// the backend's connections or flushes its files.
type Repositories struct {
	Movies    MovieRepository
	Theaters  TheaterRepository
	Bookings  BookingRepository
	Users     UserRepository
	Inventory inventory.Store
	Ping      func(ctx context.Context) error
	Close     func(ctx context.Context) error
}
