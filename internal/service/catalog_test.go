package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

func TestAddShowtimeRules(t *testing.T) {
	f := newFixture(t)
	catalog := NewCatalogService(f.repos, quiet())
	ctx := context.Background()
	at := time.Date(2030, 4, 1, 18, 0, 0, 0, time.UTC)
	ten := decimal.NewFromInt(10)
	missing := 7

	_, err := catalog.AddShowtime(ctx, f.movieID, AddShowtimeInput{TheaterID: f.theaterID, Time: at, Price: ten, Capacity: 101})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = catalog.AddShowtime(ctx, f.movieID, AddShowtimeInput{TheaterID: f.theaterID, Time: at, Price: decimal.Zero})
	assert.True(t, errors.As(err, &verr))

	_, err = catalog.AddShowtime(ctx, f.movieID, AddShowtimeInput{TheaterID: f.theaterID, ScreenNumber: &missing, Time: at, Price: ten})
	assert.ErrorIs(t, err, ErrScreenNotFound)

	_, err = catalog.AddShowtime(ctx, f.movieID, AddShowtimeInput{TheaterID: "nope", Time: at, Price: ten})
	assert.ErrorIs(t, err, ErrTheaterNotFound)

	_, err = catalog.AddShowtime(ctx, "nope", AddShowtimeInput{TheaterID: f.theaterID, Time: at, Price: ten})
	assert.ErrorIs(t, err, ErrMovieNotFound)

	_, err = catalog.AddShowtime(ctx, f.movieID, AddShowtimeInput{TheaterID: f.theaterID, Time: f.showtime, Price: ten})
	assert.ErrorIs(t, err, ErrShowtimeExists)

	st, err := catalog.AddShowtime(ctx, f.movieID, AddShowtimeInput{TheaterID: f.theaterID, Time: at, Price: ten, Capacity: 30})
	require.NoError(t, err)
	assert.Equal(t, 30, st.AvailableSeats)
	assert.Equal(t, 30, f.available(t, at))
}

func TestCreateTheaterRejectsDuplicateScreens(t *testing.T) {
	f := newFixture(t)
	catalog := NewCatalogService(f.repos, quiet())

	_, err := catalog.CreateTheater(context.Background(), CreateTheaterInput{
		Name:    "Plaza",
		Screens: []ScreenInput{{ScreenNumber: 1, TotalSeats: 10}, {ScreenNumber: 1, TotalSeats: 20}},
	})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestSeatServiceBookAndCancel(t *testing.T) {
	f := newFixture(t)
	svc := NewSeatService(f.repos.Theaters, inventory.NewManager(f.repos.Inventory, inventory.WithLogger(quiet())))
	ctx := context.Background()

	require.NoError(t, svc.Book(ctx, f.theaterID, 1, "u1", seats("E1", "E2")))
	assert.ErrorIs(t, svc.Book(ctx, f.theaterID, 1, "u2", seats("E2")), inventory.ErrSeatConflict)
	assert.ErrorIs(t, svc.Cancel(ctx, f.theaterID, 1, "u2", seats("E1")), inventory.ErrNotHeld)
	assert.ErrorIs(t, svc.Book(ctx, f.theaterID, 9, "u1", seats("E1")), ErrScreenNotFound)
	assert.ErrorIs(t, svc.Book(ctx, "nope", 1, "u1", seats("E1")), ErrTheaterNotFound)

	list, err := svc.ScreenSeats(ctx, f.theaterID, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.SeatBooked, list[0].Status)

	require.NoError(t, svc.Cancel(ctx, f.theaterID, 1, "u1", seats("E1", "E2")))
	list, _ = svc.ScreenSeats(ctx, f.theaterID, 1)
	for _, s := range list {
		assert.Equal(t, model.SeatAvailable, s.Status)
	}
}

func TestScreenCancelCannotFreeBookingSeats(t *testing.T) {
	f := newFixture(t)
	svc := NewSeatService(f.repos.Theaters, inventory.NewManager(f.repos.Inventory, inventory.WithLogger(quiet())))
	ctx := context.Background()

	b, err := f.book("alice", f.screenShow, seats("E1", "E2"))
	require.NoError(t, err)
	assert.Equal(t, 98, f.available(t, f.screenShow))

	err = svc.Cancel(ctx, f.theaterID, 1, "alice", seats("E1"))
	assert.ErrorIs(t, err, inventory.ErrSeatOwnedByBooking)
	assert.Equal(t, 98, f.available(t, f.screenShow))

	_, err = f.book("bob", f.screenShow, seats("E1"))
	assert.ErrorIs(t, err, inventory.ErrSeatConflict)

	_, err = f.svc.CancelBooking(ctx, b.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 100, f.available(t, f.screenShow))

	again, err := f.book("bob", f.screenShow, seats("E1"))
	require.NoError(t, err)
	_, err = f.svc.CancelBooking(ctx, again.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 100, f.available(t, f.screenShow))
}

func TestSeatServiceMovesBoundCounter(t *testing.T) {
	f := newFixture(t)
	svc := NewSeatService(f.repos.Theaters, inventory.NewManager(f.repos.Inventory, inventory.WithLogger(quiet())))
	ctx := context.Background()

	require.NoError(t, svc.Book(ctx, f.theaterID, 1, "walk-in", seats("K1", "K2", "K3")))
	assert.Equal(t, 97, f.available(t, f.screenShow))

	_, err := f.book("alice", f.screenShow, seats("K2"))
	assert.ErrorIs(t, err, inventory.ErrSeatConflict)

	require.NoError(t, svc.Cancel(ctx, f.theaterID, 1, "walk-in", seats("K1", "K2", "K3")))
	assert.Equal(t, 100, f.available(t, f.screenShow))
}

func TestAddShowtimeRejectsSecondBoundShowtime(t *testing.T) {
	f := newFixture(t)
	catalog := NewCatalogService(f.repos, quiet())
	screen := 1

	_, err := catalog.AddShowtime(context.Background(), f.movieID, AddShowtimeInput{
		TheaterID: f.theaterID, ScreenNumber: &screen, Time: f.screenShow.Add(4 * time.Hour), Price: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, ErrScreenInUse)
}

func TestUpdateMovieKeepsSchedule(t *testing.T) {
	f := newFixture(t)
	catalog := NewCatalogService(f.repos, quiet())
	ctx := context.Background()
	title, rating := "Heat (Director's Cut)", 8.6

	m, err := catalog.UpdateMovie(ctx, f.movieID, UpdateMovieInput{Title: &title, Rating: &rating, Genre: []string{"crime"}})
	require.NoError(t, err)
	assert.Equal(t, title, m.Title)
	assert.Equal(t, 170, m.Duration)
	assert.Equal(t, []string{"crime"}, m.Genre)
	assert.Len(t, m.Showtimes, 2)

	zero := 0
	_, err = catalog.UpdateMovie(ctx, f.movieID, UpdateMovieInput{Duration: &zero})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	_, err = catalog.UpdateMovie(ctx, "nope", UpdateMovieInput{Title: &title})
	assert.ErrorIs(t, err, ErrMovieNotFound)
}

func TestDeleteMovieWaitsForBookings(t *testing.T) {
	f := newFixture(t)
	catalog := NewCatalogService(f.repos, quiet())
	ctx := context.Background()

	b, err := f.book("alice", f.screenShow, seats("A1"))
	require.NoError(t, err)
	assert.ErrorIs(t, catalog.DeleteMovie(ctx, f.movieID), ErrMovieHasBookings)

	_, err = f.svc.CancelBooking(ctx, b.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, catalog.DeleteMovie(ctx, f.movieID))
	assert.ErrorIs(t, catalog.DeleteMovie(ctx, f.movieID), ErrMovieNotFound)

	th, err := catalog.GetTheater(ctx, f.theaterID)
	require.NoError(t, err)
	assert.Nil(t, th.Screens[0].Showtime)

	// the freed screen can host a new showtime
	other, err := catalog.CreateMovie(ctx, CreateMovieInput{Title: "Ronin", Duration: 122})
	require.NoError(t, err)
	screen := 1
	_, err = catalog.AddShowtime(ctx, other.ID, AddShowtimeInput{TheaterID: f.theaterID, ScreenNumber: &screen, Time: f.screenShow, Price: decimal.NewFromInt(9)})
	assert.NoError(t, err)
}
