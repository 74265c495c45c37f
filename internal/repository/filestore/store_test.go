package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

var showAt = time.Date(2030, 1, 10, 20, 0, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// seed creates a movie with two showtimes (capacity 100 and 10) and a
// theater with one 50 seat screen.
func seed(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, quietLogger())
	require.NoError(t, err)
	repos := s.Repositories()
	ctx := context.Background()

	require.NoError(t, repos.Theaters.Create(ctx, &model.Theater{
		ID: "t1", Name: "Odeon", Screens: []model.Screen{{ScreenNumber: 1, TotalSeats: 50}},
	}))
	screen := 1
	require.NoError(t, repos.Movies.Create(ctx, &model.Movie{
		ID: "m1", Title: "Heat", Duration: 170,
		Showtimes: []model.Showtime{
			{ID: "s1", TheaterID: "t1", Time: showAt, Price: decimal.NewFromInt(12), Capacity: 100, AvailableSeats: 100},
			{ID: "s2", TheaterID: "t1", ScreenNumber: &screen, Time: showAt.Add(3 * time.Hour), Price: decimal.NewFromInt(12), Capacity: 10, AvailableSeats: 10},
		},
	}))
	return s
}

func counterReq(n int, holder string) inventory.Change {
	return inventory.Change{
		Showtime: &inventory.ShowtimeRef{MovieID: "m1", TheaterID: "t1", Time: showAt},
		Count:    n,
		Holder:   holder,
		At:       time.Now().UTC(),
	}
}

func seatReq(holder string, seats ...model.SeatPosition) inventory.Change {
	return inventory.Change{
		Screen: &inventory.ScreenRef{TheaterID: "t1", ScreenNumber: 1},
		Seats:  seats,
		Count:  len(seats),
		Holder: holder,
		At:     time.Now().UTC(),
	}
}

func TestCounterHoldExample(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()
	ref := inventory.ShowtimeRef{MovieID: "m1", TheaterID: "t1", Time: showAt}

	require.NoError(t, s.Hold(ctx, counterReq(60, "a")))
	st, _ := s.Showtime(ctx, ref)
	assert.Equal(t, 40, st.AvailableSeats)

	err := s.Hold(ctx, counterReq(50, "b"))
	assert.ErrorIs(t, err, inventory.ErrInsufficientInventory)
	st, _ = s.Showtime(ctx, ref)
	assert.Equal(t, 40, st.AvailableSeats)

	require.NoError(t, s.Release(ctx, counterReq(60, "a")))
	st, _ = s.Showtime(ctx, ref)
	assert.Equal(t, 100, st.AvailableSeats)

	require.NoError(t, s.Release(ctx, counterReq(1, "a")))
	st, _ = s.Showtime(ctx, ref)
	assert.Equal(t, 100, st.AvailableSeats, "release clamps to capacity")
}

func TestConcurrentCounterHoldsNeverOversell(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()

	var committed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := 1 + i%7
			err := s.Hold(ctx, counterReq(n, fmt.Sprint("u", i)))
			if err == nil {
				committed.Add(int64(n))
				return
			}
			assert.ErrorIs(t, err, inventory.ErrInsufficientInventory)
		}(i)
	}
	wg.Wait()

	st, err := s.Showtime(ctx, inventory.ShowtimeRef{MovieID: "m1", TheaterID: "t1", Time: showAt})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.AvailableSeats, 0)
	assert.Equal(t, 100-int(committed.Load()), st.AvailableSeats)
}

func TestConcurrentSeatHoldsOneWinner(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()
	seat := model.SeatPosition{Row: "3", Column: 5}

	var wins atomic.Int64
	var winner atomic.Value
	var wg sync.WaitGroup
	for _, user := range []string{"x", "y", "z"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			err := s.Hold(ctx, seatReq(user, seat))
			if err == nil {
				wins.Add(1)
				winner.Store(user)
				return
			}
			assert.ErrorIs(t, err, inventory.ErrSeatConflict)
		}(user)
	}
	wg.Wait()

	require.Equal(t, int64(1), wins.Load())
	sc, err := s.Screen(ctx, inventory.ScreenRef{TheaterID: "t1", ScreenNumber: 1})
	require.NoError(t, err)
	require.Len(t, sc.Seats, 1)
	assert.Equal(t, winner.Load(), *sc.Seats[0].BookedBy)
}

func TestCombinedHoldIsAtomic(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()
	st2 := inventory.ShowtimeRef{MovieID: "m1", TheaterID: "t1", Time: showAt.Add(3 * time.Hour)}
	screen := inventory.ScreenRef{TheaterID: "t1", ScreenNumber: 1}
	a1 := model.SeatPosition{Row: "A", Column: 1}
	a2 := model.SeatPosition{Row: "A", Column: 2}

	require.NoError(t, s.Hold(ctx, inventory.Change{Showtime: &st2, Screen: &screen, Seats: []model.SeatPosition{a1}, Count: 1, Holder: "u1", At: showAt}))

	err := s.Hold(ctx, inventory.Change{Showtime: &st2, Screen: &screen, Seats: []model.SeatPosition{a1, a2}, Count: 2, Holder: "u2", At: showAt})
	var conflict *inventory.SeatConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []model.SeatPosition{a1}, conflict.Seats)

	got, _ := s.Showtime(ctx, st2)
	assert.Equal(t, 9, got.AvailableSeats, "failed seat check must not move the counter")
	sc, _ := s.Screen(ctx, screen)
	assert.Len(t, sc.Seats, 1)
}

func TestReleaseRequiresHolder(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()
	seat := model.SeatPosition{Row: "B", Column: 7}
	require.NoError(t, s.Hold(ctx, seatReq("owner", seat)))

	assert.ErrorIs(t, s.Release(ctx, seatReq("intruder", seat)), inventory.ErrNotHeld)
	assert.ErrorIs(t, s.Release(ctx, seatReq("owner", model.SeatPosition{Row: "Q", Column: 1})), inventory.ErrSeatNotFound)
	require.NoError(t, s.Release(ctx, seatReq("owner", seat)))

	sc, _ := s.Screen(ctx, inventory.ScreenRef{TheaterID: "t1", ScreenNumber: 1})
	assert.Equal(t, model.SeatAvailable, sc.Seats[0].Status)
	assert.Nil(t, sc.Seats[0].BookedBy)
}

func TestHoldsOnSiblingShowtimesDoNotLoseUpdates(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()
	other := inventory.ShowtimeRef{MovieID: "m1", TheaterID: "t1", Time: showAt.Add(3 * time.Hour)}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Hold(ctx, counterReq(1, "a")))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Hold(ctx, inventory.Change{Showtime: &other, Count: 1, Holder: "b"}))
		}()
	}
	wg.Wait()

	first, _ := s.Showtime(ctx, inventory.ShowtimeRef{MovieID: "m1", TheaterID: "t1", Time: showAt})
	second, _ := s.Showtime(ctx, other)
	assert.Equal(t, 90, first.AvailableSeats)
	assert.Equal(t, 0, second.AvailableSeats)
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s := seed(t, dir)
	ctx := context.Background()
	require.NoError(t, s.Hold(ctx, counterReq(7, "a")))
	require.NoError(t, s.Hold(ctx, seatReq("a", model.SeatPosition{Row: "C", Column: 3})))
	require.NoError(t, s.Repositories().Users.Create(ctx, &model.User{ID: "u1", Email: "Ann@Example.com", PasswordHash: "hash"}))

	reopened, err := Open(dir, quietLogger())
	require.NoError(t, err)

	st, err := reopened.Showtime(ctx, inventory.ShowtimeRef{MovieID: "m1", TheaterID: "t1", Time: showAt})
	require.NoError(t, err)
	assert.Equal(t, 93, st.AvailableSeats)
	assert.True(t, st.Price.Equal(decimal.NewFromInt(12)))

	sc, err := reopened.Screen(ctx, inventory.ScreenRef{TheaterID: "t1", ScreenNumber: 1})
	require.NoError(t, err)
	require.Len(t, sc.Seats, 1)
	assert.True(t, sc.Seats[0].HeldBy("a"))

	u, err := reopened.Repositories().Users.GetByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", u.PasswordHash)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temporary files must not be left behind")
	}
	_, err = os.Stat(filepath.Join(dir, movieFile))
	assert.NoError(t, err)
}

func TestBookingCancelIsConditional(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()
	repo := s.Repositories().Bookings
	b := &model.Booking{ID: "b1", UserID: "u1", MovieID: "m1", TheaterID: "t1", Showtime: showAt,
		Seats: []model.SeatPosition{{Row: "A", Column: 1}}, Status: model.BookingConfirmed, PaymentStatus: model.PaymentPaid}
	require.NoError(t, repo.Create(ctx, b))

	var ok, conflicts atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Cancel(ctx, "b1", showAt)
			if err == nil {
				ok.Add(1)
				return
			}
			if errors.Is(err, repository.ErrConflict) {
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), ok.Load())
	assert.Equal(t, int64(4), conflicts.Load())

	got, err := repo.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
	assert.Equal(t, model.PaymentRefunded, got.PaymentStatus)

	require.NoError(t, repo.Reinstate(ctx, "b1", model.PaymentPaid, showAt))
	got, _ = repo.GetByID(ctx, "b1")
	assert.Equal(t, model.BookingConfirmed, got.Status)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)

	_, err = repo.Cancel(ctx, "missing", showAt)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDuplicates(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()
	repos := s.Repositories()

	require.NoError(t, repos.Users.Create(ctx, &model.User{ID: "u1", Email: "a@b.c"}))
	assert.ErrorIs(t, repos.Users.Create(ctx, &model.User{ID: "u2", Email: "A@B.C"}), repository.ErrEmailExists)

	err := repos.Movies.AddShowtime(ctx, "m1", &model.Showtime{ID: "s3", TheaterID: "t1", Time: showAt, Capacity: 5, AvailableSeats: 5})
	assert.ErrorIs(t, err, repository.ErrConflict)
	err = repos.Movies.AddShowtime(ctx, "nope", &model.Showtime{ID: "s4", TheaterID: "t1", Time: showAt})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAddShowtimeBindsScreenOnce(t *testing.T) {
	dir := t.TempDir()
	s := seed(t, dir)
	ctx := context.Background()
	repos := s.Repositories()
	require.NoError(t, repos.Theaters.Create(ctx, &model.Theater{
		ID: "t2", Name: "Rialto", Screens: []model.Screen{{ScreenNumber: 4, TotalSeats: 8}},
	}))
	four := 4
	first := &model.Showtime{ID: "s5", TheaterID: "t2", ScreenNumber: &four, Time: showAt, Capacity: 8, AvailableSeats: 8}
	require.NoError(t, repos.Movies.AddShowtime(ctx, "m1", first))

	second := &model.Showtime{ID: "s6", TheaterID: "t2", ScreenNumber: &four, Time: showAt.Add(4 * time.Hour), Capacity: 8, AvailableSeats: 8}
	assert.ErrorIs(t, repos.Movies.AddShowtime(ctx, "m1", second), repository.ErrScreenInUse)
	m, _ := repos.Movies.GetByID(ctx, "m1")
	assert.Equal(t, -1, m.FindShowtime("t2", second.Time), "a refused showtime must not be added")

	reopened, err := Open(dir, quietLogger())
	require.NoError(t, err)
	sc, err := reopened.Screen(ctx, inventory.ScreenRef{TheaterID: "t2", ScreenNumber: 4})
	require.NoError(t, err)
	require.NotNil(t, sc.Showtime)
	assert.Equal(t, "m1", sc.Showtime.MovieID)
	assert.True(t, sc.Showtime.Time.Equal(showAt))
}

func TestAddShowtimeRefusesScreenWithBookedSeats(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()
	require.NoError(t, s.Hold(ctx, seatReq("walk-in", model.SeatPosition{Row: "A", Column: 9})))

	one := 1
	err := s.Repositories().Movies.AddShowtime(ctx, "m1", &model.Showtime{ID: "s7", TheaterID: "t1", ScreenNumber: &one, Time: showAt.Add(6 * time.Hour), Capacity: 5, AvailableSeats: 5})
	assert.ErrorIs(t, err, repository.ErrScreenInUse)
}

func TestBoundScreenMovesSeatsWithCounter(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()
	require.NoError(t, s.Repositories().Theaters.Create(ctx, &model.Theater{
		ID: "t3", Name: "Roxy", Screens: []model.Screen{{ScreenNumber: 1, TotalSeats: 6}},
	}))
	one := 1
	at := showAt.Add(24 * time.Hour)
	require.NoError(t, s.Repositories().Movies.AddShowtime(ctx, "m1", &model.Showtime{ID: "s8", TheaterID: "t3", ScreenNumber: &one, Time: at, Capacity: 6, AvailableSeats: 6}))

	screen := inventory.ScreenRef{TheaterID: "t3", ScreenNumber: 1}
	showtime := inventory.ShowtimeRef{MovieID: "m1", TheaterID: "t3", Time: at}
	seat := []model.SeatPosition{{Row: "A", Column: 1}}

	err := s.Hold(ctx, inventory.Change{Screen: &screen, Seats: seat, Count: 1, Holder: "u1", At: at})
	assert.ErrorIs(t, err, inventory.ErrScreenBound)

	booked := inventory.Change{Screen: &screen, Showtime: &showtime, Seats: seat, Count: 1, Holder: "u1", Ref: "b1", At: at}
	require.NoError(t, s.Hold(ctx, booked))

	direct := booked
	direct.Ref = ""
	assert.ErrorIs(t, s.Release(ctx, direct), inventory.ErrSeatOwnedByBooking)
	st, _ := s.Showtime(ctx, showtime)
	assert.Equal(t, 5, st.AvailableSeats)

	require.NoError(t, s.Release(ctx, booked))
	st, _ = s.Showtime(ctx, showtime)
	assert.Equal(t, 6, st.AvailableSeats)
	sc, _ := s.Screen(ctx, screen)
	assert.NotNil(t, sc.Showtime, "seat writes must keep the binding")
}

func TestMovieUpdateAndDelete(t *testing.T) {
	dir := t.TempDir()
	s := seed(t, dir)
	ctx := context.Background()
	repos := s.Repositories()
	require.NoError(t, repos.Theaters.Create(ctx, &model.Theater{
		ID: "t4", Name: "Plaza", Screens: []model.Screen{{ScreenNumber: 2, TotalSeats: 4}},
	}))
	two := 2
	require.NoError(t, repos.Movies.AddShowtime(ctx, "m1", &model.Showtime{ID: "s9", TheaterID: "t4", ScreenNumber: &two, Time: showAt, Capacity: 4, AvailableSeats: 4}))
	require.NoError(t, s.Hold(ctx, counterReq(5, "a")))

	update := model.Movie{ID: "m1", Title: "Heat (4K)", Duration: 171, Genre: []string{"crime"}, Rating: 8.3, UpdatedAt: showAt}
	require.NoError(t, repos.Movies.Update(ctx, &update))
	m, err := repos.Movies.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Heat (4K)", m.Title)
	assert.Equal(t, []string{"crime"}, m.Genre)
	require.Len(t, m.Showtimes, 3, "update must keep the schedule")
	assert.Equal(t, 95, m.Showtimes[0].AvailableSeats)
	assert.ErrorIs(t, repos.Movies.Update(ctx, &model.Movie{ID: "nope"}), repository.ErrNotFound)

	require.NoError(t, repos.Movies.Delete(ctx, "m1"))
	assert.ErrorIs(t, repos.Movies.Delete(ctx, "m1"), repository.ErrNotFound)

	reopened, err := Open(dir, quietLogger())
	require.NoError(t, err)
	_, err = reopened.Repositories().Movies.GetByID(ctx, "m1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	sc, err := reopened.Screen(ctx, inventory.ScreenRef{TheaterID: "t4", ScreenNumber: 2})
	require.NoError(t, err)
	assert.Nil(t, sc.Showtime, "deleting the movie frees its screens")
}

func TestCountConfirmed(t *testing.T) {
	s := seed(t, t.TempDir())
	ctx := context.Background()
	repo := s.Repositories().Bookings
	for _, id := range []string{"b1", "b2", "b3"} {
		require.NoError(t, repo.Create(ctx, &model.Booking{ID: id, UserID: "u1", MovieID: "m1", TheaterID: "t1", Showtime: showAt, Status: model.BookingConfirmed}))
	}
	require.NoError(t, repo.Create(ctx, &model.Booking{ID: "b4", UserID: "u1", MovieID: "m2", TheaterID: "t1", Showtime: showAt, Status: model.BookingConfirmed}))
	_, err := repo.Cancel(ctx, "b2", showAt)
	require.NoError(t, err)

	n, err := repo.CountConfirmed(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
