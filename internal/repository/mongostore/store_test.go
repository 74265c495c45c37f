package mongostore

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/iliyamo/movie-ticket-booking/internal/database"
	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

var testStore *Store

func TestMain(m *testing.M) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		// integration tests need a running MongoDB
		os.Exit(0)
	}
	db, err := database.OpenMongo(uri, "booking_test_"+uuid.NewString()[:8])
	if err != nil {
		panic(err)
	}
	testStore, err = New(context.Background(), db)
	if err != nil {
		panic(err)
	}
	code := m.Run()
	_ = db.Drop(context.Background())
	_ = db.Client().Disconnect(context.Background())
	os.Exit(code)
}

func seedMovie(t *testing.T, capacity int) (string, time.Time) {
	t.Helper()
	at := model.NormalizeTime(time.Now().Add(72 * time.Hour))
	m := &model.Movie{
		ID: uuid.NewString(), Title: "Alien", Duration: 117,
		Showtimes: []model.Showtime{{ID: uuid.NewString(), TheaterID: "t1", Time: at, Price: decimal.RequireFromString("9.99"), Capacity: capacity, AvailableSeats: capacity}},
	}
	require.NoError(t, testStore.Repositories().Movies.Create(context.Background(), m))
	return m.ID, at
}

func seedTheater(t *testing.T) string {
	t.Helper()
	th := &model.Theater{ID: uuid.NewString(), Name: "Rex", Screens: []model.Screen{{ScreenNumber: 1, TotalSeats: 20}}}
	require.NoError(t, testStore.Repositories().Theaters.Create(context.Background(), th))
	return th.ID
}

func TestMongoConcurrentCounterHolds(t *testing.T) {
	movieID, at := seedMovie(t, 20)
	ref := inventory.ShowtimeRef{MovieID: movieID, TheaterID: "t1", Time: at}
	ctx := context.Background()

	var taken atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := testStore.Hold(ctx, inventory.Change{Showtime: &ref, Count: 3, Holder: "u"}); err == nil {
				taken.Add(3)
			} else {
				assert.ErrorIs(t, err, inventory.ErrInsufficientInventory)
			}
		}()
	}
	wg.Wait()

	st, err := testStore.Showtime(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 20-int(taken.Load()), st.AvailableSeats)
	assert.Equal(t, int64(18), taken.Load())
	assert.True(t, st.Price.Equal(decimal.RequireFromString("9.99")))

	require.NoError(t, testStore.Release(ctx, inventory.Change{Showtime: &ref, Count: 50, Holder: "u"}))
	st, _ = testStore.Showtime(ctx, ref)
	assert.Equal(t, 20, st.AvailableSeats)
}

func TestMongoSeatConflict(t *testing.T) {
	theaterID := seedTheater(t)
	ref := inventory.ScreenRef{TheaterID: theaterID, ScreenNumber: 1}
	seat := []model.SeatPosition{{Row: "A", Column: 1}}
	ctx := context.Background()

	var wins atomic.Int64
	var wg sync.WaitGroup
	for _, u := range []string{"x", "y", "z", "w"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			err := testStore.Hold(ctx, inventory.Change{Screen: &ref, Seats: seat, Count: 1, Holder: u, At: time.Now()})
			if err == nil {
				wins.Add(1)
				return
			}
			var conflict *inventory.SeatConflictError
			assert.True(t, errors.As(err, &conflict) || errors.Is(err, inventory.ErrContention), err)
		}(u)
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins.Load())
}

func TestMongoCombinedHoldUndoesSeatsWhenCounterFails(t *testing.T) {
	movieID, at := seedMovie(t, 1)
	theaterID := seedTheater(t)
	ctx := context.Background()
	st := inventory.ShowtimeRef{MovieID: movieID, TheaterID: "t1", Time: at}
	sc := inventory.ScreenRef{TheaterID: theaterID, ScreenNumber: 1}

	err := testStore.Hold(ctx, inventory.Change{Showtime: &st, Screen: &sc,
		Seats: []model.SeatPosition{{Row: "B", Column: 1}, {Row: "B", Column: 2}}, Count: 2, Holder: "u1", At: time.Now()})
	assert.ErrorIs(t, err, inventory.ErrInsufficientInventory)

	screen, err := testStore.Screen(ctx, sc)
	require.NoError(t, err)
	assert.Empty(t, inventory.Unavailable(screen, []model.SeatPosition{{Row: "B", Column: 1}, {Row: "B", Column: 2}}))
}

func TestMongoBookingTransitions(t *testing.T) {
	ctx := context.Background()
	repo := testStore.Repositories().Bookings
	b := &model.Booking{ID: uuid.NewString(), UserID: "u1", MovieID: "m", TheaterID: "t", Showtime: time.Now(),
		Seats: []model.SeatPosition{{Row: "A", Column: 1}}, TotalAmount: decimal.NewFromInt(10),
		Status: model.BookingConfirmed, PaymentStatus: model.PaymentPending, CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, b))

	got, err := repo.Cancel(ctx, b.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)

	_, err = repo.Cancel(ctx, b.ID, time.Now())
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = repo.Cancel(ctx, "nope", time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMongoReleaseRestoresSeatsWhenCounterFails(t *testing.T) {
	theaterID := seedTheater(t)
	ctx := context.Background()
	sc := inventory.ScreenRef{TheaterID: theaterID, ScreenNumber: 1}
	seats := []model.SeatPosition{{Row: "E", Column: 1}, {Row: "E", Column: 2}}
	require.NoError(t, testStore.Hold(ctx, inventory.Change{Screen: &sc, Seats: seats, Count: 2, Holder: "u1", At: time.Now()}))

	// the counter step fails because the showtime does not exist
	gone := inventory.ShowtimeRef{MovieID: uuid.NewString(), TheaterID: theaterID, Time: time.Now()}
	err := testStore.Release(ctx, inventory.Change{Screen: &sc, Showtime: &gone, Seats: seats, Count: 2, Holder: "u1", At: time.Now()})
	assert.ErrorIs(t, err, inventory.ErrShowtimeNotFound)

	screen, err := testStore.Screen(ctx, sc)
	require.NoError(t, err)
	assert.Len(t, inventory.Unavailable(screen, seats), 2, "seats must stay with the holder")
	for _, s := range screen.Seats {
		assert.True(t, s.HeldBy("u1"))
	}
}

func TestMongoSeatWriteOnDocumentWithoutVersion(t *testing.T) {
	ctx := context.Background()
	id := uuid.NewString()
	_, err := testStore.theaters.InsertOne(ctx, bson.M{
		"_id": id, "name": "Legacy", "amenities": bson.A{},
		"screens": bson.A{bson.M{"screenNumber": 1, "totalSeats": 5, "seats": bson.A{}}},
	})
	require.NoError(t, err)

	sc := inventory.ScreenRef{TheaterID: id, ScreenNumber: 1}
	seat := []model.SeatPosition{{Row: "A", Column: 1}}
	require.NoError(t, testStore.Hold(ctx, inventory.Change{Screen: &sc, Seats: seat, Count: 1, Holder: "u1", At: time.Now()}))

	screen, err := testStore.Screen(ctx, sc)
	require.NoError(t, err)
	require.Len(t, screen.Seats, 1)
	assert.True(t, screen.Seats[0].HeldBy("u1"))
}

func TestMongoScreenBindingAndMovieDelete(t *testing.T) {
	ctx := context.Background()
	repos := testStore.Repositories()
	theaterID := seedTheater(t)
	movieID, _ := seedMovie(t, 10)
	one := 1
	at := model.NormalizeTime(time.Now().Add(96 * time.Hour))

	require.NoError(t, repos.Movies.AddShowtime(ctx, movieID, &model.Showtime{ID: uuid.NewString(), TheaterID: theaterID, ScreenNumber: &one, Time: at, Capacity: 20, AvailableSeats: 20}))
	err := repos.Movies.AddShowtime(ctx, movieID, &model.Showtime{ID: uuid.NewString(), TheaterID: theaterID, ScreenNumber: &one, Time: at.Add(3 * time.Hour), Capacity: 20, AvailableSeats: 20})
	assert.ErrorIs(t, err, repository.ErrScreenInUse)

	sc := inventory.ScreenRef{TheaterID: theaterID, ScreenNumber: 1}
	err = testStore.Hold(ctx, inventory.Change{Screen: &sc, Seats: []model.SeatPosition{{Row: "A", Column: 1}}, Count: 1, Holder: "u1", At: time.Now()})
	assert.ErrorIs(t, err, inventory.ErrScreenBound)

	require.NoError(t, repos.Movies.Delete(ctx, movieID))
	assert.ErrorIs(t, repos.Movies.Delete(ctx, movieID), repository.ErrNotFound)
	screen, err := testStore.Screen(ctx, sc)
	require.NoError(t, err)
	assert.Nil(t, screen.Showtime)
}
