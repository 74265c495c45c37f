package router_test

import (
    "bytes"
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/movie-ticket-booking/internal/config"
    "github.com/iliyamo/movie-ticket-booking/internal/handler"
    "github.com/iliyamo/movie-ticket-booking/internal/inventory"
    "github.com/iliyamo/movie-ticket-booking/internal/middleware"
    "github.com/iliyamo/movie-ticket-booking/internal/repository/filestore"
    "github.com/iliyamo/movie-ticket-booking/internal/router"
    "github.com/iliyamo/movie-ticket-booking/internal/service"
)

type api struct {
    t *testing.T
    e *echo.Echo
}

func newAPI(t *testing.T) *api {
    t.Helper()
    log := logrus.New()
    log.SetOutput(io.Discard)

    fs, err := filestore.Open(t.TempDir(), log)
    require.NoError(t, err)
    repos := fs.Repositories()
    cfg := config.Config{JWTSecret: "test-secret", AccessTTLMin: 5, BcryptCost: 4, AllowAdminSignup: true}

    inv := inventory.NewManager(repos.Inventory, inventory.WithLogger(log))
    bookings := service.NewBookingService(repos, inv, service.WithLogger(log))
    catalog := service.NewCatalogService(repos, log)
    seats := service.NewSeatService(repos.Theaters, inv)

    e := router.New(router.Deps{
        Cfg:       cfg,
        Log:       log,
        Ping:      repos.Ping,
        Auth:      handler.NewAuthHandler(cfg, repos.Users, log),
        Catalog:   handler.NewCatalogHandler(catalog, log),
        Bookings:  handler.NewBookingHandler(bookings, log),
        Screens:   handler.NewScreenHandler(seats, log),
        RateLimit: config.RateLimitConfig{Enabled: false},
        Limiter:   middleware.NewLocalLimiter(config.RateLimitConfig{}),
    })
    return &api{t: t, e: e}
}

func (a *api) call(method, path, token string, body any) (int, map[string]any, []byte) {
    a.t.Helper()
    var rd io.Reader
    if body != nil {
        bs, err := json.Marshal(body)
        require.NoError(a.t, err)
        rd = bytes.NewReader(bs)
    }
    req := httptest.NewRequest(method, path, rd)
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    if token != "" {
        req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    a.e.ServeHTTP(rec, req)

    var obj map[string]any
    _ = json.Unmarshal(rec.Body.Bytes(), &obj)
    return rec.Code, obj, rec.Body.Bytes()
}

func (a *api) register(name, role string) string {
    a.t.Helper()
    code, body, raw := a.call(http.MethodPost, "/users/register", "", map[string]any{
        "name": name, "email": name + "@example.com", "password": "password123", "role": role,
    })
    require.Equal(a.t, http.StatusCreated, code, string(raw))
    return body["access"].(map[string]any)["token"].(string)
}

type catalogIDs struct {
    movieID, theaterID string
    showtime           time.Time
}

func (a *api) seed(admin string) catalogIDs {
    a.t.Helper()
    code, theater, raw := a.call(http.MethodPost, "/theaters", admin, map[string]any{
        "name":    "Rialto",
        "screens": []map[string]any{{"screenNumber": 1, "totalSeats": 10}},
    })
    require.Equal(a.t, http.StatusCreated, code, string(raw))
    code, movie, raw := a.call(http.MethodPost, "/movies", admin, map[string]any{
        "title": "Alien", "duration": 117, "rating": 8.5,
    })
    require.Equal(a.t, http.StatusCreated, code, string(raw))

    at := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Minute)
    code, _, raw = a.call(http.MethodPost, "/movies/"+movie["id"].(string)+"/showtimes", admin, map[string]any{
        "theaterId": theater["id"], "time": at, "price": "12.50", "capacity": 10,
    })
    require.Equal(a.t, http.StatusCreated, code, string(raw))
    return catalogIDs{movieID: movie["id"].(string), theaterID: theater["id"].(string), showtime: at}
}

func TestBookingFlow(t *testing.T) {
    a := newAPI(t)
    admin := a.register("ada", "ADMIN")
    alice := a.register("alice", "")
    bob := a.register("bob", "")
    ids := a.seed(admin)

    book := func(token string, seats ...string) (int, map[string]any) {
        code, body, _ := a.call(http.MethodPost, "/bookings", token, map[string]any{
            "movieId": ids.movieID, "theaterId": ids.theaterID, "showtime": ids.showtime,
            "seats": seats, "totalAmount": "25.00",
        })
        return code, body
    }

    code, booking := book(alice, "A1", "A2", "A3", "A4", "A5", "A6")
    require.Equal(t, http.StatusCreated, code)
    assert.Equal(t, "confirmed", booking["status"])
    id := booking["id"].(string)

    code, body := book(bob, "B1", "B2", "B3", "B4", "B5")
    assert.Equal(t, http.StatusBadRequest, code)
    assert.Equal(t, inventory.ErrInsufficientInventory.Error(), body["message"])

    code, body, _ = a.call(http.MethodGet, "/bookings/"+id, bob, nil)
    assert.Equal(t, http.StatusForbidden, code)
    assert.Equal(t, service.ErrForbidden.Error(), body["message"])

    code, _, raw := a.call(http.MethodGet, "/bookings/my-bookings", alice, nil)
    require.Equal(t, http.StatusOK, code)
    var mine []map[string]any
    require.NoError(t, json.Unmarshal(raw, &mine))
    require.Len(t, mine, 1)
    assert.Equal(t, "Alien", mine[0]["movie"].(map[string]any)["title"])

    code, body, _ = a.call(http.MethodPut, "/bookings/"+id+"/cancel", alice, nil)
    require.Equal(t, http.StatusOK, code)
    assert.Equal(t, "cancelled", body["status"])

    code, body, _ = a.call(http.MethodPut, "/bookings/"+id+"/cancel", alice, nil)
    assert.Equal(t, http.StatusBadRequest, code)
    assert.Equal(t, service.ErrAlreadyCancelled.Error(), body["message"])

    code, body, _ = a.call(http.MethodGet, "/movies/"+ids.movieID+"/availability?theaterId="+ids.theaterID+
        "&showtime="+ids.showtime.Format(time.RFC3339)+"&count=10", "", nil)
    require.Equal(t, http.StatusOK, code)
    assert.Equal(t, true, body["fits"])
    assert.EqualValues(t, 10, body["availableSeats"])
}

func TestScreenSeatFlow(t *testing.T) {
    a := newAPI(t)
    admin := a.register("ada", "ADMIN")
    alice := a.register("alice", "")
    bob := a.register("bob", "")
    ids := a.seed(admin)
    base := "/theaters/" + ids.theaterID + "/screens/1"

    code, body, _ := a.call(http.MethodPost, base+"/book", alice, map[string]any{"seats": []string{"A1", "A2"}})
    require.Equal(t, http.StatusOK, code)
    assert.Equal(t, true, body["success"])
    assert.Equal(t, "Seats booked successfully", body["message"])

    code, body, _ = a.call(http.MethodPost, base+"/book", bob, map[string]any{"seats": []string{"A2", "A3"}})
    assert.Equal(t, http.StatusBadRequest, code)
    assert.Equal(t, []any{"A2"}, body["unavailable"])

    code, _, _ = a.call(http.MethodPost, base+"/cancel", bob, map[string]any{"seat": "A1"})
    assert.Equal(t, http.StatusForbidden, code)

    code, body, _ = a.call(http.MethodPost, base+"/cancel", alice, map[string]any{"seat": "A1"})
    require.Equal(t, http.StatusOK, code)
    assert.Equal(t, "Booking cancelled successfully", body["message"])

    code, _, raw := a.call(http.MethodGet, base+"/seats", "", nil)
    require.Equal(t, http.StatusOK, code)
    var seats []map[string]any
    require.NoError(t, json.Unmarshal(raw, &seats))
    booked := 0
    for _, s := range seats {
        if s["status"] == "booked" {
            booked++
        }
    }
    assert.Equal(t, 1, booked)

    code, _, _ = a.call(http.MethodGet, "/theaters/"+ids.theaterID+"/screens/9/seats", "", nil)
    assert.Equal(t, http.StatusNotFound, code)
}

func TestAuthAndAccessRules(t *testing.T) {
    a := newAPI(t)
    alice := a.register("alice", "")

    code, body, _ := a.call(http.MethodPost, "/users/register", "", map[string]any{
        "name": "Alice", "email": "alice@example.com", "password": "password123",
    })
    assert.Equal(t, http.StatusConflict, code)
    assert.Equal(t, "Email already exists", body["message"])

    code, _, _ = a.call(http.MethodPost, "/users/login", "", map[string]any{"email": "alice@example.com", "password": "wrong-pass"})
    assert.Equal(t, http.StatusUnauthorized, code)

    code, body, _ = a.call(http.MethodPost, "/users/login", "", map[string]any{"email": "ALICE@example.com", "password": "password123"})
    require.Equal(t, http.StatusOK, code)
    assert.Equal(t, "CUSTOMER", body["user"].(map[string]any)["role"])

    code, body, _ = a.call(http.MethodPost, "/users/register", "", map[string]any{"name": "x", "email": "not-an-email", "password": "password123"})
    assert.Equal(t, http.StatusBadRequest, code)
    assert.Equal(t, "email: must be a valid email address", body["message"])

    code, _, _ = a.call(http.MethodPost, "/movies", alice, map[string]any{"title": "Nope", "duration": 90})
    assert.Equal(t, http.StatusForbidden, code)

    code, _, _ = a.call(http.MethodPost, "/bookings", "", map[string]any{})
    assert.Equal(t, http.StatusUnauthorized, code)

    code, body, _ = a.call(http.MethodGet, "/movies/missing", "", nil)
    assert.Equal(t, http.StatusNotFound, code)
    assert.Equal(t, service.ErrMovieNotFound.Error(), body["message"])

    code, _, raw := a.call(http.MethodGet, "/healthz", "", nil)
    assert.Equal(t, http.StatusOK, code)
    assert.Equal(t, "ok", string(raw))
}

func (a *api) boundShowtime(admin string, ids catalogIDs, at time.Time) (int, []byte) {
    a.t.Helper()
    code, _, raw := a.call(http.MethodPost, "/movies/"+ids.movieID+"/showtimes", admin, map[string]any{
        "theaterId": ids.theaterID, "screenNumber": 1, "time": at, "price": "9.00",
    })
    return code, raw
}

func (a *api) available(ids catalogIDs, at time.Time) float64 {
    a.t.Helper()
    code, body, raw := a.call(http.MethodGet, "/movies/"+ids.movieID+"/availability?theaterId="+ids.theaterID+
        "&showtime="+at.Format(time.RFC3339)+"&count=1", "", nil)
    require.Equal(a.t, http.StatusOK, code, string(raw))
    return body["availableSeats"].(float64)
}

func TestScreenEndpointsCannotUndoBookings(t *testing.T) {
    a := newAPI(t)
    admin := a.register("ada", "ADMIN")
    alice := a.register("alice", "")
    bob := a.register("bob", "")
    ids := a.seed(admin)
    at := ids.showtime.Add(24 * time.Hour)
    code, raw := a.boundShowtime(admin, ids, at)
    require.Equal(t, http.StatusCreated, code, string(raw))
    base := "/theaters/" + ids.theaterID + "/screens/1"

    code, booking, raw := a.call(http.MethodPost, "/bookings", alice, map[string]any{
        "movieId": ids.movieID, "theaterId": ids.theaterID, "showtime": at, "seats": []string{"A1", "A2"}, "totalAmount": "18.00",
    })
    require.Equal(t, http.StatusCreated, code, string(raw))
    id := booking["id"].(string)
    assert.EqualValues(t, 8, a.available(ids, at))

    // the booking's seats cannot be freed behind its back
    code, body, _ := a.call(http.MethodPost, base+"/cancel", alice, map[string]any{"seat": "A1"})
    assert.Equal(t, http.StatusConflict, code)
    assert.Contains(t, body["message"], inventory.ErrSeatOwnedByBooking.Error())
    assert.EqualValues(t, 8, a.available(ids, at))

    code, _, _ = a.call(http.MethodPost, base+"/book", bob, map[string]any{"seats": []string{"A1"}})
    assert.Equal(t, http.StatusBadRequest, code)

    // direct bookings on the bound screen move the counter too
    code, _, _ = a.call(http.MethodPost, base+"/book", bob, map[string]any{"seats": []string{"B1"}})
    require.Equal(t, http.StatusOK, code)
    assert.EqualValues(t, 7, a.available(ids, at))

    code, body, _ = a.call(http.MethodPut, "/bookings/"+id+"/cancel", alice, nil)
    require.Equal(t, http.StatusOK, code)
    assert.Equal(t, "cancelled", body["status"])
    assert.EqualValues(t, 9, a.available(ids, at))

    code, again, raw := a.call(http.MethodPost, "/bookings", bob, map[string]any{
        "movieId": ids.movieID, "theaterId": ids.theaterID, "showtime": at, "seats": []string{"A1"}, "totalAmount": "9.00",
    })
    require.Equal(t, http.StatusCreated, code, string(raw))
    assert.EqualValues(t, 8, a.available(ids, at))

    code, _, _ = a.call(http.MethodPut, "/bookings/"+again["id"].(string)+"/cancel", bob, nil)
    require.Equal(t, http.StatusOK, code)
    code, _, _ = a.call(http.MethodPost, base+"/cancel", bob, map[string]any{"seat": "B1"})
    require.Equal(t, http.StatusOK, code)
    assert.EqualValues(t, 10, a.available(ids, at))
}

func TestOneBoundShowtimePerScreen(t *testing.T) {
    a := newAPI(t)
    admin := a.register("ada", "ADMIN")
    ids := a.seed(admin)

    code, raw := a.boundShowtime(admin, ids, ids.showtime.Add(24*time.Hour))
    require.Equal(t, http.StatusCreated, code, string(raw))

    code, raw = a.boundShowtime(admin, ids, ids.showtime.Add(48*time.Hour))
    assert.Equal(t, http.StatusConflict, code, string(raw))

    code, body, _ := a.call(http.MethodGet, "/theaters/"+ids.theaterID, "", nil)
    require.Equal(t, http.StatusOK, code)
    screen := body["screens"].([]any)[0].(map[string]any)
    assert.Equal(t, ids.movieID, screen["showtime"].(map[string]any)["movieId"])
}

func TestAdminMovieUpdateAndDelete(t *testing.T) {
    a := newAPI(t)
    admin := a.register("ada", "ADMIN")
    alice := a.register("alice", "")
    ids := a.seed(admin)
    path := "/movies/" + ids.movieID

    code, _, _ := a.call(http.MethodPut, path, alice, map[string]any{"title": "Mine"})
    assert.Equal(t, http.StatusForbidden, code)
    code, _, _ = a.call(http.MethodDelete, path, alice, nil)
    assert.Equal(t, http.StatusForbidden, code)

    code, body, raw := a.call(http.MethodPut, path, admin, map[string]any{"title": "Aliens", "rating": 8.4})
    require.Equal(t, http.StatusOK, code, string(raw))
    assert.Equal(t, "Aliens", body["title"])
    assert.EqualValues(t, 117, body["duration"])
    assert.Len(t, body["showtimes"], 1)

    code, _, _ = a.call(http.MethodPut, path, admin, map[string]any{"rating": 11})
    assert.Equal(t, http.StatusBadRequest, code)
    code, _, _ = a.call(http.MethodPut, "/movies/missing", admin, map[string]any{"title": "x"})
    assert.Equal(t, http.StatusNotFound, code)

    code, booking, raw := a.call(http.MethodPost, "/bookings", alice, map[string]any{
        "movieId": ids.movieID, "theaterId": ids.theaterID, "showtime": ids.showtime, "seats": []string{"C3"}, "totalAmount": "12.50",
    })
    require.Equal(t, http.StatusCreated, code, string(raw))

    code, body, _ = a.call(http.MethodDelete, path, admin, nil)
    assert.Equal(t, http.StatusConflict, code)
    assert.Contains(t, body["message"], service.ErrMovieHasBookings.Error())

    code, _, _ = a.call(http.MethodPut, "/bookings/"+booking["id"].(string)+"/cancel", alice, nil)
    require.Equal(t, http.StatusOK, code)

    code, body, _ = a.call(http.MethodDelete, path, admin, nil)
    require.Equal(t, http.StatusOK, code)
    assert.Equal(t, "Movie deleted successfully", body["message"])
    code, _, _ = a.call(http.MethodGet, path, "", nil)
    assert.Equal(t, http.StatusNotFound, code)
    code, _, _ = a.call(http.MethodDelete, path, admin, nil)
    assert.Equal(t, http.StatusNotFound, code)
}
