package router // package router defines how HTTP routes are registered for the API

import (
    "context"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/movie-ticket-booking/internal/config"
    "github.com/iliyamo/movie-ticket-booking/internal/handler"
    "github.com/iliyamo/movie-ticket-booking/internal/middleware"
)

// Deps carries everything the route table needs.
type Deps struct {
    Cfg       config.Config
    Log       logrus.FieldLogger
    Ping      func(ctx context.Context) error
    Auth      *handler.AuthHandler
    Catalog   *handler.CatalogHandler
    Bookings  *handler.BookingHandler
    Screens   *handler.ScreenHandler
    Cache     *middleware.Cache
    RateLimit config.RateLimitConfig
    Limiter   middleware.Limiter
}

// New builds the Echo instance with the global middleware stack and every
// route registered.
func New(d Deps) *echo.Echo {
    e := echo.New()
    e.HideBanner = true
    e.HidePort = true
    e.Validator = handler.NewValidator()
    e.Use(echomw.RequestID())
    e.Use(echomw.Recover())
    e.Use(middleware.RequestLogger(d.Log))

    RegisterRoutes(e, d)
    RegisterCustomer(e, d)
    RegisterAdmin(e, d)
    return e
}

// RegisterRoutes registers routes that do not require authentication:
// health, accounts and the cached catalog reads.
func RegisterRoutes(e *echo.Echo, d Deps) {
    e.GET("/healthz", handler.Health(d.Ping, d.Log))

    limit := middleware.RateLimit(d.RateLimit, d.Limiter)
    users := e.Group("/users")
    users.POST("/register", d.Auth.Register, limit)
    users.POST("/login", d.Auth.Login, limit)

    cached := d.Cache.Responses()
    e.GET("/movies", d.Catalog.ListMovies, cached)
    e.GET("/movies/:id", d.Catalog.GetMovie, cached)
    e.GET("/theaters", d.Catalog.ListTheaters, cached)
    e.GET("/theaters/:id", d.Catalog.GetTheater, cached)

    // seat maps change with every booking, so they are never cached
    e.GET("/theaters/:id/screens/:n/seats", d.Screens.List)
    e.GET("/movies/:id/availability", d.Bookings.Availability)
}
