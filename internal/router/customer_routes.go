package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/movie-ticket-booking/internal/middleware"
    "github.com/iliyamo/movie-ticket-booking/internal/model"
)

// RegisterCustomer registers the booking endpoints.  Every route needs a
// valid JWT.  Writes are rate limited and retire cached catalog
// responses, which embed seat counts.
func RegisterCustomer(e *echo.Echo, d Deps) {
    auth := middleware.JWTAuth(d.Cfg.JWTSecret)
    anyRole := middleware.RequireRole(model.RoleCustomer, model.RoleAdmin)
    limit := middleware.RateLimit(d.RateLimit, d.Limiter)
    bust := d.Cache.Invalidate()

    g := e.Group("/bookings", auth, anyRole)
    g.POST("", d.Bookings.Create, limit, bust)
    g.GET("/my-bookings", d.Bookings.Mine)
    g.GET("/:id", d.Bookings.Get)
    g.PUT("/:id/cancel", d.Bookings.Cancel, limit, bust)

    e.POST("/theaters/:id/screens/:n/book", d.Screens.Book, auth, anyRole, limit, bust)
    e.POST("/theaters/:id/screens/:n/cancel", d.Screens.Cancel, auth, anyRole, limit, bust)
}
