package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/movie-ticket-booking/internal/middleware"
    "github.com/iliyamo/movie-ticket-booking/internal/model"
)

// RegisterAdmin registers catalog writes.  They require the ADMIN role and
// retire cached catalog responses once they succeed.
func RegisterAdmin(e *echo.Echo, d Deps) {
    mw := []echo.MiddlewareFunc{
        middleware.JWTAuth(d.Cfg.JWTSecret),
        middleware.RequireRole(model.RoleAdmin),
        d.Cache.Invalidate(),
    }
    e.POST("/movies", d.Catalog.CreateMovie, mw...)
    e.PUT("/movies/:id", d.Catalog.UpdateMovie, mw...)
    e.DELETE("/movies/:id", d.Catalog.DeleteMovie, mw...)
    e.POST("/movies/:id/showtimes", d.Catalog.AddShowtime, mw...)
    e.POST("/theaters", d.Catalog.CreateTheater, mw...)
}
