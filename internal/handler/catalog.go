package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/movie-ticket-booking/internal/model"
    "github.com/iliyamo/movie-ticket-booking/internal/service"
)

// CatalogHandler serves movies and theaters.  Reads are public, writes
// are mounted behind the ADMIN role.
type CatalogHandler struct {
    Catalog *service.CatalogService
    Log     logrus.FieldLogger
}

func NewCatalogHandler(s *service.CatalogService, log logrus.FieldLogger) *CatalogHandler {
    return &CatalogHandler{Catalog: s, Log: log}
}

func (h *CatalogHandler) ListMovies(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()
    movies, err := h.Catalog.ListMovies(ctx)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    if movies == nil {
        movies = []model.Movie{}
    }
    return c.JSON(http.StatusOK, movies)
}

func (h *CatalogHandler) GetMovie(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()
    m, err := h.Catalog.GetMovie(ctx, c.Param("id"))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, m)
}

func (h *CatalogHandler) CreateMovie(c echo.Context) error {
    var in service.CreateMovieInput
    if err := bind(c, &in); err != nil {
        return respondError(c, h.Log, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()
    m, err := h.Catalog.CreateMovie(ctx, in)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, m)
}

func (h *CatalogHandler) UpdateMovie(c echo.Context) error {
    var in service.UpdateMovieInput
    if err := bind(c, &in); err != nil {
        return respondError(c, h.Log, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()
    m, err := h.Catalog.UpdateMovie(ctx, c.Param("id"), in)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, m)
}

func (h *CatalogHandler) DeleteMovie(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()
    if err := h.Catalog.DeleteMovie(ctx, c.Param("id")); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Movie deleted successfully"})
}

func (h *CatalogHandler) AddShowtime(c echo.Context) error {
    var in service.AddShowtimeInput
    if err := bind(c, &in); err != nil {
        return respondError(c, h.Log, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()
    st, err := h.Catalog.AddShowtime(ctx, c.Param("id"), in)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, st)
}

func (h *CatalogHandler) ListTheaters(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()
    theaters, err := h.Catalog.ListTheaters(ctx)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    if theaters == nil {
        theaters = []model.Theater{}
    }
    return c.JSON(http.StatusOK, theaters)
}

func (h *CatalogHandler) GetTheater(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()
    t, err := h.Catalog.GetTheater(ctx, c.Param("id"))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, t)
}

func (h *CatalogHandler) CreateTheater(c echo.Context) error {
    var in service.CreateTheaterInput
    if err := bind(c, &in); err != nil {
        return respondError(c, h.Log, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()
    t, err := h.Catalog.CreateTheater(ctx, in)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, t)
}
