package handler

import (
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/movie-ticket-booking/internal/service"
)

// BookingHandler exposes the booking lifecycle to customers.
type BookingHandler struct {
    Bookings *service.BookingService
    Log      logrus.FieldLogger
}

func NewBookingHandler(b *service.BookingService, log logrus.FieldLogger) *BookingHandler {
    return &BookingHandler{Bookings: b, Log: log}
}

// Create books seats for the caller and answers 201 with the booking.
func (h *BookingHandler) Create(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return err
    }
    var in service.CreateBookingInput
    if err := bind(c, &in); err != nil {
        return respondError(c, h.Log, err)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    b, err := h.Bookings.CreateBooking(ctx, userID, in)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, b)
}

// Mine lists the caller's bookings, newest first, with movie and theater
// summaries attached.
func (h *BookingHandler) Mine(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return err
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    list, err := h.Bookings.ListUserBookings(ctx, userID)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, list)
}

func (h *BookingHandler) Get(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return err
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    b, err := h.Bookings.GetBooking(ctx, c.Param("id"), userID)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, b)
}

// Cancel cancels the caller's booking and returns it in its new state.
func (h *BookingHandler) Cancel(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return err
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    b, err := h.Bookings.CancelBooking(ctx, c.Param("id"), userID)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, b)
}

// Availability answers GET /movies/:id/availability?theaterId=&showtime=
// with either seats=A1,A2 or count=N.  Nothing is held.
func (h *BookingHandler) Availability(c echo.Context) error {
    theaterID := c.QueryParam("theaterId")
    if theaterID == "" {
        return respondError(c, h.Log, &service.ValidationError{Field: "theaterId", Message: "is required"})
    }
    at, err := time.Parse(time.RFC3339, c.QueryParam("showtime"))
    if err != nil {
        return respondError(c, h.Log, &service.ValidationError{Field: "showtime", Message: "must be an RFC 3339 timestamp"})
    }
    seats, err := parseSeatList(c.QueryParam("seats"))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    count := len(seats)
    if raw := c.QueryParam("count"); raw != "" && len(seats) == 0 {
        if count, err = strconv.Atoi(raw); err != nil || count <= 0 {
            return respondError(c, h.Log, &service.ValidationError{Field: "count", Message: "must be a positive integer"})
        }
    }
    if count == 0 {
        count = 1
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    avail, err := h.Bookings.CheckAvailability(ctx, c.Param("id"), theaterID, at, seats, count)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, avail)
}
