package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/movie-ticket-booking/internal/inventory"
    "github.com/iliyamo/movie-ticket-booking/internal/repository"
    "github.com/iliyamo/movie-ticket-booking/internal/service"
)

// statusFor maps domain errors to HTTP statuses.  Anything unknown is a
// storage failure.
func statusFor(err error) int {
    var verr *service.ValidationError
    switch {
    case errors.As(err, &verr),
        errors.Is(err, inventory.ErrInvalidRequest),
        errors.Is(err, inventory.ErrSeatOutOfRange),
        errors.Is(err, inventory.ErrSeatConflict),
        errors.Is(err, inventory.ErrInsufficientInventory),
        errors.Is(err, service.ErrAlreadyCancelled),
        errors.Is(err, service.ErrCancellationWindowClosed):
        return http.StatusBadRequest
    case errors.Is(err, service.ErrMovieNotFound),
        errors.Is(err, service.ErrShowtimeNotFound),
        errors.Is(err, service.ErrTheaterNotFound),
        errors.Is(err, service.ErrScreenNotFound),
        errors.Is(err, service.ErrBookingNotFound),
        errors.Is(err, service.ErrSeatNotFound),
        errors.Is(err, inventory.ErrShowtimeNotFound),
        errors.Is(err, inventory.ErrScreenNotFound),
        errors.Is(err, inventory.ErrSeatNotFound),
        errors.Is(err, repository.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, service.ErrForbidden),
        errors.Is(err, inventory.ErrNotHeld):
        return http.StatusForbidden
    case errors.Is(err, service.ErrShowtimeExists),
        errors.Is(err, service.ErrScreenInUse),
        errors.Is(err, service.ErrMovieHasBookings),
        errors.Is(err, inventory.ErrScreenBound),
        errors.Is(err, inventory.ErrSeatOwnedByBooking),
        errors.Is(err, repository.ErrEmailExists),
        errors.Is(err, repository.ErrConflict):
        return http.StatusConflict
    case errors.Is(err, inventory.ErrContention):
        return http.StatusServiceUnavailable
    }
    return http.StatusInternalServerError
}

// respondError writes the JSON body for err.  Server errors are logged
// and answered with a generic message.
func respondError(c echo.Context, log logrus.FieldLogger, err error) error {
    status := statusFor(err)
    if status == http.StatusInternalServerError {
        log.WithError(err).WithFields(logrus.Fields{
            "method": c.Request().Method,
            "path":   c.Path(),
        }).Error("request failed")
        return c.JSON(status, echo.Map{"message": "server error"})
    }
    if status == http.StatusServiceUnavailable {
        c.Response().Header().Set("Retry-After", "1")
    }

    body := echo.Map{"message": err.Error()}
    var conflict *inventory.SeatConflictError
    if errors.As(err, &conflict) {
        body["message"] = inventory.ErrSeatConflict.Error()
        labels := make([]string, len(conflict.Seats))
        for i, s := range conflict.Seats {
            labels[i] = s.Label()
        }
        body["unavailable"] = labels
    }
    return c.JSON(status, body)
}
