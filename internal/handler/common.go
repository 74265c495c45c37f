package handler

import (
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/movie-ticket-booking/internal/middleware"
    "github.com/iliyamo/movie-ticket-booking/internal/model"
    "github.com/iliyamo/movie-ticket-booking/internal/service"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 10 * time.Second

// getUserID returns the authenticated caller.  Routes using it sit behind
// JWTAuth, so a missing id only happens on misconfigured routes.
func getUserID(c echo.Context) (string, error) {
    id, ok := middleware.UserID(c)
    if !ok {
        return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
    }
    return id, nil
}

// screenParam parses the :n path parameter.
func screenParam(c echo.Context) (int, error) {
    n, err := strconv.Atoi(c.Param("n"))
    if err != nil || n <= 0 {
        return 0, &service.ValidationError{Field: "screenNumber", Message: "must be a positive integer"}
    }
    return n, nil
}

// parseSeatList parses "A1,A2,3-5" style query values.
func parseSeatList(raw string) ([]model.SeatPosition, error) {
    if strings.TrimSpace(raw) == "" {
        return nil, nil
    }
    parts := strings.Split(raw, ",")
    seats := make([]model.SeatPosition, 0, len(parts))
    for _, p := range parts {
        s, err := model.ParseSeatLabel(p)
        if err != nil {
            return nil, &service.ValidationError{Field: "seats", Message: err.Error()}
        }
        seats = append(seats, s)
    }
    return seats, nil
}
