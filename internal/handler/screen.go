package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/movie-ticket-booking/internal/model"
    "github.com/iliyamo/movie-ticket-booking/internal/service"
)

// ScreenHandler books and frees individual seats on a theater screen.
type ScreenHandler struct {
    Seats *service.SeatService
    Log   logrus.FieldLogger
}

func NewScreenHandler(s *service.SeatService, log logrus.FieldLogger) *ScreenHandler {
    return &ScreenHandler{Seats: s, Log: log}
}

// seatsReq accepts {"seats": [...]} or a single {"seat": ...}.
type seatsReq struct {
    Seats []model.SeatPosition `json:"seats"`
    Seat  *model.SeatPosition  `json:"seat"`
}

func (r seatsReq) positions() []model.SeatPosition {
    if len(r.Seats) == 0 && r.Seat != nil {
        return []model.SeatPosition{*r.Seat}
    }
    return r.Seats
}

// List returns the materialised seats of a screen.
func (h *ScreenHandler) List(c echo.Context) error {
    n, err := screenParam(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    seats, err := h.Seats.ScreenSeats(ctx, c.Param("id"), n)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    if seats == nil {
        seats = []model.Seat{}
    }
    return c.JSON(http.StatusOK, seats)
}

func (h *ScreenHandler) Book(c echo.Context) error {
    return h.apply(c, h.Seats.Book, "Seats booked successfully")
}

func (h *ScreenHandler) Cancel(c echo.Context) error {
    return h.apply(c, h.Seats.Cancel, "Booking cancelled successfully")
}

func (h *ScreenHandler) apply(c echo.Context, op func(context.Context, string, int, string, []model.SeatPosition) error, msg string) error {
    userID, err := getUserID(c)
    if err != nil {
        return err
    }
    n, err := screenParam(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    var req seatsReq
    if err := bind(c, &req); err != nil {
        return respondError(c, h.Log, err)
    }
    seats := req.positions()
    if len(seats) == 0 {
        return respondError(c, h.Log, &service.ValidationError{Field: "seats", Message: "at least one seat is required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    if err := op(ctx, c.Param("id"), n, userID, seats); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "message": msg})
}
