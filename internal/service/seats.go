package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// SeatService books and frees concrete seats on a screen directly.
// When the screen is bound to a showtime the request carries that
// showtime too, so the seat map and the counter move together.
type SeatService struct {
	theaters repository.TheaterRepository
	inv      *inventory.Manager
}

// NewSeatService wires the service.
func NewSeatService(theaters repository.TheaterRepository, inv *inventory.Manager) *SeatService {
	if theaters == nil || inv == nil {
		panic("nil dependency passed to NewSeatService")
	}
	return &SeatService{theaters: theaters, inv: inv}
}

// ScreenSeats returns the materialised seats of a screen.
func (s *SeatService) ScreenSeats(ctx context.Context, theaterID string, screen int) ([]model.Seat, error) {
	t, err := s.theaters.GetByID(ctx, theaterID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTheaterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load theater: %w", err)
	}
	i := t.ScreenIndex(screen)
	if i < 0 {
		return nil, ErrScreenNotFound
	}
	return t.Screens[i].Seats, nil
}

// Book marks the seats booked for userID, all or nothing.  On a screen
// bound to a showtime the showtime's counter moves with the seats.
func (s *SeatService) Book(ctx context.Context, theaterID string, screen int, userID string, seats []model.SeatPosition) error {
	req, err := s.request(ctx, theaterID, screen, userID, seats)
	if err != nil {
		return err
	}
	_, err = s.inv.Hold(ctx, req)
	return mapScreenErr(err)
}

// Cancel frees seats booked by userID, all or nothing.  Seats that
// belong to a booking are refused; the booking has to be cancelled.
func (s *SeatService) Cancel(ctx context.Context, theaterID string, screen int, userID string, seats []model.SeatPosition) error {
	req, err := s.request(ctx, theaterID, screen, userID, seats)
	if err != nil {
		return err
	}
	return mapScreenErr(s.inv.Release(ctx, req))
}

func (s *SeatService) request(ctx context.Context, theaterID string, screen int, userID string, seats []model.SeatPosition) (inventory.Request, error) {
	t, err := s.theaters.GetByID(ctx, theaterID)
	if errors.Is(err, repository.ErrNotFound) {
		return inventory.Request{}, ErrTheaterNotFound
	}
	if err != nil {
		return inventory.Request{}, fmt.Errorf("load theater: %w", err)
	}
	i := t.ScreenIndex(screen)
	if i < 0 {
		return inventory.Request{}, ErrScreenNotFound
	}
	req := inventory.Request{
		Screen: &inventory.ScreenRef{TheaterID: theaterID, ScreenNumber: screen},
		Seats:  seats,
		Holder: userID,
	}
	if b := t.Screens[i].Showtime; b != nil {
		req.Showtime = &inventory.ShowtimeRef{MovieID: b.MovieID, TheaterID: theaterID, Time: b.Time}
	}
	return req, nil
}

func mapScreenErr(err error) error {
	switch {
	case errors.Is(err, inventory.ErrScreenNotFound):
		return ErrScreenNotFound
	case errors.Is(err, inventory.ErrSeatNotFound):
		return ErrSeatNotFound
	case errors.Is(err, inventory.ErrShowtimeNotFound):
		return ErrShowtimeNotFound
	}
	return err
}
