package filestore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// Showtime returns a copy of the addressed showtime.
func (s *Store) Showtime(_ context.Context, ref inventory.ShowtimeRef) (model.Showtime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.movies[ref.MovieID]
	if !ok {
		return model.Showtime{}, inventory.ErrShowtimeNotFound
	}
	i := m.FindShowtime(ref.TheaterID, ref.Time)
	if i < 0 {
		return model.Showtime{}, inventory.ErrShowtimeNotFound
	}
	return m.Showtimes[i].Clone(), nil
}

// Screen returns a copy of the addressed screen with its seats.
func (s *Store) Screen(_ context.Context, ref inventory.ScreenRef) (model.Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.theaters[ref.TheaterID]
	if !ok {
		return model.Screen{}, inventory.ErrScreenNotFound
	}
	i := t.ScreenIndex(ref.ScreenNumber)
	if i < 0 {
		return model.Screen{}, inventory.ErrScreenNotFound
	}
	return t.Screens[i].Clone(), nil
}

// Hold checks and applies ch while holding the screen and showtime keys.
func (s *Store) Hold(ctx context.Context, ch inventory.Change) error {
	unlock := s.keys.Lock(lockKeys(ch)...)
	defer unlock()

	before, err := s.read(ctx, ch)
	if err != nil {
		return err
	}
	after := before.clone()
	if ch.Screen != nil {
		if err := inventory.CheckBinding(before.screen, ch); err != nil {
			return err
		}
		if err := inventory.BookSeats(&after.screen, ch.Seats, ch.Holder, ch.Ref, ch.At); err != nil {
			return err
		}
	}
	if ch.Showtime != nil {
		if err := inventory.TakeSeats(&after.showtime, ch.Count); err != nil {
			return err
		}
	}
	return s.commit(ch, before, after)
}

// Release verifies ownership of every seat, then frees seats and counter
// together.
func (s *Store) Release(ctx context.Context, ch inventory.Change) error {
	unlock := s.keys.Lock(lockKeys(ch)...)
	defer unlock()

	before, err := s.read(ctx, ch)
	if err != nil {
		return err
	}
	after := before.clone()
	if ch.Screen != nil {
		if err := inventory.CheckBinding(before.screen, ch); err != nil {
			return err
		}
		if err := inventory.FreeSeats(&after.screen, ch.Seats, ch.Holder, ch.Ref); err != nil {
			return err
		}
	}
	if ch.Showtime != nil {
		inventory.ReturnSeats(&after.showtime, ch.Count)
	}
	return s.commit(ch, before, after)
}

type slot struct {
	screen   model.Screen
	showtime model.Showtime
}

func (sl slot) clone() slot {
	return slot{screen: sl.screen.Clone(), showtime: sl.showtime.Clone()}
}

func lockKeys(ch inventory.Change) []string {
	var keys []string
	if ch.Screen != nil {
		keys = append(keys, ch.Screen.Key())
	}
	if ch.Showtime != nil {
		keys = append(keys, ch.Showtime.Key())
	}
	return keys
}

func (s *Store) read(ctx context.Context, ch inventory.Change) (slot, error) {
	var sl slot
	var err error
	if ch.Screen != nil {
		if sl.screen, err = s.Screen(ctx, *ch.Screen); err != nil {
			return slot{}, err
		}
	}
	if ch.Showtime != nil {
		if sl.showtime, err = s.Showtime(ctx, *ch.Showtime); err != nil {
			return slot{}, err
		}
	}
	return sl, nil
}

// commit swaps in the new values and flushes the touched files.  When a
// flush fails the previous values are put back.
func (s *Store) commit(ch inventory.Change, before, after slot) error {
	s.swap(ch, after)
	if err := s.flush(ch); err != nil {
		s.swap(ch, before)
		if rerr := s.flush(ch); rerr != nil {
			s.log.WithError(rerr).Error("rewrite after failed inventory flush")
		}
		return fmt.Errorf("persist inventory: %w", err)
	}
	return nil
}

func (s *Store) swap(ch inventory.Change, sl slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch.Screen != nil {
		t := s.theaters[ch.Screen.TheaterID]
		if i := t.ScreenIndex(ch.Screen.ScreenNumber); i >= 0 {
			// only the seats belong to the inventory; the binding is the
			// catalogue's
			screens := slices.Clone(t.Screens)
			screens[i].Seats = sl.screen.Seats
			t.Screens = screens
			s.theaters[t.ID] = t
		}
	}
	if ch.Showtime != nil {
		m := s.movies[ch.Showtime.MovieID]
		if i := m.FindShowtime(ch.Showtime.TheaterID, ch.Showtime.Time); i >= 0 {
			showtimes := slices.Clone(m.Showtimes)
			showtimes[i] = sl.showtime
			m.Showtimes = showtimes
			s.movies[m.ID] = m
		}
	}
}

func (s *Store) flush(ch inventory.Change) error {
	var errs []error
	if ch.Screen != nil {
		errs = append(errs, s.persist(theaterFile))
	}
	if ch.Showtime != nil {
		errs = append(errs, s.persist(movieFile))
	}
	return errors.Join(errs...)
}
