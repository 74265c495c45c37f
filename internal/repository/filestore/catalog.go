package filestore

import (
	"cmp"
	"context"
	"slices"

	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

type movieRepo struct{ s *Store }

func (r movieRepo) List(context.Context) ([]model.Movie, error) {
	r.s.mu.RLock()
	out := make([]model.Movie, 0, len(r.s.movies))
	for _, m := range r.s.movies {
		out = append(out, m.Clone())
	}
	r.s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Movie) int {
		if c := b.ReleaseDate.Compare(a.ReleaseDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r movieRepo) GetByID(_ context.Context, id string) (model.Movie, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.movies[id]
	if !ok {
		return model.Movie{}, repository.ErrNotFound
	}
	return m.Clone(), nil
}

func (r movieRepo) Create(_ context.Context, m *model.Movie) error {
	r.s.mu.Lock()
	if _, ok := r.s.movies[m.ID]; ok {
		r.s.mu.Unlock()
		return repository.ErrConflict
	}
	r.s.movies[m.ID] = m.Clone()
	r.s.mu.Unlock()

	if err := r.s.persist(movieFile); err != nil {
		r.s.mu.Lock()
		delete(r.s.movies, m.ID)
		r.s.mu.Unlock()
		return err
	}
	return nil
}

func (r movieRepo) Update(_ context.Context, m *model.Movie) error {
	r.s.mu.Lock()
	prev, ok := r.s.movies[m.ID]
	if !ok {
		r.s.mu.Unlock()
		return repository.ErrNotFound
	}
	next := prev.Clone()
	next.ApplyDetails(*m)
	r.s.movies[m.ID] = next
	r.s.mu.Unlock()

	if err := r.s.persist(movieFile); err != nil {
		r.s.mu.Lock()
		if cur, ok := r.s.movies[m.ID]; ok {
			cur = cur.Clone()
			cur.ApplyDetails(prev)
			r.s.movies[m.ID] = cur
		}
		r.s.mu.Unlock()
		return err
	}
	return nil
}

func (r movieRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	m, ok := r.s.movies[id]
	if !ok {
		r.s.mu.Unlock()
		return repository.ErrNotFound
	}
	delete(r.s.movies, id)
	var unbound []bindingSlot
	for _, t := range r.s.theaters {
		for _, sc := range t.Screens {
			if sc.Showtime != nil && sc.Showtime.MovieID == id {
				unbound = append(unbound, bindingSlot{theaterID: t.ID, screen: sc.ScreenNumber, binding: *sc.Showtime})
				r.s.setBinding(t.ID, sc.ScreenNumber, nil)
			}
		}
	}
	r.s.mu.Unlock()

	err := r.s.persist(movieFile)
	if err == nil && len(unbound) > 0 {
		err = r.s.persist(theaterFile)
	}
	if err != nil {
		r.s.mu.Lock()
		r.s.movies[id] = m
		for _, u := range unbound {
			b := u.binding
			r.s.setBinding(u.theaterID, u.screen, &b)
		}
		r.s.mu.Unlock()
		r.s.rewrite(movieFile, theaterFile)
		return err
	}
	return nil
}

// AddShowtime appends st and, for a showtime on a named screen, binds
// the screen in the same step.  The screen key is held so no seat hold
// on that screen interleaves with the check.
func (r movieRepo) AddShowtime(_ context.Context, movieID string, st *model.Showtime) error {
	if st.ScreenNumber != nil {
		unlock := r.s.keys.Lock(inventory.ScreenRef{TheaterID: st.TheaterID, ScreenNumber: *st.ScreenNumber}.Key())
		defer unlock()
	}

	r.s.mu.Lock()
	m, ok := r.s.movies[movieID]
	if !ok {
		r.s.mu.Unlock()
		return repository.ErrNotFound
	}
	if m.FindShowtime(st.TheaterID, st.Time) >= 0 {
		r.s.mu.Unlock()
		return repository.ErrConflict
	}
	bound := false
	if st.ScreenNumber != nil {
		sc, ok := r.s.screen(st.TheaterID, *st.ScreenNumber)
		if !ok {
			r.s.mu.Unlock()
			return repository.ErrNotFound
		}
		if sc.Showtime != nil || hasBookedSeats(sc) {
			r.s.mu.Unlock()
			return repository.ErrScreenInUse
		}
		r.s.setBinding(st.TheaterID, *st.ScreenNumber, &model.ScreenBinding{MovieID: movieID, Time: model.NormalizeTime(st.Time)})
		bound = true
	}
	m.Showtimes = append(slices.Clone(m.Showtimes), st.Clone())
	r.s.movies[movieID] = m
	r.s.mu.Unlock()

	err := r.s.persist(movieFile)
	if err == nil && bound {
		err = r.s.persist(theaterFile)
	}
	if err != nil {
		r.s.mu.Lock()
		m := r.s.movies[movieID]
		m.Showtimes = slices.DeleteFunc(slices.Clone(m.Showtimes), func(x model.Showtime) bool { return x.ID == st.ID })
		r.s.movies[movieID] = m
		if bound {
			r.s.setBinding(st.TheaterID, *st.ScreenNumber, nil)
		}
		r.s.mu.Unlock()
		r.s.rewrite(movieFile, theaterFile)
		return err
	}
	return nil
}

type bindingSlot struct {
	theaterID string
	screen    int
	binding   model.ScreenBinding
}

func hasBookedSeats(sc model.Screen) bool {
	for _, seat := range sc.Seats {
		if seat.Status != model.SeatAvailable {
			return true
		}
	}
	return false
}

// screen must be called with mu held.
func (s *Store) screen(theaterID string, n int) (model.Screen, bool) {
	t, ok := s.theaters[theaterID]
	if !ok {
		return model.Screen{}, false
	}
	i := t.ScreenIndex(n)
	if i < 0 {
		return model.Screen{}, false
	}
	return t.Screens[i], true
}

// setBinding must be called with mu held.
func (s *Store) setBinding(theaterID string, n int, b *model.ScreenBinding) {
	t, ok := s.theaters[theaterID]
	if !ok {
		return
	}
	i := t.ScreenIndex(n)
	if i < 0 {
		return
	}
	screens := slices.Clone(t.Screens)
	screens[i].Showtime = b
	t.Screens = screens
	s.theaters[theaterID] = t
}

type theaterRepo struct{ s *Store }

func (r theaterRepo) List(context.Context) ([]model.Theater, error) {
	r.s.mu.RLock()
	out := make([]model.Theater, 0, len(r.s.theaters))
	for _, t := range r.s.theaters {
		out = append(out, t.Clone())
	}
	r.s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Theater) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r theaterRepo) GetByID(_ context.Context, id string) (model.Theater, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.theaters[id]
	if !ok {
		return model.Theater{}, repository.ErrNotFound
	}
	return t.Clone(), nil
}

func (r theaterRepo) Create(_ context.Context, t *model.Theater) error {
	r.s.mu.Lock()
	if _, ok := r.s.theaters[t.ID]; ok {
		r.s.mu.Unlock()
		return repository.ErrConflict
	}
	r.s.theaters[t.ID] = t.Clone()
	r.s.mu.Unlock()

	if err := r.s.persist(theaterFile); err != nil {
		r.s.mu.Lock()
		delete(r.s.theaters, t.ID)
		r.s.mu.Unlock()
		return err
	}
	return nil
}
