package filestore

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

type bookingRepo struct{ s *Store }

func cloneBooking(b model.Booking) model.Booking {
	b.Seats = slices.Clone(b.Seats)
	return b
}

func (r bookingRepo) Create(_ context.Context, b *model.Booking) error {
	r.s.mu.Lock()
	if _, ok := r.s.bookings[b.ID]; ok {
		r.s.mu.Unlock()
		return repository.ErrConflict
	}
	r.s.bookings[b.ID] = cloneBooking(*b)
	r.s.mu.Unlock()

	if err := r.s.persist(bookingFile); err != nil {
		r.s.mu.Lock()
		delete(r.s.bookings, b.ID)
		r.s.mu.Unlock()
		return err
	}
	return nil
}

func (r bookingRepo) GetByID(_ context.Context, id string) (model.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return model.Booking{}, repository.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (r bookingRepo) ListByUser(_ context.Context, userID string) ([]model.Booking, error) {
	r.s.mu.RLock()
	var out []model.Booking
	for _, b := range r.s.bookings {
		if b.UserID == userID {
			out = append(out, cloneBooking(b))
		}
	}
	r.s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Booking) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (r bookingRepo) CountConfirmed(_ context.Context, movieID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, b := range r.s.bookings {
		if b.MovieID == movieID && b.Status == model.BookingConfirmed {
			n++
		}
	}
	return n, nil
}

func (r bookingRepo) Cancel(_ context.Context, id string, at time.Time) (model.Booking, error) {
	return r.transition(id, model.BookingConfirmed, func(b *model.Booking) {
		b.Status = model.BookingCancelled
		b.PaymentStatus = model.PaymentRefunded
		b.UpdatedAt = at
	})
}

func (r bookingRepo) Reinstate(_ context.Context, id string, payment model.PaymentStatus, at time.Time) error {
	_, err := r.transition(id, model.BookingCancelled, func(b *model.Booking) {
		b.Status = model.BookingConfirmed
		b.PaymentStatus = payment
		b.UpdatedAt = at
	})
	return err
}

// transition applies fn if the stored status equals from.
func (r bookingRepo) transition(id string, from model.BookingStatus, fn func(*model.Booking)) (model.Booking, error) {
	unlock := r.s.keys.Lock("booking:" + id)
	defer unlock()

	r.s.mu.Lock()
	prev, ok := r.s.bookings[id]
	if !ok {
		r.s.mu.Unlock()
		return model.Booking{}, repository.ErrNotFound
	}
	if prev.Status != from {
		r.s.mu.Unlock()
		return model.Booking{}, repository.ErrConflict
	}
	next := cloneBooking(prev)
	fn(&next)
	r.s.bookings[id] = next
	r.s.mu.Unlock()

	if err := r.s.persist(bookingFile); err != nil {
		r.s.mu.Lock()
		r.s.bookings[id] = prev
		r.s.mu.Unlock()
		return model.Booking{}, err
	}
	return cloneBooking(next), nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u *model.User) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	r.s.mu.Lock()
	for _, existing := range r.s.users {
		if existing.Email == email {
			r.s.mu.Unlock()
			return repository.ErrEmailExists
		}
	}
	rec := userRecord{User: *u, PasswordHash: u.PasswordHash}
	rec.Email = email
	r.s.users[u.ID] = rec
	r.s.mu.Unlock()

	if err := r.s.persist(userFile); err != nil {
		r.s.mu.Lock()
		delete(r.s.users, u.ID)
		r.s.mu.Unlock()
		return err
	}
	u.Email = email
	return nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rec := range r.s.users {
		if rec.Email == email {
			return rec.toUser(), nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (r userRepo) GetByID(_ context.Context, id string) (model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return rec.toUser(), nil
}

func (rec userRecord) toUser() model.User {
	u := rec.User
	u.PasswordHash = rec.PasswordHash
	return u
}
