package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	q "github.com/iliyamo/movie-ticket-booking/internal/queue"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// DefaultCancellationWindow is how long before the showtime a booking
// can still be cancelled.
const DefaultCancellationWindow = 2 * time.Hour

// CreateBookingInput is what a customer submits to book seats.
type CreateBookingInput struct {
	MovieID       string               `json:"movieId"`
	TheaterID     string               `json:"theaterId"`
	Showtime      time.Time            `json:"showtime"`
	Seats         []model.SeatPosition `json:"seats"`
	TotalAmount   decimal.Decimal      `json:"totalAmount"`
	PaymentStatus model.PaymentStatus  `json:"paymentStatus,omitempty"`
}

func (in CreateBookingInput) validate() error {
	switch {
	case in.MovieID == "":
		return invalid("movieId", "is required")
	case in.TheaterID == "":
		return invalid("theaterId", "is required")
	case in.Showtime.IsZero():
		return invalid("showtime", "is required")
	case len(in.Seats) == 0:
		return invalid("seats", "at least one seat is required")
	case in.TotalAmount.IsNegative():
		return invalid("totalAmount", "must not be negative")
	}
	if in.PaymentStatus != "" && in.PaymentStatus != model.PaymentPending && in.PaymentStatus != model.PaymentPaid {
		return invalid("paymentStatus", "must be pending or paid")
	}
	seen := make(map[model.SeatPosition]bool, len(in.Seats))
	for _, s := range in.Seats {
		if !s.Valid() {
			return invalid("seats", "invalid seat %q", s.Label())
		}
		if seen[s] {
			return invalid("seats", "seat %s is listed twice", s.Label())
		}
		seen[s] = true
	}
	return nil
}

// BookingService runs the booking lifecycle on top of the inventory
// manager: a booking exists only for a committed hold, and a cancelled
// booking releases its hold exactly once.
type BookingService struct {
	movies   repository.MovieRepository
	theaters repository.TheaterRepository
	bookings repository.BookingRepository
	inv      *inventory.Manager
	events   EventPublisher
	window   time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
}

// BookingOption configures a BookingService.
type BookingOption func(*BookingService)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) BookingOption {
	return func(s *BookingService) { s.now = now }
}

// WithCancellationWindow overrides DefaultCancellationWindow.
func WithCancellationWindow(d time.Duration) BookingOption {
	return func(s *BookingService) { s.window = d }
}

// WithEvents sets the publisher for booking events.
func WithEvents(p EventPublisher) BookingOption {
	return func(s *BookingService) { s.events = p }
}

// WithLogger sets the service logger.
func WithLogger(l logrus.FieldLogger) BookingOption {
	return func(s *BookingService) { s.log = l }
}

// NewBookingService wires the service.  It panics on missing
// dependencies.
func NewBookingService(repos repository.Repositories, inv *inventory.Manager, opts ...BookingOption) *BookingService {
	if repos.Movies == nil || repos.Theaters == nil || repos.Bookings == nil || inv == nil {
		panic("nil dependency passed to NewBookingService")
	}
	s := &BookingService{
		movies:   repos.Movies,
		theaters: repos.Theaters,
		bookings: repos.Bookings,
		inv:      inv,
		events:   NopPublisher{},
		window:   DefaultCancellationWindow,
		now:      time.Now,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolve finds the movie and the showtime at (theaterID, at).
func (s *BookingService) resolve(ctx context.Context, movieID, theaterID string, at time.Time) (model.Movie, model.Showtime, error) {
	movie, err := s.movies.GetByID(ctx, movieID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Movie{}, model.Showtime{}, ErrMovieNotFound
	}
	if err != nil {
		return model.Movie{}, model.Showtime{}, fmt.Errorf("load movie: %w", err)
	}
	i := movie.FindShowtime(theaterID, at)
	if i < 0 {
		return model.Movie{}, model.Showtime{}, ErrShowtimeNotFound
	}
	return movie, movie.Showtimes[i], nil
}

// holdRequest targets the showtime counter and, for showtimes bound to
// a screen, the concrete seats on that screen tagged with bookingID.
func holdRequest(movieID string, st model.Showtime, seats []model.SeatPosition, holder, bookingID string) inventory.Request {
	req := inventory.Request{
		Showtime: &inventory.ShowtimeRef{MovieID: movieID, TheaterID: st.TheaterID, Time: st.Time},
		Seats:    seats,
		Holder:   holder,
		Ref:      bookingID,
	}
	if st.ScreenNumber != nil {
		req.Screen = &inventory.ScreenRef{TheaterID: st.TheaterID, ScreenNumber: *st.ScreenNumber}
	}
	return req
}

// CheckAvailability answers whether seats (or count seats) are free for
// the showtime without holding anything.
func (s *BookingService) CheckAvailability(ctx context.Context, movieID, theaterID string, at time.Time, seats []model.SeatPosition, count int) (inventory.Availability, error) {
	_, st, err := s.resolve(ctx, movieID, theaterID, at)
	if err != nil {
		return inventory.Availability{}, err
	}
	req := holdRequest(movieID, st, seats, "availability-check", "")
	if len(seats) == 0 {
		req.Screen = nil
		req.Count = count
	}
	return s.inv.CheckAvailability(ctx, req)
}

// CreateBooking holds the seats, then records the booking.  If the
// record cannot be stored the hold is released again.
func (s *BookingService) CreateBooking(ctx context.Context, userID string, in CreateBookingInput) (model.Booking, error) {
	if err := in.validate(); err != nil {
		return model.Booking{}, err
	}
	movie, st, err := s.resolve(ctx, in.MovieID, in.TheaterID, in.Showtime)
	if err != nil {
		return model.Booking{}, err
	}

	id := uuid.NewString()
	req := holdRequest(movie.ID, st, in.Seats, userID, id)
	held, err := s.inv.Hold(ctx, req)
	if err != nil {
		if errors.Is(err, inventory.ErrShowtimeNotFound) {
			return model.Booking{}, ErrShowtimeNotFound
		}
		return model.Booking{}, err
	}

	payment := in.PaymentStatus
	if payment == "" {
		payment = model.PaymentPending
	}
	now := model.NormalizeTime(s.now())
	b := model.Booking{
		ID:            id,
		UserID:        userID,
		MovieID:       movie.ID,
		TheaterID:     st.TheaterID,
		Showtime:      st.Time,
		Seats:         held.Seats,
		TotalAmount:   in.TotalAmount,
		Status:        model.BookingConfirmed,
		PaymentStatus: payment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.bookings.Create(ctx, &b); err != nil {
		// the caller may already be gone; the hold must still be undone
		if rerr := s.inv.Release(context.WithoutCancel(ctx), req); rerr != nil {
			s.log.WithError(rerr).WithFields(logrus.Fields{
				"movie_id": movie.ID, "theater_id": st.TheaterID, "user_id": userID, "seats": len(held.Seats),
			}).Error("compensating release failed; inventory needs manual repair")
		}
		return model.Booking{}, fmt.Errorf("save booking: %w", err)
	}

	s.log.WithFields(logrus.Fields{"booking_id": b.ID, "user_id": userID, "seats": len(b.Seats)}).Info("booking confirmed")
	s.publish(ctx, b, movie, s.events.PublishBookingConfirmed)
	return b, nil
}

// CancelBooking cancels the caller's booking and releases its seats.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID string) (model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Booking{}, ErrBookingNotFound
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("load booking: %w", err)
	}
	if b.UserID != userID {
		return model.Booking{}, ErrForbidden
	}
	if b.Status != model.BookingConfirmed {
		return model.Booking{}, ErrAlreadyCancelled
	}
	now := s.now()
	if b.Showtime.Sub(now) < s.window {
		return model.Booking{}, ErrCancellationWindowClosed
	}

	cancelled, err := s.bookings.Cancel(ctx, b.ID, model.NormalizeTime(now))
	if errors.Is(err, repository.ErrConflict) {
		return model.Booking{}, ErrAlreadyCancelled
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("cancel booking: %w", err)
	}

	movie, st, err := s.resolve(ctx, b.MovieID, b.TheaterID, b.Showtime)
	switch {
	case errors.Is(err, ErrMovieNotFound), errors.Is(err, ErrShowtimeNotFound):
		// nothing left to give the seats back to
		s.log.WithField("booking_id", b.ID).Warn("showtime gone; cancelled without release")
	case err != nil:
		return model.Booking{}, s.reinstate(ctx, b, err)
	default:
		if err := s.inv.Release(ctx, holdRequest(movie.ID, st, b.Seats, b.UserID, b.ID)); err != nil {
			return model.Booking{}, s.reinstate(ctx, b, err)
		}
	}

	s.log.WithFields(logrus.Fields{"booking_id": b.ID, "user_id": userID}).Info("booking cancelled")
	s.publish(ctx, cancelled, movie, s.events.PublishBookingCancelled)
	return cancelled, nil
}

// reinstate puts a booking back to confirmed after its release failed
// and returns the release error.
func (s *BookingService) reinstate(ctx context.Context, b model.Booking, cause error) error {
	if err := s.bookings.Reinstate(context.WithoutCancel(ctx), b.ID, b.PaymentStatus, model.NormalizeTime(s.now())); err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Error("reinstate after failed release")
	}
	return fmt.Errorf("release seats: %w", cause)
}

// GetBooking returns one of the caller's bookings with its movie and
// theater.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID string) (model.BookingDetail, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.BookingDetail{}, ErrBookingNotFound
	}
	if err != nil {
		return model.BookingDetail{}, fmt.Errorf("load booking: %w", err)
	}
	if b.UserID != userID {
		return model.BookingDetail{}, ErrForbidden
	}
	out, err := s.details(ctx, []model.Booking{b})
	if err != nil {
		return model.BookingDetail{}, err
	}
	return out[0], nil
}

// ListUserBookings returns the caller's bookings, newest first.
func (s *BookingService) ListUserBookings(ctx context.Context, userID string) ([]model.BookingDetail, error) {
	list, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return s.details(ctx, list)
}

func (s *BookingService) details(ctx context.Context, list []model.Booking) ([]model.BookingDetail, error) {
	movies := map[string]*model.MovieSummary{}
	theaters := map[string]*model.TheaterSummary{}
	out := make([]model.BookingDetail, 0, len(list))
	for _, b := range list {
		ms, ok := movies[b.MovieID]
		if !ok {
			m, err := s.movies.GetByID(ctx, b.MovieID)
			switch {
			case err == nil:
				ms = &model.MovieSummary{ID: m.ID, Title: m.Title, PosterURL: m.PosterURL, Duration: m.Duration, Language: m.Language}
			case !errors.Is(err, repository.ErrNotFound):
				return nil, fmt.Errorf("load movie: %w", err)
			}
			movies[b.MovieID] = ms
		}
		ts, ok := theaters[b.TheaterID]
		if !ok {
			t, err := s.theaters.GetByID(ctx, b.TheaterID)
			switch {
			case err == nil:
				ts = &model.TheaterSummary{ID: t.ID, Name: t.Name, Location: t.Location}
			case !errors.Is(err, repository.ErrNotFound):
				return nil, fmt.Errorf("load theater: %w", err)
			}
			theaters[b.TheaterID] = ts
		}
		out = append(out, model.BookingDetail{Booking: b, Movie: ms, Theater: ts})
	}
	return out, nil
}

func (s *BookingService) publish(ctx context.Context, b model.Booking, movie model.Movie, send func(context.Context, q.BookingEvent) error) {
	ev := q.BookingEvent{
		BookingID:   b.ID,
		UserID:      b.UserID,
		MovieID:     b.MovieID,
		MovieTitle:  movie.Title,
		TheaterID:   b.TheaterID,
		Showtime:    b.Showtime.Format(time.RFC3339),
		SeatLabels:  b.SeatLabels(),
		SeatCount:   len(b.Seats),
		TotalAmount: b.TotalAmount.StringFixed(2),
		OccurredAt:  s.now().UTC().Format(time.RFC3339),
	}
	if t, err := s.theaters.GetByID(ctx, b.TheaterID); err == nil {
		ev.TheaterName = t.Name
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := send(pctx, ev); err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Warn("publish booking event failed")
	}
}
