package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// CatalogService manages movies, theaters and the showtime schedule.
type CatalogService struct {
	movies   repository.MovieRepository
	theaters repository.TheaterRepository
	bookings repository.BookingRepository
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewCatalogService wires the service.
func NewCatalogService(repos repository.Repositories, log logrus.FieldLogger) *CatalogService {
	if repos.Movies == nil || repos.Theaters == nil || repos.Bookings == nil {
		panic("nil repository passed to NewCatalogService")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CatalogService{movies: repos.Movies, theaters: repos.Theaters, bookings: repos.Bookings, now: time.Now, log: log}
}

// CreateMovieInput is the admin payload for a new movie.
type CreateMovieInput struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Duration    int       `json:"duration" validate:"gt=0"`
	Language    string    `json:"language"`
	Genre       []string  `json:"genre"`
	ReleaseDate time.Time `json:"releaseDate"`
	PosterURL   string    `json:"posterUrl"`
	Rating      float64   `json:"rating" validate:"gte=0,lte=10"`
}

// UpdateMovieInput changes catalogue fields of a movie.  Absent fields
// keep their value; the schedule cannot be changed here.
type UpdateMovieInput struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Duration    *int       `json:"duration,omitempty" validate:"omitempty,gt=0"`
	Language    *string    `json:"language,omitempty"`
	Genre       []string   `json:"genre,omitempty"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
	PosterURL   *string    `json:"posterUrl,omitempty"`
	Rating      *float64   `json:"rating,omitempty" validate:"omitempty,gte=0,lte=10"`
}

// AddShowtimeInput schedules a movie at a theater.  Capacity defaults
// to the screen size (or the largest screen when no screen is named).
type AddShowtimeInput struct {
	TheaterID    string          `json:"theaterId" validate:"required"`
	ScreenNumber *int            `json:"screenNumber,omitempty"`
	Time         time.Time       `json:"time"`
	Price        decimal.Decimal `json:"price"`
	Capacity     int             `json:"capacity" validate:"gte=0"`
}

// CreateTheaterInput is the admin payload for a new theater.
type CreateTheaterInput struct {
	Name      string         `json:"name" validate:"required"`
	Location  model.Location `json:"location"`
	Screens   []ScreenInput  `json:"screens" validate:"dive"`
	Amenities []string       `json:"amenities"`
}

// ScreenInput describes one screen of a new theater.
type ScreenInput struct {
	ScreenNumber int `json:"screenNumber" validate:"gt=0"`
	TotalSeats   int `json:"totalSeats" validate:"gt=0"`
}

func (s *CatalogService) ListMovies(ctx context.Context) ([]model.Movie, error) {
	return s.movies.List(ctx)
}

func (s *CatalogService) GetMovie(ctx context.Context, id string) (model.Movie, error) {
	m, err := s.movies.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Movie{}, ErrMovieNotFound
	}
	return m, err
}

// CreateMovie validates and stores a movie with an empty schedule.
func (s *CatalogService) CreateMovie(ctx context.Context, in CreateMovieInput) (model.Movie, error) {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return model.Movie{}, invalid("title", "is required")
	case in.Duration <= 0:
		return model.Movie{}, invalid("duration", "must be positive")
	case in.Rating < 0 || in.Rating > 10:
		return model.Movie{}, invalid("rating", "must be between 0 and 10")
	}
	now := model.NormalizeTime(s.now())
	genre := in.Genre
	if genre == nil {
		genre = []string{}
	}
	m := model.Movie{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Duration:    in.Duration,
		Language:    in.Language,
		Genre:       genre,
		ReleaseDate: model.NormalizeTime(in.ReleaseDate),
		PosterURL:   in.PosterURL,
		Rating:      in.Rating,
		Showtimes:   []model.Showtime{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.movies.Create(ctx, &m); err != nil {
		return model.Movie{}, fmt.Errorf("create movie: %w", err)
	}
	s.log.WithFields(logrus.Fields{"movie_id": m.ID, "title": m.Title}).Info("movie created")
	return m, nil
}

// UpdateMovie applies the given catalogue fields and returns the stored
// movie.
func (s *CatalogService) UpdateMovie(ctx context.Context, id string, in UpdateMovieInput) (model.Movie, error) {
	m, err := s.GetMovie(ctx, id)
	if err != nil {
		return model.Movie{}, err
	}
	next := m
	if in.Title != nil {
		next.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.Duration != nil {
		next.Duration = *in.Duration
	}
	if in.Language != nil {
		next.Language = *in.Language
	}
	if in.Genre != nil {
		next.Genre = in.Genre
	}
	if in.ReleaseDate != nil {
		next.ReleaseDate = model.NormalizeTime(*in.ReleaseDate)
	}
	if in.PosterURL != nil {
		next.PosterURL = *in.PosterURL
	}
	if in.Rating != nil {
		next.Rating = *in.Rating
	}
	switch {
	case next.Title == "":
		return model.Movie{}, invalid("title", "is required")
	case next.Duration <= 0:
		return model.Movie{}, invalid("duration", "must be positive")
	case next.Rating < 0 || next.Rating > 10:
		return model.Movie{}, invalid("rating", "must be between 0 and 10")
	}
	next.UpdatedAt = model.NormalizeTime(s.now())

	switch err := s.movies.Update(ctx, &next); {
	case errors.Is(err, repository.ErrNotFound):
		return model.Movie{}, ErrMovieNotFound
	case err != nil:
		return model.Movie{}, fmt.Errorf("update movie: %w", err)
	}
	s.log.WithField("movie_id", id).Info("movie updated")
	return s.GetMovie(ctx, id)
}

// DeleteMovie removes a movie and its schedule and frees the screens
// bound to it.  It returns ErrMovieHasBookings while the movie has
// confirmed bookings.
func (s *CatalogService) DeleteMovie(ctx context.Context, id string) error {
	if _, err := s.GetMovie(ctx, id); err != nil {
		return err
	}
	n, err := s.bookings.CountConfirmed(ctx, id)
	if err != nil {
		return fmt.Errorf("count bookings: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %d still confirmed", ErrMovieHasBookings, n)
	}
	switch err := s.movies.Delete(ctx, id); {
	case errors.Is(err, repository.ErrNotFound):
		return ErrMovieNotFound
	case err != nil:
		return fmt.Errorf("delete movie: %w", err)
	}
	s.log.WithField("movie_id", id).Info("movie deleted")
	return nil
}

// AddShowtime provisions a showtime with AvailableSeats = Capacity.
func (s *CatalogService) AddShowtime(ctx context.Context, movieID string, in AddShowtimeInput) (model.Showtime, error) {
	if in.TheaterID == "" {
		return model.Showtime{}, invalid("theaterId", "is required")
	}
	if in.Time.IsZero() {
		return model.Showtime{}, invalid("time", "is required")
	}
	if !in.Price.IsPositive() {
		return model.Showtime{}, invalid("price", "must be positive")
	}
	if in.Capacity < 0 {
		return model.Showtime{}, invalid("capacity", "must not be negative")
	}
	if _, err := s.GetMovie(ctx, movieID); err != nil {
		return model.Showtime{}, err
	}
	t, err := s.theaters.GetByID(ctx, in.TheaterID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Showtime{}, ErrTheaterNotFound
	}
	if err != nil {
		return model.Showtime{}, fmt.Errorf("load theater: %w", err)
	}

	limit := 0
	if in.ScreenNumber != nil {
		i := t.ScreenIndex(*in.ScreenNumber)
		if i < 0 {
			return model.Showtime{}, ErrScreenNotFound
		}
		if t.Screens[i].Showtime != nil {
			return model.Showtime{}, ErrScreenInUse
		}
		limit = t.Screens[i].TotalSeats
	} else {
		for _, sc := range t.Screens {
			limit = max(limit, sc.TotalSeats)
		}
	}
	capacity := in.Capacity
	if capacity == 0 {
		capacity = limit
	}
	if capacity <= 0 {
		return model.Showtime{}, invalid("capacity", "theater has no screens to size the showtime")
	}
	if capacity > limit {
		return model.Showtime{}, invalid("capacity", "exceeds screen size of %d", limit)
	}

	st := model.Showtime{
		ID:             uuid.NewString(),
		TheaterID:      t.ID,
		ScreenNumber:   in.ScreenNumber,
		Time:           model.NormalizeTime(in.Time),
		Price:          in.Price,
		Capacity:       capacity,
		AvailableSeats: capacity,
	}
	switch err := s.movies.AddShowtime(ctx, movieID, &st); {
	case errors.Is(err, repository.ErrConflict):
		return model.Showtime{}, ErrShowtimeExists
	case errors.Is(err, repository.ErrScreenInUse):
		return model.Showtime{}, ErrScreenInUse
	case errors.Is(err, repository.ErrNotFound):
		return model.Showtime{}, ErrMovieNotFound
	case err != nil:
		return model.Showtime{}, fmt.Errorf("add showtime: %w", err)
	}
	s.log.WithFields(logrus.Fields{"movie_id": movieID, "theater_id": t.ID, "capacity": capacity}).Info("showtime added")
	return st, nil
}

func (s *CatalogService) ListTheaters(ctx context.Context) ([]model.Theater, error) {
	return s.theaters.List(ctx)
}

func (s *CatalogService) GetTheater(ctx context.Context, id string) (model.Theater, error) {
	t, err := s.theaters.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Theater{}, ErrTheaterNotFound
	}
	return t, err
}

// CreateTheater stores a theater whose screens start with no seat
// records.
func (s *CatalogService) CreateTheater(ctx context.Context, in CreateTheaterInput) (model.Theater, error) {
	if strings.TrimSpace(in.Name) == "" {
		return model.Theater{}, invalid("name", "is required")
	}
	seen := map[int]bool{}
	screens := make([]model.Screen, 0, len(in.Screens))
	for _, sc := range in.Screens {
		if sc.ScreenNumber <= 0 {
			return model.Theater{}, invalid("screens", "screen numbers must be positive")
		}
		if sc.TotalSeats <= 0 {
			return model.Theater{}, invalid("screens", "screen %d needs a positive seat count", sc.ScreenNumber)
		}
		if seen[sc.ScreenNumber] {
			return model.Theater{}, invalid("screens", "screen %d is listed twice", sc.ScreenNumber)
		}
		seen[sc.ScreenNumber] = true
		screens = append(screens, model.Screen{ScreenNumber: sc.ScreenNumber, TotalSeats: sc.TotalSeats, Seats: []model.Seat{}})
	}
	amenities := in.Amenities
	if amenities == nil {
		amenities = []string{}
	}
	now := model.NormalizeTime(s.now())
	t := model.Theater{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Location:  in.Location,
		Screens:   screens,
		Amenities: amenities,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.theaters.Create(ctx, &t); err != nil {
		return model.Theater{}, fmt.Errorf("create theater: %w", err)
	}
	s.log.WithFields(logrus.Fields{"theater_id": t.ID, "screens": len(screens)}).Info("theater created")
	return t, nil
}
