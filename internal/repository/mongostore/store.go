// Package mongostore is the document backend.  Movies embed their
// showtimes and theaters embed screens and seats, so every inventory
// change is a single-document conditional update.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// Store holds the collections.
type Store struct {
	db       *mongo.Database
	movies   *mongo.Collection
	theaters *mongo.Collection
	bookings *mongo.Collection
	users    *mongo.Collection
	// maxRetries bounds optimistic compare-and-set loops.
	maxRetries int
}

// New wraps db and makes sure the indexes exist.
func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	s := &Store{
		db:         db,
		movies:     db.Collection("movies"),
		theaters:   db.Collection("theaters"),
		bookings:   db.Collection("bookings"),
		users:      db.Collection("users"),
		maxRetries: 8,
	}
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("users email index: %w", err)
	}
	if _, err := s.bookings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return nil, fmt.Errorf("bookings user index: %w", err)
	}
	if _, err := s.bookings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "movieId", Value: 1}, {Key: "status", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("bookings movie index: %w", err)
	}
	return s, nil
}

// Repositories exposes the store through the repository contracts.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Movies:    movieRepo{s},
		Theaters:  theaterRepo{s},
		Bookings:  bookingRepo{s},
		Users:     userRepo{s},
		Inventory: s,
		Ping:      func(ctx context.Context) error { return s.db.Client().Ping(ctx, nil) },
		Close:     func(ctx context.Context) error { return s.db.Client().Disconnect(ctx) },
	}
}

type movieRepo struct{ s *Store }

func (r movieRepo) List(ctx context.Context) ([]model.Movie, error) {
	cur, err := r.s.movies.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "releaseDate", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []movieDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.Movie, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (r movieRepo) GetByID(ctx context.Context, id string) (model.Movie, error) {
	var doc movieDoc
	err := r.s.movies.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Movie{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Movie{}, err
	}
	return doc.toModel(), nil
}

func (r movieRepo) Create(ctx context.Context, m *model.Movie) error {
	_, err := r.s.movies.InsertOne(ctx, newMovieDoc(*m))
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrConflict
	}
	return err
}

func (r movieRepo) Update(ctx context.Context, m *model.Movie) error {
	genre := m.Genre
	if genre == nil {
		genre = []string{}
	}
	res, err := r.s.movies.UpdateOne(ctx, bson.M{"_id": m.ID}, bson.M{"$set": bson.M{
		"title":       m.Title,
		"description": m.Description,
		"duration":    m.Duration,
		"language":    m.Language,
		"genre":       genre,
		"releaseDate": m.ReleaseDate,
		"posterUrl":   m.PosterURL,
		"rating":      m.Rating,
		"updatedAt":   m.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes the movie document, then clears every screen binding
// that points at it.
func (r movieRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.movies.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	_, err = r.s.theaters.UpdateMany(ctx,
		bson.M{"screens.showtime.movieId": id},
		bson.M{
			"$unset": bson.M{"screens.$[s].showtime": ""},
			"$inc":   bson.M{"version": 1},
		},
		options.Update().SetArrayFilters(options.ArrayFilters{Filters: []interface{}{bson.M{"s.showtime.movieId": id}}}))
	if err != nil {
		return fmt.Errorf("unbind screens: %w", err)
	}
	return nil
}

// AddShowtime pushes the showtime unless the slot is already taken; the
// filter makes the check and the push one atomic update.  A showtime on
// a named screen first claims the screen on the theater document and
// gives it back if the push does not happen.
func (r movieRepo) AddShowtime(ctx context.Context, movieID string, st *model.Showtime) error {
	doc := newShowtimeDoc(*st)
	if st.ScreenNumber != nil {
		if err := r.s.bindScreen(ctx, st.TheaterID, *st.ScreenNumber, bindingDoc{MovieID: movieID, Time: doc.Time}); err != nil {
			return err
		}
	}
	err := r.pushShowtime(ctx, movieID, doc)
	if err != nil && st.ScreenNumber != nil {
		if uerr := r.s.unbindScreen(context.WithoutCancel(ctx), st.TheaterID, *st.ScreenNumber, movieID); uerr != nil {
			return errors.Join(err, fmt.Errorf("unbind screen: %w", uerr))
		}
	}
	return err
}

func (r movieRepo) pushShowtime(ctx context.Context, movieID string, doc showtimeDoc) error {
	res, err := r.s.movies.UpdateOne(ctx,
		bson.M{
			"_id": movieID,
			"showtimes": bson.M{"$not": bson.M{"$elemMatch": bson.M{
				"theaterId": doc.TheaterID,
				"time":      doc.Time,
			}}},
		},
		bson.M{
			"$push": bson.M{"showtimes": doc},
			"$set":  bson.M{"updatedAt": model.NormalizeTime(time.Now())},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, movieID); err != nil {
		return err
	}
	return repository.ErrConflict
}

// bindScreen sets the binding only while the screen is unbound and has
// no booked seat.  The version bump makes in-flight seat writes on the
// theater retry against the bound screen.
func (s *Store) bindScreen(ctx context.Context, theaterID string, screen int, b bindingDoc) error {
	res, err := s.theaters.UpdateOne(ctx,
		bson.M{
			"_id": theaterID,
			"screens": bson.M{"$elemMatch": bson.M{
				"screenNumber": screen,
				"showtime":     bson.M{"$exists": false},
				"seats":        bson.M{"$not": bson.M{"$elemMatch": bson.M{"status": bson.M{"$ne": string(model.SeatAvailable)}}}},
			}},
		},
		bson.M{
			"$set": bson.M{"screens.$.showtime": b},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return fmt.Errorf("bind screen: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.findTheater(ctx, theaterID); errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	return repository.ErrScreenInUse
}

func (s *Store) unbindScreen(ctx context.Context, theaterID string, screen int, movieID string) error {
	_, err := s.theaters.UpdateOne(ctx,
		bson.M{
			"_id": theaterID,
			"screens": bson.M{"$elemMatch": bson.M{
				"screenNumber":     screen,
				"showtime.movieId": movieID,
			}},
		},
		bson.M{
			"$unset": bson.M{"screens.$.showtime": ""},
			"$inc":   bson.M{"version": 1},
		})
	return err
}

type theaterRepo struct{ s *Store }

func (r theaterRepo) List(ctx context.Context) ([]model.Theater, error) {
	cur, err := r.s.theaters.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []theaterDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.Theater, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (r theaterRepo) GetByID(ctx context.Context, id string) (model.Theater, error) {
	doc, err := r.s.findTheater(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Theater{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Theater{}, err
	}
	return doc.toModel(), nil
}

func (r theaterRepo) Create(ctx context.Context, t *model.Theater) error {
	_, err := r.s.theaters.InsertOne(ctx, newTheaterDoc(*t))
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrConflict
	}
	return err
}

func (s *Store) findTheater(ctx context.Context, id string) (theaterDoc, error) {
	var doc theaterDoc
	err := s.theaters.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	return doc, err
}

type bookingRepo struct{ s *Store }

func (r bookingRepo) Create(ctx context.Context, b *model.Booking) error {
	_, err := r.s.bookings.InsertOne(ctx, newBookingDoc(*b))
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrConflict
	}
	return err
}

func (r bookingRepo) GetByID(ctx context.Context, id string) (model.Booking, error) {
	var doc bookingDoc
	err := r.s.bookings.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Booking{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	return doc.toModel(), nil
}

func (r bookingRepo) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	cur, err := r.s.bookings.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []bookingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (r bookingRepo) CountConfirmed(ctx context.Context, movieID string) (int, error) {
	n, err := r.s.bookings.CountDocuments(ctx, bson.M{"movieId": movieID, "status": string(model.BookingConfirmed)})
	return int(n), err
}

func (r bookingRepo) Cancel(ctx context.Context, id string, at time.Time) (model.Booking, error) {
	return r.transition(ctx, id, model.BookingConfirmed, model.BookingCancelled, model.PaymentRefunded, at)
}

func (r bookingRepo) Reinstate(ctx context.Context, id string, payment model.PaymentStatus, at time.Time) error {
	_, err := r.transition(ctx, id, model.BookingCancelled, model.BookingConfirmed, payment, at)
	return err
}

func (r bookingRepo) transition(ctx context.Context, id string, from, to model.BookingStatus, payment model.PaymentStatus, at time.Time) (model.Booking, error) {
	var doc bookingDoc
	err := r.s.bookings.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "paymentStatus": string(payment), "updatedAt": model.NormalizeTime(at)}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return model.Booking{}, gerr
		}
		return model.Booking{}, repository.ErrConflict
	}
	if err != nil {
		return model.Booking{}, err
	}
	return doc.toModel(), nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := r.s.users.InsertOne(ctx, userDoc{
		ID: u.ID, Name: u.Name, Email: u.Email, PasswordHash: u.PasswordHash, Role: u.Role, CreatedAt: u.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrEmailExists
	}
	return err
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.find(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r userRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.find(ctx, bson.M{"_id": id})
}

func (r userRepo) find(ctx context.Context, filter bson.M) (model.User, error) {
	var doc userDoc
	err := r.s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, repository.ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	return doc.toModel(), nil
}
