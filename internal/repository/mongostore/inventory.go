package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// Showtime reads one embedded showtime.
func (s *Store) Showtime(ctx context.Context, ref inventory.ShowtimeRef) (model.Showtime, error) {
	var doc movieDoc
	err := s.movies.FindOne(ctx, bson.M{"_id": ref.MovieID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Showtime{}, inventory.ErrShowtimeNotFound
	}
	if err != nil {
		return model.Showtime{}, fmt.Errorf("load showtime: %w", err)
	}
	m := doc.toModel()
	i := m.FindShowtime(ref.TheaterID, ref.Time)
	if i < 0 {
		return model.Showtime{}, inventory.ErrShowtimeNotFound
	}
	return m.Showtimes[i], nil
}

// Screen reads one embedded screen with its seats.
func (s *Store) Screen(ctx context.Context, ref inventory.ScreenRef) (model.Screen, error) {
	sc, _, _, err := s.loadScreen(ctx, ref)
	return sc, err
}

func (s *Store) loadScreen(ctx context.Context, ref inventory.ScreenRef) (model.Screen, int, int64, error) {
	doc, err := s.findTheater(ctx, ref.TheaterID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Screen{}, 0, 0, inventory.ErrScreenNotFound
	}
	if err != nil {
		return model.Screen{}, 0, 0, fmt.Errorf("load screen: %w", err)
	}
	for i, sc := range doc.Screens {
		if sc.ScreenNumber == ref.ScreenNumber {
			return sc.toModel(), i, doc.Version, nil
		}
	}
	return model.Screen{}, 0, 0, inventory.ErrScreenNotFound
}

// Hold marks seats first, then takes from the counter.  If the counter
// step fails the seat change is undone.
func (s *Store) Hold(ctx context.Context, ch inventory.Change) error {
	if ch.Screen != nil {
		if err := s.casSeats(ctx, *ch.Screen, func(sc *model.Screen) error {
			if err := inventory.CheckBinding(*sc, ch); err != nil {
				return err
			}
			return inventory.BookSeats(sc, ch.Seats, ch.Holder, ch.Ref, ch.At)
		}); err != nil {
			return err
		}
	}
	if ch.Showtime == nil {
		return nil
	}
	err := s.takeCounter(ctx, *ch.Showtime, ch.Count)
	if err != nil && ch.Screen != nil {
		undo := s.casSeats(context.WithoutCancel(ctx), *ch.Screen, func(sc *model.Screen) error {
			return inventory.FreeSeats(sc, ch.Seats, ch.Holder, ch.Ref)
		})
		if undo != nil {
			return errors.Join(err, fmt.Errorf("undo seat hold: %w", undo))
		}
	}
	return err
}

// Release frees seats (ownership checked inside the CAS), then returns
// the count to the showtime.  If the counter step fails the seats are
// booked again for the holder, so a caller that keeps its booking also
// keeps its seats.
func (s *Store) Release(ctx context.Context, ch inventory.Change) error {
	if ch.Screen != nil {
		if err := s.casSeats(ctx, *ch.Screen, func(sc *model.Screen) error {
			if err := inventory.CheckBinding(*sc, ch); err != nil {
				return err
			}
			return inventory.FreeSeats(sc, ch.Seats, ch.Holder, ch.Ref)
		}); err != nil {
			return err
		}
	}
	if ch.Showtime == nil {
		return nil
	}
	err := s.returnCounter(ctx, *ch.Showtime, ch.Count)
	if err != nil && ch.Screen != nil {
		redo := s.casSeats(context.WithoutCancel(ctx), *ch.Screen, func(sc *model.Screen) error {
			return inventory.BookSeats(sc, ch.Seats, ch.Holder, ch.Ref, ch.At)
		})
		if redo != nil {
			return errors.Join(err, fmt.Errorf("restore released seats: %w", redo))
		}
	}
	return err
}

// takeCounter decrements with a single conditional $inc: the filter only
// matches while the embedded showtime still has n seats.
func (s *Store) takeCounter(ctx context.Context, ref inventory.ShowtimeRef, n int) error {
	res, err := s.movies.UpdateOne(ctx,
		bson.M{
			"_id": ref.MovieID,
			"showtimes": bson.M{"$elemMatch": bson.M{
				"theaterId":      ref.TheaterID,
				"time":           model.NormalizeTime(ref.Time),
				"availableSeats": bson.M{"$gte": n},
			}},
		},
		bson.M{"$inc": bson.M{"showtimes.$.availableSeats": -n}})
	if err != nil {
		return fmt.Errorf("take seats: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.Showtime(ctx, ref); err != nil {
		return err
	}
	return inventory.ErrInsufficientInventory
}

// returnCounter increments with compare-and-set on the previous value so
// the result can be clamped to capacity.
func (s *Store) returnCounter(ctx context.Context, ref inventory.ShowtimeRef, n int) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		st, err := s.Showtime(ctx, ref)
		if err != nil {
			return err
		}
		next := st
		inventory.ReturnSeats(&next, n)
		if next.AvailableSeats == st.AvailableSeats {
			return nil
		}
		res, err := s.movies.UpdateOne(ctx,
			bson.M{
				"_id": ref.MovieID,
				"showtimes": bson.M{"$elemMatch": bson.M{
					"theaterId":      ref.TheaterID,
					"time":           model.NormalizeTime(ref.Time),
					"availableSeats": st.AvailableSeats,
				}},
			},
			bson.M{"$set": bson.M{"showtimes.$.availableSeats": next.AvailableSeats}})
		if err != nil {
			return fmt.Errorf("return seats: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
		backoff(ctx, attempt)
	}
	return inventory.ErrContention
}

// casSeats loads the screen, applies fn and writes the seat array back
// only if the theater version is unchanged.
func (s *Store) casSeats(ctx context.Context, ref inventory.ScreenRef, fn func(*model.Screen) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		sc, idx, version, err := s.loadScreen(ctx, ref)
		if err != nil {
			return err
		}
		if err := fn(&sc); err != nil {
			return err
		}
		res, err := s.theaters.UpdateOne(ctx,
			versionFilter(ref.TheaterID, version),
			bson.M{
				"$set": bson.M{
					fmt.Sprintf("screens.%d.seats", idx): newSeatDocs(sc.Seats),
					"updatedAt":                          model.NormalizeTime(time.Now()),
				},
				"$inc": bson.M{"version": 1},
			})
		if err != nil {
			return fmt.Errorf("write seats: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
		backoff(ctx, attempt)
	}
	return inventory.ErrContention
}

// versionFilter matches the theater at the given version.  Documents
// written before the version field existed read back as version 0 and
// carry no field at all, so version 0 also matches a missing field.
func versionFilter(id string, version int64) bson.M {
	if version == 0 {
		return bson.M{"_id": id, "$or": bson.A{
			bson.M{"version": int64(0)},
			bson.M{"version": bson.M{"$exists": false}},
		}}
	}
	return bson.M{"_id": id, "version": version}
}

func backoff(ctx context.Context, attempt int) {
	d := time.Duration(attempt+1) * 5 * time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
