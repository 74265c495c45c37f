package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/movie-ticket-booking/internal/inventory"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// InventoryStore applies holds and releases inside one transaction.
// The screen row and the showtime row are locked with SELECT ... FOR
// UPDATE (always in that order) before anything is checked, so two
// requests for the same seats or showtime run one after the other while
// unrelated showtimes proceed in parallel.
type InventoryStore struct {
	db *sqlx.DB
}

// NewInventoryStore constructs an InventoryStore.
func NewInventoryStore(db *sqlx.DB) *InventoryStore {
	return &InventoryStore{db: db}
}

type querier interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Showtime reads the current counter without locking.
func (s *InventoryStore) Showtime(ctx context.Context, ref inventory.ShowtimeRef) (model.Showtime, error) {
	row, err := loadShowtime(ctx, s.db, ref, "")
	if err != nil {
		return model.Showtime{}, err
	}
	return row.toModel(), nil
}

// Screen reads a screen and its seats without locking.
func (s *InventoryStore) Screen(ctx context.Context, ref inventory.ScreenRef) (model.Screen, error) {
	return loadScreen(ctx, s.db, ref, "")
}

// Hold books seats and/or decrements the counter.
func (s *InventoryStore) Hold(ctx context.Context, ch inventory.Change) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if ch.Screen != nil {
			sc, err := loadScreen(ctx, tx, *ch.Screen, " FOR UPDATE")
			if err != nil {
				return err
			}
			if err := inventory.CheckBinding(sc, ch); err != nil {
				return err
			}
			if err := inventory.BookSeats(&sc, ch.Seats, ch.Holder, ch.Ref, ch.At); err != nil {
				return err
			}
			booked := make([]model.Seat, 0, len(ch.Seats))
			for _, p := range ch.Seats {
				booked = append(booked, sc.Seats[sc.SeatIndex(p)])
			}
			if err := upsertSeats(ctx, tx, ch.Screen.TheaterID, ch.Screen.ScreenNumber, booked); err != nil {
				return err
			}
		}
		if ch.Showtime != nil {
			st, err := loadShowtime(ctx, tx, *ch.Showtime, " FOR UPDATE")
			if err != nil {
				return err
			}
			if st.AvailableSeats < ch.Count {
				return inventory.ErrInsufficientInventory
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE showtimes SET available_seats = available_seats - ? WHERE id = ? AND available_seats >= ?`,
				ch.Count, st.ID, ch.Count)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n != 1 {
				return inventory.ErrInsufficientInventory
			}
		}
		return nil
	})
}

// Release frees seats held by the holder and/or increments the counter,
// clamped to capacity.
func (s *InventoryStore) Release(ctx context.Context, ch inventory.Change) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if ch.Screen != nil {
			sc, err := loadScreen(ctx, tx, *ch.Screen, " FOR UPDATE")
			if err != nil {
				return err
			}
			if err := inventory.CheckBinding(sc, ch); err != nil {
				return err
			}
			if err := inventory.FreeSeats(&sc, ch.Seats, ch.Holder, ch.Ref); err != nil {
				return err
			}
			query := `UPDATE seats SET status = 'available', booked_by = NULL, booking_time = NULL, booking_id = NULL
				WHERE theater_id = ? AND screen_number = ? AND booked_by = ? AND (`
			args := []any{ch.Screen.TheaterID, ch.Screen.ScreenNumber, ch.Holder}
			for i, p := range ch.Seats {
				if i > 0 {
					query += " OR "
				}
				query += "(seat_row = ? AND seat_column = ?)"
				args = append(args, p.Row, p.Column)
			}
			res, err := tx.ExecContext(ctx, query+")", args...)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if int(n) != len(ch.Seats) {
				return inventory.ErrNotHeld
			}
		}
		if ch.Showtime != nil {
			st, err := loadShowtime(ctx, tx, *ch.Showtime, " FOR UPDATE")
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE showtimes SET available_seats = LEAST(capacity, available_seats + ?) WHERE id = ?`,
				ch.Count, st.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func loadShowtime(ctx context.Context, q querier, ref inventory.ShowtimeRef, lock string) (showtimeRow, error) {
	var row showtimeRow
	err := q.GetContext(ctx, &row,
		`SELECT `+showtimeColumns+` FROM showtimes WHERE movie_id = ? AND theater_id = ? AND starts_at = ?`+lock,
		ref.MovieID, ref.TheaterID, model.NormalizeTime(ref.Time))
	if errors.Is(err, sql.ErrNoRows) {
		return showtimeRow{}, inventory.ErrShowtimeNotFound
	}
	if err != nil {
		return showtimeRow{}, fmt.Errorf("load showtime: %w", err)
	}
	return row, nil
}

func loadScreen(ctx context.Context, q querier, ref inventory.ScreenRef, lock string) (model.Screen, error) {
	var head screenRow
	err := q.GetContext(ctx, &head,
		`SELECT total_seats, bound_movie_id, bound_at FROM screens WHERE theater_id = ? AND screen_number = ?`+lock,
		ref.TheaterID, ref.ScreenNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Screen{}, inventory.ErrScreenNotFound
	}
	if err != nil {
		return model.Screen{}, fmt.Errorf("load screen: %w", err)
	}
	var rows []seatRow
	if err := q.SelectContext(ctx, &rows,
		`SELECT `+seatColumns+` FROM seats WHERE theater_id = ? AND screen_number = ? ORDER BY seat_row, seat_column`,
		ref.TheaterID, ref.ScreenNumber); err != nil {
		return model.Screen{}, fmt.Errorf("load seats: %w", err)
	}
	sc := model.Screen{ScreenNumber: ref.ScreenNumber, TotalSeats: head.TotalSeats, Showtime: head.binding(), Seats: make([]model.Seat, 0, len(rows))}
	for _, r := range rows {
		sc.Seats = append(sc.Seats, r.toModel())
	}
	return sc, nil
}

// upsertSeats writes seat records in one statement, creating rows for
// seats that were never materialised.
func upsertSeats(ctx context.Context, tx *sqlx.Tx, theaterID string, screen int, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (` + seatColumns + `) VALUES `
	args := make([]any, 0, len(seats)*8)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?, ?)"
		var by, at, booking any
		if s.BookedBy != nil {
			by = *s.BookedBy
		}
		if s.BookingTime != nil {
			at = model.NormalizeTime(*s.BookingTime)
		}
		if s.BookingID != nil {
			booking = *s.BookingID
		}
		args = append(args, theaterID, screen, s.Row, s.Column, string(s.Status), by, at, booking)
	}
	query += ` ON DUPLICATE KEY UPDATE status = VALUES(status), booked_by = VALUES(booked_by),
		booking_time = VALUES(booking_time), booking_id = VALUES(booking_id)`
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
