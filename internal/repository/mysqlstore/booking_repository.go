package mysqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

const bookingColumns = `id, user_id, movie_id, theater_id, showtime, seats, total_amount, status, payment_status, created_at, updated_at`

type bookingRow struct {
	ID            string          `db:"id"`
	UserID        string          `db:"user_id"`
	MovieID       string          `db:"movie_id"`
	TheaterID     string          `db:"theater_id"`
	Showtime      time.Time       `db:"showtime"`
	Seats         []byte          `db:"seats"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	Status        string          `db:"status"`
	PaymentStatus string          `db:"payment_status"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r bookingRow) toModel() (model.Booking, error) {
	b := model.Booking{
		ID:            r.ID,
		UserID:        r.UserID,
		MovieID:       r.MovieID,
		TheaterID:     r.TheaterID,
		Showtime:      model.NormalizeTime(r.Showtime),
		TotalAmount:   r.TotalAmount,
		Status:        model.BookingStatus(r.Status),
		PaymentStatus: model.PaymentStatus(r.PaymentStatus),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(r.Seats, &b.Seats); err != nil {
		return model.Booking{}, fmt.Errorf("decode seats of booking %s: %w", r.ID, err)
	}
	return b, nil
}

// BookingRepo persists booking records.
type BookingRepo struct {
	db *sqlx.DB
}

// NewBookingRepo constructs a BookingRepo.
func NewBookingRepo(db *sqlx.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

// Create inserts a booking.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	seats, err := json.Marshal(b.Seats)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO bookings (`+bookingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.MovieID, b.TheaterID, model.NormalizeTime(b.Showtime), seats, b.TotalAmount,
		string(b.Status), string(b.PaymentStatus), b.CreatedAt, b.UpdatedAt)
	if isDuplicate(err) {
		return repository.ErrConflict
	}
	return err
}

// GetByID loads a booking.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (model.Booking, error) {
	var row bookingRow
	err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	return row.toModel()
}

// ListByUser returns the user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	var rows []bookingRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID); err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(rows))
	for _, row := range rows {
		b, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Cancel flips a confirmed booking to cancelled/refunded.  The status
// predicate in the UPDATE makes concurrent cancels race safely.
// CountConfirmed counts the movie's confirmed bookings.
func (r *BookingRepo) CountConfirmed(ctx context.Context, movieID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bookings WHERE movie_id = ? AND status = ?`,
		movieID, string(model.BookingConfirmed))
	return n, err
}

func (r *BookingRepo) Cancel(ctx context.Context, id string, at time.Time) (model.Booking, error) {
	if err := r.transition(ctx, id, model.BookingConfirmed, model.BookingCancelled, model.PaymentRefunded, at); err != nil {
		return model.Booking{}, err
	}
	return r.GetByID(ctx, id)
}

// Reinstate flips a cancelled booking back to confirmed.
func (r *BookingRepo) Reinstate(ctx context.Context, id string, payment model.PaymentStatus, at time.Time) error {
	return r.transition(ctx, id, model.BookingCancelled, model.BookingConfirmed, payment, at)
}

func (r *BookingRepo) transition(ctx context.Context, id string, from, to model.BookingStatus, payment model.PaymentStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, payment_status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), string(payment), model.NormalizeTime(at), id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = r.db.GetContext(ctx, &exists, `SELECT 1 FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	return repository.ErrConflict
}
