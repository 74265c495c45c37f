package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

const theaterColumns = `id, name, address, city, state, zip_code, amenities, created_at, updated_at`

type theaterRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Address   string    `db:"address"`
	City      string    `db:"city"`
	State     string    `db:"state"`
	ZipCode   string    `db:"zip_code"`
	Amenities []byte    `db:"amenities"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type screenRow struct {
	TheaterID    string         `db:"theater_id"`
	ScreenNumber int            `db:"screen_number"`
	TotalSeats   int            `db:"total_seats"`
	BoundMovieID sql.NullString `db:"bound_movie_id"`
	BoundAt      sql.NullTime   `db:"bound_at"`
}

func (r screenRow) binding() *model.ScreenBinding {
	if !r.BoundMovieID.Valid || !r.BoundAt.Valid {
		return nil
	}
	return &model.ScreenBinding{MovieID: r.BoundMovieID.String, Time: model.NormalizeTime(r.BoundAt.Time)}
}

const seatColumns = `theater_id, screen_number, seat_row, seat_column, status, booked_by, booking_time, booking_id`

type seatRow struct {
	TheaterID    string         `db:"theater_id"`
	ScreenNumber int            `db:"screen_number"`
	Row          string         `db:"seat_row"`
	Column       int            `db:"seat_column"`
	Status       string         `db:"status"`
	BookedBy     sql.NullString `db:"booked_by"`
	BookingTime  sql.NullTime   `db:"booking_time"`
	BookingID    sql.NullString `db:"booking_id"`
}

func (r seatRow) toModel() model.Seat {
	s := model.Seat{Row: r.Row, Column: r.Column, Status: model.SeatStatus(r.Status)}
	if r.BookedBy.Valid {
		v := r.BookedBy.String
		s.BookedBy = &v
	}
	if r.BookingTime.Valid {
		v := model.NormalizeTime(r.BookingTime.Time)
		s.BookingTime = &v
	}
	if r.BookingID.Valid {
		v := r.BookingID.String
		s.BookingID = &v
	}
	return s
}

func (r theaterRow) toModel() model.Theater {
	return model.Theater{
		ID:   r.ID,
		Name: r.Name,
		Location: model.Location{
			Address: r.Address,
			City:    r.City,
			State:   r.State,
			ZipCode: r.ZipCode,
		},
		Screens:   []model.Screen{},
		Amenities: decodeStrings(r.Amenities),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// TheaterRepo persists theaters, their screens and materialised seats.
type TheaterRepo struct {
	db *sqlx.DB
}

// NewTheaterRepo constructs a TheaterRepo.
func NewTheaterRepo(db *sqlx.DB) *TheaterRepo {
	return &TheaterRepo{db: db}
}

// List returns all theaters ordered by name.
func (r *TheaterRepo) List(ctx context.Context) ([]model.Theater, error) {
	var rows []theaterRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+theaterColumns+` FROM theaters ORDER BY name, id`); err != nil {
		return nil, err
	}
	return r.attachScreens(ctx, rows, `ORDER BY theater_id, screen_number`, `ORDER BY theater_id, screen_number, seat_row, seat_column`)
}

// GetByID loads one theater.
func (r *TheaterRepo) GetByID(ctx context.Context, id string) (model.Theater, error) {
	var row theaterRow
	err := r.db.GetContext(ctx, &row, `SELECT `+theaterColumns+` FROM theaters WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Theater{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Theater{}, err
	}
	out, err := r.attachScreens(ctx, []theaterRow{row},
		`WHERE theater_id = ? ORDER BY screen_number`,
		`WHERE theater_id = ? ORDER BY screen_number, seat_row, seat_column`, id)
	if err != nil {
		return model.Theater{}, err
	}
	return out[0], nil
}

func (r *TheaterRepo) attachScreens(ctx context.Context, rows []theaterRow, screenTail, seatTail string, args ...any) ([]model.Theater, error) {
	var screens []screenRow
	if err := r.db.SelectContext(ctx, &screens, `SELECT theater_id, screen_number, total_seats, bound_movie_id, bound_at FROM screens `+screenTail, args...); err != nil {
		return nil, err
	}
	var seats []seatRow
	if err := r.db.SelectContext(ctx, &seats, `SELECT `+seatColumns+` FROM seats `+seatTail, args...); err != nil {
		return nil, err
	}
	type key struct {
		theater string
		screen  int
	}
	seatsBy := make(map[key][]model.Seat)
	for _, s := range seats {
		k := key{s.TheaterID, s.ScreenNumber}
		seatsBy[k] = append(seatsBy[k], s.toModel())
	}
	screensBy := make(map[string][]model.Screen)
	for _, sc := range screens {
		seats := seatsBy[key{sc.TheaterID, sc.ScreenNumber}]
		if seats == nil {
			seats = []model.Seat{}
		}
		screensBy[sc.TheaterID] = append(screensBy[sc.TheaterID], model.Screen{
			ScreenNumber: sc.ScreenNumber,
			TotalSeats:   sc.TotalSeats,
			Seats:        seats,
			Showtime:     sc.binding(),
		})
	}
	out := make([]model.Theater, 0, len(rows))
	for _, row := range rows {
		t := row.toModel()
		if s, ok := screensBy[t.ID]; ok {
			t.Screens = s
		}
		out = append(out, t)
	}
	return out, nil
}

// Create inserts the theater and its screens.  Seats supplied with the
// theater are inserted as well.
func (r *TheaterRepo) Create(ctx context.Context, t *model.Theater) error {
	amenities, err := jsonColumn(t.Amenities)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO theaters (`+theaterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Name, t.Location.Address, t.Location.City, t.Location.State, t.Location.ZipCode,
			amenities, t.CreatedAt, t.UpdatedAt)
		if isDuplicate(err) {
			return repository.ErrConflict
		}
		if err != nil {
			return err
		}
		for _, sc := range t.Screens {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO screens (theater_id, screen_number, total_seats) VALUES (?, ?, ?)`,
				t.ID, sc.ScreenNumber, sc.TotalSeats); err != nil {
				return err
			}
			if err := upsertSeats(ctx, tx, t.ID, sc.ScreenNumber, sc.Seats); err != nil {
				return err
			}
		}
		return nil
	})
}
