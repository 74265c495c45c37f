package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

const movieColumns = `id, title, description, duration, language, genre, release_date, poster_url, rating, created_at, updated_at`

const showtimeColumns = `id, movie_id, theater_id, screen_number, starts_at, price, capacity, available_seats`

type movieRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Duration    int       `db:"duration"`
	Language    string    `db:"language"`
	Genre       []byte    `db:"genre"`
	ReleaseDate time.Time `db:"release_date"`
	PosterURL   string    `db:"poster_url"`
	Rating      float64   `db:"rating"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type showtimeRow struct {
	ID             string          `db:"id"`
	MovieID        string          `db:"movie_id"`
	TheaterID      string          `db:"theater_id"`
	ScreenNumber   sql.NullInt64   `db:"screen_number"`
	StartsAt       time.Time       `db:"starts_at"`
	Price          decimal.Decimal `db:"price"`
	Capacity       int             `db:"capacity"`
	AvailableSeats int             `db:"available_seats"`
}

func (r movieRow) toModel() model.Movie {
	return model.Movie{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Duration:    r.Duration,
		Language:    r.Language,
		Genre:       decodeStrings(r.Genre),
		ReleaseDate: r.ReleaseDate.UTC(),
		PosterURL:   r.PosterURL,
		Rating:      r.Rating,
		Showtimes:   []model.Showtime{},
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (r showtimeRow) toModel() model.Showtime {
	st := model.Showtime{
		ID:             r.ID,
		TheaterID:      r.TheaterID,
		Time:           model.NormalizeTime(r.StartsAt),
		Price:          r.Price,
		Capacity:       r.Capacity,
		AvailableSeats: r.AvailableSeats,
	}
	if r.ScreenNumber.Valid {
		n := int(r.ScreenNumber.Int64)
		st.ScreenNumber = &n
	}
	return st
}

func screenNumberArg(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

// MovieRepo persists movies and their showtimes.
type MovieRepo struct {
	db *sqlx.DB
}

// NewMovieRepo constructs a MovieRepo.
func NewMovieRepo(db *sqlx.DB) *MovieRepo {
	return &MovieRepo{db: db}
}

// List returns every movie with its showtimes, newest release first.
func (r *MovieRepo) List(ctx context.Context) ([]model.Movie, error) {
	var rows []movieRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+movieColumns+` FROM movies ORDER BY release_date DESC, id`); err != nil {
		return nil, err
	}
	var sts []showtimeRow
	if err := r.db.SelectContext(ctx, &sts, `SELECT `+showtimeColumns+` FROM showtimes ORDER BY movie_id, position`); err != nil {
		return nil, err
	}
	byMovie := make(map[string][]model.Showtime, len(rows))
	for _, st := range sts {
		byMovie[st.MovieID] = append(byMovie[st.MovieID], st.toModel())
	}
	out := make([]model.Movie, 0, len(rows))
	for _, row := range rows {
		m := row.toModel()
		if s, ok := byMovie[m.ID]; ok {
			m.Showtimes = s
		}
		out = append(out, m)
	}
	return out, nil
}

// GetByID loads one movie with its showtimes.
func (r *MovieRepo) GetByID(ctx context.Context, id string) (model.Movie, error) {
	var row movieRow
	err := r.db.GetContext(ctx, &row, `SELECT `+movieColumns+` FROM movies WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Movie{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Movie{}, err
	}
	var sts []showtimeRow
	if err := r.db.SelectContext(ctx, &sts, `SELECT `+showtimeColumns+` FROM showtimes WHERE movie_id = ? ORDER BY position`, id); err != nil {
		return model.Movie{}, err
	}
	m := row.toModel()
	for _, st := range sts {
		m.Showtimes = append(m.Showtimes, st.toModel())
	}
	return m, nil
}

// Create inserts the movie and any showtimes it already carries.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	genre, err := jsonColumn(m.Genre)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO movies (`+movieColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Title, m.Description, m.Duration, m.Language, genre,
			m.ReleaseDate, m.PosterURL, m.Rating, m.CreatedAt, m.UpdatedAt)
		if isDuplicate(err) {
			return repository.ErrConflict
		}
		if err != nil {
			return err
		}
		if len(m.Showtimes) == 0 {
			return nil
		}
		// one INSERT for the whole schedule
		query := `INSERT INTO showtimes (` + showtimeColumns + `, position) VALUES `
		args := make([]any, 0, len(m.Showtimes)*9)
		for i, st := range m.Showtimes {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
			args = append(args, st.ID, m.ID, st.TheaterID, screenNumberArg(st.ScreenNumber),
				model.NormalizeTime(st.Time), st.Price, st.Capacity, st.AvailableSeats, i)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isDuplicate(err) {
				return repository.ErrConflict
			}
			return err
		}
		return nil
	})
}

// Update rewrites the catalogue columns of one movie.
func (r *MovieRepo) Update(ctx context.Context, m *model.Movie) error {
	genre, err := jsonColumn(m.Genre)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockMovie(ctx, tx, m.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE movies SET title = ?, description = ?, duration = ?, language = ?, genre = ?,
				release_date = ?, poster_url = ?, rating = ?, updated_at = ? WHERE id = ?`,
			m.Title, m.Description, m.Duration, m.Language, genre,
			m.ReleaseDate, m.PosterURL, m.Rating, m.UpdatedAt, m.ID)
		return err
	})
}

// Delete removes the movie; its showtimes go with it through the
// foreign key.  Screens bound to those showtimes are released first.
func (r *MovieRepo) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockMovie(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE screens SET bound_movie_id = NULL, bound_at = NULL WHERE bound_movie_id = ?`, id); err != nil {
			return fmt.Errorf("unbind screens: %w", err)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
		return err
	})
}

// AddShowtime appends a showtime to the movie's schedule.  A showtime on
// a named screen claims the screen with a conditional UPDATE, which also
// takes the row lock seat holds wait on.
func (r *MovieRepo) AddShowtime(ctx context.Context, movieID string, st *model.Showtime) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockMovie(ctx, tx, movieID); err != nil {
			return err
		}
		if st.ScreenNumber != nil {
			res, err := tx.ExecContext(ctx,
				`UPDATE screens SET bound_movie_id = ?, bound_at = ?
					WHERE theater_id = ? AND screen_number = ? AND bound_movie_id IS NULL
					AND NOT EXISTS (SELECT 1 FROM seats WHERE seats.theater_id = screens.theater_id
						AND seats.screen_number = screens.screen_number AND seats.status <> 'available')`,
				movieID, model.NormalizeTime(st.Time), st.TheaterID, *st.ScreenNumber)
			if err != nil {
				return fmt.Errorf("bind screen: %w", err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n != 1 {
				return repository.ErrScreenInUse
			}
		}
		var pos int
		if err := tx.GetContext(ctx, &pos, `SELECT COALESCE(MAX(position) + 1, 0) FROM showtimes WHERE movie_id = ?`, movieID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO showtimes (`+showtimeColumns+`, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.ID, movieID, st.TheaterID, screenNumberArg(st.ScreenNumber), model.NormalizeTime(st.Time),
			st.Price, st.Capacity, st.AvailableSeats, pos)
		if isDuplicate(err) {
			return repository.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert showtime: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE movies SET updated_at = ? WHERE id = ?`, model.NormalizeTime(time.Now()), movieID)
		return err
	})
}

func lockMovie(ctx context.Context, tx *sqlx.Tx, id string) error {
	var got string
	err := tx.GetContext(ctx, &got, `SELECT id FROM movies WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}
