package mongostore

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// Documents mirror the model with bson tags.  Money is stored as
// Decimal128 so no precision is lost.

type movieDoc struct {
	ID          string        `bson:"_id"`
	Title       string        `bson:"title"`
	Description string        `bson:"description"`
	Duration    int           `bson:"duration"`
	Language    string        `bson:"language"`
	Genre       []string      `bson:"genre"`
	ReleaseDate time.Time     `bson:"releaseDate"`
	PosterURL   string        `bson:"posterUrl"`
	Rating      float64       `bson:"rating"`
	Showtimes   []showtimeDoc `bson:"showtimes"`
	CreatedAt   time.Time     `bson:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt"`
}

type showtimeDoc struct {
	ID             string               `bson:"id"`
	TheaterID      string               `bson:"theaterId"`
	ScreenNumber   *int                 `bson:"screenNumber,omitempty"`
	Time           time.Time            `bson:"time"`
	Price          primitive.Decimal128 `bson:"price"`
	Capacity       int                  `bson:"capacity"`
	AvailableSeats int                  `bson:"availableSeats"`
}

type theaterDoc struct {
	ID        string         `bson:"_id"`
	Name      string         `bson:"name"`
	Location  model.Location `bson:"location"`
	Screens   []screenDoc    `bson:"screens"`
	Amenities []string       `bson:"amenities"`
	Version   int64          `bson:"version"`
	CreatedAt time.Time      `bson:"createdAt"`
	UpdatedAt time.Time      `bson:"updatedAt"`
}

type screenDoc struct {
	ScreenNumber int         `bson:"screenNumber"`
	TotalSeats   int         `bson:"totalSeats"`
	Seats        []seatDoc   `bson:"seats"`
	Showtime     *bindingDoc `bson:"showtime,omitempty"`
}

type bindingDoc struct {
	MovieID string    `bson:"movieId"`
	Time    time.Time `bson:"time"`
}

type seatDoc struct {
	Row         string     `bson:"row"`
	Column      int        `bson:"column"`
	Status      string     `bson:"status"`
	BookedBy    *string    `bson:"bookedBy"`
	BookingTime *time.Time `bson:"bookingTime"`
	BookingID   *string    `bson:"bookingId,omitempty"`
}

type positionDoc struct {
	Row    string `bson:"row"`
	Column int    `bson:"column"`
}

type bookingDoc struct {
	ID            string               `bson:"_id"`
	UserID        string               `bson:"userId"`
	MovieID       string               `bson:"movieId"`
	TheaterID     string               `bson:"theaterId"`
	Showtime      time.Time            `bson:"showtime"`
	Seats         []positionDoc        `bson:"seats"`
	TotalAmount   primitive.Decimal128 `bson:"totalAmount"`
	Status        string               `bson:"status"`
	PaymentStatus string               `bson:"paymentStatus"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"passwordHash"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func newMovieDoc(m model.Movie) movieDoc {
	doc := movieDoc{
		ID: m.ID, Title: m.Title, Description: m.Description, Duration: m.Duration,
		Language: m.Language, Genre: m.Genre, ReleaseDate: m.ReleaseDate, PosterURL: m.PosterURL,
		Rating: m.Rating, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
		Showtimes: make([]showtimeDoc, 0, len(m.Showtimes)),
	}
	if doc.Genre == nil {
		doc.Genre = []string{}
	}
	for _, st := range m.Showtimes {
		doc.Showtimes = append(doc.Showtimes, newShowtimeDoc(st))
	}
	return doc
}

func newShowtimeDoc(st model.Showtime) showtimeDoc {
	return showtimeDoc{
		ID: st.ID, TheaterID: st.TheaterID, ScreenNumber: st.ScreenNumber,
		Time: model.NormalizeTime(st.Time), Price: toDecimal128(st.Price),
		Capacity: st.Capacity, AvailableSeats: st.AvailableSeats,
	}
}

func (d movieDoc) toModel() model.Movie {
	m := model.Movie{
		ID: d.ID, Title: d.Title, Description: d.Description, Duration: d.Duration,
		Language: d.Language, Genre: d.Genre, ReleaseDate: d.ReleaseDate.UTC(), PosterURL: d.PosterURL,
		Rating: d.Rating, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
		Showtimes: make([]model.Showtime, 0, len(d.Showtimes)),
	}
	if m.Genre == nil {
		m.Genre = []string{}
	}
	for _, st := range d.Showtimes {
		m.Showtimes = append(m.Showtimes, st.toModel())
	}
	return m
}

func (d showtimeDoc) toModel() model.Showtime {
	return model.Showtime{
		ID: d.ID, TheaterID: d.TheaterID, ScreenNumber: d.ScreenNumber,
		Time: model.NormalizeTime(d.Time), Price: fromDecimal128(d.Price),
		Capacity: d.Capacity, AvailableSeats: d.AvailableSeats,
	}
}

func newTheaterDoc(t model.Theater) theaterDoc {
	doc := theaterDoc{
		ID: t.ID, Name: t.Name, Location: t.Location, Amenities: t.Amenities,
		CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
		Screens: make([]screenDoc, 0, len(t.Screens)),
	}
	if doc.Amenities == nil {
		doc.Amenities = []string{}
	}
	for _, sc := range t.Screens {
		doc.Screens = append(doc.Screens, newScreenDoc(sc))
	}
	return doc
}

func newScreenDoc(sc model.Screen) screenDoc {
	doc := screenDoc{ScreenNumber: sc.ScreenNumber, TotalSeats: sc.TotalSeats, Seats: newSeatDocs(sc.Seats)}
	if sc.Showtime != nil {
		doc.Showtime = &bindingDoc{MovieID: sc.Showtime.MovieID, Time: model.NormalizeTime(sc.Showtime.Time)}
	}
	return doc
}

func newSeatDocs(seats []model.Seat) []seatDoc {
	out := make([]seatDoc, 0, len(seats))
	for _, s := range seats {
		out = append(out, seatDoc{Row: s.Row, Column: s.Column, Status: string(s.Status), BookedBy: s.BookedBy, BookingTime: s.BookingTime, BookingID: s.BookingID})
	}
	return out
}

func (d theaterDoc) toModel() model.Theater {
	t := model.Theater{
		ID: d.ID, Name: d.Name, Location: d.Location, Amenities: d.Amenities,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
		Screens: make([]model.Screen, 0, len(d.Screens)),
	}
	if t.Amenities == nil {
		t.Amenities = []string{}
	}
	for _, sc := range d.Screens {
		t.Screens = append(t.Screens, sc.toModel())
	}
	return t
}

func (d screenDoc) toModel() model.Screen {
	sc := model.Screen{ScreenNumber: d.ScreenNumber, TotalSeats: d.TotalSeats, Seats: make([]model.Seat, 0, len(d.Seats))}
	if d.Showtime != nil {
		sc.Showtime = &model.ScreenBinding{MovieID: d.Showtime.MovieID, Time: model.NormalizeTime(d.Showtime.Time)}
	}
	for _, s := range d.Seats {
		seat := model.Seat{Row: s.Row, Column: s.Column, Status: model.SeatStatus(s.Status), BookedBy: s.BookedBy, BookingID: s.BookingID}
		if s.BookingTime != nil {
			v := model.NormalizeTime(*s.BookingTime)
			seat.BookingTime = &v
		}
		sc.Seats = append(sc.Seats, seat)
	}
	return sc
}

func newBookingDoc(b model.Booking) bookingDoc {
	doc := bookingDoc{
		ID: b.ID, UserID: b.UserID, MovieID: b.MovieID, TheaterID: b.TheaterID,
		Showtime: model.NormalizeTime(b.Showtime), TotalAmount: toDecimal128(b.TotalAmount),
		Status: string(b.Status), PaymentStatus: string(b.PaymentStatus),
		CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
		Seats: make([]positionDoc, 0, len(b.Seats)),
	}
	for _, p := range b.Seats {
		doc.Seats = append(doc.Seats, positionDoc{Row: p.Row, Column: p.Column})
	}
	return doc
}

func (d bookingDoc) toModel() model.Booking {
	b := model.Booking{
		ID: d.ID, UserID: d.UserID, MovieID: d.MovieID, TheaterID: d.TheaterID,
		Showtime: model.NormalizeTime(d.Showtime), TotalAmount: fromDecimal128(d.TotalAmount),
		Status: model.BookingStatus(d.Status), PaymentStatus: model.PaymentStatus(d.PaymentStatus),
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
		Seats: make([]model.SeatPosition, 0, len(d.Seats)),
	}
	for _, p := range d.Seats {
		b.Seats = append(b.Seats, model.SeatPosition{Row: p.Row, Column: p.Column})
	}
	return b
}

func (d userDoc) toModel() model.User {
	return model.User{ID: d.ID, Name: d.Name, Email: d.Email, PasswordHash: d.PasswordHash, Role: d.Role, CreatedAt: d.CreatedAt.UTC()}
}
