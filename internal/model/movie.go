package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Movie is a film in the catalogue together with its schedule.  The
// showtimes are embedded children of the movie; each one is addressed
// by the pair (TheaterID, Time) and carries its own seat counter.
//
// Fields:
//  ID          – opaque identifier (uuid).
//  Title       – display title, required.
//  Description – free text synopsis.
//  Duration    – running time in minutes, > 0.
//  Language    – spoken language label.
//  Genre       – set of genre tags.
//  ReleaseDate – release date used for ordering listings.
//  PosterURL   – optional poster image location.
//  Rating      – score between 0 and 10.
//  Showtimes   – ordered schedule of screenings.
type Movie struct {
    ID          string     `json:"id"`
    Title       string     `json:"title"`
    Description string     `json:"description"`
    Duration    int        `json:"duration"`
    Language    string     `json:"language"`
    Genre       []string   `json:"genre"`
    ReleaseDate time.Time  `json:"releaseDate"`
    PosterURL   string     `json:"posterUrl"`
    Rating      float64    `json:"rating"`
    Showtimes   []Showtime `json:"showtimes"`
    CreatedAt   time.Time  `json:"createdAt"`
    UpdatedAt   time.Time  `json:"updatedAt"`
}

// Showtime is one screening of a movie at a theater.  Capacity is fixed
// when the showtime is provisioned; AvailableSeats moves between 0 and
// Capacity as seats are held and released.  ScreenNumber is optional:
// when present, bookings for the showtime also claim concrete seats on
// that screen.
type Showtime struct {
    ID             string          `json:"id"`
    TheaterID      string          `json:"theaterId"`
    ScreenNumber   *int            `json:"screenNumber,omitempty"`
    Time           time.Time       `json:"time"`
    Price          decimal.Decimal `json:"price"`
    Capacity       int             `json:"capacity"`
    AvailableSeats int             `json:"availableSeats"`
}

// FindShowtime returns the index of the showtime scheduled at theaterID
// for the exact instant at, or -1.
func (m *Movie) FindShowtime(theaterID string, at time.Time) int {
    at = NormalizeTime(at)
    for i := range m.Showtimes {
        st := &m.Showtimes[i]
        if st.TheaterID == theaterID && NormalizeTime(st.Time).Equal(at) {
            return i
        }
    }
    return -1
}

// ApplyDetails copies the catalogue fields of src onto m.  The identity,
// the schedule and CreatedAt stay untouched.
func (m *Movie) ApplyDetails(src Movie) {
    m.Title = src.Title
    m.Description = src.Description
    m.Duration = src.Duration
    m.Language = src.Language
    m.Genre = append([]string(nil), src.Genre...)
    m.ReleaseDate = src.ReleaseDate
    m.PosterURL = src.PosterURL
    m.Rating = src.Rating
    m.UpdatedAt = src.UpdatedAt
}

// Clone returns a deep copy so callers can modify the result without
// touching shared state.
func (m Movie) Clone() Movie {
    out := m
    out.Genre = append([]string(nil), m.Genre...)
    out.Showtimes = make([]Showtime, len(m.Showtimes))
    for i, st := range m.Showtimes {
        out.Showtimes[i] = st.Clone()
    }
    return out
}

// Clone copies the showtime including its optional screen number.
func (s Showtime) Clone() Showtime {
    out := s
    if s.ScreenNumber != nil {
        n := *s.ScreenNumber
        out.ScreenNumber = &n
    }
    return out
}

// NormalizeTime maps an instant to the precision every storage backend
// can round-trip: UTC, whole milliseconds.
func NormalizeTime(t time.Time) time.Time {
    return t.UTC().Truncate(time.Millisecond)
}
