package model

import "time"

// Location is the postal address of a theater.
type Location struct {
    Address string `json:"address"`
    City    string `json:"city"`
    State   string `json:"state"`
    ZipCode string `json:"zipCode"`
}

// Theater is a venue with one or more screens.
//
// Fields:
//  ID        – opaque identifier (uuid).
//  Name      – display name.
//  Location  – postal address.
//  Screens   – ordered list of auditoriums, unique by ScreenNumber.
//  Amenities – free form tags such as "IMAX" or "parking".
type Theater struct {
    ID        string    `json:"id"`
    Name      string    `json:"name"`
    Location  Location  `json:"location"`
    Screens   []Screen  `json:"screens"`
    Amenities []string  `json:"amenities"`
    CreatedAt time.Time `json:"createdAt"`
    UpdatedAt time.Time `json:"updatedAt"`
}

// Screen is an auditorium inside a theater.  Seats are materialised
// lazily: a seat record appears the first time somebody books it, and
// the number of records never exceeds TotalSeats.  Showtime names the
// one showtime whose bookings claim these seats, if any.
type Screen struct {
    ScreenNumber int            `json:"screenNumber"`
    TotalSeats   int            `json:"totalSeats"`
    Seats        []Seat         `json:"seats"`
    Showtime     *ScreenBinding `json:"showtime,omitempty"`
}

// ScreenBinding ties a screen to a showtime by its natural key.
type ScreenBinding struct {
    MovieID string    `json:"movieId"`
    Time    time.Time `json:"time"`
}

// ScreenIndex returns the position of screen n in t.Screens or -1.
func (t *Theater) ScreenIndex(n int) int {
    for i := range t.Screens {
        if t.Screens[i].ScreenNumber == n {
            return i
        }
    }
    return -1
}

// SeatIndex returns the position of the seat record for p or -1 when
// the seat has never been materialised.
func (s *Screen) SeatIndex(p SeatPosition) int {
    for i := range s.Seats {
        if s.Seats[i].Row == p.Row && s.Seats[i].Column == p.Column {
            return i
        }
    }
    return -1
}

// Clone returns a deep copy of the screen.
func (s Screen) Clone() Screen {
    out := s
    if s.Showtime != nil {
        b := *s.Showtime
        out.Showtime = &b
    }
    out.Seats = make([]Seat, len(s.Seats))
    for i, seat := range s.Seats {
        out.Seats[i] = seat.Clone()
    }
    return out
}

// Clone returns a deep copy of the theater.
func (t Theater) Clone() Theater {
    out := t
    out.Amenities = append([]string(nil), t.Amenities...)
    out.Screens = make([]Screen, len(t.Screens))
    for i, sc := range t.Screens {
        out.Screens[i] = sc.Clone()
    }
    return out
}
