package model

import (
    "bytes"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "strings"
    "time"
)

// SeatStatus is the state of a single seat.
type SeatStatus string

const (
    SeatAvailable SeatStatus = "available"
    SeatBooked    SeatStatus = "booked"
    // SeatReserved is accepted when reading stored data but never set.
    SeatReserved SeatStatus = "reserved"
)

// ErrBadSeat is returned when a seat position cannot be parsed.
var ErrBadSeat = errors.New("invalid seat position")

// SeatPosition identifies a seat on a screen by row label and column
// number.  Rows are upper-cased labels ("A", "B", "3"); columns start
// at 1.
type SeatPosition struct {
    Row    string `json:"row"`
    Column int    `json:"column"`
}

// Label renders the position in its compact form, e.g. "A5".  Numeric
// rows are joined with a dash ("3-5") so the label stays unambiguous.
func (p SeatPosition) Label() string {
    if p.Row != "" && isDigits(p.Row) {
        return p.Row + "-" + strconv.Itoa(p.Column)
    }
    return p.Row + strconv.Itoa(p.Column)
}

// Valid reports whether the position names a plausible seat.
func (p SeatPosition) Valid() bool {
    return p.Row != "" && p.Column >= 1
}

// ParseSeatLabel parses "A5", "aa12" or "3-5" into a position.
func ParseSeatLabel(label string) (SeatPosition, error) {
    s := strings.ToUpper(strings.TrimSpace(label))
    if row, col, ok := strings.Cut(s, "-"); ok {
        return newPosition(row, col, label)
    }
    i := 0
    for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
        i++
    }
    if i == 0 || i == len(s) {
        return SeatPosition{}, fmt.Errorf("%w: %q", ErrBadSeat, label)
    }
    return newPosition(s[:i], s[i:], label)
}

func newPosition(row, col, label string) (SeatPosition, error) {
    row = strings.ToUpper(strings.TrimSpace(row))
    n, err := strconv.Atoi(strings.TrimSpace(col))
    p := SeatPosition{Row: row, Column: n}
    if err != nil || !p.Valid() {
        return SeatPosition{}, fmt.Errorf("%w: %q", ErrBadSeat, label)
    }
    return p, nil
}

// UnmarshalJSON accepts either a label string ("A5") or an object
// {"row": "A", "column": 5}.  Numeric rows are accepted and kept as
// their decimal string.
func (p *SeatPosition) UnmarshalJSON(data []byte) error {
    data = bytes.TrimSpace(data)
    if len(data) > 0 && data[0] == '"' {
        var label string
        if err := json.Unmarshal(data, &label); err != nil {
            return err
        }
        pos, err := ParseSeatLabel(label)
        if err != nil {
            return err
        }
        *p = pos
        return nil
    }
    var raw struct {
        Row    json.RawMessage `json:"row"`
        Column json.Number     `json:"column"`
    }
    if err := json.Unmarshal(data, &raw); err != nil {
        return fmt.Errorf("%w: %s", ErrBadSeat, string(data))
    }
    row := strings.Trim(string(bytes.TrimSpace(raw.Row)), `"`)
    pos, err := newPosition(row, raw.Column.String(), string(data))
    if err != nil {
        return err
    }
    *p = pos
    return nil
}

func isDigits(s string) bool {
    for _, r := range s {
        if r < '0' || r > '9' {
            return false
        }
    }
    return true
}

// Seat is the materialised record of one seat on a screen.  BookedBy
// and BookingTime are set iff Status is SeatBooked.  BookingID is set
// when the seat was taken by a showtime booking rather than directly on
// the screen.
type Seat struct {
    Row         string     `json:"row"`
    Column      int        `json:"column"`
    Status      SeatStatus `json:"status"`
    BookedBy    *string    `json:"bookedBy"`
    BookingTime *time.Time `json:"bookingTime"`
    BookingID   *string    `json:"bookingId,omitempty"`
}

// Position returns the seat's identity on its screen.
func (s Seat) Position() SeatPosition { return SeatPosition{Row: s.Row, Column: s.Column} }

// Clone copies the seat including its pointer fields.
func (s Seat) Clone() Seat {
    out := s
    if s.BookedBy != nil {
        v := *s.BookedBy
        out.BookedBy = &v
    }
    if s.BookingTime != nil {
        v := *s.BookingTime
        out.BookingTime = &v
    }
    if s.BookingID != nil {
        v := *s.BookingID
        out.BookingID = &v
    }
    return out
}

// HeldBy reports whether the seat is booked by the given user.
func (s Seat) HeldBy(userID string) bool {
    return s.Status == SeatBooked && s.BookedBy != nil && *s.BookedBy == userID
}
