package core

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DayLayout is the canonical encoding for observation dates. Dates are
// persisted as TEXT in this layout so lexicographic and chronological
// order agree, which lets MAX(date) work without casts.
const DayLayout = "2006-01-02"

// Day is a calendar date with no time component. It forms the second half
// of the (symbol, date) observation key.
type Day struct {
	t time.Time
}

// NewDay builds a Day from its calendar components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar date in local time.
func Today() Day {
	now := time.Now()
	return NewDay(now.Year(), now.Month(), now.Day())
}

// DayOf truncates a timestamp to its calendar date.
func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

// ParseDay parses a date in DayLayout.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day{t: t}, nil
}

func (d Day) String() string { return d.t.Format(DayLayout) }

// AddDays returns the day shifted by n calendar days.
func (d Day) AddDays(n int) Day {
	return NewDay(d.t.Year(), d.t.Month(), d.t.Day()+n)
}

func (d Day) After(o Day) bool  { return d.t.After(o.t) }
func (d Day) Before(o Day) bool { return d.t.Before(o.t) }
func (d Day) Equal(o Day) bool  { return d.t.Equal(o.t) }
func (d Day) IsZero() bool      { return d.t.IsZero() }

// Time exposes the underlying midnight-UTC timestamp.
func (d Day) Time() time.Time { return d.t }

// GormDataType tells the migrator which column type to create.
func (Day) GormDataType() string { return "date" }

// Value implements driver.Valuer.
func (d Day) Value() (driver.Value, error) { return d.String(), nil }

// Scan implements sql.Scanner. The sqlite driver may hand back the stored
// TEXT or an already-parsed time, depending on the declared column type.
func (d *Day) Scan(value any) error {
	switch v := value.(type) {
	case time.Time:
		*d = DayOf(v)
		return nil
	case string:
		parsed, err := ParseDay(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := ParseDay(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Day", value)
	}
}

// MarshalJSON encodes the day in DayLayout.
func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a DayLayout string.
func (d *Day) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid day literal %s", s)
	}
	parsed, err := ParseDay(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
