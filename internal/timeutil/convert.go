package timeutil

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// EnsureUTC coerces either representation to a UTC-tagged timestamp.
// Naive readings are tagged UTC unchanged (that is the convention they
// were stored under); already-UTC Aware values pass through as-is. An
// Aware value tagged with any other offset fails with ErrNonUTCTimezone:
// converting it would hide the upstream contract violation that produced
// it. A nil Instant (or nil *Aware/*Naive) passes through as the zero
// Aware with no error, mirroring nullable timestamp columns.
func EnsureUTC(v Instant) (Aware, error) {
	switch x := v.(type) {
	case nil:
		return Aware{}, nil
	case Aware:
		if err := requireUTC(x.t); err != nil {
			return Aware{}, err
		}
		return x, nil
	case *Aware:
		if x == nil {
			return Aware{}, nil
		}
		return EnsureUTC(*x)
	case Naive:
		return Aware{t: x.t}, nil
	case *Naive:
		if x == nil {
			return Aware{}, nil
		}
		return Aware{t: x.t}, nil
	default:
		return Aware{}, fmt.Errorf("%w: %T", ErrInvalidArgument, v)
	}
}

// IsUTCCompliant reports whether v is tagged and the tag is exactly UTC
// (zero offset). Naive values are not compliant: they follow the
// convention but do not carry the tag that proves it.
func IsUTCCompliant(v Instant) bool {
	if v == nil {
		return false
	}
	t, aware := v.instant()
	if !aware {
		return false
	}
	_, offset := t.Zone()
	return offset == 0
}

func requireUTC(t time.Time) error {
	if _, offset := t.Zone(); offset != 0 {
		return fmt.Errorf("%w: %s", ErrNonUTCTimezone, t.Format("-07:00"))
	}
	return nil
}

// dbDateLayouts are the string shapes NormalizeDBValue recognizes, in
// trial order. Four-digit-year fields keep the dashed and slashed forms
// from colliding.
var dbDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"01/02/2006",
	DefaultLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// NormalizeDBValue coerces a raw storage value into a plain calendar date:
// a midnight-UTC time.Time. It recognizes both timestamp representations,
// time.Time, and strings (or []byte) in the date and timestamp shapes that
// appear in imports and older rows. Anything unrecognized comes back
// unchanged: callers at the storage boundary want best effort, never an
// error.
func NormalizeDBValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case Aware:
		return dateOnly(x.t)
	case *Aware:
		if x == nil {
			return v
		}
		return dateOnly(x.t)
	case Naive:
		return dateOnly(x.t)
	case *Naive:
		if x == nil {
			return v
		}
		return dateOnly(x.t)
	case time.Time:
		return dateOnly(x)
	case *time.Time:
		if x == nil {
			return v
		}
		return dateOnly(*x)
	case []byte:
		if t, ok := parseDBDate(string(x)); ok {
			return t
		}
		return v
	case string:
		if t, ok := parseDBDate(x); ok {
			return t
		}
		return v
	default:
		return v
	}
}

func parseDBDate(s string) (time.Time, bool) {
	for _, layout := range dbDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	return time.Time{}, false
}

// dateOnly truncates a reading to its calendar date, midnight UTC.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MarshalJSON renders the value RFC 3339 with an explicit offset, so API
// payloads are always visibly tagged.
func (a Aware) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.t.Format(awareLayout) + `"`), nil
}

// UnmarshalJSON accepts only tagged timestamps and only with a UTC offset.
// Untagged strings fail with ErrParse and non-UTC offsets with
// ErrNonUTCTimezone: the API boundary is where convention violations are
// cheapest to reject.
func (a *Aware) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*a = Aware{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrParse, s)
	}
	t, err := time.Parse(time.RFC3339Nano, s[1:len(s)-1])
	if err != nil {
		return fmt.Errorf("%w: %q is not an RFC 3339 timestamp with offset", ErrParse, s[1:len(s)-1])
	}
	if err := requireUTC(t); err != nil {
		return err
	}
	*a = Aware{t: truncMicros(t)}
	return nil
}

// MarshalJSON renders the wall-clock reading without an offset.
func (n Naive) MarshalJSON() ([]byte, error) {
	return []byte(`"` + n.t.Format(naiveLayout) + `"`), nil
}

// UnmarshalJSON accepts untagged timestamp strings (ISO or the default
// layout, with or without a date-only shortening).
func (n *Naive) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*n = Naive{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrParse, s)
	}
	raw := s[1 : len(s)-1]
	for _, layout := range []string{"2006-01-02T15:04:05", DefaultLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			*n = Naive{t: truncMicros(t)}
			return nil
		}
	}
	return fmt.Errorf("%w: %q is not an untagged timestamp", ErrParse, raw)
}

// Value stores the reading as a wall clock for a timestamp-without-
// timezone column.
func (n Naive) Value() (driver.Value, error) {
	if n.t.IsZero() {
		return nil, nil
	}
	return n.t, nil
}

// Scan reads a timestamp-without-timezone column. Drivers hand these back
// as time.Time (wall clock in some session location) or as raw text.
func (n *Naive) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		*n = Naive{}
		return nil
	case time.Time:
		*n = Naive{t: truncMicros(stripLocation(x))}
		return nil
	case []byte:
		return n.scanString(string(x))
	case string:
		return n.scanString(x)
	default:
		return fmt.Errorf("%w: cannot scan %T into Naive", ErrInvalidArgument, src)
	}
}

func (n *Naive) scanString(s string) error {
	for _, layout := range []string{DefaultLayout, "2006-01-02T15:04:05", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			*n = Naive{t: truncMicros(stripLocation(t))}
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrParse, s)
}
