// Package timeutil is the single place the service reasons about time.
//
// All timestamps in the system are UTC. Values move through two
// representations: Aware carries an explicit timezone tag (which must be
// UTC), while Naive carries none and is UTC wall-clock by convention,
// which is what the database stores. The two are distinct types so the
// convention is enforced by the compiler instead of by code review.
// Conversion goes through EnsureUTC, which tags naive readings and
// refuses non-UTC tags outright rather than converting them: a non-UTC
// tag means some upstream component broke the contract, and converting
// would mask that bug.
package timeutil

import (
	"errors"
	"fmt"
	"time"
)

// DefaultLayout is the parse layout used when none is given
// (the "YYYY-MM-DD HH:MM:SS" shape most fixtures and exports use).
const DefaultLayout = "2006-01-02 15:04:05"

const (
	// maxMicros is the largest sub-second value at the library's precision.
	maxMicros = 999999

	naiveLayout = "2006-01-02T15:04:05.999999"
	awareLayout = "2006-01-02T15:04:05.999999Z07:00"
)

var (
	ErrInvalidDate     = errors.New("invalid calendar date")
	ErrParse           = errors.New("unparsable timestamp")
	ErrNonUTCTimezone  = errors.New("timestamp carries a non-UTC timezone tag")
	ErrInvalidArgument = errors.New("value is not a timestamp")
	ErrInvalidRange    = errors.New("invalid range (end precedes start)")
)

// Aware is a timestamp carrying timezone metadata. Constructors in this
// package always produce UTC tags; AwareFromTime and offset-bearing parse
// layouts can smuggle other offsets in, which EnsureUTC and the comparison
// functions reject.
type Aware struct {
	t time.Time
}

// Naive is a wall-clock timestamp without timezone metadata, UTC by
// convention. It is the storage representation: the database keeps
// timestamps in columns without a timezone, and Naive is what scans out
// of them.
type Naive struct {
	t time.Time
}

// Instant is the common face of Aware and Naive, for operations that
// accept either representation. Only those two types implement it.
type Instant interface {
	// instant reports the underlying reading and whether it carries a tag.
	instant() (time.Time, bool)
}

func (a Aware) instant() (time.Time, bool) { return a.t, true }
func (n Naive) instant() (time.Time, bool) { return n.t, false }

// NowAware returns the current instant tagged UTC.
func NowAware() Aware {
	return Aware{t: truncMicros(clockNow().UTC())}
}

// NowNaive returns the current instant as an untagged UTC reading.
// With a pinned clock, NowAware().StripTag() == NowNaive().
func NowNaive() Naive {
	return Naive{t: truncMicros(clockNow().UTC())}
}

// FromParts builds a UTC-tagged timestamp from calendar components.
// Components that do not form a real date or time (June 31, hour 24,
// micros beyond 999999) fail with ErrInvalidDate.
func FromParts(year int, month time.Month, day, hour, min, sec, micros int) (Aware, error) {
	t, err := composeParts(year, month, day, hour, min, sec, micros, time.UTC)
	if err != nil {
		return Aware{}, err
	}
	return Aware{t: t}, nil
}

// NaiveFromParts is FromParts without the tag.
func NaiveFromParts(year int, month time.Month, day, hour, min, sec, micros int) (Naive, error) {
	t, err := composeParts(year, month, day, hour, min, sec, micros, time.UTC)
	if err != nil {
		return Naive{}, err
	}
	return Naive{t: t}, nil
}

// Date is FromParts at midnight.
func Date(year int, month time.Month, day int) (Aware, error) {
	return FromParts(year, month, day, 0, 0, 0, 0)
}

// NaiveDate is NaiveFromParts at midnight.
func NaiveDate(year int, month time.Month, day int) (Naive, error) {
	return NaiveFromParts(year, month, day, 0, 0, 0, 0)
}

// Parse reads value according to layout (DefaultLayout when empty) and
// returns it UTC-tagged. A mismatch fails with ErrParse. Layouts without
// an offset directive parse as UTC; layouts with one keep the parsed
// offset, to be validated downstream.
func Parse(value, layout string) (Aware, error) {
	t, err := parseLayout(value, layout)
	if err != nil {
		return Aware{}, err
	}
	return Aware{t: t}, nil
}

// ParseNaive reads value according to layout (DefaultLayout when empty)
// and returns the wall-clock reading untagged.
func ParseNaive(value, layout string) (Naive, error) {
	t, err := parseLayout(value, layout)
	if err != nil {
		return Naive{}, err
	}
	return Naive{t: stripLocation(t)}, nil
}

func parseLayout(value, layout string) (time.Time, error) {
	if layout == "" {
		layout = DefaultLayout
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q does not match %q", ErrParse, value, layout)
	}
	return truncMicros(t), nil
}

// AwareFromTime adopts a time.Time as-is, tag included. Non-UTC offsets
// survive this call and are rejected later by EnsureUTC or any comparison.
func AwareFromTime(t time.Time) Aware {
	return Aware{t: truncMicros(t)}
}

// NaiveFromTime keeps t's wall-clock reading and drops the tag.
func NaiveFromTime(t time.Time) Naive {
	return Naive{t: truncMicros(stripLocation(t))}
}

// Time returns the underlying reading, tag included.
func (a Aware) Time() time.Time { return a.t }

// Time returns the wall-clock reading pinned to UTC for interop with APIs
// that require a time.Time. The value itself carries no timezone meaning.
func (n Naive) Time() time.Time { return n.t }

// StripTag drops the timezone tag, keeping the wall-clock reading.
func (a Aware) StripTag() Naive { return Naive{t: stripLocation(a.t)} }

// IsZero reports whether the value is the zero timestamp.
func (a Aware) IsZero() bool { return a.t.IsZero() }

// IsZero reports whether the value is the zero timestamp.
func (n Naive) IsZero() bool { return n.t.IsZero() }

func (a Aware) String() string { return a.t.Format(awareLayout) }

func (n Naive) String() string { return n.t.Format(naiveLayout) }

// composeParts validates components explicitly: time.Date would silently
// normalize June 31 into July 1, which is exactly the bug class this
// package exists to stop.
func composeParts(year int, month time.Month, day, hour, min, sec, micros int, loc *time.Location) (time.Time, error) {
	if month < time.January || month > time.December {
		return time.Time{}, fmt.Errorf("%w: month %d out of range", ErrInvalidDate, int(month))
	}
	if day < 1 || day > daysIn(year, month) {
		return time.Time{}, fmt.Errorf("%w: day %d out of range for %04d-%02d", ErrInvalidDate, day, year, int(month))
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 || sec < 0 || sec > 59 {
		return time.Time{}, fmt.Errorf("%w: time %02d:%02d:%02d out of range", ErrInvalidDate, hour, min, sec)
	}
	if micros < 0 || micros > maxMicros {
		return time.Time{}, fmt.Errorf("%w: microseconds %d out of range", ErrInvalidDate, micros)
	}
	return time.Date(year, month, day, hour, min, sec, micros*1000, loc), nil
}

// daysIn returns the number of days in the month (day 0 of the next month
// is the last day of this one).
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// stripLocation rebuilds the wall-clock reading in UTC, discarding
// whatever zone the reading was expressed in.
func stripLocation(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// truncMicros clamps readings to the library's microsecond precision.
func truncMicros(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.Truncate(time.Microsecond)
}
