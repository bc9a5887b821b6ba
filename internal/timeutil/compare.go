package timeutil

import (
	"fmt"
	"time"
)

// CompareOption adjusts how the comparison functions treat their operands.
type CompareOption func(*compareConfig)

type compareConfig struct {
	ignoreTimezone  bool
	ignoreSubsecond bool
}

// IgnoreTimezone marks a comparison that deliberately mixes tagged and
// untagged operands. The standing case is a freshly scanned naive column
// value against an aware filter boundary. Both operands are reduced to
// their UTC readings either way; the option records the intent at the
// call site. It never relaxes the non-UTC rejection.
func IgnoreTimezone() CompareOption {
	return func(c *compareConfig) { c.ignoreTimezone = true }
}

// IgnoreSubsecond compares at whole-second precision, for readings that
// crossed a boundary which truncates microseconds.
func IgnoreSubsecond() CompareOption {
	return func(c *compareConfig) { c.ignoreSubsecond = true }
}

// Equal reports whether a and b name the same instant. Either operand
// tagged non-UTC fails with ErrNonUTCTimezone regardless of options; a
// nil operand fails with ErrInvalidArgument.
func Equal(a, b Instant, opts ...CompareOption) (bool, error) {
	ta, tb, err := compareOperands(a, b, opts)
	if err != nil {
		return false, err
	}
	return ta.Equal(tb), nil
}

// GreaterThan reports whether a is strictly after b, under the same
// rejection rules as Equal.
func GreaterThan(a, b Instant, opts ...CompareOption) (bool, error) {
	ta, tb, err := compareOperands(a, b, opts)
	if err != nil {
		return false, err
	}
	return ta.After(tb), nil
}

// LessThan reports whether a is strictly before b. For every pair the two
// orderings mirror: LessThan(a, b) == GreaterThan(b, a).
func LessThan(a, b Instant, opts ...CompareOption) (bool, error) {
	return GreaterThan(b, a, opts...)
}

func compareOperands(a, b Instant, opts []CompareOption) (time.Time, time.Time, error) {
	if a == nil || b == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: nil operand", ErrInvalidArgument)
	}
	var cfg compareConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	ta, err := utcReading(a)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	tb, err := utcReading(b)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if cfg.ignoreTimezone {
		// Both readings are UTC by now, so stripping the tags cannot
		// change the outcome; it keeps the compared values untagged.
		ta = stripLocation(ta)
		tb = stripLocation(tb)
	}
	if cfg.ignoreSubsecond {
		ta = ta.Truncate(time.Second)
		tb = tb.Truncate(time.Second)
	}
	return ta, tb, nil
}

// utcReading normalizes either representation to its UTC instant,
// rejecting non-UTC tags.
func utcReading(v Instant) (time.Time, error) {
	t, aware := v.instant()
	if aware {
		if err := requireUTC(t); err != nil {
			return time.Time{}, err
		}
	}
	return t, nil
}

// DatesEqual reports whether two date-like values (either timestamp
// representation, time.Time, or a string in a recognized shape) name the
// same calendar day. Values that fail to normalize are compared by their
// string forms instead. Never errors: this is the soft path for
// heterogeneous storage values.
func DatesEqual(a, b any) bool {
	na, aok := NormalizeDBValue(a).(time.Time)
	nb, bok := NormalizeDBValue(b).(time.Time)
	if aok && bok {
		return na.Equal(nb)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// DateInCollection reports whether target names the same calendar day as
// any item, under DatesEqual semantics.
func DateInCollection(target any, items ...any) bool {
	for _, item := range items {
		if DatesEqual(target, item) {
			return true
		}
	}
	return false
}

// DateRange returns one entry per calendar day from start through end
// inclusive, ascending, each at start-of-day. A same-day range has
// exactly one entry. An end before start fails with ErrInvalidRange.
func DateRange(start, end Aware) ([]Aware, error) {
	days, err := dateRange(start.t, end.t)
	if err != nil {
		return nil, err
	}
	out := make([]Aware, len(days))
	for i, d := range days {
		out[i] = Aware{t: d}
	}
	return out, nil
}

// NaiveDateRange is DateRange over untagged readings.
func NaiveDateRange(start, end Naive) ([]Naive, error) {
	days, err := dateRange(start.t, end.t)
	if err != nil {
		return nil, err
	}
	out := make([]Naive, len(days))
	for i, d := range days {
		out[i] = Naive{t: d}
	}
	return out, nil
}

func dateRange(start, end time.Time) ([]time.Time, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s precedes %s", ErrInvalidRange,
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	var days []time.Time
	for d := startOfDay(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

// IsMonthBoundary reports whether a and b fall in different calendar
// months (different year-month pairs), the trigger for month-close
// processing between two readings.
func IsMonthBoundary(a, b Instant) bool {
	if a == nil || b == nil {
		return false
	}
	ta, _ := a.instant()
	tb, _ := b.instant()
	return ta.Year() != tb.Year() || ta.Month() != tb.Month()
}
