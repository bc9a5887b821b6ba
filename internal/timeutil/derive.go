package timeutil

import "time"

// The derived-timestamp methods below come in Aware and Naive flavors with
// identical semantics; both delegate to one core over time.Time. The tag
// (and, for adopted values, its specific offset) is preserved: deriving
// never converts.

// FirstDayOfMonth returns midnight on the first day of the value's month.
func (a Aware) FirstDayOfMonth() Aware { return Aware{t: firstOfMonth(a.t)} }

// FirstDayOfMonth returns midnight on the first day of the value's month.
func (n Naive) FirstDayOfMonth() Naive { return Naive{t: firstOfMonth(n.t)} }

// LastDayOfMonth returns midnight on the last calendar day of the value's
// month, leap-year aware.
func (a Aware) LastDayOfMonth() Aware { return Aware{t: lastOfMonth(a.t)} }

// LastDayOfMonth returns midnight on the last calendar day of the value's
// month, leap-year aware.
func (n Naive) LastDayOfMonth() Naive { return Naive{t: lastOfMonth(n.t)} }

// StartOfDay returns the value's date at 00:00:00.000000.
func (a Aware) StartOfDay() Aware { return Aware{t: startOfDay(a.t)} }

// StartOfDay returns the value's date at 00:00:00.000000.
func (n Naive) StartOfDay() Naive { return Naive{t: startOfDay(n.t)} }

// EndOfDay returns the value's date at 23:59:59.999999, the largest
// representable reading of the day at microsecond precision. Billing-window
// upper bounds built from it are inclusive of the whole day.
func (a Aware) EndOfDay() Aware { return Aware{t: endOfDay(a.t)} }

// EndOfDay returns the value's date at 23:59:59.999999.
func (n Naive) EndOfDay() Naive { return Naive{t: endOfDay(n.t)} }

// SafeEndDate advances the day-of-month by days and returns the result at
// end-of-day. When the nominal day overflows the month (January 30 + 3
// has no "February 32"), the date rolls into the next month and clamps to
// its last day: 2025-01-30 + 3 is 2025-02-28, 2024-01-30 + 3 is
// 2024-02-29. Days that fit stay in the month: 2025-03-15 + 5 is
// 2025-03-20.
func (a Aware) SafeEndDate(days int) Aware { return Aware{t: safeEnd(a.t, days)} }

// SafeEndDate advances the day-of-month by days, clamping to the month
// end on overflow; the result is at end-of-day.
func (n Naive) SafeEndDate(days int) Naive { return Naive{t: safeEnd(n.t, days)} }

// DaysFromNow returns now + n days, UTC-tagged. n may be negative.
func DaysFromNow(n int) Aware {
	return Aware{t: NowAware().t.AddDate(0, 0, n)}
}

// DaysAgo returns now - n days, UTC-tagged. DaysAgo(n) == DaysFromNow(-n).
func DaysAgo(n int) Aware {
	return DaysFromNow(-n)
}

// NaiveDaysFromNow returns now + n days as an untagged reading.
func NaiveDaysFromNow(n int) Naive {
	return Naive{t: NowNaive().t.AddDate(0, 0, n)}
}

// NaiveDaysAgo returns now - n days as an untagged reading.
func NaiveDaysAgo(n int) Naive {
	return NaiveDaysFromNow(-n)
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func lastOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), daysIn(t.Year(), t.Month()), 0, 0, 0, 0, t.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, maxMicros*1000, t.Location())
}

func safeEnd(t time.Time, days int) time.Time {
	year, month := t.Year(), t.Month()
	day := t.Day() + days
	if day > daysIn(year, month) {
		month++
		if month > time.December {
			month = time.January
			year++
		}
		if last := daysIn(year, month); day > last {
			day = last
		}
	}
	return endOfDay(time.Date(year, month, day, 0, 0, 0, 0, t.Location()))
}
