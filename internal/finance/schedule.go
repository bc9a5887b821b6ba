package finance

import (
	"fmt"
	"time"

	"tallybook.org/internal/timeutil"
)

// Occurrence projection. Liabilities and incomes describe recurrences;
// the forecast needs the concrete dates they land on inside a window.
// Everything here works on untagged readings, the storage representation.

// LiabilityOccurrences returns the dates l falls due inside [from, to],
// ascending. Monthly liabilities anchor on DueDay and pay on the last day
// of months too short for it (due day 31 pays February 28, or 29 in a
// leap year). Weekly and biweekly liabilities step from the first
// anchored due date; semimonthly ones pay on the 15th and the last day.
func LiabilityOccurrences(l Liability, from, to timeutil.Naive) ([]timeutil.Naive, error) {
	if err := ValidateWindow(from, to); err != nil {
		return nil, err
	}
	switch l.Frequency {
	case FrequencyMonthly:
		return monthlyOccurrences(l.DueDay, from, to), nil
	case FrequencySemimonthly:
		return semimonthlyOccurrences(from, to), nil
	case FrequencyWeekly, FrequencyBiweekly:
		anchor := anchorForDueDay(l.DueDay, from)
		return steppedOccurrences(anchor, stepDays(l.Frequency), from, to), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrequency, l.Frequency)
	}
}

// IncomeOccurrences returns the pay dates of inc inside [from, to],
// ascending, stepping from FirstPayDate. Pay dates before FirstPayDate
// never occur.
func IncomeOccurrences(inc Income, from, to timeutil.Naive) ([]timeutil.Naive, error) {
	if err := ValidateWindow(from, to); err != nil {
		return nil, err
	}
	if inc.FirstPayDate.IsZero() {
		return nil, fmt.Errorf("income %q: %w", inc.Source, ErrMissingDate)
	}
	first := inc.FirstPayDate.StartOfDay()

	switch inc.Frequency {
	case FrequencyMonthly:
		occ := monthlyOccurrences(first.Time().Day(), from, to)
		return dropBefore(occ, first), nil
	case FrequencySemimonthly:
		return dropBefore(semimonthlyOccurrences(from, to), first), nil
	case FrequencyWeekly, FrequencyBiweekly:
		return steppedOccurrences(first, stepDays(inc.Frequency), from, to), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrequency, inc.Frequency)
	}
}

// ValidateWindow rejects reversed [from, to] windows the same way for
// every store.
func ValidateWindow(from, to timeutil.Naive) error {
	after, err := timeutil.GreaterThan(from, to)
	if err != nil {
		return err
	}
	if after {
		return fmt.Errorf("occurrence window: %w", timeutil.ErrInvalidRange)
	}
	return nil
}

// monthlyOccurrences lands on dueDay in each month of the window,
// clamped to the month's length.
func monthlyOccurrences(dueDay int, from, to timeutil.Naive) []timeutil.Naive {
	var out []timeutil.Naive
	cursor := from.FirstDayOfMonth()
	for {
		occ := clampToMonth(cursor, dueDay)
		if inWindow(occ, from, to) {
			out = append(out, occ)
		}
		cursor = nextMonth(cursor)
		if beyond(cursor, to) {
			return out
		}
	}
}

// semimonthlyOccurrences lands on the 15th and the last day of each month
// in the window.
func semimonthlyOccurrences(from, to timeutil.Naive) []timeutil.Naive {
	var out []timeutil.Naive
	cursor := from.FirstDayOfMonth()
	for {
		for _, occ := range []timeutil.Naive{clampToMonth(cursor, 15), cursor.LastDayOfMonth()} {
			if inWindow(occ, from, to) {
				out = append(out, occ)
			}
		}
		cursor = nextMonth(cursor)
		if beyond(cursor, to) {
			return out
		}
	}
}

// steppedOccurrences walks fixed-size day steps from anchor, collecting
// the dates that land inside the window.
func steppedOccurrences(anchor timeutil.Naive, step int, from, to timeutil.Naive) []timeutil.Naive {
	var out []timeutil.Naive
	occ := anchor.StartOfDay()
	// Fast-forward to the window instead of walking from a distant anchor.
	for beforeWindow(occ, from) {
		occ = addDays(occ, step)
	}
	for inWindow(occ, from, to) {
		out = append(out, occ)
		occ = addDays(occ, step)
	}
	return out
}

func stepDays(f Frequency) int {
	if f == FrequencyBiweekly {
		return 14
	}
	return 7
}

// clampToMonth pins day into cursor's month, clamping to the last day
// when the month is shorter.
func clampToMonth(cursor timeutil.Naive, day int) timeutil.Naive {
	last := cursor.LastDayOfMonth()
	if day < 1 {
		day = 1
	}
	if day > last.Time().Day() {
		return last
	}
	return timeutil.NaiveFromTime(time.Date(cursor.Time().Year(), cursor.Time().Month(), day, 0, 0, 0, 0, time.UTC))
}

// anchorForDueDay places a weekly anchor on dueDay in the window's first
// month, so "every week from the 3rd" means what it says.
func anchorForDueDay(dueDay int, from timeutil.Naive) timeutil.Naive {
	return clampToMonth(from.FirstDayOfMonth(), dueDay)
}

func nextMonth(cursor timeutil.Naive) timeutil.Naive {
	return timeutil.NaiveFromTime(cursor.FirstDayOfMonth().Time().AddDate(0, 1, 0))
}

func addDays(n timeutil.Naive, days int) timeutil.Naive {
	return timeutil.NaiveFromTime(n.Time().AddDate(0, 0, days))
}

func inWindow(occ, from, to timeutil.Naive) bool {
	return !beforeWindow(occ, from) && !beyond(occ, to)
}

func beforeWindow(occ, from timeutil.Naive) bool {
	return occ.Time().Before(from.StartOfDay().Time())
}

func beyond(occ, to timeutil.Naive) bool {
	return occ.Time().After(to.EndOfDay().Time())
}

func dropBefore(occ []timeutil.Naive, first timeutil.Naive) []timeutil.Naive {
	out := occ[:0]
	for _, o := range occ {
		if !o.Time().Before(first.Time()) {
			out = append(out, o)
		}
	}
	return out
}
