package timeutil_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallybook.org/internal/timeutil"
)

func TestEqual_ExactInstant(t *testing.T) {
	a := mustAware(t, 2025, time.March, 15, 10, 30, 0, 123456)
	b := mustAware(t, 2025, time.March, 15, 10, 30, 0, 123456)
	c := mustAware(t, 2025, time.March, 15, 10, 30, 0, 123457)

	eq, err := timeutil.Equal(a, b)
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = timeutil.Equal(a, c)
	require.NoError(t, err)
	assert.False(t, eq)
}

func TestEqual_IgnoreSubsecond(t *testing.T) {
	a := mustAware(t, 2025, time.March, 15, 10, 30, 0, 123456)
	b := mustAware(t, 2025, time.March, 15, 10, 30, 0, 999999)

	eq, err := timeutil.Equal(a, b)
	require.NoError(t, err)
	assert.False(t, eq)

	eq, err = timeutil.Equal(a, b, timeutil.IgnoreSubsecond())
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestEqual_TagStrippingEquivalence(t *testing.T) {
	// Matching components compare equal across representations whenever
	// IgnoreTimezone declares the mix intentional.
	a := mustAware(t, 2025, time.March, 15, 10, 30, 45, 42)
	n := mustNaive(t, 2025, time.March, 15, 10, 30, 45, 42)

	eq, err := timeutil.Equal(a, n, timeutil.IgnoreTimezone())
	require.NoError(t, err)
	assert.True(t, eq)

	// Normalization tags naive readings UTC first, so the plain form
	// agrees with the flagged one.
	eq, err = timeutil.Equal(a, n)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestComparisons_RejectForeignOffsets(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*3600)
	foreign := timeutil.AwareFromTime(time.Date(2025, time.March, 15, 13, 30, 0, 0, zone))
	utc := mustAware(t, 2025, time.March, 15, 10, 30, 0, 0)

	_, err := timeutil.Equal(foreign, utc)
	require.ErrorIs(t, err, timeutil.ErrNonUTCTimezone)

	_, err = timeutil.Equal(utc, foreign)
	require.ErrorIs(t, err, timeutil.ErrNonUTCTimezone)

	// The options never relax the rejection.
	_, err = timeutil.Equal(foreign, utc, timeutil.IgnoreTimezone(), timeutil.IgnoreSubsecond())
	require.ErrorIs(t, err, timeutil.ErrNonUTCTimezone)

	_, err = timeutil.GreaterThan(foreign, utc)
	require.ErrorIs(t, err, timeutil.ErrNonUTCTimezone)

	_, err = timeutil.LessThan(utc, foreign)
	require.ErrorIs(t, err, timeutil.ErrNonUTCTimezone)
}

func TestComparisons_RejectNilOperands(t *testing.T) {
	a := mustAware(t, 2025, time.March, 15, 10, 30, 0, 0)

	_, err := timeutil.Equal(nil, a)
	require.ErrorIs(t, err, timeutil.ErrInvalidArgument)

	_, err = timeutil.GreaterThan(a, nil)
	require.ErrorIs(t, err, timeutil.ErrInvalidArgument)
}

func TestGreaterThanAndLessThan_Mirror(t *testing.T) {
	early := mustAware(t, 2025, time.March, 15, 10, 0, 0, 0)
	late := mustAware(t, 2025, time.March, 15, 12, 0, 0, 0)
	naiveLate := mustNaive(t, 2025, time.March, 15, 12, 0, 0, 0)

	pairs := []struct {
		name string
		a, b timeutil.Instant
	}{
		{"aware before aware", early, late},
		{"aware after aware", late, early},
		{"equal operands", early, early},
		{"mixed representations", early, naiveLate},
	}

	for _, tc := range pairs {
		t.Run(tc.name, func(t *testing.T) {
			lt, err := timeutil.LessThan(tc.a, tc.b)
			require.NoError(t, err)
			gt, err := timeutil.GreaterThan(tc.b, tc.a)
			require.NoError(t, err)
			assert.Equal(t, gt, lt)
		})
	}

	gt, err := timeutil.GreaterThan(late, early)
	require.NoError(t, err)
	assert.True(t, gt)

	lt, err := timeutil.LessThan(late, early)
	require.NoError(t, err)
	assert.False(t, lt)

	// Equal operands order neither way.
	gt, err = timeutil.GreaterThan(early, early)
	require.NoError(t, err)
	assert.False(t, gt)
}

func TestDatesEqual_AcrossShapes(t *testing.T) {
	aware := mustAware(t, 2025, time.March, 15, 23, 59, 0, 0)
	naive := mustNaive(t, 2025, time.March, 15, 0, 30, 0, 0)

	cases := map[string]struct {
		a, b any
		want bool
	}{
		"dashed vs slashed":        {"2025-03-15", "2025/03/15", true},
		"day-first vs iso":         {"15-03-2025", "2025-03-15", true},
		"month-first vs iso":       {"03/15/2025", "2025-03-15", true},
		"date vs datetime":         {"2025-03-15", "2025-03-15 10:30:00", true},
		"different days":           {"2025-03-15", "2025-03-16", false},
		"aware vs naive same day":  {aware, naive, true},
		"timestamp vs string":      {aware, "2025/03/15", true},
		"time.Time vs string":      {time.Date(2025, time.March, 15, 8, 0, 0, 0, time.UTC), "15-03-2025", true},
		"unparsable equal strings": {"n/a", "n/a", true},
		"unparsable vs date":       {"n/a", "2025-03-15", false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, timeutil.DatesEqual(tc.a, tc.b))
		})
	}
}

func TestDateInCollection(t *testing.T) {
	naive := mustNaive(t, 2025, time.March, 15, 14, 0, 0, 0)

	assert.True(t, timeutil.DateInCollection("2025-03-15", "2025-01-01", naive, "2025-06-30"))
	assert.True(t, timeutil.DateInCollection(naive, "15-03-2025"))
	assert.False(t, timeutil.DateInCollection("2025-03-14", "2025-03-15", "2025-03-16"))
	assert.False(t, timeutil.DateInCollection("2025-03-14"))
}

func TestIsUTCCompliant(t *testing.T) {
	assert.True(t, timeutil.IsUTCCompliant(mustAware(t, 2025, time.March, 15, 0, 0, 0, 0)))
	assert.False(t, timeutil.IsUTCCompliant(mustNaive(t, 2025, time.March, 15, 0, 0, 0, 0)))
	assert.False(t, timeutil.IsUTCCompliant(nil))

	zone := time.FixedZone("UTC+1", 3600)
	assert.False(t, timeutil.IsUTCCompliant(timeutil.AwareFromTime(time.Date(2025, time.March, 15, 0, 0, 0, 0, zone))))
}

func TestDateRange_SingleDay(t *testing.T) {
	d := mustAware(t, 2025, time.March, 15, 10, 30, 0, 0)

	days, err := timeutil.DateRange(d, d)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), days[0].Time())
}

func TestDateRange_SpansMonthBoundary(t *testing.T) {
	start := mustAware(t, 2025, time.March, 30, 9, 0, 0, 0)
	end := mustAware(t, 2025, time.April, 2, 18, 0, 0, 0)

	days, err := timeutil.DateRange(start, end)
	require.NoError(t, err)
	require.Len(t, days, 4)

	wantDays := []time.Time{
		time.Date(2025, time.March, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.April, 2, 0, 0, 0, 0, time.UTC),
	}
	for i, want := range wantDays {
		assert.Equal(t, want, days[i].Time())
	}
}

func TestDateRange_EndBeforeStartFails(t *testing.T) {
	start := mustAware(t, 2025, time.March, 15, 0, 0, 0, 0)
	end := mustAware(t, 2025, time.March, 14, 0, 0, 0, 0)

	_, err := timeutil.DateRange(start, end)
	require.ErrorIs(t, err, timeutil.ErrInvalidRange)
}

func TestNaiveDateRange(t *testing.T) {
	start := mustNaive(t, 2025, time.February, 27, 12, 0, 0, 0)
	end := mustNaive(t, 2025, time.March, 1, 12, 0, 0, 0)

	days, err := timeutil.NaiveDateRange(start, end)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, 28, days[1].Time().Day())
	assert.Equal(t, time.March, days[2].Time().Month())

	_, err = timeutil.NaiveDateRange(end, start)
	require.ErrorIs(t, err, timeutil.ErrInvalidRange)
}

func TestIsMonthBoundary(t *testing.T) {
	cases := map[string]struct {
		a, b timeutil.Instant
		want bool
	}{
		"adjacent days across months": {
			mustNaive(t, 2025, time.March, 31, 0, 0, 0, 0),
			mustNaive(t, 2025, time.April, 1, 0, 0, 0, 0),
			true,
		},
		"same month": {
			mustNaive(t, 2025, time.March, 15, 0, 0, 0, 0),
			mustNaive(t, 2025, time.March, 30, 0, 0, 0, 0),
			false,
		},
		"year rollover": {
			mustNaive(t, 2024, time.December, 31, 0, 0, 0, 0),
			mustNaive(t, 2025, time.January, 1, 0, 0, 0, 0),
			true,
		},
		"same month across representations": {
			mustAware(t, 2025, time.March, 1, 0, 0, 0, 0),
			mustNaive(t, 2025, time.March, 31, 0, 0, 0, 0),
			false,
		},
		"same month different years": {
			mustNaive(t, 2024, time.March, 15, 0, 0, 0, 0),
			mustNaive(t, 2025, time.March, 15, 0, 0, 0, 0),
			true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, timeutil.IsMonthBoundary(tc.a, tc.b))
			assert.Equal(t, tc.want, timeutil.IsMonthBoundary(tc.b, tc.a))
		})
	}
}
