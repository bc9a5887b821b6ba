package timeutil_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallybook.org/internal/timeutil"
)

func pinClock(t *testing.T, instant time.Time) {
	t.Helper()
	restore := timeutil.SetClock(timeutil.FixedClock{Instant: instant})
	t.Cleanup(restore)
}

func mustAware(t *testing.T, year int, month time.Month, day, hour, min, sec, micros int) timeutil.Aware {
	t.Helper()
	a, err := timeutil.FromParts(year, month, day, hour, min, sec, micros)
	require.NoError(t, err)
	return a
}

func mustNaive(t *testing.T, year int, month time.Month, day, hour, min, sec, micros int) timeutil.Naive {
	t.Helper()
	n, err := timeutil.NaiveFromParts(year, month, day, hour, min, sec, micros)
	require.NoError(t, err)
	return n
}

func TestFromParts_RoundTripsComponents(t *testing.T) {
	a := mustAware(t, 2025, time.March, 15, 10, 30, 0, 0)

	reading := a.Time()
	assert.Equal(t, 2025, reading.Year())
	assert.Equal(t, time.March, reading.Month())
	assert.Equal(t, 15, reading.Day())
	assert.Equal(t, 10, reading.Hour())
	assert.Equal(t, 30, reading.Minute())
	assert.Equal(t, 0, reading.Second())
	assert.Equal(t, 0, reading.Nanosecond())
	assert.True(t, timeutil.IsUTCCompliant(a))
}

func TestFromParts_KeepsMicrosecondPrecision(t *testing.T) {
	a := mustAware(t, 2025, time.March, 15, 10, 30, 45, 123456)
	assert.Equal(t, 123456000, a.Time().Nanosecond())
}

func TestFromParts_RejectsImpossibleDates(t *testing.T) {
	cases := map[string]struct {
		year                       int
		month                      time.Month
		day, hour, min, sec, micro int
	}{
		"june 31":                  {2025, time.June, 31, 0, 0, 0, 0},
		"february 30":              {2025, time.February, 30, 0, 0, 0, 0},
		"february 29 off-leap":     {2025, time.February, 29, 0, 0, 0, 0},
		"day zero":                 {2025, time.March, 0, 0, 0, 0, 0},
		"month zero":               {2025, 0, 15, 0, 0, 0, 0},
		"month thirteen":           {2025, 13, 15, 0, 0, 0, 0},
		"hour 24":                  {2025, time.March, 15, 24, 0, 0, 0},
		"minute 60":                {2025, time.March, 15, 10, 60, 0, 0},
		"second 60":                {2025, time.March, 15, 10, 30, 60, 0},
		"micros past max":          {2025, time.March, 15, 10, 30, 0, 1000000},
		"negative micros":          {2025, time.March, 15, 10, 30, 0, -1},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := timeutil.FromParts(tc.year, tc.month, tc.day, tc.hour, tc.min, tc.sec, tc.micro)
			require.ErrorIs(t, err, timeutil.ErrInvalidDate)

			_, err = timeutil.NaiveFromParts(tc.year, tc.month, tc.day, tc.hour, tc.min, tc.sec, tc.micro)
			require.ErrorIs(t, err, timeutil.ErrInvalidDate)
		})
	}
}

func TestFromParts_AcceptsLeapDay(t *testing.T) {
	a, err := timeutil.FromParts(2024, time.February, 29, 0, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 29, a.Time().Day())
}

func TestDate_IsMidnight(t *testing.T) {
	a, err := timeutil.Date(2025, time.March, 15)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Time().Hour())
	assert.Equal(t, 0, a.Time().Minute())
	assert.Equal(t, 0, a.Time().Second())
	assert.Equal(t, 0, a.Time().Nanosecond())

	n, err := timeutil.NaiveDate(2025, time.March, 15)
	require.NoError(t, err)
	assert.Equal(t, 0, n.Time().Hour())
}

func TestParse_DefaultLayout(t *testing.T) {
	a, err := timeutil.Parse("2025-03-15 10:30:00", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC), a.Time())
	assert.True(t, timeutil.IsUTCCompliant(a))
}

func TestParse_CustomLayout(t *testing.T) {
	a, err := timeutil.Parse("15/03/2025 10:30", "02/01/2006 15:04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC), a.Time())
}

func TestParse_MismatchFails(t *testing.T) {
	for name, value := range map[string]string{
		"wrong separator": "2025/03/15 10:30:00",
		"date only":       "2025-03-15",
		"garbage":         "not a timestamp",
		"empty":           "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := timeutil.Parse(value, "")
			require.ErrorIs(t, err, timeutil.ErrParse)
		})
	}
}

func TestParseNaive_StripsParsedOffset(t *testing.T) {
	n, err := timeutil.ParseNaive("2025-03-15 10:30:00 +0500", "2006-01-02 15:04:05 -0700")
	require.NoError(t, err)
	// The wall-clock reading survives; the offset does not.
	assert.Equal(t, time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC), n.Time())
}

func TestNow_AwareAndNaiveAgreeUnderPinnedClock(t *testing.T) {
	instant := time.Date(2025, time.March, 15, 10, 30, 45, 123456000, time.UTC)
	pinClock(t, instant)

	a := timeutil.NowAware()
	n := timeutil.NowNaive()

	assert.Equal(t, instant, a.Time())
	assert.True(t, timeutil.IsUTCCompliant(a))
	assert.False(t, timeutil.IsUTCCompliant(n))

	eq, err := timeutil.Equal(a, n, timeutil.IgnoreTimezone())
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestNow_TruncatesToMicroseconds(t *testing.T) {
	pinClock(t, time.Date(2025, time.March, 15, 10, 30, 45, 123456789, time.UTC))

	assert.Equal(t, 123456000, timeutil.NowAware().Time().Nanosecond())
	assert.Equal(t, 123456000, timeutil.NowNaive().Time().Nanosecond())
}

func TestStripTag_KeepsReading(t *testing.T) {
	a := mustAware(t, 2025, time.March, 15, 10, 30, 0, 42)
	n := a.StripTag()

	assert.Equal(t, a.Time().Year(), n.Time().Year())
	assert.Equal(t, a.Time().Nanosecond(), n.Time().Nanosecond())
	assert.False(t, timeutil.IsUTCCompliant(n))
}

func TestAwareFromTime_KeepsForeignOffset(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*3600)
	a := timeutil.AwareFromTime(time.Date(2025, time.March, 15, 10, 30, 0, 0, zone))

	assert.False(t, timeutil.IsUTCCompliant(a))
	_, offset := a.Time().Zone()
	assert.Equal(t, 5*3600, offset)
}

func TestNaiveFromTime_DropsTag(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*3600)
	n := timeutil.NaiveFromTime(time.Date(2025, time.March, 15, 10, 30, 0, 0, zone))

	// Wall clock as written, not shifted.
	assert.Equal(t, time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC), n.Time())
}

func TestIsZero(t *testing.T) {
	assert.True(t, timeutil.Aware{}.IsZero())
	assert.True(t, timeutil.Naive{}.IsZero())
	assert.False(t, mustAware(t, 2025, time.March, 15, 0, 0, 0, 0).IsZero())
}
