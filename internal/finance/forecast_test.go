package finance

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallybook.org/internal/timeutil"
)

func assertDec(t *testing.T, want string, got decimal.Decimal, label string) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "%s: want %s, got %s", label, want, got)
}

func forecastDay(t *testing.T, fc CashflowForecast, date string) ForecastDay {
	t.Helper()
	for _, d := range fc.Days {
		if d.Date.Time().Format("2006-01-02") == date {
			return d
		}
	}
	t.Fatalf("no forecast day %s", date)
	return ForecastDay{}
}

func TestBuildForecastRunningBalance(t *testing.T) {
	pinDay(t, 2025, time.March, 1)
	accID := uuid.New()

	in := ForecastInput{
		Accounts: []Account{
			{ID: accID, Name: "checking", Type: AccountChecking, Balance: dec("500"), Active: true},
			{ID: uuid.New(), Name: "savings", Type: AccountSavings, Balance: dec("300"), Active: true},
			{ID: uuid.New(), Name: "card", Type: AccountCredit, Balance: dec("200"), Active: true},
			{ID: uuid.New(), Name: "closed", Type: AccountChecking, Balance: dec("1000"), Active: false},
		},
		Liabilities: []Liability{
			{Name: "rent", Amount: dec("1200"), DueDay: 5, Frequency: FrequencyMonthly, Active: true},
			{Name: "old gym", Amount: dec("60"), DueDay: 5, Frequency: FrequencyMonthly, Active: false},
		},
		Incomes: []Income{
			{
				Source: "day job", Amount: dec("800"), Frequency: FrequencyBiweekly,
				HoursPerWeek: dec("40"), FirstPayDate: naiveDay(t, 2025, time.March, 7), Active: true,
			},
		},
		Schedules: []Schedule{
			{AccountID: accID, Kind: SchedulePayment, Name: "car repair", Amount: dec("100"), ScheduledFor: naiveDay(t, 2025, time.March, 3)},
			{AccountID: accID, Kind: ScheduleDeposit, Name: "refund", Amount: dec("50"), ScheduledFor: naiveDay(t, 2025, time.March, 10)},
			{AccountID: accID, Kind: SchedulePayment, Name: "done", Amount: dec("999"), ScheduledFor: naiveDay(t, 2025, time.March, 4), Processed: true},
			{AccountID: accID, Kind: SchedulePayment, Name: "later", Amount: dec("999"), ScheduledFor: naiveDay(t, 2025, time.April, 2)},
		},
		From: naiveDay(t, 2025, time.March, 1),
		To:   naiveDay(t, 2025, time.March, 25),
	}

	fc, err := BuildForecast(in)
	require.NoError(t, err)

	// Opening: 500 + 300 - 200 drawn; the closed account never counts.
	assertDec(t, "600", fc.OpeningBalance, "opening")
	require.Len(t, fc.Days, 25)

	assertDec(t, "1200", forecastDay(t, fc, "2025-03-05").Outflow, "rent outflow")
	assertDec(t, "-700", forecastDay(t, fc, "2025-03-05").Running, "running after rent")
	assertDec(t, "800", forecastDay(t, fc, "2025-03-07").Inflow, "first paycheck")
	assertDec(t, "50", forecastDay(t, fc, "2025-03-10").Inflow, "refund deposit")

	assertDec(t, "950", fc.ClosingBalance, "closing")
	assertDec(t, "-700", fc.MinBalance, "min balance")
	assert.Equal(t, "2025-03-05", fc.MinBalanceOn.Time().Format("2006-01-02"))

	assertDec(t, "700", fc.Deficit, "deficit")
	assert.Equal(t, 2, fc.PayPeriods)
	assertDec(t, "350", fc.RequiredPerPay, "required per paycheck")
	// 40 h/week at a biweekly cadence is 80 hours a period.
	assertDec(t, "4.38", fc.RequiredHourly, "required hourly")
}

func TestBuildForecastNoDeficit(t *testing.T) {
	pinDay(t, 2025, time.March, 1)
	in := ForecastInput{
		Accounts: []Account{
			{ID: uuid.New(), Name: "checking", Type: AccountChecking, Balance: dec("2000"), Active: true},
		},
		Liabilities: []Liability{
			{Name: "rent", Amount: dec("1200"), DueDay: 5, Frequency: FrequencyMonthly, Active: true},
		},
		From: naiveDay(t, 2025, time.March, 1),
		To:   naiveDay(t, 2025, time.March, 31),
	}

	fc, err := BuildForecast(in)
	require.NoError(t, err)
	assertDec(t, "800", fc.MinBalance, "min balance")
	assert.True(t, fc.Deficit.IsZero(), "deficit should be zero, got %s", fc.Deficit)
	assert.True(t, fc.RequiredPerPay.IsZero())
	assert.True(t, fc.RequiredHourly.IsZero())
	assert.Equal(t, 0, fc.PayPeriods)
}

func TestBuildForecastRejectsReversedWindow(t *testing.T) {
	_, err := BuildForecast(ForecastInput{
		From: naiveDay(t, 2025, time.March, 31),
		To:   naiveDay(t, 2025, time.March, 1),
	})
	assert.ErrorIs(t, err, timeutil.ErrInvalidRange)
}

func TestForecastWindow(t *testing.T) {
	pinDay(t, 2025, time.March, 1)

	from, to := ForecastWindow(0)
	assert.Equal(t, "2025-03-01", from.Time().Format("2006-01-02"))
	assert.Equal(t, "2025-03-31", to.Time().Format("2006-01-02"))

	// A horizon past month end clamps the way safe end dates do.
	_, to = ForecastWindow(45)
	assert.Equal(t, "2025-04-30", to.Time().Format("2006-01-02"))
	assert.Equal(t, "23:59:59.999999", to.Time().Format("15:04:05.000000"))
}
