package finance

import (
	"github.com/shopspring/decimal"

	"tallybook.org/internal/timeutil"
)

// DefaultHorizonDays is the forecast window when the caller names none.
const DefaultHorizonDays = 30

// ForecastInput is everything a forecast needs, already loaded. Keeping
// the builder pure lets both stores feed it.
type ForecastInput struct {
	Accounts    []Account
	Liabilities []Liability
	Incomes     []Income
	Schedules   []Schedule
	From        timeutil.Naive
	To          timeutil.Naive
}

// ForecastDay is one day of projected movement.
type ForecastDay struct {
	Date    timeutil.Naive  `json:"date"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Net     decimal.Decimal `json:"net"`
	Running decimal.Decimal `json:"running_balance"`
}

// CashflowForecast is the projected day-by-day position plus the derived
// shortfall figures.
type CashflowForecast struct {
	GeneratedAt    timeutil.Aware  `json:"generated_at"`
	From           timeutil.Naive  `json:"from"`
	To             timeutil.Naive  `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Days           []ForecastDay   `json:"days"`
	MinBalance     decimal.Decimal `json:"min_balance"`
	MinBalanceOn   timeutil.Naive  `json:"min_balance_on"`
	Deficit        decimal.Decimal `json:"deficit"`
	PayPeriods     int             `json:"pay_periods"`
	RequiredPerPay decimal.Decimal `json:"required_income_per_period"`
	RequiredHourly decimal.Decimal `json:"required_hourly_rate"`
}

// ForecastWindow is the standard window: today through the end of the
// day horizonDays out, overflow-safe at month ends.
func ForecastWindow(horizonDays int) (from, to timeutil.Naive) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	from = timeutil.NowNaive().StartOfDay()
	return from, from.SafeEndDate(horizonDays)
}

// BuildForecast projects the running balance over the window. Opening
// balance is depository holdings minus credit drawn; then each day applies
// unprocessed schedules, projected liability due dates, and projected pay
// dates. The shortfall figures answer "how much more must each paycheck
// bring in to stay above zero".
func BuildForecast(in ForecastInput) (CashflowForecast, error) {
	window, err := timeutil.NaiveDateRange(in.From, in.To)
	if err != nil {
		return CashflowForecast{}, err
	}

	opening := decimal.Zero
	for _, acc := range in.Accounts {
		if !acc.Active {
			continue
		}
		if acc.Type.depository() {
			opening = opening.Add(acc.Balance)
		} else {
			opening = opening.Sub(acc.Balance)
		}
	}

	type bucket struct {
		in  decimal.Decimal
		out decimal.Decimal
	}
	buckets := make(map[string]*bucket, len(window))
	at := func(d timeutil.Naive) *bucket {
		key := d.Time().Format("2006-01-02")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{in: decimal.Zero, out: decimal.Zero}
			buckets[key] = b
		}
		return b
	}

	for _, sch := range in.Schedules {
		if sch.Processed {
			continue
		}
		if !scheduleInWindow(sch.ScheduledFor, in.From, in.To) {
			continue
		}
		b := at(sch.ScheduledFor)
		if sch.Kind == ScheduleDeposit {
			b.in = b.in.Add(sch.Amount)
		} else {
			b.out = b.out.Add(sch.Amount)
		}
	}
	for _, l := range in.Liabilities {
		if !l.Active {
			continue
		}
		occ, err := LiabilityOccurrences(l, in.From, in.To)
		if err != nil {
			return CashflowForecast{}, err
		}
		for _, d := range occ {
			b := at(d)
			b.out = b.out.Add(l.Amount)
		}
	}
	payPeriods := 0
	for _, inc := range in.Incomes {
		if !inc.Active {
			continue
		}
		occ, err := IncomeOccurrences(inc, in.From, in.To)
		if err != nil {
			return CashflowForecast{}, err
		}
		payPeriods += len(occ)
		for _, d := range occ {
			b := at(d)
			b.in = b.in.Add(inc.Amount)
		}
	}

	fc := CashflowForecast{
		GeneratedAt:    timeutil.NowAware(),
		From:           in.From.StartOfDay(),
		To:             in.To,
		OpeningBalance: opening,
		Days:           make([]ForecastDay, 0, len(window)),
		PayPeriods:     payPeriods,
		Deficit:        decimal.Zero,
		RequiredPerPay: decimal.Zero,
		RequiredHourly: decimal.Zero,
	}

	running := opening
	minBalance := opening
	minOn := fc.From
	for _, d := range window {
		day := ForecastDay{Date: d, Inflow: decimal.Zero, Outflow: decimal.Zero}
		if b, ok := buckets[d.Time().Format("2006-01-02")]; ok {
			day.Inflow = b.in
			day.Outflow = b.out
		}
		day.Net = day.Inflow.Sub(day.Outflow)
		running = running.Add(day.Net)
		day.Running = running
		if running.LessThan(minBalance) {
			minBalance = running
			minOn = d
		}
		fc.Days = append(fc.Days, day)
	}
	fc.ClosingBalance = running
	fc.MinBalance = minBalance
	fc.MinBalanceOn = minOn

	if minBalance.IsNegative() {
		fc.Deficit = minBalance.Neg()
	}
	if payPeriods > 0 && fc.Deficit.IsPositive() {
		fc.RequiredPerPay = fc.Deficit.Div(decimal.NewFromInt(int64(payPeriods))).Round(2)
	}
	if hours := hoursPerPeriod(in.Incomes); hours.IsPositive() && fc.RequiredPerPay.IsPositive() {
		fc.RequiredHourly = fc.RequiredPerPay.Div(hours).Round(2)
	}
	return fc, nil
}

// hoursPerPeriod sums the hours worked per pay period across the active
// incomes that track hours. Weeks per period comes from the frequency:
// 52 pay weeks spread over 24 semimonthly or 12 monthly checks.
func hoursPerPeriod(incomes []Income) decimal.Decimal {
	total := decimal.Zero
	for _, inc := range incomes {
		if !inc.Active || !inc.HoursPerWeek.IsPositive() {
			continue
		}
		total = total.Add(inc.HoursPerWeek.Mul(weeksPerPeriod(inc.Frequency)))
	}
	return total
}

func weeksPerPeriod(f Frequency) decimal.Decimal {
	switch f {
	case FrequencyWeekly:
		return decimal.NewFromInt(1)
	case FrequencyBiweekly:
		return decimal.NewFromInt(2)
	case FrequencySemimonthly:
		return decimal.NewFromInt(52).Div(decimal.NewFromInt(24))
	default:
		return decimal.NewFromInt(52).Div(decimal.NewFromInt(12))
	}
}
