package finance

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tallybook.org/internal/timeutil"
)

// AccountType classifies how an account behaves in forecasts: depository
// balances count toward available cash, credit balances count against it.
type AccountType string

const (
	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
	AccountCredit   AccountType = "credit"
	// AccountEWA is an earned-wage-access account: wages accrued but not
	// yet paid out, drawable early for a per-transfer fee.
	AccountEWA AccountType = "ewa"
)

func (t AccountType) known() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCredit, AccountEWA:
		return true
	}
	return false
}

// depository reports whether the balance is money held rather than owed.
func (t AccountType) depository() bool { return t != AccountCredit }

// Frequency is a recurrence step for liabilities and incomes.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	// FrequencySemimonthly pays on the 15th and the last day of the month.
	FrequencySemimonthly Frequency = "semimonthly"
	FrequencyMonthly     Frequency = "monthly"
)

func (f Frequency) known() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencySemimonthly, FrequencyMonthly:
		return true
	}
	return false
}

// Account holds a single balance. Credit accounts carry the drawn amount
// (owed), EWA accounts the wages earned so far this period.
type Account struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Type        AccountType     `json:"type" db:"type"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	CreditLimit decimal.Decimal `json:"credit_limit" db:"credit_limit"`
	Provider    string          `json:"provider,omitempty" db:"provider"`
	TransferFee decimal.Decimal `json:"transfer_fee" db:"transfer_fee"`
	Active      bool            `json:"active" db:"active"`
	CreatedAt   timeutil.Naive  `json:"created_at" db:"created_at"`
	UpdatedAt   timeutil.Naive  `json:"updated_at" db:"updated_at"`
}

// Liability is a recurring obligation. DueDay is the anchor day-of-month;
// months shorter than the anchor pay on their last day instead.
type Liability struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	DueDay    int             `json:"due_day" db:"due_day"`
	Frequency Frequency       `json:"frequency" db:"frequency"`
	AccountID *uuid.UUID      `json:"account_id,omitempty" db:"account_id"`
	Active    bool            `json:"active" db:"active"`
	CreatedAt timeutil.Naive  `json:"created_at" db:"created_at"`
}

// Income is a recurring pay source. Amount is net per period; the hourly
// fields feed the forecast's required-rate derivation.
type Income struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Source       string          `json:"source" db:"source"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Frequency    Frequency       `json:"frequency" db:"frequency"`
	HourlyRate   decimal.Decimal `json:"hourly_rate" db:"hourly_rate"`
	HoursPerWeek decimal.Decimal `json:"hours_per_week" db:"hours_per_week"`
	FirstPayDate timeutil.Naive  `json:"first_pay_date" db:"first_pay_date"`
	Active       bool            `json:"active" db:"active"`
	CreatedAt    timeutil.Naive  `json:"created_at" db:"created_at"`
}

// ScheduleKind separates planned outflows from planned inflows.
type ScheduleKind string

const (
	SchedulePayment ScheduleKind = "payment"
	ScheduleDeposit ScheduleKind = "deposit"
)

func (k ScheduleKind) known() bool {
	return k == SchedulePayment || k == ScheduleDeposit
}

// Schedule is one concrete planned movement on a date. Recurring
// obligations live on Liability/Income and are projected, not stored.
type Schedule struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Kind         ScheduleKind    `json:"kind" db:"kind"`
	AccountID    uuid.UUID       `json:"account_id" db:"account_id"`
	IncomeID     *uuid.UUID      `json:"income_id,omitempty" db:"income_id"`
	Name         string          `json:"name" db:"name"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	ScheduledFor timeutil.Naive  `json:"scheduled_for" db:"scheduled_for"`
	Processed    bool            `json:"processed" db:"processed"`
	CreatedAt    timeutil.Naive  `json:"created_at" db:"created_at"`
}

// BalanceSnapshot is one dated balance observation, at most one per
// account per calendar day; the history of them is what reconciliation
// walks.
type BalanceSnapshot struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	AccountID  uuid.UUID       `json:"account_id" db:"account_id"`
	Balance    decimal.Decimal `json:"balance" db:"balance"`
	RecordedAt timeutil.Naive  `json:"recorded_at" db:"recorded_at"`
}

// Reconciliation compares an account's live balance against its latest
// snapshot.
type Reconciliation struct {
	AccountID      uuid.UUID       `json:"account_id"`
	Balance        decimal.Decimal `json:"balance"`
	SnapshotTaken  timeutil.Naive  `json:"snapshot_taken"`
	SnapshotAmount decimal.Decimal `json:"snapshot_amount"`
	Drift          decimal.Decimal `json:"drift"`
	InSync         bool            `json:"in_sync"`
}

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidName           = errors.New("invalid name")
	ErrInvalidAmount         = errors.New("invalid amount (must be > 0)")
	ErrInvalidAccountType    = errors.New("invalid account type")
	ErrInvalidFrequency      = errors.New("invalid frequency")
	ErrInvalidDueDay         = errors.New("invalid due day (must be 1..31)")
	ErrMissingDate           = errors.New("date is required")
	ErrInactiveAccount       = errors.New("account is inactive")
	ErrScheduleExceedsIncome = errors.New("schedule amount exceeds income amount")
	ErrDuplicateSnapshot     = errors.New("snapshot already recorded for this date")
)
