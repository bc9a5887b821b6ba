package finance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tallybook.org/internal/timeutil"
)

// Service defines the planning operations of the ledger.
type Service interface {
	CreateAccount(ctx context.Context, in NewAccount) (Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	DeactivateAccount(ctx context.Context, id uuid.UUID) (Account, error)

	CreateLiability(ctx context.Context, in NewLiability) (Liability, error)
	ListLiabilities(ctx context.Context, activeOnly bool) ([]Liability, error)

	CreateIncome(ctx context.Context, in NewIncome) (Income, error)
	ListIncomes(ctx context.Context) ([]Income, error)

	CreateSchedule(ctx context.Context, in NewSchedule) (Schedule, error)
	UpcomingSchedules(ctx context.Context, from, to timeutil.Naive) ([]Schedule, error)
	MarkScheduleProcessed(ctx context.Context, id uuid.UUID) (Schedule, error)

	RecordSnapshot(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) (BalanceSnapshot, error)
	BalanceHistory(ctx context.Context, accountID uuid.UUID, from, to timeutil.Naive) ([]BalanceSnapshot, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (Reconciliation, error)
}

// NewAccount is the creation payload for an account.
type NewAccount struct {
	Name        string          `json:"name"`
	Type        AccountType     `json:"type"`
	Balance     decimal.Decimal `json:"balance"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Provider    string          `json:"provider"`
	TransferFee decimal.Decimal `json:"transfer_fee"`
}

// NewLiability is the creation payload for a recurring obligation.
type NewLiability struct {
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	DueDay    int             `json:"due_day"`
	Frequency Frequency       `json:"frequency"`
	AccountID *uuid.UUID      `json:"account_id"`
}

// NewIncome is the creation payload for a pay source.
type NewIncome struct {
	Source       string          `json:"source"`
	Amount       decimal.Decimal `json:"amount"`
	Frequency    Frequency       `json:"frequency"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
	HoursPerWeek decimal.Decimal `json:"hours_per_week"`
	FirstPayDate timeutil.Naive  `json:"first_pay_date"`
}

// NewSchedule is the creation payload for one planned movement.
type NewSchedule struct {
	Kind         ScheduleKind    `json:"kind"`
	AccountID    uuid.UUID       `json:"account_id"`
	IncomeID     *uuid.UUID      `json:"income_id"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	ScheduledFor timeutil.Naive  `json:"scheduled_for"`
}

// Validate checks the payload the same way every store must.
func (in NewAccount) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("account: %w", ErrInvalidName)
	}
	if !in.Type.known() {
		return fmt.Errorf("%w: %q", ErrInvalidAccountType, in.Type)
	}
	if in.CreditLimit.IsNegative() || in.TransferFee.IsNegative() {
		return fmt.Errorf("account %q: %w", in.Name, ErrInvalidAmount)
	}
	return nil
}

func (in NewLiability) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("liability: %w", ErrInvalidName)
	}
	if in.Amount.Sign() <= 0 {
		return fmt.Errorf("liability %q: %w", in.Name, ErrInvalidAmount)
	}
	if in.DueDay < 1 || in.DueDay > 31 {
		return fmt.Errorf("liability %q: %w", in.Name, ErrInvalidDueDay)
	}
	if !in.Frequency.known() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, in.Frequency)
	}
	return nil
}

func (in NewIncome) Validate() error {
	if strings.TrimSpace(in.Source) == "" {
		return fmt.Errorf("income: %w", ErrInvalidName)
	}
	if in.Amount.Sign() <= 0 {
		return fmt.Errorf("income %q: %w", in.Source, ErrInvalidAmount)
	}
	if !in.Frequency.known() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, in.Frequency)
	}
	if in.FirstPayDate.IsZero() {
		return fmt.Errorf("income %q: %w", in.Source, ErrMissingDate)
	}
	if in.HourlyRate.IsNegative() || in.HoursPerWeek.IsNegative() {
		return fmt.Errorf("income %q: %w", in.Source, ErrInvalidAmount)
	}
	return nil
}

func (in NewSchedule) Validate() error {
	if !in.Kind.known() {
		return fmt.Errorf("schedule kind %q: %w", in.Kind, ErrInvalidFrequency)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("schedule: %w", ErrInvalidName)
	}
	if in.Amount.Sign() <= 0 {
		return fmt.Errorf("schedule %q: %w", in.Name, ErrInvalidAmount)
	}
	if in.ScheduledFor.IsZero() {
		return fmt.Errorf("schedule %q: %w", in.Name, ErrMissingDate)
	}
	return nil
}

// InMemory implements Service with in-process concurrency safety.
// NOTE: cmd/api swaps in the Postgres store when TALLYBOOK_DB_DSN is set.
type InMemory struct {
	mu        sync.RWMutex
	accounts  map[uuid.UUID]*Account
	liabs     map[uuid.UUID]*Liability
	incomes   map[uuid.UUID]*Income
	schedules map[uuid.UUID]*Schedule
	snapshots map[uuid.UUID][]BalanceSnapshot // accountID -> ascending by RecordedAt
}

// NewInMemory creates an empty book.
func NewInMemory() *InMemory {
	return &InMemory{
		accounts:  make(map[uuid.UUID]*Account),
		liabs:     make(map[uuid.UUID]*Liability),
		incomes:   make(map[uuid.UUID]*Income),
		schedules: make(map[uuid.UUID]*Schedule),
		snapshots: make(map[uuid.UUID][]BalanceSnapshot),
	}
}

func (s *InMemory) CreateAccount(ctx context.Context, in NewAccount) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := timeutil.NowNaive()
	acc := &Account{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Type:        in.Type,
		Balance:     in.Balance,
		CreditLimit: in.CreditLimit,
		Provider:    strings.TrimSpace(in.Provider),
		TransferFee: in.TransferFee,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.accounts[acc.ID] = acc
	return *acc, nil
}

func (s *InMemory) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return *acc, nil
}

func (s *InMemory) ListAccounts(ctx context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeactivateAccount soft-deletes: the account keeps its history but
// stops accepting schedules and drops out of forecasts.
func (s *InMemory) DeactivateAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	acc.Active = false
	acc.UpdatedAt = timeutil.NowNaive()
	return *acc, nil
}

func (s *InMemory) CreateLiability(ctx context.Context, in NewLiability) (Liability, error) {
	if err := in.Validate(); err != nil {
		return Liability{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.AccountID != nil {
		if err := s.requireActiveAccount(*in.AccountID); err != nil {
			return Liability{}, err
		}
	}
	l := &Liability{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(in.Name),
		Amount:    in.Amount,
		DueDay:    in.DueDay,
		Frequency: in.Frequency,
		AccountID: in.AccountID,
		Active:    true,
		CreatedAt: timeutil.NowNaive(),
	}
	s.liabs[l.ID] = l
	return *l, nil
}

func (s *InMemory) ListLiabilities(ctx context.Context, activeOnly bool) ([]Liability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Liability, 0, len(s.liabs))
	for _, l := range s.liabs {
		if activeOnly && !l.Active {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) CreateIncome(ctx context.Context, in NewIncome) (Income, error) {
	if err := in.Validate(); err != nil {
		return Income{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inc := &Income{
		ID:           uuid.New(),
		Source:       strings.TrimSpace(in.Source),
		Amount:       in.Amount,
		Frequency:    in.Frequency,
		HourlyRate:   in.HourlyRate,
		HoursPerWeek: in.HoursPerWeek,
		FirstPayDate: in.FirstPayDate.StartOfDay(),
		Active:       true,
		CreatedAt:    timeutil.NowNaive(),
	}
	s.incomes[inc.ID] = inc
	return *inc, nil
}

func (s *InMemory) ListIncomes(ctx context.Context) ([]Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Income, 0, len(s.incomes))
	for _, inc := range s.incomes {
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (s *InMemory) CreateSchedule(ctx context.Context, in NewSchedule) (Schedule, error) {
	if err := in.Validate(); err != nil {
		return Schedule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveAccount(in.AccountID); err != nil {
		return Schedule{}, err
	}
	if in.IncomeID != nil {
		inc, ok := s.incomes[*in.IncomeID]
		if !ok {
			return Schedule{}, fmt.Errorf("income %s: %w", in.IncomeID, ErrNotFound)
		}
		// A deposit drawn from a paycheck cannot exceed the paycheck.
		if in.Amount.GreaterThan(inc.Amount) {
			return Schedule{}, fmt.Errorf("schedule %q: %w", in.Name, ErrScheduleExceedsIncome)
		}
	}
	sch := &Schedule{
		ID:           uuid.New(),
		Kind:         in.Kind,
		AccountID:    in.AccountID,
		IncomeID:     in.IncomeID,
		Name:         strings.TrimSpace(in.Name),
		Amount:       in.Amount,
		ScheduledFor: in.ScheduledFor.StartOfDay(),
		CreatedAt:    timeutil.NowNaive(),
	}
	s.schedules[sch.ID] = sch
	return *sch, nil
}

func (s *InMemory) UpcomingSchedules(ctx context.Context, from, to timeutil.Naive) ([]Schedule, error) {
	if err := ValidateWindow(from, to); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Schedule
	for _, sch := range s.schedules {
		if sch.Processed {
			continue
		}
		if !scheduleInWindow(sch.ScheduledFor, from, to) {
			continue
		}
		out = append(out, *sch)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ScheduledFor.Time(), out[j].ScheduledFor.Time()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// MarkScheduleProcessed applies the movement to the account and retires
// the schedule. Marking twice is a no-op.
func (s *InMemory) MarkScheduleProcessed(ctx context.Context, id uuid.UUID) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return Schedule{}, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	if sch.Processed {
		return *sch, nil
	}
	acc, ok := s.accounts[sch.AccountID]
	if !ok {
		return Schedule{}, fmt.Errorf("account %s: %w", sch.AccountID, ErrNotFound)
	}
	acc.Balance = acc.Balance.Add(MovementDelta(acc.Type, sch.Kind, sch.Amount))
	acc.UpdatedAt = timeutil.NowNaive()
	sch.Processed = true
	return *sch, nil
}

// MovementDelta maps a movement onto the account's balance convention:
// credit balances grow when drawn on and shrink when paid down, the
// reverse of depository balances.
func MovementDelta(t AccountType, kind ScheduleKind, amount decimal.Decimal) decimal.Decimal {
	outflow := kind == SchedulePayment
	if !t.depository() {
		outflow = !outflow
	}
	if outflow {
		return amount.Neg()
	}
	return amount
}

// RecordSnapshot sets the account's live balance and appends a dated
// observation. At most one observation per account per calendar day.
func (s *InMemory) RecordSnapshot(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) (BalanceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return BalanceSnapshot{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if !acc.Active {
		return BalanceSnapshot{}, fmt.Errorf("account %s: %w", accountID, ErrInactiveAccount)
	}
	now := timeutil.NowNaive()
	for _, prev := range s.snapshots[accountID] {
		if timeutil.DatesEqual(prev.RecordedAt, now) {
			return BalanceSnapshot{}, fmt.Errorf("account %s: %w", accountID, ErrDuplicateSnapshot)
		}
	}
	snap := BalanceSnapshot{
		ID:         uuid.New(),
		AccountID:  accountID,
		Balance:    balance,
		RecordedAt: now,
	}
	s.snapshots[accountID] = append(s.snapshots[accountID], snap)
	acc.Balance = balance
	acc.UpdatedAt = now
	return snap, nil
}

func (s *InMemory) BalanceHistory(ctx context.Context, accountID uuid.UUID, from, to timeutil.Naive) ([]BalanceSnapshot, error) {
	if err := ValidateWindow(from, to); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	var out []BalanceSnapshot
	for _, snap := range s.snapshots[accountID] {
		if scheduleInWindow(snap.RecordedAt, from, to) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordedAt.Time().Before(out[j].RecordedAt.Time())
	})
	return out, nil
}

// Reconcile compares the live balance against the latest snapshot.
func (s *InMemory) Reconcile(ctx context.Context, accountID uuid.UUID) (Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return Reconciliation{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	snaps := s.snapshots[accountID]
	if len(snaps) == 0 {
		return Reconciliation{}, fmt.Errorf("account %s has no snapshots: %w", accountID, ErrNotFound)
	}
	latest := snaps[0]
	for _, snap := range snaps[1:] {
		if snap.RecordedAt.Time().After(latest.RecordedAt.Time()) {
			latest = snap
		}
	}
	drift := acc.Balance.Sub(latest.Balance)
	return Reconciliation{
		AccountID:      accountID,
		Balance:        acc.Balance,
		SnapshotTaken:  latest.RecordedAt,
		SnapshotAmount: latest.Balance,
		Drift:          drift,
		InSync:         drift.IsZero(),
	}, nil
}

// requireActiveAccount is called with s.mu held.
func (s *InMemory) requireActiveAccount(id uuid.UUID) error {
	acc, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if !acc.Active {
		return fmt.Errorf("account %s: %w", id, ErrInactiveAccount)
	}
	return nil
}

func scheduleInWindow(d, from, to timeutil.Naive) bool {
	t := d.Time()
	return !t.Before(from.StartOfDay().Time()) && !t.After(to.EndOfDay().Time())
}
