package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"tallybook.org/internal/finance"
	"tallybook.org/internal/timeutil"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

const (
	accountCols   = `id, name, type, balance, credit_limit, provider, transfer_fee, active, created_at, updated_at`
	liabilityCols = `id, name, amount, due_day, frequency, account_id, active, created_at`
	incomeCols    = `id, source, amount, frequency, hourly_rate, hours_per_week, first_pay_date, active, created_at`
	scheduleCols  = `id, kind, account_id, income_id, name, amount, scheduled_for, processed, created_at`
	snapshotCols  = `id, account_id, balance, recorded_at`
)

var dialect = goqu.Dialect("postgres")

// Store implements finance.Service on Postgres.
type Store struct {
	db *sqlx.DB
}

var _ finance.Service = (*Store)(nil)

// Open connects through the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle. Tests hand in sqlmock this way.
func New(db *sqlx.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db.DB }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) CreateAccount(ctx context.Context, in finance.NewAccount) (finance.Account, error) {
	if err := in.Validate(); err != nil {
		return finance.Account{}, err
	}
	now := timeutil.NowNaive()
	acc := finance.Account{
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
	_, err := s.db.ExecContext(ctx, `
		insert into accounts (`+accountCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, acc.ID, acc.Name, acc.Type, acc.Balance, acc.CreditLimit, acc.Provider, acc.TransferFee, acc.Active, acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		return finance.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (finance.Account, error) {
	var acc finance.Account
	err := s.db.GetContext(ctx, &acc, `select `+accountCols+` from accounts where id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Account{}, fmt.Errorf("account %s: %w", id, finance.ErrNotFound)
	}
	if err != nil {
		return finance.Account{}, err
	}
	return acc, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]finance.Account, error) {
	var out []finance.Account
	err := s.db.SelectContext(ctx, &out, `select `+accountCols+` from accounts order by name asc`)
	return out, err
}

func (s *Store) DeactivateAccount(ctx context.Context, id uuid.UUID) (finance.Account, error) {
	var acc finance.Account
	err := s.db.GetContext(ctx, &acc, `
		update accounts set active=false, updated_at=$2
		where id=$1
		returning `+accountCols+`
	`, id, timeutil.NowNaive())
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Account{}, fmt.Errorf("account %s: %w", id, finance.ErrNotFound)
	}
	if err != nil {
		return finance.Account{}, err
	}
	return acc, nil
}

func (s *Store) CreateLiability(ctx context.Context, in finance.NewLiability) (finance.Liability, error) {
	if err := in.Validate(); err != nil {
		return finance.Liability{}, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return finance.Liability{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if in.AccountID != nil {
		if err := requireActiveAccount(ctx, tx, *in.AccountID); err != nil {
			return finance.Liability{}, err
		}
	}
	l := finance.Liability{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(in.Name),
		Amount:    in.Amount,
		DueDay:    in.DueDay,
		Frequency: in.Frequency,
		AccountID: in.AccountID,
		Active:    true,
		CreatedAt: timeutil.NowNaive(),
	}
	if _, err := tx.ExecContext(ctx, `
		insert into liabilities (`+liabilityCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, l.ID, l.Name, l.Amount, l.DueDay, l.Frequency, l.AccountID, l.Active, l.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return finance.Liability{}, fmt.Errorf("account %s: %w", in.AccountID, finance.ErrNotFound)
		}
		return finance.Liability{}, fmt.Errorf("insert liability: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return finance.Liability{}, err
	}
	return l, nil
}

func (s *Store) ListLiabilities(ctx context.Context, activeOnly bool) ([]finance.Liability, error) {
	q := dialect.From("liabilities").
		Select("id", "name", "amount", "due_day", "frequency", "account_id", "active", "created_at").
		Order(goqu.I("name").Asc())
	if activeOnly {
		q = q.Where(goqu.C("active").IsTrue())
	}
	query, args, err := q.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build liabilities query: %w", err)
	}
	var out []finance.Liability
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateIncome(ctx context.Context, in finance.NewIncome) (finance.Income, error) {
	if err := in.Validate(); err != nil {
		return finance.Income{}, err
	}
	inc := finance.Income{
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
	_, err := s.db.ExecContext(ctx, `
		insert into incomes (`+incomeCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, inc.ID, inc.Source, inc.Amount, inc.Frequency, inc.HourlyRate, inc.HoursPerWeek, inc.FirstPayDate, inc.Active, inc.CreatedAt)
	if err != nil {
		return finance.Income{}, fmt.Errorf("insert income: %w", err)
	}
	return inc, nil
}

func (s *Store) ListIncomes(ctx context.Context) ([]finance.Income, error) {
	var out []finance.Income
	err := s.db.SelectContext(ctx, &out, `select `+incomeCols+` from incomes order by source asc`)
	return out, err
}

func (s *Store) CreateSchedule(ctx context.Context, in finance.NewSchedule) (finance.Schedule, error) {
	if err := in.Validate(); err != nil {
		return finance.Schedule{}, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return finance.Schedule{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireActiveAccount(ctx, tx, in.AccountID); err != nil {
		return finance.Schedule{}, err
	}
	if in.IncomeID != nil {
		var incAmount decimal.Decimal
		err := tx.GetContext(ctx, &incAmount, `select amount from incomes where id=$1`, *in.IncomeID)
		if errors.Is(err, sql.ErrNoRows) {
			return finance.Schedule{}, fmt.Errorf("income %s: %w", in.IncomeID, finance.ErrNotFound)
		}
		if err != nil {
			return finance.Schedule{}, err
		}
		if in.Amount.GreaterThan(incAmount) {
			return finance.Schedule{}, fmt.Errorf("schedule %q: %w", in.Name, finance.ErrScheduleExceedsIncome)
		}
	}
	sch := finance.Schedule{
		ID:           uuid.New(),
		Kind:         in.Kind,
		AccountID:    in.AccountID,
		IncomeID:     in.IncomeID,
		Name:         strings.TrimSpace(in.Name),
		Amount:       in.Amount,
		ScheduledFor: in.ScheduledFor.StartOfDay(),
		CreatedAt:    timeutil.NowNaive(),
	}
	if _, err := tx.ExecContext(ctx, `
		insert into schedules (`+scheduleCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sch.ID, sch.Kind, sch.AccountID, sch.IncomeID, sch.Name, sch.Amount, sch.ScheduledFor, sch.Processed, sch.CreatedAt); err != nil {
		return finance.Schedule{}, fmt.Errorf("insert schedule: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return finance.Schedule{}, err
	}
	return sch, nil
}

func (s *Store) UpcomingSchedules(ctx context.Context, from, to timeutil.Naive) ([]finance.Schedule, error) {
	if err := finance.ValidateWindow(from, to); err != nil {
		return nil, err
	}
	q := dialect.From("schedules").
		Select("id", "kind", "account_id", "income_id", "name", "amount", "scheduled_for", "processed", "created_at").
		Where(
			goqu.C("processed").IsFalse(),
			goqu.C("scheduled_for").Gte(from.StartOfDay()),
			goqu.C("scheduled_for").Lte(to.EndOfDay()),
		).
		Order(goqu.I("scheduled_for").Asc(), goqu.I("name").Asc())
	query, args, err := q.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build schedules query: %w", err)
	}
	var out []finance.Schedule
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) MarkScheduleProcessed(ctx context.Context, id uuid.UUID) (finance.Schedule, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return finance.Schedule{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var sch finance.Schedule
	err = tx.GetContext(ctx, &sch, `select `+scheduleCols+` from schedules where id=$1 for update`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Schedule{}, fmt.Errorf("schedule %s: %w", id, finance.ErrNotFound)
	}
	if err != nil {
		return finance.Schedule{}, err
	}
	if sch.Processed {
		return sch, nil
	}

	var acc finance.Account
	err = tx.GetContext(ctx, &acc, `select `+accountCols+` from accounts where id=$1 for update`, sch.AccountID)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Schedule{}, fmt.Errorf("account %s: %w", sch.AccountID, finance.ErrNotFound)
	}
	if err != nil {
		return finance.Schedule{}, err
	}

	delta := finance.MovementDelta(acc.Type, sch.Kind, sch.Amount)
	now := timeutil.NowNaive()
	if _, err := tx.ExecContext(ctx, `
		update accounts set balance = balance + $2, updated_at=$3 where id=$1
	`, acc.ID, delta, now); err != nil {
		return finance.Schedule{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		update schedules set processed=true where id=$1
	`, sch.ID); err != nil {
		return finance.Schedule{}, err
	}
	if err := tx.Commit(); err != nil {
		return finance.Schedule{}, err
	}
	sch.Processed = true
	return sch, nil
}

func (s *Store) RecordSnapshot(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal) (finance.BalanceSnapshot, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return finance.BalanceSnapshot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the account so same-day snapshots serialize on it.
	if err := requireActiveAccount(ctx, tx, accountID); err != nil {
		return finance.BalanceSnapshot{}, err
	}
	snap := finance.BalanceSnapshot{
		ID:         uuid.New(),
		AccountID:  accountID,
		Balance:    balance,
		RecordedAt: timeutil.NowNaive(),
	}
	if _, err := tx.ExecContext(ctx, `
		insert into balance_snapshots (`+snapshotCols+`)
		values ($1,$2,$3,$4)
	`, snap.ID, snap.AccountID, snap.Balance, snap.RecordedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return finance.BalanceSnapshot{}, fmt.Errorf("account %s: %w", accountID, finance.ErrDuplicateSnapshot)
		}
		return finance.BalanceSnapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		update accounts set balance=$2, updated_at=$3 where id=$1
	`, accountID, balance, snap.RecordedAt); err != nil {
		return finance.BalanceSnapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return finance.BalanceSnapshot{}, err
	}
	return snap, nil
}

func (s *Store) BalanceHistory(ctx context.Context, accountID uuid.UUID, from, to timeutil.Naive) ([]finance.BalanceSnapshot, error) {
	if err := finance.ValidateWindow(from, to); err != nil {
		return nil, err
	}
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	q := dialect.From("balance_snapshots").
		Select("id", "account_id", "balance", "recorded_at").
		Where(
			goqu.C("account_id").Eq(accountID),
			goqu.C("recorded_at").Gte(from.StartOfDay()),
			goqu.C("recorded_at").Lte(to.EndOfDay()),
		).
		Order(goqu.I("recorded_at").Asc())
	query, args, err := q.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}
	var out []finance.BalanceSnapshot
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Reconcile(ctx context.Context, accountID uuid.UUID) (finance.Reconciliation, error) {
	acc, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return finance.Reconciliation{}, err
	}
	var latest finance.BalanceSnapshot
	err = s.db.GetContext(ctx, &latest, `
		select `+snapshotCols+` from balance_snapshots
		where account_id=$1
		order by recorded_at desc
		limit 1
	`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Reconciliation{}, fmt.Errorf("account %s has no snapshots: %w", accountID, finance.ErrNotFound)
	}
	if err != nil {
		return finance.Reconciliation{}, err
	}
	drift := acc.Balance.Sub(latest.Balance)
	return finance.Reconciliation{
		AccountID:      accountID,
		Balance:        acc.Balance,
		SnapshotTaken:  latest.RecordedAt,
		SnapshotAmount: latest.Balance,
		Drift:          drift,
		InSync:         drift.IsZero(),
	}, nil
}

// requireActiveAccount locks the account row for the rest of the tx.
func requireActiveAccount(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	var active bool
	err := tx.GetContext(ctx, &active, `select active from accounts where id=$1 for update`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %s: %w", id, finance.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("account %s: %w", id, finance.ErrInactiveAccount)
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
