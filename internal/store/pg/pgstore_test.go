package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"tallybook.org/internal/finance"
	"tallybook.org/internal/timeutil"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var accountRowCols = []string{"id", "name", "type", "balance", "credit_limit", "provider", "transfer_fee", "active", "created_at", "updated_at"}

func TestGetAccountScansRow(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	// A driver may hand timestamps back in some session location; the wall
	// clock is what must survive.
	sessionTZ := time.FixedZone("session", -7*3600)
	created := time.Date(2025, time.March, 15, 10, 30, 0, 0, sessionTZ)

	mock.ExpectQuery("select id, name, type, balance").WithArgs(id).WillReturnRows(
		sqlmock.NewRows(accountRowCols).AddRow(
			id.String(), "Everyday Checking", "checking", "1250.40", "0", "", "0", true, created, created,
		),
	)

	acc, err := s.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if acc.ID != id || acc.Type != finance.AccountChecking {
		t.Fatalf("unexpected account: %+v", acc)
	}
	if !acc.Balance.Equal(dec("1250.40")) {
		t.Fatalf("balance: %s", acc.Balance)
	}
	got := acc.CreatedAt.Time()
	if got.Hour() != 10 || got.Minute() != 30 || got.Location() != time.UTC {
		t.Fatalf("session timezone leaked into reading: %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("select id, name, type, balance").WithArgs(id).WillReturnError(sql.ErrNoRows)

	if _, err := s.GetAccount(context.Background(), id); !errors.Is(err, finance.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateAccountInsert(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("insert into accounts").WithArgs(
		sqlmock.AnyArg(), "Everyday Checking", "checking", sqlmock.AnyArg(), sqlmock.AnyArg(),
		"", sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(1, 1))

	acc, err := s.CreateAccount(context.Background(), finance.NewAccount{
		Name: " Everyday Checking ", Type: finance.AccountChecking, Balance: dec("100"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if acc.ID == uuid.Nil || !acc.Active || acc.CreatedAt.IsZero() {
		t.Fatalf("bad defaults: %+v", acc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateAccountValidatesBeforeSQL(t *testing.T) {
	s, mock := newMockStore(t)
	// No expectations: invalid payloads never reach the database.
	if _, err := s.CreateAccount(context.Background(), finance.NewAccount{Name: " "}); !errors.Is(err, finance.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListLiabilitiesActiveOnlyAddsPredicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM "liabilities" WHERE \("active" IS TRUE\) ORDER BY "name" ASC`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "amount", "due_day", "frequency", "account_id", "active", "created_at"}).
			AddRow(uuid.New().String(), "rent", "1200", 1, "monthly", nil, true, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
	)

	got, err := s.ListLiabilities(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "rent" || got[0].AccountID != nil {
		t.Fatalf("unexpected liabilities: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpcomingSchedulesQueriesWindow(t *testing.T) {
	s, mock := newMockStore(t)
	accID := uuid.New()
	mock.ExpectQuery(`FROM "schedules" WHERE \(\("processed" IS FALSE\)`).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(
		sqlmock.NewRows([]string{"id", "kind", "account_id", "income_id", "name", "amount", "scheduled_for", "processed", "created_at"}).
			AddRow(uuid.New().String(), "payment", accID.String(), nil, "rent", "1200", time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), false, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
	)

	from, _ := timeutil.NaiveDate(2025, time.March, 1)
	to, _ := timeutil.NaiveDate(2025, time.March, 31)
	got, err := s.UpcomingSchedules(context.Background(), from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Kind != finance.SchedulePayment {
		t.Fatalf("unexpected schedules: %+v", got)
	}
}

func TestUpcomingSchedulesRejectsReversedWindow(t *testing.T) {
	s, _ := newMockStore(t)
	from, _ := timeutil.NaiveDate(2025, time.March, 31)
	to, _ := timeutil.NaiveDate(2025, time.March, 1)
	if _, err := s.UpcomingSchedules(context.Background(), from, to); !errors.Is(err, timeutil.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestRecordSnapshotMapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	accID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("select active from accounts").WithArgs(accID).WillReturnRows(
		sqlmock.NewRows([]string{"active"}).AddRow(true),
	)
	mock.ExpectExec("insert into balance_snapshots").WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	_, err := s.RecordSnapshot(context.Background(), accID, dec("95.50"))
	if !errors.Is(err, finance.ErrDuplicateSnapshot) {
		t.Fatalf("expected ErrDuplicateSnapshot, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordSnapshotRejectsInactiveAccount(t *testing.T) {
	s, mock := newMockStore(t)
	accID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("select active from accounts").WithArgs(accID).WillReturnRows(
		sqlmock.NewRows([]string{"active"}).AddRow(false),
	)
	mock.ExpectRollback()

	_, err := s.RecordSnapshot(context.Background(), accID, dec("95.50"))
	if !errors.Is(err, finance.ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestMarkScheduleProcessedAppliesDelta(t *testing.T) {
	s, mock := newMockStore(t)
	schID := uuid.New()
	accID := uuid.New()
	day := time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, kind, account_id").WithArgs(schID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "kind", "account_id", "income_id", "name", "amount", "scheduled_for", "processed", "created_at"}).
			AddRow(schID.String(), "payment", accID.String(), nil, "power bill", "40", day, false, day),
	)
	mock.ExpectQuery("select id, name, type, balance").WithArgs(accID).WillReturnRows(
		sqlmock.NewRows(accountRowCols).AddRow(accID.String(), "main", "checking", "100", "0", "", "0", true, day, day),
	)
	// A payment from a depository account subtracts.
	mock.ExpectExec(`update accounts set balance = balance \+ \$2`).WithArgs(accID, dec("-40"), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update schedules set processed=true").WithArgs(schID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sch, err := s.MarkScheduleProcessed(context.Background(), schID)
	if err != nil {
		t.Fatal(err)
	}
	if !sch.Processed {
		t.Fatal("schedule not marked processed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkScheduleProcessedTwiceIsNoOp(t *testing.T) {
	s, mock := newMockStore(t)
	schID := uuid.New()
	accID := uuid.New()
	day := time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("select id, kind, account_id").WithArgs(schID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "kind", "account_id", "income_id", "name", "amount", "scheduled_for", "processed", "created_at"}).
			AddRow(schID.String(), "payment", accID.String(), nil, "power bill", "40", day, true, day),
	)
	mock.ExpectRollback()

	sch, err := s.MarkScheduleProcessed(context.Background(), schID)
	if err != nil {
		t.Fatal(err)
	}
	if !sch.Processed {
		t.Fatal("expected processed schedule back")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestReconcileComputesDrift(t *testing.T) {
	s, mock := newMockStore(t)
	accID := uuid.New()
	day := time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("select id, name, type, balance").WithArgs(accID).WillReturnRows(
		sqlmock.NewRows(accountRowCols).AddRow(accID.String(), "main", "checking", "75", "0", "", "0", true, day, day),
	)
	mock.ExpectQuery("select id, account_id, balance, recorded_at from balance_snapshots").WithArgs(accID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "account_id", "balance", "recorded_at"}).
			AddRow(uuid.New().String(), accID.String(), "100", day),
	)

	rec, err := s.Reconcile(context.Background(), accID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.InSync {
		t.Fatal("expected drift")
	}
	if !rec.Drift.Equal(dec("-25")) {
		t.Fatalf("drift: %s", rec.Drift)
	}
}

func TestReconcileWithoutSnapshots(t *testing.T) {
	s, mock := newMockStore(t)
	accID := uuid.New()
	day := time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("select id, name, type, balance").WithArgs(accID).WillReturnRows(
		sqlmock.NewRows(accountRowCols).AddRow(accID.String(), "main", "checking", "75", "0", "", "0", true, day, day),
	)
	mock.ExpectQuery("select id, account_id, balance, recorded_at from balance_snapshots").WithArgs(accID).WillReturnError(sql.ErrNoRows)

	if _, err := s.Reconcile(context.Background(), accID); !errors.Is(err, finance.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
