package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tallybook.org/internal/finance"
	"tallybook.org/internal/obs"
	"tallybook.org/internal/stream"
	"tallybook.org/internal/timeutil"
)

// Даты в query-параметрах принимаются без времени.
const queryDateLayout = "2006-01-02"

type recordSnapshotRequest struct {
	Balance decimal.Decimal `json:"balance"`
}

type listSchedulesResponse struct {
	Items []finance.Schedule `json:"items"`
	From  timeutil.Naive     `json:"from"`
	To    timeutil.Naive     `json:"to"`
	AsOf  timeutil.Aware     `json:"as_of"`
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAccounts(w, r)
	case http.MethodPost:
		a.createAccount(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if rest, ok := strings.CutSuffix(path, "/snapshots"); ok {
		id, err := parseID(rest)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.recordSnapshot(w, r, id)
		return
	}

	if rest, ok := strings.CutSuffix(path, "/history"); ok {
		id, err := parseID(rest)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.balanceHistory(w, r, id)
		return
	}

	if rest, ok := strings.CutSuffix(path, "/reconciliation"); ok {
		id, err := parseID(rest)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.reconcile(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	id, err := parseID(path)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getAccount(w, r, id)
	case http.MethodDelete:
		a.deactivateAccount(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleLiabilities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listLiabilities(w, r)
	case http.MethodPost:
		a.createLiability(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleIncomes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listIncomes(w, r)
	case http.MethodPost:
		a.createIncome(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleSchedulesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createSchedule(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleScheduleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/schedules/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	rest, ok := strings.CutSuffix(path, "/processed")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := parseID(rest)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.markScheduleProcessed(w, r, id)
}

func (a *API) handleUpcomingSchedules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.upcomingSchedules(w, r)
}

func (a *API) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.forecast(w, r)
}

func (a *API) createAccount(w http.ResponseWriter, r *http.Request) {
	var req finance.NewAccount
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	acc, err := a.svc.CreateAccount(r.Context(), req)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}

	a.audit(r.Context(), "book.account.create", "account", acc.ID.String(), map[string]string{
		"name": acc.Name,
		"type": string(acc.Type),
	})

	w.Header().Set("Location", "/v1/accounts/"+acc.ID.String())
	writeJSON(w, http.StatusCreated, acc)
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	acc, err := a.svc.GetAccount(r.Context(), id)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.ListAccounts(r.Context())
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) deactivateAccount(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	acc, err := a.svc.DeactivateAccount(r.Context(), id)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}

	a.audit(r.Context(), "book.account.deactivate", "account", acc.ID.String(), nil)
	a.publish(stream.BookEvent{
		Type:      stream.EventAccountDeactivated,
		AccountID: acc.ID.String(),
		Name:      acc.Name,
		Amount:    acc.Balance,
	})

	writeJSON(w, http.StatusOK, acc)
}

func (a *API) createLiability(w http.ResponseWriter, r *http.Request) {
	var req finance.NewLiability
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	l, err := a.svc.CreateLiability(r.Context(), req)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}

	a.audit(r.Context(), "book.liability.create", "liability", l.ID.String(), map[string]string{
		"name":      l.Name,
		"amount":    l.Amount.String(),
		"frequency": string(l.Frequency),
		"due_day":   strconv.Itoa(l.DueDay),
	})

	writeJSON(w, http.StatusCreated, l)
}

func (a *API) listLiabilities(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "active must be a boolean")
			return
		}
		activeOnly = v
	}

	items, err := a.svc.ListLiabilities(r.Context(), activeOnly)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createIncome(w http.ResponseWriter, r *http.Request) {
	var req finance.NewIncome
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	inc, err := a.svc.CreateIncome(r.Context(), req)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}

	a.audit(r.Context(), "book.income.create", "income", inc.ID.String(), map[string]string{
		"source":    inc.Source,
		"amount":    inc.Amount.String(),
		"frequency": string(inc.Frequency),
	})

	writeJSON(w, http.StatusCreated, inc)
}

func (a *API) listIncomes(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.ListIncomes(r.Context())
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req finance.NewSchedule
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sch, err := a.svc.CreateSchedule(r.Context(), req)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}

	a.audit(r.Context(), "book.schedule.create", "schedule", sch.ID.String(), map[string]string{
		"kind":          string(sch.Kind),
		"account_id":    sch.AccountID.String(),
		"amount":        sch.Amount.String(),
		"scheduled_for": sch.ScheduledFor.Time().Format(queryDateLayout),
	})

	writeJSON(w, http.StatusCreated, sch)
}

func (a *API) upcomingSchedules(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseWindow(r, finance.DefaultHorizonDays)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, err := a.svc.UpcomingSchedules(r.Context(), from, to)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listSchedulesResponse{
		Items: items,
		From:  from,
		To:    to,
		AsOf:  timeutil.NowAware(),
	})
}

func (a *API) markScheduleProcessed(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	sch, err := a.svc.MarkScheduleProcessed(r.Context(), id)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}

	obs.CountScheduleProcessed()
	a.audit(r.Context(), "book.schedule.process", "schedule", sch.ID.String(), map[string]string{
		"account_id": sch.AccountID.String(),
		"amount":     sch.Amount.String(),
	})
	a.publish(stream.BookEvent{
		Type:      stream.EventScheduleProcessed,
		AccountID: sch.AccountID.String(),
		Name:      sch.Name,
		Amount:    sch.Amount,
	})

	writeJSON(w, http.StatusOK, sch)
}

func (a *API) recordSnapshot(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	var req recordSnapshotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := a.svc.RecordSnapshot(r.Context(), accountID, req.Balance)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}

	obs.CountSnapshotRecorded()
	a.audit(r.Context(), "book.snapshot.record", "account", accountID.String(), map[string]string{
		"balance": snap.Balance.String(),
	})
	a.publish(stream.BookEvent{
		Type:      stream.EventSnapshotRecorded,
		AccountID: accountID.String(),
		Amount:    snap.Balance,
	})

	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) balanceHistory(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	from, to, err := parseWindow(r, finance.DefaultHorizonDays)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, err := a.svc.BalanceHistory(r.Context(), accountID, from, to)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) reconcile(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	rec, err := a.svc.Reconcile(r.Context(), accountID)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) forecast(w http.ResponseWriter, r *http.Request) {
	horizon, err := parsePositiveInt(r.URL.Query().Get("horizon_days"), finance.DefaultHorizonDays, 1, 366)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	from, to := finance.ForecastWindow(horizon)

	ctx := r.Context()
	accounts, err := a.svc.ListAccounts(ctx)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}
	liabilities, err := a.svc.ListLiabilities(ctx, true)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}
	incomes, err := a.svc.ListIncomes(ctx)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}
	schedules, err := a.svc.UpcomingSchedules(ctx, from, to)
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}

	fc, err := finance.BuildForecast(finance.ForecastInput{
		Accounts:    accounts,
		Liabilities: liabilities,
		Incomes:     incomes,
		Schedules:   schedules,
		From:        from,
		To:          to,
	})
	if err != nil {
		handleFinanceError(w, r, err)
		return
	}

	obs.CountForecast()
	writeJSON(w, http.StatusOK, fc)
}

// parseWindow reads from/to query dates. Absent bounds default to today and
// today+days.
func parseWindow(r *http.Request, days int) (timeutil.Naive, timeutil.Naive, error) {
	from := timeutil.NowNaive().StartOfDay()
	to := from.SafeEndDate(days)

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := timeutil.ParseNaive(raw, queryDateLayout)
		if err != nil {
			return timeutil.Naive{}, timeutil.Naive{}, errors.New("from must be a YYYY-MM-DD date")
		}
		from = parsed.StartOfDay()
		to = from.SafeEndDate(days)
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := timeutil.ParseNaive(raw, queryDateLayout)
		if err != nil {
			return timeutil.Naive{}, timeutil.Naive{}, errors.New("to must be a YYYY-MM-DD date")
		}
		to = parsed.EndOfDay()
	}
	return from, to, nil
}

func parseID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("identifier must be a UUID")
	}
	return id, nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("value must be an integer")
	}
	if val < min || val > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := jsonCodec.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleFinanceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, finance.ErrInvalidName),
		errors.Is(err, finance.ErrInvalidAmount),
		errors.Is(err, finance.ErrInvalidAccountType),
		errors.Is(err, finance.ErrInvalidFrequency),
		errors.Is(err, finance.ErrInvalidDueDay),
		errors.Is(err, finance.ErrMissingDate),
		errors.Is(err, timeutil.ErrInvalidRange):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, finance.ErrInactiveAccount),
		errors.Is(err, finance.ErrScheduleExceedsIncome),
		errors.Is(err, finance.ErrDuplicateSnapshot):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, finance.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
