package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/logger"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
)

var today = time.Date(2026, time.February, 2, 9, 30, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func money(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), msgAndArgs...)
}

type testEnv struct {
	st         *store
	clients    fakeClientRepo
	projects   fakeProjectRepo
	timesheets fakeTimesheetRepo
	expenses   fakeExpenseRepo
	invoices   *fakeInvoiceRepo
	settings   repository.SettingsRepository
	svc        *invoiceService

	client  *domain.Client
	project *domain.Project
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithSettings(t, nil)
}

// newTestEnvWithSettings builds the engine over fakes; a non-nil settings
// repository replaces the map-backed one.
func newTestEnvWithSettings(t *testing.T, settings repository.SettingsRepository) *testEnv {
	t.Helper()
	st := newStore()
	st.settings.InvoiceNumberSeed = 5

	e := &testEnv{
		st:         st,
		clients:    fakeClientRepo{st},
		projects:   fakeProjectRepo{st},
		timesheets: fakeTimesheetRepo{st},
		expenses:   fakeExpenseRepo{st},
		invoices:   &fakeInvoiceRepo{store: st},
		settings:   fakeSettingsRepo{st},
	}
	if settings != nil {
		e.settings = settings
	}

	terms := NewTermsResolver(e.clients, e.projects)
	e.svc = NewInvoiceService(e.invoices, e.timesheets, e.expenses, e.clients, e.settings, terms).(*invoiceService)
	e.svc.log = logger.Nop()
	e.svc.now = func() time.Time { return today }

	e.client = e.addClient(t, "Acme")
	e.project = e.addProject(t, e.client.ID, "Platform")
	return e
}

func (e *testEnv) addClient(t *testing.T, name string) *domain.Client {
	t.Helper()
	c := domain.NewClient(name, dec("500"))
	c.DefaultVATPercent = domain.Percent(dec("20"))
	require.NoError(t, e.clients.Create(context.Background(), c))
	return c
}

func (e *testEnv) addProject(t *testing.T, clientID int64, name string) *domain.Project {
	t.Helper()
	p := domain.NewProject(clientID, name)
	require.NoError(t, e.projects.Create(context.Background(), p))
	return p
}

func (e *testEnv) addTimesheet(t *testing.T, date string, hours string) *domain.Timesheet {
	t.Helper()
	ts := domain.NewTimesheet(e.project.ID, day(date), dec(hours), "Development")
	ts.Price(e.client.WorkingHoursPerDay, e.client.DefaultRate)
	require.NoError(t, e.timesheets.Create(context.Background(), ts))
	return ts
}

func (e *testEnv) addExpense(t *testing.T, date, gross, vat string) *domain.Expense {
	t.Helper()
	x := domain.NewExpense(e.project.ID, day(date), "Train fare", dec(gross))
	x.VATAmount = dec(vat)
	x.VATPercent = domain.Percent(dec("20"))
	require.NoError(t, e.expenses.Create(context.Background(), x))
	return x
}

// mutate edits a stored source directly, bypassing the lock check.
func (e *testEnv) mutateTimesheet(id int64, f func(ts *domain.Timesheet)) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	f(e.st.timesheets[id])
}

func (e *testEnv) seed() int64 {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return e.st.settings.InvoiceNumberSeed
}

func (e *testEnv) lockOf(t *testing.T, tsID int64) *int64 {
	t.Helper()
	ts, err := e.timesheets.GetByID(context.Background(), tsID)
	require.NoError(t, err)
	return ts.InvoiceID
}

func sourced(t domain.LineType, id int64) LineInput {
	return LineInput{Type: t, SourceID: &id}
}

func (e *testEnv) draft(t *testing.T, lines ...LineInput) *domain.Invoice {
	t.Helper()
	inv, err := e.svc.Create(context.Background(), CreateInvoiceRequest{
		ClientID:    e.client.ID,
		InvoiceDate: day("2026-01-31"),
		Lines:       lines,
	})
	require.NoError(t, err)
	return inv
}

func TestCreate_WriteInLine(t *testing.T) {
	e := newTestEnv(t)

	inv := e.draft(t, LineInput{
		Type:        domain.LineTypeWriteIn,
		Description: "Workshop",
		Quantity:    dec("2"),
		UnitPrice:   dec("100"),
		VATPercent:  domain.Percent(dec("20")),
	})

	require.Len(t, inv.Lines, 1)
	line := inv.Lines[0]
	money(t, "200.00", line.NetAmount)
	money(t, "40.00", line.VATAmount)
	money(t, "240.00", line.GrossAmount)
	money(t, "200.00", inv.Subtotal)
	money(t, "40.00", inv.TotalVAT)
	money(t, "240.00", inv.Total)

	assert.Equal(t, domain.InvoiceStatusDraft, inv.Status)
	assert.Nil(t, inv.InvoiceNumber)
	assert.Equal(t, "2026-03-02", inv.DueDate.Format(domain.DateLayout), "invoice date plus 30 days")
	assert.Equal(t, int64(5), e.seed(), "create never touches the counter")
}

func TestCreate_SourcedLines(t *testing.T) {
	e := newTestEnv(t)
	ts := e.addTimesheet(t, "2026-01-05", "6")
	x := e.addExpense(t, "2026-01-06", "120", "20")

	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID), sourced(domain.LineTypeExpense, x.ID))

	require.Len(t, inv.Lines, 2)
	money(t, "375.00", inv.Lines[0].NetAmount, "0.75 days at 500")
	money(t, "75.00", inv.Lines[0].VATAmount)
	money(t, "100.00", inv.Lines[1].NetAmount, "expense billed net of its VAT")
	money(t, "20.00", inv.Lines[1].VATAmount)
	money(t, "475.00", inv.Subtotal)
	money(t, "95.00", inv.TotalVAT)
	money(t, "570.00", inv.Total)
	assert.Nil(t, e.lockOf(t, ts.ID), "create does not lock")
}

func TestCreate_ClientPaymentTermsOverride(t *testing.T) {
	e := newTestEnv(t)
	terms := 14
	e.st.clients[e.client.ID].PaymentTermDays = &terms

	inv := e.draft(t)
	assert.Equal(t, "2026-02-14", inv.DueDate.Format(domain.DateLayout))
}

func TestCreate_Rejections(t *testing.T) {
	e := newTestEnv(t)
	other := e.addClient(t, "Globex")
	otherProject := e.addProject(t, other.ID, "Intranet")
	foreign := domain.NewTimesheet(otherProject.ID, day("2026-01-05"), dec("8"), "")
	foreign.Price(dec("8"), dec("400"))
	require.NoError(t, e.timesheets.Create(context.Background(), foreign))

	missing := int64(999)
	tests := []struct {
		name    string
		req     CreateInvoiceRequest
		wantErr error
		field   string
	}{
		{
			name:    "missing client",
			req:     CreateInvoiceRequest{},
			wantErr: apperrors.ErrValidation,
			field:   "clientId",
		},
		{
			name:    "unknown client",
			req:     CreateInvoiceRequest{ClientID: 12345},
			wantErr: apperrors.ErrNotFound,
		},
		{
			name: "unknown line type",
			req: CreateInvoiceRequest{ClientID: e.client.ID, Lines: []LineInput{
				{Type: "bonus", Description: "x", Quantity: dec("1")},
			}},
			wantErr: apperrors.ErrValidation,
			field:   "lines[0].type",
		},
		{
			name: "timesheet line without source",
			req: CreateInvoiceRequest{ClientID: e.client.ID, Lines: []LineInput{
				{Type: domain.LineTypeTimesheet},
			}},
			wantErr: apperrors.ErrValidation,
			field:   "lines[0].sourceId",
		},
		{
			name: "write-in without description",
			req: CreateInvoiceRequest{ClientID: e.client.ID, Lines: []LineInput{
				{Type: domain.LineTypeWriteIn, Quantity: dec("1"), UnitPrice: dec("10")},
			}},
			wantErr: apperrors.ErrValidation,
			field:   "lines[0].description",
		},
		{
			name: "missing source",
			req: CreateInvoiceRequest{ClientID: e.client.ID, Lines: []LineInput{
				sourced(domain.LineTypeTimesheet, missing),
			}},
			wantErr: apperrors.ErrNotFound,
		},
		{
			name: "another client's timesheet",
			req: CreateInvoiceRequest{ClientID: e.client.ID, Lines: []LineInput{
				sourced(domain.LineTypeTimesheet, foreign.ID),
			}},
			wantErr: apperrors.ErrValidation,
			field:   "lines[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Create(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)

			if tt.field != "" {
				var verr *apperrors.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, tt.field, verr.Field)
			}
		})
	}
	assert.Empty(t, e.st.invoices, "nothing is written on rejection")
}

func TestConfirmUnconfirm_RoundTrip(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")
	x := e.addExpense(t, "2026-01-06", "120", "20")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID), sourced(domain.LineTypeExpense, x.ID))

	conflicts, err := e.svc.CheckConsistency(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	confirmed, err := e.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.InvoiceNumber)
	assert.Equal(t, "INV00006", *confirmed.InvoiceNumber)
	assert.Equal(t, int64(6), e.seed())
	assert.Equal(t, &inv.ID, e.lockOf(t, ts.ID))
	locked, err := e.expenses.GetByID(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, &inv.ID, locked.InvoiceID)

	_, err = e.svc.Confirm(ctx, inv.ID)
	var stateErr *apperrors.StateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, domain.InvoiceStatusConfirmed, stateErr.Status)
	assert.Equal(t, int64(6), e.seed(), "second confirm allocates nothing")

	draft, err := e.svc.Unconfirm(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusDraft, draft.Status)
	assert.Nil(t, draft.InvoiceNumber)
	assert.True(t, draft.EverConfirmed)
	assert.Equal(t, int64(5), e.seed())
	assert.Nil(t, e.lockOf(t, ts.ID))
	unlocked, err := e.expenses.GetByID(ctx, x.ID)
	require.NoError(t, err)
	assert.Nil(t, unlocked.InvoiceID)
}

func TestConfirm_SourceLockedElsewhere(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")

	first := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))
	second := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))

	_, err := e.svc.Confirm(ctx, first.ID)
	require.NoError(t, err)

	_, err = e.svc.Confirm(ctx, second.ID)
	require.ErrorIs(t, err, apperrors.ErrConsistency)

	var cerr *apperrors.ConsistencyError
	require.True(t, errors.As(err, &cerr))
	require.Len(t, cerr.Conflicts, 1)
	c := cerr.Conflicts[0]
	assert.Equal(t, domain.LineTypeTimesheet, c.Type)
	assert.Equal(t, ts.ID, c.SourceID)
	assert.Empty(t, c.Field)
	assert.Equal(t, "Timesheet (2026-01-05) is locked to invoice INV00006", c.Message)

	got, err := e.svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusDraft, got.Status)
	assert.Equal(t, int64(6), e.seed())
	assert.Equal(t, &first.ID, e.lockOf(t, ts.ID))
}

func TestConsistency_DriftAndRecalculate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))
	_, err := e.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)

	// someone edits the locked entry behind the lock
	e.mutateTimesheet(ts.ID, func(ts *domain.Timesheet) {
		ts.Hours = dec("4")
		ts.Price(dec("8"), dec("500"))
	})

	conflicts, err := e.svc.CheckConsistency(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, domain.FieldAmount, conflicts[0].Field)
	assert.Equal(t, "Timesheet (2026-01-05) amount changed from 500.00 to 250.00", conflicts[0].Message)
	assert.Equal(t, domain.FieldVATAmount, conflicts[1].Field)
	assert.Equal(t, "Timesheet (2026-01-05) vatAmount changed from 100.00 to 50.00", conflicts[1].Message)

	recalculated, err := e.svc.Recalculate(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusConfirmed, recalculated.Status)
	money(t, "250.00", recalculated.Lines[0].NetAmount)
	money(t, "300.00", recalculated.Total)
	assert.Equal(t, inv.Lines[0].ID, recalculated.Lines[0].ID, "line identity survives")

	conflicts, err = e.svc.CheckConsistency(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestConsistency_RateAndVATChanges(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))

	e.mutateTimesheet(ts.ID, func(ts *domain.Timesheet) { ts.Price(dec("8"), dec("600")) })
	e.st.projects[e.project.ID].VATExempt = true

	conflicts, err := e.svc.CheckConsistency(ctx, inv.ID)
	require.NoError(t, err)

	fields := make([]string, len(conflicts))
	for i, c := range conflicts {
		fields[i] = c.Field
	}
	assert.Equal(t, []string{domain.FieldAmount, domain.FieldVATAmount, domain.FieldVATPercent, domain.FieldRate}, fields)
	assert.Equal(t, "Timesheet (2026-01-05) vatPercent changed from 20 to exempt", conflicts[2].Message)
	assert.Equal(t, "Timesheet (2026-01-05) rate changed from 500.00 to 600.00", conflicts[3].Message)
}

func TestConsistency_WithinToleranceIsClean(t *testing.T) {
	e := newTestEnv(t)
	ts := e.addTimesheet(t, "2026-01-05", "8")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))

	e.mutateTimesheet(ts.ID, func(ts *domain.Timesheet) { ts.Amount = dec("500.01") })

	conflicts, err := e.svc.CheckConsistency(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDeletedSource(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")
	inv := e.draft(t,
		sourced(domain.LineTypeTimesheet, ts.ID),
		LineInput{Type: domain.LineTypeWriteIn, Description: "Setup", Quantity: dec("1"), UnitPrice: dec("50")},
	)
	require.NoError(t, e.timesheets.Delete(ctx, ts.ID))

	conflicts, err := e.svc.CheckConsistency(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Timesheet (2026-01-05) has been deleted", conflicts[0].Message)

	_, err = e.svc.Confirm(ctx, inv.ID)
	require.ErrorIs(t, err, apperrors.ErrConsistency)

	recalculated, err := e.svc.Recalculate(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, recalculated.Lines, 2, "the line is kept for audit")
	assert.True(t, recalculated.Lines[0].SourceDeleted)
	money(t, "650.00", recalculated.Total)
}

func TestRecalculate_KeepsEditedDescription(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")

	in := sourced(domain.LineTypeTimesheet, ts.ID)
	in.Description = "API design"
	inv := e.draft(t, in)
	assert.Equal(t, "API design", inv.Lines[0].Description)

	got, err := e.svc.Recalculate(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "API design", got.Lines[0].Description)
}

func TestUpdate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	inv := e.draft(t)

	posted := domain.InvoiceStatusPosted
	number := "HACK001"
	notes := "Thanks for your business"
	newDate := day("2026-02-10")

	got, err := e.svc.Update(ctx, inv.ID, InvoicePatch{
		Status:          &posted,
		InvoiceNumber:   &number,
		AdditionalNotes: &notes,
		InvoiceDate:     &newDate,
		Lines: []LineInput{
			{Type: domain.LineTypeWriteIn, Description: "Support", Quantity: dec("3"), UnitPrice: dec("33.333"), VATPercent: domain.Percent(dec("20"))},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusDraft, got.Status, "protected fields are stripped")
	assert.Nil(t, got.InvoiceNumber)
	assert.Equal(t, notes, got.AdditionalNotes)
	assert.Equal(t, "2026-03-12", got.DueDate.Format(domain.DateLayout), "due date follows the invoice date")
	money(t, "100.00", got.Subtotal)
	money(t, "20.00", got.TotalVAT)

	stored, err := e.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, notes, stored.AdditionalNotes)
}

func TestUpdate_ClientReassignment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	other := e.addClient(t, "Globex")
	ts := e.addTimesheet(t, "2026-01-05", "8")

	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))
	_, err := e.svc.Update(ctx, inv.ID, InvoicePatch{ClientID: &other.ID})
	require.ErrorIs(t, err, apperrors.ErrValidation, "existing lines bill the old client's project")

	blank := e.draft(t)
	moved, err := e.svc.Update(ctx, blank.ID, InvoicePatch{ClientID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, other.ID, moved.ClientID)

	_, err = e.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)
	_, err = e.svc.Update(ctx, inv.ID, InvoicePatch{ClientID: &other.ID})
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = e.svc.Unconfirm(ctx, inv.ID)
	require.NoError(t, err)
	_, err = e.svc.Update(ctx, inv.ID, InvoicePatch{ClientID: &other.ID, Lines: []LineInput{}})
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "clientId", verr.Field)
}

func TestPostAndPayment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))

	paid := PaymentUpdate{PaymentStatus: domain.PaymentStatusPaid}

	_, err := e.svc.Post(ctx, inv.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidState, "drafts cannot be posted")

	_, err = e.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)

	_, err = e.svc.UpdatePayment(ctx, inv.ID, paid)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	posted, err := e.svc.Post(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPosted, posted.Status)

	_, err = e.svc.Unconfirm(ctx, inv.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
	require.ErrorIs(t, e.svc.Remove(ctx, inv.ID), apperrors.ErrInvalidState)

	got, err := e.svc.UpdatePayment(ctx, inv.ID, paid)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
	require.NotNil(t, got.PaidDate)
	assert.Equal(t, "2026-02-02", got.PaidDate.Format(domain.DateLayout))

	got, err = e.svc.UpdatePayment(ctx, inv.ID, PaymentUpdate{PaymentStatus: domain.PaymentStatusUnpaid})
	require.NoError(t, err)
	assert.Nil(t, got.PaidDate)

	_, err = e.svc.UpdatePayment(ctx, inv.ID, PaymentUpdate{PaymentStatus: "refunded"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestUnconfirm_OutOfOrderKeepsCounter(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.draft(t, sourced(domain.LineTypeTimesheet, e.addTimesheet(t, "2026-01-05", "8").ID))
	b := e.draft(t, sourced(domain.LineTypeTimesheet, e.addTimesheet(t, "2026-01-06", "8").ID))

	_, err := e.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)
	_, err = e.svc.Confirm(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), e.seed())

	_, err = e.svc.Unconfirm(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), e.seed(), "INV00006 is skipped, never reused")

	again, err := e.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV00008", *again.InvoiceNumber)
}

func TestRemove(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	inv := e.draft(t)

	require.NoError(t, e.svc.Remove(ctx, inv.ID))
	_, err := e.svc.Get(ctx, inv.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, e.svc.Remove(ctx, inv.ID), apperrors.ErrNotFound)
}

func TestRemoveInvoicesForClient_ReleasesLocks(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))
	_, err := e.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)
	_, err = e.svc.Post(ctx, inv.ID)
	require.NoError(t, err)

	require.NoError(t, e.svc.RemoveInvoicesForClient(ctx, e.client.ID))

	assert.Nil(t, e.lockOf(t, ts.ID))
	_, err = e.svc.Get(ctx, inv.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, int64(6), e.seed(), "cascade does not release numbers")
}

func TestRemoveInvoicesForClient_LeavesOtherLocks(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")
	confirmed := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))
	stale := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))
	_, err := e.svc.Confirm(ctx, confirmed.ID)
	require.NoError(t, err)

	// removing the stale draft alone must not clear the confirmed invoice's lock
	require.NoError(t, e.svc.forceRemove(ctx, stale.ID))
	assert.Equal(t, &confirmed.ID, e.lockOf(t, ts.ID))
}

func TestRemoveInvoicesForProject(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	side := e.addProject(t, e.client.ID, "Side")

	ts := e.addTimesheet(t, "2026-01-05", "8")
	billsProject := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))
	_, err := e.svc.Confirm(ctx, billsProject.ID)
	require.NoError(t, err)

	unrelated := e.draft(t, LineInput{
		Type: domain.LineTypeWriteIn, ProjectID: &side.ID, Description: "Hosting", Quantity: dec("1"), UnitPrice: dec("20"),
	})

	require.NoError(t, e.svc.RemoveInvoicesForProject(ctx, e.project.ID))

	_, err = e.svc.Get(ctx, billsProject.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = e.svc.Get(ctx, unrelated.ID)
	assert.NoError(t, err)
	assert.Nil(t, e.lockOf(t, ts.ID))
}

func TestClientDeletion_Cascade(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))
	_, err := e.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)

	clients := NewClientService(e.clients, e.projects, NewTermsResolver(e.clients, e.projects), e.svc).(*clientService)
	clients.log = logger.Nop()

	// without the cascade the invoice foreign key would reject the delete
	require.Error(t, e.clients.Delete(ctx, e.client.ID))

	require.NoError(t, clients.DeleteClient(ctx, e.client.ID))
	assert.Empty(t, e.st.invoices)
	assert.Empty(t, e.st.timesheets)
	assert.Empty(t, e.st.projects)
}

func TestGetNextInvoiceNumber_IsPure(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		n, err := e.svc.GetNextInvoiceNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, "INV00006", n)
	}
	assert.Equal(t, int64(5), e.seed())
}

func TestCollectUnbilledLines(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	jan := e.addTimesheet(t, "2026-01-05", "8")
	billed := e.addTimesheet(t, "2026-01-06", "8")
	e.addTimesheet(t, "2026-02-03", "8")
	x := e.addExpense(t, "2026-01-20", "60", "10")

	inv := e.draft(t, sourced(domain.LineTypeTimesheet, billed.ID))
	_, err := e.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)

	from, to := day("2026-01-01"), day("2026-01-31")
	inputs, err := e.svc.CollectUnbilledLines(ctx, e.client.ID, &from, &to)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, domain.LineTypeTimesheet, inputs[0].Type)
	assert.Equal(t, jan.ID, *inputs[0].SourceID)
	assert.Equal(t, domain.LineTypeExpense, inputs[1].Type)
	assert.Equal(t, x.ID, *inputs[1].SourceID)

	created, err := e.svc.Create(ctx, CreateInvoiceRequest{ClientID: e.client.ID, Lines: inputs})
	require.NoError(t, err)
	money(t, "550.00", created.Subtotal)
}

func TestConfirm_ConcurrentCallsAllocateOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, e.addTimesheet(t, "2026-01-05", "8").ID))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Confirm(ctx, inv.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(6), e.seed())
}

func TestConfirm_ReserveFailureUnlocksSources(t *testing.T) {
	settings := &mockSettingsRepo{}
	e := newTestEnvWithSettings(t, settings)
	ctx := context.Background()

	settings.On("Get", mock.Anything).Return(&domain.Settings{InvoicePrefix: "INV", DefaultPaymentTermDays: 30}, nil)
	settings.On("ReserveNextNumber", mock.Anything).Return(int64(0), errors.New("disk I/O error"))

	ts := e.addTimesheet(t, "2026-01-05", "8")
	x := e.addExpense(t, "2026-01-06", "120", "20")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID), sourced(domain.LineTypeExpense, x.ID))

	_, err := e.svc.Confirm(ctx, inv.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve number")

	assert.Nil(t, e.lockOf(t, ts.ID), "timesheet lock compensated")
	got, err := e.expenses.GetByID(ctx, x.ID)
	require.NoError(t, err)
	assert.Nil(t, got.InvoiceID, "expense lock compensated")

	stored, err := e.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusDraft, stored.Status)
	settings.AssertExpectations(t)
	settings.AssertNotCalled(t, "ReleaseNumber", mock.Anything, mock.Anything)
}

func TestConfirm_PersistFailureReleasesNumber(t *testing.T) {
	settings := &mockSettingsRepo{}
	e := newTestEnvWithSettings(t, settings)
	ctx := context.Background()

	settings.On("Get", mock.Anything).Return(&domain.Settings{InvoicePrefix: "INV", DefaultPaymentTermDays: 30}, nil)
	settings.On("ReserveNextNumber", mock.Anything).Return(int64(6), nil).Once()
	settings.On("ReleaseNumber", mock.Anything, int64(6)).Return(true, nil).Once()

	ts := e.addTimesheet(t, "2026-01-05", "8")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))

	e.invoices.failUpdate = errors.New("database is locked")
	_, err := e.svc.Confirm(ctx, inv.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	settings.AssertExpectations(t)
	assert.Nil(t, e.lockOf(t, ts.ID))
}

func TestUnconfirm_PersistFailureRestoresState(t *testing.T) {
	settings := &mockSettingsRepo{}
	e := newTestEnvWithSettings(t, settings)
	ctx := context.Background()

	settings.On("Get", mock.Anything).Return(&domain.Settings{InvoicePrefix: "INV", DefaultPaymentTermDays: 30}, nil)
	settings.On("ReserveNextNumber", mock.Anything).Return(int64(6), nil).Once()
	settings.On("ReleaseNumber", mock.Anything, int64(6)).Return(true, nil).Once()
	settings.On("RestoreNumber", mock.Anything, int64(6)).Return(nil).Once()

	ts := e.addTimesheet(t, "2026-01-05", "8")
	x := e.addExpense(t, "2026-01-06", "120", "20")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID), sourced(domain.LineTypeExpense, x.ID))
	_, err := e.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)

	e.invoices.failUpdate = errors.New("database is locked")
	_, err = e.svc.Unconfirm(ctx, inv.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	settings.AssertExpectations(t)
	assert.Equal(t, &inv.ID, e.lockOf(t, ts.ID), "locks are put back")
	exp, err := e.expenses.GetByID(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, &inv.ID, exp.InvoiceID)

	e.invoices.failUpdate = nil
	stored, err := e.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusConfirmed, stored.Status)
	assert.Equal(t, "INV00006", stored.Number())
}

func TestUnconfirm_PersistFailureKeepsNumberTaken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, e.addTimesheet(t, "2026-01-05", "8").ID))
	next := e.draft(t, sourced(domain.LineTypeTimesheet, e.addTimesheet(t, "2026-01-06", "8").ID))
	_, err := e.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)

	e.invoices.failUpdate = errors.New("database is locked")
	_, err = e.svc.Unconfirm(ctx, inv.ID)
	require.Error(t, err)
	e.invoices.failUpdate = nil

	assert.Equal(t, int64(6), e.seed(), "released number is restored")
	confirmed, err := e.svc.Confirm(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV00007", confirmed.Number())
}

func TestUpdate_InvoiceDateKeepsDueDateGap(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	due := day("2026-02-14")
	inv, err := e.svc.Create(ctx, CreateInvoiceRequest{
		ClientID:    e.client.ID,
		InvoiceDate: day("2026-01-31"),
		DueDate:     &due,
	})
	require.NoError(t, err)

	moved := day("2026-02-10")
	got, err := e.svc.Update(ctx, inv.ID, InvoicePatch{InvoiceDate: &moved})
	require.NoError(t, err)
	assert.Equal(t, "2026-02-24", got.DueDate.Format(domain.DateLayout))
}

func TestConfirm_RejectsInvoiceWithoutLines(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	inv := e.draft(t)

	_, err := e.svc.Confirm(ctx, inv.ID)
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "lines", verr.Field)

	stored, err := e.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusDraft, stored.Status)
	assert.Equal(t, int64(5), e.seed())
}

// racingTimesheetRepo locks sources to a rival invoice just before the engine
// does, as a concurrent confirm of another invoice would.
type racingTimesheetRepo struct {
	fakeTimesheetRepo
	rival int64
}

func (r racingTimesheetRepo) SetInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error {
	if invoiceID != r.rival {
		if err := r.fakeTimesheetRepo.SetInvoiceLock(ctx, ids, r.rival); err != nil {
			return err
		}
	}
	return r.fakeTimesheetRepo.SetInvoiceLock(ctx, ids, invoiceID)
}

func TestConfirm_LostLockRaceIsAConflict(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))
	rival := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID))
	e.svc.timesheetRepo = racingTimesheetRepo{fakeTimesheetRepo: e.timesheets, rival: rival.ID}

	_, err := e.svc.Confirm(ctx, inv.ID)
	require.ErrorIs(t, err, apperrors.ErrConsistency)
	var cerr *apperrors.ConsistencyError
	require.True(t, errors.As(err, &cerr))
	require.Len(t, cerr.Conflicts, 1)
	assert.Equal(t, ts.ID, cerr.Conflicts[0].SourceID)
	assert.Equal(t, "Timesheet (2026-01-05) is locked to invoice Draft", cerr.Conflicts[0].Message)

	assert.Equal(t, &rival.ID, e.lockOf(t, ts.ID), "the rival keeps its lock")
	assert.Equal(t, int64(5), e.seed())
	stored, err := e.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusDraft, stored.Status)
}

func TestRemoveInvoicesForClient_ReleaseFailureKeepsLocks(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	ts := e.addTimesheet(t, "2026-01-05", "8")
	x := e.addExpense(t, "2026-01-06", "120", "20")
	inv := e.draft(t, sourced(domain.LineTypeTimesheet, ts.ID), sourced(domain.LineTypeExpense, x.ID))
	_, err := e.svc.Confirm(ctx, inv.ID)
	require.NoError(t, err)

	e.st.failExpenseRelease = errors.New("disk I/O error")
	err = e.svc.RemoveInvoicesForClient(ctx, e.client.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")

	assert.Equal(t, &inv.ID, e.lockOf(t, ts.ID), "timesheet lock is put back")
	exp, err := e.expenses.GetByID(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, &inv.ID, exp.InvoiceID)
	stored, err := e.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusConfirmed, stored.Status)
}
