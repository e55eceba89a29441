package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
)

// store is an in-memory database shared by the fake repositories. Values are
// copied on the way in and out so tests see what was persisted, not aliases.
type store struct {
	mu         sync.Mutex
	nextID     int64
	clients    map[int64]*domain.Client
	projects   map[int64]*domain.Project
	invoices   map[int64]*domain.Invoice
	timesheets map[int64]*domain.Timesheet
	expenses   map[int64]*domain.Expense
	settings   domain.Settings

	failExpenseRelease error
}

func newStore() *store {
	return &store{
		clients:    make(map[int64]*domain.Client),
		projects:   make(map[int64]*domain.Project),
		invoices:   make(map[int64]*domain.Invoice),
		timesheets: make(map[int64]*domain.Timesheet),
		expenses:   make(map[int64]*domain.Expense),
		settings:   domain.Settings{InvoicePrefix: "INV", DefaultPaymentTermDays: 30},
	}
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneInvoice(inv *domain.Invoice) *domain.Invoice {
	c := *inv
	c.Lines = append([]domain.LineItem(nil), inv.Lines...)
	return &c
}

func cloneTimesheet(ts *domain.Timesheet) *domain.Timesheet {
	c := *ts
	return &c
}

func cloneExpense(e *domain.Expense) *domain.Expense {
	c := *e
	return &c
}

func inRange(d time.Time, from, to *time.Time) bool {
	if from != nil && d.Before(*from) {
		return false
	}
	if to != nil && d.After(*to) {
		return false
	}
	return true
}

// --- clients ---

type fakeClientRepo struct{ *store }

func (r fakeClientRepo) Create(ctx context.Context, c *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.id()
	cp := *c
	r.clients[c.ID] = &cp
	return nil
}

func (r fakeClientRepo) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, apperrors.NotFound("client", id)
	}
	cp := *c
	return &cp, nil
}

func (r fakeClientRepo) GetByName(ctx context.Context, name string) (*domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("client", name)
}

func (r fakeClientRepo) List(ctx context.Context, includeArchived bool) ([]*domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Client, 0)
	for _, c := range r.clients {
		if includeArchived || !c.IsArchived {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeClientRepo) Update(ctx context.Context, c *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; !ok {
		return apperrors.NotFound("client", c.ID)
	}
	cp := *c
	r.clients[c.ID] = &cp
	return nil
}

func (r fakeClientRepo) Archive(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return apperrors.NotFound("client", id)
	}
	c.IsArchived = true
	return nil
}

// Delete mirrors the schema: invoices block the delete, projects and their
// sources cascade.
func (r fakeClientRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return apperrors.NotFound("client", id)
	}
	for _, inv := range r.invoices {
		if inv.ClientID == id {
			return errors.New("FOREIGN KEY constraint failed")
		}
	}
	for pid, p := range r.projects {
		if p.ClientID == id {
			r.deleteProjectLocked(pid)
		}
	}
	delete(r.clients, id)
	return nil
}

// --- projects ---

type fakeProjectRepo struct{ *store }

func (r fakeProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r fakeProjectRepo) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, apperrors.NotFound("project", id)
	}
	cp := *p
	return &cp, nil
}

func (r fakeProjectRepo) ListByClient(ctx context.Context, clientID int64, includeArchived bool) ([]*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Project, 0)
	for _, p := range r.projects {
		if p.ClientID == clientID && (includeArchived || !p.IsArchived) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeProjectRepo) Update(ctx context.Context, p *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; !ok {
		return apperrors.NotFound("project", p.ID)
	}
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r fakeProjectRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return apperrors.NotFound("project", id)
	}
	r.deleteProjectLocked(id)
	return nil
}

func (s *store) deleteProjectLocked(id int64) {
	for tid, ts := range s.timesheets {
		if ts.ProjectID == id {
			delete(s.timesheets, tid)
		}
	}
	for eid, e := range s.expenses {
		if e.ProjectID == id {
			delete(s.expenses, eid)
		}
	}
	delete(s.projects, id)
}

func (s *store) clientOf(projectID int64) int64 {
	if p, ok := s.projects[projectID]; ok {
		return p.ClientID
	}
	return 0
}

// setLocks applies the all-or-nothing lock contract to one table.
func setLocks[T any](s *store, rows map[int64]*T, lockOf func(*T) **int64, ids []int64, invoiceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		row, ok := rows[id]
		if !ok {
			return fmt.Errorf("source %d missing: %w", id, apperrors.ErrSourceLocked)
		}
		if l := *lockOf(row); l != nil && *l != invoiceID {
			return fmt.Errorf("source %d locked to %d: %w", id, *l, apperrors.ErrSourceLocked)
		}
	}
	for _, id := range ids {
		v := invoiceID
		*lockOf(rows[id]) = &v
	}
	return nil
}

// releaseLocks clears the locks invoiceID holds; fail, when set, is returned
// instead.
func releaseLocks[T any](s *store, rows map[int64]*T, lockOf func(*T) **int64, ids []int64, invoiceID int64, fail error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fail != nil {
		return fail
	}
	for _, id := range ids {
		row, ok := rows[id]
		if !ok {
			continue
		}
		if l := *lockOf(row); l != nil && *l == invoiceID {
			*lockOf(row) = nil
		}
	}
	return nil
}

// --- timesheets ---

type fakeTimesheetRepo struct{ *store }

func (r fakeTimesheetRepo) Create(ctx context.Context, ts *domain.Timesheet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts.ID = r.id()
	r.timesheets[ts.ID] = cloneTimesheet(ts)
	return nil
}

func (r fakeTimesheetRepo) GetByID(ctx context.Context, id int64) (*domain.Timesheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.timesheets[id]
	if !ok {
		return nil, apperrors.NotFound("timesheet", id)
	}
	return cloneTimesheet(ts), nil
}

func (r fakeTimesheetRepo) FindManyByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Timesheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]*domain.Timesheet)
	for _, id := range ids {
		if ts, ok := r.timesheets[id]; ok {
			out[id] = cloneTimesheet(ts)
		}
	}
	return out, nil
}

func (r fakeTimesheetRepo) List(ctx context.Context, f repository.SourceFilter) ([]*domain.Timesheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Timesheet, 0)
	for _, ts := range r.timesheets {
		if f.ClientID != nil && r.clientOf(ts.ProjectID) != *f.ClientID {
			continue
		}
		if f.ProjectID != nil && ts.ProjectID != *f.ProjectID {
			continue
		}
		if f.UnbilledOnly && ts.InvoiceID != nil {
			continue
		}
		if !inRange(ts.Date, f.From, f.To) {
			continue
		}
		out = append(out, cloneTimesheet(ts))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeTimesheetRepo) Update(ctx context.Context, ts *domain.Timesheet, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.timesheets[ts.ID]
	if !ok {
		return apperrors.NotFound("timesheet", ts.ID)
	}
	if old.InvoiceID != nil {
		return apperrors.ErrSourceLocked
	}
	r.timesheets[ts.ID] = cloneTimesheet(ts)
	return nil
}

func (r fakeTimesheetRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.timesheets[id]
	if !ok {
		return apperrors.NotFound("timesheet", id)
	}
	if ts.InvoiceID != nil {
		return apperrors.ErrSourceLocked
	}
	delete(r.timesheets, id)
	return nil
}

func (r fakeTimesheetRepo) GetHistory(ctx context.Context, id int64) ([]*domain.TimesheetHistory, error) {
	return []*domain.TimesheetHistory{}, nil
}

func timesheetLock(ts *domain.Timesheet) **int64 { return &ts.InvoiceID }

func (r fakeTimesheetRepo) SetInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error {
	return setLocks(r.store, r.timesheets, timesheetLock, ids, invoiceID)
}

func (r fakeTimesheetRepo) ReleaseInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error {
	return releaseLocks(r.store, r.timesheets, timesheetLock, ids, invoiceID, nil)
}

// --- expenses ---

type fakeExpenseRepo struct{ *store }

func (r fakeExpenseRepo) Create(ctx context.Context, e *domain.Expense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.id()
	r.expenses[e.ID] = cloneExpense(e)
	return nil
}

func (r fakeExpenseRepo) GetByID(ctx context.Context, id int64) (*domain.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.expenses[id]
	if !ok {
		return nil, apperrors.NotFound("expense", id)
	}
	return cloneExpense(e), nil
}

func (r fakeExpenseRepo) FindManyByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]*domain.Expense)
	for _, id := range ids {
		if e, ok := r.expenses[id]; ok {
			out[id] = cloneExpense(e)
		}
	}
	return out, nil
}

func (r fakeExpenseRepo) List(ctx context.Context, f repository.SourceFilter) ([]*domain.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Expense, 0)
	for _, e := range r.expenses {
		if f.ClientID != nil && r.clientOf(e.ProjectID) != *f.ClientID {
			continue
		}
		if f.ProjectID != nil && e.ProjectID != *f.ProjectID {
			continue
		}
		if f.UnbilledOnly && e.InvoiceID != nil {
			continue
		}
		if !inRange(e.Date, f.From, f.To) {
			continue
		}
		out = append(out, cloneExpense(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeExpenseRepo) Update(ctx context.Context, e *domain.Expense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.expenses[e.ID]
	if !ok {
		return apperrors.NotFound("expense", e.ID)
	}
	if old.InvoiceID != nil {
		return apperrors.ErrSourceLocked
	}
	r.expenses[e.ID] = cloneExpense(e)
	return nil
}

func (r fakeExpenseRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.expenses[id]
	if !ok {
		return apperrors.NotFound("expense", id)
	}
	if e.InvoiceID != nil {
		return apperrors.ErrSourceLocked
	}
	delete(r.expenses, id)
	return nil
}

func expenseLock(e *domain.Expense) **int64 { return &e.InvoiceID }

func (r fakeExpenseRepo) SetInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error {
	return setLocks(r.store, r.expenses, expenseLock, ids, invoiceID)
}

func (r fakeExpenseRepo) ReleaseInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error {
	return releaseLocks(r.store, r.expenses, expenseLock, ids, invoiceID, r.failExpenseRelease)
}

// --- invoices ---

type fakeInvoiceRepo struct {
	*store
	failUpdate error
}

func (r *fakeInvoiceRepo) Create(ctx context.Context, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv.ID = r.id()
	r.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r *fakeInvoiceRepo) GetByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, apperrors.NotFound("invoice", id)
	}
	return cloneInvoice(inv), nil
}

func (r *fakeInvoiceRepo) List(ctx context.Context, f repository.InvoiceFilter) ([]*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Invoice, 0)
	for _, inv := range r.invoices {
		if f.ClientID != nil && inv.ClientID != *f.ClientID {
			continue
		}
		if f.Status != nil && inv.Status != *f.Status {
			continue
		}
		if !inRange(inv.InvoiceDate, f.From, f.To) {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeInvoiceRepo) Update(ctx context.Context, inv *domain.Invoice) error {
	if r.failUpdate != nil {
		return r.failUpdate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[inv.ID]; !ok {
		return apperrors.NotFound("invoice", inv.ID)
	}
	r.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r *fakeInvoiceRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[id]; !ok {
		return apperrors.NotFound("invoice", id)
	}
	for _, ts := range r.timesheets {
		if ts.InvoiceID != nil && *ts.InvoiceID == id {
			return errors.New("FOREIGN KEY constraint failed")
		}
	}
	for _, e := range r.expenses {
		if e.InvoiceID != nil && *e.InvoiceID == id {
			return errors.New("FOREIGN KEY constraint failed")
		}
	}
	delete(r.invoices, id)
	return nil
}

func (r *fakeInvoiceRepo) MaxSequence(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max int64
	for _, inv := range r.invoices {
		if inv.Sequence != nil && *inv.Sequence > max {
			max = *inv.Sequence
		}
	}
	return max, nil
}

// --- settings ---

type fakeSettingsRepo struct{ *store }

func (r fakeSettingsRepo) Ensure(ctx context.Context, defaults domain.Settings) error {
	return nil
}

func (r fakeSettingsRepo) Get(ctx context.Context) (*domain.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.settings
	return &s, nil
}

func (r fakeSettingsRepo) Update(ctx context.Context, s *domain.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.InvoicePrefix = s.InvoicePrefix
	r.settings.DefaultPaymentTermDays = s.DefaultPaymentTermDays
	return nil
}

func (r fakeSettingsRepo) GetInvoiceSeed(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings.InvoiceNumberSeed, nil
}

func (r fakeSettingsRepo) ReserveNextNumber(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.InvoiceNumberSeed++
	return r.settings.InvoiceNumberSeed, nil
}

func (r fakeSettingsRepo) ReleaseNumber(ctx context.Context, n int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings.InvoiceNumberSeed != n || n == 0 {
		return false, nil
	}
	r.settings.InvoiceNumberSeed--
	return true, nil
}

func (r fakeSettingsRepo) RestoreNumber(ctx context.Context, n int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings.InvoiceNumberSeed == n-1 {
		r.settings.InvoiceNumberSeed = n
	}
	return nil
}

func (r fakeSettingsRepo) SetInvoiceSeed(ctx context.Context, seed int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.InvoiceNumberSeed = seed
	return nil
}

// mockSettingsRepo injects failures into the numbering steps.
type mockSettingsRepo struct {
	mock.Mock
}

func (m *mockSettingsRepo) Ensure(ctx context.Context, defaults domain.Settings) error {
	return m.Called(ctx, defaults).Error(0)
}

func (m *mockSettingsRepo) Get(ctx context.Context) (*domain.Settings, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*domain.Settings)
	return s, args.Error(1)
}

func (m *mockSettingsRepo) Update(ctx context.Context, s *domain.Settings) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockSettingsRepo) GetInvoiceSeed(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSettingsRepo) ReserveNextNumber(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSettingsRepo) ReleaseNumber(ctx context.Context, n int64) (bool, error) {
	args := m.Called(ctx, n)
	return args.Bool(0), args.Error(1)
}

func (m *mockSettingsRepo) RestoreNumber(ctx context.Context, n int64) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockSettingsRepo) SetInvoiceSeed(ctx context.Context, seed int64) error {
	return m.Called(ctx, seed).Error(0)
}
