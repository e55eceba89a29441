package repository

import (
	"context"
	"time"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

// ClientRepository manages client persistence
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	GetByID(ctx context.Context, id int64) (*domain.Client, error)
	GetByName(ctx context.Context, name string) (*domain.Client, error)
	List(ctx context.Context, includeArchived bool) ([]*domain.Client, error)
	Update(ctx context.Context, client *domain.Client) error
	Archive(ctx context.Context, id int64) error
	// Delete removes the client; its projects and their sources cascade.
	Delete(ctx context.Context, id int64) error
}

// ProjectRepository manages project persistence
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	GetByID(ctx context.Context, id int64) (*domain.Project, error)
	ListByClient(ctx context.Context, clientID int64, includeArchived bool) ([]*domain.Project, error)
	Update(ctx context.Context, project *domain.Project) error
	// Delete removes the project; its timesheets and expenses cascade.
	Delete(ctx context.Context, id int64) error
}

// SourceFilter narrows timesheet and expense listings.
type SourceFilter struct {
	ClientID     *int64
	ProjectID    *int64
	From         *time.Time // inclusive
	To           *time.Time // inclusive
	UnbilledOnly bool
}

// SourceLocker is the lock capability the invoice engine holds over sources.
// SetInvoiceLock locks every row that is unlocked or already locked to the
// invoice, failing with apperrors.ErrSourceLocked (and changing nothing) if any
// row is missing or locked elsewhere. ReleaseInvoiceLock clears only the locks
// the invoice holds.
type SourceLocker interface {
	SetInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error
	ReleaseInvoiceLock(ctx context.Context, ids []int64, invoiceID int64) error
}

// TimesheetRepository manages timesheet persistence with audit trail
type TimesheetRepository interface {
	SourceLocker
	Create(ctx context.Context, ts *domain.Timesheet) error
	GetByID(ctx context.Context, id int64) (*domain.Timesheet, error)
	// FindManyByIDs returns the timesheets that exist, keyed by ID.
	FindManyByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Timesheet, error)
	List(ctx context.Context, filter SourceFilter) ([]*domain.Timesheet, error)
	Update(ctx context.Context, ts *domain.Timesheet, reason string) error // rejects locked entries
	Delete(ctx context.Context, id int64) error                            // rejects locked entries
	GetHistory(ctx context.Context, id int64) ([]*domain.TimesheetHistory, error)
}

// ExpenseRepository manages expense persistence
type ExpenseRepository interface {
	SourceLocker
	Create(ctx context.Context, e *domain.Expense) error
	GetByID(ctx context.Context, id int64) (*domain.Expense, error)
	FindManyByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Expense, error)
	List(ctx context.Context, filter SourceFilter) ([]*domain.Expense, error)
	Update(ctx context.Context, e *domain.Expense) error // rejects locked expenses
	Delete(ctx context.Context, id int64) error          // rejects locked expenses
}

// InvoiceFilter narrows invoice listings; dates apply to the invoice date.
type InvoiceFilter struct {
	ClientID *int64
	Status   *domain.InvoiceStatus
	From     *time.Time
	To       *time.Time
}

// InvoiceRepository manages invoices and their lines. Lines are always
// read and written together with their invoice.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id int64) (*domain.Invoice, error)
	List(ctx context.Context, filter InvoiceFilter) ([]*domain.Invoice, error)
	Update(ctx context.Context, invoice *domain.Invoice) error
	Delete(ctx context.Context, id int64) error
	// MaxSequence returns the highest sequence held by any invoice, or 0.
	MaxSequence(ctx context.Context) (int64, error)
}

// SettingsRepository is the single-row settings store and the invoice
// number counter. Only the invoice engine moves the counter.
type SettingsRepository interface {
	// Ensure creates the settings row from defaults if it does not exist.
	Ensure(ctx context.Context, defaults domain.Settings) error
	Get(ctx context.Context) (*domain.Settings, error)
	// Update writes prefix and payment terms; the seed is untouched.
	Update(ctx context.Context, settings *domain.Settings) error
	GetInvoiceSeed(ctx context.Context) (int64, error)
	// ReserveNextNumber atomically increments the seed and returns the new value.
	ReserveNextNumber(ctx context.Context) (int64, error)
	// ReleaseNumber decrements the seed only if it still equals n.
	ReleaseNumber(ctx context.Context, n int64) (bool, error)
	// RestoreNumber undoes a release of n.
	RestoreNumber(ctx context.Context, n int64) error
	SetInvoiceSeed(ctx context.Context, seed int64) error
}
