package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/logger"
	"github.com/work-flower/timesheet-application-sub001/internal/period"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
)

// InvoiceService manages the invoice lifecycle, the locks invoices hold over
// timesheets and expenses, and invoice numbering.
type InvoiceService interface {
	InvoiceRemover

	// Create builds a draft from caller lines. Sources are not locked.
	Create(ctx context.Context, req CreateInvoiceRequest) (*domain.Invoice, error)

	// Update patches a draft. Protected fields are ignored.
	Update(ctx context.Context, id int64, patch InvoicePatch) (*domain.Invoice, error)

	// Confirm checks consistency, locks every source, allocates the next
	// number and moves the invoice to confirmed. On conflicts it returns a
	// *apperrors.ConsistencyError and changes nothing.
	Confirm(ctx context.Context, id int64) (*domain.Invoice, error)

	// Post moves a confirmed invoice to posted.
	Post(ctx context.Context, id int64) (*domain.Invoice, error)

	// Unconfirm releases locks and the number and returns the invoice to draft.
	Unconfirm(ctx context.Context, id int64) (*domain.Invoice, error)

	// Recalculate refreshes sourced lines from their live sources.
	Recalculate(ctx context.Context, id int64) (*domain.Invoice, error)

	// CheckConsistency previews the conflicts Confirm would report.
	CheckConsistency(ctx context.Context, id int64) ([]domain.Conflict, error)

	UpdatePayment(ctx context.Context, id int64, update PaymentUpdate) (*domain.Invoice, error)

	// Remove deletes a draft invoice.
	Remove(ctx context.Context, id int64) error

	Get(ctx context.Context, id int64) (*domain.Invoice, error)
	List(ctx context.Context, filter repository.InvoiceFilter) ([]*domain.Invoice, error)

	// GetNextInvoiceNumber previews the number the next confirm would take.
	GetNextInvoiceNumber(ctx context.Context) (string, error)

	// CollectUnbilledLines returns line inputs for every unlocked timesheet
	// and expense of the client in the range, ready for Create.
	CollectUnbilledLines(ctx context.Context, clientID int64, from, to *time.Time) ([]LineInput, error)
}

type invoiceService struct {
	invoiceRepo   repository.InvoiceRepository
	timesheetRepo repository.TimesheetRepository
	expenseRepo   repository.ExpenseRepository
	clientRepo    repository.ClientRepository
	settingsRepo  repository.SettingsRepository

	lines   *lineAggregator
	checker *consistencyChecker
	locks   *invoiceLocks
	log     zerolog.Logger
	now     func() time.Time
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	timesheetRepo repository.TimesheetRepository,
	expenseRepo repository.ExpenseRepository,
	clientRepo repository.ClientRepository,
	settingsRepo repository.SettingsRepository,
	terms TermsResolver,
) InvoiceService {
	lines := &lineAggregator{
		timesheetRepo: timesheetRepo,
		expenseRepo:   expenseRepo,
		terms:         terms,
	}
	return &invoiceService{
		invoiceRepo:   invoiceRepo,
		timesheetRepo: timesheetRepo,
		expenseRepo:   expenseRepo,
		clientRepo:    clientRepo,
		settingsRepo:  settingsRepo,
		lines:         lines,
		checker:       &consistencyChecker{lines: lines, invoiceRepo: invoiceRepo},
		locks:         newInvoiceLocks(),
		log:           logger.WithComponent("invoice-engine"),
		now:           time.Now,
	}
}

func (s *invoiceService) Create(ctx context.Context, req CreateInvoiceRequest) (*domain.Invoice, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	client, err := s.clientRepo.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	invoiceDate := period.Day(s.now())
	if !req.InvoiceDate.IsZero() {
		invoiceDate = period.Day(req.InvoiceDate)
	}

	dueDate, err := s.dueDate(ctx, client, invoiceDate, req.DueDate)
	if err != nil {
		return nil, err
	}

	lines, err := s.lines.build(ctx, client.ID, req.Lines)
	if err != nil {
		return nil, err
	}

	invoice := domain.NewInvoice(client.ID, invoiceDate, dueDate)
	invoice.ServicePeriodStart = dayPtr(req.ServicePeriodStart)
	invoice.ServicePeriodEnd = dayPtr(req.ServicePeriodEnd)
	invoice.AdditionalNotes = req.AdditionalNotes
	invoice.Lines = lines
	invoice.CalculateTotals()

	if err := invoice.Validate(); err != nil {
		return nil, apperrors.Invalid("invoice", "%v", err)
	}

	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("invoice_id", invoice.ID).
		Int64("client_id", client.ID).
		Int("lines", len(lines)).
		Str("total", domain.FormatMoney(invoice.Total)).
		Msg("invoice created")
	return invoice, nil
}

func (s *invoiceService) Update(ctx context.Context, id int64, patch InvoicePatch) (*domain.Invoice, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !invoice.CanEdit() {
		return nil, &apperrors.StateError{Op: "update", Status: invoice.Status}
	}

	if stripped := patch.stripProtected(); len(stripped) > 0 {
		s.log.Debug().Int64("invoice_id", id).Strs("fields", stripped).Msg("ignoring protected fields")
	}
	if err := validateRequest(patch); err != nil {
		return nil, err
	}

	if patch.ClientID != nil && *patch.ClientID != invoice.ClientID {
		if invoice.EverConfirmed {
			return nil, apperrors.Invalid("clientId", "cannot reassign an invoice that has been confirmed")
		}
		client, err := s.clientRepo.GetByID(ctx, *patch.ClientID)
		if err != nil {
			return nil, err
		}
		if patch.Lines == nil {
			if err := s.lines.checkOwnership(ctx, client.ID, invoice.Lines); err != nil {
				return nil, err
			}
		}
		invoice.ClientID = client.ID
	}

	if patch.InvoiceDate != nil {
		invoiceDate := period.Day(*patch.InvoiceDate)
		if patch.DueDate == nil {
			// keep the agreed terms, including a due date set by hand
			invoice.DueDate = invoiceDate.AddDate(0, 0, period.DaysBetween(invoice.InvoiceDate, invoice.DueDate))
		}
		invoice.InvoiceDate = invoiceDate
	}
	if patch.DueDate != nil {
		invoice.DueDate = period.Day(*patch.DueDate)
	}
	if patch.ServicePeriodStart != nil {
		invoice.ServicePeriodStart = dayPtr(patch.ServicePeriodStart)
	}
	if patch.ServicePeriodEnd != nil {
		invoice.ServicePeriodEnd = dayPtr(patch.ServicePeriodEnd)
	}
	if patch.AdditionalNotes != nil {
		invoice.AdditionalNotes = *patch.AdditionalNotes
	}

	if patch.Lines != nil {
		lines, err := s.lines.build(ctx, invoice.ClientID, patch.Lines)
		if err != nil {
			return nil, err
		}
		invoice.Lines = lines
		invoice.CalculateTotals()
	}

	if err := invoice.Validate(); err != nil {
		return nil, apperrors.Invalid("invoice", "%v", err)
	}

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) Confirm(ctx context.Context, id int64) (*domain.Invoice, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.InvoiceStatusDraft {
		return nil, &apperrors.StateError{Op: "confirm", Status: invoice.Status}
	}
	if len(invoice.Lines) == 0 {
		return nil, apperrors.Invalid("lines", "cannot confirm an invoice without lines")
	}

	conflicts, err := s.checker.check(ctx, invoice)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		s.log.Warn().Int64("invoice_id", id).Int("conflicts", len(conflicts)).Msg("confirm rejected")
		return nil, &apperrors.ConsistencyError{InvoiceID: id, Conflicts: conflicts}
	}

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	tsIDs := invoice.SourceIDs(domain.LineTypeTimesheet)
	expIDs := invoice.SourceIDs(domain.LineTypeExpense)
	var seq int64

	err = newSaga("confirm", s.log,
		s.lockStep("lock timesheets", s.timesheetRepo, tsIDs, id),
		s.lockStep("lock expenses", s.expenseRepo, expIDs, id),
		sagaStep{
			name: "reserve number",
			do: func(ctx context.Context) error {
				n, err := s.settingsRepo.ReserveNextNumber(ctx)
				seq = n
				return err
			},
			undo: func(ctx context.Context) error {
				released, err := s.settingsRepo.ReleaseNumber(ctx, seq)
				if err == nil && !released {
					s.log.Warn().Int64("sequence", seq).Msg("number not released, counter has moved on")
				}
				return err
			},
		},
		sagaStep{
			name: "persist",
			do: func(ctx context.Context) error {
				number := domain.FormatInvoiceNumber(settings.InvoicePrefix, seq)
				confirmed := *invoice
				confirmed.Status = domain.InvoiceStatusConfirmed
				confirmed.InvoiceNumber = &number
				confirmed.Sequence = &seq
				confirmed.EverConfirmed = true
				if err := s.invoiceRepo.Update(ctx, &confirmed); err != nil {
					return err
				}
				invoice = &confirmed
				return nil
			},
		},
	).run(ctx)
	if errors.Is(err, apperrors.ErrSourceLocked) {
		// another invoice locked a source after the check passed
		return nil, s.lostLockRace(ctx, invoice, err)
	}
	if err != nil {
		return nil, err
	}

	s.logTransition(invoice, domain.InvoiceStatusDraft)
	return invoice, nil
}

// lostLockRace reports a failed lock step as the conflicts that caused it.
func (s *invoiceService) lostLockRace(ctx context.Context, invoice *domain.Invoice, lockErr error) error {
	conflicts, err := s.checker.check(ctx, invoice)
	if err != nil {
		return errors.Join(lockErr, err)
	}
	if len(conflicts) == 0 {
		return lockErr
	}
	s.log.Warn().Int64("invoice_id", invoice.ID).Int("conflicts", len(conflicts)).Msg("confirm lost a lock race")
	return &apperrors.ConsistencyError{InvoiceID: invoice.ID, Conflicts: conflicts}
}

func (s *invoiceService) Post(ctx context.Context, id int64) (*domain.Invoice, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.InvoiceStatusConfirmed {
		return nil, &apperrors.StateError{Op: "post", Status: invoice.Status}
	}

	invoice.Status = domain.InvoiceStatusPosted
	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, err
	}

	s.logTransition(invoice, domain.InvoiceStatusConfirmed)
	return invoice, nil
}

func (s *invoiceService) Unconfirm(ctx context.Context, id int64) (*domain.Invoice, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.InvoiceStatusConfirmed {
		return nil, &apperrors.StateError{Op: "unconfirm", Status: invoice.Status}
	}

	number := invoice.Number()
	tsIDs := invoice.SourceIDs(domain.LineTypeTimesheet)
	expIDs := invoice.SourceIDs(domain.LineTypeExpense)
	seq := invoice.Sequence
	released := false

	err = newSaga("unconfirm", s.log,
		s.unlockStep("unlock timesheets", s.timesheetRepo, tsIDs, id),
		s.unlockStep("unlock expenses", s.expenseRepo, expIDs, id),
		sagaStep{
			name: "release number",
			do: func(ctx context.Context) error {
				if seq == nil {
					return nil
				}
				ok, err := s.settingsRepo.ReleaseNumber(ctx, *seq)
				if err != nil {
					return err
				}
				released = ok
				if !ok {
					s.log.Info().Int64("invoice_id", id).Str("invoice_number", number).
						Msg("newer numbers exist, counter left in place")
				}
				return nil
			},
			undo: func(ctx context.Context) error {
				if !released {
					return nil
				}
				return s.settingsRepo.RestoreNumber(ctx, *seq)
			},
		},
		sagaStep{
			name: "persist",
			do: func(ctx context.Context) error {
				draft := *invoice
				draft.Status = domain.InvoiceStatusDraft
				draft.InvoiceNumber = nil
				draft.Sequence = nil
				if err := s.invoiceRepo.Update(ctx, &draft); err != nil {
					return err
				}
				invoice = &draft
				return nil
			},
		},
	).run(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("invoice_id", id).
		Str("from", string(domain.InvoiceStatusConfirmed)).
		Str("to", string(domain.InvoiceStatusDraft)).
		Str("invoice_number", number).
		Msg("invoice transition")
	return invoice, nil
}

func (s *invoiceService) Recalculate(ctx context.Context, id int64) (*domain.Invoice, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	refreshed, deleted, err := s.lines.refresh(ctx, invoice)
	if err != nil {
		return nil, err
	}

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("invoice_id", id).
		Int("refreshed", refreshed).
		Int("source_deleted", deleted).
		Str("total", domain.FormatMoney(invoice.Total)).
		Msg("invoice recalculated")
	return invoice, nil
}

func (s *invoiceService) CheckConsistency(ctx context.Context, id int64) ([]domain.Conflict, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.checker.check(ctx, invoice)
}

func (s *invoiceService) UpdatePayment(ctx context.Context, id int64, update PaymentUpdate) (*domain.Invoice, error) {
	if err := validateRequest(update); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.InvoiceStatusPosted {
		return nil, &apperrors.StateError{Op: "update payment of", Status: invoice.Status}
	}

	invoice.PaymentStatus = update.PaymentStatus
	switch {
	case update.PaymentStatus == domain.PaymentStatusUnpaid:
		invoice.PaidDate = nil
	case update.PaidDate != nil:
		invoice.PaidDate = dayPtr(update.PaidDate)
	default:
		today := period.Day(s.now())
		invoice.PaidDate = &today
	}

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, err
	}

	s.log.Info().Int64("invoice_id", id).Str("payment_status", string(invoice.PaymentStatus)).Msg("payment updated")
	return invoice, nil
}

func (s *invoiceService) Remove(ctx context.Context, id int64) error {
	unlock := s.locks.lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if invoice.Status != domain.InvoiceStatusDraft {
		return &apperrors.StateError{Op: "remove", Status: invoice.Status}
	}

	if err := s.invoiceRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().Int64("invoice_id", id).Msg("invoice removed")
	return nil
}

func (s *invoiceService) RemoveInvoicesForClient(ctx context.Context, clientID int64) error {
	invoices, err := s.invoiceRepo.List(ctx, repository.InvoiceFilter{ClientID: &clientID})
	if err != nil {
		return err
	}
	for _, inv := range invoices {
		if err := s.forceRemove(ctx, inv.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *invoiceService) RemoveInvoicesForProject(ctx context.Context, projectID int64) error {
	invoices, err := s.invoiceRepo.List(ctx, repository.InvoiceFilter{})
	if err != nil {
		return err
	}
	for _, inv := range invoices {
		if !inv.HasProject(projectID) {
			continue
		}
		if err := s.forceRemove(ctx, inv.ID); err != nil {
			return err
		}
	}
	return nil
}

// forceRemove deletes an invoice in any status, clearing the locks it holds
// first. The number it held is not released.
func (s *invoiceService) forceRemove(ctx context.Context, id int64) error {
	unlock := s.locks.lock(id)
	defer unlock()

	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = newSaga("cascade remove", s.log,
		s.unlockStep("unlock timesheets", s.timesheetRepo, invoice.SourceIDs(domain.LineTypeTimesheet), id),
		s.unlockStep("unlock expenses", s.expenseRepo, invoice.SourceIDs(domain.LineTypeExpense), id),
		sagaStep{
			name: "delete",
			do: func(ctx context.Context) error {
				return s.invoiceRepo.Delete(ctx, id)
			},
		},
	).run(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove invoice %d: %w", id, err)
	}

	s.log.Info().
		Int64("invoice_id", id).
		Str("status", string(invoice.Status)).
		Str("invoice_number", invoice.Number()).
		Msg("invoice removed by cascade")
	return nil
}

func (s *invoiceService) Get(ctx context.Context, id int64) (*domain.Invoice, error) {
	return s.invoiceRepo.GetByID(ctx, id)
}

func (s *invoiceService) List(ctx context.Context, filter repository.InvoiceFilter) ([]*domain.Invoice, error) {
	return s.invoiceRepo.List(ctx, filter)
}

func (s *invoiceService) GetNextInvoiceNumber(ctx context.Context) (string, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return "", err
	}
	return settings.NextInvoiceNumber(), nil
}

func (s *invoiceService) CollectUnbilledLines(ctx context.Context, clientID int64, from, to *time.Time) ([]LineInput, error) {
	if _, err := s.clientRepo.GetByID(ctx, clientID); err != nil {
		return nil, err
	}

	filter := repository.SourceFilter{ClientID: &clientID, From: from, To: to, UnbilledOnly: true}

	timesheets, err := s.timesheetRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	expenses, err := s.expenseRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	inputs := make([]LineInput, 0, len(timesheets)+len(expenses))
	for _, ts := range timesheets {
		id := ts.ID
		inputs = append(inputs, LineInput{Type: domain.LineTypeTimesheet, SourceID: &id})
	}
	for _, e := range expenses {
		id := e.ID
		inputs = append(inputs, LineInput{Type: domain.LineTypeExpense, SourceID: &id})
	}
	return inputs, nil
}

func (s *invoiceService) lockStep(name string, locker repository.SourceLocker, ids []int64, invoiceID int64) sagaStep {
	return sagaStep{
		name: name,
		do: func(ctx context.Context) error {
			return locker.SetInvoiceLock(ctx, ids, invoiceID)
		},
		undo: func(ctx context.Context) error {
			return locker.ReleaseInvoiceLock(ctx, ids, invoiceID)
		},
	}
}

func (s *invoiceService) unlockStep(name string, locker repository.SourceLocker, ids []int64, invoiceID int64) sagaStep {
	return sagaStep{
		name: name,
		do: func(ctx context.Context) error {
			return locker.ReleaseInvoiceLock(ctx, ids, invoiceID)
		},
		undo: func(ctx context.Context) error {
			return locker.SetInvoiceLock(ctx, ids, invoiceID)
		},
	}
}

func (s *invoiceService) logTransition(invoice *domain.Invoice, from domain.InvoiceStatus) {
	s.log.Info().
		Int64("invoice_id", invoice.ID).
		Str("from", string(from)).
		Str("to", string(invoice.Status)).
		Str("invoice_number", invoice.Number()).
		Msg("invoice transition")
}

// dueDate is the explicit date if given, else the invoice date plus the
// client's payment terms (or the settings default).
func (s *invoiceService) dueDate(ctx context.Context, client *domain.Client, invoiceDate time.Time, explicit *time.Time) (time.Time, error) {
	if explicit != nil {
		return period.Day(*explicit), nil
	}
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return invoiceDate.AddDate(0, 0, settings.PaymentTermDays(client)), nil
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := period.Day(*t)
	return &d
}
