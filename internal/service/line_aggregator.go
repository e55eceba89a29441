package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
)

// lineAggregator turns timesheets, expenses and write-ins into invoice lines.
// Every recompute goes through the same constructors in domain so a fresh
// line and a frozen line are directly comparable.
type lineAggregator struct {
	timesheetRepo repository.TimesheetRepository
	expenseRepo   repository.ExpenseRepository
	terms         TermsResolver
}

// sources is a batch-loaded view of the live records behind a set of lines.
// Missing records are simply absent from the maps.
type sources struct {
	timesheets map[int64]*domain.Timesheet
	expenses   map[int64]*domain.Expense
	terms      map[int64]domain.BillingTerms // by project
}

func (a *lineAggregator) load(ctx context.Context, timesheetIDs, expenseIDs []int64) (*sources, error) {
	ts, err := a.timesheetRepo.FindManyByIDs(ctx, timesheetIDs)
	if err != nil {
		return nil, err
	}
	exp, err := a.expenseRepo.FindManyByIDs(ctx, expenseIDs)
	if err != nil {
		return nil, err
	}
	return &sources{
		timesheets: ts,
		expenses:   exp,
		terms:      make(map[int64]domain.BillingTerms),
	}, nil
}

// loadFor loads the sources referenced by an invoice's lines.
func (a *lineAggregator) loadFor(ctx context.Context, inv *domain.Invoice) (*sources, error) {
	return a.load(ctx, inv.SourceIDs(domain.LineTypeTimesheet), inv.SourceIDs(domain.LineTypeExpense))
}

func (a *lineAggregator) termsFor(ctx context.Context, src *sources, projectID int64) (domain.BillingTerms, error) {
	if t, ok := src.terms[projectID]; ok {
		return t, nil
	}
	t, err := a.terms.ResolveTerms(ctx, projectID)
	if err != nil {
		return domain.BillingTerms{}, err
	}
	src.terms[projectID] = t
	return t, nil
}

// fresh recomputes the line for a source from its live record. found is
// false when the source no longer exists; lockedTo is the source's lock.
func (a *lineAggregator) fresh(ctx context.Context, src *sources, t domain.LineType, id int64) (line domain.LineItem, lockedTo *int64, found bool, err error) {
	switch t {
	case domain.LineTypeTimesheet:
		ts, ok := src.timesheets[id]
		if !ok {
			return domain.LineItem{}, nil, false, nil
		}
		terms, err := a.termsFor(ctx, src, ts.ProjectID)
		if err != nil {
			return domain.LineItem{}, nil, false, err
		}
		return domain.NewTimesheetLine(ts, terms), ts.InvoiceID, true, nil
	case domain.LineTypeExpense:
		e, ok := src.expenses[id]
		if !ok {
			return domain.LineItem{}, nil, false, nil
		}
		return domain.NewExpenseLine(e), e.InvoiceID, true, nil
	default:
		return domain.LineItem{}, nil, false, fmt.Errorf("line type %q has no source", t)
	}
}

// build converts caller inputs into lines for an invoice of clientID.
// Referenced sources must exist and belong to one of the client's projects;
// whether they are locked is left to the consistency check at confirm.
func (a *lineAggregator) build(ctx context.Context, clientID int64, inputs []LineInput) ([]domain.LineItem, error) {
	var tsIDs, expIDs []int64
	seen := make(map[string]bool)
	for i, in := range inputs {
		if in.SourceID == nil || in.Type == domain.LineTypeWriteIn {
			continue
		}
		key := fmt.Sprintf("%s/%d", in.Type, *in.SourceID)
		if seen[key] {
			return nil, apperrors.Invalid(fmt.Sprintf("lines[%d].sourceId", i), "%s %d is already on this invoice", in.Type, *in.SourceID)
		}
		seen[key] = true
		if in.Type == domain.LineTypeTimesheet {
			tsIDs = append(tsIDs, *in.SourceID)
		} else {
			expIDs = append(expIDs, *in.SourceID)
		}
	}

	src, err := a.load(ctx, tsIDs, expIDs)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.LineItem, 0, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("lines[%d]", i)

		if in.Type == domain.LineTypeWriteIn {
			line, err := a.writeIn(ctx, src, clientID, field, in)
			if err != nil {
				return nil, err
			}
			lines = append(lines, line)
			continue
		}

		line, _, found, err := a.fresh(ctx, src, in.Type, *in.SourceID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, apperrors.NotFound(string(in.Type), *in.SourceID)
		}
		if err := a.checkOwner(ctx, src, clientID, field, *line.ProjectID); err != nil {
			return nil, err
		}
		if d := strings.TrimSpace(in.Description); d != "" {
			line.Description = d
		}
		lines = append(lines, line)
	}

	return lines, nil
}

func (a *lineAggregator) writeIn(ctx context.Context, src *sources, clientID int64, field string, in LineInput) (domain.LineItem, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return domain.LineItem{}, apperrors.Invalid(field+".description", "is required for write-in lines")
	}
	if !in.Quantity.IsPositive() {
		return domain.LineItem{}, apperrors.Invalid(field+".quantity", "must be greater than 0")
	}
	if in.VATPercent.Valid && in.VATPercent.Decimal.IsNegative() {
		return domain.LineItem{}, apperrors.Invalid(field+".vatPercent", "cannot be negative")
	}
	if in.ProjectID != nil {
		if err := a.checkOwner(ctx, src, clientID, field, *in.ProjectID); err != nil {
			return domain.LineItem{}, err
		}
	}
	return domain.NewWriteInLine(in.ProjectID, desc, in.Quantity, in.UnitPrice, in.VATPercent), nil
}

func (a *lineAggregator) checkOwner(ctx context.Context, src *sources, clientID int64, field string, projectID int64) error {
	terms, err := a.termsFor(ctx, src, projectID)
	if err != nil {
		return err
	}
	if terms.ClientID != clientID {
		return apperrors.Invalid(field, "project %d does not belong to client %d", projectID, clientID)
	}
	return nil
}

// checkOwnership verifies that every project billed by existing lines
// belongs to clientID. Used when a draft is moved to another client.
func (a *lineAggregator) checkOwnership(ctx context.Context, clientID int64, lines []domain.LineItem) error {
	src := &sources{terms: make(map[int64]domain.BillingTerms)}
	for i, l := range lines {
		if l.ProjectID == nil {
			continue
		}
		if err := a.checkOwner(ctx, src, clientID, fmt.Sprintf("lines[%d]", i), *l.ProjectID); err != nil {
			return err
		}
	}
	return nil
}

// refresh re-derives every sourced line from its live source, keeping line
// IDs and descriptions. Lines whose source is gone are kept and flagged.
func (a *lineAggregator) refresh(ctx context.Context, inv *domain.Invoice) (refreshed, deleted int, err error) {
	src, err := a.loadFor(ctx, inv)
	if err != nil {
		return 0, 0, err
	}

	for i := range inv.Lines {
		l := &inv.Lines[i]
		if !l.HasSource() {
			continue
		}
		line, _, found, err := a.fresh(ctx, src, l.Type, *l.SourceID)
		if err != nil {
			return 0, 0, err
		}
		if !found {
			l.SourceDeleted = true
			deleted++
			continue
		}
		l.Refresh(line)
		refreshed++
	}

	inv.CalculateTotals()
	return refreshed, deleted, nil
}
