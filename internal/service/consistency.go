package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
)

// consistencyChecker compares an invoice's frozen lines with their live
// sources. It never writes.
type consistencyChecker struct {
	lines       *lineAggregator
	invoiceRepo repository.InvoiceRepository
}

// check returns one conflict per deleted source, per source locked to another
// invoice, and per drifted field, in line order.
func (c *consistencyChecker) check(ctx context.Context, inv *domain.Invoice) ([]domain.Conflict, error) {
	src, err := c.lines.loadFor(ctx, inv)
	if err != nil {
		return nil, err
	}

	conflicts := make([]domain.Conflict, 0)
	numbers := make(map[int64]string)

	for _, l := range inv.Lines {
		if !l.HasSource() {
			continue
		}
		base := domain.Conflict{LineID: l.ID, Type: l.Type, SourceID: *l.SourceID}
		label := l.SourceLabel()

		live, lockedTo, found, err := c.lines.fresh(ctx, src, l.Type, *l.SourceID)
		if err != nil {
			return nil, err
		}
		if !found {
			conflict := base
			conflict.Message = fmt.Sprintf("%s has been deleted", label)
			conflicts = append(conflicts, conflict)
			continue
		}

		if lockedTo != nil && *lockedTo != inv.ID {
			number, err := c.invoiceNumber(ctx, numbers, *lockedTo)
			if err != nil {
				return nil, err
			}
			conflict := base
			conflict.Message = fmt.Sprintf("%s is locked to invoice %s", label, number)
			conflicts = append(conflicts, conflict)
		}

		for _, d := range drift(l, live) {
			conflict := base
			conflict.Field = d.field
			conflict.Message = fmt.Sprintf("%s %s changed from %s to %s", label, d.field, d.from, d.to)
			conflicts = append(conflicts, conflict)
		}
	}

	return conflicts, nil
}

// invoiceNumber names the invoice holding a lock, or "Draft".
func (c *consistencyChecker) invoiceNumber(ctx context.Context, cache map[int64]string, id int64) (string, error) {
	if n, ok := cache[id]; ok {
		return n, nil
	}
	other, err := c.invoiceRepo.GetByID(ctx, id)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		cache[id] = domain.DraftLabel
	case err != nil:
		return "", err
	default:
		cache[id] = other.Number()
	}
	return cache[id], nil
}

type fieldDrift struct {
	field    string
	from, to string
}

func drift(frozen, live domain.LineItem) []fieldDrift {
	var out []fieldDrift
	if domain.Drifted(frozen.NetAmount, live.NetAmount) {
		out = append(out, fieldDrift{domain.FieldAmount, domain.FormatMoney(frozen.NetAmount), domain.FormatMoney(live.NetAmount)})
	}
	if domain.Drifted(frozen.VATAmount, live.VATAmount) {
		out = append(out, fieldDrift{domain.FieldVATAmount, domain.FormatMoney(frozen.VATAmount), domain.FormatMoney(live.VATAmount)})
	}
	if domain.PercentDrifted(frozen.VATPercent, live.VATPercent) {
		out = append(out, fieldDrift{domain.FieldVATPercent, domain.FormatPercent(frozen.VATPercent), domain.FormatPercent(live.VATPercent)})
	}
	// an expense's unit price is its net amount, already covered above
	if frozen.Type == domain.LineTypeTimesheet && domain.Drifted(frozen.UnitPrice, live.UnitPrice) {
		out = append(out, fieldDrift{domain.FieldRate, domain.FormatMoney(frozen.UnitPrice), domain.FormatMoney(live.UnitPrice)})
	}
	return out
}
