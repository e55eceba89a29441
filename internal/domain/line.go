package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LineType string

const (
	LineTypeTimesheet LineType = "timesheet"
	LineTypeExpense   LineType = "expense"
	LineTypeWriteIn   LineType = "write-in"
)

func (t LineType) Valid() bool {
	switch t {
	case LineTypeTimesheet, LineTypeExpense, LineTypeWriteIn:
		return true
	}
	return false
}

// Label is the display name used in conflict messages.
func (t LineType) Label() string {
	switch t {
	case LineTypeTimesheet:
		return "Timesheet"
	case LineTypeExpense:
		return "Expense"
	case LineTypeWriteIn:
		return "Write-in"
	default:
		return string(t)
	}
}

// LineItem is one frozen row of an invoice.
type LineItem struct {
	ID          string
	Type        LineType
	SourceID    *int64
	ProjectID   *int64
	Date        *time.Time // source date snapshot
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	VATPercent  decimal.NullDecimal
	NetAmount   decimal.Decimal
	VATAmount   decimal.Decimal
	GrossAmount decimal.Decimal

	// SourceDeleted marks a line whose source disappeared; the line is kept for audit.
	SourceDeleted bool
}

// NewWriteInLine builds a free-form line from caller-supplied values.
func NewWriteInLine(projectID *int64, description string, quantity, unitPrice decimal.Decimal, vat decimal.NullDecimal) LineItem {
	l := LineItem{
		ID:          uuid.NewString(),
		Type:        LineTypeWriteIn,
		ProjectID:   projectID,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		VATPercent:  vat,
		NetAmount:   Round2(quantity.Mul(unitPrice)),
	}
	l.applyVAT()
	return l
}

// NewTimesheetLine bills a timesheet entry at its own amount with the project's VAT.
func NewTimesheetLine(ts *Timesheet, terms BillingTerms) LineItem {
	id, projectID, date := ts.ID, ts.ProjectID, ts.Date
	l := LineItem{
		ID:          uuid.NewString(),
		Type:        LineTypeTimesheet,
		SourceID:    &id,
		ProjectID:   &projectID,
		Date:        &date,
		Description: ts.Description,
		Quantity:    ts.Days,
		UnitPrice:   ts.EffectiveRate,
		VATPercent:  terms.VATPercent,
		NetAmount:   ts.Amount,
	}
	l.applyVAT()
	return l
}

// NewExpenseLine bills an expense net of its included VAT.
func NewExpenseLine(e *Expense) LineItem {
	id, projectID, date := e.ID, e.ProjectID, e.Date
	net := e.NetAmount()
	l := LineItem{
		ID:          uuid.NewString(),
		Type:        LineTypeExpense,
		SourceID:    &id,
		ProjectID:   &projectID,
		Date:        &date,
		Description: e.Description,
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   net,
		VATPercent:  e.VATPercent,
		NetAmount:   net,
	}
	l.applyVAT()
	return l
}

func (l *LineItem) applyVAT() {
	l.VATAmount = VATOn(l.NetAmount, l.VATPercent)
	l.GrossAmount = Round2(l.NetAmount.Add(l.VATAmount))
}

// Refresh copies the source-derived values of fresh into l, keeping l's
// identity and description.
func (l *LineItem) Refresh(fresh LineItem) {
	l.ProjectID = fresh.ProjectID
	l.Date = fresh.Date
	l.Quantity = fresh.Quantity
	l.UnitPrice = fresh.UnitPrice
	l.VATPercent = fresh.VATPercent
	l.NetAmount = fresh.NetAmount
	l.VATAmount = fresh.VATAmount
	l.GrossAmount = fresh.GrossAmount
	l.SourceDeleted = false
}

// HasSource returns true for timesheet and expense lines.
func (l *LineItem) HasSource() bool {
	return l.Type != LineTypeWriteIn && l.SourceID != nil
}

// SourceLabel names the source as "<Type> (<date>)".
func (l *LineItem) SourceLabel() string {
	if l.Date == nil {
		return l.Type.Label()
	}
	return fmt.Sprintf("%s (%s)", l.Type.Label(), l.Date.Format(DateLayout))
}

// LineGroup is a presentation grouping of lines by project and type.
type LineGroup struct {
	ProjectID   *int64
	Type        LineType
	Lines       []LineItem
	NetAmount   decimal.Decimal
	VATAmount   decimal.Decimal
	GrossAmount decimal.Decimal
}

type groupKey struct {
	project int64
	typ     LineType
}

// GroupLines groups lines by project, then type, in first-appearance order.
func GroupLines(lines []LineItem) []LineGroup {
	var groups []LineGroup
	index := make(map[groupKey]int)
	for _, l := range lines {
		k := groupKey{typ: l.Type}
		if l.ProjectID != nil {
			k.project = *l.ProjectID
		}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, LineGroup{ProjectID: l.ProjectID, Type: l.Type})
		}
		g := &groups[i]
		g.Lines = append(g.Lines, l)
		g.NetAmount = g.NetAmount.Add(l.NetAmount)
		g.VATAmount = g.VATAmount.Add(l.VATAmount)
		g.GrossAmount = g.GrossAmount.Add(l.GrossAmount)
	}
	return groups
}
