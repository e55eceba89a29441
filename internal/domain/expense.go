package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Expense struct {
	ID          int64
	ProjectID   int64
	Date        time.Time
	Description string
	Amount      decimal.Decimal     // gross, as on the receipt
	VATAmount   decimal.Decimal     // VAT included in Amount
	VATPercent  decimal.NullDecimal // null = VAT-exempt
	InvoiceID   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewExpense(projectID int64, date time.Time, description string, amount decimal.Decimal) *Expense {
	now := time.Now()
	return &Expense{
		ProjectID:   projectID,
		Date:        date,
		Description: description,
		Amount:      amount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NetAmount is the gross amount less its included VAT.
func (e *Expense) NetAmount() decimal.Decimal {
	return Round2(e.Amount.Sub(e.VATAmount))
}

func (e *Expense) IsLocked() bool {
	return e.InvoiceID != nil
}

func (e *Expense) Validate() error {
	if e.ProjectID <= 0 {
		return errors.New("project ID is required")
	}
	if e.Date.IsZero() {
		return errors.New("date is required")
	}
	if e.Amount.IsNegative() {
		return errors.New("amount cannot be negative")
	}
	if e.VATAmount.IsNegative() || e.VATAmount.GreaterThan(e.Amount) {
		return errors.New("VAT amount must be between zero and the amount")
	}
	if !e.VATPercent.Valid && !e.VATAmount.IsZero() {
		return errors.New("VAT-exempt expense cannot carry a VAT amount")
	}
	return nil
}
