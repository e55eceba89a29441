package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for source dates.
const DateLayout = "2006-01-02"

type Timesheet struct {
	ID            int64
	ProjectID     int64
	Date          time.Time
	Hours         decimal.Decimal
	Days          decimal.Decimal // hours / client working hours per day
	EffectiveRate decimal.Decimal // day rate resolved when the entry was saved
	Amount        decimal.Decimal // round2(days * effective rate)
	Description   string
	InvoiceID     *int64 // nil = unbilled, non-nil = locked
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTimesheet creates an unpriced timesheet entry; call Price before saving.
func NewTimesheet(projectID int64, date time.Time, hours decimal.Decimal, description string) *Timesheet {
	now := time.Now()
	return &Timesheet{
		ProjectID:   projectID,
		Date:        date,
		Hours:       hours,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Price derives days and amount from the working day length and rate.
func (t *Timesheet) Price(hoursPerDay, rate decimal.Decimal) {
	if hoursPerDay.IsPositive() {
		t.Days = t.Hours.DivRound(hoursPerDay, 4)
	} else {
		t.Days = decimal.Zero
	}
	t.EffectiveRate = rate
	t.Amount = Round2(t.Days.Mul(rate))
}

// IsLocked returns true if the entry is attached to an invoice
func (t *Timesheet) IsLocked() bool {
	return t.InvoiceID != nil
}

// Validate returns an error if the entry is invalid
func (t *Timesheet) Validate() error {
	if t.ProjectID <= 0 {
		return errors.New("project ID is required")
	}
	if t.Date.IsZero() {
		return errors.New("date is required")
	}
	if !t.Hours.IsPositive() {
		return errors.New("hours must be positive")
	}
	if t.Hours.GreaterThan(decimal.NewFromInt(24)) {
		return errors.New("hours cannot exceed 24")
	}
	if t.EffectiveRate.IsNegative() {
		return errors.New("rate cannot be negative")
	}
	return nil
}
