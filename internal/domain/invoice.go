package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusConfirmed InvoiceStatus = "confirmed"
	InvoiceStatusPosted    InvoiceStatus = "posted"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusConfirmed, InvoiceStatusPosted:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially-paid"
	PaymentStatusPaid          PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPartiallyPaid, PaymentStatusPaid:
		return true
	}
	return false
}

// DraftLabel stands in for the number of an invoice that has none.
const DraftLabel = "Draft"

type Invoice struct {
	ID                 int64
	ClientID           int64
	Status             InvoiceStatus
	InvoiceNumber      *string // nil until confirmed
	Sequence           *int64  // numeric part of InvoiceNumber
	InvoiceDate        time.Time
	DueDate            time.Time
	ServicePeriodStart *time.Time
	ServicePeriodEnd   *time.Time
	AdditionalNotes    string
	Lines              []LineItem
	Subtotal           decimal.Decimal
	TotalVAT           decimal.Decimal
	Total              decimal.Decimal
	PaymentStatus      PaymentStatus
	PaidDate           *time.Time
	EverConfirmed      bool // set on first confirm, never cleared
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewInvoice creates a new draft invoice
func NewInvoice(clientID int64, invoiceDate, dueDate time.Time) *Invoice {
	now := time.Now()
	return &Invoice{
		ClientID:      clientID,
		Status:        InvoiceStatusDraft,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		PaymentStatus: PaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CanEdit returns true if the invoice can be modified
func (i *Invoice) CanEdit() bool {
	return i.Status == InvoiceStatusDraft
}

// HoldsLocks returns true for states in which sources are locked to the invoice.
func (i *Invoice) HoldsLocks() bool {
	return i.Status == InvoiceStatusConfirmed || i.Status == InvoiceStatusPosted
}

// Number returns the invoice number, or "Draft".
func (i *Invoice) Number() string {
	if i.InvoiceNumber == nil {
		return DraftLabel
	}
	return *i.InvoiceNumber
}

// CalculateTotals sums line net and VAT amounts; gross is never split back.
func (i *Invoice) CalculateTotals() {
	subtotal, vat := decimal.Zero, decimal.Zero
	for _, l := range i.Lines {
		subtotal = subtotal.Add(l.NetAmount)
		vat = vat.Add(l.VATAmount)
	}
	i.Subtotal = Round2(subtotal)
	i.TotalVAT = Round2(vat)
	i.Total = Round2(i.Subtotal.Add(i.TotalVAT))
	i.UpdatedAt = time.Now()
}

// SourceIDs returns the distinct source IDs of lines of the given type, in line order.
func (i *Invoice) SourceIDs(t LineType) []int64 {
	var ids []int64
	seen := make(map[int64]bool)
	for _, l := range i.Lines {
		if l.Type != t || !l.HasSource() || seen[*l.SourceID] {
			continue
		}
		seen[*l.SourceID] = true
		ids = append(ids, *l.SourceID)
	}
	return ids
}

// HasProject returns true if any line bills the project.
func (i *Invoice) HasProject(projectID int64) bool {
	for _, l := range i.Lines {
		if l.ProjectID != nil && *l.ProjectID == projectID {
			return true
		}
	}
	return false
}

// Validate returns an error if the invoice is invalid
func (i *Invoice) Validate() error {
	if i.ClientID <= 0 {
		return errors.New("client ID is required")
	}
	if !i.Status.Valid() {
		return fmt.Errorf("unknown status %q", i.Status)
	}
	if i.InvoiceDate.IsZero() {
		return errors.New("invoice date is required")
	}
	if i.DueDate.Before(i.InvoiceDate) {
		return errors.New("due date must not be before invoice date")
	}
	if i.ServicePeriodStart != nil && i.ServicePeriodEnd != nil && i.ServicePeriodEnd.Before(*i.ServicePeriodStart) {
		return errors.New("service period end must be after period start")
	}
	return nil
}

// FormatInvoiceNumber renders a sequence number as PREFIX#####.
func FormatInvoiceNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%05d", prefix, seq)
}
