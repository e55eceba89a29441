package domain

import (
	"errors"
	"time"
)

// Settings is the single settings row.
type Settings struct {
	InvoiceNumberSeed      int64 // last number handed out; next is seed+1
	InvoicePrefix          string
	DefaultPaymentTermDays int
	UpdatedAt              time.Time
}

// NextInvoiceNumber previews the number the next confirm would allocate.
func (s *Settings) NextInvoiceNumber() string {
	return FormatInvoiceNumber(s.InvoicePrefix, s.InvoiceNumberSeed+1)
}

// PaymentTermDays picks the client override, else the default.
func (s *Settings) PaymentTermDays(c *Client) int {
	if c != nil && c.PaymentTermDays != nil {
		return *c.PaymentTermDays
	}
	return s.DefaultPaymentTermDays
}

func (s *Settings) Validate() error {
	if s.InvoicePrefix == "" {
		return errors.New("invoice prefix is required")
	}
	if s.InvoiceNumberSeed < 0 {
		return errors.New("invoice number seed cannot be negative")
	}
	if s.DefaultPaymentTermDays < 0 {
		return errors.New("payment terms cannot be negative")
	}
	return nil
}
