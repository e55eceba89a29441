package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Project struct {
	ID         int64
	ClientID   int64
	Name       string
	Rate       decimal.NullDecimal // overrides the client day rate
	VATPercent decimal.NullDecimal // overrides the client VAT percent
	VATExempt  bool                // forces VAT-exempt regardless of the client
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewProject creates a project that inherits the client's rate and VAT.
func NewProject(clientID int64, name string) *Project {
	now := time.Now()
	return &Project{
		ClientID:  clientID,
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p *Project) Validate() error {
	if p.ClientID <= 0 {
		return errors.New("client ID is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("project name is required")
	}
	if p.Rate.Valid && p.Rate.Decimal.IsNegative() {
		return errors.New("rate cannot be negative")
	}
	if p.VATPercent.Valid && p.VATPercent.Decimal.IsNegative() {
		return errors.New("VAT percent cannot be negative")
	}
	return nil
}

// BillingTerms is the effective rate and VAT for work billed against a project.
type BillingTerms struct {
	ClientID      int64
	ProjectID     int64
	EffectiveRate decimal.Decimal
	VATPercent    decimal.NullDecimal
	HoursPerDay   decimal.Decimal
}

// ResolveTerms applies project overrides on top of client defaults.
func ResolveTerms(c *Client, p *Project) BillingTerms {
	terms := BillingTerms{
		ClientID:      c.ID,
		ProjectID:     p.ID,
		EffectiveRate: c.DefaultRate,
		VATPercent:    c.DefaultVATPercent,
		HoursPerDay:   c.WorkingHoursPerDay,
	}
	if p.Rate.Valid {
		terms.EffectiveRate = p.Rate.Decimal
	}
	switch {
	case p.VATExempt:
		terms.VATPercent = Exempt
	case p.VATPercent.Valid:
		terms.VATPercent = p.VATPercent
	}
	return terms
}
