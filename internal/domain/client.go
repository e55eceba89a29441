package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultWorkingHoursPerDay is used when a client does not set its own day length.
var DefaultWorkingHoursPerDay = decimal.NewFromInt(8)

type Client struct {
	ID                 int64
	Name               string
	Email              string
	Currency           string
	DefaultRate        decimal.Decimal     // day rate
	DefaultVATPercent  decimal.NullDecimal // null = VAT-exempt
	WorkingHoursPerDay decimal.Decimal
	PaymentTermDays    *int // nil = settings default
	Notes              string
	IsArchived         bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewClient creates a new client with required fields
func NewClient(name string, dayRate decimal.Decimal) *Client {
	now := time.Now()
	return &Client{
		Name:               strings.TrimSpace(name),
		Currency:           "GBP",
		DefaultRate:        dayRate,
		WorkingHoursPerDay: DefaultWorkingHoursPerDay,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Validate returns an error if the client is invalid
func (c *Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("client name is required")
	}
	if c.DefaultRate.IsNegative() {
		return errors.New("day rate cannot be negative")
	}
	if c.DefaultVATPercent.Valid && c.DefaultVATPercent.Decimal.IsNegative() {
		return errors.New("VAT percent cannot be negative")
	}
	if !c.WorkingHoursPerDay.IsPositive() {
		return errors.New("working hours per day must be positive")
	}
	if c.PaymentTermDays != nil && *c.PaymentTermDays < 0 {
		return errors.New("payment terms cannot be negative")
	}
	if len(c.Currency) != 3 {
		return errors.New("currency must be a 3-letter code")
	}
	return nil
}
