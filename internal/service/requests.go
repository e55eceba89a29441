package service

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LineInput describes one line to put on an invoice. Timesheet and expense
// lines only need SourceID; their values are read from the source. Write-in
// lines carry their own values.
type LineInput struct {
	Type        domain.LineType `validate:"required,oneof=timesheet expense write-in"`
	SourceID    *int64          `validate:"required_unless=Type write-in,omitempty,gt=0"`
	ProjectID   *int64          `validate:"omitempty,gt=0"`
	Description string          `validate:"max=500"`
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	VATPercent  decimal.NullDecimal
}

type CreateInvoiceRequest struct {
	ClientID           int64 `validate:"required,gt=0"`
	InvoiceDate        time.Time
	DueDate            *time.Time // derived from payment terms when nil
	ServicePeriodStart *time.Time
	ServicePeriodEnd   *time.Time
	AdditionalNotes    string      `validate:"max=2000"`
	Lines              []LineInput `validate:"dive"`
}

// InvoicePatch changes a draft invoice. Nil fields are left alone; a non-nil
// Lines replaces every line. Status, InvoiceNumber, PaymentStatus and
// PaidDate are never applied.
type InvoicePatch struct {
	ClientID           *int64 `validate:"omitempty,gt=0"`
	InvoiceDate        *time.Time
	DueDate            *time.Time
	ServicePeriodStart *time.Time
	ServicePeriodEnd   *time.Time
	AdditionalNotes    *string     `validate:"omitempty,max=2000"`
	Lines              []LineInput `validate:"omitempty,dive"`

	Status        *domain.InvoiceStatus
	InvoiceNumber *string
	PaymentStatus *domain.PaymentStatus
	PaidDate      *time.Time
}

// stripProtected clears the fields only the state machine may change and
// returns their names.
func (p *InvoicePatch) stripProtected() []string {
	var stripped []string
	if p.Status != nil {
		stripped = append(stripped, "status")
		p.Status = nil
	}
	if p.InvoiceNumber != nil {
		stripped = append(stripped, "invoiceNumber")
		p.InvoiceNumber = nil
	}
	if p.PaymentStatus != nil {
		stripped = append(stripped, "paymentStatus")
		p.PaymentStatus = nil
	}
	if p.PaidDate != nil {
		stripped = append(stripped, "paidDate")
		p.PaidDate = nil
	}
	return stripped
}

type PaymentUpdate struct {
	PaymentStatus domain.PaymentStatus `validate:"required,oneof=unpaid partially-paid paid"`
	PaidDate      *time.Time           // defaults to today for paid and partially-paid
}

type LogTimeRequest struct {
	ProjectID   int64 `validate:"required,gt=0"`
	Date        time.Time
	Hours       decimal.Decimal
	Description string `validate:"max=500"`
}

type TimesheetPatch struct {
	ProjectID   *int64 `validate:"omitempty,gt=0"`
	Date        *time.Time
	Hours       *decimal.Decimal
	Description *string `validate:"omitempty,max=500"`
}

type ExpenseRequest struct {
	ProjectID   int64 `validate:"required,gt=0"`
	Date        time.Time
	Description string           `validate:"max=500"`
	Amount      decimal.Decimal  // gross
	VATAmount   *decimal.Decimal // derived from VATPercent when nil
	VATPercent  decimal.NullDecimal
}

// validateRequest runs struct-tag validation and reports the first failure
// as a ValidationError.
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Invalid("", "%v", err)
	}

	fe := verrs[0]
	return apperrors.Invalid(fieldPath(fe.Namespace()), "%s", tagMessage(fe))
}

// fieldPath turns "CreateInvoiceRequest.Lines[0].SourceID" into "lines[0].sourceId".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = lowerFirst(p)
	}
	return strings.Join(parts, ".")
}

// lowerFirst camel-cases a Go field name: SourceID -> sourceId, VATPercent -> vatPercent.
func lowerFirst(s string) string {
	s = strings.Replace(s, "ID", "Id", 1)
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n > 1 && n < len(runes) {
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_unless":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
