package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
)

func TestFieldPath(t *testing.T) {
	tests := map[string]string{
		"CreateInvoiceRequest.ClientID":            "clientId",
		"CreateInvoiceRequest.Lines[2].SourceID":   "lines[2].sourceId",
		"InvoicePatch.AdditionalNotes":             "additionalNotes",
		"PaymentUpdate.PaymentStatus":              "paymentStatus",
		"CreateInvoiceRequest.Lines[0].VATPercent": "lines[0].vatPercent",
	}
	for in, want := range tests {
		assert.Equal(t, want, fieldPath(in), in)
	}
}

func TestValidateRequest(t *testing.T) {
	err := validateRequest(PaymentUpdate{PaymentStatus: "refunded"})
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "paymentStatus", verr.Field)
	assert.Equal(t, "must be one of: unpaid, partially-paid, paid", verr.Message)

	id := int64(-3)
	err = validateRequest(LineInput{Type: "expense", SourceID: &id})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "sourceId", verr.Field)
	assert.Equal(t, "must be greater than 0", verr.Message)

	assert.NoError(t, validateRequest(LineInput{Type: "write-in", Description: "Hosting"}))
}
