package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

func TestFormatError(t *testing.T) {
	conflicts := &apperrors.ConsistencyError{
		InvoiceID: 7,
		Conflicts: []domain.Conflict{
			{Message: "Timesheet (2026-01-05) is locked to invoice INV00006"},
			{Message: "Expense (2026-01-09) has been deleted"},
		},
	}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "conflicts one per line",
			err:  fmt.Errorf("confirm: %w", conflicts),
			want: "invoice #7 cannot be confirmed:\n" +
				"  - Timesheet (2026-01-05) is locked to invoice INV00006\n" +
				"  - Expense (2026-01-09) has been deleted\n" +
				"run 'timesheet invoices recalculate' to accept the current values",
		},
		{
			name: "validation with field",
			err:  apperrors.Invalid("lines[0].sourceId", "is required"),
			want: "invalid lines[0].sourceId: is required",
		},
		{
			name: "validation without field",
			err:  apperrors.Invalid("", "no lines"),
			want: "invalid input: no lines",
		},
		{
			name: "state",
			err:  &apperrors.StateError{Op: "post", Status: domain.InvoiceStatusDraft},
			want: "cannot post invoice in status draft",
		},
		{
			name: "locked source",
			err:  fmt.Errorf("timesheet 4: %w", apperrors.ErrSourceLocked),
			want: "timesheet 4: source is locked to an invoice (unconfirm the invoice first)",
		},
		{
			name: "other",
			err:  errors.New("disk full"),
			want: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatError(tt.err))
		})
	}
}

func TestParseWriteIn(t *testing.T) {
	line, err := parseWriteIn("Setup fee|1|250|20")
	require.NoError(t, err)
	assert.Equal(t, domain.LineTypeWriteIn, line.Type)
	assert.Equal(t, "Setup fee", line.Description)
	assert.Equal(t, "250", line.UnitPrice.String())
	assert.Equal(t, "20", domain.FormatPercent(line.VATPercent))
	assert.Nil(t, line.ProjectID)

	line, err = parseWriteIn("Licence|2|99.50|exempt|3")
	require.NoError(t, err)
	assert.False(t, line.VATPercent.Valid)
	require.NotNil(t, line.ProjectID)
	assert.Equal(t, int64(3), *line.ProjectID)

	for _, bad := range []string{"only|two", "x|one|2|20", "x|1|2|20|p", "a|1|2|3|4|5"} {
		_, err := parseWriteIn(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"4,5", " 6 ", "7,"}, "timesheet")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5, 6, 7}, ids)

	_, err = parseIDs([]string{"4,x"}, "timesheet")
	assert.EqualError(t, err, `invalid timesheet ID "x"`)

	_, err = parseIDs([]string{"0"}, "expense")
	assert.Error(t, err)
}

func TestParseVAT(t *testing.T) {
	for _, s := range []string{"exempt", "None", ""} {
		vat, err := parseVAT(s)
		require.NoError(t, err)
		assert.False(t, vat.Valid, s)
	}

	vat, err := parseVAT("0")
	require.NoError(t, err)
	assert.True(t, vat.Valid, "zero-rated is not exempt")

	_, err = parseVAT("twenty")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2026-01-05")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-05", d.Format(domain.DateLayout))

	today, err := parseDate("today")
	require.NoError(t, err)
	yesterday, err := parseDate("yesterday")
	require.NoError(t, err)
	assert.Equal(t, today.AddDate(0, 0, -1), yesterday)

	_, err = parseDate("05/01/2026")
	assert.Error(t, err)
}
