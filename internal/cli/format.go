package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

// FormatError renders an error for the terminal. Conflicts are listed one
// per line so the user can fix them before confirming again.
func FormatError(err error) string {
	var cerr *apperrors.ConsistencyError
	var verr *apperrors.ValidationError
	var serr *apperrors.StateError

	switch {
	case errors.As(err, &cerr):
		var b strings.Builder
		fmt.Fprintf(&b, "invoice #%d cannot be confirmed:\n", cerr.InvoiceID)
		for _, c := range cerr.Conflicts {
			fmt.Fprintf(&b, "  - %s\n", c.Message)
		}
		b.WriteString("run 'timesheet invoices recalculate' to accept the current values")
		return b.String()
	case errors.As(err, &verr):
		if verr.Field == "" {
			return "invalid input: " + verr.Message
		}
		return fmt.Sprintf("invalid %s: %s", verr.Field, verr.Message)
	case errors.As(err, &serr):
		return serr.Error()
	case errors.Is(err, apperrors.ErrSourceLocked):
		return err.Error() + " (unconfirm the invoice first)"
	default:
		return err.Error()
	}
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID %q", what, s)
	}
	return id, nil
}

func parseIDs(values []string, what string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			id, err := parseID(part, what)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// parseDate parses YYYY-MM-DD, "today" or "yesterday"
func parseDate(s string) (time.Time, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	switch s {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected format: YYYY-MM-DD, 'today', or 'yesterday'")
	}
	return t, nil
}

func parseDecimal(s, what string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q", what, s)
	}
	return d, nil
}

// parseVAT parses a VAT percentage; "exempt" or "none" means VAT-exempt.
func parseVAT(s string) (decimal.NullDecimal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exempt", "none", "":
		return domain.Exempt, nil
	}
	d, err := parseDecimal(s, "VAT percent")
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return domain.Percent(d), nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(domain.DateLayout)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// resolveClientID resolves a client by ID or name
func resolveClientID(ctx context.Context, idOrName string) (int64, error) {
	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		client, err := appInstance.ClientService.GetClient(ctx, id)
		if err != nil {
			return 0, err
		}
		return client.ID, nil
	}

	client, err := appInstance.ClientService.GetClientByName(ctx, idOrName)
	if err != nil {
		return 0, err
	}
	return client.ID, nil
}

func clientName(ctx context.Context, id int64) string {
	c, err := appInstance.ClientService.GetClient(ctx, id)
	if err != nil {
		return fmt.Sprintf("Client #%d", id)
	}
	return c.Name
}

func projectName(ctx context.Context, id *int64) string {
	if id == nil {
		return "General"
	}
	p, err := appInstance.ClientService.GetProject(ctx, *id)
	if err != nil {
		return fmt.Sprintf("Project #%d", *id)
	}
	return p.Name
}

func lockLabel(invoiceID *int64) string {
	if invoiceID == nil {
		return "Unbilled"
	}
	return fmt.Sprintf("Invoice #%d", *invoiceID)
}
