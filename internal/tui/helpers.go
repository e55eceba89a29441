package tui

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

// formatMoney formats money as "£X,XXX.XX" with comma separators
func formatMoney(amount decimal.Decimal) string {
	negative := amount.IsNegative()
	s := amount.Abs().StringFixed(2)

	// Split at decimal point
	dotPos := len(s) - 3
	intPart := s[:dotPos]
	decPart := s[dotPos:]

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	prefix := "£"
	if negative {
		prefix = "-£"
	}
	return prefix + b.String() + decPart
}

// truncateStr truncates a string to the specified length with ellipsis
func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func statusBadge(status domain.InvoiceStatus) string {
	switch status {
	case domain.InvoiceStatusConfirmed:
		return confirmedStyle.Render("confirmed")
	case domain.InvoiceStatusPosted:
		return postedStyle.Render("posted")
	default:
		return draftStyle.Render("draft")
	}
}

func paymentBadge(status domain.PaymentStatus) string {
	switch status {
	case domain.PaymentStatusPaid:
		return successStyle.Render("paid")
	case domain.PaymentStatusPartiallyPaid:
		return warningStyle.Render("part-paid")
	default:
		return subtitleStyle.Render("unpaid")
	}
}
