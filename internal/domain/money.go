package domain

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)

	// DriftTolerance is the largest difference between a frozen line value
	// and its live recomputation that is not reported as drift.
	DriftTolerance = decimal.RequireFromString("0.01")
)

// Round2 rounds to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// VATOn returns the VAT due on a net amount. A null percent means VAT-exempt.
func VATOn(net decimal.Decimal, percent decimal.NullDecimal) decimal.Decimal {
	if !percent.Valid {
		return decimal.Zero
	}
	return Round2(net.Mul(percent.Decimal).Div(hundred))
}

// Percent wraps a VAT rate as a non-exempt percentage.
func Percent(p decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(p)
}

// Exempt is the null VAT percentage.
var Exempt = decimal.NullDecimal{}

// Drifted reports whether two amounts differ by more than DriftTolerance.
func Drifted(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().GreaterThan(DriftTolerance)
}

// PercentDrifted compares nullable percentages; exempt vs. non-exempt always drifts.
func PercentDrifted(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return true
	}
	if !a.Valid {
		return false
	}
	return Drifted(a.Decimal, b.Decimal)
}

// FormatMoney renders an amount with exactly two decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatPercent renders a VAT percentage, or "exempt".
func FormatPercent(p decimal.NullDecimal) string {
	if !p.Valid {
		return "exempt"
	}
	return p.Decimal.String()
}
