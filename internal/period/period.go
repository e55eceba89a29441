// Package period provides the calendar ranges used by reporting: UK tax
// years, company financial years, VAT quarters and months. All ranges are
// whole days in UTC with an inclusive End.
package period

import (
	"fmt"
	"time"
)

const layout = "2006-01-02"

// Range is an inclusive span of calendar days.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls on a day inside the range.
func (r Range) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Until returns the exclusive upper bound (the day after End).
func (r Range) Until() time.Time {
	return r.End.AddDate(0, 0, 1)
}

func (r Range) String() string {
	return fmt.Sprintf("%s to %s", r.Start.Format(layout), r.End.Format(layout))
}

// Months splits the range into calendar months, clipped to the range.
func (r Range) Months() []Range {
	var out []Range
	for m := MonthOf(r.Start); !m.Start.After(r.End); m = MonthOf(m.Until()) {
		part := m
		if part.Start.Before(r.Start) {
			part.Start = r.Start
		}
		if part.End.After(r.End) {
			part.End = r.End
		}
		out = append(out, part)
	}
	return out
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return date(y, m, d)
}

// DaysBetween counts calendar days from a to b, negative when b is earlier.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lastDay(y int, m time.Month) int {
	return date(y, m+1, 0).Day()
}

// Month returns the calendar month.
func Month(year int, m time.Month) Range {
	return Range{Start: date(year, m, 1), End: date(year, m, lastDay(year, m))}
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Range {
	return Month(t.Year(), t.Month())
}

// TaxYear returns the UK tax year (6 April to 5 April) containing t.
func TaxYear(t time.Time) Range {
	d := Day(t)
	startYear := d.Year()
	if d.Before(date(startYear, time.April, 6)) {
		startYear--
	}
	return Range{Start: date(startYear, time.April, 6), End: date(startYear+1, time.April, 5)}
}

// TaxYearLabel renders the tax year containing t as "2025/26".
func TaxYearLabel(t time.Time) string {
	start := TaxYear(t).Start.Year()
	return fmt.Sprintf("%d/%02d", start, (start+1)%100)
}

// MonthDay is a recurring calendar day, such as a company year end.
type MonthDay struct {
	Month time.Month
	Day   int
}

// ParseMonthDay parses "MM-DD".
func ParseMonthDay(s string) (MonthDay, error) {
	t, err := time.Parse("01-02", s)
	if err != nil {
		return MonthDay{}, fmt.Errorf("invalid month-day %q (want MM-DD): %w", s, err)
	}
	return MonthDay{Month: t.Month(), Day: t.Day()}, nil
}

func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

// in returns the day in year y, clamped to the month's length (29 Feb -> 28 Feb).
func (md MonthDay) in(y int) time.Time {
	d := md.Day
	if last := lastDay(y, md.Month); d > last {
		d = last
	}
	return date(y, md.Month, d)
}

// CompanyYear returns the financial year ending on yearEnd that contains t.
func CompanyYear(t time.Time, yearEnd MonthDay) Range {
	d := Day(t)
	end := yearEnd.in(d.Year())
	if d.After(end) {
		end = yearEnd.in(d.Year() + 1)
	}
	start := yearEnd.in(end.Year()-1).AddDate(0, 0, 1)
	return Range{Start: start, End: end}
}

// VATQuarter returns the VAT quarter containing t for a stagger whose
// quarters end in firstEnd and every third month after it.
func VATQuarter(t time.Time, firstEnd time.Month) Range {
	d := Day(t)
	offset := ((int(firstEnd)-int(d.Month()))%3 + 3) % 3
	endMonth := date(d.Year(), d.Month()+time.Month(offset), 1)
	startMonth := endMonth.AddDate(0, -2, 0)
	return Range{
		Start: startMonth,
		End:   date(endMonth.Year(), endMonth.Month(), lastDay(endMonth.Year(), endMonth.Month())),
	}
}
