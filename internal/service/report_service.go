package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/period"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
)

// Revenue sums invoiced amounts over a period
type Revenue struct {
	Period   period.Range
	Invoices int
	Net      decimal.Decimal
	VAT      decimal.Decimal
	Gross    decimal.Decimal
}

func (r *Revenue) add(inv *domain.Invoice) {
	r.Invoices++
	r.Net = r.Net.Add(inv.Subtotal)
	r.VAT = r.VAT.Add(inv.TotalVAT)
	r.Gross = r.Gross.Add(inv.Total)
}

// Outstanding covers posted invoices not yet fully paid
type Outstanding struct {
	Invoices     int
	Total        decimal.Decimal
	Overdue      int
	OverdueTotal decimal.Decimal
}

// Unbilled is the net value of sources not locked to any invoice
type Unbilled struct {
	Timesheets     int
	TimesheetValue decimal.Decimal
	Expenses       int
	ExpenseValue   decimal.Decimal
	Total          decimal.Decimal
}

// Periods are the reporting periods containing a given day
type Periods struct {
	Month       period.Range
	VATQuarter  period.Range
	TaxYear     period.Range
	CompanyYear period.Range
}

// ReportService provides read-only financial summaries
type ReportService interface {
	Periods(at time.Time) Periods

	// Revenue counts confirmed and posted invoices by invoice date.
	Revenue(ctx context.Context, r period.Range) (*Revenue, error)

	// VATReturn counts posted invoices in the VAT quarter containing at.
	VATReturn(ctx context.Context, at time.Time) (*Revenue, error)

	// MonthlyRevenue splits Revenue into calendar months.
	MonthlyRevenue(ctx context.Context, r period.Range) ([]*Revenue, error)

	Outstanding(ctx context.Context, asOf time.Time) (*Outstanding, error)
	Unbilled(ctx context.Context, clientID *int64) (*Unbilled, error)
}

type reportService struct {
	invoiceRepo   repository.InvoiceRepository
	timesheetRepo repository.TimesheetRepository
	expenseRepo   repository.ExpenseRepository
	yearEnd       period.MonthDay
	vatQuarterEnd time.Month
}

// NewReportService creates a new report service. yearEnd is the company
// year end; vatQuarterEnd is the month the first VAT quarter of the year ends.
func NewReportService(
	invoiceRepo repository.InvoiceRepository,
	timesheetRepo repository.TimesheetRepository,
	expenseRepo repository.ExpenseRepository,
	yearEnd period.MonthDay,
	vatQuarterEnd time.Month,
) ReportService {
	return &reportService{
		invoiceRepo:   invoiceRepo,
		timesheetRepo: timesheetRepo,
		expenseRepo:   expenseRepo,
		yearEnd:       yearEnd,
		vatQuarterEnd: vatQuarterEnd,
	}
}

func (s *reportService) Periods(at time.Time) Periods {
	return Periods{
		Month:       period.MonthOf(at),
		VATQuarter:  period.VATQuarter(at, s.vatQuarterEnd),
		TaxYear:     period.TaxYear(at),
		CompanyYear: period.CompanyYear(at, s.yearEnd),
	}
}

func (s *reportService) Revenue(ctx context.Context, r period.Range) (*Revenue, error) {
	invoices, err := s.issued(ctx, r)
	if err != nil {
		return nil, err
	}

	rev := &Revenue{Period: r}
	for _, inv := range invoices {
		rev.add(inv)
	}
	return rev, nil
}

func (s *reportService) VATReturn(ctx context.Context, at time.Time) (*Revenue, error) {
	quarter := period.VATQuarter(at, s.vatQuarterEnd)
	posted := domain.InvoiceStatusPosted

	invoices, err := s.invoiceRepo.List(ctx, repository.InvoiceFilter{
		Status: &posted,
		From:   &quarter.Start,
		To:     &quarter.End,
	})
	if err != nil {
		return nil, err
	}

	rev := &Revenue{Period: quarter}
	for _, inv := range invoices {
		rev.add(inv)
	}
	return rev, nil
}

func (s *reportService) MonthlyRevenue(ctx context.Context, r period.Range) ([]*Revenue, error) {
	invoices, err := s.issued(ctx, r)
	if err != nil {
		return nil, err
	}

	months := r.Months()
	out := make([]*Revenue, len(months))
	for i, m := range months {
		out[i] = &Revenue{Period: m}
	}

	for _, inv := range invoices {
		for _, rev := range out {
			if rev.Period.Contains(inv.InvoiceDate) {
				rev.add(inv)
				break
			}
		}
	}
	return out, nil
}

func (s *reportService) Outstanding(ctx context.Context, asOf time.Time) (*Outstanding, error) {
	posted := domain.InvoiceStatusPosted
	invoices, err := s.invoiceRepo.List(ctx, repository.InvoiceFilter{Status: &posted})
	if err != nil {
		return nil, err
	}

	today := period.Day(asOf)
	out := &Outstanding{}
	for _, inv := range invoices {
		if inv.PaymentStatus == domain.PaymentStatusPaid {
			continue
		}
		out.Invoices++
		out.Total = out.Total.Add(inv.Total)
		if inv.DueDate.Before(today) {
			out.Overdue++
			out.OverdueTotal = out.OverdueTotal.Add(inv.Total)
		}
	}
	return out, nil
}

func (s *reportService) Unbilled(ctx context.Context, clientID *int64) (*Unbilled, error) {
	filter := repository.SourceFilter{ClientID: clientID, UnbilledOnly: true}

	timesheets, err := s.timesheetRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	expenses, err := s.expenseRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	u := &Unbilled{Timesheets: len(timesheets), Expenses: len(expenses)}
	for _, ts := range timesheets {
		u.TimesheetValue = u.TimesheetValue.Add(ts.Amount)
	}
	for _, e := range expenses {
		u.ExpenseValue = u.ExpenseValue.Add(e.NetAmount())
	}
	u.Total = u.TimesheetValue.Add(u.ExpenseValue)
	return u, nil
}

// issued lists confirmed and posted invoices dated within r
func (s *reportService) issued(ctx context.Context, r period.Range) ([]*domain.Invoice, error) {
	invoices, err := s.invoiceRepo.List(ctx, repository.InvoiceFilter{From: &r.Start, To: &r.End})
	if err != nil {
		return nil, err
	}

	issued := make([]*domain.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.HoldsLocks() {
			issued = append(issued, inv)
		}
	}
	return issued, nil
}
