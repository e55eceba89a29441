package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/work-flower/timesheet-application-sub001/internal/app"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/period"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
	"github.com/work-flower/timesheet-application-sub001/internal/service"
)

// DashboardModel shows revenue for the current reporting periods, the VAT
// due this quarter and the money still to collect or bill.
type DashboardModel struct {
	app *app.App

	data    dashboardDataMsg
	loading bool
}

type revenueRow struct {
	label   string
	revenue *service.Revenue
}

type dashboardDataMsg struct {
	asOf        time.Time
	rows        []revenueRow
	vat         *service.Revenue
	outstanding *service.Outstanding
	unbilled    *service.Unbilled
	drafts      int
	hasClients  bool
	err         error
}

// NewDashboardModel creates a new dashboard model
func NewDashboardModel(a *app.App) tea.Model {
	return &DashboardModel{app: a, loading: true}
}

func (m *DashboardModel) Init() tea.Cmd {
	return m.loadData()
}

func (m *DashboardModel) loadData() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		return loadDashboard(context.Background(), a, time.Now())
	}
}

func loadDashboard(ctx context.Context, a *app.App, now time.Time) dashboardDataMsg {
	msg := dashboardDataMsg{asOf: now}
	periods := a.ReportService.Periods(now)

	for _, p := range []struct {
		label string
		r     period.Range
	}{
		{"This month", periods.Month},
		{"VAT quarter", periods.VATQuarter},
		{"Tax year " + period.TaxYearLabel(now), periods.TaxYear},
		{"Company year", periods.CompanyYear},
	} {
		rev, err := a.ReportService.Revenue(ctx, p.r)
		if err != nil {
			msg.err = fmt.Errorf("revenue: %w", err)
			return msg
		}
		msg.rows = append(msg.rows, revenueRow{label: p.label, revenue: rev})
	}

	var err error
	if msg.vat, err = a.ReportService.VATReturn(ctx, now); err != nil {
		msg.err = fmt.Errorf("vat return: %w", err)
		return msg
	}
	if msg.outstanding, err = a.ReportService.Outstanding(ctx, now); err != nil {
		msg.err = fmt.Errorf("outstanding: %w", err)
		return msg
	}
	if msg.unbilled, err = a.ReportService.Unbilled(ctx, nil); err != nil {
		msg.err = fmt.Errorf("unbilled: %w", err)
		return msg
	}

	draft := domain.InvoiceStatusDraft
	drafts, err := a.InvoiceService.List(ctx, repository.InvoiceFilter{Status: &draft})
	if err != nil {
		msg.err = fmt.Errorf("drafts: %w", err)
		return msg
	}
	msg.drafts = len(drafts)

	clients, err := a.ClientService.ListClients(ctx, false)
	if err != nil {
		msg.err = fmt.Errorf("clients: %w", err)
		return msg
	}
	msg.hasClients = len(clients) > 0
	return msg
}

func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		m.loading = false
		m.data = msg
		return m, nil

	case RefreshDataMsg:
		m.loading = true
		return m, m.loadData()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, DefaultKeyMap.Refresh):
			m.loading = true
			return m, m.loadData()
		case key.Matches(msg, DefaultKeyMap.Select):
			return m, func() tea.Msg { return SwitchScreenMsg{Screen: ScreenInvoices} }
		}
	}
	return m, nil
}

func (m *DashboardModel) View() string {
	if m.loading {
		return "Loading dashboard..."
	}
	d := m.data
	if d.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", d.err))
	}

	if !d.hasClients {
		return subtitleStyle.Render("  No clients yet.") + "\n\n" +
			helpStyle.Render("  timesheet clients add \"Acme Ltd\" --rate 500") + "\n" +
			helpStyle.Render("  timesheet projects add \"Acme Ltd\" Platform")
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("Revenue") + subtitleStyle.Render("  confirmed and posted, by invoice date") + "\n\n")
	s.WriteString(subtitleStyle.Render(fmt.Sprintf("  %-18s %-26s %8s %14s %12s", "Period", "Range", "Invoices", "Net", "VAT")) + "\n")
	for _, row := range d.rows {
		s.WriteString(fmt.Sprintf("  %-18s %-26s %8d %14s %12s\n",
			row.label,
			row.revenue.Period.String(),
			row.revenue.Invoices,
			formatMoney(row.revenue.Net),
			formatMoney(row.revenue.VAT),
		))
	}

	vatBox := boxStyle.Render(fmt.Sprintf("VAT due this quarter\n%s\n%s from %d posted invoice(s)",
		valueStyle.Render(formatMoney(d.vat.VAT)),
		formatMoney(d.vat.Net),
		d.vat.Invoices,
	))

	outstanding := fmt.Sprintf("Outstanding\n%s\n%d invoice(s)",
		valueStyle.Render(formatMoney(d.outstanding.Total)),
		d.outstanding.Invoices,
	)
	if d.outstanding.Overdue > 0 {
		outstanding += "\n" + errorStyle.Render(fmt.Sprintf("%d overdue: %s", d.outstanding.Overdue, formatMoney(d.outstanding.OverdueTotal)))
	}
	outstandingBox := boxStyle.Render(outstanding)

	unbilledBox := boxStyle.Render(fmt.Sprintf("Unbilled\n%s\n%d timesheet(s), %d expense(s)",
		valueStyle.Render(formatMoney(d.unbilled.Total)),
		d.unbilled.Timesheets,
		d.unbilled.Expenses,
	))

	s.WriteString("\n")
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, vatBox, " ", outstandingBox, " ", unbilledBox))
	s.WriteString("\n")

	if d.drafts > 0 {
		s.WriteString("\n" + warningStyle.Render(fmt.Sprintf("  %d draft invoice(s) waiting to be confirmed", d.drafts)) + "\n")
	}
	s.WriteString("\n" + subtitleStyle.Render("  as of "+d.asOf.Format("Mon 2 Jan 2006 15:04")))
	s.WriteString("\n" + helpLine(DefaultKeyMap.Refresh, key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "invoices"))))
	return s.String()
}
