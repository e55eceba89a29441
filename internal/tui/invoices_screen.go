package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/work-flower/timesheet-application-sub001/internal/app"
	"github.com/work-flower/timesheet-application-sub001/internal/apperrors"
	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
	"github.com/work-flower/timesheet-application-sub001/internal/service"
)

type invoiceViewMode int

const (
	invoiceViewList          invoiceViewMode = iota
	invoiceViewDetail                        // Viewing a single invoice
	invoiceViewNewPickClient                 // Step 1: pick client
	invoiceViewNewPreview                    // Step 2: preview unbilled work
)

// InvoicesModel lists invoices and drives them through
// draft, confirmed and posted.
type InvoicesModel struct {
	app       *app.App
	mode      invoiceViewMode
	invoices  []*domain.Invoice
	clients   map[int64]string
	cursor    int
	loading   bool
	err       error
	statusMsg string

	// Detail
	selected  *domain.Invoice
	projects  map[int64]string
	conflicts []domain.Conflict

	// New draft from unbilled work
	newClients []*domain.Client
	newCursor  int
	newClient  *domain.Client
	newPreview []previewLine
}

type previewLine struct {
	date        time.Time
	kind        domain.LineType
	description string
	amount      string
}

type invoicesDataMsg struct {
	invoices []*domain.Invoice
	clients  map[int64]string
	err      error
}

type invoiceDetailMsg struct {
	invoice   *domain.Invoice
	client    string
	projects  map[int64]string
	conflicts []domain.Conflict
	err       error
}

// invoiceActionMsg reports the outcome of a lifecycle action
type invoiceActionMsg struct {
	action  string
	invoice *domain.Invoice
	err     error
}

type newClientsMsg struct {
	clients []*domain.Client
	err     error
}

type newPreviewMsg struct {
	lines []previewLine
	err   error
}

// NewInvoicesModel creates a new invoices screen model
func NewInvoicesModel(a *app.App) tea.Model {
	return &InvoicesModel{
		app:     a,
		mode:    invoiceViewList,
		clients: make(map[int64]string),
		loading: true,
	}
}

func (m *InvoicesModel) Init() tea.Cmd {
	return m.loadInvoices()
}

func (m *InvoicesModel) loadInvoices() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		ctx := context.Background()
		invoices, err := a.InvoiceService.List(ctx, repository.InvoiceFilter{})
		if err != nil {
			return invoicesDataMsg{err: err}
		}

		clients := make(map[int64]string)
		for _, inv := range invoices {
			if _, ok := clients[inv.ClientID]; ok {
				continue
			}
			clients[inv.ClientID] = fmt.Sprintf("Client #%d", inv.ClientID)
			if c, err := a.ClientService.GetClient(ctx, inv.ClientID); err == nil {
				clients[inv.ClientID] = c.Name
			}
		}
		return invoicesDataMsg{invoices: invoices, clients: clients}
	}
}

func (m *InvoicesModel) loadDetail(id int64) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		ctx := context.Background()

		invoice, err := a.InvoiceService.Get(ctx, id)
		if err != nil {
			return invoiceDetailMsg{err: err}
		}

		client := fmt.Sprintf("Client #%d", invoice.ClientID)
		if c, err := a.ClientService.GetClient(ctx, invoice.ClientID); err == nil {
			client = c.Name
		}

		projects := make(map[int64]string)
		for _, l := range invoice.Lines {
			if l.ProjectID == nil {
				continue
			}
			if _, ok := projects[*l.ProjectID]; ok {
				continue
			}
			projects[*l.ProjectID] = fmt.Sprintf("Project #%d", *l.ProjectID)
			if p, err := a.ClientService.GetProject(ctx, *l.ProjectID); err == nil {
				projects[*l.ProjectID] = p.Name
			}
		}

		var conflicts []domain.Conflict
		if invoice.Status == domain.InvoiceStatusDraft {
			if conflicts, err = a.InvoiceService.CheckConsistency(ctx, id); err != nil {
				return invoiceDetailMsg{err: err}
			}
		}
		return invoiceDetailMsg{invoice: invoice, client: client, projects: projects, conflicts: conflicts}
	}
}

// runAction applies a lifecycle action to the selected invoice
func (m *InvoicesModel) runAction(action string, fn func(ctx context.Context, id int64) (*domain.Invoice, error)) tea.Cmd {
	id := m.selected.ID
	return func() tea.Msg {
		invoice, err := fn(context.Background(), id)
		return invoiceActionMsg{action: action, invoice: invoice, err: err}
	}
}

func (m *InvoicesModel) markPaid(ctx context.Context, id int64) (*domain.Invoice, error) {
	return m.app.InvoiceService.UpdatePayment(ctx, id, service.PaymentUpdate{PaymentStatus: domain.PaymentStatusPaid})
}

func (m *InvoicesModel) removeDraft(ctx context.Context, id int64) (*domain.Invoice, error) {
	return nil, m.app.InvoiceService.Remove(ctx, id)
}

// loadNewClients loads active clients that have unbilled work
func (m *InvoicesModel) loadNewClients() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		ctx := context.Background()

		all, err := a.ClientService.ListClients(ctx, false)
		if err != nil {
			return newClientsMsg{err: err}
		}

		var withUnbilled []*domain.Client
		for _, c := range all {
			id := c.ID
			u, err := a.ReportService.Unbilled(ctx, &id)
			if err != nil {
				return newClientsMsg{err: err}
			}
			if u.Timesheets+u.Expenses > 0 {
				withUnbilled = append(withUnbilled, c)
			}
		}
		return newClientsMsg{clients: withUnbilled}
	}
}

// loadNewPreview lists the unbilled work of the chosen client
func (m *InvoicesModel) loadNewPreview() tea.Cmd {
	a := m.app
	clientID := m.newClient.ID
	return func() tea.Msg {
		ctx := context.Background()
		filter := repository.SourceFilter{ClientID: &clientID, UnbilledOnly: true}

		timesheets, err := a.TimesheetService.List(ctx, filter)
		if err != nil {
			return newPreviewMsg{err: err}
		}
		expenses, err := a.ExpenseService.List(ctx, filter)
		if err != nil {
			return newPreviewMsg{err: err}
		}

		lines := make([]previewLine, 0, len(timesheets)+len(expenses))
		for _, ts := range timesheets {
			lines = append(lines, previewLine{
				date:        ts.Date,
				kind:        domain.LineTypeTimesheet,
				description: fmt.Sprintf("%sh %s", ts.Hours, ts.Description),
				amount:      formatMoney(ts.Amount),
			})
		}
		for _, e := range expenses {
			lines = append(lines, previewLine{
				date:        e.Date,
				kind:        domain.LineTypeExpense,
				description: e.Description,
				amount:      formatMoney(e.NetAmount()),
			})
		}
		return newPreviewMsg{lines: lines}
	}
}

// createDraft bills every unbilled source of the chosen client on a new draft
func (m *InvoicesModel) createDraft() tea.Cmd {
	a := m.app
	clientID := m.newClient.ID
	return func() tea.Msg {
		ctx := context.Background()

		lines, err := a.InvoiceService.CollectUnbilledLines(ctx, clientID, nil, nil)
		if err != nil {
			return invoiceActionMsg{action: "create", err: err}
		}
		invoice, err := a.InvoiceService.Create(ctx, service.CreateInvoiceRequest{
			ClientID:    clientID,
			InvoiceDate: time.Now(),
			Lines:       lines,
		})
		return invoiceActionMsg{action: "create", invoice: invoice, err: err}
	}
}

func (m *InvoicesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RefreshDataMsg:
		m.loading = true
		m.mode = invoiceViewList
		return m, m.loadInvoices()

	case invoicesDataMsg:
		m.loading = false
		m.err = msg.err
		m.invoices = msg.invoices
		if msg.clients != nil {
			m.clients = msg.clients
		}
		if m.cursor >= len(m.invoices) {
			m.cursor = max(len(m.invoices)-1, 0)
		}
		return m, nil

	case invoiceDetailMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.mode = invoiceViewList
			return m, nil
		}
		m.selected = msg.invoice
		m.clients[msg.invoice.ClientID] = msg.client
		m.projects = msg.projects
		m.conflicts = msg.conflicts
		m.mode = invoiceViewDetail
		return m, nil

	case invoiceActionMsg:
		return m.handleAction(msg)

	case newClientsMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if len(msg.clients) == 0 {
			m.err = errors.New("no clients with unbilled work")
			return m, nil
		}
		m.newClients = msg.clients
		m.newCursor = 0
		m.mode = invoiceViewNewPickClient
		return m, nil

	case newPreviewMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.mode = invoiceViewList
			return m, nil
		}
		m.newPreview = msg.lines
		m.mode = invoiceViewNewPreview
		return m, nil

	case tea.KeyMsg:
		if m.loading {
			return m, nil
		}
		switch m.mode {
		case invoiceViewList:
			return m.updateList(msg)
		case invoiceViewDetail:
			return m.updateDetail(msg)
		case invoiceViewNewPickClient:
			return m.updateNewPickClient(msg)
		case invoiceViewNewPreview:
			return m.updateNewPreview(msg)
		}
	}
	return m, nil
}

func (m *InvoicesModel) handleAction(msg invoiceActionMsg) (tea.Model, tea.Cmd) {
	m.loading = false

	var cerr *apperrors.ConsistencyError
	if errors.As(msg.err, &cerr) {
		m.conflicts = cerr.Conflicts
		m.err = fmt.Errorf("cannot confirm: %d conflict(s); press r to recalculate", len(cerr.Conflicts))
		return m, nil
	}
	if msg.err != nil {
		m.err = msg.err
		return m, nil
	}

	switch msg.action {
	case "remove":
		m.statusMsg = fmt.Sprintf("Draft %d deleted", m.selected.ID)
		m.selected = nil
		m.mode = invoiceViewList
		m.loading = true
		return m, m.loadInvoices()
	case "create":
		m.statusMsg = fmt.Sprintf("Draft %d created with %d line(s)", msg.invoice.ID, len(msg.invoice.Lines))
		m.newClients, m.newClient, m.newPreview = nil, nil, nil
	default:
		m.statusMsg = fmt.Sprintf("Invoice %s: %s", msg.invoice.Number(), msg.action)
	}

	m.loading = true
	return m, m.loadDetail(msg.invoice.ID)
}

func (m *InvoicesModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch {
	case key.Matches(msg, DefaultKeyMap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, DefaultKeyMap.Down):
		if m.cursor < len(m.invoices)-1 {
			m.cursor++
		}
	case key.Matches(msg, DefaultKeyMap.Select):
		if len(m.invoices) > 0 {
			m.loading = true
			m.statusMsg = ""
			return m, m.loadDetail(m.invoices[m.cursor].ID)
		}
	case key.Matches(msg, DefaultKeyMap.New):
		m.loading = true
		m.statusMsg = ""
		return m, m.loadNewClients()
	case key.Matches(msg, DefaultKeyMap.Refresh):
		m.loading = true
		return m, m.loadInvoices()
	}
	return m, nil
}

func (m *InvoicesModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	svc := m.app.InvoiceService
	inv := m.selected

	switch {
	case key.Matches(msg, DefaultKeyMap.Back):
		m.mode = invoiceViewList
		m.selected = nil
		m.conflicts = nil
		m.statusMsg = ""
		m.loading = true
		return m, m.loadInvoices()
	case key.Matches(msg, DefaultKeyMap.Confirm) && inv.Status == domain.InvoiceStatusDraft:
		m.loading = true
		return m, m.runAction("confirmed", svc.Confirm)
	case key.Matches(msg, DefaultKeyMap.Post) && inv.Status == domain.InvoiceStatusConfirmed:
		m.loading = true
		return m, m.runAction("posted", svc.Post)
	case key.Matches(msg, DefaultKeyMap.Unconfirm) && inv.HoldsLocks():
		m.loading = true
		return m, m.runAction("returned to draft", svc.Unconfirm)
	case key.Matches(msg, DefaultKeyMap.Recalculate) && inv.Status == domain.InvoiceStatusDraft:
		m.loading = true
		return m, m.runAction("recalculated", svc.Recalculate)
	case key.Matches(msg, DefaultKeyMap.Check):
		m.loading = true
		m.statusMsg = ""
		return m, m.loadDetail(inv.ID)
	case key.Matches(msg, DefaultKeyMap.Paid) && inv.Status == domain.InvoiceStatusPosted:
		m.loading = true
		return m, m.runAction("marked paid", m.markPaid)
	case key.Matches(msg, DefaultKeyMap.Delete) && inv.Status == domain.InvoiceStatusDraft:
		m.loading = true
		return m, m.runAction("remove", m.removeDraft)
	}
	return m, nil
}

func (m *InvoicesModel) updateNewPickClient(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, DefaultKeyMap.Back):
		m.mode = invoiceViewList
		m.newClients = nil
	case key.Matches(msg, DefaultKeyMap.Up):
		if m.newCursor > 0 {
			m.newCursor--
		}
	case key.Matches(msg, DefaultKeyMap.Down):
		if m.newCursor < len(m.newClients)-1 {
			m.newCursor++
		}
	case key.Matches(msg, DefaultKeyMap.Select):
		if len(m.newClients) > 0 {
			m.newClient = m.newClients[m.newCursor]
			m.loading = true
			return m, m.loadNewPreview()
		}
	}
	return m, nil
}

func (m *InvoicesModel) updateNewPreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, DefaultKeyMap.Back):
		m.mode = invoiceViewNewPickClient
		m.newPreview = nil
	case key.Matches(msg, DefaultKeyMap.Select):
		m.loading = true
		return m, m.createDraft()
	}
	return m, nil
}

func (m *InvoicesModel) View() string {
	if m.loading {
		return "Loading..."
	}

	var body string
	switch m.mode {
	case invoiceViewDetail:
		body = m.viewDetail()
	case invoiceViewNewPickClient:
		body = m.viewNewPickClient()
	case invoiceViewNewPreview:
		body = m.viewNewPreview()
	default:
		body = m.viewList()
	}

	var s string
	if m.statusMsg != "" {
		s += successStyle.Render("  "+m.statusMsg) + "\n\n"
	}
	if m.err != nil {
		s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
	}
	return s + body
}

func (m *InvoicesModel) viewList() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Invoices") + "\n\n")

	if len(m.invoices) == 0 {
		s.WriteString(subtitleStyle.Render("  No invoices yet. Press 'n' to draft one from unbilled work."))
		return s.String()
	}

	s.WriteString(subtitleStyle.Render(fmt.Sprintf(
		"  %-10s  %-20s  %-10s  %12s  %-10s  %s",
		"Number", "Client", "Date", "Total", "Status", "Payment",
	)) + "\n")

	for i, inv := range m.invoices {
		line := fmt.Sprintf("  %-10s  %-20s  %-10s  %12s  ",
			inv.Number(),
			truncateStr(m.clients[inv.ClientID], 20),
			inv.InvoiceDate.Format(domain.DateLayout),
			formatMoney(inv.Total),
		)
		if i == m.cursor {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("%s%-10s  %s", line, inv.Status, inv.PaymentStatus)) + "\n")
		} else {
			s.WriteString(fmt.Sprintf("%s%-10s  %s", line, statusBadge(inv.Status), paymentBadge(inv.PaymentStatus)) + "\n")
		}
	}

	s.WriteString("\n" + helpLine(DefaultKeyMap.Up, DefaultKeyMap.Down, DefaultKeyMap.Select, DefaultKeyMap.New, DefaultKeyMap.Refresh))
	return s.String()
}

func (m *InvoicesModel) viewDetail() string {
	inv := m.selected
	if inv == nil {
		return "No invoice selected"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(fmt.Sprintf("Invoice %s", inv.Number())) + "  " + statusBadge(inv.Status) + "  " + paymentBadge(inv.PaymentStatus) + "\n\n")
	s.WriteString(fmt.Sprintf("  Client:   %s\n", m.clients[inv.ClientID]))
	s.WriteString(fmt.Sprintf("  Date:     %s   Due: %s\n", inv.InvoiceDate.Format(domain.DateLayout), inv.DueDate.Format(domain.DateLayout)))
	if inv.ServicePeriodStart != nil && inv.ServicePeriodEnd != nil {
		s.WriteString(fmt.Sprintf("  Period:   %s to %s\n", inv.ServicePeriodStart.Format(domain.DateLayout), inv.ServicePeriodEnd.Format(domain.DateLayout)))
	}

	if len(inv.Lines) == 0 {
		s.WriteString("\n" + subtitleStyle.Render("  No lines") + "\n")
	}
	for _, g := range domain.GroupLines(inv.Lines) {
		project := "General"
		if g.ProjectID != nil {
			project = m.projects[*g.ProjectID]
		}
		s.WriteString("\n" + subtitleStyle.Render(fmt.Sprintf("  %s / %s", project, g.Type.Label())) + "\n")
		for _, l := range g.Lines {
			date := ""
			if l.Date != nil {
				date = l.Date.Format("02 Jan")
			}
			line := fmt.Sprintf("    %-6s  %-34s  %7s  %6s  %12s",
				date,
				truncateStr(l.Description, 34),
				l.Quantity.StringFixed(2),
				domain.FormatPercent(l.VATPercent),
				formatMoney(l.NetAmount),
			)
			if l.SourceDeleted {
				line = warningStyle.Render(line + "  (source deleted)")
			}
			s.WriteString(line + "\n")
		}
		s.WriteString(fmt.Sprintf("    %-6s  %-34s  %7s  %6s  %12s\n", "", "", "", "", formatMoney(g.NetAmount)))
	}

	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("  Subtotal:  %12s\n", formatMoney(inv.Subtotal)))
	s.WriteString(fmt.Sprintf("  VAT:       %12s\n", formatMoney(inv.TotalVAT)))
	s.WriteString(titleStyle.Render(fmt.Sprintf("  Total:     %12s", formatMoney(inv.Total))) + "\n")

	if len(m.conflicts) > 0 {
		s.WriteString("\n" + errorStyle.Render(fmt.Sprintf("  %d conflict(s)", len(m.conflicts))) + "\n")
		for _, c := range m.conflicts {
			s.WriteString(errorStyle.Render("    - "+c.Message) + "\n")
		}
	} else if inv.Status == domain.InvoiceStatusDraft {
		s.WriteString("\n" + successStyle.Render("  Ready to confirm") + "\n")
	}

	keys := []key.Binding{DefaultKeyMap.Back}
	switch inv.Status {
	case domain.InvoiceStatusDraft:
		keys = append(keys, DefaultKeyMap.Confirm, DefaultKeyMap.Recalculate, DefaultKeyMap.Check, DefaultKeyMap.Delete)
	case domain.InvoiceStatusConfirmed:
		keys = append(keys, DefaultKeyMap.Post, DefaultKeyMap.Unconfirm)
	case domain.InvoiceStatusPosted:
		keys = append(keys, DefaultKeyMap.Paid, DefaultKeyMap.Unconfirm)
	}
	s.WriteString("\n" + helpLine(keys...))
	return s.String()
}

func (m *InvoicesModel) viewNewPickClient() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("New draft: pick a client") + "\n\n")
	for i, c := range m.newClients {
		line := fmt.Sprintf("  %-30s", truncateStr(c.Name, 30))
		if i == m.newCursor {
			line = selectedStyle.Render(line)
		}
		s.WriteString(line + "\n")
	}
	s.WriteString("\n" + helpLine(DefaultKeyMap.Up, DefaultKeyMap.Down, DefaultKeyMap.Select, DefaultKeyMap.Back))
	return s.String()
}

func (m *InvoicesModel) viewNewPreview() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("New draft for "+m.newClient.Name) + "\n\n")
	s.WriteString(subtitleStyle.Render(fmt.Sprintf("  %-10s  %-9s  %-34s  %12s", "Date", "Type", "Description", "Net")) + "\n")
	for _, l := range m.newPreview {
		s.WriteString(fmt.Sprintf("  %-10s  %-9s  %-34s  %12s\n",
			l.date.Format(domain.DateLayout),
			l.kind.Label(),
			truncateStr(l.description, 34),
			l.amount,
		))
	}
	s.WriteString("\n" + subtitleStyle.Render("  Sources stay unlocked until the draft is confirmed.") + "\n")
	s.WriteString("\n" + helpLine(DefaultKeyMap.Select, DefaultKeyMap.Back))
	return s.String()
}
