package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
	"github.com/work-flower/timesheet-application-sub001/internal/service"
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Manage invoices",
	Long: `Create draft invoices from timesheets, expenses and write-in lines, then
confirm them to lock their sources and allocate an invoice number.

  draft --confirm--> confirmed --post--> posted
  draft <-unconfirm- confirmed / posted`,
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var filter repository.InvoiceFilter
		if cmd.Flags().Changed("client") {
			s, _ := cmd.Flags().GetString("client")
			id, err := resolveClientID(ctx, s)
			if err != nil {
				return fmt.Errorf("failed to resolve client: %w", err)
			}
			filter.ClientID = &id
		}
		if cmd.Flags().Changed("status") {
			s, _ := cmd.Flags().GetString("status")
			status := domain.InvoiceStatus(s)
			if !status.Valid() {
				return fmt.Errorf("invalid status %q (draft, confirmed or posted)", s)
			}
			filter.Status = &status
		}

		invoices, err := appInstance.InvoiceService.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list invoices: %w", err)
		}
		if len(invoices) == 0 {
			fmt.Println("No invoices found")
			return nil
		}

		fmt.Printf("%-5s %-12s %-20s %-10s %-12s %-10s %-14s\n", "ID", "Number", "Client", "Date", "Total", "Status", "Payment")
		fmt.Println("--------------------------------------------------------------------------------------------")

		for _, inv := range invoices {
			fmt.Printf("%-5d %-12s %-20s %-10s %-12s %-10s %-14s\n",
				inv.ID,
				inv.Number(),
				truncate(clientName(ctx, inv.ClientID), 20),
				inv.InvoiceDate.Format(domain.DateLayout),
				domain.FormatMoney(inv.Total),
				inv.Status,
				inv.PaymentStatus,
			)
		}

		fmt.Printf("\nTotal: %d invoice(s)\n", len(invoices))
		return nil
	},
}

var invoicesCreateCmd = &cobra.Command{
	Use:   "create [client_id_or_name]",
	Short: "Create a draft invoice",
	Example: `  timesheet invoices create Acme --unbilled --from 2026-01-01 --to 2026-01-31
  timesheet invoices create 1 --timesheet 4,5,6 --expense 2
  timesheet invoices create 1 --write-in "Setup fee|1|250|20"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		clientID, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}

		req := service.CreateInvoiceRequest{ClientID: clientID}
		flags := cmd.Flags()

		dateStr, _ := flags.GetString("date")
		if req.InvoiceDate, err = parseDate(dateStr); err != nil {
			return fmt.Errorf("invalid invoice date: %w", err)
		}
		if req.DueDate, err = optionalDate(cmd, "due"); err != nil {
			return err
		}
		if req.ServicePeriodStart, err = optionalDate(cmd, "period-start"); err != nil {
			return err
		}
		if req.ServicePeriodEnd, err = optionalDate(cmd, "period-end"); err != nil {
			return err
		}
		req.AdditionalNotes, _ = flags.GetString("notes")

		if unbilled, _ := flags.GetBool("unbilled"); unbilled {
			from, err := optionalDate(cmd, "from")
			if err != nil {
				return err
			}
			to, err := optionalDate(cmd, "to")
			if err != nil {
				return err
			}
			collected, err := appInstance.InvoiceService.CollectUnbilledLines(ctx, clientID, from, to)
			if err != nil {
				return fmt.Errorf("failed to collect unbilled work: %w", err)
			}
			req.Lines = append(req.Lines, collected...)
			if req.ServicePeriodStart == nil {
				req.ServicePeriodStart = from
			}
			if req.ServicePeriodEnd == nil {
				req.ServicePeriodEnd = to
			}
		}

		lines, err := lineInputsFromFlags(cmd)
		if err != nil {
			return err
		}
		req.Lines = append(req.Lines, lines...)

		invoice, err := appInstance.InvoiceService.Create(ctx, req)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Draft invoice created (ID: %d)\n", invoice.ID)
		fmt.Printf("  %d line(s), total %s, due %s\n", len(invoice.Lines), domain.FormatMoney(invoice.Total), invoice.DueDate.Format(domain.DateLayout))
		return nil
	},
}

var invoicesUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Change a draft invoice",
	Long: `Change the header fields of a draft invoice. Passing any of --timesheet,
--expense or --write-in replaces every line on the invoice.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		var patch service.InvoicePatch
		flags := cmd.Flags()
		if flags.Changed("client") {
			s, _ := flags.GetString("client")
			clientID, err := resolveClientID(ctx, s)
			if err != nil {
				return fmt.Errorf("failed to resolve client: %w", err)
			}
			patch.ClientID = &clientID
		}
		if patch.InvoiceDate, err = optionalDate(cmd, "date"); err != nil {
			return err
		}
		if patch.DueDate, err = optionalDate(cmd, "due"); err != nil {
			return err
		}
		if patch.ServicePeriodStart, err = optionalDate(cmd, "period-start"); err != nil {
			return err
		}
		if patch.ServicePeriodEnd, err = optionalDate(cmd, "period-end"); err != nil {
			return err
		}
		if flags.Changed("notes") {
			notes, _ := flags.GetString("notes")
			patch.AdditionalNotes = &notes
		}
		if flags.Changed("timesheet") || flags.Changed("expense") || flags.Changed("write-in") {
			lines, err := lineInputsFromFlags(cmd)
			if err != nil {
				return err
			}
			patch.Lines = append([]service.LineInput{}, lines...)
		}

		invoice, err := appInstance.InvoiceService.Update(ctx, id, patch)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Invoice %d updated: %d line(s), total %s\n", invoice.ID, len(invoice.Lines), domain.FormatMoney(invoice.Total))
		return nil
	},
}

var invoicesConfirmCmd = &cobra.Command{
	Use:   "confirm [id]",
	Short: "Confirm a draft, locking its sources and allocating a number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		invoice, err := appInstance.InvoiceService.Confirm(context.Background(), id)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Invoice confirmed: %s\n", invoice.Number())
		fmt.Printf("  Total: %s, due %s\n", domain.FormatMoney(invoice.Total), invoice.DueDate.Format(domain.DateLayout))
		return nil
	},
}

var invoicesPostCmd = &cobra.Command{
	Use:   "post [id]",
	Short: "Post a confirmed invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		invoice, err := appInstance.InvoiceService.Post(context.Background(), id)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Invoice posted: %s\n", invoice.Number())
		return nil
	},
}

var invoicesUnconfirmCmd = &cobra.Command{
	Use:   "unconfirm [id]",
	Short: "Return an invoice to draft, releasing its sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		before, err := appInstance.InvoiceService.Get(context.Background(), id)
		if err != nil {
			return err
		}
		invoice, err := appInstance.InvoiceService.Unconfirm(context.Background(), id)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Invoice %d returned to draft (was %s)\n", invoice.ID, before.Number())
		return nil
	},
}

var invoicesRecalculateCmd = &cobra.Command{
	Use:   "recalculate [id]",
	Short: "Refresh a draft's lines from their timesheets and expenses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		invoice, err := appInstance.InvoiceService.Recalculate(context.Background(), id)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Invoice %d recalculated: total %s\n", invoice.ID, domain.FormatMoney(invoice.Total))
		for _, l := range invoice.Lines {
			if l.SourceDeleted {
				fmt.Printf("  ! %s: source deleted\n", l.SourceLabel())
			}
		}
		return nil
	},
}

var invoicesCheckCmd = &cobra.Command{
	Use:   "check [id]",
	Short: "List the conflicts that would block confirmation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		conflicts, err := appInstance.InvoiceService.CheckConsistency(context.Background(), id)
		if err != nil {
			return err
		}
		if len(conflicts) == 0 {
			fmt.Println("✓ No conflicts")
			return nil
		}

		fmt.Printf("%d conflict(s):\n", len(conflicts))
		for _, c := range conflicts {
			fmt.Printf("  - %s\n", c.Message)
		}
		return nil
	},
}

var invoicesPayCmd = &cobra.Command{
	Use:   "pay [id]",
	Short: "Record the payment status of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		update := service.PaymentUpdate{PaymentStatus: domain.PaymentStatus(status)}
		if update.PaidDate, err = optionalDate(cmd, "date"); err != nil {
			return err
		}

		invoice, err := appInstance.InvoiceService.UpdatePayment(context.Background(), id, update)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Invoice %s marked %s", invoice.Number(), invoice.PaymentStatus)
		if invoice.PaidDate != nil {
			fmt.Printf(" on %s", invoice.PaidDate.Format(domain.DateLayout))
		}
		fmt.Println()
		return nil
	},
}

var invoicesRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Delete a draft invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}
		if err := appInstance.InvoiceService.Remove(context.Background(), id); err != nil {
			return err
		}
		fmt.Printf("✓ Invoice %d removed\n", id)
		return nil
	},
}

var invoicesNextNumberCmd = &cobra.Command{
	Use:   "next-number",
	Short: "Show the number the next confirmed invoice will get",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := appInstance.InvoiceService.GetNextInvoiceNumber(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(number)
		return nil
	},
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show invoice details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}
		invoice, err := appInstance.InvoiceService.Get(ctx, id)
		if err != nil {
			return err
		}

		fmt.Printf("Invoice:  %s (ID: %d)\n", invoice.Number(), invoice.ID)
		fmt.Printf("Client:   %s\n", clientName(ctx, invoice.ClientID))
		fmt.Printf("Status:   %s, %s\n", invoice.Status, invoice.PaymentStatus)
		fmt.Printf("Date:     %s\n", invoice.InvoiceDate.Format(domain.DateLayout))
		fmt.Printf("Due:      %s\n", invoice.DueDate.Format(domain.DateLayout))
		if invoice.ServicePeriodStart != nil || invoice.ServicePeriodEnd != nil {
			fmt.Printf("Period:   %s to %s\n", formatDate(invoice.ServicePeriodStart), formatDate(invoice.ServicePeriodEnd))
		}
		if invoice.PaidDate != nil {
			fmt.Printf("Paid:     %s\n", formatDate(invoice.PaidDate))
		}

		for _, g := range domain.GroupLines(invoice.Lines) {
			fmt.Printf("\n%s / %s\n", projectName(ctx, g.ProjectID), g.Type.Label())
			fmt.Printf("  %-10s %-32s %8s %10s %7s %10s\n", "Date", "Description", "Qty", "Price", "VAT", "Net")
			for _, l := range g.Lines {
				marker := ""
				if l.SourceDeleted {
					marker = " (source deleted)"
				}
				fmt.Printf("  %-10s %-32s %8s %10s %7s %10s%s\n",
					formatDate(l.Date),
					truncate(l.Description, 32),
					l.Quantity.String(),
					domain.FormatMoney(l.UnitPrice),
					domain.FormatPercent(l.VATPercent),
					domain.FormatMoney(l.NetAmount),
					marker,
				)
			}
			fmt.Printf("  %-10s %-32s %8s %10s %7s %10s\n", "", "", "", "", "", domain.FormatMoney(g.NetAmount))
		}

		fmt.Println()
		fmt.Printf("Subtotal: %s\n", domain.FormatMoney(invoice.Subtotal))
		fmt.Printf("VAT:      %s\n", domain.FormatMoney(invoice.TotalVAT))
		fmt.Printf("Total:    %s\n", domain.FormatMoney(invoice.Total))
		if invoice.AdditionalNotes != "" {
			fmt.Printf("\nNotes: %s\n", invoice.AdditionalNotes)
		}

		if invoice.Status == domain.InvoiceStatusDraft {
			conflicts, err := appInstance.InvoiceService.CheckConsistency(ctx, id)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				fmt.Printf("\nConflicts:\n")
				for _, c := range conflicts {
					fmt.Printf("  - %s\n", c.Message)
				}
			}
		}
		return nil
	},
}

func optionalDate(cmd *cobra.Command, flag string) (*time.Time, error) {
	if !cmd.Flags().Changed(flag) {
		return nil, nil
	}
	s, _ := cmd.Flags().GetString(flag)
	t, err := parseDate(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return &t, nil
}

func lineInputsFromFlags(cmd *cobra.Command) ([]service.LineInput, error) {
	var lines []service.LineInput

	for _, src := range []struct {
		flag string
		typ  domain.LineType
	}{
		{"timesheet", domain.LineTypeTimesheet},
		{"expense", domain.LineTypeExpense},
	} {
		values, _ := cmd.Flags().GetStringSlice(src.flag)
		ids, err := parseIDs(values, src.flag)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			id := id
			lines = append(lines, service.LineInput{Type: src.typ, SourceID: &id})
		}
	}

	writeIns, _ := cmd.Flags().GetStringArray("write-in")
	for _, s := range writeIns {
		line, err := parseWriteIn(s)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// parseWriteIn parses "description|quantity|unit price|vat[|project id]".
func parseWriteIn(s string) (service.LineInput, error) {
	parts := strings.Split(s, "|")
	if len(parts) < 4 || len(parts) > 5 {
		return service.LineInput{}, fmt.Errorf("invalid write-in %q: expected description|quantity|price|vat[|project]", s)
	}

	qty, err := parseDecimal(parts[1], "quantity")
	if err != nil {
		return service.LineInput{}, err
	}
	price, err := parseDecimal(parts[2], "unit price")
	if err != nil {
		return service.LineInput{}, err
	}
	vat, err := parseVAT(parts[3])
	if err != nil {
		return service.LineInput{}, err
	}

	line := service.LineInput{
		Type:        domain.LineTypeWriteIn,
		Description: strings.TrimSpace(parts[0]),
		Quantity:    qty,
		UnitPrice:   price,
		VATPercent:  vat,
	}
	if len(parts) == 5 {
		projectID, err := parseID(strings.TrimSpace(parts[4]), "project")
		if err != nil {
			return service.LineInput{}, err
		}
		line.ProjectID = &projectID
	}
	return line, nil
}

func addLineFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("timesheet", nil, "Timesheet IDs to bill (repeat or comma-separate)")
	cmd.Flags().StringSlice("expense", nil, "Expense IDs to bill (repeat or comma-separate)")
	cmd.Flags().StringArray("write-in", nil, `Free-form line "description|quantity|price|vat[|project]"`)
}

func addInvoiceHeaderFlags(cmd *cobra.Command) {
	cmd.Flags().String("due", "", "Due date (defaults from payment terms)")
	cmd.Flags().String("period-start", "", "Service period start")
	cmd.Flags().String("period-end", "", "Service period end")
	cmd.Flags().String("notes", "", "Notes printed on the invoice")
}

func init() {
	invoicesCmd.AddCommand(invoicesListCmd)
	invoicesCmd.AddCommand(invoicesCreateCmd)
	invoicesCmd.AddCommand(invoicesUpdateCmd)
	invoicesCmd.AddCommand(invoicesConfirmCmd)
	invoicesCmd.AddCommand(invoicesPostCmd)
	invoicesCmd.AddCommand(invoicesUnconfirmCmd)
	invoicesCmd.AddCommand(invoicesRecalculateCmd)
	invoicesCmd.AddCommand(invoicesCheckCmd)
	invoicesCmd.AddCommand(invoicesPayCmd)
	invoicesCmd.AddCommand(invoicesRemoveCmd)
	invoicesCmd.AddCommand(invoicesNextNumberCmd)
	invoicesCmd.AddCommand(invoicesShowCmd)

	invoicesListCmd.Flags().String("client", "", "Filter by client ID or name")
	invoicesListCmd.Flags().String("status", "", "Filter by status (draft, confirmed, posted)")

	invoicesCreateCmd.Flags().String("date", "today", "Invoice date")
	invoicesCreateCmd.Flags().Bool("unbilled", false, "Add every unbilled timesheet and expense of the client")
	invoicesCreateCmd.Flags().String("from", "", "With --unbilled: first day to include")
	invoicesCreateCmd.Flags().String("to", "", "With --unbilled: last day to include")
	addInvoiceHeaderFlags(invoicesCreateCmd)
	addLineFlags(invoicesCreateCmd)

	invoicesUpdateCmd.Flags().String("client", "", "Reassign to another client")
	invoicesUpdateCmd.Flags().String("date", "", "Invoice date")
	addInvoiceHeaderFlags(invoicesUpdateCmd)
	addLineFlags(invoicesUpdateCmd)

	invoicesPayCmd.Flags().String("status", string(domain.PaymentStatusPaid), "unpaid, partially-paid or paid")
	invoicesPayCmd.Flags().String("date", "", "Payment date (defaults to today)")
}
