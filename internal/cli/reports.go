package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/period"
	"github.com/work-flower/timesheet-application-sub001/internal/service"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Revenue, VAT and outstanding payment reports",
	Long: `Reports count confirmed and posted invoices by invoice date. The VAT
return counts posted invoices only. Periods follow the company year end and
VAT quarter stagger from the config file.`,
}

var reportsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Current month, VAT quarter, tax year and company year at a glance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		at, err := reportDate(cmd)
		if err != nil {
			return err
		}
		periods := appInstance.ReportService.Periods(at)

		fmt.Printf("%-22s %-26s %8s %12s %12s\n", "Period", "Range", "Invoices", "Net", "VAT")
		fmt.Println("----------------------------------------------------------------------------------")
		for _, row := range []struct {
			label string
			r     period.Range
		}{
			{"Month", periods.Month},
			{"VAT quarter", periods.VATQuarter},
			{"Tax year " + period.TaxYearLabel(at), periods.TaxYear},
			{"Company year", periods.CompanyYear},
		} {
			rev, err := appInstance.ReportService.Revenue(ctx, row.r)
			if err != nil {
				return err
			}
			printRevenueRow(row.label, rev)
		}

		outstanding, err := appInstance.ReportService.Outstanding(ctx, at)
		if err != nil {
			return err
		}
		unbilled, err := appInstance.ReportService.Unbilled(ctx, nil)
		if err != nil {
			return err
		}

		fmt.Println()
		printOutstanding(outstanding)
		printUnbilled(unbilled)
		return nil
	},
}

var reportsRevenueCmd = &cobra.Command{
	Use:   "revenue",
	Short: "Revenue over a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := reportRange(cmd)
		if err != nil {
			return err
		}

		rev, err := appInstance.ReportService.Revenue(context.Background(), r)
		if err != nil {
			return err
		}

		fmt.Printf("Revenue %s\n", r)
		fmt.Printf("  Invoices: %d\n", rev.Invoices)
		fmt.Printf("  Net:      %s\n", domain.FormatMoney(rev.Net))
		fmt.Printf("  VAT:      %s\n", domain.FormatMoney(rev.VAT))
		fmt.Printf("  Gross:    %s\n", domain.FormatMoney(rev.Gross))
		return nil
	},
}

var reportsMonthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Revenue month by month",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := reportRange(cmd)
		if err != nil {
			return err
		}

		months, err := appInstance.ReportService.MonthlyRevenue(context.Background(), r)
		if err != nil {
			return err
		}

		fmt.Printf("%-22s %-26s %8s %12s %12s\n", "Month", "Range", "Invoices", "Net", "VAT")
		fmt.Println("----------------------------------------------------------------------------------")
		for _, rev := range months {
			printRevenueRow(rev.Period.Start.Format("Jan 2006"), rev)
		}
		return nil
	},
}

var reportsVATCmd = &cobra.Command{
	Use:   "vat",
	Short: "VAT due for the quarter containing --date",
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := reportDate(cmd)
		if err != nil {
			return err
		}

		rev, err := appInstance.ReportService.VATReturn(context.Background(), at)
		if err != nil {
			return err
		}

		fmt.Printf("VAT quarter %s\n", rev.Period)
		fmt.Printf("  Posted invoices: %d\n", rev.Invoices)
		fmt.Printf("  Net sales:       %s\n", domain.FormatMoney(rev.Net))
		fmt.Printf("  VAT due:         %s\n", domain.FormatMoney(rev.VAT))
		return nil
	},
}

var reportsOutstandingCmd = &cobra.Command{
	Use:   "outstanding",
	Short: "Posted invoices not yet paid",
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := reportDate(cmd)
		if err != nil {
			return err
		}
		outstanding, err := appInstance.ReportService.Outstanding(context.Background(), at)
		if err != nil {
			return err
		}
		printOutstanding(outstanding)
		return nil
	},
}

var reportsUnbilledCmd = &cobra.Command{
	Use:   "unbilled [client_id_or_name]",
	Short: "Timesheets and expenses not yet on a confirmed invoice",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var clientID *int64
		if len(args) == 1 {
			id, err := resolveClientID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to resolve client: %w", err)
			}
			clientID = &id
		}

		unbilled, err := appInstance.ReportService.Unbilled(ctx, clientID)
		if err != nil {
			return err
		}
		printUnbilled(unbilled)
		return nil
	},
}

func printRevenueRow(label string, rev *service.Revenue) {
	fmt.Printf("%-22s %-26s %8d %12s %12s\n",
		label,
		rev.Period.String(),
		rev.Invoices,
		domain.FormatMoney(rev.Net),
		domain.FormatMoney(rev.VAT),
	)
}

func printOutstanding(o *service.Outstanding) {
	fmt.Printf("Outstanding: %d invoice(s), %s", o.Invoices, domain.FormatMoney(o.Total))
	if o.Overdue > 0 {
		fmt.Printf(" (%d overdue, %s)", o.Overdue, domain.FormatMoney(o.OverdueTotal))
	}
	fmt.Println()
}

func printUnbilled(u *service.Unbilled) {
	fmt.Printf("Unbilled:    %d timesheet(s) %s, %d expense(s) %s, total %s\n",
		u.Timesheets, domain.FormatMoney(u.TimesheetValue),
		u.Expenses, domain.FormatMoney(u.ExpenseValue),
		domain.FormatMoney(u.Total),
	)
}

func reportDate(cmd *cobra.Command) (time.Time, error) {
	s, _ := cmd.Flags().GetString("date")
	at, err := parseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date: %w", err)
	}
	return at, nil
}

// reportRange reads --from/--to, defaulting to the company year containing today.
func reportRange(cmd *cobra.Command) (period.Range, error) {
	r := appInstance.ReportService.Periods(time.Now()).CompanyYear
	if cmd.Flags().Changed("from") {
		s, _ := cmd.Flags().GetString("from")
		from, err := parseDate(s)
		if err != nil {
			return r, fmt.Errorf("invalid --from: %w", err)
		}
		r.Start = from
	}
	if cmd.Flags().Changed("to") {
		s, _ := cmd.Flags().GetString("to")
		to, err := parseDate(s)
		if err != nil {
			return r, fmt.Errorf("invalid --to: %w", err)
		}
		r.End = to
	}
	if r.End.Before(r.Start) {
		return r, fmt.Errorf("--to must not be before --from")
	}
	return r, nil
}

func init() {
	reportsCmd.AddCommand(reportsSummaryCmd)
	reportsCmd.AddCommand(reportsRevenueCmd)
	reportsCmd.AddCommand(reportsMonthlyCmd)
	reportsCmd.AddCommand(reportsVATCmd)
	reportsCmd.AddCommand(reportsOutstandingCmd)
	reportsCmd.AddCommand(reportsUnbilledCmd)

	for _, c := range []*cobra.Command{reportsSummaryCmd, reportsVATCmd, reportsOutstandingCmd} {
		c.Flags().String("date", "today", "Report as of this day")
	}
	for _, c := range []*cobra.Command{reportsRevenueCmd, reportsMonthlyCmd} {
		c.Flags().String("from", "", "First day (defaults to company year start)")
		c.Flags().String("to", "", "Last day (defaults to company year end)")
	}
}
