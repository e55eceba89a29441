package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/repository"
	"github.com/work-flower/timesheet-application-sub001/internal/service"
)

var timesheetsCmd = &cobra.Command{
	Use:     "timesheets",
	Aliases: []string{"ts"},
	Short:   "Log and manage timesheet entries",
	Long: `Timesheet entries record hours worked on a project on a given day.
Entries are priced in days at the project's day rate when saved. Entries
locked to a confirmed invoice cannot be changed.`,
}

var timesheetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List timesheet entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		filter, err := sourceFilterFromFlags(ctx, cmd)
		if err != nil {
			return err
		}

		entries, err := appInstance.TimesheetService.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list timesheets: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No timesheet entries found")
			return nil
		}

		fmt.Printf("%-5s %-10s %-20s %-6s %-6s %-10s %-12s\n", "ID", "Date", "Project", "Hours", "Days", "Amount", "Status")
		fmt.Println("--------------------------------------------------------------------------------")

		hours, amount := decimal.Zero, decimal.Zero
		for _, ts := range entries {
			fmt.Printf("%-5d %-10s %-20s %-6s %-6s %-10s %-12s\n",
				ts.ID,
				ts.Date.Format(domain.DateLayout),
				truncate(projectName(ctx, &ts.ProjectID), 20),
				ts.Hours.String(),
				ts.Days.StringFixed(2),
				domain.FormatMoney(ts.Amount),
				lockLabel(ts.InvoiceID),
			)
			hours = hours.Add(ts.Hours)
			amount = amount.Add(ts.Amount)
		}

		fmt.Println("--------------------------------------------------------------------------------")
		fmt.Printf("Total: %d entries, %s hours, %s\n", len(entries), hours.String(), domain.FormatMoney(amount))
		return nil
	},
}

var timesheetsLogCmd = &cobra.Command{
	Use:   "log [project_id] [date] [hours] [description]",
	Short: "Log hours against a project",
	Example: `  timesheet timesheets log 3 today 7.5 "API work"
  timesheet timesheets log 3 2026-01-05 8`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		date, err := parseDate(args[1])
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
		hours, err := parseDecimal(args[2], "hours")
		if err != nil {
			return err
		}

		ts, err := appInstance.TimesheetService.Log(ctx, service.LogTimeRequest{
			ProjectID:   projectID,
			Date:        date,
			Hours:       hours,
			Description: strings.Join(args[3:], " "),
		})
		if err != nil {
			return err
		}

		fmt.Printf("✓ Logged %s hours on %s (ID: %d)\n", ts.Hours, ts.Date.Format(domain.DateLayout), ts.ID)
		fmt.Printf("  %s days @ %s = %s\n", ts.Days.StringFixed(2), domain.FormatMoney(ts.EffectiveRate), domain.FormatMoney(ts.Amount))
		return nil
	},
}

var timesheetsEditCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Edit an unlocked timesheet entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "timesheet")
		if err != nil {
			return err
		}

		var patch service.TimesheetPatch
		flags := cmd.Flags()
		if flags.Changed("project") {
			s, _ := flags.GetString("project")
			projectID, err := parseID(s, "project")
			if err != nil {
				return err
			}
			patch.ProjectID = &projectID
		}
		if flags.Changed("date") {
			s, _ := flags.GetString("date")
			date, err := parseDate(s)
			if err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}
			patch.Date = &date
		}
		if flags.Changed("hours") {
			s, _ := flags.GetString("hours")
			hours, err := parseDecimal(s, "hours")
			if err != nil {
				return err
			}
			patch.Hours = &hours
		}
		if flags.Changed("description") {
			desc, _ := flags.GetString("description")
			patch.Description = &desc
		}
		reason, _ := flags.GetString("reason")

		ts, err := appInstance.TimesheetService.Update(ctx, id, patch, reason)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Timesheet %d updated: %s hours, %s\n", ts.ID, ts.Hours, domain.FormatMoney(ts.Amount))
		return nil
	},
}

var timesheetsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an unlocked timesheet entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "timesheet")
		if err != nil {
			return err
		}
		if err := appInstance.TimesheetService.Delete(context.Background(), id); err != nil {
			return err
		}
		fmt.Printf("✓ Timesheet %d deleted\n", id)
		return nil
	},
}

var timesheetsHistoryCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "Show the change history of a timesheet entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "timesheet")
		if err != nil {
			return err
		}

		history, err := appInstance.TimesheetService.History(context.Background(), id)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("No changes recorded")
			return nil
		}

		for _, h := range history {
			fmt.Printf("%s  %-12s %s -> %s", h.ChangedAt.Format("2006-01-02 15:04"), h.FieldName, h.OldValue, h.NewValue)
			if h.ChangeReason != "" {
				fmt.Printf("  (%s)", h.ChangeReason)
			}
			fmt.Println()
		}
		return nil
	},
}

// sourceFilterFromFlags reads the shared --client/--project/--from/--to/--unbilled flags.
func sourceFilterFromFlags(ctx context.Context, cmd *cobra.Command) (repository.SourceFilter, error) {
	var filter repository.SourceFilter
	flags := cmd.Flags()

	if flags.Changed("client") {
		s, _ := flags.GetString("client")
		id, err := resolveClientID(ctx, s)
		if err != nil {
			return filter, fmt.Errorf("failed to resolve client: %w", err)
		}
		filter.ClientID = &id
	}
	if flags.Changed("project") {
		s, _ := flags.GetString("project")
		id, err := parseID(s, "project")
		if err != nil {
			return filter, err
		}
		filter.ProjectID = &id
	}
	if flags.Changed("from") {
		s, _ := flags.GetString("from")
		t, err := parseDate(s)
		if err != nil {
			return filter, fmt.Errorf("invalid from date: %w", err)
		}
		filter.From = &t
	}
	if flags.Changed("to") {
		s, _ := flags.GetString("to")
		t, err := parseDate(s)
		if err != nil {
			return filter, fmt.Errorf("invalid to date: %w", err)
		}
		filter.To = &t
	}
	filter.UnbilledOnly, _ = flags.GetBool("unbilled")
	return filter, nil
}

func addSourceFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("client", "", "Filter by client ID or name")
	cmd.Flags().String("project", "", "Filter by project ID")
	cmd.Flags().String("from", "", "From date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "To date (YYYY-MM-DD)")
	cmd.Flags().Bool("unbilled", false, "Only entries not locked to an invoice")
}

func init() {
	timesheetsCmd.AddCommand(timesheetsListCmd)
	timesheetsCmd.AddCommand(timesheetsLogCmd)
	timesheetsCmd.AddCommand(timesheetsEditCmd)
	timesheetsCmd.AddCommand(timesheetsDeleteCmd)
	timesheetsCmd.AddCommand(timesheetsHistoryCmd)

	addSourceFilterFlags(timesheetsListCmd)

	timesheetsEditCmd.Flags().String("project", "", "Move to another project")
	timesheetsEditCmd.Flags().String("date", "", "New date")
	timesheetsEditCmd.Flags().String("hours", "", "New hours")
	timesheetsEditCmd.Flags().String("description", "", "New description")
	timesheetsEditCmd.Flags().String("reason", "", "Reason recorded in the change history")
}
