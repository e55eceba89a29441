package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
	"github.com/work-flower/timesheet-application-sub001/internal/service"
)

var expensesCmd = &cobra.Command{
	Use:   "expenses",
	Short: "Record and manage project expenses",
	Long: `Expenses are recorded gross, as on the receipt. The VAT included in the
amount is derived from the VAT percent unless given with --vat-amount.`,
}

var expensesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List expenses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		filter, err := sourceFilterFromFlags(ctx, cmd)
		if err != nil {
			return err
		}

		expenses, err := appInstance.ExpenseService.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list expenses: %w", err)
		}
		if len(expenses) == 0 {
			fmt.Println("No expenses found")
			return nil
		}

		fmt.Printf("%-5s %-10s %-20s %-24s %-10s %-8s %-12s\n", "ID", "Date", "Project", "Description", "Gross", "VAT", "Status")
		fmt.Println("------------------------------------------------------------------------------------------")

		gross, vat := decimal.Zero, decimal.Zero
		for _, e := range expenses {
			fmt.Printf("%-5d %-10s %-20s %-24s %-10s %-8s %-12s\n",
				e.ID,
				e.Date.Format(domain.DateLayout),
				truncate(projectName(ctx, &e.ProjectID), 20),
				truncate(e.Description, 24),
				domain.FormatMoney(e.Amount),
				domain.FormatMoney(e.VATAmount),
				lockLabel(e.InvoiceID),
			)
			gross = gross.Add(e.Amount)
			vat = vat.Add(e.VATAmount)
		}

		fmt.Println("------------------------------------------------------------------------------------------")
		fmt.Printf("Total: %d expenses, %s gross (%s VAT)\n", len(expenses), domain.FormatMoney(gross), domain.FormatMoney(vat))
		return nil
	},
}

var expensesAddCmd = &cobra.Command{
	Use:   "add [project_id] [date] [amount] [description]",
	Short: "Record an expense",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		req, err := expenseRequestFromArgs(args)
		if err != nil {
			return err
		}
		if err := applyExpenseVATFlags(cmd, &req); err != nil {
			return err
		}

		e, err := appInstance.ExpenseService.Create(ctx, req)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Expense recorded: %s (ID: %d)\n", e.Description, e.ID)
		fmt.Printf("  Gross %s, VAT %s, Net %s\n", domain.FormatMoney(e.Amount), domain.FormatMoney(e.VATAmount), domain.FormatMoney(e.NetAmount()))
		return nil
	},
}

var expensesEditCmd = &cobra.Command{
	Use:   "edit [id] [project_id] [date] [amount] [description]",
	Short: "Replace an unlocked expense",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "expense")
		if err != nil {
			return err
		}
		req, err := expenseRequestFromArgs(args[1:])
		if err != nil {
			return err
		}
		if err := applyExpenseVATFlags(cmd, &req); err != nil {
			return err
		}

		e, err := appInstance.ExpenseService.Update(ctx, id, req)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Expense %d updated: %s gross\n", e.ID, domain.FormatMoney(e.Amount))
		return nil
	},
}

var expensesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an unlocked expense",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "expense")
		if err != nil {
			return err
		}
		if err := appInstance.ExpenseService.Delete(context.Background(), id); err != nil {
			return err
		}
		fmt.Printf("✓ Expense %d deleted\n", id)
		return nil
	},
}

func expenseRequestFromArgs(args []string) (service.ExpenseRequest, error) {
	var req service.ExpenseRequest

	projectID, err := parseID(args[0], "project")
	if err != nil {
		return req, err
	}
	date, err := parseDate(args[1])
	if err != nil {
		return req, fmt.Errorf("invalid date: %w", err)
	}
	amount, err := parseDecimal(args[2], "amount")
	if err != nil {
		return req, err
	}

	req.ProjectID = projectID
	req.Date = date
	req.Amount = amount
	req.Description = args[3]
	return req, nil
}

func applyExpenseVATFlags(cmd *cobra.Command, req *service.ExpenseRequest) error {
	s, _ := cmd.Flags().GetString("vat")
	vat, err := parseVAT(s)
	if err != nil {
		return err
	}
	req.VATPercent = vat

	if cmd.Flags().Changed("vat-amount") {
		s, _ := cmd.Flags().GetString("vat-amount")
		amount, err := parseDecimal(s, "VAT amount")
		if err != nil {
			return err
		}
		req.VATAmount = &amount
	}
	return nil
}

func addExpenseVATFlags(cmd *cobra.Command) {
	cmd.Flags().String("vat", "20", "VAT percent included in the amount, or 'exempt'")
	cmd.Flags().String("vat-amount", "", "VAT amount from the receipt (overrides the derived amount)")
}

func init() {
	expensesCmd.AddCommand(expensesListCmd)
	expensesCmd.AddCommand(expensesAddCmd)
	expensesCmd.AddCommand(expensesEditCmd)
	expensesCmd.AddCommand(expensesDeleteCmd)

	addSourceFilterFlags(expensesListCmd)
	addExpenseVATFlags(expensesAddCmd)
	addExpenseVATFlags(expensesEditCmd)
}
