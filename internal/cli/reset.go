package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/work-flower/timesheet-application-sub001/internal/crypto"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset data in the database",
	Long: `Reset data in the database. The invoice number counter is left alone so
numbers already sent to clients are never reused.

Examples:
  timesheet reset invoices   # Delete all invoices and unlock their sources
  timesheet reset all        # Wipe clients, projects, timesheets, expenses and invoices`,
}

var resetInvoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Delete all invoices and unlock their timesheets and expenses",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmPrompt("This will delete ALL invoices and unlock every timesheet and expense. Continue?") {
			fmt.Println("Cancelled.")
			return nil
		}

		if err := wipeTables(context.Background(), "invoice_lines", "invoices"); err != nil {
			return err
		}

		fmt.Println("All invoices have been deleted and their sources unlocked.")
		return nil
	},
}

var resetAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Delete ALL data: clients, projects, timesheets, expenses, invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmPrompt("This will delete ALL data (clients, timesheets, expenses, invoices, everything). Continue?") {
			fmt.Println("Cancelled.")
			return nil
		}

		// Order matters due to foreign keys
		err := wipeTables(context.Background(),
			"invoice_lines",
			"invoices",
			"timesheet_history",
			"timesheets",
			"expenses",
			"projects",
			"clients",
		)
		if err != nil {
			return err
		}

		fmt.Println("All data has been deleted.")

		if forget, _ := cmd.Flags().GetBool("forget-key"); forget {
			if err := crypto.NewKeyring().DeleteKey(); err != nil {
				return fmt.Errorf("failed to remove encryption key: %w", err)
			}
			fmt.Println("Encryption key removed from the keyring.")
		}
		return nil
	},
}

// wipeTables unlocks every source, then empties the tables in order, in one
// transaction.
func wipeTables(ctx context.Context, tables ...string) error {
	tx, err := appInstance.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, source := range []string{"timesheets", "expenses"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET invoice_id = NULL WHERE invoice_id IS NOT NULL", source)); err != nil {
			return fmt.Errorf("failed to unlock %s: %w", source, err)
		}
	}

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

func confirmPrompt(message string) bool {
	fmt.Printf("%s [y/N] ", message)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == "yes"
}

func init() {
	resetCmd.AddCommand(resetInvoicesCmd)
	resetCmd.AddCommand(resetAllCmd)

	resetAllCmd.Flags().Bool("forget-key", false, "Also remove the database key from the OS keyring")
}
