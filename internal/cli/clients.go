package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manage clients",
	Long:  `List, add, edit, archive and delete clients.`,
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		includeArchived, _ := cmd.Flags().GetBool("archived")

		clients, err := appInstance.ClientService.ListClients(ctx, includeArchived)
		if err != nil {
			return fmt.Errorf("failed to list clients: %w", err)
		}

		if len(clients) == 0 {
			fmt.Println("No clients found")
			return nil
		}

		fmt.Printf("%-5s %-30s %-12s %-8s %-8s %-10s\n", "ID", "Name", "Day Rate", "VAT", "Terms", "Status")
		fmt.Println("--------------------------------------------------------------------------------")

		for _, client := range clients {
			status := "Active"
			if client.IsArchived {
				status = "Archived"
			}
			terms := "default"
			if client.PaymentTermDays != nil {
				terms = fmt.Sprintf("%dd", *client.PaymentTermDays)
			}
			fmt.Printf("%-5d %-30s %-12s %-8s %-8s %-10s\n",
				client.ID,
				truncate(client.Name, 30),
				client.Currency+" "+domain.FormatMoney(client.DefaultRate),
				domain.FormatPercent(client.DefaultVATPercent),
				terms,
				status,
			)
		}

		fmt.Printf("\nTotal: %d client(s)\n", len(clients))
		return nil
	},
}

var clientsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a new client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rateStr, _ := cmd.Flags().GetString("rate")
		rate, err := parseDecimal(rateStr, "day rate")
		if err != nil {
			return err
		}

		client := domain.NewClient(args[0], rate)
		if err := applyClientFlags(cmd, client, true); err != nil {
			return err
		}

		if err := appInstance.ClientService.CreateClient(ctx, client); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		fmt.Printf("✓ Client created: %s (ID: %d)\n", client.Name, client.ID)
		fmt.Printf("  Day Rate: %s %s, VAT: %s\n", client.Currency, domain.FormatMoney(client.DefaultRate), domain.FormatPercent(client.DefaultVATPercent))
		return nil
	},
}

var clientsEditCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Edit an existing client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "client")
		if err != nil {
			return err
		}

		client, err := appInstance.ClientService.GetClient(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get client: %w", err)
		}

		if cmd.Flags().Changed("name") {
			client.Name, _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("rate") {
			rateStr, _ := cmd.Flags().GetString("rate")
			if client.DefaultRate, err = parseDecimal(rateStr, "day rate"); err != nil {
				return err
			}
		}
		if err := applyClientFlags(cmd, client, false); err != nil {
			return err
		}

		if err := appInstance.ClientService.UpdateClient(ctx, client); err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}

		fmt.Printf("✓ Client updated: %s\n", client.Name)
		return nil
	},
}

var clientsArchiveCmd = &cobra.Command{
	Use:   "archive [id]",
	Short: "Archive a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "client")
		if err != nil {
			return err
		}

		client, err := appInstance.ClientService.GetClient(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get client: %w", err)
		}

		if err := appInstance.ClientService.ArchiveClient(ctx, id); err != nil {
			return fmt.Errorf("failed to archive client: %w", err)
		}

		fmt.Printf("✓ Client archived: %s\n", client.Name)
		return nil
	},
}

var clientsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a client with its projects, timesheets, expenses and invoices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "client")
		if err != nil {
			return err
		}

		client, err := appInstance.ClientService.GetClient(ctx, id)
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("yes")
		if !force && !confirmPrompt(fmt.Sprintf("Delete %s and ALL of its invoices, timesheets and expenses?", client.Name)) {
			fmt.Println("Cancelled.")
			return nil
		}

		if err := appInstance.ClientService.DeleteClient(ctx, id); err != nil {
			return fmt.Errorf("failed to delete client: %w", err)
		}

		fmt.Printf("✓ Client deleted: %s\n", client.Name)
		return nil
	},
}

// applyClientFlags copies the optional client flags; on edit (all=false)
// only the flags the user set.
func applyClientFlags(cmd *cobra.Command, client *domain.Client, all bool) error {
	flags := cmd.Flags()
	set := func(name string) bool { return all || flags.Changed(name) }
	if set("email") {
		client.Email, _ = flags.GetString("email")
	}
	if set("currency") {
		client.Currency, _ = flags.GetString("currency")
	}
	if set("notes") {
		client.Notes, _ = flags.GetString("notes")
	}
	if set("vat") {
		s, _ := flags.GetString("vat")
		vat, err := parseVAT(s)
		if err != nil {
			return err
		}
		client.DefaultVATPercent = vat
	}
	if set("hours-per-day") {
		s, _ := flags.GetString("hours-per-day")
		hours, err := parseDecimal(s, "hours per day")
		if err != nil {
			return err
		}
		client.WorkingHoursPerDay = hours
	}
	if set("terms") {
		days, _ := flags.GetInt("terms")
		if days < 0 {
			client.PaymentTermDays = nil
		} else {
			client.PaymentTermDays = &days
		}
	}
	return nil
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("email", "", "Client email")
	cmd.Flags().String("currency", "GBP", "3-letter currency code")
	cmd.Flags().String("notes", "", "Notes about the client")
	cmd.Flags().String("vat", "20", "Default VAT percent, or 'exempt'")
	cmd.Flags().String("hours-per-day", "8", "Working hours in a billable day")
	cmd.Flags().Int("terms", -1, "Payment terms in days (-1 uses the settings default)")
}

func init() {
	clientsCmd.AddCommand(clientsListCmd)
	clientsCmd.AddCommand(clientsAddCmd)
	clientsCmd.AddCommand(clientsEditCmd)
	clientsCmd.AddCommand(clientsArchiveCmd)
	clientsCmd.AddCommand(clientsDeleteCmd)

	clientsListCmd.Flags().Bool("archived", false, "Include archived clients")

	clientsAddCmd.Flags().String("rate", "", "Day rate (required)")
	clientsAddCmd.MarkFlagRequired("rate")
	addClientFlags(clientsAddCmd)

	clientsEditCmd.Flags().String("name", "", "New name")
	clientsEditCmd.Flags().String("rate", "", "New day rate")
	addClientFlags(clientsEditCmd)

	clientsDeleteCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
}
