package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/work-flower/timesheet-application-sub001/internal/config"
	"github.com/work-flower/timesheet-application-sub001/internal/crypto"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change invoice settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		settings, err := appInstance.SettingsService.Get(ctx)
		if err != nil {
			return err
		}
		cfg := appInstance.Config

		fmt.Println("Invoicing")
		fmt.Printf("  Prefix:         %s\n", settings.InvoicePrefix)
		fmt.Printf("  Last number:    %d\n", settings.InvoiceNumberSeed)
		fmt.Printf("  Next number:    %s\n", settings.NextInvoiceNumber())
		fmt.Printf("  Payment terms:  %d days\n", settings.DefaultPaymentTermDays)

		fmt.Println("Periods")
		fmt.Printf("  Company year end:     %s\n", cfg.Periods.CompanyYearEnd)
		fmt.Printf("  First VAT quarter end: month %d\n", cfg.Periods.VATQuarterEndMonth)

		if cfg.Business.Name != "" {
			fmt.Println("Business")
			fmt.Printf("  Name:       %s\n", cfg.Business.Name)
			fmt.Printf("  VAT number: %s\n", cfg.Business.VATNumber)
		}

		fmt.Println("Storage")
		fmt.Printf("  Database:   %s\n", cfg.Database.Path)
		fmt.Printf("  Config:     %s\n", config.DefaultConfigPath())
		if version, dirty, err := appInstance.DB.SchemaVersion(); err == nil {
			state := ""
			if dirty {
				state = " (dirty)"
			}
			fmt.Printf("  Schema:     v%d%s\n", version, state)
		}
		keyring := "environment (" + crypto.KeyEnv + ")"
		if crypto.NewKeyring().IsAvailable() {
			keyring = "available"
		}
		fmt.Printf("  Keyring:    %s\n", keyring)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the invoice prefix or default payment terms",
	RunE: func(cmd *cobra.Command, args []string) error {
		var prefix *string
		var terms *int
		if cmd.Flags().Changed("prefix") {
			p, _ := cmd.Flags().GetString("prefix")
			prefix = &p
		}
		if cmd.Flags().Changed("terms") {
			t, _ := cmd.Flags().GetInt("terms")
			terms = &t
		}
		if prefix == nil && terms == nil {
			return fmt.Errorf("nothing to change: pass --prefix or --terms")
		}

		settings, err := appInstance.SettingsService.Update(context.Background(), prefix, terms)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Settings updated. Next invoice: %s, terms %d days\n", settings.NextInvoiceNumber(), settings.DefaultPaymentTermDays)
		return nil
	},
}

var settingsSeedCmd = &cobra.Command{
	Use:   "seed [last_number]",
	Short: "Set the last invoice number used, e.g. to continue an existing sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		seed, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid invoice number %q", args[0])
		}
		if err := appInstance.SettingsService.SetInvoiceSeed(ctx, seed); err != nil {
			return err
		}

		next, err := appInstance.InvoiceService.GetNextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Invoice counter set. Next invoice: %s\n", next)
		return nil
	},
}

var settingsBusinessCmd = &cobra.Command{
	Use:   "business",
	Short: "Set the business details kept in the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		b := &appInstance.Config.Business
		changed := false
		for flag, field := range map[string]*string{
			"name":       &b.Name,
			"email":      &b.Email,
			"address":    &b.Address,
			"vat-number": &b.VATNumber,
		} {
			if cmd.Flags().Changed(flag) {
				*field, _ = cmd.Flags().GetString(flag)
				changed = true
			}
		}
		if !changed {
			return fmt.Errorf("nothing to change: pass --name, --email, --address or --vat-number")
		}

		if err := appInstance.SaveConfig(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("✓ Business details saved to %s\n", config.DefaultConfigPath())
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsSeedCmd)
	settingsCmd.AddCommand(settingsBusinessCmd)

	settingsBusinessCmd.Flags().String("name", "", "Business name")
	settingsBusinessCmd.Flags().String("email", "", "Contact email")
	settingsBusinessCmd.Flags().String("address", "", "Postal address")
	settingsBusinessCmd.Flags().String("vat-number", "", "VAT registration number")

	settingsSetCmd.Flags().String("prefix", "", "Invoice number prefix")
	settingsSetCmd.Flags().Int("terms", 30, "Default payment terms in days")
}
