package cli

import (
	"github.com/spf13/cobra"

	"github.com/work-flower/timesheet-application-sub001/internal/app"
)

var appInstance *app.App

var rootCmd = &cobra.Command{
	Use:   "timesheet",
	Short: "Timesheets, expenses and VAT invoices for contractors",
	Long: `Timesheet records time and expenses against client projects and turns
them into VAT invoices. Confirming an invoice locks its timesheets and
expenses and gives it the next invoice number.

Running timesheet without arguments launches the interactive TUI.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		launchTUI(cmd, args)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetApp sets the app instance for commands to use
func SetApp(a *app.App) {
	appInstance = a
}

func init() {
	// read by main before the app is built; declared here so cobra accepts it
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging on stderr")

	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(timesheetsCmd)
	rootCmd.AddCommand(expensesCmd)
	rootCmd.AddCommand(invoicesCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(tuiCmd)
}
