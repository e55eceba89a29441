package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/work-flower/timesheet-application-sub001/internal/domain"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage client projects",
	Long: `Projects group timesheets and expenses under a client. A project may
override the client's day rate and VAT percent, or be VAT-exempt.`,
}

var projectsListCmd = &cobra.Command{
	Use:   "list [client_id_or_name]",
	Short: "List a client's projects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		clientID, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}
		includeArchived, _ := cmd.Flags().GetBool("archived")

		projects, err := appInstance.ClientService.ListProjects(ctx, clientID, includeArchived)
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}
		if len(projects) == 0 {
			fmt.Println("No projects found")
			return nil
		}

		fmt.Printf("%-5s %-30s %-12s %-8s\n", "ID", "Name", "Day Rate", "VAT")
		fmt.Println("------------------------------------------------------------")
		for _, p := range projects {
			terms, err := appInstance.ClientService.ResolveTerms(ctx, p.ID)
			if err != nil {
				return err
			}
			fmt.Printf("%-5d %-30s %-12s %-8s\n",
				p.ID,
				truncate(p.Name, 30),
				domain.FormatMoney(terms.EffectiveRate),
				domain.FormatPercent(terms.VATPercent),
			)
		}
		return nil
	},
}

var projectsAddCmd = &cobra.Command{
	Use:   "add [client_id_or_name] [name]",
	Short: "Add a project to a client",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		clientID, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}

		project := domain.NewProject(clientID, args[1])
		if err := applyProjectFlags(cmd, project); err != nil {
			return err
		}

		if err := appInstance.ClientService.CreateProject(ctx, project); err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}

		fmt.Printf("✓ Project created: %s (ID: %d)\n", project.Name, project.ID)
		return nil
	},
}

var projectsEditCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Edit a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		project, err := appInstance.ClientService.GetProject(ctx, id)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("name") {
			project.Name, _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("archived") {
			project.IsArchived, _ = cmd.Flags().GetBool("archived")
		}
		if err := applyProjectFlags(cmd, project); err != nil {
			return err
		}

		if err := appInstance.ClientService.UpdateProject(ctx, project); err != nil {
			return fmt.Errorf("failed to update project: %w", err)
		}

		fmt.Printf("✓ Project updated: %s\n", project.Name)
		return nil
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a project, its sources and every invoice billing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		project, err := appInstance.ClientService.GetProject(ctx, id)
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("yes")
		if !force && !confirmPrompt(fmt.Sprintf("Delete project %s and every invoice that bills it?", project.Name)) {
			fmt.Println("Cancelled.")
			return nil
		}

		if err := appInstance.ClientService.DeleteProject(ctx, id); err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}

		fmt.Printf("✓ Project deleted: %s\n", project.Name)
		return nil
	},
}

// applyProjectFlags sets rate and VAT overrides. An empty --rate or --vat
// clears the override so the client default applies again.
func applyProjectFlags(cmd *cobra.Command, project *domain.Project) error {
	flags := cmd.Flags()
	if flags.Changed("rate") {
		s, _ := flags.GetString("rate")
		project.Rate.Valid = false
		if s != "" {
			rate, err := parseDecimal(s, "day rate")
			if err != nil {
				return err
			}
			project.Rate = decimal.NewNullDecimal(rate)
		}
	}
	if flags.Changed("vat") {
		s, _ := flags.GetString("vat")
		project.VATPercent.Valid = false
		if s != "" {
			vat, err := parseDecimal(s, "VAT percent")
			if err != nil {
				return err
			}
			project.VATPercent = domain.Percent(vat)
		}
	}
	if flags.Changed("exempt") {
		project.VATExempt, _ = flags.GetBool("exempt")
	}
	return nil
}

func addProjectFlags(cmd *cobra.Command) {
	cmd.Flags().String("rate", "", "Day rate override (empty clears)")
	cmd.Flags().String("vat", "", "VAT percent override (empty clears)")
	cmd.Flags().Bool("exempt", false, "Bill the project VAT-exempt")
}

func init() {
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsAddCmd)
	projectsCmd.AddCommand(projectsEditCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)

	projectsListCmd.Flags().Bool("archived", false, "Include archived projects")

	addProjectFlags(projectsAddCmd)

	projectsEditCmd.Flags().String("name", "", "New name")
	projectsEditCmd.Flags().Bool("archived", false, "Archive or unarchive the project")
	addProjectFlags(projectsEditCmd)

	projectsDeleteCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
}
