package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/ptw/internal/display"
	"github.com/harrison/ptw/internal/lifecycle"
	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/store"
)

// NewTemplateCommand creates and returns the template command group
func NewTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage permit templates",
		Long: `Templates are permits kept for reuse. A permit created from a template
copies its questionnaires, required flags, single hazards and JSEA, and starts
afresh in pending_approval.`,
	}

	cmd.AddCommand(newTemplateSaveCommand())
	cmd.AddCommand(newTemplateRemoveCommand())
	cmd.AddCommand(newTemplateFromCommand())
	cmd.AddCommand(newTemplateListCommand())
	cmd.AddCommand(newTemplateUsageCommand())
	return cmd
}

func newTemplateSaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save <permit-id> <name>",
		Short: "Mark a permit as a template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				next, err := s.machine.SaveAsTemplate(p, args[1])
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(s.out, "Permit %s saved as template %q\n", p.ID, next.TemplateName)
				return next, nil
			})
		},
	}
}

func newTemplateRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <template-id>",
		Short: "Turn a template back into an ordinary permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				next, err := s.machine.RemoveTemplate(p)
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(s.out, "Template %q removed\n", p.TemplateName)
				return next, nil
			})
		},
	}
}

func newTemplateFromCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "from <template-id>",
		Short: "Create a permit from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Flags().Set("from-template", args[0]); err != nil {
				return err
			}
			return withSession(cmd, true, func(s *session) error {
				return createPermit(cmd, s)
			})
		},
	}

	addPermitFieldFlags(cmd)
	cmd.Flags().StringSlice("require", nil, "Additional specialized questionnaires to require")
	cmd.Flags().String("from-template", "", "")
	_ = cmd.Flags().MarkHidden("from-template")
	return cmd
}

func newTemplateListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Long: `List templates, newest first, with the number of permits created from each.

--requires keeps templates that require the given specialized questionnaire.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			site, _ := cmd.Flags().GetString("site")
			requires, _ := cmd.Flags().GetString("requires")
			return withSession(cmd, true, func(s *session) error {
				if requires != "" {
					if _, ok := s.reg.Questionnaire(requires); !ok {
						return fmt.Errorf("unknown questionnaire %q", requires)
					}
				}
				ctx := cmd.Context()
				templates, err := s.repo.List(ctx, store.Filter{SiteID: site, Templates: true, Requires: requires})
				if err != nil {
					return fmt.Errorf("list templates: %w", err)
				}
				if len(templates) == 0 {
					fmt.Fprintln(s.out, "No templates found.")
					return nil
				}
				permits, err := s.repo.List(ctx, store.Filter{})
				if err != nil {
					return fmt.Errorf("list permits: %w", err)
				}
				usage := lifecycle.TemplateUsage(permits)
				for _, t := range templates {
					display.PermitLine(s.out, t)
					fmt.Fprintf(s.out, "    used %d time(s)\n", usage[t.ID])
				}
				return nil
			})
		},
	}

	cmd.Flags().String("site", "", "Only templates for this site")
	cmd.Flags().String("requires", "", "Only templates that require this questionnaire")
	return cmd
}

func newTemplateUsageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Rank specialized questionnaires by how many permits require them",
		Long: `Count the live permits that require each specialized questionnaire.
The most used questionnaires are good candidates for a template.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			site, _ := cmd.Flags().GetString("site")
			limit, _ := cmd.Flags().GetInt("limit")
			return withSession(cmd, true, func(s *session) error {
				permits, err := s.repo.List(cmd.Context(), store.Filter{SiteID: site})
				if err != nil {
					return fmt.Errorf("list permits: %w", err)
				}
				counts := lifecycle.MostUsedQuestionnaires(permits, limit)
				if len(counts) == 0 {
					fmt.Fprintln(s.out, "No specialized questionnaires in use.")
					return nil
				}
				for _, c := range counts {
					label := c.Questionnaire
					if q, ok := s.reg.Questionnaire(c.Questionnaire); ok {
						label = q.Label
					}
					fmt.Fprintf(s.out, "  %-16s %-24s %d permit(s)\n", c.Questionnaire, label, c.Permits)
				}
				return nil
			})
		},
	}

	cmd.Flags().String("site", "", "Only permits for this site")
	cmd.Flags().Int("limit", 10, "Show at most this many questionnaires (0 for all)")
	return cmd
}
