package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/ptw/internal/models"
)

// NewJSEACommand creates and returns the jsea command group
func NewJSEACommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jsea",
		Short: "Edit the job safety and environmental analysis of a permit",
	}

	cmd.AddCommand(newJSEAStepCommand())
	cmd.AddCommand(newJSEARiskCommand())
	return cmd
}

func newJSEAStepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step <permit-id> <description>",
		Short: "Append a task step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hazards, _ := cmd.Flags().GetString("hazards")
			controls, _ := cmd.Flags().GetString("controls")
			riskFlag, _ := cmd.Flags().GetString("risk")

			var risk models.RiskLevel
			if riskFlag != "" {
				var err error
				if risk, err = models.ParseRiskLevel(riskFlag); err != nil {
					return err
				}
			}

			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				next, err := s.engine.AddStep(p, models.TaskStep{
					Step:      args[1],
					Hazards:   hazards,
					Controls:  controls,
					RiskLevel: risk,
				})
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(s.out, "Permit %s: step %d recorded\n", p.ID, len(next.JSEA.Steps))
				return next, nil
			})
		},
	}

	cmd.Flags().String("hazards", "", "Hazards of the step")
	cmd.Flags().String("controls", "", "Controls applied for the step")
	cmd.Flags().String("risk", "", "Residual risk: low, medium, high, very_high")
	return cmd
}

func newJSEARiskCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "risk <permit-id> <level>",
		Short: "Set the overall JSEA risk rating",
		Long: `Set the overall JSEA risk rating: low, medium, high or very_high.

A high or very_high rating sends the permit to inspection after approval.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			risk, err := models.ParseRiskLevel(args[1])
			if err != nil {
				return err
			}
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				next, err := s.engine.SetOverallRisk(p, risk)
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(s.out, "Permit %s: overall risk %s\n", p.ID, risk)
				return next, nil
			})
		},
	}
}
