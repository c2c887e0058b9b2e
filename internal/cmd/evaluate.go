package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/ptw/internal/display"
)

// NewEvaluateCommand creates and returns the evaluate subcommand
func NewEvaluateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <permit-id>",
		Short: "Evaluate a permit and show what still needs attention",
		Long: `Run the questionnaire engine over a permit and print, per required
questionnaire, how many questions are visible and outstanding, the blocking
answers and the required items still missing.

Exit code: 0 unless --strict is given and the permit is blocked or incomplete`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strict, _ := cmd.Flags().GetBool("strict")
			return withSession(cmd, true, func(s *session) error {
				p, err := s.load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				ev := s.engine.Evaluate(p)

				display.EvaluationSummary(s.out, p, ev)
				display.BlockingPanel(ev.Violations).Display(s.out)
				display.OutstandingPanel(ev).Display(s.out)

				if !strict {
					return nil
				}
				if ev.Blocked() {
					return fmt.Errorf("permit %s has %d blocking answer(s)", p.ID, len(ev.Violations))
				}
				if !ev.Complete() {
					return fmt.Errorf("permit %s has required items outstanding", p.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().Bool("strict", false, "Fail when the permit is blocked or incomplete")
	return cmd
}
