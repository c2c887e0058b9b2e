package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/ptw/internal/filelock"
	"github.com/harrison/ptw/internal/report"
)

// NewReportCommand creates and returns the report subcommand
func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <permit-id>",
		Short: "Render a permit summary as Markdown or HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asHTML, _ := cmd.Flags().GetBool("html")
			output, _ := cmd.Flags().GetString("output")
			return withSession(cmd, true, func(s *session) error {
				p, err := s.load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				ev := s.engine.Evaluate(p)
				md := report.Markdown(s.reg, p, ev)

				data := []byte(md)
				if asHTML {
					body, err := report.HTML(md)
					if err != nil {
						return err
					}
					title := "Permit " + p.ID
					if p.Number != "" {
						title = "Permit " + p.Number
					}
					data = report.Page(title, body)
				}

				if output == "" {
					_, err := s.out.Write(data)
					return err
				}
				if err := filelock.WriteAtomic(output, data); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(s.out, "Report written to %s\n", output)
				return nil
			})
		},
	}

	cmd.Flags().Bool("html", false, "Render HTML instead of Markdown")
	cmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")
	return cmd
}
