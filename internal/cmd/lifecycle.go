package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/ptw/internal/display"
	"github.com/harrison/ptw/internal/engine"
	"github.com/harrison/ptw/internal/lifecycle"
	"github.com/harrison/ptw/internal/models"
)

// NewApproveCommand creates and returns the approve subcommand
func NewApproveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <permit-id>",
		Short: "Approve a permit pending approval",
		Long: `Approve a permit as the current operator.

Approval is refused while any required questionnaire holds a blocking
answer. High risk permits and permits with a specialized questionnaire go to
pending_inspection; all others become active.

Unanswered required questions do not stop approval but are listed, since the
questionnaires, hazards and JSEA are locked once the permit is approved. Run
"ptw evaluate --strict" first to refuse submission of an incomplete permit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				approver, err := s.operator()
				if err != nil {
					return nil, err
				}
				next, err := s.machine.Approve(p, approver)
				if err != nil {
					if errors.Is(err, lifecycle.ErrInvalidTransition) {
						display.BlockingPanel(engine.PermitViolations(s.reg, p)).Display(s.out)
					}
					return nil, err
				}
				display.OutstandingPanel(s.engine.Evaluate(p)).Display(s.out)
				fmt.Fprintf(s.out, "Permit %s approved by %s: %s\n", p.ID, approver, next.Status)
				return next, nil
			})
		},
	}
}

// NewInspectCommand creates and returns the inspect subcommand
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <permit-id>",
		Short: "Record the pre-start inspection and activate the permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			comments, _ := cmd.Flags().GetString("comments")
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				inspector, err := s.operator()
				if err != nil {
					return nil, err
				}
				next, err := s.machine.Inspect(p, models.Inspection{
					Inspector: inspector,
					Date:      date,
					Comments:  comments,
				})
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(s.out, "Permit %s inspected by %s: %s\n", p.ID, inspector, next.Status)
				return next, nil
			})
		},
	}

	cmd.Flags().String("date", "", "Inspection date")
	cmd.Flags().String("comments", "", "Inspection comments")
	return cmd
}

// NewCompleteCommand creates and returns the complete subcommand
func NewCompleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <permit-id>",
		Short: "Sign off an active permit",
		Long: `Record the close-out sign-off of an active permit.

The issuer and the receiver may sign separately: a half with both a name and
a signature is recorded on its own, and the permit completes once both halves
are present.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			get := func(name string) string {
				v, _ := cmd.Flags().GetString(name)
				return v
			}
			so := models.SignOff{
				IssuerName:        get("issuer-name"),
				IssuerSignature:   get("issuer-signature"),
				ReceiverName:      get("receiver-name"),
				ReceiverSignature: get("receiver-signature"),
			}
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				next, err := s.machine.Complete(p, so)
				var partial *lifecycle.PartialSignOffError
				if errors.As(err, &partial) {
					fmt.Fprintf(s.out, "Permit %s: sign-off recorded, still %s (missing %s)\n",
						p.ID, partial.Permit.Status, strings.Join(partial.Missing, " and "))
					return partial.Permit, nil
				}
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(s.out, "Permit %s: %s\n", p.ID, next.Status)
				return next, nil
			})
		},
	}

	cmd.Flags().String("issuer-name", "", "Issuer name")
	cmd.Flags().String("issuer-signature", "", "Issuer signature")
	cmd.Flags().String("receiver-name", "", "Receiver name")
	cmd.Flags().String("receiver-signature", "", "Receiver signature")
	return cmd
}

// NewRejectCommand creates and returns the reject subcommand
func NewRejectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <permit-id>",
		Short: "Reject a permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				by, err := s.operator()
				if err != nil {
					return nil, err
				}
				next, err := s.machine.Reject(p, by, reason)
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(s.out, "Permit %s rejected by %s\n", p.ID, by)
				return next, nil
			})
		},
	}

	cmd.Flags().String("reason", "", "Reason for rejection")
	return cmd
}
