package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/ptw/internal/answers"
	"github.com/harrison/ptw/internal/display"
	"github.com/harrison/ptw/internal/engine"
	"github.com/harrison/ptw/internal/lifecycle"
	"github.com/harrison/ptw/internal/models"
)

// NewNewCommand creates and returns the new subcommand
func NewNewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a permit",
		Long: `Create a permit in pending_approval and print its id.

Use --require to switch on specialized questionnaires straight away, or
--from-template to copy questionnaires, hazards and the JSEA from a template.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, true, func(s *session) error {
				return createPermit(cmd, s)
			})
		},
	}

	addPermitFieldFlags(cmd)
	cmd.Flags().StringSlice("require", nil, "Specialized questionnaires to require (repeatable)")
	cmd.Flags().String("from-template", "", "Create the permit from this template id")
	return cmd
}

func addPermitFieldFlags(cmd *cobra.Command) {
	cmd.Flags().String("number", "", "Permit number")
	cmd.Flags().String("description", "", "Description of the work")
	cmd.Flags().String("location", "", "Work location")
	cmd.Flags().String("site", "", "Site id")
	cmd.Flags().String("contractor", "", "Contractor company")
}

func permitOverrides(cmd *cobra.Command, requestedBy string) lifecycle.Overrides {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return strings.TrimSpace(v)
	}
	return lifecycle.Overrides{
		Number:            get("number"),
		Description:       get("description"),
		Location:          get("location"),
		SiteID:            get("site"),
		RequestedBy:       requestedBy,
		ContractorCompany: get("contractor"),
	}
}

func createPermit(cmd *cobra.Command, s *session) error {
	ctx := cmd.Context()
	o := permitOverrides(cmd, s.cfg.Operator)

	var p *models.Permit
	if tmplID, _ := cmd.Flags().GetString("from-template"); tmplID != "" {
		tmpl, err := s.load(ctx, tmplID)
		if err != nil {
			return err
		}
		if p, err = s.machine.FromTemplate(tmpl, o); err != nil {
			return err
		}
	} else {
		p = s.machine.Create(s.cfg.Operator)
		p.Number = o.Number
		p.Description = o.Description
		p.Location = o.Location
		p.SiteID = o.SiteID
		p.ContractorCompany = o.ContractorCompany
	}

	required, _ := cmd.Flags().GetStringSlice("require")
	for _, key := range required {
		var err error
		if p, err = s.engine.SetRequired(p, key, true); err != nil {
			return err
		}
	}

	if err := s.save(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Created permit %s\n", p.ID)
	return nil
}

// NewAnswerCommand creates and returns the answer subcommand
func NewAnswerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answer <permit-id> <questionnaire> <question> [value...]",
		Short: "Record an answer to a questionnaire question",
		Long: `Record one fragment of the answer to a question and re-evaluate the permit.

By default the primary answer is set. Use --fragment text or --fragment
controls to record the elaboration or the controls explanation, and --option
to annotate one option of a multi-choice question. Several values, or --list,
record a multi-choice answer. Giving no value clears the fragment.

Examples:
  ptw answer $ID hotWork confined_space yes
  ptw answer $ID hotWork work_type --list welding cutting
  ptw answer $ID hotWork flammables_removed --fragment controls "Fire blankets over the grating"`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnswer(cmd, args)
		},
	}

	cmd.Flags().String("fragment", string(answers.FragmentAnswer), "Fragment to set: answer, text, controls")
	cmd.Flags().String("option", "", "Annotate this option value instead of setting a fragment")
	cmd.Flags().Bool("list", false, "Record the values as a multi-choice list")
	return cmd
}

func runAnswer(cmd *cobra.Command, args []string) error {
	id, key, question, values := args[0], args[1], args[2], args[3:]

	edit, err := answerEdit(cmd, key, question, values)
	if err != nil {
		return err
	}

	return editPermit(cmd, id, func(s *session, p *models.Permit) (*models.Permit, error) {
		q, ok := s.reg.Questionnaire(key)
		if !ok {
			return nil, fmt.Errorf("unknown questionnaire %q", key)
		}
		def, ok := q.Question(question)
		if !ok {
			return nil, fmt.Errorf("unknown question %q in %s", question, key)
		}
		if edit.Fragment.IsOption() {
			if _, ok := def.Option(string(edit.Fragment)); !ok {
				return nil, fmt.Errorf("question %s.%s has no option %q", key, question, edit.Fragment)
			}
		}

		next, ev, err := s.engine.Apply(p, edit)
		if err != nil {
			return nil, err
		}
		if !next.IsRequired(key) {
			s.log.LogWarn(fmt.Sprintf("Permit %s: %s is not required; the answer is kept but not evaluated", p.ID, key))
		}
		display.EvaluationSummary(s.out, next, ev)
		display.BlockingPanel(ev.Violations).Display(s.out)
		return next, nil
	})
}

func answerEdit(cmd *cobra.Command, key, question string, values []string) (engine.Edit, error) {
	fragment, _ := cmd.Flags().GetString("fragment")
	option, _ := cmd.Flags().GetString("option")
	list, _ := cmd.Flags().GetBool("list")

	edit := engine.Edit{Questionnaire: key, QuestionID: question}
	switch {
	case option != "":
		if cmd.Flags().Changed("fragment") {
			return edit, fmt.Errorf("--option and --fragment cannot be used together")
		}
		edit.Fragment = answers.OptionFragment(option)
	case fragment == string(answers.FragmentAnswer):
		edit.Fragment = answers.FragmentAnswer
	case fragment == string(answers.FragmentText), fragment == string(answers.FragmentControls):
		edit.Fragment = answers.FragmentKey(fragment)
	default:
		return edit, fmt.Errorf("invalid --fragment %q, must be one of: answer, text, controls", fragment)
	}

	if edit.Fragment != answers.FragmentAnswer {
		if list {
			return edit, fmt.Errorf("--list only applies to the answer fragment")
		}
		edit.Value = answers.Scalar(strings.Join(values, " "))
		return edit, nil
	}

	switch {
	case list:
		edit.Value = answers.List(values...)
	case len(values) > 1:
		return edit, fmt.Errorf("%d values given for %s.%s: use --list for a multi-choice answer", len(values), key, question)
	case len(values) == 1:
		edit.Value = answers.Scalar(values[0])
	default:
		edit.Value = answers.Scalar("")
	}
	return edit, nil
}

// NewRequireCommand creates and returns the require subcommand
func NewRequireCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "require <permit-id> <questionnaire>",
		Short: "Require a specialized questionnaire, or release it with --off",
		Long: `Switch a specialized questionnaire on by hand.

--off is the only way to release a questionnaire that a cross trigger forced
on. Answers already recorded are kept either way.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			off, _ := cmd.Flags().GetBool("off")
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				next, err := s.engine.SetRequired(p, args[1], !off)
				if err != nil {
					return nil, err
				}
				state := "required"
				if off {
					state = "no longer required"
				}
				fmt.Fprintf(s.out, "Permit %s: %s %s\n", p.ID, args[1], state)
				return next, nil
			})
		},
	}

	cmd.Flags().Bool("off", false, "Release the questionnaire instead")
	return cmd
}

// NewHazardCommand creates and returns the hazard subcommand
func NewHazardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hazard <permit-id> <hazard>",
		Short: "Mark a single hazard present and record its controls",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			absent, _ := cmd.Flags().GetBool("absent")
			controls, _ := cmd.Flags().GetString("controls")
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				next, err := s.engine.SetHazard(p, args[1], !absent, controls)
				if err != nil {
					return nil, err
				}
				def, _ := s.reg.Hazard(args[1])
				state := "present"
				if absent {
					state = "absent"
				}
				fmt.Fprintf(s.out, "Permit %s: %s %s\n", p.ID, def.Label, state)
				return next, nil
			})
		},
	}

	cmd.Flags().Bool("absent", false, "Mark the hazard as not present")
	cmd.Flags().String("controls", "", "Controls applied for the hazard")
	return cmd
}

// NewIsolateCommand creates and returns the isolate subcommand
func NewIsolateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "isolate <permit-id> <isolation-point>",
		Short: "Record an energy isolation point",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, _ := cmd.Flags().GetString("method")
			lock, _ := cmd.Flags().GetString("lock")
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				next, err := s.engine.AddIsolation(p, models.Isolation{
					Point:      args[1],
					Method:     method,
					IsolatedBy: s.cfg.Operator,
					LockNumber: lock,
				})
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(s.out, "Permit %s: isolation %d recorded\n", p.ID, len(next.Isolations))
				return next, nil
			})
		},
	}

	cmd.Flags().String("method", "", "Isolation method")
	cmd.Flags().String("lock", "", "Personal lock number")
	return cmd
}

// NewSignOnCommand creates and returns the signon subcommand
func NewSignOnCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signon <permit-id> <name>",
		Short: "Sign a worker on to a permit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			company, _ := cmd.Flags().GetString("company")
			return editPermit(cmd, args[0], func(s *session, p *models.Permit) (*models.Permit, error) {
				next, err := s.engine.SignOn(p, models.SignOn{Name: args[1], Company: company})
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(s.out, "Permit %s: %s signed on\n", p.ID, args[1])
				return next, nil
			})
		},
	}

	cmd.Flags().String("company", "", "Worker's company")
	return cmd
}

// NewDeleteCommand creates and returns the delete subcommand
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <permit-id>",
		Short: "Delete a permit or template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, true, func(s *session) error {
				if err := s.repo.Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("delete permit %s: %w", args[0], err)
				}
				fmt.Fprintf(s.out, "Deleted permit %s\n", args[0])
				return nil
			})
		},
	}
}
