package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/ptw/internal/report"
	"github.com/harrison/ptw/internal/schema"
)

// NewSchemaCommand creates and returns the schema command group
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and validate questionnaire definitions",
	}

	cmd.AddCommand(newSchemaValidateCommand())
	cmd.AddCommand(newSchemaListCommand())
	cmd.AddCommand(newSchemaShowCommand())
	return cmd
}

func newSchemaValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate a questionnaire directory",
		Long: `Load a questionnaire directory (registry.yaml plus questionnaires/*.yaml)
and check it for:
  - Documents that do not match the questionnaire JSON Schema
  - Duplicate question ids
  - depends_on references that are unknown, later in the list, or cyclic
  - Section members that are unknown or are themselves sections
  - Cross triggers naming unknown questionnaires or questions

Without a directory the configured registry is validated.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				reg, err := schema.LoadDir(args[0])
				if err != nil {
					color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "✗ Validation failed: %v\n", err)
					return fmt.Errorf("validation failed for %s", args[0])
				}
				printRegistryValid(cmd.OutOrStdout(), reg)
				return nil
			}
			return withSession(cmd, false, func(s *session) error {
				printRegistryValid(s.out, s.reg)
				return nil
			})
		},
	}
}

func printRegistryValid(w io.Writer, reg *schema.Registry) {
	color.New(color.FgGreen).Fprintf(w, "✓ Registry %s is valid\n", reg.Version())
	fmt.Fprintf(w, "  Questionnaires: %d\n", len(reg.Keys()))
	fmt.Fprintf(w, "  Single hazards: %d\n", len(reg.SingleHazards()))
	fmt.Fprintf(w, "  Cross triggers: %d\n", len(reg.CrossTriggers()))
}

func newSchemaListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List questionnaires, single hazards and cross triggers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, false, func(s *session) error {
				fmt.Fprintf(s.out, "Questionnaires (registry %s):\n", s.reg.Version())
				for _, key := range s.reg.Keys() {
					q, _ := s.reg.Questionnaire(key)
					fmt.Fprintf(s.out, "  %-16s %s (%d questions)\n", key, q.Label, len(q.Questions))
				}
				fmt.Fprintln(s.out, "Single hazards:")
				for _, h := range s.reg.SingleHazards() {
					fmt.Fprintf(s.out, "  %-20s %s\n", h.Key, h.Label)
				}
				fmt.Fprintln(s.out, "Cross triggers:")
				for _, t := range s.reg.CrossTriggers() {
					source := t.Source + "." + t.Question
					if t.Fragment != "" && t.Fragment != "answer" {
						source += "[" + string(t.Fragment) + "]"
					}
					fmt.Fprintf(s.out, "  %s = %s -> %s\n", source, t.Value, t.Target)
				}
				return nil
			})
		},
	}
}

func newSchemaShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <questionnaire>",
		Short: "Print the questions of a questionnaire",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, false, func(s *session) error {
				q, ok := s.reg.Questionnaire(args[0])
				if !ok {
					return fmt.Errorf("unknown questionnaire %q", args[0])
				}
				printQuestionnaire(s.out, q)
				return nil
			})
		},
	}
}

func printQuestionnaire(w io.Writer, q *schema.Questionnaire) {
	fmt.Fprintf(w, "%s (%s): %d questions\n", q.Label, q.Key, len(q.Questions))
	for _, def := range q.Questions {
		indent := "  "
		if _, ok := q.SectionOf(def.ID); ok {
			indent = "    "
		}
		if def.InlineOnly {
			indent += "↳ "
		}

		var tags []string
		tags = append(tags, string(def.Kind))
		if def.Required {
			tags = append(tags, "required")
		}
		fmt.Fprintf(w, "%s%s [%s] %s\n", indent, def.ID, strings.Join(tags, ", "), def.Text)

		detail := indent + "    "
		if cond := condition(def); cond != "" {
			fmt.Fprintf(w, "%sshown when %s\n", detail, cond)
		}
		for _, opt := range def.Options {
			fmt.Fprintf(w, "%s- %s: %s\n", detail, opt.Value, opt.Label)
		}
		if def.Blocking != "" {
			fmt.Fprintf(w, "%sblocks the permit when answered %q\n", detail, def.Blocking)
		}
		if value, ok := def.ControlsValue(); ok && !def.IsSection() && value != schema.DefaultControlsTrigger {
			fmt.Fprintf(w, "%scontrols required when answered %q\n", detail, value)
		}
		if def.Note != "" {
			for _, line := range strings.Split(report.PlainNote(def.Note), "\n") {
				fmt.Fprintf(w, "%s%s\n", detail, line)
			}
		}
	}
}

// condition renders the dependsOn rule of def, empty when it has none.
func condition(def schema.QuestionDef) string {
	if def.DependsOn.Empty() {
		return ""
	}
	var parts []string
	for i, id := range def.DependsOn.IDs {
		want := def.DependsOnValue.Items
		if def.DependsOn.List && def.DependsOnValue.List {
			v, ok := def.DependsOnValue.At(i)
			if !ok {
				continue
			}
			want = []string{v}
		}
		parts = append(parts, fmt.Sprintf("%s = %s", id, strings.Join(want, " or ")))
	}
	return strings.Join(parts, ", or ")
}
