package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for ptw
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ptw",
		Short: "Permit-to-work questionnaire engine",
		Long: `ptw records permits to work for hazardous jobs at industrial sites.

A permit carries specialized hazard questionnaires (hot work, confined space,
working at height, ...), single-hazard toggles and a JSEA breakdown. Answers
drive which questions are visible, which controls must be explained and which
answers block the permit from being issued. Permits then move through
approval, inspection and completion.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to config file (default: .ptw/config.yaml in the project root)")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.String("as", "", "Operator recorded as the actor of lifecycle actions")
	flags.String("store-driver", "", "Permit store: file, sqlite, postgres")
	flags.String("store-path", "", "Permit directory (file) or database file (sqlite)")
	flags.String("dsn", "", "Postgres connection string")
	flags.String("schema-dir", "", "Load questionnaires from this directory instead of the built-in set")
	flags.Bool("metrics", false, "Print engine and lifecycle counters on exit")

	cmd.AddCommand(NewSchemaCommand())
	cmd.AddCommand(NewNewCommand())
	cmd.AddCommand(NewAnswerCommand())
	cmd.AddCommand(NewRequireCommand())
	cmd.AddCommand(NewHazardCommand())
	cmd.AddCommand(NewJSEACommand())
	cmd.AddCommand(NewIsolateCommand())
	cmd.AddCommand(NewSignOnCommand())
	cmd.AddCommand(NewEvaluateCommand())
	cmd.AddCommand(NewApproveCommand())
	cmd.AddCommand(NewInspectCommand())
	cmd.AddCommand(NewCompleteCommand())
	cmd.AddCommand(NewRejectCommand())
	cmd.AddCommand(NewTemplateCommand())
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewDeleteCommand())
	cmd.AddCommand(NewReportCommand())
	cmd.AddCommand(NewWatchCommand())

	return cmd
}
