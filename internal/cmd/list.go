package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/ptw/internal/display"
	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/store"
)

const dateLayout = "2006-01-02"

// NewListCommand creates and returns the list subcommand
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List permits, newest first",
		Long: `List permits, newest first.

--from and --to take dates (YYYY-MM-DD) and bound the creation date
inclusively. Templates are listed with "ptw template list".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := listFilter(cmd)
			if err != nil {
				return err
			}
			return withSession(cmd, true, func(s *session) error {
				permits, err := s.repo.List(cmd.Context(), f)
				if err != nil {
					return fmt.Errorf("list permits: %w", err)
				}
				if len(permits) == 0 {
					fmt.Fprintln(s.out, "No permits found.")
					return nil
				}
				for _, p := range permits {
					display.PermitLine(s.out, p)
				}
				return nil
			})
		},
	}

	cmd.Flags().String("site", "", "Only permits for this site")
	cmd.Flags().String("status", "", "Only permits in this status")
	cmd.Flags().String("from", "", "Created on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Created on or before this date (YYYY-MM-DD)")
	return cmd
}

func listFilter(cmd *cobra.Command) (store.Filter, error) {
	site, _ := cmd.Flags().GetString("site")
	status, _ := cmd.Flags().GetString("status")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	f := store.Filter{SiteID: site, Status: models.Status(status)}
	if status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("invalid --status %q", status)
	}
	if from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			return f, fmt.Errorf("invalid --from: %w", err)
		}
		f.From = t
	}
	if to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return f, fmt.Errorf("invalid --to: %w", err)
		}
		f.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("--to is before --from")
	}
	return f, nil
}
