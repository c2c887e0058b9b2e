package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/ptw/internal/config"
	"github.com/harrison/ptw/internal/display"
	"github.com/harrison/ptw/internal/watch"
)

// NewWatchCommand creates and returns the watch subcommand
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-evaluate permits whenever they change on disk",
		Long: `Watch the permit directory of the file store and re-evaluate every permit
document as soon as it is saved, printing blocking answers straight away.

Only the file store driver keeps one document per permit, so watch refuses
to run against sqlite or postgres. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			once, _ := cmd.Flags().GetBool("once")
			debounce, _ := cmd.Flags().GetDuration("debounce")
			return withSession(cmd, false, func(s *session) error {
				if s.cfg.Store.Driver != config.DriverFile {
					return fmt.Errorf("watch needs the %s store driver, configured driver is %s", config.DriverFile, s.cfg.Store.Driver)
				}
				if err := os.MkdirAll(s.cfg.Store.Path, 0755); err != nil {
					return fmt.Errorf("create permit directory: %w", err)
				}

				w, err := watch.New(s.cfg.Store.Path, s.engine, watch.WithInitialScan(), watch.WithDebounce(debounce))
				if err != nil {
					return err
				}
				defer w.Close()

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				if once {
					var cancel context.CancelFunc
					ctx, cancel = context.WithCancel(ctx)
					cancel()
				} else {
					s.log.LogInfo(fmt.Sprintf("Watching %s for permit changes", s.cfg.Store.Path))
				}

				return w.Run(ctx, func(res watch.Result) {
					reportWatchResult(s, res)
				})
			})
		},
	}

	cmd.Flags().Bool("once", false, "Evaluate the existing permits and exit")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a changed permit is evaluated")
	return cmd
}

func reportWatchResult(s *session, res watch.Result) {
	switch {
	case res.Err != nil:
		s.log.LogError(fmt.Sprintf("%s: %v", res.Path, res.Err))
	case res.Removed:
		fmt.Fprintf(s.out, "Permit %s removed\n", res.PermitID)
	default:
		display.PermitLine(s.out, res.Permit)
		display.BlockingPanel(res.Evaluation.Violations).Display(s.out)
	}
}
