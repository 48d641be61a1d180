package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsync/internal/badge"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions

	// Interval is the time between refreshes of every source.
	Interval time.Duration

	// Rounds stops the command after this many refreshes; 0 runs until
	// interrupted.
	Rounds int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh periodically and print counters as they change",
		Long: `Refresh every source on an interval and print the badge counters each
time one of them changes. Runs until interrupted or --rounds refreshes
have completed.

Example:
  graphsync watch --interval 10s
  graphsync watch --rounds 3 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 30*time.Second, "time between refreshes")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 0, "stop after this many refreshes (0 runs until interrupted)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	if opts.Interval <= 0 {
		return NewExitError(ExitCommandError, "--interval must be positive")
	}
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counts, cancel := s.engine.WatchCounts(s.cfg.Sync.SubscriberBuffer)
	defer cancel()

	done := make(chan struct{})
	refresh := func() {
		go func() {
			s.load(ctx)
			select {
			case done <- struct{}{}:
			case <-ctx.Done():
			}
		}()
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var last *badge.Counts
	emit := func(c badge.Counts) error {
		if last != nil && last.SameTotals(c) {
			return nil
		}
		last = &c
		return s.out.Success(countsView(c))
	}

	refresh()
	rounds := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watch stopped", "rounds", rounds)
			return nil
		case c, ok := <-counts:
			if !ok {
				return nil
			}
			if err := emit(c); err != nil {
				return err
			}
		case <-done:
			rounds++
			if opts.Rounds > 0 && rounds >= opts.Rounds {
				return emit(s.engine.Counts())
			}
		case <-ticker.C:
			refresh()
		}
	}
}

