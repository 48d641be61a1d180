package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsync/internal/badge"
	"github.com/roach88/graphsync/internal/engine"
	"github.com/roach88/graphsync/internal/model"
)

// SourceReport is the outcome of refreshing one source.
type SourceReport struct {
	Source  model.Source `json:"source"`
	Records int          `json:"records"`
	Shape   string       `json:"shape,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// SyncReport is the output of the sync command.
type SyncReport struct {
	Sources []SourceReport `json:"sources"`
	Counts  badge.Counts   `json:"counts"`

	// Partitions is only filled with --records.
	Partitions map[string][]model.Record `json:"partitions,omitempty"`
}

// WriteText renders the report for humans.
func (r SyncReport) WriteText(w io.Writer) error {
	for _, s := range r.Sources {
		if s.Error != "" {
			fmt.Fprintf(w, "%-26s FAILED  %s\n", s.Source, s.Error)
			continue
		}
		fmt.Fprintf(w, "%-26s %4d    %s\n", s.Source, s.Records, s.Shape)
	}
	if err := writeCounts(w, r.Counts); err != nil {
		return err
	}
	for _, name := range []string{"accepted", "outgoing", "incoming", "candidates"} {
		recs, ok := r.Partitions[name]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "\n%s (%d)\n", name, len(recs))
		for _, rec := range recs {
			fmt.Fprintf(w, "  %-32s %s\n", rec.Identity, rec.DisplayName)
		}
	}
	return nil
}

func writeCounts(w io.Writer, c badge.Counts) error {
	_, err := fmt.Fprintf(w, "seq=%d pending=%d network=%d outgoing=%d candidates=%d\n",
		c.Seq, c.Pending, c.Network, c.Outgoing, c.Candidates)
	return err
}

// countsView gives badge.Counts a text form.
type countsView badge.Counts

func (c countsView) WriteText(w io.Writer) error {
	return writeCounts(w, badge.Counts(c))
}

type SyncOptions struct {
	*RootOptions
	Records bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh every source and report what loaded",
		Long: `Refresh the network, request and candidate sources concurrently and
report how many records each produced and which payload shape matched.

Example:
  graphsync sync --config ./graphsync.yaml
  graphsync sync --records --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Records, "records", false, "include the records of every partition")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	results := s.load(cmd.Context())
	report := SyncReport{Sources: make([]SourceReport, 0, len(results))}
	failed := 0
	for _, res := range results {
		report.Sources = append(report.Sources, sourceReport(res))
		if res.Err != nil {
			failed++
		}
	}

	snap := s.engine.Snapshot()
	report.Counts = badge.Project(snap)
	if opts.Records {
		report.Partitions = map[string][]model.Record{
			"accepted":   snap.Accepted,
			"outgoing":   snap.Outgoing,
			"incoming":   snap.Incoming,
			"candidates": snap.Candidates,
		}
	}

	if err := s.out.Success(report); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d source(s) failed to refresh", failed))
	}
	return nil
}

func sourceReport(res engine.RefreshResult) SourceReport {
	r := SourceReport{Source: res.Source, Records: res.Records, Shape: res.Shape}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

// NewCountsCommand creates the counts command.
func NewCountsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Print badge counters",
		Long: `Refresh every source and print the pending-request, network,
outgoing and candidate counters.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			s.load(cmd.Context())
			return s.out.Success(countsView(s.engine.Counts()))
		},
	}
}
