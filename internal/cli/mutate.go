package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsync/internal/badge"
	"github.com/roach88/graphsync/internal/engine"
	"github.com/roach88/graphsync/internal/model"
)

// MutationReport is the output of send, accept and decline.
type MutationReport struct {
	ID        string         `json:"id"`
	Op        engine.Op      `json:"op"`
	Requested engine.Op      `json:"requested"`
	Identity  model.Identity `json:"identity"`
	State     model.State    `json:"state"`
	Counts    badge.Counts   `json:"counts"`
}

// WriteText renders the report for humans.
func (r MutationReport) WriteText(w io.Writer) error {
	if r.Op != r.Requested {
		fmt.Fprintf(w, "%s %s (as %s): now %s\n", r.Requested, r.Identity, r.Op, r.State)
	} else {
		fmt.Fprintf(w, "%s %s: now %s\n", r.Op, r.Identity, r.State)
	}
	return writeCounts(w, r.Counts)
}

// NewMutateCommand creates the send, accept or decline command.
func NewMutateCommand(rootOpts *RootOptions, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id|email>",
		Short: short,
		Long: short + `.

The current graph is loaded first so the request is checked against the
relationship the backend reports. A send to someone who already sent a
request accepts it instead.

Example:
  graphsync ` + name + ` jane@example.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := engine.ParseOp(name)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid operation", err)
			}
			return runMutate(rootOpts, op, args[0], cmd)
		},
	}
}

func runMutate(opts *RootOptions, op engine.Op, who string, cmd *cobra.Command) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s.load(ctx)

	id, err := s.resolve(who)
	if err != nil {
		return err
	}

	var res engine.MutationResult
	select {
	case res = <-s.engine.Mutate(ctx, op, id):
	case <-ctx.Done():
		return WrapExitError(ExitFailure, "interrupted", ctx.Err())
	}
	if res.Err != nil {
		return s.out.Fail(ExitFailure, errorCode(res.Err), fmt.Sprintf("%s failed", op), res.Err)
	}

	// Report the reconciled graph when the backend answers in time; the
	// mutation itself has already succeeded.
	select {
	case <-res.Reconciled:
	case <-time.After(s.cfg.Backend.Timeout):
		s.logger.Warn("reconciliation still running", "mutation", res.ID)
	case <-ctx.Done():
	}

	return s.out.Success(MutationReport{
		ID:        res.ID,
		Op:        res.Op,
		Requested: res.Requested,
		Identity:  res.Identity,
		State:     s.engine.Classify(res.Identity),
		Counts:    s.engine.Counts(),
	})
}
