package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsync/internal/model"
)

// ClassifyResult is the output of the classify command.
type ClassifyResult struct {
	Identity model.Identity `json:"identity"`
	State    model.State    `json:"state"`

	// Visible is the identity's current record, candidates included.
	Visible *model.Record `json:"record,omitempty"`
}

// WriteText renders the result for humans.
func (r ClassifyResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s: %s\n", r.Identity, r.State)
	if r.Visible == nil {
		return nil
	}
	for _, kv := range [][2]string{
		{"name", r.Visible.DisplayName},
		{"username", r.Visible.Username},
		{"title", r.Visible.Title},
		{"company", r.Visible.Company},
	} {
		if kv[1] != "" {
			fmt.Fprintf(w, "  %-9s %s\n", kv[0]+":", kv[1])
		}
	}
	return nil
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <id|email>",
		Short: "Show the relationship with one identity",
		Long: `Refresh every source and print the relationship between the current user
and the given identity: None, Accepted, OutgoingPending or IncomingPending.

Example:
  graphsync classify 42
  graphsync classify jane@example.com --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			s.load(cmd.Context())

			id, err := s.resolve(args[0])
			if err != nil {
				return err
			}
			res := ClassifyResult{Identity: id, State: s.engine.Classify(id)}
			if rec, ok := s.engine.Snapshot().Lookup(id); ok {
				res.Visible = &rec
			}
			return s.out.Success(res)
		},
	}
}
