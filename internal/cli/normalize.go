package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsync/internal/model"
	"github.com/roach88/graphsync/internal/normalize"
)

// NormalizeReport is the output of the normalize command.
type NormalizeReport struct {
	Shape       string         `json:"shape"`
	Records     []model.Record `json:"records"`
	Diagnostics []string       `json:"diagnostics,omitempty"`
}

// WriteText renders the report for humans.
func (r NormalizeReport) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "shape: %s\n", r.Shape)
	fmt.Fprintf(w, "records: %d\n", len(r.Records))
	for _, rec := range r.Records {
		fmt.Fprintf(w, "  %-32s %s\n", rec.Identity, rec.DisplayName)
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w, "warning: %s\n", d)
	}
	return nil
}

type NormalizeOptions struct {
	*RootOptions
	Keys []string
}

// NewNormalizeCommand creates the normalize command.
func NewNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NormalizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "normalize <file|->",
		Short: "Decode a saved backend payload",
		Long: `Run a saved backend response through the response normalizer and print
the matched shape, the decoded records and any diagnostics. Does not
contact the backend.

Example:
  graphsync normalize ./network.json
  curl -s $URL | graphsync normalize - --key people`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Keys, "key", nil, "extra list key to recognize (repeatable)")

	return cmd
}

func runNormalize(opts *NormalizeOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeRead, "failed to read payload", err)
	}

	// Diagnostics are part of the report; the log only matters with -v.
	logW := io.Discard
	if opts.Verbose {
		logW = cmd.ErrOrStderr()
	}
	keys := append(append([]string(nil), normalize.DefaultListKeys...), opts.Keys...)
	n := normalize.New(
		normalize.WithListKeys(keys...),
		normalize.WithLogger(newLogger("debug", "text", logW)),
	)

	res := n.Normalize(data)
	report := NormalizeReport{Shape: res.Shape, Records: res.Records}
	if report.Records == nil {
		report.Records = []model.Record{}
	}
	for _, d := range res.Diagnostics {
		report.Diagnostics = append(report.Diagnostics, d.Error())
	}
	out.VerboseLog("decoded %d bytes", len(data))
	return out.Success(report)
}
