package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsync/internal/config"
	"github.com/roach88/graphsync/internal/remote"
)

// ClientFactory builds the backend client for a loaded config.
type ClientFactory func(cfg *config.Config, logger *slog.Logger) (remote.Client, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string

	// NewClient defaults to the HTTP client. Tests inject a fake backend.
	NewClient ClientFactory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the graphsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{NewClient: httpClient})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graphsync",
		Short: "graphsync - connection graph sync client",
		Long: `A client for a professional-network backend that keeps a deduplicated
view of connections, requests and candidates in sync with the server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config (env GRAPHSYNC_* overrides)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewCountsCommand(opts))
	cmd.AddCommand(NewClassifyCommand(opts))
	cmd.AddCommand(NewMutateCommand(opts, "send", "Send a connection request"))
	cmd.AddCommand(NewMutateCommand(opts, "accept", "Accept a pending request"))
	cmd.AddCommand(NewMutateCommand(opts, "decline", "Decline a pending request"))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewNormalizeCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

func httpClient(cfg *config.Config, logger *slog.Logger) (remote.Client, error) {
	c, err := remote.NewHTTPClient(cfg.Backend.BaseURL, remote.StaticToken(cfg.Backend.Token),
		remote.WithTimeout(cfg.Backend.Timeout),
		remote.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}
