package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsync/internal/config"
	"github.com/roach88/graphsync/internal/engine"
	"github.com/roach88/graphsync/internal/model"
)

// session is the per-invocation engine and its surroundings.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *engine.Engine
	out    *OutputFormatter
}

func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := opts.formatter(cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	logger := newLogger(level, cfg.Log.Format, cmd.ErrOrStderr())

	client, err := opts.NewClient(cfg, logger)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeConfig, "failed to create backend client", err)
	}

	// Validate already checked the sources.
	sources, _ := cfg.SyncSources()
	eng, err := engine.New(client, cfg.Self(),
		engine.WithLogger(logger),
		engine.WithRequestTimeout(cfg.Backend.Timeout),
		engine.WithSources(sources...),
	)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeConfig, "failed to create engine", err)
	}

	out.VerboseLog("user %s against %s", cfg.Self(), cfg.Backend.BaseURL)
	return &session{cfg: cfg, logger: logger, engine: eng, out: out}, nil
}

// load refreshes every configured source. Failed sources are logged and
// left empty so commands can still report what did load.
func (s *session) load(ctx context.Context) []engine.RefreshResult {
	results, err := s.engine.RefreshAll(ctx)
	if err != nil {
		s.logger.Warn("initial sync incomplete", "error", err)
	}
	return results
}

// resolve parses a command-line identity and completes it from the graph.
func (s *session) resolve(arg string) (model.Identity, error) {
	id, err := model.ParseIdentity(arg)
	if err != nil {
		return model.Identity{}, s.out.Fail(ExitCommandError, ErrCodeArgument, "invalid identity", err)
	}
	return s.engine.Store().Resolve(id), nil
}
