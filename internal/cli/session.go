package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jchia/selda"
	"github.com/jchia/selda/internal/config"
)

// session is the state shared by commands that touch the database.
type session struct {
	out    *OutputFormatter
	schema *LoadResult
	cfg    *config.Config
	engine *selda.Engine
	logger *slog.Logger
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openSession loads the schema and config, then opens the engine. The
// caller must Close the session.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := newFormatter(opts, cmd)

	res, err := LoadSchema(opts.Schema)
	if err != nil {
		return nil, loadFailure(out, err)
	}
	out.VerboseLog("Loaded %d table(s) from %d CUE file(s) in %s", len(res.Tables), res.FileCount, opts.Schema)

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	e, err := selda.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	logger.Debug("database opened", "driver", cfg.Driver, "config", cfg.File)
	return &session{out: out, schema: res, cfg: cfg, engine: e, logger: logger}, nil
}

func (s *session) Close() error {
	return s.engine.Close()
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	var lopts []config.Option
	if opts.Config != "" {
		lopts = append(lopts, config.WithConfigFile(opts.Config))
	}
	cfg, err := config.NewLoader(lopts...).Load()
	if err != nil {
		return nil, err
	}
	if opts.Driver != "" {
		cfg.Driver = opts.Driver
	}
	if opts.DSN != "" {
		cfg.DSN = opts.DSN
	}
	return cfg, nil
}

// loadFailure reports a schema load error with its code.
func loadFailure(out *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return out.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
	}
	return out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
}
