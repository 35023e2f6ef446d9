package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tailscale/hujson"

	"github.com/roach88/doctype/internal/config"
	"github.com/roach88/doctype/internal/engine"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/value"
)

// session is an open database with its engine, ready for one command.
type session struct {
	store  *store.Store
	engine *engine.Engine
	actor  model.Actor
	out    *OutputFormatter
}

// openSession loads the config, opens the database and builds the engine
// for the actor named by the global flags.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	path := opts.Database
	if path == "" {
		path = cfg.Database.Path
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	logger := cfg.Log.NewLogger(cmd.ErrOrStderr(), opts.Verbose)
	eng := engine.New(st,
		engine.WithAuthorizer(cfg.Authorizer()),
		engine.WithDirectory(cfg.Directory()),
		engine.WithSettings(cfg.Settings()),
		engine.WithLogger(logger),
	)

	actor := model.SystemActor
	if opts.Actor != "" {
		actor = model.Actor{
			ID:        opts.Actor,
			Email:     cfg.Addresses[opts.Actor],
			Roles:     opts.Roles,
			Superuser: opts.Superuser,
		}
	}

	return &session{
		store:  st,
		engine: eng,
		actor:  actor,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// withSession runs fn against a fresh session and closes it afterwards.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(s *session) error) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// readData reads a document payload from --data or --file. Both accept
// JSON with comments and trailing commas. Neither yields an empty object.
func readData(data, file string) (value.Object, error) {
	var raw []byte
	switch {
	case data != "" && file != "":
		return nil, NewExitError(ExitCommandError, "--data and --file are mutually exclusive")
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read data file", err)
		}
		raw = b
	case data != "":
		raw = []byte(data)
	default:
		return value.Object{}, nil
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid data", err)
	}
	obj, err := value.ParseObject(std)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid data", err)
	}
	return obj, nil
}

// parseVersion parses a version number argument.
func parseVersion(arg string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || n < 1 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid version number %q", arg))
	}
	return n, nil
}
