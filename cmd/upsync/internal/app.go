package internal

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/goplus/upsync/internal/build"
	"github.com/goplus/upsync/internal/config"
	"github.com/goplus/upsync/internal/engine"
	"github.com/goplus/upsync/internal/env"
	"github.com/goplus/upsync/internal/fault"
	"github.com/goplus/upsync/internal/fetch"
	"github.com/goplus/upsync/internal/vcs"
	"github.com/goplus/upsync/library"
	"github.com/spf13/cobra"
)

// app is what every command needs: configuration, a logger and an engine.
type app struct {
	cfg    *config.Config
	log    *log.Logger
	engine *engine.Engine
}

func newApp(cmd *cobra.Command) (*app, error) {
	loader := config.NewLoader()
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	cfg, err := loader.Load(configFile)
	if err != nil {
		return nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{Level: level})
	if cfg.File != "" {
		logger.Debug("config", "file", cfg.File)
	}

	if err := os.MkdirAll(cfg.Cache, 0o755); err != nil {
		return nil, fault.New(fault.Filesystem, "mkdir", cfg.Cache, err)
	}
	toolOut := io.Discard
	if cfg.Verbose {
		toolOut = cmd.ErrOrStderr()
	}
	git := vcs.NewGitVCS(vcs.WithGitPath(cfg.Git))
	eng := engine.New(engine.Options{
		Root:    cfg.Root,
		Fetcher: fetch.New(cfg.Cache, fetch.WithVCS(git)),
		Builder: &build.Runner{
			Stdout:    toolOut,
			Stderr:    toolOut,
			CMakePath: cfg.CMake,
			MakePath:  cfg.Make,
		},
		Remote:     git,
		ScratchDir: env.Layout{Root: cfg.Cache}.ScratchDir(),
		Logger:     logger,
	})
	return &app{cfg: cfg, log: logger, engine: eng}, nil
}

// descriptors loads the descriptors named in names, or all of them.
func (a *app) descriptors(names []string) ([]*library.Descriptor, error) {
	descs, err := library.LoadDir(a.cfg.Upstream)
	if err != nil {
		return nil, err
	}
	return library.Select(descs, names)
}

// context applies the configured timeout to the command context.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfg.Fetch.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Fetch.Timeout)
	}
	return context.WithCancel(ctx)
}

// shortRev abbreviates commit hashes for display.
func shortRev(rev string) string {
	if vcs.IsCommit(rev) && len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
