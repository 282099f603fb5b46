package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/pixelstorm/internal/autosave"
	"github.com/dshills/pixelstorm/internal/config"
	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/docapi"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/preview"
	"github.com/dshills/pixelstorm/internal/script"
)

type runOptions struct {
	width, height int
	format        string
	restore       string
	history       bool
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <script.lua>",
		Short: "Run a Lua script against a new or restored sprite",
		Long: `Run executes a Lua script against a sprite document.

While the script runs, the config file is watched and history limits are
re-applied on change, the document is autosaved when autosave is enabled,
and frame thumbnails are kept up to date.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.width, "width", 64, "sprite width")
	f.IntVar(&opts.height, "height", 64, "sprite height")
	f.StringVar(&opts.format, "format", "rgb", "pixel format (rgb, gray, indexed)")
	f.StringVar(&opts.restore, "restore", "", "start from the newest autosave of this document ID")
	f.BoolVar(&opts.history, "history", false, "print the undo tree when the script ends")
	return cmd
}

func (a *app) openDocument(opts runOptions, store *autosave.Store) (*engine.Document, error) {
	if opts.restore != "" {
		if store == nil {
			return nil, errors.New("--restore needs autosave to be enabled")
		}
		id, err := uuid.Parse(opts.restore)
		if err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		return autosave.Restore(store, id, a.documentOptions()...)
	}
	format, err := sprite.ParsePixelFormat(opts.format)
	if err != nil {
		return nil, err
	}
	return docapi.NewSprite(format, opts.width, opts.height, a.documentOptions()...)
}

func (a *app) openStore() (*autosave.Store, error) {
	ac := a.cfg.Autosave
	if !ac.Enabled {
		return nil, nil
	}
	dir := ac.Dir
	if dir == "" && !ac.InMemory {
		cache, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("autosave directory: %w", err)
		}
		dir = filepath.Join(cache, "pixelstorm", "autosave")
	}
	return autosave.OpenStore(autosave.StoreConfig{
		Dir:      dir,
		InMemory: ac.InMemory,
		Keep:     ac.Keep,
		Logger:   a.logger,
	})
}

func (a *app) run(ctx context.Context, cmd *cobra.Command, path string, opts runOptions) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	doc, err := a.openDocument(opts, store)
	if err != nil {
		return err
	}
	defer doc.Close()
	if err := applyHistory(doc, a.cfg); err != nil {
		return err
	}
	logger := a.logger.With(zap.Stringer("document", doc.ID()))
	logger.Info("document opened", zap.String("script", path))

	host := script.NewHost(doc, script.WithLogger(logger), script.WithOutput(cmd.OutOrStdout()))
	defer host.Close()

	workers, wctx := errgroup.WithContext(ctx)
	workersCtx, stopWorkers := context.WithCancel(wctx)
	defer stopWorkers()

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, config.WithWatcherLogger(logger))
		if err != nil {
			return err
		}
		defer w.Close()
		w.OnChange(func(cfg *config.Config) {
			if err := applyHistory(doc, cfg); err != nil {
				logger.Warn("history settings not applied", zap.Error(err))
				return
			}
			logger.Info("history settings reloaded",
				zap.Int("memory_limit", cfg.History.MemoryLimit),
				zap.Int("max_entries", cfg.History.MaxEntries))
		})
		workers.Go(func() error { return w.Run(workersCtx) })
	}

	var saver *autosave.Saver
	if store != nil {
		saver = autosave.NewSaver(doc, store,
			autosave.WithInterval(a.cfg.Autosave.Interval.Std()),
			autosave.WithLogger(logger))
		workers.Go(func() error { return saver.Run(workersCtx) })
	}

	thumbs := preview.New(doc,
		preview.WithSize(a.cfg.Preview.Size),
		preview.WithInterval(a.cfg.Preview.Interval.Std()),
		preview.WithLogger(logger))
	workers.Go(func() error { return thumbs.Run(workersCtx) })

	scriptErr := host.DoFile(ctx, path)
	stopWorkers()
	if err := workers.Wait(); err != nil {
		logger.Warn("background worker failed", zap.Error(err))
	}

	if saver != nil {
		if _, err := saver.SaveNow(context.Background()); err != nil {
			logger.Warn("final autosave failed", zap.Error(err))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "autosaved %s\n", doc.ID())
		}
	}
	if opts.history {
		printHistory(cmd.OutOrStdout(), doc)
	}
	if scriptErr != nil {
		return fmt.Errorf("script %s: %w", path, scriptErr)
	}
	return nil
}
