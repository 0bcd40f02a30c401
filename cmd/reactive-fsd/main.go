// Package main implements reactive-fsd, a daemon that serves a reactive
// filesystem over the websocket bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/bridge"
	"github.com/wix/reactive-fs/config"
	"github.com/wix/reactive-fs/diskfs"
	"github.com/wix/reactive-fs/internal/util"
	"github.com/wix/reactive-fs/memfs"
	"github.com/wix/reactive-fs/timeoutfs"
	"golang.org/x/sync/errgroup"
)

const (
	InternalError = iota + 1
	BadArgument
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := cli.App{
		Name:        "reactive-fsd",
		Description: "Serves a reactive filesystem over a websocket bridge. Flags overwrite config file settings.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML or JSON config file",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "TCP address the bridge server listens on",
			},
			&cli.StringFlag{
				Name:  "realm",
				Usage: "realm name clients must present at handshake",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "store backing the filesystem: \"memory\" or \"disk\"",
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "host directory served by the disk backend",
			},
			&cli.IntFlag{
				Name:  "call-timeout-ms",
				Usage: "per-call deadline in milliseconds; 0 disables it",
			},
			&cli.StringSliceFlag{
				Name:  "ignore",
				Usage: "glob pattern for paths the filesystem hides (repeatable)",
			},
			&cli.IntFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log verbosity level between 1 (error) and 5 (trace)",
				Value:   config.InfoVerbose,
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// flagOverride collects the flags the caller actually set, so they win
// over file settings without clobbering unset ones.
func flagOverride(c *cli.Context) *config.ConfigOverride {
	o := &config.ConfigOverride{}
	if c.IsSet("listen") {
		o.ListenAddr = util.Pointer(c.String("listen"))
	}
	if c.IsSet("realm") {
		o.Realm = util.Pointer(c.String("realm"))
	}
	if c.IsSet("backend") {
		o.Backend = util.Pointer(c.String("backend"))
	}
	if c.IsSet("root") {
		o.RootDir = util.Pointer(c.String("root"))
	}
	if c.IsSet("call-timeout-ms") {
		o.CallTimeoutMS = util.Pointer(c.Int("call-timeout-ms"))
	}
	if c.IsSet("ignore") {
		o.IgnorePatterns = util.Pointer(c.StringSlice("ignore"))
	}
	if c.IsSet("verbose") {
		o.LogLvl = util.Pointer(c.Int("verbose"))
	}
	return o
}

func serve(c *cli.Context) error {
	cfg := config.NewConfig(nil)
	if path := c.String("config"); path != "" {
		override, err := config.LoadConfigOverrideFile(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("loading config %q failed: %s", path, err.Error()), BadArgument)
		}
		cfg.Merge(override)
	}
	cfg.Merge(flagOverride(c))

	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("bad config: %s", err.Error()), BadArgument)
	}

	util.InitializeLogger(cfg.LogLvl)
	logger := util.GetLogger("main")

	fs, err := buildFS(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("building filesystem: %s", err.Error()), InternalError)
	}

	srv := bridge.NewServer(fs, bridge.Options{Realm: cfg.Realm})
	httpSrv := &http.Server{
		Addr:     cfg.ListenAddr,
		Handler:  srv.Handler(),
		ErrorLog: util.NewLogLogger("http", util.WarnLevel),
	}

	g, ctx := errgroup.WithContext(c.Context)
	g.Go(func() error {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("realm", cfg.Realm).
			Str("backend", string(cfg.Backend)).
			Msg("Bridge server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		signalChan := make(chan os.Signal, 1)
		signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		select {
		case sig := <-signalChan:
			logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
		case <-ctx.Done():
		}

		// Bridge connections are closed first so the websocket handlers
		// return and Shutdown can drain them.
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return cli.Exit(fmt.Sprintf("server failed: %s", err.Error()), InternalError)
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}

// buildFS assembles the served filesystem: the configured backend wrapped
// in the deadline proxy when a call timeout is set.
func buildFS(cfg *config.Config) (reactivefs.FileSystem, error) {
	pred, err := cfg.IgnorePredicate()
	if err != nil {
		return nil, err
	}

	var fs reactivefs.FileSystem
	switch cfg.Backend {
	case config.BackendDisk:
		fs, err = diskfs.New(cfg.RootDir, diskfs.WithIgnore(pred))
		if err != nil {
			return nil, err
		}
	default:
		fs = memfs.New(memfs.WithIgnore(pred))
	}

	if cfg.CallTimeout > 0 {
		fs = timeoutfs.Wrap(fs, cfg.CallTimeout)
	}
	return fs, nil
}
