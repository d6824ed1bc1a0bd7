package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hunght/gograb/internal/api"
	"github.com/hunght/gograb/internal/app"
	"github.com/hunght/gograb/internal/config"
	"github.com/hunght/gograb/internal/engine"
	"github.com/hunght/gograb/internal/logger"
	"github.com/hunght/gograb/internal/metadata"
	"github.com/hunght/gograb/internal/platform"
	"github.com/hunght/gograb/internal/runner"
	"github.com/hunght/gograb/internal/store"
	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the download daemon and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if err := platform.ValidateDependencies(); err != nil {
		return err
	}

	// A store that cannot be opened is fatal: everything else hangs off it
	db, err := store.New(cfg.Store.Driver, storeDSN(cfg))
	if err != nil {
		return fmt.Errorf("store error: %w", err)
	}
	defer db.Close()

	appCtx := app.NewContext(cfg, log)
	appCtx.Store = db

	rules := runner.DefaultRules().Merge(
		cfg.Classify.RestrictedPatterns,
		cfg.Classify.NetworkPatterns,
		cfg.Classify.FormatPatterns,
	)

	r := runner.New(db, log, runner.Options{
		Binary:           cfg.YTDLP.Binary,
		OutDir:           cfg.Download.OutDir,
		FilenameTemplate: cfg.Download.FilenameTemplate,
		ExtraArgs:        cfg.YTDLP.ExtraArgs,
		ProgressInterval: cfg.Download.ProgressInterval,
		IdleTimeout:      cfg.Download.IdleTimeout,
		GraceTimeout:     cfg.Download.GraceTimeout,
		Rules:            rules,
	})

	resolver := metadata.NewResolver(cfg.YTDLP.Binary)

	eng := engine.New(db, r, resolver, log, cfg.Download.MaxConcurrent, cfg.Retry)
	appCtx.Engine = eng

	// Reconcile rows stranded by an unclean shutdown before dispatching
	if err := eng.Recover(); err != nil {
		return fmt.Errorf("recovery error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineDone := make(chan struct{})
	go func() {
		eng.Start(ctx)
		close(engineDone)
	}()

	e := echo.New()
	api.RegisterRoutes(e, appCtx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}

	go func() {
		log.Info("GoGrab listening on :%s (max %d concurrent downloads)", cfg.Port, cfg.Download.MaxConcurrent)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down, draining active downloads...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Download.GraceTimeout+5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	<-engineDone
	log.Info("Shutdown complete")
	return nil
}

func storeDSN(cfg *config.Config) string {
	if cfg.Store.Driver == store.DriverPostgres {
		return cfg.Store.PostgresDSN
	}
	return cfg.Store.SQLitePath
}
