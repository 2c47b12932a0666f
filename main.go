package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jmaka/jmakabackend/config"
	"github.com/jmaka/jmakabackend/database"
	"github.com/jmaka/jmakabackend/handlers"
	"github.com/jmaka/jmakabackend/media"
	"github.com/jmaka/jmakabackend/models"
	"github.com/jmaka/jmakabackend/realtime"
	"github.com/jmaka/jmakabackend/repository"
	"github.com/jmaka/jmakabackend/services"
	"github.com/jmaka/jmakabackend/workers"
)

// app holds everything both commands need.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *media.LocalStorage
	uploads    *repository.UploadRepository
	composites *repository.CompositeRepository
	cleaner    *services.Cleaner
	sweeper    *services.Sweeper
}

func setup() (*app, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", slog.String("reason", err.Error()))
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}
	store, err := media.NewLocalStorage(cfg.StorageRoot, media.DefaultSubDirs(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize content store: %w", err)
	}
	for _, assetType := range media.AllAssetTypes {
		if _, err := store.EnsureDir(assetType); err != nil {
			return nil, err
		}
	}

	uploads := repository.NewUploadRepository(database.NewCollection[models.UploadRecord](
		filepath.Join(cfg.DataDir, config.HistoryFileName), database.NewLock("history"), logger))
	composites := repository.NewCompositeRepository(database.NewCollection[models.CompositeRecord](
		filepath.Join(cfg.DataDir, config.CompositesFileName), database.NewLock("composites"), logger))

	cleaner := services.NewCleaner(store, composites, cfg.ResizeWidths, logger)
	sweeper := services.NewSweeper(uploads, composites, store, cleaner, cfg.Retention, config.LegacyWidthMigrations, logger)

	logger.Info("configuration loaded",
		slog.String("storageRoot", cfg.StorageRoot),
		slog.String("basePath", cfg.BasePath),
		slog.Duration("retention", cfg.Retention),
		slog.Any("resizeWidths", cfg.ResizeWidths),
	)
	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		uploads:    uploads,
		composites: composites,
		cleaner:    cleaner,
		sweeper:    sweeper,
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var allowOrigin func(string) bool
	if len(a.cfg.CORSOrigins) > 0 {
		allowOrigin = func(origin string) bool { return slices.Contains(a.cfg.CORSOrigins, origin) }
	}
	hub := realtime.NewHub(a.logger, allowOrigin)
	go hub.Run(ctx)

	sweepWorker := workers.NewSweepWorker(a.sweeper, a.cfg.SweepInterval, a.logger)
	sweepWorker.Start(ctx)
	sweepWorker.Trigger()
	defer func() {
		stop()
		sweepWorker.Wait()
	}()

	processor := media.NewProcessor(a.store, a.logger)
	uploadHandler := &handlers.UploadHandler{
		Uploads: services.NewUploadService(a.cfg, a.uploads, a.store, processor, a.sweeper, a.cleaner, hub, a.logger),
		Cfg:     a.cfg,
		Logger:  a.logger,
	}
	compositeHandler := &handlers.CompositeHandler{
		Composites: services.NewCompositeService(a.cfg, a.composites, a.store, processor, a.sweeper, a.cleaner, hub, a.logger),
		Logger:     a.logger,
	}

	server := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           handlers.NewRouter(a.cfg, uploadHandler, compositeHandler, &handlers.HealthHandler{Sweeps: sweepWorker}, hub, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", slog.String("addr", server.Addr), slog.String("basePath", a.cfg.BasePath))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	res, err := a.sweeper.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	a.logger.Info("sweep finished",
		slog.Int("migratedRenditions", res.MigratedRenditions),
		slog.Int("expiredUploads", res.ExpiredUploads),
		slog.Int("expiredComposites", res.ExpiredComposites),
		slog.Duration("duration", res.Duration),
	)
	return nil
}

func main() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	}
	rootCmd := &cobra.Command{
		Use:           "jmaka",
		Short:         "Image staging service for uploads, crops and composites",
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd, &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention and migration sweep, then exit",
		RunE:  runSweep,
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
