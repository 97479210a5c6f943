package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"momentum/internal/bucket"
	"momentum/internal/cli"
	"momentum/internal/config"
	"momentum/internal/dashboard"
	apphttp "momentum/internal/http"
	applog "momentum/internal/log"
	"momentum/internal/render"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	opts, err := cli.PipelineOptions(cfg, bucket.Month)
	if err != nil {
		logger.Error("Failed to resolve dashboard options", applog.FieldError, err)
		os.Exit(1)
	}
	provider, err := cli.AuthProvider(cfg)
	if err != nil {
		logger.Error("Failed to initialize auth", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg)
	services := dashboard.NewServices(be.Store, opts)

	// With a single static user the server also keeps that user's dashboard
	// rendered live, fed by store subscriptions.
	var (
		live *apphttp.Live
		ctrl *dashboard.Controller
	)
	if cfg.AuthMode == config.AuthStatic {
		snap := render.NewSnapshot()
		ctrl = dashboard.NewController(be.Store, snap, dashboard.ControllerConfig{
			Options:     opts,
			DisplayDays: cfg.ExportDisplayDays,
		})
		if err := ctrl.Start(ctx, cfg.DefaultUserID); err != nil {
			logger.Warn("Live dashboard disabled", applog.FieldError, err)
			ctrl = nil
		} else {
			live = &apphttp.Live{Owner: cfg.DefaultUserID, Snapshot: snap}
		}
	}

	go func() {
		if err := be.RunRelay(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Change relay stopped", applog.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Store:       be.Store,
		Services:    services,
		Auth:        provider,
		Logger:      logger.WithComponent(applog.ComponentHTTP),
		Live:        live,
		CacheTTL:    cfg.CacheTTL,
		CacheSize:   cfg.CacheSize,
		DisplayDays: cfg.ExportDisplayDays,
	})
	srv.MaxHeaderBytes = 1 << 16

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if ctrl != nil {
			ctrl.Stop()
		}
		cancel()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting momentum server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"auth", cfg.AuthMode,
		"classifier", opts.Table.Version(),
		"formula", opts.Formula.Name)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
