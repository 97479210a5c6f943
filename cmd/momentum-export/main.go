// Command momentum-export keeps one owner's dashboard rendered into a Google
// Sheets spreadsheet and/or an Excel workbook, redrawing on every change.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"momentum/internal/bucket"
	"momentum/internal/cli"
	"momentum/internal/config"
	"momentum/internal/dashboard"
	applog "momentum/internal/log"
	"momentum/internal/render"
	"momentum/internal/render/sheets"
	"momentum/internal/render/xlsx"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentExport)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateExport)

	period, _ := bucket.ParseGranularity(cfg.ExportPeriod)
	opts, err := cli.PipelineOptions(cfg, period)
	if err != nil {
		logger.Error("Failed to resolve dashboard options", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sinks []render.Renderer
	if cfg.GoogleSpreadsheetID != "" {
		client, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			Prefix:        sheets.YearPrefix(time.Now().In(cfg.Location())),
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets sink", applog.FieldError, err)
			os.Exit(1)
		}
		sinks = append(sinks, client)
	}
	if cfg.ExportXLSXPath != "" {
		sinks = append(sinks, xlsx.New(cfg.ExportXLSXPath))
		logger.Info("XLSX sink ready", "path", cfg.ExportXLSXPath)
	}

	be := cli.InitBackend(ctx, logger, cfg)
	owner := cfg.ExportOwner()
	ctrl := dashboard.NewController(be.Store, render.Multi(sinks...), dashboard.ControllerConfig{
		Options:     opts,
		DisplayDays: cfg.ExportDisplayDays,
	})
	if err := ctrl.Start(ctx, owner); err != nil {
		logger.Error("Failed to start dashboard export", applog.FieldError, err, applog.FieldOwner, owner)
		os.Exit(1)
	}

	go func() {
		if err := be.RunRelay(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Change relay stopped", applog.FieldError, err)
		}
	}()

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		ctrl.Stop()
		// One last synchronous render so the files match the final state.
		if err := ctrl.Refresh(ctx); err != nil {
			logger.Error("Final export render failed", applog.FieldError, err)
		}
		cancel()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Exporting dashboard",
		applog.FieldOwner, owner,
		applog.FieldPeriod, period,
		"sinks", len(sinks),
		"display_days", cfg.ExportDisplayDays)

	<-shutdownCtx.Done()
	<-done
	logger.Info("Export worker stopped")
}
