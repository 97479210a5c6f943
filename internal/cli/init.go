// Package cli holds the bootstrap shared by cmd/momentum and
// cmd/momentum-export.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"momentum/internal/auth"
	"momentum/internal/backend"
	"momentum/internal/bucket"
	"momentum/internal/classify"
	"momentum/internal/config"
	"momentum/internal/dashboard"
	applog "momentum/internal/log"
	"momentum/internal/metrics"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger at the LOG_LEVEL level and installs
// it as the slog default.
func SetupLogger(level, component string) *applog.Logger {
	logger := applog.New(applog.Config{Level: applog.ParseLevel(level), Component: component})
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and runs validate on it,
// exiting the process on failure.
func LoadAndValidateConfig(logger *applog.Logger, validate func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if err := validate(cfg); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// PipelineOptions resolves the classifier table, formula and timezone the
// dashboards compute with. When CLASSIFIER_FILE is set, the table and formula
// it defines take the place of CLASSIFIER_SCHEME and METRICS_FORMULA.
func PipelineOptions(cfg *config.Config, period bucket.Granularity) (dashboard.Options, error) {
	scheme, formula := cfg.ClassifierScheme, cfg.MetricsFormula
	if cfg.ClassifierFile != "" {
		t, err := classify.LoadFile(cfg.ClassifierFile)
		if err != nil {
			return dashboard.Options{}, err
		}
		scheme = t.Version()
		f, ok, err := metrics.LoadFile(cfg.ClassifierFile)
		if err != nil {
			return dashboard.Options{}, err
		}
		if ok {
			formula = f.Name
		}
	}

	table, err := classify.Scheme(scheme)
	if err != nil {
		return dashboard.Options{}, err
	}
	f, err := metrics.Lookup(formula)
	if err != nil {
		return dashboard.Options{}, err
	}
	return dashboard.Options{
		Table:    table,
		Formula:  f,
		Period:   period,
		Location: cfg.Location(),
	}, nil
}

// AuthProvider returns the provider selected by AUTH_MODE.
func AuthProvider(cfg *config.Config) (auth.Provider, error) {
	switch cfg.AuthMode {
	case config.AuthStatic:
		return auth.Static{UserID: cfg.DefaultUserID}, nil
	case config.AuthJWT:
		return auth.NewJWT(cfg.JWTSecret, cfg.JWTIssuer)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

// InitBackend opens the configured store and change fan-out, exiting the
// process on failure.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.Result {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend)).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	logger.Info("Backend ready", "backend", cfg.DataBackend, "origin", result.Origin, "fanout", result.Relay != nil)
	return result
}

// GracefulShutdown cancels the returned context on SIGINT or SIGTERM, then
// runs cleanup bounded by timeout. done closes once cleanup has returned or
// the timeout has passed.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}
