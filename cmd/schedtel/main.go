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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/telrun/internal/cache"
	"github.com/friendsincode/telrun/internal/config"
	"github.com/friendsincode/telrun/internal/db"
	"github.com/friendsincode/telrun/internal/logging"
	"github.com/friendsincode/telrun/internal/server"
	"github.com/friendsincode/telrun/internal/storage"
	"github.com/friendsincode/telrun/internal/telemetry"
	"github.com/friendsincode/telrun/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	tracer *telemetry.TracerProvider
)

var rootCmd = &cobra.Command{
	Use:           "schedtel",
	Short:         "Telescope night scheduler",
	Long:          "schedtel allocates an observing night to queued blocks and exports the schedule for telrun.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return loadConfig(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if tracer == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracer.Shutdown(ctx)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve persisted runs over HTTP",
	Long:  "Start the HTTP API over persisted scheduling runs, with Prometheus metrics at /metrics.",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the run database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close(database)
		logger.Info().Msg("database schema up to date")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration, logging and tracing for every command.
func loadConfig(ctx context.Context) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = logging.Setup(cfg.Environment, cfg.LogLevel, cfg.LogFormatOrDefault())
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	tracer, err = telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "schedtel",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	return nil
}

// openDatabase connects and applies migrations.
func openDatabase() (*gorm.DB, error) {
	database, err := db.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		db.Close(database)
		return nil, err
	}
	return database, nil
}

// openObjectStore returns S3 when a bucket is configured, else the output directory.
func openObjectStore(ctx context.Context) (storage.ObjectStore, error) {
	if cfg.S3Bucket == "" {
		return storage.NewFSStore(cfg.OutputDir, logger), nil
	}
	return storage.NewS3Store(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Prefix:          cfg.S3Prefix,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	}, logger)
}

// openCache returns nil when caching is off or misconfigured.
func openCache() *cache.Cache {
	if !cfg.CacheEnabled {
		return nil
	}
	rc, err := cache.New(cache.Config{
		RedisAddr:      cfg.RedisAddr,
		RedisPassword:  cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		TTL:            cfg.CacheTTL,
		DisableOnError: true,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("run cache disabled")
		return nil
	}
	return rc
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger.Info().Str("version", version.Version).Msg("schedtel server starting")

	database, err := openDatabase()
	if err != nil {
		return err
	}
	objects, err := openObjectStore(ctx)
	if err != nil {
		db.Close(database)
		return err
	}

	srv := server.New(cfg, database, objects, logger)
	srv.DeferClose(func() error { return db.Close(database) })
	if rc := openCache(); rc != nil {
		srv.SetCache(rc)
		srv.DeferClose(rc.Close)
	}
	srv.Start()

	httpServer := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info().Msg("shutting down gracefully...")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}
	logger.Info().Msg("schedtel server stopped")
	return nil
}
