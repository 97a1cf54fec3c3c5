package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/USACE/cumulus-geoproc/internal/adapter/catalog"
	httpadapter "github.com/USACE/cumulus-geoproc/internal/adapter/http"
	kafkaadapter "github.com/USACE/cumulus-geoproc/internal/adapter/kafka"
	"github.com/USACE/cumulus-geoproc/internal/config"
	"github.com/USACE/cumulus-geoproc/internal/exitcode"
	"github.com/USACE/cumulus-geoproc/internal/interpolate"
	"github.com/USACE/cumulus-geoproc/internal/observability"
	"github.com/USACE/cumulus-geoproc/internal/pipeline"
	"github.com/USACE/cumulus-geoproc/internal/plugin"
	"github.com/USACE/cumulus-geoproc/internal/publish"
	"github.com/USACE/cumulus-geoproc/internal/raster"
	"github.com/USACE/cumulus-geoproc/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitcode.ConfigError
	}

	logger := observability.NewLogger(cfg.Logging)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := raster.NewGDAL(raster.ExecRunner{BinDir: cfg.GDALBinDir}, logger)

	registry := plugin.NewRegistry(engine, logger, metrics)
	table, err := plugin.LoadTable(cfg.PluginTable)
	if err != nil {
		logger.Error("failed to load plugin table", "path", cfg.PluginTable, "error", err)
		return exitcode.ConfigError
	}
	if err := registry.RegisterTable(table); err != nil {
		logger.Error("failed to register plugins", "error", err)
		return exitcode.ConfigError
	}
	logger.Info("plugins registered", "count", len(registry.Slugs()))

	store, err := storage.NewMinIOClient(ctx, storage.MinIOConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
	})
	if err != nil {
		logger.Error("failed to connect to object storage", "endpoint", cfg.MinIOEndpoint, "error", err)
		return exitcode.StorageError
	}

	notifier, err := catalog.NewClient(catalog.Config{
		BaseURL: cfg.CumulusAPIURL,
		AppKey:  cfg.ApplicationKey,
		Timeout: cfg.NotifyTimeout,
		HTTP2:   cfg.CumulusAPIHTTP2,
	}, logger)
	if err != nil {
		logger.Error("invalid catalog endpoint", "url", cfg.CumulusAPIURL, "error", err)
		return exitcode.ConfigError
	}

	publisher := publish.NewPublisher(store, notifier, cfg.ProductsBaseKey, cfg.NotifyTimeout, logger, metrics)
	interpolator := interpolate.New(store, engine, cfg.ProductsBaseKey, cfg.SnodasProducts, logger)
	transformer := pipeline.NewTransformer(store, registry, interpolator, publisher, cfg.WorkDir, logger)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize, cfg.Workers)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, registry, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	code := exitcode.Success
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "error", err)
		code = exitcode.NetworkError
	}

	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
	return code
}
