// Command geoproc-convert runs a single conversion routine against a local
// file, for operators checking a new product or a changed source format.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/USACE/cumulus-geoproc/internal/config"
	"github.com/USACE/cumulus-geoproc/internal/exitcode"
	"github.com/USACE/cumulus-geoproc/internal/observability"
	"github.com/USACE/cumulus-geoproc/internal/plugin"
	"github.com/USACE/cumulus-geoproc/internal/raster"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(loadRegistry)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		var coded *codedError
		if errors.As(err, &coded) {
			os.Exit(coded.code)
		}
		os.Exit(exitcode.For(err))
	}
}

func loadRegistry() (Converter, error) {
	cfg := config.LoadEngine()
	logger := observability.NewLogger(cfg.Logging)

	table, err := plugin.LoadTable(cfg.PluginTable)
	if err != nil {
		return nil, &codedError{code: exitcode.ConfigError, err: fmt.Errorf("load plugin table: %w", err)}
	}
	engine := raster.NewGDAL(raster.ExecRunner{BinDir: cfg.GDALBinDir}, logger)
	r := plugin.NewRegistry(engine, logger, observability.NewMetrics())
	if err := r.RegisterTable(table); err != nil {
		return nil, &codedError{code: exitcode.ConfigError, err: err}
	}
	return r, nil
}
