// Package interpolate fills nodata gaps in daily SNODAS products.
package interpolate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/raster"
	"github.com/USACE/cumulus-geoproc/internal/storage"
)

// DefaultMaxDistance is the gdal_fillnodata search distance in pixels used
// when a message does not set one.
const DefaultMaxDistance = 16

// DefaultFileTypes are the SNODAS products that get an interpolated copy.
var DefaultFileTypes = []string{
	"nohrsc-snodas-swe",
	"nohrsc-snodas-snowdepth",
	"nohrsc-snodas-snowpack-average-temperature",
	"nohrsc-snodas-snowmelt",
	"nohrsc-snodas-coldcontent",
}

// Downloader fetches one object into a local directory.
type Downloader interface {
	Download(ctx context.Context, bucket, key, dir string) (string, error)
}

// Interpolator produces <filetype>-interpolated products for one day.
type Interpolator struct {
	downloader Downloader
	engine     raster.Engine
	baseKey    string
	fileTypes  []string
	logger     *slog.Logger
}

// New creates an Interpolator. Empty fileTypes selects DefaultFileTypes.
func New(downloader Downloader, engine raster.Engine, baseKey string, fileTypes []string, logger *slog.Logger) *Interpolator {
	if len(fileTypes) == 0 {
		fileTypes = DefaultFileTypes
	}
	return &Interpolator{
		downloader: downloader,
		engine:     engine,
		baseKey:    baseKey,
		fileTypes:  fileTypes,
		logger:     logger,
	}
}

// Interpolate downloads each product valid at t, fills its gaps within
// maxDistance pixels and writes a COG to dst. Products that are missing or
// fail to convert are logged and skipped.
func (in *Interpolator) Interpolate(ctx context.Context, bucket string, t time.Time, maxDistance int, dst string) ([]domain.Product, error) {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	t = t.UTC()
	day := t.Format("20060102")
	products := make([]domain.Product, 0, len(in.fileTypes))
	for _, ft := range in.fileTypes {
		if err := ctx.Err(); err != nil {
			return products, err
		}
		key := storage.ProductKey{Base: in.baseKey, FileType: ft, File: ft + "." + day + ".tif"}.Key()
		logger := in.logger.With("filetype", ft, "key", key)

		out, err := in.one(ctx, bucket, key, ft, day, maxDistance, dst)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Info("snodas product not available", "error", err)
			} else {
				logger.Warn("snodas interpolation failed", "error_type", fmt.Sprintf("%T", err), "error", err)
			}
			continue
		}
		products = append(products, domain.NewProduct(ft+"-interpolated", out, t, nil))
		logger.Debug("snodas product interpolated", "file", filepath.Base(out))
	}
	return products, nil
}

func (in *Interpolator) one(ctx context.Context, bucket, key, ft, day string, maxDistance int, dst string) (string, error) {
	src, err := in.downloader.Download(ctx, bucket, key, dst)
	if err != nil {
		return "", err
	}
	defer os.Remove(src)

	filled := filepath.Join(dst, ft+"-filled."+day+".tif")
	if err := in.engine.FillNoData(ctx, src, filled, maxDistance); err != nil {
		return "", fmt.Errorf("fill nodata: %w", err)
	}
	defer os.Remove(filled)

	ds, err := in.engine.Open(ctx, filled)
	if err != nil {
		return "", fmt.Errorf("open filled: %w", err)
	}
	defer ds.Close()

	out := filepath.Join(dst, ft+"-interpolated."+day+".tif")
	var opts []raster.TranslateOption
	if b, err := ds.Band(1); err == nil && b.NoData != nil {
		opts = append(opts, raster.WithNoData(*b.NoData))
	}
	if err := in.engine.Translate(ctx, out, ds, opts...); err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}

	if code, err := in.engine.ValidateCOG(ctx, out); err != nil || code != 0 {
		in.logger.Warn("output is not a valid cog", "file", filepath.Base(out), "exit_code", code, "error", err)
	}
	return out, nil
}
