// Package raster drives the GDAL command-line utilities and models the
// datasets they describe.
package raster

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/USACE/cumulus-geoproc/internal/domain"
)

const vsigzip = "/vsigzip/"

// GDAL implements the raster engine on top of the GDAL utilities.
type GDAL struct {
	runner Runner
	logger *slog.Logger
}

// NewGDAL creates an engine that runs utilities through runner.
func NewGDAL(runner Runner, logger *slog.Logger) *GDAL {
	return &GDAL{runner: runner, logger: logger}
}

// Open describes the dataset at path with gdalinfo. A local file that does
// not exist yields an error wrapping fs.ErrNotExist.
func (g *GDAL) Open(ctx context.Context, path string) (*Dataset, error) {
	if local := localPath(path); local != "" {
		if _, err := os.Stat(local); err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}

	out, err := g.runner.Run(ctx, "gdalinfo", "-json", "-mdd", "all", path)
	if err != nil {
		return nil, fmt.Errorf("gdalinfo %s: %w", path, err)
	}
	info, err := ParseInfo(out)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", path, err)
	}
	return NewDataset(path, info, out), nil
}

// OpenCompressed opens an archived source through /vsigzip/ and falls back to
// extracting it into workDir. Uncompressed sources are opened directly.
func (g *GDAL) OpenCompressed(ctx context.Context, path, workDir string) (*Dataset, error) {
	if !domain.DetectFormat(path).Compressed() {
		return g.Open(ctx, path)
	}

	ds, err := g.Open(ctx, vsigzip+path)
	if err == nil {
		return ds, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	g.logger.Warn("open through /vsigzip/ failed, extracting archive", "source", path, "error", err)

	files, err := Decompress(path, workDir)
	if err != nil {
		return nil, err
	}
	target, ok := PrimaryFile(files)
	if !ok {
		return nil, fmt.Errorf("archive %s holds no raster", path)
	}
	return g.Open(ctx, target)
}

// Translate writes dst from src. Georeferencing assigned on src is applied.
func (g *GDAL) Translate(ctx context.Context, dst string, src *Dataset, opts ...TranslateOption) error {
	if src.Closed() {
		return ErrClosed
	}
	o := BuildTranslateOptions(opts...)
	args := append(o.args(src), src.Path(), dst)
	if _, err := g.runner.Run(ctx, "gdal_translate", args...); err != nil {
		return fmt.Errorf("translate %s: %w", dst, err)
	}
	return nil
}

// Warp reprojects src into dst.
func (g *GDAL) Warp(ctx context.Context, dst, src string, opts WarpOptions) error {
	args := append(opts.args(), src, dst)
	if _, err := g.runner.Run(ctx, "gdalwarp", args...); err != nil {
		return fmt.Errorf("warp %s: %w", dst, err)
	}
	return nil
}

// FillNoData interpolates nodata cells of src up to maxDistance pixels away
// and writes a GeoTIFF to dst.
func (g *GDAL) FillNoData(ctx context.Context, src, dst string, maxDistance int) error {
	args := []string{"-q", "-md", strconv.Itoa(maxDistance), "-of", "GTiff", src, dst}
	if _, err := g.runner.Run(ctx, "gdal_fillnodata.py", args...); err != nil {
		return fmt.Errorf("fill nodata %s: %w", src, err)
	}
	return nil
}

// Calc evaluates expr cell by cell with gdal_calc.py and writes a Float32
// GeoTIFF to dst. inputs maps the expression's variable letters to files;
// band 1 of each is read.
func (g *GDAL) Calc(ctx context.Context, dst, expr string, inputs map[string]string, noData float64) error {
	if len(inputs) == 0 {
		return errors.New("calc: no inputs")
	}
	letters := make([]string, 0, len(inputs))
	for k := range inputs {
		letters = append(letters, k)
	}
	sort.Strings(letters)

	args := []string{"--quiet", "--overwrite", "--format", "GTiff", "--type", "Float32", "--NoDataValue", formatCoord(noData)}
	for _, k := range letters {
		args = append(args, "-"+k, inputs[k], "--"+k+"_band", "1")
	}
	args = append(args, "--calc", expr, "--outfile", dst)
	if _, err := g.runner.Run(ctx, "gdal_calc.py", args...); err != nil {
		return fmt.Errorf("calc %s: %w", dst, err)
	}
	return nil
}

// Values reads band 1 of ds in row-major order.
func (g *GDAL) Values(ctx context.Context, ds *Dataset) ([]float64, error) {
	if ds.Closed() {
		return nil, ErrClosed
	}
	out, err := g.runner.Run(ctx, "gdal_translate", "-q", "-of", "XYZ", "-b", "1", ds.Path(), "/vsistdout/")
	if err != nil {
		return nil, fmt.Errorf("read values %s: %w", ds.Path(), err)
	}
	return parseXYZ(out)
}

// parseXYZ reads the value column of "x y value" lines.
func parseXYZ(data []byte) ([]float64, error) {
	var values []float64
	for i, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("xyz line %d: want 3 fields, got %d", i+1, len(fields))
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("xyz line %d: %w", i+1, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// ValidateCOG returns the validator exit code; zero means path is a valid COG.
func (g *GDAL) ValidateCOG(ctx context.Context, path string) (int, error) {
	_, err := g.runner.Run(ctx, "validate_cloud_optimized_geotiff.py", "-q", path)
	if err == nil {
		return 0, nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
		return cmdErr.ExitCode, nil
	}
	return -1, fmt.Errorf("validate %s: %w", path, err)
}

// localPath extracts the filesystem path behind a GDAL connection string, or
// returns "" when there is none to check.
func localPath(path string) string {
	switch {
	case strings.HasPrefix(path, vsigzip):
		return strings.TrimPrefix(path, vsigzip)
	case strings.HasPrefix(path, "/vsi"):
		return ""
	case strings.HasPrefix(path, "NETCDF:"):
		rest := strings.TrimPrefix(path, "NETCDF:")
		if strings.HasPrefix(rest, `"`) {
			if end := strings.Index(rest[1:], `"`); end >= 0 {
				return rest[1 : end+1]
			}
			return ""
		}
		if i := strings.LastIndex(rest, ":"); i > 0 {
			return rest[:i]
		}
		return rest
	case strings.Contains(path, ":") && !strings.HasPrefix(path, "/"):
		return ""
	}
	return path
}
