package raster

import "context"

// Engine is the raster engine conversion routines are written against.
type Engine interface {
	Open(ctx context.Context, path string) (*Dataset, error)
	OpenCompressed(ctx context.Context, path, workDir string) (*Dataset, error)
	Translate(ctx context.Context, dst string, src *Dataset, opts ...TranslateOption) error
	Warp(ctx context.Context, dst, src string, opts WarpOptions) error
	FillNoData(ctx context.Context, src, dst string, maxDistance int) error
	Calc(ctx context.Context, dst, expr string, inputs map[string]string, noData float64) error
	Values(ctx context.Context, ds *Dataset) ([]float64, error)
	ValidateCOG(ctx context.Context, path string) (int, error)
}

var _ Engine = (*GDAL)(nil)
