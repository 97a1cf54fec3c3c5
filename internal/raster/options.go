package raster

import (
	"strconv"
)

// TranslateOptions controls a gdal_translate call.
type TranslateOptions struct {
	Format          string
	Bands           []int
	CreationOptions []string
	NoData          *float64
	OutputBounds    *[4]float64 // ulx, uly, lrx, lry
	OutputSRS       string
}

// TranslateOption overrides one key of the baseline options.
type TranslateOption func(*TranslateOptions)

// DefaultTranslateOptions is the baseline for every product: a COG holding
// band 1 with bilinear overviews rebuilt from scratch.
func DefaultTranslateOptions() TranslateOptions {
	return TranslateOptions{
		Format: "COG",
		Bands:  []int{1},
		CreationOptions: []string{
			"RESAMPLING=BILINEAR",
			"OVERVIEWS=IGNORE_EXISTING",
			"OVERVIEW_RESAMPLING=BILINEAR",
		},
	}
}

// WithBands replaces the band list.
func WithBands(bands ...int) TranslateOption {
	return func(o *TranslateOptions) { o.Bands = bands }
}

// WithNoData sets the output nodata value.
func WithNoData(v float64) TranslateOption {
	return func(o *TranslateOptions) { o.NoData = &v }
}

// WithFormat replaces the output driver.
func WithFormat(f string) TranslateOption {
	return func(o *TranslateOptions) { o.Format = f }
}

// WithCreationOptions replaces the creation options.
func WithCreationOptions(opts ...string) TranslateOption {
	return func(o *TranslateOptions) { o.CreationOptions = opts }
}

// WithOutputBounds assigns output corner coordinates.
func WithOutputBounds(ulx, uly, lrx, lry float64) TranslateOption {
	return func(o *TranslateOptions) { o.OutputBounds = &[4]float64{ulx, uly, lrx, lry} }
}

// WithOutputSRS assigns the output spatial reference.
func WithOutputSRS(srs string) TranslateOption {
	return func(o *TranslateOptions) { o.OutputSRS = srs }
}

// BuildTranslateOptions applies opts over the baseline.
func BuildTranslateOptions(opts ...TranslateOption) TranslateOptions {
	o := DefaultTranslateOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// args renders the options. Explicit bounds or SRS take precedence over
// georeferencing assigned on the dataset.
func (o TranslateOptions) args(ds *Dataset) []string {
	args := []string{"-of", o.Format}
	for _, b := range o.Bands {
		args = append(args, "-b", strconv.Itoa(b))
	}
	for _, co := range o.CreationOptions {
		args = append(args, "-co", co)
	}
	if o.NoData != nil {
		args = append(args, "-a_nodata", formatNoData(*o.NoData))
	}

	override := ds.overrideArgs()
	if o.OutputBounds != nil {
		b := o.OutputBounds
		args = append(args, "-a_ullr", formatCoord(b[0]), formatCoord(b[1]), formatCoord(b[2]), formatCoord(b[3]))
		override = dropFlag(override, "-a_ullr", 4)
	}
	if o.OutputSRS != "" {
		args = append(args, "-a_srs", o.OutputSRS)
		override = dropFlag(override, "-a_srs", 1)
	}
	return append(args, override...)
}

// WarpOptions controls a gdalwarp call.
type WarpOptions struct {
	Format          string
	SrcSRS          string
	DstSRS          string
	ResampleAlg     string
	Geoloc          bool
	SrcBands        []int
	CreationOptions []string
}

func (o WarpOptions) args() []string {
	format := o.Format
	if format == "" {
		format = "COG"
	}
	args := []string{"-overwrite", "-of", format}
	if o.SrcSRS != "" {
		args = append(args, "-s_srs", o.SrcSRS)
	}
	if o.DstSRS != "" {
		args = append(args, "-t_srs", o.DstSRS)
	}
	if o.ResampleAlg != "" {
		args = append(args, "-r", o.ResampleAlg)
	}
	if o.Geoloc {
		args = append(args, "-geoloc")
	}
	for _, b := range o.SrcBands {
		args = append(args, "-srcband", strconv.Itoa(b))
	}
	for _, co := range o.CreationOptions {
		args = append(args, "-co", co)
	}
	return args
}

func dropFlag(args []string, flag string, arity int) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == flag {
			i += arity
			continue
		}
		out = append(out, args[i])
	}
	return out
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatNoData(f float64) string {
	s := formatFloat(f)
	if len(s) > 1 && s[0] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
