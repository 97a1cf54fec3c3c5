package domain

import (
	"path/filepath"
	"strings"
)

// Format is the container type of an acquirable file, inferred from its extension.
type Format string

const (
	FormatGRIB    Format = "grib"
	FormatGRIB2   Format = "grib2"
	FormatNetCDF  Format = "netcdf"
	FormatTar     Format = "tar"
	FormatGzip    Format = "gzip"
	FormatZip     Format = "zip"
	FormatGeoTIFF Format = "tif"
	FormatUnknown Format = "unknown"
)

// Acquirable references one downloaded input file and the slug of the source
// that produced it.
type Acquirable struct {
	Slug   string
	Path   string
	Format Format
}

// NewAcquirable builds an Acquirable and infers its format.
func NewAcquirable(slug, path string) Acquirable {
	return Acquirable{Slug: slug, Path: path, Format: DetectFormat(path)}
}

// DetectFormat maps a file name to a Format. Archive suffixes win over the
// inner extension, so "x.grib2.gz" is gzip and "x.tar.gz" is tar.
func DetectFormat(path string) Format {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"), strings.HasSuffix(name, ".tar"):
		return FormatTar
	case strings.HasSuffix(name, ".gz"):
		return FormatGzip
	case strings.HasSuffix(name, ".zip"):
		return FormatZip
	}

	switch filepath.Ext(name) {
	case ".grib", ".grb":
		return FormatGRIB
	case ".grib2", ".grb2":
		return FormatGRIB2
	case ".nc", ".nc4":
		return FormatNetCDF
	case ".tif", ".tiff":
		return FormatGeoTIFF
	default:
		return FormatUnknown
	}
}

// Compressed reports whether the file must be opened through an archive layer.
func (f Format) Compressed() bool {
	return f == FormatGzip || f == FormatTar || f == FormatZip
}
