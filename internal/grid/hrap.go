// Package grid derives affine geotransforms for rasters that carry their
// georeferencing as corner metadata instead of an embedded transform.
package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// HRAPProjection is the polar stereographic definition of the Hydrologic
// Rainfall Analysis Project grid.
const HRAPProjection = "+proj=stere +lat_ts=60 +k_0=1 +long_0=-105 +R=6371200 +x_0=0.0 +y_0=0.0 +units=m"

// hrapCell is the nominal HRAP cell size in stereographic metres.
const hrapCell = 4762.5

// Metadata keys, relative to a domain prefix such as "qpe_grid".
const (
	KeyLatLonLL     = "latLonLL"
	KeyLatLonUR     = "latLonUR"
	KeyGridPointLL  = "gridPointLL"
	KeyGridPointUR  = "gridPointUR"
	KeyDomainExtent = "domainExtent"
)

// ErrMetadata is returned when corner metadata is missing or malformed.
var ErrMetadata = errors.New("grid metadata")

// Point is a coordinate pair in whichever units the caller is working in.
type Point struct {
	X, Y float64
}

// HRAPToStereo converts an HRAP grid coordinate to polar stereographic metres.
func HRAPToStereo(p Point) Point {
	return Point{
		X: p.X*hrapCell - 401*hrapCell,
		Y: p.Y*hrapCell - 1601*hrapCell,
	}
}

// ParsePair parses the "{x,y}" form used by RFC NetCDF attributes.
func ParsePair(s string) (Point, error) {
	trimmed := strings.Trim(strings.TrimSpace(s), "{}")
	parts := strings.Split(trimmed, ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("%w: %q is not a coordinate pair", ErrMetadata, s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q: %w", ErrMetadata, s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q: %w", ErrMetadata, s, err)
	}
	return Point{X: x, Y: y}, nil
}

// Corners describes a north-up grid by its lower-left and upper-right
// corners and its size in cells.
type Corners struct {
	LowerLeft  Point
	UpperRight Point
	Columns    float64
	Rows       float64
}

// GeoTransform computes the affine transform of the grid.
func (c Corners) GeoTransform() (GeoTransform, error) {
	if c.Columns <= 0 || c.Rows <= 0 {
		return GeoTransform{}, fmt.Errorf("%w: extent %vx%v must be positive", ErrMetadata, c.Columns, c.Rows)
	}
	if c.UpperRight.X <= c.LowerLeft.X || c.UpperRight.Y <= c.LowerLeft.Y {
		return GeoTransform{}, fmt.Errorf("%w: upper-right corner does not lie above and right of lower-left", ErrMetadata)
	}
	xres := (c.UpperRight.X - c.LowerLeft.X) / c.Columns
	yres := (c.UpperRight.Y - c.LowerLeft.Y) / c.Rows
	return GeoTransform{c.LowerLeft.X, xres, 0, c.UpperRight.Y, 0, -yres}, nil
}

// HRAPCorners reads <prefix>#gridPointLL, #gridPointUR and #domainExtent
// from meta and returns the corners in stereographic metres.
func HRAPCorners(meta map[string]string, prefix string) (Corners, error) {
	ll, err := pairFrom(meta, prefix, KeyGridPointLL)
	if err != nil {
		return Corners{}, err
	}
	ur, err := pairFrom(meta, prefix, KeyGridPointUR)
	if err != nil {
		return Corners{}, err
	}
	extent, err := pairFrom(meta, prefix, KeyDomainExtent)
	if err != nil {
		return Corners{}, err
	}
	return Corners{
		LowerLeft:  HRAPToStereo(ll),
		UpperRight: HRAPToStereo(ur),
		Columns:    extent.X,
		Rows:       extent.Y,
	}, nil
}

// GeographicBounds returns the lon/lat corners recorded alongside the HRAP points.
func GeographicBounds(meta map[string]string, prefix string) (ll, ur Point, err error) {
	if ll, err = pairFrom(meta, prefix, KeyLatLonLL); err != nil {
		return Point{}, Point{}, err
	}
	if ur, err = pairFrom(meta, prefix, KeyLatLonUR); err != nil {
		return Point{}, Point{}, err
	}
	return ll, ur, nil
}

// HRAPFromMetadata derives the geotransform and projection for an HRAP grid
// described by corner metadata.
func HRAPFromMetadata(meta map[string]string, prefix string) (GeoTransform, string, error) {
	c, err := HRAPCorners(meta, prefix)
	if err != nil {
		return GeoTransform{}, "", err
	}
	gt, err := c.GeoTransform()
	if err != nil {
		return GeoTransform{}, "", err
	}
	return gt, HRAPProjection, nil
}

func pairFrom(meta map[string]string, prefix, key string) (Point, error) {
	name := key
	if prefix != "" {
		name = prefix + "#" + key
	}
	v, ok := meta[name]
	if !ok {
		return Point{}, fmt.Errorf("%w: %s not found", ErrMetadata, name)
	}
	return ParsePair(v)
}
