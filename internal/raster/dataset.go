package raster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/USACE/cumulus-geoproc/internal/grid"
)

// ErrClosed is returned when a closed dataset is used.
var ErrClosed = errors.New("dataset is closed")

// Dataset is an opened raster described by its gdalinfo output. Assigned
// georeferencing is held on the handle and applied to every translation made
// from it.
type Dataset struct {
	path   string
	info   Info
	raw    []byte
	gt     *grid.GeoTransform
	srs    string
	closed bool
}

// NewDataset wraps already decoded info. raw may be nil, in which case
// InfoJSON synthesizes the document from info.
func NewDataset(path string, info Info, raw []byte) *Dataset {
	return &Dataset{path: path, info: info, raw: raw}
}

// Path is the GDAL connection string the dataset was opened with.
func (d *Dataset) Path() string { return d.path }

// Info returns the decoded description.
func (d *Dataset) Info() Info { return d.info }

// Size returns the raster width and height in pixels.
func (d *Dataset) Size() (cols, rows int) { return d.info.Size[0], d.info.Size[1] }

// BandCount returns the number of raster bands.
func (d *Dataset) BandCount() int { return len(d.info.Bands) }

// Band returns band n, numbered from 1.
func (d *Dataset) Band(n int) (Band, error) {
	if d.closed {
		return Band{}, ErrClosed
	}
	for _, b := range d.info.Bands {
		if b.Number == n {
			return b, nil
		}
	}
	return Band{}, fmt.Errorf("band %d out of range 1..%d", n, len(d.info.Bands))
}

// BandMetadata returns the default metadata domain of band n.
func (d *Dataset) BandMetadata(n int) (map[string]string, error) {
	b, err := d.Band(n)
	if err != nil {
		return nil, err
	}
	return b.Metadata, nil
}

// Metadata returns a dataset metadata domain. The empty string is the default domain.
func (d *Dataset) Metadata(domain string) map[string]string {
	return d.info.Metadata[domain]
}

// MetadataItem returns one default-domain item.
func (d *Dataset) MetadataItem(key string) (string, bool) {
	v, ok := d.info.Metadata[""][key]
	return v, ok
}

// SubDatasets lists the dataset's children.
func (d *Dataset) SubDatasets() []SubDataset {
	return d.info.SubDatasets()
}

// FindSubDataset returns the first child whose description contains every
// one of parts.
func (d *Dataset) FindSubDataset(parts ...string) (SubDataset, bool) {
	for _, sub := range d.SubDatasets() {
		matched := true
		for _, p := range parts {
			if !strings.Contains(sub.Description, p) {
				matched = false
				break
			}
		}
		if matched {
			return sub, true
		}
	}
	return SubDataset{}, false
}

// SetGeoTransform assigns a transform to the handle.
func (d *Dataset) SetGeoTransform(gt grid.GeoTransform) error {
	if d.closed {
		return ErrClosed
	}
	if !gt.NorthUp() {
		return errors.New("rotated geotransforms are not supported")
	}
	d.gt = &gt
	return nil
}

// SetProjection assigns a spatial reference (PROJ string, WKT or EPSG code).
func (d *Dataset) SetProjection(srs string) error {
	if d.closed {
		return ErrClosed
	}
	d.srs = srs
	return nil
}

// GeoTransform returns the assigned transform, or the one the file carries.
func (d *Dataset) GeoTransform() (grid.GeoTransform, bool) {
	if d.gt != nil {
		return *d.gt, true
	}
	if d.info.GeoTransform != nil {
		return *d.info.GeoTransform, true
	}
	return grid.GeoTransform{}, false
}

// Projection returns the assigned spatial reference, or the file's own.
func (d *Dataset) Projection() string {
	if d.srs != "" {
		return d.srs
	}
	return d.info.Projection
}

// InfoJSON returns the gdalinfo -json document for the dataset.
func (d *Dataset) InfoJSON() ([]byte, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.raw != nil {
		return d.raw, nil
	}
	return d.info.encode()
}

// Close releases the handle. Closing twice is a no-op.
func (d *Dataset) Close() error {
	d.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (d *Dataset) Closed() bool { return d.closed }

// overrideArgs renders assigned georeferencing as gdal_translate arguments.
func (d *Dataset) overrideArgs() []string {
	var args []string
	if d.gt != nil {
		cols, rows := d.Size()
		ulx, uly, lrx, lry := d.gt.Bounds(cols, rows)
		args = append(args, "-a_ullr", formatCoord(ulx), formatCoord(uly), formatCoord(lrx), formatCoord(lry))
	}
	if d.srs != "" {
		args = append(args, "-a_srs", d.srs)
	}
	return args
}
