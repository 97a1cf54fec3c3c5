package grid

// GeoTransform is the six-term affine transform from pixel/line to
// georeferenced coordinates:
//
//	x = gt[0] + px*gt[1] + py*gt[2]
//	y = gt[3] + px*gt[4] + py*gt[5]
type GeoTransform [6]float64

// Apply maps a pixel/line position to georeferenced coordinates.
func (gt GeoTransform) Apply(px, py float64) Point {
	return Point{
		X: gt[0] + px*gt[1] + py*gt[2],
		Y: gt[3] + px*gt[4] + py*gt[5],
	}
}

// Bounds returns the upper-left and lower-right corners of a cols x rows raster.
// The order matches gdal_translate -a_ullr.
func (gt GeoTransform) Bounds(cols, rows int) (ulx, uly, lrx, lry float64) {
	ul := gt.Apply(0, 0)
	lr := gt.Apply(float64(cols), float64(rows))
	return ul.X, ul.Y, lr.X, lr.Y
}

// FromBounds rebuilds a rotation-free transform from corner bounds.
func FromBounds(ulx, uly, lrx, lry float64, cols, rows int) GeoTransform {
	return GeoTransform{
		ulx, (lrx - ulx) / float64(cols), 0,
		uly, 0, (lry - uly) / float64(rows),
	}
}

// NorthUp reports whether the transform has no rotation terms.
func (gt GeoTransform) NorthUp() bool {
	return gt[2] == 0 && gt[4] == 0
}
