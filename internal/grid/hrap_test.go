package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cnrfcMeta() map[string]string {
	return map[string]string{
		"qpe_grid#latLonLL":     "{-123.6735229012065,29.94159256439344}",
		"qpe_grid#latLonUR":     "{-112.0001,43.0194}",
		"qpe_grid#gridPointLL":  "{1,1}",
		"qpe_grid#gridPointUR":  "{3,4}",
		"qpe_grid#domainExtent": "{2,3}",
	}
}

func TestHRAPToStereo(t *testing.T) {
	p := HRAPToStereo(Point{X: 401, Y: 1601})
	assert.Equal(t, Point{}, p, "HRAP pole offset maps to the stereographic origin")

	p = HRAPToStereo(Point{X: 402, Y: 1603})
	assert.InDelta(t, 4762.5, p.X, 1e-9)
	assert.InDelta(t, 9525.0, p.Y, 1e-9)
}

func TestParsePair(t *testing.T) {
	p, err := ParsePair("{-123.6735229012065,29.94159256439344}")
	require.NoError(t, err)
	assert.InDelta(t, -123.6735229012065, p.X, 1e-12)
	assert.InDelta(t, 29.94159256439344, p.Y, 1e-12)

	p, err = ParsePair(" { 4 , 5 } ")
	require.NoError(t, err)
	assert.Equal(t, Point{X: 4, Y: 5}, p)

	for _, bad := range []string{"", "{1}", "{1,2,3}", "{a,b}", "{1,b}"} {
		_, err := ParsePair(bad)
		assert.ErrorIs(t, err, ErrMetadata, bad)
	}
}

func TestHRAPFromMetadata(t *testing.T) {
	gt, proj, err := HRAPFromMetadata(cnrfcMeta(), "qpe_grid")
	require.NoError(t, err)

	assert.Equal(t, HRAPProjection, proj)
	assert.InDelta(t, -400*4762.5, gt[0], 1e-6)
	assert.InDelta(t, 4762.5, gt[1], 1e-9)
	assert.Zero(t, gt[2])
	assert.InDelta(t, -1597*4762.5, gt[3], 1e-6)
	assert.Zero(t, gt[4])
	assert.InDelta(t, -4762.5, gt[5], 1e-9)
	assert.True(t, gt.NorthUp())
}

func TestGeoTransformCornersRoundTrip(t *testing.T) {
	meta := cnrfcMeta()
	c, err := HRAPCorners(meta, "qpe_grid")
	require.NoError(t, err)
	gt, err := c.GeoTransform()
	require.NoError(t, err)

	// The lower-left pixel corner is at (0, rows) and the upper-right at (cols, 0).
	ll := gt.Apply(0, c.Rows)
	ur := gt.Apply(c.Columns, 0)
	assert.InDelta(t, c.LowerLeft.X, ll.X, 1e-6)
	assert.InDelta(t, c.LowerLeft.Y, ll.Y, 1e-6)
	assert.InDelta(t, c.UpperRight.X, ur.X, 1e-6)
	assert.InDelta(t, c.UpperRight.Y, ur.Y, 1e-6)

	ulx, uly, lrx, lry := gt.Bounds(int(c.Columns), int(c.Rows))
	back := FromBounds(ulx, uly, lrx, lry, int(c.Columns), int(c.Rows))
	for i := range gt {
		assert.InDelta(t, gt[i], back[i], 1e-6, "term %d", i)
	}
}

func TestHRAPFromMetadata_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		meta := cnrfcMeta()
		delete(meta, "qpe_grid#gridPointUR")
		_, _, err := HRAPFromMetadata(meta, "qpe_grid")
		require.ErrorIs(t, err, ErrMetadata)
		assert.Contains(t, err.Error(), "qpe_grid#gridPointUR")
	})

	t.Run("wrong prefix", func(t *testing.T) {
		_, _, err := HRAPFromMetadata(cnrfcMeta(), "qpf_grid")
		assert.ErrorIs(t, err, ErrMetadata)
	})

	t.Run("zero extent", func(t *testing.T) {
		meta := cnrfcMeta()
		meta["qpe_grid#domainExtent"] = "{0,3}"
		_, _, err := HRAPFromMetadata(meta, "qpe_grid")
		assert.ErrorIs(t, err, ErrMetadata)
	})

	t.Run("inverted corners", func(t *testing.T) {
		meta := cnrfcMeta()
		meta["qpe_grid#gridPointLL"], meta["qpe_grid#gridPointUR"] = meta["qpe_grid#gridPointUR"], meta["qpe_grid#gridPointLL"]
		_, _, err := HRAPFromMetadata(meta, "qpe_grid")
		assert.ErrorIs(t, err, ErrMetadata)
	})
}

func TestGeographicBounds(t *testing.T) {
	ll, ur, err := GeographicBounds(cnrfcMeta(), "qpe_grid")
	require.NoError(t, err)
	assert.InDelta(t, -123.6735, ll.X, 1e-4)
	assert.InDelta(t, 43.0194, ur.Y, 1e-4)
}

func TestHRAPCorners_NoPrefix(t *testing.T) {
	meta := map[string]string{
		"gridPointLL":  "{1,1}",
		"gridPointUR":  "{3,4}",
		"domainExtent": "{2,3}",
	}
	c, err := HRAPCorners(meta, "")
	require.NoError(t, err)
	assert.Equal(t, 2.0, c.Columns)
	assert.Equal(t, 3.0, c.Rows)
}
