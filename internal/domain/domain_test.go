package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSlug = "hrrr-total-precip"

func TestParseMessage(t *testing.T) {
	t.Run("incoming file", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"geoprocess":"incoming-file-to-cogs","geoprocess_config":{"acquirable_slug":"hrrr-total-precip","bucket":"castle-data-develop","key":"cumulus/acquirables/hrrr-total-precip/hrrr.t00z.wrfsfcf01.grib2"}}`)}
		msg, err := ParseMessage(raw)

		require.NoError(t, err)
		assert.Equal(t, GeoprocessIncomingFile, msg.Geoprocess)
		assert.Equal(t, testSlug, msg.Config.AcquirableSlug)
		assert.Equal(t, "castle-data-develop", msg.Config.Bucket)
	})

	t.Run("snodas interpolate", func(t *testing.T) {
		raw := RawEvent{Value: []byte(`{"geoprocess":"snodas-interpolate","geoprocess_config":{"bucket":"castle-data-develop","datetime":"2022-02-01T06:00:00Z","max_distance":16}}`)}
		msg, err := ParseMessage(raw)

		require.NoError(t, err)
		vt, err := msg.ValidTime()
		require.NoError(t, err)
		assert.Equal(t, time.Date(2022, 2, 1, 6, 0, 0, 0, time.UTC), vt)
		assert.Equal(t, 16, msg.Config.MaxDistance)
	})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `not-json{{{`},
		{"missing geoprocess", `{"geoprocess_config":{}}`},
		{"unknown geoprocess", `{"geoprocess":"reticulate","geoprocess_config":{}}`},
		{"missing slug", `{"geoprocess":"incoming-file-to-cogs","geoprocess_config":{"bucket":"b","key":"k"}}`},
		{"missing key", `{"geoprocess":"incoming-file-to-cogs","geoprocess_config":{"acquirable_slug":"x","bucket":"b"}}`},
		{"missing datetime", `{"geoprocess":"snodas-interpolate","geoprocess_config":{}}`},
		{"bad datetime", `{"geoprocess":"snodas-interpolate","geoprocess_config":{"datetime":"20220201"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage(RawEvent{Value: []byte(tt.body)})
			require.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestNewProduct(t *testing.T) {
	valid := time.Date(2022, 8, 18, 1, 0, 0, 0, time.UTC)
	ref := time.Date(2022, 8, 18, 0, 0, 0, 0, time.UTC)

	t.Run("versioned", func(t *testing.T) {
		p := NewProduct("nbm-co-qpf", "/tmp/a.tif", valid, &ref)
		assert.Equal(t, "2022-08-18T01:00:00+00:00", p.Datetime)
		require.NotNil(t, p.Version)
		assert.Equal(t, "2022-08-18T00:00:00+00:00", *p.Version)
		assert.NoError(t, p.Validate())
	})

	t.Run("unversioned encodes null", func(t *testing.T) {
		p := NewProduct("nerfc-qpe-01h", "/tmp/b.tif", valid, nil)
		data, err := json.Marshal(p)
		require.NoError(t, err)
		assert.JSONEq(t, `{"filetype":"nerfc-qpe-01h","file":"/tmp/b.tif","datetime":"2022-08-18T01:00:00+00:00","version":null}`, string(data))
	})

	t.Run("non-utc input is normalized", func(t *testing.T) {
		loc := time.FixedZone("CST", -6*3600)
		p := NewProduct("x", "/tmp/c.tif", valid.In(loc), nil)
		assert.Equal(t, "2022-08-18T01:00:00+00:00", p.Datetime)
	})
}

func TestProductValidate(t *testing.T) {
	bad := "not-a-time"
	tests := []struct {
		name string
		p    Product
	}{
		{"empty filetype", Product{File: "/a.tif", Datetime: "2022-08-18T01:00:00+00:00"}},
		{"empty file", Product{FileType: "x", Datetime: "2022-08-18T01:00:00+00:00"}},
		{"bad datetime", Product{FileType: "x", File: "/a.tif", Datetime: "yesterday"}},
		{"sentinel version", Product{FileType: "x", File: "/a.tif", Datetime: "2022-08-18T01:00:00+00:00", Version: &bad}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.p.Validate(), ErrInvalidProduct)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"hrrr.t00z.wrfsfcf01.grib2":           FormatGRIB2,
		"ST4.2022081801.01h.grb":              FormatGRIB,
		"QPE.2022081806.nc":                   FormatNetCDF,
		"ABRFC_QPF.nc.gz":                     FormatGzip,
		"SNODAS_unmasked_20220201.tar":        FormatTar,
		"archive.TAR.GZ":                      FormatTar,
		"PRISM_tmin_early_4kmD2_20220101.zip": FormatZip,
		"already.tif":                         FormatGeoTIFF,
		"README":                              FormatUnknown,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, DetectFormat("/tmp/"+name))
		})
	}
	assert.True(t, FormatZip.Compressed())
	assert.False(t, FormatNetCDF.Compressed())
}

func TestNewResult(t *testing.T) {
	fixed := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { SetClock(nil) })

	msg := GeoprocessMessage{
		Geoprocess: GeoprocessIncomingFile,
		Config:     GeoprocessConfig{AcquirableSlug: testSlug, Key: "k"},
	}
	r := NewResult(msg)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, fixed, r.ProcessedAt)
	assert.Equal(t, testSlug, r.AcquirableSlug)
	assert.Equal(t, "k", r.SourceKey)

	failed := r.Fail(assert.AnError)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, assert.AnError.Error(), failed.Error)
	assert.Empty(t, r.Status, "Fail must not mutate the receiver")
}
