package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/raster"
)

// WarpSeriesProcessor reprojects every time step of a curvilinear NetCDF
// variable using its geolocation arrays. The file stem selects the filetype.
type WarpSeriesProcessor struct {
	Variable  string            `yaml:"variable"`
	Variables map[string]string `yaml:"variables"`
	Time      TimeSpec          `yaml:"time"`
	SRS       string            `yaml:"srs"`
	Resample  string            `yaml:"resample"`
	Naming    Naming            `yaml:"naming"`
}

func (p *WarpSeriesProcessor) init(string) error {
	if len(p.Variables) == 0 {
		return fmt.Errorf("variables is required")
	}
	if p.Variable == "" {
		p.Variable = "var"
	}
	p.Time = p.Time.withDefault("NETCDF_DIM_time")
	if p.Time.UnitsKey == "" {
		p.Time.UnitsKey = "time#units"
	}
	if err := p.Time.validate(); err != nil {
		return err
	}
	if p.SRS == "" {
		p.SRS = "EPSG:4326"
	}
	if p.Resample == "" {
		p.Resample = "bilinear"
	}
	if p.Naming.Style == "" {
		p.Naming.Style = "hourly"
	}
	return p.Naming.validate()
}

func (p *WarpSeriesProcessor) Process(ctx context.Context, job Job) Result {
	stem := sourceStem(job.Acquirable.Path)
	filetype, ok := p.Variables[stem]
	if !ok {
		return Failed(Absent("map variable", fmt.Errorf("no filetype for %q", stem)))
	}

	src := fmt.Sprintf("NETCDF:%q:%s", job.Acquirable.Path, p.Variable)
	ds, err := job.Engine.Open(ctx, src)
	if err != nil {
		return Failed(Classify("open variable", err))
	}
	defer ds.Close()

	type step struct {
		band  int
		valid time.Time
	}
	steps := make([]step, 0, ds.BandCount())
	for n := 1; n <= ds.BandCount(); n++ {
		meta, err := ds.BandMetadata(n)
		if err != nil {
			return Failed(Malformed("read band", err))
		}
		valid, err := p.Time.resolve(job, ds, meta)
		if err != nil {
			return Failed(Malformed("valid time", err))
		}
		steps = append(steps, step{band: n, valid: valid})
	}
	sortByTime(steps, func(s step) time.Time { return s.valid })

	products := make([]domain.Product, 0, len(steps))
	for _, s := range steps {
		out, prod := product(job, filetype, p.Naming.Name(job.Acquirable.Path, filetype, s.valid), s.valid, nil)
		opts := raster.WarpOptions{
			Format:      "COG",
			SrcSRS:      p.SRS,
			DstSRS:      p.SRS,
			ResampleAlg: p.Resample,
			Geoloc:      true,
			SrcBands:    []int{s.band},
		}
		if err := job.Engine.Warp(ctx, out, src, opts); err != nil {
			return Failed(Malformed("warp", err))
		}
		validateCOG(ctx, job, out)
		products = append(products, prod)
	}
	return Produced(products...)
}
