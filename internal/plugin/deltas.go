package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/raster"
)

// ForecastDeltasProcessor walks the bands of a forecast file and keeps those
// whose step from the previous band's forecast offset maps to a filetype.
// Bands that cannot be read are logged and skipped.
type ForecastDeltasProcessor struct {
	Filetypes map[int]string `yaml:"filetypes"`
	OffsetKey string         `yaml:"offset_key"`
	ValidTime TimeSpec       `yaml:"valid_time"`
	Version   TimeSpec       `yaml:"version"`
	Naming    Naming         `yaml:"naming"`
}

func (p *ForecastDeltasProcessor) init(string) error {
	if len(p.Filetypes) == 0 {
		return fmt.Errorf("filetypes is required")
	}
	if p.OffsetKey == "" {
		p.OffsetKey = "GRIB_FORECAST_SECONDS"
	}
	p.ValidTime = p.ValidTime.withDefault("GRIB_VALID_TIME")
	p.Version = p.Version.withDefault("GRIB_REF_TIME")
	if p.Naming.Style == "" {
		p.Naming.Style = "suffix"
	}
	return p.Naming.validate()
}

func (p *ForecastDeltasProcessor) Process(ctx context.Context, job Job) Result {
	ds, err := openSource(ctx, job)
	if err != nil {
		return Failed(Classify("open source", err))
	}
	defer ds.Close()

	var previous time.Duration
	products := make([]domain.Product, 0, ds.BandCount())
	for n := 1; n <= ds.BandCount(); n++ {
		offset, prod, ok := p.band(ctx, job, ds, n, previous)
		previous = offset
		if ok {
			products = append(products, prod)
		}
	}
	sortByTime(products, func(prod domain.Product) time.Time {
		t, _ := prod.ValidTime()
		return t
	})
	return Produced(products...)
}

// band converts band n when its step is mapped and returns the band's forecast
// offset for the next step computation. A failing band keeps the previous offset.
func (p *ForecastDeltasProcessor) band(ctx context.Context, job Job, ds *raster.Dataset, n int, previous time.Duration) (time.Duration, domain.Product, bool) {
	skip := func(msg string, err error) (time.Duration, domain.Product, bool) {
		job.Logger.Warn(msg, "band", n, "error", err)
		return previous, domain.Product{}, false
	}

	b, err := ds.Band(n)
	if err != nil {
		return skip("read band failed, skipping", err)
	}
	raw, ok := b.Metadata[p.OffsetKey]
	if !ok {
		return skip("forecast offset missing, skipping band", fmt.Errorf("metadata %s missing", p.OffsetKey))
	}
	secs, err := parseLeadingNumber(raw)
	if err != nil {
		return skip("forecast offset unreadable, skipping band", err)
	}
	offset := time.Duration(secs) * time.Second

	filetype, mapped := p.Filetypes[int((offset - previous).Seconds())]
	if !mapped {
		return offset, domain.Product{}, false
	}

	valid, err := p.ValidTime.resolve(job, ds, b.Metadata)
	if err != nil {
		return skip("valid time unreadable, skipping band", err)
	}
	version, err := p.Version.resolve(job, ds, b.Metadata)
	if err != nil {
		return skip("reference time unreadable, skipping band", err)
	}

	out, prod := product(job, filetype, p.Naming.Name(job.Acquirable.Path, filetype, valid), valid, &version)
	if err := translate(ctx, job, out, ds, raster.WithBands(n)); err != nil {
		return skip("translate failed, skipping band", err)
	}
	return offset, prod, true
}
