package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/band"
	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/raster"
)

// BandOutput selects one band of the source and names the product made from it.
// A descriptor is built from Attributes; without attributes the fixed Band is used.
type BandOutput struct {
	FileType   string            `yaml:"filetype"`
	Attributes map[string]string `yaml:"attributes"`
	Regex      bool              `yaml:"regex"`
	Resolver   string            `yaml:"resolver"`
	Band       int               `yaml:"band"`
	Naming     Naming            `yaml:"naming"`

	descriptor band.Descriptor
}

// BandProcessor extracts single bands chosen by descriptor from GRIB or
// NetCDF sources.
type BandProcessor struct {
	Outputs   []BandOutput `yaml:"outputs"`
	ValidTime TimeSpec     `yaml:"valid_time"`
	Version   *TimeSpec    `yaml:"version"`
}

func (p *BandProcessor) init(slug string) error {
	if len(p.Outputs) == 0 {
		return fmt.Errorf("no outputs")
	}
	p.ValidTime = p.ValidTime.withDefault("GRIB_VALID_TIME")
	if err := p.ValidTime.validate(); err != nil {
		return err
	}
	if p.Version != nil {
		*p.Version = p.Version.withDefault("GRIB_REF_TIME")
		if err := p.Version.validate(); err != nil {
			return err
		}
	}
	for i := range p.Outputs {
		o := &p.Outputs[i]
		if o.FileType == "" {
			o.FileType = slug
		}
		if err := o.Naming.validate(); err != nil {
			return err
		}
		switch o.Resolver {
		case "", "live", "info":
		default:
			return fmt.Errorf("output %s: unknown resolver %q", o.FileType, o.Resolver)
		}
		if len(o.Attributes) == 0 {
			if o.Band == 0 {
				o.Band = 1
			}
			continue
		}
		d, err := band.Compile(o.Attributes, o.Regex)
		if err != nil {
			return fmt.Errorf("output %s: %w", o.FileType, err)
		}
		o.descriptor = d
	}
	return nil
}

func (p *BandProcessor) Process(ctx context.Context, job Job) Result {
	ds, err := openSource(ctx, job)
	if err != nil {
		return Failed(Classify("open source", err))
	}
	defer ds.Close()

	products := make([]domain.Product, 0, len(p.Outputs))
	for _, o := range p.Outputs {
		n, err := p.resolve(ds, o, job)
		if err != nil {
			return Failed(err)
		}

		b, err := ds.Band(n)
		if err != nil {
			return Failed(Malformed("read band", err))
		}
		valid, err := p.ValidTime.resolve(job, ds, b.Metadata)
		if err != nil {
			return Failed(Malformed("valid time", err))
		}
		var version *time.Time
		if p.Version != nil {
			v, err := p.Version.resolve(job, ds, b.Metadata)
			if err != nil {
				return Failed(Malformed("reference time", err))
			}
			version = &v
		}

		out, prod := product(job, o.FileType, o.Naming.Name(job.Acquirable.Path, o.FileType, valid), valid, version)
		opts := append([]raster.TranslateOption{raster.WithBands(n)}, nodataOption(b)...)
		if err := translate(ctx, job, out, ds, opts...); err != nil {
			return Failed(Malformed("translate", err))
		}
		products = append(products, prod)
	}
	return Produced(products...)
}

func (p *BandProcessor) resolve(ds *raster.Dataset, o BandOutput, job Job) (int, error) {
	if o.descriptor == nil {
		return o.Band, nil
	}
	if o.Resolver == "info" {
		info, err := ds.InfoJSON()
		if err != nil {
			return 0, Malformed("read band info", err)
		}
		n, ok, err := band.FindBandInfo(info, o.descriptor)
		if err != nil {
			return 0, Malformed("resolve band", err)
		}
		if !ok {
			return 0, Absent("resolve band", fmt.Errorf("no band matches %s", o.descriptor))
		}
		return n, nil
	}
	n, ok := band.FindBand(ds, o.descriptor, job.Logger)
	if !ok {
		return 0, Absent("resolve band", fmt.Errorf("no band matches %s", o.descriptor))
	}
	job.Logger.Debug("band resolved", "filetype", o.FileType, "band", n, "descriptor", o.descriptor.String())
	return n, nil
}
