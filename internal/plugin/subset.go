package plugin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/grid"
	"github.com/USACE/cumulus-geoproc/internal/raster"
)

// SubsetSpec names a NetCDF subdataset by the parts its description must contain.
type SubsetSpec struct {
	Name     string `yaml:"name"`
	DataType string `yaml:"datatype"`
}

func (s SubsetSpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("subset name is required")
	}
	return nil
}

// openSubset opens the source and the matching subdataset. The caller closes both.
func openSubset(ctx context.Context, job Job, spec SubsetSpec) (root, sub *raster.Dataset, err error) {
	root, err = openSource(ctx, job)
	if err != nil {
		return nil, nil, Classify("open source", err)
	}
	parts := []string{spec.Name}
	if spec.DataType != "" {
		parts = append(parts, spec.DataType)
	}
	found, ok := root.FindSubDataset(parts...)
	if !ok {
		root.Close()
		return nil, nil, Absent("find subdataset", fmt.Errorf("no subdataset %s (%s)", spec.Name, spec.DataType))
	}
	sub, err = job.Engine.Open(ctx, found.Name)
	if err != nil {
		root.Close()
		return nil, nil, Classify("open subdataset", err)
	}
	return root, sub, nil
}

// assignHRAP georeferences ds from the HRAP corner metadata under prefix.
func assignHRAP(job Job, ds *raster.Dataset, prefix string) error {
	gt, proj, err := grid.HRAPFromMetadata(ds.Metadata(""), prefix)
	if err != nil {
		return err
	}
	if err := ds.SetGeoTransform(gt); err != nil {
		return err
	}
	if err := ds.SetProjection(proj); err != nil {
		return err
	}
	if ll, ur, err := grid.GeographicBounds(ds.Metadata(""), prefix); err == nil {
		job.Logger.Debug("hrap georeferencing assigned", "geotransform", gt, "lonlat_ll", ll, "lonlat_ur", ur)
	} else {
		job.Logger.Debug("hrap georeferencing assigned", "geotransform", gt)
	}
	return nil
}

// SubsetSeriesProcessor writes one product per entry of a subdataset's
// validTimes list.
type SubsetSeriesProcessor struct {
	Subset         SubsetSpec   `yaml:"subset"`
	HRAP           bool         `yaml:"hrap"`
	SkipFirstSlice bool         `yaml:"skip_first_slice"`
	Version        *VersionSpec `yaml:"version"`
	Naming         Naming       `yaml:"naming"`
}

func (p *SubsetSeriesProcessor) init(string) error {
	if err := p.Subset.validate(); err != nil {
		return err
	}
	if err := p.Naming.validate(); err != nil {
		return err
	}
	return p.Version.compile()
}

func (p *SubsetSeriesProcessor) Process(ctx context.Context, job Job) Result {
	root, ds, err := openSubset(ctx, job, p.Subset)
	if err != nil {
		return Failed(err)
	}
	defer root.Close()
	defer ds.Close()

	meta := ds.Metadata("")
	if p.HRAP {
		if err := assignHRAP(job, ds, p.Subset.Name); err != nil {
			return Failed(Malformed("hrap georeference", err))
		}
	}

	version, err := p.Version.resolve(meta, job.Acquirable.Path)
	if err != nil {
		return Failed(Malformed("version time", err))
	}

	key := p.Subset.Name + "#validTimes"
	raw, ok := meta[key]
	if !ok {
		return Failed(Malformed("valid times", fmt.Errorf("metadata %s missing", key)))
	}
	times, err := parseTimeList(raw)
	if err != nil {
		return Failed(Malformed("valid times", err))
	}

	slug := job.Acquirable.Slug
	products := make([]domain.Product, 0, len(times))
	for i, t := range times {
		n := i + 1
		if p.SkipFirstSlice {
			if i == 0 {
				continue
			}
			n = i
		}
		b, err := ds.Band(n)
		if err != nil {
			return Failed(Malformed("read band", err))
		}

		out, prod := product(job, slug, p.Naming.Name(job.Acquirable.Path, slug, t), t, version)
		opts := append([]raster.TranslateOption{raster.WithBands(n)}, nodataOption(b)...)
		if err := translate(ctx, job, out, ds, opts...); err != nil {
			return Failed(Malformed("translate", err))
		}
		products = append(products, prod)
	}
	return Produced(products...)
}

// TimeSeriesProcessor writes one product per subdataset band, each band
// offset from a reference date by its NETCDF_DIM_time value.
type TimeSeriesProcessor struct {
	Subset SubsetSpec `yaml:"subset"`
	Time   TimeSpec   `yaml:"time"`
	Naming Naming     `yaml:"naming"`
}

func (p *TimeSeriesProcessor) init(string) error {
	if err := p.Subset.validate(); err != nil {
		return err
	}
	p.Time = p.Time.withDefault("NETCDF_DIM_time")
	if p.Time.UnitsKey == "" {
		p.Time.UnitsKey = "time#units"
	}
	if err := p.Time.validate(); err != nil {
		return err
	}
	return p.Naming.validate()
}

func (p *TimeSeriesProcessor) Process(ctx context.Context, job Job) Result {
	root, ds, err := openSubset(ctx, job, p.Subset)
	if err != nil {
		return Failed(err)
	}
	defer root.Close()
	defer ds.Close()

	type slice struct {
		band  raster.Band
		valid time.Time
	}
	slices := make([]slice, 0, ds.BandCount())
	for n := 1; n <= ds.BandCount(); n++ {
		b, err := ds.Band(n)
		if err != nil {
			return Failed(Malformed("read band", err))
		}
		valid, err := p.Time.resolve(job, ds, b.Metadata)
		if err != nil {
			return Failed(Malformed("valid time", err))
		}
		slices = append(slices, slice{band: b, valid: valid})
	}
	sortByTime(slices, func(s slice) time.Time { return s.valid })

	slug := job.Acquirable.Slug
	products := make([]domain.Product, 0, len(slices))
	for _, s := range slices {
		out, prod := product(job, slug, p.Naming.Name(job.Acquirable.Path, slug, s.valid), s.valid, nil)
		opts := append([]raster.TranslateOption{raster.WithBands(s.band.Number)}, nodataOption(s.band)...)
		if err := translate(ctx, job, out, ds, opts...); err != nil {
			return Failed(Malformed("translate", err))
		}
		products = append(products, prod)
	}
	return Produced(products...)
}

// HRAPBandsProcessor writes every band of an HRAP grid whose corners are
// described in the default metadata domain. Each band's validTimes pair
// closes with its valid time.
type HRAPBandsProcessor struct {
	Prefix string `yaml:"hrap_prefix"`
	Naming Naming `yaml:"naming"`
}

func (p *HRAPBandsProcessor) init(string) error {
	if p.Prefix == "" {
		return fmt.Errorf("hrap_prefix is required")
	}
	return p.Naming.validate()
}

func (p *HRAPBandsProcessor) Process(ctx context.Context, job Job) Result {
	ds, err := openSource(ctx, job)
	if err != nil {
		return Failed(Classify("open source", err))
	}
	defer ds.Close()

	if err := assignHRAP(job, ds, p.Prefix); err != nil {
		return Failed(Malformed("hrap georeference", err))
	}

	type slice struct {
		band  raster.Band
		valid time.Time
	}
	slices := make([]slice, 0, ds.BandCount())
	for n := 1; n <= ds.BandCount(); n++ {
		b, err := ds.Band(n)
		if err != nil {
			return Failed(Malformed("read band", err))
		}
		raw, ok := b.Metadata["validTimes"]
		if !ok {
			return Failed(Malformed("valid times", fmt.Errorf("band %d: metadata validTimes missing", n)))
		}
		times, err := parseTimeList(raw)
		if err != nil {
			return Failed(Malformed("valid times", fmt.Errorf("band %d: %w", n, err)))
		}
		slices = append(slices, slice{band: b, valid: times[len(times)-1]})
	}
	sortByTime(slices, func(s slice) time.Time { return s.valid })

	slug := job.Acquirable.Slug
	products := make([]domain.Product, 0, len(slices))
	for _, s := range slices {
		out, prod := product(job, slug, p.Naming.Name(job.Acquirable.Path, slug, s.valid), s.valid, nil)
		opts := append([]raster.TranslateOption{raster.WithBands(s.band.Number)}, nodataOption(s.band)...)
		if err := translate(ctx, job, out, ds, opts...); err != nil {
			return Failed(Malformed("translate", err))
		}
		products = append(products, prod)
	}
	return Produced(products...)
}

// SubsetBoundsProcessor writes a single-grid subdataset, valid at the last
// value of a companion time bounds variable. The bounds are offsets from the
// reference date in the bounds dataset's CF units item.
type SubsetBoundsProcessor struct {
	Subset SubsetSpec `yaml:"subset"`
	Bounds SubsetSpec `yaml:"bounds"`
	Time   TimeSpec   `yaml:"time"`
	Naming Naming     `yaml:"naming"`
}

func (p *SubsetBoundsProcessor) init(string) error {
	if err := p.Subset.validate(); err != nil {
		return err
	}
	if err := p.Bounds.validate(); err != nil {
		return fmt.Errorf("bounds: %w", err)
	}
	if p.Time.UnitsKey == "" {
		p.Time.UnitsKey = "time#units"
	}
	if err := p.Time.validate(); err != nil {
		return err
	}
	if p.Naming.Style == "" {
		p.Naming.Style = "source"
	}
	return p.Naming.validate()
}

func (p *SubsetBoundsProcessor) Process(ctx context.Context, job Job) Result {
	valid, err := p.validTime(ctx, job)
	if err != nil {
		return Failed(err)
	}

	root, ds, err := openSubset(ctx, job, p.Subset)
	if err != nil {
		return Failed(err)
	}
	defer root.Close()
	defer ds.Close()

	b, err := ds.Band(1)
	if err != nil {
		return Failed(Malformed("read band", err))
	}
	slug := job.Acquirable.Slug
	out, prod := product(job, slug, p.Naming.Name(job.Acquirable.Path, slug, valid), valid, nil)
	if err := translate(ctx, job, out, ds, nodataOption(b)...); err != nil {
		return Failed(Malformed("translate", err))
	}
	return Produced(prod)
}

// validTime reads the closing bound of the time bounds variable.
func (p *SubsetBoundsProcessor) validTime(ctx context.Context, job Job) (time.Time, error) {
	root, ds, err := openSubset(ctx, job, p.Bounds)
	if err != nil {
		return time.Time{}, err
	}
	defer root.Close()
	defer ds.Close()

	units, ok := ds.MetadataItem(p.Time.UnitsKey)
	if !ok {
		return time.Time{}, Malformed("time units", fmt.Errorf("metadata %s missing", p.Time.UnitsKey))
	}
	step, since, found := parseUnits(units)
	if !found {
		return time.Time{}, Malformed("time units", fmt.Errorf("no reference date in %q", units))
	}
	if p.Time.Unit != "" {
		step = unitSteps[strings.ToLower(p.Time.Unit)]
	}
	if step == 0 {
		return time.Time{}, Malformed("time units", fmt.Errorf("no unit in %q", units))
	}

	values, err := job.Engine.Values(ctx, ds)
	if err != nil {
		return time.Time{}, Malformed("read time bounds", err)
	}
	if len(values) == 0 {
		return time.Time{}, Malformed("read time bounds", fmt.Errorf("%s is empty", p.Bounds.Name))
	}
	last := values[len(values)-1]
	return since.Add(time.Duration(last * float64(step))), nil
}
