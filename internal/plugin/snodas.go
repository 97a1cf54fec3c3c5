package plugin

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/raster"
)

// SNODASProcessor converts the daily NOHRSC SNODAS tarball. The tar holds
// gzipped flat binary grids, each described by a .txt metadata file whose
// name carries the product code at offset 8.
type SNODASProcessor struct {
	Products    map[string]string `yaml:"products"`
	ColdContent *ColdContentSpec  `yaml:"cold_content"`
	Snowmelt    *SnowmeltSpec     `yaml:"snowmelt"`
	Naming      Naming            `yaml:"naming"`
}

// ColdContentSpec derives snowpack cold content from SWE and snowpack
// average temperature: swe * 2114 * (temp - 273.15) / 333000.
type ColdContentSpec struct {
	FileType    string `yaml:"filetype"`
	SWE         string `yaml:"swe"`
	Temperature string `yaml:"temperature"`
}

// SnowmeltSpec rescales the raw snowmelt grid. The raw grid is never emitted.
type SnowmeltSpec struct {
	FileType string  `yaml:"filetype"`
	Code     string  `yaml:"code"`
	Scale    float64 `yaml:"scale"`
}

func (p *SNODASProcessor) init(string) error {
	if len(p.Products) == 0 {
		return fmt.Errorf("at least one product code is required")
	}
	for code, ft := range p.Products {
		if len(code) != 4 || ft == "" {
			return fmt.Errorf("product %q -> %q: want a four digit code and a filetype", code, ft)
		}
	}
	if c := p.ColdContent; c != nil && (c.FileType == "" || c.SWE == "" || c.Temperature == "") {
		return fmt.Errorf("cold_content needs filetype, swe and temperature")
	}
	if m := p.Snowmelt; m != nil && (m.FileType == "" || m.Code == "" || m.Scale == 0) {
		return fmt.Errorf("snowmelt needs filetype, code and scale")
	}
	if p.Naming.Style == "" {
		p.Naming.Style = "daily"
	}
	return p.Naming.validate()
}

// codes lists every product code the processor reads.
func (p *SNODASProcessor) codes() map[string]bool {
	want := make(map[string]bool, len(p.Products)+3)
	for code := range p.Products {
		want[code] = true
	}
	if c := p.ColdContent; c != nil {
		want[c.SWE] = true
		want[c.Temperature] = true
	}
	if m := p.Snowmelt; m != nil {
		want[m.Code] = true
	}
	return want
}

// snodasGrid is one translated grid and the time it is valid for.
type snodasGrid struct {
	file   string
	valid  time.Time
	noData float64
}

func (p *SNODASProcessor) Process(ctx context.Context, job Job) Result {
	dir := filepath.Join(job.Dst, sourceStem(job.Acquirable.Path))
	defer os.RemoveAll(dir)
	files, err := raster.DecompressAll(job.Acquirable.Path, dir)
	if err != nil {
		return Failed(Classify("decompress", err))
	}

	want := p.codes()
	byName := make(map[string]string, len(files))
	var metas []string
	for _, f := range files {
		name := filepath.Base(f)
		byName[name] = f
		if strings.HasSuffix(name, ".txt") && len(name) >= 12 && want[name[8:12]] {
			metas = append(metas, f)
		}
	}
	sort.Strings(metas)
	if len(metas) == 0 {
		return Failed(Absent("find metadata", fmt.Errorf("no metadata for codes %v", sortedKeys(want))))
	}

	grids := make(map[string]snodasGrid, len(metas))
	var products []domain.Product
	for _, m := range metas {
		code := filepath.Base(m)[8:12]
		meta, err := parseSNODASMeta(m)
		if err != nil {
			return Failed(Malformed("read metadata", err))
		}
		data, ok := byName[filepath.Base(meta.DataFile)]
		if !ok {
			return Failed(Malformed("find grid", fmt.Errorf("code %s: %s not in archive", code, meta.DataFile)))
		}
		if err := writeENVIHeader(data, meta.Columns, meta.Rows); err != nil {
			return Failed(Malformed("write header", err))
		}

		ds, err := job.Engine.Open(ctx, data)
		if err != nil {
			return Failed(Classify("open grid", err))
		}

		// Codes used only as inputs to derived grids stay in the scratch directory.
		out := filepath.Join(dir, code+".tif")
		ft, emit := p.Products[code]
		if emit {
			out = filepath.Join(job.Dst, p.Naming.Name(job.Acquirable.Path, ft, meta.Valid))
		}
		err = translate(ctx, job, out, ds,
			raster.WithOutputSRS(meta.SRS()),
			raster.WithNoData(meta.NoData),
			raster.WithOutputBounds(meta.MinX, meta.MaxY, meta.MaxX, meta.MinY),
		)
		ds.Close()
		if err != nil {
			return Failed(Malformed("translate", err))
		}
		grids[code] = snodasGrid{file: out, valid: meta.Valid, noData: meta.NoData}
		if emit {
			products = append(products, domain.NewProduct(ft, out, meta.Valid, nil))
		}
		job.Logger.Debug("snodas grid translated", "code", code, "file", filepath.Base(out))
	}

	if c := p.ColdContent; c != nil {
		swe, okS := grids[c.SWE]
		temp, okT := grids[c.Temperature]
		if okS && okT {
			expr := "A * 2114 * (B - 273.15) / 333000"
			prod, err := p.derive(ctx, job, dir, c.FileType, expr, map[string]string{"A": swe.file, "B": temp.file}, swe)
			if err != nil {
				job.Logger.Warn("cold content not derived", "error", err)
			} else {
				products = append(products, prod)
			}
		} else {
			job.Logger.Info("cold content inputs missing", "swe", okS, "temperature", okT)
		}
	}

	if m := p.Snowmelt; m != nil {
		if raw, ok := grids[m.Code]; ok {
			expr := "A * " + strconv.FormatFloat(m.Scale, 'g', -1, 64)
			prod, err := p.derive(ctx, job, dir, m.FileType, expr, map[string]string{"A": raw.file}, raw)
			if err != nil {
				job.Logger.Warn("snowmelt not rescaled", "error", err)
			} else {
				products = append(products, prod)
			}
		}
	}

	return Produced(products...)
}

// derive computes one grid with Calc and converts it into a product.
func (p *SNODASProcessor) derive(ctx context.Context, job Job, dir, filetype, expr string, inputs map[string]string, ref snodasGrid) (domain.Product, error) {
	tmp := filepath.Join(dir, filetype+".calc.tif")
	if err := job.Engine.Calc(ctx, tmp, expr, inputs, ref.noData); err != nil {
		return domain.Product{}, err
	}
	ds, err := job.Engine.Open(ctx, tmp)
	if err != nil {
		return domain.Product{}, err
	}
	defer ds.Close()

	out, prod := product(job, filetype, p.Naming.Name(job.Acquirable.Path, filetype, ref.valid), ref.valid, nil)
	if err := translate(ctx, job, out, ds, raster.WithNoData(ref.noData)); err != nil {
		return domain.Product{}, err
	}
	return prod, nil
}

// snodasMeta is the part of a SNODAS .txt metadata file needed to read its grid.
type snodasMeta struct {
	DataFile               string
	Columns, Rows          int
	Datum                  string
	NoData                 float64
	MinX, MaxX, MinY, MaxY float64
	Valid                  time.Time
}

// SRS is the geographic reference the grid is delivered in.
func (m snodasMeta) SRS() string {
	return fmt.Sprintf("+proj=longlat +ellps=%s +datum=%s +no_defs", m.Datum, m.Datum)
}

// parseSNODASMeta reads "Key: value" lines. Files from before 2022 report a
// stop hour of 5 for grids valid at 06:00, so the hour is forced to 6 there.
func parseSNODASMeta(path string) (snodasMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return snodasMeta{}, err
	}
	defer f.Close()

	kv := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		kv[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return snodasMeta{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	var errs []string
	num := func(key string) float64 {
		v, err := strconv.ParseFloat(kv[key], 64)
		if err != nil {
			errs = append(errs, key)
		}
		return v
	}
	m := snodasMeta{
		DataFile: kv["data file pathname"],
		Datum:    kv["horizontal datum"],
		Columns:  int(num("number of columns")),
		Rows:     int(num("number of rows")),
		NoData:   num("no data value"),
		MinX:     num("minimum x-axis coordinate"),
		MaxX:     num("maximum x-axis coordinate"),
		MinY:     num("minimum y-axis coordinate"),
		MaxY:     num("maximum y-axis coordinate"),
	}
	year := int(num("stop year"))
	month := int(num("stop month"))
	day := int(num("stop day"))
	hour := int(num("stop hour"))
	minute := int(num("stop minute"))
	second := int(num("stop second"))
	if m.DataFile == "" {
		errs = append(errs, "data file pathname")
	}
	if m.Datum == "" {
		errs = append(errs, "horizontal datum")
	}
	if len(errs) > 0 {
		return snodasMeta{}, fmt.Errorf("%s: missing or invalid %s", filepath.Base(path), strings.Join(errs, ", "))
	}
	if year < 2022 {
		hour = 6
	}
	m.Valid = time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	return m, nil
}

// writeENVIHeader describes a big-endian 16-bit SNODAS grid so GDAL can open it.
func writeENVIHeader(data string, cols, rows int) error {
	hdr := strings.TrimSuffix(data, filepath.Ext(data)) + ".hdr"
	body := fmt.Sprintf("ENVI\nsamples = %d\nlines = %d\nbands = 1\nheader offset = 0\n"+
		"file type = ENVI Standard\ndata type = 2\ninterleave = bsq\nbyte order = 1\n", cols, rows)
	return os.WriteFile(hdr, []byte(body), 0o644)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
