package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/raster"
)

// openSource opens the acquirable, going through the archive layer when its
// format calls for it.
func openSource(ctx context.Context, job Job) (*raster.Dataset, error) {
	if job.Acquirable.Format.Compressed() {
		return job.Engine.OpenCompressed(ctx, job.Acquirable.Path, job.Dst)
	}
	return job.Engine.Open(ctx, job.Acquirable.Path)
}

// translate writes one COG and validates it. An invalid COG is logged and
// still returned to the caller as written.
func translate(ctx context.Context, job Job, dst string, ds *raster.Dataset, opts ...raster.TranslateOption) error {
	if err := job.Engine.Translate(ctx, dst, ds, opts...); err != nil {
		return err
	}
	validateCOG(ctx, job, dst)
	return nil
}

func validateCOG(ctx context.Context, job Job, path string) {
	code, err := job.Engine.ValidateCOG(ctx, path)
	switch {
	case err != nil:
		job.Logger.Warn("cog validation could not run", "file", filepath.Base(path), "error", err)
	case code != 0:
		job.Logger.Warn("output is not a valid cog", "file", filepath.Base(path), "exit_code", code)
	default:
		job.Logger.Debug("output is a valid cog", "file", filepath.Base(path))
	}
}

// nodataOption carries a band's nodata value into the output when it has one.
func nodataOption(b raster.Band) []raster.TranslateOption {
	if b.NoData == nil {
		return nil
	}
	return []raster.TranslateOption{raster.WithNoData(*b.NoData)}
}

var leadingNumber = regexp.MustCompile(`^\s*-?\d+(\.\d+)?`)

// parseLeadingNumber reads values such as "1660784400 sec UTC".
func parseLeadingNumber(s string) (float64, error) {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("no number in %q", s)
	}
	return strconv.ParseFloat(strings.TrimSpace(m), 64)
}

// epoch converts seconds since the Unix epoch to UTC.
func epoch(seconds float64) time.Time {
	return time.Unix(int64(seconds), 0).UTC()
}

// parseTimeList reads braced epoch lists such as "{1660780800,1660802400}"
// and returns them in ascending order.
func parseTimeList(s string) ([]time.Time, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty time list")
	}
	var times []time.Time
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("time list entry %q: %w", part, err)
		}
		times = append(times, epoch(v))
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times, nil
}

var unitSteps = map[string]time.Duration{
	"second":  time.Second,
	"seconds": time.Second,
	"sec":     time.Second,
	"s":       time.Second,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"min":     time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"h":       time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
}

var sinceDate = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})(?:[ T](\d{2}:\d{2}(?::\d{2})?))?`)

// parseUnits reads CF time units such as "minutes since 1970-01-01 00:00:00".
// A missing unit comes back as zero; a missing date comes back as the epoch
// with found false.
func parseUnits(s string) (step time.Duration, since time.Time, found bool) {
	since = time.Unix(0, 0).UTC()
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) > 0 {
		step = unitSteps[fields[0]]
	}
	m := sinceDate.FindStringSubmatch(s)
	if m == nil {
		return step, since, false
	}
	clock := m[2]
	switch len(clock) {
	case 0:
		clock = "00:00:00"
	case 5:
		clock += ":00"
	}
	t, err := time.Parse("2006-01-02 15:04:05", m[1]+" "+clock)
	if err != nil {
		return step, since, false
	}
	return step, t.UTC(), true
}

// TimeSpec locates a timestamp in band metadata. Without units the value is
// seconds since the Unix epoch. Units may be fixed (Unit) or read from a
// dataset metadata item in CF form (UnitsKey), in which case the reference
// date comes from that item too.
type TimeSpec struct {
	Key      string `yaml:"key"`
	Unit     string `yaml:"unit"`
	UnitsKey string `yaml:"units_key"`
}

func (s TimeSpec) withDefault(key string) TimeSpec {
	if s.Key == "" {
		s.Key = key
	}
	return s
}

func (s TimeSpec) validate() error {
	if s.Unit != "" {
		if _, ok := unitSteps[strings.ToLower(s.Unit)]; !ok {
			return fmt.Errorf("unknown time unit %q", s.Unit)
		}
	}
	return nil
}

// resolve reads the timestamp for one band of ds.
func (s TimeSpec) resolve(job Job, ds *raster.Dataset, meta map[string]string) (time.Time, error) {
	raw, ok := meta[s.Key]
	if !ok {
		return time.Time{}, fmt.Errorf("metadata %s missing", s.Key)
	}
	v, err := parseLeadingNumber(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("metadata %s: %w", s.Key, err)
	}

	step := time.Second
	since := time.Unix(0, 0).UTC()
	if s.UnitsKey != "" {
		units, _ := ds.MetadataItem(s.UnitsKey)
		unitStep, ref, found := parseUnits(units)
		if !found {
			job.Logger.Info("no reference date in time units, assuming epoch", "key", s.UnitsKey, "units", units)
		}
		since = ref
		if unitStep != 0 {
			step = unitStep
		}
	}
	if s.Unit != "" {
		step = unitSteps[strings.ToLower(s.Unit)]
	}
	return since.Add(time.Duration(v * float64(step))), nil
}

// VersionSpec locates the issuance time of a forecast file: a metadata item
// holding epoch seconds, with a date embedded in the file name as fallback.
type VersionSpec struct {
	Key         string `yaml:"key"`
	FilePattern string `yaml:"file_pattern"`
	FileLayout  string `yaml:"file_layout"`

	re *regexp.Regexp
}

func (v *VersionSpec) compile() error {
	if v == nil || v.FilePattern == "" {
		return nil
	}
	re, err := regexp.Compile(v.FilePattern)
	if err != nil {
		return fmt.Errorf("version file pattern: %w", err)
	}
	if v.FileLayout == "" {
		return fmt.Errorf("version file pattern %q has no layout", v.FilePattern)
	}
	v.re = re
	return nil
}

// resolve returns nil for unversioned products.
func (v *VersionSpec) resolve(meta map[string]string, src string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := meta[v.Key]; ok {
		if n, err := parseLeadingNumber(raw); err == nil {
			t := epoch(n)
			return &t, nil
		}
	}
	if v.re == nil {
		return nil, fmt.Errorf("metadata %s missing", v.Key)
	}
	m := v.re.FindString(filepath.Base(src))
	if m == "" {
		return nil, fmt.Errorf("metadata %s missing and no date in file name", v.Key)
	}
	t, err := time.Parse(v.FileLayout, m)
	if err != nil {
		return nil, fmt.Errorf("file name date %q: %w", m, err)
	}
	t = t.UTC()
	return &t, nil
}

// Naming builds output file names.
//
//	prefix  <prefix>.<YYYYMMDD_HHMM>.tif (prefix defaults to the filetype)
//	insert  <first>.<YYYYMMDD>.<rest>.tif, splitting the source stem on dots
//	suffix  <stem>-<YYYYMMDDHHMM>.tif
//	hourly  <prefix>.<YYYYMMDDHH>.tif
//	daily   <prefix>.<YYYYMMDD>.tif
//	source  <stem>.tif
type Naming struct {
	Style  string `yaml:"style"`
	Prefix string `yaml:"prefix"`
}

func (n Naming) validate() error {
	switch n.Style {
	case "", "prefix", "insert", "suffix", "hourly", "daily", "source":
		return nil
	}
	return fmt.Errorf("unknown naming style %q", n.Style)
}

// Name returns the output file name for a product of filetype valid at t.
func (n Naming) Name(src, filetype string, t time.Time) string {
	t = t.UTC()
	prefix := n.Prefix
	if prefix == "" {
		prefix = filetype
	}
	stem := sourceStem(src)

	switch n.Style {
	case "insert":
		parts := strings.SplitN(stem, ".", 2)
		if len(parts) == 1 {
			return parts[0] + "." + t.Format("20060102") + ".tif"
		}
		return parts[0] + "." + t.Format("20060102") + "." + parts[1] + ".tif"
	case "suffix":
		return stem + "-" + t.Format("200601021504") + ".tif"
	case "hourly":
		return prefix + "." + t.Format("2006010215") + ".tif"
	case "daily":
		return prefix + "." + t.Format("20060102") + ".tif"
	case "source":
		return stem + ".tif"
	default:
		return prefix + "." + t.Format("20060102_1504") + ".tif"
	}
}

// sourceStem strips archive suffixes and the data extension from a file name.
func sourceStem(src string) string {
	name := filepath.Base(src)
	lower := strings.ToLower(name)
	for _, suffix := range []string{".tar.gz", ".tgz", ".tar", ".gz", ".zip"} {
		if strings.HasSuffix(lower, suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// product builds the record for an output written into the job's destination.
func product(job Job, filetype, name string, valid time.Time, version *time.Time) (string, domain.Product) {
	path := filepath.Join(job.Dst, name)
	return path, domain.NewProduct(filetype, path, valid, version)
}

// sortByTime orders items by ascending time, keeping the order of equal entries.
func sortByTime[T any](items []T, at func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool { return at(items[i]).Before(at(items[j])) })
}
