package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/raster"
)

// ArchiveProcessor converts the single grid held in an archive whose file
// name encodes the valid date.
type ArchiveProcessor struct {
	DatePattern string `yaml:"date_pattern"`
	DateLayout  string `yaml:"date_layout"`
	Hour        int    `yaml:"hour"`
	Member      string `yaml:"member"`
	Naming      Naming `yaml:"naming"`

	date   *regexp.Regexp
	member *regexp.Regexp
}

func (p *ArchiveProcessor) init(string) error {
	if p.DatePattern == "" || p.DateLayout == "" {
		return fmt.Errorf("date_pattern and date_layout are required")
	}
	re, err := regexp.Compile(p.DatePattern)
	if err != nil {
		return fmt.Errorf("date pattern: %w", err)
	}
	if re.NumSubexp() > 1 {
		return fmt.Errorf("date pattern %q has more than one group", p.DatePattern)
	}
	p.date = re
	if p.Member == "" {
		p.Member = `(?i)\.(tif|tiff|bil)$`
	}
	if p.member, err = regexp.Compile(p.Member); err != nil {
		return fmt.Errorf("member pattern: %w", err)
	}
	if p.Hour < 0 || p.Hour > 23 {
		return fmt.Errorf("hour %d out of range", p.Hour)
	}
	if p.Naming.Style == "" {
		p.Naming.Style = "source"
	}
	return p.Naming.validate()
}

func (p *ArchiveProcessor) Process(ctx context.Context, job Job) Result {
	valid, err := p.validTime(job.Acquirable.Path)
	if err != nil {
		return Failed(Malformed("file name date", err))
	}

	dir := filepath.Join(job.Dst, sourceStem(job.Acquirable.Path))
	defer os.RemoveAll(dir)
	files, err := raster.Decompress(job.Acquirable.Path, dir)
	if err != nil {
		return Failed(Classify("decompress", err))
	}

	member, ok := p.pick(files)
	if !ok {
		return Failed(Absent("find archive member", fmt.Errorf("no member matches %s", p.Member)))
	}

	ds, err := job.Engine.Open(ctx, member)
	if err != nil {
		return Failed(Classify("open member", err))
	}
	defer ds.Close()

	slug := job.Acquirable.Slug
	out, prod := product(job, slug, p.Naming.Name(job.Acquirable.Path, slug, valid), valid, nil)
	if err := translate(ctx, job, out, ds); err != nil {
		return Failed(Malformed("translate", err))
	}
	return Produced(prod)
}

func (p *ArchiveProcessor) validTime(src string) (time.Time, error) {
	name := filepath.Base(src)
	m := p.date.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("no date matching %s in %s", p.DatePattern, name)
	}
	s := m[0]
	if len(m) == 2 {
		s = m[1]
	}
	t, err := time.Parse(p.DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Add(time.Duration(p.Hour) * time.Hour), nil
}

func (p *ArchiveProcessor) pick(files []string) (string, bool) {
	for _, f := range files {
		if p.member.MatchString(filepath.Base(f)) && !strings.HasSuffix(strings.ToLower(f), ".aux.xml") {
			return f, true
		}
	}
	return "", false
}
