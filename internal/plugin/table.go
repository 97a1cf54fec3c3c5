package plugin

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed plugins.yaml
var defaultTable []byte

// Table is the decoded plugin parameter file.
type Table struct {
	Plugins []Entry `yaml:"plugins"`
}

// Entry binds one slug to a family and the family's parameters.
type Entry struct {
	Slug   string    `yaml:"slug"`
	Family string    `yaml:"family"`
	Params yaml.Node `yaml:"params"`
}

// configurable is a family processor that finishes its setup after decoding.
type configurable interface {
	Processor
	init(slug string) error
}

var families = map[string]func() configurable{
	"band":            func() configurable { return &BandProcessor{} },
	"subset-series":   func() configurable { return &SubsetSeriesProcessor{} },
	"hrap-bands":      func() configurable { return &HRAPBandsProcessor{} },
	"time-series":     func() configurable { return &TimeSeriesProcessor{} },
	"forecast-deltas": func() configurable { return &ForecastDeltasProcessor{} },
	"archive":         func() configurable { return &ArchiveProcessor{} },
	"warp-series":     func() configurable { return &WarpSeriesProcessor{} },
	"subset-bounds":   func() configurable { return &SubsetBoundsProcessor{} },
	"snodas-archive":  func() configurable { return &SNODASProcessor{} },
}

// ParseTable decodes a parameter file.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("decode plugin table: %w", err)
	}
	return t, nil
}

// LoadTable reads the parameter file at path, or the embedded table when path is empty.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return ParseTable(defaultTable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read plugin table: %w", err)
	}
	return ParseTable(data)
}

// Build constructs the processor for one entry.
func (e Entry) Build() (Processor, error) {
	newProc, ok := families[e.Family]
	if !ok {
		return nil, fmt.Errorf("plugin %s: unknown family %q", e.Slug, e.Family)
	}
	p := newProc()
	if !e.Params.IsZero() {
		if err := e.Params.Decode(p); err != nil {
			return nil, fmt.Errorf("plugin %s: decode params: %w", e.Slug, err)
		}
	}
	if err := p.init(e.Slug); err != nil {
		return nil, fmt.Errorf("plugin %s: %w", e.Slug, err)
	}
	return p, nil
}

// RegisterTable builds and registers every entry of t. Duplicate slugs panic
// through Register.
func (r *Registry) RegisterTable(t Table) error {
	for _, e := range t.Plugins {
		p, err := e.Build()
		if err != nil {
			return err
		}
		r.Register(e.Slug, p)
	}
	return nil
}
