package plugin

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/USACE/cumulus-geoproc/internal/raster"
)

type translateCall struct {
	dst  string
	src  *raster.Dataset
	opts raster.TranslateOptions
}

type calcCall struct {
	dst    string
	expr   string
	inputs map[string]string
	noData float64
}

type warpCall struct {
	dst  string
	src  string
	opts raster.WarpOptions
}

// fakeEngine serves canned dataset descriptions and writes a small file for
// each output. Output content depends on the source and bands only, so two
// outputs of the same band are byte-identical.
type fakeEngine struct {
	mu         sync.Mutex
	infos      map[string]raster.Info
	errs       map[string]error
	values     map[string][]float64
	cogCode    int
	translated []translateCall
	warped     []warpCall
	calcs      []calcCall
	opened     []*raster.Dataset
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		infos:  make(map[string]raster.Info),
		errs:   make(map[string]error),
		values: make(map[string][]float64),
	}
}

func (f *fakeEngine) Open(_ context.Context, path string) (*raster.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	info, ok := f.infos[path]
	if !ok {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
		}
		info = raster.Info{Size: [2]int{10, 10}, Bands: []raster.Band{{Number: 1}}}
	}
	ds := raster.NewDataset(path, info, nil)
	f.opened = append(f.opened, ds)
	return ds, nil
}

func (f *fakeEngine) OpenCompressed(ctx context.Context, path, _ string) (*raster.Dataset, error) {
	return f.Open(ctx, path)
}

func (f *fakeEngine) Translate(_ context.Context, dst string, src *raster.Dataset, opts ...raster.TranslateOption) error {
	if src.Closed() {
		return raster.ErrClosed
	}
	o := raster.BuildTranslateOptions(opts...)
	f.mu.Lock()
	f.translated = append(f.translated, translateCall{dst: dst, src: src, opts: o})
	f.mu.Unlock()
	return os.WriteFile(dst, []byte(fmt.Sprintf("%s bands=%v", src.Path(), o.Bands)), 0o644)
}

func (f *fakeEngine) Warp(_ context.Context, dst, src string, opts raster.WarpOptions) error {
	f.mu.Lock()
	f.warped = append(f.warped, warpCall{dst: dst, src: src, opts: opts})
	f.mu.Unlock()
	return os.WriteFile(dst, []byte(fmt.Sprintf("%s bands=%v", src, opts.SrcBands)), 0o644)
}

func (f *fakeEngine) FillNoData(_ context.Context, src, dst string, _ int) error {
	return os.WriteFile(dst, []byte("filled "+src), 0o644)
}

func (f *fakeEngine) Calc(_ context.Context, dst, expr string, inputs map[string]string, noData float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs["calc "+filepath.Base(dst)]; ok {
		return err
	}
	f.calcs = append(f.calcs, calcCall{dst: dst, expr: expr, inputs: inputs, noData: noData})
	return os.WriteFile(dst, []byte(fmt.Sprintf("calc %s %v", expr, inputs)), 0o644)
}

func (f *fakeEngine) Values(_ context.Context, ds *raster.Dataset) ([]float64, error) {
	if ds.Closed() {
		return nil, raster.ErrClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[ds.Path()]
	if !ok {
		return nil, fmt.Errorf("no values for %s", ds.Path())
	}
	return v, nil
}

func (f *fakeEngine) ValidateCOG(_ context.Context, _ string) (int, error) {
	return f.cogCode, nil
}

func (f *fakeEngine) outputs() []string {
	var names []string
	for _, c := range f.translated {
		names = append(names, filepath.Base(c.dst))
	}
	for _, c := range f.warped {
		names = append(names, filepath.Base(c.dst))
	}
	return names
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// touch creates an empty source file under dir.
func touch(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	return path, os.WriteFile(path, []byte(name), 0o644)
}
