package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/USACE/cumulus-geoproc/internal/domain"
)

// ErrNotResolvable is returned by Resolve for routines that do not select
// bands by descriptor.
var ErrNotResolvable = errors.New("plugin does not select bands by descriptor")

// Resolution reports the band one output selects in a source file.
type Resolution struct {
	FileType   string `json:"filetype"`
	Descriptor string `json:"descriptor"`
	Band       int    `json:"band,omitempty"`
	Error      string `json:"error,omitempty"`
}

type bandResolver interface {
	resolveBands(ctx context.Context, job Job) ([]Resolution, error)
}

// Resolve opens src and reports the band each output of slug selects,
// without writing any product.
func (r *Registry) Resolve(ctx context.Context, slug, src string) ([]Resolution, error) {
	p, ok := r.processors[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, slug)
	}
	br, ok := p.(bandResolver)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotResolvable, slug)
	}
	job := Job{
		Acquirable: domain.NewAcquirable(slug, src),
		Dst:        filepath.Dir(src),
		Engine:     r.engine,
		Logger:     r.logger.With("slug", slug, "source", filepath.Base(src)),
	}
	return br.resolveBands(ctx, job)
}

func (p *BandProcessor) resolveBands(ctx context.Context, job Job) ([]Resolution, error) {
	ds, err := openSource(ctx, job)
	if err != nil {
		return nil, Classify("open source", err)
	}
	defer ds.Close()

	out := make([]Resolution, 0, len(p.Outputs))
	for _, o := range p.Outputs {
		res := Resolution{FileType: o.FileType, Descriptor: "band " + strconv.Itoa(o.Band)}
		if len(o.descriptor) > 0 {
			res.Descriptor = o.descriptor.String()
		}
		if n, err := p.resolve(ds, o, job); err != nil {
			res.Error = err.Error()
		} else {
			res.Band = n
		}
		out = append(out, res)
	}
	return out, nil
}
