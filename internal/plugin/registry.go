package plugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/observability"
	"github.com/USACE/cumulus-geoproc/internal/raster"
)

// ErrUnknownPlugin is returned by Dispatch for a slug with no registered routine.
var ErrUnknownPlugin = errors.New("unknown plugin")

// Registry maps acquirable slugs to processors. It is filled at startup and
// only read afterwards.
type Registry struct {
	processors map[string]Processor
	engine     raster.Engine
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewRegistry creates an empty registry whose routines run on engine.
func NewRegistry(engine raster.Engine, logger *slog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		processors: make(map[string]Processor),
		engine:     engine,
		logger:     logger,
		metrics:    metrics,
	}
}

// Register binds slug to p. It panics on an empty slug, a nil processor, or a
// slug that is already registered.
func (r *Registry) Register(slug string, p Processor) {
	if slug == "" {
		panic("plugin: register with empty slug")
	}
	if p == nil {
		panic(fmt.Sprintf("plugin: register %q with nil processor", slug))
	}
	if _, dup := r.processors[slug]; dup {
		panic(fmt.Sprintf("plugin: %q registered twice", slug))
	}
	r.processors[slug] = p
}

// Lookup returns the processor registered for slug.
func (r *Registry) Lookup(slug string) (Processor, bool) {
	p, ok := r.processors[slug]
	return p, ok
}

// Slugs returns the registered slugs in sorted order.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.processors))
	for s := range r.processors {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	return slugs
}

// Dispatch runs the routine registered for slug on src, writing outputs to
// dst (the directory of src when empty). Routine failures, including panics,
// are logged and yield an empty batch; ErrUnknownPlugin is the only error
// returned.
func (r *Registry) Dispatch(ctx context.Context, slug, src, dst string) ([]domain.Product, error) {
	p, ok := r.processors[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, slug)
	}
	if dst == "" {
		dst = filepath.Dir(src)
	}
	logger := r.logger.With("slug", slug, "source", filepath.Base(src))

	if _, err := os.Stat(src); err != nil {
		r.fail(logger, slug, Malformed("stat source", err))
		return []domain.Product{}, nil
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		r.fail(logger, slug, Malformed("create destination", err))
		return []domain.Product{}, nil
	}

	job := Job{
		Acquirable: domain.NewAcquirable(slug, src),
		Dst:        dst,
		Engine:     r.engine,
		Logger:     logger,
	}
	res := run(ctx, p, job)
	if res.Err != nil {
		r.fail(logger, slug, res.Err)
		return []domain.Product{}, nil
	}

	products := sanitize(res.Products, logger)
	r.metrics.ProductsGenerated.WithLabelValues(slug).Add(float64(len(products)))
	logger.Info("conversion complete", "products", len(products))
	return products, nil
}

func run(ctx context.Context, p Processor, job Job) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Failed(&Error{
				Kind:     MalformedInput,
				Op:       "process",
				Location: panicLocation(),
				Err:      fmt.Errorf("panic: %v", rec),
			})
		}
	}()
	return p.Process(ctx, job)
}

func (r *Registry) fail(logger *slog.Logger, slug string, err error) {
	kind, op, loc := MalformedInput, "process", "unknown"
	var perr *Error
	if errors.As(err, &perr) {
		kind, op, loc = perr.Kind, perr.Op, perr.Location
	}
	attrs := []any{
		"kind", string(kind),
		"op", op,
		"location", loc,
		"error_type", fmt.Sprintf("%T", rootCause(err)),
		"error", err,
	}
	if kind == InputAbsent {
		logger.Info("input not found, no products", attrs...)
	} else {
		logger.Error("conversion failed, no products", attrs...)
	}
	r.metrics.DispatchFailures.WithLabelValues(slug, string(kind)).Inc()
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// sanitize drops products that fail validation or repeat an earlier entry's
// path or content.
func sanitize(products []domain.Product, logger *slog.Logger) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	paths := make(map[string]bool, len(products))
	digests := make(map[string]string, len(products))

	for _, p := range products {
		if err := p.Validate(); err != nil {
			logger.Error("dropping invalid product", "file", p.File, "error", err)
			continue
		}
		if paths[p.File] {
			logger.Warn("dropping product with duplicate path", "file", p.File)
			continue
		}
		sum, err := digest(p.File)
		if err != nil {
			logger.Error("dropping unreadable product", "file", p.File, "error", err)
			continue
		}
		if first, dup := digests[sum]; dup {
			logger.Warn("dropping product with duplicate content", "file", p.File, "duplicate_of", first)
			continue
		}
		paths[p.File] = true
		digests[sum] = p.File
		out = append(out, p)
	}
	return out
}

func digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
