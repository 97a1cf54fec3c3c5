package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/publish"
)

// Downloader fetches the source object into a local directory.
type Downloader interface {
	Download(ctx context.Context, bucket, key, dir string) (string, error)
}

// Dispatcher converts a local file with the routine registered for slug.
type Dispatcher interface {
	Dispatch(ctx context.Context, slug, src, dst string) ([]domain.Product, error)
}

// Interpolator builds gap-filled SNODAS products for one day.
type Interpolator interface {
	Interpolate(ctx context.Context, bucket string, t time.Time, maxDistance int, dst string) ([]domain.Product, error)
}

// Publisher uploads products and notifies the catalog.
type Publisher interface {
	Publish(ctx context.Context, products []domain.Product, bucket string) ([]domain.Response, error)
}

// GeoprocessTransformer implements Transformer: it downloads the source,
// converts it and publishes the products.
type GeoprocessTransformer struct {
	downloader   Downloader
	dispatcher   Dispatcher
	interpolator Interpolator
	publisher    Publisher
	workDir      string
	logger       *slog.Logger
}

// NewTransformer creates a GeoprocessTransformer. Each message gets its own
// temporary directory under workDir, removed when the message is done.
func NewTransformer(d Downloader, dispatcher Dispatcher, interpolator Interpolator, publisher Publisher, workDir string, logger *slog.Logger) *GeoprocessTransformer {
	return &GeoprocessTransformer{
		downloader:   d,
		dispatcher:   dispatcher,
		interpolator: interpolator,
		publisher:    publisher,
		workDir:      workDir,
		logger:       logger,
	}
}

// Transform returns an error only when the message cannot be parsed. Every
// other outcome is reported through the result status.
func (t *GeoprocessTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.Result, error) {
	msg, err := domain.ParseMessage(raw)
	if err != nil {
		return domain.Result{}, err
	}
	result := domain.NewResult(msg)
	logger := t.logger.With("geoprocess", msg.Geoprocess, "bucket", msg.Config.Bucket)
	if msg.Config.AcquirableSlug != "" {
		logger = logger.With("slug", msg.Config.AcquirableSlug, "key", msg.Config.Key)
	}

	dir, err := os.MkdirTemp(t.workDir, "geoproc-*")
	if err != nil {
		logger.Error("create work dir failed", "error", err)
		return result.Fail(fmt.Errorf("create work dir: %w", err)), nil
	}
	defer os.RemoveAll(dir)

	products, err := t.convert(ctx, msg, dir, logger)
	if err != nil {
		logger.Error("geoprocess failed", "error_type", fmt.Sprintf("%T", err), "error", err)
		return result.Fail(err), nil
	}

	result.Products = len(products)
	if len(products) == 0 {
		logger.Info("no products generated")
		result.Status = domain.StatusEmpty
		return result, nil
	}

	responses, err := t.publisher.Publish(ctx, products, msg.Config.Bucket)
	result.Responses = responses
	if err != nil {
		logger.Error("publish failed", "error", err, "uploaded", len(responses))
		result.Status = domain.StatusNotifyFailed
		result.Error = err.Error()
		if !errors.Is(err, publish.ErrNotify) {
			result.Status = domain.StatusFailed
		}
		return result, nil
	}

	result.Status = domain.StatusPublished
	logger.Info("geoprocess complete", "products", len(products), "responses", len(responses))
	return result, nil
}

func (t *GeoprocessTransformer) convert(ctx context.Context, msg domain.GeoprocessMessage, dir string, logger *slog.Logger) ([]domain.Product, error) {
	cfg := msg.Config
	switch msg.Geoprocess {
	case domain.GeoprocessIncomingFile:
		src, err := t.downloader.Download(ctx, cfg.Bucket, cfg.Key, dir)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", path.Base(cfg.Key), err)
		}
		logger.Debug("source downloaded", "file", src)
		return t.dispatcher.Dispatch(ctx, cfg.AcquirableSlug, src, dir)

	case domain.GeoprocessSnodasInterpolate:
		valid, err := msg.ValidTime()
		if err != nil {
			return nil, err
		}
		return t.interpolator.Interpolate(ctx, cfg.Bucket, valid, cfg.MaxDistance, dir)
	}
	return nil, fmt.Errorf("%w: unknown geoprocess %q", domain.ErrInvalidMessage, msg.Geoprocess)
}
