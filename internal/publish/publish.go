// Package publish uploads converted products to object storage and announces
// the uploaded batch to the catalog.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/observability"
	"github.com/USACE/cumulus-geoproc/internal/storage"
)

// ErrNotify marks a failed catalog notification.
var ErrNotify = errors.New("catalog notify failed")

// Uploader stores a local file under a bucket key.
type Uploader interface {
	Upload(ctx context.Context, local, bucket, key string) error
}

// Notifier announces uploaded products to the catalog.
type Notifier interface {
	NotifyProducts(ctx context.Context, products []domain.Product) (domain.CatalogResponse, error)
}

// Publisher runs the upload-and-notify step for one batch of products.
type Publisher struct {
	uploader      Uploader
	notifier      Notifier
	baseKey       string
	notifyTimeout time.Duration
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewPublisher creates a publisher writing products under baseKey.
func NewPublisher(uploader Uploader, notifier Notifier, baseKey string, notifyTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		uploader:      uploader,
		notifier:      notifier,
		baseKey:       baseKey,
		notifyTimeout: notifyTimeout,
		logger:        logger,
		metrics:       metrics,
	}
}

// Publish uploads each product and, if any upload succeeded, sends one
// notification listing the uploaded products with file rewritten to the
// storage key. A failed upload drops that product. A failed notification is
// returned wrapped in ErrNotify together with the key responses.
func (p *Publisher) Publish(ctx context.Context, products []domain.Product, bucket string) ([]domain.Response, error) {
	responses := make([]domain.Response, 0, len(products)+1)
	payload := make([]domain.Product, 0, len(products))

	for _, prod := range products {
		key := storage.ProductKey{Base: p.baseKey, FileType: prod.FileType, File: prod.File}.Key()
		if err := p.uploader.Upload(ctx, prod.File, bucket, key); err != nil {
			p.metrics.Uploads.WithLabelValues("error").Inc()
			p.logger.Warn("upload failed",
				"bucket", bucket,
				"key", key,
				"error_type", fmt.Sprintf("%T", err),
				"error", err,
			)
			continue
		}
		p.metrics.Uploads.WithLabelValues("success").Inc()
		p.logger.Debug("uploaded", "bucket", bucket, "key", key)

		prod.File = key
		payload = append(payload, prod)
		responses = append(responses, domain.Response{Key: key})
	}

	if len(payload) == 0 {
		return responses, nil
	}

	resp, err := p.notify(ctx, payload)
	if err != nil {
		p.metrics.Notifications.WithLabelValues("error").Inc()
		return responses, fmt.Errorf("%w: %w", ErrNotify, err)
	}
	p.metrics.Notifications.WithLabelValues("success").Inc()
	p.logger.Info("catalog notified", "bucket", bucket, "products", len(payload), "status", resp.StatusCode)

	return append(responses, domain.Response{Upload: &resp}), nil
}

func (p *Publisher) notify(ctx context.Context, payload []domain.Product) (domain.CatalogResponse, error) {
	if p.notifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.notifyTimeout)
		defer cancel()
	}
	start := time.Now()
	defer func() { p.metrics.NotifyDuration.Observe(time.Since(start).Seconds()) }()
	return p.notifier.NotifyProducts(ctx, payload)
}
