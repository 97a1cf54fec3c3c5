//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/USACE/cumulus-geoproc/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the lifetime of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("geoproc-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// objectStore serves every key from a fixed byte payload.
type objectStore struct{}

func (objectStore) Download(_ context.Context, _, key, dir string) (string, error) {
	dst := filepath.Join(dir, filepath.Base(key))
	return dst, os.WriteFile(dst, []byte(key), 0o644)
}

// converter yields one product per source, except for the "empty" slug.
type converter struct{}

func (converter) Dispatch(_ context.Context, slug, src, dst string) ([]domain.Product, error) {
	if slug == "empty" {
		return []domain.Product{}, nil
	}
	out := filepath.Join(dst, slug+".tif")
	if err := os.WriteFile(out, []byte(src), 0o644); err != nil {
		return nil, err
	}
	return []domain.Product{{FileType: slug, File: out, Datetime: "2022-08-18T01:00:00+00:00"}}, nil
}

type noInterpolation struct{}

func (noInterpolation) Interpolate(context.Context, string, time.Time, int, string) ([]domain.Product, error) {
	return nil, nil
}

type catalog struct{}

func (catalog) Publish(_ context.Context, products []domain.Product, _ string) ([]domain.Response, error) {
	out := make([]domain.Response, 0, len(products)+1)
	for _, p := range products {
		out = append(out, domain.Response{Key: "cumulus/products/" + p.FileType + "/" + filepath.Base(p.File)})
	}
	out = append(out, domain.Response{Upload: &domain.CatalogResponse{StatusCode: 201}})
	return out, nil
}
