//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/USACE/cumulus-geoproc/internal/adapter/kafka"
	"github.com/USACE/cumulus-geoproc/internal/config"
	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/observability"
	"github.com/USACE/cumulus-geoproc/internal/pipeline"
)

const (
	testSourceTopic = "test-geoprocess"
	testSinkTopic   = "test-results"
)

type resultMessage struct {
	Result  domain.Result
	Key     string
	Headers map[string]string
}

func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) resultMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var r domain.Result
	require.NoError(t, json.Unmarshal(msg.Value, &r), "unmarshal result")
	return resultMessage{Result: r, Key: string(msg.Key), Headers: headers}
}

func incoming(t *testing.T, slug, key string) []byte {
	t.Helper()
	b, err := json.Marshal(domain.GeoprocessMessage{
		Geoprocess: domain.GeoprocessIncomingFile,
		Config:     domain.GeoprocessConfig{AcquirableSlug: slug, Bucket: "cwbi-data-develop", Key: key},
	})
	require.NoError(t, err)
	return b
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func newTransformer(t *testing.T) *pipeline.GeoprocessTransformer {
	return pipeline.NewTransformer(objectStore{}, converter{}, noInterpolation{}, catalog{}, t.TempDir(), discardLogger())
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter round-trips one geoprocess message through the
// reader, the transformer and the writer.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	payload := incoming(t, "hrrr-total-precip", "cumulus/acquirables/hrrr-total-precip/hrrr.t00z.wrfsfcf01.grib2")
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("test-key"), Value: payload}))

	// The consumer group may need time to rebalance before messages arrive.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit)
	require.NoError(t, raw.Commit(ctx))

	result, err := newTransformer(t).Transform(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, result.Status)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.Result{result}))

	rm := readResult(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "hrrr-total-precip", rm.Key)
	assert.Equal(t, domain.GeoprocessIncomingFile, rm.Headers["geoprocess"])
	assert.Equal(t, string(domain.StatusPublished), rm.Headers["status"])
	_, err = time.Parse(time.RFC3339, rm.Headers["processed_at"])
	assert.NoError(t, err)

	assert.Equal(t, 1, rm.Result.Products)
	require.Len(t, rm.Result.Responses, 2)
	assert.Equal(t, "cumulus/products/hrrr-total-precip/hrrr-total-precip.tif", rm.Result.Responses[0].Key)
	require.NotNil(t, rm.Result.Responses[1].Upload)
	assert.Equal(t, 201, rm.Result.Responses[1].Upload.StatusCode)
}

// TestPipelineEndToEnd runs the full pipeline over a mix of messages,
// including one that cannot be parsed.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("a"), Value: incoming(t, "nbm-co-01h", "cumulus/acquirables/nbm-co-01h/blend.t00z.core.f001.co.grib2")},
		kafkago.Message{Key: []byte("b"), Value: incoming(t, "empty", "cumulus/acquirables/empty/x.grib2")},
		kafkago.Message{Key: []byte("c"), Value: incoming(t, "ncep-stage4-mosaic-01h", "cumulus/acquirables/ncep-stage4-mosaic-01h/st4_conus.2022081801.01h.grb2")},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, newTransformer(t), writer, discardLogger(), metrics, 10, 4)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	statuses := map[string]domain.Status{}
	for len(statuses) < 3 {
		rm := readResult(ctx, t, consumer)
		statuses[rm.Key] = rm.Result.Status
	}

	// The unparseable message is committed without a result.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no fourth result")

	pipelineCancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, map[string]domain.Status{
		"nbm-co-01h":             domain.StatusPublished,
		"empty":                  domain.StatusEmpty,
		"ncep-stage4-mosaic-01h": domain.StatusPublished,
	}, statuses)
}
