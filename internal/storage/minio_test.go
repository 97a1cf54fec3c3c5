package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMinIOClient_InvalidEndpoint(t *testing.T) {
	cfg := MinIOConfig{
		Endpoint:  "invalid-endpoint:port:scheme",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "test-bucket",
	}

	_, err := NewMinIOClient(context.Background(), cfg)
	require.Error(t, err)
}

func TestNewMinIOClient_ConnectionRefused(t *testing.T) {
	cfg := MinIOConfig{
		Endpoint:  "localhost:12345",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "test-bucket",
	}

	// minio.New does not connect; BucketExists does.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewMinIOClient(ctx, cfg)
	require.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/tiff", contentType("/tmp/a.TIF"))
	assert.Equal(t, "image/tiff", contentType("a.tiff"))
	assert.Equal(t, "application/octet-stream", contentType("a.grib2"))
}

func TestErrNotFound_IsNotExist(t *testing.T) {
	assert.True(t, errors.Is(ErrNotFound, fs.ErrNotExist))
}

func loadMinIOConfigFromEnv(t *testing.T) MinIOConfig {
	t.Helper()
	_ = godotenv.Load("../../.env.test")

	endpoint := os.Getenv("MINIO_ENDPOINT")
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	if endpoint == "" || accessKey == "" || secretKey == "" {
		t.Skip("MINIO_ENDPOINT, MINIO_ACCESS_KEY, and MINIO_SECRET_KEY not set")
	}

	return MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	}
}

func TestMinIOClient_RoundTrip_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := loadMinIOConfigFromEnv(t)
	cfg.Bucket = "geoproc-test-" + time.Now().Format("20060102-150405")

	ctx := context.Background()
	client, err := NewMinIOClient(ctx, cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	local := filepath.Join(dir, "qpe.20220818_0100.tif")
	require.NoError(t, os.WriteFile(local, []byte("cog"), 0o644))

	key := ProductKey{Base: "cumulus/products", FileType: "qpe", File: local}.Key()
	require.NoError(t, client.Upload(ctx, local, "", key))

	out := t.TempDir()
	got, err := client.Download(ctx, cfg.Bucket, key, out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "qpe.20220818_0100.tif"), got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "cog", string(data))

	_, err = client.Download(ctx, cfg.Bucket, "cumulus/products/qpe/missing.tif", out)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
