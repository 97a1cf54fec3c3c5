// Package storage moves source files and products between the local work
// directory and S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned by Download when the object does not exist. It
// matches fs.ErrNotExist so callers can treat a missing object like a
// missing file.
var ErrNotFound = fmt.Errorf("object not found: %w", fs.ErrNotExist)

// MinIOClient implements upload and download against MinIO or S3.
type MinIOClient struct {
	client *minio.Client
	bucket string
}

// MinIOConfig holds MinIO connection settings.
type MinIOConfig struct {
	Endpoint  string // e.g., "localhost:9000"
	AccessKey string
	SecretKey string
	Bucket    string // default bucket, created when missing
	UseSSL    bool
}

// NewMinIOClient creates a client and ensures the default bucket exists.
func NewMinIOClient(ctx context.Context, cfg MinIOConfig) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if cfg.Bucket != "" {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket existence: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, fmt.Errorf("create bucket: %w", err)
			}
		}
	}

	return &MinIOClient{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the default bucket.
func (m *MinIOClient) Bucket() string { return m.bucket }

// Upload stores the local file at key. An empty bucket means the default.
func (m *MinIOClient) Upload(ctx context.Context, local, bucket, key string) error {
	_, err := m.client.FPutObject(ctx, m.bucketOr(bucket), key, local, minio.PutObjectOptions{
		ContentType: contentType(local),
	})
	if err != nil {
		return fmt.Errorf("upload %s to %s: %w", filepath.Base(local), key, err)
	}
	return nil
}

// Download writes the object at key into dir and returns the local path.
func (m *MinIOClient) Download(ctx context.Context, bucket, key, dir string) (string, error) {
	local := filepath.Join(dir, path.Base(key))
	err := m.client.FGetObject(ctx, m.bucketOr(bucket), key, local, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("download %s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	return local, nil
}

func (m *MinIOClient) bucketOr(bucket string) string {
	if bucket == "" {
		return m.bucket
	}
	return bucket
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tif", ".tiff":
		return "image/tiff"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
