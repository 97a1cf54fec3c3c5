// Package exitcode defines the process exit codes of the geoproc binaries.
// Schedulers use them to decide whether a run is worth retrying.
package exitcode

import (
	"errors"
	"net"

	"github.com/USACE/cumulus-geoproc/internal/adapter/catalog"
	"github.com/USACE/cumulus-geoproc/internal/config"
	"github.com/USACE/cumulus-geoproc/internal/plugin"
	"github.com/USACE/cumulus-geoproc/internal/storage"
	"github.com/minio/minio-go/v7"
)

const (
	// Success - run completed
	Success = 0

	// ConfigError - missing or invalid configuration.
	// Don't retry: fix the config first
	ConfigError = 1

	// NetworkError - broker, object store or catalog unreachable.
	// Retry with backoff
	NetworkError = 2

	// APIError - the catalog rejected a request
	APIError = 3

	// StorageError - object store read or write failed
	StorageError = 4

	// DataError - the input produced nothing usable.
	// Don't retry: investigate the file
	DataError = 5
)

// For maps an error to the exit code that best describes it.
func For(err error) int {
	var missing *config.ErrMissingRequiredEnvVar
	var netErr net.Error
	var s3Err minio.ErrorResponse
	switch {
	case err == nil:
		return Success
	case errors.As(err, &missing), errors.Is(err, plugin.ErrUnknownPlugin), errors.Is(err, plugin.ErrNotResolvable):
		return ConfigError
	case errors.Is(err, catalog.ErrStatus):
		return APIError
	case errors.Is(err, storage.ErrNotFound), errors.As(err, &s3Err):
		return StorageError
	case errors.As(err, &netErr):
		return NetworkError
	default:
		return DataError
	}
}
