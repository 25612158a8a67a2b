/**
 * @description
 * Blob storage for chart images rendered by the analyzer.
 * Two drivers: a local directory served by the API under /storage, and a GCS bucket.
 *
 * @dependencies
 * - cloud.google.com/go/storage: GCS driver
 */

package blob

import (
	"context"
	"fmt"

	"github.com/tickerlab/backend/internal/config"
)

// Store writes objects under a key and tells where they can be fetched publicly
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	URL(key string) string
}

// NewStore builds the driver selected by STORAGE_DRIVER
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverLocal:
		return NewLocalStore(cfg.Storage.Dir, cfg.Storage.PublicURL)
	case config.StorageDriverGCS:
		return NewGCSStore(ctx, cfg.Storage.GCSBucket, cfg.Storage.PublicURL)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
