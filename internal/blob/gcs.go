package blob

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSStore keeps objects in a Google Cloud Storage bucket.
// Credentials come from the environment (GOOGLE_APPLICATION_CREDENTIALS or workload identity).
type GCSStore struct {
	client    *storage.Client
	bucket    string
	publicURL string
}

// NewGCSStore connects to bucket. publicURL overrides the default storage.googleapis.com
// links when it is an absolute URL (e.g. a CDN in front of the bucket).
func NewGCSStore(ctx context.Context, bucket, publicURL string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	base := fmt.Sprintf("%s/%s", gcsPublicHost, bucket)
	if strings.HasPrefix(publicURL, "http://") || strings.HasPrefix(publicURL, "https://") {
		base = strings.TrimRight(publicURL, "/")
	}

	return &GCSStore{client: client, bucket: bucket, publicURL: base}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "public, max-age=31536000, immutable"

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write GCS object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) URL(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(key, "/")
}

// Close releases the underlying client
func (s *GCSStore) Close() error {
	return s.client.Close()
}
