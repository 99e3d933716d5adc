package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBlobStore keeps blobs in a Google Cloud Storage bucket
type GCSBlobStore struct {
	client *storage.Client
	bucket string
}

// NewGCSBlobStore uses explicit service account JSON when given, otherwise
// application default credentials.
func NewGCSBlobStore(ctx context.Context, bucket, credentialsJSON string) (*GCSBlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET is required for the gcs storage provider")
	}
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSBlobStore{client: client, bucket: bucket}, nil
}

// Put uploads data under key
func (g *GCSBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS upload: %w", err)
	}
	return nil
}

// Delete removes key, mapping a missing object to ErrBlobNotFound
func (g *GCSBlobStore) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete file from GCS: %w", err)
	}
	return nil
}

// URL returns a V4 signed GET URL valid for one hour
func (g *GCSBlobStore) URL(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	return g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(time.Hour),
	})
}

// Close releases the underlying client
func (g *GCSBlobStore) Close() error {
	return g.client.Close()
}
