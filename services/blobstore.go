package services

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by BlobStore.Delete when the object is already
// gone. Deletion flows treat it as success.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore stores attachments and evidence images
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
}
