// Package storage provides the object store abstraction the upload,
// polling and download layers are written against, with an S3-backed
// implementation and an explicit demo-mode simulation.
package storage

import (
	"context"
	"io"
	"time"
)

// PutResult describes a completed object upload.
type PutResult struct {
	Bucket string
	Key    string
	ETag   string

	// Mock is set when the result was fabricated by the demo store.
	Mock bool
}

// ObjectInfo describes an existing object.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	LastModified time.Time
	Mock         bool
}

// PresignedURL is a time-bounded retrieval URL for one object.
type PresignedURL struct {
	URL       string
	ExpiresAt time.Time
	Mock      bool
}

// ObjectStore is the client-side view of the object store: upload an
// object, check whether a key exists, and mint a presigned download
// URL with a content-disposition override.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (*PutResult, error)
	Exists(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	Presign(ctx context.Context, bucket, key, disposition string, ttl time.Duration) (*PresignedURL, error)
}
