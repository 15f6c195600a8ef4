package storage

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DemoStore simulates the object store for environments with no real
// backend. It is selected only by explicit demo-mode configuration;
// nothing in this package falls back to it on error.
type DemoStore struct {
	mu        sync.Mutex
	attempts  map[string]int
	completed map[string]bool

	// Each Exists call for a key raises the completion probability by
	// Ramp, starting from Base and capped at 0.8.
	Base float64
	Ramp float64

	// rand is stubbed in tests for determinism.
	rand func() float64
}

// NewDemoStore returns a simulation with the original ramp profile:
// 15% base completion chance, +10% per attempt, capped at 80%.
func NewDemoStore() *DemoStore {
	return &DemoStore{
		attempts:  make(map[string]int),
		completed: make(map[string]bool),
		Base:      0.15,
		Ramp:      0.10,
		rand:      rand.Float64,
	}
}

// Put fabricates a successful upload.
func (d *DemoStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (*PutResult, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return nil, newOpError("put", bucket, key, err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Msg("demo mode: simulated upload")
	return &PutResult{
		Bucket: bucket,
		Key:    key,
		ETag:   fmt.Sprintf("mock-etag-%d", time.Now().UnixMilli()),
		Mock:   true,
	}, nil
}

// Exists simulates the pipeline producing the result object with a
// probability that grows per attempt. Once a key has reported complete
// it stays complete, like a real result object would.
func (d *DemoStore) Exists(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	d.mu.Lock()
	attempt := d.attempts[key]
	d.attempts[key] = attempt + 1
	done := d.completed[key]
	d.mu.Unlock()

	if !done {
		chance := d.Base + float64(attempt)*d.Ramp
		if chance > 0.8 {
			chance = 0.8
		}
		if d.rand() >= chance {
			return nil, &OpError{Op: "head", Bucket: bucket, Key: key, Kind: KindNotFound, Err: ErrObjectNotFound}
		}
		d.mu.Lock()
		d.completed[key] = true
		d.mu.Unlock()
	}
	log.Info().Str("key", key).Int("attempt", attempt+1).Msg("demo mode: simulated completion")
	return &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         1 << 20,
		LastModified: time.Now(),
		Mock:         true,
	}, nil
}

// MarkCompleted records key as produced, so later existence checks see
// it. Used when a completion is synthesized outside of Exists.
func (d *DemoStore) MarkCompleted(key string) {
	d.mu.Lock()
	d.completed[key] = true
	d.mu.Unlock()
}

// Presign fabricates a download URL.
func (d *DemoStore) Presign(ctx context.Context, bucket, key, disposition string, ttl time.Duration) (*PresignedURL, error) {
	expires := time.Now().Add(ttl)
	return &PresignedURL{
		URL:       fmt.Sprintf("https://demo-download.invalid/%s/%s?expires=%d", bucket, key, expires.Unix()),
		ExpiresAt: expires,
		Mock:      true,
	}, nil
}

var _ ObjectStore = (*DemoStore)(nil)
