// Package download issues time-bounded retrieval URLs for remediated
// objects, with a content-disposition override so the user sees a
// friendly filename instead of the internal storage key.
package download

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kumasuke/remedy/internal/bucket"
	"github.com/kumasuke/remedy/internal/storage"
	"github.com/kumasuke/remedy/internal/upload"
)

// AnonymousTTL caps URL lifetime for unauthenticated sessions.
const AnonymousTTL = 5 * time.Minute

// ObjectNotFoundError reports that the result object is not there yet.
// Callers must only issue URLs after the poller has signalled success.
type ObjectNotFoundError struct {
	Bucket string
	Key    string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("result object %s/%s does not exist", e.Bucket, e.Key)
}

// Grant is an issued download URL.
type Grant struct {
	URL       string
	FileName  string
	ExpiresAt time.Time
	Mock      bool
}

// Issuer mints presigned download URLs through the credential
// resolver's stores.
type Issuer struct {
	stores   upload.StoreProvider
	registry *bucket.Registry

	// Authenticated sessions keep the requested TTL; anonymous ones are
	// clamped to AnonymousTTL. Policy, not correctness.
	Authenticated bool
}

// NewIssuer wires an issuer.
func NewIssuer(stores upload.StoreProvider, registry *bucket.Registry) *Issuer {
	return &Issuer{stores: stores, registry: registry}
}

// Issue presigns a GET for the given internal key, with downloadName as
// the attachment filename.
func (i *Issuer) Issue(ctx context.Context, format, internalKey, downloadName string, ttl time.Duration) (*Grant, error) {
	cfg, err := i.registry.Get(format)
	if err != nil {
		return nil, err
	}
	store, err := i.stores.StoreFor(format)
	if err != nil {
		return nil, err
	}

	if _, err := store.Exists(ctx, cfg.BucketName, internalKey); err != nil {
		if storage.IsNotFound(err) {
			return nil, &ObjectNotFoundError{Bucket: cfg.BucketName, Key: internalKey}
		}
		return nil, err
	}

	if !i.Authenticated && ttl > AnonymousTTL {
		ttl = AnonymousTTL
	}

	signed, err := store.Presign(ctx, cfg.BucketName, internalKey, storage.AttachmentDisposition(downloadName), ttl)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("key", internalKey).
		Str("filename", downloadName).
		Time("expires", signed.ExpiresAt).
		Msg("download url issued")

	return &Grant{
		URL:       signed.URL,
		FileName:  downloadName,
		ExpiresAt: signed.ExpiresAt,
		Mock:      signed.Mock,
	}, nil
}
