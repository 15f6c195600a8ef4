package upload

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kumasuke/remedy/internal/bucket"
	"github.com/kumasuke/remedy/internal/storage"
)

// StoreProvider hands out the current object store for a format key.
// *identity.Resolver satisfies this.
type StoreProvider interface {
	StoreFor(key string) (storage.ObjectStore, error)
}

// QuotaGate is the slice of the quota client the coordinator uses.
type QuotaGate interface {
	CheckAndIncrement(ctx context.Context, sub, token string) (int, error)
}

// Request describes one candidate upload.
type Request struct {
	FileName    string
	Content     io.ReaderAt
	Size        int64
	ContentType string
	Format      string

	// UserSubject is the quota subject; UserIdentifier seeds the
	// storage key (typically the same value).
	UserSubject    string
	UserIdentifier string
	AuthToken      string

	Limits   Limits
	Progress func(percent int)
}

// Result is a completed upload.
type Result struct {
	Job      *Job
	Bucket   string
	Key      string
	ETag     string
	NewCount int
}

// Coordinator validates files, consumes a quota slot and performs the
// object PUT.
type Coordinator struct {
	stores     StoreProvider
	gate       QuotaGate
	registry   *bucket.Registry
	countPages PageCounter
	now        func() time.Time

	// permissive downgrades credential- and connectivity-shaped PUT
	// failures to a simulated success. Set only from the explicit
	// demo-mode configuration switch, never inferred.
	permissive bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPermissiveFallback enables the demo-mode mock-upload fallback.
func WithPermissiveFallback() Option {
	return func(c *Coordinator) { c.permissive = true }
}

// WithPageCounter overrides the PDF page counter.
func WithPageCounter(pc PageCounter) Option {
	return func(c *Coordinator) { c.countPages = pc }
}

// WithClock overrides the timestamp source used in key derivation.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator wires the coordinator's collaborators.
func NewCoordinator(stores StoreProvider, gate QuotaGate, registry *bucket.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		stores:     stores,
		gate:       gate,
		registry:   registry,
		countPages: CountPages,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate runs the local checks without consuming quota or touching
// the network.
func (c *Coordinator) Validate(req *Request) error {
	limits := req.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits
	}
	return validate(req, limits, c.countPages)
}

// Upload runs the full sequence: validate, check-and-increment the
// quota, derive the storage key, PUT. The quota call happens before the
// PUT; if it rejects, no storage call is made.
func (c *Coordinator) Upload(ctx context.Context, req *Request) (*Result, error) {
	job := NewJob(req.FileName, req.Format)

	cfg, err := c.registry.Get(req.Format)
	if err != nil {
		job.Status = StatusFailed
		return &Result{Job: job}, err
	}

	if err := c.Validate(req); err != nil {
		job.Status = StatusFailed
		return &Result{Job: job}, err
	}

	if err := job.Advance(StatusQuotaPending); err != nil {
		return &Result{Job: job}, err
	}
	newCount, err := c.gate.CheckAndIncrement(ctx, req.UserSubject, req.AuthToken)
	if err != nil {
		job.Status = StatusFailed
		return &Result{Job: job}, err
	}

	key := bucket.UploadKey(cfg, req.UserIdentifier, req.FileName, c.now())
	job.StorageKey = key

	if err := job.Advance(StatusUploading); err != nil {
		return &Result{Job: job}, err
	}
	report(req.Progress, 0)

	res, err := c.put(ctx, cfg, key, req)
	if err != nil {
		job.Status = StatusFailed
		return &Result{Job: job}, err
	}
	report(req.Progress, 100)

	if err := job.Advance(StatusUploaded); err != nil {
		return &Result{Job: job}, err
	}
	job.Mock = res.Mock

	log.Info().
		Str("job", job.ID).
		Str("key", key).
		Bool("mock", res.Mock).
		Int("quota_count", newCount).
		Msg("upload complete")

	return &Result{
		Job:      job,
		Bucket:   res.Bucket,
		Key:      res.Key,
		ETag:     res.ETag,
		NewCount: newCount,
	}, nil
}

func (c *Coordinator) put(ctx context.Context, cfg bucket.Config, key string, req *Request) (*storage.PutResult, error) {
	store, err := c.stores.StoreFor(req.Format)
	if err != nil {
		return nil, err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	var body io.Reader = io.NewSectionReader(req.Content, 0, req.Size)
	if req.Progress != nil && req.Size > 0 {
		body = &progressReader{r: body, total: req.Size, report: req.Progress}
	}

	res, err := store.Put(ctx, cfg.BucketName, key, body, req.Size, contentType)
	if err == nil {
		return res, nil
	}

	switch kind := storage.KindOf(err); {
	case c.permissive && (kind == storage.KindCredentials || kind == storage.KindConnectivity):
		log.Warn().
			Str("kind", kind.String()).
			Str("key", key).
			Msg("storage unavailable, simulating upload")
		return &storage.PutResult{
			Bucket: cfg.BucketName,
			Key:    key,
			ETag:   fmt.Sprintf("mock-etag-%d", c.now().UnixMilli()),
			Mock:   true,
		}, nil
	default:
		return nil, err
	}
}

func report(progress func(int), pct int) {
	if progress != nil {
		progress(pct)
	}
}

// progressReader reports percentages as the store consumes the body.
// It caps at 99; 100 is reported by Upload only after the PUT succeeds.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	pct := int(p.read * 100 / p.total)
	if pct > 99 {
		pct = 99
	}
	if pct > p.last {
		p.last = pct
		p.report(pct)
	}
	return n, err
}
