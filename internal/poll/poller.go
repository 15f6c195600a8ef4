// Package poll watches the object store for the remediation pipeline's
// result object. The client never receives a push notification; it
// derives the expected output key and checks for its existence at a
// fixed interval until found, failed or timed out.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kumasuke/remedy/internal/bucket"
	"github.com/kumasuke/remedy/internal/storage"
	"github.com/kumasuke/remedy/internal/upload"
)

// StatusProcessing is reported on every check that finds nothing yet.
const StatusProcessing = "processing"

// TimeoutError reports that the polling window closed with no result.
type TimeoutError struct {
	Elapsed  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("processing timeout: no result after %s (%d checks)", e.Elapsed.Round(time.Second), e.Attempts)
}

// Handlers receive polling outcomes. Any handler may be nil.
type Handlers struct {
	OnStatus   func(status string)
	OnComplete func(info *storage.ObjectInfo)
	OnError    func(err error)
}

// Options tune a Poller.
type Options struct {
	Interval    time.Duration
	MaxWait     time.Duration
	MaxAttempts int

	// Demo synthesizes a completion instead of reporting a timeout.
	// It is set only from the explicit demo-mode configuration.
	Demo bool
}

// Poller runs completion-polling sessions. At most one session is
// active per poller; starting a new one cancels its predecessor so two
// timers can never race against the same caller state.
type Poller struct {
	stores   upload.StoreProvider
	registry *bucket.Registry
	opts     Options
	now      func() time.Time

	mu     sync.Mutex
	active *Session
}

// NewPoller wires a poller. Zero option fields get the production
// defaults: 30s interval, 20m window, 40 attempts.
func NewPoller(stores upload.StoreProvider, registry *bucket.Registry, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 20 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 40
	}
	return &Poller{stores: stores, registry: registry, opts: opts, now: time.Now}
}

// Session is one cancellable polling run. Stop is idempotent and, once
// it returns, no further handler will be invoked.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}
	stop   sync.Once
}

// Stop cancels the session and waits for its timer goroutine to exit.
func (s *Session) Stop() {
	s.stop.Do(s.cancel)
	<-s.done
}

// Done exposes completion for callers that select on it.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start begins polling for job's result object. The expected output
// key is derived deterministically from the uploaded key and format.
func (p *Poller) Start(ctx context.Context, job *upload.Job, h Handlers) (*Session, error) {
	cfg, err := p.registry.Get(job.Format)
	if err != nil {
		return nil, err
	}
	store, err := p.stores.StoreFor(job.Format)
	if err != nil {
		return nil, err
	}
	if err := job.Advance(upload.StatusPolling); err != nil {
		return nil, err
	}

	outputKey := bucket.OutputKey(cfg, bucket.BaseName(job.StorageKey))

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if p.active != nil {
		prev := p.active
		p.mu.Unlock()
		prev.Stop()
		p.mu.Lock()
	}
	p.active = s
	p.mu.Unlock()

	log.Info().
		Str("job", job.ID).
		Str("output_key", outputKey).
		Dur("interval", p.opts.Interval).
		Dur("max_wait", p.opts.MaxWait).
		Msg("polling for remediation result")

	go p.run(ctx, s, job, cfg, store, outputKey, h)
	return s, nil
}

func (p *Poller) run(ctx context.Context, s *Session, job *upload.Job, cfg bucket.Config, store storage.ObjectStore, outputKey string, h Handlers) {
	defer close(s.done)

	started := p.now()
	deadline := started.Add(p.opts.MaxWait)
	attempts := 0

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		// The deadline is wall-clock based so skipped ticks (a
		// suspended process, a loaded scheduler) cannot extend it.
		if p.now().After(deadline) || attempts >= p.opts.MaxAttempts {
			p.finishTimeout(job, cfg, store, outputKey, started, attempts, h)
			return
		}

		attempts++
		info, err := store.Exists(ctx, cfg.BucketName, outputKey)
		switch {
		case err == nil:
			job.Status = upload.StatusCompleted
			log.Info().Str("job", job.ID).Int("attempts", attempts).Msg("result object found")
			if h.OnComplete != nil {
				h.OnComplete(info)
			}
			return
		case storage.IsNotFound(err):
			log.Debug().Str("job", job.ID).Int("attempt", attempts).Msg("result not ready")
			if h.OnStatus != nil {
				h.OnStatus(StatusProcessing)
			}
		case ctx.Err() != nil:
			return
		default:
			job.Status = upload.StatusFailed
			if h.OnError != nil {
				h.OnError(err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) finishTimeout(job *upload.Job, cfg bucket.Config, store storage.ObjectStore, outputKey string, started time.Time, attempts int, h Handlers) {
	elapsed := p.now().Sub(started)
	if p.opts.Demo {
		// Simulation for environments with no backend: the window
		// closing stands in for the pipeline finishing. The simulated
		// store learns about the result so a later existence check
		// (the download issuer's) agrees with the completion.
		job.Status = upload.StatusCompleted
		log.Info().Str("job", job.ID).Msg("demo mode: synthesizing completion")
		if ds, ok := store.(*storage.DemoStore); ok {
			ds.MarkCompleted(outputKey)
		}
		if h.OnComplete != nil {
			h.OnComplete(&storage.ObjectInfo{
				Bucket:       cfg.BucketName,
				Key:          outputKey,
				Size:         1 << 20,
				LastModified: p.now(),
				Mock:         true,
			})
		}
		return
	}
	job.Status = upload.StatusTimedOut
	if h.OnError != nil {
		h.OnError(&TimeoutError{Elapsed: elapsed, Attempts: attempts})
	}
}
