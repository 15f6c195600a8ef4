package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumasuke/remedy/internal/bucket"
	"github.com/kumasuke/remedy/internal/quota"
	"github.com/kumasuke/remedy/internal/storage"
)

type fakeStore struct {
	puts       int
	putErr     error
	consume    bool // drain the body like the real client would
	lastBucket string
	lastKey    string
	lastSize   int64
}

func (f *fakeStore) Put(ctx context.Context, b, k string, body io.Reader, size int64, ct string) (*storage.PutResult, error) {
	f.puts++
	f.lastBucket, f.lastKey, f.lastSize = b, k, size
	if f.putErr != nil {
		return nil, f.putErr
	}
	if f.consume {
		if _, err := io.Copy(io.Discard, body); err != nil {
			return nil, err
		}
	}
	return &storage.PutResult{Bucket: b, Key: k, ETag: "etag-1"}, nil
}

func (f *fakeStore) Exists(ctx context.Context, b, k string) (*storage.ObjectInfo, error) {
	return nil, storage.ErrObjectNotFound
}

func (f *fakeStore) Presign(ctx context.Context, b, k, d string, ttl time.Duration) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{URL: "https://example.invalid"}, nil
}

type fakeProvider struct{ store storage.ObjectStore }

func (f *fakeProvider) StoreFor(key string) (storage.ObjectStore, error) { return f.store, nil }

type fakeGate struct {
	count int
	limit int
	err   error
	calls int
}

func (f *fakeGate) CheckAndIncrement(ctx context.Context, sub, token string) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if f.count >= f.limit {
		return 0, quota.ErrQuotaExceeded
	}
	f.count++
	return f.count, nil
}

func testCoordinator(t *testing.T, store *fakeStore, gate *fakeGate, opts ...Option) *Coordinator {
	t.Helper()
	cfgs := bucket.Defaults("us-east-1")
	for i := range cfgs {
		cfgs[i].BucketName = "bucket-" + cfgs[i].Key
	}
	reg, err := bucket.NewRegistry(cfgs)
	require.NoError(t, err)

	opts = append([]Option{
		WithPageCounter(func(r io.ReaderAt, size int64) (int, error) { return 1, nil }),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	}, opts...)
	return NewCoordinator(&fakeProvider{store: store}, gate, reg, opts...)
}

func testRequest() *Request {
	content := strings.NewReader("%PDF-1.4 fake")
	return &Request{
		FileName:       "report.pdf",
		Content:        content,
		Size:           int64(content.Len()),
		ContentType:    "application/pdf",
		Format:         "pdf",
		UserSubject:    "user-1",
		UserIdentifier: "user-1",
		AuthToken:      "tok",
	}
}

func TestUploadSucceeds(t *testing.T) {
	store := &fakeStore{}
	gate := &fakeGate{limit: 3}
	c := testCoordinator(t, store, gate)

	var progress []int
	req := testRequest()
	req.Progress = func(p int) { progress = append(progress, p) }

	res, err := c.Upload(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, res.NewCount)
	assert.Equal(t, "pdf/user-1_1700000000_report.pdf", res.Key)
	assert.Equal(t, "bucket-pdf", res.Bucket)
	assert.Equal(t, StatusUploaded, res.Job.Status)
	assert.False(t, res.Job.Mock)
	assert.Equal(t, 1, store.puts)
	assert.Equal(t, []int{0, 100}, progress)
}

func TestUploadReportsIntermediateProgress(t *testing.T) {
	store := &fakeStore{consume: true}
	gate := &fakeGate{limit: 3}
	c := testCoordinator(t, store, gate)

	var progress []int
	req := testRequest()
	content := strings.NewReader(strings.Repeat("x", 20000))
	req.Content = content
	req.Size = int64(content.Len())
	req.Progress = func(p int) { progress = append(progress, p) }

	_, err := c.Upload(context.Background(), req)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(progress), 3)
	assert.Equal(t, 0, progress[0])
	assert.Equal(t, 100, progress[len(progress)-1])

	intermediate := false
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress must not move backwards")
		if progress[i] > 0 && progress[i] < 100 {
			intermediate = true
		}
	}
	assert.True(t, intermediate, "expected at least one mid-upload percentage")
}

func TestUploadQuotaExceededMakesNoStorageCalls(t *testing.T) {
	store := &fakeStore{}
	gate := &fakeGate{limit: 3, count: 3}
	c := testCoordinator(t, store, gate)

	res, err := c.Upload(context.Background(), testRequest())
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	assert.Equal(t, StatusFailed, res.Job.Status)
	assert.Zero(t, store.puts, "no PUT may be attempted after a quota rejection")
}

func TestUploadQuotaAcceptsExactlyLimit(t *testing.T) {
	store := &fakeStore{}
	gate := &fakeGate{limit: 3}
	c := testCoordinator(t, store, gate)

	for i := 0; i < 3; i++ {
		res, err := c.Upload(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, i+1, res.NewCount)
	}
	_, err := c.Upload(context.Background(), testRequest())
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
	assert.Equal(t, 3, store.puts)
}

func TestUploadValidationFailureSkipsQuota(t *testing.T) {
	store := &fakeStore{}
	gate := &fakeGate{limit: 3}
	c := testCoordinator(t, store, gate)

	req := testRequest()
	req.FileName = "report.txt"

	res, err := c.Upload(context.Background(), req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StatusFailed, res.Job.Status)
	assert.Zero(t, gate.calls)
	assert.Zero(t, store.puts)
}

func credentialPutError() error {
	return &storage.OpError{
		Op: "put", Bucket: "b", Key: "k",
		Kind: storage.KindCredentials,
		Err:  &smithy.GenericAPIError{Code: "ExpiredToken"},
	}
}

func TestUploadPermissiveFallsBackToMock(t *testing.T) {
	store := &fakeStore{putErr: credentialPutError()}
	gate := &fakeGate{limit: 3}
	c := testCoordinator(t, store, gate, WithPermissiveFallback())

	res, err := c.Upload(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, res.Job.Mock)
	assert.Contains(t, res.ETag, "mock-etag-")
	assert.Equal(t, StatusUploaded, res.Job.Status)
}

func TestUploadStrictSurfacesPutFailure(t *testing.T) {
	store := &fakeStore{putErr: credentialPutError()}
	gate := &fakeGate{limit: 3}
	c := testCoordinator(t, store, gate)

	res, err := c.Upload(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, storage.KindCredentials, storage.KindOf(err))
	assert.Equal(t, StatusFailed, res.Job.Status)
}

func TestUploadPermissiveDoesNotMaskOtherErrors(t *testing.T) {
	store := &fakeStore{putErr: &storage.OpError{
		Op: "put", Bucket: "b", Key: "k",
		Kind: storage.KindAccessDenied,
		Err:  errors.New("access denied"),
	}}
	gate := &fakeGate{limit: 3}
	c := testCoordinator(t, store, gate, WithPermissiveFallback())

	_, err := c.Upload(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, storage.KindAccessDenied, storage.KindOf(err))
}

func TestJobTransitionsForwardOnly(t *testing.T) {
	j := NewJob("report.pdf", "pdf")
	require.NoError(t, j.Advance(StatusValidating)) // re-selection
	require.NoError(t, j.Advance(StatusQuotaPending))
	require.NoError(t, j.Advance(StatusUploading))
	require.NoError(t, j.Advance(StatusUploaded))
	require.NoError(t, j.Advance(StatusPolling))
	require.NoError(t, j.Advance(StatusCompleted))

	assert.Error(t, j.Advance(StatusPolling))
	assert.Error(t, j.Advance(StatusFailed))
	assert.True(t, j.Status.Terminal())
}
