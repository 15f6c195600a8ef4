package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Store implements ObjectStore against a real S3 endpoint.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
}

// NewS3Store wraps an SDK client.
func NewS3Store(client *s3.Client) *S3Store {
	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
	}
}

// Put uploads an object.
func (s *S3Store) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (*PutResult, error) {
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, newOpError("put", bucket, key, err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Int64("size", size).Msg("object uploaded")
	return &PutResult{
		Bucket: bucket,
		Key:    key,
		ETag:   aws.ToString(out.ETag),
	}, nil
}

// Exists checks whether the key is present. A missing key returns an
// OpError with KindNotFound (matching ErrObjectNotFound); any other
// failure is classified as usual.
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, newOpError("head", bucket, key, err)
	}
	return &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Presign issues a time-bounded GET URL carrying a content-disposition
// override so the browser-visible filename differs from the internal
// storage key.
func (s *S3Store) Presign(ctx context.Context, bucket, key, disposition string, ttl time.Duration) (*PresignedURL, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(disposition),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, newOpError("presign", bucket, key, err)
	}
	return &PresignedURL{
		URL:       req.URL,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// AttachmentDisposition formats a content-disposition header for the
// given download filename.
func AttachmentDisposition(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}

var _ ObjectStore = (*S3Store)(nil)

// IsNotFound reports whether err is a missing-object failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}
