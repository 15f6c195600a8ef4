package storage

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/smithy-go"
)

// ErrKind partitions storage failures so callers can branch on the
// failure class structurally instead of matching message text.
type ErrKind int

const (
	KindOther ErrKind = iota
	KindCredentials
	KindConnectivity
	KindAccessDenied
	KindNotFound
)

func (k ErrKind) String() string {
	switch k {
	case KindCredentials:
		return "credentials"
	case KindConnectivity:
		return "connectivity"
	case KindAccessDenied:
		return "access-denied"
	case KindNotFound:
		return "not-found"
	default:
		return "other"
	}
}

// ErrObjectNotFound reports that the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// OpError wraps a failed storage operation with its classification.
type OpError struct {
	Op     string
	Bucket string
	Key    string
	Kind   ErrKind
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("storage %s %s/%s: %s: %v", e.Op, e.Bucket, e.Key, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrObjectNotFound) match not-found OpErrors.
func (e *OpError) Is(target error) bool {
	return target == ErrObjectNotFound && e.Kind == KindNotFound
}

// KindOf returns the classification of err, or KindOther when err is
// not an OpError.
func KindOf(err error) ErrKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindOther
}

// classify maps SDK errors onto the taxonomy. API error codes come from
// smithy; anything that never reached the service counts as
// connectivity.
func classify(err error) ErrKind {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return KindNotFound
		case "AccessDenied", "Forbidden":
			return KindAccessDenied
		case "InvalidAccessKeyId", "ExpiredToken", "TokenRefreshRequired",
			"InvalidToken", "SignatureDoesNotMatch", "CredentialsNotFound",
			"NotAuthorizedException", "UnrecognizedClientException":
			return KindCredentials
		}
		return KindOther
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindConnectivity
	}

	// Credential providers fail before the request is signed; the SDK
	// surfaces those as operation errors without an API response.
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		return KindCredentials
	}
	return KindOther
}

func newOpError(op, bucket, key string, err error) *OpError {
	return &OpError{Op: op, Bucket: bucket, Key: key, Kind: classify(err), Err: err}
}
