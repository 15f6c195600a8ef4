package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrKind
	}{
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, KindNotFound},
		{"not found", &smithy.GenericAPIError{Code: "NotFound"}, KindNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, KindAccessDenied},
		{"expired token", &smithy.GenericAPIError{Code: "ExpiredToken"}, KindCredentials},
		{"bad signature", &smithy.GenericAPIError{Code: "SignatureDoesNotMatch"}, KindCredentials},
		{"unknown api error", &smithy.GenericAPIError{Code: "SlowDown"}, KindOther},
		{"network", timeoutErr{}, KindConnectivity},
		{"wrapped network", fmt.Errorf("put: %w", timeoutErr{}), KindConnectivity},
		{"deadline", context.DeadlineExceeded, KindConnectivity},
		{"plain", errors.New("boom"), KindOther},
		{
			"provider failure",
			&smithy.OperationError{ServiceID: "S3", OperationName: "PutObject", Err: errors.New("failed to retrieve credentials")},
			KindCredentials,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestOpErrorMatchesNotFound(t *testing.T) {
	err := newOpError("head", "b", "k", &smithy.GenericAPIError{Code: "NotFound"})
	assert.True(t, errors.Is(err, ErrObjectNotFound))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, KindNotFound, KindOf(err))

	other := newOpError("put", "b", "k", errors.New("boom"))
	assert.False(t, errors.Is(other, ErrObjectNotFound))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindOther, KindOf(errors.New("boom")))
}

func TestAttachmentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="COMPLIANT_report.pdf"`, AttachmentDisposition("COMPLIANT_report.pdf"))
}
