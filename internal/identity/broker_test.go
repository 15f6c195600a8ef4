package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIdentityAPI implements IdentityAPI and records the login maps it
// was presented with.
type fakeIdentityAPI struct {
	identityID string
	expiry     time.Time

	getIDErr error
	credsErr error

	getIDLogins map[string]string
	credsLogins map[string]string
	getIDCalls  int
	credsCalls  int
}

func (f *fakeIdentityAPI) GetId(ctx context.Context, params *cognitoidentity.GetIdInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error) {
	f.getIDCalls++
	f.getIDLogins = params.Logins
	if f.getIDErr != nil {
		return nil, f.getIDErr
	}
	return &cognitoidentity.GetIdOutput{IdentityId: aws.String(f.identityID)}, nil
}

func (f *fakeIdentityAPI) GetCredentialsForIdentity(ctx context.Context, params *cognitoidentity.GetCredentialsForIdentityInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error) {
	f.credsCalls++
	f.credsLogins = params.Logins
	if f.credsErr != nil {
		return nil, f.credsErr
	}
	return &cognitoidentity.GetCredentialsForIdentityOutput{
		IdentityId: params.IdentityId,
		Credentials: &types.Credentials{
			AccessKeyId:  aws.String("AKIA-test"),
			SecretKey:    aws.String("secret"),
			SessionToken: aws.String("session"),
			Expiration:   aws.Time(f.expiry),
		},
	}, nil
}

func TestBrokerExchange(t *testing.T) {
	api := &fakeIdentityAPI{
		identityID: "us-east-1:abc-123",
		expiry:     time.Now().Add(time.Hour),
	}
	b := NewBroker(api, "us-east-1:pool")

	res, err := b.Exchange(context.Background(), FederatedLogin{
		ProviderKey: "https://issuer.example.com/pool",
		Token:       "id-token",
	})
	require.NoError(t, err)

	assert.Equal(t, "us-east-1:abc-123", res.IdentityID)
	assert.Equal(t, "AKIA-test", res.Credentials.AccessKeyID)
	assert.True(t, res.Credentials.Expiration.After(time.Now()),
		"expiration must be strictly in the future at return time")

	// Both calls present the same login map verbatim.
	want := map[string]string{"https://issuer.example.com/pool": "id-token"}
	assert.Equal(t, want, api.getIDLogins)
	assert.Equal(t, want, api.credsLogins)
}

func TestBrokerExchangeAnonymous(t *testing.T) {
	api := &fakeIdentityAPI{identityID: "us-east-1:anon", expiry: time.Now().Add(time.Hour)}
	b := NewBroker(api, "us-east-1:pool")

	res, err := b.ExchangeAnonymous(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "us-east-1:anon", res.IdentityID)
	assert.Nil(t, api.getIDLogins)
	assert.Nil(t, api.credsLogins)
}

func TestBrokerExchangeGetIDFails(t *testing.T) {
	api := &fakeIdentityAPI{getIDErr: errors.New("expired token")}
	b := NewBroker(api, "us-east-1:pool")

	_, err := b.Exchange(context.Background(), FederatedLogin{ProviderKey: "issuer", Token: "t"})
	var xerr *ExchangeError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "get-id", xerr.Stage)
	assert.Zero(t, api.credsCalls, "must not attempt the credentials call after get-id fails")
}

func TestBrokerExchangeCredentialsFails(t *testing.T) {
	api := &fakeIdentityAPI{identityID: "id", credsErr: errors.New("misconfigured provider")}
	b := NewBroker(api, "us-east-1:pool")

	_, err := b.Exchange(context.Background(), FederatedLogin{ProviderKey: "issuer", Token: "t"})
	var xerr *ExchangeError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "get-credentials", xerr.Stage)
}
