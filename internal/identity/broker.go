// Package identity exchanges federated identity tokens for temporary
// storage credentials and resolves per-bucket storage clients through a
// tiered credential strategy.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/rs/zerolog/log"
)

// FederatedLogin pairs an identity provider with a bearer token proving
// end-user authentication. It lives only for the current session.
type FederatedLogin struct {
	// ProviderKey is the identity provider's issuer URL.
	ProviderKey string
	Token       string
}

// TemporaryCredentials are short-lived storage credentials. They must
// not be used past Expiration.
type TemporaryCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// ExchangeResult is the outcome of one identity exchange.
type ExchangeResult struct {
	Credentials TemporaryCredentials
	IdentityID  string
}

// ExchangeError reports a failed identity exchange. It is fatal to the
// current upload attempt; retrying without a fresh token will not help.
type ExchangeError struct {
	Stage string // "get-id" or "get-credentials"
	Err   error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("identity exchange failed at %s: %v", e.Stage, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// IdentityAPI is the slice of the identity-pool service the broker
// calls.
type IdentityAPI interface {
	GetId(ctx context.Context, params *cognitoidentity.GetIdInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error)
	GetCredentialsForIdentity(ctx context.Context, params *cognitoidentity.GetCredentialsForIdentityInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error)
}

// Broker performs the two-call identity exchange: resolve an identity
// id for the login, then fetch temporary credentials for that identity.
// Both calls present the same login map verbatim. The broker does not
// cache; invalidation belongs to the Resolver.
type Broker struct {
	api    IdentityAPI
	poolID string
}

// NewBroker returns a broker against the given identity pool.
func NewBroker(api IdentityAPI, poolID string) *Broker {
	return &Broker{api: api, poolID: poolID}
}

// Exchange trades a federated login for temporary credentials.
func (b *Broker) Exchange(ctx context.Context, login FederatedLogin) (*ExchangeResult, error) {
	return b.exchange(ctx, map[string]string{login.ProviderKey: login.Token})
}

// ExchangeAnonymous obtains credentials from the identity pool without
// a federated login, for unauthenticated access where permitted.
func (b *Broker) ExchangeAnonymous(ctx context.Context) (*ExchangeResult, error) {
	return b.exchange(ctx, nil)
}

func (b *Broker) exchange(ctx context.Context, logins map[string]string) (*ExchangeResult, error) {
	idOut, err := b.api.GetId(ctx, &cognitoidentity.GetIdInput{
		IdentityPoolId: aws.String(b.poolID),
		Logins:         logins,
	})
	if err != nil {
		return nil, &ExchangeError{Stage: "get-id", Err: err}
	}

	credOut, err := b.api.GetCredentialsForIdentity(ctx, &cognitoidentity.GetCredentialsForIdentityInput{
		IdentityId: idOut.IdentityId,
		Logins:     logins,
	})
	if err != nil {
		return nil, &ExchangeError{Stage: "get-credentials", Err: err}
	}
	c := credOut.Credentials
	if c == nil || c.AccessKeyId == nil || c.SecretKey == nil {
		return nil, &ExchangeError{Stage: "get-credentials", Err: fmt.Errorf("identity pool returned no credentials")}
	}

	log.Debug().Str("identity_id", aws.ToString(idOut.IdentityId)).Msg("identity exchange complete")

	return &ExchangeResult{
		Credentials: TemporaryCredentials{
			AccessKeyID:     aws.ToString(c.AccessKeyId),
			SecretAccessKey: aws.ToString(c.SecretKey),
			SessionToken:    aws.ToString(c.SessionToken),
			Expiration:      aws.ToTime(c.Expiration),
		},
		IdentityID: aws.ToString(idOut.IdentityId),
	}, nil
}
