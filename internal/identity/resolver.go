package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/kumasuke/remedy/internal/bucket"
	"github.com/kumasuke/remedy/internal/storage"
)

// Tier identifies which credential strategy a resolver is using.
type Tier int

const (
	// TierNone means no strategy applies; storage operations cannot be
	// issued. Demo mode substitutes a simulated store at composition
	// time instead of reaching this resolver.
	TierNone Tier = iota
	TierStatic
	TierFederated
	TierAnonymous
)

func (t Tier) String() string {
	switch t {
	case TierStatic:
		return "static"
	case TierFederated:
		return "federated"
	case TierAnonymous:
		return "anonymous"
	default:
		return "none"
	}
}

// StaticCredentials are explicit developer credentials, the highest
// priority tier. Intended for local development only.
type StaticCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// ResolverOptions configure a Resolver.
type ResolverOptions struct {
	Registry *bucket.Registry
	Broker   *Broker
	Static   *StaticCredentials
	// ProviderKey is the issuer URL used as the login-map key for the
	// federated tier.
	ProviderKey string
	// AllowAnonymous enables the anonymous identity-pool tier.
	AllowAnonymous bool
	Region         string
}

// Resolver owns one storage client per bucket config, rebuilt whenever
// the authentication state changes. The cached identity id and the
// credentials cache inside each client belong to this resolver and are
// replaced, never mutated, on a state change. In-flight operations keep
// whatever client they captured.
type Resolver struct {
	opts ResolverOptions

	mu            sync.Mutex
	token         string
	authenticated bool
	identityID    string
	tier          Tier
	gen           uint64
	stores        map[string]storage.ObjectStore
}

// NewResolver builds the resolver and its initial (unauthenticated)
// clients.
func NewResolver(opts ResolverOptions) (*Resolver, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("identity: resolver requires a bucket registry")
	}
	r := &Resolver{opts: opts}
	if err := r.rebuild(); err != nil {
		return nil, err
	}
	return r, nil
}

// OnAuthStateChange invalidates cached identity state and rebuilds all
// clients when either the authenticated flag flips or the token
// changes. Stale federated credentials never survive a state change.
func (r *Resolver) OnAuthStateChange(token string, isAuthenticated bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token == r.token && isAuthenticated == r.authenticated {
		return nil
	}
	r.token = token
	r.authenticated = isAuthenticated
	r.identityID = ""
	log.Debug().Bool("authenticated", isAuthenticated).Msg("auth state changed, rebuilding storage clients")
	return r.rebuild()
}

// StoreFor returns the current store for the given format key. Callers
// must not hold the returned store across auth-state changes when they
// want fresh credentials.
func (r *Resolver) StoreFor(key string) (storage.ObjectStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[key]
	if !ok {
		return nil, fmt.Errorf("identity: no storage client for format %q", key)
	}
	return s, nil
}

// IdentityID returns the cached identity id, empty until a federated or
// anonymous exchange has completed.
func (r *Resolver) IdentityID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identityID
}

// Tier reports the credential strategy selected at the last rebuild.
func (r *Resolver) Tier() Tier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tier
}

// rebuild selects the credential tier and constructs a fresh client per
// bucket. Caller holds r.mu (or is the constructor).
func (r *Resolver) rebuild() error {
	r.gen++
	provider, tier := r.selectProvider()
	r.tier = tier

	// The old clients hold providers bound to the previous token. Drop
	// them before building replacements: a failed rebuild must degrade
	// to no client, never keep serving stale credentials.
	r.stores = map[string]storage.ObjectStore{}

	stores := make(map[string]storage.ObjectStore)
	for _, key := range r.opts.Registry.Keys() {
		cfg, err := r.opts.Registry.Get(key)
		if err != nil {
			return err
		}
		if tier == TierNone {
			continue
		}
		client, err := r.newClient(cfg, provider)
		if err != nil {
			return fmt.Errorf("identity: building client for %q: %w", key, err)
		}
		stores[key] = storage.NewS3Store(client)
	}
	r.stores = stores
	return nil
}

// selectProvider applies the tier order: static developer credentials,
// then federated, then anonymous.
func (r *Resolver) selectProvider() (aws.CredentialsProvider, Tier) {
	if s := r.opts.Static; s != nil && s.AccessKeyID != "" && s.SecretAccessKey != "" {
		return credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""), TierStatic
	}
	gen := r.gen
	if r.authenticated && r.token != "" && r.opts.Broker != nil {
		login := FederatedLogin{ProviderKey: r.opts.ProviderKey, Token: r.token}
		return aws.NewCredentialsCache(&brokerProvider{
			exchange: func(ctx context.Context) (*ExchangeResult, error) {
				return r.opts.Broker.Exchange(ctx, login)
			},
			record: func(id string) { r.recordIdentity(gen, id) },
		}), TierFederated
	}
	if r.opts.AllowAnonymous && r.opts.Broker != nil {
		return aws.NewCredentialsCache(&brokerProvider{
			exchange: func(ctx context.Context) (*ExchangeResult, error) {
				return r.opts.Broker.ExchangeAnonymous(ctx)
			},
			record: func(id string) { r.recordIdentity(gen, id) },
		}), TierAnonymous
	}
	return nil, TierNone
}

func (r *Resolver) newClient(cfg bucket.Config, provider aws.CredentialsProvider) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = r.opts.Region
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(provider),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg), nil
}

// recordIdentity is called from provider Retrieve. A provider captured
// before a state change must not write its stale identity id into the
// rebuilt cache, so writes are gated on the generation the provider was
// built for.
func (r *Resolver) recordIdentity(gen uint64, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen == r.gen {
		r.identityID = id
	}
}

// brokerProvider adapts the broker to aws.CredentialsProvider. Wrapped
// in aws.NewCredentialsCache so the SDK refreshes near expiry; the
// cache itself is discarded on every rebuild.
type brokerProvider struct {
	exchange func(ctx context.Context) (*ExchangeResult, error)
	record   func(identityID string)
}

func (p *brokerProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	res, err := p.exchange(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}
	p.record(res.IdentityID)
	return aws.Credentials{
		AccessKeyID:     res.Credentials.AccessKeyID,
		SecretAccessKey: res.Credentials.SecretAccessKey,
		SessionToken:    res.Credentials.SessionToken,
		CanExpire:       !res.Credentials.Expiration.IsZero(),
		Expires:         res.Credentials.Expiration,
		Source:          "IdentityPoolBroker",
	}, nil
}
