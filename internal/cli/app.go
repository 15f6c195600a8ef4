package cli

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kumasuke/remedy/internal/bucket"
	"github.com/kumasuke/remedy/internal/config"
	"github.com/kumasuke/remedy/internal/download"
	"github.com/kumasuke/remedy/internal/identity"
	"github.com/kumasuke/remedy/internal/poll"
	"github.com/kumasuke/remedy/internal/quota"
	"github.com/kumasuke/remedy/internal/storage"
	"github.com/kumasuke/remedy/internal/upload"
)

var (
	configFile string
	mode       string
	authToken  string
	logLevel   string
)

// app bundles the wired components behind one upload session.
type app struct {
	cfg         *config.Config
	registry    *bucket.Registry
	stores      upload.StoreProvider
	resolver    *identity.Resolver
	coordinator *upload.Coordinator
	poller      *poll.Poller
	issuer      *download.Issuer

	// quotaGate is nil in demo mode; uploads then count locally.
	quotaGate *quota.Gate
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override with command line flags
	if mode != "" {
		cfg.Mode = mode
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if authToken == "" {
		authToken = os.Getenv("REMEDY_AUTH_TOKEN")
	}

	setupLogging(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp builds the full component graph for the configured mode. Demo
// mode substitutes simulated stores and a local quota counter at this
// seam; nothing downstream inspects errors to guess.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, registry: registry}

	var gate upload.QuotaGate
	if cfg.Demo() {
		a.stores = newDemoProvider()
		gate = &localGate{}
	} else {
		resolver, err := buildResolver(ctx, cfg, registry)
		if err != nil {
			return nil, err
		}
		a.resolver = resolver
		a.stores = resolver
		a.quotaGate = quota.NewGate(cfg.Quota.APIURL)
		gate = a.quotaGate
	}

	opts := []upload.Option{}
	if cfg.Demo() {
		opts = append(opts, upload.WithPermissiveFallback())
	}
	a.coordinator = upload.NewCoordinator(a.stores, gate, registry, opts...)

	a.poller = poll.NewPoller(a.stores, registry, poll.Options{
		Interval:    time.Duration(cfg.Poll.IntervalSeconds) * time.Second,
		MaxWait:     time.Duration(cfg.Poll.TimeoutMinutes) * time.Minute,
		MaxAttempts: cfg.Poll.MaxAttempts,
		Demo:        cfg.Demo(),
	})

	a.issuer = download.NewIssuer(a.stores, registry)
	a.issuer.Authenticated = authToken != ""

	return a, nil
}

func buildRegistry(cfg *config.Config) (*bucket.Registry, error) {
	if len(cfg.Buckets) == 0 {
		// Demo mode runs without configured buckets; the names never
		// reach real storage.
		defaults := bucket.Defaults(cfg.Identity.Region)
		for i := range defaults {
			defaults[i].BucketName = "demo-" + defaults[i].Key
		}
		return bucket.NewRegistry(defaults)
	}

	configs := make([]bucket.Config, 0, len(cfg.Buckets))
	for _, b := range cfg.Buckets {
		region := b.Region
		if region == "" {
			region = cfg.Identity.Region
		}
		configs = append(configs, bucket.Config{
			Key:              b.Key,
			BucketName:       b.BucketName,
			Region:           region,
			UploadFolder:     b.UploadFolder,
			OutputFolder:     b.OutputFolder,
			OutputPrefix:     b.OutputPrefix,
			OutputExtension:  b.OutputExtension,
			ReplaceExtension: b.ReplaceExtension,
		})
	}
	return bucket.NewRegistry(configs)
}

func buildResolver(ctx context.Context, cfg *config.Config, registry *bucket.Registry) (*identity.Resolver, error) {
	var broker *identity.Broker
	if cfg.Identity.IdentityPoolID != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Identity.Region),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to configure identity client: %w", err)
		}
		broker = identity.NewBroker(cognitoidentity.NewFromConfig(awsCfg), cfg.Identity.IdentityPoolID)
	}

	var static *identity.StaticCredentials
	if cfg.Identity.AccessKey != "" && cfg.Identity.SecretKey != "" {
		static = &identity.StaticCredentials{
			AccessKeyID:     cfg.Identity.AccessKey,
			SecretAccessKey: cfg.Identity.SecretKey,
		}
	}

	resolver, err := identity.NewResolver(identity.ResolverOptions{
		Registry:       registry,
		Broker:         broker,
		Static:         static,
		ProviderKey:    cfg.Identity.ProviderKey,
		AllowAnonymous: cfg.Identity.AllowAnonymous,
		Region:         cfg.Identity.Region,
	})
	if err != nil {
		return nil, err
	}
	if err := resolver.OnAuthStateChange(authToken, authToken != ""); err != nil {
		return nil, err
	}

	log.Info().Stringer("tier", resolver.Tier()).Msg("credential tier selected")
	return resolver, nil
}

// demoProvider serves one shared simulated store for every format.
type demoProvider struct {
	store *storage.DemoStore
}

func newDemoProvider() *demoProvider {
	return &demoProvider{store: storage.NewDemoStore()}
}

func (p *demoProvider) StoreFor(key string) (storage.ObjectStore, error) {
	return p.store, nil
}

// localGate counts uploads in memory for demo sessions. The real gate
// keeps the count server-side.
type localGate struct {
	mu    sync.Mutex
	count int
}

func (g *localGate) CheckAndIncrement(ctx context.Context, sub, token string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count++
	return g.count, nil
}

func setupLogging(cfg config.LoggingConfig) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
