package authcore

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/vitrin-labs/authcore/eventlog"
	"github.com/vitrin-labs/authcore/fingerprint"
	"github.com/vitrin-labs/authcore/internal"
	"github.com/vitrin-labs/authcore/issuer"
	"github.com/vitrin-labs/authcore/storage"
	"github.com/vitrin-labs/authcore/tokenstore"
)

// Builder assembles a [Core]. Construction is allocation-only until
// Build; a builder is single-use.
type Builder struct {
	config Config
	redis  *redis.Client

	tokenIssuer  issuer.TokenIssuer
	mfaVerifier  issuer.MFAVerifier
	signalSource fingerprint.SignalSource
	notifySink   NotificationSink
	logger       *slog.Logger
	httpClient   *http.Client

	built bool
}

// New returns a builder seeded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis selects Redis as the durable storage backend. Without it
// the core runs on an in-process backend and nothing survives the
// process.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithIssuer sets the external identity service. Required.
func (b *Builder) WithIssuer(ti issuer.TokenIssuer) *Builder {
	b.tokenIssuer = ti
	return b
}

// WithMFAVerifier sets the external MFA verification oracle.
func (b *Builder) WithMFAVerifier(v issuer.MFAVerifier) *Builder {
	b.mfaVerifier = v
	return b
}

// WithSignalSource overrides the fingerprint signal source. Embedding
// applications use this to forward signals the host cannot observe
// (screen geometry, rendering hashes, font sets).
func (b *Builder) WithSignalSource(src fingerprint.SignalSource) *Builder {
	b.signalSource = src
	return b
}

// WithNotificationSink sets the sink that receives every published
// notification in addition to any subscribers.
func (b *Builder) WithNotificationSink(sink NotificationSink) *Builder {
	b.notifySink = sink
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithHTTPClient sets the client used by EnhancedFetch.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithMetricsEnabled toggles metric collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the core.
func (b *Builder) Build() (*Core, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.tokenIssuer == nil {
		return nil, errors.New("token issuer required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	var backend storage.Backend
	if b.redis != nil {
		backend = storage.NewRedis(b.redis, cfg.Storage.RedisPrefix)
	} else {
		backend = storage.NewMemory()
	}

	generator := fingerprint.NewGenerator(b.signalSource)
	current := generator.Generate()

	secret := cfg.Storage.DeviceSecret
	if len(secret) == 0 {
		secret = internal.DeriveDeviceSecret(current.ID)
	}

	tokens, err := tokenstore.NewStore(backend, secret, current.ID, logger)
	if err != nil {
		return nil, err
	}

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	core := &Core{
		config:       cfg,
		logger:       logger,
		fingerprints: generator,
		tokens:       tokens,
		events:       eventlog.New(backend, cfg.EventLog.MaxEvents, logger),
		backend:      backend,
		issuer:       b.tokenIssuer,
		mfa:          b.mfaVerifier,
		httpClient:   httpClient,
		notifier:     newNotifyDispatcher(cfg.Notify, b.notifySink),
		metrics:      NewMetrics(cfg.Metrics),
	}

	tokens.SetIntegrityFailureHook(func() {
		core.metricInc(MetricStorageIntegrityFailure)
		core.recordEvent(context.Background(), eventlog.Event{
			Type:    eventlog.TypeSecurityWarning,
			Message: "credential vault integrity check failed; vault cleared",
			Risk:    eventlog.RiskHigh,
			Warning: &eventlog.WarningDetails{Reason: "storage_integrity"},
		})
	})

	b.built = true
	return core, nil
}
