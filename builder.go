package castellan

import (
	"errors"

	"github.com/castellan-dev/castellan/cookie"
	"github.com/castellan-dev/castellan/internal/audit"
	"github.com/castellan-dev/castellan/password"
	"github.com/castellan-dev/castellan/permission"
	"github.com/castellan-dev/castellan/session"
	"github.com/castellan-dev/castellan/throttle"
	"github.com/castellan-dev/castellan/ticket"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single-use; Build fails on
// reuse.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	provider  PrincipalProvider
	auditSink AuditSink

	built bool
}

// New starts a builder preloaded with the default configuration.
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

// WithRedis supplies the Redis client backing session state. The
// engine never closes it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithProvider supplies the application's principal storage bridge.
func (b *Builder) WithProvider(p PrincipalProvider) *Builder {
	b.provider = p
	return b
}

// WithAuditSink supplies the audit consumer and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the session-load latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the wiring and constructs the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.provider == nil {
		return nil, errors.New("principal provider required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.New(cfg.Password.Argon2)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		provider: b.provider,
		store: session.NewStore(
			b.redis,
			cfg.Session.RedisPrefix,
			cfg.Session.KeyName,
			cfg.Session.Lifetime,
		),
		hasher:    hasher,
		codec:     cookie.New(cfg.Cookie.SigningKey),
		evaluator: permission.NewEvaluator(cfg.Login.SuperuserID),
		throttle:  throttle.New(cfg.Login.DelayStep, cfg.Login.DelayCeiling),
		metrics:   NewMetrics(cfg.Metrics),
	}

	if cfg.Ticket.Enabled {
		issuer, err := ticket.NewIssuer(cfg.Ticket.SigningKey, cfg.Ticket.TTL)
		if err != nil {
			return nil, err
		}
		engine.tickets = issuer
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
