package eident

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/nordauth/eident/order"
	"github.com/nordauth/eident/token"
)

// Builder defines a public type used by eident APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	remote     RemoteClient
	principals PrincipalProvider
	issuer     TokenIssuer
	auditSink  AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRemoteClient describes the withremoteclient operation and its observable behavior.
//
// WithRemoteClient may return an error when input validation, dependency calls, or security checks fail.
// WithRemoteClient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRemoteClient(client RemoteClient) *Builder {
	b.remote = client
	return b
}

// WithPrincipalProvider describes the withprincipalprovider operation and its observable behavior.
//
// WithPrincipalProvider may return an error when input validation, dependency calls, or security checks fail.
// WithPrincipalProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPrincipalProvider(pp PrincipalProvider) *Builder {
	b.principals = pp
	return b
}

// WithTokenIssuer describes the withtokenissuer operation and its observable behavior.
//
// WithTokenIssuer may return an error when input validation, dependency calls, or security checks fail.
// WithTokenIssuer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithTokenIssuer(issuer TokenIssuer) *Builder {
	b.issuer = issuer
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.remote == nil {
		return nil, errors.New("remote client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := order.NewStore(b.redis, cfg.Order.RedisPrefix, cfg.Order.StoreBackstopTTL)

	engine := &Engine{
		config:     cloneConfig(cfg),
		orderStore: store,
		remote:     b.remote,
		principals: b.principals,
	}

	engine.issuer = b.issuer
	if engine.issuer == nil && len(cfg.Token.PrivateKey) > 0 {
		issuer, err := token.NewIssuer(token.Config{
			TTL:           cfg.Token.TTL,
			SigningMethod: cfg.Token.SigningMethod,
			PrivateKey:    cfg.Token.PrivateKey,
			PublicKey:     cfg.Token.PublicKey,
			Issuer:        cfg.Token.Issuer,
		})
		if err != nil {
			return nil, err
		}
		engine.issuer = defaultIssuer{issuer}
	}

	if cfg.Audit.Enabled {
		engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	}

	if cfg.Metrics.Enabled {
		engine.metrics = NewMetrics(cfg.Metrics)
	}

	b.built = true

	return engine, nil
}

// defaultIssuer adapts the token package's issuer to the engine's
// [TokenIssuer] interface.
type defaultIssuer struct {
	issuer *token.Issuer
}

func (d defaultIssuer) Issue(ctx context.Context, p Principal) (string, error) {
	return d.issuer.Issue(ctx, token.Identity{
		PersonalNumber:  p.PersonalNumber,
		GivenName:       p.GivenName,
		Surname:         p.Surname,
		Name:            p.Name,
		OrderRef:        p.OrderRef,
		IPAddress:       p.IPAddress,
		AuthenticatedAt: p.AuthenticatedAt,
	})
}
