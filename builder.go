package registroauth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/scuolasuite/registroauth/jwt"
	"github.com/scuolasuite/registroauth/password"
	"github.com/scuolasuite/registroauth/secret"
	"github.com/scuolasuite/registroauth/session"
)

// Builder assembles an Engine. Configure it during initialization; a
// builder is single-use.
type Builder struct {
	config Config
	redis  *redis.Client

	identity  IdentityProvider
	settings  SettingsProvider
	auditSink AuditSink
	secretKey []byte

	built bool
}

// New returns a builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithIdentity sets the identity store. Required.
func (b *Builder) WithIdentity(identity IdentityProvider) *Builder {
	b.identity = identity
	return b
}

// WithSettings sets the runtime settings provider. Required.
func (b *Builder) WithSettings(provider SettingsProvider) *Builder {
	b.settings = provider
	return b
}

// WithRedis enables the Redis-backed session context factory.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAuditSink enables the async audit dispatcher and routes events to
// the sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithSecretKey sets the 32-byte key for the at-rest field encryptor used
// on federated assertion subjects. Optional: without it, subjects are read
// as plaintext.
func (b *Builder) WithSecretKey(key []byte) *Builder {
	b.secretKey = cloneBytes(key)
	return b
}

// WithGatewaySecret sets the HMAC secret for the OIDC gateway token
// transport. Without it, gateway logins are rejected.
func (b *Builder) WithGatewaySecret(secret []byte) *Builder {
	b.config.Gateway.Secret = cloneBytes(secret)
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}
	if b.settings == nil {
		return nil, errors.New("settings provider required")
	}

	engine := &Engine{
		config:   cfg,
		identity: b.identity,
		settings: NewSettings(b.settings),
	}

	engine.otp = newOTPManager(cfg.OTP)
	engine.gate = &gateGuard{settings: engine.settings}
	engine.replay = &replayGuard{
		identity:    b.identity,
		otp:         engine.otp,
		preloginTTL: cfg.Prelogin.TTL,
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = ph

	if len(cfg.Gateway.Secret) > 0 {
		gm, err := jwt.NewManager(jwt.Config{
			Secret:   cfg.Gateway.Secret,
			Issuer:   cfg.Gateway.Issuer,
			Audience: cfg.Gateway.Audience,
			Leeway:   cfg.Gateway.Leeway,
		})
		if err != nil {
			return nil, err
		}
		engine.gateway = gm
	}

	if len(b.secretKey) > 0 {
		box, err := secret.NewBox(b.secretKey)
		if err != nil {
			return nil, err
		}
		engine.box = box
	}

	if b.redis != nil {
		engine.sessions = session.NewFactory(b.redis, cfg.Session.RedisPrefix, cfg.Session.TTL)
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.authenticators = []authenticator{
		&formAuthenticator{
			identity:       b.identity,
			settings:       engine.settings,
			gate:           engine.gate,
			replay:         engine.replay,
			hasher:         engine.hasher,
			upgradeOnLogin: cfg.Password.UpgradeOnLogin,
		},
		&cardAuthenticator{
			identity: b.identity,
			settings: engine.settings,
			gate:     engine.gate,
			minDays:  cfg.Card.MinDaysRemaining,
		},
		&tokenAuthenticator{
			identity: b.identity,
			settings: engine.settings,
			gate:     engine.gate,
		},
		&spidAuthenticator{
			identity: b.identity,
			gate:     engine.gate,
			replay:   engine.replay,
			box:      engine.box,
		},
		&gsuiteAuthenticator{
			identity: b.identity,
			gate:     engine.gate,
		},
		&mimspidAuthenticator{
			identity: b.identity,
			gate:     engine.gate,
			gateway:  engine.gateway,
		},
		&tokenConnectAuthenticator{
			identity: b.identity,
			gate:     engine.gate,
			replay:   engine.replay,
			enabled:  cfg.Handoff.Enabled,
		},
	}

	b.built = true

	return engine, nil
}
